package mimetypes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		detected string
		expected MIME
		want     bool
	}{
		{"Plain text with charset", "text/plain; charset=utf-8", TextPlain, true},
		{"HTML text", "text/html; charset=utf-8", TextHTML, true},
		{"JSON with charset", "application/json; charset=utf-8", ApplicationJSON, true},
		{"PDF", "application/pdf", ApplicationPDF, true},
		{"PNG", "image/png", ImagePNG, true},
		{"Mismatch", "text/plain; charset=utf-8", ApplicationJSON, false},
		{"Unknown type", "application/octet-stream", TextPlain, false},
		{"Invalid MIME", "not a mime", TextPlain, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Matches(tt.detected, tt.expected))
		})
	}
}

func TestOf(t *testing.T) {
	req := require.New(t)
	req.Equal(TextPlain, Of("text/plain; charset=utf-8"))
	req.Equal(ImagePNG, Of("image/png"))
	req.Equal(OctetStream, Of("not a mime"))
	req.True(Of("image/jpeg").IsImage())
	req.False(Of("application/pdf").IsImage())
}

func TestByExtension(t *testing.T) {
	req := require.New(t)
	req.Equal(ImagePNG, ByExtension("/home/alice/cat.png"))
	req.Equal(ApplicationPDF, ByExtension("report.pdf"))
	req.Equal(OctetStream, ByExtension("blob.zzunknown"))
	req.Equal(OctetStream, ByExtension("no-extension"))
}
