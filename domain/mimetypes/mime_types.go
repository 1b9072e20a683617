// Package mimetypes names the media types of files shared in groups.
package mimetypes

import (
	"mime"
	"path/filepath"
)

type MIME string

const (
	Unknown     MIME = "unknown"
	OctetStream MIME = "application/octet-stream"
	TextPlain   MIME = "text/plain"
	TextHTML    MIME = "text/html"

	ApplicationPDF  MIME = "application/pdf"
	ApplicationJSON MIME = "application/json"
	ApplicationZIP  MIME = "application/zip"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"
)

// Of strips the parameters of a detected type: "text/plain; charset=utf-8"
// becomes "text/plain". Anything unparsable is OctetStream.
func Of(detected string) MIME {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return OctetStream
	}
	return MIME(mt)
}

// ByExtension types a file from its name alone. Unknown extensions are OctetStream.
func ByExtension(path string) MIME {
	byExt := mime.TypeByExtension(filepath.Ext(path))
	if byExt == "" {
		return OctetStream
	}
	return Of(byExt)
}

func Matches(detected string, expected MIME) bool {
	mt, _, err := mime.ParseMediaType(detected)
	return err == nil && mt == string(expected)
}

// IsImage reports whether clients may render the file inline.
func (m MIME) IsImage() bool {
	return m == ImagePNG || m == ImageJPEG || m == ImageGIF
}
