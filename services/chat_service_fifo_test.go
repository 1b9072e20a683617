//go:build linux || darwin

package services

import (
	"context"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"groupchat/domain"
	"groupchat/domain/mimetypes"

	"github.com/stretchr/testify/require"
)

func TestChatService_FileReferenceNeverOpened(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	f.expectDelivery()
	ctx := context.Background()

	// Given a path that blocks whoever opens it
	fifo := filepath.Join(t.TempDir(), "shared.png")
	req.NoError(syscall.Mkfifo(fifo, 0o600))

	// When one member shares it and another member posts right after
	done := make(chan domain.Message, 2)
	go func() {
		msg, err := f.svc.SendGroupMessage(ctx, domain.SendMessageCommand{SenderID: 1, GroupID: 1, FilePath: fifo})
		if err == nil {
			done <- msg
		}
	}()
	go func() {
		msg, err := f.svc.SendGroupMessage(ctx, domain.SendMessageCommand{SenderID: 2, GroupID: 1, Content: "hi"})
		if err == nil {
			done <- msg
		}
	}()

	// Then both sends complete and the file is typed from its name
	var file domain.Message
	for range 2 {
		select {
		case msg := <-done:
			if msg.IsFile() {
				file = msg
			}
		case <-time.After(2 * time.Second):
			req.FailNow("send blocked behind a file reference")
		}
	}
	req.Equal(fifo, file.File.Path)
	req.Equal(string(mimetypes.ImagePNG), file.File.MimeType)
}
