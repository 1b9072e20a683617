// Package transport adapts network connections to whole-frame reads and writes.
// TCP carries newline-delimited frames, WebSocket one frame per text message.
package transport

import (
	"fmt"
	"time"
)

var ErrFrameTooLarge = fmt.Errorf("frame exceeds maximum size")

type Options struct {
	MaxFrameSize int
	// IdleTimeout bounds the wait for the next inbound frame. Zero disables it.
	IdleTimeout time.Duration
	// WriteTimeout bounds a single frame write. Zero disables it.
	WriteTimeout time.Duration
}

const defaultMaxFrameSize = 64 * 1024

func (o Options) maxFrameSize() int {
	if o.MaxFrameSize <= 0 {
		return defaultMaxFrameSize
	}
	return o.MaxFrameSize
}

func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
