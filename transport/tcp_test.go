package transport

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTCPConn_ReadFrame(t *testing.T) {
	req := require.New(t)
	server, client := net.Pipe()
	conn := NewTCPConn(server, Options{MaxFrameSize: 64})
	defer conn.Close()

	// Given a client writing frames, an empty line and a CRLF terminator
	go func() {
		_, _ = client.Write([]byte("{\"type\":\"ping\"}\n\n{\"type\":\"login\"}\r\n"))
	}()

	// Then frames come back one by one, without terminators
	frame, err := conn.ReadFrame()
	req.NoError(err)
	req.Equal(`{"type":"ping"}`, string(frame))

	frame, err = conn.ReadFrame()
	req.NoError(err)
	req.Equal(`{"type":"login"}`, string(frame))
}

func TestTCPConn_FrameTooLarge(t *testing.T) {
	req := require.New(t)
	server, client := net.Pipe()
	conn := NewTCPConn(server, Options{MaxFrameSize: 16})
	defer conn.Close()
	defer client.Close()

	go func() {
		_, _ = client.Write([]byte(strings.Repeat("x", 64) + "\n"))
	}()

	_, err := conn.ReadFrame()
	req.ErrorIs(err, ErrFrameTooLarge)
}

func TestTCPConn_IdleTimeout(t *testing.T) {
	req := require.New(t)
	server, client := net.Pipe()
	conn := NewTCPConn(server, Options{IdleTimeout: 50 * time.Millisecond})
	defer conn.Close()
	defer client.Close()

	// When the peer stays silent
	start := time.Now()
	_, err := conn.ReadFrame()

	// Then the read gives up after the idle timeout
	req.Error(err)
	var netErr net.Error
	req.ErrorAs(err, &netErr)
	req.True(netErr.Timeout())
	req.Less(time.Since(start), time.Second)
}

func TestTCPConn_WriteFrame(t *testing.T) {
	req := require.New(t)
	server, client := net.Pipe()
	conn := NewTCPConn(server, Options{WriteTimeout: time.Second})
	defer client.Close()

	go func() {
		_ = conn.WriteFrame([]byte(`{"type":"pong"}`))
	}()

	line, err := bufio.NewReader(client).ReadString('\n')
	req.NoError(err)
	req.Equal("{\"type\":\"pong\"}\n", line)

	// Closing twice is harmless
	req.NoError(conn.Close())
	req.NoError(conn.Close())
}
