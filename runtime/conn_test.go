package runtime

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"groupchat/domain"
	"groupchat/protocol"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory transport. When gate is set, writes block until it
// is closed, simulating a peer that stopped reading. Once broken is set every
// write fails, as on a reset connection.
type fakeConn struct {
	inbound  chan []byte
	outbound chan []byte
	gate     chan struct{}
	closed   chan struct{}
	once     sync.Once
	broken   atomic.Bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan []byte, 16),
		outbound: make(chan []byte, 256),
		closed:   make(chan struct{}),
	}
}

func newGatedConn() *fakeConn {
	c := newFakeConn()
	c.gate = make(chan struct{})
	return c
}

func (c *fakeConn) ReadFrame() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteFrame(frame []byte) error {
	if c.broken.Load() {
		return syscall.ECONNRESET
	}
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-c.closed:
			return io.ErrClosedPipe
		}
	}
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	case c.outbound <- frame:
		return nil
	}
}

func (c *fakeConn) RemoteAddr() string {
	return "pipe"
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) send(t *testing.T, frame protocol.Frame) {
	t.Helper()
	data, err := protocol.Encode(frame)
	require.NoError(t, err)
	c.inbound <- data
}

func (c *fakeConn) next(t *testing.T) protocol.Frame {
	t.Helper()
	select {
	case data := <-c.outbound:
		frame, err := protocol.Decode(data)
		require.NoError(t, err)
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("no frame written")
		return protocol.Frame{}
	}
}

func (c *fakeConn) assertSilent(t *testing.T) {
	t.Helper()
	select {
	case data := <-c.outbound:
		t.Fatalf("unexpected frame %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func testSessionConfig() SessionConfig {
	return SessionConfig{QueueSize: 8, DrainTimeout: time.Second}
}

// activeSession returns a session already authenticated as the given user.
func activeSession(t *testing.T, conn *fakeConn, cfg SessionConfig, userID domain.UserID) *Session {
	t.Helper()
	s := NewSession(conn, cfg, testLogger())
	require.NoError(t, s.BeginAuth())
	require.NoError(t, s.Activate(domain.Identity{UserID: userID, Username: "user" + userID.String()}))
	t.Cleanup(s.ForceClose)
	return s
}

func waitClosed(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session not closed")
	}
}
