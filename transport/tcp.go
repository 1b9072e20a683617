package transport

import (
	"bufio"
	"bytes"
	goerrors "errors"
	"net"
	"sync"
)

// TCPConn reads and writes newline-delimited frames over a stream connection.
type TCPConn struct {
	conn      net.Conn
	reader    *bufio.Reader
	opts      Options
	closeOnce sync.Once
	closeErr  error
}

func NewTCPConn(conn net.Conn, opts Options) *TCPConn {
	return &TCPConn{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, opts.maxFrameSize()+1),
		opts:   opts,
	}
}

// ReadFrame returns the next non-empty line without its terminator.
// A line longer than MaxFrameSize fails with ErrFrameTooLarge: the stream
// cannot be resynchronised after that, the caller should drop the connection.
func (c *TCPConn) ReadFrame() ([]byte, error) {
	for {
		if err := c.conn.SetReadDeadline(deadline(c.opts.IdleTimeout)); err != nil {
			return nil, err
		}
		line, err := c.reader.ReadSlice('\n')
		if goerrors.Is(err, bufio.ErrBufferFull) {
			return nil, ErrFrameTooLarge
		}
		if err != nil {
			return nil, err
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		return frame, nil
	}
}

func (c *TCPConn) WriteFrame(frame []byte) error {
	if err := c.conn.SetWriteDeadline(deadline(c.opts.WriteTimeout)); err != nil {
		return err
	}
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')
	_, err := c.conn.Write(buf)
	return err
}

func (c *TCPConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Close is safe to call more than once.
func (c *TCPConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
