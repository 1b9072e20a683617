package transport

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConn carries one frame per WebSocket message.
type WebSocketConn struct {
	ws        *websocket.Conn
	opts      Options
	closeOnce sync.Once
	closeErr  error
}

func NewWebSocketConn(ws *websocket.Conn, opts Options) *WebSocketConn {
	ws.SetReadLimit(int64(opts.maxFrameSize()))
	return &WebSocketConn{ws: ws, opts: opts}
}

func (c *WebSocketConn) ReadFrame() ([]byte, error) {
	if err := c.ws.SetReadDeadline(deadline(c.opts.IdleTimeout)); err != nil {
		return nil, err
	}
	_, data, err := c.ws.ReadMessage()
	if err == websocket.ErrReadLimit {
		return nil, ErrFrameTooLarge
	}
	return data, err
}

func (c *WebSocketConn) WriteFrame(frame []byte) error {
	if err := c.ws.SetWriteDeadline(deadline(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *WebSocketConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// Close sends a best effort close message then closes the connection.
func (c *WebSocketConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// NewUpgrader builds an upgrader accepting the given origins. An empty list or
// "*" accepts every origin, requests without an Origin header (non browser
// clients) are always accepted.
func NewUpgrader(allowedOrigins []string, log *slog.Logger) *websocket.Upgrader {
	allowed, allowAll := normalizeOrigins(allowedOrigins)
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll {
				return true
			}
			normalized, ok := normalizeOrigin(origin)
			if ok {
				if _, exists := allowed[normalized]; exists {
					return true
				}
			}
			log.Warn("Blocked WebSocket connection from disallowed origin", "origin", origin)
			return false
		},
	}
}

func normalizeOrigins(origins []string) (map[string]struct{}, bool) {
	if len(origins) == 0 {
		return nil, true
	}
	normalized := make(map[string]struct{}, len(origins))
	allowAll := false
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			allowAll = true
		default:
			if n, ok := normalizeOrigin(trimmed); ok {
				normalized[n] = struct{}{}
			}
		}
	}
	return normalized, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
