package transport

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestWebSocketConn_Echo(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	upgrader := NewUpgrader(nil, log)

	// Given a server echoing every frame through WebSocketConn
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewWebSocketConn(ws, Options{MaxFrameSize: 128, WriteTimeout: time.Second})
		defer conn.Close()
		for {
			frame, err := conn.ReadFrame()
			if err != nil {
				return
			}
			if err := conn.WriteFrame(frame); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	req.NoError(err)
	defer client.Close()

	// When the client sends a frame
	req.NoError(client.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	// Then the same frame comes back as a text message
	mt, data, err := client.ReadMessage()
	req.NoError(err)
	req.Equal(websocket.TextMessage, mt)
	req.Equal(`{"type":"ping"}`, string(data))

	// When the client exceeds the frame limit the server drops the connection
	req.NoError(client.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 512))))
	_, _, err = client.ReadMessage()
	req.Error(err)
}

func TestUpgrader_CheckOrigin(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	upgrader := NewUpgrader([]string{"https://chat.example.com"}, log)

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.True(upgrader.CheckOrigin(r), "non browser clients have no origin")

	r.Header.Set("Origin", "https://CHAT.example.com")
	req.True(upgrader.CheckOrigin(r))

	r.Header.Set("Origin", "https://evil.example.com")
	req.False(upgrader.CheckOrigin(r))

	all := NewUpgrader([]string{"*"}, log)
	req.True(all.CheckOrigin(r))
}
