// Package protocol defines the JSON frames exchanged between clients and the server.
// TCP carries one frame per line, WebSocket one frame per text message.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"groupchat/domain"
)

type FrameType string

// Client -> server
const (
	TypeRegister    FrameType = "register"
	TypeLogin       FrameType = "login"
	TypeResume      FrameType = "resume"
	TypeLogout      FrameType = "logout"
	TypePing        FrameType = "ping"
	TypeCreateGroup FrameType = "create_group"
	TypeJoin        FrameType = "join"
	TypeLeave       FrameType = "leave"
	TypeSend        FrameType = "send"
	TypeHistory     FrameType = "history"
	TypeGroups      FrameType = "groups"
)

// Server -> client
const (
	TypeOK      FrameType = "ok"
	TypeError   FrameType = "error"
	TypeMessage FrameType = "message"
	TypePong    FrameType = "pong"
)

// Frame is the single envelope of the wire protocol. Ref is a client chosen
// request id echoed back on the matching ok/error frame.
type Frame struct {
	Type      FrameType     `json:"type"`
	Ref       string        `json:"ref,omitempty"`
	Username  string        `json:"username,omitempty"`
	Password  string        `json:"password,omitempty"`
	Token     string        `json:"token,omitempty"`
	UserID    uint64        `json:"user_id,omitempty"`
	GroupID   uint64        `json:"group_id,omitempty"`
	GroupName string        `json:"group_name,omitempty"`
	Content   string        `json:"content,omitempty"`
	FilePath  string        `json:"file_path,omitempty"`
	MimeType  string        `json:"mime_type,omitempty"`
	Limit     int           `json:"limit,omitempty"`
	Before    uint64        `json:"before,omitempty"`
	MessageID string        `json:"message_id,omitempty"`
	Seq       uint64        `json:"seq,omitempty"`
	Code      string        `json:"code,omitempty"`
	Error     string        `json:"error,omitempty"`
	Message   *MessageView  `json:"message,omitempty"`
	Messages  []MessageView `json:"messages,omitempty"`
	Groups    []GroupView   `json:"groups,omitempty"`
}

type MessageView struct {
	ID       string    `json:"id"`
	Seq      uint64    `json:"seq"`
	GroupID  uint64    `json:"group_id"`
	SenderID uint64    `json:"sender_id"`
	Username string    `json:"username,omitempty"`
	Content  string    `json:"content,omitempty"`
	FilePath string    `json:"file_path,omitempty"`
	MimeType string    `json:"mime_type,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}

type GroupView struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("decode frame: missing type")
	}
	return f, nil
}

func Encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

func OK(ref string) Frame {
	return Frame{Type: TypeOK, Ref: ref}
}

func Error(ref, code string, err error) Frame {
	return Frame{Type: TypeError, Ref: ref, Code: code, Error: err.Error()}
}

// FromMessage builds the broadcast frame for a persisted message.
func FromMessage(m domain.Message, username string) Frame {
	view := ToMessageView(domain.HistoryEntry{Message: m, Username: username})
	return Frame{Type: TypeMessage, GroupID: uint64(m.GroupID), Message: &view}
}

func ToMessageView(e domain.HistoryEntry) MessageView {
	view := MessageView{
		ID:       e.ID.String(),
		Seq:      e.Seq,
		GroupID:  uint64(e.GroupID),
		SenderID: uint64(e.SenderID),
		Username: e.Username,
		Content:  e.Content,
		SentAt:   e.SentAt,
	}
	if !e.File.IsZero() {
		view.FilePath = e.File.Path
		view.MimeType = e.File.MimeType
	}
	return view
}
