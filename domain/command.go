package domain

import (
	"time"
)

// SendMessageCommand is a validated request to post into a group. FilePath
// names a file on the sender's side; its MimeType is declared by the sender.
type SendMessageCommand struct {
	SenderID   UserID `validate:"required"`
	SenderName string
	GroupID    GroupID `validate:"required"`
	Content    string  `validate:"required_without=FilePath"`
	FilePath   string  `validate:"required_without=Content"`
	MimeType   string  `validate:"omitempty,max=255"`
	SentAt     time.Time
}

type CreateGroupCommand struct {
	Name string `validate:"required,max=100"`
}

// HistoryQuery reads a page of messages older than Before (0 means newest).
type HistoryQuery struct {
	GroupID GroupID `validate:"required"`
	Before  uint64
	Limit   int `validate:"gte=0"`
}
