// Package domain contains core concepts of the group chat.
// This file defines Message events and related rules.
// Messages are immutable once persisted.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// FileRef points to a file shared in a group. Only the reference is stored,
// never the content.
type FileRef struct {
	Path     string
	MimeType string
}

func (f *FileRef) IsZero() bool {
	return f == nil || f.Path == ""
}

// NewMessage is what a sender submits before the store assigns an id and a sequence.
type NewMessage struct {
	SenderID UserID
	GroupID  GroupID
	Content  string
	File     *FileRef
	SentAt   time.Time
}

// Message is an immutable persisted message. SenderID is a plain reference:
// the sender's lifecycle never affects the stored message.
type Message struct {
	ID       uuid.UUID
	Seq      uint64 // per group, strictly increasing
	GroupID  GroupID
	SenderID UserID
	Content  string
	File     *FileRef
	SentAt   time.Time
}

func (m Message) IsFile() bool {
	return !m.File.IsZero()
}

// HistoryEntry is a message joined with the sender's username at read time.
type HistoryEntry struct {
	Message
	Username string
}
