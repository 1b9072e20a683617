package domain

import (
	"strconv"
	"time"
)

const MaxGroupNameLength = 100

type GroupID uint64

func (id GroupID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Group is a named collection of users sharing a message stream.
// Members and messages are stored as separate keys, never inside the group record.
type Group struct {
	ID        GroupID
	Name      string
	CreatedAt time.Time
}
