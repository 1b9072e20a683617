// Package domain contains core concepts of the group chat.
// This file defines User identities.
package domain

import (
	"strconv"
	"time"
)

// UserID is assigned by the store and never reused.
type UserID uint64

func (id UserID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

type User struct {
	ID           UserID
	Username     string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// UserSet is an unordered set of user ids.
type UserSet map[UserID]struct{}

func NewUserSet(ids ...UserID) UserSet {
	set := make(UserSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s UserSet) Contains(id UserID) bool {
	_, ok := s[id]
	return ok
}

// Without returns a copy of the set minus the given id.
func (s UserSet) Without(id UserID) UserSet {
	out := make(UserSet, len(s))
	for member := range s {
		if member != id {
			out[member] = struct{}{}
		}
	}
	return out
}

// Clone returns a copy that can be handed out without sharing the backing map.
func (s UserSet) Clone() UserSet {
	out := make(UserSet, len(s))
	for member := range s {
		out[member] = struct{}{}
	}
	return out
}

// Identity is an authenticated user. Token is a resume token, empty when
// token issuing is disabled.
type Identity struct {
	UserID   UserID
	Username string
	Token    string
}
