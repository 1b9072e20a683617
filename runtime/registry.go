package runtime

import (
	"fmt"
	"sync"

	"groupchat/domain"
	"groupchat/errors"
)

// Registry maps a user to its single live session.
// The lock only ever guards map operations: closing a session, writing to a
// transport or calling the store always happens after it is released.
type Registry struct {
	mu       sync.RWMutex
	policy   domain.SessionPolicy
	sessions map[domain.UserID]*Session
}

func NewRegistry(policy domain.SessionPolicy) *Registry {
	if policy == "" {
		policy = domain.RejectNew
	}
	return &Registry{
		policy:   policy,
		sessions: make(map[domain.UserID]*Session),
	}
}

func (r *Registry) Policy() domain.SessionPolicy {
	return r.policy
}

// Register admits an authenticated session.
// Under RejectNew a second session for the same user fails with
// ErrDuplicateSession and the existing one is untouched. Under EvictOld the new
// session replaces the old one atomically and the old one is returned so the
// caller can close it once the lock is released.
func (r *Registry) Register(session *Session) (*Session, error) {
	return r.RegisterWith(session, nil)
}

// RegisterWith is Register with a hook run once the session is admitted, while
// the lock is still held: nothing else can observe the session before the hook
// returns. The hook must not block or call back into the registry.
func (r *Registry) RegisterWith(session *Session, admitted func()) (*Session, error) {
	userID := session.UserID()
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.sessions[userID]
	if old == session {
		old = nil
	}
	if old != nil && r.policy == domain.RejectNew {
		return nil, fmt.Errorf("%w: user %d", errors.ErrDuplicateSession, userID)
	}
	r.sessions[userID] = session
	if admitted != nil {
		admitted()
	}
	return old, nil
}

// Unregister removes whatever session the user has. Calling it twice is harmless.
func (r *Registry) Unregister(userID domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}

// Remove deletes the entry only if it still points to this session, so a
// session closing after its eviction never removes its successor.
func (r *Registry) Remove(session *Session) bool {
	userID := session.UserID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[userID]; ok && current == session {
		delete(r.sessions, userID)
		return true
	}
	return false
}

func (r *Registry) Lookup(userID domain.UserID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[userID]
	return session, ok
}

// Snapshot copies the sessions of the given users that are currently online.
// Offline users are silently left out.
func (r *Registry) Snapshot(userIDs domain.UserSet) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*Session, 0, len(userIDs))
	for userID := range userIDs {
		if session, ok := r.sessions[userID]; ok {
			sessions = append(sessions, session)
		}
	}
	return sessions
}

// All copies every registered session.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
