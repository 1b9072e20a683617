package runtime

import (
	"sync"

	"groupchat/domain"
)

// keyedLocks hands out one mutex per key, created on first use.
// Locks are never removed: a key costs one mutex for the process lifetime.
type keyedLocks[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*sync.Mutex
}

func (k *keyedLocks[K]) lock(key K) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[K]*sync.Mutex)
	}
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Sequencer hands out one mutex per group. Holding it across persist and
// fan-out makes every recipient observe a group's messages in store order.
type Sequencer struct {
	locks keyedLocks[domain.GroupID]
}

func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Lock blocks until the group's lock is held and returns its release function.
func (s *Sequencer) Lock(groupID domain.GroupID) func() {
	return s.locks.lock(groupID)
}
