package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"groupchat/contract"
	"groupchat/domain"

	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	members domain.UserSet
	expires time.Time
}

// Directory answers membership questions from a short-lived cache in front
// of the store.
//
// Every group carries a generation number bumped by Join and Leave. Loads are
// keyed by (group, generation) so that a load started before a membership
// change is neither shared with later callers nor written into the cache.
type Directory struct {
	store contract.IStore
	ttl   time.Duration
	log   *slog.Logger
	loads singleflight.Group

	mu          sync.Mutex
	entries     map[domain.GroupID]cacheEntry
	generations map[domain.GroupID]uint64
	now         func() time.Time
}

func NewDirectory(store contract.IStore, ttl time.Duration, log *slog.Logger) *Directory {
	return &Directory{
		store:       store,
		ttl:         ttl,
		log:         log,
		entries:     make(map[domain.GroupID]cacheEntry),
		generations: make(map[domain.GroupID]uint64),
		now:         time.Now,
	}
}

func (d *Directory) IsMember(ctx context.Context, groupID domain.GroupID, userID domain.UserID) (bool, error) {
	members, err := d.members(ctx, groupID)
	if err != nil {
		return false, err
	}
	return members.Contains(userID), nil
}

// Members returns a copy of the group's member set.
func (d *Directory) Members(ctx context.Context, groupID domain.GroupID) (domain.UserSet, error) {
	members, err := d.members(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return members.Clone(), nil
}

// Join adds the member in the store then invalidates the cached entry, so a
// call made after Join returns always sees the new member.
func (d *Directory) Join(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error {
	defer d.invalidate(groupID)
	return d.store.AddMember(ctx, groupID, userID)
}

func (d *Directory) Leave(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error {
	defer d.invalidate(groupID)
	return d.store.RemoveMember(ctx, groupID, userID)
}

// Sweep drops expired entries and returns how many were removed.
func (d *Directory) Sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	removed := 0
	for groupID, entry := range d.entries {
		if !now.Before(entry.expires) {
			delete(d.entries, groupID)
			removed++
		}
	}
	return removed
}

// Len is the number of cached groups.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// members returns the shared cached set. Callers must not modify it.
func (d *Directory) members(ctx context.Context, groupID domain.GroupID) (domain.UserSet, error) {
	d.mu.Lock()
	entry, ok := d.entries[groupID]
	generation := d.generations[groupID]
	d.mu.Unlock()
	if ok && d.now().Before(entry.expires) {
		return entry.members, nil
	}

	key := fmt.Sprintf("%d:%d", groupID, generation)
	v, err, shared := d.loads.Do(key, func() (any, error) {
		return d.load(ctx, groupID, generation)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		d.log.Debug("Membership load shared", "group_id", groupID)
	}
	return v.(domain.UserSet), nil
}

func (d *Directory) load(ctx context.Context, groupID domain.GroupID, generation uint64) (domain.UserSet, error) {
	// The load is shared with other callers: one of them giving up must not fail the rest.
	members, err := d.store.Members(context.WithoutCancel(ctx), groupID)
	if err != nil {
		return nil, err
	}
	if d.ttl <= 0 {
		return members, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.generations[groupID] == generation {
		d.entries[groupID] = cacheEntry{members: members, expires: d.now().Add(d.ttl)}
	}
	return members, nil
}

func (d *Directory) invalidate(groupID domain.GroupID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generations[groupID]++
	delete(d.entries, groupID)
}
