package repositories

import (
	"sync"
	"testing"

	"groupchat/errors"

	"github.com/stretchr/testify/require"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	// Given a new user
	id, err := f.users.CreateUser("alice", "hash-1")
	req.NoError(err)
	req.NotZero(id)

	// Then it can be read by name and by id
	byName, err := f.users.GetUserByName("alice")
	req.NoError(err)
	req.Equal(id, byName.ID)
	req.Equal("hash-1", byName.PasswordHash)
	req.False(byName.Active)

	byID, err := f.users.GetUser(id)
	req.NoError(err)
	req.Equal("alice", byID.Username)
}

func TestUserRepository_DuplicateKeepsFirstCredential(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	// Given "alice" registered with a first credential
	first, err := f.users.CreateUser("alice", "p1")
	req.NoError(err)

	// When "alice" registers again with another credential
	_, err = f.users.CreateUser("alice", "p2")

	// Then the second registration fails and the first credential survives
	req.ErrorIs(err, errors.ErrDuplicateUsername)
	user, err := f.users.GetUserByName("alice")
	req.NoError(err)
	req.Equal(first, user.ID)
	req.Equal("p1", user.PasswordHash)
}

func TestUserRepository_IdsAreUnique(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	var mu sync.Mutex
	seen := map[uint64]struct{}{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := f.users.CreateUser(string(rune('a'+i))+"user", "hash")
			req.NoError(err)
			mu.Lock()
			seen[uint64(id)] = struct{}{}
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	req.Len(seen, 20)
}

func TestUserRepository_ConcurrentDuplicate(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.users.CreateUser("bob", "hash")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	// Then exactly one registration wins
	var succeeded int
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		req.ErrorIs(err, errors.ErrDuplicateUsername)
	}
	req.Equal(1, succeeded)
}

func TestUserRepository_SetActive(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	id, err := f.users.CreateUser("alice", "hash")
	req.NoError(err)

	req.NoError(f.users.SetActive(id, true))
	user, err := f.users.GetUser(id)
	req.NoError(err)
	req.True(user.Active)

	req.ErrorIs(f.users.SetActive(id+100, true), errors.ErrUserNotFound)
}

func TestUserRepository_UnknownUser(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	_, err := f.users.GetUserByName("nobody")
	req.ErrorIs(err, errors.ErrUserNotFound)
	_, err = f.users.GetUser(42)
	req.ErrorIs(err, errors.ErrUserNotFound)
}
