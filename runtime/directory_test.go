package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"groupchat/domain"
	"groupchat/errors"
	"groupchat/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestDirectory_CachesMembership(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := mocks.NewMockIStore(gomock.NewController(t))
	directory := NewDirectory(store, time.Minute, testLogger())

	// Given a group loaded once from the store
	store.EXPECT().Members(gomock.Any(), domain.GroupID(1)).Return(domain.NewUserSet(1, 2), nil).Times(1)

	// When asked repeatedly
	isMember, err := directory.IsMember(ctx, 1, 2)
	req.NoError(err)
	req.True(isMember)
	isMember, err = directory.IsMember(ctx, 1, 3)
	req.NoError(err)
	req.False(isMember)

	// Then callers get copies they may modify freely
	members, err := directory.Members(ctx, 1)
	req.NoError(err)
	delete(members, 1)
	isMember, err = directory.IsMember(ctx, 1, 1)
	req.NoError(err)
	req.True(isMember)
	req.Equal(1, directory.Len())
}

func TestDirectory_JoinAndLeaveInvalidate(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := mocks.NewMockIStore(gomock.NewController(t))
	directory := NewDirectory(store, time.Hour, testLogger())

	gomock.InOrder(
		store.EXPECT().Members(gomock.Any(), domain.GroupID(1)).Return(domain.NewUserSet(1), nil),
		store.EXPECT().AddMember(gomock.Any(), domain.GroupID(1), domain.UserID(2)).Return(nil),
		store.EXPECT().Members(gomock.Any(), domain.GroupID(1)).Return(domain.NewUserSet(1, 2), nil),
		store.EXPECT().RemoveMember(gomock.Any(), domain.GroupID(1), domain.UserID(2)).Return(nil),
		store.EXPECT().Members(gomock.Any(), domain.GroupID(1)).Return(domain.NewUserSet(1), nil),
	)

	isMember, err := directory.IsMember(ctx, 1, 2)
	req.NoError(err)
	req.False(isMember)

	// A membership change is visible right after the call returns
	req.NoError(directory.Join(ctx, 1, 2))
	isMember, err = directory.IsMember(ctx, 1, 2)
	req.NoError(err)
	req.True(isMember)

	req.NoError(directory.Leave(ctx, 1, 2))
	isMember, err = directory.IsMember(ctx, 1, 2)
	req.NoError(err)
	req.False(isMember)
}

func TestDirectory_FailedJoinStillInvalidates(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := mocks.NewMockIStore(gomock.NewController(t))
	directory := NewDirectory(store, time.Hour, testLogger())

	store.EXPECT().Members(gomock.Any(), domain.GroupID(1)).Return(domain.NewUserSet(2), nil).Times(2)
	store.EXPECT().AddMember(gomock.Any(), domain.GroupID(1), domain.UserID(2)).Return(errors.ErrAlreadyMember)

	_, err := directory.Members(ctx, 1)
	req.NoError(err)
	req.ErrorIs(directory.Join(ctx, 1, 2), errors.ErrAlreadyMember)
	_, err = directory.Members(ctx, 1)
	req.NoError(err)
}

func TestDirectory_ConcurrentLoadsAreShared(t *testing.T) {
	req := require.New(t)
	store := mocks.NewMockIStore(gomock.NewController(t))
	directory := NewDirectory(store, time.Minute, testLogger())

	release := make(chan struct{})
	started := make(chan struct{})
	store.EXPECT().Members(gomock.Any(), domain.GroupID(1)).
		DoAndReturn(func(context.Context, domain.GroupID) (domain.UserSet, error) {
			close(started)
			<-release
			return domain.NewUserSet(1), nil
		}).Times(1)

	// Given one load in flight
	var wg sync.WaitGroup
	results := make(chan bool, 10)
	wg.Add(1)
	go func() {
		defer wg.Done()
		ok, _ := directory.IsMember(context.Background(), 1, 1)
		results <- ok
	}()
	<-started

	// When more callers ask for the same group
	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := directory.IsMember(context.Background(), 1, 1)
			results <- ok
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	// Then the store was hit once and everyone got the answer
	for ok := range results {
		req.True(ok)
	}
}

func TestDirectory_LoadErrorIsNotCached(t *testing.T) {
	req := require.New(t)
	store := mocks.NewMockIStore(gomock.NewController(t))
	directory := NewDirectory(store, time.Minute, testLogger())

	gomock.InOrder(
		store.EXPECT().Members(gomock.Any(), domain.GroupID(1)).Return(nil, errors.ErrStorageUnavailable),
		store.EXPECT().Members(gomock.Any(), domain.GroupID(1)).Return(domain.NewUserSet(1), nil),
	)

	_, err := directory.IsMember(context.Background(), 1, 1)
	req.ErrorIs(err, errors.ErrStorageUnavailable)
	isMember, err := directory.IsMember(context.Background(), 1, 1)
	req.NoError(err)
	req.True(isMember)
}

func TestDirectory_Sweep(t *testing.T) {
	req := require.New(t)
	store := mocks.NewMockIStore(gomock.NewController(t))
	directory := NewDirectory(store, time.Minute, testLogger())
	now := time.Now()
	directory.now = func() time.Time { return now }

	store.EXPECT().Members(gomock.Any(), gomock.Any()).Return(domain.NewUserSet(1), nil).Times(2)
	_, err := directory.Members(context.Background(), 1)
	req.NoError(err)
	_, err = directory.Members(context.Background(), 2)
	req.NoError(err)

	req.Zero(directory.Sweep())
	req.Equal(2, directory.Len())

	now = now.Add(2 * time.Minute)
	req.Equal(2, directory.Sweep())
	req.Zero(directory.Len())
}
