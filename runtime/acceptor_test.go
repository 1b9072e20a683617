package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"groupchat/domain"
	"groupchat/mocks"
	"groupchat/protocol"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type acceptorFixture struct {
	acceptor *Acceptor
	registry *Registry
	router   *Router
	auth     *mocks.MockIAuthService
}

func newAcceptorFixture(t *testing.T, cfg SessionConfig) acceptorFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	registry := NewRegistry(domain.RejectNew)
	f := acceptorFixture{
		registry: registry,
		router:   NewRouter(registry, testLogger()),
		auth:     mocks.NewMockIAuthService(ctrl),
	}
	handler := NewHandler(mocks.NewMockIChatService(ctrl), testLogger())
	f.acceptor = NewAcceptor(f.auth, registry, handler, AcceptorConfig{Session: cfg}, testLogger())
	t.Cleanup(func() {
		f.acceptor.Stop()
		for _, s := range f.acceptor.Sessions() {
			s.ForceClose()
		}
		f.acceptor.Cancel()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.acceptor.Wait(ctx)
	})
	return f
}

// login connects a client as the given user and returns its transport once
// the login acknowledgement was read.
func (f acceptorFixture) login(t *testing.T, userID domain.UserID) *fakeConn {
	t.Helper()
	conn := newFakeConn()
	f.acceptor.start(conn, "")
	conn.send(t, protocol.Frame{Type: protocol.TypeLogin, Ref: "l", Username: "user" + userID.String(), Password: "secret"})
	ack := conn.next(t)
	require.Equal(t, protocol.TypeOK, ack.Type)
	require.Equal(t, uint64(userID), ack.UserID)
	return conn
}

func (f acceptorFixture) expectLogin(userID domain.UserID) {
	f.auth.EXPECT().Login(gomock.Any(), "user"+userID.String(), "secret").
		Return(domain.Identity{UserID: userID, Username: "user" + userID.String()}, nil).AnyTimes()
}

func groupMessage(seq uint64, sender domain.UserID) domain.HistoryEntry {
	return domain.HistoryEntry{
		Message: domain.Message{
			ID:       uuid.New(),
			Seq:      seq,
			GroupID:  10,
			SenderID: sender,
			Content:  "hello",
			SentAt:   time.Now().UTC(),
		},
		Username: "user" + sender.String(),
	}
}

func TestAcceptor_BrokenRecipientIsDropped(t *testing.T) {
	req := require.New(t)
	f := newAcceptorFixture(t, testSessionConfig())
	f.expectLogin(2)
	f.expectLogin(3)
	f.auth.EXPECT().MarkActive(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	members := domain.NewUserSet(1, 2, 3)

	// Given two admitted members, one of which loses its transport
	lost := f.login(t, 2)
	healthy := f.login(t, 3)
	lost.broken.Store(true)

	// When a message is broadcast, the enqueue itself still succeeds
	req.Equal(2, f.router.Broadcast(groupMessage(1, 1), members))

	// Then the failed write removes the member from the registry
	req.Eventually(func() bool {
		return len(f.registry.Snapshot(domain.NewUserSet(2))) == 0
	}, 2*time.Second, 10*time.Millisecond)
	req.Equal(uint64(1), healthy.next(t).Message.Seq)

	// And later broadcasts only reach the healthy member
	req.Equal(1, f.router.Broadcast(groupMessage(2, 1), members))
	req.Equal(uint64(2), healthy.next(t).Message.Seq)
	snapshot := f.registry.Snapshot(members)
	req.Len(snapshot, 1)
	req.Equal(domain.UserID(3), snapshot[0].UserID())
}

func TestAcceptor_PresenceFollowsLatestSession(t *testing.T) {
	req := require.New(t)
	f := newAcceptorFixture(t, testSessionConfig())
	f.expectLogin(1)

	var mu sync.Mutex
	var writes []bool
	offline := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.auth.EXPECT().MarkActive(gomock.Any(), domain.UserID(1), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.UserID, active bool) error {
			if !active {
				once.Do(func() {
					close(offline)
					<-release
				})
			}
			mu.Lock()
			defer mu.Unlock()
			writes = append(writes, active)
			return nil
		}).AnyTimes()

	// Given a first session whose offline write is slow to land
	first := f.login(t, 1)
	req.NoError(first.Close())
	select {
	case <-offline:
	case <-time.After(2 * time.Second):
		req.FailNow("offline presence never written")
	}

	// When the user reconnects before that write completes
	second := newFakeConn()
	f.acceptor.start(second, "")
	second.send(t, protocol.Frame{Type: protocol.TypeLogin, Ref: "again", Username: "user1", Password: "secret"})
	req.Equal(protocol.TypeOK, second.next(t).Type)
	close(release)

	// Then the stored presence ends up online
	req.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(writes) == 3 && writes[2]
	}, 2*time.Second, 10*time.Millisecond)
	_, online := f.registry.Lookup(1)
	req.True(online)
}

func TestAcceptor_LoginAckPrecedesBroadcasts(t *testing.T) {
	req := require.New(t)
	f := newAcceptorFixture(t, SessionConfig{QueueSize: 64, DrainTimeout: time.Second})
	f.expectLogin(2)
	f.auth.EXPECT().MarkActive(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	// Given a group that keeps broadcasting until the new member is reachable
	delivered := make(chan struct{})
	go func() {
		defer close(delivered)
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if f.router.Broadcast(groupMessage(1, 1), domain.NewUserSet(1, 2)) == 1 {
				return
			}
		}
	}()

	// When the member logs in
	conn := newFakeConn()
	f.acceptor.start(conn, "")
	conn.send(t, protocol.Frame{Type: protocol.TypeLogin, Ref: "l", Username: "user2", Password: "secret"})
	<-delivered

	// Then the acknowledgement is the first frame, before any group message
	req.Equal(protocol.TypeOK, conn.next(t).Type)
	message := conn.next(t)
	req.Equal(protocol.TypeMessage, message.Type)
	req.Equal(uint64(1), message.Message.Seq)
}
