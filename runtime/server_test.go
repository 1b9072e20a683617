package runtime_test

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"groupchat/auth"
	"groupchat/domain"
	"groupchat/mocks"
	"groupchat/moderation"
	"groupchat/protocol"
	"groupchat/runtime"
	"groupchat/services"
	"groupchat/storage"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
)

type testServer struct {
	server *runtime.Server
	store  *storage.Store
	addr   string
}

func startServer(t *testing.T, policy domain.SessionPolicy) testServer {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	store, err := storage.Open(t.TempDir(), log, storage.WithHashParams(auth.LowCostParams))
	req.NoError(err)
	moderator, err := moderation.NewModerator([]string{"badger"}, '*', log)
	req.NoError(err)

	registry := runtime.NewRegistry(policy)
	directory := runtime.NewDirectory(store, time.Minute, log)
	router := runtime.NewRouter(registry, log)
	chat := services.NewChatService(store, directory, router, runtime.NewSequencer(), moderator,
		services.ChatConfig{MaxContentLength: 1000, HistoryLimit: 50}, log)
	authService := services.NewAuthService(store, auth.NewTokenIssuer("secret", time.Hour), log)
	acceptor := runtime.NewAcceptor(authService, registry, runtime.NewHandler(chat, log), runtime.AcceptorConfig{
		Session: runtime.SessionConfig{QueueSize: 256, DrainTimeout: time.Second, MaxAuthAttempts: 3},
	}, log)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	go func() { _ = acceptor.Serve(context.Background(), ln) }()

	supervisor := mocks.NewMockISupervisor(gomock.NewController(t))
	supervisor.EXPECT().Stop().AnyTimes()
	server := runtime.NewServer(acceptor, registry, directory, supervisor, store, health.NewServer(), 2*time.Second, log)
	t.Cleanup(func() { _ = server.Shutdown(context.Background()) })

	return testServer{server: server, store: store, addr: ln.Addr().String()}
}

type client struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *client) send(frame protocol.Frame) {
	c.t.Helper()
	data, err := protocol.Encode(frame)
	require.NoError(c.t, err)
	_, err = c.conn.Write(append(data, '\n'))
	require.NoError(c.t, err)
}

func (c *client) read() (protocol.Frame, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return protocol.Frame{}, err
	}
	return protocol.Decode(line)
}

func (c *client) next() protocol.Frame {
	c.t.Helper()
	frame, err := c.read()
	require.NoError(c.t, err)
	return frame
}

func (c *client) call(frame protocol.Frame) protocol.Frame {
	c.t.Helper()
	c.send(frame)
	return c.next()
}

func (c *client) assertClosed() {
	c.t.Helper()
	for {
		_, err := c.read()
		if err == nil {
			continue
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			c.t.Fatal("connection still open")
		}
		return
	}
}

func register(t *testing.T, addr, username string) (*client, protocol.Frame) {
	t.Helper()
	c := dial(t, addr)
	reply := c.call(protocol.Frame{Type: protocol.TypeRegister, Ref: "r", Username: username, Password: "password123"})
	require.Equal(t, protocol.TypeOK, reply.Type, reply.Error)
	require.NotZero(t, reply.UserID)
	return c, reply
}

func TestServer_GroupConversation(t *testing.T) {
	req := require.New(t)
	srv := startServer(t, domain.RejectNew)

	// Given two registered users in the same group
	alice, _ := register(t, srv.addr, "alice")
	bob, _ := register(t, srv.addr, "bob")
	created := alice.call(protocol.Frame{Type: protocol.TypeCreateGroup, Ref: "c", GroupName: "gophers"})
	req.Equal(protocol.TypeOK, created.Type)
	groupID := created.GroupID
	req.Equal(protocol.TypeOK, alice.call(protocol.Frame{Type: protocol.TypeJoin, Ref: "j", GroupID: groupID}).Type)
	req.Equal(protocol.TypeOK, bob.call(protocol.Frame{Type: protocol.TypeJoin, Ref: "j", GroupID: groupID}).Type)

	// When alice posts
	ack := alice.call(protocol.Frame{Type: protocol.TypeSend, Ref: "s", GroupID: groupID, Content: "hello badger"})

	// Then she gets the sequence and bob gets the censored message
	req.Equal(protocol.TypeOK, ack.Type)
	req.Equal(uint64(1), ack.Seq)
	pushed := bob.next()
	req.Equal(protocol.TypeMessage, pushed.Type)
	req.Equal("hello ******", pushed.Message.Content)
	req.Equal("alice", pushed.Message.Username)
	req.Equal(ack.MessageID, pushed.Message.ID)

	// And the message is in the history
	history := bob.call(protocol.Frame{Type: protocol.TypeHistory, Ref: "h", GroupID: groupID})
	req.Len(history.Messages, 1)
	req.Equal(uint64(1), history.Messages[0].Seq)

	groups := bob.call(protocol.Frame{Type: protocol.TypeGroups, Ref: "g"})
	req.Equal([]protocol.GroupView{{ID: groupID, Name: "gophers"}}, groups.Groups)

	// A user outside the group can neither post nor read
	carol, _ := register(t, srv.addr, "carol")
	denied := carol.call(protocol.Frame{Type: protocol.TypeSend, Ref: "s", GroupID: groupID, Content: "hi"})
	req.Equal(codes.PermissionDenied.String(), denied.Code)
	denied = carol.call(protocol.Frame{Type: protocol.TypeHistory, Ref: "h", GroupID: groupID})
	req.Equal(codes.PermissionDenied.String(), denied.Code)
	count, err := srv.store.MessageCount(context.Background(), domain.GroupID(groupID))
	req.NoError(err)
	req.Equal(uint64(1), count)
}

func TestServer_MessagesArriveInSequenceOrder(t *testing.T) {
	req := require.New(t)
	srv := startServer(t, domain.RejectNew)
	const senders, perSender = 3, 20

	owner, _ := register(t, srv.addr, "owner")
	groupID := owner.call(protocol.Frame{Type: protocol.TypeCreateGroup, Ref: "c", GroupName: "busy"}).GroupID
	req.Equal(protocol.TypeOK, owner.call(protocol.Frame{Type: protocol.TypeJoin, Ref: "j", GroupID: groupID}).Type)

	clients := make([]*client, senders)
	for i := range clients {
		clients[i], _ = register(t, srv.addr, fmt.Sprintf("sender%d", i))
		req.Equal(protocol.TypeOK, clients[i].call(protocol.Frame{Type: protocol.TypeJoin, Ref: "j", GroupID: groupID}).Type)
	}

	// When every sender posts concurrently
	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		go func(i int, c *client) {
			defer wg.Done()
			for n := 0; n < perSender; n++ {
				c.send(protocol.Frame{Type: protocol.TypeSend, Ref: "s", GroupID: groupID, Content: fmt.Sprintf("%d-%d", i, n)})
			}
		}(i, c)
	}
	wg.Wait()

	// Then a listening member sees one gapless sequence
	for seq := uint64(1); seq <= senders*perSender; seq++ {
		frame := owner.next()
		req.Equal(protocol.TypeMessage, frame.Type)
		req.Equal(seq, frame.Message.Seq)
	}
}

func TestServer_DuplicateLoginRejected(t *testing.T) {
	req := require.New(t)
	srv := startServer(t, domain.RejectNew)
	first, _ := register(t, srv.addr, "alice")

	second := dial(t, srv.addr)
	reply := second.call(protocol.Frame{Type: protocol.TypeLogin, Ref: "l", Username: "alice", Password: "password123"})

	req.Equal(protocol.TypeError, reply.Type)
	req.Equal(codes.AlreadyExists.String(), reply.Code)
	second.assertClosed()
	req.Equal(protocol.TypePong, first.call(protocol.Frame{Type: protocol.TypePing, Ref: "p"}).Type)
}

func TestServer_DuplicateLoginEvicts(t *testing.T) {
	req := require.New(t)
	srv := startServer(t, domain.EvictOld)
	first, _ := register(t, srv.addr, "alice")

	second := dial(t, srv.addr)
	reply := second.call(protocol.Frame{Type: protocol.TypeLogin, Ref: "l", Username: "alice", Password: "password123"})

	req.Equal(protocol.TypeOK, reply.Type)
	first.assertClosed()
	req.Equal(protocol.TypePong, second.call(protocol.Frame{Type: protocol.TypePing, Ref: "p"}).Type)
	req.Equal(1, srv.server.Registry.Len())
}

func TestServer_Handshake(t *testing.T) {
	req := require.New(t)
	srv := startServer(t, domain.RejectNew)
	c := dial(t, srv.addr)

	// Requests before authentication are refused, pings are answered
	req.Equal(protocol.TypePong, c.call(protocol.Frame{Type: protocol.TypePing, Ref: "p"}).Type)
	req.Equal(codes.Unauthenticated.String(), c.call(protocol.Frame{Type: protocol.TypeGroups, Ref: "g"}).Code)

	// Failed credentials are counted and the connection dropped at the limit
	for i := 0; i < 3; i++ {
		reply := c.call(protocol.Frame{Type: protocol.TypeLogin, Ref: "l", Username: "ghost", Password: "password123"})
		req.Equal(codes.Unauthenticated.String(), reply.Code)
		if i == 2 {
			req.True(strings.Contains(reply.Error, "too many attempts"))
		}
	}
	c.assertClosed()
}

func TestServer_ResumeWithToken(t *testing.T) {
	req := require.New(t)
	srv := startServer(t, domain.EvictOld)
	first, registered := register(t, srv.addr, "alice")
	req.NotEmpty(registered.Token)

	// The token resumes the identity over TCP
	c := dial(t, srv.addr)
	reply := c.call(protocol.Frame{Type: protocol.TypeResume, Ref: "r", Token: registered.Token})
	req.Equal(protocol.TypeOK, reply.Type)
	req.Equal(registered.UserID, reply.UserID)
	first.assertClosed()

	// And as a bearer header on the WebSocket upgrade
	ws := httptest.NewServer(srv.server.Acceptor)
	defer ws.Close()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+registered.Token)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ws.URL, "http"), header)
	req.NoError(err)
	defer conn.Close()
	_, data, err := conn.ReadMessage()
	req.NoError(err)
	frame, err := protocol.Decode(data)
	req.NoError(err)
	req.Equal(protocol.TypeOK, frame.Type)
	req.Equal("alice", frame.Username)
}

func TestServer_Shutdown(t *testing.T) {
	req := require.New(t)
	srv := startServer(t, domain.RejectNew)
	c, _ := register(t, srv.addr, "alice")

	// When the server shuts down
	req.NoError(srv.server.Shutdown(context.Background()))

	// Then clients are disconnected, the store is closed and new work is refused
	c.assertClosed()
	req.False(srv.store.IsOpen())
	req.Zero(srv.server.Registry.Len())
	recorder := httptest.NewRecorder()
	srv.server.Acceptor.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/ws", nil))
	req.Equal(http.StatusServiceUnavailable, recorder.Code)
	_, err := net.DialTimeout("tcp", srv.addr, 200*time.Millisecond)
	req.Error(err)

	// A second call is a no-op
	req.NoError(srv.server.Shutdown(context.Background()))
}
