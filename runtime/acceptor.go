package runtime

import (
	"context"
	goerrors "errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"groupchat/auth"
	"groupchat/contract"
	"groupchat/domain"
	"groupchat/errors"
	"groupchat/protocol"
	"groupchat/transport"

	"github.com/gorilla/websocket"
)

const (
	minAcceptBackoff       = 5 * time.Millisecond
	maxAcceptBackoff       = time.Second
	defaultMaxAuthAttempts = 3
	presenceTimeout        = 2 * time.Second
)

type AcceptorConfig struct {
	Session        SessionConfig
	Transport      transport.Options
	AllowedOrigins []string
}

// Acceptor turns incoming connections into sessions: it runs the
// authentication handshake, admits the session into the registry, then hands
// it to the Handler.
type Acceptor struct {
	cfg      AcceptorConfig
	auth     contract.IAuthService
	registry *Registry
	handler  *Handler
	upgrader *websocket.Upgrader
	log      *slog.Logger

	// ctx is shared by every session. It is only cancelled at the very end
	// of a shutdown, so that draining sessions can still finish their calls.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	stopped   bool
	listeners map[net.Listener]struct{}
	sessions  map[*Session]struct{}
	wg        sync.WaitGroup

	presence keyedLocks[domain.UserID]
}

func NewAcceptor(
	authService contract.IAuthService,
	registry *Registry,
	handler *Handler,
	cfg AcceptorConfig,
	log *slog.Logger,
) *Acceptor {
	if cfg.Session.MaxAuthAttempts <= 0 {
		cfg.Session.MaxAuthAttempts = defaultMaxAuthAttempts
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Acceptor{
		cfg:       cfg,
		auth:      authService,
		registry:  registry,
		handler:   handler,
		upgrader:  transport.NewUpgrader(cfg.AllowedOrigins, log),
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[net.Listener]struct{}),
		sessions:  make(map[*Session]struct{}),
	}
}

// Serve accepts TCP connections until the listener is closed, the context is
// cancelled or Stop is called. Temporary accept errors are retried with an
// exponential backoff from 5ms up to 1s.
func (a *Acceptor) Serve(ctx context.Context, ln net.Listener) error {
	if !a.trackListener(ln) {
		_ = ln.Close()
		return errors.ErrServerClosed
	}
	defer a.untrackListener(ln)
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	a.log.Info("Accepting TCP connections", "address", ln.Addr().String())
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if a.isStopped() || ctx.Err() != nil || goerrors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if goerrors.As(err, &ne) && ne.Temporary() {
				backoff = nextBackoff(backoff)
				a.log.Warn("Accept error, retrying", "error", err, "backoff", backoff)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(backoff):
				}
				continue
			}
			return err
		}
		backoff = 0
		a.start(transport.NewTCPConn(conn, a.cfg.Transport), "")
	}
}

// ServeHTTP upgrades the request to a WebSocket. A "Bearer" Authorization
// header carrying a resume token is used as the first credential.
func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.isStopped() {
		http.Error(w, errors.ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	token, _ := auth.TokenFromHeader(r.Header)
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Debug("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	a.start(transport.NewWebSocketConn(ws, a.cfg.Transport), token)
}

// Stop closes every listener and refuses new connections and upgrades.
// Sessions already running are left alone.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	a.stopped = true
	listeners := make([]net.Listener, 0, len(a.listeners))
	for ln := range a.listeners {
		listeners = append(listeners, ln)
	}
	a.mu.Unlock()

	for _, ln := range listeners {
		if err := ln.Close(); err != nil && !goerrors.Is(err, net.ErrClosed) {
			a.log.Warn("Closing listener", "error", err)
		}
	}
}

// Sessions copies every live session, authenticated or not.
func (a *Acceptor) Sessions() []*Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	sessions := make([]*Session, 0, len(a.sessions))
	for s := range a.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Wait blocks until every session goroutine has returned or ctx is done.
func (a *Acceptor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel aborts the service calls still in flight.
func (a *Acceptor) Cancel() {
	a.cancel()
}

func (a *Acceptor) start(conn contract.Conn, token string) {
	session := NewSession(conn, a.cfg.Session, a.log)
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		session.Close()
		return
	}
	a.sessions[session] = struct{}{}
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		defer a.untrackSession(session)
		a.serve(session, token)
	}()
}

func (a *Acceptor) serve(s *Session, token string) {
	defer func() {
		s.Close()
		<-s.Done()
	}()

	identity, ref, err := a.authenticate(a.ctx, s, token)
	if err != nil {
		a.log.Debug("Handshake ended", "session_id", s.ID, "error", err)
		return
	}
	if err := a.admit(a.ctx, s, identity, ref); err != nil {
		return
	}
	a.handler.Serve(a.ctx, s)
}

// authenticate reads credential frames until one succeeds, the attempts are
// exhausted, AuthTimeout elapses or the peer leaves.
func (a *Acceptor) authenticate(ctx context.Context, s *Session, token string) (domain.Identity, string, error) {
	if timeout := a.cfg.Session.AuthTimeout; timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			if s.State() < domain.Active {
				a.log.Debug("Authentication timeout", "session_id", s.ID)
				s.Close()
			}
		})
		defer timer.Stop()
	}

	failures := 0
	fail := func(ref string, err error) error {
		failures++
		a.log.Debug("Authentication failed", "session_id", s.ID, "attempt", failures, "error", err)
		if failures >= a.cfg.Session.MaxAuthAttempts {
			_ = s.Reply(errorFrame(ref, errors.ErrTooManyAttempts))
			return errors.ErrTooManyAttempts
		}
		_ = s.Reply(errorFrame(ref, err))
		return nil
	}

	if token != "" {
		if err := s.BeginAuth(); err != nil {
			return domain.Identity{}, "", err
		}
		identity, err := a.auth.Resume(ctx, token)
		if err == nil {
			return identity, "", nil
		}
		if err := fail("", err); err != nil {
			return domain.Identity{}, "", err
		}
	}

	for {
		frame, err := s.ReadFrame()
		if goerrors.Is(err, errors.ErrInvalidFrame) {
			_ = s.Reply(errorFrame("", err))
			continue
		}
		if err != nil {
			return domain.Identity{}, "", err
		}

		var identity domain.Identity
		var authErr error
		switch frame.Type {
		case protocol.TypePing:
			_ = s.Reply(protocol.Frame{Type: protocol.TypePong, Ref: frame.Ref})
			continue
		case protocol.TypeLogin, protocol.TypeRegister, protocol.TypeResume:
			if err := s.BeginAuth(); err != nil {
				return domain.Identity{}, "", err
			}
			identity, authErr = a.credential(ctx, frame)
		default:
			_ = s.Reply(errorFrame(frame.Ref, errors.ErrNotAuthenticated))
			continue
		}

		if authErr == nil {
			return identity, frame.Ref, nil
		}
		if err := fail(frame.Ref, authErr); err != nil {
			return domain.Identity{}, "", err
		}
	}
}

func (a *Acceptor) credential(ctx context.Context, frame protocol.Frame) (domain.Identity, error) {
	switch frame.Type {
	case protocol.TypeRegister:
		return a.auth.Register(ctx, frame.Username, frame.Password)
	case protocol.TypeResume:
		return a.auth.Resume(ctx, frame.Token)
	default:
		return a.auth.Login(ctx, frame.Username, frame.Password)
	}
}

// admit activates the session and registers it. Under the reject policy a
// second login fails with ErrDuplicateSession and the first session is left
// untouched; under the evict policy the previous session is closed once the
// registry lock has been released.
func (a *Acceptor) admit(ctx context.Context, s *Session, identity domain.Identity, ref string) error {
	if err := s.Activate(identity); err != nil {
		return err
	}
	// Compare-and-delete: a session that never made it into the registry, or
	// was evicted from it, leaves the current entry alone.
	s.OnClose(func(closed *Session) {
		if a.registry.Remove(closed) {
			a.syncPresence(closed.UserID())
		}
	})

	reply := protocol.OK(ref)
	reply.UserID = uint64(identity.UserID)
	reply.Username = identity.Username
	reply.Token = identity.Token

	// The acknowledgement is queued before any broadcast can reach the session.
	var ackErr error
	old, err := a.registry.RegisterWith(s, func() {
		ackErr = s.Reply(reply)
	})
	if err != nil {
		a.log.Info("Duplicate session rejected", "user_id", identity.UserID, "session_id", s.ID)
		_ = s.Reply(errorFrame(ref, err))
		return err
	}
	if s.State() >= domain.Closing {
		// Closed between activation and registration: its hook already ran.
		a.registry.Remove(s)
		return errors.ErrSessionClosed
	}
	if old != nil {
		a.log.Info("Previous session evicted", "user_id", identity.UserID, "evicted_session_id", old.ID)
		old.Close()
	}
	a.syncPresence(identity.UserID)
	a.log.Info("Session active", "user_id", identity.UserID, "session_id", s.ID)
	return ackErr
}

// syncPresence stores whether the user currently has a registered session.
// Writes for one user are serialised and each one reads the registry under the
// user's lock, so the last write always matches the registry.
func (a *Acceptor) syncPresence(userID domain.UserID) {
	unlock := a.presence.lock(userID)
	defer unlock()
	_, online := a.registry.Lookup(userID)

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := a.auth.MarkActive(ctx, userID, online); err != nil {
		a.log.Warn("Updating presence", "user_id", userID, "active", online, "error", err)
	}
}

func (a *Acceptor) trackListener(ln net.Listener) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return false
	}
	a.listeners[ln] = struct{}{}
	return true
}

func (a *Acceptor) untrackListener(ln net.Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.listeners, ln)
}

func (a *Acceptor) untrackSession(s *Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, s)
}

func (a *Acceptor) isStopped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return minAcceptBackoff
	}
	current *= 2
	if current > maxAcceptBackoff {
		return maxAcceptBackoff
	}
	return current
}
