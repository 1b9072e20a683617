package runtime

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"groupchat/contract"
	"groupchat/domain"
	"groupchat/errors"
	"groupchat/protocol"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type SessionConfig struct {
	QueueSize       int
	MaxAuthAttempts int
	AuthTimeout     time.Duration
	DrainTimeout    time.Duration
	RateLimitBurst  int
	RateLimitRefill time.Duration
}

// Session is the live state of one client connection.
//
// Frames leave the session through a bounded queue drained by a single writer
// goroutine, so a slow peer never blocks whoever enqueues. The queue channel is
// never closed: closing is signalled on a separate channel, which keeps
// enqueueing safe from any goroutine at any time.
type Session struct {
	ID      uuid.UUID
	conn    contract.Conn
	cfg     SessionConfig
	log     *slog.Logger
	limiter *rate.Limiter

	mu       sync.Mutex
	state    domain.SessionState
	userID   domain.UserID
	username string
	onClose  []func(*Session)

	queue   chan []byte
	closing chan struct{}
	done    chan struct{}
}

// NewSession starts the writer goroutine right away. The session stays in
// Connecting until the first credential frame.
func NewSession(conn contract.Conn, cfg SessionConfig, log *slog.Logger) *Session {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	id := uuid.New()
	s := &Session{
		ID:      id,
		conn:    conn,
		cfg:     cfg,
		log:     log.With("session_id", id, "remote", conn.RemoteAddr()),
		state:   domain.Connecting,
		queue:   make(chan []byte, cfg.QueueSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	if cfg.RateLimitBurst > 0 && cfg.RateLimitRefill > 0 {
		every := cfg.RateLimitRefill / time.Duration(cfg.RateLimitBurst)
		s.limiter = rate.NewLimiter(rate.Every(every), cfg.RateLimitBurst)
	}
	go s.writeLoop()
	return s
}

func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) UserID() domain.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// OnClose registers a hook run by the writer goroutine once the session is Closed.
func (s *Session) OnClose(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = append(s.onClose, fn)
}

// Done is closed when the session reaches Closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// BeginAuth moves Connecting -> Authenticating. Further credential frames keep
// the session in Authenticating.
func (s *Session) BeginAuth() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.Authenticating {
		return nil
	}
	return s.transitionLocked(domain.Authenticating)
}

// Activate binds the authenticated user and moves Authenticating -> Active.
func (s *Session) Activate(identity domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(domain.Active); err != nil {
		return err
	}
	s.userID = identity.UserID
	s.username = identity.Username
	return nil
}

// Deliver enqueues a broadcast frame without blocking. It only succeeds on an
// Active session. A full queue means the peer cannot keep up: the session is
// moved to Closing and ErrQueueFull is returned.
func (s *Session) Deliver(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.Active {
		return fmt.Errorf("%w: state %s", errors.ErrSessionClosed, s.state)
	}
	select {
	case s.queue <- frame:
		return nil
	default:
		s.log.Warn("Outbound queue full, disconnecting", "capacity", cap(s.queue))
		s.beginCloseLocked()
		return errors.ErrQueueFull
	}
}

// Reply enqueues a response frame to the client itself. Unlike Deliver it is
// allowed before authentication completes.
func (s *Session) Reply(frame protocol.Frame) error {
	data, err := protocol.Encode(frame)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state >= domain.Closing {
		return errors.ErrSessionClosed
	}
	select {
	case s.queue <- data:
		return nil
	default:
		s.log.Warn("Outbound queue full on reply, disconnecting")
		s.beginCloseLocked()
		return errors.ErrQueueFull
	}
}

// Allow reports whether the inbound rate limit lets one more frame through.
func (s *Session) Allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

// ReadFrame blocks on the transport for the next frame. A malformed frame is
// reported as ErrInvalidFrame, anything else means the transport is gone.
func (s *Session) ReadFrame() (protocol.Frame, error) {
	data, err := s.conn.ReadFrame()
	if err != nil {
		return protocol.Frame{}, err
	}
	frame, err := protocol.Decode(data)
	if err != nil {
		return protocol.Frame{}, fmt.Errorf("%w: %v", errors.ErrInvalidFrame, err)
	}
	return frame, nil
}

// Close moves the session to Closing. The writer drains what is queued, for
// at most DrainTimeout, then closes the transport. Calling it again is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beginCloseLocked()
}

// ForceClose closes the transport immediately, unblocking a writer stuck on a
// dead peer and a reader waiting for input.
func (s *Session) ForceClose() {
	s.Close()
	_ = s.conn.Close()
}

func (s *Session) beginCloseLocked() {
	if s.state >= domain.Closing {
		return
	}
	// Every non terminal state may move to Closing.
	s.state = domain.Closing
	close(s.closing)
}

func (s *Session) transitionLocked(to domain.SessionState) error {
	if !domain.CanTransition(s.state, to) {
		return fmt.Errorf("%w: %s -> %s", errors.ErrIllegalState, s.state, to)
	}
	s.log.Debug("Session transition", "from", s.state, "to", to)
	s.state = to
	return nil
}

func (s *Session) writeLoop() {
	defer s.finish()
	for {
		select {
		case frame := <-s.queue:
			if err := s.conn.WriteFrame(frame); err != nil {
				s.log.Debug("Write failed, closing session", "error", err)
				s.Close()
				return
			}
		case <-s.closing:
			s.drain()
			return
		}
	}
}

// drain flushes what was queued before Closing, bounded by DrainTimeout.
func (s *Session) drain() {
	deadline := time.Now().Add(s.cfg.DrainTimeout)
	for time.Now().Before(deadline) {
		select {
		case frame := <-s.queue:
			if err := s.conn.WriteFrame(frame); err != nil {
				return
			}
		default:
			return
		}
	}
	s.log.Debug("Drain timeout elapsed", "dropped", len(s.queue))
}

func (s *Session) finish() {
	if err := s.conn.Close(); err != nil {
		s.log.Debug("Closing transport", "error", err)
	}
	s.mu.Lock()
	if err := s.transitionLocked(domain.Closed); err != nil {
		s.log.Error("Unexpected state at close", "error", err)
		s.state = domain.Closed
	}
	hooks := s.onClose
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(s)
	}
	close(s.done)
	s.log.Debug("Session closed")
}
