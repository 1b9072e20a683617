package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"groupchat/contract"

	"google.golang.org/grpc/health"
)

// forceCloseGrace bounds the wait for session goroutines once their
// transports have been closed under them.
const forceCloseGrace = time.Second

// Server ties the session engine to the resources it must release on shutdown.
type Server struct {
	Acceptor   *Acceptor
	Registry   *Registry
	Directory  *Directory
	supervisor contract.ISupervisor
	store      contract.IStore
	health     *health.Server
	timeout    time.Duration
	log        *slog.Logger
	once       sync.Once
	err        error
}

func NewServer(
	acceptor *Acceptor,
	registry *Registry,
	directory *Directory,
	supervisor contract.ISupervisor,
	store contract.IStore,
	healthServer *health.Server,
	shutdownTimeout time.Duration,
	log *slog.Logger,
) *Server {
	return &Server{
		Acceptor:   acceptor,
		Registry:   registry,
		Directory:  directory,
		supervisor: supervisor,
		store:      store,
		health:     healthServer,
		timeout:    shutdownTimeout,
		log:        log,
	}
}

// Shutdown stops accepting, moves every session to Closing, waits up to the
// shutdown timeout for queues to drain, force-closes what is left, then stops
// the workers and closes the store. Only the first call does the work.
func (s *Server) Shutdown(ctx context.Context) error {
	s.once.Do(func() {
		s.err = s.shutdown(ctx)
	})
	return s.err
}

func (s *Server) shutdown(ctx context.Context) error {
	s.log.Info("Shutting down", "sessions", s.Registry.Len())
	if s.health != nil {
		s.health.Shutdown()
	}

	s.Acceptor.Stop()
	for _, session := range s.Acceptor.Sessions() {
		session.Close()
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.Acceptor.Wait(waitCtx); err != nil {
		remaining := s.Acceptor.Sessions()
		s.log.Warn("Shutdown timeout reached, forcing sessions closed", "remaining", len(remaining))
		for _, session := range remaining {
			session.ForceClose()
		}
		s.Acceptor.Cancel()
		graceCtx, cancelGrace := context.WithTimeout(context.Background(), forceCloseGrace)
		defer cancelGrace()
		if err := s.Acceptor.Wait(graceCtx); err != nil {
			s.log.Error("Sessions still running after force close", "remaining", len(s.Acceptor.Sessions()))
		}
	}
	s.Acceptor.Cancel()

	s.supervisor.Stop()
	if err := s.store.Close(); err != nil {
		s.log.Error("Closing store", "error", err)
		return err
	}
	s.log.Info("Shutdown complete")
	return nil
}
