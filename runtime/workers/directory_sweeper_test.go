package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) Sweep() int {
	s.calls.Add(1)
	return 1
}

func TestDirectorySweeperWorker_Run(t *testing.T) {
	req := require.New(t)
	sweeper := &countingSweeper{}
	worker := NewDirectorySweeperWorker(sweeper, 5*time.Millisecond, logs.GetLoggerFromLevel(slog.LevelDebug))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	// Sweeps happen on every tick until the context ends
	req.Eventually(func() bool { return sweeper.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	req.NoError(<-done)
}
