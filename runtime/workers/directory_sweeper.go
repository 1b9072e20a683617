package workers

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper is the part of the group directory the sweeper needs.
type Sweeper interface {
	Sweep() int
}

// DirectorySweeperWorker periodically evicts expired membership cache entries.
type DirectorySweeperWorker struct {
	directory Sweeper
	interval  time.Duration
	log       *slog.Logger
}

func NewDirectorySweeperWorker(directory Sweeper, interval time.Duration, log *slog.Logger) *DirectorySweeperWorker {
	return &DirectorySweeperWorker{directory: directory, interval: interval, log: log}
}

func (w *DirectorySweeperWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping directory sweeper")
			return nil
		case <-ticker.C:
			if removed := w.directory.Sweep(); removed > 0 {
				w.log.Debug("Expired membership entries evicted", "count", removed)
			}
		}
	}
}
