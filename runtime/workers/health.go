package workers

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"groupchat/domain"

	"github.com/shirou/gopsutil/process"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Counter is anything that can report how many entries it holds.
type Counter interface {
	Len() int
}

// Availability reports whether the store can still serve requests.
type Availability interface {
	IsOpen() bool
}

// HealthWorker samples the server process and the session engine on every
// tick, logs the sample and keeps the gRPC health status in line with the
// store availability.
type HealthWorker struct {
	log            *slog.Logger
	health         *health.Server
	store          Availability
	sessions       Counter
	groups         Counter
	metricInterval time.Duration

	mu      sync.Mutex
	last    domain.ServerStats
	sampled bool
}

func NewHealthWorker(
	log *slog.Logger,
	healthServer *health.Server,
	store Availability,
	sessions Counter,
	groups Counter,
	metricInterval time.Duration,
) *HealthWorker {
	return &HealthWorker{
		log:            log,
		health:         healthServer,
		store:          store,
		sessions:       sessions,
		groups:         groups,
		metricInterval: metricInterval,
	}
}

// Stats returns the last sample, if one was taken.
func (w *HealthWorker) Stats() (domain.ServerStats, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last, w.sampled
}

func (w *HealthWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	w.check()

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health sampling")
			return nil
		case <-ticker.C:
			w.check()
			stats := w.sample(proc)
			w.publish(stats)
			w.log.Debug("Server stats",
				"pid", stats.PID,
				"status", stats.Status,
				"cpu", stats.CPU,
				"rss", stats.RSS,
				"sessions", stats.ActiveSessions,
				"cached_groups", stats.CachedGroups)
		}
	}
}

func (w *HealthWorker) check() {
	status := healthpb.HealthCheckResponse_SERVING
	if !w.store.IsOpen() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	w.health.SetServingStatus("", status)
}

func (w *HealthWorker) sample(proc *process.Process) domain.ServerStats {
	stats := domain.ServerStats{
		PID:            proc.Pid,
		Status:         domain.UNKNOWN,
		ActiveSessions: w.sessions.Len(),
		CachedGroups:   w.groups.Len(),
	}
	if status, err := proc.Status(); err == nil {
		stats.Status = domain.ToStatus(status)
	} else {
		w.log.Debug("Error while finding process status", "err", err)
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPU = cpu
	} else {
		w.log.Debug("Error while finding process cpu usage", "err", err)
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		stats.RSS = mem.RSS
	} else {
		w.log.Debug("Error while finding process memory usage", "err", err)
	}
	return stats
}

func (w *HealthWorker) publish(stats domain.ServerStats) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = stats
	w.sampled = true
}
