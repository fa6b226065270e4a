package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HealthMonitoringWorker pings the message store and samples the relay process
// on every tick, then records the result in the Monitor read by /healthz.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	store          contract.MessageStore
	coordinator    contract.ICoordinator
	monitor        *observability.Monitor
	metricInterval time.Duration
	pingTimeout    time.Duration
	reachable      bool
}

func NewHealthMonitoringWorker(
	log *slog.Logger,
	store contract.MessageStore,
	coordinator contract.ICoordinator,
	monitor *observability.Monitor,
	metricInterval time.Duration,
	pingTimeout time.Duration,
) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:            log,
		store:          store,
		coordinator:    coordinator,
		monitor:        monitor,
		metricInterval: metricInterval,
		pingTimeout:    pingTimeout,
		reachable:      true,
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	w.Check(ctx)
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check runs one probe and records it.
func (w *HealthMonitoringWorker) Check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, w.pingTimeout)
	err := w.store.Ping(pingCtx)
	cancel()

	switch {
	case err != nil && w.reachable:
		w.log.Error("Message store unreachable", "mode", w.store.Mode(), "error", err)
	case err == nil && !w.reachable:
		w.log.Info("Message store reachable again", "mode", w.store.Mode())
	}
	w.reachable = err == nil

	w.monitor.RecordCheck(err, w.coordinator.Connections(), len(w.coordinator.Presence()), w.sampleProcess())
}

func (w *HealthMonitoringWorker) sampleProcess() *domain.ProcessStats {
	pid := domain.PID(os.Getpid())
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		w.log.Debug("Error while retrieving process", "pid", pid, "err", err)
		return nil
	}
	status, err := p.Status()
	if err != nil {
		w.log.Debug("Error while finding process status", "err", err)
		return nil
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		w.log.Debug("Error while finding process cpu usage", "err", err)
		return nil
	}
	memory, err := p.MemoryInfo()
	if err != nil {
		w.log.Debug("Error while finding process memory usage", "err", err)
		return nil
	}
	return &domain.ProcessStats{
		PID:        pid,
		Status:     domain.ToStatus(status),
		CPUPercent: cpu,
		RSSBytes:   memory.RSS,
		SampledAt:  time.Now().UTC(),
	}
}
