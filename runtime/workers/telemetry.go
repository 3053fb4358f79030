package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"chat-relay/observability"
)

// TelemetryWorker periodically logs the pipeline counters together with the
// process's own resource usage. Metrics are logs here, not an export surface.
type TelemetryWorker struct {
	log            *slog.Logger
	monitor        *observability.Monitor
	metricInterval time.Duration
}

func NewTelemetryWorker(log *slog.Logger, monitor *observability.Monitor,
	metricInterval time.Duration) *TelemetryWorker {
	return &TelemetryWorker{
		log:            log,
		monitor:        monitor,
		metricInterval: metricInterval,
	}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		w.log.Warn("Process handle unavailable, resource usage disabled", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry")
			return nil
		case <-ticker.C:
			w.report(self)
		}
	}
}

func (w *TelemetryWorker) report(self *process.Process) {
	snapshot := w.monitor.Latest()
	attrs := []any{
		"messagesTotal", snapshot.MessagesTotal,
		"rateLimitHits", snapshot.RateLimitHits,
		"sessionAnomalies", snapshot.SessionAnomalies,
		"tasksDropped", snapshot.TasksDropped,
		"queueDepth", snapshot.QueueDepth,
		"errorsByType", snapshot.ErrorsByType,
	}

	if self != nil {
		if cpu, err := self.CPUPercent(); err == nil {
			attrs = append(attrs, "cpuPercent", cpu)
		}
		if ram, err := self.MemoryPercent(); err == nil {
			attrs = append(attrs, "ramPercent", ram)
		}
	}

	w.log.Info("Pipeline telemetry", attrs...)
}
