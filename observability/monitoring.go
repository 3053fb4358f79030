// Package observability aggregates pipeline counters. Async-stage failures
// are only observable here and in logs, never by clients.
package observability

import (
	"sync"
	"sync/atomic"
)

// Snapshot is a point-in-time view of the pipeline counters.
type Snapshot struct {
	MessagesTotal    uint64            `json:"messages_total"`
	RateLimitHits    uint64            `json:"rate_limit_hits"`
	SessionAnomalies uint64            `json:"session_anomalies"`
	TasksDropped     uint64            `json:"tasks_dropped"`
	QueueDepth       int               `json:"queue_depth"`
	ErrorsByType     map[string]uint64 `json:"errors_by_type"`
}

// Monitor is safe for concurrent use by every pipeline stage.
type Monitor struct {
	messagesTotal    atomic.Uint64
	rateLimitHits    atomic.Uint64
	sessionAnomalies atomic.Uint64
	tasksDropped     atomic.Uint64
	queueDepth       atomic.Int64

	mu           sync.Mutex
	errorsByType map[string]uint64
}

func NewMonitor() *Monitor {
	return &Monitor{errorsByType: make(map[string]uint64)}
}

// RecordError bumps the classification counter for one rejection or
// async-stage failure. Every rejection path records exactly one class.
func (m *Monitor) RecordError(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorsByType[errorType]++
}

func (m *Monitor) RecordMessage() {
	m.messagesTotal.Add(1)
}

func (m *Monitor) RecordRateLimitHit() {
	m.rateLimitHits.Add(1)
}

// RecordSessionAnomaly counts a failed or invalid session soft-check that
// was allowed through.
func (m *Monitor) RecordSessionAnomaly() {
	m.sessionAnomalies.Add(1)
}

func (m *Monitor) RecordTaskDropped() {
	m.tasksDropped.Add(1)
}

func (m *Monitor) SetQueueDepth(depth int) {
	m.queueDepth.Store(int64(depth))
}

func (m *Monitor) ErrorCount(errorType string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errorsByType[errorType]
}

func (m *Monitor) Latest() Snapshot {
	m.mu.Lock()
	errors := make(map[string]uint64, len(m.errorsByType))
	for k, v := range m.errorsByType {
		errors[k] = v
	}
	m.mu.Unlock()

	return Snapshot{
		MessagesTotal:    m.messagesTotal.Load(),
		RateLimitHits:    m.rateLimitHits.Load(),
		SessionAnomalies: m.sessionAnomalies.Load(),
		TasksDropped:     m.tasksDropped.Load(),
		QueueDepth:       int(m.queueDepth.Load()),
		ErrorsByType:     errors,
	}
}
