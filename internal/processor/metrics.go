package processor

import (
	"sync/atomic"
	"time"
)

// WorkerStats counts what the worker pool did with the notifications it was
// handed since the service started.
type WorkerStats struct {
	handled     atomic.Int64
	storeErrors atomic.Int64
	timedOut    atomic.Int64
	busyNs      atomic.Int64
	started     time.Time
}

type WorkerSnapshot struct {
	Handled       int64
	StoreErrors   int64
	TimedOut      int64
	RatePerSecond float64
	AvgDuration   time.Duration
	Uptime        time.Duration
}

func NewWorkerStats() *WorkerStats {
	return &WorkerStats{started: time.Now()}
}

// Handled records a job that reached a decision, whatever the relay outcome.
func (m *WorkerStats) Handled(d time.Duration) {
	m.handled.Add(1)
	m.busyNs.Add(int64(d))
}

// StoreError records a job left for redelivery because the store failed.
func (m *WorkerStats) StoreError() {
	m.storeErrors.Add(1)
}

func (m *WorkerStats) TimedOut() {
	m.timedOut.Add(1)
}

func (m *WorkerStats) Snapshot() WorkerSnapshot {
	s := WorkerSnapshot{
		Handled:     m.handled.Load(),
		StoreErrors: m.storeErrors.Load(),
		TimedOut:    m.timedOut.Load(),
		Uptime:      time.Since(m.started),
	}
	if secs := s.Uptime.Seconds(); secs > 0 {
		s.RatePerSecond = float64(s.Handled) / secs
	}
	if s.Handled > 0 {
		s.AvgDuration = time.Duration(m.busyNs.Load() / s.Handled)
	}
	return s
}
