package processor

import (
	"context"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/prom"
)

type JobMaintainer interface {
	GetByID(ctx context.Context, id int64) (*model.OutboxJob, error)
	RetryDue(ctx context.Context, now time.Time, maxAttempts, limit int) ([]int64, error)
	ResetStuck(ctx context.Context, olderThan time.Time, retryAt time.Time, limit int) ([]int64, error)
	StaleQueued(ctx context.Context, olderThan time.Time, limit int) ([]*model.OutboxJob, error)
	TouchQueued(ctx context.Context, ids []int64) error
}

type Notifier interface {
	Notify(ctx context.Context, n model.JobNotification) error
}

type BreachSweeper interface {
	CheckBreaches(ctx context.Context, now time.Time) (*model.SweepResult, error)
}

type MaintenanceConfig struct {
	MaxAttempts      int
	RetryDelay       time.Duration
	StuckTimeout     time.Duration
	StaleQueuedAfter time.Duration
	Batch            int
}

type MaintenanceResult struct {
	Retried    int
	Reset      int
	Exhausted  int
	Renotified int
	Breached   int
}

// Maintenance repairs what the stream cannot: failed jobs due for another
// attempt, jobs held by a crashed worker and queued jobs whose notification
// was lost. It also runs the SLA sweep so no external cron is needed.
type Maintenance struct {
	jobs     JobMaintainer
	messages MessageStatusStore
	notifier Notifier
	sla      BreachSweeper
	config   MaintenanceConfig
	now      func() time.Time
}

func NewMaintenance(jobs JobMaintainer, messages MessageStatusStore, notifier Notifier, sla BreachSweeper, config MaintenanceConfig) *Maintenance {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}
	if config.StuckTimeout <= 0 {
		config.StuckTimeout = 5 * time.Minute
	}
	if config.StaleQueuedAfter <= 0 {
		config.StaleQueuedAfter = time.Minute
	}
	if config.Batch <= 0 {
		config.Batch = 100
	}
	return &Maintenance{
		jobs:     jobs,
		messages: messages,
		notifier: notifier,
		sla:      sla,
		config:   config,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce performs one pass. Each step is independent; a failing step is
// logged and the others still run.
func (m *Maintenance) RunOnce(ctx context.Context) MaintenanceResult {
	var res MaintenanceResult
	now := m.now()

	stuck, err := m.jobs.ResetStuck(ctx, now.Add(-m.config.StuckTimeout), now.Add(m.config.RetryDelay), m.config.Batch)
	if err != nil {
		logger.Error("reset stuck jobs failed", "error", err)
	}
	res.Reset = len(stuck)
	for _, id := range stuck {
		job, err := m.jobs.GetByID(ctx, id)
		if err != nil {
			logger.Warn("reset job lookup failed", "job_id", id, "error", err)
			continue
		}
		if job.Attempts >= m.config.MaxAttempts {
			res.Exhausted++
			if err := m.messages.UpdateStatus(ctx, job.MessageID, model.MessageStatusFailed); err != nil {
				logger.Error("message status update failed", "message_id", job.MessageID, "error", err)
			}
		}
	}

	retried, err := m.jobs.RetryDue(ctx, now, m.config.MaxAttempts, m.config.Batch)
	if err != nil {
		logger.Error("retry due jobs failed", "error", err)
	}
	res.Retried = len(retried)
	notified := make(map[int64]bool, len(retried))
	for _, id := range retried {
		job, err := m.jobs.GetByID(ctx, id)
		if err != nil {
			continue
		}
		notified[id] = m.notify(ctx, job)
	}

	stale, err := m.jobs.StaleQueued(ctx, now.Add(-m.config.StaleQueuedAfter), m.config.Batch)
	if err != nil {
		logger.Error("stale queued lookup failed", "error", err)
	}
	ids := make([]int64, 0, len(stale))
	for _, job := range stale {
		if notified[job.ID] {
			continue
		}
		if m.notify(ctx, job) {
			ids = append(ids, job.ID)
		}
	}
	if err := m.jobs.TouchQueued(ctx, ids); err != nil {
		logger.Warn("touch queued jobs failed", "error", err)
	}
	res.Renotified = len(ids)

	if m.sla != nil {
		sweep, err := m.sla.CheckBreaches(ctx, now)
		if err != nil {
			logger.Error("sla sweep failed", "error", err)
		} else {
			res.Breached = sweep.Count
		}
	}

	prom.RecordMaintenanceMoves("reset", res.Reset)
	prom.RecordMaintenanceMoves("retried", res.Retried)
	prom.RecordMaintenanceMoves("renotified", res.Renotified)
	if res != (MaintenanceResult{}) {
		logger.Info("maintenance pass", "reset", res.Reset, "exhausted", res.Exhausted, "retried", res.Retried, "renotified", res.Renotified, "breached", res.Breached)
	}
	return res
}

func (m *Maintenance) notify(ctx context.Context, job *model.OutboxJob) bool {
	if m.notifier == nil {
		return false
	}
	if err := m.notifier.Notify(ctx, model.JobNotification{JobID: job.ID, MessageID: job.MessageID}); err != nil {
		logger.Warn("job re-notification failed", "job_id", job.ID, "error", err)
		return false
	}
	return true
}
