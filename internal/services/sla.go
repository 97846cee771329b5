package services

import (
	"context"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/prom"
)

type SLAStore interface {
	ApplyInbound(ctx context.Context, id int64, at time.Time, preview string, firstResponseDue time.Time) error
	ApplyOutbound(ctx context.Context, id int64, at time.Time, preview string, followUpDue time.Time) (bool, error)
	EnsureFirstResponse(ctx context.Context, id int64, due time.Time) (bool, error)
	MarkRead(ctx context.Context, id int64, at time.Time) (*model.Thread, error)
	MarkSLABreaches(ctx context.Context, now time.Time, limit int) ([]int64, error)
}

type SLAConfig struct {
	FirstResponseWindow time.Duration
	FollowUpWindow      time.Duration
	// SweepBatch caps the threads stamped by one sweep, 0 means no cap.
	SweepBatch int
}

// SLATracker keeps the per-thread deadlines. A thread carries at most one of
// first_response_due_at and follow_up_due_at; sla_breached_at is never
// cleared.
type SLATracker struct {
	store SLAStore
	cfg   SLAConfig
	now   func() time.Time
}

func NewSLATracker(store SLAStore, cfg SLAConfig) *SLATracker {
	if cfg.FirstResponseWindow <= 0 {
		cfg.FirstResponseWindow = time.Hour
	}
	if cfg.FollowUpWindow <= 0 {
		cfg.FollowUpWindow = 24 * time.Hour
	}
	return &SLATracker{
		store: store,
		cfg:   cfg,
		now:   utcNow,
	}
}

// OnInbound counts the message as unread and starts the first-response
// deadline when the thread has none.
func (s *SLATracker) OnInbound(ctx context.Context, threadID int64, at time.Time, body string) error {
	due := s.now().Add(s.cfg.FirstResponseWindow)
	return storeError(s.store.ApplyInbound(ctx, threadID, at, model.Preview(body), due))
}

// RepairInbound restores the first-response deadline for an inbound message
// that was stored but whose OnInbound transition never ran. The deadline
// counts from the message time. The unread counter is not touched, a replay
// racing the original request must not count the message twice.
func (s *SLATracker) RepairInbound(ctx context.Context, threadID int64, at time.Time) error {
	due := at.Add(s.cfg.FirstResponseWindow)
	repaired, err := s.store.EnsureFirstResponse(ctx, threadID, due)
	if err != nil {
		return storeError(err)
	}
	if repaired {
		logger.Warn("first-response deadline restored on replay", "thread_id", threadID, "due", due)
	}
	return nil
}

// OnOutbound retires the first-response deadline in favour of the follow-up
// deadline on the first outbound message of the thread.
func (s *SLATracker) OnOutbound(ctx context.Context, threadID int64, at time.Time, body string) error {
	due := s.now().Add(s.cfg.FollowUpWindow)
	first, err := s.store.ApplyOutbound(ctx, threadID, at, model.Preview(body), due)
	if err != nil {
		return storeError(err)
	}
	if first {
		logger.Debug("follow-up deadline started", "thread_id", threadID, "due", due)
	}
	return nil
}

func (s *SLATracker) MarkRead(ctx context.Context, threadID int64) (*model.Thread, error) {
	t, err := s.store.MarkRead(ctx, threadID, s.now())
	if err != nil {
		return nil, storeError(err)
	}
	return t, nil
}

// CheckBreaches stamps every overdue thread that is not breached yet. Running
// it again, or concurrently, never reports a thread twice.
func (s *SLATracker) CheckBreaches(ctx context.Context, now time.Time) (*model.SweepResult, error) {
	if now.IsZero() {
		now = s.now()
	}
	ids, err := s.store.MarkSLABreaches(ctx, now, s.cfg.SweepBatch)
	if err != nil {
		return nil, storeError(err)
	}
	prom.AddSLABreaches(len(ids))
	if len(ids) > 0 {
		logger.Info("sla breaches marked", "count", len(ids), "thread_ids", ids)
	}
	return &model.SweepResult{Count: len(ids), ThreadIDs: ids}, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
