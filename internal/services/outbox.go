package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/internal/repository"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/prom"
)

type SendRequest struct {
	ThreadID int64
	Body     string
	// IdempotencyKey is optional; one is generated when empty.
	IdempotencyKey string
	Automated      bool
}

type SendResult struct {
	ThreadID  int64 `json:"thread_id"`
	MessageID int64 `json:"message_id"`
	JobID     int64 `json:"job_id"`
	Duplicate bool  `json:"duplicate"`
}

type OutboundStore interface {
	CreateOutbound(ctx context.Context, out model.OutboundMessage) (*model.Message, error)
	GetByID(ctx context.Context, id int64) (*model.Message, error)
}

type JobStore interface {
	Create(ctx context.Context, messageID int64, toPhone, body string) (*model.OutboxJob, error)
	GetByMessageID(ctx context.Context, messageID int64) (*model.OutboxJob, error)
}

// JobNotifier wakes the delivery worker for a queued job.
type JobNotifier interface {
	Notify(ctx context.Context, n model.JobNotification) error
}

// OutboxPublisher creates the outbound message and its single delivery job.
// Replays with the same idempotency key return the first result.
type OutboxPublisher struct {
	threads  ThreadReader
	contacts ContactStore
	messages OutboundStore
	jobs     JobStore
	guard    *IdempotencyGuard
	sla      *SLATracker
	notifier JobNotifier
	now      func() time.Time
}

// NewOutboxPublisher builds the publisher. notifier may be nil; the worker then
// picks jobs up on its maintenance pass.
func NewOutboxPublisher(threads ThreadReader, contacts ContactStore, messages OutboundStore, jobs JobStore, guard *IdempotencyGuard, sla *SLATracker, notifier JobNotifier) *OutboxPublisher {
	return &OutboxPublisher{
		threads:  threads,
		contacts: contacts,
		messages: messages,
		jobs:     jobs,
		guard:    guard,
		sla:      sla,
		notifier: notifier,
		now:      utcNow,
	}
}

func (p *OutboxPublisher) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	res, err := p.send(ctx, req)
	switch {
	case err != nil:
		prom.RecordOutboxSend("error")
	case res.Duplicate:
		prom.RecordOutboxSend("duplicate")
	default:
		prom.RecordOutboxSend("queued")
	}
	return res, err
}

func (p *OutboxPublisher) send(ctx context.Context, req SendRequest) (*SendResult, error) {
	body := strings.TrimSpace(req.Body)
	if req.ThreadID <= 0 {
		return nil, validationError("thread_id is required")
	}
	if body == "" {
		return nil, validationError("body is required")
	}

	thread, err := p.threads.GetByID(ctx, req.ThreadID)
	if err != nil {
		return nil, storeError(err)
	}
	contact, err := p.contacts.GetByID(ctx, thread.ContactID)
	if err != nil {
		return nil, storeError(err)
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}

	claim, err := p.guard.CheckOrClaim(ctx, ScopeOutbound, key)
	if err != nil {
		return nil, err
	}
	if !claim.New {
		return p.duplicate(ctx, claim.Existing, contact.Phone, key)
	}

	msg, err := p.messages.CreateOutbound(ctx, model.OutboundMessage{
		ThreadID:       thread.ID,
		Body:           body,
		IdempotencyKey: key,
		Automated:      req.Automated,
		CreatedAt:      p.now(),
	})
	if errors.Is(err, repository.ErrDuplicate) {
		ref, rerr := p.guard.Resolve(ctx, ScopeOutbound, key)
		if rerr != nil {
			return nil, rerr
		}
		return p.duplicate(ctx, ref, contact.Phone, key)
	}
	if err != nil {
		return nil, storeError(err)
	}

	job, err := p.ensureJob(ctx, msg.ID, contact.Phone, msg.Body)
	if err != nil {
		return nil, err
	}

	ref := &model.MessageRef{ThreadID: thread.ID, MessageID: msg.ID, JobID: job.ID}
	p.guard.Remember(ctx, ScopeOutbound, key, ref)

	if err := p.sla.OnOutbound(ctx, thread.ID, msg.CreatedAt, msg.Body); err != nil {
		logger.Error("sla outbound transition failed", "thread_id", thread.ID, "message_id", msg.ID, "error", err)
	}
	p.notify(ctx, job)

	return &SendResult{ThreadID: thread.ID, MessageID: msg.ID, JobID: job.ID}, nil
}

// duplicate answers a replay. A job missing after an earlier partial failure
// is created now; the unique message_id keeps it to one job.
func (p *OutboxPublisher) duplicate(ctx context.Context, ref *model.MessageRef, phone, key string) (*SendResult, error) {
	msg, err := p.messages.GetByID(ctx, ref.MessageID)
	if err != nil {
		return nil, storeError(err)
	}
	if ref.JobID == 0 {
		job, err := p.ensureJob(ctx, msg.ID, phone, msg.Body)
		if err != nil {
			return nil, err
		}
		ref.JobID = job.ID
		p.guard.Remember(ctx, ScopeOutbound, key, ref)
		p.notify(ctx, job)
	}
	// the transition is idempotent, re-running it covers a crash between the
	// message write and the first OnOutbound
	if err := p.sla.OnOutbound(ctx, msg.ThreadID, msg.CreatedAt, msg.Body); err != nil {
		logger.Error("sla outbound transition failed", "thread_id", msg.ThreadID, "message_id", msg.ID, "error", err)
	}
	return &SendResult{ThreadID: ref.ThreadID, MessageID: ref.MessageID, JobID: ref.JobID, Duplicate: true}, nil
}

func (p *OutboxPublisher) ensureJob(ctx context.Context, messageID int64, phone, body string) (*model.OutboxJob, error) {
	job, err := p.jobs.Create(ctx, messageID, phone, body)
	if errors.Is(err, repository.ErrDuplicate) {
		job, err = p.jobs.GetByMessageID(ctx, messageID)
	}
	if err != nil {
		return nil, storeError(err)
	}
	return job, nil
}

func (p *OutboxPublisher) notify(ctx context.Context, job *model.OutboxJob) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, model.JobNotification{JobID: job.ID, MessageID: job.MessageID}); err != nil {
		logger.Warn("job notification failed, worker will pick it up on maintenance", "job_id", job.ID, "error", err)
	}
}
