package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	gateway "github.com/nimasrn/support-inbox/internal/gateways"
	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/prom"
)

const maxBackoff = time.Hour

type JobStore interface {
	GetByID(ctx context.Context, id int64) (*model.OutboxJob, error)
	Claim(ctx context.Context, id int64) (*model.OutboxJob, bool, error)
	MarkSent(ctx context.Context, id int64) (bool, error)
	MarkFailed(ctx context.Context, id int64, errMsg string, nextAttemptAt *time.Time) (bool, error)
}

type MessageStatusStore interface {
	UpdateStatus(ctx context.Context, id int64, status model.MessageStatus) error
}

type DeliveryReportStore interface {
	Create(ctx context.Context, dr *model.DeliveryReport) (*model.DeliveryReport, error)
}

type Relay interface {
	Send(ctx context.Context, req gateway.SendRequest) (*gateway.SendResponse, error)
}

type DeliveryConfig struct {
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// DeliveryProcessor drives one outbox job through claim, relay and outcome.
type DeliveryProcessor struct {
	jobs     JobStore
	messages MessageStatusStore
	reports  DeliveryReportStore
	relay    Relay
	ledger   *RelayLedger
	config   DeliveryConfig
	now      func() time.Time
}

func NewDeliveryProcessor(jobs JobStore, messages MessageStatusStore, reports DeliveryReportStore, relay Relay, ledger *RelayLedger, config DeliveryConfig) *DeliveryProcessor {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = 10 * time.Second
	}
	return &DeliveryProcessor{
		jobs:     jobs,
		messages: messages,
		reports:  reports,
		relay:    relay,
		ledger:   ledger,
		config:   config,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Process handles a job notification. It returns an error only when the store
// could not be reached; a job that is not queued anymore is skipped and a
// relay failure is recorded on the job, both with a nil error so the stream
// message is acked.
func (p *DeliveryProcessor) Process(ctx context.Context, jobID int64) error {
	job, claimed, err := p.jobs.Claim(ctx, jobID)
	if err != nil {
		return fmt.Errorf("claim job %d: %w", jobID, err)
	}
	if !claimed {
		logger.Debug("job not claimable, skipping", "job_id", jobID)
		return nil
	}

	log := logger.With("job_id", job.ID, "message_id", job.MessageID, "attempt", job.Attempts)

	if ref, ok := p.ledger.Lookup(ctx, job.ID); ok {
		log.Info("job already relayed, recording outcome only", "provider_ref", ref)
		return p.sent(ctx, job, &gateway.SendResponse{ProviderMessageID: ref, Provider: "ledger"}, 0)
	}

	start := time.Now()
	resp, err := p.relay.Send(ctx, gateway.SendRequest{
		JobID:          job.ID,
		MessageID:      job.MessageID,
		To:             job.ToPhone,
		Body:           job.Body,
		IdempotencyKey: fmt.Sprintf("outbox-%d", job.ID),
	})
	elapsed := time.Since(start)

	if err != nil {
		return p.failed(ctx, job, err, elapsed)
	}
	p.ledger.Record(ctx, job.ID, resp.ProviderMessageID)
	return p.sent(ctx, job, resp, elapsed)
}

func (p *DeliveryProcessor) sent(ctx context.Context, job *model.OutboxJob, resp *gateway.SendResponse, elapsed time.Duration) error {
	ok, err := p.jobs.MarkSent(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("mark job %d sent: %w", job.ID, err)
	}
	if !ok {
		logger.Warn("job left processing before it was marked sent", "job_id", job.ID)
		return nil
	}
	// the job can no longer be claimed, the store now answers for it
	p.ledger.Forget(ctx, job.ID)
	if err := p.messages.UpdateStatus(ctx, job.MessageID, model.MessageStatusSent); err != nil {
		logger.Error("message status update failed", "message_id", job.MessageID, "error", err)
	}

	var ref *string
	if resp.ProviderMessageID != "" {
		ref = &resp.ProviderMessageID
	}
	p.report(ctx, job, resp.Provider, model.JobStatusSent, ref, nil)
	prom.RecordDelivery(string(model.JobStatusSent), resp.Provider, elapsed)
	logger.Info("job sent", "job_id", job.ID, "message_id", job.MessageID, "provider", resp.Provider)
	return nil
}

func (p *DeliveryProcessor) failed(ctx context.Context, job *model.OutboxJob, relayErr error, elapsed time.Duration) error {
	msg := relayErr.Error()
	exhausted := job.Attempts >= p.config.MaxAttempts || errors.Is(relayErr, gateway.ErrRejected)

	var next *time.Time
	if !exhausted {
		at := p.now().Add(p.Backoff(job.Attempts))
		next = &at
	}

	ok, err := p.jobs.MarkFailed(ctx, job.ID, msg, next)
	if err != nil {
		return fmt.Errorf("mark job %d failed: %w", job.ID, err)
	}
	if !ok {
		return nil
	}

	if exhausted {
		if err := p.messages.UpdateStatus(ctx, job.MessageID, model.MessageStatusFailed); err != nil {
			logger.Error("message status update failed", "message_id", job.MessageID, "error", err)
		}
	}

	provider := "none"
	p.report(ctx, job, provider, model.JobStatusFailed, nil, &msg)
	prom.RecordDelivery(string(model.JobStatusFailed), provider, elapsed)
	logger.Warn("job relay failed", "job_id", job.ID, "attempt", job.Attempts, "exhausted", exhausted, "next_attempt_at", next, "error", relayErr)
	return nil
}

func (p *DeliveryProcessor) report(ctx context.Context, job *model.OutboxJob, provider string, status model.JobStatus, ref, errMsg *string) {
	if p.reports == nil {
		return
	}
	_, err := p.reports.Create(ctx, &model.DeliveryReport{
		JobID:       job.ID,
		MessageID:   job.MessageID,
		Attempt:     job.Attempts,
		Provider:    provider,
		Status:      status,
		ProviderRef: ref,
		Error:       errMsg,
		ReportedAt:  p.now(),
	})
	if err != nil {
		logger.Error("delivery report write failed", "job_id", job.ID, "error", err)
	}
}

// Backoff is the delay before attempt+1: base doubled per attempt, capped at
// one hour.
func (p *DeliveryProcessor) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.config.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
