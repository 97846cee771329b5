package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/internal/repository"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/prom"
)

type InboundPayload struct {
	FromPhone         string
	Body              string
	ProviderMessageID string
	// Timestamp is the provider's receive time; zero means now.
	Timestamp time.Time
}

type IngestResult struct {
	ThreadID  int64 `json:"thread_id"`
	MessageID int64 `json:"message_id"`
	Duplicate bool  `json:"duplicate"`
}

type InboundStore interface {
	CreateInbound(ctx context.Context, in model.InboundMessage) (*model.Message, error)
	GetByID(ctx context.Context, id int64) (*model.Message, error)
}

type HeartbeatStore interface {
	Touch(ctx context.Context, name string, at time.Time) error
}

// RuleRunner applies automation rules to an inbound message.
type RuleRunner interface {
	Run(ctx context.Context, ev model.RuleEvent) []model.ActionResult
}

// WebhookIngestor stores an inbound message exactly once and runs the
// follow-up steps. Once the message row exists the webhook succeeds; SLA and
// rule side effects are best-effort.
type WebhookIngestor struct {
	guard      *IdempotencyGuard
	resolver   *ContactThreadResolver
	messages   InboundStore
	sla        *SLATracker
	rules      RuleRunner
	heartbeats HeartbeatStore
	now        func() time.Time
}

func NewWebhookIngestor(guard *IdempotencyGuard, resolver *ContactThreadResolver, messages InboundStore, sla *SLATracker, rules RuleRunner, heartbeats HeartbeatStore) *WebhookIngestor {
	return &WebhookIngestor{
		guard:      guard,
		resolver:   resolver,
		messages:   messages,
		sla:        sla,
		rules:      rules,
		heartbeats: heartbeats,
		now:        utcNow,
	}
}

func (w *WebhookIngestor) Ingest(ctx context.Context, p InboundPayload) (*IngestResult, error) {
	res, err := w.ingest(ctx, p)
	switch {
	case err != nil && errors.Is(err, ErrValidation):
		prom.RecordWebhook("invalid")
	case err != nil:
		prom.RecordWebhook("error")
	case res.Duplicate:
		prom.RecordWebhook("duplicate")
	default:
		prom.RecordWebhook("accepted")
	}
	return res, err
}

func (w *WebhookIngestor) ingest(ctx context.Context, p InboundPayload) (*IngestResult, error) {
	if strings.TrimSpace(p.Body) == "" {
		return nil, validationError("body is required")
	}
	phone, err := NormalizePhone(p.FromPhone)
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(p.ProviderMessageID)
	at := p.Timestamp.UTC()
	if p.Timestamp.IsZero() {
		at = w.now()
	}

	claim, err := w.guard.CheckOrClaim(ctx, ScopeInbound, key)
	if err != nil {
		return nil, err
	}
	if !claim.New {
		w.repair(ctx, claim.Existing)
		return duplicateIngest(claim.Existing), nil
	}

	resolved, err := w.resolver.Resolve(ctx, phone, at, p.Body)
	if err != nil {
		return nil, err
	}

	msg, err := w.messages.CreateInbound(ctx, model.InboundMessage{
		ThreadID:          resolved.ThreadID,
		Body:              p.Body,
		ProviderMessageID: key,
		ReceivedAt:        at,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		ref, rerr := w.guard.Resolve(ctx, ScopeInbound, key)
		if rerr != nil {
			return nil, rerr
		}
		w.repair(ctx, ref)
		return duplicateIngest(ref), nil
	}
	if err != nil {
		return nil, storeError(err)
	}

	w.guard.Remember(ctx, ScopeInbound, key, &model.MessageRef{ThreadID: msg.ThreadID, MessageID: msg.ID})
	w.afterStore(ctx, resolved, msg)

	return &IngestResult{ThreadID: msg.ThreadID, MessageID: msg.ID}, nil
}

// afterStore runs the side effects of an accepted message. None of them can
// fail the webhook.
func (w *WebhookIngestor) afterStore(ctx context.Context, resolved *Resolution, msg *model.Message) {
	log := logger.With("thread_id", msg.ThreadID, "message_id", msg.ID)

	seen := w.now()
	prom.MarkWebhookReceived(seen)
	if w.heartbeats != nil {
		if err := w.heartbeats.Touch(ctx, model.HeartbeatWebhookInbound, seen); err != nil {
			log.Warn("webhook heartbeat update failed", "error", err)
		}
	}

	if err := w.sla.OnInbound(ctx, msg.ThreadID, msg.CreatedAt, msg.Body); err != nil {
		log.Error("sla inbound transition failed", "error", err)
	}

	if w.rules == nil {
		return
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("rule processing panicked", "panic", fmt.Sprint(r))
			}
		}()
		results := w.rules.Run(ctx, model.RuleEvent{
			Body:      msg.Body,
			Phone:     resolved.Phone,
			ThreadID:  msg.ThreadID,
			MessageID: msg.ID,
		})
		if len(results) > 0 {
			log.Info("rules applied", "actions", len(results), "new_thread", resolved.IsNew)
		}
	}()
}

// repair re-applies the SLA transition a crash may have skipped for an
// already stored message. Failures are logged, the replay still succeeds.
func (w *WebhookIngestor) repair(ctx context.Context, ref *model.MessageRef) {
	if ref == nil || ref.MessageID == 0 {
		return
	}
	msg, err := w.messages.GetByID(ctx, ref.MessageID)
	if err != nil {
		logger.Warn("replayed message lookup failed", "message_id", ref.MessageID, "error", err)
		return
	}
	if err := w.sla.RepairInbound(ctx, msg.ThreadID, msg.CreatedAt); err != nil {
		logger.Error("sla inbound repair failed", "thread_id", msg.ThreadID, "message_id", msg.ID, "error", err)
	}
}

func duplicateIngest(ref *model.MessageRef) *IngestResult {
	return &IngestResult{ThreadID: ref.ThreadID, MessageID: ref.MessageID, Duplicate: true}
}
