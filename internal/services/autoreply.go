package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/prom"
	"github.com/nimasrn/support-inbox/pkg/redis"
)

// DefaultAutoReplyCooldown applies when neither the rule nor the config sets one.
const DefaultAutoReplyCooldown = 300 * time.Second

type ThreadReader interface {
	GetByID(ctx context.Context, id int64) (*model.Thread, error)
}

type OutboundHistory interface {
	LastOutboundAt(ctx context.Context, threadID int64) (*time.Time, error)
}

type TemplateStore interface {
	Get(ctx context.Context, id int64) (*model.ReplyTemplate, error)
}

// Sender queues an outbound message.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
}

// AutoReplyGuard decides whether a thread may receive an automated reply now.
// An auto-reply is itself an outbound message, so it restarts the cooldown and
// bounds automated replies to one per window per thread.
type AutoReplyGuard struct {
	threads  ThreadReader
	messages OutboundHistory
	locks    redis.RedisAdapter
	now      func() time.Time
}

// NewAutoReplyGuard builds the guard. locks may be nil; the store check alone
// is then used.
func NewAutoReplyGuard(threads ThreadReader, messages OutboundHistory, locks redis.RedisAdapter) *AutoReplyGuard {
	return &AutoReplyGuard{
		threads:  threads,
		messages: messages,
		locks:    locks,
		now:      utcNow,
	}
}

// CanAutoReply reports whether an auto-reply is allowed and, when not, why.
// An allowed answer also claims the cooldown window so a concurrent inbound
// message on the same thread is refused.
func (g *AutoReplyGuard) CanAutoReply(ctx context.Context, threadID int64, cooldown time.Duration) (bool, string) {
	if cooldown < 0 {
		cooldown = 0
	}

	thread, err := g.threads.GetByID(ctx, threadID)
	if err != nil {
		return false, "thread lookup failed: " + storeError(err).Error()
	}
	if thread.Status == model.ThreadStatusClosed {
		return false, "thread is closed"
	}

	last, err := g.messages.LastOutboundAt(ctx, threadID)
	if err != nil {
		return false, "outbound lookup failed: " + storeError(err).Error()
	}
	if last != nil {
		if elapsed := g.now().Sub(*last); elapsed < cooldown {
			return false, fmt.Sprintf("cooldown active, last outbound %s ago", elapsed.Truncate(time.Second))
		}
	}

	if g.locks == nil || cooldown == 0 {
		return true, ""
	}
	ok, err := g.locks.SetNX(ctx, lockKey(threadID), []byte(strconv.FormatInt(g.now().Unix(), 10)), cooldown)
	if err != nil {
		logger.Warn("auto-reply lock unavailable, relying on store check", "thread_id", threadID, "error", err)
		return true, ""
	}
	if !ok {
		return false, "cooldown window already claimed"
	}
	return true, ""
}

// Release frees a window claimed by CanAutoReply when the reply was not sent.
func (g *AutoReplyGuard) Release(ctx context.Context, threadID int64) {
	if g.locks == nil {
		return
	}
	if err := g.locks.Del(ctx, lockKey(threadID)); err != nil {
		logger.Warn("auto-reply lock release failed", "thread_id", threadID, "error", err)
	}
}

func lockKey(threadID int64) string {
	return "autoreply:" + strconv.FormatInt(threadID, 10)
}

// AutoReplyService renders a rule's template and queues it through the outbox
// when the guard allows it.
type AutoReplyService struct {
	guard           *AutoReplyGuard
	templates       TemplateStore
	contacts        ContactStore
	sender          Sender
	defaultCooldown time.Duration
}

func NewAutoReplyService(guard *AutoReplyGuard, templates TemplateStore, contacts ContactStore, sender Sender, defaultCooldown time.Duration) *AutoReplyService {
	if defaultCooldown <= 0 {
		defaultCooldown = DefaultAutoReplyCooldown
	}
	return &AutoReplyService{
		guard:           guard,
		templates:       templates,
		contacts:        contacts,
		sender:          sender,
		defaultCooldown: defaultCooldown,
	}
}

func (s *AutoReplyService) AutoReply(ctx context.Context, rule *model.AutomationRule, ev model.RuleEvent) model.ActionResult {
	res := s.autoReply(ctx, rule, ev)
	prom.RecordAutoReply(string(res.Outcome))
	return res
}

func (s *AutoReplyService) autoReply(ctx context.Context, rule *model.AutomationRule, ev model.RuleEvent) model.ActionResult {
	const kind = model.ActionAutoReply
	if rule.Actions.AutoReplyTemplateID == nil {
		return model.Skipped(rule.ID, kind, "no template")
	}

	cooldown := s.defaultCooldown
	if secs := rule.Actions.AutoReplyCooldownSeconds; secs != nil && *secs >= 0 {
		cooldown = time.Duration(*secs) * time.Second
	}

	tpl, err := s.templates.Get(ctx, *rule.Actions.AutoReplyTemplateID)
	if err != nil {
		return model.Failed(rule.ID, kind, storeError(err))
	}

	vars := map[string]string{
		"phone":     ev.Phone,
		"thread_id": strconv.FormatInt(ev.ThreadID, 10),
	}
	if ev.Phone != "" {
		if c, err := s.contacts.GetByPhone(ctx, ev.Phone); err == nil && c.Name != nil {
			vars["name"] = *c.Name
		}
	}
	body := RenderTemplate(tpl.Body, vars)
	if body == "" {
		return model.Skipped(rule.ID, kind, "template rendered empty")
	}

	allowed, reason := s.guard.CanAutoReply(ctx, ev.ThreadID, cooldown)
	if !allowed {
		res := model.Skipped(rule.ID, kind, reason)
		res.Err = fmt.Errorf("%w: %s", ErrPolicy, reason)
		return res
	}

	out, err := s.sender.Send(ctx, SendRequest{
		ThreadID:       ev.ThreadID,
		Body:           body,
		IdempotencyKey: fmt.Sprintf("auto:%d:%d", ev.MessageID, rule.ID),
		Automated:      true,
	})
	if err != nil {
		s.guard.Release(ctx, ev.ThreadID)
		return model.Failed(rule.ID, kind, err)
	}
	if out.Duplicate {
		return model.Skipped(rule.ID, kind, "auto-reply already queued")
	}
	return model.Applied(rule.ID, kind)
}
