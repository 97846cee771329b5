package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/internal/repository"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/redis"
)

type Scope string

const (
	// ScopeInbound keys on the provider message id.
	ScopeInbound Scope = "in"
	// ScopeOutbound keys on the client idempotency key.
	ScopeOutbound Scope = "out"
)

// Claim is the outcome of CheckOrClaim: either the caller may create the
// record, or Existing points at the record created by an earlier request.
type Claim struct {
	New      bool
	Existing *model.MessageRef
}

type IdempotencyMessageStore interface {
	FindInboundByProviderID(ctx context.Context, providerMessageID string) (*model.Message, error)
	FindOutboundByIdempotencyKey(ctx context.Context, key string) (*model.Message, error)
}

type IdempotencyJobStore interface {
	GetByMessageID(ctx context.Context, messageID int64) (*model.OutboxJob, error)
}

// IdempotencyGuard short-circuits replayed requests. The store's unique indexes
// are authoritative; redis only caches resolved keys so replays skip the store.
type IdempotencyGuard struct {
	messages IdempotencyMessageStore
	jobs     IdempotencyJobStore
	cache    redis.RedisAdapter
	ttl      time.Duration
}

// NewIdempotencyGuard builds a guard. cache may be nil.
func NewIdempotencyGuard(messages IdempotencyMessageStore, jobs IdempotencyJobStore, cache redis.RedisAdapter, ttl time.Duration) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyGuard{
		messages: messages,
		jobs:     jobs,
		cache:    cache,
		ttl:      ttl,
	}
}

// CheckOrClaim reports whether key was already used in scope. An empty key
// cannot be deduplicated and always yields a new claim.
func (g *IdempotencyGuard) CheckOrClaim(ctx context.Context, scope Scope, key string) (Claim, error) {
	if key == "" {
		return Claim{New: true}, nil
	}
	if ref := g.cached(ctx, scope, key); ref != nil {
		return Claim{Existing: ref}, nil
	}

	ref, err := g.Resolve(ctx, scope, key)
	if errors.Is(err, ErrNotFound) {
		return Claim{New: true}, nil
	}
	if err != nil {
		return Claim{}, err
	}
	return Claim{Existing: ref}, nil
}

// Resolve reads the record that owns key from the store. It is used after a
// create hit the unique index to find the winner.
func (g *IdempotencyGuard) Resolve(ctx context.Context, scope Scope, key string) (*model.MessageRef, error) {
	var (
		msg *model.Message
		err error
	)
	switch scope {
	case ScopeInbound:
		msg, err = g.messages.FindInboundByProviderID(ctx, key)
	case ScopeOutbound:
		msg, err = g.messages.FindOutboundByIdempotencyKey(ctx, key)
	default:
		return nil, fmt.Errorf("unknown idempotency scope %q", scope)
	}
	if err != nil {
		return nil, storeError(err)
	}

	ref := &model.MessageRef{ThreadID: msg.ThreadID, MessageID: msg.ID}
	if scope == ScopeOutbound && g.jobs != nil {
		job, err := g.jobs.GetByMessageID(ctx, msg.ID)
		switch {
		case err == nil:
			ref.JobID = job.ID
		case !errors.Is(err, repository.ErrNotFound):
			return nil, storeError(err)
		}
	}

	g.Remember(ctx, scope, key, ref)
	return ref, nil
}

// Remember caches a resolved key. Outbound refs without a job are not cached
// so a later replay can still repair the missing job.
func (g *IdempotencyGuard) Remember(ctx context.Context, scope Scope, key string, ref *model.MessageRef) {
	if g.cache == nil || key == "" || ref == nil {
		return
	}
	if scope == ScopeOutbound && ref.JobID == 0 {
		return
	}
	b, err := json.Marshal(ref)
	if err != nil {
		return
	}
	if err := g.cache.Set(ctx, cacheKey(scope, key), b, g.ttl); err != nil {
		logger.Warn("idempotency cache write failed", "scope", scope, "error", err)
	}
}

func (g *IdempotencyGuard) cached(ctx context.Context, scope Scope, key string) *model.MessageRef {
	if g.cache == nil {
		return nil
	}
	b, err := g.cache.Get(ctx, cacheKey(scope, key))
	if err != nil {
		if !redis.IsNil(err) {
			logger.Warn("idempotency cache read failed", "scope", scope, "error", err)
		}
		return nil
	}
	var ref model.MessageRef
	if err := json.Unmarshal(b, &ref); err != nil || ref.MessageID == 0 {
		return nil
	}
	return &ref
}

func cacheKey(scope Scope, key string) string {
	return "idem:" + string(scope) + ":" + key
}
