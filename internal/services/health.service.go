package services

import (
	"context"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/logger"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HeartbeatReader interface {
	Get(ctx context.Context, name string) (*time.Time, error)
}

type HealthStatus struct {
	OK                    bool       `json:"ok"`
	StoreOK               bool       `json:"store_ok"`
	RedisOK               bool       `json:"redis_ok"`
	LastWebhookReceivedAt *time.Time `json:"last_webhook_received_at"`
}

type HealthService struct {
	store      Pinger
	redis      Pinger
	heartbeats HeartbeatReader
}

// NewHealthService builds the checker. redis may be nil when not configured.
func NewHealthService(store Pinger, redis Pinger, heartbeats HeartbeatReader) *HealthService {
	return &HealthService{
		store:      store,
		redis:      redis,
		heartbeats: heartbeats,
	}
}

func (s *HealthService) Check(ctx context.Context) *HealthStatus {
	st := &HealthStatus{}

	if err := s.store.Ping(ctx); err != nil {
		logger.Warn("health: store ping failed", "error", err)
	} else {
		st.StoreOK = true
	}

	if s.redis == nil {
		st.RedisOK = true
	} else if err := s.redis.Ping(ctx); err != nil {
		logger.Warn("health: redis ping failed", "error", err)
	} else {
		st.RedisOK = true
	}

	if st.StoreOK && s.heartbeats != nil {
		at, err := s.heartbeats.Get(ctx, model.HeartbeatWebhookInbound)
		if err != nil {
			logger.Warn("health: heartbeat read failed", "error", err)
		}
		st.LastWebhookReceivedAt = at
	}

	st.OK = st.StoreOK && st.RedisOK
	return st
}
