package main

import (
	"crypto/subtle"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

// DeliveryStatus is the outcome a bridge reports for one send.
type DeliveryStatus string

const (
	StatusAccepted  DeliveryStatus = "ACCEPTED"
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusFailed    DeliveryStatus = "FAILED"
)

// SendRequest is what the delivery worker posts for one outbox job.
type SendRequest struct {
	JobID          int64  `json:"job_id"`
	MessageID      int64  `json:"message_id"`
	To             string `json:"to" binding:"required"`
	Body           string `json:"body" binding:"required"`
	IdempotencyKey string `json:"idempotency_key"`
}

type SendResponse struct {
	ProviderMessageID string         `json:"provider_message_id"`
	Status            DeliveryStatus `json:"status"`
	ErrorCode         string         `json:"error_code,omitempty"`
	ErrorMsg          string         `json:"error_message,omitempty"`
	ProcessedAt       time.Time      `json:"processed_at"`
}

type HealthResponse struct {
	Status       string    `json:"status"`
	BridgeID     string    `json:"bridge_id"`
	Timestamp    time.Time `json:"timestamp"`
	DeliveryRate float64   `json:"delivery_rate"`
	OutageRate   float64   `json:"outage_rate"`
}

// Bridge simulates a messaging provider bridge. Sends carrying the same
// idempotency key get the first answer back.
type Bridge struct {
	mu           sync.Mutex
	deliveryRate float64
	outageRate   float64
	minDelay     time.Duration
	maxDelay     time.Duration
	bridgeID     string
	rng          *rand.Rand

	sent *cache.Cache
}

func NewBridge(deliveryRate, outageRate float64, minDelay, maxDelay time.Duration) *Bridge {
	return &Bridge{
		deliveryRate: deliveryRate,
		outageRate:   outageRate,
		minDelay:     minDelay,
		maxDelay:     maxDelay,
		bridgeID:     "BRIDGE_" + uuid.New().String()[:8],
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		sent:         cache.New(time.Hour, 10*time.Minute),
	}
}

// roll returns true with probability p.
func (b *Bridge) roll(p float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng.Float64() < p
}

func (b *Bridge) randomDelay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	delta := b.maxDelay - b.minDelay
	if delta <= 0 {
		return b.minDelay
	}
	return b.minDelay + time.Duration(b.rng.Int63n(int64(delta)))
}

func (b *Bridge) rates() (delivery, outage float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deliveryRate, b.outageRate
}

func (b *Bridge) deliver(req *SendRequest) *SendResponse {
	if req.IdempotencyKey != "" {
		if v, ok := b.sent.Get(req.IdempotencyKey); ok {
			log.Info().Str("idempotency_key", req.IdempotencyKey).Msg("replayed send")
			return v.(*SendResponse)
		}
	}

	time.Sleep(b.randomDelay())

	delivery, _ := b.rates()
	resp := &SendResponse{
		ProviderMessageID: "wamid." + uuid.New().String(),
		ProcessedAt:       time.Now().UTC(),
	}
	if b.roll(delivery) {
		resp.Status = StatusAccepted
		log.Info().
			Int64("job_id", req.JobID).
			Str("to", req.To).
			Str("provider_message_id", resp.ProviderMessageID).
			Msg("message accepted")
	} else {
		resp.Status = StatusFailed
		resp.ErrorCode = b.randomErrorCode()
		resp.ErrorMsg = errorMessages[resp.ErrorCode]
		log.Warn().
			Int64("job_id", req.JobID).
			Str("to", req.To).
			Str("error_code", resp.ErrorCode).
			Msg("message rejected")
	}

	if req.IdempotencyKey != "" {
		b.sent.SetDefault(req.IdempotencyKey, resp)
	}
	b.sent.SetDefault("id:"+resp.ProviderMessageID, resp)
	return resp
}

var errorMessages = map[string]string{
	"INVALID_NUMBER":     "The recipient number is not on the network",
	"RECIPIENT_BLOCKED":  "The recipient has blocked this sender",
	"SESSION_EXPIRED":    "The customer service window has closed",
	"CONTENT_REJECTED":   "The message body violates provider policy",
	"RATE_LIMITED_PHONE": "Too many messages to this recipient",
}

func (b *Bridge) randomErrorCode() string {
	codes := []string{"INVALID_NUMBER", "RECIPIENT_BLOCKED", "SESSION_EXPIRED", "CONTENT_REJECTED", "RATE_LIMITED_PHONE"}
	b.mu.Lock()
	defer b.mu.Unlock()
	return codes[b.rng.Intn(len(codes))]
}

type Handler struct {
	bridge *Bridge
	token  string
}

func NewHandler(bridge *Bridge, token string) *Handler {
	return &Handler{bridge: bridge, token: token}
}

// authorize checks the bearer token when one is configured.
func (h *Handler) authorize(c *gin.Context) {
	if h.token == "" {
		c.Next()
		return
	}
	got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func (h *Handler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request",
			"details": err.Error(),
		})
		return
	}

	_, outage := h.bridge.rates()
	if h.bridge.roll(outage) {
		log.Warn().Int64("job_id", req.JobID).Msg("simulated outage")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "bridge temporarily unavailable"})
		return
	}

	c.JSON(http.StatusOK, h.bridge.deliver(&req))
}

func (h *Handler) GetStatus(c *gin.Context) {
	id := c.Param("provider_message_id")
	v, ok := h.bridge.sent.Get("id:" + id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown message"})
		return
	}
	resp := *v.(*SendResponse)
	if resp.Status == StatusAccepted {
		resp.Status = StatusDelivered
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	delivery, outage := h.bridge.rates()
	c.JSON(http.StatusOK, HealthResponse{
		Status:       "healthy",
		BridgeID:     h.bridge.bridgeID,
		Timestamp:    time.Now().UTC(),
		DeliveryRate: delivery,
		OutageRate:   outage,
	})
}

// UpdateConfig changes the simulated failure rates at runtime.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		DeliveryRate *float64 `json:"delivery_rate"`
		OutageRate   *float64 `json:"outage_rate"`
	}
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request",
			"details": err.Error(),
		})
		return
	}

	b := h.bridge
	b.mu.Lock()
	if r := config.DeliveryRate; r != nil && *r >= 0 && *r <= 1 {
		b.deliveryRate = *r
	}
	if r := config.OutageRate; r != nil && *r >= 0 && *r <= 1 {
		b.outageRate = *r
	}
	delivery, outage := b.deliveryRate, b.outageRate
	b.mu.Unlock()

	log.Info().Float64("delivery_rate", delivery).Float64("outage_rate", outage).Msg("updated rates")
	c.JSON(http.StatusOK, gin.H{
		"delivery_rate": delivery,
		"outage_rate":   outage,
	})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request processed")
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/messages/send", handler.authorize, handler.Send)
		v1.GET("/messages/:provider_message_id", handler.authorize, handler.GetStatus)
		v1.GET("/health", handler.HealthCheck)
		v1.PUT("/config", handler.authorize, handler.UpdateConfig)
	}
	router.GET("/health", handler.HealthCheck)

	return router
}
