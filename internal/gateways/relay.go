package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/sony/gobreaker"
	"github.com/valyala/fasthttp"
)

var (
	ErrNoAvailableProviders = errors.New("no available providers")
	// ErrRejected means a provider refused the message itself. Retrying on
	// another provider will not help and it does not count against the breaker.
	ErrRejected = errors.New("message rejected by provider")
)

const sendPath = "/api/v1/messages/send"

type DeliveryStatus string

const (
	StatusAccepted  DeliveryStatus = "ACCEPTED"
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusFailed    DeliveryStatus = "FAILED"
)

type SendRequest struct {
	JobID          int64  `json:"job_id"`
	MessageID      int64  `json:"message_id"`
	To             string `json:"to"`
	Body           string `json:"body"`
	IdempotencyKey string `json:"idempotency_key"`
}

type SendResponse struct {
	ProviderMessageID string         `json:"provider_message_id"`
	Status            DeliveryStatus `json:"status"`
	ErrorCode         string         `json:"error_code,omitempty"`
	ErrorMsg          string         `json:"error_message,omitempty"`
	ProcessedAt       time.Time      `json:"processed_at"`

	// Provider is the name of the bridge that answered.
	Provider string `json:"-"`
}

type ProviderMetrics struct {
	TotalRequests    atomic.Int64
	SuccessfulReqs   atomic.Int64
	FailedReqs       atomic.Int64
	TotalLatencyMs   atomic.Int64
	ConsecutiveFails atomic.Int32

	mu             sync.RWMutex
	latencyHistory []int64
	maxHistorySize int
}

func NewProviderMetrics() *ProviderMetrics {
	return &ProviderMetrics{
		latencyHistory: make([]int64, 0, 100),
		maxHistorySize: 100,
	}
}

func (m *ProviderMetrics) RecordSuccess(latencyMs int64) {
	m.TotalRequests.Add(1)
	m.SuccessfulReqs.Add(1)
	m.TotalLatencyMs.Add(latencyMs)
	m.ConsecutiveFails.Store(0)

	m.mu.Lock()
	if len(m.latencyHistory) >= m.maxHistorySize {
		m.latencyHistory = m.latencyHistory[1:]
	}
	m.latencyHistory = append(m.latencyHistory, latencyMs)
	m.mu.Unlock()
}

func (m *ProviderMetrics) RecordFailure() {
	m.TotalRequests.Add(1)
	m.FailedReqs.Add(1)
	m.ConsecutiveFails.Add(1)
}

func (m *ProviderMetrics) AvgLatencyMs() int64 {
	total := m.SuccessfulReqs.Load()
	if total == 0 {
		return 0
	}
	return m.TotalLatencyMs.Load() / total
}

func (m *ProviderMetrics) SuccessRate() float64 {
	total := m.TotalRequests.Load()
	if total == 0 {
		return 1.0
	}
	return float64(m.SuccessfulReqs.Load()) / float64(total)
}

func (m *ProviderMetrics) P95LatencyMs() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.latencyHistory) == 0 {
		return 0
	}

	sorted := make([]int64, len(m.latencyHistory))
	copy(sorted, m.latencyHistory)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Provider is one provider bridge endpoint guarded by its own breaker.
type Provider struct {
	name    string
	url     string
	weight  int
	client  *fasthttp.Client
	metrics *ProviderMetrics
	breaker *gobreaker.CircuitBreaker
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) IsAvailable() bool {
	return p.breaker.State() != gobreaker.StateOpen
}

// Score ranks providers, higher is better. Open breakers score zero and a
// half-open breaker is halved so a recovering bridge only gets trial traffic
// when nothing better is around.
func (p *Provider) Score() float64 {
	if !p.IsAvailable() {
		return 0
	}

	successScore := p.metrics.SuccessRate() * 100

	latencyScore := 100.0
	if avg := p.metrics.AvgLatencyMs(); avg > 0 {
		latencyScore = 100.0 * (1.0 - float64(avg)/5000.0)
		if latencyScore < 0 {
			latencyScore = 0
		}
	}

	recentPenalty := 1.0 - float64(p.metrics.ConsecutiveFails.Load())*0.1
	if recentPenalty < 0.1 {
		recentPenalty = 0.1
	}

	statePenalty := 1.0
	if p.breaker.State() == gobreaker.StateHalfOpen {
		statePenalty = 0.5
	}

	return (successScore*0.4 + latencyScore*0.4 + float64(p.weight)*0.2) * recentPenalty * statePenalty
}

type ProviderConfig struct {
	Name   string
	URL    string
	Weight int // 1-100
}

type Config struct {
	Providers []ProviderConfig
	Token     string
	Timeout   time.Duration
	MaxConns  int
	// BreakerFailures consecutive failures open a provider's breaker for
	// BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	// Dial overrides the network dialer, used by tests.
	Dial fasthttp.DialFunc
}

// Relay hands outbound messages to the provider bridges, best scoring first
// and failing over to the next on transport errors.
type Relay struct {
	config    Config
	providers []*Provider
}

func NewRelay(config Config) (*Relay, error) {
	if len(config.Providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.MaxConns <= 0 {
		config.MaxConns = 64
	}
	if config.BreakerFailures == 0 {
		config.BreakerFailures = 5
	}
	if config.BreakerTimeout <= 0 {
		config.BreakerTimeout = 30 * time.Second
	}

	r := &Relay{config: config}
	for _, pc := range config.Providers {
		if pc.URL == "" {
			continue
		}
		r.providers = append(r.providers, r.newProvider(pc))
		logger.Info("provider initialized", "name", pc.Name, "url", pc.URL, "weight", pc.Weight)
	}
	if len(r.providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}
	return r, nil
}

func (r *Relay) newProvider(pc ProviderConfig) *Provider {
	failures := r.config.BreakerFailures
	return &Provider{
		name:   pc.Name,
		url:    pc.URL,
		weight: pc.Weight,
		client: &fasthttp.Client{
			MaxConnsPerHost:     r.config.MaxConns,
			ReadTimeout:         r.config.Timeout,
			WriteTimeout:        r.config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
			Dial:                r.config.Dial,
		},
		metrics: NewProviderMetrics(),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        pc.Name,
			MaxRequests: 1,
			Timeout:     r.config.BreakerTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrRejected)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("provider breaker state changed", "provider", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// ranked returns the available providers, best first.
func (r *Relay) ranked() []*Provider {
	type scored struct {
		p     *Provider
		score float64
	}
	list := make([]scored, 0, len(r.providers))
	for _, p := range r.providers {
		if p.IsAvailable() {
			list = append(list, scored{p, p.Score()})
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].score > list[j].score })

	out := make([]*Provider, len(list))
	for i := range list {
		out[i] = list[i].p
	}
	return out
}

// Send delivers req through the best available provider. A rejection is
// returned as is; transport failures move on to the next provider.
func (r *Relay) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	providers := r.ranked()
	if len(providers) == 0 {
		return nil, ErrNoAvailableProviders
	}

	var lastErr error
	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		out, err := p.breaker.Execute(func() (interface{}, error) {
			return r.post(ctx, p, body)
		})
		latency := time.Since(start).Milliseconds()

		if err == nil {
			p.metrics.RecordSuccess(latency)
			resp := out.(*SendResponse)
			resp.Provider = p.name
			logger.Debug("message relayed", "job_id", req.JobID, "provider", p.name, "status", resp.Status, "latency_ms", latency)
			return resp, nil
		}
		if errors.Is(err, ErrRejected) {
			p.metrics.RecordSuccess(latency)
			return nil, err
		}

		p.metrics.RecordFailure()
		logger.Warn("provider request failed", "job_id", req.JobID, "provider", p.name, "error", err)
		lastErr = err
	}

	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

func (r *Relay) post(ctx context.Context, p *Provider, body []byte) (*SendResponse, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(p.url + sendPath)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if r.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.config.Token)
	}
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(r.config.Timeout)
	}
	if err := p.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	code := resp.StatusCode()
	switch {
	case code >= 500 || code == fasthttp.StatusTooManyRequests:
		return nil, fmt.Errorf("unexpected status code: %d", code)
	case code >= 400:
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, code, resp.Body())
	}

	var out SendResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if out.Status == StatusFailed {
		return nil, fmt.Errorf("%w: %s %s", ErrRejected, out.ErrorCode, out.ErrorMsg)
	}
	return &out, nil
}

type ProviderStats struct {
	Name             string  `json:"name"`
	State            string  `json:"state"`
	Score            float64 `json:"score"`
	TotalRequests    int64   `json:"total_requests"`
	FailedReqs       int64   `json:"failed_requests"`
	SuccessRate      float64 `json:"success_rate"`
	AvgLatencyMs     int64   `json:"avg_latency_ms"`
	P95LatencyMs     int64   `json:"p95_latency_ms"`
	ConsecutiveFails int32   `json:"consecutive_fails"`
}

// Stats reports every provider, best scoring first.
func (r *Relay) Stats() []ProviderStats {
	stats := make([]ProviderStats, 0, len(r.providers))
	for _, p := range r.providers {
		stats = append(stats, ProviderStats{
			Name:             p.name,
			State:            p.breaker.State().String(),
			Score:            p.Score(),
			TotalRequests:    p.metrics.TotalRequests.Load(),
			FailedReqs:       p.metrics.FailedReqs.Load(),
			SuccessRate:      p.metrics.SuccessRate(),
			AvgLatencyMs:     p.metrics.AvgLatencyMs(),
			P95LatencyMs:     p.metrics.P95LatencyMs(),
			ConsecutiveFails: p.metrics.ConsecutiveFails.Load(),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Score > stats[j].Score })
	return stats
}
