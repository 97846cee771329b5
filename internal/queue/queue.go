package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/redis"
)

// KindDelivery marks a message carrying a model.JobNotification.
const KindDelivery = "delivery"

type Message struct {
	ID        string
	Data      []byte
	Metadata  map[string]string
	Timestamp time.Time
	// Attempts is the number of times the stream delivered this entry before.
	Attempts int
	acked    bool
	nacked   bool
	queue    *Queue
}

// Ack acknowledges the message so it is not redelivered.
func (m *Message) Ack() error {
	if m.acked {
		return fmt.Errorf("message already acknowledged")
	}
	if m.nacked {
		return fmt.Errorf("message already rejected")
	}

	m.acked = true
	return m.queue.ackMessage(m.ID)
}

// Nack leaves the message pending; it is reclaimed after the visibility timeout.
func (m *Message) Nack() error {
	if m.acked {
		return fmt.Errorf("message already acknowledged")
	}
	if m.nacked {
		return fmt.Errorf("message already rejected")
	}

	m.nacked = true
	return nil
}

// Notification decodes a delivery message.
func (m *Message) Notification() (model.JobNotification, error) {
	var n model.JobNotification
	if kind := m.Metadata["kind"]; kind != "" && kind != KindDelivery {
		return n, fmt.Errorf("unexpected message kind %q", kind)
	}
	if err := json.Unmarshal(m.Data, &n); err != nil {
		return n, fmt.Errorf("decode job notification: %w", err)
	}
	if n.JobID <= 0 {
		return n, errors.New("job notification without job id")
	}
	return n, nil
}

// MessageHandler processes one message. A nil return acks it; an error leaves
// it pending for redelivery.
type MessageHandler func(ctx context.Context, msg *Message) error

type QueueConfig struct {
	Name              string
	ConsumerGroup     string
	ConsumerName      string
	MaxRetries        int
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	BatchSize         int64
	MaxLen            int64
	EnableDLQ         bool
}

// Queue is a redis stream with a consumer group. It only carries wake-up
// notifications for outbox jobs; the job rows stay the source of truth.
type Queue struct {
	adapter    redis.RedisAdapter
	config     QueueConfig
	handler    MessageHandler
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	processing map[string]*Message
}

type QueueStats struct {
	TotalMessages   int64
	PendingMessages int64
	ConsumerCount   int64
}

func NewQueue(adapter redis.RedisAdapter, config QueueConfig) (*Queue, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = "default-group"
	}
	if config.ConsumerName == "" {
		config.ConsumerName = fmt.Sprintf("consumer-%d", time.Now().UnixNano())
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.VisibilityTimeout == 0 {
		config.VisibilityTimeout = 30 * time.Second
	}
	if config.PollInterval == 0 {
		config.PollInterval = 1 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}

	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		adapter:    adapter,
		config:     config,
		ctx:        ctx,
		cancel:     cancel,
		processing: make(map[string]*Message),
	}

	if err := adapter.XGroupCreateMkStream(ctx, config.Name, config.ConsumerGroup, "0"); err != nil &&
		!strings.Contains(err.Error(), "BUSYGROUP") {
		cancel()
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	return q, nil
}

func (q *Queue) Publish(ctx context.Context, data []byte, metadata map[string]string) (string, error) {
	values := map[string]interface{}{
		"data":      string(data),
		"timestamp": time.Now().Unix(),
	}
	for k, v := range metadata {
		values["meta_"+k] = v
	}

	id, err := q.adapter.XAdd(ctx, q.config.Name, values)
	if err != nil {
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	if q.config.MaxLen > 0 {
		if err := q.adapter.XTrimApprox(ctx, q.config.Name, q.config.MaxLen); err != nil {
			logger.Warn("stream trim failed", "queue", q.config.Name, "error", err)
		}
	}

	return id, nil
}

func (q *Queue) PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return q.Publish(ctx, jsonData, metadata)
}

// Notify publishes a delivery wake-up for a queued job.
func (q *Queue) Notify(ctx context.Context, n model.JobNotification) error {
	_, err := q.PublishJSON(ctx, n, map[string]string{"kind": KindDelivery})
	return err
}

// Consume starts the poll loop. Handlers run on the loop goroutine; callers
// that want parallelism hand messages to a worker pool and ack from there.
func (q *Queue) Consume(handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	q.handler = handler
	q.wg.Add(1)

	go q.consumeLoop()

	return nil
}

func (q *Queue) consumeLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.processMessages()
			q.claimStuckMessages()
		}
	}
}

func (q *Queue) processMessages() {
	messages, err := q.adapter.XReadGroup(
		q.ctx,
		q.config.ConsumerGroup,
		q.config.ConsumerName,
		q.config.Name,
		">",
		q.config.BatchSize,
	)
	if err != nil {
		if !redis.IsNil(err) && q.ctx.Err() == nil {
			logger.Warn("stream read failed", "queue", q.config.Name, "error", err)
		}
		return
	}

	for _, streamMsg := range messages {
		msg := q.streamMessageToMessage(streamMsg)
		q.handleMessage(msg)
	}
}

func (q *Queue) claimStuckMessages() {
	pending, err := q.adapter.XPending(q.ctx, q.config.Name, q.config.ConsumerGroup)
	if err != nil || pending == nil || pending.Count == 0 {
		return
	}

	pendingExt, err := q.adapter.XPendingExt(q.ctx, q.config.Name, q.config.ConsumerGroup, "-", "+", 100)
	if err != nil || len(pendingExt) == 0 {
		return
	}

	retries := make(map[string]int64, len(pendingExt))
	var idsToReclaim []string
	for _, p := range pendingExt {
		if p.Idle >= q.config.VisibilityTimeout {
			idsToReclaim = append(idsToReclaim, p.ID)
			retries[p.ID] = p.RetryCount
		}
	}
	if len(idsToReclaim) == 0 {
		return
	}

	messages, err := q.adapter.XClaim(
		q.ctx,
		q.config.Name,
		q.config.ConsumerGroup,
		q.config.ConsumerName,
		q.config.VisibilityTimeout,
		idsToReclaim...,
	)
	if err != nil {
		logger.Warn("stream claim failed", "queue", q.config.Name, "error", err)
		return
	}

	for _, streamMsg := range messages {
		msg := q.streamMessageToMessage(streamMsg)
		msg.Attempts = int(retries[msg.ID])
		q.handleMessage(msg)
	}
}

func (q *Queue) handleMessage(msg *Message) {
	q.mu.Lock()
	q.processing[msg.ID] = msg
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		delete(q.processing, msg.ID)
		q.mu.Unlock()
	}()

	if msg.Attempts >= q.config.MaxRetries {
		logger.Warn("stream message exceeded retries", "queue", q.config.Name, "id", msg.ID, "attempts", msg.Attempts)
		q.moveToDeadLetterQueue(msg)
		_ = q.ackMessage(msg.ID)
		return
	}

	ctx, cancel := context.WithTimeout(q.ctx, q.config.VisibilityTimeout)
	defer cancel()

	if err := q.handler(ctx, msg); err != nil {
		logger.Debug("stream message left pending", "queue", q.config.Name, "id", msg.ID, "error", err)
		return
	}
	if !msg.acked {
		_ = q.ackMessage(msg.ID)
	}
}

// ackMessage does not use the queue context so in-flight messages can still be
// acked while the queue stops.
func (q *Queue) ackMessage(messageID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return q.adapter.XAck(ctx, q.config.Name, q.config.ConsumerGroup, messageID)
}

func (q *Queue) moveToDeadLetterQueue(msg *Message) {
	if !q.config.EnableDLQ {
		return
	}

	values := map[string]interface{}{
		"data":           string(msg.Data),
		"original_id":    msg.ID,
		"attempts":       msg.Attempts,
		"failed_at":      time.Now().Unix(),
		"original_queue": q.config.Name,
	}
	for k, v := range msg.Metadata {
		values["meta_"+k] = v
	}

	if _, err := q.adapter.XAdd(q.ctx, q.config.Name+":dlq", values); err != nil {
		logger.Error("dead letter write failed", "queue", q.config.Name, "id", msg.ID, "error", err)
	}
}

func (q *Queue) streamMessageToMessage(streamMsg redis.StreamMessage) *Message {
	msg := &Message{
		ID:       streamMsg.ID,
		Metadata: make(map[string]string),
		queue:    q,
	}

	for k, v := range streamMsg.Values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch {
		case k == "data":
			msg.Data = []byte(s)
		case k == "timestamp":
			if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
				msg.Timestamp = time.Unix(unix, 0).UTC()
			}
		case strings.HasPrefix(k, "meta_"):
			msg.Metadata[strings.TrimPrefix(k, "meta_")] = s
		}
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return msg
}

func (q *Queue) Stop(timeout time.Duration) error {
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for queue to stop")
	}
}

func (q *Queue) GetStats(ctx context.Context) (*QueueStats, error) {
	totalMessages, err := q.adapter.XLen(ctx, q.config.Name)
	if err != nil {
		return nil, err
	}

	stats := &QueueStats{TotalMessages: totalMessages}

	pending, err := q.adapter.XPending(ctx, q.config.Name, q.config.ConsumerGroup)
	if err == nil && pending != nil {
		stats.PendingMessages = pending.Count
		stats.ConsumerCount = int64(len(pending.Consumers))
	}

	return stats, nil
}
