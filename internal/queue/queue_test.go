package queue

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/redis"
	"github.com/nimasrn/support-inbox/test/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(name string) QueueConfig {
	return QueueConfig{
		Name:              name,
		ConsumerGroup:     "test-group",
		ConsumerName:      "test-consumer",
		MaxRetries:        3,
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      50 * time.Millisecond,
		BatchSize:         10,
		MaxLen:            1000,
		EnableDLQ:         true,
	}
}

func newTestQueue(t *testing.T, adapter redis.RedisAdapter, config QueueConfig) *Queue {
	t.Helper()
	q, err := NewQueue(adapter, config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Stop(time.Second) })
	return q
}

func TestQueue_PublishAndConsume(t *testing.T) {
	_, adapter := helpers.SetupTestRedis(t)
	q := newTestQueue(t, adapter, testConfig("test:queue"))
	ctx := context.Background()

	_, err := q.PublishJSON(ctx, map[string]string{"key": "value"}, map[string]string{"type": "test"})
	require.NoError(t, err)

	received := make(chan *Message, 1)
	require.NoError(t, q.Consume(func(ctx context.Context, msg *Message) error {
		received <- msg
		return nil
	}))

	select {
	case msg := <-received:
		var data map[string]string
		require.NoError(t, json.Unmarshal(msg.Data, &data))
		assert.Equal(t, "value", data["key"])
		assert.Equal(t, "test", msg.Metadata["type"])
		assert.False(t, msg.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}

	helpers.AssertEventually(t, time.Second, func() bool {
		stats, err := q.GetStats(ctx)
		return err == nil && stats.PendingMessages == 0
	}, "handled message was not acked")
}

func TestQueue_Notify(t *testing.T) {
	_, adapter := helpers.SetupTestRedis(t)
	q := newTestQueue(t, adapter, testConfig("test:notify"))
	ctx := context.Background()

	require.NoError(t, q.Notify(ctx, model.JobNotification{JobID: 7, MessageID: 42}))

	received := make(chan model.JobNotification, 1)
	require.NoError(t, q.Consume(func(ctx context.Context, msg *Message) error {
		n, err := msg.Notification()
		assert.NoError(t, err)
		assert.Equal(t, KindDelivery, msg.Metadata["kind"])
		received <- n
		return nil
	}))

	select {
	case n := <-received:
		assert.Equal(t, model.JobNotification{JobID: 7, MessageID: 42}, n)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not received")
	}
}

func TestMessage_Notification(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{"valid", Message{Data: []byte(`{"job_id":3,"message_id":9}`), Metadata: map[string]string{"kind": KindDelivery}}, false},
		{"no kind", Message{Data: []byte(`{"job_id":3}`), Metadata: map[string]string{}}, false},
		{"other kind", Message{Data: []byte(`{"job_id":3}`), Metadata: map[string]string{"kind": "audit"}}, true},
		{"not json", Message{Data: []byte(`job 3`), Metadata: map[string]string{}}, true},
		{"missing job id", Message{Data: []byte(`{"message_id":9}`), Metadata: map[string]string{}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := tt.msg.Notification()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(3), n.JobID)
		})
	}
}

func TestQueue_RedeliversUntilDeadLetter(t *testing.T) {
	_, adapter := helpers.SetupTestRedis(t)
	config := testConfig("test:retry")
	config.MaxRetries = 2
	config.VisibilityTimeout = 300 * time.Millisecond
	q := newTestQueue(t, adapter, config)
	ctx := context.Background()

	_, err := q.PublishJSON(ctx, map[string]string{"test": "retry"}, map[string]string{"kind": "test"})
	require.NoError(t, err)

	var attempts atomic.Int32
	seen := make(chan int, 10)
	require.NoError(t, q.Consume(func(ctx context.Context, msg *Message) error {
		attempts.Add(1)
		seen <- msg.Attempts
		return assert.AnError
	}))

	helpers.AssertEventually(t, 5*time.Second, func() bool {
		n, err := adapter.XLen(ctx, "test:retry:dlq")
		return err == nil && n == 1
	}, "message never reached the dead letter stream")

	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, 0, <-seen)
	assert.Equal(t, 1, <-seen)

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingMessages, "dead lettered message is acked")
}

func TestQueue_RecoversAfterFailure(t *testing.T) {
	_, adapter := helpers.SetupTestRedis(t)
	config := testConfig("test:recover")
	config.VisibilityTimeout = 300 * time.Millisecond
	q := newTestQueue(t, adapter, config)
	ctx := context.Background()

	_, err := q.Publish(ctx, []byte("x"), nil)
	require.NoError(t, err)

	var attempts atomic.Int32
	done := make(chan struct{})
	require.NoError(t, q.Consume(func(ctx context.Context, msg *Message) error {
		if attempts.Add(1) == 1 {
			return assert.AnError
		}
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("failed message was not redelivered")
	}

	n, err := adapter.XLen(ctx, "test:recover:dlq")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueue_GetStats(t *testing.T) {
	_, adapter := helpers.SetupTestRedis(t)
	q := newTestQueue(t, adapter, testConfig("test:stats"))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := q.PublishJSON(ctx, map[string]int{"count": i}, nil)
		require.NoError(t, err)
	}

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.TotalMessages)
	assert.Zero(t, stats.PendingMessages)
}

func TestMessage_AckNack(t *testing.T) {
	_, adapter := helpers.SetupTestRedis(t)
	q := newTestQueue(t, adapter, testConfig("test:ack"))

	t.Run("ack marks message as processed", func(t *testing.T) {
		msgID, err := q.Publish(context.Background(), []byte(`{"test":"data"}`), nil)
		require.NoError(t, err)

		msg := &Message{ID: msgID, queue: q}
		assert.NoError(t, msg.Ack())
		assert.True(t, msg.acked)
		assert.False(t, msg.nacked)
	})

	t.Run("nack marks message for retry", func(t *testing.T) {
		msg := &Message{ID: "test-2", queue: q}
		assert.NoError(t, msg.Nack())
		assert.False(t, msg.acked)
		assert.True(t, msg.nacked)
	})

	t.Run("cannot ack already acked message", func(t *testing.T) {
		msg := &Message{ID: "test-3", acked: true}
		err := msg.Ack()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already acknowledged")
	})

	t.Run("cannot nack already nacked message", func(t *testing.T) {
		msg := &Message{ID: "test-4", nacked: true}
		err := msg.Nack()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already rejected")
	})
}

func TestQueueConfig_Validation(t *testing.T) {
	_, adapter := helpers.SetupTestRedis(t)

	t.Run("name is required", func(t *testing.T) {
		_, err := NewQueue(adapter, QueueConfig{})
		assert.Error(t, err)
	})

	t.Run("existing group is reused", func(t *testing.T) {
		first := newTestQueue(t, adapter, testConfig("test:valid"))
		second := newTestQueue(t, adapter, testConfig("test:valid"))
		assert.NotNil(t, first)
		assert.NotNil(t, second)
	})

	t.Run("defaults", func(t *testing.T) {
		q := newTestQueue(t, adapter, QueueConfig{Name: "test:defaults"})
		assert.Equal(t, "default-group", q.config.ConsumerGroup)
		assert.Equal(t, 3, q.config.MaxRetries)
		assert.Equal(t, 30*time.Second, q.config.VisibilityTimeout)
		assert.Equal(t, int64(10), q.config.BatchSize)
	})
}

func TestQueue_ConcurrentPublish(t *testing.T) {
	_, adapter := helpers.SetupTestRedis(t)
	q := newTestQueue(t, adapter, testConfig("test:concurrent"))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			assert.NoError(t, q.Notify(ctx, model.JobNotification{JobID: int64(id + 1)}))
		}(i)
	}
	wg.Wait()

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.TotalMessages)
}

func TestQueue_Stop(t *testing.T) {
	_, adapter := helpers.SetupTestRedis(t)
	q, err := NewQueue(adapter, testConfig("test:stop"))
	require.NoError(t, err)

	require.NoError(t, q.Consume(func(ctx context.Context, msg *Message) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	}))
	assert.Error(t, q.Consume(nil))

	assert.NoError(t, q.Stop(2*time.Second))
}
