package processor

import (
	"context"
	"testing"
	"time"

	gateway "github.com/nimasrn/support-inbox/internal/gateways"
	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/internal/queue"
	"github.com/nimasrn/support-inbox/pkg/redis"
	"github.com/nimasrn/support-inbox/test/helpers"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestProcessorService_DeliversNotifiedJobs(t *testing.T) {
	h := newHarness(t)
	_, rds := helpers.SetupTestRedis(t)
	ctx := context.Background()

	h.relay.On("Send", mock.Anything, mock.Anything).
		Return(&gateway.SendResponse{ProviderMessageID: "prov", Status: gateway.StatusAccepted, Provider: "primary"}, nil)

	qc := queue.QueueConfig{
		Name:              "test:deliveries",
		ConsumerGroup:     "workers",
		ConsumerName:      "worker",
		VisibilityTimeout: time.Second,
		PollInterval:      20 * time.Millisecond,
	}
	svc := NewProcessorService(rds, h.proc, nil, ServiceConfig{
		Queue:             qc,
		Consumers:         2,
		Workers:           2,
		ProcessingTimeout: 2 * time.Second,
	})
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Stop)

	publisher := newPublisher(t, rds, qc)

	msgs := make([]*model.Message, 0, 3)
	for _, body := range []string{"one", "two", "three"} {
		msg, job := h.queue(t, body)
		msgs = append(msgs, msg)
		require.NoError(t, publisher.Notify(ctx, model.JobNotification{JobID: job.ID, MessageID: msg.ID}))
	}
	// malformed messages are dropped, not retried
	_, err := publisher.Publish(ctx, []byte("garbage"), nil)
	require.NoError(t, err)

	helpers.AssertEventually(t, 5*time.Second, func() bool {
		for _, msg := range msgs {
			if h.messageStatus(t, msg.ID) != model.MessageStatusSent {
				return false
			}
		}
		return true
	}, "notified jobs were not delivered")

	helpers.AssertEventually(t, 2*time.Second, func() bool {
		stats, err := publisher.GetStats(ctx)
		return err == nil && stats.PendingMessages == 0
	}, "stream messages were not acked")

	h.relay.AssertNumberOfCalls(t, "Send", 3)
	helpers.AssertEventually(t, time.Second, func() bool {
		return svc.stats.Snapshot().Handled == 3
	}, "worker stats did not count the handled jobs")
	require.Zero(t, svc.stats.Snapshot().StoreErrors)
}

func TestWorkerStats_Snapshot(t *testing.T) {
	st := NewWorkerStats()
	require.Zero(t, st.Snapshot().AvgDuration)

	st.Handled(10 * time.Millisecond)
	st.Handled(30 * time.Millisecond)
	st.StoreError()
	st.TimedOut()

	snap := st.Snapshot()
	require.Equal(t, int64(2), snap.Handled)
	require.Equal(t, int64(1), snap.StoreErrors)
	require.Equal(t, int64(1), snap.TimedOut)
	require.Equal(t, 20*time.Millisecond, snap.AvgDuration)
	require.Greater(t, snap.RatePerSecond, 0.0)
}

func newPublisher(t *testing.T, rds redis.RedisAdapter, qc queue.QueueConfig) *queue.Queue {
	t.Helper()
	qc.ConsumerName = "publisher"
	q, err := queue.NewQueue(rds, qc)
	require.NoError(t, err)
	return q
}
