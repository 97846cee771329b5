package processor

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gateway "github.com/nimasrn/support-inbox/internal/gateways"
	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/internal/repository"
	"github.com/nimasrn/support-inbox/pkg/pg"
	"github.com/nimasrn/support-inbox/test/fixtures"
	"github.com/nimasrn/support-inbox/test/helpers"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRelay struct {
	mock.Mock
}

func (m *MockRelay) Send(ctx context.Context, req gateway.SendRequest) (*gateway.SendResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.SendResponse), args.Error(1)
}

type harness struct {
	db       *pg.DB
	mr       *miniredis.Miniredis
	jobs     *repository.OutboxJobRepository
	messages *repository.MessageRepository
	reports  *repository.DeliveryReportRepository
	ledger   *RelayLedger
	relay    *MockRelay
	proc     *DeliveryProcessor
	thread   *model.Thread
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := helpers.SetupTestDB(t)
	mr, rds := helpers.SetupTestRedis(t)

	h := &harness{
		db:       db,
		mr:       mr,
		jobs:     repository.NewOutboxJobRepository(db),
		messages: repository.NewMessageRepository(db),
		reports:  repository.NewDeliveryReportRepository(db),
		ledger:   NewRelayLedger(rds, time.Hour),
		relay:    &MockRelay{},
		now:      fixtures.Clock(0),
	}
	h.proc = NewDeliveryProcessor(h.jobs, h.messages, h.reports, h.relay, h.ledger, DeliveryConfig{
		MaxAttempts:    3,
		RetryBaseDelay: 10 * time.Second,
	})
	h.proc.now = func() time.Time { return h.now }
	_, h.thread = helpers.CreateTestThread(t, db, fixtures.PhoneAlice)
	return h
}

// queue stores an outbound reply and its queued job.
func (h *harness) queue(t *testing.T, body string) (*model.Message, *model.OutboxJob) {
	t.Helper()
	ctx := context.Background()

	msg, err := h.messages.CreateOutbound(ctx, model.OutboundMessage{
		ThreadID:  h.thread.ID,
		Body:      body,
		CreatedAt: h.now,
	})
	require.NoError(t, err)

	job, err := h.jobs.Create(ctx, msg.ID, fixtures.PhoneAlice, body)
	require.NoError(t, err)
	return msg, job
}

func (h *harness) job(t *testing.T, id int64) *model.OutboxJob {
	t.Helper()
	job, err := h.jobs.GetByID(context.Background(), id)
	require.NoError(t, err)
	return job
}

func (h *harness) messageStatus(t *testing.T, id int64) model.MessageStatus {
	t.Helper()
	msg, err := h.messages.GetByID(context.Background(), id)
	require.NoError(t, err)
	return msg.Status
}

func (h *harness) requeue(t *testing.T, id int64) {
	t.Helper()
	require.NoError(t, h.db.Write(context.Background()).Model(&repository.OutboxJobEntity{}).
		Where("id = ?", id).Update("status", string(model.JobStatusQueued)).Error)
}
