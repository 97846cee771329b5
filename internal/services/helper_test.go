package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/internal/repository"
	"github.com/nimasrn/support-inbox/pkg/pg"
	"github.com/nimasrn/support-inbox/test/fixtures"
	"github.com/nimasrn/support-inbox/test/helpers"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: fixtures.Clock(0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.JobNotification
}

func (n *recordingNotifier) Notify(_ context.Context, j model.JobNotification) error {
	n.mu.Lock()
	n.sent = append(n.sent, j)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// stack wires every service against sqlite and miniredis with a fake clock.
type stack struct {
	db    *pg.DB
	mr    *miniredis.Miniredis
	clock *fakeClock

	contacts  *repository.ContactRepository
	threads   *repository.ThreadRepository
	messages  *repository.MessageRepository
	jobs      *repository.OutboxJobRepository
	tags      *repository.TagRepository
	rulesRepo *repository.RuleRepository

	guard     *IdempotencyGuard
	resolver  *ContactThreadResolver
	sla       *SLATracker
	replyGate *AutoReplyGuard
	replier   *AutoReplyService
	publisher *OutboxPublisher
	engine    *RuleEngine
	ingestor  *WebhookIngestor
	threadSvc *ThreadService
	notifier  *recordingNotifier
}

func newStack(t *testing.T) *stack {
	t.Helper()

	db := helpers.SetupTestDB(t)
	mr, rds := helpers.SetupTestRedis(t)
	clock := newFakeClock()

	s := &stack{
		db:        db,
		mr:        mr,
		clock:     clock,
		contacts:  repository.NewContactRepository(db),
		threads:   repository.NewThreadRepository(db),
		messages:  repository.NewMessageRepository(db),
		jobs:      repository.NewOutboxJobRepository(db),
		tags:      repository.NewTagRepository(db),
		rulesRepo: repository.NewRuleRepository(db),
		notifier:  &recordingNotifier{},
	}

	s.guard = NewIdempotencyGuard(s.messages, s.jobs, rds, time.Hour)
	s.resolver = NewContactThreadResolver(s.contacts, s.threads)
	s.sla = NewSLATracker(s.threads, SLAConfig{FirstResponseWindow: time.Hour, FollowUpWindow: 24 * time.Hour})
	s.sla.now = clock.Now
	s.publisher = NewOutboxPublisher(s.threads, s.contacts, s.messages, s.jobs, s.guard, s.sla, s.notifier)
	s.publisher.now = clock.Now
	s.replyGate = NewAutoReplyGuard(s.threads, s.messages, rds)
	s.replyGate.now = clock.Now
	s.replier = NewAutoReplyService(s.replyGate, repository.NewTemplateRepository(db), s.contacts, s.publisher, DefaultAutoReplyCooldown)
	s.engine = NewRuleEngine(s.rulesRepo, s.threads, s.tags, s.replier, 0)
	s.ingestor = NewWebhookIngestor(s.guard, s.resolver, s.messages, s.sla, s.engine, repository.NewHeartbeatRepository(db))
	s.ingestor.now = clock.Now
	s.threadSvc = NewThreadService(s.threads, s.contacts, s.tags, s.messages, repository.NewThreadNoteRepository(db), s.sla)

	return s
}

// advance moves both the service clock and redis key expiry forward.
func (s *stack) advance(d time.Duration) {
	s.clock.Advance(d)
	s.mr.FastForward(d)
}

func (s *stack) thread(t *testing.T, id int64) *model.Thread {
	t.Helper()
	th, err := s.threads.GetByID(context.Background(), id)
	require.NoError(t, err)
	return th
}

func (s *stack) countMessages(t *testing.T, direction model.Direction) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.db.Read(context.Background()).Model(&repository.MessageEntity{}).
		Where("direction = ?", string(direction)).Count(&n).Error)
	return n
}

func (s *stack) countJobs(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.db.Read(context.Background()).Model(&repository.OutboxJobEntity{}).Count(&n).Error)
	return n
}
