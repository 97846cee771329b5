package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/test/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertSingleDeadline(t *testing.T, th *model.Thread) {
	t.Helper()
	assert.False(t, th.FirstResponseDueAt != nil && th.FollowUpDueAt != nil,
		"thread %d has both deadlines set", th.ID)
}

func TestSLATracker_Lifecycle(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	in, err := s.ingestor.Ingest(ctx, InboundPayload{FromPhone: fixtures.PhoneAlice, Body: "help"})
	require.NoError(t, err)

	th := s.thread(t, in.ThreadID)
	require.NotNil(t, th.FirstResponseDueAt)
	assert.True(t, th.FirstResponseDueAt.Equal(fixtures.Clock(time.Hour)))
	assertSingleDeadline(t, th)

	s.advance(10 * time.Minute)
	_, err = s.ingestor.Ingest(ctx, InboundPayload{FromPhone: fixtures.PhoneAlice, Body: "hello?"})
	require.NoError(t, err)
	th = s.thread(t, in.ThreadID)
	assert.True(t, th.FirstResponseDueAt.Equal(fixtures.Clock(time.Hour)), "second inbound does not move the deadline")

	s.advance(5 * time.Minute)
	_, err = s.publisher.Send(ctx, SendRequest{ThreadID: in.ThreadID, Body: "on it"})
	require.NoError(t, err)

	th = s.thread(t, in.ThreadID)
	assert.Nil(t, th.FirstResponseDueAt)
	require.NotNil(t, th.FollowUpDueAt)
	assert.True(t, th.FollowUpDueAt.Equal(fixtures.Clock(15*time.Minute+24*time.Hour)))
	assertSingleDeadline(t, th)

	s.advance(time.Hour)
	_, err = s.publisher.Send(ctx, SendRequest{ThreadID: in.ThreadID, Body: "anything else?"})
	require.NoError(t, err)
	th = s.thread(t, in.ThreadID)
	assert.True(t, th.FollowUpDueAt.Equal(fixtures.Clock(15*time.Minute+24*time.Hour)), "later outbound keeps the follow-up deadline")

	_, err = s.ingestor.Ingest(ctx, InboundPayload{FromPhone: fixtures.PhoneAlice, Body: "thanks"})
	require.NoError(t, err)
	assertSingleDeadline(t, s.thread(t, in.ThreadID))
}

func TestSLATracker_CheckBreaches(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	late, err := s.ingestor.Ingest(ctx, InboundPayload{FromPhone: fixtures.PhoneAlice, Body: "help"})
	require.NoError(t, err)
	s.advance(30 * time.Minute)
	onTime, err := s.ingestor.Ingest(ctx, InboundPayload{FromPhone: fixtures.PhoneBob, Body: "help"})
	require.NoError(t, err)

	s.advance(45 * time.Minute)
	res, err := s.sla.CheckBreaches(ctx, s.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, []int64{late.ThreadID}, res.ThreadIDs)
	assert.Nil(t, s.thread(t, onTime.ThreadID).SLABreachedAt)

	again, err := s.sla.CheckBreaches(ctx, s.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, again.Count, "re-running the sweep changes nothing")

	t.Run("breach survives later messages", func(t *testing.T) {
		_, err := s.publisher.Send(ctx, SendRequest{ThreadID: late.ThreadID, Body: "sorry for the wait"})
		require.NoError(t, err)
		_, err = s.ingestor.Ingest(ctx, InboundPayload{FromPhone: fixtures.PhoneAlice, Body: "ok"})
		require.NoError(t, err)
		_, err = s.threadSvc.MarkRead(ctx, late.ThreadID)
		require.NoError(t, err)

		th := s.thread(t, late.ThreadID)
		require.NotNil(t, th.SLABreachedAt)
	})
}

func TestSLATracker_ConcurrentSweepsReportOnce(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	for _, phone := range []string{"+1", "+2", "+3", "+4"} {
		_, err := s.ingestor.Ingest(ctx, InboundPayload{FromPhone: phone + "555", Body: "x"})
		require.NoError(t, err)
	}
	s.advance(2 * time.Hour)

	var mu sync.Mutex
	seen := map[int64]int{}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.sla.CheckBreaches(ctx, s.clock.Now())
			assert.NoError(t, err)
			if res == nil {
				return
			}
			mu.Lock()
			for _, id := range res.ThreadIDs {
				seen[id]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 4)
	for id, n := range seen {
		assert.Equal(t, 1, n, "thread %d reported %d times", id, n)
	}
}

func TestSLATracker_MarkReadFloor(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	in, err := s.ingestor.Ingest(ctx, InboundPayload{FromPhone: fixtures.PhoneAlice, Body: "hi"})
	require.NoError(t, err)

	th, err := s.sla.MarkRead(ctx, in.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, 0, th.UnreadCount)

	th, err = s.sla.MarkRead(ctx, in.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, 0, th.UnreadCount)
	require.NotNil(t, th.LastReadAt)

	_, err = s.sla.MarkRead(ctx, 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}
