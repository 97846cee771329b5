package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerManager_ProcessesJobs(t *testing.T) {
	w := NewWorkerManager(10, 3, nil)

	var processed atomic.Int32
	done := make(chan struct{}, 5)
	w.SetWorker(func(_ int, job interface{}) {
		processed.Add(int32(job.(int)))
		done <- struct{}{}
	})

	stopped := make(chan error, 1)
	go func() { stopped <- w.Start() }()

	for i := 1; i <= 5; i++ {
		require.NoError(t, w.Enqueue(context.Background(), i))
	}
	for i := 0; i < 5; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("job not processed")
		}
	}
	assert.Equal(t, int32(15), processed.Load())

	w.Exit()
	w.Exit()
	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("workers did not stop")
	}
}

func TestWorkerManager_EnqueueAfterExit(t *testing.T) {
	w := NewWorkerManager(0, 1, nil)
	w.Exit()

	err := w.Enqueue(context.Background(), 1)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestWorkerManager_StartWithoutHandler(t *testing.T) {
	w := NewWorkerManager(1, 1, nil)
	assert.Error(t, w.Start())
}

func TestWorkerManager_Backlog(t *testing.T) {
	w := NewWorkerManager(4, 1, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Enqueue(context.Background(), i))
	}
	assert.Equal(t, 3, w.Backlog())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.NoError(t, w.Enqueue(ctx, 3))
	assert.ErrorIs(t, w.Enqueue(ctx, 4), context.DeadlineExceeded)
}
