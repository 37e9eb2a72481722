package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool(store *TaskStore, registry *Registry) *WorkerPool {
	cfg := DefaultTaskConfig()
	cfg.PollInterval = 20 * time.Millisecond
	cfg.CleanupInterval = time.Hour
	cfg.Concurrency = 1
	cfg.MaxRetries = 2
	return NewWorkerPool(store, registry, cfg, nil)
}

func TestWorkerProcessesTask(t *testing.T) {
	store := setupTestStore(t)
	registry := NewRegistry()
	var seen atomic.Value
	registry.Register("candlepin.environment.create", func(ctx context.Context, task *Task) (Payload, error) {
		seen.Store(task.Input["owner"])
		return Payload{"environment_id": task.ResourceID}, nil
	})
	wp := testPool(store, registry)

	task, err := store.Enqueue(context.Background(), newTestTask("candlepin.environment.create", "7"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		wp.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, err := store.Get(context.Background(), task.ID)
		return err == nil && got != nil && got.State == TaskStateSucceeded
	}, 2*time.Second, 20*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "ACME", seen.Load())
	got, err := store.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "7", got.Output["environment_id"])
}

func TestWorkerRetriesThenFails(t *testing.T) {
	store := setupTestStore(t)
	registry := NewRegistry()
	var calls atomic.Int32
	registry.Register("flaky", func(ctx context.Context, task *Task) (Payload, error) {
		calls.Add(1)
		return nil, errors.New("connection refused")
	})
	wp := testPool(store, registry)
	ctx := context.Background()

	task, err := store.Enqueue(ctx, newTestTask("flaky", "1"))
	require.NoError(t, err)

	assert.True(t, wp.processOne(ctx, 0))
	assert.True(t, wp.processOne(ctx, 0))
	assert.False(t, wp.processOne(ctx, 0))
	assert.Equal(t, int32(2), calls.Load())

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskStateFailed, got.State)
	assert.Equal(t, 2, got.AttemptCount)
}

func TestWorkerPermanentFailure(t *testing.T) {
	store := setupTestStore(t)
	registry := NewRegistry()
	registry.Register("bad-input", func(ctx context.Context, task *Task) (Payload, error) {
		return nil, fmt.Errorf("owner missing: %w", ErrPermanent)
	})
	wp := testPool(store, registry)
	ctx := context.Background()

	task, err := store.Enqueue(ctx, newTestTask("bad-input", "1"))
	require.NoError(t, err)
	assert.True(t, wp.processOne(ctx, 0))

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskStateFailed, got.State)
	assert.Equal(t, 1, got.AttemptCount)
}

func TestWorkerPanicIsFailure(t *testing.T) {
	store := setupTestStore(t)
	registry := NewRegistry()
	registry.Register("boom", func(ctx context.Context, task *Task) (Payload, error) {
		panic("nil owner")
	})
	wp := testPool(store, registry)
	ctx := context.Background()

	task, err := store.Enqueue(ctx, newTestTask("boom", "1"))
	require.NoError(t, err)
	assert.True(t, wp.processOne(ctx, 0))

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskStateFailed, got.State)
	assert.Contains(t, got.LastError, "nil owner")
}

func TestWorkerUnknownAction(t *testing.T) {
	store := setupTestStore(t)
	wp := testPool(store, NewRegistry())
	ctx := context.Background()

	task, err := store.Enqueue(ctx, newTestTask("unknown.action", "1"))
	require.NoError(t, err)
	assert.True(t, wp.processOne(ctx, 0))

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskStateFailed, got.State)
	assert.Contains(t, got.LastError, "no handler registered")
}

func TestWorkerCleanupRecoversStuck(t *testing.T) {
	store := setupTestStore(t)
	wp := testPool(store, NewRegistry())
	wp.cfg.ClaimTimeout = time.Millisecond
	ctx := context.Background()

	task, err := store.Enqueue(ctx, newTestTask("slow", "1"))
	require.NoError(t, err)
	_, err = store.Claim(ctx, 3)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	wp.cleanup(ctx)

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskStateQueued, got.State)
}

func TestWorkerPoolDisabled(t *testing.T) {
	cfg := DefaultTaskConfig()
	cfg.Enabled = false
	done := make(chan struct{})
	go func() {
		NewWorkerPool(setupTestStore(t), NewRegistry(), cfg, nil).Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled pool did not return")
	}
}
