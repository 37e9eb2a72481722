package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handler executes one task and returns its output.
type Handler func(ctx context.Context, task *Task) (Payload, error)

// ErrPermanent marks a handler failure that must not be retried.
var ErrPermanent = errors.New("permanent task failure")

// Registry maps action names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds action to h, replacing any previous handler.
func (r *Registry) Register(action string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[action] = h
}

// Lookup returns the handler for action.
func (r *Registry) Lookup(action string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[action]
	return h, ok
}

// WorkerPool processes queued tasks using a pool of goroutines.
type WorkerPool struct {
	store    *TaskStore
	registry *Registry
	cfg      *TaskConfig
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(store *TaskStore, registry *Registry, cfg *TaskConfig, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultTaskConfig()
	}
	return &WorkerPool{
		store:    store,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run starts the worker pool. It spawns cfg.Concurrency goroutines,
// each polling for tasks. It blocks until the context is cancelled,
// then waits for all workers to finish.
func (wp *WorkerPool) Run(ctx context.Context) {
	if wp.store == nil || !wp.cfg.Enabled {
		wp.logger.Info("task worker pool disabled")
		return
	}

	wp.logger.Info("task worker pool starting",
		"concurrency", wp.cfg.Concurrency,
		"maxRetries", wp.cfg.MaxRetries,
		"pollInterval", wp.cfg.PollInterval.String())

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		wp.cleanupLoop(ctx)
	}()

	for i := 0; i < wp.cfg.Concurrency; i++ {
		wp.wg.Add(1)
		go func(workerID int) {
			defer wp.wg.Done()
			wp.workerLoop(ctx, workerID)
		}(i)
	}

	<-ctx.Done()
	wp.logger.Info("task worker pool shutting down, waiting for workers to finish")
	wp.wg.Wait()
	wp.logger.Info("task worker pool stopped")
}

// workerLoop is the main loop for a single worker goroutine.
func (wp *WorkerPool) workerLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(wp.cfg.PollInterval)
	defer ticker.Stop()

	wp.logger.Debug("worker started", "workerID", workerID)

	for {
		select {
		case <-ctx.Done():
			wp.logger.Debug("worker stopped", "workerID", workerID)
			return
		case <-ticker.C:
			// Drain the queue before waiting for the next tick.
			for ctx.Err() == nil && wp.processOne(ctx, workerID) {
			}
		}
	}
}

// processOne claims and runs a single task. It reports whether a task was
// claimed.
func (wp *WorkerPool) processOne(ctx context.Context, workerID int) bool {
	task, err := wp.store.Claim(ctx, wp.cfg.MaxRetries)
	if err != nil {
		wp.logger.Error("failed to claim task", "workerID", workerID, "error", err)
		return false
	}
	if task == nil {
		return false
	}

	log := wp.logger.With("workerID", workerID, "taskID", task.ID, "action", task.Action)
	log.Info("processing task",
		"resource", task.ResourceType+"/"+task.ResourceID,
		"attempt", task.AttemptCount)

	handler, ok := wp.registry.Lookup(task.Action)
	if !ok {
		errMsg := "no handler registered for action " + task.Action
		log.Error(errMsg)
		if err := wp.store.Fail(ctx, task.ID, errMsg, 0); err != nil {
			log.Error("failed to mark task as failed", "error", err)
		}
		return true
	}

	start := time.Now()
	output, err := runHandler(ctx, handler, task)
	duration := time.Since(start)
	if err != nil {
		maxRetries := wp.cfg.MaxRetries
		if errors.Is(err, ErrPermanent) {
			maxRetries = 0
		}
		log.Error("task failed", "error", err, "duration", duration.String())
		if failErr := wp.store.Fail(ctx, task.ID, err.Error(), maxRetries); failErr != nil {
			log.Error("failed to mark task as failed", "error", failErr)
		}
		return true
	}

	log.Info("task completed", "duration", duration.String())
	if err := wp.store.Complete(ctx, task.ID, output, duration.Milliseconds()); err != nil {
		log.Error("failed to mark task as complete", "error", err)
	}
	return true
}

// runHandler converts a handler panic into a task failure.
func runHandler(ctx context.Context, h Handler, task *Task) (out Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: handler panic: %v", ErrPermanent, r)
		}
	}()
	return h(ctx, task)
}

// cleanupLoop periodically recovers stuck tasks and deletes old finished ones.
func (wp *WorkerPool) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(wp.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wp.cleanup(ctx)
		}
	}
}

func (wp *WorkerPool) cleanup(ctx context.Context) {
	if wp.cfg.ClaimTimeout > 0 {
		recovered, err := wp.store.RecoverStuck(ctx, wp.cfg.ClaimTimeout)
		if err != nil {
			wp.logger.Error("failed to recover stuck tasks", "error", err)
		} else if recovered > 0 {
			wp.logger.Info("recovered stuck tasks", "count", recovered)
		}
	}

	if wp.cfg.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -wp.cfg.RetentionDays)
		deleted, err := wp.store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			wp.logger.Error("failed to delete old tasks", "error", err)
		} else if deleted > 0 {
			wp.logger.Info("deleted old tasks", "count", deleted)
		}
	}
}
