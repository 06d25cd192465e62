package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultTaskTimeout = 30 * time.Second

// Tasks runs side effects detached from the request that spawned them.
// History recording and webhook triggering ride on it so a slow broker or
// database never delays the API response, and a panic in a side effect never
// takes down the request handler.
type Tasks struct {
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func NewTasks(timeout time.Duration, logger *zap.Logger) *Tasks {
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Tasks{
		logger:  logger,
		timeout: timeout,
	}
}

// Go runs fn on its own goroutine with a fresh context. Errors and panics
// are logged, never returned; the caller has already moved on.
func (t *Tasks) Go(name string, fn func(ctx context.Context) error) {
	if t == nil || fn == nil {
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.logger.Warn("background task rejected after shutdown", zap.String("task", name))
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				t.logger.Error("background task panicked",
					zap.String("task", name),
					zap.Any("panic", rec),
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			t.logger.Error("background task failed",
				zap.String("task", name),
				zap.Error(err),
			)
		}
	}()
}

// Shutdown stops accepting tasks and waits for in-flight ones, bounded by ctx.
func (t *Tasks) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background tasks did not drain: %w", ctx.Err())
	}
}
