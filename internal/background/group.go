// Package background runs fire-and-forget tasks that must still finish before the process exits.
package background

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/realtime-post-scraper/internal/metrics"
)

// ErrClosed is returned by Go after Wait has started.
var ErrClosed = errors.New("background group closed")

// Group tracks in-flight tasks. At most maxParallel run at once; the rest wait for a slot.
type Group struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	logger *zap.Logger
}

// New creates a Group. maxParallel <= 0 means 4.
func New(maxParallel int, logger *zap.Logger) *Group {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Group{sem: semaphore.NewWeighted(int64(maxParallel)), logger: logger}
}

// Go schedules fn and returns immediately. The task outlives ctx's cancellation; ctx only carries values.
func (g *Group) Go(ctx context.Context, name string, fn func(ctx context.Context)) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return ErrClosed
	}
	g.wg.Add(1)
	metrics.IncBackgroundTasks()

	taskCtx := context.WithoutCancel(ctx)
	go func() {
		defer g.wg.Done()
		defer metrics.DecBackgroundTasks()
		if err := g.sem.Acquire(taskCtx, 1); err != nil {
			g.logger.Error("acquire background slot", zap.String("task", name), zap.Error(err))
			return
		}
		defer g.sem.Release(1)
		defer func() {
			if rec := recover(); rec != nil {
				g.logger.Error("background task panicked", zap.String("task", name), zap.String("panic", fmt.Sprint(rec)))
			}
		}()
		fn(taskCtx)
	}()
	return nil
}

// Wait stops accepting tasks and blocks until every scheduled task returns or ctx ends.
func (g *Group) Wait(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for background tasks: %w", ctx.Err())
	}
}
