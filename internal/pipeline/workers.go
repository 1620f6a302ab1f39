package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/its-the-vibe/JiraBolt/internal/logger"
	"github.com/its-the-vibe/JiraBolt/internal/telemetry"
)

// Handler runs one event to completion.
type Handler interface {
	Wants(ev ReactionEvent) bool
	Handle(ctx context.Context, ev ReactionEvent) error
}

// Workers runs each accepted event on its own goroutine. With a positive
// limit, Dispatch blocks while that many runs are in flight.
type Workers struct {
	handler  Handler
	reporter telemetry.Reporter

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
	slots  chan struct{}

	mu       sync.RWMutex
	draining atomic.Bool
	inFlight atomic.Int64
}

func NewWorkers(handler Handler, reporter telemetry.Reporter, limit int) *Workers {
	if reporter == nil {
		reporter = telemetry.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Workers{handler: handler, reporter: reporter, ctx: ctx, cancel: cancel}
	if limit > 0 {
		w.slots = make(chan struct{}, limit)
	}
	return w
}

// Dispatch starts a run for ev. It returns false when ev is not a trigger
// or the pool is draining.
func (w *Workers) Dispatch(ev ReactionEvent) bool {
	if !w.handler.Wants(ev) {
		return false
	}

	// Wait for a slot outside the lock so a full pool cannot hold up
	// Shutdown; its deadline cancels w.ctx and releases waiters.
	if w.slots != nil {
		select {
		case w.slots <- struct{}{}:
		case <-w.ctx.Done():
			logger.Warn("Dropping %s: shutting down", ev)
			return false
		}
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.draining.Load() {
		w.release()
		logger.Warn("Dropping %s: shutting down", ev)
		return false
	}

	w.group.Go(func() error {
		w.inFlight.Add(1)
		defer w.inFlight.Add(-1)
		defer w.release()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic while handling %s: %v", ev, r)
				w.reporter.CapturePanic(r, map[string]string{"channel": ev.Channel})
			}
		}()
		// Runs report their own failures; one failing run must not stop the others.
		_ = w.handler.Handle(w.ctx, ev)
		return nil
	})
	return true
}

func (w *Workers) release() {
	if w.slots != nil {
		<-w.slots
	}
}

// InFlight is the number of runs currently executing.
func (w *Workers) InFlight() int64 {
	return w.inFlight.Load()
}

// Draining reports whether Shutdown has been called.
func (w *Workers) Draining() bool {
	return w.draining.Load()
}

// Shutdown stops accepting events and waits for in-flight runs. When ctx
// expires first, the runs' context is cancelled and ctx's error returned.
func (w *Workers) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	w.draining.Store(true)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = w.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		return fmt.Errorf("%d runs still in flight: %w", w.InFlight(), ctx.Err())
	}
}
