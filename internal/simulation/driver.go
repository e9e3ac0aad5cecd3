package simulation

import (
	"context"
	"fmt"
	"time"
)

type driver struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Run ticks the engine once per interval until ctx is cancelled. Cancellation
// only stops future ticks; a tick in progress always completes. Run returns
// ctx.Err() on cancellation.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive, got %v", ErrInvalidParameter, interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Debug("driver started", "interval", interval)
	defer e.logger.Debug("driver stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.Tick(1); err != nil {
				return err
			}
		}
	}
}

// Start launches Run in a background goroutine. Starting a running engine is
// a no-op that returns false.
func (e *Engine) Start(interval time.Duration) bool {
	if interval <= 0 {
		return false
	}

	e.driverMu.Lock()
	if e.driver != nil {
		e.driverMu.Unlock()
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &driver{cancel: cancel, done: make(chan struct{})}
	e.driver = d
	go func() {
		defer close(d.done)
		_ = e.Run(ctx, interval)
	}()
	e.driverMu.Unlock()

	e.metrics.setRunning(true)
	e.notify(Event{Kind: EventParams, Tick: e.currentTick()})
	return true
}

// Stop halts the background driver and waits for it to exit, which takes at
// most one in-flight tick. It returns false if no driver was running.
func (e *Engine) Stop() bool {
	e.driverMu.Lock()
	d := e.driver
	e.driver = nil
	e.driverMu.Unlock()

	if d == nil {
		return false
	}
	d.cancel()
	<-d.done

	e.metrics.setRunning(false)
	e.notify(Event{Kind: EventParams, Tick: e.currentTick()})
	return true
}

// Running reports whether the background driver is active.
func (e *Engine) Running() bool {
	e.driverMu.Lock()
	defer e.driverMu.Unlock()
	return e.driver != nil
}

func (e *Engine) currentTick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}
