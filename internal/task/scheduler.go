// Package task owns the repeating refresh cadences of the console. A refresh
// runs on its scheduler's own goroutine, so a slow fetch simply absorbs the
// ticks that fire while it is in flight; the last completed refresh wins.
package task

import (
	"context"
	"sync"
	"time"
)

const defaultRefreshInterval = time.Minute

// RefreshFunc is one refresh pass executed on every cadence tick.
type RefreshFunc func(context.Context)

// Scheduler drives one refresh cadence. It is started at most once and can be
// stopped for clean shutdown in tests.
type Scheduler struct {
	interval     time.Duration
	refresh      RefreshFunc
	trigger      chan struct{}
	controlMutex sync.Mutex
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewScheduler creates a Scheduler running refresh every interval.
func NewScheduler(interval time.Duration, refresh RefreshFunc) *Scheduler {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	return &Scheduler{
		interval: interval,
		refresh:  refresh,
		trigger:  make(chan struct{}, 1),
	}
}

// Start launches the cadence loop. Starting an already running scheduler is a
// no-op.
func (scheduler *Scheduler) Start(ctx context.Context) {
	if scheduler == nil || scheduler.refresh == nil {
		return
	}
	scheduler.controlMutex.Lock()
	if scheduler.cancel != nil {
		scheduler.controlMutex.Unlock()
		return
	}
	runtimeCtx, cancel := context.WithCancel(ctx)
	scheduler.cancel = cancel
	done := make(chan struct{})
	scheduler.done = done
	scheduler.controlMutex.Unlock()

	go scheduler.loop(runtimeCtx, done)
}

// Trigger requests an immediate refresh ahead of the next tick. Pending
// triggers coalesce into one.
func (scheduler *Scheduler) Trigger() {
	if scheduler == nil {
		return
	}
	select {
	case scheduler.trigger <- struct{}{}:
	default:
	}
}

// Stop halts the cadence loop and waits for an in-flight refresh to return.
func (scheduler *Scheduler) Stop() {
	if scheduler == nil {
		return
	}
	scheduler.controlMutex.Lock()
	cancel := scheduler.cancel
	done := scheduler.done
	scheduler.cancel = nil
	scheduler.done = nil
	scheduler.controlMutex.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (scheduler *Scheduler) loop(ctx context.Context, done chan struct{}) {
	timer := time.NewTimer(scheduler.interval)
	defer func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}()
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-scheduler.trigger:
			scheduler.refresh(ctx)
		case <-timer.C:
			scheduler.refresh(ctx)
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(scheduler.interval)
	}
}
