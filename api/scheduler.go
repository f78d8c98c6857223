/*
scheduler.go - Background event scheduler

PURPOSE:
  Periodically runs every scheduled product event that has come due
  (interest accrual, due amount calculation, overdue checks, maturity).

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick asks the runner for all schedules due at the current time
  - Missed runs (server down over a weekend) catch up on the next tick,
    oldest first, each at its own scheduled time
  - A failing account is skipped for the rest of the tick and retried on
    the next one; other accounts carry on

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewEventScheduler(runner, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunSchedules endpoint (manual trigger)
  - host/runner.go: RunDueSchedules
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/product-engine/host"
)

// EventScheduler runs due product events on a ticker.
type EventScheduler struct {
	Runner        *host.Runner
	CheckInterval time.Duration
	Enabled       bool
	Now           func() time.Time

	logger *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastRun time.Time
}

// NewEventScheduler creates a new scheduler.
func NewEventScheduler(runner *host.Runner, logger *zap.Logger) *EventScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventScheduler{
		Runner:        runner,
		CheckInterval: time.Minute,
		Enabled:       true,
		Now:           time.Now,
		logger:        logger.With(zap.String("component", "scheduler")),
	}
}

// Start begins the scheduler.
func (es *EventScheduler) Start() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.Enabled {
		es.logger.Info("disabled, not starting")
		return
	}
	if es.ticker != nil {
		return
	}

	es.ticker = time.NewTicker(es.CheckInterval)
	es.stop = make(chan struct{})
	es.wg.Add(1)

	go es.run(es.ticker, es.stop)

	es.logger.Info("started", zap.Duration("interval", es.CheckInterval))
}

// Stop stops the scheduler and waits for a tick in progress.
func (es *EventScheduler) Stop() {
	es.mu.Lock()
	ticker, stop := es.ticker, es.stop
	es.ticker = nil
	es.mu.Unlock()

	if ticker == nil {
		return
	}
	ticker.Stop()
	close(stop)
	// the tick in progress takes es.mu, so wait outside it
	es.wg.Wait()
	es.logger.Info("stopped")
}

func (es *EventScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer es.wg.Done()

	// Run immediately on start
	es.checkAndProcess()

	for {
		select {
		case <-ticker.C:
			es.checkAndProcess()
		case <-stop:
			return
		}
	}
}

func (es *EventScheduler) checkAndProcess() int {
	now := es.Now()
	start := time.Now()

	ran, err := es.Runner.RunDueSchedules(context.Background(), now)
	if err != nil {
		es.logger.Error("due schedules failed", zap.Time("now", now), zap.Int("ran", ran), zap.Error(err))
	} else if ran > 0 {
		es.logger.Info("due schedules run", zap.Time("now", now), zap.Int("ran", ran), zap.Duration("took", time.Since(start)))
	}

	es.mu.Lock()
	es.lastRun = now
	es.mu.Unlock()
	return ran
}

// RunNow triggers an immediate check and reports how many events ran.
func (es *EventScheduler) RunNow() int {
	return es.checkAndProcess()
}

// LastRun is the clock time of the most recent check.
func (es *EventScheduler) LastRun() time.Time {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.lastRun
}

// GetNextRunTime returns when the next scheduled check will occur.
func (es *EventScheduler) GetNextRunTime() time.Time {
	return es.LastRun().Add(es.CheckInterval)
}
