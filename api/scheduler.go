/*
scheduler.go - Background accrual scheduler

PURPOSE:
  Drives the accrual engine on a fixed ticker so returns keep accruing
  without any admin action. The manual trigger-roi endpoint shares the
  same engine; the per-record interval gate and compare-and-set make the
  two safe to overlap.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs one pass immediately on start
  - Pass results are logged, never acted on; retry is the next tick

USAGE:
  scheduler := NewAccrualScheduler(engine)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - invest/accrual.go: RunPass semantics
  - handlers.go: TriggerAccrual endpoint (manual pass)
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/vantage/invest-engine/invest"
)

// AccrualScheduler runs accrual passes on a fixed cadence.
type AccrualScheduler struct {
	Engine        *invest.AccrualEngine
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAccrualScheduler creates a scheduler ticking at the engine's gate
// interval. Ticking faster would only produce gated-out passes.
func NewAccrualScheduler(engine *invest.AccrualEngine) *AccrualScheduler {
	return &AccrualScheduler{
		Engine:        engine,
		CheckInterval: engine.Interval,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (s *AccrualScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run()

	log.Printf("[Scheduler] Started with check interval: %v", s.CheckInterval)
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (s *AccrualScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (s *AccrualScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.runPass()

	for {
		select {
		case <-s.ticker.C:
			s.runPass()
		case <-s.stop:
			return
		}
	}
}

func (s *AccrualScheduler) runPass() {
	ctx := context.Background()
	now := time.Now().UTC()

	result, err := s.Engine.RunPass(ctx, now)
	if err != nil {
		log.Printf("[Scheduler] Pass aborted: %v", err)
		return
	}

	if result.Processed > 0 || len(result.Failures) > 0 {
		log.Printf("[Scheduler] Completed: %d processed, %d skipped, %d failed",
			result.Processed, result.Skipped, len(result.Failures))
	}
	for _, f := range result.Failures {
		log.Printf("[Scheduler] %v", f)
	}
}

// RunNow triggers an immediate pass (for testing/admin).
func (s *AccrualScheduler) RunNow() {
	s.runPass()
}
