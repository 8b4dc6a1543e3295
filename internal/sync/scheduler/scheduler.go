// Package scheduler decides when sync cycles run: on reconnect, periodically,
// or on demand. It guarantees at most one cycle is in flight at a time.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/vendly/vendly-pos/backend/internal/logging"
	syncpkg "github.com/vendly/vendly-pos/backend/internal/sync"
)

// Cause identifies what requested a sync cycle.
type Cause string

const (
	CauseReconnect Cause = "reconnect"
	CausePeriodic  Cause = "periodic"
	CauseManual    Cause = "manual"
)

// State is the scheduler's position in its Idle/Syncing/Backoff machine.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateBackoff State = "backoff"
)

// backoffBase is the first whole-cycle-failure delay; it doubles per
// consecutive failure up to the configured ceiling.
const backoffBase = time.Second

// Config holds scheduler configuration.
type Config struct {
	PeriodicInterval time.Duration // background sync cadence
	ReconnectDelay   time.Duration // settle time before syncing after reconnect
	BackoffCeiling   time.Duration // upper bound for failure backoff
	AutoSync         bool          // sync on reconnect
	PeriodicSync     bool          // run the background ticker
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		PeriodicInterval: 30 * time.Second,
		ReconnectDelay:   2 * time.Second,
		BackoffCeiling:   5 * time.Minute,
		AutoSync:         true,
		PeriodicSync:     true,
	}
}

// Scheduler serializes sync cycles. All triggers funnel through Trigger;
// a trigger landing while a cycle is in flight is coalesced and serviced by
// a fresh cycle immediately after the current one completes, never dropped.
type Scheduler struct {
	engine syncpkg.EngineInterface
	config *Config

	mu       sync.Mutex
	state    State
	online   bool
	running  bool
	pending  bool // coalesced trigger waiting for the current cycle
	failures int  // consecutive whole-cycle failures
	lastSync time.Time

	triggerCh chan Cause
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(engine syncpkg.EngineInterface, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}

	return &Scheduler{
		engine:    engine,
		config:    config,
		state:     StateIdle,
		online:    true, // assume online until told otherwise
		triggerCh: make(chan Cause, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start starts the scheduler's run loop and, when enabled, the periodic
// ticker.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	if s.config.PeriodicSync {
		s.wg.Add(1)
		go s.periodicLoop(ctx)
	}

	logging.Info("Sync scheduler started",
		map[string]interface{}{
			"periodic_interval": s.config.PeriodicInterval.String(),
			"periodic_enabled":  s.config.PeriodicSync,
			"auto_sync":         s.config.AutoSync,
		})
}

// Stop stops the scheduler gracefully, waiting for an in-flight cycle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Sync scheduler stopped", nil)
}

// Trigger requests a sync cycle. Returns true if a cycle was started, false
// if the trigger was coalesced, suppressed by a toggle, or the terminal is
// offline. During Backoff only a manual trigger starts a cycle early.
func (s *Scheduler) Trigger(cause Cause) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || !s.online {
		return false
	}

	switch cause {
	case CauseReconnect:
		if !s.config.AutoSync {
			return false
		}
	case CausePeriodic:
		if !s.config.PeriodicSync {
			return false
		}
	}

	switch s.state {
	case StateSyncing:
		s.pending = true
		return false
	case StateBackoff:
		if cause != CauseManual {
			return false
		}
	}

	select {
	case s.triggerCh <- cause:
		return true
	default:
		s.pending = true
		return false
	}
}

// SetOnline records connectivity. The offline→online transition fires a
// reconnect trigger (after the configured settle delay).
func (s *Scheduler) SetOnline(online bool) {
	s.mu.Lock()
	wasOnline := s.online
	s.online = online
	s.mu.Unlock()

	if wasOnline != online {
		logging.Info("Connectivity changed",
			map[string]interface{}{"online": online})
	}

	if !wasOnline && online {
		s.Trigger(CauseReconnect)
	}
}

// IsOnline reports the recorded connectivity.
func (s *Scheduler) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// CurrentState returns the scheduler state.
func (s *Scheduler) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status is a snapshot of the scheduler for operator tooling.
type Status struct {
	State               State      `json:"state"`
	Online              bool       `json:"online"`
	Running             bool       `json:"running"`
	LastSyncTime        *time.Time `json:"last_sync_time,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	CoalescedPending    bool       `json:"coalesced_pending"`
}

// GetStatus returns the current scheduler status.
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		State:               s.state,
		Online:              s.online,
		Running:             s.running,
		ConsecutiveFailures: s.failures,
		CoalescedPending:    s.pending,
	}
	if !s.lastSync.IsZero() {
		t := s.lastSync
		status.LastSyncTime = &t
	}
	return status
}

// SyncNow triggers an immediate cycle and reports whether one was started.
func (s *Scheduler) SyncNow() bool {
	return s.Trigger(CauseManual)
}

// periodicLoop fires periodic triggers at the configured cadence.
func (s *Scheduler) periodicLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PeriodicInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Trigger(CausePeriodic)
		}
	}
}

// run owns cycle execution; being the only goroutine that calls the engine
// is what makes the single-flight guarantee hold.
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case cause := <-s.triggerCh:
			if cause == CauseReconnect {
				if !s.wait(ctx, s.config.ReconnectDelay) {
					return
				}
			}
			if !s.runCycles(ctx) {
				return
			}
		}
	}
}

// runCycles runs one cycle plus any coalesced follow-ups. Returns false when
// the scheduler is shutting down.
func (s *Scheduler) runCycles(ctx context.Context) bool {
	for {
		s.setState(StateSyncing)

		result, err := s.engine.Sync(ctx)

		if err != nil && (result == nil || !result.Progress()) {
			// The attempt as a whole failed with nothing to show for it.
			s.mu.Lock()
			s.failures++
			failures := s.failures
			delay := backoffDelay(failures, s.config.BackoffCeiling)
			s.state = StateBackoff
			s.mu.Unlock()

			logging.Warn("Sync cycle failed, backing off",
				map[string]interface{}{
					"consecutive_failures": failures,
					"backoff":              delay.String(),
				})

			rerun, stopped := s.backoffWait(ctx, delay)
			if stopped {
				return false
			}
			if rerun {
				// Manual sync-now broke the backoff window.
				continue
			}
		} else {
			s.mu.Lock()
			s.failures = 0
			if err == nil {
				s.lastSync = time.Now()
			}
			s.mu.Unlock()
		}

		s.mu.Lock()
		again := s.pending
		s.pending = false
		s.state = StateIdle
		s.mu.Unlock()

		if !again {
			return true
		}
	}
}

// backoffWait sleeps out the backoff window. A manual trigger cuts it short
// (rerun=true); shutdown reports stopped=true.
func (s *Scheduler) backoffWait(ctx context.Context, delay time.Duration) (rerun, stopped bool) {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false, true
	case <-s.stopCh:
		return false, true
	case <-timer.C:
		return false, false
	case <-s.triggerCh:
		return true, false
	}
}

// wait sleeps for d unless the scheduler shuts down first.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-s.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// backoffDelay doubles per consecutive failure, capped at the ceiling.
func backoffDelay(failures int, ceiling time.Duration) time.Duration {
	if failures < 1 {
		failures = 1
	}
	delay := backoffBase << uint(failures-1)
	if delay <= 0 || delay > ceiling {
		return ceiling
	}
	return delay
}
