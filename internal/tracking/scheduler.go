// Package tracking drives the client heartbeat cadence. One goroutine owns
// the timer and mode state; visibility transitions cancel the inactive
// cadence and fire an immediate tick so no gap exceeds one interval.
package tracking

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/presence-api/internal/models"
)

// Mode mirrors the client visibility signal.
type Mode string

const (
	ModeForeground Mode = "foreground"
	ModeBackground Mode = "background"
	ModeHidden     Mode = "hidden"
)

// Sender ships one heartbeat. Delivery failures are not retried; the next
// scheduled tick naturally resubmits the current position.
type Sender interface {
	Send(ctx context.Context, pos models.FusedPosition, background bool) error
}

// Source supplies the latest fused position.
type Source interface {
	Current() models.FusedPosition
}

// WakeLock keeps the device screen awake while tracking. Acquisition is
// best-effort; failure is non-fatal.
type WakeLock interface {
	Acquire() error
	Release()
}

// Config sets the two cadences.
type Config struct {
	ForegroundInterval time.Duration
	BackgroundInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.ForegroundInterval <= 0 {
		c.ForegroundInterval = 30 * time.Second
	}
	if c.BackgroundInterval <= 0 {
		c.BackgroundInterval = 60 * time.Second
	}
	return c
}

// Scheduler periodically ships the fused position as a heartbeat.
type Scheduler struct {
	cfg    Config
	sender Sender
	source Source
	wake   WakeLock
	logger *zap.Logger

	mu       sync.Mutex
	running  bool
	wakeHeld bool
	cmds     chan Mode
	quit     chan struct{}
	done     chan struct{}
}

// NewScheduler builds a scheduler; wake may be nil.
func NewScheduler(cfg Config, sender Sender, source Source, wake WakeLock, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{cfg: cfg.withDefaults(), sender: sender, source: source, wake: wake, logger: logger}
}

// Start begins ticking in the given mode with one immediate heartbeat.
func (s *Scheduler) Start(ctx context.Context, mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cmds = make(chan Mode)
	s.quit = make(chan struct{})
	s.done = make(chan struct{})

	if s.wake != nil {
		if err := s.wake.Acquire(); err != nil {
			s.logger.Warn("wake lock unavailable, tracking continues", zap.Error(err))
		} else {
			s.wakeHeld = true
		}
	}

	go s.loop(ctx, mode, s.cmds, s.quit, s.done)
}

// SetMode switches cadence. The inactive timer is cancelled and one tick
// fires immediately. No-op when stopped or after the Start context ended.
func (s *Scheduler) SetMode(mode Mode) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cmds, quit, done := s.cmds, s.quit, s.done
	s.mu.Unlock()

	// done unblocks the send when the loop already exited on context
	// cancellation rather than through Stop.
	select {
	case cmds <- mode:
	case <-quit:
	case <-done:
	}
}

// Stop cancels the cadence timer deterministically: when it returns the
// loop has exited and no further heartbeat will be sent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	quit, done := s.quit, s.done
	held := s.wakeHeld
	s.wakeHeld = false
	s.mu.Unlock()

	close(quit)
	<-done
	if held {
		s.wake.Release()
	}
}

func (s *Scheduler) loop(ctx context.Context, mode Mode, cmds <-chan Mode, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	s.tick(ctx, mode)
	timer := time.NewTimer(s.interval(mode))
	defer timer.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ctx.Done():
			return
		case next := <-cmds:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			mode = next
			s.tick(ctx, mode)
			timer.Reset(s.interval(mode))
		case <-timer.C:
			s.tick(ctx, mode)
			timer.Reset(s.interval(mode))
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, mode Mode) {
	pos := s.source.Current()
	if err := s.sender.Send(ctx, pos, mode != ModeForeground); err != nil {
		s.logger.Warn("heartbeat delivery failed, next tick will resubmit", zap.Error(err))
	}
}

func (s *Scheduler) interval(mode Mode) time.Duration {
	if mode == ModeForeground {
		return s.cfg.ForegroundInterval
	}
	// Hidden pages keep reporting at the background cadence.
	return s.cfg.BackgroundInterval
}
