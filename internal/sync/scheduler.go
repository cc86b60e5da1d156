package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mneme-app/mneme/internal/bus"
	"go.uber.org/zap"
)

// Scheduler coalesces bursts of local writes into a single push after a
// quiet period, instead of firing one push per write. It is constructed at
// the composition root and passed down; there is no global instance.
type Scheduler struct {
	engine   *Engine
	bus      *bus.Bus
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	timer   *time.Timer
	running atomic.Bool
	cancel  context.CancelFunc
}

// NewScheduler creates a debounced push scheduler.
func NewScheduler(engine *Engine, b *bus.Bus, debounce time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		engine:   engine,
		bus:      b,
		debounce: debounce,
		logger:   logger,
	}
}

// Start subscribes to local mutation events; every repository write lands
// here and restarts the debounce window.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	ch, unsub := s.bus.Subscribe("local.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case <-ch:
				s.Schedule()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the subscription and any pending push.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
}

// Schedule arms (or re-arms) the debounce timer. Rapid successive calls
// collapse into one push after the quiet period.
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Reset(s.debounce)
		return
	}
	s.timer = time.AfterFunc(s.debounce, s.fire)
}

// FlushNow runs any pending push immediately, without waiting out the
// debounce window.
func (s *Scheduler) FlushNow() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.fire()
}

// IsRunning reports whether a scheduled push is executing right now.
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	s.timer = nil
	s.mu.Unlock()

	s.running.Store(true)
	defer s.running.Store(false)

	// Offline is a normal condition here, not a failure to surface.
	if err := s.engine.Push(context.Background()); err != nil {
		s.logger.Info("scheduled push did not complete", zap.Error(err))
	}
}
