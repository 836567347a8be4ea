package arming

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/safeher/safeher-backend/internal/models"
)

type Phase string

const (
	PhaseAcquiringLocation Phase = "acquiring_location"
	PhaseCountingDown      Phase = "counting_down"
	PhaseCancelled         Phase = "cancelled"
	PhaseDispatched        Phase = "dispatched"
)

// LocationResolver settles to a (possibly empty) location before the
// countdown starts.
type LocationResolver interface {
	Resolve(ctx context.Context) models.LocationResult
}

// DispatchFunc sends the armed alert to the server. Called at most once
// per session.
type DispatchFunc func(ctx context.Context, loc models.LocationResult) error

// Session is one SOS trigger: acquire location, count down, then either
// dispatch on zero or discard everything on cancel. All state is
// transient; a cancelled session leaves no trace.
type Session struct {
	resolver LocationResolver
	dispatch DispatchFunc
	tick     time.Duration

	mu        sync.Mutex
	phase     Phase
	remaining int
	err       error

	cancelled chan struct{}
	stop      context.CancelFunc
	wg        sync.WaitGroup
}

// NewSession prepares a session counting down from seconds. tick is the
// countdown interval; production uses one second, tests shrink it.
func NewSession(resolver LocationResolver, dispatch DispatchFunc, seconds int, tick time.Duration) *Session {
	return &Session{
		resolver:  resolver,
		dispatch:  dispatch,
		tick:      tick,
		phase:     PhaseAcquiringLocation,
		remaining: seconds,
		cancelled: make(chan struct{}),
	}
}

// Start runs the session in its own goroutine. Use Wait to join.
func (s *Session) Start(ctx context.Context) {
	ctx, s.stop = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Session) run(ctx context.Context) {
	defer s.wg.Done()
	defer s.stop()

	// The countdown starts only once location settles. A slow fix delays
	// arming, never the cancel option: Cancel aborts the resolver's
	// context too.
	loc := s.resolver.Resolve(ctx)

	s.mu.Lock()
	if s.phase != PhaseAcquiringLocation {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseCountingDown
	s.mu.Unlock()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.cancelled:
			return
		case <-ctx.Done():
			s.mu.Lock()
			if s.phase == PhaseCountingDown {
				s.phase = PhaseCancelled
			}
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.mu.Lock()
			// A tick racing a cancel loses: the transition is decided
			// under the lock, never by timer delivery order.
			if s.phase != PhaseCountingDown {
				s.mu.Unlock()
				return
			}
			s.remaining--
			if s.remaining > 0 {
				s.mu.Unlock()
				continue
			}
			s.phase = PhaseDispatched
			s.mu.Unlock()

			if err := s.dispatch(ctx, loc); err != nil {
				slog.Error("alert dispatch failed", "error", err)
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
			return
		}
	}
}

// Cancel aborts the session before dispatch. Returns false when the
// session already reached a terminal phase. The transition is
// synchronous: once Cancel returns true, no dispatch will happen and no
// further tick is observed.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	if s.phase == PhaseCancelled || s.phase == PhaseDispatched {
		s.mu.Unlock()
		return false
	}
	s.phase = PhaseCancelled
	close(s.cancelled)
	s.mu.Unlock()

	if s.stop != nil {
		s.stop()
	}
	return true
}

// Wait blocks until the session goroutine exits.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Err reports the dispatch error, if the session dispatched and the
// server call failed. The session stays in PhaseDispatched either way;
// a failed dispatch never re-arms the countdown.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
