package services

import (
	"log/slog"
	"sync"
	"time"
)

// ShutdownCoordinator tracks in-flight run IDs and rejects new work once a
// drain has begun. One instance per process; state is never shared across
// instances.
type ShutdownCoordinator struct {
	mu       sync.Mutex
	draining bool
	inFlight map[string]time.Time
	drained  chan struct{}
}

func NewShutdownCoordinator() *ShutdownCoordinator {
	return &ShutdownCoordinator{
		inFlight: make(map[string]time.Time),
		drained:  make(chan struct{}),
	}
}

// TrackStart records an in-flight run. It returns false when a drain has
// begun, in which case the caller must reject the invocation.
func (s *ShutdownCoordinator) TrackStart(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draining {
		slog.Info("rejecting invocation during drain", "run", runID)
		return false
	}
	s.inFlight[runID] = time.Now()
	return true
}

// TrackEnd removes a run from the in-flight set. If a drain is in progress
// and the set becomes empty, drain completion is signaled.
func (s *ShutdownCoordinator) TrackEnd(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inFlight[runID]; !ok {
		return
	}
	delete(s.inFlight, runID)

	if s.draining && len(s.inFlight) == 0 {
		close(s.drained)
	}
}

// Draining reports whether a drain has begun.
func (s *ShutdownCoordinator) Draining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draining
}

// InFlight returns the number of runs currently executing.
func (s *ShutdownCoordinator) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// InitiateDrain stops admission of new runs and blocks until every
// in-flight run ends or timeout elapses, whichever comes first. On timeout
// the remaining runs stay tracked and their count is logged. Calling
// InitiateDrain again once draining is a no-op.
func (s *ShutdownCoordinator) InitiateDrain(timeout time.Duration) {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	remaining := len(s.inFlight)
	if remaining == 0 {
		close(s.drained)
		s.mu.Unlock()
		slog.Info("drain complete, no in-flight runs")
		return
	}
	s.mu.Unlock()

	slog.Info("drain initiated", "in_flight", remaining)

	select {
	case <-s.drained:
		slog.Info("drain complete, all runs finished")
	case <-time.After(timeout):
		s.mu.Lock()
		left := len(s.inFlight)
		s.mu.Unlock()
		slog.Warn("drain timeout exceeded", "timeout", timeout, "in_flight", left)
	}
}
