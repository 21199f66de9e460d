package services

import (
	"sync"
	"testing"
	"time"
)

func TestShutdown_TracksInFlight(t *testing.T) {
	s := NewShutdownCoordinator()

	if !s.TrackStart("run-1") {
		t.Fatal("TrackStart rejected before drain")
	}
	if !s.TrackStart("run-2") {
		t.Fatal("TrackStart rejected before drain")
	}
	if got := s.InFlight(); got != 2 {
		t.Errorf("InFlight() = %d, want 2", got)
	}

	s.TrackEnd("run-1")
	if got := s.InFlight(); got != 1 {
		t.Errorf("InFlight() = %d, want 1", got)
	}

	// Ending an untracked run is a no-op.
	s.TrackEnd("never-started")
	if got := s.InFlight(); got != 1 {
		t.Errorf("InFlight() = %d, want 1", got)
	}
}

func TestShutdown_RejectsNewWorkWhileDraining(t *testing.T) {
	s := NewShutdownCoordinator()
	s.InitiateDrain(time.Millisecond)

	if !s.Draining() {
		t.Fatal("Draining() = false after InitiateDrain")
	}
	if s.TrackStart("run-1") {
		t.Error("TrackStart accepted during drain")
	}
}

func TestShutdown_DrainWaitsForInFlight(t *testing.T) {
	s := NewShutdownCoordinator()
	s.TrackStart("run-1")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		s.TrackEnd("run-1")
	}()

	start := time.Now()
	s.InitiateDrain(5 * time.Second)
	elapsed := time.Since(start)

	wg.Wait()
	if elapsed >= 5*time.Second {
		t.Error("drain waited for the full timeout despite run finishing")
	}
	if got := s.InFlight(); got != 0 {
		t.Errorf("InFlight() after drain = %d, want 0", got)
	}
}

func TestShutdown_DrainTimesOut(t *testing.T) {
	s := NewShutdownCoordinator()
	s.TrackStart("stuck-run")

	start := time.Now()
	s.InitiateDrain(30 * time.Millisecond)
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("drain returned after %s, want at least the timeout", elapsed)
	}
	if got := s.InFlight(); got != 1 {
		t.Errorf("InFlight() = %d, stuck run should stay tracked", got)
	}
}

func TestShutdown_SecondDrainIsNoOp(t *testing.T) {
	s := NewShutdownCoordinator()
	s.InitiateDrain(time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.InitiateDrain(time.Hour)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second InitiateDrain blocked")
	}
}
