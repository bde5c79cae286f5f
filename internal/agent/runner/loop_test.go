package runner

import "testing"

func TestNewLoopSessionDefaults(t *testing.T) {
	if got := NewLoopSession(0).MaxIterations(); got != DefaultMaxIterations {
		t.Errorf("zero cap should default to %d, got %d", DefaultMaxIterations, got)
	}
	if got := NewLoopSession(-5).MaxIterations(); got != DefaultMaxIterations {
		t.Errorf("negative cap should default to %d, got %d", DefaultMaxIterations, got)
	}
	if got := NewLoopSession(7).MaxIterations(); got != 7 {
		t.Errorf("explicit cap lost: got %d", got)
	}
}

func TestLoopSessionLifecycle(t *testing.T) {
	s := NewLoopSession(3)

	if s.State() != StateIdle {
		t.Errorf("fresh session state = %s, want idle", s.State())
	}
	if s.ShouldContinue() {
		t.Error("idle session must not continue")
	}

	s.Start()
	if s.State() != StateActive {
		t.Errorf("started session state = %s, want active", s.State())
	}

	for i := 1; i <= 3; i++ {
		if !s.ShouldContinue() {
			t.Fatalf("iteration %d blocked before cap", i)
		}
		if got := s.NextIteration(); got != i {
			t.Errorf("NextIteration = %d, want %d", got, i)
		}
	}

	if s.ShouldContinue() {
		t.Error("session must stop at the iteration cap")
	}
	s.Stop()
	if s.State() != StateIterationExhausted {
		t.Errorf("state = %s, want iteration_exhausted", s.State())
	}
}

func TestLoopSessionTaskCompleted(t *testing.T) {
	s := NewLoopSession(10)
	s.Start()
	s.NextIteration()

	s.MarkTaskCompleted()
	if s.ShouldContinue() {
		t.Error("completed session must not continue")
	}
	if s.State() != StateCompleted {
		t.Errorf("state = %s, want completed", s.State())
	}
}

func TestLoopSessionCancel(t *testing.T) {
	s := NewLoopSession(10)
	s.Start()

	s.Cancel()
	if s.ShouldContinue() {
		t.Error("cancelled session must not continue")
	}
	if s.State() != StateCancelled {
		t.Errorf("state = %s, want cancelled", s.State())
	}

	// Repeated cancels keep the same state
	s.Cancel()
	if s.State() != StateCancelled {
		t.Errorf("state after second cancel = %s, want cancelled", s.State())
	}
}

func TestLoopSessionCancelBeforeStart(t *testing.T) {
	s := NewLoopSession(10)
	s.Cancel()
	if s.State() != StateIdle {
		t.Errorf("cancel on an idle session should be a no-op, state = %s", s.State())
	}
}

func TestLoopSessionCompletedBeatsCancelled(t *testing.T) {
	s := NewLoopSession(10)
	s.Start()
	s.Cancel()
	s.MarkTaskCompleted()
	if s.State() != StateCompleted {
		t.Errorf("state = %s, want completed to win", s.State())
	}
}
