package runner

import "sync"

// DefaultMaxIterations caps the loop when the config provides no limit
const DefaultMaxIterations = 50

// LoopState describes where a loop session is in its lifecycle
type LoopState string

const (
	StateIdle               LoopState = "idle"
	StateActive             LoopState = "active"
	StateCompleted          LoopState = "completed"
	StateCancelled          LoopState = "cancelled"
	StateIterationExhausted LoopState = "iteration_exhausted"
)

// LoopSession tracks the iteration state of one agentic run. All
// methods are safe for concurrent use; the websocket handler reads
// state while the loop goroutine advances it.
type LoopSession struct {
	mu               sync.Mutex
	maxIterations    int
	currentIteration int
	active           bool
	taskCompleted    bool
	cancelled        bool
}

// NewLoopSession creates a session capped at maxIterations. Zero or
// negative values fall back to DefaultMaxIterations.
func NewLoopSession(maxIterations int) *LoopSession {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &LoopSession{maxIterations: maxIterations}
}

// Start activates the session
func (s *LoopSession) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
}

// ShouldContinue reports whether another iteration may run
func (s *LoopSession) ShouldContinue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && !s.taskCompleted && s.currentIteration < s.maxIterations
}

// NextIteration advances the counter and returns the new iteration
// number (1-based).
func (s *LoopSession) NextIteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentIteration++
	return s.currentIteration
}

// CurrentIteration returns the number of iterations started so far
func (s *LoopSession) CurrentIteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentIteration
}

// MaxIterations returns the iteration cap
func (s *LoopSession) MaxIterations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxIterations
}

// MarkTaskCompleted records successful completion and deactivates the
// session in the same step, so no further iteration can start between
// the two writes.
func (s *LoopSession) MarkTaskCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskCompleted = true
	s.active = false
}

// Cancel deactivates the session. Safe to call repeatedly and from any
// goroutine.
func (s *LoopSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.cancelled = true
		s.active = false
	}
}

// Stop deactivates the session without marking completion or
// cancellation (used on error exits).
func (s *LoopSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

// State reports the session lifecycle state
func (s *LoopSession) State() LoopState {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.taskCompleted:
		return StateCompleted
	case s.cancelled:
		return StateCancelled
	case s.active:
		return StateActive
	case s.currentIteration >= s.maxIterations:
		return StateIterationExhausted
	default:
		return StateIdle
	}
}
