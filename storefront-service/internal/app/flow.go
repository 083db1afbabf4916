package app

import (
	"sync"

	"github.com/multimart/marketplace/internal/domain"
)

// Phase is where a user-initiated request currently stands.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// FlowState is the snapshot exposed to a view.
type FlowState struct {
	Phase   Phase  `json:"phase"`
	Message string `json:"message,omitempty"`
}

// Ticket identifies one attempt started by Flow.Begin.
type Ticket struct {
	generation uint64
}

// Flow is the idle -> submitting -> succeeded|failed sequence behind one view
// action. While submitting, a second Begin is refused. After Close every
// outstanding ticket is stale and its result is dropped.
type Flow struct {
	mu         sync.Mutex
	phase      Phase
	message    string
	generation uint64
	closed     bool
}

// Begin moves to submitting.
func (f *Flow) Begin() (Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return Ticket{}, domain.ErrUnmounted
	}
	if f.phase == PhaseSubmitting {
		return Ticket{}, domain.ErrInFlight
	}
	f.generation++
	f.phase = PhaseSubmitting
	f.message = ""
	return Ticket{generation: f.generation}, nil
}

// Finish settles the attempt. It reports false when the ticket is stale, in
// which case the caller must discard the result.
func (f *Flow) Finish(t Ticket, err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || t.generation != f.generation {
		return false
	}
	if err != nil {
		f.phase = PhaseFailed
		f.message = err.Error()
	} else {
		f.phase = PhaseSucceeded
		f.message = ""
	}
	return true
}

// Reset returns a settled flow to idle.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phase != PhaseSubmitting {
		f.phase = PhaseIdle
		f.message = ""
	}
}

// Close unmounts the flow.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.generation++
}

// Closed reports whether Close has been called.
func (f *Flow) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// State returns the current snapshot.
func (f *Flow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	phase := f.phase
	if phase == "" {
		phase = PhaseIdle
	}
	return FlowState{Phase: phase, Message: f.message}
}
