package agent

import (
	"context"
	"fmt"
	"sync"
)

// ScriptStep is one canned response in a scripted capability.
type ScriptStep struct {
	// Output is the raw text returned for this invocation.
	Output string
	// Err, if set, is returned instead of Output.
	Err error
}

// Scripted is a deterministic in-process capability that plays a fixed
// sequence of responses. It backs tests and offline dry runs.
type Scripted struct {
	mu       sync.Mutex
	steps    []ScriptStep
	requests []Request
}

// NewScripted creates a scripted capability that answers invocations with
// the given steps in order.
func NewScripted(steps ...ScriptStep) *Scripted {
	return &Scripted{steps: steps}
}

// Invoke returns the next scripted step. Invoking past the end of the script
// fails with ErrInvalid.
func (s *Scripted) Invoke(_ context.Context, req Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := len(s.requests)
	s.requests = append(s.requests, req)

	if idx >= len(s.steps) {
		return "", fmt.Errorf("%w: script exhausted after %d steps", ErrInvalid, len(s.steps))
	}
	step := s.steps[idx]
	if step.Err != nil {
		return "", step.Err
	}
	return step.Output, nil
}

// Calls returns how many times the capability was invoked.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of every request received, in order.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}
