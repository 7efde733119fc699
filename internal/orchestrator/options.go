package orchestrator

import "github.com/ShayCichocki/weave/internal/state"

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency sets the maximum number of simultaneously running tasks
// per flow. Values below 1 are clamped to 1.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n < 1 {
			n = 1
		}
		o.maxConcurrent = n
	}
}

// WithCorrectionRounds sets the total number of agent invocations allowed
// per task, counting the initial one. A task whose output still fails
// validation after the last round fails with a shape mismatch.
func WithCorrectionRounds(n int) Option {
	return func(o *Orchestrator) {
		if n < 1 {
			n = 1
		}
		o.correctionRounds = n
	}
}

// WithStateStore enables flow and task snapshot persistence.
func WithStateStore(s state.Store) Option {
	return func(o *Orchestrator) {
		o.store = s
	}
}

// WithEventHandler registers a handler for flow progress events.
func WithEventHandler(h EventHandler) Option {
	return func(o *Orchestrator) {
		o.onEvent = h
	}
}

// SetEventHandler replaces the event handler after construction. Callers
// that build the view around an existing flow use this to close the wiring
// loop. Not safe to call while a flow is running.
func (o *Orchestrator) SetEventHandler(h EventHandler) {
	o.onEvent = h
}

// WithDebugLog sets the debug logging function. By default debug output is
// discarded.
func WithDebugLog(fn func(format string, args ...interface{})) Option {
	return func(o *Orchestrator) {
		o.debugLog = fn
	}
}
