package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ShayCichocki/weave/pkg/models"
)

// DefaultMaxAttempts is the default number of invocation attempts per
// execution, counting the first call.
const DefaultMaxAttempts = 3

// DefaultBackoffBase is the delay before the first retry; each subsequent
// retry doubles it.
const DefaultBackoffBase = 500 * time.Millisecond

// Registry maps agent names to capabilities and holds the default
// capability used by tasks without an explicit binding.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]Capability
	def  Capability
}

// NewRegistry creates a registry with the given default capability.
func NewRegistry(def Capability) *Registry {
	return &Registry{
		caps: make(map[string]Capability),
		def:  def,
	}
}

// Register adds a named capability.
func (r *Registry) Register(name string, cap Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[name] = cap
}

// Resolve returns the capability for the given name, or the default when the
// name is empty.
func (r *Registry) Resolve(name string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		if r.def == nil {
			return nil, fmt.Errorf("%w: no default capability registered", ErrUnknownAgent)
		}
		return r.def, nil
	}
	cap, ok := r.caps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	return cap, nil
}

// Binding resolves which capability executes a task and invokes it with
// bounded exponential backoff on transient provider errors. This is the only
// layer that retries provider failures; content-shape failures are the
// validator's concern.
type Binding struct {
	registry    *Registry
	maxAttempts int
	backoffBase time.Duration
}

// NewBinding creates a binding over the given registry with default retry
// settings.
func NewBinding(registry *Registry) *Binding {
	return &Binding{
		registry:    registry,
		maxAttempts: DefaultMaxAttempts,
		backoffBase: DefaultBackoffBase,
	}
}

// SetMaxAttempts overrides the invocation attempt budget.
func (b *Binding) SetMaxAttempts(n int) {
	if n < 1 {
		n = 1
	}
	b.maxAttempts = n
}

// SetBackoffBase overrides the base retry delay.
func (b *Binding) SetBackoffBase(d time.Duration) {
	if d > 0 {
		b.backoffBase = d
	}
}

// Execute resolves the task's capability and invokes it. Transient errors
// (unavailable, rate limited) are retried with exponential backoff up to the
// attempt budget; any other error, or exhaustion of the budget, is returned
// to the caller.
func (b *Binding) Execute(ctx context.Context, task *models.Task, req Request) (string, error) {
	cap, err := b.registry.Resolve(task.Agent)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := b.backoffBase << (attempt - 2)
			log.Printf("[binding] task %s: attempt %d/%d after %v (%v)", task.ID, attempt, b.maxAttempts, delay, lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		raw, err := cap.Invoke(ctx, req)
		if err == nil {
			return raw, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !Transient(err) {
			return "", err
		}
		lastErr = err
	}

	return "", fmt.Errorf("exhausted %d attempts: %w", b.maxAttempts, lastErr)
}
