// Package agent provides the opaque agent capability boundary and the
// binding that resolves and invokes capabilities for tasks.
package agent

import (
	"context"
	"errors"

	"github.com/ShayCichocki/weave/pkg/models"
)

// ErrUnavailable indicates the agent backend could not be reached.
var ErrUnavailable = errors.New("agent unavailable")

// ErrRateLimited indicates the agent backend rejected the call due to rate
// limiting.
var ErrRateLimited = errors.New("agent rate limited")

// ErrInvalid indicates the agent backend rejected the request as malformed.
// Invalid requests are not retried.
var ErrInvalid = errors.New("agent rejected request")

// ErrUnknownAgent indicates a task named an agent that is not registered.
var ErrUnknownAgent = errors.New("unknown agent")

// Request carries one invocation of an agent capability: the composed prompt
// plus the relevant slice of the flow's conversation history.
type Request struct {
	// Prompt is the instruction text, including the task objective,
	// dependency results, and any corrective follow-ups.
	Prompt string
	// History is a consistent snapshot of the conversation taken at
	// invocation time.
	History []models.Exchange
}

// Capability is an opaque agent: given a prompt and context it returns raw
// text or fails with one of the package error variants. Concrete backends
// are swappable implementations carrying no shared mutable state.
type Capability interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// Transient returns true for provider-level errors worth retrying.
func Transient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited)
}
