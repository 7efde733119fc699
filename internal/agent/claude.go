package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/weave/internal/api"
)

// Claude is the Anthropic-backed agent capability.
type Claude struct {
	runner *api.Runner
}

// NewClaude creates a capability over the given API runner.
func NewClaude(runner *api.Runner) *Claude {
	return &Claude{runner: runner}
}

// Invoke executes the request against the Claude API and classifies provider
// failures into the package error variants so the binding can decide what to
// retry.
func (c *Claude) Invoke(ctx context.Context, req Request) (string, error) {
	out, err := c.runner.Run(ctx, req.History, req.Prompt)
	if err != nil {
		return "", classify(err)
	}
	return out, nil
}

// classify maps SDK and transport errors onto the capability error variants.
func classify(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 429:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case apierr.StatusCode >= 500:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		default:
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// Transport-level failure with no API response.
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
