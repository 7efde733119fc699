// Package flow provides the shared execution context for one flow run and
// loading of declarative flow files.
package flow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ShayCichocki/weave/pkg/models"
)

// ErrFinalized indicates a mutation was attempted on a finalized context.
var ErrFinalized = errors.New("flow context is finalized")

// ErrResultExists indicates a result was already stored for a task.
// Results are immutable once set.
var ErrResultExists = errors.New("result already recorded")

// Context is the shared state for one execution of a flow: the accumulated
// conversation history and the results cache keyed by task ID.
//
// A Context is owned by exactly one flow run but is read and appended to by
// many concurrently executing tasks, so every access goes through one mutex.
// Readers always observe fully appended entries; Snapshot-style accessors
// return copies so callers never hold a reference into guarded state.
type Context struct {
	mu sync.RWMutex
	// flowID identifies the owning flow run.
	flowID string
	// history is the ordered, append-only conversation log.
	history []models.Exchange
	// results maps task ID to its validated result.
	results map[string]*models.Result
	// finalized is set once the flow reaches a terminal state. A finalized
	// context rejects all further mutation.
	finalized bool
}

// NewContext creates an empty context for the given flow run.
func NewContext(flowID string) *Context {
	return &Context{
		flowID:  flowID,
		results: make(map[string]*models.Result),
	}
}

// FlowID returns the identifier of the owning flow run.
func (c *Context) FlowID() string {
	return c.flowID
}

// Append adds one entry to the conversation history.
func (c *Context) Append(taskID string, role models.ExchangeRole, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finalized {
		return ErrFinalized
	}
	c.history = append(c.history, models.Exchange{
		TaskID:    taskID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	return nil
}

// History returns a copy of the full conversation history in append order.
func (c *Context) History() []models.Exchange {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Exchange, len(c.history))
	copy(out, c.history)
	return out
}

// TaskHistory returns a copy of the history entries scoped to one task's
// conversation, in append order.
func (c *Context) TaskHistory(taskID string) []models.Exchange {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []models.Exchange
	for _, ex := range c.history {
		if ex.TaskID == taskID {
			out = append(out, ex)
		}
	}
	return out
}

// HistoryLen returns the number of history entries.
func (c *Context) HistoryLen() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.history)
}

// SetResult records the validated result for a task. A result may be set at
// most once per task ID.
func (c *Context) SetResult(taskID string, result *models.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finalized {
		return ErrFinalized
	}
	if _, exists := c.results[taskID]; exists {
		return fmt.Errorf("%w: task %s", ErrResultExists, taskID)
	}
	c.results[taskID] = result
	return nil
}

// Result returns the stored result for a task, or false if none exists.
func (c *Context) Result(taskID string) (*models.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.results[taskID]
	return r, ok
}

// Results returns a copy of the results map.
func (c *Context) Results() map[string]*models.Result {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]*models.Result, len(c.results))
	for id, r := range c.results {
		out[id] = r
	}
	return out
}

// Finalize marks the context read-only. Called once the flow reaches a
// terminal state; already-stored history and results remain readable.
func (c *Context) Finalize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalized = true
}

// Finalized reports whether the context has been finalized.
func (c *Context) Finalized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.finalized
}
