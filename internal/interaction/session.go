// Package interaction manages suspension of interactive tasks pending human
// input and their resumption with that input appended to the flow context.
package interaction

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/weave/internal/flow"
	"github.com/ShayCichocki/weave/pkg/models"
)

// ErrNotAwaiting indicates input was supplied for a task that is not
// currently suspended. The call has no side effect on the flow context.
var ErrNotAwaiting = errors.New("task is not awaiting input")

// QuestionMarker is the explicit marker an agent emits, at the start of a
// line, when it needs information from the user before it can finish an
// interactive task.
const QuestionMarker = "QUESTION:"

// DetectQuestion scans raw agent output for the question marker. It returns
// the question text and true when the output signals that more information
// is needed.
func DetectQuestion(raw string) (string, bool) {
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, QuestionMarker) {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, QuestionMarker)), true
		}
	}
	return "", false
}

// Pending describes one suspended task.
type Pending struct {
	// TaskID is the suspended task.
	TaskID string
	// Question is the text the agent asked the user.
	Question string
	// AskedAt is when the task suspended.
	AskedAt time.Time
}

// Session tracks tasks suspended in AwaitingInput and hands supplied input
// back to the scheduler. A task may suspend and resume any number of times;
// there is no timeout at this layer.
type Session struct {
	mu      sync.Mutex
	fctx    *flow.Context
	pending map[string]Pending
	// handoff counts tasks whose input has been accepted but whose resume
	// send has not yet landed on the channel.
	handoff int
	// resume carries task IDs whose input has arrived. Buffered so
	// SupplyInput never blocks on the scheduler.
	resume chan string
}

// NewSession creates a session over the given flow context.
func NewSession(fctx *flow.Context) *Session {
	return &Session{
		fctx:    fctx,
		pending: make(map[string]Pending),
		resume:  make(chan string, 64),
	}
}

// Await registers a task as suspended on the given question.
func (s *Session) Await(taskID, question string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[taskID] = Pending{
		TaskID:   taskID,
		Question: question,
		AskedAt:  time.Now(),
	}
}

// Awaiting returns every currently suspended task in suspension order.
func (s *Session) Awaiting() []Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Pending, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p)
	}
	// Small map; insertion-time sort keeps the poll output stable.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].AskedAt.Before(out[j-1].AskedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// IsAwaiting reports whether the task is currently suspended.
func (s *Session) IsAwaiting(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[taskID]
	return ok
}

// SupplyInput resolves a suspension: the input is appended to the flow
// history scoped to the task's conversation, and the task is queued for
// resumption. Supplying input for a task that is not awaiting fails with
// ErrNotAwaiting and leaves the flow context untouched.
func (s *Session) SupplyInput(taskID, input string) error {
	s.mu.Lock()
	if _, ok := s.pending[taskID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotAwaiting, taskID)
	}
	if err := s.fctx.Append(taskID, models.RoleUser, input); err != nil {
		s.mu.Unlock()
		return err
	}
	// Claiming the pending entry and raising handoff in one critical section
	// keeps the task visible to AwaitingCount until the resume send has
	// landed; a scheduler probing suspension state sees it in the pending
	// map, in handoff, or on the resume channel, never in none of the three.
	delete(s.pending, taskID)
	s.handoff++
	s.mu.Unlock()

	s.resume <- taskID

	s.mu.Lock()
	s.handoff--
	s.mu.Unlock()
	return nil
}

// Resumed returns the channel of task IDs whose input has arrived. The
// scheduler re-dispatches each received task with its augmented context.
func (s *Session) Resumed() <-chan string {
	return s.resume
}

// AwaitingCount returns how many tasks are currently suspended, including
// tasks whose supplied input is still in flight to the resume channel.
func (s *Session) AwaitingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) + s.handoff
}
