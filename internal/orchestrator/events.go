// Package orchestrator drives the execution of a flow: it schedules ready
// tasks against a concurrency limit, delegates them to bound agents,
// validates their output, and manages interactive suspension.
package orchestrator

import (
	"time"

	"github.com/ShayCichocki/weave/pkg/models"
)

// EventType represents the type of flow event.
type EventType string

const (
	// EventFlowStarted indicates a flow run has begun.
	EventFlowStarted EventType = "flow_started"
	// EventTaskStarted indicates a task was dispatched to an agent.
	EventTaskStarted EventType = "task_started"
	// EventTaskSucceeded indicates a task completed with a validated result.
	EventTaskSucceeded EventType = "task_succeeded"
	// EventTaskFailed indicates a task failed terminally.
	EventTaskFailed EventType = "task_failed"
	// EventTaskSkipped indicates a task was skipped because a dependency did
	// not succeed or the flow was abandoned.
	EventTaskSkipped EventType = "task_skipped"
	// EventTaskAwaitingInput indicates a task suspended pending human input.
	EventTaskAwaitingInput EventType = "task_awaiting_input"
	// EventTaskResumed indicates a suspended task received input and was
	// re-dispatched.
	EventTaskResumed EventType = "task_resumed"
	// EventFlowDone indicates the flow reached a terminal state.
	EventFlowDone EventType = "flow_done"
)

// Event is emitted by the orchestrator as the flow progresses. Events feed
// the CLI output and the interactive console.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// FlowID identifies the flow run.
	FlowID string
	// TaskID is the related task, if applicable.
	TaskID string
	// Question is the text an interactive task asked, for awaiting events.
	Question string
	// Message provides additional context about the event.
	Message string
	// FlowState carries the final state for flow_done events.
	FlowState models.FlowState
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// EventHandler consumes flow events. Handlers are invoked from the
// scheduling goroutine and must not block.
type EventHandler func(Event)

// emit sends an event to the configured handler, stamping the time.
func (f *Flow) emit(e Event) {
	if f.o.onEvent == nil {
		return
	}
	e.FlowID = f.ID
	e.Timestamp = time.Now()
	f.o.onEvent(e)
}
