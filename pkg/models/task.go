package models

import "time"

// TaskState represents the current state of a task within a flow.
type TaskState string

const (
	// TaskStatePending indicates the task is waiting on unmet dependencies.
	TaskStatePending TaskState = "pending"
	// TaskStateReady indicates every dependency is satisfied and the task can be dispatched.
	TaskStateReady TaskState = "ready"
	// TaskStateRunning indicates the task is being executed by an agent.
	TaskStateRunning TaskState = "running"
	// TaskStateAwaitingInput indicates the task is suspended pending human input.
	TaskStateAwaitingInput TaskState = "awaiting_input"
	// TaskStateSucceeded indicates the task completed with a validated result.
	TaskStateSucceeded TaskState = "succeeded"
	// TaskStateFailed indicates the task failed and will not be retried.
	TaskStateFailed TaskState = "failed"
	// TaskStateSkipped indicates the task was not run because a dependency failed
	// or the flow was abandoned before the task became ready.
	TaskStateSkipped TaskState = "skipped"
)

// Valid returns true if the state is a known value.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStatePending, TaskStateReady, TaskStateRunning, TaskStateAwaitingInput,
		TaskStateSucceeded, TaskStateFailed, TaskStateSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true if the state is final. A terminal task never
// transitions again for the lifetime of the flow.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateSucceeded, TaskStateFailed, TaskStateSkipped:
		return true
	default:
		return false
	}
}

// FailureReason classifies why a task ended in TaskStateFailed.
type FailureReason string

const (
	// FailureAgentUnavailable indicates the bound agent could not be reached
	// after exhausting transient-error retries.
	FailureAgentUnavailable FailureReason = "agent_unavailable"
	// FailureResultShapeMismatch indicates the agent's output never conformed
	// to the declared result shape within the correction-round budget.
	FailureResultShapeMismatch FailureReason = "result_shape_mismatch"
	// FailureCancelled indicates the flow was cancelled while the task was in flight.
	FailureCancelled FailureReason = "cancelled"
)

// Task represents a unit of declared work in a flow.
type Task struct {
	// ID is the unique identifier for this task within its flow.
	// It is stable across retries and correction rounds.
	ID string `json:"id"`
	// Objective is the opaque instruction text handed to the agent.
	Objective string `json:"objective"`
	// DependsOn lists task IDs that must reach a satisfied terminal state
	// before this task becomes ready.
	DependsOn []string `json:"depends_on,omitempty"`
	// Shape is the declared result shape the agent output is coerced into.
	Shape ResultShape `json:"shape"`
	// Interactive marks a task that may suspend to collect human input.
	Interactive bool `json:"interactive,omitempty"`
	// Agent is the name of an explicitly bound agent capability.
	// Empty means the default capability is used.
	Agent string `json:"agent,omitempty"`
	// State is the task's current lifecycle state.
	State TaskState `json:"state"`
	// Result holds the coerced output. Populated only in TaskStateSucceeded.
	Result *Result `json:"result,omitempty"`
	// FailureReason classifies the failure. Populated only in TaskStateFailed.
	FailureReason FailureReason `json:"failure_reason,omitempty"`
	// FailureDetail carries diagnostic detail for a failure, such as the last
	// raw output and the shape mismatch description.
	FailureDetail string `json:"failure_detail,omitempty"`
	// CreatedAt is when the task was declared or dynamically spawned.
	CreatedAt time.Time `json:"created_at"`
}

// FlowState represents the overall outcome of one flow execution.
type FlowState string

const (
	// FlowRunning indicates the flow still has non-terminal tasks.
	FlowRunning FlowState = "running"
	// FlowCompleted indicates every task succeeded.
	FlowCompleted FlowState = "completed"
	// FlowPartiallyCompleted indicates some tasks failed or were skipped but
	// at least one succeeded.
	FlowPartiallyCompleted FlowState = "partially_completed"
	// FlowFailed indicates no task succeeded.
	FlowFailed FlowState = "failed"
)
