package models

import "time"

// ExchangeRole identifies who produced an entry in the flow history.
type ExchangeRole string

const (
	// RoleInstruction is an instruction handed to an agent, including
	// corrective follow-ups from the validator.
	RoleInstruction ExchangeRole = "instruction"
	// RoleOutput is raw output produced by an agent.
	RoleOutput ExchangeRole = "output"
	// RoleUser is text supplied by a human while a task was awaiting input.
	RoleUser ExchangeRole = "user"
)

// Exchange is one entry in a flow's shared conversation history.
type Exchange struct {
	// TaskID is the task this entry belongs to.
	TaskID string `json:"task_id"`
	// Role identifies the producer of the entry.
	Role ExchangeRole `json:"role"`
	// Content is the entry text.
	Content string `json:"content"`
	// Timestamp is when the entry was appended.
	Timestamp time.Time `json:"timestamp"`
}
