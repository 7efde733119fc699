// Package state provides SQLite-based snapshotting of flow executions.
// Persistence is optional: the orchestration core runs without a store, and
// snapshots exist so a finished flow can be inspected after the process
// exits.
package state

import (
	"io"
	"time"

	"github.com/ShayCichocki/weave/pkg/models"
)

// FlowRecord is the persisted summary of one flow run.
type FlowRecord struct {
	// ID is the flow run identifier.
	ID string
	// Name is the declared flow name, if any.
	Name string
	// State is the flow's last known overall state.
	State models.FlowState
	// StartedAt is when the run began.
	StartedAt time.Time
	// FinishedAt is when the run reached a terminal state, if it has.
	FinishedAt *time.Time
}

// TaskRecord is the persisted snapshot of one task within a flow run.
type TaskRecord struct {
	// FlowID is the owning flow run.
	FlowID string
	// TaskID is the task identifier.
	TaskID string
	// Objective is the task's instruction text.
	Objective string
	// State is the task's last known state.
	State models.TaskState
	// FailureReason is set for failed tasks.
	FailureReason models.FailureReason
	// FailureDetail carries failure diagnostics.
	FailureDetail string
	// ResultJSON is the JSON-encoded coerced result, for succeeded tasks.
	ResultJSON string
	// UpdatedAt is when the snapshot was last written.
	UpdatedAt time.Time
}

// FlowStore handles flow-level persistence operations.
type FlowStore interface {
	CreateFlow(f *FlowRecord) error
	UpdateFlowState(id string, state models.FlowState) error
	GetFlow(id string) (*FlowRecord, error)
	ListFlows() ([]FlowRecord, error)
}

// TaskSnapshotStore handles task-level persistence operations.
type TaskSnapshotStore interface {
	SaveTask(t *TaskRecord) error
	ListTasks(flowID string) ([]TaskRecord, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for flow snapshot persistence. The
// orchestrator works with any backend implementing it.
type Store interface {
	io.Closer
	Migrator
	FlowStore
	TaskSnapshotStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store             = (*DB)(nil)
	_ Migrator          = (*DB)(nil)
	_ FlowStore         = (*DB)(nil)
	_ TaskSnapshotStore = (*DB)(nil)
)
