package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ShayCichocki/weave/pkg/models"
)

// DB wraps an SQLite database connection with flow snapshot operations.
type DB struct {
	conn *sql.DB
	path string
}

// ProjectDBPath returns the path to the project-local snapshot database.
func ProjectDBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".weave", "state.db")
}

// Open opens an SQLite database at the given path.
// It creates the parent directories if they don't exist.
// WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Migrate applies the schema.
func (db *DB) Migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS flows (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tasks (
	flow_id        TEXT NOT NULL REFERENCES flows(id),
	task_id        TEXT NOT NULL,
	objective      TEXT NOT NULL,
	state          TEXT NOT NULL,
	failure_reason TEXT NOT NULL DEFAULT '',
	failure_detail TEXT NOT NULL DEFAULT '',
	result_json    TEXT NOT NULL DEFAULT '',
	updated_at     TIMESTAMP NOT NULL,
	PRIMARY KEY (flow_id, task_id)
);
`
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CreateFlow inserts a new flow record.
func (db *DB) CreateFlow(f *FlowRecord) error {
	_, err := db.conn.Exec(
		`INSERT INTO flows (id, name, state, started_at) VALUES (?, ?, ?, ?)`,
		f.ID, f.Name, string(f.State), f.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("create flow %s: %w", f.ID, err)
	}
	return nil
}

// UpdateFlowState records the flow's overall state. Terminal states also
// stamp the finish time.
func (db *DB) UpdateFlowState(id string, state models.FlowState) error {
	var err error
	if state == models.FlowRunning {
		_, err = db.conn.Exec(`UPDATE flows SET state = ? WHERE id = ?`, string(state), id)
	} else {
		_, err = db.conn.Exec(
			`UPDATE flows SET state = ?, finished_at = ? WHERE id = ?`,
			string(state), time.Now(), id,
		)
	}
	if err != nil {
		return fmt.Errorf("update flow %s: %w", id, err)
	}
	return nil
}

// GetFlow returns the flow record for the given ID.
func (db *DB) GetFlow(id string) (*FlowRecord, error) {
	row := db.conn.QueryRow(
		`SELECT id, name, state, started_at, finished_at FROM flows WHERE id = ?`, id,
	)

	var f FlowRecord
	var state string
	var finishedAt sql.NullTime
	if err := row.Scan(&f.ID, &f.Name, &state, &f.StartedAt, &finishedAt); err != nil {
		return nil, fmt.Errorf("get flow %s: %w", id, err)
	}
	f.State = models.FlowState(state)
	if finishedAt.Valid {
		t := finishedAt.Time
		f.FinishedAt = &t
	}
	return &f, nil
}

// ListFlows returns all flow records, most recent first.
func (db *DB) ListFlows() ([]FlowRecord, error) {
	rows, err := db.conn.Query(
		`SELECT id, name, state, started_at, finished_at FROM flows ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	var flows []FlowRecord
	for rows.Next() {
		var f FlowRecord
		var state string
		var finishedAt sql.NullTime
		if err := rows.Scan(&f.ID, &f.Name, &state, &f.StartedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		f.State = models.FlowState(state)
		if finishedAt.Valid {
			t := finishedAt.Time
			f.FinishedAt = &t
		}
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

// SaveTask upserts one task snapshot.
func (db *DB) SaveTask(t *TaskRecord) error {
	_, err := db.conn.Exec(`
INSERT INTO tasks (flow_id, task_id, objective, state, failure_reason, failure_detail, result_json, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (flow_id, task_id) DO UPDATE SET
	state = excluded.state,
	failure_reason = excluded.failure_reason,
	failure_detail = excluded.failure_detail,
	result_json = excluded.result_json,
	updated_at = excluded.updated_at`,
		t.FlowID, t.TaskID, t.Objective, string(t.State),
		string(t.FailureReason), t.FailureDetail, t.ResultJSON, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save task %s/%s: %w", t.FlowID, t.TaskID, err)
	}
	return nil
}

// ListTasks returns the task snapshots for a flow in task ID order.
func (db *DB) ListTasks(flowID string) ([]TaskRecord, error) {
	rows, err := db.conn.Query(`
SELECT flow_id, task_id, objective, state, failure_reason, failure_detail, result_json, updated_at
FROM tasks WHERE flow_id = ? ORDER BY task_id`, flowID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for %s: %w", flowID, err)
	}
	defer rows.Close()

	var tasks []TaskRecord
	for rows.Next() {
		var t TaskRecord
		var taskState, reason string
		if err := rows.Scan(&t.FlowID, &t.TaskID, &t.Objective, &taskState,
			&reason, &t.FailureDetail, &t.ResultJSON, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.State = models.TaskState(taskState)
		t.FailureReason = models.FailureReason(reason)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
