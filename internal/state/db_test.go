package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/weave/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "state.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return db
}

func TestFlowRoundTrip(t *testing.T) {
	db := openTestDB(t)

	rec := &FlowRecord{
		ID:        "flow-1",
		Name:      "release-notes",
		State:     models.FlowRunning,
		StartedAt: time.Now(),
	}
	if err := db.CreateFlow(rec); err != nil {
		t.Fatalf("CreateFlow failed: %v", err)
	}

	got, err := db.GetFlow("flow-1")
	if err != nil {
		t.Fatalf("GetFlow failed: %v", err)
	}
	if got.Name != "release-notes" {
		t.Errorf("expected name release-notes, got %q", got.Name)
	}
	if got.State != models.FlowRunning {
		t.Errorf("expected running state, got %q", got.State)
	}
	if got.FinishedAt != nil {
		t.Errorf("expected nil FinishedAt for running flow, got %v", got.FinishedAt)
	}
}

func TestTerminalStateStampsFinish(t *testing.T) {
	db := openTestDB(t)

	if err := db.CreateFlow(&FlowRecord{ID: "flow-1", State: models.FlowRunning, StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateFlow failed: %v", err)
	}
	if err := db.UpdateFlowState("flow-1", models.FlowCompleted); err != nil {
		t.Fatalf("UpdateFlowState failed: %v", err)
	}

	got, err := db.GetFlow("flow-1")
	if err != nil {
		t.Fatalf("GetFlow failed: %v", err)
	}
	if got.State != models.FlowCompleted {
		t.Errorf("expected completed state, got %q", got.State)
	}
	if got.FinishedAt == nil {
		t.Error("expected FinishedAt to be set for terminal flow")
	}
}

func TestSaveTaskUpsert(t *testing.T) {
	db := openTestDB(t)

	if err := db.CreateFlow(&FlowRecord{ID: "flow-1", State: models.FlowRunning, StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateFlow failed: %v", err)
	}

	rec := &TaskRecord{
		FlowID:    "flow-1",
		TaskID:    "draft",
		Objective: "Draft the summary",
		State:     models.TaskStateRunning,
	}
	if err := db.SaveTask(rec); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}

	rec.State = models.TaskStateSucceeded
	rec.ResultJSON = `"done"`
	if err := db.SaveTask(rec); err != nil {
		t.Fatalf("SaveTask upsert failed: %v", err)
	}

	tasks, err := db.ListTasks("flow-1")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task after upsert, got %d", len(tasks))
	}
	if tasks[0].State != models.TaskStateSucceeded {
		t.Errorf("expected succeeded state, got %q", tasks[0].State)
	}
	if tasks[0].ResultJSON != `"done"` {
		t.Errorf("expected result json to survive upsert, got %q", tasks[0].ResultJSON)
	}
}

func TestListFlowsOrdering(t *testing.T) {
	db := openTestDB(t)

	base := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		rec := &FlowRecord{ID: id, State: models.FlowCompleted, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := db.CreateFlow(rec); err != nil {
			t.Fatalf("CreateFlow %s failed: %v", id, err)
		}
	}

	flows, err := db.ListFlows()
	if err != nil {
		t.Fatalf("ListFlows failed: %v", err)
	}
	if len(flows) != 3 {
		t.Fatalf("expected 3 flows, got %d", len(flows))
	}
	if flows[0].ID != "new" || flows[2].ID != "old" {
		t.Errorf("expected most recent first, got %s, %s, %s", flows[0].ID, flows[1].ID, flows[2].ID)
	}
}
