package flow

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ShayCichocki/weave/pkg/models"
)

func TestContextAppendAndHistory(t *testing.T) {
	ctx := NewContext("flow-1")

	if err := ctx.Append("t1", models.RoleInstruction, "do the thing"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := ctx.Append("t1", models.RoleOutput, "done"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := ctx.Append("t2", models.RoleInstruction, "other thing"); err != nil {
		t.Fatalf("append: %v", err)
	}

	history := ctx.History()
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	if history[0].Role != models.RoleInstruction || history[0].Content != "do the thing" {
		t.Errorf("unexpected first entry: %+v", history[0])
	}

	scoped := ctx.TaskHistory("t1")
	if len(scoped) != 2 {
		t.Fatalf("expected 2 entries scoped to t1, got %d", len(scoped))
	}
}

func TestContextResultImmutable(t *testing.T) {
	ctx := NewContext("flow-1")

	if err := ctx.SetResult("t1", &models.Result{TaskID: "t1", Value: "first"}); err != nil {
		t.Fatalf("set result: %v", err)
	}

	err := ctx.SetResult("t1", &models.Result{TaskID: "t1", Value: "second"})
	if !errors.Is(err, ErrResultExists) {
		t.Fatalf("expected ErrResultExists, got %v", err)
	}

	r, ok := ctx.Result("t1")
	if !ok || r.Value != "first" {
		t.Errorf("stored result changed: %+v", r)
	}
}

func TestContextFinalizeRejectsMutation(t *testing.T) {
	ctx := NewContext("flow-1")
	if err := ctx.Append("t1", models.RoleOutput, "before"); err != nil {
		t.Fatalf("append: %v", err)
	}

	ctx.Finalize()

	if err := ctx.Append("t1", models.RoleOutput, "after"); !errors.Is(err, ErrFinalized) {
		t.Errorf("expected ErrFinalized on append, got %v", err)
	}
	if err := ctx.SetResult("t1", &models.Result{TaskID: "t1"}); !errors.Is(err, ErrFinalized) {
		t.Errorf("expected ErrFinalized on set result, got %v", err)
	}

	// Reads keep working after finalization.
	if len(ctx.History()) != 1 {
		t.Errorf("expected history readable after finalize, got %d entries", ctx.HistoryLen())
	}
}

func TestContextConcurrentAccess(t *testing.T) {
	ctx := NewContext("flow-1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			taskID := fmt.Sprintf("t%d", n)
			for j := 0; j < 50; j++ {
				ctx.Append(taskID, models.RoleOutput, "entry")
			}
			ctx.SetResult(taskID, &models.Result{TaskID: taskID, Value: n})
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				for _, ex := range ctx.History() {
					if ex.Content == "" && ex.Role == "" {
						t.Error("observed partially appended entry")
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	if ctx.HistoryLen() != 8*50 {
		t.Errorf("expected %d entries, got %d", 8*50, ctx.HistoryLen())
	}
	if len(ctx.Results()) != 8 {
		t.Errorf("expected 8 results, got %d", len(ctx.Results()))
	}
}
