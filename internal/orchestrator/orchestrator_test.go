package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/weave/internal/agent"
	"github.com/ShayCichocki/weave/pkg/models"
)

// capFunc adapts a function to the agent.Capability interface.
type capFunc func(ctx context.Context, req agent.Request) (string, error)

func (f capFunc) Invoke(ctx context.Context, req agent.Request) (string, error) {
	return f(ctx, req)
}

func newTestBinding(def agent.Capability, named map[string]agent.Capability) *agent.Binding {
	reg := agent.NewRegistry(def)
	for name, cap := range named {
		reg.Register(name, cap)
	}
	b := agent.NewBinding(reg)
	b.SetBackoffBase(time.Millisecond)
	return b
}

func taskByID(tasks []models.Task, id string) *models.Task {
	for i := range tasks {
		if tasks[i].ID == id {
			return &tasks[i]
		}
	}
	return nil
}

func TestLinearFlowCompletes(t *testing.T) {
	draft := agent.NewScripted(agent.ScriptStep{Output: "a short draft"})
	review := agent.NewScripted(agent.ScriptStep{Output: "looks good"})

	o := New(newTestBinding(nil, map[string]agent.Capability{
		"drafter":  draft,
		"reviewer": review,
	}))

	f, err := o.NewFlow("review-chain", []*models.Task{
		{ID: "draft", Objective: "Write a draft", Agent: "drafter", Shape: models.StringShape()},
		{ID: "review", Objective: "Review the draft", Agent: "reviewer", DependsOn: []string{"draft"}, Shape: models.StringShape()},
	})
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}

	result, err := f.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.State != models.FlowCompleted {
		t.Errorf("expected completed flow, got %q", result.State)
	}

	// The dependent task's prompt carries the dependency's result verbatim.
	reqs := review.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 review invocation, got %d", len(reqs))
	}
	if !strings.Contains(reqs[0].Prompt, "a short draft") {
		t.Errorf("expected dependency result in prompt, got:\n%s", reqs[0].Prompt)
	}
	if !strings.Contains(reqs[0].Prompt, "[draft]") {
		t.Errorf("expected dependency ID label in prompt, got:\n%s", reqs[0].Prompt)
	}
}

func TestCorrectionRoundRecovers(t *testing.T) {
	// First output does not parse as an int; the corrective re-invocation
	// does. Two invocations total, task succeeds.
	counter := agent.NewScripted(
		agent.ScriptStep{Output: "it is roughly forty-two"},
		agent.ScriptStep{Output: "42"},
	)

	o := New(newTestBinding(counter, nil))
	f, err := o.NewFlow("", []*models.Task{
		{ID: "count", Objective: "Count the items", Shape: models.IntShape()},
	})
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}

	result, err := f.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.State != models.FlowCompleted {
		t.Fatalf("expected completed flow, got %q", result.State)
	}
	if counter.Calls() != 2 {
		t.Errorf("expected exactly 2 invocations, got %d", counter.Calls())
	}

	task := taskByID(result.Tasks, "count")
	if v, ok := task.Result.Value.(int64); !ok || v != 42 {
		t.Errorf("expected int64 42, got %#v", task.Result.Value)
	}

	// The second prompt is corrective: it names the problem and restates
	// the expected form.
	reqs := counter.Requests()
	if !strings.Contains(reqs[1].Prompt, "int") {
		t.Errorf("expected correction prompt to restate the shape, got:\n%s", reqs[1].Prompt)
	}
}

func TestCorrectionRoundsExhausted(t *testing.T) {
	stubborn := agent.NewScripted(
		agent.ScriptStep{Output: "nope"},
		agent.ScriptStep{Output: "still nope"},
		agent.ScriptStep{Output: "never"},
	)

	o := New(newTestBinding(stubborn, nil), WithCorrectionRounds(3))
	f, err := o.NewFlow("", []*models.Task{
		{ID: "count", Objective: "Count the items", Shape: models.IntShape()},
	})
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}

	result, err := f.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stubborn.Calls() != 3 {
		t.Errorf("expected exactly 3 invocations, got %d", stubborn.Calls())
	}

	task := taskByID(result.Tasks, "count")
	if task.State != models.TaskStateFailed {
		t.Fatalf("expected failed task, got %q", task.State)
	}
	if task.FailureReason != models.FailureResultShapeMismatch {
		t.Errorf("expected result_shape_mismatch, got %q", task.FailureReason)
	}
	if !strings.Contains(task.FailureDetail, "never") {
		t.Errorf("expected last output in failure detail, got %q", task.FailureDetail)
	}
	if result.State != models.FlowFailed {
		t.Errorf("expected failed flow, got %q", result.State)
	}
}

func TestConcurrencyLimit(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0

	started := make(chan struct{}, 3)
	release := make(chan struct{})

	slow := capFunc(func(ctx context.Context, req agent.Request) (string, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		started <- struct{}{}

		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}

		mu.Lock()
		active--
		mu.Unlock()
		return "ok", nil
	})

	o := New(newTestBinding(slow, nil), WithConcurrency(2))
	f, err := o.NewFlow("", []*models.Task{
		{ID: "a", Objective: "A", Shape: models.AnyShape()},
		{ID: "b", Objective: "B", Shape: models.AnyShape()},
		{ID: "c", Objective: "C", Shape: models.AnyShape()},
	})
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}

	done := make(chan *FlowResult, 1)
	go func() {
		result, err := f.Run(context.Background())
		if err != nil {
			t.Errorf("Run failed: %v", err)
		}
		done <- result
	}()

	// Two tasks start; the third must wait for a slot.
	<-started
	<-started
	select {
	case <-started:
		t.Fatal("third task started while both slots were occupied")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-started

	result := <-done
	if result.State != models.FlowCompleted {
		t.Errorf("expected completed flow, got %q", result.State)
	}

	mu.Lock()
	defer mu.Unlock()
	if peak != 2 {
		t.Errorf("expected peak concurrency of 2, got %d", peak)
	}
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fast := agent.NewScripted(agent.ScriptStep{Output: "done"})
	blocking := capFunc(func(ctx context.Context, req agent.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	o := New(
		newTestBinding(blocking, map[string]agent.Capability{"fast": fast}),
		WithEventHandler(func(e Event) {
			if e.Type == EventTaskSucceeded && e.TaskID == "a" {
				cancel()
			}
		}),
	)

	f, err := o.NewFlow("", []*models.Task{
		{ID: "a", Objective: "A", Agent: "fast", Shape: models.AnyShape()},
		{ID: "b", Objective: "B", Shape: models.AnyShape()},
		{ID: "c", Objective: "C", DependsOn: []string{"b"}, Shape: models.AnyShape()},
	})
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}

	result, err := f.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if got := taskByID(result.Tasks, "a").State; got != models.TaskStateSucceeded {
		t.Errorf("finished task should stay succeeded, got %q", got)
	}

	b := taskByID(result.Tasks, "b")
	if b.State != models.TaskStateFailed || b.FailureReason != models.FailureCancelled {
		t.Errorf("running task should fail as cancelled, got %q/%q", b.State, b.FailureReason)
	}

	if got := taskByID(result.Tasks, "c").State; got != models.TaskStateSkipped {
		t.Errorf("unstarted task should be skipped, got %q", got)
	}
}

func TestFailureSkipsDependents(t *testing.T) {
	broken := agent.NewScripted(agent.ScriptStep{Err: errors.New("model rejected the request: " + agent.ErrInvalid.Error())})
	fine := agent.NewScripted(agent.ScriptStep{Output: "ok"})

	// Non-transient errors are not retried, so one step suffices.
	o := New(newTestBinding(fine, map[string]agent.Capability{"broken": broken}))
	f, err := o.NewFlow("", []*models.Task{
		{ID: "fetch", Objective: "Fetch data", Agent: "broken", Shape: models.AnyShape()},
		{ID: "summarize", Objective: "Summarize", DependsOn: []string{"fetch"}, Shape: models.AnyShape()},
		{ID: "independent", Objective: "Unrelated", Shape: models.AnyShape()},
	})
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}

	result, err := f.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	fetch := taskByID(result.Tasks, "fetch")
	if fetch.State != models.TaskStateFailed {
		t.Errorf("expected fetch failed, got %q", fetch.State)
	}
	if got := taskByID(result.Tasks, "summarize").State; got != models.TaskStateSkipped {
		t.Errorf("expected summarize skipped, got %q", got)
	}
	if got := taskByID(result.Tasks, "independent").State; got != models.TaskStateSucceeded {
		t.Errorf("expected independent task to succeed, got %q", got)
	}
	if result.State != models.FlowPartiallyCompleted {
		t.Errorf("expected partially completed flow, got %q", result.State)
	}
}

func TestInteractiveSuspendAndResume(t *testing.T) {
	writer := agent.NewScripted(
		agent.ScriptStep{Output: "QUESTION: What tone should the summary take?"},
		agent.ScriptStep{Output: "A formal summary of the findings."},
	)

	var f *Flow
	o := New(
		newTestBinding(writer, nil),
		WithEventHandler(func(e Event) {
			if e.Type == EventTaskAwaitingInput {
				if e.Question != "What tone should the summary take?" {
					t.Errorf("unexpected question %q", e.Question)
				}
				if err := f.Session().SupplyInput(e.TaskID, "formal"); err != nil {
					t.Errorf("SupplyInput failed: %v", err)
				}
			}
		}),
	)

	var err error
	f, err = o.NewFlow("", []*models.Task{
		{ID: "summary", Objective: "Summarize the findings", Interactive: true, Shape: models.StringShape()},
	})
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}

	result, err := f.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.State != models.FlowCompleted {
		t.Fatalf("expected completed flow, got %q", result.State)
	}
	if writer.Calls() != 2 {
		t.Errorf("expected 2 invocations, got %d", writer.Calls())
	}

	// The resumption prompt is exactly the supplied answer.
	reqs := writer.Requests()
	if reqs[1].Prompt != "formal" {
		t.Errorf("expected answer as resume prompt, got %q", reqs[1].Prompt)
	}

	// The conversation records the answer as a user exchange.
	history := f.Context().TaskHistory("summary")
	var sawAnswer bool
	for _, ex := range history {
		if ex.Role == models.RoleUser && ex.Content == "formal" {
			sawAnswer = true
		}
	}
	if !sawAnswer {
		t.Error("expected user answer in task history")
	}

	if f.Session().AwaitingCount() != 0 {
		t.Errorf("expected no awaiting tasks after resume, got %d", f.Session().AwaitingCount())
	}
}

func TestInputRacingSiblingCompletion(t *testing.T) {
	// A sibling completion waking the scheduler at the same moment input
	// arrives must never be misread as a quiescent, deadlocked flow: the
	// suspended task stays visible to the scheduler through the whole
	// input handoff.
	for i := 0; i < 40; i++ {
		asker := agent.NewScripted(
			agent.ScriptStep{Output: "QUESTION: Which region?"},
			agent.ScriptStep{Output: "us-west-2 it is."},
		)
		worker := capFunc(func(ctx context.Context, req agent.Request) (string, error) {
			time.Sleep(time.Millisecond)
			return "done", nil
		})

		var f *Flow
		var wg sync.WaitGroup
		o := New(
			newTestBinding(nil, map[string]agent.Capability{
				"asker":  asker,
				"worker": worker,
			}),
			WithEventHandler(func(e Event) {
				if e.Type == EventTaskAwaitingInput {
					wg.Add(1)
					go func() {
						defer wg.Done()
						if err := f.Session().SupplyInput(e.TaskID, "us-west-2"); err != nil {
							t.Errorf("SupplyInput failed: %v", err)
						}
					}()
				}
			}),
		)

		var err error
		f, err = o.NewFlow("", []*models.Task{
			{ID: "ask", Objective: "Pick a region", Agent: "asker", Interactive: true, Shape: models.StringShape()},
			{ID: "work", Objective: "Do the background work", Agent: "worker", Shape: models.StringShape()},
		})
		if err != nil {
			t.Fatalf("NewFlow failed: %v", err)
		}

		result, err := f.Run(context.Background())
		wg.Wait()
		if err != nil {
			t.Fatalf("iteration %d: Run failed: %v", i, err)
		}
		if result.State != models.FlowCompleted {
			t.Fatalf("iteration %d: expected completed flow, got %q", i, result.State)
		}
	}
}

func TestDynamicInsertionDuringRun(t *testing.T) {
	cap := agent.NewScripted(
		agent.ScriptStep{Output: "first"},
		agent.ScriptStep{Output: "second"},
	)

	var f *Flow
	var insertOnce sync.Once
	o := New(
		newTestBinding(cap, nil),
		WithEventHandler(func(e Event) {
			if e.Type == EventTaskSucceeded && e.TaskID == "seed" {
				insertOnce.Do(func() {
					err := f.AddTask(&models.Task{
						ID:        "followup",
						Objective: "Follow up on the seed result",
						DependsOn: []string{"seed"},
						Shape:     models.AnyShape(),
					})
					if err != nil {
						t.Errorf("AddTask failed: %v", err)
					}
				})
			}
		}),
	)

	var err error
	f, err = o.NewFlow("", []*models.Task{
		{ID: "seed", Objective: "Produce the seed", Shape: models.AnyShape()},
	})
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}

	result, err := f.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.State != models.FlowCompleted {
		t.Errorf("expected completed flow, got %q", result.State)
	}
	if len(result.Tasks) != 2 {
		t.Fatalf("expected 2 tasks in final snapshot, got %d", len(result.Tasks))
	}
	if got := taskByID(result.Tasks, "followup").State; got != models.TaskStateSucceeded {
		t.Errorf("expected inserted task to succeed, got %q", got)
	}
}

func TestDeadlockDetection(t *testing.T) {
	broken := agent.NewScripted(agent.ScriptStep{Err: agent.ErrInvalid})

	var f *Flow
	var insertOnce sync.Once
	o := New(
		newTestBinding(broken, nil),
		WithEventHandler(func(e Event) {
			// Inserting a dependent after its dependency already failed
			// leaves it permanently pending: the skip cascade ran before
			// the task existed.
			if e.Type == EventTaskFailed && e.TaskID == "doomed" {
				insertOnce.Do(func() {
					err := f.AddTask(&models.Task{
						ID:        "orphan",
						Objective: "Depends on the failed task",
						DependsOn: []string{"doomed"},
						Shape:     models.AnyShape(),
					})
					if err != nil {
						t.Errorf("AddTask failed: %v", err)
					}
				})
			}
		}),
	)

	var err error
	f, err = o.NewFlow("", []*models.Task{
		{ID: "doomed", Objective: "Fail immediately", Shape: models.AnyShape()},
	})
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}

	result, err := f.Run(context.Background())
	if !errors.Is(err, ErrDeadlock) {
		t.Fatalf("expected ErrDeadlock, got %v", err)
	}
	if got := taskByID(result.Tasks, "orphan").State; got != models.TaskStateSkipped {
		t.Errorf("expected orphan skipped after deadlock, got %q", got)
	}
}

func TestTransientErrorRetriedWithinTask(t *testing.T) {
	flaky := agent.NewScripted(
		agent.ScriptStep{Err: agent.ErrUnavailable},
		agent.ScriptStep{Output: "recovered"},
	)

	o := New(newTestBinding(flaky, nil))
	f, err := o.NewFlow("", []*models.Task{
		{ID: "t", Objective: "Do the thing", Shape: models.StringShape()},
	})
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}

	result, err := f.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := taskByID(result.Tasks, "t").State; got != models.TaskStateSucceeded {
		t.Errorf("expected success after transient retry, got %q", got)
	}
	if flaky.Calls() != 2 {
		t.Errorf("expected 2 capability calls, got %d", flaky.Calls())
	}
	if result.State != models.FlowCompleted {
		t.Errorf("expected completed flow, got %q", result.State)
	}
}

func TestEventStream(t *testing.T) {
	cap := agent.NewScripted(agent.ScriptStep{Output: "ok"})

	var mu sync.Mutex
	var types []EventType
	o := New(
		newTestBinding(cap, nil),
		WithEventHandler(func(e Event) {
			mu.Lock()
			types = append(types, e.Type)
			mu.Unlock()
		}),
	)

	f, err := o.NewFlow("evented", []*models.Task{
		{ID: "t", Objective: "T", Shape: models.AnyShape()},
	})
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}
	if _, err := f.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []EventType{EventFlowStarted, EventTaskStarted, EventTaskSucceeded, EventFlowDone}
	if len(types) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(types), types)
	}
	for i, typ := range want {
		if types[i] != typ {
			t.Errorf("event %d: expected %s, got %s", i, typ, types[i])
		}
	}
}
