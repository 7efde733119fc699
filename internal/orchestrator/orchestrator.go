package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/weave/internal/agent"
	"github.com/ShayCichocki/weave/internal/flow"
	"github.com/ShayCichocki/weave/internal/graph"
	"github.com/ShayCichocki/weave/internal/interaction"
	"github.com/ShayCichocki/weave/internal/state"
	"github.com/ShayCichocki/weave/internal/validation"
	"github.com/ShayCichocki/weave/pkg/models"
)

const (
	// DefaultMaxConcurrent is the default number of simultaneously running
	// tasks per flow.
	DefaultMaxConcurrent = 4
	// DefaultCorrectionRounds is the default total number of agent
	// invocations allowed per task, counting the initial one.
	DefaultCorrectionRounds = 3
)

// ErrDeadlock is returned when non-terminal tasks remain but none can ever
// become ready: nothing is running, nothing is suspended, and no resumption
// is pending.
var ErrDeadlock = errors.New("flow deadlocked: remaining tasks can never become ready")

// Orchestrator holds the shared machinery for running flows: the agent
// binding, the result validator, concurrency and correction policy, and
// optional persistence and event plumbing.
type Orchestrator struct {
	binding          *agent.Binding
	validator        *validation.Validator
	maxConcurrent    int
	correctionRounds int
	store            state.Store
	onEvent          EventHandler
	debugLog         func(format string, args ...interface{})
}

// New creates an Orchestrator around the given agent binding.
func New(binding *agent.Binding, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		binding:          binding,
		validator:        validation.New(),
		maxConcurrent:    DefaultMaxConcurrent,
		correctionRounds: DefaultCorrectionRounds,
		debugLog:         func(format string, args ...interface{}) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Flow is one execution of a task graph. It owns the dependency graph, the
// shared conversation context, and the interaction session for its run.
type Flow struct {
	// ID uniquely identifies this flow run.
	ID string
	// Name is the declared flow name, if any.
	Name string

	o       *Orchestrator
	graph   *graph.DependencyGraph
	fctx    *flow.Context
	session *interaction.Session
	sched   *scheduler
	// trigger wakes the run loop after a dynamic task insertion.
	trigger chan struct{}
}

// FlowResult summarizes a finished flow run.
type FlowResult struct {
	// FlowID identifies the run.
	FlowID string
	// State is the flow's terminal state.
	State models.FlowState
	// Tasks holds the final snapshot of every task in the graph.
	Tasks []models.Task
}

// NewFlow validates the task set and prepares a flow for execution. Graph
// errors (cycles, unknown dependencies, duplicate IDs) surface here, before
// any agent is invoked.
func (o *Orchestrator) NewFlow(name string, tasks []*models.Task) (*Flow, error) {
	g := graph.New()
	g.SetDebugLog(o.debugLog)
	if err := g.Build(tasks); err != nil {
		return nil, fmt.Errorf("build task graph: %w", err)
	}

	id := uuid.New().String()[:8]
	fctx := flow.NewContext(id)

	return &Flow{
		ID:      id,
		Name:    name,
		o:       o,
		graph:   g,
		fctx:    fctx,
		session: interaction.NewSession(fctx),
		sched:   newScheduler(o.maxConcurrent),
		trigger: make(chan struct{}, 1),
	}, nil
}

// Session exposes the flow's interaction session, used to answer questions
// asked by suspended tasks.
func (f *Flow) Session() *interaction.Session {
	return f.session
}

// Context exposes the flow's shared conversation context.
func (f *Flow) Context() *flow.Context {
	return f.fctx
}

// Graph exposes the flow's dependency graph for read-only inspection.
func (f *Flow) Graph() *graph.DependencyGraph {
	return f.graph
}

// AddTask inserts a task into a flow that may already be running. The
// insertion is atomic with respect to scheduling: the task is either fully
// visible to the next dispatch pass or not present at all.
func (f *Flow) AddTask(task *models.Task) error {
	if err := f.graph.Add(task); err != nil {
		return err
	}
	select {
	case f.trigger <- struct{}{}:
	default:
	}
	return nil
}

// Run executes the flow to a terminal state. It dispatches ready tasks up
// to the concurrency limit, collects completions, resumes suspended tasks
// as input arrives, and returns once every task is terminal. Cancelling ctx
// abandons the flow: running and suspended tasks fail as cancelled and
// tasks that never started are skipped.
func (f *Flow) Run(ctx context.Context) (*FlowResult, error) {
	f.persistFlowStart()
	f.emit(Event{Type: EventFlowStarted, Message: f.Name})

	// Each in-flight executor sends exactly one completion; the buffer
	// lets them finish even if the loop has stopped reading.
	completionCh := make(chan completion, f.o.maxConcurrent)

	for {
		// Cancellation wins over any other pending work.
		select {
		case <-ctx.Done():
			f.abandon(ctx.Err())
			return f.finish(), ctx.Err()
		default:
		}

		f.dispatch(ctx, completionCh)

		if f.graph.AllTerminal() {
			break
		}

		if f.sched.runningCount() == 0 && f.session.AwaitingCount() == 0 &&
			f.sched.resumeBacklog() == 0 && len(f.session.Resumed()) == 0 {
			f.failDeadlocked()
			return f.finish(), ErrDeadlock
		}

		select {
		case c := <-completionCh:
			f.handleCompletion(c)
		case taskID := <-f.session.Resumed():
			f.handleResume(ctx, taskID, completionCh)
		case <-f.trigger:
			// A task was inserted; loop around and re-dispatch.
		case <-ctx.Done():
			f.abandon(ctx.Err())
			return f.finish(), ctx.Err()
		}
	}

	return f.finish(), nil
}

// dispatch fills free slots: parked resumptions first, then ready tasks in
// creation order.
func (f *Flow) dispatch(ctx context.Context, ch chan<- completion) {
	for {
		taskID, ok := f.sched.nextResume()
		if !ok {
			break
		}
		if !f.startTask(ctx, taskID, true, ch) {
			f.sched.requeueFront(taskID)
			return
		}
	}

	for _, task := range f.graph.ReadySet() {
		if !f.startTask(ctx, task.ID, false, ch) {
			return
		}
	}
}

// startTask claims a slot and launches the executor goroutine. Returns
// false when no slot is free.
func (f *Flow) startTask(ctx context.Context, taskID string, resumed bool, ch chan<- completion) bool {
	if !f.sched.acquire(taskID) {
		return false
	}

	task := f.graph.Task(taskID)
	if task == nil || task.State.Terminal() {
		f.sched.release(taskID)
		return true
	}

	if err := f.graph.SetState(taskID, models.TaskStateRunning); err != nil {
		f.sched.release(taskID)
		f.o.debugLog("[orchestrator] cannot start %s: %v", taskID, err)
		return true
	}
	f.persistTask(taskID)

	if resumed {
		f.emit(Event{Type: EventTaskResumed, TaskID: taskID})
	} else {
		f.emit(Event{Type: EventTaskStarted, TaskID: taskID, Message: task.Objective})
	}

	go f.execute(ctx, task, resumed, ch)
	return true
}

// handleCompletion applies one executor outcome to the graph.
func (f *Flow) handleCompletion(c completion) {
	f.sched.release(c.taskID)

	switch c.kind {
	case outcomeSucceeded:
		if err := f.fctx.SetResult(c.taskID, c.result); err != nil {
			f.o.debugLog("[orchestrator] record result for %s: %v", c.taskID, err)
		}
		if err := f.graph.Complete(c.taskID, c.result); err != nil {
			f.o.debugLog("[orchestrator] complete %s: %v", c.taskID, err)
		}
		f.persistTask(c.taskID)
		f.emit(Event{Type: EventTaskSucceeded, TaskID: c.taskID})

	case outcomeFailed:
		skipped, err := f.graph.Fail(c.taskID, c.reason, c.detail)
		if err != nil {
			f.o.debugLog("[orchestrator] fail %s: %v", c.taskID, err)
		}
		f.persistTask(c.taskID)
		f.emit(Event{Type: EventTaskFailed, TaskID: c.taskID, Message: c.detail})
		for _, id := range skipped {
			f.persistTask(id)
			f.emit(Event{Type: EventTaskSkipped, TaskID: id, Message: "dependency did not succeed"})
		}

	case outcomeAwaiting:
		if err := f.graph.SetState(c.taskID, models.TaskStateAwaitingInput); err != nil {
			f.o.debugLog("[orchestrator] suspend %s: %v", c.taskID, err)
		}
		f.session.Await(c.taskID, c.question)
		f.persistTask(c.taskID)
		f.emit(Event{Type: EventTaskAwaitingInput, TaskID: c.taskID, Question: c.question})
	}
}

// handleResume re-dispatches a task whose input arrived, or parks it when
// every slot is busy.
func (f *Flow) handleResume(ctx context.Context, taskID string, ch chan<- completion) {
	if f.startTask(ctx, taskID, true, ch) {
		return
	}
	f.sched.queueResume(taskID)
}

// abandon applies the cancellation mapping: running and suspended tasks
// fail as cancelled, tasks that never started are skipped. In-flight
// executors observe the cancelled context and drain into the buffered
// completion channel.
func (f *Flow) abandon(cause error) {
	detail := "flow abandoned"
	if cause != nil {
		detail = fmt.Sprintf("flow abandoned: %v", cause)
	}
	f.o.debugLog("[orchestrator] abandoning flow %s, in-flight: %v", f.ID, f.sched.runningIDs())

	for _, task := range f.graph.Snapshot() {
		switch task.State {
		case models.TaskStateRunning, models.TaskStateAwaitingInput:
			if _, err := f.graph.Fail(task.ID, models.FailureCancelled, detail); err != nil {
				f.o.debugLog("[orchestrator] cancel %s: %v", task.ID, err)
			}
			f.persistTask(task.ID)
			f.emit(Event{Type: EventTaskFailed, TaskID: task.ID, Message: detail})
		case models.TaskStatePending, models.TaskStateReady:
			if _, err := f.graph.Skip(task.ID); err != nil {
				f.o.debugLog("[orchestrator] skip %s: %v", task.ID, err)
			}
			f.persistTask(task.ID)
			f.emit(Event{Type: EventTaskSkipped, TaskID: task.ID, Message: detail})
		}
	}
}

// failDeadlocked marks every remaining non-terminal task skipped so the
// flow still reaches a terminal snapshot.
func (f *Flow) failDeadlocked() {
	for _, task := range f.graph.Snapshot() {
		if task.State.Terminal() {
			continue
		}
		if _, err := f.graph.Skip(task.ID); err != nil {
			f.o.debugLog("[orchestrator] skip deadlocked %s: %v", task.ID, err)
		}
		f.persistTask(task.ID)
		f.emit(Event{Type: EventTaskSkipped, TaskID: task.ID, Message: "unreachable: dependency chain cannot complete"})
	}
}

// finish freezes the context, derives the terminal flow state, persists it,
// and builds the result snapshot.
func (f *Flow) finish() *FlowResult {
	f.fctx.Finalize()

	flowState := f.graph.FlowState()
	f.persistFlowState(flowState)
	f.emit(Event{Type: EventFlowDone, FlowState: flowState})

	return &FlowResult{
		FlowID: f.ID,
		State:  flowState,
		Tasks:  f.graph.Snapshot(),
	}
}

func (f *Flow) persistFlowStart() {
	if f.o.store == nil {
		return
	}
	rec := &state.FlowRecord{
		ID:        f.ID,
		Name:      f.Name,
		State:     models.FlowRunning,
		StartedAt: time.Now(),
	}
	if err := f.o.store.CreateFlow(rec); err != nil {
		log.Printf("[orchestrator] persist flow start: %v", err)
	}
	for _, task := range f.graph.Snapshot() {
		f.persistTask(task.ID)
	}
}

func (f *Flow) persistFlowState(s models.FlowState) {
	if f.o.store == nil {
		return
	}
	if err := f.o.store.UpdateFlowState(f.ID, s); err != nil {
		log.Printf("[orchestrator] persist flow state: %v", err)
	}
}

func (f *Flow) persistTask(taskID string) {
	if f.o.store == nil {
		return
	}
	task := f.graph.Task(taskID)
	if task == nil {
		return
	}

	rec := &state.TaskRecord{
		FlowID:        f.ID,
		TaskID:        task.ID,
		Objective:     task.Objective,
		State:         task.State,
		FailureReason: task.FailureReason,
		FailureDetail: task.FailureDetail,
	}
	if task.Result != nil {
		if data, err := json.Marshal(task.Result.Value); err == nil {
			rec.ResultJSON = string(data)
		}
	}
	if err := f.o.store.SaveTask(rec); err != nil {
		log.Printf("[orchestrator] persist task %s: %v", taskID, err)
	}
}
