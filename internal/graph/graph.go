// Package graph provides the dependency graph driving flow scheduling.
//
// The graph is an index over an arena of tasks keyed by stable ID. Tasks may
// be inserted while scheduling is underway (a running task can spawn new
// work); insertion validates only the new edges rather than rebuilding the
// whole graph. All reads and state transitions go through one mutex, so a
// task inserted mid-step is either fully visible to the next readiness
// computation or not visible at all.
package graph

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ShayCichocki/weave/pkg/models"
)

// ErrCycle indicates a circular dependency was found in the task graph.
var ErrCycle = errors.New("circular dependency detected")

// ErrUnknownDependency indicates a task references a dependency ID that does
// not exist in the flow.
var ErrUnknownDependency = errors.New("unknown dependency")

// ErrDuplicateTask indicates a task ID was declared twice in the same flow.
var ErrDuplicateTask = errors.New("duplicate task id")

// ErrUnknownTask indicates an operation referenced a task ID not in the graph.
var ErrUnknownTask = errors.New("unknown task")

// DependencyGraph is a directed acyclic graph of task dependencies.
// Tasks are nodes, and edges represent "blocked by" relationships.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself. The graph owns task state:
	// every state transition happens under mu.
	nodes map[string]*models.Task
	// edges maps task ID to IDs of tasks it depends on (is blocked by).
	edges map[string][]string
	// order records task IDs in creation order. ReadySet iterates this
	// slice so dispatch order is deterministic.
	order []string
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:    make(map[string]*models.Task),
		edges:    make(map[string][]string),
		debugLog: func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the dependency graph from a slice of declared tasks.
// Returns ErrCycle if the declaration contains a circular dependency, or
// ErrUnknownDependency if a task references an ID outside the set. Build is
// a construction-time operation: a failure here aborts the flow before any
// task executes.
func (g *DependencyGraph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.Build] building graph from %d tasks", len(tasks))

	// First pass: register all tasks as nodes.
	for _, task := range tasks {
		if _, exists := g.nodes[task.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
		}
		if task.State == "" {
			task.State = models.TaskStatePending
		}
		if task.CreatedAt.IsZero() {
			task.CreatedAt = time.Now()
		}
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
		g.order = append(g.order, task.ID)
	}

	// Second pass: build edges from DependsOn fields.
	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("%w: task %s depends on %s", ErrUnknownDependency, task.ID, depID)
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycle
	}

	g.debugLog("[graph.Build] graph built successfully with %d nodes", len(g.nodes))
	return nil
}

// Add inserts a single task into the graph after construction. It is used
// for tasks spawned dynamically by a running task. Only the new edges are
// validated: every dependency must already exist, and none may be reachable
// FROM the new task through existing edges back to it (which, for a fresh
// node nothing depends on yet, reduces to rejecting self-dependencies).
func (g *DependencyGraph) Add(task *models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[task.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}
	for _, depID := range task.DependsOn {
		if depID == task.ID {
			return fmt.Errorf("%w: task %s depends on itself", ErrCycle, task.ID)
		}
		if _, exists := g.nodes[depID]; !exists {
			return fmt.Errorf("%w: task %s depends on %s", ErrUnknownDependency, task.ID, depID)
		}
		if g.reachableLocked(depID, task.ID) {
			return fmt.Errorf("%w: task %s", ErrCycle, task.ID)
		}
	}

	if task.State == "" {
		task.State = models.TaskStatePending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	g.nodes[task.ID] = task
	g.edges[task.ID] = append([]string(nil), task.DependsOn...)
	g.order = append(g.order, task.ID)

	g.debugLog("[graph.Add] inserted task %s (deps=%v), graph now has %d nodes", task.ID, task.DependsOn, len(g.nodes))
	return nil
}

// reachableLocked reports whether target can be reached from start by
// following dependency edges. Caller must hold g.mu.
func (g *DependencyGraph) reachableLocked(start, target string) bool {
	seen := make(map[string]bool)
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == target {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		stack = append(stack, g.edges[id]...)
	}
	return false
}

// hasCycleLocked detects cycles with depth-first search coloring.
// Caller must hold g.mu.
func (g *DependencyGraph) hasCycleLocked() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int)
	for id := range g.nodes {
		colors[id] = 0
	}

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Back edge - cycle detected.
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// ReadySet returns, in creation order, every pending task whose
// dependencies have all reached Succeeded or Skipped. It is a pure query
// with no side effects.
func (g *DependencyGraph) ReadySet() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// order is append-only, so iterating it yields creation order; IDs are
	// unique, so the ordering is total.
	var ready []*models.Task
	for _, id := range g.order {
		task := g.nodes[id]
		if task.State != models.TaskStatePending && task.State != models.TaskStateReady {
			continue
		}
		if g.depsSatisfiedLocked(id) {
			ready = append(ready, task)
		}
	}
	return ready
}

// depsSatisfiedLocked reports whether every dependency of the task has
// reached Succeeded or Skipped. A failed dependency never satisfies
// readiness; the failure cascade skips such dependents instead. Caller must
// hold g.mu.
func (g *DependencyGraph) depsSatisfiedLocked(id string) bool {
	for _, depID := range g.edges[id] {
		dep, exists := g.nodes[depID]
		if !exists {
			return false
		}
		if dep.State != models.TaskStateSucceeded && dep.State != models.TaskStateSkipped {
			return false
		}
	}
	return true
}

// Task returns the task for a given ID, or nil if not found.
func (g *DependencyGraph) Task(id string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Tasks returns all tasks in creation order.
func (g *DependencyGraph) Tasks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*models.Task, 0, len(g.order))
	for _, id := range g.order {
		tasks = append(tasks, g.nodes[id])
	}
	return tasks
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the IDs of tasks the given task depends on.
func (g *DependencyGraph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[id]...)
}

// Dependents returns the IDs of tasks that directly depend on the given task.
func (g *DependencyGraph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dependentsLocked(id)
}

func (g *DependencyGraph) dependentsLocked(id string) []string {
	var dependents []string
	for _, candidate := range g.order {
		for _, depID := range g.edges[candidate] {
			if depID == id {
				dependents = append(dependents, candidate)
				break
			}
		}
	}
	return dependents
}

// SetState transitions a task to the given state. Terminal tasks are never
// transitioned again.
func (g *DependencyGraph) SetState(id string, state models.TaskState) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.nodes[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if task.State.Terminal() {
		return fmt.Errorf("task %s is already terminal (%s)", id, task.State)
	}
	task.State = state
	return nil
}

// Complete marks a task succeeded and stores its result. Dependents become
// eligible for the next ReadySet computation.
func (g *DependencyGraph) Complete(id string, result *models.Result) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.nodes[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if task.State.Terminal() {
		return fmt.Errorf("task %s is already terminal (%s)", id, task.State)
	}
	task.State = models.TaskStateSucceeded
	task.Result = result
	g.debugLog("[graph.Complete] task %s succeeded", id)
	return nil
}

// Fail marks a task failed with the given reason and diagnostic detail, then
// transitively skips every non-terminal dependent. The returned slice lists
// the skipped task IDs.
func (g *DependencyGraph) Fail(id string, reason models.FailureReason, detail string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.nodes[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if task.State.Terminal() {
		return nil, fmt.Errorf("task %s is already terminal (%s)", id, task.State)
	}
	task.State = models.TaskStateFailed
	task.FailureReason = reason
	task.FailureDetail = detail
	g.debugLog("[graph.Fail] task %s failed: %s", id, reason)

	return g.skipDependentsLocked(id), nil
}

// Skip marks a single non-terminal, non-running task skipped and cascades to
// its dependents. Used when a flow is abandoned.
func (g *DependencyGraph) Skip(id string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.nodes[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if task.State.Terminal() {
		return nil, nil
	}
	task.State = models.TaskStateSkipped
	return g.skipDependentsLocked(id), nil
}

// skipDependentsLocked transitively marks every pending dependent of the
// given task as skipped. Running or awaiting tasks are left alone: they fail
// or complete on their own. Caller must hold g.mu.
func (g *DependencyGraph) skipDependentsLocked(id string) []string {
	var skipped []string
	queue := g.dependentsLocked(id)
	for len(queue) > 0 {
		depID := queue[0]
		queue = queue[1:]
		dep := g.nodes[depID]
		if dep == nil || dep.State.Terminal() {
			continue
		}
		if dep.State == models.TaskStateRunning || dep.State == models.TaskStateAwaitingInput {
			continue
		}
		dep.State = models.TaskStateSkipped
		skipped = append(skipped, depID)
		g.debugLog("[graph] task %s skipped (dependency %s did not succeed)", depID, id)
		queue = append(queue, g.dependentsLocked(depID)...)
	}
	return skipped
}

// AllTerminal returns true once every task in the graph is terminal.
func (g *DependencyGraph) AllTerminal() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, task := range g.nodes {
		if !task.State.Terminal() {
			return false
		}
	}
	return true
}

// FlowState derives the overall flow outcome from the task states. It only
// makes sense to call once AllTerminal reports true.
func (g *DependencyGraph) FlowState() models.FlowState {
	g.mu.RLock()
	defer g.mu.RUnlock()

	succeeded, other := 0, 0
	for _, task := range g.nodes {
		switch task.State {
		case models.TaskStateSucceeded:
			succeeded++
		default:
			other++
		}
	}
	switch {
	case other == 0 && succeeded > 0:
		return models.FlowCompleted
	case succeeded > 0:
		return models.FlowPartiallyCompleted
	default:
		return models.FlowFailed
	}
}

// Snapshot returns value copies of every task in creation order, for final
// reports and failure diagnosis.
func (g *DependencyGraph) Snapshot() []models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]models.Task, 0, len(g.order))
	for _, id := range g.order {
		tasks = append(tasks, *g.nodes[id])
	}
	return tasks
}
