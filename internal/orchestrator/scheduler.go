package orchestrator

import "sync"

// scheduler tracks dispatch slots and in-flight tasks for one flow run.
// A suspended task holds no slot: its slot is released when it parks in
// AwaitingInput and re-acquired on resumption.
type scheduler struct {
	mu sync.Mutex
	// limit is the maximum number of simultaneously running tasks.
	limit int
	// running holds the IDs of tasks currently occupying a slot.
	running map[string]bool
	// resumeQueue holds resumed tasks waiting for a free slot, in arrival
	// order.
	resumeQueue []string
}

func newScheduler(limit int) *scheduler {
	if limit < 1 {
		limit = 1
	}
	return &scheduler{
		limit:   limit,
		running: make(map[string]bool),
	}
}

// acquire claims a slot for the task. Returns false when all slots are busy
// or the task already holds one.
func (s *scheduler) acquire(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running[taskID] || len(s.running) >= s.limit {
		return false
	}
	s.running[taskID] = true
	return true
}

// release frees the task's slot.
func (s *scheduler) release(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, taskID)
}

// runningCount returns the number of occupied slots.
func (s *scheduler) runningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// runningIDs returns the IDs of tasks currently holding slots.
func (s *scheduler) runningIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	return ids
}

// queueResume parks a resumed task until a slot frees up.
func (s *scheduler) queueResume(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumeQueue = append(s.resumeQueue, taskID)
}

// requeueFront puts a resumption back at the head of the queue, preserving
// arrival order when no slot was free after all.
func (s *scheduler) requeueFront(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumeQueue = append([]string{taskID}, s.resumeQueue...)
}

// nextResume pops the oldest parked resumption, if any.
func (s *scheduler) nextResume() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.resumeQueue) == 0 {
		return "", false
	}
	id := s.resumeQueue[0]
	s.resumeQueue = s.resumeQueue[1:]
	return id, true
}

// resumeBacklog returns how many resumed tasks await a slot.
func (s *scheduler) resumeBacklog() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resumeQueue)
}
