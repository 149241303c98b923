package dispatch

import "sync"

// workQueue carries the control signals Run acts on. Producers never block and
// no signal is lost: task IDs are held in insertion order until drained, and a
// release is remembered as a single pending re-sweep.
type workQueue struct {
	mu      sync.Mutex
	tasks   []string
	queued  map[string]bool
	resweep bool
	wake    chan struct{}
}

func newWorkQueue() *workQueue {
	return &workQueue{queued: make(map[string]bool), wake: make(chan struct{}, 1)}
}

// needs records that the task waits for resources.
func (q *workQueue) needs(taskID string) {
	q.mu.Lock()
	if !q.queued[taskID] {
		q.queued[taskID] = true
		q.tasks = append(q.tasks, taskID)
	}
	q.mu.Unlock()
	q.poke()
}

// released records that resources were returned.
func (q *workQueue) released() {
	q.mu.Lock()
	q.resweep = true
	q.mu.Unlock()
	q.poke()
}

func (q *workQueue) poke() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drain hands out and clears the pending work.
func (q *workQueue) drain() (tasks []string, resweep bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	tasks, resweep = q.tasks, q.resweep
	q.tasks = nil
	q.queued = make(map[string]bool)
	q.resweep = false
	return tasks, resweep
}
