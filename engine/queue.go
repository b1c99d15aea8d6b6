package flowengine

import "sync"

// task is one unit of work for the runtime loop.
type task func()

// taskQueue is an unbounded FIFO of loop tasks. Producers on any goroutine
// enqueue; only the runtime loop dequeues.
//
// It is unbounded so that a long fan-out chain can enqueue its deliveries
// without blocking the sender, which may itself be running on the loop.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []task
	closed bool
	signal chan struct{} // buffered, size 1
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]task, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// enqueue appends t. Returns false once the queue is closed.
func (q *taskQueue) enqueue(t task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, t)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// tryDequeue pops the front task without blocking.
func (q *taskQueue) tryDequeue() (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}

	t := q.tasks[0]
	q.tasks[0] = nil
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return t, true
}

// wait signals when tasks may be available.
func (q *taskQueue) wait() <-chan struct{} {
	return q.signal
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// close rejects further tasks and drops the pending ones.
func (q *taskQueue) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0
	}
	q.closed = true
	dropped := len(q.tasks)
	q.tasks = nil
	// A pending wake token would satisfy one receive before the close is seen.
	select {
	case <-q.signal:
	default:
	}
	close(q.signal)
	return dropped
}
