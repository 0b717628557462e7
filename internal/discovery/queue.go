package discovery

import "sync"

// queue is an unbounded FIFO with a join barrier. pending counts tasks that
// are queued or in flight; when it drops to zero the queue closes and every
// blocked pop returns.
type queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []Task
	pending int
	closed  bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues t. It reports false once the queue is closed.
func (q *queue) push(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, t)
	q.pending++
	q.cond.Signal()
	return true
}

// pop blocks until a task is available or the queue is closed.
func (q *queue) pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return Task{}, false
	}
	t := q.items[0]
	q.items[0] = Task{}
	q.items = q.items[1:]
	return t, true
}

// done settles one popped task. Every push must happen before the pushing
// task calls done.
func (q *queue) done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending--
	if q.pending <= 0 {
		q.closed = true
		q.cond.Broadcast()
	}
}

// sealIfIdle closes a queue that was never given work.
func (q *queue) sealIfIdle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == 0 {
		q.closed = true
		q.cond.Broadcast()
	}
}

// close stops the queue early. Queued tasks are abandoned. Safe to call
// more than once.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
