package coordinator

import "sync"

// Queue is an unbounded FIFO safe for concurrent producers. DrainAll
// hands every queued item to exactly one caller.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// DrainAll removes and returns everything enqueued so far. Items
// enqueued after the call wait for the next drain.
func (q *Queue[T]) DrainAll() []T {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
