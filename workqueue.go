package busloop

import (
	"sync"
	"sync/atomic"
)

// workItem carries one accepted request from dispatch through computation to
// reply delivery. A single allocation serves the whole round trip; next is
// meaningful only while the item sits in a workQueue, inside its critical
// section.
type workItem struct {
	next   *workItem
	token  any
	width  Width
	limit  uint64
	result uint64
}

// workQueue is the completion queue: an intrusive singly linked FIFO that
// worker goroutines append finished items to and the loop goroutine drains.
// It is the only mutex in the package.
//
// size shadows the list length so the loop can observe "completions pending"
// without taking the lock when it computes a poll timeout. It is updated
// inside the critical section, so a reader that misses a concurrent push by
// one is caught by the wake write that follows every push.
type workQueue struct {
	mu   sync.Mutex
	head *workItem
	tail *workItem
	size atomic.Int64
}

// push appends item in completion order. Called from worker goroutines.
func (q *workQueue) push(item *workItem) {
	q.mu.Lock()
	item.next = nil
	if q.tail == nil {
		q.head = item
	} else {
		q.tail.next = item
	}
	q.tail = item
	q.size.Add(1)
	q.mu.Unlock()
}

// drainAll detaches the entire list in one critical section and returns its
// head, leaving the queue empty. The caller walks the detached list outside
// the lock, so reply delivery never blocks workers. Items come out FIFO.
func (q *workQueue) drainAll() *workItem {
	q.mu.Lock()
	head := q.head
	q.head = nil
	q.tail = nil
	q.size.Store(0)
	q.mu.Unlock()
	return head
}

// pending reports whether any completion is waiting. While it holds, the
// loop polls with a zero timeout, so delivery survives a dropped or lost
// wake write.
func (q *workQueue) pending() bool {
	return q.size.Load() > 0
}
