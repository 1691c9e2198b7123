package busloop

import (
	"sync"
	"testing"
)

func TestWorkQueue_FIFO(t *testing.T) {
	var q workQueue
	if q.pending() {
		t.Fatal("empty queue reported pending")
	}

	a := &workItem{token: "a"}
	b := &workItem{token: "b"}
	c := &workItem{token: "c"}
	q.push(a)
	q.push(b)
	q.push(c)

	if !q.pending() {
		t.Fatal("queue with items reported not pending")
	}

	var got []any
	for item := q.drainAll(); item != nil; item = item.next {
		got = append(got, item.token)
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("drain order = %v, want [a b c]", got)
	}

	if q.pending() {
		t.Fatal("drained queue reported pending")
	}
	if q.drainAll() != nil {
		t.Fatal("second drain returned items")
	}
}

func TestWorkQueue_DrainCoalesces(t *testing.T) {
	var q workQueue
	const workers = 8
	const perWorker = 250

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				q.push(&workItem{limit: uint64(w*perWorker + i)})
			}
		}(w)
	}
	wg.Wait()

	// Every push from every worker lands in one drain.
	seen := make(map[uint64]bool, workers*perWorker)
	for item := q.drainAll(); item != nil; item = item.next {
		if seen[item.limit] {
			t.Fatalf("item %d drained twice", item.limit)
		}
		seen[item.limit] = true
	}
	if len(seen) != workers*perWorker {
		t.Fatalf("drained %d items, want %d", len(seen), workers*perWorker)
	}
	if q.pending() {
		t.Fatal("queue reported pending after full drain")
	}
}

func TestWorkQueue_InterleavedPushDrain(t *testing.T) {
	var q workQueue
	q.push(&workItem{token: 1})
	first := q.drainAll()
	if first == nil || first.next != nil {
		t.Fatal("first drain should hold exactly one item")
	}

	// The queue must be reusable after a drain; tail state resets.
	q.push(&workItem{token: 2})
	q.push(&workItem{token: 3})
	second := q.drainAll()
	if second == nil || second.token != 2 || second.next == nil || second.next.token != 3 {
		t.Fatal("queue not reusable after drain")
	}
}
