package busloop

import (
	"sync"
	"testing"
)

func TestLoopMetrics_Snapshot(t *testing.T) {
	var m loopMetrics
	m.iterations.Add(3)
	m.ioWakeups.Add(2)
	m.dispatches.Add(7)
	m.replies.Add(7)
	m.droppedAtQuit.Add(1)

	snap := m.snapshot()
	if snap.Iterations != 3 || snap.IOWakeups != 2 || snap.Dispatches != 7 || snap.Replies != 7 || snap.DroppedAtQuit != 1 {
		t.Fatalf("snapshot mismatch: %+v", snap)
	}

	// Snapshots are copies; mutating the source must not change them.
	m.iterations.Add(1)
	if snap.Iterations != 3 {
		t.Fatal("snapshot aliased live counters")
	}
}

func TestLoopMetrics_ObserveDrainBatch(t *testing.T) {
	var m loopMetrics
	m.observeDrainBatch(4)
	m.observeDrainBatch(2)
	if got := m.maxDrainBatch.Load(); got != 4 {
		t.Fatalf("max drain batch = %d, want 4", got)
	}
	m.observeDrainBatch(9)
	if got := m.maxDrainBatch.Load(); got != 9 {
		t.Fatalf("max drain batch = %d, want 9", got)
	}
}

func TestLoopMetrics_ObserveDrainBatchConcurrent(t *testing.T) {
	var m loopMetrics
	var wg sync.WaitGroup
	for i := 1; i <= 64; i++ {
		wg.Add(1)
		go func(n uint64) {
			defer wg.Done()
			m.observeDrainBatch(n)
		}(uint64(i))
	}
	wg.Wait()
	if got := m.maxDrainBatch.Load(); got != 64 {
		t.Fatalf("max drain batch = %d, want 64", got)
	}
}
