package busloop

import "sync/atomic"

// Metrics is a point-in-time snapshot of loop counters. All counters are
// cumulative over the loop's lifetime; Loop.Metrics returns a copy, safe to
// read from any goroutine while the loop runs.
type Metrics struct {
	// Iterations counts wait cycles begun.
	Iterations uint64

	// IOWakeups counts polls that returned with at least one ready
	// descriptor, including the wake channel.
	IOWakeups uint64

	// ReadinessDelivered counts Watch.HandleReady invocations.
	ReadinessDelivered uint64

	// TimerExpiries counts Timer.HandleExpired invocations.
	TimerExpiries uint64

	// WakeupsDrained counts wake-channel drain passes. Because wake writes
	// coalesce, this is typically far below Dispatches under load.
	WakeupsDrained uint64

	// CompletionsDrained counts finished work items detached from the
	// completion queue.
	CompletionsDrained uint64

	// MaxDrainBatch is the largest number of completions delivered from a
	// single drain pass.
	MaxDrainBatch uint64

	// Dispatches counts accepted requests, each backed by one worker
	// goroutine.
	Dispatches uint64

	// Replies counts results handed to Transport.Reply.
	Replies uint64

	// DroppedAtQuit counts completions that were still queued when the
	// loop terminated and could no longer be delivered.
	DroppedAtQuit uint64
}

// loopMetrics is the live counter set backing Metrics snapshots. Plain
// atomics; the loop goroutine writes most counters, workers none, so
// contention is limited to Dispatches.
type loopMetrics struct {
	iterations         atomic.Uint64
	ioWakeups          atomic.Uint64
	readinessDelivered atomic.Uint64
	timerExpiries      atomic.Uint64
	wakeupsDrained     atomic.Uint64
	completionsDrained atomic.Uint64
	maxDrainBatch      atomic.Uint64
	dispatches         atomic.Uint64
	replies            atomic.Uint64
	droppedAtQuit      atomic.Uint64
}

func (m *loopMetrics) snapshot() Metrics {
	return Metrics{
		Iterations:         m.iterations.Load(),
		IOWakeups:          m.ioWakeups.Load(),
		ReadinessDelivered: m.readinessDelivered.Load(),
		TimerExpiries:      m.timerExpiries.Load(),
		WakeupsDrained:     m.wakeupsDrained.Load(),
		CompletionsDrained: m.completionsDrained.Load(),
		MaxDrainBatch:      m.maxDrainBatch.Load(),
		Dispatches:         m.dispatches.Load(),
		Replies:            m.replies.Load(),
		DroppedAtQuit:      m.droppedAtQuit.Load(),
	}
}

// observeDrainBatch records n as the batch high-water mark if it exceeds
// the current one.
func (m *loopMetrics) observeDrainBatch(n uint64) {
	for {
		cur := m.maxDrainBatch.Load()
		if n <= cur || m.maxDrainBatch.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Metrics returns a snapshot of the loop's counters.
func (l *Loop) Metrics() Metrics {
	return l.metrics.snapshot()
}
