// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package busloop

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/joeycumines/logiface"
)

// Standard errors.
var (
	// ErrLoopAlreadyRunning is returned when Run is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("busloop: loop is already running")

	// ErrLoopTerminated is returned when operations are attempted on a terminated loop.
	ErrLoopTerminated = errors.New("busloop: loop has been terminated")
)

// Loop multiplexes transport readiness, timers, and worker completions onto
// a single goroutine.
//
// All transport interaction happens on that goroutine: readiness handlers,
// message dispatch, and reply delivery are never concurrent with each other,
// so the transport needs no locking of its own. The only concurrency in the
// system is the worker goroutines Dispatch starts, and they touch nothing
// but the completion queue and the wake channel.
//
// A Loop runs once. After Run returns the loop is terminated; build a new
// one rather than reusing it.
type Loop struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	transport Transport
	workload  Workload
	logger    *logiface.Logger[logiface.Event]

	// State machine (cache-line padded internally)
	state fastState

	// Registries. Confined to the loop goroutine; see watchSet.
	watches *watchSet
	timers  *timerSet

	// Completion queue: the only state shared with workers besides the
	// wake channel.
	completions workQueue

	// Wake channel. The read end is a permanent member of the wait set;
	// on Linux both ends are the same eventfd.
	wakeReadFd  int
	wakeWriteFd int
	wakeBuf     [8]byte

	// Termination request, observed at the end of each iteration.
	quit atomic.Bool

	// Wait set, rebuilt each iteration, storage reused across them.
	wait waitSet

	// Timer expiry snapshot, reused across iterations.
	expired []Timer

	metrics loopMetrics

	// Closed when the loop will never run (again).
	loopDone chan struct{}

	// Loop ID
	id uint64
}

var loopIDCounter atomic.Uint64

// New creates a loop serving the given transport. The transport's watches
// and timers are not registered here; do that via AddWatch and AddTimer once
// the loop exists (membus.Bus.Attach, for example, wires itself up).
func New(transport Transport, opts ...Option) (*Loop, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	wakeReadFd, wakeWriteFd, err := createWakeFd(0, EFD_CLOEXEC|EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("busloop: create wake channel: %w", err)
	}

	return &Loop{
		id:          loopIDCounter.Add(1),
		transport:   transport,
		workload:    cfg.workload,
		logger:      cfg.logger,
		watches:     newWatchSet(cfg.watchCapacity),
		timers:      newTimerSet(cfg.timerCapacity),
		wakeReadFd:  wakeReadFd,
		wakeWriteFd: wakeWriteFd,
		loopDone:    make(chan struct{}),
	}, nil
}

// Run executes the loop on the calling goroutine and blocks until it
// terminates. It returns nil after a requested quit, ctx.Err() when the
// context ended the loop, and a wrapped error for the fatal conditions:
// poll failure, a readiness handler error, a transport dispatch error, or a
// reply delivery error.
//
// To run in a separate goroutine, use: `go loop.Run(ctx)`.
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.TryTransition(StateIdle, StateRunning) {
		if l.state.Load() == StateRunning {
			return ErrLoopAlreadyRunning
		}
		return ErrLoopTerminated
	}

	// Close loopDone when Run exits to release Shutdown waiters.
	defer close(l.loopDone)
	defer l.closeFDs()
	defer l.state.Store(StateTerminated)

	return l.run(ctx)
}

// run is the main loop goroutine body.
func (l *Loop) run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	// Context watcher: wake the loop on cancellation so the blocking poll
	// cannot outlive the caller.
	ctxDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			l.RequestQuit()
		case <-ctxDone:
		}
	}()
	defer close(ctxDone)

	if err := l.iterate(); err != nil {
		return err
	}
	l.logDebug().Uint64("iterations", l.metrics.iterations.Load()).Log("loop terminated")
	return ctx.Err()
}

// iterate runs wait cycles until quit or a fatal error.
//
// Each cycle: rebuild the wait set, wait once, forward readiness, deliver
// completions, expire timers, dispatch buffered messages, then observe any
// quit request. The single blocking point is the poll; everything after it
// runs without blocking on the loop goroutine.
func (l *Loop) iterate() error {
	defer l.wait.release()

	for {
		l.metrics.iterations.Add(1)

		l.wait.rebuild(l.watches.entries, l.wakeReadFd)

		timeout := l.pollTimeout()

		start := time.Now()
		n, err := l.wait.poll(timeout)
		if err != nil {
			l.logCritical("poll failed", err)
			return fmt.Errorf("busloop: poll: %w", err)
		}
		if n > 0 {
			l.metrics.ioWakeups.Add(1)
		}

		// Forward readiness. The handler may mutate the registry; the wait
		// set's snapshot keeps delivery stable for this iteration.
		for i := 0; i < l.wait.watchCount(); i++ {
			flags := l.wait.readiness(i)
			if flags == 0 {
				continue
			}
			l.metrics.readinessDelivered.Add(1)
			if err := l.wait.watch(i).HandleReady(flags); err != nil {
				l.logCritical("readiness handler failed", err)
				return fmt.Errorf("busloop: readiness handler: %w", err)
			}
		}

		// Deliver completions. The pending check makes delivery
		// level-triggered: a completion whose wake write was dropped still
		// gets delivered, at the latest on the next cycle (pollTimeout goes
		// to zero while anything is pending).
		if l.wait.wakeFired() {
			l.drainWakeFd()
			l.metrics.wakeupsDrained.Add(1)
		}
		if l.wait.wakeFired() || l.completions.pending() {
			if err := l.deliverCompletions(); err != nil {
				return err
			}
		}

		l.expireTimers(time.Since(start))

		// Dispatch buffered messages only after an actual I/O wakeup; a
		// pure timeout cannot have buffered anything new.
		if n > 0 {
			for {
				more, err := l.transport.Dispatch()
				if err != nil {
					l.logCritical("transport dispatch failed", err)
					return fmt.Errorf("busloop: transport dispatch: %w", err)
				}
				if !more {
					break
				}
			}
		}

		if l.quit.Load() {
			l.state.TryTransition(StateRunning, StateQuitting)
			l.discardCompletions()
			return nil
		}
	}
}

// pollTimeout bounds the blocking wait: zero while completions are pending
// (so a lost wake write cannot stall delivery), otherwise the smallest
// enabled timer interval in milliseconds, otherwise block indefinitely.
func (l *Loop) pollTimeout() int {
	if l.completions.pending() {
		return 0
	}
	iv, ok := l.timers.minEnabledInterval()
	if !ok {
		return -1
	}
	if iv <= 0 {
		return 0
	}
	if iv < time.Millisecond {
		return 1
	}
	return int(iv / time.Millisecond)
}

// deliverCompletions drains the completion queue once and replies to each
// item in completion order. Results are narrowed to the width the request
// arrived with before the transport re-encodes them. A reply failure is
// fatal: the transport could not deliver, and the item cannot be re-queued
// without reordering.
func (l *Loop) deliverCompletions() error {
	item := l.completions.drainAll()
	var batch uint64
	for item != nil {
		next := item.next
		item.next = nil
		l.metrics.completionsDrained.Add(1)
		if err := l.transport.Reply(item.token, item.width.Truncate(item.result), item.width); err != nil {
			l.logCritical("reply delivery failed", err)
			return fmt.Errorf("busloop: reply delivery: %w", err)
		}
		l.metrics.replies.Add(1)
		item.token = nil
		batch++
		item = next
	}
	if batch > 0 {
		l.metrics.observeDrainBatch(batch)
		l.logDebug().Uint64("completions", batch).Log("drained completion queue")
	}
	return nil
}

// expireTimers fires every enabled timer whose interval fits within the
// observed wait duration. Expiry errors are logged, never fatal; a broken
// timer must not take down message processing.
func (l *Loop) expireTimers(elapsed time.Duration) {
	// Handlers may mutate the registry; scan a snapshot.
	l.expired = append(l.expired[:0], l.timers.entries...)
	for _, t := range l.expired {
		if !t.Enabled() || t.Interval() > elapsed {
			continue
		}
		l.metrics.timerExpiries.Add(1)
		if err := t.HandleExpired(); err != nil {
			l.logWarning().Err(err).Dur("interval", t.Interval()).Log("timer expiry failed")
		}
	}
	// Clear for GC
	for i := range l.expired {
		l.expired[i] = nil
	}
	l.expired = l.expired[:0]
}

// discardCompletions drops results that finished after the final delivery
// pass. Termination does not wait for in-flight workers, so anything queued
// here can never be delivered.
func (l *Loop) discardCompletions() {
	var dropped uint64
	for item := l.completions.drainAll(); item != nil; item = item.next {
		item.token = nil
		dropped++
	}
	if dropped > 0 {
		l.metrics.droppedAtQuit.Add(dropped)
		l.logWarning().Uint64("completions", dropped).Log("dropped undelivered completions at termination")
	}
}

// RequestQuit marks the loop for termination and nudges it awake. The flag
// is observed at the end of the current iteration, after buffered messages
// finish dispatching; in-flight workers are not waited on. Safe from any
// goroutine; the typical caller is the transport, from inside Dispatch.
func (l *Loop) RequestQuit() {
	l.quit.Store(true)
	l.wake()
}

// Shutdown requests termination and blocks until Run returns or ctx
// expires. Safe whether or not Run was ever started, from any goroutine,
// and idempotent.
func (l *Loop) Shutdown(ctx context.Context) error {
	if l.state.TryTransition(StateIdle, StateQuitting) {
		// Run never started and now never will; tear down directly.
		l.state.Store(StateTerminated)
		l.closeFDs()
		close(l.loopDone)
		return nil
	}
	l.RequestQuit()
	select {
	case <-l.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the loop's lifecycle state.
func (l *Loop) State() State {
	return l.state.Load()
}

// wake nudges the loop out of its blocking wait. Content-independent: any
// number of wake writes coalesce into a single drain pass. Write errors are
// deliberately ignored; the completion queue's pending count keeps delivery
// lossless even when the write is dropped.
func (l *Loop) wake() {
	if l.state.IsTerminal() {
		return
	}
	// Native endianness; the value is never inspected, only the readiness
	// it produces. Eventfd requires exactly eight bytes.
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	_, _ = writeFD(l.wakeWriteFd, buf)
}

// drainWakeFd empties the wake channel so coalesced signals collapse into
// the single delivery pass that follows.
func (l *Loop) drainWakeFd() {
	for {
		n, err := readFD(l.wakeReadFd, l.wakeBuf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// closeFDs releases the wake channel descriptors.
func (l *Loop) closeFDs() {
	_ = closeFD(l.wakeReadFd)
	if l.wakeWriteFd != l.wakeReadFd {
		_ = closeFD(l.wakeWriteFd)
	}
}
