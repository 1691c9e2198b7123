// Package busloop provides a single-threaded readiness-multiplexing event
// loop for request servers that answer slow, CPU-bound calls without
// blocking message processing.
//
// # Architecture
//
// The package is built around a [Loop] that owns four kinds of state: an
// I/O watch registry, a timer registry, a completion queue, and a wake
// channel. One goroutine runs the whole loop; each accepted request runs
// its workload on a goroutine of its own and publishes the finished result
// back through the completion queue.
//
// Every iteration performs the same cycle:
//  1. Rebuild the poll(2) wait set from the registered watches, with the
//     wake channel's read end appended last.
//  2. Block once, bounded by the smallest enabled timer interval, or
//     not at all while completions are already pending.
//  3. Forward per-descriptor readiness to [Watch.HandleReady].
//  4. Drain the wake channel and deliver finished results via
//     [Transport.Reply], in completion order.
//  5. Fire [Timer.HandleExpired] for every enabled timer whose interval
//     elapsed during the wait.
//  6. Ask the transport to dispatch buffered messages until it reports
//     none remain.
//  7. Observe any quit request and terminate.
//
// # Thread Safety
//
// The transport never needs a lock: dispatch, readiness handling, and reply
// delivery all happen on the loop goroutine. Exactly three operations are
// safe from other goroutines: [Loop.Dispatch], [Loop.RequestQuit] (and its
// blocking wrapper [Loop.Shutdown]), and the read-only [Loop.State] and
// [Loop.Metrics]. Watch and timer registration belong to the loop
// goroutine, typically from inside [Transport.Dispatch] or a readiness
// handler.
//
// Worker goroutines communicate with the loop through exactly two
// mechanisms: a mutex-guarded completion queue, and a wake descriptor
// (eventfd on Linux, a self-pipe on Darwin) that interrupts the blocking
// poll. Wake writes are content-independent and coalesce; delivery is
// level-triggered on the queue itself, so a dropped wake write delays
// nothing past the next iteration.
//
// # Usage
//
//	bus, client, err := membus.Pair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	loop, err := busloop.New(bus)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := bus.Attach(loop); err != nil {
//	    log.Fatal(err)
//	}
//
//	go func() {
//	    serial, _ := client.Call(busloop.Width32, 1_000_000)
//	    reply, _ := client.ReadReply()
//	    fmt.Println(serial, reply.Value)
//	    _ = client.Quit()
//	}()
//
//	if err := loop.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error Handling
//
// Failures divide into three classes:
//   - Fatal: poll failure, a readiness handler error, a transport dispatch
//     error, or a reply delivery error. [Loop.Run] logs at critical level
//     and returns the wrapped cause.
//   - Recoverable: registry capacity ([ErrCapacityExceeded]), removal of an
//     unregistered source, and timer expiry errors. Logged; the loop keeps
//     running.
//   - Caller errors: [ErrNilTransport], [ErrNilSource], [ErrInvalidWidth],
//     [ErrLoopAlreadyRunning], [ErrLoopTerminated]. Reported to the caller
//     without affecting the loop.
//
// # Platform Support
//
// Linux and Darwin. The wait primitive is poll(2) on both; only the wake
// channel differs (eventfd versus self-pipe).
package busloop
