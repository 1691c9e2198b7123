package busloop

import "fmt"

// Dispatch accepts one request and starts the configured workload for it on
// a dedicated goroutine, concurrent with the loop and with every other
// in-flight request. It returns as soon as the goroutine is started; the
// result is delivered later, on the loop goroutine, via Transport.Reply.
//
// The request's token is held from acceptance until the corresponding reply
// and is otherwise opaque to the loop. There is no in-flight cap, deadline,
// or cancellation: admission control belongs to the transport.
//
// Dispatch is normally called from inside Transport.Dispatch, on the loop
// goroutine, which is what keeps acceptance ordered with respect to the
// message stream. Calling it from another goroutine is safe but forfeits
// that ordering.
func (l *Loop) Dispatch(req Request) error {
	if !req.Width.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidWidth, uint8(req.Width))
	}
	if l.state.IsTerminal() {
		return ErrLoopTerminated
	}
	item := &workItem{token: req.Token, width: req.Width, limit: req.Limit}
	l.metrics.dispatches.Add(1)
	go l.runWork(item)
	return nil
}

// runWork is the worker body: compute, publish, wake. The wake is
// best-effort; the completion queue's pending count keeps delivery lossless
// when the write is dropped.
func (l *Loop) runWork(item *workItem) {
	item.result = l.workload(item.limit)
	l.completions.push(item)
	l.wake()
}
