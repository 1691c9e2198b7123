package busloop

import (
	"strings"
	"time"
)

// IOFlags is a bitmask describing I/O interest or observed readiness on a
// watched descriptor. The same mask type serves both directions: a Watch
// declares interest with it, and the loop reports what fired with it.
type IOFlags uint8

const (
	// FlagReadable marks read interest, or observed readability.
	FlagReadable IOFlags = 1 << iota
	// FlagWritable marks write interest, or observed writability.
	FlagWritable
	// FlagError is never requested; it is reported when the descriptor is
	// in an error, hangup, or invalid state.
	FlagError
)

// Has reports whether every bit in mask is set in f.
func (f IOFlags) Has(mask IOFlags) bool {
	return f&mask == mask
}

// String returns a "+"-joined list of set flag names, or "none".
func (f IOFlags) String() string {
	if f == 0 {
		return "none"
	}
	parts := make([]string, 0, 3)
	if f.Has(FlagReadable) {
		parts = append(parts, "readable")
	}
	if f.Has(FlagWritable) {
		parts = append(parts, "writable")
	}
	if f.Has(FlagError) {
		parts = append(parts, "error")
	}
	return strings.Join(parts, "+")
}

// Watch is an I/O readiness source owned by the transport. The loop holds
// a non-owning reference while the watch is registered and consults
// Enabled and Flags when it rebuilds its wait set each iteration.
//
// All methods are invoked from the loop goroutine only.
type Watch interface {
	// Fd returns the descriptor to wait on.
	Fd() int

	// Flags returns the interest mask applied while the watch is enabled.
	Flags() IOFlags

	// Enabled reports whether the watch participates in the wait set.
	// A registered but disabled watch contributes nothing to the poll.
	Enabled() bool

	// HandleReady is called with the readiness observed for this watch.
	// A non-nil error is fatal to the loop: Run returns it wrapped.
	HandleReady(flags IOFlags) error
}

// Timer is a timer source owned by the transport. Enabled timers bound the
// loop's blocking wait by their smallest interval, and any enabled timer
// whose interval has elapsed within an iteration is expired exactly once.
//
// All methods are invoked from the loop goroutine only.
type Timer interface {
	// Interval returns the timer's period.
	Interval() time.Duration

	// Enabled reports whether the timer participates in timeout
	// computation and expiry delivery.
	Enabled() bool

	// HandleExpired is called once per loop iteration in which the timer's
	// interval has elapsed. Its error is logged, never fatal; the loop
	// state does not change on failure.
	HandleExpired() error
}

// Transport is the external collaborator the loop serves: the component
// that owns connections, decodes messages into requests, and transmits
// replies. The loop never touches descriptors or encodes messages itself;
// it multiplexes readiness and shuttles results.
//
// Both methods are invoked from the loop goroutine only.
type Transport interface {
	// Dispatch processes one unit of buffered inbound work (typically a
	// parsed message). It returns more=true when further buffered work
	// remains this iteration; the loop keeps calling until more is false.
	// A non-nil error is fatal to the loop.
	//
	// Registration calls (AddWatch, AddTimer, ...), Dispatch of accepted
	// requests, and RequestQuit all legitimately happen inside Dispatch.
	Dispatch() (more bool, err error)

	// Reply delivers one finished result, re-encoded at the width the
	// request arrived with. token is the identity handle the transport
	// supplied at acceptance; ownership returns to the transport here.
	// A non-nil error is fatal to the loop.
	Reply(token any, value uint64, width Width) error
}

// Request is one unit of work the transport asks the loop to run off the
// control thread.
type Request struct {
	// Token identifies the request for reply pairing. The loop owns it
	// from acceptance until it is handed back via Transport.Reply, and
	// never inspects it.
	Token any

	// Width is the encoding the eventual result must be delivered at.
	Width Width

	// Limit is the computation input.
	Limit uint64
}

// Workload is the CPU-bound computation run once per accepted request on
// its own goroutine. Implementations must be safe for concurrent calls;
// any pure function is. The default is primecount.Count.
type Workload func(limit uint64) uint64
