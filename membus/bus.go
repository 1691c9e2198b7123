// Package membus is an in-memory message bus transport for busloop, built
// on a Unix socketpair. It exists to exercise and demonstrate the loop
// end to end without a real broker: the Bus side is the loop's Transport
// and sole Watch, and the Client side is a plain blocking caller suitable
// for driving from tests or example programs.
//
// The wire protocol is deliberately tiny. A call frame is
// 'C' | serial u32 | width | value, a reply frame is the same shape under
// 'R', and 'Q' alone asks the server to quit. Serials pair replies to
// calls; values are little-endian at exactly the tagged width.
package membus

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/eapache/queue"
	busloop "github.com/joeycumines/go-busloop"
	"github.com/joeycumines/logiface"
	"golang.org/x/sys/unix"
)

// busOptions holds configuration for Pair.
type busOptions struct {
	logger *logiface.Logger[logiface.Event]
}

// Option configures the Bus end of a Pair.
type Option interface {
	applyBus(*busOptions) error
}

type optionImpl struct {
	applyBusFunc func(*busOptions) error
}

func (o *optionImpl) applyBus(opts *busOptions) error {
	return o.applyBusFunc(opts)
}

// WithLogger attaches a structured logger to the Bus.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *busOptions) error {
		opts.logger = logger
		return nil
	}}
}

// Pair creates a connected bus/client pair over an AF_UNIX stream
// socketpair. The bus end is non-blocking (it lives inside a readiness
// loop); the client end stays blocking for straight-line calling code.
func Pair(opts ...Option) (*Bus, *Client, error) {
	cfg := &busOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyBus(cfg); err != nil {
			return nil, nil, err
		}
	}

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("membus: socketpair: %w", err)
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, nil, fmt.Errorf("membus: set nonblock: %w", err)
	}

	bus := &Bus{
		fd:      fds[0],
		logger:  cfg.logger,
		inbound: queue.New(),
	}
	client := &Client{fd: fds[1]}
	return bus, client, nil
}

// Bus is the server end of the pair: the loop's Transport and its single
// Watch. It accumulates raw bytes on readiness, parses them into frames,
// dispatches calls as asynchronous requests, and re-encodes finished
// results as reply frames.
//
// A Bus is confined to the loop it is attached to; nothing here is safe
// for concurrent use.
type Bus struct {
	fd     int
	loop   *busloop.Loop
	logger *logiface.Logger[logiface.Event]

	// inbound buffers parsed frames between readiness and dispatch.
	inbound *queue.Queue

	// rbuf accumulates raw bytes until they form complete frames.
	rbuf []byte

	eof    bool
	closed bool
}

// Attach registers the bus with the loop it will serve. The loop handle is
// retained for dispatch-side calls: request dispatch and quit.
func (b *Bus) Attach(l *busloop.Loop) error {
	if l == nil {
		return errors.New("membus: nil loop")
	}
	b.loop = l
	return l.AddWatch(b)
}

// Fd returns the bus's socket descriptor.
func (b *Bus) Fd() int { return b.fd }

// Flags declares read interest; replies are written inline from Reply.
func (b *Bus) Flags() busloop.IOFlags { return busloop.FlagReadable }

// Enabled reports whether the bus still wants readiness. It goes false
// once the peer hangs up or the bus is closed.
func (b *Bus) Enabled() bool { return !b.closed && !b.eof }

// HandleReady consumes everything the socket has buffered, then parses
// complete frames into the inbound queue. Peer closure reports as both
// readable and error-class readiness (hangup), so error-class readiness is
// fatal only when there is nothing left to read; the readable path drains
// the socket and converts the EOF into a quit request.
func (b *Bus) HandleReady(flags busloop.IOFlags) error {
	if !flags.Has(busloop.FlagReadable) {
		if flags.Has(busloop.FlagError) {
			return errors.New("membus: socket entered error state")
		}
		return nil
	}
	var chunk [4096]byte
	for {
		n, err := unix.Read(b.fd, chunk[:])
		if n > 0 {
			b.rbuf = append(b.rbuf, chunk[:n]...)
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			break
		}
		if err != nil {
			return fmt.Errorf("membus: read: %w", err)
		}
		if n == 0 {
			// Peer closed its end. No more calls can arrive; treat it
			// as an implicit quit.
			b.eof = true
			b.loop.RequestQuit()
			break
		}
	}
	return b.parse()
}

// parse moves complete frames from the accumulation buffer to the inbound
// queue. A partial frame stays buffered for the next readiness pass; a
// malformed one is fatal, since nothing downstream of garbage framing can
// be trusted.
func (b *Bus) parse() error {
	off := 0
	for off < len(b.rbuf) {
		rest := b.rbuf[off:]
		if rest[0] == frameQuit {
			b.inbound.Add(inboundFrame{kind: frameQuit})
			off++
			continue
		}
		if rest[0] != frameCall {
			return fmt.Errorf("membus: unknown frame kind 0x%02x", rest[0])
		}
		if len(rest) < callHeaderLen {
			break
		}
		width := busloop.Width(rest[5])
		if !width.Valid() {
			return fmt.Errorf("membus: call frame with invalid width %d", rest[5])
		}
		total := callHeaderLen + width.Bytes()
		if len(rest) < total {
			break
		}
		value, err := width.Uint(rest[callHeaderLen:total])
		if err != nil {
			return err
		}
		b.inbound.Add(inboundFrame{
			kind:   frameCall,
			serial: binary.LittleEndian.Uint32(rest[1:5]),
			width:  width,
			value:  value,
		})
		off += total
	}
	if off > 0 {
		b.rbuf = append(b.rbuf[:0], b.rbuf[off:]...)
	}
	return nil
}

// Dispatch processes one buffered frame: a call becomes an asynchronous
// request, a quit becomes a termination request. more reports whether
// frames remain buffered for this iteration.
func (b *Bus) Dispatch() (more bool, err error) {
	if b.inbound.Length() == 0 {
		return false, nil
	}
	f := b.inbound.Remove().(inboundFrame)
	switch f.kind {
	case frameQuit:
		b.logDebug().Log("quit frame received")
		b.loop.RequestQuit()
	case frameCall:
		b.logDebug().
			Uint64("serial", uint64(f.serial)).
			Stringer("width", f.width).
			Uint64("limit", f.value).
			Log("dispatching call")
		if err := b.loop.Dispatch(busloop.Request{Token: f.serial, Width: f.width, Limit: f.value}); err != nil {
			return false, fmt.Errorf("membus: dispatch serial %d: %w", f.serial, err)
		}
	}
	return b.inbound.Length() > 0, nil
}

// Reply re-encodes one finished result as a reply frame and transmits it
// whole, waiting out short writes and EAGAIN. token must be the serial the
// call arrived under.
func (b *Bus) Reply(token any, value uint64, width busloop.Width) error {
	serial, ok := token.(uint32)
	if !ok {
		return fmt.Errorf("membus: reply token %T is not a call serial", token)
	}
	if !width.Valid() {
		return fmt.Errorf("membus: reply with invalid width %d", uint8(width))
	}
	buf := make([]byte, 0, replyHeaderLen+8)
	buf = append(buf, frameReply)
	buf = binary.LittleEndian.AppendUint32(buf, serial)
	buf = append(buf, byte(width))
	buf = width.AppendUint(buf, value)
	if err := writeFull(b.fd, buf); err != nil {
		return fmt.Errorf("membus: reply serial %d: %w", serial, err)
	}
	return nil
}

// Close releases the bus's socket. Close only after the loop has
// terminated: a closed descriptor in a live wait set reads as error-class
// readiness and takes the loop down.
func (b *Bus) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return unix.Close(b.fd)
}

func (b *Bus) logDebug() *logiface.Builder[logiface.Event] {
	return b.logger.Debug()
}
