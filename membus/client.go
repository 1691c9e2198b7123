package membus

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	busloop "github.com/joeycumines/go-busloop"
	"golang.org/x/sys/unix"
)

// Client is the caller end of the pair. Calls and replies are independent
// streams: any goroutine may issue Call while another blocks in ReadReply,
// which is exactly how a caller overlaps slow requests. Serials pair them
// back up.
type Client struct {
	fd     int
	serial atomic.Uint32
	closed atomic.Bool

	// wmu serializes writers so frames interleave whole.
	wmu sync.Mutex
	// rmu serializes readers so frames are consumed whole.
	rmu sync.Mutex
}

// Reply is one decoded reply frame.
type Reply struct {
	// Serial matches the value Call returned for the paired request.
	Serial uint32
	// Width is the encoding the value arrived at, always the width of
	// the paired call.
	Width busloop.Width
	// Value is the decoded result.
	Value uint64
}

// Call transmits one call frame at the given width and returns the serial
// identifying its eventual reply. limit values beyond the width's range
// are truncated, the same narrowing the reply will get.
func (c *Client) Call(width busloop.Width, limit uint64) (uint32, error) {
	if !width.Valid() {
		return 0, fmt.Errorf("membus: call with invalid width %d", uint8(width))
	}
	serial := c.serial.Add(1)
	buf := make([]byte, 0, callHeaderLen+8)
	buf = append(buf, frameCall)
	buf = binary.LittleEndian.AppendUint32(buf, serial)
	buf = append(buf, byte(width))
	buf = width.AppendUint(buf, limit)

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := writeFull(c.fd, buf); err != nil {
		return 0, fmt.Errorf("membus: call: %w", err)
	}
	return serial, nil
}

// ReadReply blocks until one whole reply frame arrives and decodes it.
// io.EOF means the server closed the connection at a frame boundary.
func (c *Client) ReadReply() (Reply, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	var hdr [replyHeaderLen]byte
	if err := readFull(c.fd, hdr[:1]); err != nil {
		return Reply{}, err
	}
	if hdr[0] != frameReply {
		return Reply{}, fmt.Errorf("membus: unexpected frame kind 0x%02x", hdr[0])
	}
	if err := readFull(c.fd, hdr[1:]); err != nil {
		return Reply{}, err
	}
	width := busloop.Width(hdr[5])
	if !width.Valid() {
		return Reply{}, fmt.Errorf("membus: reply frame with invalid width %d", hdr[5])
	}
	var val [8]byte
	if err := readFull(c.fd, val[:width.Bytes()]); err != nil {
		return Reply{}, err
	}
	value, err := width.Uint(val[:width.Bytes()])
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Serial: binary.LittleEndian.Uint32(hdr[1:5]),
		Width:  width,
		Value:  value,
	}, nil
}

// Quit asks the server to terminate. Replies already in flight may still
// be readable afterwards; new calls will never be answered.
func (c *Client) Quit() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := writeFull(c.fd, []byte{frameQuit}); err != nil {
		return fmt.Errorf("membus: quit: %w", err)
	}
	return nil
}

// Close releases the client's socket. The server observes it as peer
// closure, which it treats as an implicit quit. Idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(c.fd)
}
