package membus

import (
	"io"

	busloop "github.com/joeycumines/go-busloop"
	"golang.org/x/sys/unix"
)

// Frame kinds. Every frame opens with one of these bytes.
const (
	frameCall  = 'C'
	frameReply = 'R'
	frameQuit  = 'Q'
)

// Wire layout: kind byte, u32 little-endian serial, width tag, then the
// value encoded at exactly width.Bytes() little-endian bytes. A quit frame
// is the kind byte alone.
const (
	callHeaderLen  = 6
	replyHeaderLen = 6
)

// inboundFrame is one parsed frame buffered for dispatch.
type inboundFrame struct {
	kind   byte
	serial uint32
	width  busloop.Width
	value  uint64
}

// writeFull writes all of buf, restarting on EINTR and waiting for
// writability on EAGAIN. The EAGAIN path only ever runs for the bus's
// non-blocking end; the client's blocking end never reports it.
func writeFull(fd int, buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if n > 0 {
			buf = buf[n:]
			continue
		}
		switch err {
		case nil:
		case unix.EINTR:
		case unix.EAGAIN:
			if err := waitWritable(fd); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}

// waitWritable blocks until fd accepts writes again.
func waitWritable(fd int) error {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		_, err := unix.Poll(pfd, -1)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

// readFull fills buf from a blocking descriptor. Peer closure before the
// first byte is io.EOF; closure mid-buffer is io.ErrUnexpectedEOF.
func readFull(fd int, buf []byte) error {
	off := 0
	for off < len(buf) {
		n, err := unix.Read(fd, buf[off:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			if off == 0 {
				return io.EOF
			}
			return io.ErrUnexpectedEOF
		}
		off += n
	}
	return nil
}
