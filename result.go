package busloop

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortValue is returned when decoding a value from a buffer smaller
// than the width requires.
var ErrShortValue = errors.New("busloop: short value buffer")

// Width identifies the unsigned integer encoding a caller requested for
// its reply. Results are re-encoded at the same width the request arrived
// with, so a caller that speaks 16-bit values gets 16-bit values back.
//
// The zero value is not a valid width; requests must state one explicitly.
type Width uint8

const (
	// Width8 is a single unsigned byte.
	Width8 Width = iota + 1
	// Width16 is an unsigned 16-bit value.
	Width16
	// Width32 is an unsigned 32-bit value.
	Width32
	// Width64 is an unsigned 64-bit value.
	Width64
)

// Valid reports whether w is one of the four defined widths.
func (w Width) Valid() bool {
	return w >= Width8 && w <= Width64
}

// Bytes returns the encoded size in bytes: 1, 2, 4, or 8.
// Panics on an invalid width; callers validate at the acceptance boundary.
func (w Width) Bytes() int {
	if !w.Valid() {
		panic(fmt.Sprintf(`busloop: invalid width %d`, uint8(w)))
	}
	return 1 << (uint(w) - 1)
}

// Max returns the largest value representable at this width.
func (w Width) Max() uint64 {
	if w == Width64 {
		return ^uint64(0)
	}
	return 1<<(uint(w.Bytes())*8) - 1
}

// Truncate masks v down to the width. Values that fit are unchanged;
// oversized values lose their high bits, matching narrowing assignment.
func (w Width) Truncate(v uint64) uint64 {
	return v & w.Max()
}

// AppendUint appends exactly Bytes() little-endian bytes of Truncate(v)
// to dst and returns the extended slice.
func (w Width) AppendUint(dst []byte, v uint64) []byte {
	v = w.Truncate(v)
	switch w {
	case Width8:
		return append(dst, byte(v))
	case Width16:
		return binary.LittleEndian.AppendUint16(dst, uint16(v))
	case Width32:
		return binary.LittleEndian.AppendUint32(dst, uint32(v))
	default:
		return binary.LittleEndian.AppendUint64(dst, v)
	}
}

// Uint decodes the first Bytes() bytes of b as a little-endian unsigned
// value. Returns ErrShortValue when b is too small.
func (w Width) Uint(b []byte) (uint64, error) {
	if len(b) < w.Bytes() {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrShortValue, w.Bytes(), len(b))
	}
	switch w {
	case Width8:
		return uint64(b[0]), nil
	case Width16:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case Width32:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	default:
		return binary.LittleEndian.Uint64(b), nil
	}
}

// String returns a short name for the width ("u8".."u64").
func (w Width) String() string {
	switch w {
	case Width8:
		return "u8"
	case Width16:
		return "u16"
	case Width32:
		return "u32"
	case Width64:
		return "u64"
	default:
		return fmt.Sprintf("Width(%d)", uint8(w))
	}
}
