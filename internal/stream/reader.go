package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/hmcore/world/internal/core/xmath"
)

var (
	// ErrShortRead is recorded when a field extends past the end of the data.
	ErrShortRead = errors.New("stream: unexpected end of data")
	// ErrBadStringIndex is recorded when a string index is outside the table.
	ErrBadStringIndex = errors.New("stream: string index out of range")
)

// Reader decodes little-endian fields. The first failure is sticky: later
// reads return zero values and Err reports the original cause.
type Reader struct {
	data    []byte
	off     int
	err     error
	strings []string
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// NewReaderWithStrings returns a reader that resolves strings through table.
func NewReaderWithStrings(data []byte, table []string) *Reader {
	return &Reader{data: data, strings: table}
}

// Sub returns a reader over the next n bytes sharing the string table,
// and advances past them.
func (r *Reader) Sub(n int) *Reader {
	b := r.take(n)
	return &Reader{data: b, strings: r.strings, err: r.err}
}

func (r *Reader) Err() error { return r.err }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

func (r *Reader) Offset() int { return r.off }

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.fail(fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortRead, n, r.off, len(r.data)-r.off))
		r.off = len(r.data)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// Skip advances n bytes.
func (r *Reader) Skip(n int) { r.take(n) }

func (r *Reader) ReadU8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) ReadBool() bool { return r.ReadU8() != 0 }

func (r *Reader) ReadU16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) ReadU32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) ReadU64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) ReadI32() int32 { return int32(r.ReadU32()) }

func (r *Reader) ReadF32() float32 { return math.Float32frombits(r.ReadU32()) }

// ReadString reads a table index when a table is attached, otherwise a
// length-prefixed string.
func (r *Reader) ReadString() string {
	if r.strings == nil {
		return r.ReadRawString()
	}
	idx := r.ReadU32()
	if r.err != nil {
		return ""
	}
	if int(idx) >= len(r.strings) {
		r.fail(fmt.Errorf("%w: %d of %d", ErrBadStringIndex, idx, len(r.strings)))
		return ""
	}
	return r.strings[idx]
}

func (r *Reader) ReadRawString() string {
	n := r.ReadU32()
	return string(r.take(int(n)))
}

func (r *Reader) ReadVec3() xmath.Vec3 {
	return xmath.Vec3{X: r.ReadF32(), Y: r.ReadF32(), Z: r.ReadF32()}
}

func (r *Reader) ReadQuat() xmath.Quat {
	return xmath.Quat{X: r.ReadF32(), Y: r.ReadF32(), Z: r.ReadF32(), W: r.ReadF32()}
}

// ReadBlock reads a u32 length prefix and returns the following bytes.
func (r *Reader) ReadBlock() []byte {
	n := r.ReadU32()
	return r.take(int(n))
}
