package stream

import (
	"encoding/binary"
	"math"

	"github.com/hmcore/world/internal/core/xmath"
)

// Writer appends little-endian fields to an in-memory buffer.
// When a StringTable is attached, strings are written as table indices.
type Writer struct {
	buf     []byte
	strings *StringTable
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 256)}
}

// NewWriterWithStrings returns a writer that deduplicates strings into t.
func NewWriterWithStrings(t *StringTable) *Writer {
	w := NewWriter()
	w.strings = t
	return w
}

// Strings returns the attached string table, or nil.
func (w *Writer) Strings() *StringTable { return w.strings }

func (w *Writer) WriteU8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
		return
	}
	w.WriteU8(0)
}

func (w *Writer) WriteU16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) WriteU32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) WriteU64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *Writer) WriteI32(v int32) {
	w.WriteU32(uint32(v))
}

func (w *Writer) WriteF32(v float32) {
	w.WriteU32(math.Float32bits(v))
}

// WriteString writes a table index if a table is attached, otherwise a
// u32 byte length followed by the bytes.
func (w *Writer) WriteString(s string) {
	if w.strings != nil {
		w.WriteU32(w.strings.Index(s))
		return
	}
	w.WriteRawString(s)
}

// WriteRawString always writes length-prefixed bytes.
func (w *Writer) WriteRawString(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) WriteVec3(v xmath.Vec3) {
	w.WriteF32(v.X)
	w.WriteF32(v.Y)
	w.WriteF32(v.Z)
}

func (w *Writer) WriteQuat(q xmath.Quat) {
	w.WriteF32(q.X)
	w.WriteF32(q.Y)
	w.WriteF32(q.Z)
	w.WriteF32(q.W)
}

// WriteBytes appends raw bytes without a length prefix.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteBlock writes a u32 length prefix followed by b.
func (w *Writer) WriteBlock(b []byte) {
	w.WriteU32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Len() int { return len(w.buf) }

// Reset empties the buffer and keeps the string table.
func (w *Writer) Reset() { w.buf = w.buf[:0] }
