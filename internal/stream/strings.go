// Package stream implements the little-endian field codec and the string
// deduplication table used by world snapshots.
package stream

import (
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// StringTable assigns each distinct string an index in first-use order.
// Strings are NFC-normalized so visually equal names share one entry.
type StringTable struct {
	index map[string]uint32
	list  []string
}

func NewStringTable() *StringTable {
	return &StringTable{index: make(map[string]uint32)}
}

// Index returns the index of s, adding it when missing.
func (t *StringTable) Index(s string) uint32 {
	s = norm.NFC.String(s)
	if i, ok := t.index[s]; ok {
		return i
	}
	i := uint32(len(t.list))
	t.index[s] = i
	t.list = append(t.list, s)
	return i
}

func (t *StringTable) Len() int { return len(t.list) }

func (t *StringTable) Strings() []string { return t.list }

// WriteTo writes the table as u32 count followed by raw strings.
func (t *StringTable) WriteTo(w *Writer) {
	w.WriteU32(uint32(len(t.list)))
	for _, s := range t.list {
		w.WriteRawString(s)
	}
}

// ReadStringTable reads a table written by StringTable.WriteTo.
func ReadStringTable(r *Reader) ([]string, error) {
	n := r.ReadU32()
	if r.Err() != nil {
		return nil, fmt.Errorf("read string table: %w", r.Err())
	}
	if int(n) > r.Remaining()/4 {
		return nil, fmt.Errorf("read string table: %w: %d entries in %d bytes", ErrShortRead, n, r.Remaining())
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		out = append(out, r.ReadRawString())
	}
	if r.Err() != nil {
		return nil, fmt.Errorf("read string table: %w", r.Err())
	}
	return out, nil
}
