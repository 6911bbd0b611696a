// Package toolid maps arbitrary client tool-call identifiers to the short
// fixed-length form some backends require, and back again.
package toolid

import (
	"hash/fnv"
	"strconv"
)

// Length is the exact size of a normalized identifier.
const Length = 9

// Shorten derives the 9-character identifier for id. Same input, same
// output: the scheme is a base36-encoded 32-bit FNV-1a hash, zero-padded on
// the left. Distinct inputs can collide in 32 bits; that ambiguity is
// accepted rather than repaired, since any repair scheme would change which
// tool result correlates with which call.
func Shorten(id string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	s := strconv.FormatUint(uint64(h.Sum32()), 36)
	if len(s) > Length {
		return s[:Length]
	}
	for len(s) < Length {
		s = "0" + s
	}
	return s
}

// Mapping remembers every id shortened during one request so the original
// can be restored on the way back to the client. One Mapping per request;
// it is not safe for concurrent use and must never be shared or reused.
type Mapping struct {
	forward map[string]string
	reverse map[string]string
}

func NewMapping() *Mapping {
	return &Mapping{
		forward: map[string]string{},
		reverse: map[string]string{},
	}
}

// Shorten returns the short form of id, recording the pair so that a later
// tool_result referencing id resolves to the same short form.
func (m *Mapping) Shorten(id string) string {
	if short, ok := m.forward[id]; ok {
		return short
	}
	short := Shorten(id)
	m.forward[id] = short
	m.reverse[short] = id
	return short
}

// Restore returns the original id for a short form produced by this
// Mapping. Unknown ids pass through unchanged: they were already compliant
// or were minted by the backend itself.
func (m *Mapping) Restore(short string) string {
	if id, ok := m.reverse[short]; ok {
		return id
	}
	return short
}
