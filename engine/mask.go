package engine

import (
	"fmt"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// DirtyMask marks a subset of the properties of an entity, one bit per
// property index. It is used both for dirty properties and for the
// inclusion mask of dynamic statements.
type DirtyMask struct {
	bits *bitset.BitSet
	n    uint
}

// NewDirtyMask returns an empty mask for n properties.
func NewDirtyMask(n int) DirtyMask {
	return DirtyMask{bits: bitset.New(uint(n)), n: uint(n)}
}

// FullMask returns a mask with all n properties set.
func FullMask(n int) DirtyMask {
	m := NewDirtyMask(n)
	m.bits.FlipRange(0, m.n)
	return m
}

// MaskOf returns a mask for n properties with the given indices set.
func MaskOf(n int, indices ...int) DirtyMask {
	m := NewDirtyMask(n)
	for _, i := range indices {
		m.Set(i)
	}
	return m
}

// Set marks property i.
func (m DirtyMask) Set(i int) {
	if i >= 0 && uint(i) < m.n {
		m.bits.Set(uint(i))
	}
}

// Test reports whether property i is marked.
func (m DirtyMask) Test(i int) bool {
	return m.bits != nil && i >= 0 && m.bits.Test(uint(i))
}

// Any reports whether any property is marked.
func (m DirtyMask) Any() bool { return m.bits != nil && m.bits.Any() }

// Count returns the number of marked properties.
func (m DirtyMask) Count() int {
	if m.bits == nil {
		return 0
	}
	return int(m.bits.Count())
}

// Len returns the number of properties covered by the mask.
func (m DirtyMask) Len() int { return int(m.n) }

// Indices returns the marked property indices in ascending order.
func (m DirtyMask) Indices() []int {
	if m.bits == nil {
		return nil
	}
	out := make([]int, 0, m.bits.Count())
	for i, ok := m.bits.NextSet(0); ok; i, ok = m.bits.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

// Union returns a new mask marking the properties of m or o.
func (m DirtyMask) Union(o DirtyMask) DirtyMask {
	switch {
	case m.bits == nil:
		return o
	case o.bits == nil:
		return m
	}
	return DirtyMask{bits: m.bits.Union(o.bits), n: max(m.n, o.n)}
}

// Key returns a stable textual form used to cache plans by mask shape.
func (m DirtyMask) Key() string {
	var b strings.Builder
	for i, idx := range m.Indices() {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", idx)
	}
	return b.String()
}

// String implements fmt.Stringer.
func (m DirtyMask) String() string { return "[" + m.Key() + "]" }
