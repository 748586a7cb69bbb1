// Package ids generates event identifiers that are unique within a run and
// lexicographically sortable in emission order.
package ids

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces monotonically increasing, lexicographically sortable
// identifiers. The zero value is not usable; construct one with New.
//
// The scheme is a 20-digit, zero-padded decimal counter followed by an
// 8-character random suffix derived from a UUID. The counter dominates
// ordering so IDs sort exactly in emission order within a run; the suffix
// only disambiguates against external recordings that might replay the same
// counter range (e.g. two runs merged into one store). The counter itself
// appears verbatim as the ID's prefix.
type Generator struct {
	counter atomic.Uint64
}

// New returns a ready-to-use Generator starting its counter at zero.
func New() *Generator {
	return &Generator{}
}

// Next returns the next identifier. Safe for concurrent use.
func (g *Generator) Next() string {
	n := g.counter.Add(1)
	suffix := uuid.New().String()
	return fmt.Sprintf("%020d-%s", n, suffix[:8])
}
