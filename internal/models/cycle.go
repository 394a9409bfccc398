package models

import "strings"

// Cycle is an ordered list of currency nodes [c0, c1, ..., cn, c0] with
// n >= 2. It is round-trip when the first and last node are equal, which
// is always true by construction for cycles extracted from the graph.
type Cycle struct {
	Venue string     `json:"venue"`
	Nodes []Currency `json:"nodes"` // includes the closing repeat of Nodes[0]
}

// Hops returns the number of edges in the cycle (len(Nodes)-1).
func (c Cycle) Hops() int {
	if len(c.Nodes) == 0 {
		return 0
	}
	return len(c.Nodes) - 1
}

// IsRoundTrip reports whether the cycle starts and ends on the same node.
func (c Cycle) IsRoundTrip() bool {
	if len(c.Nodes) < 2 {
		return false
	}
	return c.Nodes[0] == c.Nodes[len(c.Nodes)-1]
}

// PathString renders the cycle as "A->B->C->A", the canonical
// representation used as the persistence-tracker key component and in
// reporter CSV rows.
func (c Cycle) PathString() string {
	parts := make([]string, len(c.Nodes))
	for i, n := range c.Nodes {
		parts[i] = string(n)
	}
	return strings.Join(parts, "->")
}

// RotatedTo returns a copy of the cycle's node ring rotated so that anchor
// is the first element, preserving traversal direction. Returns the
// original cycle unchanged if anchor is not present.
func (c Cycle) RotatedTo(anchor Currency) Cycle {
	ring := c.Nodes
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1] // drop closing repeat for rotation math
	}
	idx := -1
	for i, n := range ring {
		if n == anchor {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return c
	}
	rotated := make([]Currency, 0, len(ring)+1)
	rotated = append(rotated, ring[idx:]...)
	rotated = append(rotated, ring[:idx]...)
	rotated = append(rotated, rotated[0])
	return Cycle{Venue: c.Venue, Nodes: rotated}
}

// Pairs expands the cycle into its consecutive (from, to) currency pairs,
// used to check the cycle against the symbol-pair blacklist.
func (c Cycle) Pairs() [][2]Currency {
	pairs := make([][2]Currency, 0, c.Hops())
	for i := 0; i+1 < len(c.Nodes); i++ {
		pairs = append(pairs, [2]Currency{c.Nodes[i], c.Nodes[i+1]})
	}
	return pairs
}
