// Package detect runs the Cycle Detector: Bellman-Ford negative-cycle
// search and bounded triangular enumeration over a per-venue rate graph
// (spec §4.3-§4.4), plus the persistence tracker (spec §4.5).
package detect

import "github.com/svyatogor45/radar-arb/internal/models"

// Blacklist is an immutable snapshot of forbidden symbol pairs; the
// coordinator builds it once at process start and never mutates it during
// an iteration. A pair matches in either direction.
type Blacklist struct {
	pairs map[[2]models.Currency]bool
}

// NewBlacklist builds a Blacklist snapshot from raw "BASE/QUOTE" symbols.
func NewBlacklist(symbols []string) *Blacklist {
	b := &Blacklist{pairs: make(map[[2]models.Currency]bool, len(symbols))}
	for _, s := range symbols {
		base, quote, ok := splitSymbol(s)
		if !ok {
			continue
		}
		b.pairs[[2]models.Currency{base, quote}] = true
		b.pairs[[2]models.Currency{quote, base}] = true
	}
	return b
}

func splitSymbol(s string) (base, quote models.Currency, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return models.Canon(s[:i]), models.Canon(s[i+1:]), true
		}
	}
	return "", "", false
}

// RejectsCycle reports whether any consecutive pair in the cycle matches
// the blacklist (spec §4.3 "Apply the symbol-pair blacklist").
func (b *Blacklist) RejectsCycle(c models.Cycle) bool {
	if b == nil {
		return false
	}
	for _, pair := range c.Pairs() {
		if b.pairs[pair] {
			return true
		}
	}
	return false
}
