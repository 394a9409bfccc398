package detect

import (
	"time"

	"github.com/svyatogor45/radar-arb/internal/graph"
	"github.com/svyatogor45/radar-arb/internal/models"
)

// BFOptions gates the Bellman-Ford cycle search (spec §4.3).
type BFOptions struct {
	AllowedAnchors []models.Currency // priority order for rotation/anchor requirement
	RequireQuote   bool
	MinHops        int
	MaxHops        int
	MinNetPct      float64
	MinNetPerHop   float64
	FeeFraction    float64 // per-hop taker fee, used only for FeeBpsTotal bookkeeping
	TopPerVenue    int
}

const closureTolerance = 1e-9

// BellmanFord runs n-1 relaxation passes (early-exiting on a no-op pass),
// then one extra pass to find a relaxing edge and walk pred[] back into a
// negative cycle, per spec §4.3 and §9 "Cyclic references in pred[]": the
// walk is bounded to n+2 steps regardless of array degeneracy.
func BellmanFord(g *graph.Graph, opts BFOptions, bl *Blacklist, invQuote float64, iteration int64, now time.Time) []models.Opportunity {
	n := len(g.Currencies)
	if n < 3 || len(g.Edges) == 0 {
		return nil
	}

	dist := make([]float64, n)
	pred := make([]int, n)
	for i := range pred {
		pred[i] = -1
	}

	for i := 0; i < n-1; i++ {
		updated := false
		for _, e := range g.Edges {
			if dist[e.U]+e.Weight < dist[e.V]-closureTolerance {
				dist[e.V] = dist[e.U] + e.Weight
				pred[e.V] = e.U
				updated = true
			}
		}
		if !updated {
			break
		}
	}

	seen := make(map[string]bool)
	var out []models.Opportunity

	for _, e := range g.Edges {
		if dist[e.U]+e.Weight >= dist[e.V]-closureTolerance {
			continue
		}
		y := e.V
		// record the relaxing edge so the walk never starts at an unset pred
		pred[y] = e.U
		for i := 0; i < n; i++ {
			if pred[y] != -1 {
				y = pred[y]
			}
		}
		idxNodes := make([]int, 0, n+2)
		cur := y
		for {
			idxNodes = append(idxNodes, cur)
			cur = pred[cur]
			if cur == -1 || cur == y || len(idxNodes) > n+2 {
				break
			}
		}
		if len(idxNodes) < 2 {
			continue
		}

		nodes := make([]models.Currency, len(idxNodes))
		for i, idx := range idxNodes {
			nodes[i] = g.Currencies[idx]
		}
		// reverse into traversal order
		for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
			nodes[i], nodes[j] = nodes[j], nodes[i]
		}

		if opts.RequireQuote && !containsAny(nodes, opts.AllowedAnchors) {
			continue
		}

		anchorIdx := -1
		for _, a := range opts.AllowedAnchors {
			if idx := indexOf(nodes, a); idx >= 0 {
				anchorIdx = idx
				break
			}
		}
		if anchorIdx > 0 {
			rotated := make([]models.Currency, 0, len(nodes))
			rotated = append(rotated, nodes[anchorIdx:]...)
			rotated = append(rotated, nodes[:anchorIdx]...)
			nodes = rotated
		}

		key := pathKey(nodes)
		if seen[key] {
			continue
		}
		seen[key] = true

		prod, ok := verifyClosureAndClose(g, nodes)
		if !ok {
			continue
		}
		cycle := models.Cycle{Venue: g.Venue, Nodes: append(append([]models.Currency{}, nodes...), nodes[0])}
		if bl.RejectsCycle(cycle) {
			continue
		}

		hops := cycle.Hops()
		if opts.MinHops > 0 && hops < opts.MinHops {
			continue
		}
		if opts.MaxHops > 0 && hops > opts.MaxHops {
			continue
		}

		netPct := (prod - 1.0) * 100.0
		if netPct < opts.MinNetPct {
			continue
		}
		if opts.MinNetPerHop > 0 && netPct/float64(hops) < opts.MinNetPerHop {
			continue
		}

		estAfter := invQuote * prod
		out = append(out, models.Opportunity{
			Venue:       g.Venue,
			Cycle:       cycle,
			Hops:        hops,
			NetPct:      netPct,
			Inv:         invQuote,
			EstAfter:    estAfter,
			Timestamp:   now,
			Iteration:   iteration,
			FeeBpsTotal: opts.FeeFraction * 10000 * float64(hops),
		})
	}

	if opts.TopPerVenue > 0 && len(out) > opts.TopPerVenue {
		out = topNetPct(out, opts.TopPerVenue)
	}
	return out
}

// verifyClosureAndClose re-verifies the product of edge rates; if the
// cycle as walked does not close (first != last), it appends the closing
// edge and re-verifies. Returns false if any required edge is missing.
func verifyClosureAndClose(g *graph.Graph, nodes []models.Currency) (float64, bool) {
	prod := 1.0
	for i := 0; i+1 < len(nodes); i++ {
		r, ok := g.Rate(nodes[i], nodes[i+1])
		if !ok || r <= 0 {
			return 0, false
		}
		prod *= r
	}
	if nodes[0] != nodes[len(nodes)-1] {
		r, ok := g.Rate(nodes[len(nodes)-1], nodes[0])
		if !ok || r <= 0 {
			return 0, false
		}
		prod *= r
	}
	return prod, true
}

func containsAny(nodes []models.Currency, anchors []models.Currency) bool {
	for _, a := range anchors {
		if indexOf(nodes, a) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(nodes []models.Currency, c models.Currency) int {
	for i, n := range nodes {
		if n == c {
			return i
		}
	}
	return -1
}

func pathKey(nodes []models.Currency) string {
	s := ""
	for i, n := range nodes {
		if i > 0 {
			s += "->"
		}
		s += string(n)
	}
	return s
}

func topNetPct(opps []models.Opportunity, n int) []models.Opportunity {
	sorted := append([]models.Opportunity{}, opps...)
	// simple partial selection sort is fine: n is small (TopPerVenue)
	for i := 0; i < n && i < len(sorted); i++ {
		best := i
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].NetPct > sorted[best].NetPct {
				best = j
			}
		}
		sorted[i], sorted[best] = sorted[best], sorted[i]
	}
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
