package detect

import (
	"time"

	"github.com/svyatogor45/radar-arb/internal/graph"
	"github.com/svyatogor45/radar-arb/internal/models"
)

// TriOptions gates the triangular enumerator (spec §4.4).
type TriOptions struct {
	Anchor           models.Currency
	FeeBpsPerHop     float64
	LatencyPenaltyBps float64
	MinNetBps        float64
	CurrenciesLimit  int
	InvQuote         float64 // notional for inv/est_after bookkeeping
}

// Triangular evaluates every ordered pair (X, Y) drawn from currencies
// that quote against Anchor, for the cycle Q->X->Y->Q, per spec §4.4.
func Triangular(g *graph.Graph, opts TriOptions, bl *Blacklist, iteration int64, now time.Time) []models.Opportunity {
	q := opts.Anchor
	if _, ok := g.Index[q]; !ok {
		return nil
	}

	candidates := make([]models.Currency, 0, len(g.Currencies))
	for _, c := range g.Currencies {
		if c == q {
			continue
		}
		_, fromQ := g.Rate(q, c)
		_, toQ := g.Rate(c, q)
		if fromQ || toQ {
			candidates = append(candidates, c)
		}
	}
	if opts.CurrenciesLimit > 0 && len(candidates) > opts.CurrenciesLimit {
		candidates = candidates[:opts.CurrenciesLimit]
	}

	var out []models.Opportunity
	for _, x := range candidates {
		r1, ok := g.Rate(q, x)
		if !ok || r1 <= 0 {
			continue
		}
		for _, y := range candidates {
			if x == y {
				continue
			}
			r3, ok := g.Rate(y, q)
			if !ok || r3 <= 0 {
				continue
			}
			r2, ok := g.Rate(x, y)
			if !ok || r2 <= 0 {
				continue
			}

			cycle := models.Cycle{Venue: g.Venue, Nodes: []models.Currency{q, x, y, q}}
			if bl.RejectsCycle(cycle) {
				continue
			}

			prod := r1 * r2 * r3
			netBps := (prod-1.0)*1e4 - opts.FeeBpsPerHop*3 - opts.LatencyPenaltyBps
			if netBps < opts.MinNetBps {
				continue
			}

			netPct := netBps / 100.0
			out = append(out, models.Opportunity{
				Venue:       g.Venue,
				Cycle:       cycle,
				Hops:        3,
				NetPct:      netPct,
				Inv:         opts.InvQuote,
				EstAfter:    opts.InvQuote * (1 + netPct/100),
				Timestamp:   now,
				Iteration:   iteration,
				R1:          r1,
				R2:          r2,
				R3:          r3,
				FeeBpsTotal: opts.FeeBpsPerHop * 3,
			})
		}
	}
	return out
}
