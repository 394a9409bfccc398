// Package depth re-walks a detected cycle against live order book depth
// before it is handed to the dispatcher (spec §4.6). Grounded on
// original_source/.../arbitrage_report_ccxt.py's _consume_depth and
// _bf_revalidate_cycle_with_depth, reimplemented against this module's
// graph.Graph and models.OrderBook instead of raw ccxt dicts.
package depth

import (
	"context"

	"github.com/svyatogor45/radar-arb/internal/graph"
	"github.com/svyatogor45/radar-arb/internal/models"
)

// Side is the order book side a hop consumes: Sell walks bids, Buy walks
// asks.
type Side int

const (
	Sell Side = iota
	Buy
)

// ConsumeDepth walks book levels on the given side until qty is filled (or
// the book is exhausted), returning the size-weighted average price and the
// slippage versus the best level, in bps. Mirrors _consume_depth exactly,
// including its unit handling: qty is matched against level amounts
// directly, level by level, with no re-basing between quote and base units.
func ConsumeDepth(book models.OrderBook, side Side, qty float64) (avgPx, slippageBps float64, ok bool) {
	if qty <= 0 {
		return 0, 0, false
	}
	levels := book.Bids
	if side == Buy {
		levels = book.Asks
	}
	if len(levels) == 0 {
		return 0, 0, false
	}

	refPx := levels[0].Price
	remaining := qty
	var notional, filled float64
	for _, lvl := range levels {
		if lvl.Price <= 0 {
			continue
		}
		take := remaining
		if lvl.Amount < take {
			take = lvl.Amount
		}
		notional += take * lvl.Price
		filled += take
		remaining -= take
		if remaining <= 1e-15 {
			break
		}
	}
	if filled <= 0 {
		return 0, 0, false
	}
	avgPx = notional / filled
	if refPx > 0 && avgPx > 0 {
		if side == Buy {
			slippageBps = (avgPx/refPx - 1.0) * 10000.0
		} else {
			slippageBps = (1.0 - avgPx/refPx) * 10000.0
		}
		if slippageBps < 0 {
			slippageBps = 0
		}
	}
	return avgPx, slippageBps, true
}

// BookSource supplies an order book for a venue-native symbol, reporting
// whether the snapshot came from a live WS cache (usedWS) or a fresh REST
// fetch. Depth revalidation never blocks on a connection attempt: a source
// backed by a WS cache must fall back to REST itself rather than surface
// that decision here.
type BookSource interface {
	OrderBook(ctx context.Context, symbol string, limit int) (book models.OrderBook, usedWS bool, ok bool)
}

// Options gates a depth revalidation pass (spec §4.6).
type Options struct {
	Levels            int
	FeeBpsPerHop      float64
	LatencyPenaltyBps float64
}

// Result is the outcome of re-walking a cycle's hops against live depth.
type Result struct {
	NetPct      float64
	FeeBpsTotal float64
	SlippageBps float64
	UsedWS      bool
	OK          bool // false if any hop's book was unusable; cycle must be dropped, not treated as zero
}

// Revalidate re-walks cycle.Nodes hop by hop starting from invQuote units of
// the anchor currency, consuming each hop's order book instead of trusting
// the top-of-book rate the cycle was detected with. Uses g's EdgeSymbol and
// EdgeInverse to know, for each hop, which venue-native market to fetch and
// which side of its book to consume — a direct A/B edge sells A into bids;
// an inverted B/A edge buys B with A against asks.
func Revalidate(ctx context.Context, g *graph.Graph, src BookSource, cycle models.Cycle, invQuote float64, opts Options) Result {
	nodes := cycle.Nodes
	if len(nodes) < 2 || nodes[0] != nodes[len(nodes)-1] {
		return Result{}
	}

	amt := invQuote
	var totalSlipBps float64
	usedWS := false

	for i := 0; i+1 < len(nodes); i++ {
		u, uok := g.Index[nodes[i]]
		v, vok := g.Index[nodes[i+1]]
		if !uok || !vok {
			return Result{}
		}
		key := [2]int{u, v}
		symbol, known := g.EdgeSymbol[key]
		if !known {
			return Result{}
		}
		inverted := g.EdgeInverse[key]

		book, fromWS, ok := src.OrderBook(ctx, symbol, opts.Levels)
		if !ok {
			return Result{}
		}
		usedWS = usedWS || fromWS

		if !inverted {
			// direct A/B: selling A for B consumes bids.
			avgPx, slip, cok := ConsumeDepth(book, Sell, amt)
			if !cok {
				return Result{}
			}
			amt = amt * avgPx
			totalSlipBps += slip
		} else {
			// inverse B/A: buying B by spending A consumes asks, priced A per B.
			avgPx, slip, cok := ConsumeDepth(book, Buy, amt)
			if !cok || avgPx <= 0 {
				return Result{}
			}
			amt = amt / avgPx
			totalSlipBps += slip
		}
	}

	gross := (amt/invQuote - 1.0) * 100.0
	feeBpsTotal := opts.FeeBpsPerHop * float64(len(nodes)-1)
	netPct := gross - feeBpsTotal/100.0
	netPct -= totalSlipBps / 100.0
	netPct -= opts.LatencyPenaltyBps / 100.0

	return Result{
		NetPct:      netPct,
		FeeBpsTotal: feeBpsTotal,
		SlippageBps: totalSlipBps,
		UsedWS:      usedWS,
		OK:          true,
	}
}
