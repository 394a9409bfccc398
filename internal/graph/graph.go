// Package graph builds the per-venue currency rate graph consumed by the
// cycle detector (spec §4.2). Grounded on
// original_source/.../arbitrage_report_ccxt.py's build_rates_for_exchange
// and get_rate_and_qvol, reimplemented in the teacher's allocation-conscious
// Go style (internal/bot/spread.go) instead of transliterated Python.
package graph

import (
	"math"
	"sort"
	"strings"

	"github.com/svyatogor45/radar-arb/internal/models"
)

// Edge is a directed conversion edge between two currency-graph nodes,
// indexed into the Graph's Currencies slice.
type Edge struct {
	U, V   int
	Weight float64 // -ln(rate)
}

// Graph is the per-venue rate graph: nodes are currencies selected for
// this iteration's universe, edges are post-fee conversion rates.
type Graph struct {
	Venue       string
	Currencies  []models.Currency
	Index       map[models.Currency]int
	Edges       []Edge
	RateMap     map[[2]int]float64 // (u,v) -> post-fee effective rate
	EdgeSymbol  map[[2]int]string  // (u,v) -> venue-native symbol used
	EdgeInverse map[[2]int]bool    // (u,v) -> true if the inverse market was used
}

// UniverseOptions controls currency universe selection (spec §4.2
// "Universe selection").
type UniverseOptions struct {
	Anchors          []models.Currency
	RequireDualQuote bool
	RankByQuoteVol   bool
	CurrenciesLimit  int
}

// BuildUniverse selects the currency set C from the venue's active
// markets: anchors are always kept; remaining currencies come from markets
// touching any anchor, optionally restricted to bases quoting against ALL
// anchors, optionally ranked by aggregated quote volume, then truncated and
// rotated so an anchor sits at index 0.
func BuildUniverse(markets map[string]models.Market, tickers map[string]models.Ticker, opts UniverseOptions) []models.Currency {
	anchorSet := make(map[models.Currency]bool, len(opts.Anchors))
	for _, a := range opts.Anchors {
		anchorSet[a] = true
	}

	tokens := make(map[models.Currency]bool, len(opts.Anchors))
	for a := range anchorSet {
		tokens[a] = true
	}

	baseToQuotes := make(map[models.Currency]map[models.Currency]bool)
	for _, m := range markets {
		if !m.Active {
			continue
		}
		if m.Base == "" || m.Quote == "" {
			continue
		}
		if anchorSet[m.Base] || anchorSet[m.Quote] {
			tokens[m.Base] = true
			tokens[m.Quote] = true
		}
		if baseToQuotes[m.Base] == nil {
			baseToQuotes[m.Base] = make(map[models.Currency]bool)
		}
		baseToQuotes[m.Base][m.Quote] = true
	}

	if opts.RequireDualQuote && len(anchorSet) >= 2 {
		filtered := make(map[models.Currency]bool)
		for base, quotes := range baseToQuotes {
			hasAll := true
			for a := range anchorSet {
				if !quotes[a] {
					hasAll = false
					break
				}
			}
			if hasAll {
				filtered[base] = true
			}
		}
		for a := range anchorSet {
			filtered[a] = true
		}
		tokens = filtered
	}

	currencies := make([]models.Currency, 0, len(tokens))
	for c := range tokens {
		currencies = append(currencies, c)
	}

	if opts.RankByQuoteVol {
		qvolByCcy := make(map[models.Currency]float64)
		for sym, t := range tickers {
			m, ok := markets[sym]
			if !ok {
				continue
			}
			qv := t.QuoteVolume
			qvolByCcy[m.Base] += qv
			qvolByCcy[m.Quote] += qv
		}
		sort.Slice(currencies, func(i, j int) bool {
			return qvolByCcy[currencies[i]] > qvolByCcy[currencies[j]]
		})
	} else {
		// deterministic ordering absent ranking, so universe selection is
		// reproducible across iterations for identical market snapshots.
		sort.Slice(currencies, func(i, j int) bool { return currencies[i] < currencies[j] })
	}

	limit := opts.CurrenciesLimit
	if limit <= 0 {
		limit = len(currencies)
	}
	if limit < len(currencies) {
		currencies = currencies[:limit]
	}

	for _, a := range opts.Anchors {
		for i, c := range currencies {
			if c == a {
				rotated := make([]models.Currency, 0, len(currencies))
				rotated = append(rotated, currencies[i])
				rotated = append(rotated, currencies[:i]...)
				rotated = append(rotated, currencies[i+1:]...)
				return rotated
			}
		}
	}
	return currencies
}

// symbolKey builds the venue-native "BASE/QUOTE" symbol string.
func symbolKey(base, quote models.Currency) string {
	var b strings.Builder
	b.WriteString(string(base))
	b.WriteByte('/')
	b.WriteString(string(quote))
	return b.String()
}

// RateAndQuoteVol returns the post-fee effective rate converting a->b and
// the quote volume of the market used, per spec §4.2 step 1-2: prefer the
// direct a/b market's bid (selling a), else the inverse b/a market's
// inverted ask (buying b with a). requireTopOfBook forbids falling back to
// Last when bid/ask is missing. inverted reports which orientation served
// the rate, since a quoted-but-unusable direct market still falls through
// to the inverse.
func RateAndQuoteVol(a, b models.Currency, tickers map[string]models.Ticker, feeFraction float64, requireTopOfBook bool) (rate, quoteVol float64, inverted, ok bool) {
	if t, found := tickers[symbolKey(a, b)]; found {
		bid := t.Bid
		if !requireTopOfBook && bid <= 0 {
			bid = t.Last
		}
		if bid > 0 {
			return bid * (1 - feeFraction), t.QuoteVolume, false, true
		}
	}
	if t, found := tickers[symbolKey(b, a)]; found {
		ask := t.Ask
		if !requireTopOfBook && ask <= 0 {
			ask = t.Last
		}
		if ask > 0 {
			return (1.0 / ask) * (1 - feeFraction), t.QuoteVolume, true, true
		}
	}
	return 0, 0, false, false
}

// Build constructs the directed rate graph over currencies from the given
// tickers, dropping edges with unusable top-of-book or insufficient quote
// volume (spec §4.2).
func Build(venue string, currencies []models.Currency, tickers map[string]models.Ticker, feeFraction float64, requireTopOfBook bool, minQuoteVol float64) *Graph {
	g := &Graph{
		Venue:       venue,
		Currencies:  currencies,
		Index:       make(map[models.Currency]int, len(currencies)),
		Edges:       make([]Edge, 0, len(currencies)*len(currencies)),
		RateMap:     make(map[[2]int]float64),
		EdgeSymbol:  make(map[[2]int]string),
		EdgeInverse: make(map[[2]int]bool),
	}
	for i, c := range currencies {
		g.Index[c] = i
	}

	for _, u := range currencies {
		for _, v := range currencies {
			if u == v {
				continue
			}
			rate, qvol, inverted, ok := RateAndQuoteVol(u, v, tickers, feeFraction, requireTopOfBook)
			if !ok || rate <= 0 {
				continue
			}
			if minQuoteVol > 0 && qvol < minQuoteVol {
				continue
			}
			ui, vi := g.Index[u], g.Index[v]
			key := [2]int{ui, vi}
			g.Edges = append(g.Edges, Edge{U: ui, V: vi, Weight: -math.Log(rate)})
			g.RateMap[key] = rate
			if inverted {
				g.EdgeSymbol[key] = symbolKey(v, u)
			} else {
				g.EdgeSymbol[key] = symbolKey(u, v)
			}
			g.EdgeInverse[key] = inverted
		}
	}
	return g
}

// Rate returns the post-fee effective rate for edge (u,v) by currency, and
// whether the edge exists.
func (g *Graph) Rate(u, v models.Currency) (float64, bool) {
	ui, uok := g.Index[u]
	vi, vok := g.Index[v]
	if !uok || !vok {
		return 0, false
	}
	r, ok := g.RateMap[[2]int{ui, vi}]
	return r, ok
}
