// Package coordinator is the detection-side half of spec §5/§9: it is
// "the natural home for wiring Adapter -> Graph -> Detector -> (Depth) ->
// Dispatcher end to end", named but not given a package in the condensed
// spec. Grounded on internal/bot/engine.go's Engine (per-venue fan-out,
// periodic tasks, deadline-bounded collection of worker output) adapted
// from that file's event-driven cross-venue spread loop to this spec's
// polling, single-venue-per-cycle detection loop.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/svyatogor45/radar-arb/internal/config"
	"github.com/svyatogor45/radar-arb/internal/depth"
	"github.com/svyatogor45/radar-arb/internal/detect"
	"github.com/svyatogor45/radar-arb/internal/graph"
	"github.com/svyatogor45/radar-arb/internal/models"
	"github.com/svyatogor45/radar-arb/internal/reporter"
	"github.com/svyatogor45/radar-arb/pkg/utils"
)

// MarketData is the subset of exchange.Adapter the detection side needs
// per venue: market metadata and a batch ticker snapshot (spec §4.1/§4.2).
// Kept as a consumer-defined interface, the same idiom internal/swapper
// and internal/dispatcher use, so this package never imports
// internal/exchange's concrete adapters.
type MarketData interface {
	LoadMarkets(ctx context.Context) (map[string]models.Market, error)
	FetchTickers(ctx context.Context) (map[string]models.Ticker, error)
}

// Submitter hands a detected opportunity to the execution side.
// *dispatcher.Dispatcher satisfies this structurally.
type Submitter interface {
	Submit(ctx context.Context, opp models.Opportunity)
}

// Coordinator runs the detection loop of spec §2/§4.9: one worker
// goroutine per venue per iteration, collected under an iter_timeout_sec
// deadline (spec §5 "Cancellation and timeouts"), feeding the persistence
// tracker, the reporter sink, and the dispatcher.
type Coordinator struct {
	Venues      map[string]MarketData
	BookSources map[string]depth.BookSource // optional, keyed by venue (spec §4.6)
	Blacklist   *detect.Blacklist
	Tracker     *detect.PersistenceTracker
	Dispatch    Submitter
	Sink        reporter.Sink
	Sim         *Simulation // optional compound simulation (spec §6 summary artifact)
	Cfg         config.DetectionConfig
	Logger      *utils.Logger

	mu        sync.Mutex
	iteration int64
}

// New builds a Coordinator. blacklistSymbols is the raw "BASE/QUOTE" list
// loaded once per process start (spec §5 "immutable-per-iteration
// snapshot"); callers that reload the blacklist from a repository should
// swap Blacklist directly between iterations.
func New(venues map[string]MarketData, dispatch Submitter, sink reporter.Sink, cfg config.DetectionConfig, logger *utils.Logger, blacklistSymbols []string) *Coordinator {
	return &Coordinator{
		Venues:    venues,
		Dispatch:  dispatch,
		Sink:      sink,
		Blacklist: detect.NewBlacklist(blacklistSymbols),
		Tracker:   detect.NewPersistenceTracker(),
		Cfg:       cfg,
		Logger:    logger,
	}
}

// Run fires RunIteration immediately and then on cadence until ctx is
// cancelled. Intended to be started in its own goroutine by main.
func (c *Coordinator) Run(ctx context.Context, cadence time.Duration) {
	c.RunIteration(ctx)
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunIteration(ctx)
		}
	}
}

type venueResult struct {
	venue string
	opps  []models.Opportunity
}

// RunIteration fans out one detection pass per venue, bounded by
// Cfg.IterTimeout; any venue still running at the deadline is abandoned
// for this iteration and its partial results are discarded, exactly per
// spec §5 ("the worker is allowed to finish on its own but its output is
// not consumed").
func (c *Coordinator) RunIteration(ctx context.Context) {
	c.mu.Lock()
	c.iteration++
	iteration := c.iteration
	c.mu.Unlock()

	deadline := c.Cfg.IterTimeout
	if deadline <= 0 {
		deadline = 20 * time.Second
	}
	iterCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	results := make(chan venueResult, len(c.Venues))
	for venue, md := range c.Venues {
		go func(venue string, md MarketData) {
			opps := c.scanVenue(iterCtx, venue, md, iteration)
			select {
			case results <- venueResult{venue, opps}:
			case <-iterCtx.Done():
			}
		}(venue, md)
	}

	collected := make(map[string][]models.Opportunity, len(c.Venues))
collectLoop:
	for range c.Venues {
		select {
		case r := <-results:
			collected[r.venue] = r.opps
		case <-iterCtx.Done():
			if c.Logger != nil {
				missing := len(c.Venues) - len(collected)
				c.Logger.Warn("coordinator_iteration_deadline", utils.Component("coordinator"), zap.Int("venues_cut_off", missing))
			}
			break collectLoop
		}
	}

	for venue, opps := range collected {
		c.finalize(ctx, venue, opps, iteration)
		if c.Sim != nil {
			c.Sim.Apply(venue, opps)
		}
	}
	if c.Sink != nil {
		if err := c.Sink.EmitPersistence(c.Cfg.Quote, c.Tracker.All()); err != nil && c.Logger != nil {
			c.Logger.Warn("coordinator_emit_persistence_error", zap.Error(err))
		}
		if c.Sim != nil {
			if err := c.Sink.EmitSimulationSummary(c.Cfg.Quote, c.Sim.Rows()); err != nil && c.Logger != nil {
				c.Logger.Warn("coordinator_emit_simulation_error", zap.Error(err))
			}
		}
	}
}

// scanVenue builds the rate graph for one venue and runs the configured
// detector(s) over it (spec §4.2-§4.4), optionally revalidating against
// live depth (spec §4.6).
func (c *Coordinator) scanVenue(ctx context.Context, venue string, md MarketData, iteration int64) []models.Opportunity {
	timer := prometheus.NewTimer(detect.IterationDuration.WithLabelValues(venue))
	defer timer.ObserveDuration()

	markets, err := md.LoadMarkets(ctx)
	if err != nil {
		if c.Logger != nil {
			c.Logger.Warn("coordinator_load_markets_error", utils.Exchange(venue), zap.Error(err))
		}
		return nil
	}
	tickers, err := md.FetchTickers(ctx)
	if err != nil {
		// spec §4.1: "unsupported venues are excluded with a single INFO
		// log, never propagated as error".
		if c.Logger != nil {
			c.Logger.Info("coordinator_fetch_tickers_error", utils.Exchange(venue), zap.Error(err))
		}
		return nil
	}

	anchors := make([]models.Currency, 0, len(c.Cfg.BFAllowedQuotes))
	for _, a := range c.Cfg.BFAllowedQuotes {
		anchors = append(anchors, models.Canon(a))
	}

	currencies := graph.BuildUniverse(markets, tickers, graph.UniverseOptions{
		Anchors:          anchors,
		RequireDualQuote: c.Cfg.BFRequireDualQuote,
		RankByQuoteVol:   true,
		CurrenciesLimit:  c.Cfg.BFCurrenciesLimit,
	})

	now := time.Now()
	var opps []models.Opportunity

	switch c.Cfg.Mode {
	case "tri":
		// Raw rates: Triangular applies FeeBpsPerHop itself (spec §4.4's
		// net_bps formula), so the graph must not pre-apply TriFee too or
		// every hop's fee gets charged twice.
		g := graph.Build(venue, currencies, tickers, 0, c.Cfg.TriRequireTopOfBook, c.Cfg.TriMinQuoteVol)
		for _, anchor := range anchors {
			opps = append(opps, detect.Triangular(g, detect.TriOptions{
				Anchor:            anchor,
				FeeBpsPerHop:      c.Cfg.TriFee * 1e4,
				LatencyPenaltyBps: c.Cfg.TriLatencyPenaltyBps,
				MinNetBps:         c.Cfg.TriMinNetBps,
				CurrenciesLimit:   c.Cfg.TriCurrenciesLimit,
				InvQuote:          c.Cfg.InvestmentAmount,
			}, c.Blacklist, iteration, now)...)
		}
		detect.CyclesFound.WithLabelValues(venue, "tri").Add(float64(len(opps)))
	default: // "bf" is the default run mode
		g := graph.Build(venue, currencies, tickers, c.Cfg.BFFee, c.Cfg.BFRequireTopOfBook, c.Cfg.BFMinQuoteVol)
		bfOpps := detect.BellmanFord(g, detect.BFOptions{
			AllowedAnchors: anchors,
			RequireQuote:   c.Cfg.BFRequireQuote,
			MinHops:        c.Cfg.BFMinHops,
			MaxHops:        c.Cfg.BFMaxHops,
			MinNetPct:      c.Cfg.BFMinNet,
			MinNetPerHop:   c.Cfg.BFMinNetPerHop,
			FeeFraction:    c.Cfg.BFFee,
			TopPerVenue:    c.Cfg.TopPerVenue,
		}, c.Blacklist, c.Cfg.InvestmentAmount, iteration, now)

		if c.Cfg.BFRevalidateDepth {
			before := len(bfOpps)
			bfOpps = c.revalidate(ctx, venue, g, bfOpps)
			detect.CyclesRejected.WithLabelValues(venue, "bf", "depth_revalidation").Add(float64(before - len(bfOpps)))
		}
		detect.CyclesFound.WithLabelValues(venue, "bf").Add(float64(len(bfOpps)))
		opps = bfOpps
	}

	for i := range opps {
		opps[i].Venue = venue
		opps[i].Iteration = iteration
	}
	return opps
}

// revalidate re-walks each candidate's hops against live depth (spec
// §4.6), dropping any cycle whose book is unavailable or whose adjusted
// net% no longer clears the BF quality gates.
func (c *Coordinator) revalidate(ctx context.Context, venue string, g *graph.Graph, opps []models.Opportunity) []models.Opportunity {
	src, ok := c.BookSources[venue]
	if !ok {
		return opps
	}
	out := make([]models.Opportunity, 0, len(opps))
	for _, opp := range opps {
		res := depth.Revalidate(ctx, g, src, opp.Cycle, opp.Inv, depth.Options{
			Levels:            c.Cfg.BFDepthLevels,
			FeeBpsPerHop:      c.Cfg.BFFee * 1e4,
			LatencyPenaltyBps: c.Cfg.BFLatencyPenaltyBps,
		})
		if !res.OK {
			continue
		}
		perHop := res.NetPct / float64(opp.Hops)
		if res.NetPct < c.Cfg.BFMinNet || perHop < c.Cfg.BFMinNetPerHop {
			continue
		}
		opp.NetPctRaw = opp.NetPct
		opp.NetPct = res.NetPct
		opp.SlippageBps = res.SlippageBps
		opp.FeeBpsTotal = res.FeeBpsTotal
		opp.UsedWS = res.UsedWS
		opp.Revalidated = true
		opp.EstAfter = opp.Inv * (1 + res.NetPct/100)
		out = append(out, opp)
	}
	return out
}

// finalize updates the persistence tracker and hands each opportunity to
// the dispatcher and reporter sink (spec §2 data flow).
func (c *Coordinator) finalize(ctx context.Context, venue string, opps []models.Opportunity, iteration int64) {
	var hottest int64
	for _, opp := range opps {
		rec := c.Tracker.Observe(venue, opp.Cycle.PathString(), iteration, opp.Timestamp)
		if rec.MaxStreak > hottest {
			hottest = rec.MaxStreak
		}
		if c.Dispatch != nil {
			c.Dispatch.Submit(ctx, opp)
		}
	}
	if hottest > 0 {
		detect.PersistenceStreak.WithLabelValues(venue).Set(float64(hottest))
	}
	if c.Sink == nil {
		return
	}

	bf := make([]models.Opportunity, 0, len(opps))
	tri := make([]models.Opportunity, 0, len(opps))
	for _, o := range opps {
		if o.R1 != 0 || o.R2 != 0 || o.R3 != 0 {
			tri = append(tri, o)
		} else {
			bf = append(bf, o)
		}
	}
	if err := c.Sink.EmitBF(c.Cfg.Quote, bf); err != nil && c.Logger != nil {
		c.Logger.Warn("coordinator_emit_bf_error", utils.Exchange(venue), zap.Error(err))
	}
	if len(tri) > 0 {
		if err := c.Sink.EmitTri(c.Cfg.Quote, tri); err != nil && c.Logger != nil {
			c.Logger.Warn("coordinator_emit_tri_error", utils.Exchange(venue), zap.Error(err))
		}
	}
}
