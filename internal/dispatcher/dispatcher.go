// Package dispatcher hands detected opportunities off to the execution
// engine with concurrency gating and an emergency pause lever, grounded
// on RadarDispatcher in dispatcher.py.
package dispatcher

import (
	"context"
	"strings"
	"sync"

	"github.com/svyatogor45/radar-arb/internal/config"
	"github.com/svyatogor45/radar-arb/internal/models"
	"github.com/svyatogor45/radar-arb/internal/swapper"
	"github.com/svyatogor45/radar-arb/pkg/utils"
	"go.uber.org/zap"
)

// BalanceReader is the one adapter capability the dispatcher needs ahead
// of handing a plan to the executor: reading the anchor's free balance.
// swapper.Adapter satisfies this structurally.
type BalanceReader interface {
	FetchBalance(ctx context.Context, ccy models.Currency) (float64, error)
}

// Executor runs a SwapPlan to completion. *swapper.Swapper satisfies this.
type Executor interface {
	Execute(ctx context.Context, plan models.SwapPlan) (models.SwapResult, error)
}

// Dispatcher fans detected opportunities out to a bounded worker pool,
// one SwapPlan per opportunity, gated by a per-venue semaphore and an
// anchor-balance floor (spec §4.8).
type Dispatcher struct {
	Adapters map[string]BalanceReader
	Exec     Executor
	Cfg      config.DispatcherConfig
	Swap     config.SwapperConfig
	Logger   *utils.Logger

	once sync.Once
	jobs chan func()

	mu     sync.Mutex
	sems   map[string]chan struct{}
	paused map[string]bool
}

// New constructs a Dispatcher and starts its worker pool. Callers should
// treat the returned Dispatcher as long-lived; Close stops the pool.
func New(adapters map[string]swapper.Adapter, exec Executor, cfg config.DispatcherConfig, swapCfg config.SwapperConfig, logger *utils.Logger) *Dispatcher {
	readers := make(map[string]BalanceReader, len(adapters))
	for venue, a := range adapters {
		readers[venue] = a
	}
	d := &Dispatcher{
		Adapters: readers,
		Exec:     exec,
		Cfg:      cfg,
		Swap:     swapCfg,
		Logger:   logger,
		sems:     make(map[string]chan struct{}),
		paused:   make(map[string]bool),
	}
	d.start()
	return d
}

func (d *Dispatcher) start() {
	d.once.Do(func() {
		workers := d.Cfg.MaxWorkers
		if workers < 1 {
			workers = 1
		}
		d.jobs = make(chan func(), 4096)
		for i := 0; i < workers; i++ {
			go func() {
				for job := range d.jobs {
					job()
				}
			}()
		}
	})
}

// Close stops accepting new work. In-flight jobs already queued still run.
func (d *Dispatcher) Close() {
	d.once.Do(func() {}) // no-op if start never ran
	if d.jobs != nil {
		close(d.jobs)
	}
}

func (d *Dispatcher) venueSem(venue string) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	sem, ok := d.sems[venue]
	if !ok {
		capacity := d.Cfg.PerExchangeConcurrency
		if capacity < 1 {
			capacity = 1
		}
		sem = make(chan struct{}, capacity)
		d.sems[venue] = sem
	}
	return sem
}

// isPaused reports whether venue is under an emergency pause.
func (d *Dispatcher) isPaused(venue string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused[venue]
}

// pause marks venue as emergency-paused; dispatch is a one-way lever per
// spec §4.8 step 5, with no timed resume.
func (d *Dispatcher) pause(venue string) {
	d.mu.Lock()
	d.paused[venue] = true
	d.mu.Unlock()
}

// Resume lifts an emergency pause on venue. Not invoked by the dispatch
// path itself; an operator surface (or future cooldown timer) calls it.
func (d *Dispatcher) Resume(venue string) {
	d.mu.Lock()
	delete(d.paused, venue)
	d.mu.Unlock()
}

// minAmount resolves the anchor balance floor for venue, falling back to
// the configured default.
func (d *Dispatcher) minAmount(venue string) float64 {
	if amt, ok := d.Cfg.MinAmounts[strings.ToLower(venue)]; ok {
		return amt
	}
	return d.Cfg.DefaultMinAmount
}

// Submit dispatches opp for execution. It never blocks on a busy venue:
// if the venue's semaphore is saturated the opportunity is dropped. The
// plan itself is queued to the bounded worker pool and may wait there if
// every worker is busy, mirroring a thread-pool submit.
func (d *Dispatcher) Submit(ctx context.Context, opp models.Opportunity) {
	venue := opp.Venue
	if d.isPaused(venue) {
		if d.Logger != nil {
			d.Logger.Info("dispatcher_skip_paused", utils.Exchange(venue))
		}
		DroppedTotal.WithLabelValues(venue, "paused").Inc()
		return
	}

	sem := d.venueSem(venue)
	select {
	case sem <- struct{}{}:
	default:
		DroppedTotal.WithLabelValues(venue, "busy").Inc()
		return
	}

	plan := planFromCycle(opp, d.Swap.DryRun)

	d.jobs <- func() {
		defer func() { <-sem }()
		d.run(ctx, venue, plan)
	}
}

// run reads the anchor's free balance, skips below the floor, and hands
// the sized plan to the executor, applying the emergency pause lever on
// a negative realized delta (spec §4.8 steps 3-5).
func (d *Dispatcher) run(ctx context.Context, venue string, plan models.SwapPlan) {
	adapter, ok := d.Adapters[venue]
	if !ok {
		return
	}
	anchor := plan.FirstCcy()
	balance, err := adapter.FetchBalance(ctx, anchor)
	if err != nil {
		if d.Logger != nil {
			d.Logger.Warn("dispatcher_balance_error", utils.Exchange(venue), zap.Error(err))
		}
		return
	}
	min := d.minAmount(venue)
	if balance <= 0 || balance < min {
		if d.Logger != nil {
			d.Logger.Debug("dispatcher_skip_min_amount", utils.Exchange(venue), utils.Volume(balance))
		}
		DroppedTotal.WithLabelValues(venue, "below_min_amount").Inc()
		return
	}
	plan.Amount = balance

	res, err := d.Exec.Execute(ctx, plan)
	if err != nil {
		if d.Logger != nil {
			d.Logger.Error("dispatcher_execute_error", utils.Exchange(venue), zap.Error(err))
		}
		return
	}
	if d.Logger != nil {
		d.Logger.Info("dispatcher_swap_result", utils.Exchange(venue), utils.State(string(res.Status)), utils.Delta(res.Delta))
	}

	if d.Cfg.EmergencyOnNegative && res.OK && res.Delta < 0 {
		d.pause(venue)
		EmergencyPausesTotal.WithLabelValues(venue).Inc()
		if d.Logger != nil {
			d.Logger.Warn("dispatcher_emergency_pause", utils.Exchange(venue), utils.Delta(res.Delta))
		}
	}
}

// planFromCycle builds a SwapPlan from a detected cycle; the real amount is
// filled in by run once the anchor balance is known. dryRun selects
// SwapModeTest, the safety default (spec §4.7 "Test mode... used for wiring
// validation"): a deployment must opt into live order placement explicitly
// via DRY_RUN=false.
func planFromCycle(opp models.Opportunity, dryRun bool) models.SwapPlan {
	nodes := opp.Cycle.Nodes
	hops := make([]models.HopPair, 0, len(nodes)-1)
	for i := 0; i+1 < len(nodes); i++ {
		hops = append(hops, models.HopPair{Base: nodes[i], Quote: nodes[i+1]})
	}
	mode := models.SwapModeReal
	if dryRun {
		mode = models.SwapModeTest
	}
	return models.SwapPlan{
		Venue:  opp.Venue,
		Hops:   hops,
		Amount: 0,
		Mode:   mode,
	}
}
