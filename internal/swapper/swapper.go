package swapper

import (
	"context"
	"fmt"
	"time"

	"github.com/svyatogor45/radar-arb/internal/config"
	"github.com/svyatogor45/radar-arb/internal/models"
	"github.com/svyatogor45/radar-arb/pkg/utils"
)

// Swapper executes SwapPlans against one adapter per venue. A single
// instance is shared across dispatcher workers; per-plan state lives only
// on the stack of Execute.
type Swapper struct {
	Adapters map[string]Adapter
	Swap     config.SwapperConfig
	Mirror   config.MirrorConfig
	Sizing   config.SizingConfig
	Logger   *utils.Logger

	Now   func() time.Time
	Sleep func(time.Duration)
}

func (s *Swapper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Swapper) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if s.Sleep != nil {
		s.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Execute runs plan to completion and returns its SwapResult. Never
// returns a Go error for ordinary trading failures — those are encoded in
// the result per spec §4.7; an error return is reserved for programmer
// errors (no adapter registered for plan.Venue).
func (s *Swapper) Execute(ctx context.Context, plan models.SwapPlan) (models.SwapResult, error) {
	adapter, ok := s.Adapters[plan.Venue]
	if !ok {
		return models.SwapResult{}, fmt.Errorf("swapper: no adapter registered for venue %q", plan.Venue)
	}
	if len(plan.Hops) == 0 {
		return models.SwapResult{}, fmt.Errorf("swapper: empty plan")
	}

	var result models.SwapResult
	if plan.Mode == models.SwapModeTest {
		result = s.executeTest(ctx, adapter, plan)
	} else {
		result = s.executeReal(ctx, adapter, plan)
	}
	SwapsTotal.WithLabelValues(plan.Venue, string(result.Status)).Inc()
	return result, nil
}

// executeTest simulates every hop against live tickers with no orders
// placed, per spec §4.7 "Test mode".
func (s *Swapper) executeTest(ctx context.Context, adapter Adapter, plan models.SwapPlan) models.SwapResult {
	amountIn := plan.Amount
	if amountIn <= 0 {
		amountIn = 1
	}
	amt := amountIn
	fills := make([]models.HopFill, 0, len(plan.Hops))

	for _, hop := range plan.Hops {
		symbol, side, ok := resolveHop(adapter, hop.Base, hop.Quote)
		if !ok {
			return failureResult(plan, amountIn, fmt.Sprintf("no market for %s->%s", hop.Base, hop.Quote))
		}
		t, err := adapter.FetchTicker(ctx, symbol)
		if err != nil {
			return failureResult(plan, amountIn, err.Error())
		}
		price := t.Bid
		if side == SideBuy {
			price = t.Ask
		}
		if price <= 0 {
			return failureResult(plan, amountIn, fmt.Sprintf("no usable price for %s", symbol))
		}
		out := amt * price
		if side == SideBuy {
			out = amt / price
		}
		fills = append(fills, models.HopFill{
			Symbol: symbol, Side: side, AmountIn: amt, AmountOut: out,
			AvgPrice: price, ExecutedAt: s.now(),
		})
		amt = out
	}

	return finalizeResult(plan, amountIn, amt, fills, nil, nil)
}

// executeReal runs the common path for every hop but the mirrored last
// leg of a round-trip plan, per spec §4.7 "Real mode".
func (s *Swapper) executeReal(ctx context.Context, adapter Adapter, plan models.SwapPlan) models.SwapResult {
	amountIn := plan.Amount
	fills := make([]models.HopFill, 0, len(plan.Hops))
	amt := amountIn
	lastIdx := len(plan.Hops) - 1
	isRT := plan.IsRoundTrip()

	var firstHopOutAmount, p1 float64
	var firstSymbol string

	for i, hop := range plan.Hops {
		symbol, side, ok := resolveHop(adapter, hop.Base, hop.Quote)
		if !ok {
			return failureResult(plan, amountIn, fmt.Sprintf("no market for %s->%s", hop.Base, hop.Quote))
		}

		if i == 0 && amt <= 0 && s.Sizing.Mode == "auto" {
			if t, terr := adapter.FetchTicker(ctx, symbol); terr == nil {
				refPrice := t.Last
				if side == SideSell {
					refPrice = t.Bid
				} else if t.Ask > 0 {
					refPrice = t.Ask
				}
				amt = autoSizeBaseUnits(s.Sizing.ForVenueSymbol(plan.Venue, symbol), refPrice, t.QuoteVolume, refPrice)
			}
		}
		if amt <= 0 {
			free, err := adapter.FetchBalance(ctx, hop.Base)
			if err != nil {
				return failureResult(plan, amountIn, err.Error())
			}
			amt = free
		}
		if i == 0 {
			amountIn = amt
		}

		if s.Mirror.Enabled && isRT && i == lastIdx {
			// Orientation is a property of the traversed market, not the
			// side: a 2-hop round trip re-crosses the same symbol with the
			// opposite side, and P_entry stays p1 (spec §8 S4).
			fill, mirrorState, err := s.runMirrorLeg(ctx, adapter, plan.Venue, symbol, side, p1, firstSymbol == symbol, firstHopOutAmount, amt)
			if err != nil {
				return mirrorPendingOrFailure(plan, amountIn, fills, err, mirrorState)
			}
			fills = append(fills, fill)
			amt = fill.AmountOut
			return finalizeResult(plan, amountIn, amt, fills, mirrorState, nil)
		}

		fill, err := s.placeCommonHop(ctx, adapter, symbol, side, amt)
		if err != nil {
			return failureResult(plan, amountIn, err.Error())
		}
		fills = append(fills, fill)

		if s.Swap.SettleSleepMs > 0 {
			s.sleep(time.Duration(s.Swap.SettleSleepMs) * time.Millisecond)
		}
		settled, err := adapter.FetchBalance(ctx, hop.Quote)
		if err == nil {
			amt = settled
		} else {
			amt = fill.AmountOut
		}

		if i == 0 {
			firstHopOutAmount = fill.AmountOut
			firstSymbol = symbol
			p1 = fill.AvgPrice
		}
	}

	return finalizeResult(plan, amountIn, amt, fills, nil, nil)
}

// placeCommonHop places a market order for one non-mirrored hop, retrying
// once at a reduced size on insufficient funds (spec §4.7 step 2). amount
// is denominated in the symbol's base currency for a sell and in its quote
// currency for a buy (resolveHop's orientation), which is exactly the unit
// a quote-cost market buy needs — so a buy-side quoteCostQuirk adapter gets
// amount passed straight through as OrderRequest.Amount/QuoteCost rather
// than rounded via AmountToPrecision, which only knows the base step size.
func (s *Swapper) placeCommonHop(ctx context.Context, adapter Adapter, symbol, side string, amount float64) (models.HopFill, error) {
	quoteCost := side == SideBuy && marketBuyUsesQuoteCost(adapter)

	// toQty maps the held amount into the venue's order-amount unit: a
	// quote-cost buy spends it as-is, any other buy approximates the base
	// quantity via the current ask, a sell is already in base units.
	toQty := func(amt float64) (float64, error) {
		if quoteCost {
			return amt, nil
		}
		if side == SideBuy {
			t, err := adapter.FetchTicker(ctx, symbol)
			if err != nil {
				return 0, err
			}
			px := t.Ask
			if px <= 0 {
				px = t.Last
			}
			if px <= 0 {
				return 0, fmt.Errorf("no usable price for %s", symbol)
			}
			amt /= px
		}
		return adapter.AmountToPrecision(symbol, amt), nil
	}

	qty, err := toQty(amount)
	if err != nil {
		return models.HopFill{}, err
	}
	res, err := adapter.CreateOrder(ctx, OrderRequest{
		Symbol: symbol, Side: side, Type: OrderTypeMarket, Amount: qty,
		QuoteCost:   quoteCost,
		TimeInForce: s.Swap.TimeInForce,
	})
	if err != nil || res.InsufficientFunds {
		cutBps := s.Swap.InsufficientFundsRetryBps
		if cutBps < 20 {
			cutBps = 20
		}
		retryQty, qerr := toQty(amount * (1 - cutBps/1e4))
		if qerr != nil {
			return models.HopFill{}, qerr
		}
		res, err = adapter.CreateOrder(ctx, OrderRequest{
			Symbol: symbol, Side: side, Type: OrderTypeMarket, Amount: retryQty,
			QuoteCost:   quoteCost,
			TimeInForce: s.Swap.TimeInForce,
		})
		if err != nil {
			return models.HopFill{}, err
		}
	}
	return fillFromOrder(symbol, side, res), nil
}

// runMirrorLeg places and drives the mirrored last-leg order to
// completion, returning the realized fill and its terminal MirrorState.
func (s *Swapper) runMirrorLeg(ctx context.Context, adapter Adapter, venue, symbol, side string, p1 float64, sameOrientation bool, firstHopOutAmount, freeBalance float64) (models.HopFill, *models.MirrorState, error) {
	entry := mirrorEntryPrice(p1, sameOrientation)
	market, _ := adapter.Market(symbol)
	amount := mirrorTargetAmount(side, firstHopOutAmount, freeBalance, entry, s.Mirror.AmountToleranceBps)

	loop := &MirrorLoop{
		Adapter: adapter,
		Cfg:     s.Mirror,
		Venue:   venue,
		Symbol:  symbol,
		Side:    side,
		Entry:   entry,
		Logger:  s.Logger,
		Now:     s.Now,
		Sleep:   s.Sleep,
		MidFunc: func(ctx context.Context) (float64, error) {
			t, err := adapter.FetchTicker(ctx, symbol)
			if err != nil {
				return 0, err
			}
			if t.Bid <= 0 || t.Ask <= 0 {
				return t.Last, nil
			}
			return (t.Bid + t.Ask) / 2, nil
		},
	}

	state, err := loop.Place(ctx, market, amount, freeBalance)
	if err != nil {
		return models.HopFill{}, nil, err
	}
	fill, err := loop.Run(ctx, state)
	return fill, state, err
}

func failureResult(plan models.SwapPlan, amountIn float64, reason string) models.SwapResult {
	return models.SwapResult{
		OK: false, Status: models.SwapStatusFailed,
		AmountIn: amountIn, AmountOut: amountIn, Delta: 0,
		Details: models.SwapResultDetails{
			StartCcy: plan.FirstCcy(), FinalCcy: plan.LastCcy(), Error: reason,
		},
	}
}

// mirrorPendingOrFailure classifies a mirror-leg error: a loss-guard skip
// leaves the position open (mirror_pending, delta neutralized); any other
// error is an ordinary failure.
func mirrorPendingOrFailure(plan models.SwapPlan, amountIn float64, fills []models.HopFill, err error, state *models.MirrorState) models.SwapResult {
	if err == errMirrorForceCloseSkipped {
		return models.SwapResult{
			OK: true, Status: models.SwapStatusMirrorPending,
			AmountIn: amountIn, AmountOut: amountIn, Delta: 0,
			Details: models.SwapResultDetails{
				Fills: fills, StartCcy: plan.FirstCcy(), FinalCcy: plan.LastCcy(),
				Mirror: state, Reason: "force_close_skipped_by_loss_guard",
			},
		}
	}
	return failureResult(plan, amountIn, err.Error())
}

// finalizeResult applies spec §4.7 "Status and delta computation": the
// mirror_pending dust classification and the unconditional round-trip
// guardrail.
func finalizeResult(plan models.SwapPlan, amountIn, amountOut float64, fills []models.HopFill, mirror *models.MirrorState, m2m *float64) models.SwapResult {
	isRT := plan.IsRoundTrip()
	delta := amountOut - amountIn

	if mirror != nil && amountIn > 0 && amountOut <= 0.05*amountIn {
		return models.SwapResult{
			OK: true, Status: models.SwapStatusMirrorPending,
			AmountIn: amountIn, AmountOut: amountIn, Delta: 0,
			Details: models.SwapResultDetails{
				Fills: fills, StartCcy: plan.FirstCcy(), FinalCcy: plan.LastCcy(),
				Mirror: mirror, M2MDelta: m2m,
			},
		}
	}

	status := models.SwapStatusPositive
	ok := true
	if delta < 0 {
		status = models.SwapStatusNegative
	}
	if isRT && delta < 0 {
		status = models.SwapStatusFailed
		ok = false
	}

	return models.SwapResult{
		OK: ok, Status: status,
		AmountIn: amountIn, AmountOut: amountOut, Delta: delta,
		Details: models.SwapResultDetails{
			Fills: fills, StartCcy: plan.FirstCcy(), FinalCcy: plan.LastCcy(), Mirror: mirror,
		},
	}
}
