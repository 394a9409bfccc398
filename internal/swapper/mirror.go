package swapper

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/svyatogor45/radar-arb/internal/config"
	"github.com/svyatogor45/radar-arb/internal/models"
	"github.com/svyatogor45/radar-arb/pkg/utils"
)

var (
	errMirrorBelowMinAmount    = errors.New("mirror_below_min_amount")
	errMirrorBelowMinCost      = errors.New("mirror_below_min_cost")
	errMirrorForceCloseSkipped = errors.New("mirror_forced_close_skipped")
)

// mirrorEntryPrice resolves §4.7's open question: P_entry always denotes
// last-hop quote-per-base, regardless of how the symbol happens to be
// oriented. p1 is the effective quote-per-base price realized on the
// first hop; sameOrientation reports whether the first and last hop
// reference the same quote/base axis.
func mirrorEntryPrice(p1 float64, sameOrientation bool) float64 {
	if sameOrientation {
		return p1
	}
	if p1 == 0 {
		return 0
	}
	return 1.0 / p1
}

// mirrorOffsetPrice applies price_offset_bps to the entry price: buys post
// below entry, sells post above it, both favoring a fill over the raw
// entry price.
func mirrorOffsetPrice(side string, entry, offsetBps float64) float64 {
	off := offsetBps / 1e4
	if side == SideBuy {
		return entry * (1 - off)
	}
	return entry * (1 + off)
}

// mirrorTargetAmount computes the quantity for the initial mirrored
// order (spec §4.7 "Compute target amount").
func mirrorTargetAmount(side string, firstHopOutAmount, freeBalance, price, toleranceBps float64) float64 {
	if side == SideSell {
		amt := firstHopOutAmount
		if freeBalance < amt {
			shortfallBps := (amt - freeBalance) / amt * 1e4
			if shortfallBps <= toleranceBps {
				amt = freeBalance
			}
		}
		return amt
	}
	if price <= 0 {
		return 0
	}
	return firstHopOutAmount / price
}

// enforceMarketMinimums bumps amount up to the market's min_amount/min_cost
// when the wallet can cover it, or fails with a mirror_below_min_* error.
// freeBalance is in the spend currency's units: quote for a buy, base for
// a sell.
func enforceMarketMinimums(m models.Market, side string, amount, price, freeBalance float64) (float64, error) {
	if m.MinAmount > 0 && amount < m.MinAmount {
		if side == SideBuy {
			if m.MinAmount*price > freeBalance {
				return 0, errMirrorBelowMinAmount
			}
		} else if m.MinAmount > freeBalance {
			return 0, errMirrorBelowMinAmount
		}
		amount = m.MinAmount
	}
	if m.MinCost > 0 && price > 0 {
		cost := amount * price
		if cost < m.MinCost {
			needed := m.MinCost / price
			if side == SideBuy {
				if m.MinCost > freeBalance {
					return 0, errMirrorBelowMinCost
				}
			} else if needed > freeBalance {
				return 0, errMirrorBelowMinCost
			}
			amount = needed
		}
	}
	return amount, nil
}

// relaxUsedBps is the time-based relaxation ladder of spec §4.7 step 3:
// zero before relax_after_sec, then relax_bps_per_ttl for every full TTL
// elapsed beyond it, clamped to relax_max_bps.
func relaxUsedBps(elapsedSec float64, cfg config.MirrorConfig) float64 {
	if elapsedSec < float64(cfg.RelaxAfterSec) || cfg.ReemitTTLSec <= 0 {
		return 0
	}
	steps := math.Floor((elapsedSec - float64(cfg.RelaxAfterSec)) / float64(cfg.ReemitTTLSec))
	relax := steps * cfg.RelaxBpsPerTTL
	if relax < 0 {
		relax = 0
	}
	if relax > cfg.RelaxMaxBps {
		relax = cfg.RelaxMaxBps
	}
	return relax
}

// computeNewLimit is the per-tick repricing rule of spec §4.7 step 3,
// symmetric across buy/sell. Property #8 ("mirror bound respect") holds by
// construction: a buy never reprices above entry*(1+relaxUsedBps/1e4), a
// sell never below entry*(1-relaxUsedBps/1e4).
func computeNewLimit(side string, entry, mid, protectiveBound, safetyBps, relaxBps float64) float64 {
	safety := safetyBps / 1e4
	if side == SideBuy {
		if mid < entry {
			candidate := mid * (1 - safety)
			if candidate < protectiveBound {
				return candidate
			}
			return protectiveBound
		}
		if relaxBps > 0 {
			return entry * (1 + relaxBps/1e4)
		}
		return protectiveBound
	}
	if mid > entry {
		candidate := mid * (1 + safety)
		if candidate > protectiveBound {
			return candidate
		}
		return protectiveBound
	}
	if relaxBps > 0 {
		return entry * (1 - relaxBps/1e4)
	}
	return protectiveBound
}

// lossGuardBound is the adverse-move threshold beyond which a force-close
// must be skipped rather than crystallize more than allow_max_loss_bps.
func lossGuardBound(side string, entry, allowMaxLossBps float64) float64 {
	b := allowMaxLossBps / 1e4
	if side == SideBuy {
		return entry * (1 + b)
	}
	return entry * (1 - b)
}

// beyondAdverseBound reports whether mid has moved past the loss-guard
// bound in the adverse direction for side.
func beyondAdverseBound(side string, mid, bound float64) bool {
	if side == SideBuy {
		return mid > bound
	}
	return mid < bound
}

func closeEnough(a, b float64) bool {
	if b == 0 {
		return a == 0
	}
	return math.Abs(a-b)/math.Abs(b) < 1e-6
}

// MirrorLoop drives the mirrored last-leg order from initial placement
// through the TTL re-emit ladder to a terminal fill or force-close.
type MirrorLoop struct {
	Adapter Adapter
	Cfg     config.MirrorConfig
	Venue   string
	Symbol  string
	Side    string
	Entry   float64
	Logger  *utils.Logger

	// MidFunc returns the current mid price for Symbol.
	MidFunc func(ctx context.Context) (float64, error)
	// Now and Sleep are overridable for deterministic tests.
	Now   func() time.Time
	Sleep func(time.Duration)
}

func (m *MirrorLoop) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *MirrorLoop) sleep(d time.Duration) {
	if m.Sleep != nil {
		m.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Place submits the initial mirrored LIMIT order and returns its state.
// freeBalance is the wallet's spend-currency balance, used to decide
// whether a below-minimum amount can be bumped up or must fail.
func (m *MirrorLoop) Place(ctx context.Context, market models.Market, amount, freeBalance float64) (*models.MirrorState, error) {
	limit := mirrorOffsetPrice(m.Side, m.Entry, m.Cfg.PriceOffsetBps)
	amount, err := enforceMarketMinimums(market, m.Side, amount, limit, freeBalance)
	if err != nil {
		return nil, err
	}
	price := m.Adapter.PriceToPrecision(m.Symbol, limit)
	qty := m.Adapter.AmountToPrecision(m.Symbol, amount)

	res, err := m.Adapter.CreateOrder(ctx, OrderRequest{
		Symbol:      m.Symbol,
		Side:        m.Side,
		Type:        OrderTypeLimit,
		Amount:      qty,
		Price:       price,
		TimeInForce: "GTC",
	})
	if err != nil {
		return nil, err
	}
	return &models.MirrorState{
		Symbol:          m.Symbol,
		Side:            m.Side,
		EntrySymPrice:   m.Entry,
		ProtectiveBound: price,
		OrderID:         res.OrderID,
		Amount:          qty,
		PlacedAt:        m.now(),
		Status:          "open",
	}, nil
}

// Run ticks the TTL re-emit loop until the order fills, is force-closed,
// or the loss guard skips the force-close. forceClose cancels the resting
// order before it evaluates the loss guard, so a skipped force-close
// leaves the position open with no order on the book.
func (m *MirrorLoop) Run(ctx context.Context, state *models.MirrorState) (models.HopFill, error) {
	ttl := m.Cfg.ReemitTTL()
	if ttl <= 0 {
		ttl = time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return models.HopFill{}, ctx.Err()
		default:
		}
		m.sleep(ttl)
		now := m.now()
		elapsed := now.Sub(state.PlacedAt).Seconds()
		state.ElapsedS = elapsed

		if m.Cfg.CloseTimeoutSec > 0 && elapsed >= float64(m.Cfg.CloseTimeoutSec) {
			return m.forceClose(ctx, state)
		}

		res, err := m.Adapter.FetchOrder(ctx, m.Symbol, state.OrderID)
		if err == nil && (res.Status == "closed" || res.Status == "filled" || res.FilledAmount >= state.Amount*(1-1e-9)) {
			state.Status = "filled"
			return fillFromOrder(m.Symbol, m.Side, res), nil
		}

		mid, merr := m.MidFunc(ctx)
		if merr != nil {
			continue
		}
		relax := relaxUsedBps(elapsed, m.Cfg)
		newLimit := computeNewLimit(m.Side, m.Entry, mid, state.ProtectiveBound, m.Cfg.ReemitSafetyBps, relax)
		if closeEnough(newLimit, state.ProtectiveBound) {
			continue
		}
		if m.Cfg.ReemitMax > 0 && state.ReemitCount >= m.Cfg.ReemitMax {
			return m.forceClose(ctx, state)
		}

		oldLimit := state.ProtectiveBound
		if err := m.Adapter.CancelOrder(ctx, m.Symbol, state.OrderID); err != nil {
			continue
		}
		qty := state.Amount
		if m.Side == SideBuy {
			qty = (state.Amount * oldLimit) / newLimit // preserve the original spend budget
		}
		qty = m.Adapter.AmountToPrecision(m.Symbol, qty)
		price := m.Adapter.PriceToPrecision(m.Symbol, newLimit)
		res2, err := m.Adapter.CreateOrder(ctx, OrderRequest{
			Symbol:      m.Symbol,
			Side:        m.Side,
			Type:        OrderTypeLimit,
			Amount:      qty,
			Price:       price,
			TimeInForce: "GTC",
		})
		if err != nil {
			continue
		}
		state.OrderID = res2.OrderID
		state.ProtectiveBound = price
		state.Amount = qty
		state.RelaxUsedBps = relax
		state.ReemitCount++
		MirrorReemitsTotal.WithLabelValues(m.Venue).Inc()

		if m.Logger != nil {
			m.Logger.Info("mirror_reemit",
				utils.Symbol(m.Symbol),
				zap.Float64("old_limit", oldLimit),
				zap.Float64("new_limit", price),
				zap.Float64("mid", mid),
				zap.Float64("entry", m.Entry),
				zap.Float64("elapsed_s", elapsed),
				zap.Int("attempt", state.ReemitCount),
			)
		}
	}
}

func (m *MirrorLoop) forceClose(ctx context.Context, state *models.MirrorState) (models.HopFill, error) {
	_ = m.Adapter.CancelOrder(ctx, m.Symbol, state.OrderID)

	mid, err := m.MidFunc(ctx)
	if err == nil {
		bound := lossGuardBound(m.Side, m.Entry, m.Cfg.AllowMaxLossBps)
		if beyondAdverseBound(m.Side, mid, bound) {
			MirrorForceClosesTotal.WithLabelValues(m.Venue, "skipped_loss_guard").Inc()
			if m.Logger != nil {
				m.Logger.Warn("mirror_forced_close_skipped",
					utils.Symbol(m.Symbol),
					zap.Float64("mid", mid),
					zap.Float64("bound", bound),
					zap.Float64("entry", m.Entry),
				)
			}
			return models.HopFill{}, errMirrorForceCloseSkipped
		}
	}

	res, err := m.Adapter.CreateOrder(ctx, OrderRequest{
		Symbol: m.Symbol,
		Side:   m.Side,
		Type:   OrderTypeMarket,
		Amount: m.Adapter.AmountToPrecision(m.Symbol, state.Amount),
	})
	if err != nil {
		return models.HopFill{}, err
	}
	MirrorForceClosesTotal.WithLabelValues(m.Venue, "closed").Inc()
	state.Status = "force_closed"
	return fillFromOrder(m.Symbol, m.Side, res), nil
}

// fillFromOrder orients an order's filled base quantity into the hop's
// in/out flow: a sell turns base into quote, a buy spends quote to
// acquire base.
func fillFromOrder(symbol, side string, res OrderResult) models.HopFill {
	in := res.FilledAmount
	out := res.FilledAmount * res.AvgPrice
	if side == SideBuy {
		in, out = out, in
	}
	return models.HopFill{
		Symbol:     symbol,
		Side:       side,
		AmountIn:   in,
		AmountOut:  out,
		AvgPrice:   res.AvgPrice,
		Fee:        res.Fee,
		FeeCcy:     res.FeeCcy,
		OrderID:    res.OrderID,
		ExecutedAt: time.Now(),
	}
}
