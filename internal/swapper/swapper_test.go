package swapper

import (
	"context"
	"math"
	"testing"

	"github.com/svyatogor45/radar-arb/internal/config"
	"github.com/svyatogor45/radar-arb/internal/models"
)

type fakeAdapter struct {
	markets map[string]models.Market
	tickers map[string]models.Ticker
	balances map[string]float64
	orders  []OrderRequest
	orderResult OrderResult
	orderResultBySymbol map[string]OrderResult
}

func (f *fakeAdapter) Market(symbol string) (models.Market, bool) {
	m, ok := f.markets[symbol]
	return m, ok
}
func (f *fakeAdapter) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	return f.tickers[symbol], nil
}
func (f *fakeAdapter) FetchBalance(ctx context.Context, ccy models.Currency) (float64, error) {
	return f.balances[string(ccy)], nil
}
func (f *fakeAdapter) CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	f.orders = append(f.orders, req)
	if r, ok := f.orderResultBySymbol[req.Symbol]; ok {
		return r, nil
	}
	return f.orderResult, nil
}
func (f *fakeAdapter) FetchOrder(ctx context.Context, symbol, orderID string) (OrderResult, error) {
	return OrderResult{OrderID: orderID, Status: "open"}, nil
}
func (f *fakeAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error { return nil }
func (f *fakeAdapter) AmountToPrecision(symbol string, amount float64) float64       { return amount }
func (f *fakeAdapter) PriceToPrecision(symbol string, price float64) float64         { return price }

func TestResolveHopDirectSellsBase(t *testing.T) {
	a := &fakeAdapter{markets: map[string]models.Market{"BTC/USDT": {Base: "BTC", Quote: "USDT"}}}
	sym, side, ok := resolveHop(a, "BTC", "USDT")
	if !ok || sym != "BTC/USDT" || side != SideSell {
		t.Fatalf("got sym=%s side=%s ok=%v", sym, side, ok)
	}
}

func TestResolveHopInverseBuysBase(t *testing.T) {
	a := &fakeAdapter{markets: map[string]models.Market{"USDT/BTC": {Base: "USDT", Quote: "BTC"}}}
	sym, side, ok := resolveHop(a, "BTC", "USDT")
	if !ok || sym != "USDT/BTC" || side != SideBuy {
		t.Fatalf("got sym=%s side=%s ok=%v", sym, side, ok)
	}
}

func TestExecuteTestModeSimulatesConversion(t *testing.T) {
	a := &fakeAdapter{
		markets: map[string]models.Market{
			"BTC/USDT": {Base: "BTC", Quote: "USDT"},
		},
		tickers: map[string]models.Ticker{
			"BTC/USDT": {Bid: 50000, Ask: 50010},
		},
	}
	s := &Swapper{Adapters: map[string]Adapter{"testvenue": a}}
	plan := models.SwapPlan{
		Venue: "testvenue", Mode: models.SwapModeTest, Amount: 1,
		Hops: []models.HopPair{{Base: "BTC", Quote: "USDT"}},
	}
	res, err := s.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AmountOut != 50000 {
		t.Errorf("amount_out = %v, want 50000 (1 BTC sold at bid)", res.AmountOut)
	}
}

// TestFailureNeutrality is testable property #6: for every SwapResult
// with ok == false, amount_out == amount_in and delta == 0.
func TestFailureNeutrality(t *testing.T) {
	a := &fakeAdapter{markets: map[string]models.Market{}}
	s := &Swapper{Adapters: map[string]Adapter{"v": a}}
	plan := models.SwapPlan{
		Venue: "v", Mode: models.SwapModeTest, Amount: 1,
		Hops: []models.HopPair{{Base: "BTC", Quote: "XYZ"}}, // no market exists
	}
	res, _ := s.Execute(context.Background(), plan)
	if res.OK {
		t.Fatal("expected failure when no market resolves the hop")
	}
	if res.AmountOut != res.AmountIn || res.Delta != 0 {
		t.Errorf("failure neutrality violated: in=%v out=%v delta=%v", res.AmountIn, res.AmountOut, res.Delta)
	}
}

// TestRoundTripGuardrail is testable property #7: every is_rt plan with
// ok == true has delta >= 0.
func TestRoundTripGuardrail(t *testing.T) {
	plan := models.SwapPlan{
		Hops: []models.HopPair{{Base: "BTC", Quote: "USDT"}, {Base: "USDT", Quote: "BTC"}},
	}
	res := finalizeResult(plan, 1.0, 0.99, nil, nil, nil)
	if res.OK {
		t.Fatal("expected a negative-delta round trip to be marked failed")
	}
	if res.Status != models.SwapStatusFailed {
		t.Errorf("status = %v, want failed", res.Status)
	}

	res2 := finalizeResult(plan, 1.0, 1.01, nil, nil, nil)
	if !res2.OK || res2.Delta < 0 {
		t.Errorf("expected a positive-delta round trip to succeed, got %+v", res2)
	}
}

// TestMirrorBoundRespect is testable property #8.
func TestMirrorBoundRespect(t *testing.T) {
	entry := 50000.0
	cases := []struct {
		mid, protective, safetyBps, relaxBps float64
	}{
		{49800, 50000, 5, 0},
		{50200, 50000, 5, 12},
		{50100, 49950, 5, 40},
	}
	for _, c := range cases {
		got := computeNewLimit(SideBuy, entry, c.mid, c.protective, c.safetyBps, c.relaxBps)
		ceiling := math.Max(entry*(1+c.relaxBps/1e4), c.protective)
		if got > ceiling+1e-9 {
			t.Errorf("buy limit %v exceeds ceiling %v (case %+v)", got, ceiling, c)
		}
	}
}

// TestS4MirrorReemitOnFavorableMove is spec §8 scenario S4.
func TestS4MirrorReemitOnFavorableMove(t *testing.T) {
	entry := 50000.0
	mid := 49800.0
	newLimit := computeNewLimit(SideBuy, entry, mid, entry, 5, 0)
	want := mid * (1 - 5.0/1e4)
	if math.Abs(newLimit-want) > 1e-6 {
		t.Errorf("new_limit = %v, want %v", newLimit, want)
	}
	if newLimit >= entry {
		t.Errorf("expected the reposted limit to improve on entry, got %v", newLimit)
	}
}

// TestS5MirrorForceCloseRespectsLossGuard is spec §8 scenario S5.
func TestS5MirrorForceCloseRespectsLossGuard(t *testing.T) {
	entry := 50000.0
	bound := lossGuardBound(SideBuy, entry, 50)
	if math.Abs(bound-50250) > 1e-6 {
		t.Fatalf("bound = %v, want 50250", bound)
	}
	mid := 50300.0
	if !beyondAdverseBound(SideBuy, mid, bound) {
		t.Fatal("expected mid=50300 to be beyond the adverse bound of 50250 (force-close must be skipped)")
	}
}

func TestRelaxUsedBpsLadder(t *testing.T) {
	cfg := config.MirrorConfig{RelaxAfterSec: 15, ReemitTTLSec: 5, RelaxBpsPerTTL: 2, RelaxMaxBps: 40}
	if got := relaxUsedBps(10, cfg); got != 0 {
		t.Errorf("before relax_after_sec, want 0, got %v", got)
	}
	if got := relaxUsedBps(20, cfg); got != 2 {
		t.Errorf("one TTL past relax_after_sec, want 2, got %v", got)
	}
	if got := relaxUsedBps(1000, cfg); got != 40 {
		t.Errorf("relax must clamp to relax_max_bps=40, got %v", got)
	}
}

func TestFillFromOrderOrientsBySide(t *testing.T) {
	res := OrderResult{FilledAmount: 0.01, AvgPrice: 50000}

	sell := fillFromOrder("BTC/USDT", SideSell, res)
	if sell.AmountIn != 0.01 || sell.AmountOut != 500 {
		t.Errorf("sell fill in=%v out=%v, want in=0.01 out=500", sell.AmountIn, sell.AmountOut)
	}

	buy := fillFromOrder("BTC/USDT", SideBuy, res)
	if buy.AmountIn != 500 || buy.AmountOut != 0.01 {
		t.Errorf("buy fill in=%v out=%v, want in=500 out=0.01", buy.AmountIn, buy.AmountOut)
	}
}

func TestEnforceMarketMinimums(t *testing.T) {
	m := models.Market{MinAmount: 0.001, MinCost: 10}

	// Wallet covers the bump: amount rises to min_amount.
	amt, err := enforceMarketMinimums(m, SideSell, 0.0005, 50000, 0.002)
	if err != nil || amt != 0.001 {
		t.Errorf("got amt=%v err=%v, want bumped to 0.001", amt, err)
	}

	// Sell wallet cannot cover min_amount.
	if _, err := enforceMarketMinimums(m, SideSell, 0.0005, 50000, 0.0006); err != errMirrorBelowMinAmount {
		t.Errorf("err = %v, want mirror_below_min_amount", err)
	}

	// Buy wallet cannot cover min_cost.
	low := models.Market{MinCost: 10}
	if _, err := enforceMarketMinimums(low, SideBuy, 0.0001, 50000, 8); err != errMirrorBelowMinCost {
		t.Errorf("err = %v, want mirror_below_min_cost", err)
	}
}

func TestMirrorEntryPriceHandlesInversion(t *testing.T) {
	if got := mirrorEntryPrice(50000, true); got != 50000 {
		t.Errorf("same orientation should pass p1 through, got %v", got)
	}
	if got := mirrorEntryPrice(0.00002, false); math.Abs(got-50000) > 1e-6 {
		t.Errorf("inverted orientation should invert p1, got %v", got)
	}
}
