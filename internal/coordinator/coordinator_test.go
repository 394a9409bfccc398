package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/svyatogor45/radar-arb/internal/config"
	"github.com/svyatogor45/radar-arb/internal/models"
	"github.com/svyatogor45/radar-arb/internal/reporter"
)

// fakeMarketData serves the USDT/BTC/ETH triangle of spec §8 S1/S2:
// USDT->BTC via inverse BTC/USDT ask, BTC->ETH via inverse ETH/BTC ask,
// ETH->USDT via direct ETH/USDT bid.
type fakeMarketData struct {
	markets map[string]models.Market
	tickers map[string]models.Ticker
}

func newFakeMarketData(btcUSDTAsk, ethBTCAsk, ethUSDTBid float64) *fakeMarketData {
	mk := func(base, quote models.Currency) models.Market {
		return models.Market{
			Symbol: string(base) + "/" + string(quote),
			Base:   base, Quote: quote, Active: true,
		}
	}
	return &fakeMarketData{
		markets: map[string]models.Market{
			"BTC/USDT": mk("BTC", "USDT"),
			"ETH/BTC":  mk("ETH", "BTC"),
			"ETH/USDT": mk("ETH", "USDT"),
		},
		tickers: map[string]models.Ticker{
			"BTC/USDT": {Symbol: "BTC/USDT", Ask: btcUSDTAsk, QuoteVolume: 1_000_000},
			"ETH/BTC":  {Symbol: "ETH/BTC", Ask: ethBTCAsk, QuoteVolume: 1_000_000},
			"ETH/USDT": {Symbol: "ETH/USDT", Bid: ethUSDTBid, QuoteVolume: 1_000_000},
		},
	}
}

func (f *fakeMarketData) LoadMarkets(ctx context.Context) (map[string]models.Market, error) {
	return f.markets, nil
}
func (f *fakeMarketData) FetchTickers(ctx context.Context) (map[string]models.Ticker, error) {
	return f.tickers, nil
}

type recordingSubmitter struct {
	mu   sync.Mutex
	opps []models.Opportunity
}

func (r *recordingSubmitter) Submit(ctx context.Context, opp models.Opportunity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opps = append(r.opps, opp)
}

func (r *recordingSubmitter) snapshot() []models.Opportunity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Opportunity, len(r.opps))
	copy(out, r.opps)
	return out
}

func baseDetectionCfg() config.DetectionConfig {
	return config.DetectionConfig{
		Mode:             "bf",
		Quote:            "USDT",
		BFAllowedQuotes:  []string{"USDT"},
		BFFee:            0.001,
		BFMinNet:         0.5,
		BFMinNetPerHop:   0.1,
		BFRequireTopOfBook: true,
		BFMinHops:        3,
		BFMaxHops:        5,
		BFRequireQuote:   true,
		TopPerVenue:      10,
		IterTimeout:      2 * time.Second,
		InvestmentAmount: 1000,
	}
}

func TestCoordinatorDispatchesPositiveCycle(t *testing.T) {
	// Same rates as spec §8 S2: product 1.05, net ~+4.7% after fees.
	venues := map[string]MarketData{
		"binance": newFakeMarketData(1.0/0.000025, 1.0/20.0, 2100),
	}
	sub := &recordingSubmitter{}
	sink, err := reporter.NewCSVSink(t.TempDir())
	require.NoError(t, err)

	c := New(venues, sub, sink, baseDetectionCfg(), nil, nil)
	c.RunIteration(context.Background())

	opps := sub.snapshot()
	require.Len(t, opps, 1)
	require.Equal(t, "binance", opps[0].Venue)
	require.Equal(t, "USDT->BTC->ETH->USDT", opps[0].Cycle.PathString())
	require.InDelta(t, 4.7, opps[0].NetPct, 0.3)

	rec, ok := c.Tracker.Get("binance", opps[0].Cycle.PathString())
	require.True(t, ok)
	require.EqualValues(t, 1, rec.CurrentStreak)
}

func TestCoordinatorNoOpBelowThreshold(t *testing.T) {
	// Same rates as spec §8 S1: product 0.9996, net -0.04% after fees.
	venues := map[string]MarketData{
		"binance": newFakeMarketData(1.0/0.00002, 1.0/20.0, 2499),
	}
	sub := &recordingSubmitter{}
	sink, err := reporter.NewCSVSink(t.TempDir())
	require.NoError(t, err)

	c := New(venues, sub, sink, baseDetectionCfg(), nil, nil)
	c.RunIteration(context.Background())

	require.Empty(t, sub.snapshot())
}

func TestCoordinatorPersistenceStreaksAcrossIterations(t *testing.T) {
	venues := map[string]MarketData{
		"binance": newFakeMarketData(1.0/0.000025, 1.0/20.0, 2100),
	}
	sub := &recordingSubmitter{}
	sink, err := reporter.NewCSVSink(t.TempDir())
	require.NoError(t, err)

	c := New(venues, sub, sink, baseDetectionCfg(), nil, nil)
	c.RunIteration(context.Background())
	c.RunIteration(context.Background())
	c.RunIteration(context.Background())

	rec, ok := c.Tracker.Get("binance", "USDT->BTC->ETH->USDT")
	require.True(t, ok)
	require.EqualValues(t, 3, rec.Occurrences)
	require.EqualValues(t, 3, rec.CurrentStreak)
	require.EqualValues(t, 3, rec.MaxStreak)
}
