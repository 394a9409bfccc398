package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/svyatogor45/radar-arb/internal/config"
	"github.com/svyatogor45/radar-arb/internal/models"
)

type fakeWallet struct {
	balances map[models.Currency]float64
}

func (f *fakeWallet) FetchBalance(ctx context.Context, ccy models.Currency) (float64, error) {
	return f.balances[ccy], nil
}

func rtOpp(venue string, nodes []models.Currency, netPct float64) models.Opportunity {
	return models.Opportunity{
		Venue:  venue,
		Cycle:  models.Cycle{Venue: venue, Nodes: nodes},
		NetPct: netPct,
	}
}

func simCfg() config.DetectionConfig {
	cfg := baseDetectionCfg()
	cfg.SimulateCompound = true
	cfg.SimulateStart = 1000
	cfg.SimulateSelect = "best"
	return cfg
}

func TestSimulationCompoundsBestRoundTrip(t *testing.T) {
	sim := NewSimulation(context.Background(), simCfg(), nil, []string{"binance"}, nil)

	sim.Apply("binance", []models.Opportunity{
		rtOpp("binance", []models.Currency{"USDT", "BTC", "ETH", "USDT"}, 1.0),
		rtOpp("binance", []models.Currency{"USDT", "SOL", "ETH", "USDT"}, 2.0),
	})
	sim.Apply("binance", []models.Opportunity{
		rtOpp("binance", []models.Currency{"USDT", "BTC", "ETH", "USDT"}, 1.0),
	})

	rows := sim.Rows()
	require.Len(t, rows, 1)
	require.Equal(t, "USDT", rows[0].StartCurrency)
	require.Equal(t, "USDT", rows[0].EndCurrency)
	require.InDelta(t, 1000*1.02*1.01, rows[0].EndBalance, 1e-9)
	require.EqualValues(t, 2, rows[0].Iterations)
}

func TestSimulationIgnoresForeignAnchorWithoutAutoSwitch(t *testing.T) {
	sim := NewSimulation(context.Background(), simCfg(), nil, []string{"binance"}, nil)

	// Only a USDC-anchored cycle is available; the USDT wallet must not move.
	sim.Apply("binance", []models.Opportunity{
		rtOpp("binance", []models.Currency{"USDC", "BTC", "ETH", "USDC"}, 3.0),
	})

	rows := sim.Rows()
	require.Len(t, rows, 1)
	require.InDelta(t, 1000, rows[0].EndBalance, 1e-9)
	require.Equal(t, "USDT", rows[0].EndCurrency)
}

func TestSimulationAutoSwitchRespectsThreshold(t *testing.T) {
	cfg := simCfg()
	cfg.SimulateAutoSwitch = true
	cfg.SimulateSwitchThreshold = 0.5
	sim := NewSimulation(context.Background(), cfg, nil, []string{"binance"}, nil)

	// USDC beats USDT by 0.3% — below the threshold, stay on USDT.
	sim.Apply("binance", []models.Opportunity{
		rtOpp("binance", []models.Currency{"USDT", "BTC", "ETH", "USDT"}, 1.0),
		rtOpp("binance", []models.Currency{"USDC", "BTC", "ETH", "USDC"}, 1.3),
	})
	rows := sim.Rows()
	require.Equal(t, "USDT", rows[0].EndCurrency)
	require.InDelta(t, 1010, rows[0].EndBalance, 1e-9)

	// Now USDC beats USDT by a full point — switch and compound there.
	sim.Apply("binance", []models.Opportunity{
		rtOpp("binance", []models.Currency{"USDT", "BTC", "ETH", "USDT"}, 1.0),
		rtOpp("binance", []models.Currency{"USDC", "BTC", "ETH", "USDC"}, 2.0),
	})
	rows = sim.Rows()
	require.Equal(t, "USDC", rows[0].EndCurrency)
	require.InDelta(t, 1010*1.02, rows[0].EndBalance, 1e-9)
}

func TestSimulationWalletSeedPrefersUSDTOnTie(t *testing.T) {
	cfg := simCfg()
	cfg.SimulateFromWallet = true
	cfg.PreferredAnchor = "auto"
	wallets := map[string]WalletReader{
		"binance": &fakeWallet{balances: map[models.Currency]float64{"USDT": 500, "USDC": 500}},
		"bybit":   &fakeWallet{balances: map[models.Currency]float64{"USDT": 100, "USDC": 900}},
	}
	sim := NewSimulation(context.Background(), cfg, wallets, []string{"binance", "bybit"}, nil)

	byVenue := map[string]string{}
	bal := map[string]float64{}
	for _, row := range sim.Rows() {
		byVenue[row.Exchange] = row.StartCurrency
		bal[row.Exchange] = row.StartBalance
	}
	require.Equal(t, "USDT", byVenue["binance"], "equal balances must break toward USDT")
	require.InDelta(t, 500, bal["binance"], 1e-9)
	require.Equal(t, "USDC", byVenue["bybit"])
	require.InDelta(t, 900, bal["bybit"], 1e-9)
}

func TestSimulationFirstSelectKeepsFirstCandidate(t *testing.T) {
	cfg := simCfg()
	cfg.SimulateSelect = "first"
	sim := NewSimulation(context.Background(), cfg, nil, []string{"binance"}, nil)

	sim.Apply("binance", []models.Opportunity{
		rtOpp("binance", []models.Currency{"USDT", "BTC", "ETH", "USDT"}, 1.0),
		rtOpp("binance", []models.Currency{"USDT", "SOL", "ETH", "USDT"}, 5.0),
	})

	rows := sim.Rows()
	require.InDelta(t, 1010, rows[0].EndBalance, 1e-9)
}
