package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "bf", cfg.Detection.Mode)
	require.Equal(t, "USDT", cfg.Detection.Quote)
	require.Equal(t, []string{"USDT", "USDC"}, cfg.Detection.BFAllowedQuotes)
	require.Equal(t, 0.5, cfg.Detection.BFMinNet)
	require.Equal(t, 20*time.Second, cfg.Detection.IterTimeout)
	require.Equal(t, "USDT", cfg.Detection.PreferredAnchor)

	require.True(t, cfg.Swapper.DryRun, "a fresh deployment must default to dry-run")
	require.Equal(t, "market", cfg.Swapper.OrderType)
	require.Equal(t, "GTC", cfg.Swapper.TimeInForce)
	require.GreaterOrEqual(t, cfg.Swapper.InsufficientFundsRetryBps, 20.0)

	require.True(t, cfg.Mirror.Enabled)
	require.Equal(t, 5*time.Second, cfg.Mirror.ReemitTTL())

	require.Equal(t, "manual", cfg.Sizing.Mode)
	require.Equal(t, 1, cfg.Dispatcher.PerExchangeConcurrency)
	require.True(t, cfg.Dispatcher.EmergencyOnNegative)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("MODE", "tri")
	t.Setenv("BF_MIN_NET", "1.25")
	t.Setenv("EX", "binance,okx")
	t.Setenv("DRY_RUN", "false")
	t.Setenv("MIRROR_REEMIT_TTL_SEC", "7")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "tri", cfg.Detection.Mode)
	require.Equal(t, 1.25, cfg.Detection.BFMinNet)
	require.Equal(t, []string{"binance", "okx"}, cfg.Detection.Exchanges)
	require.False(t, cfg.Swapper.DryRun)
	require.Equal(t, 7*time.Second, cfg.Mirror.ReemitTTL())
}

func TestParseMinAmounts(t *testing.T) {
	m := parseMinAmounts("binance:10, OKX:5,bad,also:bad")
	require.Equal(t, 10.0, m["binance"])
	require.Equal(t, 5.0, m["okx"])
	require.Len(t, m, 2)
}

func TestParseSizingOverridesAndResolution(t *testing.T) {
	cfg := SizingConfig{
		Mode:      "auto",
		AlphaTOB:  0.1,
		MinUSD:    10,
		MaxUSD:    1000,
		Overrides: parseSizingOverrides("binance.min_usd=20,binance:BTC/USDT.max_usd=500,gate.bogus=1,broken"),
	}

	require.Len(t, cfg.Overrides, 2, "unknown keys and malformed entries are dropped")

	eff := cfg.ForVenueSymbol("binance", "BTC/USDT")
	require.Equal(t, 20.0, eff.MinUSD, "venue-wide override applies")
	require.Equal(t, 500.0, eff.MaxUSD, "venue+symbol override applies on top")
	require.Equal(t, 0.1, eff.AlphaTOB, "untouched knobs inherit the globals")

	other := cfg.ForVenueSymbol("binance", "ETH/USDT")
	require.Equal(t, 20.0, other.MinUSD)
	require.Equal(t, 1000.0, other.MaxUSD, "symbol override does not leak to other symbols")

	require.Equal(t, 10.0, cfg.ForVenueSymbol("okx", "BTC/USDT").MinUSD)
}
