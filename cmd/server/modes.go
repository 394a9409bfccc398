package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/svyatogor45/radar-arb/internal/config"
	"github.com/svyatogor45/radar-arb/internal/exchange"
	"github.com/svyatogor45/radar-arb/internal/models"
	"github.com/svyatogor45/radar-arb/pkg/utils"
)

// runBalanceMode is the one-shot MODE=balance path (spec §6 run modes):
// for every configured venue with credentials in the environment, read
// free and total balances and log the largest holdings plus the USDT/USDC
// anchors, then exit. No detection, no server.
func runBalanceMode(cfg *config.Config, logger *utils.Logger) {
	venues := exchange.ResolveExchanges(cfg.Detection.Exchanges, cfg.Detection.ExchangePreset)
	for _, name := range venues {
		creds := exchange.CredsFromEnv(name)
		if creds.APIKey == "" || creds.APISecret == "" {
			logger.Info("balance_no_credentials", utils.Exchange(name))
			continue
		}
		a, err := exchange.NewExchange(name)
		if err != nil {
			logger.Warn("balance_exchange_unavailable", utils.Exchange(name), zap.Error(err))
			continue
		}
		reportVenueBalances(a, logger)
		a.Close()
	}
}

type assetBalance struct {
	ccy   models.Currency
	free  float64
	total float64
}

func reportVenueBalances(a exchange.Adapter, logger *utils.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	free, err := a.FetchBalanceAll(ctx, exchange.BalanceFree)
	if err != nil {
		logger.Warn("balance_fetch_failed", utils.Exchange(a.Name()), zap.Error(err))
		return
	}
	total, err := a.FetchBalanceAll(ctx, exchange.BalanceTotal)
	if err != nil {
		total = free
	}

	assets := make([]assetBalance, 0, len(total))
	for ccy, t := range total {
		if t <= 0 {
			continue
		}
		assets = append(assets, assetBalance{ccy: ccy, free: free[ccy], total: t})
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].total > assets[j].total })
	if len(assets) > 20 {
		assets = assets[:20]
	}
	for _, b := range assets {
		logger.Info("balance_asset", utils.Exchange(a.Name()),
			zap.String("currency", string(b.ccy)),
			zap.Float64("free", b.free),
			zap.Float64("total", b.total))
	}
	logger.Info("balance_anchors", utils.Exchange(a.Name()),
		zap.Float64("usdt_free", free["USDT"]), zap.Float64("usdt_total", total["USDT"]),
		zap.Float64("usdc_free", free["USDC"]), zap.Float64("usdc_total", total["USDC"]))
}

// healthRow records one venue's connectivity probes for MODE=health.
type healthRow struct {
	venue        string
	marketsOK    bool
	tickerOK     bool
	credsPresent bool
	balanceOK    bool
	nonzeroCount int
}

// runHealthMode is the one-shot MODE=health path: probe every configured
// venue's public surface (markets, one liquid ticker) and, when
// credentials exist, its signed surface (balance read), write a plain
// text summary under REPORT_DIR/health.txt, and exit.
func runHealthMode(cfg *config.Config, logger *utils.Logger) {
	venues := exchange.ResolveExchanges(cfg.Detection.Exchanges, cfg.Detection.ExchangePreset)
	rows := make([]healthRow, 0, len(venues))
	for _, name := range venues {
		rows = append(rows, probeVenue(name, logger))
	}

	dir := getEnv("REPORT_DIR", "./reports")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("health_report_dir_failed", zap.Error(err))
		return
	}
	path := filepath.Join(dir, "health.txt")
	f, err := os.Create(path)
	if err != nil {
		logger.Warn("health_report_write_failed", zap.Error(err))
		return
	}
	defer f.Close()

	fmt.Fprintf(f, "%-12s %-8s %-8s %-8s %-8s %s\n", "exchange", "markets", "ticker", "creds", "balance", "nonzero_assets")
	for _, r := range rows {
		fmt.Fprintf(f, "%-12s %-8t %-8t %-8t %-8t %d\n",
			r.venue, r.marketsOK, r.tickerOK, r.credsPresent, r.balanceOK, r.nonzeroCount)
	}
	logger.Info("health_report_written", zap.String("path", path), zap.Int("venues", len(rows)))
}

func probeVenue(name string, logger *utils.Logger) healthRow {
	row := healthRow{venue: name}
	creds := exchange.CredsFromEnv(name)
	row.credsPresent = creds.APIKey != "" && creds.APISecret != ""

	a, err := exchange.NewExchange(name)
	if err != nil {
		logger.Warn("health_exchange_unavailable", utils.Exchange(name), zap.Error(err))
		return row
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	markets, err := a.LoadMarkets(ctx)
	if err != nil {
		logger.Warn("health_load_markets_failed", utils.Exchange(name), zap.Error(err))
		return row
	}
	row.marketsOK = true

	testSymbol := ""
	if _, ok := markets["BTC/USDT"]; ok {
		testSymbol = "BTC/USDT"
	} else {
		for sym, m := range markets {
			if m.Quote == "USDT" && m.Active {
				testSymbol = sym
				break
			}
		}
	}
	if testSymbol != "" {
		if t, err := a.FetchTicker(ctx, testSymbol); err == nil && (t.Bid > 0 || t.Ask > 0 || t.Last > 0) {
			row.tickerOK = true
		}
	}

	if row.credsPresent {
		if balances, err := a.FetchBalanceAll(ctx, exchange.BalanceTotal); err == nil {
			row.balanceOK = true
			for _, v := range balances {
				if v > 0 {
					row.nonzeroCount++
				}
			}
		}
	}
	return row
}
