package swapper

import "github.com/svyatogor45/radar-arb/internal/config"

// autoSizeUSD computes the automatic USD notional cap for the first hop
// per spec §4.7 step 1: alpha over top-of-book plus beta over 24h quote
// volume, clamped to [min_usd, max_usd]. Grounded on swapper.py's
// sizing_cfg (alpha_tob/beta_dv_pct/min_usd/max_usd); the ladder fields
// (ladder_levels/ladder_step_bps) describe staged order placement that
// this single-shot market-order path does not need, so they are read by
// config.SizingConfig but unused here — left for a future iceberg-style
// sizing mode rather than invented against.
func autoSizeUSD(cfg config.SizingConfig, topOfBookUSD, dailyQuoteVolumeUSD float64) float64 {
	usd := cfg.AlphaTOB*topOfBookUSD + cfg.BetaDVPct*dailyQuoteVolumeUSD
	if cfg.MinUSD > 0 && usd < cfg.MinUSD {
		usd = cfg.MinUSD
	}
	if cfg.MaxUSD > 0 && usd > cfg.MaxUSD {
		usd = cfg.MaxUSD
	}
	return usd
}

// autoSizeBaseUnits converts an auto-sized USD notional into source-
// currency units via an estimated USD price for that currency (e.g. its
// last traded price against a USD-pegged stable, or 1.0 for USDT/USDC
// themselves).
func autoSizeBaseUnits(cfg config.SizingConfig, topOfBookUSD, dailyQuoteVolumeUSD, estUSDPrice float64) float64 {
	if estUSDPrice <= 0 {
		return 0
	}
	return autoSizeUSD(cfg, topOfBookUSD, dailyQuoteVolumeUSD) / estUSDPrice
}
