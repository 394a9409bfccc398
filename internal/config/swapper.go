package config

import (
	"strconv"
	"strings"
	"time"
)

// SwapperConfig controls the execution engine common path (spec §4.7,
// §6 "Swapper" keys).
type SwapperConfig struct {
	OrderType     string // market, limit (default order type absent a venue quirk)
	TimeInForce   string // GTC, IOC, FOK
	MaxSlippageBps float64
	MinNotional    float64
	DryRun         bool
	SettleSleepMs  int
	ConfirmFill    bool

	InsufficientFundsRetryBps float64 // min size cut on one retry, spec floor 20bps
}

// MirrorConfig controls the mirrored-limit closing leg and its TTL
// re-emit / relaxation ladder (spec §4.7 "Mirror last-leg").
type MirrorConfig struct {
	Enabled             bool
	PriceOffsetBps      float64
	AmountToleranceBps  float64
	ReemitTTLSec        int
	ReemitSafetyBps     float64
	ReemitMax           int
	RelaxAfterSec       int
	RelaxBpsPerTTL      float64
	RelaxMaxBps         float64
	CloseTimeoutSec     int
	AllowMaxLossBps     float64
}

// SizingConfig controls automatic position sizing when SwapPlan.Amount is
// zero (spec §6 "Sizing").
type SizingConfig struct {
	Mode          string // manual, auto
	AlphaTOB      float64
	BetaDVPct     float64
	MinUSD        float64
	MaxUSD        float64
	LadderLevels  int
	LadderStepBps float64

	// Overrides replaces individual knobs for one venue ("binance") or one
	// venue+symbol ("binance:BTC/USDT"); zero fields inherit the globals.
	Overrides map[string]SizingOverride
}

// SizingOverride is a partial SizingConfig for one override scope.
type SizingOverride struct {
	AlphaTOB      float64
	BetaDVPct     float64
	MinUSD        float64
	MaxUSD        float64
	LadderLevels  int
	LadderStepBps float64
}

// ForVenueSymbol resolves the effective sizing knobs for one order: the
// venue-wide override applies first, then the venue+symbol override on
// top, most specific last.
func (s SizingConfig) ForVenueSymbol(venue, symbol string) SizingConfig {
	out := s
	venue = strings.ToLower(venue)
	if o, ok := s.Overrides[venue]; ok {
		out.apply(o)
	}
	if o, ok := s.Overrides[venue+":"+strings.ToUpper(symbol)]; ok {
		out.apply(o)
	}
	return out
}

func (s *SizingConfig) apply(o SizingOverride) {
	if o.AlphaTOB > 0 {
		s.AlphaTOB = o.AlphaTOB
	}
	if o.BetaDVPct > 0 {
		s.BetaDVPct = o.BetaDVPct
	}
	if o.MinUSD > 0 {
		s.MinUSD = o.MinUSD
	}
	if o.MaxUSD > 0 {
		s.MaxUSD = o.MaxUSD
	}
	if o.LadderLevels > 0 {
		s.LadderLevels = o.LadderLevels
	}
	if o.LadderStepBps > 0 {
		s.LadderStepBps = o.LadderStepBps
	}
}

func loadSwapperConfig() SwapperConfig {
	return SwapperConfig{
		OrderType:      getEnv("ORDER_TYPE", "market"),
		TimeInForce:    getEnv("TIME_IN_FORCE", "GTC"),
		MaxSlippageBps: getEnvAsFloat("MAX_SLIPPAGE_BPS", 30),
		MinNotional:    getEnvAsFloat("MIN_NOTIONAL", 10),
		DryRun:         getEnvAsBool("DRY_RUN", true),
		SettleSleepMs:  getEnvAsInt("SETTLE_SLEEP_MS", 300),
		ConfirmFill:    getEnvAsBool("CONFIRM_FILL", true),

		InsufficientFundsRetryBps: getEnvAsFloat("INSUFFICIENT_FUNDS_RETRY_BPS", 20),
	}
}

func loadMirrorConfig() MirrorConfig {
	return MirrorConfig{
		Enabled:            getEnvAsBool("ROUNDTRIP_MIRROR_LAST_LEG", true),
		PriceOffsetBps:     getEnvAsFloat("ROUNDTRIP_MIRROR_PRICE_OFFSET_BPS", 2),
		AmountToleranceBps: getEnvAsFloat("ROUNDTRIP_MIRROR_AMOUNT_TOLERANCE_BPS", 10),
		ReemitTTLSec:       getEnvAsInt("MIRROR_REEMIT_TTL_SEC", 5),
		ReemitSafetyBps:    getEnvAsFloat("MIRROR_REEMIT_SAFETY_BPS", 5),
		ReemitMax:          getEnvAsInt("MIRROR_REEMIT_MAX", 20),
		RelaxAfterSec:      getEnvAsInt("MIRROR_RELAX_AFTER_SEC", 15),
		RelaxBpsPerTTL:     getEnvAsFloat("MIRROR_RELAX_BPS_PER_TTL", 2),
		RelaxMaxBps:        getEnvAsFloat("MIRROR_RELAX_MAX_BPS", 40),
		CloseTimeoutSec:    getEnvAsInt("MIRROR_CLOSE_TIMEOUT_SEC", 30),
		AllowMaxLossBps:    getEnvAsFloat("ROUNDTRIP_ALLOW_MAX_LOSS_BPS", 50),
	}
}

func loadSizingConfig() SizingConfig {
	return SizingConfig{
		Mode:          getEnv("SIZING_MODE", "manual"),
		AlphaTOB:      getEnvAsFloat("SIZING_ALPHA_TOB", 0.1),
		BetaDVPct:     getEnvAsFloat("SIZING_BETA_DV_PCT", 0.0005),
		MinUSD:        getEnvAsFloat("SIZING_MIN_USD", 10),
		MaxUSD:        getEnvAsFloat("SIZING_MAX_USD", 1000),
		LadderLevels:  getEnvAsInt("SIZING_LADDER_LEVELS", 3),
		LadderStepBps: getEnvAsFloat("SIZING_LADDER_STEP_BPS", 5),
		Overrides:     parseSizingOverrides(getEnv("SIZING_OVERRIDES", "")),
	}
}

// parseSizingOverrides reads a "scope.key=value" comma list, where scope
// is a venue ("binance") or venue:symbol ("binance:BTC/USDT"), e.g.
// "binance:BTC/USDT.max_usd=500,binance.min_usd=20". Malformed entries
// are skipped, matching parseMinAmounts' tolerance.
func parseSizingOverrides(raw string) map[string]SizingOverride {
	out := map[string]SizingOverride{}
	if raw == "" {
		return out
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		eq := strings.Index(entry, "=")
		if eq <= 0 {
			continue
		}
		val, err := strconv.ParseFloat(strings.TrimSpace(entry[eq+1:]), 64)
		if err != nil {
			continue
		}
		dot := strings.LastIndex(entry[:eq], ".")
		if dot <= 0 {
			continue
		}
		scope := strings.TrimSpace(entry[:dot])
		key := strings.TrimSpace(entry[dot+1 : eq])
		if i := strings.Index(scope, ":"); i >= 0 {
			scope = strings.ToLower(scope[:i]) + ":" + strings.ToUpper(scope[i+1:])
		} else {
			scope = strings.ToLower(scope)
		}
		o := out[scope]
		switch key {
		case "alpha_tob":
			o.AlphaTOB = val
		case "beta_dv_pct":
			o.BetaDVPct = val
		case "min_usd":
			o.MinUSD = val
		case "max_usd":
			o.MaxUSD = val
		case "ladder_levels":
			o.LadderLevels = int(val)
		case "ladder_step_bps":
			o.LadderStepBps = val
		default:
			continue
		}
		out[scope] = o
	}
	return out
}

// ReemitTTL returns the re-emit cadence as a time.Duration.
func (m MirrorConfig) ReemitTTL() time.Duration {
	return time.Duration(m.ReemitTTLSec) * time.Second
}
