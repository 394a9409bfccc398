package config

import "time"

// DetectionConfig controls the Rate Graph Builder and Cycle Detector
// (spec §4.2-§4.4): universe selection, liquidity/spread filters, and the
// BF and triangular quality gates.
type DetectionConfig struct {
	Mode string // tri, bf, balance, health

	Exchanges    []string // resolved venue list (comma list or preset expansion)
	ExchangePreset string // "trusted" or "all"; consulted only when Exchanges is empty

	Quote             string   // primary anchor, e.g. "USDT"
	BFAllowedQuotes   []string // anchor priority order for rotation

	BFFee  float64 // per-hop taker fee, fraction (e.g. 0.001)
	TriFee float64

	BFMinNet        float64 // percent
	BFMinNetPerHop  float64 // percent
	TriMinNetBps    float64 // bps

	BFRequireTopOfBook  bool
	TriRequireTopOfBook bool

	BFMinQuoteVol  float64
	TriMinQuoteVol float64

	BFCurrenciesLimit  int
	TriCurrenciesLimit int

	BFMinHops int
	BFMaxHops int

	BFRequireQuote      bool
	BFRequireDualQuote  bool

	BFRevalidateDepth    bool
	BFDepthLevels        int
	BFUseWS              bool
	BFLatencyPenaltyBps  float64

	TriLatencyPenaltyBps float64

	TopPerVenue int // cap on emitted opportunities per venue

	IterTimeout time.Duration // detection iteration deadline (spec §5)

	PreferredAnchor string // deterministic tie-break, spec §9 open question

	InvestmentAmount float64 // notional used for Opportunity.Inv/EstAfter bookkeeping
	UseBalance       bool    // cap InvestmentAmount by the live anchor balance when true
	BalanceKind      string  // free, total

	// Compound simulation: keep one running anchor balance per venue and
	// apply the best detected round-trip per iteration, no real trades.
	SimulateCompound        bool
	SimulateStart           float64 // starting balance when not reading the wallet
	SimulateFromWallet      bool    // seed the balance from the venue's live wallet
	SimulateSelect          string  // best, first
	SimulateAutoSwitch      bool    // allow hopping to another anchor's cycle
	SimulateSwitchThreshold float64 // net% advantage required to switch anchors
}

func loadDetectionConfig() DetectionConfig {
	return DetectionConfig{
		Mode:           getEnv("MODE", "bf"),
		Exchanges:      getEnvAsStringSlice("EX", nil),
		ExchangePreset: getEnv("EX_PRESET", "trusted"),

		Quote:           getEnv("QUOTE", "USDT"),
		BFAllowedQuotes: getEnvAsStringSlice("BF_ALLOWED_QUOTES", []string{"USDT", "USDC"}),

		BFFee:  getEnvAsFloat("BF_FEE", 0.001),
		TriFee: getEnvAsFloat("TRI_FEE", 0.001),

		BFMinNet:       getEnvAsFloat("BF_MIN_NET", 0.5),
		BFMinNetPerHop: getEnvAsFloat("BF_MIN_NET_PER_HOP", 0.1),
		TriMinNetBps:   getEnvAsFloat("TRI_MIN_NET", 10),

		BFRequireTopOfBook:  getEnvAsBool("BF_REQUIRE_TOPOFBOOK", true),
		TriRequireTopOfBook: getEnvAsBool("TRI_REQUIRE_TOPOFBOOK", true),

		BFMinQuoteVol:  getEnvAsFloat("BF_MIN_QUOTE_VOL", 50000),
		TriMinQuoteVol: getEnvAsFloat("TRI_MIN_QUOTE_VOL", 50000),

		BFCurrenciesLimit:  getEnvAsInt("BF_CURRENCIES_LIMIT", 60),
		TriCurrenciesLimit: getEnvAsInt("TRI_CURRENCIES_LIMIT", 60),

		BFMinHops: getEnvAsInt("BF_MIN_HOPS", 3),
		BFMaxHops: getEnvAsInt("BF_MAX_HOPS", 5),

		BFRequireQuote:     getEnvAsBool("BF_REQUIRE_QUOTE", true),
		BFRequireDualQuote: getEnvAsBool("BF_REQUIRE_DUAL_QUOTE", false),

		BFRevalidateDepth:   getEnvAsBool("BF_REVALIDATE_DEPTH", false),
		BFDepthLevels:       getEnvAsInt("BF_DEPTH_LEVELS", 10),
		BFUseWS:             getEnvAsBool("BF_USE_WS", true),
		BFLatencyPenaltyBps: getEnvAsFloat("BF_LATENCY_PENALTY_BPS", 2),

		TriLatencyPenaltyBps: getEnvAsFloat("TRI_LATENCY_PENALTY_BPS", 2),

		TopPerVenue: getEnvAsInt("TOP_PER_VENUE", 10),
		IterTimeout: time.Duration(getEnvAsInt("ITER_TIMEOUT_SEC", 20)) * time.Second,

		PreferredAnchor: getEnv("PREFERRED_ANCHOR", "USDT"),

		InvestmentAmount: getEnvAsFloat("INV", 1000),
		UseBalance:       getEnvAsBool("USE_BALANCE", false),
		BalanceKind:      getEnv("BALANCE_KIND", "free"),

		SimulateCompound:        getEnvAsBool("SIMULATE_COMPOUND", false),
		SimulateStart:           getEnvAsFloat("SIMULATE_START", 0),
		SimulateFromWallet:      getEnvAsBool("SIMULATE_FROM_WALLET", false),
		SimulateSelect:          getEnv("SIMULATE_SELECT", "best"),
		SimulateAutoSwitch:      getEnvAsBool("SIMULATE_AUTO_SWITCH", false),
		SimulateSwitchThreshold: getEnvAsFloat("SIMULATE_SWITCH_THRESHOLD", 0.05),
	}
}
