package config

import (
	"strconv"
	"strings"
)

// DispatcherConfig controls how detected opportunities are handed off to
// the Swapper: per-venue concurrency, the anchor balance floor, and the
// emergency pause lever (spec §4.8 "Dispatcher").
type DispatcherConfig struct {
	MaxWorkers             int
	PerExchangeConcurrency int
	EmergencyOnNegative    bool
	BalanceKind            string // free, total

	DefaultMinAmount float64
	MinAmounts       map[string]float64 // venue (lowercased) -> anchor balance floor
}

func loadDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxWorkers:             getEnvAsInt("MAX_WORKERS", 8),
		PerExchangeConcurrency: getEnvAsInt("PER_EXCHANGE_CONCURRENCY", 1),
		EmergencyOnNegative:    getEnvAsBool("EMERGENCY_ON_NEGATIVE", true),
		BalanceKind:            getEnv("DISPATCHER_BALANCE_KIND", "free"),
		DefaultMinAmount:       getEnvAsFloat("DISPATCHER_MIN_AMOUNT", 1.0),
		MinAmounts:             parseMinAmounts(getEnv("DISPATCHER_MIN_AMOUNTS", "")),
	}
}

// parseMinAmounts reads a "venue:amount,venue:amount" list, e.g.
// "binance:10,okx:5", into a lowercased lookup map.
func parseMinAmounts(raw string) map[string]float64 {
	out := map[string]float64{}
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) != 2 {
			continue
		}
		venue := strings.ToLower(strings.TrimSpace(kv[0]))
		amt, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if venue != "" && err == nil {
			out[venue] = amt
		}
	}
	return out
}
