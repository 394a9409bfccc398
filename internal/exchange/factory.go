package exchange

import (
	"fmt"
	"strings"
)

// SupportedExchanges lists every venue this module can connect to.
var SupportedExchanges = []string{
	"binance",
	"bybit",
	"bitget",
	"okx",
	"gate",
	"htx",
	"bingx",
}

// trustedExchanges is the conservative default venue set the "trusted"
// preset expands to: the venues with the deepest spot books among the
// connectors bundled here (bybit among them has no quote-cost market buy).
var trustedExchanges = []string{"binance", "bitget", "bybit"}

// NormalizeVenueID maps common alternate venue spellings to the canonical
// connector name (gateio->gate, okex->okx, huobipro->htx).
func NormalizeVenueID(name string) string {
	x := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := venueAliases[x]; ok {
		return alias
	}
	return x
}

var venueAliases = map[string]string{
	"gateio":   "gate",
	"okex":     "okx",
	"huobipro": "htx",
	"huobi":    "htx",
}

// ResolveExchanges expands the `ex` config into a concrete venue list
// (spec §6): an explicit comma list wins, otherwise the preset ("trusted"
// or "all") selects from the bundled connectors. Unknown names are dropped
// rather than surfaced as errors so one bad entry never disables the rest.
func ResolveExchanges(explicit []string, preset string) []string {
	if len(explicit) > 0 {
		out := make([]string, 0, len(explicit))
		for _, name := range explicit {
			id := NormalizeVenueID(name)
			if IsSupported(id) {
				out = append(out, id)
			}
		}
		return out
	}
	switch strings.ToLower(strings.TrimSpace(preset)) {
	case "", "trusted":
		return append([]string(nil), trustedExchanges...)
	default: // "all" and anything unrecognized
		return append([]string(nil), SupportedExchanges...)
	}
}

// NewExchange builds the Adapter for a venue name, resolving credentials
// from the environment via CredsFromEnv (spec §6 "Credentials").
func NewExchange(name string) (Adapter, error) {
	return NewExchangeWithCreds(name, CredsFromEnv(name))
}

// NewExchangeWithCreds builds the Adapter for a venue name using
// explicitly supplied credentials instead of process-wide env vars.
// Credentials are not checked here; only an unsupported name is an error.
func NewExchangeWithCreds(name string, creds Credentials) (Adapter, error) {
	name = NormalizeVenueID(name)

	switch name {
	case "binance":
		return NewBinance(creds), nil
	case "bybit":
		return NewBybit(creds), nil
	case "bitget":
		return NewBitget(creds), nil
	case "okx":
		return NewOKX(creds), nil
	case "gate":
		return NewGate(creds), nil
	case "htx":
		return NewHTX(creds), nil
	case "bingx":
		return NewBingX(creds), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", name)
	}
}

// IsSupported reports whether a venue name resolves to a known adapter.
func IsSupported(name string) bool {
	name = strings.ToLower(name)
	for _, supported := range SupportedExchanges {
		if name == supported {
			return true
		}
	}
	return false
}
