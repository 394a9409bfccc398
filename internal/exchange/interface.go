// Package exchange normalizes access to a spot-trading venue (spec §4.1):
// market/ticker/order-book/balance reads and order placement, behind one
// capability surface so call sites never branch on venue name.
package exchange

import (
	"context"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/svyatogor45/radar-arb/internal/models"
	"github.com/svyatogor45/radar-arb/internal/swapper"
)

// BalanceKind selects which balance view fetch_balance returns.
type BalanceKind int

const (
	BalanceFree BalanceKind = iota
	BalanceTotal
)

// Quirks encodes the venue-specific policy table of spec §4.1 as data,
// not as branches at call sites (spec §9 "Dynamic dispatch").
type Quirks struct {
	MarketBuyUsesQuoteCost bool   // binance/bitget: market buy amount is quote notional (quoteOrderQty)
	RequiresPassphrase     bool   // venue needs an API passphrase/password alongside key+secret
	DefaultOrderType       string // "market" for every venue in this pack
}

// Capabilities records facts about what a venue connector actually
// supports, looked up once rather than runtime type-switched.
type Capabilities struct {
	FetchTickersBatch bool
	PartialBookWS     bool
}

// Credentials is the resolved (key, secret, passphrase) tuple for one venue.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

// credsAliases maps alternate venue spellings to the canonical env-var
// prefix, per spec §6 "Credentials" (gateio->gate, okex->okx,
// coinbasepro->coinbase).
var credsAliases = map[string]string{
	"gateio":      "gate",
	"okex":        "okx",
	"coinbasepro": "coinbase",
}

// CredsFromEnv resolves <VENUE>_API_KEY / <VENUE>_API_SECRET /
// <VENUE>_API_PASSWORD from the environment, applying known venue aliases.
func CredsFromEnv(venue string) Credentials {
	canon := strings.ToLower(venue)
	if alias, ok := credsAliases[canon]; ok {
		canon = alias
	}
	prefix := strings.ToUpper(canon)
	return Credentials{
		APIKey:     os.Getenv(prefix + "_API_KEY"),
		APISecret:  os.Getenv(prefix + "_API_SECRET"),
		Passphrase: os.Getenv(prefix + "_API_PASSWORD"),
	}
}

// Adapter is the full per-venue capability surface (spec §4.1). It embeds
// swapper.Adapter so every concrete venue adapter satisfies the execution
// engine's narrower contract for free; the detection side additionally
// needs the batch/market-metadata calls below.
type Adapter interface {
	swapper.Adapter

	Name() string
	Quirks() Quirks
	Capabilities() Capabilities

	LoadMarkets(ctx context.Context) (map[string]models.Market, error)
	FetchTickers(ctx context.Context) (map[string]models.Ticker, error)
	FetchOrderBook(ctx context.Context, symbol string, depth int) (models.OrderBook, error)
	FetchBalanceAll(ctx context.Context, kind BalanceKind) (map[models.Currency]float64, error)
	CurrencyToPrecision(ccy models.Currency, amount float64) float64

	// WatchOrderBook opens (or reuses) the venue's public WS connection and
	// subscribes to a partial-depth channel for each symbol, invoking
	// onUpdate with every decoded snapshot (spec §4.6 "WS partial-book
	// cache"). Only meaningful when Capabilities().PartialBookWS is true;
	// adapters without a depth stream return an error.
	WatchOrderBook(ctx context.Context, symbols []string, onUpdate func(symbol string, book models.OrderBook)) error

	Close() error
}

// ExchangeError wraps a venue's non-2xx / non-zero-code API response.
type ExchangeError struct {
	Exchange string
	Code     string
	Message  string
	Original error
}

func (e *ExchangeError) Error() string {
	return e.Exchange + ": " + e.Message
}

func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// IsInsufficientFunds reports whether an adapter error represents the
// venue rejecting an order for lack of balance (spec §7 "Insufficient on
// order"), checked by message substring since every venue in this pack
// uses its own error-code scheme.
func IsInsufficientFunds(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "insufficient") || strings.Contains(msg, "balance")
}

// marketCache holds one venue's most recently loaded market metadata,
// read-only after population per spec §5 "Shared-resource policy". Keyed
// by the canonical "BASE/QUOTE" pair; byNative maps the venue's own symbol
// spelling back to that canonical key for parsing ticker/book feeds.
type marketCache struct {
	mu       sync.RWMutex
	m        map[string]models.Market
	byNative map[string]string
}

func (c *marketCache) set(markets map[string]models.Market) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = markets
	c.byNative = make(map[string]string, len(markets))
	for k, v := range markets {
		c.byNative[v.Symbol] = k
	}
}

func (c *marketCache) get(symbol string) (models.Market, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.m[symbol]
	return m, ok
}

func (c *marketCache) all() map[string]models.Market {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]models.Market, len(c.m))
	for k, v := range c.m {
		out[k] = v
	}
	return out
}

// canonical returns the "BASE/QUOTE" pair for a venue-native symbol, or
// the native symbol unchanged if it isn't in the loaded market set yet
// (e.g. a ticker batch arriving before the first LoadMarkets call).
func (c *marketCache) canonical(native string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if k, ok := c.byNative[native]; ok {
		return k
	}
	return native
}

// nativeSymbol returns the venue-native symbol for a canonical pair,
// falling back to stripping the "/" when the market hasn't been loaded.
func (c *marketCache) nativeSymbol(pair string) string {
	c.mu.RLock()
	m, ok := c.m[pair]
	c.mu.RUnlock()
	if ok && m.Symbol != "" {
		return m.Symbol
	}
	return strings.ReplaceAll(pair, "/", "")
}

// roundToStep truncates value to the nearest lower multiple of step,
// falling back to a fixed-precision truncation when step is unset. Used
// by every venue's AmountToPrecision/PriceToPrecision/CurrencyToPrecision:
// per spec §8 property 5, applying it twice must be a no-op, which a
// flooring truncation guarantees (no further rounding occurs on a value
// already an exact multiple of step).
func roundToStep(value, step float64, precision int) float64 {
	if value <= 0 {
		return 0
	}
	if step > 0 {
		return math.Floor(value/step+1e-9) * step
	}
	if precision > 0 {
		mult := math.Pow(10, float64(precision))
		return math.Floor(value*mult+1e-9) / mult
	}
	return math.Floor(value)
}

func unixMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}
