// Package swapper implements the single-venue execution state machine of
// spec §4.7: a SwapPlan goes in, a SwapResult comes out, either by
// simulating against live tickers (test mode) or placing real orders
// (real mode), including the mirrored-limit closing leg for round-trip
// plans. Grounded on original_source/.../swapper.py, reimplemented against
// this module's own Adapter capability surface instead of a ccxt instance.
package swapper

import (
	"context"

	"github.com/svyatogor45/radar-arb/internal/models"
)

// OrderType is the order style placed on a venue.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// Side constants mirror models.HopFill.Side's convention.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// OrderRequest is a venue-agnostic order instruction.
type OrderRequest struct {
	Symbol        string
	Side          string // SideBuy or SideSell
	Type          OrderType
	Amount        float64 // base-currency quantity, unless QuoteCost
	QuoteCost     bool    // true: Amount is the quote-currency cost to spend (market buy quirk)
	Price         float64 // required for OrderTypeLimit
	TimeInForce   string
	ClientOrderID string
}

// OrderResult is the realized outcome of a placed order.
type OrderResult struct {
	OrderID       string
	Status        string // open, closed, filled, partially_filled, canceled
	FilledAmount  float64
	AvgPrice      float64
	Fee           float64
	FeeCcy        models.Currency
	InsufficientFunds bool // true when the venue rejected the order for lack of balance
}

// Adapter is the minimal capability surface the Swapper needs from a venue
// connector (spec §9 "Dynamic dispatch": a capability surface, not a
// runtime type switch on venue name). A concrete per-venue exchange
// adapter satisfies this structurally.
type Adapter interface {
	Market(symbol string) (models.Market, bool)
	FetchTicker(ctx context.Context, symbol string) (models.Ticker, error)
	FetchBalance(ctx context.Context, currency models.Currency) (free float64, err error)
	CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	FetchOrder(ctx context.Context, symbol, orderID string) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	AmountToPrecision(symbol string, amount float64) float64
	PriceToPrecision(symbol string, price float64) float64
}

// quoteCostQuirk is implemented by venue adapters whose market buy orders
// spend a quote-currency notional (quoteOrderQty) rather than a base
// quantity (spec §4.1 "Buy market uses quote cost"). Adapter stays narrow
// on purpose, so placeCommonHop type-asserts against this optional
// interface instead of widening Adapter with exchange.Quirks itself.
type quoteCostQuirk interface {
	MarketBuyUsesQuoteCost() bool
}

// marketBuyUsesQuoteCost reports the quirk for a, defaulting to false for
// adapters (and test doubles) that don't implement quoteCostQuirk.
func marketBuyUsesQuoteCost(a Adapter) bool {
	q, ok := a.(quoteCostQuirk)
	return ok && q.MarketBuyUsesQuoteCost()
}

// resolveHop finds which venue-native market converts `from` into `to`
// and the book side that conversion uses: a direct from/to market sells
// `from` into bids, an inverse to/from market buys `from`... — converting
// FROM the currency held TO the one wanted always sells the held currency
// when the direct market exists, and buys the wanted one against the
// inverse market otherwise. Mirrors graph.RateAndQuoteVol's market
// selection so detection and execution agree on orientation.
func resolveHop(a Adapter, from, to models.Currency) (symbol, side string, ok bool) {
	direct := string(from) + "/" + string(to)
	if _, found := a.Market(direct); found {
		return direct, SideSell, true
	}
	inverse := string(to) + "/" + string(from)
	if _, found := a.Market(inverse); found {
		return inverse, SideBuy, true
	}
	return "", "", false
}
