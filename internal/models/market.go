package models

import "fmt"

// Market is an ordered (base, quote) pair active on one venue. Conversion
// in either direction must be expressible from its top-of-book: selling
// base consumes bids, buying base consumes asks.
type Market struct {
	Symbol          string  `json:"symbol"` // venue-native symbol, e.g. "BTCUSDT" or "BTC-USDT"
	Base            Currency `json:"base"`
	Quote           Currency `json:"quote"`
	Active          bool    `json:"active"`
	MinAmount       float64 `json:"min_amount"`
	MinCost         float64 `json:"min_cost"` // a.k.a. min notional
	AmountStep      float64 `json:"amount_step"`
	PriceStep       float64 `json:"price_step"`
	AmountPrecision int     `json:"amount_precision"`
	PricePrecision  int     `json:"price_precision"`
	TakerFee        float64 `json:"taker_fee"` // fraction, e.g. 0.001 for 10bps
}

// Key returns the canonical base/quote key used to index markets by
// currency pair regardless of venue symbol formatting.
func (m Market) Key() string {
	return fmt.Sprintf("%s/%s", m.Base, m.Quote)
}

// Ticker is a point-in-time snapshot for one market.
type Ticker struct {
	Symbol      string  `json:"symbol"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	Last        float64 `json:"last"`
	QuoteVolume float64 `json:"quote_volume"`
	Timestamp   int64   `json:"timestamp"` // unix millis
}

// HasTopOfBook reports whether both bid and ask are usable (strictly
// positive). Callers operating under the "require top-of-book" policy must
// treat a Ticker without this as unusable rather than falling back to Last.
func (t Ticker) HasTopOfBook() bool {
	return t.Bid > 0 && t.Ask > 0
}

// UsablePrice returns Last when top-of-book is unavailable and the caller
// permits the fallback; callers enforcing require-topofbook must not call
// this when HasTopOfBook() is false.
func (t Ticker) UsablePrice() (float64, bool) {
	if t.HasTopOfBook() {
		return (t.Bid + t.Ask) / 2, true
	}
	if t.Last > 0 {
		return t.Last, true
	}
	return 0, false
}

// PriceLevel is one rung of an order book side.
type PriceLevel struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// OrderBook is a top-N snapshot of one market's book.
type OrderBook struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"` // descending price
	Asks      []PriceLevel `json:"asks"` // ascending price
	Timestamp int64        `json:"timestamp"`
}
