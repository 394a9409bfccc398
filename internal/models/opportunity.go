package models

import "time"

// Opportunity is a detected, filtered candidate cycle, ready for optional
// depth revalidation and/or dispatch to the Swapper.
type Opportunity struct {
	Venue     string    `json:"venue"`
	Cycle     Cycle     `json:"cycle"`
	Hops      int       `json:"hops"`
	NetPct    float64   `json:"net_pct"`
	Inv       float64   `json:"inv"`
	EstAfter  float64   `json:"est_after"`
	Timestamp time.Time `json:"ts"`
	Iteration int64     `json:"iteration"`

	// Optional fields populated by depth revalidation.
	NetPctRaw    float64 `json:"net_pct_raw,omitempty"`
	SlippageBps  float64 `json:"slippage_bps,omitempty"`
	FeeBpsTotal  float64 `json:"fee_bps_total,omitempty"`
	UsedWS       bool    `json:"used_ws,omitempty"`
	Revalidated  bool    `json:"revalidated,omitempty"`

	// Triangular-only fields (zero for BF-sourced opportunities).
	R1 float64 `json:"r1,omitempty"`
	R2 float64 `json:"r2,omitempty"`
	R3 float64 `json:"r3,omitempty"`
}

// EdgeRate is a directed conversion rate and the weight it contributes to
// the rate graph, plus enough context to reconstruct the traversed symbol.
type EdgeRate struct {
	From, To Currency
	Symbol   string // venue-native symbol the rate was derived from
	Inverted bool   // true if From/To required inverting the market's quote
	Rate     float64 // post-fee effective rate From -> To
	Weight   float64 // -ln(Rate)
}
