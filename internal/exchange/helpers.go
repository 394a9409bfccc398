package exchange

import (
	"bytes"
	"compress/gzip"
	"io"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/svyatogor45/radar-arb/internal/models"
	"github.com/svyatogor45/radar-arb/pkg/ratelimit"
)

// venueLimits gives each connector's REST client a token-bucket rate limiter
// sized to that exchange's published request budget, so a detection loop
// hammering LoadMarkets/FetchTickers across many goroutines never trips an
// IP-level ban. Values match the examples cited in pkg/ratelimit's own doc
// comment; Binance isn't listed there, so it keeps that package's own
// rate<=0 default (10 req/sec, burst 20).
var venueLimits = map[string][2]float64{
	"bybit":  {10, 20},
	"bitget": {10, 20},
	"okx":    {20, 40},
	"gate":   {10, 20},
	"htx":    {10, 20},
	"bingx":  {10, 20},
}

// newVenueLimiter builds the REST rate limiter for a connector's
// constructor, per spec §4.1's "respect venue rate limits" requirement.
func newVenueLimiter(venue string) *ratelimit.RateLimiter {
	rb, ok := venueLimits[venue]
	if !ok {
		return ratelimit.NewRateLimiter(0, 0)
	}
	return ratelimit.NewRateLimiter(rb[0], rb[1])
}

// json is the fast codec every venue connector in this package unmarshals
// REST/WS payloads with on the hot ticker/order-book path, instead of
// encoding/json.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// capitalize renders a lowercase side/type token ("buy", "market") in the
// Titlecase several venues expect on the wire ("Buy", "Market").
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// trimFloat formats a float with no trailing zeros, the numeric-as-string
// convention every REST venue in this pack expects for qty/price fields.
func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// defaultTIF normalizes an empty time-in-force to GTC (spec §6 swapper
// key `time_in_force`, default GTC).
func defaultTIF(tif string) string {
	if tif == "" {
		return "GTC"
	}
	return tif
}

// gunzipWS decompresses a gzip-framed WS payload, used by venues (HTX,
// BingX) that gzip each depth-stream message individually rather than
// relying on a permessage-deflate WS extension.
func gunzipWS(raw []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// parseLevels converts a venue's raw [price, amount] string-pair rows
// into order-book levels.
func parseLevels(rows [][2]string) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(rows))
	for _, r := range rows {
		p, _ := strconv.ParseFloat(r[0], 64)
		a, _ := strconv.ParseFloat(r[1], 64)
		out = append(out, models.PriceLevel{Price: p, Amount: a})
	}
	return out
}
