package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/svyatogor45/radar-arb/internal/models"
	"github.com/svyatogor45/radar-arb/internal/swapper"
	"github.com/svyatogor45/radar-arb/pkg/ratelimit"
	"github.com/svyatogor45/radar-arb/pkg/retry"
)

const gateBaseURL = "https://api.gateio.ws/api/v4"
const gateWSPublic = "wss://api.gateio.ws/ws/v4/"

// Gate implements Adapter for Gate.io's v4 spot API.
type Gate struct {
	creds      Credentials
	httpClient *http.Client
	markets    marketCache
	wsManager  *WSReconnectManager
	limiter    *ratelimit.RateLimiter
}

func NewGate(creds Credentials) *Gate {
	return &Gate{creds: creds, httpClient: GetGlobalHTTPClient().GetClient(), limiter: newVenueLimiter("gate")}
}

func (g *Gate) Name() string { return "gate" }

func (g *Gate) Quirks() Quirks {
	return Quirks{MarketBuyUsesQuoteCost: true, RequiresPassphrase: false, DefaultOrderType: "market"}
}

// MarketBuyUsesQuoteCost lets internal/swapper consult this quirk without
// importing the exchange package (spec §4.1).
func (g *Gate) MarketBuyUsesQuoteCost() bool { return g.Quirks().MarketBuyUsesQuoteCost }

func (g *Gate) Capabilities() Capabilities {
	return Capabilities{FetchTickersBatch: true, PartialBookWS: true}
}

func (g *Gate) sign(method, path, queryString, body string, timestamp int64) string {
	bodyHash := sha512.Sum512([]byte(body))
	bodyHashHex := hex.EncodeToString(bodyHash[:])
	signStr := fmt.Sprintf("%s\n%s\n%s\n%s\n%d", method, path, queryString, bodyHashHex, timestamp)
	h := hmac.New(sha512.New, []byte(g.creds.APISecret))
	h.Write([]byte(signStr))
	return hex.EncodeToString(h.Sum(nil))
}

func (g *Gate) doRequest(ctx context.Context, method, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	var reqBody, queryString string
	reqURL := gateBaseURL + endpoint

	if method == http.MethodGet || method == http.MethodDelete {
		if len(params) > 0 {
			query := make([]string, 0, len(params))
			for k, v := range params {
				query = append(query, k+"="+v)
			}
			queryString = strings.Join(query, "&")
			reqURL += "?" + queryString
		}
	} else if len(params) > 0 {
		jsonBytes, _ := json.Marshal(params)
		reqBody = string(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if signed {
		timestamp := time.Now().Unix()
		signature := g.sign(method, "/api/v4"+endpoint, queryString, reqBody, timestamp)
		req.Header.Set("KEY", g.creds.APIKey)
		req.Header.Set("SIGN", signature)
		req.Header.Set("Timestamp", strconv.FormatInt(timestamp, 10))
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var body []byte
	var statusCode int
	err = retry.Do(ctx, func() error {
		resp, doErr := g.httpClient.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return readErr
		}
		body = data
		statusCode = resp.StatusCode
		return nil
	}, retry.NetworkConfig())
	if err != nil {
		return nil, err
	}

	if statusCode >= 300 {
		var errResp struct {
			Label   string `json:"label"`
			Message string `json:"message"`
		}
		json.Unmarshal(body, &errResp)
		return nil, &ExchangeError{Exchange: "gate", Code: errResp.Label, Message: errResp.Message}
	}
	return body, nil
}

func (g *Gate) LoadMarkets(ctx context.Context) (map[string]models.Market, error) {
	body, err := g.doRequest(ctx, http.MethodGet, "/spot/currency_pairs", nil, false)
	if err != nil {
		return nil, err
	}
	var resp []struct {
		ID              string `json:"id"`
		Base            string `json:"base"`
		Quote           string `json:"quote"`
		TradeStatus     string `json:"trade_status"`
		MinBaseAmount   string `json:"min_base_amount"`
		MinQuoteAmount  string `json:"min_quote_amount"`
		AmountPrecision int    `json:"amount_precision"`
		Precision       int    `json:"precision"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]models.Market, len(resp))
	for _, it := range resp {
		sym := string(models.Canon(it.Base)) + "/" + string(models.Canon(it.Quote))
		minAmt, _ := strconv.ParseFloat(it.MinBaseAmount, 64)
		minCost, _ := strconv.ParseFloat(it.MinQuoteAmount, 64)
		out[sym] = models.Market{
			Symbol: it.ID, Base: models.Canon(it.Base), Quote: models.Canon(it.Quote),
			Active: it.TradeStatus == "tradable", MinAmount: minAmt, MinCost: minCost,
			AmountPrecision: it.AmountPrecision, PricePrecision: it.Precision, TakerFee: 0.002,
		}
	}
	g.markets.set(out)
	return out, nil
}

func (g *Gate) FetchTickers(ctx context.Context) (map[string]models.Ticker, error) {
	body, err := g.doRequest(ctx, http.MethodGet, "/spot/tickers", nil, false)
	if err != nil {
		return nil, err
	}
	var resp []struct {
		CurrencyPair   string `json:"currency_pair"`
		HighestBid     string `json:"highest_bid"`
		LowestAsk      string `json:"lowest_ask"`
		Last           string `json:"last"`
		QuoteVolume    string `json:"quote_volume"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]models.Ticker, len(resp))
	now := unixMillis(time.Now())
	for _, it := range resp {
		pair := g.markets.canonical(it.CurrencyPair)
		bid, _ := strconv.ParseFloat(it.HighestBid, 64)
		ask, _ := strconv.ParseFloat(it.LowestAsk, 64)
		last, _ := strconv.ParseFloat(it.Last, 64)
		qv, _ := strconv.ParseFloat(it.QuoteVolume, 64)
		out[pair] = models.Ticker{Symbol: pair, Bid: bid, Ask: ask, Last: last, QuoteVolume: qv, Timestamp: now}
	}
	return out, nil
}

func (g *Gate) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	venueSym := g.markets.nativeSymbol(symbol)
	body, err := g.doRequest(ctx, http.MethodGet, "/spot/tickers", map[string]string{"currency_pair": venueSym}, false)
	if err != nil {
		return models.Ticker{}, err
	}
	var resp []struct {
		HighestBid string `json:"highest_bid"`
		LowestAsk  string `json:"lowest_ask"`
		Last       string `json:"last"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.Ticker{}, err
	}
	if len(resp) == 0 {
		return models.Ticker{}, fmt.Errorf("gate: ticker %s not found", symbol)
	}
	bid, _ := strconv.ParseFloat(resp[0].HighestBid, 64)
	ask, _ := strconv.ParseFloat(resp[0].LowestAsk, 64)
	last, _ := strconv.ParseFloat(resp[0].Last, 64)
	return models.Ticker{Symbol: symbol, Bid: bid, Ask: ask, Last: last, Timestamp: unixMillis(time.Now())}, nil
}

func (g *Gate) FetchOrderBook(ctx context.Context, symbol string, depth int) (models.OrderBook, error) {
	venueSym := g.markets.nativeSymbol(symbol)
	body, err := g.doRequest(ctx, http.MethodGet, "/spot/order_book", map[string]string{
		"currency_pair": venueSym, "limit": strconv.Itoa(depth),
	}, false)
	if err != nil {
		return models.OrderBook{}, err
	}
	var resp struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.OrderBook{}, err
	}
	return models.OrderBook{Symbol: symbol, Bids: parseLevels(resp.Bids), Asks: parseLevels(resp.Asks), Timestamp: unixMillis(time.Now())}, nil
}

func (g *Gate) FetchBalance(ctx context.Context, currency models.Currency) (float64, error) {
	all, err := g.FetchBalanceAll(ctx, BalanceFree)
	if err != nil {
		return 0, err
	}
	return all[currency], nil
}

func (g *Gate) FetchBalanceAll(ctx context.Context, kind BalanceKind) (map[models.Currency]float64, error) {
	body, err := g.doRequest(ctx, http.MethodGet, "/spot/accounts", nil, true)
	if err != nil {
		return nil, err
	}
	var resp []struct {
		Currency string `json:"currency"`
		Available string `json:"available"`
		Locked    string `json:"locked"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := map[models.Currency]float64{}
	for _, a := range resp {
		avail, _ := strconv.ParseFloat(a.Available, 64)
		amt := avail
		if kind == BalanceTotal {
			locked, _ := strconv.ParseFloat(a.Locked, 64)
			amt = avail + locked
		}
		out[models.Canon(a.Currency)] = amt
	}
	return out, nil
}

func (g *Gate) CreateOrder(ctx context.Context, req swapper.OrderRequest) (swapper.OrderResult, error) {
	venueSym := g.markets.nativeSymbol(req.Symbol)
	params := map[string]string{
		"currency_pair": venueSym,
		"side":          req.Side,
		"type":          string(req.Type),
		"time_in_force": strings.ToLower(defaultTIF(req.TimeInForce)),
	}
	if req.Type == swapper.OrderTypeLimit {
		params["price"] = trimFloat(req.Price)
		params["amount"] = trimFloat(req.Amount)
	} else {
		params["amount"] = trimFloat(req.Amount)
		if req.QuoteCost {
			params["account"] = "spot"
		}
	}

	body, err := g.doRequest(ctx, http.MethodPost, "/spot/orders", params, true)
	if err != nil {
		if IsInsufficientFunds(err) {
			return swapper.OrderResult{InsufficientFunds: true}, err
		}
		return swapper.OrderResult{}, err
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return swapper.OrderResult{}, err
	}
	return g.FetchOrder(ctx, req.Symbol, resp.ID)
}

func (g *Gate) FetchOrder(ctx context.Context, symbol, orderID string) (swapper.OrderResult, error) {
	venueSym := g.markets.nativeSymbol(symbol)
	body, err := g.doRequest(ctx, http.MethodGet, "/spot/orders/"+orderID, map[string]string{"currency_pair": venueSym}, true)
	if err != nil {
		return swapper.OrderResult{}, err
	}
	var resp struct {
		Status     string `json:"status"`
		FilledTotal string `json:"filled_total"`
		AvgDealPrice string `json:"avg_deal_price"`
		FilledAmount string `json:"filled_amount"`
		Fee         string `json:"fee"`
		FeeCurrency string `json:"fee_currency"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return swapper.OrderResult{}, err
	}
	filled, _ := strconv.ParseFloat(resp.FilledAmount, 64)
	avg, _ := strconv.ParseFloat(resp.AvgDealPrice, 64)
	fee, _ := strconv.ParseFloat(resp.Fee, 64)
	return swapper.OrderResult{
		OrderID: orderID, Status: gateStatus(resp.Status), FilledAmount: filled, AvgPrice: avg,
		Fee: -fee, FeeCcy: models.Canon(resp.FeeCurrency),
	}, nil
}

func (g *Gate) CancelOrder(ctx context.Context, symbol, orderID string) error {
	venueSym := g.markets.nativeSymbol(symbol)
	_, err := g.doRequest(ctx, http.MethodDelete, "/spot/orders/"+orderID, map[string]string{"currency_pair": venueSym}, true)
	return err
}

func (g *Gate) Market(symbol string) (models.Market, bool) { return g.markets.get(symbol) }

func (g *Gate) AmountToPrecision(symbol string, amount float64) float64 {
	m, _ := g.markets.get(symbol)
	return roundToStep(amount, m.AmountStep, m.AmountPrecision)
}

func (g *Gate) PriceToPrecision(symbol string, price float64) float64 {
	m, _ := g.markets.get(symbol)
	return roundToStep(price, m.PriceStep, m.PricePrecision)
}

func (g *Gate) CurrencyToPrecision(ccy models.Currency, amount float64) float64 {
	return roundToStep(amount, 0, 8)
}

// WatchOrderBook subscribes to Gate.io's "spot.order_book" channel per
// symbol at 100ms cadence, 20 levels (spec §4.6).
func (g *Gate) WatchOrderBook(ctx context.Context, symbols []string, onUpdate func(symbol string, book models.OrderBook)) error {
	if g.wsManager == nil {
		g.wsManager = NewWSReconnectManager("gate", gateWSPublic, DefaultWSReconnectConfig())
	}
	pairOf := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		native := g.markets.nativeSymbol(sym)
		pairOf[native] = sym
		g.wsManager.AddSubscription(map[string]interface{}{
			"time":    unixMillis(time.Now()) / 1000,
			"channel": "spot.order_book",
			"event":   "subscribe",
			"payload": []string{native, "20", "100ms"},
		})
	}
	g.wsManager.SetOnMessage(func(raw []byte) {
		var msg struct {
			Channel string `json:"channel"`
			Event   string `json:"event"`
			Result  struct {
				Symbol string      `json:"s"`
				Bids   [][2]string `json:"bids"`
				Asks   [][2]string `json:"asks"`
			} `json:"result"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Channel != "spot.order_book" || msg.Event != "update" {
			return
		}
		sym, ok := pairOf[msg.Result.Symbol]
		if !ok {
			return
		}
		onUpdate(sym, models.OrderBook{Symbol: sym, Bids: parseLevels(msg.Result.Bids), Asks: parseLevels(msg.Result.Asks), Timestamp: unixMillis(time.Now())})
	})
	return g.wsManager.Connect()
}

func (g *Gate) Close() error {
	if g.wsManager != nil {
		return g.wsManager.Close()
	}
	return nil
}

func gateStatus(s string) string {
	switch s {
	case "closed":
		return "closed"
	case "cancelled":
		return "canceled"
	default:
		return "open"
	}
}
