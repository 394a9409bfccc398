package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/svyatogor45/radar-arb/internal/models"
	"github.com/svyatogor45/radar-arb/internal/swapper"
	"github.com/svyatogor45/radar-arb/pkg/ratelimit"
	"github.com/svyatogor45/radar-arb/pkg/retry"
)

const binanceBaseURL = "https://api.binance.com"
const binanceWSPublic = "wss://stream.binance.com:9443/ws"

// Binance implements Adapter for Binance's spot v3 API.
type Binance struct {
	creds      Credentials
	httpClient *http.Client
	markets    marketCache
	wsManager  *WSReconnectManager
	limiter    *ratelimit.RateLimiter
}

func NewBinance(creds Credentials) *Binance {
	return &Binance{creds: creds, httpClient: GetGlobalHTTPClient().GetClient(), limiter: newVenueLimiter("binance")}
}

func (e *Binance) Name() string { return "binance" }

func (e *Binance) Quirks() Quirks {
	return Quirks{MarketBuyUsesQuoteCost: true, RequiresPassphrase: false, DefaultOrderType: "market"}
}

// MarketBuyUsesQuoteCost lets internal/swapper consult this quirk without
// importing the exchange package (spec §4.1).
func (e *Binance) MarketBuyUsesQuoteCost() bool { return e.Quirks().MarketBuyUsesQuoteCost }

func (e *Binance) Capabilities() Capabilities {
	return Capabilities{FetchTickersBatch: true, PartialBookWS: true}
}

func (e *Binance) sign(queryStr string) string {
	h := hmac.New(sha256.New, []byte(e.creds.APISecret))
	h.Write([]byte(queryStr))
	return hex.EncodeToString(h.Sum(nil))
}

func (e *Binance) doRequest(ctx context.Context, method, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	reqURL := binanceBaseURL + endpoint

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}

	if signed {
		query.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		query.Set("recvWindow", "5000")
		queryStr := query.Encode()
		query.Set("signature", e.sign(queryStr))
	}

	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(""))
	if err != nil {
		return nil, err
	}
	if signed || e.creds.APIKey != "" {
		req.Header.Set("X-MBX-APIKEY", e.creds.APIKey)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var body []byte
	var statusCode int
	err = retry.Do(ctx, func() error {
		resp, doErr := e.httpClient.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()
		b, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return readErr
		}
		body = b
		statusCode = resp.StatusCode
		return nil
	}, retry.NetworkConfig())
	if err != nil {
		return nil, err
	}

	if statusCode >= 400 {
		var errResp struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		json.Unmarshal(body, &errResp)
		return nil, &ExchangeError{Exchange: "binance", Code: strconv.Itoa(errResp.Code), Message: errResp.Msg}
	}
	return body, nil
}

func (e *Binance) LoadMarkets(ctx context.Context) (map[string]models.Market, error) {
	body, err := e.doRequest(ctx, http.MethodGet, "/api/v3/exchangeInfo", nil, false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Symbols []struct {
			Symbol     string `json:"symbol"`
			BaseAsset  string `json:"baseAsset"`
			QuoteAsset string `json:"quoteAsset"`
			Status     string `json:"status"`
			Filters    []struct {
				FilterType  string `json:"filterType"`
				MinQty      string `json:"minQty"`
				StepSize    string `json:"stepSize"`
				TickSize    string `json:"tickSize"`
				MinNotional string `json:"minNotional"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]models.Market, len(resp.Symbols))
	for _, it := range resp.Symbols {
		sym := string(models.Canon(it.BaseAsset)) + "/" + string(models.Canon(it.QuoteAsset))
		m := models.Market{
			Symbol: it.Symbol, Base: models.Canon(it.BaseAsset), Quote: models.Canon(it.QuoteAsset),
			Active: it.Status == "TRADING", TakerFee: 0.001,
		}
		for _, f := range it.Filters {
			switch f.FilterType {
			case "LOT_SIZE":
				m.MinAmount, _ = strconv.ParseFloat(f.MinQty, 64)
				m.AmountStep, _ = strconv.ParseFloat(f.StepSize, 64)
			case "PRICE_FILTER":
				m.PriceStep, _ = strconv.ParseFloat(f.TickSize, 64)
			case "NOTIONAL", "MIN_NOTIONAL":
				m.MinCost, _ = strconv.ParseFloat(f.MinNotional, 64)
			}
		}
		out[sym] = m
	}
	e.markets.set(out)
	return out, nil
}

func (e *Binance) FetchTickers(ctx context.Context) (map[string]models.Ticker, error) {
	body, err := e.doRequest(ctx, http.MethodGet, "/api/v3/ticker/bookTicker", nil, false)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Symbol   string `json:"symbol"`
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}
	volBody, err := e.doRequest(ctx, http.MethodGet, "/api/v3/ticker/24hr", map[string]string{}, false)
	volumes := map[string]float64{}
	lasts := map[string]float64{}
	if err == nil {
		var volRows []struct {
			Symbol      string `json:"symbol"`
			LastPrice   string `json:"lastPrice"`
			QuoteVolume string `json:"quoteVolume"`
		}
		if json.Unmarshal(volBody, &volRows) == nil {
			for _, v := range volRows {
				volumes[v.Symbol], _ = strconv.ParseFloat(v.QuoteVolume, 64)
				lasts[v.Symbol], _ = strconv.ParseFloat(v.LastPrice, 64)
			}
		}
	}
	out := make(map[string]models.Ticker, len(rows))
	now := unixMillis(time.Now())
	for _, it := range rows {
		pair := e.markets.canonical(it.Symbol)
		bid, _ := strconv.ParseFloat(it.BidPrice, 64)
		ask, _ := strconv.ParseFloat(it.AskPrice, 64)
		out[pair] = models.Ticker{
			Symbol: pair, Bid: bid, Ask: ask, Last: lasts[it.Symbol],
			QuoteVolume: volumes[it.Symbol], Timestamp: now,
		}
	}
	return out, nil
}

func (e *Binance) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	venueSym := e.markets.nativeSymbol(symbol)
	body, err := e.doRequest(ctx, http.MethodGet, "/api/v3/ticker/bookTicker", map[string]string{"symbol": venueSym}, false)
	if err != nil {
		return models.Ticker{}, err
	}
	var resp struct {
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.Ticker{}, err
	}
	if resp.BidPrice == "" {
		return models.Ticker{}, fmt.Errorf("binance: ticker %s not found", symbol)
	}
	bid, _ := strconv.ParseFloat(resp.BidPrice, 64)
	ask, _ := strconv.ParseFloat(resp.AskPrice, 64)
	return models.Ticker{Symbol: symbol, Bid: bid, Ask: ask, Last: (bid + ask) / 2, Timestamp: unixMillis(time.Now())}, nil
}

func (e *Binance) FetchOrderBook(ctx context.Context, symbol string, depth int) (models.OrderBook, error) {
	venueSym := e.markets.nativeSymbol(symbol)
	body, err := e.doRequest(ctx, http.MethodGet, "/api/v3/depth", map[string]string{
		"symbol": venueSym, "limit": strconv.Itoa(depth),
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

func (e *Binance) FetchBalance(ctx context.Context, currency models.Currency) (float64, error) {
	all, err := e.FetchBalanceAll(ctx, BalanceFree)
	if err != nil {
		return 0, err
	}
	return all[currency], nil
}

func (e *Binance) FetchBalanceAll(ctx context.Context, kind BalanceKind) (map[models.Currency]float64, error) {
	body, err := e.doRequest(ctx, http.MethodGet, "/api/v3/account", nil, true)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := map[models.Currency]float64{}
	for _, b := range resp.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		amt := free
		if kind == BalanceTotal {
			locked, _ := strconv.ParseFloat(b.Locked, 64)
			amt = free + locked
		}
		out[models.Canon(b.Asset)] = amt
	}
	return out, nil
}

func (e *Binance) CreateOrder(ctx context.Context, req swapper.OrderRequest) (swapper.OrderResult, error) {
	venueSym := e.markets.nativeSymbol(req.Symbol)
	params := map[string]string{
		"symbol":           venueSym,
		"side":             strings.ToUpper(req.Side),
		"type":             strings.ToUpper(string(req.Type)),
		"newOrderRespType": "FULL",
	}
	if req.Type == swapper.OrderTypeLimit {
		params["price"] = trimFloat(req.Price)
		params["quantity"] = trimFloat(req.Amount)
		params["timeInForce"] = defaultTIF(req.TimeInForce)
	} else if req.QuoteCost {
		params["quoteOrderQty"] = trimFloat(req.Amount)
	} else {
		params["quantity"] = trimFloat(req.Amount)
	}

	body, err := e.doRequest(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		if IsInsufficientFunds(err) {
			return swapper.OrderResult{InsufficientFunds: true}, err
		}
		return swapper.OrderResult{}, err
	}
	var resp struct {
		OrderId             int64  `json:"orderId"`
		Status              string `json:"status"`
		ExecutedQty         string `json:"executedQty"`
		CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
		Fills               []struct {
			Commission     string `json:"commission"`
			CommissionAsset string `json:"commissionAsset"`
		} `json:"fills"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return swapper.OrderResult{}, err
	}
	filled, _ := strconv.ParseFloat(resp.ExecutedQty, 64)
	quote, _ := strconv.ParseFloat(resp.CummulativeQuoteQty, 64)
	avg := 0.0
	if filled > 0 {
		avg = quote / filled
	}
	var fee float64
	var feeCcy models.Currency
	for _, f := range resp.Fills {
		amt, _ := strconv.ParseFloat(f.Commission, 64)
		fee += amt
		feeCcy = models.Canon(f.CommissionAsset)
	}
	return swapper.OrderResult{
		OrderID: strconv.FormatInt(resp.OrderId, 10), Status: binanceStatus(resp.Status),
		FilledAmount: filled, AvgPrice: avg, Fee: -fee, FeeCcy: feeCcy,
	}, nil
}

func (e *Binance) FetchOrder(ctx context.Context, symbol, orderID string) (swapper.OrderResult, error) {
	venueSym := e.markets.nativeSymbol(symbol)
	body, err := e.doRequest(ctx, http.MethodGet, "/api/v3/order", map[string]string{"symbol": venueSym, "orderId": orderID}, true)
	if err != nil {
		return swapper.OrderResult{}, err
	}
	var resp struct {
		Status              string `json:"status"`
		ExecutedQty         string `json:"executedQty"`
		CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return swapper.OrderResult{}, err
	}
	filled, _ := strconv.ParseFloat(resp.ExecutedQty, 64)
	quote, _ := strconv.ParseFloat(resp.CummulativeQuoteQty, 64)
	avg := 0.0
	if filled > 0 {
		avg = quote / filled
	}
	return swapper.OrderResult{OrderID: orderID, Status: binanceStatus(resp.Status), FilledAmount: filled, AvgPrice: avg}, nil
}

func (e *Binance) CancelOrder(ctx context.Context, symbol, orderID string) error {
	venueSym := e.markets.nativeSymbol(symbol)
	_, err := e.doRequest(ctx, http.MethodDelete, "/api/v3/order", map[string]string{"symbol": venueSym, "orderId": orderID}, true)
	return err
}

func (e *Binance) Market(symbol string) (models.Market, bool) { return e.markets.get(symbol) }

func (e *Binance) AmountToPrecision(symbol string, amount float64) float64 {
	m, _ := e.markets.get(symbol)
	return roundToStep(amount, m.AmountStep, m.AmountPrecision)
}

func (e *Binance) PriceToPrecision(symbol string, price float64) float64 {
	m, _ := e.markets.get(symbol)
	return roundToStep(price, m.PriceStep, m.PricePrecision)
}

func (e *Binance) CurrencyToPrecision(ccy models.Currency, amount float64) float64 {
	return roundToStep(amount, 0, 8)
}

// WatchOrderBook subscribes to Binance's raw depth20@100ms partial-book
// stream for each symbol (spec §4.6 "depth20 at 100ms").
func (e *Binance) WatchOrderBook(ctx context.Context, symbols []string, onUpdate func(symbol string, book models.OrderBook)) error {
	if e.wsManager == nil {
		e.wsManager = NewWSReconnectManager("binance", binanceWSPublic, DefaultWSReconnectConfig())
	}
	streamOf := make(map[string]string, len(symbols))
	params := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		native := strings.ToLower(e.markets.nativeSymbol(sym))
		stream := native + "@depth20@100ms"
		streamOf[stream] = sym
		params = append(params, stream)
	}
	e.wsManager.SetOnMessage(func(raw []byte) {
		var msg struct {
			Stream string `json:"stream"`
			Data   struct {
				Bids [][2]string `json:"bids"`
				Asks [][2]string `json:"asks"`
			} `json:"data"`
			Bids [][2]string `json:"bids"`
			Asks [][2]string `json:"asks"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		bids, asks := msg.Bids, msg.Asks
		stream := msg.Stream
		if stream == "" && len(params) == 1 {
			stream = params[0]
		}
		if len(msg.Data.Bids) > 0 || len(msg.Data.Asks) > 0 {
			bids, asks = msg.Data.Bids, msg.Data.Asks
		}
		sym, ok := streamOf[stream]
		if !ok {
			return
		}
		onUpdate(sym, models.OrderBook{Symbol: sym, Bids: parseLevels(bids), Asks: parseLevels(asks), Timestamp: unixMillis(time.Now())})
	})
	e.wsManager.AddSubscription(map[string]interface{}{"method": "SUBSCRIBE", "params": params, "id": 1})
	return e.wsManager.Connect()
}

func (e *Binance) Close() error {
	if e.wsManager != nil {
		return e.wsManager.Close()
	}
	return nil
}

func binanceStatus(s string) string {
	switch s {
	case "FILLED":
		return "closed"
	case "PARTIALLY_FILLED":
		return "partially_filled"
	case "CANCELED", "REJECTED", "EXPIRED":
		return "canceled"
	default:
		return "open"
	}
}
