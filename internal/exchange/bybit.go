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

	"github.com/google/uuid"
	"github.com/svyatogor45/radar-arb/internal/models"
	"github.com/svyatogor45/radar-arb/internal/swapper"
	"github.com/svyatogor45/radar-arb/pkg/ratelimit"
	"github.com/svyatogor45/radar-arb/pkg/retry"
)

const (
	bybitBaseURL    = "https://api.bybit.com"
	bybitWSPublic   = "wss://stream.bybit.com/v5/public/spot"
	bybitRecvWindow = "5000"
)

// Bybit implements Adapter for Bybit's v5 spot API.
type Bybit struct {
	creds      Credentials
	httpClient *http.Client
	markets    marketCache
	wsManager  *WSReconnectManager
	limiter    *ratelimit.RateLimiter
}

func NewBybit(creds Credentials) *Bybit {
	return &Bybit{creds: creds, httpClient: GetGlobalHTTPClient().GetClient(), limiter: newVenueLimiter("bybit")}
}

func (b *Bybit) Name() string { return "bybit" }

func (b *Bybit) Quirks() Quirks {
	return Quirks{MarketBuyUsesQuoteCost: false, RequiresPassphrase: false, DefaultOrderType: "market"}
}

// MarketBuyUsesQuoteCost lets internal/swapper consult this quirk without
// importing the exchange package (spec §4.1).
func (b *Bybit) MarketBuyUsesQuoteCost() bool { return b.Quirks().MarketBuyUsesQuoteCost }

func (b *Bybit) Capabilities() Capabilities {
	return Capabilities{FetchTickersBatch: true, PartialBookWS: true}
}

func (b *Bybit) sign(timestamp, params string) string {
	message := timestamp + b.creds.APIKey + bybitRecvWindow + params
	h := hmac.New(sha256.New, []byte(b.creds.APISecret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

func (b *Bybit) doRequest(ctx context.Context, method, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	var reqBody, reqURL string
	if method == http.MethodGet {
		query := url.Values{}
		for k, v := range params {
			query.Set(k, v)
		}
		reqBody = query.Encode()
		reqURL = bybitBaseURL + endpoint
		if reqBody != "" {
			reqURL += "?" + reqBody
		}
	} else {
		reqURL = bybitBaseURL + endpoint
		if len(params) > 0 {
			jsonBytes, _ := json.Marshal(params)
			reqBody = string(jsonBytes)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if signed {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		signature := b.sign(timestamp, reqBody)
		req.Header.Set("X-BAPI-API-KEY", b.creds.APIKey)
		req.Header.Set("X-BAPI-SIGN", signature)
		req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
		req.Header.Set("X-BAPI-RECV-WINDOW", bybitRecvWindow)
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var body []byte
	err = retry.Do(ctx, func() error {
		resp, doErr := b.httpClient.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return readErr
		}
		body = data
		return nil
	}, retry.NetworkConfig())
	if err != nil {
		return nil, err
	}

	var baseResp struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := json.Unmarshal(body, &baseResp); err != nil {
		return nil, err
	}
	if baseResp.RetCode != 0 {
		return nil, &ExchangeError{Exchange: "bybit", Code: strconv.Itoa(baseResp.RetCode), Message: baseResp.RetMsg}
	}
	return body, nil
}

func (b *Bybit) LoadMarkets(ctx context.Context) (map[string]models.Market, error) {
	body, err := b.doRequest(ctx, http.MethodGet, "/v5/market/instruments-info", map[string]string{"category": "spot"}, false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result struct {
			List []struct {
				Symbol        string `json:"symbol"`
				BaseCoin      string `json:"baseCoin"`
				QuoteCoin     string `json:"quoteCoin"`
				Status        string `json:"status"`
				LotSizeFilter struct {
					BasePrecision string `json:"basePrecision"`
					MinOrderQty   string `json:"minOrderQty"`
					MinOrderAmt   string `json:"minOrderAmt"`
				} `json:"lotSizeFilter"`
				PriceFilter struct {
					TickSize string `json:"tickSize"`
				} `json:"priceFilter"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]models.Market, len(resp.Result.List))
	for _, it := range resp.Result.List {
		sym := string(models.Canon(it.BaseCoin)) + "/" + string(models.Canon(it.QuoteCoin))
		minAmt, _ := strconv.ParseFloat(it.LotSizeFilter.MinOrderQty, 64)
		minCost, _ := strconv.ParseFloat(it.LotSizeFilter.MinOrderAmt, 64)
		amtStep, _ := strconv.ParseFloat(it.LotSizeFilter.BasePrecision, 64)
		priceStep, _ := strconv.ParseFloat(it.PriceFilter.TickSize, 64)
		out[sym] = models.Market{
			Symbol: it.Symbol, Base: models.Canon(it.BaseCoin), Quote: models.Canon(it.QuoteCoin),
			Active: it.Status == "Trading", MinAmount: minAmt, MinCost: minCost,
			AmountStep: amtStep, PriceStep: priceStep, TakerFee: 0.001,
		}
	}
	b.markets.set(out)
	return out, nil
}

func (b *Bybit) FetchTickers(ctx context.Context) (map[string]models.Ticker, error) {
	body, err := b.doRequest(ctx, http.MethodGet, "/v5/market/tickers", map[string]string{"category": "spot"}, false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result struct {
			List []struct {
				Symbol      string `json:"symbol"`
				Bid1Price   string `json:"bid1Price"`
				Ask1Price   string `json:"ask1Price"`
				LastPrice   string `json:"lastPrice"`
				Turnover24h string `json:"turnover24h"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]models.Ticker, len(resp.Result.List))
	now := unixMillis(time.Now())
	for _, it := range resp.Result.List {
		pair := b.markets.canonical(it.Symbol)
		bid, _ := strconv.ParseFloat(it.Bid1Price, 64)
		ask, _ := strconv.ParseFloat(it.Ask1Price, 64)
		last, _ := strconv.ParseFloat(it.LastPrice, 64)
		qv, _ := strconv.ParseFloat(it.Turnover24h, 64)
		out[pair] = models.Ticker{Symbol: pair, Bid: bid, Ask: ask, Last: last, QuoteVolume: qv, Timestamp: now}
	}
	return out, nil
}

func (b *Bybit) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	tickers, err := b.FetchTickers(ctx)
	if err != nil {
		return models.Ticker{}, err
	}
	if t, ok := tickers[symbol]; ok {
		return t, nil
	}
	return models.Ticker{}, fmt.Errorf("bybit: ticker %s not found", symbol)
}

func (b *Bybit) FetchOrderBook(ctx context.Context, symbol string, depth int) (models.OrderBook, error) {
	venueSym := b.markets.nativeSymbol(symbol)
	body, err := b.doRequest(ctx, http.MethodGet, "/v5/market/orderbook", map[string]string{
		"category": "spot", "symbol": venueSym, "limit": strconv.Itoa(depth),
	}, false)
	if err != nil {
		return models.OrderBook{}, err
	}
	var resp struct {
		Result struct {
			Bids [][2]string `json:"b"`
			Asks [][2]string `json:"a"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.OrderBook{}, err
	}
	return models.OrderBook{Symbol: symbol, Bids: parseLevels(resp.Result.Bids), Asks: parseLevels(resp.Result.Asks), Timestamp: unixMillis(time.Now())}, nil
}

func (b *Bybit) FetchBalance(ctx context.Context, currency models.Currency) (float64, error) {
	all, err := b.FetchBalanceAll(ctx, BalanceFree)
	if err != nil {
		return 0, err
	}
	return all[currency], nil
}

func (b *Bybit) FetchBalanceAll(ctx context.Context, kind BalanceKind) (map[models.Currency]float64, error) {
	body, err := b.doRequest(ctx, http.MethodGet, "/v5/account/wallet-balance", map[string]string{"accountType": "UNIFIED"}, true)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result struct {
			List []struct {
				Coin []struct {
					Coin                string `json:"coin"`
					WalletBalance       string `json:"walletBalance"`
					AvailableToWithdraw string `json:"availableToWithdraw"`
				} `json:"coin"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := map[models.Currency]float64{}
	if len(resp.Result.List) == 0 {
		return out, nil
	}
	for _, c := range resp.Result.List[0].Coin {
		v := c.WalletBalance
		if kind == BalanceFree {
			v = c.AvailableToWithdraw
		}
		amt, _ := strconv.ParseFloat(v, 64)
		out[models.Canon(c.Coin)] = amt
	}
	return out, nil
}

func (b *Bybit) CreateOrder(ctx context.Context, req swapper.OrderRequest) (swapper.OrderResult, error) {
	venueSym := b.markets.nativeSymbol(req.Symbol)
	params := map[string]string{
		"category":    "spot",
		"symbol":      venueSym,
		"side":        capitalize(req.Side),
		"orderType":   capitalize(string(req.Type)),
		"orderLinkId": uuid.NewString(),
		"timeInForce": defaultTIF(req.TimeInForce),
		"qty":         trimFloat(req.Amount),
	}
	if req.Type == swapper.OrderTypeLimit {
		params["price"] = trimFloat(req.Price)
	}
	if req.QuoteCost {
		params["marketUnit"] = "quoteCoin"
	}

	body, err := b.doRequest(ctx, http.MethodPost, "/v5/order/create", params, true)
	if err != nil {
		if IsInsufficientFunds(err) {
			return swapper.OrderResult{InsufficientFunds: true}, err
		}
		return swapper.OrderResult{}, err
	}
	var resp struct {
		Result struct {
			OrderId string `json:"orderId"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return swapper.OrderResult{}, err
	}
	return b.FetchOrder(ctx, req.Symbol, resp.Result.OrderId)
}

func (b *Bybit) FetchOrder(ctx context.Context, symbol, orderID string) (swapper.OrderResult, error) {
	body, err := b.doRequest(ctx, http.MethodGet, "/v5/order/realtime", map[string]string{"category": "spot", "orderId": orderID}, true)
	if err != nil {
		return swapper.OrderResult{}, err
	}
	var resp struct {
		Result struct {
			List []struct {
				OrderStatus string `json:"orderStatus"`
				CumExecQty  string `json:"cumExecQty"`
				AvgPrice    string `json:"avgPrice"`
				CumExecFee  string `json:"cumExecFee"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return swapper.OrderResult{}, err
	}
	if len(resp.Result.List) == 0 {
		return swapper.OrderResult{OrderID: orderID, Status: "open"}, nil
	}
	o := resp.Result.List[0]
	filled, _ := strconv.ParseFloat(o.CumExecQty, 64)
	avg, _ := strconv.ParseFloat(o.AvgPrice, 64)
	fee, _ := strconv.ParseFloat(o.CumExecFee, 64)
	return swapper.OrderResult{OrderID: orderID, Status: bybitStatus(o.OrderStatus), FilledAmount: filled, AvgPrice: avg, Fee: fee}, nil
}

func (b *Bybit) CancelOrder(ctx context.Context, symbol, orderID string) error {
	venueSym := b.markets.nativeSymbol(symbol)
	_, err := b.doRequest(ctx, http.MethodPost, "/v5/order/cancel", map[string]string{"category": "spot", "symbol": venueSym, "orderId": orderID}, true)
	return err
}

func (b *Bybit) Market(symbol string) (models.Market, bool) { return b.markets.get(symbol) }

func (b *Bybit) AmountToPrecision(symbol string, amount float64) float64 {
	m, _ := b.markets.get(symbol)
	return roundToStep(amount, m.AmountStep, m.AmountPrecision)
}

func (b *Bybit) PriceToPrecision(symbol string, price float64) float64 {
	m, _ := b.markets.get(symbol)
	return roundToStep(price, m.PriceStep, m.PricePrecision)
}

func (b *Bybit) CurrencyToPrecision(ccy models.Currency, amount float64) float64 {
	return roundToStep(amount, 0, 8)
}

// WatchOrderBook subscribes to Bybit v5's "orderbook.50.<SYMBOL>" public
// topic for each symbol (spec §4.6).
func (b *Bybit) WatchOrderBook(ctx context.Context, symbols []string, onUpdate func(symbol string, book models.OrderBook)) error {
	if b.wsManager == nil {
		b.wsManager = NewWSReconnectManager("bybit", bybitWSPublic, DefaultWSReconnectConfig())
	}
	topicOf := make(map[string]string, len(symbols))
	args := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		native := b.markets.nativeSymbol(sym)
		topic := "orderbook.50." + native
		topicOf[topic] = sym
		args = append(args, topic)
	}
	b.wsManager.SetOnMessage(func(raw []byte) {
		var msg struct {
			Topic string `json:"topic"`
			Data  struct {
				Bids [][2]string `json:"b"`
				Asks [][2]string `json:"a"`
			} `json:"data"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		sym, ok := topicOf[msg.Topic]
		if !ok {
			return
		}
		onUpdate(sym, models.OrderBook{Symbol: sym, Bids: parseLevels(msg.Data.Bids), Asks: parseLevels(msg.Data.Asks), Timestamp: unixMillis(time.Now())})
	})
	b.wsManager.AddSubscription(map[string]interface{}{"op": "subscribe", "args": args})
	return b.wsManager.Connect()
}

func (b *Bybit) Close() error {
	if b.wsManager != nil {
		return b.wsManager.Close()
	}
	return nil
}

func bybitStatus(s string) string {
	switch s {
	case "Filled":
		return "closed"
	case "PartiallyFilled":
		return "partially_filled"
	case "Cancelled", "Rejected":
		return "canceled"
	default:
		return "open"
	}
}
