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

const bingxBaseURL = "https://open-api.bingx.com"
const bingxWSPublic = "wss://open-api-ws.bingx.com/market"

// BingX implements Adapter for BingX's spot API.
type BingX struct {
	creds      Credentials
	httpClient *http.Client
	markets    marketCache
	wsManager  *WSReconnectManager
	limiter    *ratelimit.RateLimiter
}

func NewBingX(creds Credentials) *BingX {
	return &BingX{creds: creds, httpClient: GetGlobalHTTPClient().GetClient(), limiter: newVenueLimiter("bingx")}
}

func (b *BingX) Name() string { return "bingx" }

func (b *BingX) Quirks() Quirks {
	return Quirks{MarketBuyUsesQuoteCost: true, RequiresPassphrase: false, DefaultOrderType: "market"}
}

// MarketBuyUsesQuoteCost lets internal/swapper consult this quirk without
// importing the exchange package (spec §4.1).
func (b *BingX) MarketBuyUsesQuoteCost() bool { return b.Quirks().MarketBuyUsesQuoteCost }

func (b *BingX) Capabilities() Capabilities {
	return Capabilities{FetchTickersBatch: true, PartialBookWS: true}
}

func (b *BingX) sign(params string) string {
	h := hmac.New(sha256.New, []byte(b.creds.APISecret))
	h.Write([]byte(params))
	return hex.EncodeToString(h.Sum(nil))
}

func (b *BingX) doRequest(ctx context.Context, method, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	reqURL := bingxBaseURL + endpoint

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}

	if signed {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		query.Set("timestamp", timestamp)
		queryStr := query.Encode()
		signature := b.sign(queryStr)
		query.Set("signature", signature)
	}

	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(""))
	if err != nil {
		return nil, err
	}
	if signed {
		req.Header.Set("X-BX-APIKEY", b.creds.APIKey)
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body []byte
	err = retry.Do(ctx, func() error {
		resp, err := b.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(resp.Body)
		return err
	}, retry.NetworkConfig())
	if err != nil {
		return nil, err
	}

	var baseResp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &baseResp); err == nil && baseResp.Code != 0 {
		return nil, &ExchangeError{Exchange: "bingx", Code: strconv.Itoa(baseResp.Code), Message: baseResp.Msg}
	}
	return body, nil
}

func (b *BingX) LoadMarkets(ctx context.Context) (map[string]models.Market, error) {
	body, err := b.doRequest(ctx, http.MethodGet, "/openApi/spot/v1/common/symbols", nil, false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data struct {
			Symbols []struct {
				Symbol           string  `json:"symbol"`
				Status           int     `json:"status"`
				MinQty           float64 `json:"minQty"`
				MinNotional      float64 `json:"minNotional"`
				TickSize         float64 `json:"tickSize"`
				StepSize         float64 `json:"stepSize"`
			} `json:"symbols"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]models.Market, len(resp.Data.Symbols))
	for _, it := range resp.Data.Symbols {
		parts := strings.SplitN(it.Symbol, "-", 2)
		if len(parts) != 2 {
			continue
		}
		sym := string(models.Canon(parts[0])) + "/" + string(models.Canon(parts[1]))
		out[sym] = models.Market{
			Symbol: it.Symbol, Base: models.Canon(parts[0]), Quote: models.Canon(parts[1]),
			Active: it.Status == 1, MinAmount: it.MinQty, MinCost: it.MinNotional,
			AmountStep: it.StepSize, PriceStep: it.TickSize, TakerFee: 0.001,
		}
	}
	b.markets.set(out)
	return out, nil
}

func (b *BingX) FetchTickers(ctx context.Context) (map[string]models.Ticker, error) {
	body, err := b.doRequest(ctx, http.MethodGet, "/openApi/spot/v1/ticker/24hr", nil, false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []struct {
			Symbol      string  `json:"symbol"`
			BidPrice    float64 `json:"bidPrice"`
			AskPrice    float64 `json:"askPrice"`
			LastPrice   float64 `json:"lastPrice"`
			QuoteVolume float64 `json:"quoteVolume"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]models.Ticker, len(resp.Data))
	now := unixMillis(time.Now())
	for _, it := range resp.Data {
		pair := b.markets.canonical(it.Symbol)
		out[pair] = models.Ticker{Symbol: pair, Bid: it.BidPrice, Ask: it.AskPrice, Last: it.LastPrice, QuoteVolume: it.QuoteVolume, Timestamp: now}
	}
	return out, nil
}

func (b *BingX) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	venueSym := b.markets.nativeSymbol(symbol)
	body, err := b.doRequest(ctx, http.MethodGet, "/openApi/spot/v1/ticker/24hr", map[string]string{"symbol": venueSym}, false)
	if err != nil {
		return models.Ticker{}, err
	}
	var resp struct {
		Data []struct {
			BidPrice  float64 `json:"bidPrice"`
			AskPrice  float64 `json:"askPrice"`
			LastPrice float64 `json:"lastPrice"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.Ticker{}, err
	}
	if len(resp.Data) == 0 {
		return models.Ticker{}, fmt.Errorf("bingx: ticker %s not found", symbol)
	}
	d := resp.Data[0]
	return models.Ticker{Symbol: symbol, Bid: d.BidPrice, Ask: d.AskPrice, Last: d.LastPrice, Timestamp: unixMillis(time.Now())}, nil
}

func (b *BingX) FetchOrderBook(ctx context.Context, symbol string, depth int) (models.OrderBook, error) {
	venueSym := b.markets.nativeSymbol(symbol)
	body, err := b.doRequest(ctx, http.MethodGet, "/openApi/spot/v1/market/depth", map[string]string{
		"symbol": venueSym, "limit": strconv.Itoa(depth),
	}, false)
	if err != nil {
		return models.OrderBook{}, err
	}
	var resp struct {
		Data struct {
			Bids [][2]string `json:"bids"`
			Asks [][2]string `json:"asks"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.OrderBook{}, err
	}
	return models.OrderBook{Symbol: symbol, Bids: parseLevels(resp.Data.Bids), Asks: parseLevels(resp.Data.Asks), Timestamp: unixMillis(time.Now())}, nil
}

func (b *BingX) FetchBalance(ctx context.Context, currency models.Currency) (float64, error) {
	all, err := b.FetchBalanceAll(ctx, BalanceFree)
	if err != nil {
		return 0, err
	}
	return all[currency], nil
}

func (b *BingX) FetchBalanceAll(ctx context.Context, kind BalanceKind) (map[models.Currency]float64, error) {
	body, err := b.doRequest(ctx, http.MethodGet, "/openApi/spot/v1/account/balance", nil, true)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data struct {
			Balances []struct {
				Asset  string `json:"asset"`
				Free   string `json:"free"`
				Locked string `json:"locked"`
			} `json:"balances"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := map[models.Currency]float64{}
	for _, a := range resp.Data.Balances {
		free, _ := strconv.ParseFloat(a.Free, 64)
		amt := free
		if kind == BalanceTotal {
			locked, _ := strconv.ParseFloat(a.Locked, 64)
			amt = free + locked
		}
		out[models.Canon(a.Asset)] = amt
	}
	return out, nil
}

func (b *BingX) CreateOrder(ctx context.Context, req swapper.OrderRequest) (swapper.OrderResult, error) {
	venueSym := b.markets.nativeSymbol(req.Symbol)
	params := map[string]string{
		"symbol": venueSym,
		"side":   strings.ToUpper(req.Side),
		"type":   strings.ToUpper(string(req.Type)),
	}
	if req.Type == swapper.OrderTypeLimit {
		params["price"] = trimFloat(req.Price)
		params["quantity"] = trimFloat(req.Amount)
	} else if req.QuoteCost {
		params["quoteOrderQty"] = trimFloat(req.Amount)
	} else {
		params["quantity"] = trimFloat(req.Amount)
	}

	body, err := b.doRequest(ctx, http.MethodPost, "/openApi/spot/v1/trade/order", params, true)
	if err != nil {
		if IsInsufficientFunds(err) {
			return swapper.OrderResult{InsufficientFunds: true}, err
		}
		return swapper.OrderResult{}, err
	}
	var resp struct {
		Data struct {
			OrderId int64 `json:"orderId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return swapper.OrderResult{}, err
	}
	return b.FetchOrder(ctx, req.Symbol, strconv.FormatInt(resp.Data.OrderId, 10))
}

func (b *BingX) FetchOrder(ctx context.Context, symbol, orderID string) (swapper.OrderResult, error) {
	venueSym := b.markets.nativeSymbol(symbol)
	body, err := b.doRequest(ctx, http.MethodGet, "/openApi/spot/v1/trade/query", map[string]string{"symbol": venueSym, "orderId": orderID}, true)
	if err != nil {
		return swapper.OrderResult{}, err
	}
	var resp struct {
		Data struct {
			Status          string `json:"status"`
			ExecutedQty     string `json:"executedQty"`
			CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return swapper.OrderResult{}, err
	}
	filled, _ := strconv.ParseFloat(resp.Data.ExecutedQty, 64)
	quote, _ := strconv.ParseFloat(resp.Data.CummulativeQuoteQty, 64)
	avg := 0.0
	if filled > 0 {
		avg = quote / filled
	}
	return swapper.OrderResult{OrderID: orderID, Status: bingxStatus(resp.Data.Status), FilledAmount: filled, AvgPrice: avg}, nil
}

func (b *BingX) CancelOrder(ctx context.Context, symbol, orderID string) error {
	venueSym := b.markets.nativeSymbol(symbol)
	_, err := b.doRequest(ctx, http.MethodPost, "/openApi/spot/v1/trade/cancel", map[string]string{"symbol": venueSym, "orderId": orderID}, true)
	return err
}

func (b *BingX) Market(symbol string) (models.Market, bool) { return b.markets.get(symbol) }

func (b *BingX) AmountToPrecision(symbol string, amount float64) float64 {
	m, _ := b.markets.get(symbol)
	return roundToStep(amount, m.AmountStep, m.AmountPrecision)
}

func (b *BingX) PriceToPrecision(symbol string, price float64) float64 {
	m, _ := b.markets.get(symbol)
	return roundToStep(price, m.PriceStep, m.PricePrecision)
}

func (b *BingX) CurrencyToPrecision(ccy models.Currency, amount float64) float64 {
	return roundToStep(amount, 0, 8)
}

// WatchOrderBook subscribes to BingX's "<symbol>@depth20" public channel
// per symbol (spec §4.6). Payloads are gzip-compressed like HTX's.
func (b *BingX) WatchOrderBook(ctx context.Context, symbols []string, onUpdate func(symbol string, book models.OrderBook)) error {
	if b.wsManager == nil {
		b.wsManager = NewWSReconnectManager("bingx", bingxWSPublic, DefaultWSReconnectConfig())
	}
	dataTypeOf := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		native := b.markets.nativeSymbol(sym)
		dt := native + "@depth20"
		dataTypeOf[dt] = sym
		b.wsManager.AddSubscription(map[string]interface{}{"id": dt, "reqType": "sub", "dataType": dt})
	}
	b.wsManager.SetOnMessage(func(raw []byte) {
		body, err := gunzipWS(raw)
		if err != nil {
			return
		}
		var msg struct {
			Ping     string `json:"ping"`
			DataType string `json:"dataType"`
			Data     struct {
				Bids [][2]string `json:"bids"`
				Asks [][2]string `json:"asks"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &msg); err != nil {
			return
		}
		if msg.Ping != "" {
			b.wsManager.Send(map[string]string{"pong": msg.Ping})
			return
		}
		sym, ok := dataTypeOf[msg.DataType]
		if !ok {
			return
		}
		onUpdate(sym, models.OrderBook{Symbol: sym, Bids: parseLevels(msg.Data.Bids), Asks: parseLevels(msg.Data.Asks), Timestamp: unixMillis(time.Now())})
	})
	return b.wsManager.Connect()
}


func (b *BingX) Close() error {
	if b.wsManager != nil {
		return b.wsManager.Close()
	}
	return nil
}

func bingxStatus(s string) string {
	switch s {
	case "FILLED":
		return "closed"
	case "PARTIALLY_FILLED":
		return "partially_filled"
	case "CANCELED":
		return "canceled"
	default:
		return "open"
	}
}
