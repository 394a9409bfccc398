package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
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

const bitgetBaseURL = "https://api.bitget.com"
const bitgetWSPublic = "wss://ws.bitget.com/v2/ws/public"

// Bitget implements Adapter for Bitget's v2 spot API.
type Bitget struct {
	creds      Credentials
	httpClient *http.Client
	markets    marketCache
	wsManager  *WSReconnectManager
	limiter    *ratelimit.RateLimiter
}

func NewBitget(creds Credentials) *Bitget {
	return &Bitget{creds: creds, httpClient: GetGlobalHTTPClient().GetClient(), limiter: newVenueLimiter("bitget")}
}

func (b *Bitget) Name() string { return "bitget" }

func (b *Bitget) Quirks() Quirks {
	return Quirks{MarketBuyUsesQuoteCost: true, RequiresPassphrase: true, DefaultOrderType: "market"}
}

// MarketBuyUsesQuoteCost lets internal/swapper consult this quirk without
// importing the exchange package (spec §4.1).
func (b *Bitget) MarketBuyUsesQuoteCost() bool { return b.Quirks().MarketBuyUsesQuoteCost }

func (b *Bitget) Capabilities() Capabilities {
	return Capabilities{FetchTickersBatch: true, PartialBookWS: true}
}

func (b *Bitget) sign(timestamp, method, requestPath, body string) string {
	message := timestamp + method + requestPath + body
	h := hmac.New(sha256.New, []byte(b.creds.APISecret))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (b *Bitget) doRequest(ctx context.Context, method, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	var reqBody, reqURL, signPath string
	if method == http.MethodGet {
		query := url.Values{}
		for k, v := range params {
			query.Set(k, v)
		}
		qs := query.Encode()
		reqURL = bitgetBaseURL + endpoint
		signPath = endpoint
		if qs != "" {
			reqURL += "?" + qs
			signPath += "?" + qs
		}
	} else {
		reqURL = bitgetBaseURL + endpoint
		signPath = endpoint
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
	req.Header.Set("locale", "en-US")

	if signed {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		signature := b.sign(timestamp, method, signPath, reqBody)
		req.Header.Set("ACCESS-KEY", b.creds.APIKey)
		req.Header.Set("ACCESS-SIGN", signature)
		req.Header.Set("ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("ACCESS-PASSPHRASE", b.creds.Passphrase)
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
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &baseResp); err != nil {
		return nil, err
	}
	if baseResp.Code != "00000" {
		return nil, &ExchangeError{Exchange: "bitget", Code: baseResp.Code, Message: baseResp.Msg}
	}
	return body, nil
}

func (b *Bitget) LoadMarkets(ctx context.Context) (map[string]models.Market, error) {
	body, err := b.doRequest(ctx, http.MethodGet, "/api/v2/spot/public/symbols", nil, false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []struct {
			Symbol        string `json:"symbol"`
			BaseCoin      string `json:"baseCoin"`
			QuoteCoin     string `json:"quoteCoin"`
			Status        string `json:"status"`
			MinTradeAmount string `json:"minTradeAmount"`
			MinTradeUSDT  string `json:"minTradeUSDT"`
			PricePrecision string `json:"pricePrecision"`
			QuantityPrecision string `json:"quantityPrecision"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]models.Market, len(resp.Data))
	for _, it := range resp.Data {
		sym := string(models.Canon(it.BaseCoin)) + "/" + string(models.Canon(it.QuoteCoin))
		minAmt, _ := strconv.ParseFloat(it.MinTradeAmount, 64)
		minCost, _ := strconv.ParseFloat(it.MinTradeUSDT, 64)
		pricePrec, _ := strconv.Atoi(it.PricePrecision)
		qtyPrec, _ := strconv.Atoi(it.QuantityPrecision)
		out[sym] = models.Market{
			Symbol: it.Symbol, Base: models.Canon(it.BaseCoin), Quote: models.Canon(it.QuoteCoin),
			Active: it.Status == "online", MinAmount: minAmt, MinCost: minCost,
			AmountPrecision: qtyPrec, PricePrecision: pricePrec, TakerFee: 0.001,
		}
	}
	b.markets.set(out)
	return out, nil
}

func (b *Bitget) FetchTickers(ctx context.Context) (map[string]models.Ticker, error) {
	body, err := b.doRequest(ctx, http.MethodGet, "/api/v2/spot/market/tickers", nil, false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []struct {
			Symbol    string `json:"symbol"`
			BidPr     string `json:"bidPr"`
			AskPr     string `json:"askPr"`
			LastPr    string `json:"lastPr"`
			QuoteVolume string `json:"quoteVolume"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]models.Ticker, len(resp.Data))
	now := unixMillis(time.Now())
	for _, it := range resp.Data {
		pair := b.markets.canonical(it.Symbol)
		bid, _ := strconv.ParseFloat(it.BidPr, 64)
		ask, _ := strconv.ParseFloat(it.AskPr, 64)
		last, _ := strconv.ParseFloat(it.LastPr, 64)
		qv, _ := strconv.ParseFloat(it.QuoteVolume, 64)
		out[pair] = models.Ticker{Symbol: pair, Bid: bid, Ask: ask, Last: last, QuoteVolume: qv, Timestamp: now}
	}
	return out, nil
}

func (b *Bitget) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	venueSym := b.markets.nativeSymbol(symbol)
	body, err := b.doRequest(ctx, http.MethodGet, "/api/v2/spot/market/tickers", map[string]string{"symbol": venueSym}, false)
	if err != nil {
		return models.Ticker{}, err
	}
	var resp struct {
		Data []struct {
			BidPr  string `json:"bidPr"`
			AskPr  string `json:"askPr"`
			LastPr string `json:"lastPr"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.Ticker{}, err
	}
	if len(resp.Data) == 0 {
		return models.Ticker{}, fmt.Errorf("bitget: ticker %s not found", symbol)
	}
	bid, _ := strconv.ParseFloat(resp.Data[0].BidPr, 64)
	ask, _ := strconv.ParseFloat(resp.Data[0].AskPr, 64)
	last, _ := strconv.ParseFloat(resp.Data[0].LastPr, 64)
	return models.Ticker{Symbol: symbol, Bid: bid, Ask: ask, Last: last, Timestamp: unixMillis(time.Now())}, nil
}

func (b *Bitget) FetchOrderBook(ctx context.Context, symbol string, depth int) (models.OrderBook, error) {
	venueSym := b.markets.nativeSymbol(symbol)
	body, err := b.doRequest(ctx, http.MethodGet, "/api/v2/spot/market/orderbook", map[string]string{
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

func (b *Bitget) FetchBalance(ctx context.Context, currency models.Currency) (float64, error) {
	all, err := b.FetchBalanceAll(ctx, BalanceFree)
	if err != nil {
		return 0, err
	}
	return all[currency], nil
}

func (b *Bitget) FetchBalanceAll(ctx context.Context, kind BalanceKind) (map[models.Currency]float64, error) {
	body, err := b.doRequest(ctx, http.MethodGet, "/api/v2/spot/account/assets", nil, true)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []struct {
			Coin      string `json:"coin"`
			Available string `json:"available"`
			Frozen    string `json:"frozen"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := map[models.Currency]float64{}
	for _, a := range resp.Data {
		avail, _ := strconv.ParseFloat(a.Available, 64)
		amt := avail
		if kind == BalanceTotal {
			frozen, _ := strconv.ParseFloat(a.Frozen, 64)
			amt = avail + frozen
		}
		out[models.Canon(a.Coin)] = amt
	}
	return out, nil
}

func (b *Bitget) CreateOrder(ctx context.Context, req swapper.OrderRequest) (swapper.OrderResult, error) {
	venueSym := b.markets.nativeSymbol(req.Symbol)
	params := map[string]string{
		"symbol":      venueSym,
		"side":        req.Side,
		"orderType":   string(req.Type),
		"force":       strings.ToLower(defaultTIF(req.TimeInForce)),
		"clientOid":   strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
	if req.Type == swapper.OrderTypeLimit {
		params["price"] = trimFloat(req.Price)
		params["size"] = trimFloat(req.Amount)
	} else if req.QuoteCost {
		params["size"] = trimFloat(req.Amount)
	} else {
		params["size"] = trimFloat(req.Amount)
	}

	body, err := b.doRequest(ctx, http.MethodPost, "/api/v2/spot/trade/place-order", params, true)
	if err != nil {
		if IsInsufficientFunds(err) {
			return swapper.OrderResult{InsufficientFunds: true}, err
		}
		return swapper.OrderResult{}, err
	}
	var resp struct {
		Data struct {
			OrderId string `json:"orderId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return swapper.OrderResult{}, err
	}
	return b.FetchOrder(ctx, req.Symbol, resp.Data.OrderId)
}

func (b *Bitget) FetchOrder(ctx context.Context, symbol, orderID string) (swapper.OrderResult, error) {
	venueSym := b.markets.nativeSymbol(symbol)
	body, err := b.doRequest(ctx, http.MethodGet, "/api/v2/spot/trade/orderInfo", map[string]string{"symbol": venueSym, "orderId": orderID}, true)
	if err != nil {
		return swapper.OrderResult{}, err
	}
	var resp struct {
		Data []struct {
			Status     string `json:"status"`
			BaseVolume string `json:"baseVolume"`
			PriceAvg   string `json:"priceAvg"`
			FeeDetail  string `json:"feeDetail"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return swapper.OrderResult{}, err
	}
	if len(resp.Data) == 0 {
		return swapper.OrderResult{OrderID: orderID, Status: "open"}, nil
	}
	d := resp.Data[0]
	filled, _ := strconv.ParseFloat(d.BaseVolume, 64)
	avg, _ := strconv.ParseFloat(d.PriceAvg, 64)
	return swapper.OrderResult{OrderID: orderID, Status: bitgetStatus(d.Status), FilledAmount: filled, AvgPrice: avg}, nil
}

func (b *Bitget) CancelOrder(ctx context.Context, symbol, orderID string) error {
	venueSym := b.markets.nativeSymbol(symbol)
	_, err := b.doRequest(ctx, http.MethodPost, "/api/v2/spot/trade/cancel-order", map[string]string{"symbol": venueSym, "orderId": orderID}, true)
	return err
}

func (b *Bitget) Market(symbol string) (models.Market, bool) { return b.markets.get(symbol) }

func (b *Bitget) AmountToPrecision(symbol string, amount float64) float64 {
	m, _ := b.markets.get(symbol)
	return roundToStep(amount, m.AmountStep, m.AmountPrecision)
}

func (b *Bitget) PriceToPrecision(symbol string, price float64) float64 {
	m, _ := b.markets.get(symbol)
	return roundToStep(price, m.PriceStep, m.PricePrecision)
}

func (b *Bitget) CurrencyToPrecision(ccy models.Currency, amount float64) float64 {
	return roundToStep(amount, 0, 8)
}

// WatchOrderBook subscribes to Bitget v2's "books15" public depth channel
// per symbol (spec §4.6).
func (b *Bitget) WatchOrderBook(ctx context.Context, symbols []string, onUpdate func(symbol string, book models.OrderBook)) error {
	if b.wsManager == nil {
		b.wsManager = NewWSReconnectManager("bitget", bitgetWSPublic, DefaultWSReconnectConfig())
	}
	instOf := make(map[string]string, len(symbols))
	args := make([]map[string]string, 0, len(symbols))
	for _, sym := range symbols {
		native := b.markets.nativeSymbol(sym)
		instOf[native] = sym
		args = append(args, map[string]string{"instType": "SPOT", "channel": "books15", "instId": native})
	}
	b.wsManager.SetOnMessage(func(raw []byte) {
		var msg struct {
			Arg struct {
				InstId string `json:"instId"`
			} `json:"arg"`
			Data []struct {
				Bids [][2]string `json:"bids"`
				Asks [][2]string `json:"asks"`
			} `json:"data"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil || len(msg.Data) == 0 {
			return
		}
		sym, ok := instOf[msg.Arg.InstId]
		if !ok {
			return
		}
		d := msg.Data[0]
		onUpdate(sym, models.OrderBook{Symbol: sym, Bids: parseLevels(d.Bids), Asks: parseLevels(d.Asks), Timestamp: unixMillis(time.Now())})
	})
	b.wsManager.AddSubscription(map[string]interface{}{"op": "subscribe", "args": args})
	return b.wsManager.Connect()
}

func (b *Bitget) Close() error {
	if b.wsManager != nil {
		return b.wsManager.Close()
	}
	return nil
}

func bitgetStatus(s string) string {
	switch s {
	case "filled":
		return "closed"
	case "partially_filled":
		return "partially_filled"
	case "cancelled":
		return "canceled"
	default:
		return "open"
	}
}
