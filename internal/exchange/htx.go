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

	"github.com/svyatogor45/radar-arb/internal/models"
	"github.com/svyatogor45/radar-arb/internal/swapper"
	"github.com/svyatogor45/radar-arb/pkg/ratelimit"
	"github.com/svyatogor45/radar-arb/pkg/retry"
)

const htxBaseURL = "https://api.huobi.pro"
const htxHost = "api.huobi.pro"
const htxWSPublic = "wss://api.huobi.pro/ws"

// HTX implements Adapter for HTX's (formerly Huobi) spot API.
type HTX struct {
	creds      Credentials
	httpClient *http.Client
	markets    marketCache
	wsManager  *WSReconnectManager
	accountID  string
	limiter    *ratelimit.RateLimiter
}

func NewHTX(creds Credentials) *HTX {
	return &HTX{creds: creds, httpClient: GetGlobalHTTPClient().GetClient(), limiter: newVenueLimiter("htx")}
}

func (h *HTX) Name() string { return "htx" }

func (h *HTX) Quirks() Quirks {
	return Quirks{MarketBuyUsesQuoteCost: true, RequiresPassphrase: false, DefaultOrderType: "market"}
}

// MarketBuyUsesQuoteCost lets internal/swapper consult this quirk without
// importing the exchange package (spec §4.1).
func (h *HTX) MarketBuyUsesQuoteCost() bool { return h.Quirks().MarketBuyUsesQuoteCost }

func (h *HTX) Capabilities() Capabilities {
	return Capabilities{FetchTickersBatch: true, PartialBookWS: true}
}

func (h *HTX) sign(method, host, path string, params url.Values) string {
	signStr := fmt.Sprintf("%s\n%s\n%s\n%s", method, host, path, params.Encode())
	mac := hmac.New(sha256.New, []byte(h.creds.APISecret))
	mac.Write([]byte(signStr))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (h *HTX) doRequest(ctx context.Context, method, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	var reqBody string
	reqURL := htxBaseURL + endpoint
	query := url.Values{}

	if signed {
		timestamp := time.Now().UTC().Format("2006-01-02T15:04:05")
		query.Set("AccessKeyId", h.creds.APIKey)
		query.Set("SignatureMethod", "HmacSHA256")
		query.Set("SignatureVersion", "2")
		query.Set("Timestamp", timestamp)
	}

	if method == http.MethodGet {
		for k, v := range params {
			query.Set(k, v)
		}
		if signed {
			signature := h.sign(method, htxHost, endpoint, query)
			query.Set("Signature", signature)
		}
		if len(query) > 0 {
			reqURL += "?" + query.Encode()
		}
	} else {
		if signed {
			signature := h.sign(method, htxHost, endpoint, query)
			query.Set("Signature", signature)
			reqURL += "?" + query.Encode()
		}
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

	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body []byte
	err = retry.Do(ctx, func() error {
		resp, err := h.httpClient.Do(req)
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
		Status    string `json:"status"`
		ErrCode   string `json:"err-code"`
		ErrMsg    string `json:"err-msg"`
	}
	if err := json.Unmarshal(body, &baseResp); err == nil && baseResp.Status == "error" {
		return nil, &ExchangeError{Exchange: "htx", Code: baseResp.ErrCode, Message: baseResp.ErrMsg}
	}
	return body, nil
}

func (h *HTX) ensureAccountID(ctx context.Context) (string, error) {
	if h.accountID != "" {
		return h.accountID, nil
	}
	body, err := h.doRequest(ctx, http.MethodGet, "/v1/account/accounts", nil, true)
	if err != nil {
		return "", err
	}
	var resp struct {
		Data []struct {
			ID   int64  `json:"id"`
			Type string `json:"type"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	for _, a := range resp.Data {
		if a.Type == "spot" {
			h.accountID = strconv.FormatInt(a.ID, 10)
			return h.accountID, nil
		}
	}
	return "", fmt.Errorf("htx: no spot account found")
}

func (h *HTX) LoadMarkets(ctx context.Context) (map[string]models.Market, error) {
	body, err := h.doRequest(ctx, http.MethodGet, "/v1/common/symbols", nil, false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []struct {
			Symbol         string  `json:"symbol"`
			BaseCurrency   string  `json:"base-currency"`
			QuoteCurrency  string  `json:"quote-currency"`
			State          string  `json:"state"`
			MinOrderAmt    float64 `json:"min-order-amt"`
			MinOrderValue  float64 `json:"min-order-value"`
			AmountPrecision int    `json:"amount-precision"`
			PricePrecision  int    `json:"price-precision"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]models.Market, len(resp.Data))
	for _, it := range resp.Data {
		sym := string(models.Canon(it.BaseCurrency)) + "/" + string(models.Canon(it.QuoteCurrency))
		out[sym] = models.Market{
			Symbol: it.Symbol, Base: models.Canon(it.BaseCurrency), Quote: models.Canon(it.QuoteCurrency),
			Active: it.State == "online", MinAmount: it.MinOrderAmt, MinCost: it.MinOrderValue,
			AmountPrecision: it.AmountPrecision, PricePrecision: it.PricePrecision, TakerFee: 0.002,
		}
	}
	h.markets.set(out)
	return out, nil
}

func (h *HTX) FetchTickers(ctx context.Context) (map[string]models.Ticker, error) {
	body, err := h.doRequest(ctx, http.MethodGet, "/market/tickers", nil, false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []struct {
			Symbol string  `json:"symbol"`
			Bid    float64 `json:"bid"`
			Ask    float64 `json:"ask"`
			Close  float64 `json:"close"`
			Vol    float64 `json:"vol"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]models.Ticker, len(resp.Data))
	now := unixMillis(time.Now())
	for _, it := range resp.Data {
		pair := h.markets.canonical(it.Symbol)
		out[pair] = models.Ticker{Symbol: pair, Bid: it.Bid, Ask: it.Ask, Last: it.Close, QuoteVolume: it.Vol, Timestamp: now}
	}
	return out, nil
}

func (h *HTX) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	venueSym := h.markets.nativeSymbol(symbol)
	body, err := h.doRequest(ctx, http.MethodGet, "/market/detail/merged", map[string]string{"symbol": venueSym}, false)
	if err != nil {
		return models.Ticker{}, err
	}
	var resp struct {
		Tick struct {
			Bid   [2]float64 `json:"bid"`
			Ask   [2]float64 `json:"ask"`
			Close float64    `json:"close"`
		} `json:"tick"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.Ticker{}, err
	}
	return models.Ticker{Symbol: symbol, Bid: resp.Tick.Bid[0], Ask: resp.Tick.Ask[0], Last: resp.Tick.Close, Timestamp: unixMillis(time.Now())}, nil
}

func (h *HTX) FetchOrderBook(ctx context.Context, symbol string, depth int) (models.OrderBook, error) {
	venueSym := h.markets.nativeSymbol(symbol)
	step := "step0"
	body, err := h.doRequest(ctx, http.MethodGet, "/market/depth", map[string]string{"symbol": venueSym, "type": step}, false)
	if err != nil {
		return models.OrderBook{}, err
	}
	var resp struct {
		Tick struct {
			Bids [][2]float64 `json:"bids"`
			Asks [][2]float64 `json:"asks"`
		} `json:"tick"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.OrderBook{}, err
	}
	limit := depth
	if limit <= 0 || limit > len(resp.Tick.Bids) {
		limit = len(resp.Tick.Bids)
	}
	bids := make([]models.PriceLevel, 0, limit)
	for i := 0; i < limit && i < len(resp.Tick.Bids); i++ {
		bids = append(bids, models.PriceLevel{Price: resp.Tick.Bids[i][0], Amount: resp.Tick.Bids[i][1]})
	}
	limitA := depth
	if limitA <= 0 || limitA > len(resp.Tick.Asks) {
		limitA = len(resp.Tick.Asks)
	}
	asks := make([]models.PriceLevel, 0, limitA)
	for i := 0; i < limitA && i < len(resp.Tick.Asks); i++ {
		asks = append(asks, models.PriceLevel{Price: resp.Tick.Asks[i][0], Amount: resp.Tick.Asks[i][1]})
	}
	return models.OrderBook{Symbol: symbol, Bids: bids, Asks: asks, Timestamp: unixMillis(time.Now())}, nil
}

func (h *HTX) FetchBalance(ctx context.Context, currency models.Currency) (float64, error) {
	all, err := h.FetchBalanceAll(ctx, BalanceFree)
	if err != nil {
		return 0, err
	}
	return all[currency], nil
}

func (h *HTX) FetchBalanceAll(ctx context.Context, kind BalanceKind) (map[models.Currency]float64, error) {
	accountID, err := h.ensureAccountID(ctx)
	if err != nil {
		return nil, err
	}
	body, err := h.doRequest(ctx, http.MethodGet, "/v1/account/accounts/"+accountID+"/balance", nil, true)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data struct {
			List []struct {
				Currency string `json:"currency"`
				Type     string `json:"type"`
				Balance  string `json:"balance"`
			} `json:"list"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := map[models.Currency]float64{}
	for _, b := range resp.Data.List {
		want := "trade"
		if kind == BalanceTotal {
			want = ""
		}
		if want != "" && b.Type != want {
			continue
		}
		amt, _ := strconv.ParseFloat(b.Balance, 64)
		ccy := models.Canon(b.Currency)
		out[ccy] += amt
	}
	return out, nil
}

func (h *HTX) CreateOrder(ctx context.Context, req swapper.OrderRequest) (swapper.OrderResult, error) {
	accountID, err := h.ensureAccountID(ctx)
	if err != nil {
		return swapper.OrderResult{}, err
	}
	venueSym := h.markets.nativeSymbol(req.Symbol)
	orderType := req.Side + "-" + string(req.Type)
	params := map[string]string{
		"account-id": accountID,
		"symbol":     venueSym,
		"type":       orderType,
		"source":     "spot-api",
	}
	if req.Type == swapper.OrderTypeLimit {
		params["price"] = trimFloat(req.Price)
		params["amount"] = trimFloat(req.Amount)
	} else {
		params["amount"] = trimFloat(req.Amount)
	}

	body, err := h.doRequest(ctx, http.MethodPost, "/v1/order/orders/place", params, true)
	if err != nil {
		if IsInsufficientFunds(err) {
			return swapper.OrderResult{InsufficientFunds: true}, err
		}
		return swapper.OrderResult{}, err
	}
	var resp struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return swapper.OrderResult{}, err
	}
	return h.FetchOrder(ctx, req.Symbol, resp.Data)
}

func (h *HTX) FetchOrder(ctx context.Context, symbol, orderID string) (swapper.OrderResult, error) {
	body, err := h.doRequest(ctx, http.MethodGet, "/v1/order/orders/"+orderID, nil, true)
	if err != nil {
		return swapper.OrderResult{}, err
	}
	var resp struct {
		Data struct {
			State       string `json:"state"`
			FieldAmount string `json:"field-amount"`
			FieldCashAmount string `json:"field-cash-amount"`
			FieldFees   string `json:"field-fees"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return swapper.OrderResult{}, err
	}
	filled, _ := strconv.ParseFloat(resp.Data.FieldAmount, 64)
	cash, _ := strconv.ParseFloat(resp.Data.FieldCashAmount, 64)
	fee, _ := strconv.ParseFloat(resp.Data.FieldFees, 64)
	avg := 0.0
	if filled > 0 {
		avg = cash / filled
	}
	return swapper.OrderResult{OrderID: orderID, Status: htxStatus(resp.Data.State), FilledAmount: filled, AvgPrice: avg, Fee: -fee}, nil
}

func (h *HTX) CancelOrder(ctx context.Context, symbol, orderID string) error {
	_, err := h.doRequest(ctx, http.MethodPost, "/v1/order/orders/"+orderID+"/submitcancel", nil, true)
	return err
}

func (h *HTX) Market(symbol string) (models.Market, bool) { return h.markets.get(symbol) }

func (h *HTX) AmountToPrecision(symbol string, amount float64) float64 {
	m, _ := h.markets.get(symbol)
	return roundToStep(amount, m.AmountStep, m.AmountPrecision)
}

func (h *HTX) PriceToPrecision(symbol string, price float64) float64 {
	m, _ := h.markets.get(symbol)
	return roundToStep(price, m.PriceStep, m.PricePrecision)
}

func (h *HTX) CurrencyToPrecision(ccy models.Currency, amount float64) float64 {
	return roundToStep(amount, 0, 8)
}

// WatchOrderBook subscribes to HTX's "market.<symbol>.depth.step0" public
// channel per symbol (spec §4.6). HTX's WS payloads are gzip-compressed
// and require an application-level pong on every ping to stay subscribed.
func (h *HTX) WatchOrderBook(ctx context.Context, symbols []string, onUpdate func(symbol string, book models.OrderBook)) error {
	if h.wsManager == nil {
		h.wsManager = NewWSReconnectManager("htx", htxWSPublic, DefaultWSReconnectConfig())
	}
	topicOf := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		native := strings.ToLower(h.markets.nativeSymbol(sym))
		topic := "market." + native + ".depth.step0"
		topicOf[topic] = sym
		h.wsManager.AddSubscription(map[string]interface{}{"sub": topic, "id": topic})
	}
	h.wsManager.SetOnMessage(func(raw []byte) {
		body, err := gunzipWS(raw)
		if err != nil {
			return
		}
		var msg struct {
			Ping int64  `json:"ping"`
			Ch   string `json:"ch"`
			Tick struct {
				Bids [][2]float64 `json:"bids"`
				Asks [][2]float64 `json:"asks"`
			} `json:"tick"`
		}
		if err := json.Unmarshal(body, &msg); err != nil {
			return
		}
		if msg.Ping != 0 {
			h.wsManager.Send(map[string]int64{"pong": msg.Ping})
			return
		}
		sym, ok := topicOf[msg.Ch]
		if !ok {
			return
		}
		onUpdate(sym, models.OrderBook{Symbol: sym, Bids: htxLevels(msg.Tick.Bids), Asks: htxLevels(msg.Tick.Asks), Timestamp: unixMillis(time.Now())})
	})
	return h.wsManager.Connect()
}

func htxLevels(rows [][2]float64) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.PriceLevel{Price: r[0], Amount: r[1]})
	}
	return out
}

func (h *HTX) Close() error {
	if h.wsManager != nil {
		return h.wsManager.Close()
	}
	return nil
}

func htxStatus(s string) string {
	switch s {
	case "filled":
		return "closed"
	case "partial-filled":
		return "partially_filled"
	case "canceled", "partial-canceled":
		return "canceled"
	default:
		return "open"
	}
}
