package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/svyatogor45/radar-arb/internal/models"
	"github.com/svyatogor45/radar-arb/internal/swapper"
	"github.com/svyatogor45/radar-arb/pkg/ratelimit"
	"github.com/svyatogor45/radar-arb/pkg/retry"
)

const okxBaseURL = "https://www.okx.com"
const okxWSPublic = "wss://ws.okx.com:8443/ws/v5/public"

// OKX implements Adapter for OKX's v5 spot API.
type OKX struct {
	creds      Credentials
	httpClient *http.Client
	markets    marketCache
	wsManager  *WSReconnectManager
	limiter    *ratelimit.RateLimiter
}

func NewOKX(creds Credentials) *OKX {
	return &OKX{creds: creds, httpClient: GetGlobalHTTPClient().GetClient(), limiter: newVenueLimiter("okx")}
}

func (o *OKX) Name() string { return "okx" }

func (o *OKX) Quirks() Quirks {
	return Quirks{MarketBuyUsesQuoteCost: false, RequiresPassphrase: true, DefaultOrderType: "market"}
}

// MarketBuyUsesQuoteCost lets internal/swapper consult this quirk without
// importing the exchange package (spec §4.1).
func (o *OKX) MarketBuyUsesQuoteCost() bool { return o.Quirks().MarketBuyUsesQuoteCost }

func (o *OKX) Capabilities() Capabilities {
	return Capabilities{FetchTickersBatch: true, PartialBookWS: true}
}

func (o *OKX) sign(timestamp, method, requestPath, body string) string {
	message := timestamp + method + requestPath + body
	h := hmac.New(sha256.New, []byte(o.creds.APISecret))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (o *OKX) doRequest(ctx context.Context, method, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	var reqBody, reqURL, signPath string
	if method == http.MethodGet {
		reqURL = okxBaseURL + endpoint
		signPath = endpoint
		if len(params) > 0 {
			query := make([]string, 0, len(params))
			for k, v := range params {
				query = append(query, k+"="+v)
			}
			qs := strings.Join(query, "&")
			reqURL += "?" + qs
			signPath += "?" + qs
		}
	} else {
		reqURL = okxBaseURL + endpoint
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

	if signed {
		timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
		signature := o.sign(timestamp, method, signPath, reqBody)
		req.Header.Set("OK-ACCESS-KEY", o.creds.APIKey)
		req.Header.Set("OK-ACCESS-SIGN", signature)
		req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("OK-ACCESS-PASSPHRASE", o.creds.Passphrase)
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var body []byte
	err = retry.Do(ctx, func() error {
		resp, doErr := o.httpClient.Do(req)
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
	if baseResp.Code != "0" {
		return nil, &ExchangeError{Exchange: "okx", Code: baseResp.Code, Message: baseResp.Msg}
	}
	return body, nil
}

func (o *OKX) LoadMarkets(ctx context.Context) (map[string]models.Market, error) {
	body, err := o.doRequest(ctx, http.MethodGet, "/api/v5/public/instruments", map[string]string{"instType": "SPOT"}, false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []struct {
			InstId  string `json:"instId"`
			BaseCcy string `json:"baseCcy"`
			QuoteCcy string `json:"quoteCcy"`
			State   string `json:"state"`
			MinSz   string `json:"minSz"`
			LotSz   string `json:"lotSz"`
			TickSz  string `json:"tickSz"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]models.Market, len(resp.Data))
	for _, it := range resp.Data {
		sym := string(models.Canon(it.BaseCcy)) + "/" + string(models.Canon(it.QuoteCcy))
		minAmt, _ := strconv.ParseFloat(it.MinSz, 64)
		lot, _ := strconv.ParseFloat(it.LotSz, 64)
		tick, _ := strconv.ParseFloat(it.TickSz, 64)
		out[sym] = models.Market{
			Symbol: it.InstId, Base: models.Canon(it.BaseCcy), Quote: models.Canon(it.QuoteCcy),
			Active: it.State == "live", MinAmount: minAmt, MinCost: 1,
			AmountStep: lot, PriceStep: tick, TakerFee: 0.001,
		}
	}
	o.markets.set(out)
	return out, nil
}

func (o *OKX) FetchTickers(ctx context.Context) (map[string]models.Ticker, error) {
	body, err := o.doRequest(ctx, http.MethodGet, "/api/v5/market/tickers", map[string]string{"instType": "SPOT"}, false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []struct {
			InstId  string `json:"instId"`
			BidPx   string `json:"bidPx"`
			AskPx   string `json:"askPx"`
			Last    string `json:"last"`
			VolCcy24h string `json:"volCcy24h"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]models.Ticker, len(resp.Data))
	now := unixMillis(time.Now())
	for _, it := range resp.Data {
		pair := o.markets.canonical(it.InstId)
		bid, _ := strconv.ParseFloat(it.BidPx, 64)
		ask, _ := strconv.ParseFloat(it.AskPx, 64)
		last, _ := strconv.ParseFloat(it.Last, 64)
		qv, _ := strconv.ParseFloat(it.VolCcy24h, 64)
		out[pair] = models.Ticker{Symbol: pair, Bid: bid, Ask: ask, Last: last, QuoteVolume: qv, Timestamp: now}
	}
	return out, nil
}

func (o *OKX) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	instId := o.markets.nativeSymbol(symbol)
	body, err := o.doRequest(ctx, http.MethodGet, "/api/v5/market/ticker", map[string]string{"instId": instId}, false)
	if err != nil {
		return models.Ticker{}, err
	}
	var resp struct {
		Data []struct {
			BidPx string `json:"bidPx"`
			AskPx string `json:"askPx"`
			Last  string `json:"last"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.Ticker{}, err
	}
	if len(resp.Data) == 0 {
		return models.Ticker{}, fmt.Errorf("okx: ticker %s not found", symbol)
	}
	bid, _ := strconv.ParseFloat(resp.Data[0].BidPx, 64)
	ask, _ := strconv.ParseFloat(resp.Data[0].AskPx, 64)
	last, _ := strconv.ParseFloat(resp.Data[0].Last, 64)
	return models.Ticker{Symbol: symbol, Bid: bid, Ask: ask, Last: last, Timestamp: unixMillis(time.Now())}, nil
}

func (o *OKX) FetchOrderBook(ctx context.Context, symbol string, depth int) (models.OrderBook, error) {
	instId := o.markets.nativeSymbol(symbol)
	body, err := o.doRequest(ctx, http.MethodGet, "/api/v5/market/books", map[string]string{"instId": instId, "sz": strconv.Itoa(depth)}, false)
	if err != nil {
		return models.OrderBook{}, err
	}
	var resp struct {
		Data []struct {
			Bids [][4]string `json:"bids"`
			Asks [][4]string `json:"asks"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.OrderBook{}, err
	}
	if len(resp.Data) == 0 {
		return models.OrderBook{}, fmt.Errorf("okx: book %s not found", symbol)
	}
	toRows := func(rows [][4]string) [][2]string {
		out := make([][2]string, len(rows))
		for i, r := range rows {
			out[i] = [2]string{r[0], r[1]}
		}
		return out
	}
	return models.OrderBook{
		Symbol: symbol, Bids: parseLevels(toRows(resp.Data[0].Bids)), Asks: parseLevels(toRows(resp.Data[0].Asks)),
		Timestamp: unixMillis(time.Now()),
	}, nil
}

func (o *OKX) FetchBalance(ctx context.Context, currency models.Currency) (float64, error) {
	all, err := o.FetchBalanceAll(ctx, BalanceFree)
	if err != nil {
		return 0, err
	}
	return all[currency], nil
}

func (o *OKX) FetchBalanceAll(ctx context.Context, kind BalanceKind) (map[models.Currency]float64, error) {
	body, err := o.doRequest(ctx, http.MethodGet, "/api/v5/account/balance", nil, true)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []struct {
			Details []struct {
				Ccy     string `json:"ccy"`
				AvailBal string `json:"availBal"`
				Eq       string `json:"eq"`
			} `json:"details"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := map[models.Currency]float64{}
	if len(resp.Data) == 0 {
		return out, nil
	}
	for _, d := range resp.Data[0].Details {
		v := d.Eq
		if kind == BalanceFree {
			v = d.AvailBal
		}
		amt, _ := strconv.ParseFloat(v, 64)
		out[models.Canon(d.Ccy)] = amt
	}
	return out, nil
}

func (o *OKX) CreateOrder(ctx context.Context, req swapper.OrderRequest) (swapper.OrderResult, error) {
	instId := o.markets.nativeSymbol(req.Symbol)
	params := map[string]string{
		"instId":  instId,
		"tdMode":  "cash",
		"side":    req.Side,
		"ordType": string(req.Type),
		"sz":      trimFloat(req.Amount),
		"clOrdId": strings.ReplaceAll(uuid.NewString(), "-", "")[:32],
	}
	if req.Type == swapper.OrderTypeLimit {
		params["px"] = trimFloat(req.Price)
	}
	if req.QuoteCost {
		params["tgtCcy"] = "quote_ccy"
	} else {
		params["tgtCcy"] = "base_ccy"
	}

	body, err := o.doRequest(ctx, http.MethodPost, "/api/v5/trade/order", params, true)
	if err != nil {
		if IsInsufficientFunds(err) {
			return swapper.OrderResult{InsufficientFunds: true}, err
		}
		return swapper.OrderResult{}, err
	}
	var resp struct {
		Data []struct {
			OrdId string `json:"ordId"`
			SCode string `json:"sCode"`
			SMsg  string `json:"sMsg"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return swapper.OrderResult{}, err
	}
	if len(resp.Data) == 0 || resp.Data[0].SCode != "0" {
		msg := "unknown error"
		if len(resp.Data) > 0 {
			msg = resp.Data[0].SMsg
		}
		err := fmt.Errorf("okx: order rejected: %s", msg)
		if IsInsufficientFunds(err) {
			return swapper.OrderResult{InsufficientFunds: true}, err
		}
		return swapper.OrderResult{}, err
	}
	return o.FetchOrder(ctx, req.Symbol, resp.Data[0].OrdId)
}

func (o *OKX) FetchOrder(ctx context.Context, symbol, orderID string) (swapper.OrderResult, error) {
	instId := o.markets.nativeSymbol(symbol)
	body, err := o.doRequest(ctx, http.MethodGet, "/api/v5/trade/order", map[string]string{"instId": instId, "ordId": orderID}, true)
	if err != nil {
		return swapper.OrderResult{}, err
	}
	var resp struct {
		Data []struct {
			State     string `json:"state"`
			AccFillSz string `json:"accFillSz"`
			AvgPx     string `json:"avgPx"`
			Fee       string `json:"fee"`
			FeeCcy    string `json:"feeCcy"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return swapper.OrderResult{}, err
	}
	if len(resp.Data) == 0 {
		return swapper.OrderResult{OrderID: orderID, Status: "open"}, nil
	}
	d := resp.Data[0]
	filled, _ := strconv.ParseFloat(d.AccFillSz, 64)
	avg, _ := strconv.ParseFloat(d.AvgPx, 64)
	fee, _ := strconv.ParseFloat(d.Fee, 64)
	return swapper.OrderResult{
		OrderID: orderID, Status: okxStatus(d.State), FilledAmount: filled, AvgPrice: avg,
		Fee: -fee, FeeCcy: models.Canon(d.FeeCcy),
	}, nil
}

func (o *OKX) CancelOrder(ctx context.Context, symbol, orderID string) error {
	instId := o.markets.nativeSymbol(symbol)
	_, err := o.doRequest(ctx, http.MethodPost, "/api/v5/trade/cancel-order", map[string]string{"instId": instId, "ordId": orderID}, true)
	return err
}

func (o *OKX) Market(symbol string) (models.Market, bool) { return o.markets.get(symbol) }

func (o *OKX) AmountToPrecision(symbol string, amount float64) float64 {
	m, _ := o.markets.get(symbol)
	return roundToStep(amount, m.AmountStep, m.AmountPrecision)
}

func (o *OKX) PriceToPrecision(symbol string, price float64) float64 {
	m, _ := o.markets.get(symbol)
	return roundToStep(price, m.PriceStep, m.PricePrecision)
}

func (o *OKX) CurrencyToPrecision(ccy models.Currency, amount float64) float64 {
	return roundToStep(amount, 0, 8)
}

// WatchOrderBook subscribes to OKX v5's "books5" public channel per
// instId (spec §4.6).
func (o *OKX) WatchOrderBook(ctx context.Context, symbols []string, onUpdate func(symbol string, book models.OrderBook)) error {
	if o.wsManager == nil {
		o.wsManager = NewWSReconnectManager("okx", okxWSPublic, DefaultWSReconnectConfig())
	}
	instOf := make(map[string]string, len(symbols))
	args := make([]map[string]string, 0, len(symbols))
	for _, sym := range symbols {
		native := o.markets.nativeSymbol(sym)
		instOf[native] = sym
		args = append(args, map[string]string{"channel": "books5", "instId": native})
	}
	o.wsManager.SetOnMessage(func(raw []byte) {
		var msg struct {
			Arg struct {
				InstId string `json:"instId"`
			} `json:"arg"`
			Data []struct {
				Bids [][4]string `json:"bids"`
				Asks [][4]string `json:"asks"`
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
		bids := make([][2]string, len(d.Bids))
		for i, r := range d.Bids {
			bids[i] = [2]string{r[0], r[1]}
		}
		asks := make([][2]string, len(d.Asks))
		for i, r := range d.Asks {
			asks[i] = [2]string{r[0], r[1]}
		}
		onUpdate(sym, models.OrderBook{Symbol: sym, Bids: parseLevels(bids), Asks: parseLevels(asks), Timestamp: unixMillis(time.Now())})
	})
	o.wsManager.AddSubscription(map[string]interface{}{"op": "subscribe", "args": args})
	return o.wsManager.Connect()
}

func (o *OKX) Close() error {
	if o.wsManager != nil {
		return o.wsManager.Close()
	}
	return nil
}

func okxStatus(s string) string {
	switch s {
	case "filled":
		return "closed"
	case "partially_filled":
		return "partially_filled"
	case "canceled":
		return "canceled"
	default:
		return "open"
	}
}
