// Package exchange implements the authenticated Binance REST client used by
// the sync engine.
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/portfolio-tracker/internal/errors"
)

const (
	pathExchangeInfo = "/api/v3/exchangeInfo"
	pathAccount      = "/api/v3/account"
	pathMyTrades     = "/api/v3/myTrades"
	pathDeposits     = "/sapi/v1/capital/deposit/hisrec"
	pathWithdrawals  = "/sapi/v1/capital/withdraw/history"

	// MaxPageSize is the hard cap Binance enforces on history endpoints.
	MaxPageSize = 1000
)

// Config configures the client.
type Config struct {
	BaseURL           string
	RecvWindow        time.Duration
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client issues timestamped, HMAC-SHA256-signed GET requests against the
// exchange. Errors are propagated, not retried; retry policy belongs to the
// caller.
type Client struct {
	baseURL    string
	recvWindow time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewClient creates a Binance REST client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	recvWindow := cfg.RecvWindow
	if recvWindow == 0 {
		recvWindow = 60 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    baseURL,
		recvWindow: recvWindow,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		now:        time.Now,
	}
}

// ExchangeSymbols fetches the public catalog of tradable pairs.
func (c *Client) ExchangeSymbols(ctx context.Context) ([]SymbolInfo, error) {
	body, err := c.get(ctx, pathExchangeInfo, url.Values{}, "")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Symbols []SymbolInfo `json:"symbols"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.NewExchangeResponseError(err)
	}
	return payload.Symbols, nil
}

// AccountBalances fetches the authenticated holdings snapshot.
func (c *Client) AccountBalances(ctx context.Context, creds Credentials) ([]Balance, error) {
	body, err := c.signedGet(ctx, pathAccount, creds, url.Values{})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Balances []Balance `json:"balances"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.NewExchangeResponseError(err)
	}
	return payload.Balances, nil
}

// Trades fetches one page of fills for a symbol, paged either by trade-id
// lower bound or start-time lower bound.
func (c *Client) Trades(ctx context.Context, creds Credentials, symbol string, page TradePage) ([]Trade, error) {
	limit := page.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))
	if page.FromID != nil {
		params.Set("fromId", strconv.FormatInt(*page.FromID, 10))
	} else if page.StartTime != nil {
		params.Set("startTime", strconv.FormatInt(*page.StartTime, 10))
	}

	body, err := c.signedGet(ctx, pathMyTrades, creds, params)
	if err != nil {
		return nil, err
	}

	var trades []Trade
	if err := json.Unmarshal(body, &trades); err != nil {
		return nil, apperrors.NewExchangeResponseError(err)
	}
	return trades, nil
}

// Deposits fetches deposit history starting at startTime (milliseconds,
// exclusive lower bounds are the caller's concern).
func (c *Client) Deposits(ctx context.Context, creds Credentials, startTime int64) ([]Deposit, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(MaxPageSize))
	if startTime > 0 {
		params.Set("startTime", strconv.FormatInt(startTime, 10))
	}

	body, err := c.signedGet(ctx, pathDeposits, creds, params)
	if err != nil {
		return nil, err
	}

	raws, err := splitRawArray(body)
	if err != nil {
		return nil, apperrors.NewExchangeResponseError(err)
	}

	deposits := make([]Deposit, 0, len(raws))
	for _, raw := range raws {
		var d Deposit
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, apperrors.NewExchangeResponseError(err)
		}
		d.Raw = raw
		deposits = append(deposits, d)
	}
	return deposits, nil
}

// Withdrawals fetches withdrawal history starting at startTime (milliseconds).
func (c *Client) Withdrawals(ctx context.Context, creds Credentials, startTime int64) ([]Withdrawal, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(MaxPageSize))
	if startTime > 0 {
		params.Set("startTime", strconv.FormatInt(startTime, 10))
	}

	body, err := c.signedGet(ctx, pathWithdrawals, creds, params)
	if err != nil {
		return nil, err
	}

	raws, err := splitRawArray(body)
	if err != nil {
		return nil, apperrors.NewExchangeResponseError(err)
	}

	withdrawals := make([]Withdrawal, 0, len(raws))
	for _, raw := range raws {
		var w Withdrawal
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, apperrors.NewExchangeResponseError(err)
		}
		w.Raw = raw
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, nil
}

// signedGet merges params with timestamp and recvWindow, signs the canonical
// query string with HMAC-SHA256 over the API secret, and sends the request
// with the API key header.
func (c *Client) signedGet(ctx context.Context, path string, creds Credentials, params url.Values) ([]byte, error) {
	if creds.Key == "" || creds.Secret == "" {
		return nil, apperrors.NewCredentialError("API key and secret are required")
	}

	params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
	params.Set("timestamp", strconv.FormatInt(c.now().UTC().UnixMilli(), 10))

	payload := params.Encode()
	mac := hmac.New(sha256.New, []byte(creds.Secret))
	mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))

	return c.get(ctx, path+"?"+payload+"&signature="+signature, nil, creds.Key)
}

// get issues a GET request. When rawQuery was already assembled (signed
// requests) params is nil and path carries the query string.
func (c *Client) get(ctx context.Context, path string, params url.Values, apiKey string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := c.baseURL + path
	if params != nil && len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewExchangeTransportError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewExchangeTransportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.NewExchangeAPIError(resp.StatusCode, string(body))
	}

	return body, nil
}

// splitRawArray decodes a JSON array into its raw elements so typed decoding
// can keep the original payload alongside.
func splitRawArray(body []byte) ([]json.RawMessage, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, err
	}
	return raws, nil
}
