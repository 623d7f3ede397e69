package bitkub

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"bitkub-trade-bot-go/internal/config"
	"bitkub-trade-bot-go/internal/tracing"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	baseURL    = "https://api.bitkub.com"
	maxRetries = 3

	pathServerTime   = "/api/v3/servertime"
	pathStatus       = "/api/status"
	pathTicker       = "/api/market/ticker"
	pathWallet       = "/api/v3/market/wallet"
	pathPlaceBid     = "/api/v3/market/place-bid"
	pathPlaceAsk     = "/api/v3/market/place-ask"
	pathCancelOrder  = "/api/v3/market/cancel-order"
	pathMyOpenOrders = "/api/v3/market/my-open-orders"
)

// RestClientInterface defines the interface for the Bitkub REST API client.
type RestClientInterface interface {
	GetServerTime(ctx context.Context) (int64, error)
	GetStatus(ctx context.Context) ([]EndpointStatus, error)
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)
	GetWallet(ctx context.Context) (map[string]float64, error)
	PlaceBid(ctx context.Context, req OrderRequest) (*OrderResult, error)
	PlaceAsk(ctx context.Context, req OrderRequest) (*OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID, side string) error
	GetMyOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)
}

// RestClient is a client for the Bitkub REST API.
// It implements the RestClientInterface.
type RestClient struct {
	client    *resty.Client
	apiKey    string
	secretKey string
	logger    *zap.Logger
	limiter   Limiter
	retryMin  time.Duration

	// offset is server time minus local time, in milliseconds.
	offset atomic.Int64
	now    func() time.Time
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new Bitkub REST API client.
func NewRestClient(cfg *config.Bitkub, logger *zap.Logger) *RestClient {
	base := cfg.BaseURL
	if base == "" {
		base = baseURL
	}

	client := resty.New().
		SetBaseURL(base).
		SetTimeout(time.Duration(cfg.Timeout) * time.Second).
		SetHeader("Accept", "application/json")

	return &RestClient{
		client:    client,
		apiKey:    cfg.ApiKey,
		secretKey: cfg.SecretKey,
		logger:    logger.Named("bitkub"),
		limiter:   NewLimiter(cfg),
		retryMin:  time.Second,
		now:       time.Now,
	}
}

// CreateSignature signs timestamp+method+path+body with the API secret and
// returns the hex-encoded HMAC-SHA256. The parts are joined without separators.
func (c *RestClient) CreateSignature(timestamp, method, path, body string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(timestamp + method + path + body))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *RestClient) timestamp() string {
	return strconv.FormatInt(c.now().UnixMilli()+c.offset.Load(), 10)
}

// GetServerTime fetches the exchange clock in unix milliseconds.
func (c *RestClient) GetServerTime(ctx context.Context) (int64, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, pathServerTime, c.publicRequest, nil, true)
	if err != nil {
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}

	ms, err := strconv.ParseInt(strings.TrimSpace(resp.String()), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse server time %q: %w", resp.String(), err)
	}
	return ms, nil
}

// SyncTime aligns request timestamps with the exchange clock. When the
// server time cannot be fetched the local clock is used as-is.
func (c *RestClient) SyncTime(ctx context.Context) {
	serverMs, err := c.GetServerTime(ctx)
	if err != nil {
		c.offset.Store(0)
		c.logger.Warn("Falling back to local clock for request timestamps", zap.Error(err))
		return
	}
	offset := serverMs - c.now().UnixMilli()
	c.offset.Store(offset)
	c.logger.Debug("Synchronized with server time", zap.Int64("offset_ms", offset))
}

// GetStatus returns the health of the exchange endpoint groups.
func (c *RestClient) GetStatus(ctx context.Context) ([]EndpointStatus, error) {
	var statuses []EndpointStatus
	if _, err := c.doRequest(ctx, http.MethodGet, pathStatus, c.publicRequest, &statuses, true); err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return statuses, nil
}

// GetTicker fetches the latest ticker for one market. Any symbol form is accepted.
func (c *RestClient) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	display := DisplaySymbol(symbol)
	path := pathTicker + "?sym=" + url.QueryEscape(display)

	var tickers map[string]Ticker
	if _, err := c.doRequest(ctx, http.MethodGet, path, c.publicRequest, &tickers, true); err != nil {
		return nil, fmt.Errorf("failed to get ticker for %s: %w", display, err)
	}

	t, ok := tickers[display]
	if !ok {
		return nil, &APIError{Code: CodeInvalidSymbol, Message: fmt.Sprintf("no ticker returned for %s", display)}
	}
	return &t, nil
}

// GetWallet returns the available balance of every currency.
func (c *RestClient) GetWallet(ctx context.Context) (map[string]float64, error) {
	var env envelope[map[string]float64]
	if _, err := c.doRequest(ctx, http.MethodPost, pathWallet, c.signedRequest(http.MethodPost, pathWallet, struct{}{}), &env, true); err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	if env.Error != CodeOK {
		return nil, fmt.Errorf("failed to get wallet: %w", newAPIError(env.Error))
	}
	return env.Result, nil
}

// CheckBalance returns the available balance of a single currency.
func (c *RestClient) CheckBalance(ctx context.Context, currency string) (float64, error) {
	wallet, err := c.GetWallet(ctx)
	if err != nil {
		return 0, err
	}
	return wallet[strings.ToUpper(currency)], nil
}

// PlaceBid places a buy order. req.Amount is the THB to spend.
func (c *RestClient) PlaceBid(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	return c.placeOrder(ctx, pathPlaceBid, OrderSideBuy, req)
}

// PlaceAsk places a sell order. req.Amount is the coin quantity to sell.
func (c *RestClient) PlaceAsk(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	return c.placeOrder(ctx, pathPlaceAsk, OrderSideSell, req)
}

// placeOrder sends an order exactly once; a retried order could fill twice.
func (c *RestClient) placeOrder(ctx context.Context, path, side string, req OrderRequest) (*OrderResult, error) {
	req.Symbol = NormalizeSymbol(req.Symbol)
	if req.Type == "" {
		req.Type = OrderTypeMarket
	}
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}

	l := c.logger.With(
		zap.String("symbol", req.Symbol),
		zap.String("side", side),
		zap.Float64("amount", req.Amount),
		zap.String("client_id", req.ClientID),
	)

	var env envelope[OrderResult]
	if _, err := c.doRequest(ctx, http.MethodPost, path, c.signedRequest(http.MethodPost, path, req), &env, false); err != nil {
		l.Error("Failed to place order", zap.Error(err))
		return nil, fmt.Errorf("failed to place %s order: %w", side, err)
	}
	if env.Error != CodeOK {
		apiErr := newAPIError(env.Error)
		l.Error("Order rejected by exchange", zap.Int("code", apiErr.Code), zap.String("reason", apiErr.Message))
		return nil, fmt.Errorf("failed to place %s order: %w", side, apiErr)
	}

	result := env.Result
	l.Info("Successfully placed order", zap.Any("order", result))
	return &result, nil
}

// CancelOrder cancels an open order. side is "buy" or "sell".
func (c *RestClient) CancelOrder(ctx context.Context, symbol, orderID, side string) error {
	body := struct {
		Symbol string `json:"sym"`
		ID     string `json:"id"`
		Side   string `json:"sd"`
	}{
		Symbol: NormalizeSymbol(symbol),
		ID:     orderID,
		Side:   strings.ToLower(side),
	}

	var env envelope[json.RawMessage]
	if _, err := c.doRequest(ctx, http.MethodPost, pathCancelOrder, c.signedRequest(http.MethodPost, pathCancelOrder, body), &env, false); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	if env.Error != CodeOK {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, newAPIError(env.Error))
	}
	c.logger.Info("Cancelled order", zap.String("symbol", body.Symbol), zap.String("order_id", orderID))
	return nil
}

// GetMyOpenOrders lists the account's open orders on one market.
func (c *RestClient) GetMyOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	// The query string is part of the signed path.
	path := pathMyOpenOrders + "?sym=" + url.QueryEscape(NormalizeSymbol(symbol))

	var env envelope[[]OpenOrder]
	if _, err := c.doRequest(ctx, http.MethodGet, path, c.signedRequest(http.MethodGet, path, nil), &env, true); err != nil {
		return nil, fmt.Errorf("failed to get open orders: %w", err)
	}
	if env.Error != CodeOK {
		return nil, fmt.Errorf("failed to get open orders: %w", newAPIError(env.Error))
	}
	return env.Result, nil
}

func (c *RestClient) publicRequest() (*resty.Request, error) {
	return c.client.R(), nil
}

// signedRequest returns a builder so every attempt carries a fresh timestamp.
func (c *RestClient) signedRequest(method, path string, body any) func() (*resty.Request, error) {
	return func() (*resty.Request, error) {
		var payload string
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to encode request body: %w", err)
			}
			payload = string(b)
		}

		ts := c.timestamp()
		req := c.client.R().
			SetHeader("X-BTK-APIKEY", c.apiKey).
			SetHeader("X-BTK-TIMESTAMP", ts).
			SetHeader("X-BTK-SIGN", c.CreateSignature(ts, method, path, payload)).
			SetHeader("Content-Type", "application/json")
		if body != nil {
			req.SetBody(payload)
		}
		return req, nil
	}
}

// doRequest wraps execute in a trace span.
func (c *RestClient) doRequest(ctx context.Context, method, path string, build func() (*resty.Request, error), result any, retry bool) (*resty.Response, error) {
	ctx, span := tracing.StartSpan(ctx, "bitkub.request",
		attribute.String("http.method", method),
		attribute.String("bitkub.path", path),
	)
	resp, err := c.execute(ctx, method, path, build, result, retry)
	tracing.End(span, err)
	return resp, err
}

// execute handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) execute(ctx context.Context, method, path string, build func() (*resty.Request, error), result any, retry bool) (*resty.Response, error) {
	attempts := 1
	if retry {
		attempts = maxRetries
	}
	b := &backoff.Backoff{Min: c.retryMin, Max: 8 * c.retryMin, Factor: 2, Jitter: true}

	var lastErr error
	for i := 0; i < attempts; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		req, err := build()
		if err != nil {
			return nil, err
		}
		if result != nil {
			req.SetResult(result)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("path", path))
		resp, err := req.SetContext(ctx).Execute(method, path)
		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		var retryAfter time.Duration
		if err != nil {
			lastErr = &TransportError{Op: method + " " + path, Err: err}
			if ctx.Err() != nil {
				return nil, lastErr
			}
		} else {
			lastErr = errorFromResponse(resp)
			statusCode := resp.StatusCode()
			if statusCode != http.StatusTooManyRequests && statusCode < 500 {
				return nil, lastErr
			}
			if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}

		if i == attempts-1 {
			break
		}
		if retryAfter == 0 {
			retryAfter = b.Duration()
		}

		c.logger.Warn("Request failed, retrying...",
			zap.String("path", path),
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(lastErr),
		)

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if attempts == 1 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

// errorFromResponse prefers the exchange error code carried in the body
// over the bare HTTP status.
func errorFromResponse(resp *resty.Response) error {
	var body struct {
		Error *int `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error != nil && *body.Error != CodeOK {
		return newAPIError(*body.Error)
	}
	return errors.New("request failed with status " + resp.Status() + ": " + resp.String())
}
