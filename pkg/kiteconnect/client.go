// Package kiteconnect is a minimal Kite Connect v3 client covering the
// surface this system needs: session exchange, order placement, the
// order book and the live order-update websocket. It mirrors the
// broker's REST semantics (form-encoded requests, enveloped JSON
// responses) and leaves retry policy entirely to the caller.
package kiteconnect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultRoot    = "https://api.kite.trade"
	defaultTimeout = 7 * time.Second
	kiteVersion    = "3"
)

var routes = map[string]string{
	"session.token":  "/session/token",
	"session.delete": "/session/token",
	"orders.place":   "/orders/regular",
	"orders.list":    "/orders",
}

// Config configures a Client. Only APIKey is required; AccessToken can
// be set later once a session has been exchanged.
type Config struct {
	APIKey      string
	AccessToken string
	RootURL     string
	Timeout     time.Duration
	Debug       bool
}

// Client talks to the Kite Connect REST API for one account.
type Client struct {
	apiKey      string
	accessToken string
	rootURL     string
	debug       bool
	httpClient  *http.Client

	// SessionExpiryHook is called when the broker reports a
	// TokenException (expired/invalidated session).
	SessionExpiryHook func()
}

// NewClient builds a client with defaults filled in.
func NewClient(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		apiKey:      cfg.APIKey,
		accessToken: cfg.AccessToken,
		rootURL:     strings.TrimRight(cfg.RootURL, "/"),
		debug:       cfg.Debug,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

// SetAccessToken swaps the session token used for authenticated calls.
func (c *Client) SetAccessToken(token string) { c.accessToken = token }

// envelope is the broker's standard response wrapper.
type envelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

// APIError is a non-success response from the broker.
type APIError struct {
	Code      int
	ErrorType string
	Message   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (http %d)", e.ErrorType, e.Message, e.Code)
}

// IsTokenException reports whether err is an expired-session error.
func IsTokenException(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.ErrorType == "TokenException"
}

func (c *Client) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("X-Kite-Version", kiteVersion)
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.accessToken != "" {
		h.Set("Authorization", "token "+c.apiKey+":"+c.accessToken)
	}
	return h
}

func (c *Client) doRequest(ctx context.Context, method, route string, params url.Values) (json.RawMessage, error) {
	uri, ok := routes[route]
	if !ok {
		return nil, fmt.Errorf("unknown route: %s", route)
	}
	reqURL := c.rootURL + uri

	var body io.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}
	} else if params != nil {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header = c.requestHeaders()

	if c.debug {
		log.Debugf("[kiteconnect] %s %s params=%v", method, reqURL, params)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if c.debug {
		log.Debugf("[kiteconnect] response code=%d body=%s", resp.StatusCode, string(raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("couldn't parse broker response: %w", err)
	}
	if env.Status != "success" {
		if env.ErrorType == "TokenException" && c.SessionExpiryHook != nil {
			c.SessionExpiryHook()
		}
		return nil, &APIError{Code: resp.StatusCode, ErrorType: env.ErrorType, Message: env.Message}
	}
	return env.Data, nil
}

// Session is the durable credential set returned by the token exchange.
type Session struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	PublicToken string `json:"public_token"`
	LoginTime   string `json:"login_time"`
}

// GenerateSession exchanges a one-time request token for a session
// token using checksum = sha256(api_key + request_token + api_secret).
// On success the client adopts the new access token. Repeated calls
// with a fresh request token simply re-authenticate.
func (c *Client) GenerateSession(ctx context.Context, requestToken, apiSecret string) (Session, error) {
	sum := sha256.Sum256([]byte(c.apiKey + requestToken + apiSecret))

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("request_token", requestToken)
	params.Set("checksum", hex.EncodeToString(sum[:]))

	data, err := c.doRequest(ctx, http.MethodPost, "session.token", params)
	if err != nil {
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("unexpected session response: %w", err)
	}
	c.SetAccessToken(sess.AccessToken)
	return sess, nil
}

// InvalidateSession logs the session out at the broker.
func (c *Client) InvalidateSession(ctx context.Context) error {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("access_token", c.accessToken)
	_, err := c.doRequest(ctx, http.MethodDelete, "session.delete", params)
	return err
}

// OrderParams carries one order placement request.
type OrderParams struct {
	TradingSymbol   string
	Exchange        string
	TransactionType string
	Quantity        int64
	OrderType       string
	Product         string
	Price           float64
	TriggerPrice    float64
	Validity        string
	Tag             string
}

// PlaceOrder submits a regular-variety order and returns the broker
// order id. A single attempt; no internal retry.
func (c *Client) PlaceOrder(ctx context.Context, p OrderParams) (string, error) {
	params := url.Values{}
	params.Set("tradingsymbol", p.TradingSymbol)
	params.Set("exchange", p.Exchange)
	params.Set("transaction_type", p.TransactionType)
	params.Set("quantity", strconv.FormatInt(p.Quantity, 10))
	params.Set("order_type", p.OrderType)
	params.Set("product", p.Product)
	if p.Price != 0 {
		params.Set("price", strconv.FormatFloat(p.Price, 'f', -1, 64))
	}
	if p.TriggerPrice != 0 {
		params.Set("trigger_price", strconv.FormatFloat(p.TriggerPrice, 'f', -1, 64))
	}
	if p.Validity != "" {
		params.Set("validity", p.Validity)
	}
	if p.Tag != "" {
		params.Set("tag", p.Tag)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "orders.place", params)
	if err != nil {
		return "", err
	}
	var out struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(data, &out); err != nil || out.OrderID == "" {
		return "", fmt.Errorf("invalid place order response: %s", string(data))
	}
	return out.OrderID, nil
}

// Order is one entry of the order book.
type Order struct {
	OrderID         string  `json:"order_id"`
	Status          string  `json:"status"`
	TradingSymbol   string  `json:"tradingsymbol"`
	Exchange        string  `json:"exchange"`
	TransactionType string  `json:"transaction_type"`
	Quantity        int64   `json:"quantity"`
	OrderType       string  `json:"order_type"`
	Product         string  `json:"product"`
	Price           float64 `json:"price"`
	TriggerPrice    float64 `json:"trigger_price"`
	AveragePrice    float64 `json:"average_price"`
	OrderTimestamp  string  `json:"order_timestamp"`
	Tag             string  `json:"tag"`
}

// Orders fetches the day's order book. The broker only returns the
// current trading day; no date filtering is needed.
func (c *Client) Orders(ctx context.Context) ([]Order, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "orders.list", nil)
	if err != nil {
		return nil, err
	}
	var orders []Order
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, fmt.Errorf("unexpected order book response: %w", err)
	}
	return orders, nil
}

// Timestamp parses the order book timestamp format.
func (o Order) Timestamp() time.Time {
	ts, err := time.Parse("2006-01-02 15:04:05", o.OrderTimestamp)
	if err != nil {
		return time.Time{}
	}
	return ts
}
