package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultConnectAttempts = 3
	defaultRequestTimeout  = 15 * time.Second
)

// GatewayClient talks HTTP to the local order gateway bridge. One instance
// per engine process; the gateway multiplexes sessions by client ID.
type GatewayClient struct {
	baseURL  string
	clientID int
	http     *http.Client
	logger   zerolog.Logger

	mu        sync.RWMutex
	connected bool
	contracts map[string]*Contract
}

// NewGatewayClient builds a client for the gateway at host:port. The client
// ID distinguishes this engine's session from other gateway consumers.
func NewGatewayClient(host string, port, clientID int, logger zerolog.Logger) *GatewayClient {
	return &GatewayClient{
		baseURL:   fmt.Sprintf("http://%s:%d", host, port),
		clientID:  clientID,
		http:      &http.Client{Timeout: defaultRequestTimeout},
		logger:    logger.With().Str("component", "broker").Logger(),
		contracts: make(map[string]*Contract),
	}
}

// Connect pings the gateway until it answers, up to three attempts with a
// linearly growing pause. Already connected is a no-op.
func (c *GatewayClient) Connect(ctx context.Context) error {
	c.mu.RLock()
	if c.connected {
		c.mu.RUnlock()
		return nil
	}
	c.mu.RUnlock()

	var lastErr error
	for attempt := 0; attempt < defaultConnectAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		if err := c.doJSON(ctx, http.MethodGet, "/v1/ping", nil, nil); err != nil {
			lastErr = err
			c.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Gateway connect attempt failed")
			continue
		}
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		c.logger.Info().Str("gateway", c.baseURL).Int("client_id", c.clientID).Msg("Connected to order gateway")
		return nil
	}
	return fmt.Errorf("connect to gateway after %d attempts: %w", defaultConnectAttempts, lastErr)
}

// IsConnected reports whether the session is live.
func (c *GatewayClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Disconnect closes the session. The gateway call is best effort; local
// state is cleared regardless.
func (c *GatewayClient) Disconnect() {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if !wasConnected {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.doJSON(ctx, http.MethodPost, "/v1/disconnect", nil, nil); err != nil {
		c.logger.Warn().Err(err).Msg("Gateway disconnect failed")
	}
	c.logger.Info().Msg("Disconnected from order gateway")
}

// Qualify resolves a symbol to a contract, caching the result. A response
// without a ConID counts as a failed qualification.
func (c *GatewayClient) Qualify(ctx context.Context, symbol string) (*Contract, error) {
	c.mu.RLock()
	ct, ok := c.contracts[symbol]
	c.mu.RUnlock()
	if ok {
		return ct, nil
	}

	var fresh Contract
	if err := c.doJSON(ctx, http.MethodGet, "/v1/contracts/"+symbol, nil, &fresh); err != nil {
		return nil, fmt.Errorf("qualify %s: %w", symbol, err)
	}
	if fresh.ConID == 0 {
		return nil, fmt.Errorf("qualify %s: %w", symbol, ErrNotQualified)
	}
	c.mu.Lock()
	c.contracts[symbol] = &fresh
	c.mu.Unlock()
	return &fresh, nil
}

type placeOrderPayload struct {
	OrderRequest
	ConID int64 `json:"con_id"`
}

// PlaceOrder validates and submits an order. The symbol is qualified first;
// a blank client order ID gets a generated one and TIF defaults to DAY.
func (c *GatewayClient) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity %d", ErrInvalidOrder, req.Quantity)
	}
	if req.OrderType == OrderTypeLimit && req.LimitPrice <= 0 {
		return nil, fmt.Errorf("%w: limit order without a price", ErrInvalidOrder)
	}

	ct, err := c.Qualify(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = NewClientOrderID(time.Now())
	}
	if err := ValidateClientOrderID(req.ClientOrderID); err != nil {
		return nil, err
	}
	if req.TimeInForce == "" {
		req.TimeInForce = "DAY"
	}

	var res OrderResult
	payload := placeOrderPayload{OrderRequest: req, ConID: ct.ConID}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/orders", payload, &res); err != nil {
		return nil, fmt.Errorf("place %s %d %s: %w", req.Side, req.Quantity, req.Symbol, err)
	}
	c.logger.Info().
		Str("symbol", req.Symbol).
		Str("side", req.Side).
		Int("qty", req.Quantity).
		Str("type", req.OrderType).
		Float64("limit", req.LimitPrice).
		Int64("order_id", res.OrderID).
		Str("status", res.Status).
		Msg("Order placed")
	return &res, nil
}

// Positions returns nonzero equity positions. Non-stock lines the gateway
// may report (FX balances, options) are dropped.
func (c *GatewayClient) Positions(ctx context.Context) ([]Position, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	var raw []Position
	if err := c.doJSON(ctx, http.MethodGet, "/v1/positions", nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	out := make([]Position, 0, len(raw))
	for _, p := range raw {
		if p.SecType != "" && p.SecType != "STK" {
			continue
		}
		if p.Quantity == 0 {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

type accountTag struct {
	Tag      string `json:"tag"`
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// AccountSummary fetches the tagged account values and extracts the two the
// engine sizes against. Unparseable tags are skipped.
func (c *GatewayClient) AccountSummary(ctx context.Context) (*AccountSummary, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	var payload struct {
		Tags []accountTag `json:"tags"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/account/summary", nil, &payload); err != nil {
		return nil, fmt.Errorf("fetch account summary: %w", err)
	}
	sum := &AccountSummary{}
	for _, t := range payload.Tags {
		v, err := strconv.ParseFloat(t.Value, 64)
		if err != nil {
			continue
		}
		switch t.Tag {
		case "NetLiquidation":
			sum.NetLiquidation = v
		case "AvailableFunds":
			sum.AvailableFunds = v
		default:
			continue
		}
		if sum.Currency == "" {
			sum.Currency = t.Currency
		}
	}
	return sum, nil
}

// OpenOrders returns working orders on the session, filtered to symbol when
// one is given.
func (c *GatewayClient) OpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	path := "/v1/orders/open"
	if symbol != "" {
		path += "?symbol=" + url.QueryEscape(symbol)
	}
	var out []OpenOrder
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("fetch open orders: %w", err)
	}
	return out, nil
}

// HasActiveOrder scans open orders for a duplicate of the prospective order.
func (c *GatewayClient) HasActiveOrder(ctx context.Context, symbol, side string, qty int, price float64) (bool, error) {
	orders, err := c.OpenOrders(ctx, symbol)
	if err != nil {
		return false, err
	}
	for _, o := range orders {
		if OrderMatches(o, symbol, side, qty, price, DefaultMatchTolerance) {
			return true, nil
		}
	}
	return false, nil
}

// CancelOrder cancels a working order by gateway order ID.
func (c *GatewayClient) CancelOrder(ctx context.Context, orderID int64) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/v1/orders/%d", orderID), nil, nil); err != nil {
		return fmt.Errorf("cancel order %d: %w", orderID, err)
	}
	c.logger.Info().Int64("order_id", orderID).Msg("Order cancelled")
	return nil
}

// doJSON runs one gateway request. Error payloads ({"error": "..."}) are
// folded into the returned error.
func (c *GatewayClient) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Client-ID", strconv.Itoa(c.clientID))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("gateway %s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("gateway %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
