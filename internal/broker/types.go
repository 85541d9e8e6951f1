package broker

import "math"

// ===== SIDES AND ORDER TYPES =====

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

const (
	OrderTypeMarket = "MKT"
	OrderTypeLimit  = "LMT"
)

// ===== GATEWAY ORDER STATUSES =====

// Order statuses as reported by the gateway. EXECUTED/FAILED/etc. are an
// engine-level concern; callers map these with MapOrderStatus in the
// strategy layer.
const (
	StatusFilled        = "Filled"
	StatusCancelled     = "Cancelled"
	StatusInactive      = "Inactive"
	StatusSubmitted     = "Submitted"
	StatusPreSubmitted  = "PreSubmitted"
	StatusPendingSubmit = "PendingSubmit"
	StatusApiPending    = "ApiPending"
)

// DefaultMatchTolerance is the relative band used when matching a
// prospective order against open orders: quantities within tol*qty and
// limit prices within tol*price count as the same order.
const DefaultMatchTolerance = 0.02

// ===== CORE TYPES =====

// Contract is a qualified tradable instrument. ConID is the gateway's
// canonical identifier; a zero ConID means the symbol failed qualification.
type Contract struct {
	Symbol   string `json:"symbol"`
	ConID    int64  `json:"con_id"`
	SecType  string `json:"sec_type"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
}

// OrderRequest describes an order to be placed. Quantity is always positive;
// direction comes from Side. LimitPrice is ignored for market orders.
type OrderRequest struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Quantity      int     `json:"quantity"`
	OrderType     string  `json:"order_type"`
	LimitPrice    float64 `json:"limit_price,omitempty"`
	ClientOrderID string  `json:"client_order_id,omitempty"`
	TimeInForce   string  `json:"tif,omitempty"`
	OutsideRTH    bool    `json:"outside_rth"`
}

// OrderResult is the gateway's acknowledgement of a placed order.
type OrderResult struct {
	OrderID       int64   `json:"order_id"`
	ClientOrderID string  `json:"client_order_id"`
	Status        string  `json:"status"`
	FilledQty     int     `json:"filled_qty"`
	AvgFillPrice  float64 `json:"avg_fill_price"`
}

// OpenOrder is a working order as reported by the gateway.
type OpenOrder struct {
	OrderID       int64   `json:"order_id"`
	ClientOrderID string  `json:"client_order_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Quantity      int     `json:"quantity"`
	OrderType     string  `json:"order_type"`
	LimitPrice    float64 `json:"limit_price"`
	Status        string  `json:"status"`
	RemainingQty  int     `json:"remaining_qty"`
}

// Position is a broker-side position. Quantity is signed: positive for long,
// negative for short.
type Position struct {
	Symbol   string  `json:"symbol"`
	SecType  string  `json:"sec_type"`
	Quantity int     `json:"quantity"`
	AvgCost  float64 `json:"avg_cost"`
}

// AccountSummary carries the account tags the engine sizes against.
type AccountSummary struct {
	NetLiquidation float64 `json:"net_liquidation"`
	AvailableFunds float64 `json:"available_funds"`
	Currency       string  `json:"currency"`
}

// OrderEvent is an asynchronous order status update from the gateway stream.
type OrderEvent struct {
	Type          string  `json:"type"`
	OrderID       int64   `json:"order_id"`
	ClientOrderID string  `json:"client_order_id"`
	Symbol        string  `json:"symbol"`
	Status        string  `json:"status"`
	FilledQty     int     `json:"filled_qty"`
	RemainingQty  int     `json:"remaining_qty"`
	AvgFillPrice  float64 `json:"avg_fill_price"`
}

// ===== ORDER MATCHING =====

// OrderMatches reports whether an open order duplicates a prospective order.
// Symbol and side must match exactly; quantity must land within tol*qty.
// Price matches when the open order is a market order, when no price is
// supplied (price <= 0), or when the limit prices are within tol*price.
func OrderMatches(o OpenOrder, symbol, side string, qty int, price, tol float64) bool {
	if o.Symbol != symbol || o.Side != side {
		return false
	}
	if math.Abs(float64(o.Quantity-qty)) > tol*float64(qty) {
		return false
	}
	if o.OrderType == OrderTypeMarket || price <= 0 {
		return true
	}
	return math.Abs(o.LimitPrice-price) <= tol*price
}
