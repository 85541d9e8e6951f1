// Package broker talks to the order gateway: contract qualification, order
// placement, positions, account data and the asynchronous order status
// stream. GatewayClient is the live implementation; SimBroker is an
// in-memory implementation used for simulation runs and tests.
package broker

import (
	"context"
	"errors"
)

// ===== ERRORS =====

var (
	// ErrNotConnected is returned when an operation requires a live gateway
	// session and none is established.
	ErrNotConnected = errors.New("broker: not connected")

	// ErrNotQualified is returned when a symbol cannot be resolved to a
	// tradable contract. Orders must never be placed for such symbols.
	ErrNotQualified = errors.New("broker: contract not qualified")

	// ErrInvalidOrder is returned for malformed order requests, e.g. a limit
	// order without a price or a non-positive quantity.
	ErrInvalidOrder = errors.New("broker: invalid order request")
)

// Broker is the surface the engine trades through.
type Broker interface {
	// Connect establishes the gateway session. Calling it while connected is
	// a no-op.
	Connect(ctx context.Context) error

	// IsConnected reports whether a gateway session is live.
	IsConnected() bool

	// Disconnect tears down the session. Safe to call repeatedly.
	Disconnect()

	// Qualify resolves a symbol to a tradable contract. Results are cached
	// per symbol for the life of the client.
	Qualify(ctx context.Context, symbol string) (*Contract, error)

	// PlaceOrder submits an order and returns the gateway acknowledgement.
	// The contract is qualified first; unqualified symbols fail without
	// reaching the gateway.
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// Positions returns current equity positions with nonzero size.
	Positions(ctx context.Context) ([]Position, error)

	// AccountSummary returns net liquidation value and available funds.
	AccountSummary(ctx context.Context) (*AccountSummary, error)

	// OpenOrders returns working orders, optionally filtered to one symbol
	// (empty symbol means all).
	OpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)

	// HasActiveOrder reports whether a working order already matches the
	// given symbol, side, quantity and price within DefaultMatchTolerance.
	// Pass price <= 0 to match regardless of price.
	HasActiveOrder(ctx context.Context, symbol, side string, qty int, price float64) (bool, error)

	// CancelOrder cancels a working order by gateway order ID.
	CancelOrder(ctx context.Context, orderID int64) error
}
