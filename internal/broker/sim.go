package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// SimBroker is an in-memory Broker used when the engine runs in simulation
// mode and in tests. Orders fill instantly unless hold mode is on, in which
// case they sit as open orders until filled or cancelled explicitly.
type SimBroker struct {
	mu sync.Mutex

	connected  bool
	cash       float64
	positions  map[string]*Position
	openOrders map[int64]*OpenOrder
	marks      map[string]float64
	nextID     int64
	holdOrders bool
	failNext   error

	logger zerolog.Logger
}

// NewSimBroker builds a sim broker holding startingCash in USD.
func NewSimBroker(startingCash float64, logger zerolog.Logger) *SimBroker {
	return &SimBroker{
		cash:       startingCash,
		positions:  make(map[string]*Position),
		openOrders: make(map[int64]*OpenOrder),
		marks:      make(map[string]float64),
		nextID:     1000,
		logger:     logger.With().Str("component", "sim-broker").Logger(),
	}
}

// SetMark sets the simulated market price used to fill market orders and to
// mark positions for net liquidation.
func (s *SimBroker) SetMark(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks[symbol] = price
}

// SeedPosition installs a position directly, bypassing order flow.
func (s *SimBroker) SeedPosition(symbol string, qty int, avgCost float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if qty == 0 {
		delete(s.positions, symbol)
		return
	}
	s.positions[symbol] = &Position{Symbol: symbol, SecType: "STK", Quantity: qty, AvgCost: avgCost}
}

// SetHoldOrders toggles hold mode: when on, placed orders stay open instead
// of filling instantly.
func (s *SimBroker) SetHoldOrders(hold bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdOrders = hold
}

// FailNext makes the next PlaceOrder return err instead of executing.
func (s *SimBroker) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Connect marks the sim session live.
func (s *SimBroker) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

// IsConnected reports the sim session state.
func (s *SimBroker) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Disconnect marks the sim session closed.
func (s *SimBroker) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
}

// Qualify always succeeds with a synthetic contract.
func (s *SimBroker) Qualify(ctx context.Context, symbol string) (*Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return &Contract{
		Symbol:   symbol,
		ConID:    s.nextID,
		SecType:  "STK",
		Exchange: "SMART",
		Currency: "USD",
	}, nil
}

// PlaceOrder applies the order to sim state. Buys that exceed cash and sells
// that exceed the held quantity come back Inactive rather than erroring,
// mirroring how the gateway reports unmarginable orders.
func (s *SimBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, ErrNotConnected
	}
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity %d", ErrInvalidOrder, req.Quantity)
	}
	if req.OrderType == OrderTypeLimit && req.LimitPrice <= 0 {
		return nil, fmt.Errorf("%w: limit order without a price", ErrInvalidOrder)
	}

	s.nextID++
	id := s.nextID

	if s.holdOrders {
		s.openOrders[id] = &OpenOrder{
			OrderID:       id,
			ClientOrderID: req.ClientOrderID,
			Symbol:        req.Symbol,
			Side:          req.Side,
			Quantity:      req.Quantity,
			OrderType:     req.OrderType,
			LimitPrice:    req.LimitPrice,
			Status:        StatusSubmitted,
			RemainingQty:  req.Quantity,
		}
		return &OrderResult{OrderID: id, ClientOrderID: req.ClientOrderID, Status: StatusSubmitted}, nil
	}

	price := s.fillPrice(req)
	pos := s.positions[req.Symbol]

	switch req.Side {
	case SideBuy:
		cost := float64(req.Quantity) * price
		if cost > s.cash {
			return &OrderResult{OrderID: id, ClientOrderID: req.ClientOrderID, Status: StatusInactive}, nil
		}
		s.cash -= cost
		if pos == nil {
			s.positions[req.Symbol] = &Position{Symbol: req.Symbol, SecType: "STK", Quantity: req.Quantity, AvgCost: price}
		} else {
			total := float64(pos.Quantity)*pos.AvgCost + cost
			pos.Quantity += req.Quantity
			pos.AvgCost = total / float64(pos.Quantity)
		}
	case SideSell:
		if pos == nil || pos.Quantity < req.Quantity {
			return &OrderResult{OrderID: id, ClientOrderID: req.ClientOrderID, Status: StatusInactive}, nil
		}
		s.cash += float64(req.Quantity) * price
		pos.Quantity -= req.Quantity
		if pos.Quantity == 0 {
			delete(s.positions, req.Symbol)
		}
	default:
		return nil, fmt.Errorf("%w: side %q", ErrInvalidOrder, req.Side)
	}

	s.logger.Debug().
		Str("symbol", req.Symbol).
		Str("side", req.Side).
		Int("qty", req.Quantity).
		Float64("fill", price).
		Msg("Sim order filled")
	return &OrderResult{
		OrderID:       id,
		ClientOrderID: req.ClientOrderID,
		Status:        StatusFilled,
		FilledQty:     req.Quantity,
		AvgFillPrice:  price,
	}, nil
}

// fillPrice picks the execution price: the mark if one is set, otherwise the
// limit price, otherwise the position's average cost so untracked market
// closes fill flat.
func (s *SimBroker) fillPrice(req OrderRequest) float64 {
	if m, ok := s.marks[req.Symbol]; ok && m > 0 {
		return m
	}
	if req.LimitPrice > 0 {
		return req.LimitPrice
	}
	if pos, ok := s.positions[req.Symbol]; ok && pos.AvgCost > 0 {
		return pos.AvgCost
	}
	return 1.0
}

// Positions returns the sim positions.
func (s *SimBroker) Positions(ctx context.Context) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, ErrNotConnected
	}
	out := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	return out, nil
}

// AccountSummary marks positions to market and reports cash as available
// funds.
func (s *SimBroker) AccountSummary(ctx context.Context) (*AccountSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, ErrNotConnected
	}
	netLiq := s.cash
	for sym, p := range s.positions {
		mark := s.marks[sym]
		if mark <= 0 {
			mark = p.AvgCost
		}
		netLiq += float64(p.Quantity) * mark
	}
	return &AccountSummary{NetLiquidation: netLiq, AvailableFunds: s.cash, Currency: "USD"}, nil
}

// OpenOrders returns orders held open by hold mode, filtered to symbol when
// one is given.
func (s *SimBroker) OpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, ErrNotConnected
	}
	out := make([]OpenOrder, 0, len(s.openOrders))
	for _, o := range s.openOrders {
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

// HasActiveOrder scans held orders for a duplicate.
func (s *SimBroker) HasActiveOrder(ctx context.Context, symbol, side string, qty int, price float64) (bool, error) {
	orders, err := s.OpenOrders(ctx, symbol)
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

// CancelOrder removes a held order.
func (s *SimBroker) CancelOrder(ctx context.Context, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if _, ok := s.openOrders[orderID]; !ok {
		return fmt.Errorf("cancel order %d: not found", orderID)
	}
	delete(s.openOrders, orderID)
	return nil
}
