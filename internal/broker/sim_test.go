package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func newConnectedSim(t *testing.T, cash float64) *SimBroker {
	t.Helper()
	s := NewSimBroker(cash, zerolog.Nop())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	return s
}

func TestSimBuyAveragesUp(t *testing.T) {
	s := newConnectedSim(t, 10000)
	ctx := context.Background()

	res, err := s.PlaceOrder(ctx, OrderRequest{Symbol: "AAPL", Side: SideBuy, Quantity: 10, OrderType: OrderTypeLimit, LimitPrice: 100})
	if err != nil {
		t.Fatalf("first buy error: %v", err)
	}
	if res.Status != StatusFilled {
		t.Fatalf("first buy status = %s, want Filled", res.Status)
	}
	if _, err = s.PlaceOrder(ctx, OrderRequest{Symbol: "AAPL", Side: SideBuy, Quantity: 10, OrderType: OrderTypeLimit, LimitPrice: 120}); err != nil {
		t.Fatalf("second buy error: %v", err)
	}

	positions, _ := s.Positions(ctx)
	if len(positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(positions))
	}
	if positions[0].Quantity != 20 || positions[0].AvgCost != 110 {
		t.Errorf("position = %+v, want 20 @ 110", positions[0])
	}

	sum, _ := s.AccountSummary(ctx)
	if sum.AvailableFunds != 10000-1000-1200 {
		t.Errorf("AvailableFunds = %v, want 7800", sum.AvailableFunds)
	}
}

func TestSimSellFlattens(t *testing.T) {
	s := newConnectedSim(t, 1000)
	s.SeedPosition("TSLA", 5, 200)
	ctx := context.Background()

	res, err := s.PlaceOrder(ctx, OrderRequest{Symbol: "TSLA", Side: SideSell, Quantity: 5, OrderType: OrderTypeLimit, LimitPrice: 210})
	if err != nil {
		t.Fatalf("sell error: %v", err)
	}
	if res.Status != StatusFilled || res.AvgFillPrice != 210 {
		t.Errorf("result = %+v, want Filled at 210", res)
	}

	positions, _ := s.Positions(ctx)
	if len(positions) != 0 {
		t.Errorf("positions after flatten = %+v, want none", positions)
	}
	sum, _ := s.AccountSummary(ctx)
	if sum.AvailableFunds != 1000+5*210 {
		t.Errorf("AvailableFunds = %v, want 2050", sum.AvailableFunds)
	}
}

func TestSimRejectsUnaffordableBuy(t *testing.T) {
	s := newConnectedSim(t, 100)
	res, err := s.PlaceOrder(context.Background(), OrderRequest{Symbol: "AAPL", Side: SideBuy, Quantity: 10, OrderType: OrderTypeLimit, LimitPrice: 50})
	if err != nil {
		t.Fatalf("PlaceOrder() error: %v", err)
	}
	if res.Status != StatusInactive {
		t.Errorf("status = %s, want Inactive for unaffordable buy", res.Status)
	}
}

func TestSimRejectsOversizedSell(t *testing.T) {
	s := newConnectedSim(t, 1000)
	s.SeedPosition("NVDA", 3, 400)
	res, err := s.PlaceOrder(context.Background(), OrderRequest{Symbol: "NVDA", Side: SideSell, Quantity: 10, OrderType: OrderTypeMarket})
	if err != nil {
		t.Fatalf("PlaceOrder() error: %v", err)
	}
	if res.Status != StatusInactive {
		t.Errorf("status = %s, want Inactive for short sell", res.Status)
	}
}

func TestSimHoldOrdersDuplicateDetection(t *testing.T) {
	s := newConnectedSim(t, 10000)
	s.SetHoldOrders(true)
	ctx := context.Background()

	res, err := s.PlaceOrder(ctx, OrderRequest{Symbol: "AAPL", Side: SideBuy, Quantity: 10, OrderType: OrderTypeLimit, LimitPrice: 180})
	if err != nil {
		t.Fatalf("PlaceOrder() error: %v", err)
	}
	if res.Status != StatusSubmitted {
		t.Fatalf("status = %s, want Submitted in hold mode", res.Status)
	}

	dup, err := s.HasActiveOrder(ctx, "AAPL", SideBuy, 10, 180.01)
	if err != nil {
		t.Fatalf("HasActiveOrder() error: %v", err)
	}
	if !dup {
		t.Error("HasActiveOrder() = false, want true within tolerance")
	}

	if err := s.CancelOrder(ctx, res.OrderID); err != nil {
		t.Fatalf("CancelOrder() error: %v", err)
	}
	dup, _ = s.HasActiveOrder(ctx, "AAPL", SideBuy, 10, 180.01)
	if dup {
		t.Error("HasActiveOrder() = true after cancel, want false")
	}
}

func TestSimMarketFillUsesMark(t *testing.T) {
	s := newConnectedSim(t, 10000)
	s.SetMark("AMD", 150)
	res, err := s.PlaceOrder(context.Background(), OrderRequest{Symbol: "AMD", Side: SideBuy, Quantity: 4, OrderType: OrderTypeMarket})
	if err != nil {
		t.Fatalf("PlaceOrder() error: %v", err)
	}
	if res.AvgFillPrice != 150 {
		t.Errorf("AvgFillPrice = %v, want mark 150", res.AvgFillPrice)
	}
}

func TestSimFailNext(t *testing.T) {
	s := newConnectedSim(t, 10000)
	boom := errors.New("gateway down")
	s.FailNext(boom)

	if _, err := s.PlaceOrder(context.Background(), OrderRequest{Symbol: "AAPL", Side: SideBuy, Quantity: 1, OrderType: OrderTypeMarket}); !errors.Is(err, boom) {
		t.Errorf("error = %v, want injected failure", err)
	}
	// Next order goes through again.
	if _, err := s.PlaceOrder(context.Background(), OrderRequest{Symbol: "AAPL", Side: SideBuy, Quantity: 1, OrderType: OrderTypeLimit, LimitPrice: 10}); err != nil {
		t.Errorf("second order error = %v, want nil", err)
	}
}
