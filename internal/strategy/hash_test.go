package strategy

import (
	"testing"
	"time"
)

func TestPriceBucketWidth(t *testing.T) {
	tests := []struct {
		a, b float64
		same bool
	}{
		{50.00, 50.02, true},  // inside one 5-cent bucket
		{50.00, 50.04, true},  // still inside
		{50.00, 50.05, false}, // next bucket
		{50.04, 50.05, false},
		{0.01, 0.04, true},
		{99.99, 100.00, false},
	}
	for _, tt := range tests {
		got := PriceBucket(tt.a) == PriceBucket(tt.b)
		if got != tt.same {
			t.Errorf("PriceBucket(%v) vs PriceBucket(%v): same = %v, want %v",
				tt.a, tt.b, got, tt.same)
		}
	}
}

func TestSignalHashIdentity(t *testing.T) {
	h1 := ComputeSignalHash("AAPL", "RSI_OVERSOLD", ActionBuy, "oversold recovery", 150.00)
	h2 := ComputeSignalHash("AAPL", "RSI_OVERSOLD", ActionBuy, "oversold recovery", 150.03)
	if h1 != h2 {
		t.Errorf("hashes differ inside one price bucket: %s vs %s", h1, h2)
	}
	if len(h1) != 8 {
		t.Errorf("hash length = %d, want 8", len(h1))
	}

	h3 := ComputeSignalHash("AAPL", "RSI_OVERSOLD", ActionBuy, "different reason", 150.00)
	if h1 == h3 {
		t.Error("hash ignored the reason field")
	}
	h4 := ComputeSignalHash("AAPL", "RSI_OVERSOLD", ActionBuy, "oversold recovery", 150.10)
	if h1 == h4 {
		t.Error("hash ignored a bucket-crossing price move")
	}

	sig := Signal{Symbol: "AAPL", Type: "RSI_OVERSOLD", Action: ActionBuy,
		Reason: "oversold recovery", ReferencePrice: 150.00}
	sig.ComputeHash()
	if sig.Hash != h1 {
		t.Errorf("Signal.ComputeHash() = %s, want %s", sig.Hash, h1)
	}
}

func TestSignalCacheExpiry(t *testing.T) {
	c := NewSignalCache()
	t0 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	c.Add("abcd1234", 5*time.Minute, t0)
	if !c.InCooldown("abcd1234", t0.Add(4*time.Minute+59*time.Second)) {
		t.Error("entry expired early")
	}
	if c.InCooldown("abcd1234", t0.Add(5*time.Minute)) {
		t.Error("entry still in cooldown at exact expiry")
	}
	if c.InCooldown("other", t0) {
		t.Error("unknown hash reported in cooldown")
	}
}

func TestSignalCachePrunesOnAdd(t *testing.T) {
	c := NewSignalCache()
	t0 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	c.Add("old1", time.Minute, t0)
	c.Add("old2", time.Minute, t0)
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}

	// Insert after both expired: the dead entries go with it.
	c.Add("fresh", time.Minute, t0.Add(2*time.Minute))
	if c.Len() != 1 {
		t.Errorf("Len() after pruning insert = %d, want 1", c.Len())
	}
	if c.InCooldown("old1", t0.Add(2*time.Minute)) {
		t.Error("pruned hash reported in cooldown")
	}
}

func TestExecutedSetCycleReset(t *testing.T) {
	s := NewExecutedSignalSet()
	if s.Seen("h1") {
		t.Error("empty set reported a hash")
	}
	s.Mark("h1")
	if !s.Seen("h1") {
		t.Error("marked hash not seen")
	}
	s.Clear()
	if s.Seen("h1") {
		t.Error("hash survived a cycle reset")
	}
}
