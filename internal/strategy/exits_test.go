package strategy

import (
	"testing"
	"time"

	"stock-trading-engine/config"
)

func longPos(size int, avgCost float64, entry time.Time) Position {
	return Position{Symbol: "SYM", Size: size, AvgCost: avgCost, EntryTime: entry}
}

func TestMaxHoldingTripsBeforeStopLoss(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	cfg := &config.StrategyConfig{MaxHoldingMinutes: 60, StopLossPct: 0.02}
	p := longPos(10, 100, now.Add(-2*time.Hour))

	// Price is through the stop too, but holding time is checked first.
	sig := BaseExitCheck(cfg, p, 95, now)
	if sig == nil {
		t.Fatal("BaseExitCheck() = nil, want a max-holding exit")
	}
	if sig.Type != SignalMaxHolding {
		t.Errorf("type = %s, want %s", sig.Type, SignalMaxHolding)
	}
	if sig.Action != ActionSell || sig.PositionSize != 10 || sig.Confidence != 1.0 {
		t.Errorf("exit = %s size %d conf %v, want SELL 10 at full confidence",
			sig.Action, sig.PositionSize, sig.Confidence)
	}
}

func TestForceCloseClock(t *testing.T) {
	cfg := &config.StrategyConfig{ForceCloseTime: "15:45"}
	entry := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	p := longPos(5, 100, entry)

	before := time.Date(2026, 1, 5, 15, 44, 0, 0, time.UTC)
	if sig := BaseExitCheck(cfg, p, 101, before); sig != nil {
		t.Errorf("fired %s at 15:44, before the close time", sig.Type)
	}

	at := time.Date(2026, 1, 5, 15, 45, 0, 0, time.UTC)
	sig := BaseExitCheck(cfg, p, 101, at)
	if sig == nil || sig.Type != SignalForceClose {
		t.Fatalf("at 15:45 got %+v, want %s", sig, SignalForceClose)
	}

	after := time.Date(2026, 1, 5, 16, 10, 0, 0, time.UTC)
	if sig := BaseExitCheck(cfg, p, 101, after); sig == nil || sig.Type != SignalForceClose {
		t.Errorf("at 16:10 got %+v, want %s", sig, SignalForceClose)
	}
}

func TestTieredTakeProfitPicksHighestTier(t *testing.T) {
	now := time.Now()
	cfg := &config.StrategyConfig{
		TakeProfitLevels: []config.ProfitLevel{
			{Pct: 0.02, Confidence: 0.6},
			{Pct: 0.05, Confidence: 0.8},
		},
	}
	p := longPos(10, 100, now)

	tests := []struct {
		price    float64
		wantType string
		wantConf float64
	}{
		{106, SignalTakeProfit, 0.8}, // +6%: top tier
		{103, SignalTakeProfit, 0.6}, // +3%: lower tier
		{101, "", 0},                 // +1%: no tier reached
	}
	for _, tt := range tests {
		sig := BaseExitCheck(cfg, p, tt.price, now)
		if tt.wantType == "" {
			if sig != nil {
				t.Errorf("price %v: fired %s, want no exit", tt.price, sig.Type)
			}
			continue
		}
		if sig == nil {
			t.Errorf("price %v: no exit, want %s", tt.price, tt.wantType)
			continue
		}
		if sig.Type != tt.wantType || sig.Confidence != tt.wantConf {
			t.Errorf("price %v: %s conf %v, want %s conf %v",
				tt.price, sig.Type, sig.Confidence, tt.wantType, tt.wantConf)
		}
	}
}

func TestSingleTakeProfitSuppressesTiers(t *testing.T) {
	now := time.Now()
	cfg := &config.StrategyConfig{
		TakeProfitPct: 0.10,
		TakeProfitLevels: []config.ProfitLevel{
			{Pct: 0.02, Confidence: 0.6},
		},
	}
	p := longPos(10, 100, now)

	// +6% clears the tier but not the single threshold, which wins.
	if sig := BaseExitCheck(cfg, p, 106, now); sig != nil {
		t.Errorf("fired %s, want the single threshold to suppress tiers", sig.Type)
	}
	if sig := BaseExitCheck(cfg, p, 111, now); sig == nil || sig.Type != SignalTakeProfit {
		t.Errorf("at +11%% got %+v, want %s", sig, SignalTakeProfit)
	}
}

func TestShortPositionExitsWithBuy(t *testing.T) {
	now := time.Now()
	cfg := &config.StrategyConfig{TakeProfitPct: 0.05}
	p := Position{Symbol: "SYM", Size: -10, AvgCost: 100, EntryTime: now}

	// A short is up when price falls.
	sig := BaseExitCheck(cfg, p, 90, now)
	if sig == nil {
		t.Fatal("short take profit did not fire")
	}
	if sig.Action != ActionBuy || sig.PositionSize != 10 {
		t.Errorf("exit = %s size %d, want BUY 10 to cover", sig.Action, sig.PositionSize)
	}

	cfg = &config.StrategyConfig{StopLossPct: 0.05}
	sig = BaseExitCheck(cfg, p, 106, now)
	if sig == nil || sig.Type != SignalStopLoss || sig.Action != ActionBuy {
		t.Errorf("short stop at 106 got %+v, want BUY %s", sig, SignalStopLoss)
	}
}

func TestUnrealizedPnLThreshold(t *testing.T) {
	now := time.Now()
	cfg := &config.StrategyConfig{TakeProfitPnLThreshold: 50}
	p := longPos(10, 100, now)

	if sig := BaseExitCheck(cfg, p, 104, now); sig != nil {
		t.Errorf("fired %s at PnL 40, under the 50 threshold", sig.Type)
	}
	sig := BaseExitCheck(cfg, p, 106, now)
	if sig == nil || sig.Type != SignalTakeProfit {
		t.Fatalf("at PnL 60 got %+v, want %s", sig, SignalTakeProfit)
	}
}

func TestTrailingStopWatermarks(t *testing.T) {
	now := time.Now()

	long := longPos(10, 100, now)
	long.HighestPrice = 120
	if sig := trailingExit(long, 114.5, 0.05); sig != nil {
		t.Errorf("long trail fired at 114.5 with high 120, inside the 5%% band")
	}
	sig := trailingExit(long, 113.9, 0.05)
	if sig == nil || sig.Type != SignalTrailingStop || sig.Action != ActionSell {
		t.Errorf("long trail at 113.9 got %+v, want SELL %s", sig, SignalTrailingStop)
	}

	short := Position{Symbol: "SYM", Size: -10, AvgCost: 100, EntryTime: now, LowestPrice: 80}
	if sig := trailingExit(short, 83.5, 0.05); sig != nil {
		t.Errorf("short trail fired at 83.5 with low 80, inside the band")
	}
	sig = trailingExit(short, 84.1, 0.05)
	if sig == nil || sig.Action != ActionBuy {
		t.Errorf("short trail at 84.1 got %+v, want BUY to cover", sig)
	}

	// No watermark yet: nothing to trail from.
	fresh := longPos(10, 100, now)
	if sig := trailingExit(fresh, 50, 0.05); sig != nil {
		t.Errorf("trail fired with no watermark recorded")
	}
}

func TestTrailingActivationThreshold(t *testing.T) {
	now := time.Now()

	long := longPos(10, 100, now)
	long.HighestPrice = 103
	if trailingArmed(long, 0.05) {
		t.Error("armed at +3%% excursion against a 5%% activation")
	}
	long.HighestPrice = 105
	if !trailingArmed(long, 0.05) {
		t.Error("not armed at the activation threshold")
	}
	if !trailingArmed(long, 0) {
		t.Error("zero activation should arm immediately")
	}

	short := Position{Symbol: "SYM", Size: -10, AvgCost: 100, EntryTime: now}
	short.LowestPrice = 97
	if trailingArmed(short, 0.05) {
		t.Error("short armed at -3%% excursion against a 5%% activation")
	}
	short.LowestPrice = 95
	if !trailingArmed(short, 0.05) {
		t.Error("short not armed at the activation threshold")
	}
}
