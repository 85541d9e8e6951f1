package strategy

import (
	"context"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/broker"
	"stock-trading-engine/internal/indicators"
	"stock-trading-engine/internal/journal"
	"stock-trading-engine/internal/marketdata"
)

// ===== HELPERS =====

func makeBars(t0 time.Time, closes []float64, vols []float64) marketdata.BarSeries {
	bars := make(marketdata.BarSeries, len(closes))
	for i, c := range closes {
		v := 1_000_000.0
		if vols != nil {
			v = vols[i]
		}
		bars[i] = marketdata.Bar{
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    v,
		}
	}
	return bars
}

func testStrategyConfig() *config.StrategyConfig {
	return &config.StrategyConfig{
		Enabled:               true,
		InitialCapital:        10000,
		RiskPerTrade:          0.1,
		StopLossATRMultiple:   1,
		PerTradeNotionalCap:   700,
		IBOrderType:           broker.OrderTypeMarket,
		SignalCooldownMinutes: 5,
		MinDataPoints:         30,
	}
}

func newTestInstance(t *testing.T, s Strategy, cfg *config.StrategyConfig, b broker.Broker, tcfg config.TradingConfig) (*Instance, *journal.Journal) {
	t.Helper()
	j := journal.New(filepath.Join(t.TempDir(), "trades.json"), zerolog.Nop())
	inst := NewInstance(s, cfg, Deps{Broker: b, Journal: j, Trading: tcfg, Logger: zerolog.Nop()})
	return inst, j
}

func connectedSim(t *testing.T, cash float64) *broker.SimBroker {
	t.Helper()
	sim := broker.NewSimBroker(cash, zerolog.Nop())
	if err := sim.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	return sim
}

// ===== END-TO-END SCENARIOS =====

// A declining series with a sharp final rally: EMA(9) sits under EMA(21)
// through the decline and crosses above it on the last bar, which also
// carries 4x the trailing average volume.
func goldenCrossSeries() ([]float64, []float64) {
	closes := make([]float64, 50)
	vols := make([]float64, 50)
	for i := 0; i < 49; i++ {
		closes[i] = 110 - 0.25*float64(i)
		vols[i] = 1_000_000
	}
	closes[49] = 120
	vols[49] = 4_000_000
	return closes, vols
}

func TestGoldenCrossEntrySizedByNotionalCap(t *testing.T) {
	closes, vols := goldenCrossSeries()
	t0 := time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)
	bars := makeBars(t0, closes, vols)

	// Sanity on the fixture itself: the cross must land on the final bar.
	fast := indicators.EMA(closes, 9)
	slow := indicators.EMA(closes, 21)
	if !indicators.CrossedAbove(fast, slow) {
		t.Fatalf("fixture: EMA(9) did not cross above EMA(21) on the last bar (fast %.2f slow %.2f)",
			indicators.Last(fast), indicators.Last(slow))
	}

	cfg := testStrategyConfig()
	cfg.Params = map[string]float64{"volume_surge_ratio": 1.5}
	sim := connectedSim(t, 10000)
	sim.SetMark("SYM", closes[49])
	inst, j := newTestInstance(t, newDualMA(cfg), cfg, sim, config.TradingConfig{})

	now := bars.Last().Timestamp
	signals := inst.Generate("SYM", bars, nil, now)
	if len(signals) != 1 {
		t.Fatalf("Generate() = %d signals, want 1", len(signals))
	}
	sig := signals[0]
	if sig.Action != ActionBuy || sig.Type != SignalMAGoldenCross {
		t.Fatalf("signal = %s %s, want BUY %s", sig.Action, sig.Type, SignalMAGoldenCross)
	}
	if sig.ReferencePrice != closes[49] {
		t.Errorf("ReferencePrice = %v, want last close %v", sig.ReferencePrice, closes[49])
	}
	if sig.StrategyID != "a3" || sig.Hash == "" {
		t.Errorf("signal not tagged: strategy %q hash %q", sig.StrategyID, sig.Hash)
	}

	size := inst.CalcPositionSize(context.Background(), &sig, sig.ATRHint())
	want := int(700 / closes[49])
	if size != want {
		t.Fatalf("CalcPositionSize() = %d, want floor(cap/price) = %d", size, want)
	}

	sig.PositionSize = size
	rec := inst.ExecuteSignal(context.Background(), &sig, now)
	if rec.Status != journal.StatusExecuted {
		t.Fatalf("record status = %s, want EXECUTED (reason %q)", rec.Status, rec.Reason)
	}
	if pos, ok := inst.Positions()["SYM"]; !ok || pos.Size != size {
		t.Errorf("position after fill = %+v, want size %d", pos, size)
	}
	if j.Len() != 1 {
		t.Errorf("journal length = %d, want 1", j.Len())
	}
}

// The z-score strategy owns its exits: a long must be flattened on the
// first bar where the z-score converges back inside the exit band, and not
// a bar earlier.
func TestZScoreConvergenceExit(t *testing.T) {
	var closes []float64
	for i := 0; i < 30; i++ {
		if i%2 == 0 {
			closes = append(closes, 100.3)
		} else {
			closes = append(closes, 99.7)
		}
	}
	for i := 0; i < 5; i++ {
		closes = append(closes, 100-0.8*float64(i+1)) // slide to 96
	}
	for i := 0; i < 12; i++ {
		closes = append(closes, 96+0.6*float64(i+1)) // recover
	}

	t0 := time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)
	bars := makeBars(t0, closes, nil)
	bottom := 34 // last bar of the slide

	cfg := testStrategyConfig()
	sim := connectedSim(t, 10000)
	sim.SeedPosition("SYM", 100, 100.00)
	inst, _ := newTestInstance(t, newZScore(cfg), cfg, sim, config.TradingConfig{})
	if err := inst.SyncPositionsFromBroker(context.Background(), bars[bottom].Timestamp); err != nil {
		t.Fatalf("sync error: %v", err)
	}

	// Locate the first post-bottom bar where |z| converges inside 0.5,
	// using the same indicator the strategy computes.
	exitBar := -1
	for i := bottom + 1; i < len(closes); i++ {
		z := indicators.Last(indicators.ZScore(closes[:i+1], 20))
		if !math.IsNaN(z) && math.Abs(z) <= 0.5 {
			exitBar = i
			break
		}
	}
	if exitBar < 0 {
		t.Fatal("fixture: z-score never converged inside the exit band")
	}

	for i := bottom + 1; i <= exitBar; i++ {
		prefix := bars[:i+1]
		signals := inst.Generate("SYM", prefix, nil, prefix.Last().Timestamp)
		for _, sig := range signals {
			if sig.Type == SignalZScoreExit && i < exitBar {
				t.Fatalf("ZSCORE_EXIT fired at bar %d, before convergence at bar %d", i, exitBar)
			}
		}
		if i == exitBar {
			if len(signals) != 1 || signals[0].Type != SignalZScoreExit {
				t.Fatalf("bar %d signals = %+v, want exactly one ZSCORE_EXIT", i, signals)
			}
			if signals[0].Action != ActionSell || signals[0].PositionSize != 100 {
				t.Errorf("exit = %s size %d, want SELL size 100", signals[0].Action, signals[0].PositionSize)
			}
		}
	}
}

func TestForcedLiquidationSubmitsMarketOrders(t *testing.T) {
	sim := connectedSim(t, 10000)
	sim.SeedPosition("AAA", 10, 100)
	sim.SeedPosition("BBB", 20, 50)

	cfg := testStrategyConfig()
	cfg.IBOrderType = broker.OrderTypeLimit // MKT must still win for forced closes
	cfg.IBLimitOffset = 0.001
	inst, j := newTestInstance(t, newRSIStrategy(cfg), cfg, sim, config.TradingConfig{})

	now := time.Date(2026, 1, 5, 15, 45, 0, 0, time.UTC)
	if err := inst.SyncPositionsFromBroker(context.Background(), now); err != nil {
		t.Fatalf("sync error: %v", err)
	}

	records := inst.CloseAllPositions(context.Background(), "scheduled close", now)
	if len(records) != 2 {
		t.Fatalf("CloseAllPositions() = %d records, want 2", len(records))
	}
	closed := map[string]bool{}
	for _, rec := range records {
		closed[rec.Symbol] = true
		if rec.SignalType != SignalCloseAllPositions {
			t.Errorf("%s signal type = %s, want %s", rec.Symbol, rec.SignalType, SignalCloseAllPositions)
		}
		if rec.Action != ActionSell {
			t.Errorf("%s action = %s, want SELL", rec.Symbol, rec.Action)
		}
		if rec.OrderType != broker.OrderTypeMarket {
			t.Errorf("%s order type = %s, want MKT", rec.Symbol, rec.OrderType)
		}
		if rec.Status != journal.StatusExecuted {
			t.Errorf("%s status = %s, want EXECUTED (reason %q)", rec.Symbol, rec.Status, rec.Reason)
		}
	}
	if !closed["AAA"] || !closed["BBB"] {
		t.Errorf("closed symbols = %v, want AAA and BBB", closed)
	}
	if j.Len() != 2 {
		t.Errorf("journal length = %d, want 2", j.Len())
	}

	if err := inst.SyncPositionsFromBroker(context.Background(), now.Add(time.Minute)); err != nil {
		t.Fatalf("second sync error: %v", err)
	}
	if got := inst.Positions(); len(got) != 0 {
		t.Errorf("positions after liquidation sync = %+v, want none", got)
	}
}

func TestDuplicateOpenOrderRejected(t *testing.T) {
	sim := connectedSim(t, 100000)
	sim.SetHoldOrders(true)

	cfg := testStrategyConfig()
	cfg.IBOrderType = broker.OrderTypeLimit
	cfg.IBLimitOffset = 0.01
	inst, j := newTestInstance(t, newDualMA(cfg), cfg, sim, config.TradingConfig{})

	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	first := &Signal{
		Symbol: "SYM", Type: SignalMAGoldenCross, Action: ActionBuy,
		ReferencePrice: 50.00, PositionSize: 10, Confidence: 0.8, Reason: "golden cross",
	}
	rec := inst.ExecuteSignal(context.Background(), first, now)
	if rec.Status != journal.StatusPending {
		t.Fatalf("first record status = %s, want PENDING while the order works", rec.Status)
	}

	// A near-identical signal a tick away maps to a limit price inside the
	// match tolerance of the working order.
	second := &Signal{
		Symbol: "SYM", Type: SignalMAGoldenCross, Action: ActionBuy,
		ReferencePrice: 50.02, PositionSize: 10, Confidence: 0.8, Reason: "golden cross again",
	}
	rec2 := inst.ExecuteSignal(context.Background(), second, now.Add(time.Second))
	if rec2.Status != journal.StatusRejected {
		t.Fatalf("second record status = %s, want REJECTED", rec2.Status)
	}
	if !strings.Contains(rec2.Reason, "duplicate-order") || !strings.Contains(rec2.Reason, "open order") {
		t.Errorf("reject reason = %q, want mention of the existing open order", rec2.Reason)
	}
	if j.Len() != 2 {
		t.Errorf("journal length = %d, want 2", j.Len())
	}
}

func TestSellWithoutPositionRejected(t *testing.T) {
	sim := connectedSim(t, 10000)
	sim.SetHoldOrders(true)

	cfg := testStrategyConfig()
	inst, j := newTestInstance(t, newRSIStrategy(cfg), cfg, sim, config.TradingConfig{AllowShortSelling: false})

	sig := &Signal{
		Symbol: "SYM", Type: "RSI_OVERBOUGHT", Action: ActionSell,
		ReferencePrice: 40, PositionSize: 5, Confidence: 0.7, Reason: "overbought",
	}
	rec := inst.ExecuteSignal(context.Background(), sig, time.Now())
	if rec.Status != journal.StatusRejected {
		t.Fatalf("status = %s, want REJECTED", rec.Status)
	}
	if rec.Reason != "no position, shorting disabled" {
		t.Errorf("reason = %q, want %q", rec.Reason, "no position, shorting disabled")
	}
	if j.Len() != 1 {
		t.Errorf("journal length = %d, want 1", j.Len())
	}
	open, _ := sim.OpenOrders(context.Background(), "")
	if len(open) != 0 {
		t.Errorf("orders reached the broker: %+v", open)
	}
}

func TestStopLossBeatsTakeProfit(t *testing.T) {
	sim := connectedSim(t, 10000)
	sim.SeedPosition("SYM", 10, 100.00)

	cfg := testStrategyConfig()
	cfg.StopLossPct = 0.02
	cfg.TakeProfitPct = 0.05
	inst, _ := newTestInstance(t, newRSIStrategy(cfg), cfg, sim, config.TradingConfig{})

	now := time.Date(2026, 1, 5, 11, 0, 0, 0, time.UTC)
	if err := inst.SyncPositionsFromBroker(context.Background(), now); err != nil {
		t.Fatalf("sync error: %v", err)
	}

	bars := makeBars(now, []float64{100, 99, 97.50}, nil)
	signals := inst.Generate("SYM", bars, nil, now.Add(3*time.Minute))
	if len(signals) != 1 {
		t.Fatalf("Generate() = %d signals, want the stop loss alone", len(signals))
	}
	sig := signals[0]
	if sig.Type != SignalStopLoss {
		t.Fatalf("signal type = %s, want %s", sig.Type, SignalStopLoss)
	}
	if sig.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", sig.Confidence)
	}
	if sig.Action != ActionSell || sig.PositionSize != 10 {
		t.Errorf("exit = %s size %d, want SELL size 10", sig.Action, sig.PositionSize)
	}
}

// ===== INVARIANTS =====

func TestSyncTwiceIsIdempotent(t *testing.T) {
	sim := connectedSim(t, 5000)
	sim.SeedPosition("CCC", 7, 31.5)

	cfg := testStrategyConfig()
	inst, _ := newTestInstance(t, newRSIStrategy(cfg), cfg, sim, config.TradingConfig{})

	t1 := time.Date(2026, 1, 5, 9, 31, 0, 0, time.UTC)
	if err := inst.SyncPositionsFromBroker(context.Background(), t1); err != nil {
		t.Fatalf("first sync error: %v", err)
	}
	first := inst.Positions()

	if err := inst.SyncPositionsFromBroker(context.Background(), t1.Add(5*time.Minute)); err != nil {
		t.Fatalf("second sync error: %v", err)
	}
	second := inst.Positions()

	if !reflect.DeepEqual(first, second) {
		t.Errorf("positions diverged across idle syncs:\nfirst  %+v\nsecond %+v", first, second)
	}
	if second["CCC"].EntryTime != t1 {
		t.Errorf("EntryTime = %v, want preserved %v", second["CCC"].EntryTime, t1)
	}
}

func TestSameHashDedupAndCooldown(t *testing.T) {
	cfg := testStrategyConfig()
	tcfg := config.TradingConfig{SimulateWhenDisconnected: true}
	inst, j := newTestInstance(t, newRSIStrategy(cfg), cfg, nil, tcfg)

	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	sig := func() *Signal {
		return &Signal{
			Symbol: "SYM", Type: "RSI_OVERSOLD", Action: ActionBuy,
			ReferencePrice: 25, PositionSize: 4, Confidence: 0.7, Reason: "oversold recovery",
		}
	}

	rec := inst.ExecuteSignal(context.Background(), sig(), now)
	if rec.Status != journal.StatusExecuted || !rec.Simulated {
		t.Fatalf("first = %s simulated=%v, want simulated EXECUTED", rec.Status, rec.Simulated)
	}
	if pos, ok := inst.Positions()["SYM"]; !ok || pos.Size != 4 {
		t.Fatalf("local position = %+v, want size 4 without a broker", pos)
	}

	// Same cycle: the executed set blocks the hash.
	rec2 := inst.ExecuteSignal(context.Background(), sig(), now)
	if rec2.Status != journal.StatusRejected || rec2.Reason != "signal cooldown" {
		t.Fatalf("second = %s %q, want REJECTED %q", rec2.Status, rec2.Reason, "signal cooldown")
	}

	// Next cycle inside the cooldown window: the cache blocks it.
	inst.BeginCycle()
	rec3 := inst.ExecuteSignal(context.Background(), sig(), now.Add(2*time.Minute))
	if rec3.Status != journal.StatusRejected || rec3.Reason != "signal cooldown" {
		t.Fatalf("third = %s %q, want REJECTED %q", rec3.Status, rec3.Reason, "signal cooldown")
	}

	// Past the cooldown the hash is live again.
	inst.BeginCycle()
	rec4 := inst.ExecuteSignal(context.Background(), sig(), now.Add(6*time.Minute))
	if rec4.Status != journal.StatusExecuted {
		t.Fatalf("fourth = %s %q, want EXECUTED after cooldown expiry", rec4.Status, rec4.Reason)
	}
	if j.Len() != 4 {
		t.Errorf("journal length = %d, want one record per attempt", j.Len())
	}
}

func TestExecutedSetSharedAcrossStrategies(t *testing.T) {
	tcfg := config.TradingConfig{SimulateWhenDisconnected: true}
	shared := NewExecutedSignalSet()

	build := func(name string) *Instance {
		cfg := testStrategyConfig()
		j := journal.New(filepath.Join(t.TempDir(), name+".json"), zerolog.Nop())
		return NewInstance(newRSIStrategy(cfg), cfg, Deps{
			Journal: j, Trading: tcfg, Logger: zerolog.Nop(), Executed: shared,
		})
	}
	first, second := build("first"), build("second")

	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	sig := func() *Signal {
		return &Signal{
			Symbol: "SYM", Type: "RSI_OVERSOLD", Action: ActionBuy,
			ReferencePrice: 25, PositionSize: 4, Confidence: 0.7, Reason: "oversold recovery",
		}
	}

	if rec := first.ExecuteSignal(context.Background(), sig(), now); rec.Status != journal.StatusExecuted {
		t.Fatalf("first instance = %s %q, want EXECUTED", rec.Status, rec.Reason)
	}

	// Same hash from a different instance in the same cycle is suppressed
	// even though the second instance's own cooldown cache is empty.
	rec := second.ExecuteSignal(context.Background(), sig(), now)
	if rec.Status != journal.StatusRejected || rec.Reason != "signal cooldown" {
		t.Fatalf("second instance = %s %q, want REJECTED %q", rec.Status, rec.Reason, "signal cooldown")
	}

	// Next cycle the shared set resets and the second instance may act.
	second.BeginCycle()
	if rec := second.ExecuteSignal(context.Background(), sig(), now.Add(time.Minute)); rec.Status != journal.StatusExecuted {
		t.Fatalf("post-clear = %s %q, want EXECUTED", rec.Status, rec.Reason)
	}
}

func TestMaxActivePositionsZeroesNewEntries(t *testing.T) {
	cfg := testStrategyConfig()
	cfg.MaxActivePositions = 1
	tcfg := config.TradingConfig{SimulateWhenDisconnected: true}
	inst, _ := newTestInstance(t, newRSIStrategy(cfg), cfg, nil, tcfg)

	now := time.Now()
	open := &Signal{Symbol: "AAA", Type: "RSI_OVERSOLD", Action: ActionBuy,
		ReferencePrice: 100, PositionSize: 2, Confidence: 0.7, Reason: "first"}
	if rec := inst.ExecuteSignal(context.Background(), open, now); rec.Status != journal.StatusExecuted {
		t.Fatalf("setup fill failed: %s %q", rec.Status, rec.Reason)
	}

	fresh := &Signal{Symbol: "BBB", Type: "RSI_OVERSOLD", Action: ActionBuy,
		ReferencePrice: 50, Confidence: 0.8, Reason: "second"}
	if size := inst.CalcPositionSize(context.Background(), fresh, 0); size != 0 {
		t.Errorf("new-symbol size = %d, want 0 at the position cap", size)
	}

	scaleIn := &Signal{Symbol: "AAA", Type: "RSI_OVERSOLD", Action: ActionBuy,
		ReferencePrice: 100, Confidence: 0.8, Reason: "add"}
	if size := inst.CalcPositionSize(context.Background(), scaleIn, 0); size < 1 {
		t.Errorf("scale-in size = %d, want > 0 for a held symbol", size)
	}
}

func TestBuyClampedToAvailableFunds(t *testing.T) {
	sim := connectedSim(t, 800)
	cfg := testStrategyConfig()
	cfg.PerTradeNotionalCap = 100000
	inst, _ := newTestInstance(t, newRSIStrategy(cfg), cfg, sim, config.TradingConfig{})

	now := time.Now()
	if err := inst.SyncPositionsFromBroker(context.Background(), now); err != nil {
		t.Fatalf("sync error: %v", err)
	}
	sim.SetMark("SYM", 60)

	sig := &Signal{Symbol: "SYM", Type: "RSI_OVERSOLD", Action: ActionBuy,
		ReferencePrice: 60, PositionSize: 50, Confidence: 0.9, Reason: "oversold"}
	rec := inst.ExecuteSignal(context.Background(), sig, now)
	if rec.Status != journal.StatusExecuted {
		t.Fatalf("status = %s (%q), want EXECUTED", rec.Status, rec.Reason)
	}
	if rec.Size != 13 { // floor(800/60)
		t.Errorf("clamped size = %d, want 13", rec.Size)
	}
}

func TestBuyBelowMinimumFundsRejected(t *testing.T) {
	sim := connectedSim(t, 300)
	cfg := testStrategyConfig()
	inst, _ := newTestInstance(t, newRSIStrategy(cfg), cfg, sim, config.TradingConfig{})

	now := time.Now()
	if err := inst.SyncPositionsFromBroker(context.Background(), now); err != nil {
		t.Fatalf("sync error: %v", err)
	}

	sig := &Signal{Symbol: "SYM", Type: "RSI_OVERSOLD", Action: ActionBuy,
		ReferencePrice: 10, PositionSize: 5, Confidence: 0.9, Reason: "oversold"}
	rec := inst.ExecuteSignal(context.Background(), sig, now)
	if rec.Status != journal.StatusRejected {
		t.Fatalf("status = %s, want REJECTED under the funds floor", rec.Status)
	}
	if !strings.Contains(rec.Reason, "insufficient funds") {
		t.Errorf("reason = %q, want insufficient funds", rec.Reason)
	}
}

func TestOversizedSellClampsThenShortEntry(t *testing.T) {
	cfg := testStrategyConfig()
	tcfg := config.TradingConfig{SimulateWhenDisconnected: true, AllowShortSelling: true}
	inst, _ := newTestInstance(t, newRSIStrategy(cfg), cfg, nil, tcfg)

	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	buy := &Signal{Symbol: "SYM", Type: "X_ENTRY", Action: ActionBuy,
		ReferencePrice: 100, PositionSize: 5, Confidence: 0.9, Reason: "long"}
	if rec := inst.ExecuteSignal(context.Background(), buy, now); rec.Status != journal.StatusExecuted {
		t.Fatalf("buy failed: %s %q", rec.Status, rec.Reason)
	}

	// Selling more than the book holds flattens the long, never flips it.
	sell := &Signal{Symbol: "SYM", Type: "X_EXIT", Action: ActionSell,
		ReferencePrice: 105, PositionSize: 8, Confidence: 0.9, Reason: "exit long"}
	rec := inst.ExecuteSignal(context.Background(), sell, now.Add(time.Minute))
	if rec.Status != journal.StatusExecuted {
		t.Fatalf("sell failed: %s %q", rec.Status, rec.Reason)
	}
	if rec.Size != 5 {
		t.Errorf("sell size = %d, want clamped to the 5 held", rec.Size)
	}
	if _, ok := inst.Positions()["SYM"]; ok {
		t.Error("position survived a full close")
	}

	// Flat book plus shorting enabled: a sell opens a short at its fill.
	short := &Signal{Symbol: "SYM", Type: "X_SHORT", Action: ActionSell,
		ReferencePrice: 110, PositionSize: 3, Confidence: 0.9, Reason: "short entry"}
	if rec := inst.ExecuteSignal(context.Background(), short, now.Add(2*time.Minute)); rec.Status != journal.StatusExecuted {
		t.Fatalf("short failed: %s %q", rec.Status, rec.Reason)
	}
	pos, ok := inst.Positions()["SYM"]
	if !ok {
		t.Fatal("short position missing")
	}
	if pos.Size != -3 || pos.AvgCost != 110 {
		t.Errorf("short = size %d cost %v, want -3 at 110", pos.Size, pos.AvgCost)
	}
	if !pos.EntryTime.Equal(now.Add(2 * time.Minute)) {
		t.Errorf("entry time = %v, want the short's fill time", pos.EntryTime)
	}
}

func TestTrailingStopRidesWatermark(t *testing.T) {
	sim := connectedSim(t, 10000)
	sim.SeedPosition("SYM", 10, 100.00)

	cfg := testStrategyConfig()
	cfg.TrailingStopPct = 0.05
	cfg.TrailingStopActivation = 0.05
	inst, _ := newTestInstance(t, newRSIStrategy(cfg), cfg, sim, config.TradingConfig{})

	now := time.Date(2026, 1, 5, 11, 0, 0, 0, time.UTC)
	if err := inst.SyncPositionsFromBroker(context.Background(), now); err != nil {
		t.Fatalf("sync error: %v", err)
	}

	// Rally to 110 sets the high watermark and arms the trail.
	if sig := inst.CheckExits("SYM", 110, now.Add(time.Minute), nil); sig != nil {
		t.Fatalf("exit fired on the rally: %s", sig.Type)
	}
	// 106 is a 3.6% giveback, inside the 5% trail.
	if sig := inst.CheckExits("SYM", 106, now.Add(2*time.Minute), nil); sig != nil {
		t.Fatalf("exit fired inside the trail band: %s", sig.Type)
	}
	// 104 gives back more than 5% from the 110 high.
	sig := inst.CheckExits("SYM", 104, now.Add(3*time.Minute), nil)
	if sig == nil || sig.Type != SignalTrailingStop {
		t.Fatalf("got %+v, want %s", sig, SignalTrailingStop)
	}
	if sig.Action != ActionSell || sig.PositionSize != 10 {
		t.Errorf("exit = %s size %d, want SELL 10", sig.Action, sig.PositionSize)
	}
}

func TestDisabledInstanceGeneratesNothing(t *testing.T) {
	closes, vols := goldenCrossSeries()
	bars := makeBars(time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC), closes, vols)

	cfg := testStrategyConfig()
	cfg.Enabled = false
	inst, _ := newTestInstance(t, newDualMA(cfg), cfg, nil, config.TradingConfig{})
	if signals := inst.Generate("SYM", bars, nil, bars.Last().Timestamp); signals != nil {
		t.Errorf("disabled instance generated %d signals", len(signals))
	}

	inst.SetEnabled(true)
	if signals := inst.Generate("SYM", bars, nil, bars.Last().Timestamp); len(signals) != 1 {
		t.Errorf("re-enabled instance generated %d signals, want 1", len(signals))
	}
}

func TestShortSeriesGeneratesNothing(t *testing.T) {
	cfg := testStrategyConfig() // MinDataPoints 30
	inst, _ := newTestInstance(t, newDualMA(cfg), cfg, nil, config.TradingConfig{})

	bars := makeBars(time.Now(), []float64{100, 101, 102}, nil)
	if signals := inst.Generate("SYM", bars, nil, bars.Last().Timestamp); len(signals) != 0 {
		t.Errorf("short series generated %d signals, want 0", len(signals))
	}
}
