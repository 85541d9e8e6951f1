package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/marketdata"
	"stock-trading-engine/internal/strategy"
)

// ===== STUBS =====

// scriptedStrategy emits whatever its fire function returns. Nil fire or an
// empty bar series yields nothing.
type scriptedStrategy struct {
	id   string
	fire func(symbol string, bars marketdata.BarSeries) []strategy.Signal
}

func (s *scriptedStrategy) ID() string   { return s.id }
func (s *scriptedStrategy) Name() string { return "Scripted " + s.id }

func (s *scriptedStrategy) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []strategy.Signal {
	if s.fire == nil || bars.Empty() {
		return nil
	}
	return s.fire(symbol, bars)
}

func buySignal(symbol string, price, confidence float64) strategy.Signal {
	return strategy.Signal{
		Symbol:         symbol,
		Type:           strategy.SignalMomentumEntry,
		Action:         strategy.ActionBuy,
		ReferencePrice: price,
		Confidence:     confidence,
		Reason:         "scripted entry",
	}
}

// stubData serves canned bar series per symbol and records which symbols
// were fetched. Safe for concurrent workers.
type stubData struct {
	mu    sync.Mutex
	bars  map[string]marketdata.BarSeries
	calls []string
}

func newStubData() *stubData {
	return &stubData{bars: make(map[string]marketdata.BarSeries)}
}

func (d *stubData) GetEnhanced(ctx context.Context, symbol, interval string, lookback int) (marketdata.BarSeries, marketdata.IndicatorSet) {
	d.mu.Lock()
	d.calls = append(d.calls, symbol)
	d.mu.Unlock()
	return d.bars[symbol], marketdata.IndicatorSet{}
}

func (d *stubData) fetched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]string(nil), d.calls...)
	sort.Strings(out)
	return out
}

func flatBars(n int, price float64) marketdata.BarSeries {
	t0 := time.Date(2024, 3, 12, 9, 30, 0, 0, time.UTC)
	bars := make(marketdata.BarSeries, n)
	for i := range bars {
		bars[i] = marketdata.Bar{
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Open:      price,
			High:      price + 0.5,
			Low:       price - 0.5,
			Close:     price,
			Volume:    1_000_000,
		}
	}
	return bars
}

func hostStratConfig() *config.StrategyConfig {
	return &config.StrategyConfig{
		Enabled:             true,
		InitialCapital:      10000,
		RiskPerTrade:        0.05,
		MaxActivePositions:  5,
		PerTradeNotionalCap: 5000,
		MaxPositionNotional: 10000,
		MinCashBuffer:       0.05,
		StopLossATRMultiple: 1.5,
		IBOrderType:         "MKT",
		Interval:            "5m",
		Lookback:            60,
		MinDataPoints:       2,
	}
}

func hostInstance(t *testing.T, s strategy.Strategy, trading config.TradingConfig) *strategy.Instance {
	t.Helper()
	return strategy.NewInstance(s, hostStratConfig(), strategy.Deps{
		Trading: trading,
		Logger:  zerolog.Nop(),
	})
}

func testHost(t *testing.T, insts map[string]*strategy.Instance, routes map[string]string, defaultID string, data DataSource) *Host {
	t.Helper()
	return NewHost(insts, routes, defaultID, data, zerolog.Nop())
}

// ===== TESTS =====

func TestGroupSymbolsRoutesWithDefault(t *testing.T) {
	a1 := hostInstance(t, &scriptedStrategy{id: "a1"}, config.TradingConfig{})
	a2 := hostInstance(t, &scriptedStrategy{id: "a2"}, config.TradingConfig{})
	h := testHost(t,
		map[string]*strategy.Instance{"a1": a1, "a2": a2},
		map[string]string{"BBB": "a2", "DDD": "zz"},
		"a1", newStubData())

	groups := h.GroupSymbols([]string{"AAA", "BBB", "CCC", "DDD"})

	if got := groups["a1"]; len(got) != 2 || got[0] != "AAA" || got[1] != "CCC" {
		t.Fatalf("a1 group = %v, want [AAA CCC]", got)
	}
	if got := groups["a2"]; len(got) != 1 || got[0] != "BBB" {
		t.Fatalf("a2 group = %v, want [BBB]", got)
	}
	if _, ok := groups["zz"]; ok {
		t.Fatal("symbol routed to unknown strategy must be dropped, not grouped")
	}
}

func TestRunOnceCollectsSignalsPerSymbol(t *testing.T) {
	fire := func(symbol string, bars marketdata.BarSeries) []strategy.Signal {
		return []strategy.Signal{buySignal(symbol, bars.Last().Close, 0.9)}
	}
	a1 := hostInstance(t, &scriptedStrategy{id: "a1", fire: fire}, config.TradingConfig{})
	a2 := hostInstance(t, &scriptedStrategy{id: "a2", fire: fire}, config.TradingConfig{})

	data := newStubData()
	for _, sym := range []string{"AAA", "BBB", "CCC"} {
		data.bars[sym] = flatBars(5, 100)
	}
	h := testHost(t,
		map[string]*strategy.Instance{"a1": a1, "a2": a2},
		map[string]string{"CCC": "a2"},
		"a1", data)

	out := h.RunOnce(context.Background(), []string{"AAA", "BBB", "CCC"}, time.Now())

	if len(out) != 3 {
		t.Fatalf("RunOnce symbols = %d, want 3", len(out))
	}
	for sym, want := range map[string]string{"AAA": "a1", "BBB": "a1", "CCC": "a2"} {
		sigs := out[sym]
		if len(sigs) != 1 {
			t.Fatalf("RunOnce[%s] = %d signals, want 1", sym, len(sigs))
		}
		if sigs[0].StrategyID != want {
			t.Errorf("RunOnce[%s].StrategyID = %q, want %q", sym, sigs[0].StrategyID, want)
		}
		if sigs[0].Hash == "" {
			t.Errorf("RunOnce[%s] signal hash empty, want tagged", sym)
		}
	}
	if got := data.fetched(); len(got) != 3 {
		t.Fatalf("data fetches = %v, want one per symbol", got)
	}
}

func TestStreamRunPreservesPerSymbolOrder(t *testing.T) {
	fire := func(symbol string, bars marketdata.BarSeries) []strategy.Signal {
		first := buySignal(symbol, bars.Last().Close, 0.8)
		first.Reason = "first"
		second := buySignal(symbol, bars.Last().Close, 0.9)
		second.Reason = "second"
		return []strategy.Signal{first, second}
	}
	a1 := hostInstance(t, &scriptedStrategy{id: "a1", fire: fire}, config.TradingConfig{})

	data := newStubData()
	data.bars["AAA"] = flatBars(5, 100)
	data.bars["BBB"] = flatBars(5, 50)
	h := testHost(t, map[string]*strategy.Instance{"a1": a1}, nil, "a1", data)

	seen := make(map[string][]string)
	for sig := range h.StreamRun(context.Background(), []string{"AAA", "BBB"}, time.Now()) {
		seen[sig.Symbol] = append(seen[sig.Symbol], sig.Reason)
	}

	for _, sym := range []string{"AAA", "BBB"} {
		got := seen[sym]
		if len(got) != 2 || got[0] != "first" || got[1] != "second" {
			t.Fatalf("stream order for %s = %v, want [first second]", sym, got)
		}
	}
}

func TestStreamRunEmptySeriesSkipsSymbol(t *testing.T) {
	fire := func(symbol string, bars marketdata.BarSeries) []strategy.Signal {
		return []strategy.Signal{buySignal(symbol, bars.Last().Close, 0.9)}
	}
	a1 := hostInstance(t, &scriptedStrategy{id: "a1", fire: fire}, config.TradingConfig{})

	data := newStubData()
	data.bars["AAA"] = flatBars(5, 100)
	// BBB intentionally missing: the data source returns an empty series.
	h := testHost(t, map[string]*strategy.Instance{"a1": a1}, nil, "a1", data)

	var got []string
	for sig := range h.StreamRun(context.Background(), []string{"AAA", "BBB"}, time.Now()) {
		got = append(got, sig.Symbol)
	}
	if len(got) != 1 || got[0] != "AAA" {
		t.Fatalf("signals = %v, want only AAA", got)
	}
}

func TestHostSkipsDisabledInstance(t *testing.T) {
	fire := func(symbol string, bars marketdata.BarSeries) []strategy.Signal {
		return []strategy.Signal{buySignal(symbol, bars.Last().Close, 0.9)}
	}
	a1 := hostInstance(t, &scriptedStrategy{id: "a1", fire: fire}, config.TradingConfig{})
	a1.SetEnabled(false)

	data := newStubData()
	data.bars["AAA"] = flatBars(5, 100)
	h := testHost(t, map[string]*strategy.Instance{"a1": a1}, nil, "a1", data)

	out := h.RunOnce(context.Background(), []string{"AAA"}, time.Now())
	if len(out) != 0 {
		t.Fatalf("disabled instance produced %v, want nothing", out)
	}
	if got := data.fetched(); len(got) != 0 {
		t.Fatalf("disabled instance fetched data for %v, want no fetches", got)
	}
}

func TestStreamRunManyGroupsBoundedWorkers(t *testing.T) {
	fire := func(symbol string, bars marketdata.BarSeries) []strategy.Signal {
		return []strategy.Signal{buySignal(symbol, bars.Last().Close, 0.9)}
	}
	insts := make(map[string]*strategy.Instance)
	routes := make(map[string]string)
	symbols := make([]string, 0, 12)
	data := newStubData()
	for k := 0; k < 12; k++ {
		id := fmt.Sprintf("a%d", k+1)
		insts[id] = hostInstance(t, &scriptedStrategy{id: id, fire: fire}, config.TradingConfig{})
		sym := fmt.Sprintf("SYM%02d", k)
		routes[sym] = id
		symbols = append(symbols, sym)
		data.bars[sym] = flatBars(5, 100)
	}
	h := testHost(t, insts, routes, "a1", data)

	count := 0
	for range h.StreamRun(context.Background(), symbols, time.Now()) {
		count++
	}
	if count != 12 {
		t.Fatalf("signals = %d, want 12 (one per group)", count)
	}
}

func TestWorkerCountBounds(t *testing.T) {
	cases := []struct{ groups, want int }{
		{0, 1}, {1, 1}, {5, 5}, {8, 8}, {31, 8},
	}
	for _, tc := range cases {
		if got := workerCount(tc.groups); got != tc.want {
			t.Errorf("workerCount(%d) = %d, want %d", tc.groups, got, tc.want)
		}
	}
}

func TestStreamRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fire := func(symbol string, bars marketdata.BarSeries) []strategy.Signal {
		return []strategy.Signal{buySignal(symbol, bars.Last().Close, 0.9)}
	}
	a1 := hostInstance(t, &scriptedStrategy{id: "a1", fire: fire}, config.TradingConfig{})
	data := newStubData()
	data.bars["AAA"] = flatBars(5, 100)
	h := testHost(t, map[string]*strategy.Instance{"a1": a1}, nil, "a1", data)

	count := 0
	for range h.StreamRun(ctx, []string{"AAA"}, time.Now()) {
		count++
	}
	if count != 0 {
		t.Fatalf("cancelled stream delivered %d signals, want 0", count)
	}
}
