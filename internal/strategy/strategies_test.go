package strategy

import (
	"math"
	"testing"
	"time"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/indicators"
)

func TestRSIFiresOncePerExcursion(t *testing.T) {
	// Decline deep enough to push RSI under 30, then a steady recovery.
	var closes []float64
	for i := 0; i < 20; i++ {
		closes = append(closes, 100)
	}
	for i := 0; i < 15; i++ {
		closes = append(closes, 100-1.5*float64(i+1))
	}
	for i := 0; i < 15; i++ {
		closes = append(closes, 77.5+1.2*float64(i+1))
	}
	bars := makeBars(time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC), closes, nil)

	// Mirror the indicator to find the single bar where RSI crosses back
	// through 30 from below.
	crossBar := -1
	for i := 30; i < len(closes); i++ {
		rsi := indicators.RSI(closes[:i+1], 14)
		prev, last := indicators.Prev(rsi), indicators.Last(rsi)
		if !math.IsNaN(prev) && !math.IsNaN(last) && prev <= 30 && last > 30 {
			crossBar = i
			break
		}
	}
	if crossBar < 0 {
		t.Fatal("fixture: RSI never recovered through 30")
	}

	cfg := testStrategyConfig()
	s := newRSIStrategy(cfg)
	fired := 0
	for i := 30; i < len(closes); i++ {
		signals := s.GenerateSignals("SYM", bars[:i+1], nil)
		for _, sig := range signals {
			if sig.Type != "RSI_OVERSOLD" {
				continue
			}
			fired++
			if i != crossBar {
				t.Errorf("RSI_OVERSOLD at bar %d, want only at the crossing bar %d", i, crossBar)
			}
			if sig.Action != ActionBuy {
				t.Errorf("action = %s, want BUY", sig.Action)
			}
			if sig.Confidence < 0.55 || sig.Confidence > 1.0 {
				t.Errorf("confidence = %v, want within [0.55, 1.0]", sig.Confidence)
			}
		}
	}
	if fired != 1 {
		t.Errorf("RSI_OVERSOLD fired %d times across the excursion, want 1", fired)
	}
}

func TestPriorSessionAggregation(t *testing.T) {
	day1 := time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 6, 9, 30, 0, 0, time.UTC)

	bars := makeBars(day1, []float64{100, 104, 98, 102}, nil)
	bars = append(bars, makeBars(day2, []float64{103, 105}, nil)...)

	high, low, closePx, ok := priorSessionHLC(bars)
	if !ok {
		t.Fatal("priorSessionHLC() found no prior session")
	}
	if high != 104.5 { // day1 max close 104 + 0.5 bar range
		t.Errorf("prior high = %v, want 104.5", high)
	}
	if low != 97.5 {
		t.Errorf("prior low = %v, want 97.5", low)
	}
	if closePx != 102 {
		t.Errorf("prior close = %v, want the last day-1 close 102", closePx)
	}

	// A single session has no prior day to pivot from.
	if _, _, _, ok := priorSessionHLC(bars[4:]); ok {
		t.Error("priorSessionHLC() produced pivots from one session")
	}
}

func TestMinerviniTemplate(t *testing.T) {
	cfg := testStrategyConfig()
	s := newMinervini(cfg)

	rise := make([]float64, 250)
	for i := range rise {
		rise[i] = 100 * math.Pow(1.003, float64(i))
	}
	highs := make([]float64, len(rise))
	lows := make([]float64, len(rise))
	for i, c := range rise {
		highs[i], lows[i] = c+0.5, c-0.5
	}
	ok, rating := s.template(rise, highs, lows)
	if !ok {
		t.Fatal("steady two-stage uptrend failed the trend template")
	}
	if rating < 70 {
		t.Errorf("relative strength rating = %.1f, want >= 70 on a persistent uptrend", rating)
	}

	fall := make([]float64, 250)
	for i := range fall {
		fall[i] = 300 * math.Pow(0.997, float64(i))
	}
	for i, c := range fall {
		highs[i], lows[i] = c+0.5, c-0.5
	}
	if ok, _ := s.template(fall, highs, lows); ok {
		t.Error("downtrend passed the trend template")
	}

	flat := make([]float64, 250)
	for i := range flat {
		flat[i] = 100
	}
	for i, c := range flat {
		highs[i], lows[i] = c+0.5, c-0.5
	}
	if ok, _ := s.template(flat, highs, lows); ok {
		t.Error("flat tape passed the trend template: no base advance")
	}
}

func TestVolumeRatioWindow(t *testing.T) {
	vols := make([]float64, 25)
	for i := range vols {
		vols[i] = 1000
	}
	vols[24] = 4000
	if got := volumeRatio(vols, 20); got != 4.0 {
		t.Errorf("volumeRatio = %v, want 4.0 against the trailing mean", got)
	}

	// Short history degrades to neutral rather than guessing.
	if got := volumeRatio([]float64{500, 600}, 20); got != 1.0 {
		t.Errorf("volumeRatio on short history = %v, want 1.0", got)
	}
}

func TestClampConfBounds(t *testing.T) {
	if got := clampConf(1.7, 0.55); got != 1.0 {
		t.Errorf("clampConf(1.7) = %v, want capped at 1.0", got)
	}
	if got := clampConf(0.1, 0.55); got != 0.55 {
		t.Errorf("clampConf(0.1) = %v, want floored at 0.55", got)
	}
	if got := clampConf(0.7, 0.55); got != 0.7 {
		t.Errorf("clampConf(0.7) = %v, want passed through", got)
	}
}

func TestCrossingHelpersIgnoreNaN(t *testing.T) {
	if crossedUp([]float64{math.NaN(), 31}, 30) {
		t.Error("crossedUp fired from a NaN warmup value")
	}
	if crossedDown([]float64{math.NaN(), 29}, 30) {
		t.Error("crossedDown fired from a NaN warmup value")
	}
	if !crossedUp([]float64{29, 31}, 30) {
		t.Error("crossedUp missed a clean cross")
	}
	if crossedUp([]float64{31, 32}, 30) {
		t.Error("crossedUp fired with no cross")
	}
	// Touching the level counts as below: the cross is the departure.
	if !crossedUp([]float64{30, 31}, 30) {
		t.Error("crossedUp missed a cross departing from the level")
	}
}

func TestStrategyMinimumData(t *testing.T) {
	cfg := config.DefaultStrategyConfig()
	short := makeBars(time.Now(), []float64{100, 101}, nil)
	for _, id := range IDs() {
		s, err := New(id, cfg)
		if err != nil {
			t.Fatalf("New(%q) error: %v", id, err)
		}
		if signals := s.GenerateSignals("SYM", short, nil); len(signals) != 0 {
			t.Errorf("strategy %q produced %d signals from 2 bars", id, len(signals))
		}
	}
}
