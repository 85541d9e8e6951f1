package indicators

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestSMAKnownValues(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	got := SMA(xs, 3)

	if len(got) != len(xs) {
		t.Fatalf("expected output length %d, got %d", len(xs), len(got))
	}
	for i := 0; i < 2; i++ {
		if !math.IsNaN(got[i]) {
			t.Errorf("position %d: expected NaN before window fills, got %v", i, got[i])
		}
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if !almostEqual(got[i+2], w) {
			t.Errorf("position %d: expected %v, got %v", i+2, w, got[i+2])
		}
	}
}

func TestSMAShorterThanWindow(t *testing.T) {
	got := SMA([]float64{1, 2}, 5)
	for i, v := range got {
		if !math.IsNaN(v) {
			t.Errorf("position %d: expected NaN, got %v", i, v)
		}
	}
}

func TestEMASeededFromFirstValue(t *testing.T) {
	flat := []float64{10, 10, 10, 10}
	for i, v := range EMA(flat, 3) {
		if !almostEqual(v, 10) {
			t.Errorf("position %d: expected 10, got %v", i, v)
		}
	}

	// Manual recurrence with k = 2/(period+1) = 0.5.
	xs := []float64{10, 12}
	got := EMA(xs, 3)
	if !almostEqual(got[0], 10) {
		t.Errorf("expected seed 10, got %v", got[0])
	}
	if !almostEqual(got[1], 12*0.5+10*0.5) {
		t.Errorf("expected 11, got %v", got[1])
	}
}

func TestRSIDirectionAndBounds(t *testing.T) {
	up := make([]float64, 30)
	down := make([]float64, 30)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 100 - float64(i)
	}

	rsiUp := Last(RSI(up, 14))
	rsiDown := Last(RSI(down, 14))

	if rsiUp < 99 {
		t.Errorf("monotonic rally should push RSI toward 100, got %v", rsiUp)
	}
	if rsiDown > 1 {
		t.Errorf("monotonic decline should push RSI toward 0, got %v", rsiDown)
	}

	rsi := RSI(up, 14)
	for i := 0; i < 14; i++ {
		if !math.IsNaN(rsi[i]) {
			t.Errorf("position %d: expected NaN before period+1 bars, got %v", i, rsi[i])
		}
	}
}

func TestMACDHistogramRelation(t *testing.T) {
	xs := make([]float64, 60)
	for i := range xs {
		xs[i] = 100 + 5*math.Sin(float64(i)/7)
	}
	res := MACD(xs, 12, 26, 9)
	for i := range xs {
		if math.IsNaN(res.Line[i]) {
			continue
		}
		if !almostEqual(res.Histogram[i], res.Line[i]-res.Signal[i]) {
			t.Errorf("position %d: histogram != line - signal", i)
		}
	}
}

func TestATRFirstBarAndWindow(t *testing.T) {
	high := []float64{11, 12, 13}
	low := []float64{9, 10, 11}
	close := []float64{10, 11, 12}

	atr := ATR(high, low, close, 2)
	if !math.IsNaN(atr[0]) {
		t.Errorf("expected NaN before window, got %v", atr[0])
	}
	// TR = [2, 2, 2] so ATR(2) = 2 from index 1.
	for i := 1; i < 3; i++ {
		if !almostEqual(atr[i], 2) {
			t.Errorf("position %d: expected ATR 2, got %v", i, atr[i])
		}
	}
}

func TestBollingerPopulationSigma(t *testing.T) {
	// Classic population-sigma example: sigma = 2, mean = 5.
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	bb := Bollinger(xs, 8, 2)

	last := len(xs) - 1
	if !almostEqual(bb.Middle[last], 5) {
		t.Errorf("expected middle 5, got %v", bb.Middle[last])
	}
	if !almostEqual(bb.Upper[last], 9) {
		t.Errorf("expected upper 9, got %v", bb.Upper[last])
	}
	if !almostEqual(bb.Lower[last], 1) {
		t.Errorf("expected lower 1, got %v", bb.Lower[last])
	}
}

func TestZScoreFlatSeries(t *testing.T) {
	xs := []float64{5, 5, 5, 5, 5}
	z := ZScore(xs, 3)
	if !almostEqual(Last(z), 0) {
		t.Errorf("flat series should have z = 0, got %v", Last(z))
	}
}

func TestDonchianKnownChannel(t *testing.T) {
	high := []float64{10, 12, 11, 13}
	low := []float64{8, 9, 7, 10}
	dc := Donchian(high, low, 3)

	last := 3
	if !almostEqual(dc.Upper[last], 13) {
		t.Errorf("expected upper 13, got %v", dc.Upper[last])
	}
	if !almostEqual(dc.Lower[last], 7) {
		t.Errorf("expected lower 7, got %v", dc.Lower[last])
	}
	if !almostEqual(dc.Middle[last], 10) {
		t.Errorf("expected middle 10, got %v", dc.Middle[last])
	}
}

func TestSuperTrendLockedBandsAndFlip(t *testing.T) {
	// Hand-computed with period=2, factor=1: uptrend, then a crash through
	// the locked lower band at bar 3 flips the trend exactly there.
	high := []float64{11, 12, 13, 11, 9}
	low := []float64{9, 10, 11, 7, 7}
	close := []float64{10, 11, 12, 8, 8}

	st := SuperTrend(high, low, close, 2, 1.0)

	wantTrend := []int{0, 1, 1, -1, -1}
	for i, w := range wantTrend {
		if st.Trend[i] != w {
			t.Errorf("bar %d: expected trend %d, got %d", i, w, st.Trend[i])
		}
	}

	wantLevel := []float64{math.NaN(), 9, 10, 12.5, 11.5}
	for i, w := range wantLevel {
		if math.IsNaN(w) {
			if !math.IsNaN(st.Level[i]) {
				t.Errorf("bar %d: expected NaN level, got %v", i, st.Level[i])
			}
			continue
		}
		if !almostEqual(st.Level[i], w) {
			t.Errorf("bar %d: expected level %v, got %v", i, w, st.Level[i])
		}
	}
}

func TestSuperTrendNoFlipWithoutCross(t *testing.T) {
	// Steady rally never crosses the lower band: trend must stay +1.
	n := 40
	high := make([]float64, n)
	low := make([]float64, n)
	close := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100 + float64(i)
		high[i] = base + 1
		low[i] = base - 1
		close[i] = base
	}
	st := SuperTrend(high, low, close, 10, 3.0)
	for i, tr := range st.Trend {
		if tr == -1 {
			t.Errorf("bar %d: unexpected downtrend flip in steady rally", i)
		}
	}
}

func TestAroonExtremes(t *testing.T) {
	n := 30
	high := make([]float64, n)
	low := make([]float64, n)
	for i := 0; i < n; i++ {
		high[i] = 100 + float64(i)
		low[i] = 90 + float64(i)
	}
	res := Aroon(high, low, 25)
	if !almostEqual(Last(res.Up), 100) {
		t.Errorf("fresh high every bar should give AroonUp 100, got %v", Last(res.Up))
	}
	if Last(res.Down) > 1 {
		t.Errorf("rising lows should give AroonDown near 0, got %v", Last(res.Down))
	}
}

func TestOscillatorRanges(t *testing.T) {
	n := 60
	high := make([]float64, n)
	low := make([]float64, n)
	close := make([]float64, n)
	volume := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100 + 10*math.Sin(float64(i)/5)
		high[i] = base + 2
		low[i] = base - 2
		close[i] = base + math.Cos(float64(i))
		volume[i] = 1000 + 100*float64(i%7)
	}

	for i, v := range StochasticOscillator(high, low, close, 14, 3).K {
		if math.IsNaN(v) {
			continue
		}
		if v < 0 || v > 100 {
			t.Errorf("stochastic %%K out of range at %d: %v", i, v)
		}
	}
	for i, v := range WilliamsR(high, low, close, 14) {
		if math.IsNaN(v) {
			continue
		}
		if v < -100 || v > 0 {
			t.Errorf("williams %%R out of range at %d: %v", i, v)
		}
	}
	for i, v := range MFI(high, low, close, volume, 14) {
		if math.IsNaN(v) {
			continue
		}
		if v < 0 || v > 100 {
			t.Errorf("MFI out of range at %d: %v", i, v)
		}
	}
	for i, v := range UltimateOscillator(high, low, close, 7, 14, 28) {
		if math.IsNaN(v) {
			continue
		}
		if v < 0 || v > 100 {
			t.Errorf("ultimate oscillator out of range at %d: %v", i, v)
		}
	}
	for i, v := range StochRSI(close, 14, 14) {
		if math.IsNaN(v) {
			continue
		}
		if v < 0 || v > 1 {
			t.Errorf("stochRSI out of range at %d: %v", i, v)
		}
	}
}

func TestROCKnownValue(t *testing.T) {
	xs := []float64{100, 101, 102, 103, 104, 110}
	roc := ROC(xs, 5)
	if !almostEqual(Last(roc), 10) {
		t.Errorf("expected ROC 10%%, got %v", Last(roc))
	}
}

func TestTSISignFollowsTrend(t *testing.T) {
	n := 80
	up := make([]float64, n)
	for i := range up {
		up[i] = 100 + float64(i)
	}
	if Last(TSI(up, 25, 13)) <= 0 {
		t.Errorf("uptrend should give positive TSI, got %v", Last(TSI(up, 25, 13)))
	}
}

func TestKeltnerOrdering(t *testing.T) {
	n := 40
	high := make([]float64, n)
	low := make([]float64, n)
	close := make([]float64, n)
	for i := 0; i < n; i++ {
		high[i] = 102 + float64(i)*0.1
		low[i] = 98 + float64(i)*0.1
		close[i] = 100 + float64(i)*0.1
	}
	kc := Keltner(high, low, close, 20, 10, 2)
	last := n - 1
	if !(kc.Upper[last] > kc.Middle[last] && kc.Middle[last] > kc.Lower[last]) {
		t.Errorf("expected upper > middle > lower, got %v %v %v",
			kc.Upper[last], kc.Middle[last], kc.Lower[last])
	}
}

func TestClassicPivots(t *testing.T) {
	p := ClassicPivots(110, 90, 100)
	cases := []struct {
		name string
		got  float64
		want float64
	}{
		{"pivot", p.Pivot, 100},
		{"r1", p.R1, 110},
		{"s1", p.S1, 90},
		{"r2", p.R2, 120},
		{"s2", p.S2, 80},
		{"r3", p.R3, 130},
		{"s3", p.S3, 70},
	}
	for _, tc := range cases {
		if !almostEqual(tc.got, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, tc.got)
		}
	}
}

func TestCrossoverDetection(t *testing.T) {
	fast := []float64{1, 2, 3}
	slow := []float64{2, 2, 2}
	if !CrossedAbove(fast, slow) {
		t.Error("expected upward cross")
	}
	if CrossedBelow(fast, slow) {
		t.Error("did not expect downward cross")
	}
	if CrossedAbove(slow, fast) {
		t.Error("reverse series should not cross above")
	}

	withNaN := []float64{math.NaN(), 3}
	if CrossedAbove(withNaN, []float64{2, 2}) {
		t.Error("NaN input must not report a cross")
	}
}

func TestIndicatorPurity(t *testing.T) {
	xs := make([]float64, 50)
	for i := range xs {
		xs[i] = 100 + 3*math.Sin(float64(i)/4) + 0.1*float64(i)
	}

	a := RSI(xs, 14)
	b := RSI(xs, 14)
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			t.Fatalf("RSI not bit-exact at %d: %v vs %v", i, a[i], b[i])
		}
	}

	z1 := ZScore(xs, 20)
	z2 := ZScore(xs, 20)
	for i := range z1 {
		if math.Float64bits(z1[i]) != math.Float64bits(z2[i]) {
			t.Fatalf("ZScore not bit-exact at %d", i)
		}
	}
}

func TestNaNPropagation(t *testing.T) {
	xs := []float64{1, 2, math.NaN(), 4, 5, 6}
	sma := SMA(xs, 3)
	// Windows containing the NaN are NaN; later windows recover.
	for i := 2; i <= 4; i++ {
		if !math.IsNaN(sma[i]) {
			t.Errorf("position %d: expected NaN through poisoned window, got %v", i, sma[i])
		}
	}
	if !almostEqual(sma[5], 5) {
		t.Errorf("expected clean window mean 5, got %v", sma[5])
	}
}
