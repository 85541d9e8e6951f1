// Package indicators provides pure technical-indicator functions over ordered
// numeric series. Every function returns a slice the same length as its input,
// with NaN at positions where the trailing window is not yet full. NaN inputs
// propagate through the arithmetic.
package indicators

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// eps guards divisions where a flat window would otherwise blow up.
const eps = 1e-10

// nans returns a slice of n NaN values.
func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// SMA calculates the simple moving average over a trailing window.
func SMA(xs []float64, period int) []float64 {
	out := nans(len(xs))
	if period <= 0 || len(xs) < period {
		return out
	}
	for i := period - 1; i < len(xs); i++ {
		out[i] = stat.Mean(xs[i-period+1:i+1], nil)
	}
	return out
}

// EMA calculates the exponential moving average, seeded from the first value
// with smoothing factor 2/(period+1).
func EMA(xs []float64, period int) []float64 {
	out := nans(len(xs))
	if period <= 0 || len(xs) == 0 {
		return out
	}
	k := 2.0 / float64(period+1)
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = xs[i]*k + out[i-1]*(1-k)
	}
	return out
}

// ============================================================================
// OSCILLATORS
// ============================================================================

// RSI calculates the Relative Strength Index with simple-mean smoothing of
// up and down moves over the trailing period.
func RSI(closes []float64, period int) []float64 {
	out := nans(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}
	for i := period; i < len(closes); i++ {
		gains := 0.0
		losses := 0.0
		for j := i - period + 1; j <= i; j++ {
			change := closes[j] - closes[j-1]
			if change > 0 {
				gains += change
			} else {
				losses += -change
			}
		}
		avgGain := gains / float64(period)
		avgLoss := losses / float64(period)
		rs := avgGain / (avgLoss + eps)
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// StochRSI normalizes RSI into [0,1] over a trailing stochastic window.
func StochRSI(closes []float64, rsiPeriod, stochPeriod int) []float64 {
	rsi := RSI(closes, rsiPeriod)
	out := nans(len(closes))
	for i := rsiPeriod + stochPeriod - 1; i < len(closes); i++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for j := i - stochPeriod + 1; j <= i; j++ {
			if math.IsNaN(rsi[j]) {
				lo = math.NaN()
				break
			}
			lo = math.Min(lo, rsi[j])
			hi = math.Max(hi, rsi[j])
		}
		if math.IsNaN(lo) {
			continue
		}
		out[i] = (rsi[i] - lo) / (hi - lo + eps)
	}
	return out
}

// Stochastic holds the %K and %D lines of the stochastic oscillator.
type Stochastic struct {
	K []float64
	D []float64
}

// StochasticOscillator calculates %K = 100*(C-LL)/(HH-LL) and %D = SMA(%K).
func StochasticOscillator(high, low, close []float64, kPeriod, dPeriod int) *Stochastic {
	k := nans(len(close))
	for i := kPeriod - 1; i < len(close); i++ {
		hh := math.Inf(-1)
		ll := math.Inf(1)
		for j := i - kPeriod + 1; j <= i; j++ {
			hh = math.Max(hh, high[j])
			ll = math.Min(ll, low[j])
		}
		k[i] = 100 * (close[i] - ll) / (hh - ll + eps)
	}
	return &Stochastic{K: k, D: SMA(k, dPeriod)}
}

// WilliamsR calculates Williams %R in [-100, 0].
func WilliamsR(high, low, close []float64, period int) []float64 {
	out := nans(len(close))
	for i := period - 1; i < len(close); i++ {
		hh := math.Inf(-1)
		ll := math.Inf(1)
		for j := i - period + 1; j <= i; j++ {
			hh = math.Max(hh, high[j])
			ll = math.Min(ll, low[j])
		}
		out[i] = -100 * (hh - close[i]) / (hh - ll + eps)
	}
	return out
}

// ROC calculates the rate of change in percent against the close n bars back.
func ROC(closes []float64, period int) []float64 {
	out := nans(len(closes))
	for i := period; i < len(closes); i++ {
		prev := closes[i-period]
		if prev == 0 {
			continue
		}
		out[i] = 100 * (closes[i] - prev) / prev
	}
	return out
}

// CCI calculates the Commodity Channel Index using the classic 0.015 scaling
// over the mean absolute deviation of the typical price.
func CCI(high, low, close []float64, period int) []float64 {
	out := nans(len(close))
	if len(close) < period {
		return out
	}
	tp := make([]float64, len(close))
	for i := range close {
		tp[i] = (high[i] + low[i] + close[i]) / 3
	}
	smaTP := SMA(tp, period)
	for i := period - 1; i < len(close); i++ {
		mad := 0.0
		for j := i - period + 1; j <= i; j++ {
			mad += math.Abs(tp[j] - smaTP[i])
		}
		mad /= float64(period)
		out[i] = (tp[i] - smaTP[i]) / (0.015*mad + eps)
	}
	return out
}

// MFI calculates the Money Flow Index over typical-price volume flows.
func MFI(high, low, close, volume []float64, period int) []float64 {
	out := nans(len(close))
	if len(close) < period+1 {
		return out
	}
	tp := make([]float64, len(close))
	for i := range close {
		tp[i] = (high[i] + low[i] + close[i]) / 3
	}
	for i := period; i < len(close); i++ {
		pos := 0.0
		neg := 0.0
		for j := i - period + 1; j <= i; j++ {
			flow := tp[j] * volume[j]
			if tp[j] > tp[j-1] {
				pos += flow
			} else if tp[j] < tp[j-1] {
				neg += flow
			}
		}
		ratio := pos / (neg + eps)
		out[i] = 100 - 100/(1+ratio)
	}
	return out
}

// UltimateOscillator blends buying pressure over three nested windows.
func UltimateOscillator(high, low, close []float64, p1, p2, p3 int) []float64 {
	out := nans(len(close))
	if len(close) < p3+1 {
		return out
	}
	bp := nans(len(close))
	tr := nans(len(close))
	for i := 1; i < len(close); i++ {
		trueLow := math.Min(low[i], close[i-1])
		trueHigh := math.Max(high[i], close[i-1])
		bp[i] = close[i] - trueLow
		tr[i] = trueHigh - trueLow
	}
	avg := func(i, p int) float64 {
		sumBP, sumTR := 0.0, 0.0
		for j := i - p + 1; j <= i; j++ {
			sumBP += bp[j]
			sumTR += tr[j]
		}
		return sumBP / (sumTR + eps)
	}
	for i := p3; i < len(close); i++ {
		out[i] = 100 * (4*avg(i, p1) + 2*avg(i, p2) + avg(i, p3)) / 7
	}
	return out
}

// TSI calculates the True Strength Index via double EMA smoothing of price
// momentum.
func TSI(closes []float64, long, short int) []float64 {
	out := nans(len(closes))
	if len(closes) < 2 {
		return out
	}
	mom := make([]float64, len(closes)-1)
	absMom := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		mom[i-1] = closes[i] - closes[i-1]
		absMom[i-1] = math.Abs(mom[i-1])
	}
	num := EMA(EMA(mom, long), short)
	den := EMA(EMA(absMom, long), short)
	for i := range num {
		out[i+1] = 100 * num[i] / (den[i] + eps)
	}
	return out
}

// ============================================================================
// VOLATILITY AND BANDS
// ============================================================================

// ATR calculates the Average True Range as the SMA of the true range, where
// TR = max(h-l, |h-prevClose|, |l-prevClose|). The first bar uses h-l.
func ATR(high, low, close []float64, period int) []float64 {
	if len(close) == 0 {
		return nil
	}
	tr := make([]float64, len(close))
	tr[0] = high[0] - low[0]
	for i := 1; i < len(close); i++ {
		hl := high[i] - low[i]
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return SMA(tr, period)
}

// BollingerBands holds the three Bollinger band lines.
type BollingerBands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger calculates Bollinger bands with population standard deviation.
func Bollinger(closes []float64, period int, k float64) *BollingerBands {
	upper := nans(len(closes))
	lower := nans(len(closes))
	middle := SMA(closes, period)
	for i := period - 1; i < len(closes); i++ {
		sigma := math.Sqrt(stat.PopVariance(closes[i-period+1:i+1], nil))
		upper[i] = middle[i] + k*sigma
		lower[i] = middle[i] - k*sigma
	}
	return &BollingerBands{Upper: upper, Middle: middle, Lower: lower}
}

// DonchianChannel holds the Donchian breakout channel lines.
type DonchianChannel struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Donchian calculates the rolling highest-high and lowest-low channel.
func Donchian(high, low []float64, period int) *DonchianChannel {
	upper := nans(len(high))
	middle := nans(len(high))
	lower := nans(len(high))
	for i := period - 1; i < len(high); i++ {
		hh := math.Inf(-1)
		ll := math.Inf(1)
		for j := i - period + 1; j <= i; j++ {
			hh = math.Max(hh, high[j])
			ll = math.Min(ll, low[j])
		}
		upper[i] = hh
		lower[i] = ll
		middle[i] = (hh + ll) / 2
	}
	return &DonchianChannel{Upper: upper, Middle: middle, Lower: lower}
}

// KeltnerChannel holds the EMA-centered ATR channel lines.
type KeltnerChannel struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Keltner calculates the Keltner channel: EMA(close) +/- mult*ATR.
func Keltner(high, low, close []float64, emaPeriod, atrPeriod int, mult float64) *KeltnerChannel {
	middle := EMA(close, emaPeriod)
	atr := ATR(high, low, close, atrPeriod)
	upper := nans(len(close))
	lower := nans(len(close))
	for i := range close {
		if math.IsNaN(middle[i]) || math.IsNaN(atr[i]) {
			continue
		}
		upper[i] = middle[i] + mult*atr[i]
		lower[i] = middle[i] - mult*atr[i]
	}
	return &KeltnerChannel{Upper: upper, Middle: middle, Lower: lower}
}

// ZScore calculates (x - mean)/(stddev + eps) over a trailing window using
// population standard deviation.
func ZScore(xs []float64, period int) []float64 {
	out := nans(len(xs))
	for i := period - 1; i < len(xs); i++ {
		window := xs[i-period+1 : i+1]
		mu := stat.Mean(window, nil)
		sigma := math.Sqrt(stat.PopVariance(window, nil))
		out[i] = (xs[i] - mu) / (sigma + eps)
	}
	return out
}

// ============================================================================
// MACD
// ============================================================================

// MACDResult holds the MACD line, signal line, and histogram series.
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// MACD calculates line = EMA(fast) - EMA(slow), signal = EMA(line, signalP),
// histogram = line - signal.
func MACD(closes []float64, fast, slow, signalP int) *MACDResult {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	signal := EMA(line, signalP)
	hist := make([]float64, len(closes))
	for i := range closes {
		hist[i] = line[i] - signal[i]
	}
	return &MACDResult{Line: line, Signal: signal, Histogram: hist}
}

// ============================================================================
// TREND
// ============================================================================

// SuperTrendResult holds the active band level and trend direction per bar.
// Trend is +1 (up, level is the lower band) or -1 (down, level is the upper
// band); 0 marks bars before the ATR window fills.
type SuperTrendResult struct {
	Level []float64
	Trend []int
}

// SuperTrend calculates the Super-Trend indicator with the classic locked
// final-band recurrence: the upper band cannot rise while the previous close
// sat below it, and the lower band cannot fall while the previous close sat
// above it. The trend flips when the close crosses the active band.
func SuperTrend(high, low, close []float64, period int, factor float64) *SuperTrendResult {
	level := nans(len(close))
	trend := make([]int, len(close))
	atr := ATR(high, low, close, period)

	var prevUpper, prevLower float64
	prevTrend := 0
	for i := 0; i < len(close); i++ {
		if math.IsNaN(atr[i]) {
			continue
		}
		hl2 := (high[i] + low[i]) / 2
		basicUpper := hl2 + factor*atr[i]
		basicLower := hl2 - factor*atr[i]

		upper := basicUpper
		lower := basicLower
		if prevTrend != 0 {
			if basicUpper > prevUpper && close[i-1] <= prevUpper {
				upper = prevUpper
			}
			if basicLower < prevLower && close[i-1] >= prevLower {
				lower = prevLower
			}
		}

		t := prevTrend
		switch {
		case prevTrend == 0:
			// Start in an uptrend unless the first close sits below the band.
			if close[i] < basicLower {
				t = -1
			} else {
				t = 1
			}
		case prevTrend == 1 && close[i] < lower:
			t = -1
		case prevTrend == -1 && close[i] > upper:
			t = 1
		}

		trend[i] = t
		if t == 1 {
			level[i] = lower
		} else {
			level[i] = upper
		}
		prevUpper, prevLower, prevTrend = upper, lower, t
	}
	return &SuperTrendResult{Level: level, Trend: trend}
}

// AroonResult holds the Aroon up/down lines.
type AroonResult struct {
	Up   []float64
	Down []float64
}

// Aroon measures bars since the highest high and lowest low inside the
// trailing period+1 window, scaled to [0,100].
func Aroon(high, low []float64, period int) *AroonResult {
	up := nans(len(high))
	down := nans(len(high))
	for i := period; i < len(high); i++ {
		hiIdx, loIdx := i-period, i-period
		for j := i - period; j <= i; j++ {
			if high[j] >= high[hiIdx] {
				hiIdx = j
			}
			if low[j] <= low[loIdx] {
				loIdx = j
			}
		}
		up[i] = 100 * float64(period-(i-hiIdx)) / float64(period)
		down[i] = 100 * float64(period-(i-loIdx)) / float64(period)
	}
	return &AroonResult{Up: up, Down: down}
}

// PivotPoints holds classic floor-trader pivot levels computed from the
// previous session's high, low, and close.
type PivotPoints struct {
	Pivot float64
	R1    float64
	R2    float64
	R3    float64
	S1    float64
	S2    float64
	S3    float64
}

// ClassicPivots calculates floor-trader pivots from one session's HLC.
func ClassicPivots(high, low, close float64) *PivotPoints {
	p := (high + low + close) / 3
	return &PivotPoints{
		Pivot: p,
		R1:    2*p - low,
		S1:    2*p - high,
		R2:    p + (high - low),
		S2:    p - (high - low),
		R3:    high + 2*(p-low),
		S3:    low - 2*(high-p),
	}
}

// ============================================================================
// SERIES HELPERS
// ============================================================================

// Highest returns the rolling maximum over a trailing window.
func Highest(xs []float64, period int) []float64 {
	out := nans(len(xs))
	for i := period - 1; i < len(xs); i++ {
		hh := math.Inf(-1)
		for j := i - period + 1; j <= i; j++ {
			hh = math.Max(hh, xs[j])
		}
		out[i] = hh
	}
	return out
}

// Lowest returns the rolling minimum over a trailing window.
func Lowest(xs []float64, period int) []float64 {
	out := nans(len(xs))
	for i := period - 1; i < len(xs); i++ {
		ll := math.Inf(1)
		for j := i - period + 1; j <= i; j++ {
			ll = math.Min(ll, xs[j])
		}
		out[i] = ll
	}
	return out
}

// HighestIn returns the maximum over the trailing window ending at the last
// index, NaN when the window cannot be formed.
func HighestIn(xs []float64, period int) float64 {
	if period <= 0 || len(xs) < period {
		return math.NaN()
	}
	hh := math.Inf(-1)
	for _, v := range xs[len(xs)-period:] {
		hh = math.Max(hh, v)
	}
	return hh
}

// LowestIn returns the minimum over the trailing window ending at the last
// index, NaN when the window cannot be formed.
func LowestIn(xs []float64, period int) float64 {
	if period <= 0 || len(xs) < period {
		return math.NaN()
	}
	ll := math.Inf(1)
	for _, v := range xs[len(xs)-period:] {
		ll = math.Min(ll, v)
	}
	return ll
}

// CrossedAbove reports whether series a crossed above series b on the final
// bar. NaN on either side of the comparison yields false.
func CrossedAbove(a, b []float64) bool {
	n := len(a)
	if n < 2 || len(b) != n {
		return false
	}
	if math.IsNaN(a[n-1]) || math.IsNaN(a[n-2]) || math.IsNaN(b[n-1]) || math.IsNaN(b[n-2]) {
		return false
	}
	return a[n-2] <= b[n-2] && a[n-1] > b[n-1]
}

// CrossedBelow reports whether series a crossed below series b on the final
// bar.
func CrossedBelow(a, b []float64) bool {
	n := len(a)
	if n < 2 || len(b) != n {
		return false
	}
	if math.IsNaN(a[n-1]) || math.IsNaN(a[n-2]) || math.IsNaN(b[n-1]) || math.IsNaN(b[n-2]) {
		return false
	}
	return a[n-2] >= b[n-2] && a[n-1] < b[n-1]
}

// Last returns the final value of a series, or NaN for an empty one.
func Last(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return xs[len(xs)-1]
}

// Prev returns the value one bar before the end, or NaN when unavailable.
func Prev(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	return xs[len(xs)-2]
}
