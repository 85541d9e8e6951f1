package strategy

import (
	"math"

	"stock-trading-engine/internal/indicators"
	"stock-trading-engine/internal/marketdata"
)

// Shared building blocks for the concrete strategies. Confidence is always
// a deterministic function of indicator distance, clamped into [floor, 1].

// clampConf bounds a confidence value into [floor, 1].
func clampConf(c, floor float64) float64 {
	if math.IsNaN(c) || c < floor {
		return floor
	}
	if c > 1 {
		return 1
	}
	return c
}

// volumeRatio compares the last bar's volume to the mean of the preceding
// window. Returns 1 when the window cannot be formed or has no volume.
func volumeRatio(volumes []float64, window int) float64 {
	if len(volumes) < window+1 {
		return 1
	}
	base := volumes[len(volumes)-1-window : len(volumes)-1]
	sum := 0.0
	for _, v := range base {
		sum += v
	}
	if sum <= 0 {
		return 1
	}
	return volumes[len(volumes)-1] / (sum / float64(window))
}

// lastATR computes the trailing 14-bar ATR for the snapshot hint.
func lastATR(bars marketdata.BarSeries) float64 {
	atr := indicators.Last(indicators.ATR(bars.Highs(), bars.Lows(), bars.Closes(), 14))
	if math.IsNaN(atr) {
		return 0
	}
	return atr
}

// entrySignal assembles a strategy entry with the ATR hint attached so the
// sizing step can use a real volatility estimate.
func entrySignal(symbol, signalType, action string, price, confidence float64, reason string, bars marketdata.BarSeries, extra map[string]interface{}) Signal {
	snapshot := map[string]interface{}{"atr": lastATR(bars)}
	for k, v := range extra {
		snapshot[k] = v
	}
	return Signal{
		Symbol:             symbol,
		Type:               signalType,
		Action:             action,
		ReferencePrice:     price,
		Confidence:         confidence,
		Reason:             reason,
		IndicatorsSnapshot: snapshot,
	}
}

// logistic squashes x into (0,1) with steepness k.
func logistic(x, k float64) float64 {
	return 1 / (1 + math.Exp(-k*x))
}

// returnsStd is the population standard deviation of simple returns over the
// trailing window, a cheap short-horizon volatility proxy.
func returnsStd(closes []float64, window int) float64 {
	if len(closes) < window+1 {
		return 0
	}
	rets := indicators.Returns(closes[len(closes)-window-1:])
	if len(rets) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	variance := 0.0
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	return math.Sqrt(variance / float64(len(rets)))
}
