package marketdata

import "time"

// Bar is one OHLCV bar at minute resolution.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// BarSeries is an ordered, duplicate-free sequence of bars ascending by
// timestamp.
type BarSeries []Bar

// IndicatorSet maps an indicator name served by the data server to its most
// recent value. Strategies treat it as opaque input.
type IndicatorSet map[string]float64

// Closes extracts the close series.
func (bs BarSeries) Closes() []float64 {
	out := make([]float64, len(bs))
	for i, b := range bs {
		out[i] = b.Close
	}
	return out
}

// Opens extracts the open series.
func (bs BarSeries) Opens() []float64 {
	out := make([]float64, len(bs))
	for i, b := range bs {
		out[i] = b.Open
	}
	return out
}

// Highs extracts the high series.
func (bs BarSeries) Highs() []float64 {
	out := make([]float64, len(bs))
	for i, b := range bs {
		out[i] = b.High
	}
	return out
}

// Lows extracts the low series.
func (bs BarSeries) Lows() []float64 {
	out := make([]float64, len(bs))
	for i, b := range bs {
		out[i] = b.Low
	}
	return out
}

// Volumes extracts the volume series.
func (bs BarSeries) Volumes() []float64 {
	out := make([]float64, len(bs))
	for i, b := range bs {
		out[i] = b.Volume
	}
	return out
}

// Last returns the final bar. Callers must check Empty first.
func (bs BarSeries) Last() Bar {
	return bs[len(bs)-1]
}

// Empty reports whether the series has no bars.
func (bs BarSeries) Empty() bool {
	return len(bs) == 0
}
