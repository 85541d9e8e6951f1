package strategy

import (
	"fmt"
	"math"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/indicators"
	"stock-trading-engine/internal/marketdata"
)

// Minervini screens for the classic trend template: price stacked over
// rising long moving averages, well off the base low, near the base high,
// with a strong relative-strength rating. The signal fires on the bar the
// template first becomes satisfied, not on every bar it holds.
type Minervini struct {
	cfg *config.StrategyConfig
}

func newMinervini(cfg *config.StrategyConfig) *Minervini {
	// The template holds for weeks once satisfied; one signal a day is
	// plenty unless the operator chose otherwise.
	if cfg.SignalCooldownHours == 0 && cfg.SignalCooldownMinutes <= 5 {
		cfg.SignalCooldownHours = 24
	}
	return &Minervini{cfg: cfg}
}

func (s *Minervini) ID() string   { return "a27" }
func (s *Minervini) Name() string { return "Minervini Template" }

// template evaluates the trend template over full series and returns the RS
// rating alongside the verdict.
func (s *Minervini) template(closes, highs, lows []float64) (bool, float64) {
	n := len(closes)
	if n < 221 {
		return false, 0
	}
	price := closes[n-1]
	ma50 := indicators.Last(indicators.SMA(closes, 50))
	ma150 := indicators.Last(indicators.SMA(closes, 150))
	ma200 := indicators.SMA(closes, 200)
	m200 := indicators.Last(ma200)
	if math.IsNaN(ma50) || math.IsNaN(ma150) || math.IsNaN(m200) {
		return false, 0
	}
	if !(price > ma50 && ma50 > ma150 && ma150 > m200) {
		return false, 0
	}
	if math.IsNaN(ma200[n-1-20]) || m200 <= ma200[n-1-20] {
		return false, 0
	}

	lookback := s.cfg.IntParam("base_lookback", 252)
	if lookback > n {
		lookback = n
	}
	baseLow := indicators.LowestIn(lows, lookback)
	baseHigh := indicators.HighestIn(highs, lookback)
	if math.IsNaN(baseLow) || math.IsNaN(baseHigh) {
		return false, 0
	}
	if price < baseLow*s.cfg.Param("low_multiple", 1.25) {
		return false, 0
	}
	if price < baseHigh*s.cfg.Param("high_fraction", 0.75) {
		return false, 0
	}

	rating := rsRatingOf(
		indicators.Last(indicators.ROC(closes, 20)),
		indicators.Last(indicators.ROC(closes, 40)),
		indicators.Last(indicators.ROC(closes, 60)),
		indicators.Last(indicators.ROC(closes, 80)))
	if math.IsNaN(rating) || rating < s.cfg.Param("rs_min", 70) {
		return false, rating
	}
	return true, rating
}

func (s *Minervini) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < 222 || len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	closes := bars.Closes()
	highs := bars.Highs()
	lows := bars.Lows()

	ok, rating := s.template(closes, highs, lows)
	if !ok {
		return nil
	}
	prevOK, _ := s.template(closes[:len(closes)-1], highs[:len(highs)-1], lows[:len(lows)-1])
	if prevOK {
		return nil
	}

	price := bars.Last().Close
	conf := clampConf(0.55+(rating-70)/200, 0.55)
	return []Signal{entrySignal(symbol, "MINERVINI_TEMPLATE", ActionBuy, price, conf,
		fmt.Sprintf("trend template satisfied, RS %.0f", rating),
		bars, map[string]interface{}{"rs_rating": rating})}
}
