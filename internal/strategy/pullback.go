package strategy

import (
	"fmt"
	"math"
	"time"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/indicators"
	"stock-trading-engine/internal/marketdata"
)

// ===== A4: FIBONACCI PULLBACK =====

// Pullback buys retracements inside an established trend: with close above
// MA50 and MA20 above MA50 by at least trend_strength_min, the recent swing
// range is measured and a long fires when price sits inside the 38.2–61.8%
// retracement band with volume holding up. Downtrends take the mirrored
// short. Exits layer a trailing watermark, a trend-MA cross, and a swing
// break over the shared policy.
type Pullback struct {
	cfg *config.StrategyConfig
}

func newPullback(cfg *config.StrategyConfig) *Pullback {
	return &Pullback{cfg: cfg}
}

func (s *Pullback) ID() string   { return "a4" }
func (s *Pullback) Name() string { return "Fibonacci Pullback" }

func (s *Pullback) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	minBars := s.cfg.MinDataPoints
	if minBars < 55 {
		minBars = 55
	}
	if len(bars) < minBars {
		return nil
	}
	closes := bars.Closes()
	highs := bars.Highs()
	lows := bars.Lows()
	price := bars.Last().Close

	ma20 := indicators.Last(indicators.SMA(closes, 20))
	ma50 := indicators.Last(indicators.SMA(closes, 50))
	if math.IsNaN(ma20) || math.IsNaN(ma50) || ma50 <= 0 {
		return nil
	}
	strength := (ma20 - ma50) / ma50
	minStrength := s.cfg.Param("trend_strength_min", 0.0065)

	lookback := s.cfg.IntParam("pullback_lookback", 20)
	swingHigh := indicators.HighestIn(highs, lookback)
	swingLow := indicators.LowestIn(lows, lookback)
	if math.IsNaN(swingHigh) || math.IsNaN(swingLow) || swingHigh <= swingLow {
		return nil
	}
	span := swingHigh - swingLow
	volRatio := volumeRatio(bars.Volumes(), 20)
	minVol := s.cfg.Param("volume_confirm_ratio", 1.0)

	fibLo := s.cfg.Param("fib_min", 0.382)
	fibHi := s.cfg.Param("fib_max", 0.618)

	if price > ma50 && strength >= minStrength {
		// Long band: a 38.2–61.8% give-back off the swing high.
		bandLow := swingHigh - fibHi*span
		bandHigh := swingHigh - fibLo*span
		if price >= bandLow && price <= bandHigh && volRatio >= minVol {
			depth := (swingHigh - price) / span
			conf := clampConf(0.5+strength*20+0.3*(1-math.Abs(depth-0.5)), 0.5)
			return []Signal{entrySignal(symbol, "PULLBACK_LONG", ActionBuy, price, conf,
				fmt.Sprintf("%.0f%% retracement in uptrend (strength %.2f%%)", depth*100, strength*100),
				bars, map[string]interface{}{"swing_high": swingHigh, "swing_low": swingLow, "trend_strength": strength})}
		}
		return nil
	}

	if price < ma50 && strength <= -minStrength {
		bandLow := swingLow + fibLo*span
		bandHigh := swingLow + fibHi*span
		if price >= bandLow && price <= bandHigh && volRatio >= minVol {
			depth := (price - swingLow) / span
			conf := clampConf(0.5+math.Abs(strength)*20+0.3*(1-math.Abs(depth-0.5)), 0.5)
			return []Signal{entrySignal(symbol, "PULLBACK_SHORT", ActionSell, price, conf,
				fmt.Sprintf("%.0f%% bounce in downtrend (strength %.2f%%)", depth*100, strength*100),
				bars, map[string]interface{}{"swing_high": swingHigh, "swing_low": swingLow, "trend_strength": strength})}
		}
	}
	return nil
}

func (s *Pullback) CheckExitConditions(symbol string, pos Position, price float64, now time.Time, bars marketdata.BarSeries) *Signal {
	if sig := BaseExitCheck(s.cfg, pos, price, now); sig != nil {
		return sig
	}
	if sig := trailingExit(pos, price, s.cfg.Param("trailing_stop_pct", 0.015)); sig != nil {
		return sig
	}
	if bars.Empty() {
		return nil
	}
	closes := bars.Closes()
	if len(closes) < 55 {
		return nil
	}

	fast := indicators.SMA(closes, 20)
	slow := indicators.SMA(closes, 50)
	if pos.Size > 0 && indicators.CrossedBelow(fast, slow) {
		return exitSignal(pos, price, SignalMADeathCross, 0.85, "MA20 crossed under MA50")
	}
	if pos.Size < 0 && indicators.CrossedAbove(fast, slow) {
		return exitSignal(pos, price, SignalMAGoldenCross, 0.85, "MA20 crossed over MA50")
	}

	// Swing levels exclude the forming bar; a close beyond them is a
	// structure break.
	lookback := s.cfg.IntParam("pullback_lookback", 20)
	lows := bars.Lows()
	highs := bars.Highs()
	if pos.Size > 0 {
		support := indicators.LowestIn(lows[:len(lows)-1], lookback)
		if !math.IsNaN(support) && price < support {
			return exitSignal(pos, price, "SUPPORT_BREAK", 0.9,
				fmt.Sprintf("close %.2f under %d-bar swing low %.2f", price, lookback, support))
		}
	} else if pos.Size < 0 {
		resistance := indicators.HighestIn(highs[:len(highs)-1], lookback)
		if !math.IsNaN(resistance) && price > resistance {
			return exitSignal(pos, price, "RESISTANCE_BREAK", 0.9,
				fmt.Sprintf("close %.2f over %d-bar swing high %.2f", price, lookback, resistance))
		}
	}

	// Fading participation while under the fast MA means the pullback
	// became distribution.
	volRatio := volumeRatio(bars.Volumes(), 20)
	if pos.Size > 0 && volRatio <= s.cfg.Param("volume_fade_ratio", 0.5) && price < indicators.Last(fast) {
		return exitSignal(pos, price, "VOLUME_FADE", 0.7,
			fmt.Sprintf("volume faded to %.1fx under MA20", volRatio))
	}
	return nil
}
