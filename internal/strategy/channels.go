package strategy

import (
	"fmt"
	"math"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/indicators"
	"stock-trading-engine/internal/marketdata"
)

// ===== A10: BOLLINGER RE-ENTRY =====

// BollingerStrategy fades band excursions. The entry is the re-entry bar,
// not the breakout itself: a close back inside after the previous close sat
// outside the band.
type BollingerStrategy struct {
	cfg *config.StrategyConfig
}

func newBollingerStrategy(cfg *config.StrategyConfig) *BollingerStrategy {
	return &BollingerStrategy{cfg: cfg}
}

func (s *BollingerStrategy) ID() string   { return "a10" }
func (s *BollingerStrategy) Name() string { return "Bollinger Re-entry" }

func (s *BollingerStrategy) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	closes := bars.Closes()
	price := bars.Last().Close
	bb := indicators.Bollinger(closes,
		s.cfg.IntParam("period", 20),
		s.cfg.Param("band_width", 2.0))

	prevClose := indicators.Prev(closes)
	prevLower, lower := indicators.Prev(bb.Lower), indicators.Last(bb.Lower)
	prevUpper, upper := indicators.Prev(bb.Upper), indicators.Last(bb.Upper)
	mid := indicators.Last(bb.Middle)
	if math.IsNaN(lower) || math.IsNaN(prevLower) {
		return nil
	}

	if prevClose < prevLower && price >= lower {
		width := (mid - lower) / mid
		conf := clampConf(0.55+math.Min(width*5, 0.25), 0.55)
		return []Signal{entrySignal(symbol, SignalBBLowerBreakout, ActionBuy, price, conf,
			fmt.Sprintf("close back inside lower band %.2f", lower),
			bars, map[string]interface{}{"bb_lower": lower, "bb_middle": mid})}
	}
	if prevClose > prevUpper && price <= upper {
		width := (upper - mid) / mid
		conf := clampConf(0.55+math.Min(width*5, 0.25), 0.55)
		return []Signal{entrySignal(symbol, SignalBBUpperBreakout, ActionSell, price, conf,
			fmt.Sprintf("close back inside upper band %.2f", upper),
			bars, map[string]interface{}{"bb_upper": upper, "bb_middle": mid})}
	}
	return nil
}

// ===== A16: RATE OF CHANGE =====

// ROCStrategy trades momentum thrusts: the ROC crossing through a signed
// threshold band.
type ROCStrategy struct {
	cfg *config.StrategyConfig
}

func newROCStrategy(cfg *config.StrategyConfig) *ROCStrategy {
	return &ROCStrategy{cfg: cfg}
}

func (s *ROCStrategy) ID() string   { return "a16" }
func (s *ROCStrategy) Name() string { return "Rate of Change" }

func (s *ROCStrategy) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	price := bars.Last().Close
	roc := indicators.ROC(bars.Closes(), s.cfg.IntParam("period", 10))
	threshold := s.cfg.Param("threshold", 2.0)

	last := indicators.Last(roc)
	if crossedUp(roc, threshold) {
		conf := clampConf(0.55+math.Min((last-threshold)/20, 0.25), 0.55)
		return []Signal{entrySignal(symbol, "ROC_THRUST_UP", ActionBuy, price, conf,
			fmt.Sprintf("ROC %.2f%% pushed through +%.1f%%", last, threshold),
			bars, map[string]interface{}{"roc": last})}
	}
	if crossedDown(roc, -threshold) {
		conf := clampConf(0.55+math.Min((-threshold-last)/20, 0.25), 0.55)
		return []Signal{entrySignal(symbol, "ROC_THRUST_DOWN", ActionSell, price, conf,
			fmt.Sprintf("ROC %.2f%% broke through -%.1f%%", last, threshold),
			bars, map[string]interface{}{"roc": last})}
	}
	return nil
}

// ===== A17: CCI =====

type CCIStrategy struct {
	cfg *config.StrategyConfig
}

func newCCIStrategy(cfg *config.StrategyConfig) *CCIStrategy {
	return &CCIStrategy{cfg: cfg}
}

func (s *CCIStrategy) ID() string   { return "a17" }
func (s *CCIStrategy) Name() string { return "CCI" }

func (s *CCIStrategy) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	price := bars.Last().Close
	cci := indicators.CCI(bars.Highs(), bars.Lows(), bars.Closes(),
		s.cfg.IntParam("period", 20))
	band := s.cfg.Param("band", 100)

	if crossedUp(cci, -band) {
		return []Signal{entrySignal(symbol, "CCI_OVERSOLD_CROSS", ActionBuy, price, 0.6,
			fmt.Sprintf("CCI recovered through -%.0f", band),
			bars, map[string]interface{}{"cci": indicators.Last(cci)})}
	}
	if crossedDown(cci, band) {
		return []Signal{entrySignal(symbol, "CCI_OVERBOUGHT_CROSS", ActionSell, price, 0.6,
			fmt.Sprintf("CCI dropped through +%.0f", band),
			bars, map[string]interface{}{"cci": indicators.Last(cci)})}
	}
	return nil
}

// ===== A28: KELTNER RE-ENTRY =====

// KeltnerStrategy is the ATR-channel sibling of A10.
type KeltnerStrategy struct {
	cfg *config.StrategyConfig
}

func newKeltnerStrategy(cfg *config.StrategyConfig) *KeltnerStrategy {
	return &KeltnerStrategy{cfg: cfg}
}

func (s *KeltnerStrategy) ID() string   { return "a28" }
func (s *KeltnerStrategy) Name() string { return "Keltner Re-entry" }

func (s *KeltnerStrategy) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	closes := bars.Closes()
	price := bars.Last().Close
	kc := indicators.Keltner(bars.Highs(), bars.Lows(), closes,
		s.cfg.IntParam("ema_period", 20),
		s.cfg.IntParam("atr_period", 10),
		s.cfg.Param("multiplier", 2.0))

	prevClose := indicators.Prev(closes)
	prevLower, lower := indicators.Prev(kc.Lower), indicators.Last(kc.Lower)
	prevUpper, upper := indicators.Prev(kc.Upper), indicators.Last(kc.Upper)
	if math.IsNaN(lower) || math.IsNaN(prevLower) {
		return nil
	}

	if prevClose < prevLower && price >= lower {
		return []Signal{entrySignal(symbol, "KELTNER_LOWER_REENTRY", ActionBuy, price, 0.6,
			fmt.Sprintf("close back inside lower channel %.2f", lower),
			bars, map[string]interface{}{"keltner_lower": lower})}
	}
	if prevClose > prevUpper && price <= upper {
		return []Signal{entrySignal(symbol, "KELTNER_UPPER_REENTRY", ActionSell, price, 0.6,
			fmt.Sprintf("close back inside upper channel %.2f", upper),
			bars, map[string]interface{}{"keltner_upper": upper})}
	}
	return nil
}

// ===== A29: CLASSIC PIVOTS =====

// PivotStrategy computes classic floor-trader pivots from the prior
// session's high/low/close and trades the pivot break and the S1 bounce.
// Sessions are cut on the calendar date of the bar timestamps.
type PivotStrategy struct {
	cfg *config.StrategyConfig
}

func newPivotStrategy(cfg *config.StrategyConfig) *PivotStrategy {
	return &PivotStrategy{cfg: cfg}
}

func (s *PivotStrategy) ID() string   { return "a29" }
func (s *PivotStrategy) Name() string { return "Classic Pivots" }

// priorSessionHLC aggregates the most recent full session before the day the
// last bar belongs to. ok is false when the series holds a single session.
func priorSessionHLC(bars marketdata.BarSeries) (high, low, close float64, ok bool) {
	i := len(bars) - 1
	if i < 0 {
		return 0, 0, 0, false
	}
	lastDay := bars[i].Timestamp
	for i >= 0 && sameDay(bars[i].Timestamp, lastDay) {
		i--
	}
	if i < 0 {
		return 0, 0, 0, false
	}
	prevDay := bars[i].Timestamp
	high, low = math.Inf(-1), math.Inf(1)
	close = bars[i].Close
	for i >= 0 && sameDay(bars[i].Timestamp, prevDay) {
		if bars[i].High > high {
			high = bars[i].High
		}
		if bars[i].Low < low {
			low = bars[i].Low
		}
		i--
	}
	return high, low, close, true
}

func (s *PivotStrategy) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < 2 || len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	h, l, c, ok := priorSessionHLC(bars)
	if !ok {
		return nil
	}
	pp := indicators.ClassicPivots(h, l, c)

	price := bars.Last().Close
	prevBar := bars[len(bars)-2]
	levels := map[string]interface{}{"pivot": pp.Pivot, "r1": pp.R1, "s1": pp.S1}

	if prevBar.Close <= pp.Pivot && price > pp.Pivot {
		room := (pp.R1 - price) / price
		conf := clampConf(0.55+math.Min(room*10, 0.2), 0.55)
		return []Signal{entrySignal(symbol, "PIVOT_BREAKOUT", ActionBuy, price, conf,
			fmt.Sprintf("close %.2f through pivot %.2f, R1 %.2f", price, pp.Pivot, pp.R1),
			bars, levels)}
	}
	if prevBar.Low <= pp.S1 && price > pp.S1 && price > prevBar.Close {
		return []Signal{entrySignal(symbol, "PIVOT_S1_BOUNCE", ActionBuy, price, 0.6,
			fmt.Sprintf("held S1 %.2f and turned up", pp.S1),
			bars, levels)}
	}
	if prevBar.Close >= pp.Pivot && price < pp.Pivot {
		room := (price - pp.S1) / price
		conf := clampConf(0.55+math.Min(room*10, 0.2), 0.55)
		return []Signal{entrySignal(symbol, "PIVOT_BREAKDOWN", ActionSell, price, conf,
			fmt.Sprintf("close %.2f through pivot %.2f, S1 %.2f", price, pp.Pivot, pp.S1),
			bars, levels)}
	}
	if prevBar.High >= pp.R1 && price < pp.R1 && price < prevBar.Close {
		return []Signal{entrySignal(symbol, "PIVOT_R1_REJECT", ActionSell, price, 0.6,
			fmt.Sprintf("rejected at R1 %.2f", pp.R1),
			bars, levels)}
	}
	return nil
}
