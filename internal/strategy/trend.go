package strategy

import (
	"fmt"
	"math"
	"time"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/indicators"
	"stock-trading-engine/internal/marketdata"
)

// ===== A7: CTA TREND (DONCHIAN) =====

// CTATrend is a classic channel-breakout trend follower: longs on a close
// through the 20-bar high with MA50 over MA200, shorts on a close through
// the 60-bar low with the alignment inverted. Its exit override leaves on
// the 10-bar channel reversal, loss of either trend MA, or an MA cross.
type CTATrend struct {
	cfg *config.StrategyConfig
}

func newCTATrend(cfg *config.StrategyConfig) *CTATrend {
	return &CTATrend{cfg: cfg}
}

func (s *CTATrend) ID() string   { return "a7" }
func (s *CTATrend) Name() string { return "CTA Trend" }

func (s *CTATrend) trendMAs(closes []float64) (fast, slow []float64) {
	return indicators.SMA(closes, s.cfg.IntParam("trend_fast", 50)),
		indicators.SMA(closes, s.cfg.IntParam("trend_slow", 200))
}

func (s *CTATrend) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	slowP := s.cfg.IntParam("trend_slow", 200)
	if len(bars) < slowP+1 || len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	closes := bars.Closes()
	highs := bars.Highs()
	lows := bars.Lows()
	price := bars.Last().Close

	fastMA, slowMA := s.trendMAs(closes)
	f, sl := indicators.Last(fastMA), indicators.Last(slowMA)
	if math.IsNaN(f) || math.IsNaN(sl) {
		return nil
	}

	// Breakout levels exclude the forming bar.
	entryHigh := indicators.HighestIn(highs[:len(highs)-1], s.cfg.IntParam("entry_channel_long", 20))
	entryLow := indicators.LowestIn(lows[:len(lows)-1], s.cfg.IntParam("entry_channel_short", 60))

	if !math.IsNaN(entryHigh) && price > entryHigh && f > sl {
		margin := (price - entryHigh) / entryHigh
		conf := clampConf(0.55+math.Min(margin*40, 0.3), 0.55)
		return []Signal{entrySignal(symbol, "CTA_BREAKOUT", ActionBuy, price, conf,
			fmt.Sprintf("close %.2f over 20-bar high %.2f, MAs aligned up", price, entryHigh),
			bars, map[string]interface{}{"channel_high": entryHigh, "ma_fast": f, "ma_slow": sl})}
	}
	if !math.IsNaN(entryLow) && price < entryLow && f < sl {
		margin := (entryLow - price) / entryLow
		conf := clampConf(0.55+math.Min(margin*40, 0.3), 0.55)
		return []Signal{entrySignal(symbol, "CTA_BREAKDOWN", ActionSell, price, conf,
			fmt.Sprintf("close %.2f under 60-bar low %.2f, MAs aligned down", price, entryLow),
			bars, map[string]interface{}{"channel_low": entryLow, "ma_fast": f, "ma_slow": sl})}
	}
	return nil
}

func (s *CTATrend) CheckExitConditions(symbol string, pos Position, price float64, now time.Time, bars marketdata.BarSeries) *Signal {
	if sig := BaseExitCheck(s.cfg, pos, price, now); sig != nil {
		return sig
	}
	if bars.Empty() {
		return nil
	}
	closes := bars.Closes()
	if len(closes) < s.cfg.IntParam("trend_slow", 200)+1 {
		return nil
	}
	fastMA, slowMA := s.trendMAs(closes)
	f, sl := indicators.Last(fastMA), indicators.Last(slowMA)

	exitP := s.cfg.IntParam("exit_channel", 10)
	if pos.Size > 0 {
		lows := bars.Lows()
		exitLow := indicators.LowestIn(lows[:len(lows)-1], exitP)
		if !math.IsNaN(exitLow) && price < exitLow {
			return exitSignal(pos, price, "CTA_CHANNEL_EXIT", 0.85,
				fmt.Sprintf("close %.2f under %d-bar low %.2f", price, exitP, exitLow))
		}
		if price < f || price < sl {
			return exitSignal(pos, price, "CTA_TREND_LOSS", 0.8, "close under trend MA")
		}
		if indicators.CrossedBelow(fastMA, slowMA) {
			return exitSignal(pos, price, SignalMADeathCross, 0.9, "MA50 crossed under MA200")
		}
	} else if pos.Size < 0 {
		highs := bars.Highs()
		exitHigh := indicators.HighestIn(highs[:len(highs)-1], exitP)
		if !math.IsNaN(exitHigh) && price > exitHigh {
			return exitSignal(pos, price, "CTA_CHANNEL_EXIT", 0.85,
				fmt.Sprintf("close %.2f over %d-bar high %.2f", price, exitP, exitHigh))
		}
		if price > f || price > sl {
			return exitSignal(pos, price, "CTA_TREND_LOSS", 0.8, "close over trend MA")
		}
		if indicators.CrossedAbove(fastMA, slowMA) {
			return exitSignal(pos, price, SignalMAGoldenCross, 0.9, "MA50 crossed over MA200")
		}
	}
	return nil
}

// ===== A11: SMA CROSS =====

// MACross is the plain SMA(fast)/SMA(slow) cross state machine.
type MACross struct {
	cfg *config.StrategyConfig
}

func newMACross(cfg *config.StrategyConfig) *MACross {
	return &MACross{cfg: cfg}
}

func (s *MACross) ID() string   { return "a11" }
func (s *MACross) Name() string { return "SMA Cross" }

func (s *MACross) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	slowP := s.cfg.IntParam("slow_period", 50)
	if len(bars) < slowP+1 || len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	closes := bars.Closes()
	price := bars.Last().Close
	fast := indicators.SMA(closes, s.cfg.IntParam("fast_period", 10))
	slow := indicators.SMA(closes, slowP)

	sep := math.Abs(indicators.Last(fast)-indicators.Last(slow)) / price
	conf := clampConf(0.55+math.Min(sep*60, 0.35), 0.55)

	if indicators.CrossedAbove(fast, slow) {
		return []Signal{entrySignal(symbol, SignalMAGoldenCross, ActionBuy, price, conf,
			"SMA golden cross", bars, map[string]interface{}{"ma_fast": indicators.Last(fast), "ma_slow": indicators.Last(slow)})}
	}
	if indicators.CrossedBelow(fast, slow) {
		return []Signal{entrySignal(symbol, SignalMADeathCross, ActionSell, price, conf,
			"SMA death cross", bars, map[string]interface{}{"ma_fast": indicators.Last(fast), "ma_slow": indicators.Last(slow)})}
	}
	return nil
}

// ===== A13: EMA CROSS =====

// EMACross mirrors A11 on exponential averages, which react a bar or two
// sooner on intraday data.
type EMACross struct {
	cfg *config.StrategyConfig
}

func newEMACross(cfg *config.StrategyConfig) *EMACross {
	return &EMACross{cfg: cfg}
}

func (s *EMACross) ID() string   { return "a13" }
func (s *EMACross) Name() string { return "EMA Cross" }

func (s *EMACross) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	closes := bars.Closes()
	price := bars.Last().Close
	fast := indicators.EMA(closes, s.cfg.IntParam("fast_period", 8))
	slow := indicators.EMA(closes, s.cfg.IntParam("slow_period", 21))

	sep := math.Abs(indicators.Last(fast)-indicators.Last(slow)) / price
	conf := clampConf(0.55+math.Min(sep*60, 0.35), 0.55)

	if indicators.CrossedAbove(fast, slow) {
		return []Signal{entrySignal(symbol, "EMA_GOLDEN_CROSS", ActionBuy, price, conf,
			"EMA golden cross", bars, nil)}
	}
	if indicators.CrossedBelow(fast, slow) {
		return []Signal{entrySignal(symbol, "EMA_DEATH_CROSS", ActionSell, price, conf,
			"EMA death cross", bars, nil)}
	}
	return nil
}

// ===== A19: SUPER-TREND =====

// SuperTrendStrategy trades the flip of the Super-Trend band direction.
type SuperTrendStrategy struct {
	cfg *config.StrategyConfig
}

func newSuperTrendStrategy(cfg *config.StrategyConfig) *SuperTrendStrategy {
	return &SuperTrendStrategy{cfg: cfg}
}

func (s *SuperTrendStrategy) ID() string   { return "a19" }
func (s *SuperTrendStrategy) Name() string { return "Super-Trend" }

func (s *SuperTrendStrategy) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	price := bars.Last().Close
	st := indicators.SuperTrend(bars.Highs(), bars.Lows(), bars.Closes(),
		s.cfg.IntParam("atr_period", 10), s.cfg.Param("factor", 3.0))

	n := len(st.Trend)
	if n < 2 || st.Trend[n-2] == 0 {
		return nil
	}
	level := st.Level[n-1]
	dist := math.Abs(price-level) / price
	conf := clampConf(0.55+math.Min(dist*20, 0.3), 0.55)

	if st.Trend[n-1] == 1 && st.Trend[n-2] == -1 {
		return []Signal{entrySignal(symbol, "SUPERTREND_FLIP_LONG", ActionBuy, price, conf,
			fmt.Sprintf("trend flipped up, band %.2f", level),
			bars, map[string]interface{}{"supertrend_level": level})}
	}
	if st.Trend[n-1] == -1 && st.Trend[n-2] == 1 {
		return []Signal{entrySignal(symbol, "SUPERTREND_FLIP_SHORT", ActionSell, price, conf,
			fmt.Sprintf("trend flipped down, band %.2f", level),
			bars, map[string]interface{}{"supertrend_level": level})}
	}
	return nil
}

// ===== A20: AROON =====

// AroonStrategy enters when one Aroon line overtakes the other with real
// strength behind it.
type AroonStrategy struct {
	cfg *config.StrategyConfig
}

func newAroonStrategy(cfg *config.StrategyConfig) *AroonStrategy {
	return &AroonStrategy{cfg: cfg}
}

func (s *AroonStrategy) ID() string   { return "a20" }
func (s *AroonStrategy) Name() string { return "Aroon" }

func (s *AroonStrategy) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	period := s.cfg.IntParam("aroon_period", 25)
	if len(bars) < period+2 || len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	price := bars.Last().Close
	ar := indicators.Aroon(bars.Highs(), bars.Lows(), period)
	strong := s.cfg.Param("strength_min", 70)

	up, down := indicators.Last(ar.Up), indicators.Last(ar.Down)
	if indicators.CrossedAbove(ar.Up, ar.Down) && up >= strong {
		conf := clampConf(0.5+(up-down)/200+0.1, 0.5)
		return []Signal{entrySignal(symbol, "AROON_CROSS_UP", ActionBuy, price, conf,
			fmt.Sprintf("Aroon up %.0f crossed over down %.0f", up, down),
			bars, map[string]interface{}{"aroon_up": up, "aroon_down": down})}
	}
	if indicators.CrossedAbove(ar.Down, ar.Up) && down >= strong {
		conf := clampConf(0.5+(down-up)/200+0.1, 0.5)
		return []Signal{entrySignal(symbol, "AROON_CROSS_DOWN", ActionSell, price, conf,
			fmt.Sprintf("Aroon down %.0f crossed over up %.0f", down, up),
			bars, map[string]interface{}{"aroon_up": up, "aroon_down": down})}
	}
	return nil
}
