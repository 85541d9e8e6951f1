package strategy

import (
	"fmt"
	"math"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/indicators"
	"stock-trading-engine/internal/marketdata"
)

// Oscillator strategies fire on level crossings, not on levels: being
// oversold is a state, leaving oversold is the event worth trading. Every
// strategy here compares the last two readings so a signal appears on
// exactly one bar per excursion.

// crossedUp reports a close through level from below on the last bar.
func crossedUp(xs []float64, level float64) bool {
	prev, last := indicators.Prev(xs), indicators.Last(xs)
	if math.IsNaN(prev) || math.IsNaN(last) {
		return false
	}
	return prev <= level && last > level
}

// crossedDown reports a close through level from above on the last bar.
func crossedDown(xs []float64, level float64) bool {
	prev, last := indicators.Prev(xs), indicators.Last(xs)
	if math.IsNaN(prev) || math.IsNaN(last) {
		return false
	}
	return prev >= level && last < level
}

// ===== A8: RSI =====

type RSIStrategy struct {
	cfg *config.StrategyConfig
}

func newRSIStrategy(cfg *config.StrategyConfig) *RSIStrategy {
	return &RSIStrategy{cfg: cfg}
}

func (s *RSIStrategy) ID() string   { return "a8" }
func (s *RSIStrategy) Name() string { return "RSI Reversal" }

func (s *RSIStrategy) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	price := bars.Last().Close
	rsi := indicators.RSI(bars.Closes(), s.cfg.IntParam("rsi_period", 14))
	oversold := s.cfg.Param("oversold", 30)
	overbought := s.cfg.Param("overbought", 70)

	if crossedUp(rsi, oversold) {
		depth := oversold - indicators.Prev(rsi)
		conf := clampConf(0.55+depth/100, 0.55)
		return []Signal{entrySignal(symbol, "RSI_OVERSOLD", ActionBuy, price, conf,
			fmt.Sprintf("RSI recovered through %.0f from %.1f", oversold, indicators.Prev(rsi)),
			bars, map[string]interface{}{"rsi": indicators.Last(rsi)})}
	}
	if crossedDown(rsi, overbought) {
		depth := indicators.Prev(rsi) - overbought
		conf := clampConf(0.55+depth/100, 0.55)
		return []Signal{entrySignal(symbol, "RSI_OVERBOUGHT", ActionSell, price, conf,
			fmt.Sprintf("RSI dropped through %.0f from %.1f", overbought, indicators.Prev(rsi)),
			bars, map[string]interface{}{"rsi": indicators.Last(rsi)})}
	}
	return nil
}

// ===== A9: MACD =====

type MACDStrategy struct {
	cfg *config.StrategyConfig
}

func newMACDStrategy(cfg *config.StrategyConfig) *MACDStrategy {
	return &MACDStrategy{cfg: cfg}
}

func (s *MACDStrategy) ID() string   { return "a9" }
func (s *MACDStrategy) Name() string { return "MACD Cross" }

func (s *MACDStrategy) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	price := bars.Last().Close
	m := indicators.MACD(bars.Closes(),
		s.cfg.IntParam("fast_period", 12),
		s.cfg.IntParam("slow_period", 26),
		s.cfg.IntParam("signal_period", 9))

	hist := indicators.Last(m.Histogram)
	conf := clampConf(0.55+logistic(math.Abs(hist)/price*1000, 1)-0.5, 0.55)

	if indicators.CrossedAbove(m.Line, m.Signal) {
		return []Signal{entrySignal(symbol, "MACD_BULLISH_CROSS", ActionBuy, price, conf,
			"MACD line crossed over signal", bars,
			map[string]interface{}{"macd": indicators.Last(m.Line), "macd_signal": indicators.Last(m.Signal)})}
	}
	if indicators.CrossedBelow(m.Line, m.Signal) {
		return []Signal{entrySignal(symbol, "MACD_BEARISH_CROSS", ActionSell, price, conf,
			"MACD line crossed under signal", bars,
			map[string]interface{}{"macd": indicators.Last(m.Line), "macd_signal": indicators.Last(m.Signal)})}
	}
	return nil
}

// ===== A12: STOCHASTIC RSI =====

type StochRSIStrategy struct {
	cfg *config.StrategyConfig
}

func newStochRSIStrategy(cfg *config.StrategyConfig) *StochRSIStrategy {
	return &StochRSIStrategy{cfg: cfg}
}

func (s *StochRSIStrategy) ID() string   { return "a12" }
func (s *StochRSIStrategy) Name() string { return "Stochastic RSI" }

func (s *StochRSIStrategy) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	price := bars.Last().Close
	srsi := indicators.StochRSI(bars.Closes(),
		s.cfg.IntParam("rsi_period", 14),
		s.cfg.IntParam("stoch_period", 14))
	lower := s.cfg.Param("lower_band", 0.2)
	upper := s.cfg.Param("upper_band", 0.8)

	if crossedUp(srsi, lower) {
		return []Signal{entrySignal(symbol, "STOCHRSI_OVERSOLD_CROSS", ActionBuy, price, 0.6,
			fmt.Sprintf("StochRSI recovered through %.2f", lower),
			bars, map[string]interface{}{"stochrsi": indicators.Last(srsi)})}
	}
	if crossedDown(srsi, upper) {
		return []Signal{entrySignal(symbol, "STOCHRSI_OVERBOUGHT_CROSS", ActionSell, price, 0.6,
			fmt.Sprintf("StochRSI dropped through %.2f", upper),
			bars, map[string]interface{}{"stochrsi": indicators.Last(srsi)})}
	}
	return nil
}

// ===== A14: RSI DIVERGENCE =====

// RSITrendline hunts momentum divergence: regression slope of price and of
// RSI over the same window pointing in opposite directions.
type RSITrendline struct {
	cfg *config.StrategyConfig
}

func newRSITrendline(cfg *config.StrategyConfig) *RSITrendline {
	return &RSITrendline{cfg: cfg}
}

func (s *RSITrendline) ID() string   { return "a14" }
func (s *RSITrendline) Name() string { return "RSI Divergence" }

func (s *RSITrendline) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	window := s.cfg.IntParam("divergence_window", 20)
	rsiP := s.cfg.IntParam("rsi_period", 14)
	if len(bars) < rsiP+window+1 || len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	closes := bars.Closes()
	price := bars.Last().Close
	rsi := indicators.RSI(closes, rsiP)

	priceFit := indicators.LinearRegression(closes[len(closes)-window:])
	rsiFit := indicators.LinearRegression(rsi[len(rsi)-window:])
	if math.IsNaN(priceFit.Slope) || math.IsNaN(rsiFit.Slope) {
		return nil
	}

	// Percent-per-bar for price; RSI slope is already in comparable points.
	pSlope := priceFit.Slope / price * 100
	minFit := s.cfg.Param("r2_min", 0.3)
	if priceFit.R2 < minFit || rsiFit.R2 < minFit {
		return nil
	}
	minSlope := s.cfg.Param("slope_min", 0.02)

	if pSlope < -minSlope && rsiFit.Slope > minSlope {
		conf := clampConf(0.5+math.Min(rsiFit.Slope-pSlope, 3)/10, 0.5)
		return []Signal{entrySignal(symbol, "RSI_BULL_DIVERGENCE", ActionBuy, price, conf,
			fmt.Sprintf("price sliding %.3f%%/bar, RSI rising %.2f/bar", pSlope, rsiFit.Slope),
			bars, map[string]interface{}{"price_slope": pSlope, "rsi_slope": rsiFit.Slope})}
	}
	if pSlope > minSlope && rsiFit.Slope < -minSlope {
		conf := clampConf(0.5+math.Min(pSlope-rsiFit.Slope, 3)/10, 0.5)
		return []Signal{entrySignal(symbol, "RSI_BEAR_DIVERGENCE", ActionSell, price, conf,
			fmt.Sprintf("price rising %.3f%%/bar, RSI sliding %.2f/bar", pSlope, rsiFit.Slope),
			bars, map[string]interface{}{"price_slope": pSlope, "rsi_slope": rsiFit.Slope})}
	}
	return nil
}

// ===== A21: ULTIMATE OSCILLATOR =====

type UltimateStrategy struct {
	cfg *config.StrategyConfig
}

func newUltimateStrategy(cfg *config.StrategyConfig) *UltimateStrategy {
	return &UltimateStrategy{cfg: cfg}
}

func (s *UltimateStrategy) ID() string   { return "a21" }
func (s *UltimateStrategy) Name() string { return "Ultimate Oscillator" }

func (s *UltimateStrategy) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	price := bars.Last().Close
	uo := indicators.UltimateOscillator(bars.Highs(), bars.Lows(), bars.Closes(),
		s.cfg.IntParam("period_1", 7),
		s.cfg.IntParam("period_2", 14),
		s.cfg.IntParam("period_3", 28))

	if crossedUp(uo, s.cfg.Param("oversold", 30)) {
		return []Signal{entrySignal(symbol, "ULTIMATE_OVERSOLD_CROSS", ActionBuy, price, 0.6,
			"ultimate oscillator recovered from oversold",
			bars, map[string]interface{}{"ultimate": indicators.Last(uo)})}
	}
	if crossedDown(uo, s.cfg.Param("overbought", 70)) {
		return []Signal{entrySignal(symbol, "ULTIMATE_OVERBOUGHT_CROSS", ActionSell, price, 0.6,
			"ultimate oscillator dropped from overbought",
			bars, map[string]interface{}{"ultimate": indicators.Last(uo)})}
	}
	return nil
}

// ===== A22: WILLIAMS %R =====

type WilliamsRStrategy struct {
	cfg *config.StrategyConfig
}

func newWilliamsRStrategy(cfg *config.StrategyConfig) *WilliamsRStrategy {
	return &WilliamsRStrategy{cfg: cfg}
}

func (s *WilliamsRStrategy) ID() string   { return "a22" }
func (s *WilliamsRStrategy) Name() string { return "Williams %R" }

func (s *WilliamsRStrategy) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	price := bars.Last().Close
	wr := indicators.WilliamsR(bars.Highs(), bars.Lows(), bars.Closes(),
		s.cfg.IntParam("period", 14))

	if crossedUp(wr, s.cfg.Param("oversold", -80)) {
		return []Signal{entrySignal(symbol, "WILLIAMS_OVERSOLD_CROSS", ActionBuy, price, 0.6,
			"%R recovered through -80",
			bars, map[string]interface{}{"williams_r": indicators.Last(wr)})}
	}
	if crossedDown(wr, s.cfg.Param("overbought", -20)) {
		return []Signal{entrySignal(symbol, "WILLIAMS_OVERBOUGHT_CROSS", ActionSell, price, 0.6,
			"%R dropped through -20",
			bars, map[string]interface{}{"williams_r": indicators.Last(wr)})}
	}
	return nil
}

// ===== A23: TSI =====

type TSIStrategy struct {
	cfg *config.StrategyConfig
}

func newTSIStrategy(cfg *config.StrategyConfig) *TSIStrategy {
	return &TSIStrategy{cfg: cfg}
}

func (s *TSIStrategy) ID() string   { return "a23" }
func (s *TSIStrategy) Name() string { return "True Strength Index" }

func (s *TSIStrategy) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	price := bars.Last().Close
	tsi := indicators.TSI(bars.Closes(),
		s.cfg.IntParam("long_period", 25),
		s.cfg.IntParam("short_period", 13))
	if len(tsi) < 3 {
		return nil
	}
	// tsi[0] is undefined; seed the signal EMA from the first real value.
	line := tsi[1:]
	sigLine := indicators.EMA(line, s.cfg.IntParam("signal_period", 7))

	spread := math.Abs(indicators.Last(line) - indicators.Last(sigLine))
	conf := clampConf(0.55+math.Min(spread/50, 0.25), 0.55)

	if indicators.CrossedAbove(line, sigLine) {
		return []Signal{entrySignal(symbol, "TSI_BULLISH_CROSS", ActionBuy, price, conf,
			"TSI crossed over its signal line",
			bars, map[string]interface{}{"tsi": indicators.Last(line)})}
	}
	if indicators.CrossedBelow(line, sigLine) {
		return []Signal{entrySignal(symbol, "TSI_BEARISH_CROSS", ActionSell, price, conf,
			"TSI crossed under its signal line",
			bars, map[string]interface{}{"tsi": indicators.Last(line)})}
	}
	return nil
}

// ===== A24: STOCHASTIC =====

type StochasticStrategy struct {
	cfg *config.StrategyConfig
}

func newStochasticStrategy(cfg *config.StrategyConfig) *StochasticStrategy {
	return &StochasticStrategy{cfg: cfg}
}

func (s *StochasticStrategy) ID() string   { return "a24" }
func (s *StochasticStrategy) Name() string { return "Stochastic" }

func (s *StochasticStrategy) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	price := bars.Last().Close
	st := indicators.StochasticOscillator(bars.Highs(), bars.Lows(), bars.Closes(),
		s.cfg.IntParam("k_period", 14),
		s.cfg.IntParam("d_period", 3))

	k, d := indicators.Last(st.K), indicators.Last(st.D)
	oversold := s.cfg.Param("oversold", 20)
	overbought := s.cfg.Param("overbought", 80)

	// The K/D cross only counts inside the extreme zone.
	if indicators.CrossedAbove(st.K, st.D) && k < oversold+5 && d < oversold+5 {
		return []Signal{entrySignal(symbol, "STOCH_BULL_CROSS", ActionBuy, price, 0.6,
			fmt.Sprintf("%%K %.1f crossed over %%D %.1f in oversold zone", k, d),
			bars, map[string]interface{}{"stoch_k": k, "stoch_d": d})}
	}
	if indicators.CrossedBelow(st.K, st.D) && k > overbought-5 && d > overbought-5 {
		return []Signal{entrySignal(symbol, "STOCH_BEAR_CROSS", ActionSell, price, 0.6,
			fmt.Sprintf("%%K %.1f crossed under %%D %.1f in overbought zone", k, d),
			bars, map[string]interface{}{"stoch_k": k, "stoch_d": d})}
	}
	return nil
}

// ===== A26: MONEY FLOW INDEX =====

type MFIStrategy struct {
	cfg *config.StrategyConfig
}

func newMFIStrategy(cfg *config.StrategyConfig) *MFIStrategy {
	return &MFIStrategy{cfg: cfg}
}

func (s *MFIStrategy) ID() string   { return "a26" }
func (s *MFIStrategy) Name() string { return "Money Flow Index" }

func (s *MFIStrategy) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	price := bars.Last().Close
	mfi := indicators.MFI(bars.Highs(), bars.Lows(), bars.Closes(), bars.Volumes(),
		s.cfg.IntParam("period", 14))

	if crossedUp(mfi, s.cfg.Param("oversold", 20)) {
		return []Signal{entrySignal(symbol, "MFI_OVERSOLD_CROSS", ActionBuy, price, 0.6,
			"money flow recovered from oversold",
			bars, map[string]interface{}{"mfi": indicators.Last(mfi)})}
	}
	if crossedDown(mfi, s.cfg.Param("overbought", 80)) {
		return []Signal{entrySignal(symbol, "MFI_OVERBOUGHT_CROSS", ActionSell, price, 0.6,
			"money flow dropped from overbought",
			bars, map[string]interface{}{"mfi": indicators.Last(mfi)})}
	}
	return nil
}
