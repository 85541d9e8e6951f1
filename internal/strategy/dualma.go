package strategy

import (
	"fmt"
	"math"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/indicators"
	"stock-trading-engine/internal/marketdata"
)

// ===== A3: DUAL MA + VOLUME =====

// DualMA is the default strategy: EMA(fast)/EMA(slow) golden cross with a
// volume surge confirmation on the buy side, and a multi-tier sell side
// (death cross, close under the slow EMA, volume expansion into a down bar,
// or an RSI blow-off). Sells go through the base gates like any other
// signal, so a sell tier firing without a position just journals a reject.
type DualMA struct {
	cfg *config.StrategyConfig
}

func newDualMA(cfg *config.StrategyConfig) *DualMA {
	return &DualMA{cfg: cfg}
}

func (s *DualMA) ID() string   { return "a3" }
func (s *DualMA) Name() string { return "Dual MA Volume" }

func (s *DualMA) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	closes := bars.Closes()
	vols := bars.Volumes()
	price := bars.Last().Close

	fast := indicators.EMA(closes, s.cfg.IntParam("fast_period", 9))
	slow := indicators.EMA(closes, s.cfg.IntParam("slow_period", 21))
	volRatio := volumeRatio(vols, 20)
	surge := s.cfg.Param("volume_surge_ratio", 1.5)

	if indicators.CrossedAbove(fast, slow) && volRatio >= surge {
		spread := (indicators.Last(fast) - indicators.Last(slow)) / price
		conf := clampConf(0.55+math.Min((volRatio-surge)*0.1, 0.25)+math.Min(spread*50, 0.2), 0.55)
		return []Signal{entrySignal(symbol, SignalMAGoldenCross, ActionBuy, price, conf,
			fmt.Sprintf("EMA golden cross on %.1fx volume", volRatio),
			bars, map[string]interface{}{"ema_fast": indicators.Last(fast), "ema_slow": indicators.Last(slow), "volume_ratio": volRatio})}
	}

	// Sell tiers, strongest first. One signal per bar.
	if indicators.CrossedBelow(fast, slow) {
		conf := clampConf(0.6+math.Min((volRatio-1)*0.1, 0.2), 0.6)
		return []Signal{entrySignal(symbol, SignalMADeathCross, ActionSell, price, conf,
			"EMA death cross", bars, nil)}
	}
	slowNow := indicators.Last(slow)
	prevClose := closes[len(closes)-2]
	if !math.IsNaN(slowNow) && price < slowNow && prevClose >= indicators.Prev(slow) {
		return []Signal{entrySignal(symbol, "CLOSE_BELOW_SLOW_MA", ActionSell, price, 0.6,
			fmt.Sprintf("close %.2f broke under slow EMA %.2f", price, slowNow), bars, nil)}
	}
	if volRatio >= s.cfg.Param("volume_expansion_ratio", 2.0) && price < prevClose {
		return []Signal{entrySignal(symbol, "VOLUME_EXPANSION_DROP", ActionSell, price,
			clampConf(0.5+math.Min((volRatio-2)*0.1, 0.3), 0.5),
			fmt.Sprintf("down bar on %.1fx volume", volRatio), bars, nil)}
	}
	rsi := indicators.Last(indicators.RSI(closes, 14))
	rsiExtreme := s.cfg.Param("rsi_extreme", 80)
	if !math.IsNaN(rsi) && rsi >= rsiExtreme {
		return []Signal{entrySignal(symbol, "RSI_EXTREME", ActionSell, price,
			clampConf(0.5+(rsi-rsiExtreme)/(100-rsiExtreme)*0.4, 0.5),
			fmt.Sprintf("RSI blow-off at %.1f", rsi), bars, nil)}
	}
	return nil
}
