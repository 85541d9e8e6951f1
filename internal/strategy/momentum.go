package strategy

import (
	"fmt"
	"math"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/indicators"
	"stock-trading-engine/internal/marketdata"
)

// ===== A1: MOMENTUM REVERSAL =====

// MomentumReversal runs two sub-detectors keyed by the wall-clock bucket of
// the latest bar. The morning bucket rides continuation: moderate RSI with a
// real deviation off MA20. Midday and later it fades exhaustion: RSI
// extremes printed near the 20-bar high or low. Both demand a mild volume
// confirmation.
type MomentumReversal struct {
	cfg *config.StrategyConfig
}

func newMomentumReversal(cfg *config.StrategyConfig) *MomentumReversal {
	return &MomentumReversal{cfg: cfg}
}

func (s *MomentumReversal) ID() string   { return "a1" }
func (s *MomentumReversal) Name() string { return "Momentum Reversal" }

func (s *MomentumReversal) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	closes := bars.Closes()
	highs := bars.Highs()
	lows := bars.Lows()
	vols := bars.Volumes()
	last := bars.Last()
	price := last.Close

	rsi := indicators.Last(indicators.RSI(closes, s.cfg.IntParam("rsi_period", 14)))
	ma20 := indicators.Last(indicators.SMA(closes, 20))
	if math.IsNaN(rsi) || math.IsNaN(ma20) || ma20 <= 0 {
		return nil
	}
	volRatio := volumeRatio(vols, 20)
	minVolRatio := s.cfg.Param("volume_ratio_min", 1.2)
	if volRatio < minVolRatio {
		return nil
	}

	morningEnd := s.cfg.IntParam("morning_end_minute", 11*60+30)
	minuteOfDay := last.Timestamp.Hour()*60 + last.Timestamp.Minute()

	if minuteOfDay < morningEnd {
		// Morning continuation: RSI in the working band, price stretched
		// off MA20 in the trend direction.
		rsiLo := s.cfg.Param("rsi_min", 50)
		rsiHi := s.cfg.Param("rsi_max", 67)
		deviation := (price - ma20) / ma20
		minDev := s.cfg.Param("ma_deviation_min", 0.003)
		if rsi >= rsiLo && rsi <= rsiHi && deviation >= minDev {
			conf := clampConf(0.5+(rsi-rsiLo)/(rsiHi-rsiLo)*0.3+math.Min(deviation*20, 0.2), 0.5)
			return []Signal{entrySignal(symbol, SignalMomentumEntry, ActionBuy, price, conf,
				fmt.Sprintf("morning momentum: RSI %.1f, %.2f%% above MA20, vol x%.1f", rsi, deviation*100, volRatio),
				bars, map[string]interface{}{"rsi": rsi, "ma20": ma20, "volume_ratio": volRatio})}
		}
		return nil
	}

	// Midday and later: fade RSI extremes printed at the edge of the
	// 20-bar range.
	high20 := indicators.HighestIn(highs, 20)
	low20 := indicators.LowestIn(lows, 20)
	if math.IsNaN(high20) || math.IsNaN(low20) {
		return nil
	}
	band := s.cfg.Param("range_proximity", 0.01)
	overbought := s.cfg.Param("rsi_overbought", 70)
	oversold := s.cfg.Param("rsi_oversold", 30)

	if rsi > overbought && price >= high20*(1-band) {
		conf := clampConf(0.5+(rsi-overbought)/(100-overbought)*0.5, 0.5)
		return []Signal{entrySignal(symbol, SignalReversalEntry, ActionSell, price, conf,
			fmt.Sprintf("exhaustion at 20-bar high: RSI %.1f > %.0f", rsi, overbought),
			bars, map[string]interface{}{"rsi": rsi, "high_20": high20, "volume_ratio": volRatio})}
	}
	if rsi < oversold && price <= low20*(1+band) {
		conf := clampConf(0.5+(oversold-rsi)/oversold*0.5, 0.5)
		return []Signal{entrySignal(symbol, SignalReversalEntry, ActionBuy, price, conf,
			fmt.Sprintf("capitulation at 20-bar low: RSI %.1f < %.0f", rsi, oversold),
			bars, map[string]interface{}{"rsi": rsi, "low_20": low20, "volume_ratio": volRatio})}
	}
	return nil
}
