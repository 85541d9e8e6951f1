package strategy

import (
	"fmt"
	"math"
	"time"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/indicators"
	"stock-trading-engine/internal/marketdata"
)

// ===== A2: Z-SCORE MEAN REVERSION =====

// ZScore trades statistical dislocation: long when the close sits more than
// entry_threshold population deviations under its rolling mean with RSI
// corroborating and the short trend not pointing down, short on the mirror
// setup. Exits are owned here, not by the generic policy: convergence back
// inside exit_threshold, an adverse short/long MA cross, or a volume-backed
// adverse move all flatten the position.
type ZScore struct {
	cfg *config.StrategyConfig
}

func newZScore(cfg *config.StrategyConfig) *ZScore {
	return &ZScore{cfg: cfg}
}

func (s *ZScore) ID() string   { return "a2" }
func (s *ZScore) Name() string { return "Z-Score Mean Reversion" }

func (s *ZScore) zscore(closes []float64) float64 {
	return indicators.Last(indicators.ZScore(closes, s.cfg.IntParam("zscore_period", 20)))
}

func (s *ZScore) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	closes := bars.Closes()
	price := bars.Last().Close

	z := s.zscore(closes)
	rsi := indicators.Last(indicators.RSI(closes, 14))
	if math.IsNaN(z) || math.IsNaN(rsi) {
		return nil
	}
	entry := s.cfg.Param("entry_threshold", 2.0)

	ma5 := indicators.SMA(closes, 5)
	shortTrendNonDown := indicators.Last(ma5) >= indicators.Prev(ma5)

	if z <= -entry && rsi < s.cfg.Param("rsi_confirm_low", 35) && shortTrendNonDown {
		conf := clampConf(0.5+(math.Abs(z)-entry)*0.2+(35-rsi)/100, 0.5)
		return []Signal{entrySignal(symbol, SignalZScoreOversold, ActionBuy, price, conf,
			fmt.Sprintf("z=%.2f under -%.1f, RSI %.1f", z, entry, rsi),
			bars, map[string]interface{}{"zscore": z, "rsi": rsi})}
	}
	if z >= entry && rsi > s.cfg.Param("rsi_confirm_high", 65) {
		conf := clampConf(0.5+(z-entry)*0.2+(rsi-65)/100, 0.5)
		return []Signal{entrySignal(symbol, SignalZScoreOverbought, ActionSell, price, conf,
			fmt.Sprintf("z=%.2f over +%.1f, RSI %.1f", z, entry, rsi),
			bars, map[string]interface{}{"zscore": z, "rsi": rsi})}
	}
	return nil
}

// CheckExitConditions replaces the generic policy. The shared trip order
// still runs first so stop loss and forced close keep their precedence.
func (s *ZScore) CheckExitConditions(symbol string, pos Position, price float64, now time.Time, bars marketdata.BarSeries) *Signal {
	if sig := BaseExitCheck(s.cfg, pos, price, now); sig != nil {
		return sig
	}
	if bars.Empty() {
		return nil
	}
	closes := bars.Closes()
	z := s.zscore(closes)
	if math.IsNaN(z) {
		return nil
	}

	exitT := s.cfg.Param("exit_threshold", 0.5)
	if math.Abs(z) <= exitT {
		return exitSignal(pos, price, SignalZScoreExit, clampConf(1-math.Abs(z), 0.6),
			fmt.Sprintf("z converged to %.2f within +/-%.1f", z, exitT))
	}

	fast := indicators.SMA(closes, 5)
	slow := indicators.SMA(closes, 20)
	if pos.Size > 0 && indicators.CrossedBelow(fast, slow) {
		return exitSignal(pos, price, SignalMADeathCross, 0.8, "short MA crossed under long MA")
	}
	if pos.Size < 0 && indicators.CrossedAbove(fast, slow) {
		return exitSignal(pos, price, SignalMAGoldenCross, 0.8, "short MA crossed over long MA")
	}

	// Heavy volume pushing against the position is a regime change, not
	// noise.
	volRatio := volumeRatio(bars.Volumes(), 20)
	if volRatio >= s.cfg.Param("volume_exit_ratio", 2.0) && len(closes) >= 2 {
		lastMove := closes[len(closes)-1] - closes[len(closes)-2]
		if (pos.Size > 0 && lastMove < 0) || (pos.Size < 0 && lastMove > 0) {
			return exitSignal(pos, price, "VOLUME_REVERSAL_EXIT", 0.7,
				fmt.Sprintf("adverse move on %.1fx volume", volRatio))
		}
	}
	return nil
}
