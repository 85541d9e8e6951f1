package strategy

import (
	"fmt"
	"math"
	"time"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/indicators"
	"stock-trading-engine/internal/marketdata"
)

// ===== A5: MULTIFACTOR COMPOSITE =====

// MultiFactor blends four factor scores, each squashed into [0,1], under
// weights that normalize to 1.0 at construction. Entries require the
// composite to clear buy_threshold with liquidity and momentum both strong
// on their own; the exit override flattens when the composite decays under
// exit_threshold.
type MultiFactor struct {
	cfg *config.StrategyConfig

	wLiquidity float64
	wTrend     float64
	wSentiment float64
	wMomentum  float64
}

func newMultiFactor(cfg *config.StrategyConfig) *MultiFactor {
	s := &MultiFactor{
		cfg:        cfg,
		wLiquidity: cfg.Param("weight_liquidity", 0.25),
		wTrend:     cfg.Param("weight_trend", 0.20),
		wSentiment: cfg.Param("weight_sentiment", 0.15),
		wMomentum:  cfg.Param("weight_momentum", 0.40),
	}
	total := s.wLiquidity + s.wTrend + s.wSentiment + s.wMomentum
	if total <= 0 {
		total = 1
	}
	s.wLiquidity /= total
	s.wTrend /= total
	s.wSentiment /= total
	s.wMomentum /= total
	return s
}

func (s *MultiFactor) ID() string   { return "a5" }
func (s *MultiFactor) Name() string { return "Multifactor Composite" }

type factorScores struct {
	liquidity float64
	trend     float64
	sentiment float64
	momentum  float64
}

func (f factorScores) composite(s *MultiFactor) float64 {
	return s.wLiquidity*f.liquidity + s.wTrend*f.trend + s.wSentiment*f.sentiment + s.wMomentum*f.momentum
}

// factors computes the four [0,1] scores from bars alone. Liquidity is
// recent volume against its baseline, trend is the stretch over MA50,
// sentiment is the up-bar share of the last ten bars, momentum is squashed
// ROC(10).
func (s *MultiFactor) factors(bars marketdata.BarSeries) (factorScores, bool) {
	closes := bars.Closes()
	vols := bars.Volumes()
	if len(closes) < 51 {
		return factorScores{}, false
	}

	volFast := indicators.Last(indicators.SMA(vols, 5))
	volSlow := indicators.Last(indicators.SMA(vols, 20))
	ma50 := indicators.Last(indicators.SMA(closes, 50))
	roc := indicators.Last(indicators.ROC(closes, 10))
	if math.IsNaN(volFast) || math.IsNaN(volSlow) || math.IsNaN(ma50) || math.IsNaN(roc) || volSlow <= 0 || ma50 <= 0 {
		return factorScores{}, false
	}

	upBars := 0
	for i := len(closes) - 10; i < len(closes); i++ {
		if closes[i] > closes[i-1] {
			upBars++
		}
	}

	price := closes[len(closes)-1]
	return factorScores{
		liquidity: logistic(volFast/volSlow-1, 4),
		trend:     logistic((price/ma50-1)*100, 0.8),
		sentiment: float64(upBars) / 10,
		momentum:  logistic(roc, 1.2),
	}, true
}

func (s *MultiFactor) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	f, ok := s.factors(bars)
	if !ok {
		return nil
	}
	score := f.composite(s)
	price := bars.Last().Close

	buyAt := s.cfg.Param("buy_threshold", 0.70)
	floor := s.cfg.Param("factor_floor", 0.65)
	if score >= buyAt && f.liquidity >= floor && f.momentum >= floor {
		return []Signal{entrySignal(symbol, "MULTIFACTOR_ENTRY", ActionBuy, price, clampConf(score, 0.5),
			fmt.Sprintf("composite %.2f (liq %.2f, mom %.2f)", score, f.liquidity, f.momentum),
			bars, map[string]interface{}{
				"score":     score,
				"liquidity": f.liquidity,
				"trend":     f.trend,
				"sentiment": f.sentiment,
				"momentum":  f.momentum,
			})}
	}
	return nil
}

func (s *MultiFactor) CheckExitConditions(symbol string, pos Position, price float64, now time.Time, bars marketdata.BarSeries) *Signal {
	if sig := BaseExitCheck(s.cfg, pos, price, now); sig != nil {
		return sig
	}
	if pos.Size <= 0 || bars.Empty() {
		return nil
	}
	f, ok := s.factors(bars)
	if !ok {
		return nil
	}
	score := f.composite(s)
	exitAt := s.cfg.Param("exit_threshold", 0.40)
	if score <= exitAt {
		return exitSignal(pos, price, "MULTIFACTOR_EXIT", clampConf(1-score, 0.6),
			fmt.Sprintf("composite decayed to %.2f <= %.2f", score, exitAt))
	}
	return nil
}
