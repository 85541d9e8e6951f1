package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/marketdata"
	"stock-trading-engine/internal/news"
)

// ===== A6: NEWS SENTIMENT =====

// NewsConsumer is implemented by strategies that want the news service
// injected after construction. The engine checks for it when wiring
// strategies up.
type NewsConsumer interface {
	SetNewsService(svc *news.Service)
}

// NewsTrading trades headline flow: the news service's impact score (decayed
// sentiment weighted by relevance) has to clear impact_threshold while the
// symbol's short-window realized volatility confirms the market is actually
// reacting. Without a news service, or without news, it stays silent.
type NewsTrading struct {
	cfg *config.StrategyConfig
	svc *news.Service
}

func newNewsTrading(cfg *config.StrategyConfig) *NewsTrading {
	return &NewsTrading{cfg: cfg}
}

func (s *NewsTrading) ID() string                       { return "a6" }
func (s *NewsTrading) Name() string                     { return "News Sentiment" }
func (s *NewsTrading) SetNewsService(svc *news.Service) { s.svc = svc }

func (s *NewsTrading) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if s.svc == nil || len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	last := bars.Last()
	price := last.Close

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()
	items := s.svc.Recent(ctx, symbol, last.Timestamp)
	if len(items) == 0 {
		return nil
	}
	impact := s.svc.ImpactScore(items, last.Timestamp)

	threshold := s.cfg.Param("impact_threshold", 0.3)
	if math.Abs(impact) < threshold {
		return nil
	}
	vol := returnsStd(bars.Closes(), s.cfg.IntParam("volatility_window", 10))
	if vol < s.cfg.Param("volatility_min", 0.002) {
		return nil
	}

	action := ActionBuy
	if impact < 0 {
		action = ActionSell
	}
	conf := clampConf(0.5+(math.Abs(impact)-threshold)*0.7, 0.5)
	return []Signal{entrySignal(symbol, "NEWS_SENTIMENT", action, price, conf,
		fmt.Sprintf("news impact %.2f over %d items, vol %.3f", impact, len(items), vol),
		bars, map[string]interface{}{"impact": impact, "news_items": len(items), "volatility": vol})}
}
