package strategy

import (
	"fmt"
	"sort"

	"stock-trading-engine/config"
)

// Factory builds one strategy from its config block.
type Factory func(cfg *config.StrategyConfig) Strategy

// registry maps strategy id to constructor. Adding a strategy means adding
// a row here; everything else (host grouping, config blocks, API listing)
// keys off this table.
var registry = map[string]Factory{
	"a1":  func(cfg *config.StrategyConfig) Strategy { return newMomentumReversal(cfg) },
	"a2":  func(cfg *config.StrategyConfig) Strategy { return newZScore(cfg) },
	"a3":  func(cfg *config.StrategyConfig) Strategy { return newDualMA(cfg) },
	"a4":  func(cfg *config.StrategyConfig) Strategy { return newPullback(cfg) },
	"a5":  func(cfg *config.StrategyConfig) Strategy { return newMultiFactor(cfg) },
	"a6":  func(cfg *config.StrategyConfig) Strategy { return newNewsTrading(cfg) },
	"a7":  func(cfg *config.StrategyConfig) Strategy { return newCTATrend(cfg) },
	"a8":  func(cfg *config.StrategyConfig) Strategy { return newRSIStrategy(cfg) },
	"a9":  func(cfg *config.StrategyConfig) Strategy { return newMACDStrategy(cfg) },
	"a10": func(cfg *config.StrategyConfig) Strategy { return newBollingerStrategy(cfg) },
	"a11": func(cfg *config.StrategyConfig) Strategy { return newMACross(cfg) },
	"a12": func(cfg *config.StrategyConfig) Strategy { return newStochRSIStrategy(cfg) },
	"a13": func(cfg *config.StrategyConfig) Strategy { return newEMACross(cfg) },
	"a14": func(cfg *config.StrategyConfig) Strategy { return newRSITrendline(cfg) },
	"a15": func(cfg *config.StrategyConfig) Strategy { return newPairsSpread(cfg) },
	"a16": func(cfg *config.StrategyConfig) Strategy { return newROCStrategy(cfg) },
	"a17": func(cfg *config.StrategyConfig) Strategy { return newCCIStrategy(cfg) },
	"a18": func(cfg *config.StrategyConfig) Strategy { return newAnomaly(cfg) },
	"a19": func(cfg *config.StrategyConfig) Strategy { return newSuperTrendStrategy(cfg) },
	"a20": func(cfg *config.StrategyConfig) Strategy { return newAroonStrategy(cfg) },
	"a21": func(cfg *config.StrategyConfig) Strategy { return newUltimateStrategy(cfg) },
	"a22": func(cfg *config.StrategyConfig) Strategy { return newWilliamsRStrategy(cfg) },
	"a23": func(cfg *config.StrategyConfig) Strategy { return newTSIStrategy(cfg) },
	"a24": func(cfg *config.StrategyConfig) Strategy { return newStochasticStrategy(cfg) },
	"a25": func(cfg *config.StrategyConfig) Strategy { return newRSRating(cfg) },
	"a26": func(cfg *config.StrategyConfig) Strategy { return newMFIStrategy(cfg) },
	"a27": func(cfg *config.StrategyConfig) Strategy { return newMinervini(cfg) },
	"a28": func(cfg *config.StrategyConfig) Strategy { return newKeltnerStrategy(cfg) },
	"a29": func(cfg *config.StrategyConfig) Strategy { return newPivotStrategy(cfg) },
	"a30": func(cfg *config.StrategyConfig) Strategy { return newLinRegStrategy(cfg) },
	"a31": func(cfg *config.StrategyConfig) Strategy { return newMLPStrategy(cfg) },
}

// New constructs the strategy registered under id.
func New(id string, cfg *config.StrategyConfig) (Strategy, error) {
	factory, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("strategy: unknown id %q", id)
	}
	if cfg == nil {
		return nil, fmt.Errorf("strategy %s: nil config", id)
	}
	return factory(cfg), nil
}

// IDs lists the registered strategy ids in stable order.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool {
		// Numeric order: a2 before a10.
		if len(ids[a]) != len(ids[b]) {
			return len(ids[a]) < len(ids[b])
		}
		return ids[a] < ids[b]
	})
	return ids
}

// Registered reports whether id names a known strategy.
func Registered(id string) bool {
	_, ok := registry[id]
	return ok
}
