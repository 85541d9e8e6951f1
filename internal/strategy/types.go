package strategy

import (
	"fmt"
	"time"

	"stock-trading-engine/internal/broker"
	"stock-trading-engine/internal/journal"
)

// ===== ACTIONS =====

const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// ===== SIGNAL TYPES =====

// Common signal types. Strategies may emit their own named variants (e.g.
// SUPERTREND_FLIP_LONG) as long as they are non-empty; SignalUnknown is
// invalid everywhere.
const (
	SignalUnknown           = "UNKNOWN"
	SignalMomentumEntry     = "MOMENTUM_ENTRY"
	SignalReversalEntry     = "REVERSAL_ENTRY"
	SignalZScoreOversold    = "ZSCORE_OVERSOLD"
	SignalZScoreOverbought  = "ZSCORE_OVERBOUGHT"
	SignalZScoreExit        = "ZSCORE_EXIT"
	SignalMAGoldenCross     = "MA_GOLDEN_CROSS"
	SignalMADeathCross      = "MA_DEATH_CROSS"
	SignalBBUpperBreakout   = "BB_UPPER_BREAKOUT"
	SignalBBLowerBreakout   = "BB_LOWER_BREAKOUT"
	SignalStopLoss          = "STOP_LOSS"
	SignalTakeProfit        = "TAKE_PROFIT"
	SignalMaxHolding        = "MAX_HOLDING"
	SignalTrailingStop      = "TRAILING_STOP"
	SignalForceClose        = "FORCE_CLOSE"
	SignalMarketClose       = "MARKET_CLOSE"
	SignalPartialExit       = "PARTIAL_EXIT"
	SignalCloseAllPositions = "CLOSE_ALL_POSITIONS"
)

// ===== SIGNAL =====

// Signal is one trading intention produced by a strategy. It is transient:
// it lives for the cycle that produced it, while its hash persists in the
// cooldown cache.
type Signal struct {
	Symbol             string                 `json:"symbol"`
	StrategyID         string                 `json:"strategy_id"`
	Type               string                 `json:"signal_type"`
	Action             string                 `json:"action"`
	ReferencePrice     float64                `json:"reference_price"`
	PositionSize       int                    `json:"position_size"`
	Confidence         float64                `json:"confidence"`
	Reason             string                 `json:"reason,omitempty"`
	IndicatorsSnapshot map[string]interface{} `json:"indicators_snapshot,omitempty"`
	ForceMarketOrder   bool                   `json:"force_market_order,omitempty"`
	Hash               string                 `json:"signal_hash"`
	GeneratedAt        time.Time              `json:"generated_at"`
}

// ATRHint returns the ATR a strategy attached to the signal's indicator
// snapshot, or 0 when absent. Sizing falls back to a price fraction then.
func (s *Signal) ATRHint() float64 {
	if s.IndicatorsSnapshot == nil {
		return 0
	}
	if v, ok := s.IndicatorsSnapshot["atr"].(float64); ok {
		return v
	}
	return 0
}

// Validate enforces the signal invariants before any order work happens.
func (s *Signal) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("signal: empty symbol")
	}
	if s.Type == "" || s.Type == SignalUnknown {
		return fmt.Errorf("signal %s: invalid signal type %q", s.Symbol, s.Type)
	}
	if s.Action != ActionBuy && s.Action != ActionSell {
		return fmt.Errorf("signal %s: invalid action %q", s.Symbol, s.Action)
	}
	if s.PositionSize <= 0 {
		return fmt.Errorf("signal %s: position size %d must be positive", s.Symbol, s.PositionSize)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("signal %s: confidence %v outside [0,1]", s.Symbol, s.Confidence)
	}
	if s.ReferencePrice <= 0 {
		return fmt.Errorf("signal %s: reference price %v must be positive", s.Symbol, s.ReferencePrice)
	}
	return nil
}

// ===== POSITION =====

// Position is one slot in a strategy's local cache. The broker is the
// authority; this cache is overwritten from broker truth at every cycle
// start. Size is signed: positive long, negative short. A position with
// zero size must not exist in the cache.
type Position struct {
	Symbol       string    `json:"symbol"`
	Size         int       `json:"size"`
	AvgCost      float64   `json:"avg_cost"`
	EntryTime    time.Time `json:"entry_time"`
	HighestPrice float64   `json:"highest_price,omitempty"`
	LowestPrice  float64   `json:"lowest_price,omitempty"`
}

// UnrealizedPnL computes the mark-to-market PnL at price. The signed size
// makes the formula hold for shorts as well.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return (price - p.AvgCost) * float64(p.Size)
}

// ChangePct is the sign-aware percentage move relative to average cost:
// positive means the position is in profit.
func (p *Position) ChangePct(price float64) float64 {
	if p.AvgCost == 0 {
		return 0
	}
	pct := (price - p.AvgCost) / p.AvgCost
	if p.Size < 0 {
		return -pct
	}
	return pct
}

// ===== ACCOUNT SNAPSHOT =====

// AccountSnapshot is the broker account view refreshed at cycle start and
// on demand during sizing.
type AccountSnapshot struct {
	NetLiquidation float64   `json:"net_liquidation"`
	AvailableFunds float64   `json:"available_funds"`
	Currency       string    `json:"currency"`
	RefreshedAt    time.Time `json:"refreshed_at"`
}

// ===== STATUS MAPPING =====

// MapOrderStatus folds a gateway order status into a trade record status.
// Anything not terminal stays PENDING until the order stream or a later
// reconciliation resolves it.
func MapOrderStatus(gatewayStatus string) string {
	switch gatewayStatus {
	case broker.StatusFilled:
		return journal.StatusExecuted
	case broker.StatusCancelled:
		return journal.StatusCancelled
	case broker.StatusInactive:
		return journal.StatusFailed
	default:
		return journal.StatusPending
	}
}
