// Package strategy implements the signal engine: the Strategy interface
// its thirty-one implementations satisfy, and the Instance wrapper that
// gives every strategy the same lifecycle: position cache synced from
// broker truth, signal cooldown, risk-based sizing, gated order submission
// and trade journaling.
package strategy

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/broker"
	"stock-trading-engine/internal/events"
	"stock-trading-engine/internal/journal"
	"stock-trading-engine/internal/marketdata"
	"stock-trading-engine/internal/metrics"
)

// ===== STRATEGY INTERFACE =====

// Strategy generates signals for one symbol per call. Implementations are
// pure with respect to engine state: they read bars and indicators and
// return intentions; the Instance owns everything stateful.
type Strategy interface {
	// ID is the short routing tag ("a1".."a31").
	ID() string
	// Name is the human-readable strategy name.
	Name() string
	// GenerateSignals inspects the latest bars and indicator values and
	// returns zero or more signals for the symbol.
	GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal
}

// ExitOverrider replaces the generic exit policy for strategies that manage
// their own exits (MA-cross exits, trailing watermarks, divergence).
// Returning nil means no exit this cycle; the generic policy does not run
// as a fallback.
type ExitOverrider interface {
	CheckExitConditions(symbol string, pos Position, price float64, now time.Time, bars marketdata.BarSeries) *Signal
}

// MinBuyFunds is the floor under which buys are rejected outright. A zero
// balance is exempt: it means the account value is unknown and the engine
// is sizing against cached equity in simulation mode.
const MinBuyFunds = 500.0

// ===== INSTANCE =====

// Deps carries the shared services an Instance drives. Broker may be nil
// for pure-simulation runs; Journal and Bus may be nil in tests. Executed,
// when set, is shared by every instance so a hash one strategy acts on
// suppresses the same hash from any other strategy in the same cycle;
// left nil, the instance keeps a private set.
type Deps struct {
	Broker   broker.Broker
	Journal  *journal.Journal
	Bus      *events.EventBus
	Trading  config.TradingConfig
	Logger   zerolog.Logger
	Executed *ExecutedSignalSet
}

// Instance wraps one Strategy with its runtime state: position cache,
// cooldown cache, the per-cycle executed set (engine-wide when shared
// through Deps), account snapshot and counters. Signal generation may run
// on a worker goroutine while the controller lane executes orders, so all
// state sits behind one RWMutex.
type Instance struct {
	strategy Strategy
	id       string
	cfg      *config.StrategyConfig
	trading  config.TradingConfig

	broker  broker.Broker
	journal *journal.Journal
	bus     *events.EventBus
	logger  zerolog.Logger

	forceCloseMins int

	mu           sync.RWMutex
	enabled      bool
	simulated    bool
	outsideHours bool
	positions    map[string]*Position
	lastPrices   map[string]float64
	symbolSet    map[string]bool
	account      AccountSnapshot
	cachedEquity float64

	cache    *SignalCache
	executed *ExecutedSignalSet

	signalsGenerated int64
	tradesExecuted   int64
}

// NewInstance wires a strategy into the shared services.
func NewInstance(s Strategy, cfg *config.StrategyConfig, deps Deps) *Instance {
	forceClose := -1
	if cfg.ForceCloseTime != "" {
		if mins, err := config.ParseClock(cfg.ForceCloseTime); err == nil {
			forceClose = mins
		}
	}
	executed := deps.Executed
	if executed == nil {
		executed = NewExecutedSignalSet()
	}
	return &Instance{
		strategy:       s,
		id:             s.ID(),
		cfg:            cfg,
		trading:        deps.Trading,
		broker:         deps.Broker,
		journal:        deps.Journal,
		bus:            deps.Bus,
		logger:         deps.Logger.With().Str("component", "strategy").Str("strategy", s.ID()).Logger(),
		forceCloseMins: forceClose,
		enabled:        cfg.Enabled,
		positions:      make(map[string]*Position),
		lastPrices:     make(map[string]float64),
		cachedEquity:   cfg.InitialCapital,
		cache:          NewSignalCache(),
		executed:       executed,
	}
}

// ID returns the strategy routing tag.
func (i *Instance) ID() string { return i.id }

// Name returns the wrapped strategy's display name.
func (i *Instance) Name() string { return i.strategy.Name() }

// Config returns the strategy's config block.
func (i *Instance) Config() *config.StrategyConfig { return i.cfg }

// Enabled reports whether the strategy takes part in cycles.
func (i *Instance) Enabled() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.enabled
}

// SetEnabled toggles the strategy at runtime.
func (i *Instance) SetEnabled(on bool) {
	i.mu.Lock()
	i.enabled = on
	i.mu.Unlock()
	if i.bus != nil {
		i.bus.Publish(events.Event{
			Type:      events.EventStrategyToggled,
			Timestamp: time.Now(),
			Data:      map[string]interface{}{"strategy": i.id, "enabled": on},
		})
	}
}

// Simulated reports whether orders are being journaled without broker
// submission.
func (i *Instance) Simulated() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.simulated
}

// SetOutsideHours tells the instance whether the current cycle sits outside
// regular trading hours, which forces market orders.
func (i *Instance) SetOutsideHours(outside bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.outsideHours = outside
}

// SetSymbols restricts the instance to its assigned symbol universe. With
// no assignment the instance considers every broker position its own.
func (i *Instance) SetSymbols(symbols []string) {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[s] = true
	}
	i.mu.Lock()
	i.symbolSet = set
	i.mu.Unlock()
}

// Account returns the last account snapshot.
func (i *Instance) Account() AccountSnapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.account
}

// Positions returns a copy of the position cache.
func (i *Instance) Positions() map[string]Position {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make(map[string]Position, len(i.positions))
	for sym, p := range i.positions {
		out[sym] = *p
	}
	return out
}

// Counters returns running totals since startup.
func (i *Instance) Counters() (signalsGenerated, tradesExecuted int64) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.signalsGenerated, i.tradesExecuted
}

// RecordPrice remembers the latest observed price for a symbol, feeding
// forced liquidation's price fallback chain.
func (i *Instance) RecordPrice(symbol string, price float64) {
	if price <= 0 {
		return
	}
	i.mu.Lock()
	i.lastPrices[symbol] = price
	i.mu.Unlock()
}

// BeginCycle resets the per-cycle executed set.
func (i *Instance) BeginCycle() {
	i.executed.Clear()
}

// ===== SIGNAL GENERATION =====

// Generate runs the exit policy and then the wrapped strategy for one
// symbol. When a position's exit trips, the exit signal is returned alone:
// no fresh entries for a symbol the engine is trying to leave. A panicking
// strategy is contained and the symbol skipped.
func (i *Instance) Generate(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet, now time.Time) []Signal {
	if !i.Enabled() {
		return nil
	}
	if !bars.Empty() {
		last := bars.Last()
		i.RecordPrice(symbol, last.Close)
		if exit := i.CheckExits(symbol, last.Close, now, bars); exit != nil {
			i.tagSignal(exit, now)
			return []Signal{*exit}
		}
		if i.cfg.MinPrice > 0 && last.Close < i.cfg.MinPrice {
			return nil
		}
		if i.cfg.MaxPrice > 0 && last.Close > i.cfg.MaxPrice {
			return nil
		}
		if !i.trading.SkipVolumeCheck && i.cfg.MinVolume > 0 && last.Volume < i.cfg.MinVolume {
			return nil
		}
	}

	var signals []Signal
	func() {
		defer func() {
			if r := recover(); r != nil {
				i.logger.Error().Interface("panic", r).Str("symbol", symbol).
					Msg("Strategy panicked, skipping symbol")
			}
		}()
		signals = i.strategy.GenerateSignals(symbol, bars, ind)
	}()

	out := signals[:0]
	for idx := range signals {
		sig := &signals[idx]
		if i.cfg.MinConfidence > 0 && sig.Confidence < i.cfg.MinConfidence {
			i.logger.Debug().Str("symbol", symbol).Str("type", sig.Type).
				Float64("confidence", sig.Confidence).Msg("Signal below confidence floor")
			continue
		}
		i.tagSignal(sig, now)
		out = append(out, *sig)
	}
	return out
}

func (i *Instance) tagSignal(sig *Signal, now time.Time) {
	sig.StrategyID = i.id
	if sig.GeneratedAt.IsZero() {
		sig.GeneratedAt = now
	}
	if sig.Hash == "" {
		sig.ComputeHash()
	}
	i.mu.Lock()
	i.signalsGenerated++
	i.mu.Unlock()
	metrics.SignalsGenerated.WithLabelValues(i.id).Inc()
	if i.bus != nil {
		i.bus.PublishSignal(i.id, sig.Symbol, sig.Type, sig.Action, sig.Reason, sig.ReferencePrice, sig.Confidence)
	}
	i.logger.Debug().
		Str("symbol", sig.Symbol).
		Str("type", sig.Type).
		Str("action", sig.Action).
		Float64("price", sig.ReferencePrice).
		Float64("confidence", sig.Confidence).
		Str("hash", sig.Hash).
		Msg("Signal generated")
}

// ===== POSITION SYNC =====

// SyncPositionsFromBroker replaces the local cache with broker truth,
// keeping entry times and watermarks for positions that persist, and
// refreshes the account snapshot. With the broker unreachable and
// simulation allowed, the instance degrades: local positions are kept and
// orders will be journaled without submission until the broker returns,
// at which point broker truth overwrites whatever simulation accumulated.
func (i *Instance) SyncPositionsFromBroker(ctx context.Context, now time.Time) error {
	if i.broker == nil || !i.broker.IsConnected() {
		return i.degradeOrFail(fmt.Errorf("sync %s: %w", i.id, broker.ErrNotConnected))
	}

	brokerPositions, err := i.broker.Positions(ctx)
	if err != nil {
		return i.degradeOrFail(fmt.Errorf("sync %s: %w", i.id, err))
	}
	sum, sumErr := i.broker.AccountSummary(ctx)

	i.mu.Lock()
	wasSimulated := i.simulated
	i.simulated = false
	old := i.positions
	i.positions = make(map[string]*Position, len(brokerPositions))
	for _, bp := range brokerPositions {
		if len(i.symbolSet) > 0 && !i.symbolSet[bp.Symbol] {
			continue
		}
		np := &Position{
			Symbol:    bp.Symbol,
			Size:      bp.Quantity,
			AvgCost:   bp.AvgCost,
			EntryTime: now,
		}
		if prev, ok := old[bp.Symbol]; ok {
			np.EntryTime = prev.EntryTime
			np.HighestPrice = prev.HighestPrice
			np.LowestPrice = prev.LowestPrice
		}
		i.positions[bp.Symbol] = np
	}
	count := len(i.positions)

	var funds float64
	if sumErr == nil && sum != nil {
		i.account = AccountSnapshot{
			NetLiquidation: sum.NetLiquidation,
			AvailableFunds: sum.AvailableFunds,
			Currency:       sum.Currency,
			RefreshedAt:    now,
		}
		if sum.AvailableFunds > 0 {
			i.cachedEquity = sum.AvailableFunds
		}
		funds = sum.AvailableFunds
	}
	i.mu.Unlock()

	if wasSimulated {
		i.logger.Warn().Msg("Broker reachable again, simulated positions overwritten with broker truth")
	}
	if sumErr != nil {
		i.logger.Warn().Err(sumErr).Msg("Account summary unavailable, sizing against cached equity")
	} else {
		metrics.EquityGauge.Set(funds)
	}
	metrics.PositionsOpen.WithLabelValues(i.id).Set(float64(count))
	if i.bus != nil {
		i.bus.PublishPositionsSynced(i.id, count, funds)
	}
	return nil
}

// degradeOrFail enters simulation mode when the config allows it, otherwise
// surfaces the sync error.
func (i *Instance) degradeOrFail(err error) error {
	if !i.trading.SimulateWhenDisconnected {
		return err
	}
	i.mu.Lock()
	first := !i.simulated
	i.simulated = true
	i.mu.Unlock()
	if first {
		i.logger.Warn().Err(err).Msg("=== SIMULATION MODE: broker unreachable, orders will be journaled without submission ===")
		if i.bus != nil {
			i.bus.Publish(events.Event{
				Type:      events.EventDegradedMode,
				Timestamp: time.Now(),
				Data:      map[string]interface{}{"strategy": i.id, "error": err.Error()},
			})
		}
	}
	return nil
}

// ===== EXIT POLICY =====

// CheckExits runs the exit policy for a held symbol and returns an exit
// signal when one trips. Watermarks are refreshed first so trailing logic
// sees the newest extremes. Strategies that implement ExitOverrider
// replace the generic trip order entirely; everyone else gets the base
// trip order followed by the watermark trailing stop, which only engages
// once the position has moved trailing_stop_activation_pct in its favor.
//
// The caller passes now already shifted into the trading timezone; the
// force-close rule compares wall-clock minutes.
func (i *Instance) CheckExits(symbol string, price float64, now time.Time, bars marketdata.BarSeries) *Signal {
	i.mu.Lock()
	pos, ok := i.positions[symbol]
	if !ok || pos.Size == 0 {
		i.mu.Unlock()
		return nil
	}
	if price > pos.HighestPrice {
		pos.HighestPrice = price
	}
	if pos.LowestPrice == 0 || price < pos.LowestPrice {
		pos.LowestPrice = price
	}
	p := *pos
	i.mu.Unlock()

	if ov, isOverride := i.strategy.(ExitOverrider); isOverride {
		return ov.CheckExitConditions(symbol, p, price, now, bars)
	}
	if sig := baseExit(i.cfg, i.forceCloseMins, p, price, now); sig != nil {
		return sig
	}
	if i.cfg.TrailingStopPct > 0 && trailingArmed(p, i.cfg.TrailingStopActivation) {
		return trailingExit(p, price, i.cfg.TrailingStopPct)
	}
	return nil
}

// ===== POSITION SIZING =====

// CalcPositionSize sizes an entry: risk budget over per-share risk, bounded
// by the per-trade notional cap and the cash-buffered equity. Returns 0
// when the position cap is hit or the inputs cannot support a single share.
func (i *Instance) CalcPositionSize(ctx context.Context, sig *Signal, atr float64) int {
	price := sig.ReferencePrice
	if price <= 0 {
		return 0
	}

	equity := i.refreshEquity(ctx)
	if equity <= 0 {
		return 0
	}

	i.mu.RLock()
	posCount := len(i.positions)
	_, holds := i.positions[sig.Symbol]
	i.mu.RUnlock()

	if sig.Action == ActionBuy && !holds && i.cfg.MaxActivePositions > 0 && posCount >= i.cfg.MaxActivePositions {
		i.logger.Debug().Str("symbol", sig.Symbol).Int("open", posCount).Msg("Max active positions reached")
		return 0
	}

	if atr <= 0 {
		atr = price * 0.02
	}
	riskPerShare := atr * i.cfg.StopLossATRMultiple
	if riskPerShare <= 0 {
		return 0
	}
	riskAmount := equity * i.cfg.RiskPerTrade * sig.Confidence
	sharesByRisk := int(riskAmount / riskPerShare)
	if sharesByRisk < 1 {
		sharesByRisk = 1
	}

	buffered := equity * (1 - i.cfg.MinCashBuffer)
	maxNotional := math.Min(i.cfg.PerTradeNotionalCap, buffered)
	sharesByNotional := int(maxNotional / price)

	size := sharesByRisk
	if sharesByNotional < size {
		size = sharesByNotional
	}
	if i.cfg.MaxPositionSize > 0 && size > i.cfg.MaxPositionSize {
		size = i.cfg.MaxPositionSize
	}
	if size < 0 {
		size = 0
	}
	return size
}

// refreshEquity returns the equity to size against: live available funds
// when the broker answers with a positive balance, otherwise the cached
// equity seeded from initial capital.
func (i *Instance) refreshEquity(ctx context.Context) float64 {
	if i.broker != nil && i.broker.IsConnected() {
		if sum, err := i.broker.AccountSummary(ctx); err == nil {
			i.mu.Lock()
			i.account = AccountSnapshot{
				NetLiquidation: sum.NetLiquidation,
				AvailableFunds: sum.AvailableFunds,
				Currency:       sum.Currency,
				RefreshedAt:    time.Now(),
			}
			if sum.AvailableFunds > 0 {
				i.cachedEquity = sum.AvailableFunds
				funds := sum.AvailableFunds
				i.mu.Unlock()
				metrics.EquityGauge.Set(funds)
				return funds
			}
			i.mu.Unlock()
		}
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	i.logger.Debug().Float64("cached_equity", i.cachedEquity).Msg("Live funds unavailable, sizing against cached equity")
	return i.cachedEquity
}

// ===== ORDER SUBMISSION =====

// ExecuteSignal runs the gated submission path for one signal and returns
// the journaled trade record. Every outcome is journaled: a rejection gets
// a REJECTED record with a machine-inspectable reason, a transport failure
// an ERROR record, and anything submitted the mapped gateway status.
func (i *Instance) ExecuteSignal(ctx context.Context, sig *Signal, now time.Time) *journal.TradeRecord {
	if sig.StrategyID == "" {
		sig.StrategyID = i.id
	}
	if sig.Hash == "" {
		sig.ComputeHash()
	}

	if err := sig.Validate(); err != nil {
		return i.reject(sig, sig.PositionSize, now, err.Error())
	}
	if i.executed.Seen(sig.Hash) || i.cache.InCooldown(sig.Hash, now) {
		return i.reject(sig, sig.PositionSize, now, "signal cooldown")
	}

	brokerUp := i.broker != nil && i.broker.IsConnected()
	i.mu.RLock()
	funds := i.account.AvailableFunds
	simMode := i.simulated
	outside := i.outsideHours
	var pos *Position
	if p, ok := i.positions[sig.Symbol]; ok {
		cp := *p
		pos = &cp
	}
	i.mu.RUnlock()

	if !brokerUp && !i.trading.SimulateWhenDisconnected {
		return i.reject(sig, sig.PositionSize, now, "broker unavailable")
	}
	useSim := i.trading.SimulateWhenDisconnected && (!brokerUp || simMode || funds == 0)

	qty := sig.PositionSize
	price := sig.ReferencePrice

	if sig.Action == ActionBuy {
		if i.cfg.SameDaySellOnly && pos != nil && pos.Size > 0 && sameDay(pos.EntryTime, now) {
			return i.reject(sig, qty, now, "same-day sell only: position already opened today")
		}
		if !useSim {
			if funds > 0 && funds < MinBuyFunds {
				return i.reject(sig, qty, now, fmt.Sprintf("insufficient funds: %.2f < %.2f", funds, MinBuyFunds))
			}
			if funds > 0 && float64(qty)*price > funds {
				qty = int(funds / price)
				if qty < 1 {
					return i.reject(sig, sig.PositionSize, now, "insufficient funds for a single share")
				}
				i.logger.Info().Str("symbol", sig.Symbol).Int("from", sig.PositionSize).Int("to", qty).
					Msg("Buy clamped to available funds")
			}
		}
	} else {
		long := pos != nil && pos.Size > 0
		if pos == nil || pos.Size == 0 {
			if !i.trading.AllowShortSelling {
				return i.reject(sig, qty, now, "no position, shorting disabled")
			}
		} else if long && qty > pos.Size {
			qty = pos.Size
		}
		if !i.trading.SellExemptFromCap && sig.Type != SignalCloseAllPositions &&
			i.cfg.PerTradeNotionalCap > 0 && float64(qty)*price > i.cfg.PerTradeNotionalCap {
			qty = int(i.cfg.PerTradeNotionalCap / price)
			if qty < 1 {
				return i.reject(sig, sig.PositionSize, now, "notional cap leaves no sellable quantity")
			}
		}
	}

	orderType := i.cfg.IBOrderType
	if sig.ForceMarketOrder || outside || sig.Type == SignalCloseAllPositions {
		orderType = broker.OrderTypeMarket
	}
	var limitPrice float64
	if orderType == broker.OrderTypeLimit {
		if sig.Action == ActionBuy {
			limitPrice = price * (1 - i.cfg.IBLimitOffset)
		} else {
			limitPrice = price * (1 + i.cfg.IBLimitOffset)
		}
		limitPrice = math.Round(limitPrice*100) / 100
	}

	if useSim {
		return i.executeSimulated(sig, qty, price, orderType, now)
	}

	if dup, err := i.broker.HasActiveOrder(ctx, sig.Symbol, sig.Action, qty, limitPrice); err != nil {
		i.logger.Warn().Err(err).Str("symbol", sig.Symbol).Msg("Duplicate-order check failed, proceeding")
	} else if dup {
		return i.reject(sig, qty, now, "duplicate-order: matching open order exists")
	}

	rec := journal.TradeRecord{
		Timestamp:  now,
		Strategy:   i.id,
		Symbol:     sig.Symbol,
		Action:     sig.Action,
		EntryPrice: price,
		Size:       qty,
		SignalType: sig.Type,
		Confidence: sig.Confidence,
		OrderType:  orderType,
		Reason:     sig.Reason,
	}

	res, err := i.broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:     sig.Symbol,
		Side:       sig.Action,
		Quantity:   qty,
		OrderType:  orderType,
		LimitPrice: limitPrice,
	})
	if err != nil {
		rec.Status = journal.StatusError
		rec.Reason = fmt.Sprintf("order error: %v", err)
		i.finishRecord(&rec)
		i.logger.Error().Err(err).Str("symbol", sig.Symbol).Str("action", sig.Action).Msg("Order submission failed")
		return &rec
	}

	rec.OrderID = res.OrderID
	rec.OrderStatus = res.Status
	rec.Status = MapOrderStatus(res.Status)

	if rec.Status == journal.StatusExecuted {
		fill := res.AvgFillPrice
		if fill <= 0 {
			fill = price
		}
		i.applyFill(sig.Symbol, sig.Action, qty, fill, now)
		i.cache.Add(sig.Hash, i.cfg.CooldownDuration(), now)
		i.executed.Mark(sig.Hash)
		i.mu.Lock()
		i.tradesExecuted++
		i.mu.Unlock()
	}

	i.finishRecord(&rec)
	if i.bus != nil {
		i.bus.PublishOrderSubmitted(strconv.FormatInt(res.OrderID, 10), sig.Symbol, sig.Action, orderType, rec.Status, price, qty)
	}
	i.logger.Info().
		Str("symbol", sig.Symbol).
		Str("action", sig.Action).
		Int("qty", qty).
		Str("order_type", orderType).
		Str("status", rec.Status).
		Str("gateway_status", res.Status).
		Int64("order_id", res.OrderID).
		Msg("Order submitted")
	return &rec
}

// executeSimulated journals the order as EXECUTED without touching the
// broker and applies the fill to the local cache.
func (i *Instance) executeSimulated(sig *Signal, qty int, price float64, orderType string, now time.Time) *journal.TradeRecord {
	i.applyFill(sig.Symbol, sig.Action, qty, price, now)
	i.cache.Add(sig.Hash, i.cfg.CooldownDuration(), now)
	i.executed.Mark(sig.Hash)
	i.mu.Lock()
	i.tradesExecuted++
	i.mu.Unlock()

	rec := journal.TradeRecord{
		Timestamp:  now,
		Strategy:   i.id,
		Symbol:     sig.Symbol,
		Action:     sig.Action,
		EntryPrice: price,
		Size:       qty,
		SignalType: sig.Type,
		Confidence: sig.Confidence,
		Status:     journal.StatusExecuted,
		OrderType:  orderType,
		Reason:     sig.Reason,
		Simulated:  true,
	}
	i.finishRecord(&rec)
	i.logger.Info().
		Str("symbol", sig.Symbol).
		Str("action", sig.Action).
		Int("qty", qty).
		Float64("price", price).
		Msg("Simulated fill journaled")
	return &rec
}

// Reject journals a controller-level rejection for a sized signal, e.g. a
// risk halt. The record carries the same shape as an internal gate's.
func (i *Instance) Reject(sig *Signal, now time.Time, reason string) *journal.TradeRecord {
	return i.reject(sig, sig.PositionSize, now, reason)
}

// reject journals a REJECTED record carrying the gate's reason.
func (i *Instance) reject(sig *Signal, qty int, now time.Time, reason string) *journal.TradeRecord {
	rec := journal.TradeRecord{
		Timestamp:  now,
		Strategy:   i.id,
		Symbol:     sig.Symbol,
		Action:     sig.Action,
		EntryPrice: sig.ReferencePrice,
		Size:       qty,
		SignalType: sig.Type,
		Confidence: sig.Confidence,
		Status:     journal.StatusRejected,
		OrderType:  i.cfg.IBOrderType,
		Reason:     reason,
	}
	i.finishRecord(&rec)
	metrics.OrdersRejected.WithLabelValues(i.id).Inc()
	if i.bus != nil {
		i.bus.PublishOrderRejected(i.id, sig.Symbol, sig.Action, reason)
	}
	i.logger.Info().
		Str("symbol", sig.Symbol).
		Str("action", sig.Action).
		Str("type", sig.Type).
		Str("reason", reason).
		Msg("Signal rejected")
	return &rec
}

// finishRecord appends to the journal and counts the submission outcome.
func (i *Instance) finishRecord(rec *journal.TradeRecord) {
	if i.journal != nil {
		if err := i.journal.Append(*rec); err != nil {
			i.logger.Error().Err(err).Msg("Trade journal append failed")
		}
	}
	metrics.OrdersSubmitted.WithLabelValues(i.id, rec.Status).Inc()
}

// applyFill merges an executed order into the position cache: buys
// volume-weight into longs, sells subtract and delete on zero. Crossing
// through zero re-bases average cost at the crossing fill.
func (i *Instance) applyFill(symbol, action string, qty int, price float64, now time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()

	delta := qty
	if action == ActionSell {
		delta = -qty
	}

	pos, ok := i.positions[symbol]
	if !ok || pos.Size == 0 {
		i.positions[symbol] = &Position{
			Symbol:       symbol,
			Size:         delta,
			AvgCost:      price,
			EntryTime:    now,
			HighestPrice: price,
			LowestPrice:  price,
		}
		metrics.PositionsOpen.WithLabelValues(i.id).Set(float64(len(i.positions)))
		return
	}

	oldSize := pos.Size
	newSize := oldSize + delta
	switch {
	case newSize == 0:
		delete(i.positions, symbol)
	case (oldSize > 0) == (newSize > 0):
		// Same direction: scaling in volume-weights the cost, scaling out
		// keeps it.
		if (delta > 0) == (oldSize > 0) {
			total := math.Abs(float64(oldSize))*pos.AvgCost + float64(qty)*price
			pos.AvgCost = total / math.Abs(float64(newSize))
		}
		pos.Size = newSize
	default:
		// Crossed through zero: the remainder is a fresh position at the
		// crossing fill price.
		pos.Size = newSize
		pos.AvgCost = price
		pos.EntryTime = now
		pos.HighestPrice = price
		pos.LowestPrice = price
	}
	metrics.PositionsOpen.WithLabelValues(i.id).Set(float64(len(i.positions)))
}

// ===== FORCED LIQUIDATION =====

// CloseAllPositions flattens every position this instance is responsible
// for, preferring broker truth over the local cache. Each close is a
// CLOSE_ALL_POSITIONS signal with force_market_order set, priced at the
// last observed price, then average cost, then a sentinel the MKT path
// ignores anyway.
func (i *Instance) CloseAllPositions(ctx context.Context, reason string, now time.Time) []*journal.TradeRecord {
	type slot struct {
		symbol  string
		size    int
		avgCost float64
	}

	var slots []slot
	if i.broker != nil && i.broker.IsConnected() {
		if brokerPositions, err := i.broker.Positions(ctx); err == nil {
			i.mu.RLock()
			for _, bp := range brokerPositions {
				if len(i.symbolSet) > 0 && !i.symbolSet[bp.Symbol] {
					continue
				}
				slots = append(slots, slot{bp.Symbol, bp.Quantity, bp.AvgCost})
			}
			i.mu.RUnlock()
		} else {
			i.logger.Warn().Err(err).Msg("Broker positions unavailable for liquidation, using local cache")
		}
	}
	if slots == nil {
		i.mu.RLock()
		for sym, p := range i.positions {
			slots = append(slots, slot{sym, p.Size, p.AvgCost})
		}
		i.mu.RUnlock()
	}

	records := make([]*journal.TradeRecord, 0, len(slots))
	for _, s := range slots {
		if s.size == 0 {
			continue
		}
		action := ActionSell
		size := s.size
		if size < 0 {
			action = ActionBuy
			size = -size
		}

		i.mu.RLock()
		price := i.lastPrices[s.symbol]
		i.mu.RUnlock()
		if price <= 0 {
			price = s.avgCost
		}
		if price <= 0 {
			price = 1.0
		}

		sig := Signal{
			Symbol:           s.symbol,
			StrategyID:       i.id,
			Type:             SignalCloseAllPositions,
			Action:           action,
			ReferencePrice:   price,
			PositionSize:     size,
			Confidence:       1.0,
			Reason:           reason,
			ForceMarketOrder: true,
			GeneratedAt:      now,
		}
		sig.ComputeHash()
		records = append(records, i.ExecuteSignal(ctx, &sig, now))
	}

	if len(records) > 0 {
		i.logger.Info().Int("positions", len(records)).Str("reason", reason).Msg("Forced liquidation submitted")
		if i.bus != nil {
			i.bus.Publish(events.Event{
				Type:      events.EventForcedLiquidation,
				Timestamp: now,
				Data: map[string]interface{}{
					"strategy": i.id,
					"count":    len(records),
					"reason":   reason,
				},
			})
		}
	}
	return records
}

// ===== STATUS =====

// Snapshot reports the instance state for the status API.
func (i *Instance) Snapshot() map[string]interface{} {
	i.mu.RLock()
	defer i.mu.RUnlock()

	positions := make([]Position, 0, len(i.positions))
	for _, p := range i.positions {
		positions = append(positions, *p)
	}
	return map[string]interface{}{
		"id":                i.id,
		"name":              i.strategy.Name(),
		"enabled":           i.enabled,
		"simulated":         i.simulated,
		"positions":         positions,
		"account":           i.account,
		"signals_generated": i.signalsGenerated,
		"trades_executed":   i.tradesExecuted,
		"cooldown_entries":  i.cache.Len(),
	}
}

// sameDay reports whether two times fall on the same calendar day in a's
// location.
func sameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.In(a.Location()).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
