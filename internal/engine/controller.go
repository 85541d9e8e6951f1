package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/broker"
	"stock-trading-engine/internal/events"
	"stock-trading-engine/internal/journal"
	"stock-trading-engine/internal/metrics"
	"stock-trading-engine/internal/risk"
	"stock-trading-engine/internal/strategy"
)

// ===== STATE MACHINE =====

// State is the controller lifecycle state.
type State string

const (
	StateInit      State = "INIT"
	StateConnected State = "CONNECTED"
	StateRunning   State = "RUNNING"
	StateStopping  State = "STOPPING"
	StateStopped   State = "STOPPED"
)

// Preselector runs the observability batch scan and persists its CSV
// sidecar. Implemented by internal/scanner.
type Preselector interface {
	Run(ctx context.Context, symbols []string, now time.Time) error
}

// ===== CONTROLLER =====

// Controller owns the cycle loop: cron-aligned ticks, trading-hours gate,
// broker reconciliation, forced liquidation, signal generation through the
// Host and order execution on this single lane. Workers generate; only the
// controller talks to the broker.
type Controller struct {
	cfg    *config.Config
	broker broker.Broker
	host   *Host
	risk   *risk.Manager
	pre    Preselector
	bus    *events.EventBus
	logger zerolog.Logger

	instances map[string]*strategy.Instance
	groups    map[string][]string
	activeIDs []string

	cron      *cron.Cron
	loc       *time.Location
	startMins int
	endMins   int
	closeMins int

	mu sync.Mutex // execution lane: serializes cycles and manual close-all

	stateMu sync.RWMutex
	state   State

	cycle         int64
	symbolOffset  int
	liquidatedDay string
	degraded      bool

	reportMu   sync.RWMutex
	lastReport map[string]interface{}
}

// New builds the controller. The broker may be nil for pure-simulation runs;
// risk and pre may be nil to disable the risk envelope and the preselect
// scan.
func New(cfg *config.Config, brk broker.Broker, host *Host, riskMgr *risk.Manager, pre Preselector, bus *events.EventBus, logger zerolog.Logger) (*Controller, error) {
	tz := cfg.TradingConfig.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("controller: invalid timezone %q: %w", tz, err)
	}

	startMins, err := config.ParseClock(cfg.TradingConfig.TradingHours.Start)
	if err != nil {
		return nil, fmt.Errorf("controller: trading hours start: %w", err)
	}
	endMins, err := config.ParseClock(cfg.TradingConfig.TradingHours.End)
	if err != nil {
		return nil, fmt.Errorf("controller: trading hours end: %w", err)
	}

	closeMins := -1
	if cfg.TradingConfig.CloseAllPositionsBeforeMarketClose {
		closeMins, err = config.ParseClock(cfg.TradingConfig.ClosePositionsTime)
		if err != nil {
			return nil, fmt.Errorf("controller: close positions time: %w", err)
		}
	}

	c := &Controller{
		cfg:       cfg,
		broker:    brk,
		host:      host,
		risk:      riskMgr,
		pre:       pre,
		bus:       bus,
		logger:    logger.With().Str("component", "controller").Logger(),
		instances: host.instances,
		loc:       loc,
		startMins: startMins,
		endMins:   endMins,
		closeMins: closeMins,
		state:     StateInit,
	}

	// Instances learn their symbol universe up front so broker
	// reconciliation and forced liquidation only touch their own slots.
	c.groups = host.GroupSymbols(cfg.TradingConfig.Symbols)
	c.activeIDs = make([]string, 0, len(c.groups))
	for id, symbols := range c.groups {
		c.instances[id].SetSymbols(symbols)
		c.activeIDs = append(c.activeIDs, id)
	}
	sort.Strings(c.activeIDs)

	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
	c.logger.Info().Str("state", string(s)).Msg("Controller state changed")
}

// Instance returns a strategy instance by id.
func (c *Controller) Instance(id string) (*strategy.Instance, bool) {
	inst, ok := c.instances[id]
	return inst, ok
}

// InstanceIDs returns every registered strategy id, sorted.
func (c *Controller) InstanceIDs() []string {
	ids := make([]string, 0, len(c.instances))
	for id := range c.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ===== LIFECYCLE =====

// Start connects the broker, schedules the tick and runs the first cycle
// immediately. A broker connection failure does not abort startup: the
// engine runs degraded and retries on later cycles.
func (c *Controller) Start(ctx context.Context) error {
	if c.State() != StateInit {
		return fmt.Errorf("controller: start from state %s", c.State())
	}

	if c.broker != nil {
		if err := c.broker.Connect(ctx); err != nil {
			c.enterDegraded(err)
		} else {
			c.setState(StateConnected)
			c.logger.Info().Msg("Broker gateway connected")
		}
	}

	interval := c.cfg.TradingConfig.ScanIntervalMinutes
	if interval < 1 {
		interval = 5
	}
	spec := fmt.Sprintf("0 */%d * * * *", interval)

	c.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLocation(c.loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.cron.AddFunc(spec, c.tick); err != nil {
		return fmt.Errorf("controller: schedule %q: %w", spec, err)
	}

	c.setState(StateRunning)
	c.cron.Start()
	if c.bus != nil {
		c.bus.Publish(events.Event{
			Type:      events.EventEngineStarted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"scan_interval_minutes": interval,
				"strategies":            len(c.activeIDs),
				"symbols":               len(c.cfg.TradingConfig.Symbols),
			},
		})
	}
	c.logger.Info().
		Str("schedule", spec).
		Int("strategies", len(c.activeIDs)).
		Int("symbols", len(c.cfg.TradingConfig.Symbols)).
		Msg("=== ENGINE RUNNING ===")

	go c.tick()
	return nil
}

// Stop transitions to STOPPING, lets the in-flight cycle drain without
// submitting further orders, then disconnects the broker. Safe to call
// more than once.
func (c *Controller) Stop() {
	c.stateMu.Lock()
	if c.state == StateStopping || c.state == StateStopped {
		c.stateMu.Unlock()
		return
	}
	c.state = StateStopping
	c.stateMu.Unlock()
	c.logger.Info().Msg("Controller state changed: STOPPING, draining in-flight cycle")

	if c.cron != nil {
		<-c.cron.Stop().Done()
	}

	// Barrier: wait for the running cycle to finish its drain.
	c.mu.Lock()
	c.mu.Unlock()

	if c.broker != nil {
		c.broker.Disconnect()
	}
	c.setState(StateStopped)
	if c.bus != nil {
		c.bus.Publish(events.Event{
			Type:      events.EventEngineStopped,
			Timestamp: time.Now(),
			Data:      map[string]interface{}{"cycles": atomic.LoadInt64(&c.cycle)},
		})
	}
}

// ===== CYCLE =====

// tick runs one cycle on the execution lane.
func (c *Controller) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() != StateRunning {
		return
	}
	c.runCycle(context.Background(), time.Now().In(c.loc))
}

func (c *Controller) runCycle(ctx context.Context, now time.Time) {
	started := time.Now()
	n := atomic.AddInt64(&c.cycle, 1)
	log := c.logger.With().Int64("cycle", n).Logger()
	if c.bus != nil {
		c.bus.Publish(events.Event{
			Type:      events.EventCycleStarted,
			Timestamp: now,
			Data:      map[string]interface{}{"cycle": n},
		})
	}

	c.reconnectIfNeeded(ctx, log)

	outside := !c.withinTradingHours(now)
	if outside && !c.cfg.TradingConfig.AllowOrdersOutsideTradingHours {
		log.Debug().Msg("Outside trading hours, skipping cycle")
		c.finishCycle(n, started, 0, 0, 0, "outside trading hours")
		return
	}
	for _, id := range c.activeIDs {
		c.instances[id].SetOutsideHours(outside)
		c.instances[id].BeginCycle()
	}

	// Broker truth first: positions, then account equity for the risk
	// envelope. Per-strategy sync errors are logged and skipped.
	for _, id := range c.activeIDs {
		if err := c.instances[id].SyncPositionsFromBroker(ctx, now); err != nil {
			log.Warn().Err(err).Str("strategy", id).Msg("Position sync failed")
		}
	}
	c.refreshRiskEquity(ctx, now)

	if c.closeMins >= 0 && minutesOf(now) >= c.closeMins {
		c.runForcedLiquidation(ctx, now, log)
		c.finishCycle(n, started, 0, 0, 0, "past close-positions time")
		return
	}

	c.cancelStaleOrders(ctx, log)

	if c.pre != nil && c.cfg.TradingConfig.PreselectEnabled {
		if err := c.pre.Run(ctx, c.preselectUniverse(), now); err != nil {
			log.Warn().Err(err).Msg("Preselect scan failed")
		}
	}

	symbols := c.cycleSymbols()
	signals, orders := 0, 0
	for sig := range c.host.StreamRun(ctx, symbols, now) {
		signals++
		if c.State() == StateStopping {
			continue // drain without submitting
		}
		if rec := c.dispatch(ctx, sig, now); rec != nil {
			orders++
		}
	}

	c.finishCycle(n, started, len(symbols), signals, orders, "")
	log.Info().
		Int("symbols", len(symbols)).
		Int("signals", signals).
		Int("orders", orders).
		Dur("elapsed", time.Since(started)).
		Msg("Cycle complete")
}

// dispatch sizes, risk-gates and executes one generated signal. Returns the
// journaled record, or nil when the signal was dropped before sizing.
func (c *Controller) dispatch(ctx context.Context, sig strategy.Signal, now time.Time) *journal.TradeRecord {
	inst, ok := c.instances[sig.StrategyID]
	if !ok {
		c.logger.Error().Str("strategy", sig.StrategyID).Str("symbol", sig.Symbol).
			Msg("Signal from unregistered strategy dropped")
		return nil
	}

	// A trade against an existing opposite position is an exit; everything
	// else opens or extends exposure and runs through the risk gate.
	pos, hasPos := inst.Positions()[sig.Symbol]
	closing := hasPos && ((pos.Size > 0 && sig.Action == strategy.ActionSell) ||
		(pos.Size < 0 && sig.Action == strategy.ActionBuy))

	if sig.PositionSize <= 0 {
		size := inst.CalcPositionSize(ctx, &sig, sig.ATRHint())
		if size <= 0 {
			c.logger.Debug().Str("strategy", sig.StrategyID).Str("symbol", sig.Symbol).
				Str("type", sig.Type).Msg("Signal sized to zero, dropped")
			return nil
		}
		sig.PositionSize = size
	}

	if !closing && c.risk != nil {
		if ok, reason := c.risk.AllowEntry(now); !ok {
			return inst.Reject(&sig, now, "risk: "+reason)
		}
	}

	rec := inst.ExecuteSignal(ctx, &sig, now)
	if rec != nil && rec.Status == journal.StatusExecuted && c.risk != nil {
		c.risk.RecordTrade(now)
		if closing {
			c.risk.RecordRealized(realizedPnL(pos, rec.EntryPrice, rec.Size), now)
		}
	}
	return rec
}

// realizedPnL values the closed quantity of a fill against the position's
// average cost. Signed position size makes the formula hold for shorts.
func realizedPnL(pos strategy.Position, fillPrice float64, fillQty int) float64 {
	size := pos.Size
	if size < 0 {
		size = -size
	}
	closed := fillQty
	if closed > size {
		closed = size
	}
	if pos.Size > 0 {
		return (fillPrice - pos.AvgCost) * float64(closed)
	}
	return (pos.AvgCost - fillPrice) * float64(closed)
}

// runForcedLiquidation flattens every instance once per trading day and
// feeds the realized results into the risk envelope.
func (c *Controller) runForcedLiquidation(ctx context.Context, now time.Time, log zerolog.Logger) {
	day := now.Format("2006-01-02")
	if c.liquidatedDay == day {
		return
	}
	c.liquidatedDay = day

	log.Info().Str("close_time", c.cfg.TradingConfig.ClosePositionsTime).
		Msg("=== FORCED LIQUIDATION: closing all positions before market close ===")
	total := 0
	for _, id := range c.activeIDs {
		inst := c.instances[id]
		prior := inst.Positions()
		recs := inst.CloseAllPositions(ctx, "market close approaching", now)
		for _, rec := range recs {
			if rec.Status != journal.StatusExecuted {
				continue
			}
			total++
			if c.risk != nil {
				c.risk.RecordTrade(now)
				if pos, ok := prior[rec.Symbol]; ok {
					c.risk.RecordRealized(realizedPnL(pos, rec.EntryPrice, rec.Size), now)
				}
			}
		}
	}
	log.Info().Int("orders", total).Msg("Forced liquidation complete")
}

// cancelStaleOrders clears working orders left over from earlier cycles so
// each cycle starts from a clean book.
func (c *Controller) cancelStaleOrders(ctx context.Context, log zerolog.Logger) {
	if !c.cfg.TradingConfig.AutoCancelOrders || c.broker == nil || !c.broker.IsConnected() {
		return
	}
	orders, err := c.broker.OpenOrders(ctx, "")
	if err != nil {
		log.Warn().Err(err).Msg("Open order lookup failed, skipping auto-cancel")
		return
	}
	for _, o := range orders {
		if err := c.broker.CancelOrder(ctx, o.OrderID); err != nil {
			log.Warn().Err(err).Int64("order_id", o.OrderID).Str("symbol", o.Symbol).
				Msg("Stale order cancel failed")
			continue
		}
		log.Info().Int64("order_id", o.OrderID).Str("symbol", o.Symbol).
			Msg("Stale order cancelled")
	}
}

// refreshRiskEquity feeds the account value into the daily drawdown
// envelope. Skipped while the broker is unreachable; the envelope keeps
// its last base.
func (c *Controller) refreshRiskEquity(ctx context.Context, now time.Time) {
	if c.risk == nil || c.broker == nil || !c.broker.IsConnected() {
		return
	}
	sum, err := c.broker.AccountSummary(ctx)
	if err != nil || sum == nil {
		return
	}
	equity := sum.NetLiquidation
	if equity <= 0 {
		equity = sum.AvailableFunds
	}
	c.risk.SetEquity(equity, now)
}

// reconnectIfNeeded retries the gateway session once per cycle while
// degraded. The next sync overwrites simulated positions with broker truth.
func (c *Controller) reconnectIfNeeded(ctx context.Context, log zerolog.Logger) {
	if c.broker == nil || c.broker.IsConnected() {
		return
	}
	if err := c.broker.Connect(ctx); err != nil {
		c.enterDegraded(err)
		return
	}
	c.degraded = false
	log.Info().Msg("Broker gateway reconnected")
}

func (c *Controller) enterDegraded(err error) {
	first := !c.degraded
	c.degraded = true
	if !first {
		return
	}
	c.logger.Warn().Err(err).
		Msg("=== DEGRADED MODE: broker unreachable, running against cached state ===")
	if c.bus != nil {
		c.bus.Publish(events.Event{
			Type:      events.EventDegradedMode,
			Timestamp: time.Now(),
			Data:      map[string]interface{}{"strategy": "engine", "error": err.Error()},
		})
	}
}

// ===== MANUAL ACTIONS =====

// CloseAll flattens every instance on the execution lane, outside the cycle
// schedule. Used by the API's close-all endpoint. Returns the number of
// submitted close orders.
func (c *Controller) CloseAll(reason string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx := context.Background()
	now := time.Now().In(c.loc)
	total := 0
	for _, id := range c.activeIDs {
		inst := c.instances[id]
		prior := inst.Positions()
		for _, rec := range inst.CloseAllPositions(ctx, reason, now) {
			if rec.Status != journal.StatusExecuted {
				continue
			}
			total++
			if c.risk != nil {
				c.risk.RecordTrade(now)
				if pos, ok := prior[rec.Symbol]; ok {
					c.risk.RecordRealized(realizedPnL(pos, rec.EntryPrice, rec.Size), now)
				}
			}
		}
	}
	c.logger.Info().Str("reason", reason).Int("orders", total).Msg("Manual close-all complete")
	return total
}

// TriggerCycle runs one cycle immediately, outside the cron schedule.
func (c *Controller) TriggerCycle() {
	c.tick()
}

// ===== HELPERS =====

// withinTradingHours reports whether now falls inside the regular session:
// weekdays, [start, end) wall clock in the configured exchange timezone.
func (c *Controller) withinTradingHours(now time.Time) bool {
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	mins := minutesOf(now)
	return mins >= c.startMins && mins < c.endMins
}

func minutesOf(now time.Time) int {
	return now.Hour()*60 + now.Minute()
}

// cycleSymbols returns this cycle's slice of the symbol universe. With
// max_symbols_per_cycle set, the window rotates so every symbol is scanned
// across consecutive cycles.
func (c *Controller) cycleSymbols() []string {
	all := c.cfg.TradingConfig.Symbols
	max := c.cfg.TradingConfig.MaxSymbolsPerCycle
	if max <= 0 || len(all) <= max {
		return all
	}
	out := make([]string, 0, max)
	for k := 0; k < max; k++ {
		out = append(out, all[(c.symbolOffset+k)%len(all)])
	}
	c.symbolOffset = (c.symbolOffset + max) % len(all)
	return out
}

func (c *Controller) preselectUniverse() []string {
	if len(c.cfg.TradingConfig.PreselectSymbols) > 0 {
		return c.cfg.TradingConfig.PreselectSymbols
	}
	return c.cfg.TradingConfig.Symbols
}

func (c *Controller) finishCycle(n int64, started time.Time, symbols, signals, orders int, skipped string) {
	elapsed := time.Since(started)
	metrics.CyclesTotal.Inc()
	if c.bus != nil {
		c.bus.PublishCycleCompleted(n, symbols, signals, orders, elapsed)
	}
	report := map[string]interface{}{
		"cycle":      n,
		"started_at": started,
		"elapsed_ms": elapsed.Milliseconds(),
		"symbols":    symbols,
		"signals":    signals,
		"orders":     orders,
	}
	if skipped != "" {
		report["skipped"] = skipped
	}
	c.reportMu.Lock()
	c.lastReport = report
	c.reportMu.Unlock()
}

// GetStatus snapshots the controller for the API's status endpoint.
func (c *Controller) GetStatus() map[string]interface{} {
	c.reportMu.RLock()
	last := c.lastReport
	c.reportMu.RUnlock()

	strategies := make(map[string]interface{}, len(c.instances))
	for id, inst := range c.instances {
		strategies[id] = inst.Snapshot()
	}
	status := map[string]interface{}{
		"state":            string(c.State()),
		"cycle":            atomic.LoadInt64(&c.cycle),
		"broker_connected": c.broker != nil && c.broker.IsConnected(),
		"strategies":       strategies,
		"timestamp":        time.Now().In(c.loc),
	}
	if last != nil {
		status["last_cycle"] = last
	}
	if c.risk != nil {
		status["risk"] = c.risk.Snapshot()
	}
	return status
}
