// Package engine runs the per-cycle pipeline. The Host fans signal
// generation out across symbol groups, one worker per strategy group; the
// Controller schedules cycles, reconciles broker state before each one and
// drains generated signals through the single order-execution lane.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stock-trading-engine/internal/marketdata"
	"stock-trading-engine/internal/strategy"
)

// maxWorkers caps the host's generation fan-out regardless of how many
// strategy groups the symbol map produces.
const maxWorkers = 8

// DataSource yields bars plus indicator values for one symbol. Failures
// surface as empty series; the symbol is skipped for the cycle.
type DataSource interface {
	GetEnhanced(ctx context.Context, symbol, interval string, lookback int) (marketdata.BarSeries, marketdata.IndicatorSet)
}

// ===== HOST =====

// Host routes each symbol to its assigned strategy instance and runs signal
// generation per group. Workers call only the data source and the instance's
// Generate; order submission stays on the controller lane.
type Host struct {
	instances map[string]*strategy.Instance
	routes    map[string]string
	defaultID string
	data      DataSource
	logger    zerolog.Logger
}

// NewHost builds the symbol router. Routes maps symbol to strategy id;
// unlisted symbols fall back to defaultID.
func NewHost(instances map[string]*strategy.Instance, routes map[string]string, defaultID string, data DataSource, logger zerolog.Logger) *Host {
	if routes == nil {
		routes = make(map[string]string)
	}
	return &Host{
		instances: instances,
		routes:    routes,
		defaultID: defaultID,
		data:      data,
		logger:    logger.With().Str("component", "host").Logger(),
	}
}

// RouteFor returns the strategy id a symbol is assigned to.
func (h *Host) RouteFor(symbol string) string {
	if id, ok := h.routes[symbol]; ok && id != "" {
		return id
	}
	return h.defaultID
}

// GroupSymbols buckets symbols by assigned strategy, preserving the input
// order within each group. Symbols routed to an unknown strategy id are
// dropped with a warning.
func (h *Host) GroupSymbols(symbols []string) map[string][]string {
	groups := make(map[string][]string)
	for _, sym := range symbols {
		id := h.RouteFor(sym)
		if _, ok := h.instances[id]; !ok {
			h.logger.Warn().Str("symbol", sym).Str("strategy", id).
				Msg("Symbol routed to unknown strategy, skipping")
			continue
		}
		groups[id] = append(groups[id], sym)
	}
	return groups
}

// RunOnce generates signals for every symbol and returns them keyed by
// symbol after all workers finish. Used by the preselect scan.
func (h *Host) RunOnce(ctx context.Context, symbols []string, now time.Time) map[string][]strategy.Signal {
	out := make(map[string][]strategy.Signal)
	var mu sync.Mutex
	h.run(ctx, symbols, now, func(sig strategy.Signal) {
		mu.Lock()
		out[sig.Symbol] = append(out[sig.Symbol], sig)
		mu.Unlock()
	})
	return out
}

// StreamRun generates signals concurrently and delivers them on a bounded
// channel as they are produced. The channel closes once every worker has
// finished; the caller owns draining it. Within one symbol, signals arrive
// in the order the strategy produced them.
func (h *Host) StreamRun(ctx context.Context, symbols []string, now time.Time) <-chan strategy.Signal {
	groups := h.GroupSymbols(symbols)
	workers := workerCount(len(groups))
	ch := make(chan strategy.Signal, 2*workers)
	go func() {
		defer close(ch)
		h.runGroups(ctx, groups, workers, now, func(sig strategy.Signal) {
			select {
			case ch <- sig:
			case <-ctx.Done():
			}
		})
	}()
	return ch
}

func (h *Host) run(ctx context.Context, symbols []string, now time.Time, emit func(strategy.Signal)) {
	groups := h.GroupSymbols(symbols)
	h.runGroups(ctx, groups, workerCount(len(groups)), now, emit)
}

// runGroups dispatches one group at a time to a bounded worker pool and
// blocks until all generation is done. Symbols within a group run
// sequentially on a single worker.
func (h *Host) runGroups(ctx context.Context, groups map[string][]string, workers int, now time.Time, emit func(strategy.Signal)) {
	if len(groups) == 0 {
		return
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	groupCh := make(chan string, len(ids))
	for _, id := range ids {
		groupCh <- id
	}
	close(groupCh)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range groupCh {
				h.runGroup(ctx, h.instances[id], groups[id], now, emit)
			}
		}()
	}
	wg.Wait()
}

func (h *Host) runGroup(ctx context.Context, inst *strategy.Instance, symbols []string, now time.Time, emit func(strategy.Signal)) {
	if inst == nil || !inst.Enabled() {
		return
	}
	cfg := inst.Config()
	interval := cfg.Interval
	if interval == "" {
		interval = "5m"
	}
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = 120
	}
	for _, sym := range symbols {
		if ctx.Err() != nil {
			return
		}
		bars, ind := h.data.GetEnhanced(ctx, sym, interval, lookback)
		for _, sig := range inst.Generate(sym, bars, ind, now) {
			emit(sig)
		}
	}
}

func workerCount(groups int) int {
	if groups < 1 {
		return 1
	}
	if groups > maxWorkers {
		return maxWorkers
	}
	return groups
}
