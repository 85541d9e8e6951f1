// Package risk enforces the account-level envelope on top of per-strategy
// limits: a daily realized-loss halt and a daily trade-count halt. The
// manager never sizes or places orders itself; the controller consults it
// before dispatching entry signals and feeds it fills and realized PnL.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/events"
)

// Manager tracks the current session's realized PnL and trade count and
// halts new entries once a daily limit trips. Exits are never blocked: a
// halted book can still be flattened. State resets at the first call of a
// new session day.
type Manager struct {
	cfg    config.RiskConfig
	bus    *events.EventBus
	logger zerolog.Logger

	mu          sync.Mutex
	day         time.Time
	baseEquity  float64 // equity at the first sync of the day, drawdown base
	realizedPnL float64
	trades      int
	halted      bool
	haltReason  string
}

// New builds a manager. A nil bus is fine; halt events are then only logged.
func New(cfg config.RiskConfig, bus *events.EventBus, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		bus:    bus,
		logger: logger.With().Str("component", "risk").Logger(),
	}
}

// SetEquity records the account equity from the latest sync. The first
// reading of each session becomes the drawdown base.
func (m *Manager) SetEquity(equity float64, now time.Time) {
	if equity <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(now)
	if m.baseEquity == 0 {
		m.baseEquity = equity
		m.logger.Debug().Float64("equity", equity).Msg("Daily drawdown base set")
	}
}

// AllowEntry reports whether a new entry may be dispatched. The reason is
// empty when allowed.
func (m *Manager) AllowEntry(now time.Time) (bool, string) {
	if !m.cfg.Enabled {
		return true, ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(now)

	if m.halted {
		return false, m.haltReason
	}
	if m.cfg.MaxDailyTrades > 0 && m.trades >= m.cfg.MaxDailyTrades {
		m.halt(now, fmt.Sprintf("daily trade limit reached (%d/%d)", m.trades, m.cfg.MaxDailyTrades))
		return false, m.haltReason
	}
	return true, ""
}

// RecordTrade counts one executed order against the daily limit.
func (m *Manager) RecordTrade(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(now)
	m.trades++
}

// RecordRealized adds realized PnL from a closed position and trips the
// drawdown halt when the session loss exceeds max_daily_loss_pct of the
// day's base equity.
func (m *Manager) RecordRealized(pnl float64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(now)
	m.realizedPnL += pnl

	if !m.cfg.Enabled || m.halted || m.baseEquity <= 0 || m.cfg.MaxDailyLossPct <= 0 {
		return
	}
	lossPct := -m.realizedPnL / m.baseEquity * 100
	if lossPct >= m.cfg.MaxDailyLossPct {
		m.halt(now, fmt.Sprintf("daily loss %.2f%% breached the %.2f%% limit", lossPct, m.cfg.MaxDailyLossPct))
	}
}

// Halted reports whether new entries are currently blocked.
func (m *Manager) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// Snapshot reports the session risk state for the status API.
func (m *Manager) Snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]interface{}{
		"enabled":      m.cfg.Enabled,
		"halted":       m.halted,
		"halt_reason":  m.haltReason,
		"realized_pnl": m.realizedPnL,
		"trades_today": m.trades,
		"base_equity":  m.baseEquity,
	}
}

// halt trips the manager. Callers hold the lock.
func (m *Manager) halt(now time.Time, reason string) {
	m.halted = true
	m.haltReason = reason
	m.logger.Warn().Str("reason", reason).Msg("=== RISK HALT: new entries blocked for the rest of the session ===")
	if m.bus != nil {
		m.bus.Publish(events.Event{
			Type:      events.EventRiskHalt,
			Timestamp: now,
			Data: map[string]interface{}{
				"reason":       reason,
				"realized_pnl": m.realizedPnL,
				"trades":       m.trades,
			},
		})
	}
}

// rollover resets the session state on the first touch of a new day.
// Callers hold the lock.
func (m *Manager) rollover(now time.Time) {
	y1, m1, d1 := m.day.Date()
	y2, m2, d2 := now.Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return
	}
	if !m.day.IsZero() {
		m.logger.Info().
			Float64("realized_pnl", m.realizedPnL).
			Int("trades", m.trades).
			Bool("was_halted", m.halted).
			Msg("Risk session rolled over")
	}
	m.day = now
	m.baseEquity = 0
	m.realizedPnL = 0
	m.trades = 0
	m.halted = false
	m.haltReason = ""
}
