package strategy

import (
	"fmt"
	"time"

	"stock-trading-engine/config"
)

// ===== GENERIC EXIT POLICY =====

// BaseExitCheck applies the shared exit trip order to one position: max
// holding time, forced close, stop loss, tiered or single take-profit,
// PnL take-profit. First match wins. Strategies that override exit handling
// call this first, the way the stock policy runs for everyone else.
func BaseExitCheck(cfg *config.StrategyConfig, p Position, price float64, now time.Time) *Signal {
	mins := -1
	if cfg.ForceCloseTime != "" {
		if m, err := config.ParseClock(cfg.ForceCloseTime); err == nil {
			mins = m
		}
	}
	return baseExit(cfg, mins, p, price, now)
}

func baseExit(cfg *config.StrategyConfig, forceCloseMins int, p Position, price float64, now time.Time) *Signal {
	held := now.Sub(p.EntryTime)
	if cfg.MaxHoldingMinutes > 0 && held >= time.Duration(cfg.MaxHoldingMinutes)*time.Minute {
		return exitSignal(p, price, SignalMaxHolding, 1.0,
			fmt.Sprintf("max holding %dm reached", cfg.MaxHoldingMinutes))
	}
	if cfg.MaxHoldingDays > 0 && held >= time.Duration(cfg.MaxHoldingDays)*24*time.Hour {
		return exitSignal(p, price, SignalMaxHolding, 1.0,
			fmt.Sprintf("max holding %dd reached", cfg.MaxHoldingDays))
	}

	if forceCloseMins >= 0 && now.Hour()*60+now.Minute() >= forceCloseMins {
		return exitSignal(p, price, SignalForceClose, 1.0,
			fmt.Sprintf("force close at %s", cfg.ForceCloseTime))
	}

	chg := p.ChangePct(price)
	if cfg.StopLossPct > 0 && chg <= -cfg.StopLossPct {
		return exitSignal(p, price, SignalStopLoss, 1.0,
			fmt.Sprintf("stop loss: %.2f%% <= -%.2f%%", chg*100, cfg.StopLossPct*100))
	}

	if cfg.TakeProfitPct > 0 {
		if chg >= cfg.TakeProfitPct {
			return exitSignal(p, price, SignalTakeProfit, 1.0,
				fmt.Sprintf("take profit: %.2f%% >= %.2f%%", chg*100, cfg.TakeProfitPct*100))
		}
	} else {
		for idx := len(cfg.TakeProfitLevels) - 1; idx >= 0; idx-- {
			lvl := cfg.TakeProfitLevels[idx]
			if chg >= lvl.Pct {
				return exitSignal(p, price, SignalTakeProfit, lvl.Confidence,
					fmt.Sprintf("take profit tier: %.2f%% >= %.2f%%", chg*100, lvl.Pct*100))
			}
		}
	}

	if cfg.TakeProfitPnLThreshold > 0 && p.UnrealizedPnL(price) >= cfg.TakeProfitPnLThreshold {
		return exitSignal(p, price, SignalTakeProfit, 1.0,
			fmt.Sprintf("unrealized PnL %.2f >= %.2f", p.UnrealizedPnL(price), cfg.TakeProfitPnLThreshold))
	}
	return nil
}

// exitSignal builds the flattening signal for a position. Shorts close with
// a BUY. StrategyID and hash are stamped by the instance when the signal is
// tagged.
func exitSignal(p Position, price float64, signalType string, confidence float64, reason string) *Signal {
	action := ActionSell
	if p.Size < 0 {
		action = ActionBuy
	}
	size := p.Size
	if size < 0 {
		size = -size
	}
	return &Signal{
		Symbol:         p.Symbol,
		Type:           signalType,
		Action:         action,
		ReferencePrice: price,
		PositionSize:   size,
		Confidence:     confidence,
		Reason:         reason,
	}
}

// trailingArmed reports whether the position has seen enough favorable
// excursion for the trailing stop to engage. Zero activation arms
// immediately.
func trailingArmed(p Position, activationPct float64) bool {
	if activationPct <= 0 {
		return true
	}
	if p.AvgCost <= 0 {
		return false
	}
	if p.Size > 0 {
		return p.HighestPrice >= p.AvgCost*(1+activationPct)
	}
	if p.Size < 0 {
		return p.LowestPrice > 0 && p.LowestPrice <= p.AvgCost*(1-activationPct)
	}
	return false
}

// trailingExit trips when price falls a fixed fraction from the high
// watermark of a long (or rises from the low watermark of a short).
// Watermarks are maintained by the instance's exit check.
func trailingExit(p Position, price, trailPct float64) *Signal {
	if trailPct <= 0 {
		return nil
	}
	if p.Size > 0 && p.HighestPrice > 0 && price <= p.HighestPrice*(1-trailPct) {
		return exitSignal(p, price, SignalTrailingStop, 0.9,
			fmt.Sprintf("trailing stop: %.2f off high %.2f", price, p.HighestPrice))
	}
	if p.Size < 0 && p.LowestPrice > 0 && price >= p.LowestPrice*(1+trailPct) {
		return exitSignal(p, price, SignalTrailingStop, 0.9,
			fmt.Sprintf("trailing stop: %.2f off low %.2f", price, p.LowestPrice))
	}
	return nil
}
