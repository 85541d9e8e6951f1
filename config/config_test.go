package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `{
		"trading": {"symbols": ["AAPL", "MSFT"], "scan_interval_minutes": 5},
		"symbol_strategy_map": {"AAPL": "a2"},
		"default_strategy": "a3"
	}`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.DataServerConfig.CacheDuration != 300 {
		t.Errorf("expected default cache_duration 300, got %d", cfg.DataServerConfig.CacheDuration)
	}
	if cfg.TradingConfig.ClosePositionsTime != "15:45" {
		t.Errorf("expected default close_positions_time 15:45, got %s", cfg.TradingConfig.ClosePositionsTime)
	}
	if cfg.TradingConfig.Timezone != "America/New_York" {
		t.Errorf("expected default timezone America/New_York, got %s", cfg.TradingConfig.Timezone)
	}

	// Both the mapped strategy and the default one get config blocks.
	for _, id := range []string{"a2", "a3"} {
		sc, ok := cfg.Strategies[id]
		if !ok {
			t.Fatalf("expected strategy block for %s", id)
		}
		if sc.RiskPerTrade != 0.02 {
			t.Errorf("strategy %s: expected default risk_per_trade 0.02, got %v", id, sc.RiskPerTrade)
		}
		if len(sc.TakeProfitLevels) != 4 {
			t.Errorf("strategy %s: expected 4 default take-profit levels, got %d", id, len(sc.TakeProfitLevels))
		}
	}
}

func TestLoadFromMergesFileOverDefaults(t *testing.T) {
	path := writeConfigFile(t, `{
		"trading": {"scan_interval_minutes": 1, "same_day_sell_only": true},
		"strategies": {
			"a3": {
				"per_trade_notional_cap": 700,
				"ib_order_type": "MKT",
				"params": {"fast_period": 9, "slow_period": 21}
			}
		},
		"default_strategy": "a3"
	}`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	sc := cfg.Strategies["a3"]
	if sc == nil {
		t.Fatal("missing a3 block")
	}
	if sc.PerTradeNotionalCap != 700 {
		t.Errorf("expected per_trade_notional_cap 700, got %v", sc.PerTradeNotionalCap)
	}
	if sc.IBOrderType != "MKT" {
		t.Errorf("expected ib_order_type MKT, got %s", sc.IBOrderType)
	}
	// Unset fields still get defaults.
	if sc.StopLossATRMultiple != 1.5 {
		t.Errorf("expected default stop_loss_atr_multiple 1.5, got %v", sc.StopLossATRMultiple)
	}
	// Global same-day gate propagates into the block.
	if !sc.SameDaySellOnly {
		t.Error("expected same_day_sell_only inherited from trading config")
	}
	if got := sc.IntParam("fast_period", 12); got != 9 {
		t.Errorf("expected fast_period param 9, got %d", got)
	}
	if got := sc.IntParam("signal_period", 9); got != 9 {
		t.Errorf("expected fallback signal_period 9, got %d", got)
	}
}

func TestValidateRejectsBadOrderType(t *testing.T) {
	path := writeConfigFile(t, `{
		"strategies": {"a1": {"ib_order_type": "STOP"}},
		"default_strategy": "a1"
	}`)

	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected validation error for ib_order_type STOP")
	}
}

func TestValidateRejectsUnknownMappedStrategy(t *testing.T) {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	cfg.SymbolStrategyMap["TSLA"] = "a99"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unmapped strategy id")
	}
}

func TestStrategyForFallsBackToDefault(t *testing.T) {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	cfg.SymbolStrategyMap["NVDA"] = "a3"

	if got := cfg.StrategyFor("NVDA"); got != "a3" {
		t.Errorf("expected a3, got %s", got)
	}
	if got := cfg.StrategyFor("UNMAPPED"); got != cfg.DefaultStrategy {
		t.Errorf("expected default strategy %s, got %s", cfg.DefaultStrategy, got)
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"09:30", 9*60 + 30, false},
		{"15:45", 15*60 + 45, false},
		{"00:00", 0, false},
		{"9:30am", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseClock(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseClock(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestCooldownDuration(t *testing.T) {
	sc := &StrategyConfig{SignalCooldownMinutes: 60}
	if got := sc.CooldownDuration(); got != time.Hour {
		t.Errorf("expected 1h cooldown, got %v", got)
	}
	sc = &StrategyConfig{SignalCooldownHours: 24, SignalCooldownMinutes: 5}
	if got := sc.CooldownDuration(); got != 24*time.Hour {
		t.Errorf("expected 24h cooldown to win over minutes, got %v", got)
	}
	sc = &StrategyConfig{}
	if got := sc.CooldownDuration(); got != 5*time.Minute {
		t.Errorf("expected 5m default cooldown, got %v", got)
	}
}

func TestEnvOverridesTakePrecedence(t *testing.T) {
	t.Setenv("DATA_SERVER_URL", "http://data.internal:9001")
	t.Setenv("TRADING_SYMBOLS", "AAPL, MSFT ,TSLA")

	cfg := &Config{}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if cfg.DataServerConfig.BaseURL != "http://data.internal:9001" {
		t.Errorf("expected env base_url, got %s", cfg.DataServerConfig.BaseURL)
	}
	want := []string{"AAPL", "MSFT", "TSLA"}
	if len(cfg.TradingConfig.Symbols) != len(want) {
		t.Fatalf("expected %d symbols, got %d", len(want), len(cfg.TradingConfig.Symbols))
	}
	for i, s := range want {
		if cfg.TradingConfig.Symbols[i] != s {
			t.Errorf("symbol %d: expected %s, got %s", i, s, cfg.TradingConfig.Symbols[i])
		}
	}
}
