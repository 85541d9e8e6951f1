package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DataServerConfig   DataServerConfig   `json:"data_server"`
	IBServerConfig     IBServerConfig     `json:"ib_server"`
	TradingConfig      TradingConfig      `json:"trading"`
	RiskConfig         RiskConfig         `json:"risk"`
	NewsConfig         NewsConfig         `json:"news"`
	NotificationConfig NotificationConfig `json:"notification"`
	LoggingConfig      LoggingConfig      `json:"logging"`
	ServerConfig       ServerConfig       `json:"server"`
	AuthConfig         AuthConfig         `json:"auth"`
	VaultConfig        VaultConfig        `json:"vault"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`

	// Strategy routing: per-strategy config blocks keyed by strategy id
	// ("a1".."a31"), plus the symbol assignment map.
	Strategies        map[string]*StrategyConfig `json:"strategies"`
	SymbolStrategyMap map[string]string          `json:"symbol_strategy_map"`
	DefaultStrategy   string                     `json:"default_strategy"`
}

// DataServerConfig points at the market-data HTTP server that serves OHLCV
// bars plus pre-computed technical indicators.
type DataServerConfig struct {
	BaseURL       string `json:"base_url"`
	RetryAttempts int    `json:"retry_attempts"`
	CacheDuration int    `json:"cache_duration"` // seconds
	TimeoutSecs   int    `json:"timeout_seconds"`
}

// IBServerConfig holds the broker gateway connection settings.
type IBServerConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	ClientID   int    `json:"client_id"`
	MaxRetries int    `json:"max_retries"`
	Simulated  bool   `json:"simulated"` // run against the in-process sim broker
}

type TradingHours struct {
	Start string `json:"start"` // "09:30"
	End   string `json:"end"`   // "16:00"
}

type TradingConfig struct {
	Symbols                            []string     `json:"symbols"`
	PreselectSymbols                   []string     `json:"preselect_symbols"`
	PreselectEnabled                   bool         `json:"preselect_enabled"`
	ScanIntervalMinutes                int          `json:"scan_interval_minutes"`
	TradingHours                       TradingHours `json:"trading_hours"`
	Timezone                           string       `json:"timezone"`
	AllowOrdersOutsideTradingHours     bool         `json:"allow_orders_outside_trading_hours"`
	AutoCancelOrders                   bool         `json:"auto_cancel_orders"`
	MaxSymbolsPerCycle                 int          `json:"max_symbols_per_cycle"`
	CloseAllPositionsBeforeMarketClose bool         `json:"close_all_positions_before_market_close"`
	ClosePositionsTime                 string       `json:"close_positions_time"`
	SkipVolumeCheck                    bool         `json:"skip_volume_check"`
	SameDaySellOnly                    bool         `json:"same_day_sell_only"`
	AllowShortSelling                  bool         `json:"allow_short_selling"`
	SellExemptFromCap                  bool         `json:"sell_exempt_from_cap"`
	SimulateWhenDisconnected           bool         `json:"simulate_when_disconnected"`
	MaxWorkers                         int          `json:"max_workers"`
	DryRun                             bool         `json:"dry_run"`
}

// RiskConfig is the account-level envelope on top of per-strategy limits.
type RiskConfig struct {
	Enabled         bool    `json:"enabled"`
	MaxDailyLossPct float64 `json:"max_daily_loss_pct"`
	MaxDailyTrades  int     `json:"max_daily_trades"`
}

type NewsConfig struct {
	APIProvider        string  `json:"api_provider"` // alphavantage, newsapi, polygon
	AlphaVantageAPIKey string  `json:"alphavantage_api_key"`
	NewsAPIKey         string  `json:"newsapi_api_key"`
	PolygonAPIKey      string  `json:"polygon_api_key"`
	MaxNewsAgeHours    int     `json:"max_news_age_hours"`
	MinRelevance       float64 `json:"min_relevance"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Pretty bool   `json:"pretty"` // console writer instead of JSON
	Dir    string `json:"dir"`    // dated log files land here; empty disables
}

// ServerConfig holds the REST/WebSocket monitoring API settings.
type ServerConfig struct {
	Enabled        bool   `json:"enabled"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	AllowedOrigins string `json:"allowed_origins"`
}

type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	Username            string        `json:"username"`
	PasswordHash        string        `json:"password_hash"` // bcrypt
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url"`
	MaxConns int    `json:"max_conns"`
}

// RedisConfig holds Redis settings for the market-data cache layer.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// ProfitLevel is one rung of the tiered take-profit ladder: exit with the
// given confidence once the position gains Pct.
type ProfitLevel struct {
	Pct        float64 `json:"pct"`
	Confidence float64 `json:"confidence"`
}

// StrategyConfig is one strategy block. Generic knobs are typed fields;
// strategy-specific indicator parameters live in Params and are read through
// Param/IntParam with per-strategy defaults.
type StrategyConfig struct {
	Enabled                bool          `json:"enabled"`
	InitialCapital         float64       `json:"initial_capital"`
	RiskPerTrade           float64       `json:"risk_per_trade"`
	MaxActivePositions     int           `json:"max_active_positions"`
	MaxPositionSize        int           `json:"max_position_size"`
	PerTradeNotionalCap    float64       `json:"per_trade_notional_cap"`
	MaxPositionNotional    float64       `json:"max_position_notional"`
	MinCashBuffer          float64       `json:"min_cash_buffer"`
	StopLossPct            float64       `json:"stop_loss_pct"`
	StopLossATRMultiple    float64       `json:"stop_loss_atr_multiple"`
	TrailingStopPct        float64       `json:"trailing_stop_pct"`
	TrailingStopActivation float64       `json:"trailing_stop_activation_pct"`
	TakeProfitPct          float64       `json:"take_profit_pct"`
	TakeProfitLevels       []ProfitLevel `json:"take_profit_levels"`
	TakeProfitPnLThreshold float64       `json:"take_profit_pnl_threshold"`
	MaxHoldingMinutes      int           `json:"max_holding_minutes"`
	MaxHoldingDays         int           `json:"max_holding_days"`
	ForceCloseTime         string        `json:"force_close_time"`
	IBOrderType            string        `json:"ib_order_type"` // MKT or LMT
	IBLimitOffset          float64       `json:"ib_limit_offset"`
	SignalCooldownMinutes  int           `json:"signal_cooldown_minutes"`
	SignalCooldownHours    int           `json:"signal_cooldown_hours"`
	MinConfidence          float64       `json:"min_confidence"`
	MinPrice               float64       `json:"min_price"`
	MaxPrice               float64       `json:"max_price"`
	MinVolume              float64       `json:"min_volume"`
	MinDataPoints          int           `json:"min_data_points"`
	SameDaySellOnly        bool          `json:"same_day_sell_only"`
	Interval               string        `json:"interval"`
	Lookback               int           `json:"lookback"`

	Params map[string]float64 `json:"params"`
}

// Param returns a strategy-specific parameter or the given default.
func (sc *StrategyConfig) Param(name string, def float64) float64 {
	if sc.Params != nil {
		if v, ok := sc.Params[name]; ok {
			return v
		}
	}
	return def
}

// IntParam returns a strategy-specific parameter truncated to int.
func (sc *StrategyConfig) IntParam(name string, def int) int {
	if sc.Params != nil {
		if v, ok := sc.Params[name]; ok {
			return int(v)
		}
	}
	return def
}

// CooldownDuration resolves the signal cooldown window. Hours win over
// minutes when both are set; zero means the 5-minute default.
func (sc *StrategyConfig) CooldownDuration() time.Duration {
	if sc.SignalCooldownHours > 0 {
		return time.Duration(sc.SignalCooldownHours) * time.Hour
	}
	if sc.SignalCooldownMinutes > 0 {
		return time.Duration(sc.SignalCooldownMinutes) * time.Minute
	}
	return 5 * time.Minute
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFrom behaves like Load but reads the given file. Used by tests and the
// analysis commands.
func LoadFrom(filename string) (*Config, error) {
	cfg, err := loadFromFile(filename)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Note: broker credentials are not read here; they come from Vault when
// enabled, otherwise from the config file.
func applyEnvOverrides(cfg *Config) {
	// Data server config
	cfg.DataServerConfig.BaseURL = getEnvOrDefault("DATA_SERVER_URL", cfg.DataServerConfig.BaseURL)
	if cfg.DataServerConfig.BaseURL == "" {
		cfg.DataServerConfig.BaseURL = "http://localhost:5000"
	}

	// IB gateway config
	cfg.IBServerConfig.Host = getEnvOrDefault("IB_HOST", cfg.IBServerConfig.Host)
	cfg.IBServerConfig.Port = getEnvIntOrDefault("IB_PORT", cfg.IBServerConfig.Port)
	cfg.IBServerConfig.ClientID = getEnvIntOrDefault("IB_CLIENT_ID", cfg.IBServerConfig.ClientID)
	cfg.IBServerConfig.Simulated = getEnvOrDefault("IB_SIMULATED", "false") == "true" || cfg.IBServerConfig.Simulated

	// Trading config
	if symbols := os.Getenv("TRADING_SYMBOLS"); symbols != "" {
		cfg.TradingConfig.Symbols = splitAndTrim(symbols)
	}
	cfg.TradingConfig.ScanIntervalMinutes = getEnvIntOrDefault("SCAN_INTERVAL_MINUTES", cfg.TradingConfig.ScanIntervalMinutes)
	cfg.TradingConfig.DryRun = getEnvOrDefault("TRADING_DRY_RUN", "false") == "true" || cfg.TradingConfig.DryRun

	// News config
	cfg.NewsConfig.AlphaVantageAPIKey = getEnvOrDefault("ALPHAVANTAGE_API_KEY", cfg.NewsConfig.AlphaVantageAPIKey)
	cfg.NewsConfig.NewsAPIKey = getEnvOrDefault("NEWS_API_KEY", cfg.NewsConfig.NewsAPIKey)
	cfg.NewsConfig.PolygonAPIKey = getEnvOrDefault("POLYGON_API_KEY", cfg.NewsConfig.PolygonAPIKey)

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", "false") == "true" || cfg.NotificationConfig.Enabled
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Pretty = getEnvOrDefault("LOG_PRETTY", "false") == "true" || cfg.LoggingConfig.Pretty

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	// Auth config - ALWAYS apply from environment
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.Username = getEnvOrDefault("AUTH_USERNAME", cfg.AuthConfig.Username)
	cfg.AuthConfig.PasswordHash = getEnvOrDefault("AUTH_PASSWORD_HASH", cfg.AuthConfig.PasswordHash)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", cfg.AuthConfig.AccessTokenDuration)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true" || cfg.VaultConfig.Enabled
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)

	// Database config
	cfg.DatabaseConfig.URL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseConfig.URL)
	if os.Getenv("DATABASE_URL") != "" {
		cfg.DatabaseConfig.Enabled = true
	}

	// Redis config
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
}

// applyDefaults fills anything the file and environment left unset.
func applyDefaults(cfg *Config) {
	if cfg.DataServerConfig.RetryAttempts == 0 {
		cfg.DataServerConfig.RetryAttempts = 3
	}
	if cfg.DataServerConfig.CacheDuration == 0 {
		cfg.DataServerConfig.CacheDuration = 300
	}
	if cfg.DataServerConfig.TimeoutSecs == 0 {
		cfg.DataServerConfig.TimeoutSecs = 15
	}

	if cfg.IBServerConfig.Host == "" {
		cfg.IBServerConfig.Host = "127.0.0.1"
	}
	if cfg.IBServerConfig.Port == 0 {
		cfg.IBServerConfig.Port = 4002
	}
	if cfg.IBServerConfig.MaxRetries == 0 {
		cfg.IBServerConfig.MaxRetries = 3
	}

	if cfg.TradingConfig.ScanIntervalMinutes == 0 {
		cfg.TradingConfig.ScanIntervalMinutes = 5
	}
	if cfg.TradingConfig.TradingHours.Start == "" {
		cfg.TradingConfig.TradingHours.Start = "09:30"
	}
	if cfg.TradingConfig.TradingHours.End == "" {
		cfg.TradingConfig.TradingHours.End = "16:00"
	}
	if cfg.TradingConfig.Timezone == "" {
		cfg.TradingConfig.Timezone = "America/New_York"
	}
	if cfg.TradingConfig.ClosePositionsTime == "" {
		cfg.TradingConfig.ClosePositionsTime = "15:45"
	}
	if cfg.TradingConfig.MaxWorkers == 0 {
		cfg.TradingConfig.MaxWorkers = 8
	}

	if cfg.RiskConfig.MaxDailyLossPct == 0 {
		cfg.RiskConfig.MaxDailyLossPct = 3.0
	}
	if cfg.RiskConfig.MaxDailyTrades == 0 {
		cfg.RiskConfig.MaxDailyTrades = 100
	}

	if cfg.NewsConfig.APIProvider == "" {
		cfg.NewsConfig.APIProvider = "alphavantage"
	}
	if cfg.NewsConfig.MaxNewsAgeHours == 0 {
		cfg.NewsConfig.MaxNewsAgeHours = 24
	}
	if cfg.NewsConfig.MinRelevance == 0 {
		cfg.NewsConfig.MinRelevance = 0.3
	}

	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
	if cfg.LoggingConfig.Dir == "" {
		cfg.LoggingConfig.Dir = "logs"
	}

	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.AllowedOrigins == "" {
		cfg.ServerConfig.AllowedOrigins = "*"
	}

	if cfg.AuthConfig.AccessTokenDuration == 0 {
		cfg.AuthConfig.AccessTokenDuration = 12 * time.Hour
	}

	if cfg.VaultConfig.Address == "" {
		cfg.VaultConfig.Address = "http://localhost:8200"
	}
	if cfg.VaultConfig.MountPath == "" {
		cfg.VaultConfig.MountPath = "secret"
	}
	if cfg.VaultConfig.SecretPath == "" {
		cfg.VaultConfig.SecretPath = "trading-engine/credentials"
	}

	if cfg.DatabaseConfig.MaxConns == 0 {
		cfg.DatabaseConfig.MaxConns = 10
	}
	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}

	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = "a3"
	}
	if cfg.Strategies == nil {
		cfg.Strategies = make(map[string]*StrategyConfig)
	}
	if cfg.SymbolStrategyMap == nil {
		cfg.SymbolStrategyMap = make(map[string]string)
	}

	// Referenced strategies need a block even when the file omits one.
	for _, id := range cfg.SymbolStrategyMap {
		if _, ok := cfg.Strategies[id]; !ok {
			cfg.Strategies[id] = DefaultStrategyConfig()
		}
	}
	if _, ok := cfg.Strategies[cfg.DefaultStrategy]; !ok {
		cfg.Strategies[cfg.DefaultStrategy] = DefaultStrategyConfig()
	}
	for _, sc := range cfg.Strategies {
		sc.fillDefaults(cfg.TradingConfig)
	}
}

// DefaultStrategyConfig returns the generic per-strategy baseline. Strategy
// constructors layer their indicator defaults on top via Param/IntParam.
func DefaultStrategyConfig() *StrategyConfig {
	return &StrategyConfig{
		Enabled:             true,
		InitialCapital:      10000,
		RiskPerTrade:        0.02,
		MaxActivePositions:  5,
		PerTradeNotionalCap: 1000,
		MaxPositionNotional: 2000,
		MinCashBuffer:       0.05,
		StopLossPct:         0.02,
		StopLossATRMultiple: 1.5,
		TakeProfitLevels: []ProfitLevel{
			{Pct: 0.02, Confidence: 0.7},
			{Pct: 0.05, Confidence: 0.8},
			{Pct: 0.10, Confidence: 0.9},
			{Pct: 0.20, Confidence: 1.0},
		},
		ForceCloseTime:        "15:55",
		IBOrderType:           "LMT",
		IBLimitOffset:         0.001,
		SignalCooldownMinutes: 5,
		MinDataPoints:         30,
		Interval:              "5m",
		Lookback:              120,
	}
}

func (sc *StrategyConfig) fillDefaults(trading TradingConfig) {
	def := DefaultStrategyConfig()
	if sc.InitialCapital == 0 {
		sc.InitialCapital = def.InitialCapital
	}
	if sc.RiskPerTrade == 0 {
		sc.RiskPerTrade = def.RiskPerTrade
	}
	if sc.MaxActivePositions == 0 {
		sc.MaxActivePositions = def.MaxActivePositions
	}
	if sc.PerTradeNotionalCap == 0 {
		sc.PerTradeNotionalCap = def.PerTradeNotionalCap
	}
	if sc.MaxPositionNotional == 0 {
		sc.MaxPositionNotional = def.MaxPositionNotional
	}
	if sc.MinCashBuffer == 0 {
		sc.MinCashBuffer = def.MinCashBuffer
	}
	if sc.StopLossPct == 0 {
		sc.StopLossPct = def.StopLossPct
	}
	if sc.StopLossATRMultiple == 0 {
		sc.StopLossATRMultiple = def.StopLossATRMultiple
	}
	if sc.TakeProfitLevels == nil {
		sc.TakeProfitLevels = def.TakeProfitLevels
	}
	if sc.ForceCloseTime == "" {
		sc.ForceCloseTime = def.ForceCloseTime
	}
	if sc.IBOrderType == "" {
		sc.IBOrderType = def.IBOrderType
	}
	if sc.IBLimitOffset == 0 {
		sc.IBLimitOffset = def.IBLimitOffset
	}
	if sc.SignalCooldownMinutes == 0 && sc.SignalCooldownHours == 0 {
		sc.SignalCooldownMinutes = def.SignalCooldownMinutes
	}
	if sc.MinDataPoints == 0 {
		sc.MinDataPoints = def.MinDataPoints
	}
	if sc.Interval == "" {
		sc.Interval = def.Interval
	}
	if sc.Lookback == 0 {
		sc.Lookback = def.Lookback
	}
	// Global same-day gate is the floor; a strategy block can only tighten.
	if trading.SameDaySellOnly {
		sc.SameDaySellOnly = true
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.TradingConfig.ScanIntervalMinutes < 1 {
		return fmt.Errorf("config: scan_interval_minutes must be >= 1, got %d", c.TradingConfig.ScanIntervalMinutes)
	}
	if _, err := ParseClock(c.TradingConfig.TradingHours.Start); err != nil {
		return fmt.Errorf("config: trading_hours.start: %w", err)
	}
	if _, err := ParseClock(c.TradingConfig.TradingHours.End); err != nil {
		return fmt.Errorf("config: trading_hours.end: %w", err)
	}
	if _, err := ParseClock(c.TradingConfig.ClosePositionsTime); err != nil {
		return fmt.Errorf("config: close_positions_time: %w", err)
	}
	for id, sc := range c.Strategies {
		if sc.IBOrderType != "MKT" && sc.IBOrderType != "LMT" {
			return fmt.Errorf("config: strategy %s: ib_order_type must be MKT or LMT, got %q", id, sc.IBOrderType)
		}
		if sc.RiskPerTrade <= 0 || sc.RiskPerTrade > 1 {
			return fmt.Errorf("config: strategy %s: risk_per_trade must be in (0,1], got %v", id, sc.RiskPerTrade)
		}
	}
	for symbol, id := range c.SymbolStrategyMap {
		if _, ok := c.Strategies[id]; !ok {
			return fmt.Errorf("config: symbol %s mapped to unknown strategy %s", symbol, id)
		}
	}
	return nil
}

// StrategyFor resolves the strategy id assigned to a symbol.
func (c *Config) StrategyFor(symbol string) string {
	if id, ok := c.SymbolStrategyMap[symbol]; ok {
		return id
	}
	return c.DefaultStrategy
}

// ParseClock parses an "HH:MM" wall-clock string into minutes past midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
