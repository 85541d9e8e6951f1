package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/api"
	"stock-trading-engine/internal/broker"
	"stock-trading-engine/internal/database"
	"stock-trading-engine/internal/engine"
	"stock-trading-engine/internal/events"
	"stock-trading-engine/internal/journal"
	"stock-trading-engine/internal/logging"
	"stock-trading-engine/internal/marketdata"
	"stock-trading-engine/internal/news"
	"stock-trading-engine/internal/notification"
	"stock-trading-engine/internal/risk"
	"stock-trading-engine/internal/scanner"
	"stock-trading-engine/internal/strategy"
	"stock-trading-engine/internal/vault"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const journalPath = "data/trades.json"

func main() {
	// .env is optional; environment always wins over config.json.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		println("Failed to load configuration:", err.Error())
		os.Exit(1)
	}

	// Initialize structured logging
	logger, closeLog := logging.New(logging.Config{
		Level:  cfg.LoggingConfig.Level,
		Pretty: cfg.LoggingConfig.Pretty,
		Dir:    cfg.LoggingConfig.Dir,
	})
	defer closeLog()
	logger.Info().Msg("Structured logging initialized")

	// Overlay Vault credentials before anything consumes the config.
	if cfg.VaultConfig.Enabled {
		overlayVaultCredentials(cfg, logger)
	}

	// Initialize event bus
	eventBus := events.NewEventBus()

	// Initialize notification manager
	notifier := notification.New(cfg.NotificationConfig, logging.Component(logger, "notification"))
	if notifier.Enabled() {
		notifier.AttachBus(eventBus)
		logger.Info().Msg("Notifications enabled")
	}

	// Load the trade journal. A corrupt journal is the one startup error
	// that must not be papered over: losing the trade trail silently is
	// worse than refusing to start.
	jrnl := journal.New(journalPath, logging.Component(logger, "journal"))
	if err := jrnl.Load(); err != nil {
		if errors.Is(err, journal.ErrCorrupt) {
			logger.Fatal().Err(err).Str("path", journalPath).
				Msg("Trade journal is corrupt; refusing to start. Move the file aside to reset.")
		}
		logger.Fatal().Err(err).Msg("Failed to load trade journal")
	}

	// Mirror journal appends into PostgreSQL when configured.
	var repo *database.Repository
	if cfg.DatabaseConfig.Enabled && cfg.DatabaseConfig.URL != "" {
		db, err := database.NewDB(cfg.DatabaseConfig, logging.Component(logger, "database"))
		if err != nil {
			logger.Error().Err(err).Msg("Trade mirror unavailable, continuing without it")
		} else {
			defer db.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := db.RunMigrations(ctx); err != nil {
				logger.Error().Err(err).Msg("Trade mirror migrations failed, continuing without it")
			} else {
				repo = database.NewRepository(db)
			}
			cancel()
		}
	}
	if repo != nil {
		mirror := repo
		jrnl.SetOnAppend(func(rec journal.TradeRecord) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mirror.InsertTradeRecord(ctx, rec); err != nil {
				logger.Warn().Err(err).Msg("Failed to mirror trade record")
			}
		})
	}

	// Market data client, with the Redis cache layer when configured.
	dataClient := marketdata.NewClient(cfg.DataServerConfig, logging.Component(logger, "marketdata"))
	if cfg.RedisConfig.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		dataClient.Cache().AttachRedis(rdb)
		logger.Info().Str("addr", cfg.RedisConfig.Address).Msg("Redis market data cache attached")
	}

	// Broker: in-process sim for dry runs, IB gateway otherwise.
	var brk broker.Broker
	var stream *broker.OrderStream
	if cfg.IBServerConfig.Simulated || cfg.TradingConfig.DryRun {
		brk = broker.NewSimBroker(simStartingCash(cfg), logger)
		logger.Info().Msg("Running against the in-process sim broker")
	} else {
		brk = broker.NewGatewayClient(cfg.IBServerConfig.Host, cfg.IBServerConfig.Port,
			cfg.IBServerConfig.ClientID, logger)

		// The order stream pushes late fills back onto the journal.
		stream = broker.NewOrderStream(cfg.IBServerConfig.Host, cfg.IBServerConfig.Port,
			cfg.IBServerConfig.ClientID, logger)
		stream.SetOrderEventCallback(func(ev broker.OrderEvent) {
			status := strategy.MapOrderStatus(ev.Status)
			if jrnl.UpdateOrderStatus(ev.OrderID, ev.Status, status) && repo != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := repo.UpdateOrderStatus(ctx, ev.OrderID, ev.Status, status); err != nil {
					logger.Warn().Err(err).Int64("order_id", ev.OrderID).
						Msg("Failed to mirror order status")
				}
			}
		})
		stream.Start()
		defer stream.Stop()
	}

	// Risk manager
	riskManager := risk.New(cfg.RiskConfig, eventBus, logging.Component(logger, "risk"))

	// News service feeds the headline strategies.
	newsService := news.NewService(cfg.NewsConfig, logging.Component(logger, "news"))

	// Build the configured strategy instances.
	instances := buildInstances(cfg, brk, jrnl, eventBus, newsService, logger)
	if len(instances) == 0 {
		logger.Fatal().Msg("No enabled strategies configured")
	}

	host := engine.NewHost(instances, cfg.SymbolStrategyMap, cfg.DefaultStrategy,
		dataClient, logging.Component(logger, "host"))

	// Preselect scanner writes observability sidecars next to the journal.
	var scn *scanner.Scanner
	var pre engine.Preselector
	if cfg.TradingConfig.PreselectEnabled {
		scn = scanner.New(host, "data", scanner.DefaultKeep, logging.Component(logger, "scanner"))
		pre = scn
	}

	controller, err := engine.New(cfg, brk, host, riskManager, pre, eventBus,
		logging.Component(logger, "controller"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build cycle controller")
	}

	// Monitoring API
	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(cfg.ServerConfig, cfg.AuthConfig, controller, jrnl, scn,
			eventBus, logging.Component(logger, "api"))
		go func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("HTTP server stopped")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := controller.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start engine")
	}

	logger.Info().
		Bool("dry_run", cfg.TradingConfig.DryRun).
		Bool("simulated", cfg.IBServerConfig.Simulated).
		Int("strategies", len(instances)).
		Strs("symbols", cfg.TradingConfig.Symbols).
		Msg("Trading engine started")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down")

	controller.Stop()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Error shutting down HTTP server")
		}
	}

	logger.Info().Msg("Shutdown complete")
}

// overlayVaultCredentials reads the credential document and lays it over
// the config. Vault being down is not fatal: the engine falls back to the
// .env values and says so.
func overlayVaultCredentials(cfg *config.Config, logger zerolog.Logger) {
	vc, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Error().Err(err).Msg("Vault client unavailable, using local credentials")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := vc.Health(ctx); err != nil {
		logger.Error().Err(err).Msg("Vault unhealthy, using local credentials")
		return
	}

	creds, err := vc.Load(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Vault read failed, using local credentials")
		return
	}

	creds.Overlay(cfg)
	logger.Info().Msg("Credentials loaded from Vault")
}

// buildInstances constructs one Instance per enabled strategy block.
func buildInstances(cfg *config.Config, brk broker.Broker, jrnl *journal.Journal,
	bus *events.EventBus, newsService *news.Service, logger zerolog.Logger) map[string]*strategy.Instance {

	ids := make([]string, 0, len(cfg.Strategies))
	for id := range cfg.Strategies {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// One executed set for the whole engine: a hash one strategy acts on
	// stays suppressed for every other strategy until the next cycle.
	executed := strategy.NewExecutedSignalSet()

	instances := make(map[string]*strategy.Instance)
	for _, id := range ids {
		sc := cfg.Strategies[id]
		if !sc.Enabled {
			continue
		}

		strat, err := strategy.New(id, sc)
		if err != nil {
			logger.Warn().Str("strategy", id).Err(err).Msg("Skipping unknown strategy id")
			continue
		}
		if consumer, ok := strat.(strategy.NewsConsumer); ok {
			consumer.SetNewsService(newsService)
		}

		instances[id] = strategy.NewInstance(strat, sc, strategy.Deps{
			Broker:   brk,
			Journal:  jrnl,
			Bus:      bus,
			Trading:  cfg.TradingConfig,
			Logger:   logging.Component(logger, "strategy."+id),
			Executed: executed,
		})
	}
	return instances
}

// simStartingCash sizes the sim broker account from the configured
// strategies so dry runs see realistic buying power.
func simStartingCash(cfg *config.Config) float64 {
	var total float64
	for _, sc := range cfg.Strategies {
		if sc.Enabled {
			total += sc.InitialCapital
		}
	}
	if total <= 0 {
		total = 100000
	}
	return total
}
