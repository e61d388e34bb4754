package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"riskwatch/src/backfill"
	"riskwatch/src/config"
	"riskwatch/src/feed"
	"riskwatch/src/interfaces"
	"riskwatch/src/logger"
	"riskwatch/src/margin"
	"riskwatch/src/mux"
	"riskwatch/src/provider"
	"riskwatch/src/server"
	"riskwatch/src/storage"
	"riskwatch/src/utils"

	"github.com/joho/godotenv"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	flag.Parse()

	// Provider credentials come from the environment; .env is optional.
	_ = godotenv.Load()

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.Name)
	defer appLogger.Sync()

	// Setup storage
	var store interfaces.IStore

	switch cfg.Storage.DBType {
	case "postgres":
		store, err = storage.NewPostgresStore(cfg.MConfig, appLogger.Named("store"))
	default:
		// Default to SQLite
		store, err = storage.NewSQLiteStore(cfg.MConfig, appLogger.Named("store"))
	}

	if err != nil {
		appLogger.Critical("Failed to init store: %v", err)
	}

	// The database may still be coming up when the process starts.
	if err := utils.Retry(context.Background(), appLogger, "store initialization", 5, 2*time.Second, store.Initialize); err != nil {
		appLogger.Critical("Failed to migrate store: %v", err)
	}
	defer store.Close()

	apiKey := cfg.APIKey()
	if apiKey == "" {
		appLogger.Warning("Provider API key env var %s is empty; upstream calls will be rejected", cfg.Provider.APIKeyEnv)
	}

	// Core components
	providerClient := provider.NewClient(cfg.MConfig, apiKey, appLogger.Named("provider"))
	multiplexer := mux.NewMultiplexer(cfg.Subscription.Quota, appLogger.Named("mux"))

	var gate *utils.MarketHours
	if cfg.Subscription.MarketHoursGate {
		gate = utils.NewMarketHours(appLogger.Named("market-hours"))
	}

	tape := utils.NewTickTape(utils.TapePointsForDays(utils.DefaultTapeRetentionDays))

	srv := server.NewServer(cfg, multiplexer, store, appLogger.Named("server"))
	srv.Tape = tape

	scheduler := backfill.NewScheduler(
		providerClient, store,
		cfg.Provider.RequestsPerWindow, cfg.PacingDelay(),
		appLogger.Named("backfill"))

	engine := margin.NewEngine(
		store, scheduler, multiplexer, srv,
		cfg.Margin.MaintenanceRate,
		appLogger.Named("margin"))
	srv.AttachMarginEngine(engine)

	upstream := feed.NewUpstreamFeed(
		cfg, providerClient, multiplexer, engine, srv, store, gate,
		appLogger.Named("feed"))
	upstream.Tape = tape

	// Run
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go upstream.Run(ctx)
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Critical("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		appLogger.Error("Server shutdown failed: %v", err)
	}
}
