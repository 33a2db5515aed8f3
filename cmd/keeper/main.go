// Package main runs a keeper: it turns cron schedules and Kafka signals
// into execute calls against a keeper-vault API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keeper-vault/internal/api"
	"keeper-vault/internal/config"
	"keeper-vault/internal/events"
	"keeper-vault/internal/jupiter"
	"keeper-vault/internal/keeper"
	"keeper-vault/internal/solana"
	"keeper-vault/internal/storage"
	"keeper-vault/internal/storage/memory"
	"keeper-vault/internal/storage/migrations"
	pgstore "keeper-vault/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", os.Getenv("KEEPER_VAULT_CONFIG"), "Path to YAML config file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file")
	apiURL := flag.String("api-url", "", "keeper-vault API base URL (overrides config)")
	timezone := flag.String("timezone", "UTC", "Time zone for cron schedules")

	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *apiURL != "" {
		cfg.Keeper.APIURL = *apiURL
	}

	// Setup logger
	out := cfg.LogOutput()
	logger := log.New(out, "[keeper] ", log.LstdFlags|log.Lshortfile)

	if err := cfg.ValidateKeeper(); err != nil {
		logger.Fatalf("Invalid config: %v", err)
	}
	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		logger.Fatalf("Invalid timezone: %v", err)
	}

	kp, err := solana.LoadKeypairFile(cfg.Keeper.KeypairPath)
	if err != nil {
		logger.Fatalf("Failed to load keeper keypair: %v", err)
	}
	logger.Printf("Keeper %s targeting %s", kp.PublicKey, cfg.Keeper.APIURL)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	progress, cleanup, err := createProgressStore(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to create progress store: %v", err)
	}
	defer cleanup()

	clientLogger := log.New(out, "[client] ", log.LstdFlags|log.Lshortfile)
	runner, err := keeper.New(keeper.Options{
		Keeper:   kp.PublicKey,
		Executor: api.NewClient(cfg.Keeper.APIURL, kp.PublicKey, api.WithLogger(clientLogger)),
		Quoter:   jupiter.NewClient(cfg.Venue.JupiterURL, jupiter.WithLogger(clientLogger)),
		Progress: progress,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create runner: %v", err)
	}

	var sources []keeper.Source
	if len(cfg.Keeper.Schedules) > 0 {
		sources = append(sources, keeper.NewCronSignalSource(cfg.Keeper.Schedules, loc,
			log.New(out, "[cron] ", log.LstdFlags|log.Lshortfile)))
	}
	if len(cfg.Events.KafkaBrokers) > 0 {
		src := keeper.NewKafkaSignalSource(cfg.Events.KafkaBrokers, cfg.Keeper.ConsumerGroup, cfg.Keeper.SignalsTopic,
			log.New(out, "[kafka] ", log.LstdFlags|log.Lshortfile))
		defer src.Close()
		sources = append(sources, src)
	}

	tally := keeper.NewRefundTally(kp.PublicKey, logger)
	if cfg.Keeper.EventsURL != "" {
		stream, err := events.Subscribe(ctx, cfg.Keeper.EventsURL, nil, log.New(out, "[events] ", log.LstdFlags|log.Lshortfile))
		if err != nil {
			logger.Printf("Notification stream unavailable, refunds will not be tallied: %v", err)
		} else {
			go tally.Consume(ctx, stream)
		}
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err = runner.Run(ctx, sources...)
	done <- err
	cancel()

	if err != nil {
		logger.Fatalf("Keeper error: %v", err)
	}

	count, lamports := tally.Total()
	logger.Printf("Shutdown complete (%d refunds, %d lamports)", count, lamports)
}

// createProgressStore persists signal progress in PostgreSQL when a DSN is
// configured so restarts do not replay handled signals.
func createProgressStore(ctx context.Context, cfg *config.Config) (storage.SignalProgressStore, func(), error) {
	if cfg.Storage.PostgresDSN == "" {
		return memory.NewSignalProgressStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	return pgstore.NewSignalProgressStore(pool), pool.Close, nil
}
