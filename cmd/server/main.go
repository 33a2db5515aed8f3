// Package main runs the keeper-vault HTTP service:
// - Engine: profile lifecycle, vault transfers, keeper executions
// - Notifications: store, Kafka and websocket sinks
// - Metrics: Prometheus on /metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keeper-vault/internal/api"
	"keeper-vault/internal/config"
	"keeper-vault/internal/custody"
	"keeper-vault/internal/engine"
	"keeper-vault/internal/events"
	"keeper-vault/internal/jupiter"
	"keeper-vault/internal/observability"
	"keeper-vault/internal/solana"
	"keeper-vault/internal/venue"
)

func main() {
	configPath := flag.String("config", os.Getenv("KEEPER_VAULT_CONFIG"), "Path to YAML config file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	storageDriver := flag.String("storage", "", "Storage driver: memory, postgres or redis (overrides config)")
	venueMode := flag.String("venue", "", "Venue mode: quote or live (overrides config)")

	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *storageDriver != "" {
		cfg.Storage.Driver = *storageDriver
	}
	if *venueMode != "" {
		cfg.Venue.Mode = *venueMode
	}

	// Setup logger
	out := cfg.LogOutput()
	logger := log.New(out, "[server] ", log.LstdFlags|log.Lshortfile)

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid config: %v", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	stores, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	rpc := solana.NewHTTPClient(cfg.Solana.RPCEndpoint)

	sinks, hub, closeSinks := createSinks(cfg, stores, log.New(out, "[events] ", log.LstdFlags|log.Lshortfile))
	defer closeSinks()

	v, ledger, err := createVenue(cfg, rpc, log.New(out, "[venue] ", log.LstdFlags|log.Lshortfile))
	if err != nil {
		logger.Fatalf("Failed to create venue: %v", err)
	}

	eng, err := engine.New(engine.Options{
		Accounts:        stores.accounts,
		Executions:      stores.executions,
		Custodian:       ledger,
		Venue:           v,
		Events:          sinks,
		ProgramID:       cfg.ProgramID(),
		FeeRecipient:    cfg.FeeRecipient(),
		FeePoolReserve:  cfg.Engine.FeePoolReserve,
		CooldownSeconds: cfg.Engine.CooldownSeconds,
		VenueTimeout:    cfg.Engine.VenueTimeout,
		Logger:          log.New(out, "[engine] ", log.LstdFlags|log.Lshortfile),
	})
	if err != nil {
		logger.Fatalf("Failed to create engine: %v", err)
	}
	if cfg.Solana.RefreshReserve {
		if err := eng.RefreshFeePoolReserve(ctx, rpc); err != nil {
			logger.Printf("Fee pool reserve refresh failed, keeping %d: %v", eng.FeePoolReserve(), err)
		}
	}
	logger.Printf("Engine ready: program=%s storage=%s venue=%s reserve=%d",
		cfg.ProgramID(), cfg.Storage.Driver, cfg.Venue.Mode, eng.FeePoolReserve())

	routerCfg := api.Config{
		Service: eng,
		RateLimit: api.RateLimit{
			RequestsPerSecond: cfg.Server.RateLimitRPS,
			Burst:             cfg.Server.RateLimitBurst,
		},
		Logger: log.New(out, "[api] ", log.LstdFlags|log.Lshortfile),
	}
	if hub != nil {
		routerCfg.Events = hub
	}
	router, err := api.NewRouter(routerCfg)
	if err != nil {
		logger.Fatalf("Failed to create router: %v", err)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
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
		case <-time.After(cfg.Server.ShutdownTimeout):
			logger.Printf("Graceful shutdown timed out after %v, forcing exit", cfg.Server.ShutdownTimeout)
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	stopUptime := make(chan struct{})
	go observability.TrackUptime(time.Second, stopUptime)
	go settleFees(ctx, eng, cfg.Engine.FeeRetryInterval)

	err = serve(ctx, srv, cfg.Server.ShutdownTimeout, logger)
	close(stopUptime)
	if hub != nil {
		hub.Close()
	}
	done <- err
	cancel()

	if err != nil {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// serve runs srv until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger *log.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Printf("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// settleFees retries parked protocol fee transfers until ctx is cancelled.
func settleFees(ctx context.Context, eng *engine.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if eng.PendingFees() > 0 {
				eng.SettleFees(ctx)
			}
		}
	}
}

// createSinks assembles the notification fanout. hub is nil when the
// websocket stream is disabled.
func createSinks(cfg *config.Config, stores *allStores, logger *log.Logger) (*events.Fanout, *events.Hub, func()) {
	fanout := events.NewFanout()
	var closers []func() error

	if stores.events != nil {
		fanout.Add("store", events.NewStoreSink(stores.events))
	}
	if len(cfg.Events.KafkaBrokers) > 0 {
		sink := events.NewKafkaSink(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		fanout.Add("kafka", sink)
		closers = append(closers, sink.Close)
		logger.Printf("Publishing notifications to kafka topic %s", cfg.Events.KafkaTopic)
	}

	var hub *events.Hub
	if cfg.Events.Websocket {
		hubCfg := events.DefaultHubConfig()
		hub = events.NewHub(&hubCfg, logger)
		fanout.Add("websocket", hub)
	}

	return fanout, hub, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Printf("Close sink: %v", err)
			}
		}
	}
}

// createVenue selects the swap venue and the custodian that backs vault transfers.
func createVenue(cfg *config.Config, rpc solana.RPCClient, logger *log.Logger) (venue.Venue, *custody.Ledger, error) {
	client := jupiter.NewClient(cfg.Venue.JupiterURL, jupiter.WithLogger(logger))

	switch cfg.Venue.Mode {
	case config.VenueLive:
		signer, err := solana.LoadKeypairFile(cfg.Solana.KeypairPath)
		if err != nil {
			return nil, nil, err
		}
		logger.Printf("Live venue signing as %s", signer.PublicKey)
		ledger := custody.NewLedger(custody.WithOpenAccounts(), custody.WithNativeBalances(rpc))
		return jupiter.NewLiveVenue(client, rpc, signer, logger), ledger, nil
	default:
		return jupiter.NewQuoteVenue(client), custody.NewLedger(custody.WithOpenAccounts()), nil
	}
}
