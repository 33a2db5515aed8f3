package main

import (
	"context"
	"fmt"

	"keeper-vault/internal/config"
	"keeper-vault/internal/storage"
	chstore "keeper-vault/internal/storage/clickhouse"
	"keeper-vault/internal/storage/memory"
	"keeper-vault/internal/storage/migrations"
	pgstore "keeper-vault/internal/storage/postgres"
	redisstore "keeper-vault/internal/storage/redis"
)

// allStores holds all storage implementations.
type allStores struct {
	accounts   storage.AccountStore
	executions storage.ExecutionStore
	events     storage.EventStore // nil when notifications are not archived
}

// createStores creates the stores selected by the storage driver.
// Profiles live in the driver's backend; receipts go to PostgreSQL when a
// DSN is configured and notifications to ClickHouse when a DSN is configured.
func createStores(ctx context.Context, cfg *config.Config) (*allStores, func(), error) {
	stores := &allStores{
		accounts:   memory.NewAccountStore(),
		executions: memory.NewExecutionStore(),
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*allStores, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// PostgreSQL
	if cfg.Storage.PostgresDSN != "" && cfg.Storage.Driver != config.StorageMemory {
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return fail(fmt.Errorf("connect to postgres: %w", err))
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fail(fmt.Errorf("postgres migrations: %w", err))
		}
		stores.executions = pgstore.NewExecutionStore(pool)
		if cfg.Storage.Driver == config.StoragePostgres {
			stores.accounts = pgstore.NewAccountStore(pool)
		}
	}

	// Redis
	if cfg.Storage.Driver == config.StorageRedis {
		client, err := redisstore.NewClient(ctx, cfg.Storage.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("connect to redis: %w", err))
		}
		closers = append(closers, func() { _ = client.Close() })
		stores.accounts = redisstore.NewAccountStore(client)
	}

	// ClickHouse
	switch {
	case cfg.Storage.ClickHouseDSN != "":
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			return fail(fmt.Errorf("clickhouse migrations: %w", err))
		}
		closers = append(closers, func() { _ = conn.Close() })
		stores.events = chstore.NewEventStore(conn)
	case cfg.Storage.Driver == config.StorageMemory:
		stores.events = memory.NewEventStore()
	}

	return stores, cleanup, nil
}
