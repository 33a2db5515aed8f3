package migrations

import (
	"context"
	"fmt"

	"keeper-vault/internal/storage/postgres"
)

// RunPostgresMigrations creates the profile, receipt and signal progress
// tables. Every script is idempotent and runs on each start.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	list, err := scripts("postgres")
	if err != nil {
		return err
	}
	for _, s := range list {
		if _, err := pool.Exec(ctx, s.sql); err != nil {
			return fmt.Errorf("keeper-vault schema %s: %w", s.name, err)
		}
	}
	return nil
}
