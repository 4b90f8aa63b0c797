package postgres

import (
	"context"

	"docetl/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = NewRepository

// init registers the "postgres" backend with the storage factory so callers
// obtain it through storage.New without importing this package.
func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		return newRepository(ctx, cfg.DSN)
	})
}
