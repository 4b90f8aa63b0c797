package sqlite

import (
	"context"

	"docetl/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		return newRepository(ctx, cfg.DSN)
	})
}
