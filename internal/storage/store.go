package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"docetl/pkg/records"
)

// Store is a document store. Implementations must be safe for concurrent
// use.
type Store interface {
	// InsertMany writes docs into collection without stopping at the first
	// rejected document. A *BulkWriteError reports rejections; any other
	// error is a store failure.
	InsertMany(ctx context.Context, collection string, docs []records.Record) (InsertResult, error)

	// CreateIndex creates idx if it does not exist. ErrIndexConflict means
	// existing documents violate a unique index.
	CreateIndex(ctx context.Context, collection string, idx Index) error

	// CountDocuments returns the number of documents in collection.
	CountDocuments(ctx context.Context, collection string) (int64, error)

	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Kind is the registered backend name, e.g. "mongo", "postgres".
	Kind string
	// DSN is the backend connection string.
	DSN string
	// Database names the database for backends that address one by name.
	Database string
}

// Factory opens a Store for cfg.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind. Backends call it
// from init.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// New opens a store of cfg.Kind.
func New(ctx context.Context, cfg Config) (Store, error) {
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrUnknownKind, cfg.Kind, Kinds())
	}
	s, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage %s: %w", cfg.Kind, err)
	}
	return s, nil
}

// Kinds lists the registered backends in sorted order.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
