// Package postgres implements a Postgres document store using pgx v5.
// Collections are tables with a JSONB column; indexes are expression
// indexes over doc->>'field'. Inserts are pipelined with pgx.Batch and
// skip unique-key collisions with ON CONFLICT DO NOTHING.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"docetl/internal/storage"
	"docetl/pkg/records"
)

// sqlStateUniqueViolation is the SQLSTATE for unique_violation.
const sqlStateUniqueViolation = "23505"

// pool is the subset of *pgxpool.Pool the store uses.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// Repository is a Postgres-backed storage.Store.
type Repository struct {
	pool pool

	mu     sync.Mutex
	tables map[string]bool
}

var _ storage.Store = (*Repository)(nil)

// NewRepository connects a pool to dsn and pings it.
func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool config: %w", err)
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return newWithPool(p), nil
}

func newWithPool(p pool) *Repository {
	return &Repository{pool: p, tables: make(map[string]bool)}
}

func (r *Repository) ensureTable(ctx context.Context, coll string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tables[coll] {
		return nil
	}
	q := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (seq BIGSERIAL PRIMARY KEY, doc JSONB NOT NULL)", pgIdent(coll))
	if _, err := r.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("create table %s: %w", coll, err)
	}
	r.tables[coll] = true
	return nil
}

// InsertMany queues one INSERT per document and sends them in a single
// round trip. A document that hits a unique index affects zero rows and is
// reported as a duplicate.
func (r *Repository) InsertMany(ctx context.Context, coll string, docs []records.Record) (storage.InsertResult, error) {
	var res storage.InsertResult
	if len(docs) == 0 {
		return res, nil
	}
	if err := r.ensureTable(ctx, coll); err != nil {
		return res, err
	}

	var failures []storage.DocFailure
	fail := func(i int, err error) {
		failures = append(failures, storage.DocFailure{Index: i, ID: storage.DocID(docs[i]), Err: err})
	}

	insert := fmt.Sprintf("INSERT INTO %s (doc) VALUES ($1::jsonb) ON CONFLICT DO NOTHING", pgIdent(coll))
	batch := &pgx.Batch{}
	queued := make([]int, 0, len(docs))
	for i, doc := range docs {
		b, err := json.Marshal(doc)
		if err != nil {
			fail(i, fmt.Errorf("encode document: %w", err))
			continue
		}
		batch.Queue(insert, string(b))
		queued = append(queued, i)
	}

	if batch.Len() > 0 {
		br := r.pool.SendBatch(ctx, batch)
		for _, i := range queued {
			ct, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return storage.InsertResult{}, fmt.Errorf("insert into %s: document %d: %w", coll, i, err)
			}
			if ct.RowsAffected() == 0 {
				fail(i, storage.ErrDuplicateKey)
				continue
			}
			res.Inserted++
		}
		if err := br.Close(); err != nil {
			return storage.InsertResult{}, fmt.Errorf("insert into %s: %w", coll, err)
		}
	}

	if len(failures) > 0 {
		sort.Slice(failures, func(a, b int) bool { return failures[a].Index < failures[b].Index })
		return res, &storage.BulkWriteError{Collection: coll, Inserted: res.Inserted, Failures: failures}
	}
	return res, nil
}

// CreateIndex creates an expression index over the named fields.
func (r *Repository) CreateIndex(ctx context.Context, coll string, idx storage.Index) error {
	if len(idx.Keys) == 0 {
		return fmt.Errorf("index on %s has no keys", coll)
	}
	if err := r.ensureTable(ctx, coll); err != nil {
		return err
	}
	name := idx.IndexName(coll)
	_, err := r.pool.Exec(ctx, createIndexSQL(coll, name, idx))
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %s on %s: %v", storage.ErrIndexConflict, name, coll, err)
	}
	return fmt.Errorf("create index %s: %w", name, err)
}

// CountDocuments counts the rows of the collection table.
func (r *Repository) CountDocuments(ctx context.Context, coll string) (int64, error) {
	if err := r.ensureTable(ctx, coll); err != nil {
		return 0, err
	}
	var n int64
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM "+pgIdent(coll)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", coll, err)
	}
	return n, nil
}

// Close closes the pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func createIndexSQL(coll, name string, idx storage.Index) string {
	exprs := make([]string, len(idx.Keys))
	for i, k := range idx.Keys {
		exprs[i] = "(doc->>" + pgLiteral(k) + ")"
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique, pgIdent(name), pgIdent(coll), strings.Join(exprs, ", "))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation
}

// pgIdent quotes an identifier, escaping embedded double quotes.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func pgLiteral(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }
