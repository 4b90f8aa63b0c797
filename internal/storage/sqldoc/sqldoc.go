// Package sqldoc stores documents in SQL databases through database/sql.
// Each collection is a table holding one JSON document per row; indexes
// are built over expressions that extract fields from the document.
// Dialects supply the SQL text and error classification per engine.
package sqldoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"docetl/internal/storage"
	"docetl/pkg/records"
)

// Dialect renders engine-specific SQL and classifies driver errors.
type Dialect interface {
	Name() string
	// CreateTable returns statements that create the collection table if
	// it is missing. The table has a document column named doc.
	CreateTable(table string) []string
	// Insert returns a single-document insert with one placeholder. It may
	// silently skip unique-key collisions (rows affected 0).
	Insert(table string) string
	// CreateIndex returns statements that create idx if it is missing.
	CreateIndex(table, name string, idx storage.Index) []string
	// IsDuplicate reports a unique-key violation on insert.
	IsDuplicate(err error) bool
	// IsIndexConflict reports a unique index refused over existing rows.
	IsIndexConflict(err error) bool
	// IndexExists reports an "index already exists" error.
	IndexExists(err error) bool
	Quote(ident string) string
}

// Store implements storage.Store over a *sql.DB.
type Store struct {
	db *sql.DB
	d  Dialect

	mu     sync.Mutex
	tables map[string]bool
}

var _ storage.Store = (*Store)(nil)

// New wraps db. The Store owns db and closes it in Close.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, d: d, tables: make(map[string]bool)}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) ensureTable(ctx context.Context, coll string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tables[coll] {
		return nil
	}
	for _, stmt := range s.d.CreateTable(coll) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: create table %s: %w", s.d.Name(), coll, err)
		}
	}
	s.tables[coll] = true
	return nil
}

// InsertMany inserts docs in one transaction. Documents that cannot be
// encoded or that collide with a unique index are reported in a
// *storage.BulkWriteError; the rest are committed.
func (s *Store) InsertMany(ctx context.Context, coll string, docs []records.Record) (storage.InsertResult, error) {
	var res storage.InsertResult
	if len(docs) == 0 {
		return res, nil
	}
	if err := s.ensureTable(ctx, coll); err != nil {
		return res, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("%s: begin tx: %w", s.d.Name(), err)
	}
	rollback := func() { _ = tx.Rollback() }

	stmt, err := tx.PrepareContext(ctx, s.d.Insert(coll))
	if err != nil {
		rollback()
		return res, fmt.Errorf("%s: prepare insert: %w", s.d.Name(), err)
	}
	defer stmt.Close()

	var failures []storage.DocFailure
	fail := func(i int, err error) {
		failures = append(failures, storage.DocFailure{Index: i, ID: storage.DocID(docs[i]), Err: err})
	}

	for i, doc := range docs {
		b, err := json.Marshal(doc)
		if err != nil {
			fail(i, fmt.Errorf("encode document: %w", err))
			continue
		}
		r, err := stmt.ExecContext(ctx, string(b))
		if err != nil {
			if s.d.IsDuplicate(err) {
				fail(i, fmt.Errorf("%w: %v", storage.ErrDuplicateKey, err))
				continue
			}
			rollback()
			return storage.InsertResult{}, fmt.Errorf("%s: insert into %s: %w", s.d.Name(), coll, err)
		}
		if n, err := r.RowsAffected(); err == nil && n == 0 {
			fail(i, storage.ErrDuplicateKey)
			continue
		}
		res.Inserted++
	}

	if err := tx.Commit(); err != nil {
		return storage.InsertResult{}, fmt.Errorf("%s: commit: %w", s.d.Name(), err)
	}
	if len(failures) > 0 {
		return res, &storage.BulkWriteError{Collection: coll, Inserted: res.Inserted, Failures: failures}
	}
	return res, nil
}

// CreateIndex creates idx over the document fields it names.
func (s *Store) CreateIndex(ctx context.Context, coll string, idx storage.Index) error {
	if len(idx.Keys) == 0 {
		return fmt.Errorf("%s: index on %s has no keys", s.d.Name(), coll)
	}
	if err := s.ensureTable(ctx, coll); err != nil {
		return err
	}
	name := idx.IndexName(coll)
	for _, stmt := range s.d.CreateIndex(coll, name, idx) {
		_, err := s.db.ExecContext(ctx, stmt)
		switch {
		case err == nil, s.d.IndexExists(err):
		case s.d.IsIndexConflict(err):
			return fmt.Errorf("%w: %s on %s: %v", storage.ErrIndexConflict, name, coll, err)
		default:
			return fmt.Errorf("%s: create index %s: %w", s.d.Name(), name, err)
		}
	}
	return nil
}

// CountDocuments counts rows in the collection table. A collection that
// was never written counts as empty.
func (s *Store) CountDocuments(ctx context.Context, coll string) (int64, error) {
	if err := s.ensureTable(ctx, coll); err != nil {
		return 0, err
	}
	var n int64
	q := "SELECT COUNT(*) FROM " + s.d.Quote(coll)
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: count %s: %w", s.d.Name(), coll, err)
	}
	return n, nil
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// JSONPath renders a JSON path selecting the top-level member key, quoted
// so that any key is addressable.
func JSONPath(key string) string {
	return `$."` + strings.ReplaceAll(key, `"`, `\"`) + `"`
}

// Literal renders s as a single-quoted SQL string literal.
func Literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
