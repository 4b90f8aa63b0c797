// Package sqlite implements a SQLite document store using database/sql and
// the pure-Go modernc.org/sqlite driver. Collections are tables of JSON
// text; indexes are expression indexes over json_extract.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"docetl/internal/storage"
	"docetl/internal/storage/sqldoc"
)

// Dialect is the SQLite flavour of sqldoc.Dialect.
type Dialect struct{}

var _ sqldoc.Dialect = Dialect{}

func (Dialect) Name() string { return "sqlite" }

// Quote double-quotes an identifier, escaping embedded quotes.
func (Dialect) Quote(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func (d Dialect) CreateTable(table string) []string {
	return []string{fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (seq INTEGER PRIMARY KEY AUTOINCREMENT, doc TEXT NOT NULL)",
		d.Quote(table),
	)}
}

func (d Dialect) Insert(table string) string {
	return fmt.Sprintf("INSERT OR IGNORE INTO %s (doc) VALUES (?)", d.Quote(table))
}

func (d Dialect) CreateIndex(table, name string, idx storage.Index) []string {
	exprs := make([]string, len(idx.Keys))
	for i, k := range idx.Keys {
		exprs[i] = "json_extract(doc, " + sqldoc.Literal(sqldoc.JSONPath(k)) + ")"
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return []string{fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique, d.Quote(name), d.Quote(table), strings.Join(exprs, ", "))}
}

func (Dialect) IsDuplicate(err error) bool { return isUnique(err) }

func (Dialect) IsIndexConflict(err error) bool { return isUnique(err) }

func (Dialect) IndexExists(error) bool { return false }

func isUnique(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Open opens a SQLite database. The pool is limited to one connection so an
// in-memory database is shared by every statement and writers never race
// for the file lock.
func Open(dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// New wraps an open database as a document store.
func New(db *sql.DB) *sqldoc.Store { return sqldoc.New(db, Dialect{}) }

// NewRepository opens dsn, pings it and returns the store.
func NewRepository(ctx context.Context, dsn string) (*sqldoc.Store, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL;")
	return New(db), nil
}
