// Package mssql implements a Microsoft SQL Server document store using
// go-mssqldb. Collections are tables with an NVARCHAR(MAX) JSON column;
// each indexed field is exposed as a computed JSON_VALUE column that the
// index is built on.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"docetl/internal/storage"
	"docetl/internal/storage/sqldoc"
)

// SQL Server error numbers.
const (
	errUniqueIndex      = 2601 // duplicate key row in unique index
	errUniqueConstraint = 2627 // violation of UNIQUE KEY constraint
	errIndexDupData     = 1505 // CREATE UNIQUE INDEX found duplicate key
	errIndexExists      = 1913 // index with that name already exists
)

// Dialect is the SQL Server flavour of sqldoc.Dialect.
type Dialect struct{}

var _ sqldoc.Dialect = Dialect{}

func (Dialect) Name() string { return "mssql" }

// Quote brackets an identifier, escaping ].
func (Dialect) Quote(id string) string { return msIdent(id) }

func (Dialect) CreateTable(table string) []string {
	return []string{fmt.Sprintf(
		"IF OBJECT_ID(N%s, N'U') IS NULL CREATE TABLE %s (seq BIGINT IDENTITY(1,1) PRIMARY KEY, doc NVARCHAR(MAX) NOT NULL)",
		sqldoc.Literal(msIdent(table)), msIdent(table),
	)}
}

func (Dialect) Insert(table string) string {
	return fmt.Sprintf("INSERT INTO %s (doc) VALUES (@p1)", msIdent(table))
}

// CreateIndex adds one computed column per key and then the index. SQL
// Server allows a single NULL in a unique index over a computed column.
func (Dialect) CreateIndex(table, name string, idx storage.Index) []string {
	tbl := sqldoc.Literal(msIdent(table))
	stmts := make([]string, 0, len(idx.Keys)+1)
	cols := make([]string, len(idx.Keys))
	for i, k := range idx.Keys {
		col := keyColumn(k)
		cols[i] = msIdent(col)
		stmts = append(stmts, fmt.Sprintf(
			"IF COL_LENGTH(N%s, N%s) IS NULL ALTER TABLE %s ADD %s AS CAST(JSON_VALUE(doc, N%s) AS NVARCHAR(400))",
			tbl, sqldoc.Literal(col), msIdent(table), msIdent(col), sqldoc.Literal(sqldoc.JSONPath(k)),
		))
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	stmts = append(stmts, fmt.Sprintf(
		"IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N%s AND object_id = OBJECT_ID(N%s)) CREATE %sINDEX %s ON %s (%s)",
		sqldoc.Literal(name), tbl, unique, msIdent(name), msIdent(table), strings.Join(cols, ", "),
	))
	return stmts
}

func (Dialect) IsDuplicate(err error) bool {
	n := errNumber(err)
	return n == errUniqueIndex || n == errUniqueConstraint
}

func (Dialect) IsIndexConflict(err error) bool { return errNumber(err) == errIndexDupData }

func (Dialect) IndexExists(err error) bool { return errNumber(err) == errIndexExists }

func errNumber(err error) int32 {
	var me mssql.Error
	if errors.As(err, &me) {
		return me.Number
	}
	var pme *mssql.Error
	if errors.As(err, &pme) {
		return pme.Number
	}
	return 0
}

// keyColumn names the computed column for a document field.
func keyColumn(field string) string { return "k_" + field }

// msIdent safely quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// NewRepository validates dsn, opens a pool and pings the server.
func NewRepository(ctx context.Context, dsn string) (*sqldoc.Store, error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return sqldoc.New(db, Dialect{}), nil
}
