// Package mysql implements a MySQL (8.0.13+) document store. Collections are
// tables with a JSON column; indexes are functional indexes over the
// extracted, unquoted member values.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"docetl/internal/storage"
	"docetl/internal/storage/sqldoc"
)

// MySQL server error numbers.
const (
	erDupKeyName = 1061
	erDupEntry   = 1062
)

// Dialect is the MySQL flavour of sqldoc.Dialect.
type Dialect struct{}

var _ sqldoc.Dialect = Dialect{}

func (Dialect) Name() string { return "mysql" }

// Quote back-quotes an identifier.
func (Dialect) Quote(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

func (d Dialect) CreateTable(table string) []string {
	return []string{fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (seq BIGINT AUTO_INCREMENT PRIMARY KEY, doc JSON NOT NULL) DEFAULT CHARSET=utf8mb4",
		d.Quote(table),
	)}
}

// Insert uses INSERT IGNORE so unique-key collisions report zero rows
// affected instead of failing the statement.
func (d Dialect) Insert(table string) string {
	return fmt.Sprintf("INSERT IGNORE INTO %s (doc) VALUES (?)", d.Quote(table))
}

// CreateIndex builds one key part per field. JSON null unquotes to the text
// "null", which is mapped back to SQL NULL so it stays unconstrained.
func (d Dialect) CreateIndex(table, name string, idx storage.Index) []string {
	parts := make([]string, len(idx.Keys))
	for i, k := range idx.Keys {
		parts[i] = fmt.Sprintf(
			"(CAST(NULLIF(JSON_UNQUOTE(JSON_EXTRACT(doc, %s)), 'null') AS CHAR(255)) COLLATE utf8mb4_bin)",
			sqldoc.Literal(sqldoc.JSONPath(k)),
		)
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return []string{fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, d.Quote(name), d.Quote(table), strings.Join(parts, ", "))}
}

func (Dialect) IsDuplicate(err error) bool { return errNumber(err) == erDupEntry }

func (Dialect) IsIndexConflict(err error) bool { return errNumber(err) == erDupEntry }

func (Dialect) IndexExists(err error) bool { return errNumber(err) == erDupKeyName }

func errNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// NewRepository validates dsn, opens a pool and pings the server.
func NewRepository(ctx context.Context, dsn string) (*sqldoc.Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetConnMaxLifetime(3 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql ping: %w", err)
	}
	return sqldoc.New(db, Dialect{}), nil
}
