package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmschema/migrate/internal/ddl"
	"github.com/dmschema/migrate/internal/sqlschema"
)

// SQLRowCounter implements destructive.RowCounter against a live connection.
// It is the only thing in the destructive-checking path that touches the
// database — the classifier calls it lazily, only for steps whose
// classification actually depends on row counts.
type SQLRowCounter struct {
	db      *sql.DB
	quote   func(string) string
}

func NewSQLRowCounter(db *sql.DB, dialect sqlschema.Dialect) (*SQLRowCounter, error) {
	r, err := ddl.New(dialect, sqlschema.Schema{}, sqlschema.Schema{})
	if err != nil {
		return nil, err
	}
	return &SQLRowCounter{db: db, quote: r.Quote}, nil
}

func (c *SQLRowCounter) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", c.quote(table))
	if err := c.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, &IntrospectionError{Table: table, Err: err}
	}
	return n, nil
}

func (c *SQLRowCounter) CountNonNull(ctx context.Context, table, column string) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NOT NULL", c.quote(table), c.quote(column))
	if err := c.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, &IntrospectionError{Table: table, Err: err}
	}
	return n, nil
}
