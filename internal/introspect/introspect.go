// Package introspect reads a live database's physical structure into a
// sqlschema.Schema. Each dialect walks its own catalog views or pragmas;
// the engine treats the result as just another Schema value feeding the
// differ, the same as one computed by internal/calculator.
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmschema/migrate/internal/sqlschema"
)

// Introspector describes a live database's current schema.
type Introspector interface {
	Introspect(ctx context.Context) (sqlschema.Schema, error)
}

// New returns the Introspector for a dialect.
func New(dialect sqlschema.Dialect, db *sql.DB) (Introspector, error) {
	switch dialect {
	case sqlschema.DialectPostgres:
		return &Postgres{db: db}, nil
	case sqlschema.DialectMySQL:
		return &MySQL{db: db}, nil
	case sqlschema.DialectSQLite:
		return &SQLite{db: db}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
}

// IsConnectionString reports whether s names a live database rather than a
// path to a datamodel file, per the scheme/suffix rules in §6.3.
func IsConnectionString(s string) bool {
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "postgres://"),
		strings.HasPrefix(lower, "postgresql://"),
		strings.HasPrefix(lower, "mysql://"),
		strings.HasPrefix(lower, "sqlite://"),
		strings.HasPrefix(lower, "file:"):
		return true
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return true
	case lower == ":memory:":
		return true
	default:
		return false
	}
}
