// Package driver opens connections and resolves the sqlschema.Dialect a
// connection string names, detecting a driver name from the connection
// string before handing off to database/sql.
package driver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/dmschema/migrate/internal/sqlschema"
)

// Open connects to the database named by connStr, dispatching to the
// registered driver for the dialect ParseDialect resolves from its scheme.
func Open(ctx context.Context, connStr string) (*sql.DB, sqlschema.Dialect, error) {
	dialect, driverName, dsn := resolve(connStr)
	if dialect == sqlschema.DialectUnknown {
		return nil, dialect, fmt.Errorf("cannot determine database dialect for %q", connStr)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, dialect, fmt.Errorf("open %s connection: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, dialect, fmt.Errorf("ping %s connection: %w", dialect, err)
	}
	return db, dialect, nil
}

// resolve maps a connection string to the sql.Open driver name and DSN to
// pass it, alongside the dialect it belongs to.
func resolve(connStr string) (sqlschema.Dialect, string, string) {
	lower := strings.ToLower(connStr)
	switch {
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"), lower == ":memory:":
		return sqlschema.DialectSQLite, "sqlite", sqliteDSN(connStr)
	case strings.HasPrefix(lower, "file:"):
		return sqlschema.DialectSQLite, "sqlite", sqliteDSN(connStr)
	}

	scheme, rest := splitScheme(connStr)
	dialect := sqlschema.ParseDialect(scheme)

	switch dialect {
	case sqlschema.DialectPostgres:
		return dialect, "postgres", connStr
	case sqlschema.DialectMySQL:
		return dialect, "mysql", mysqlDSN(rest)
	case sqlschema.DialectSQLite:
		return dialect, "sqlite", sqliteDSN(connStr)
	default:
		return sqlschema.DialectUnknown, "", ""
	}
}

// sqliteDSN strips the sqlite:// prefix a connection string may carry;
// file-path and :memory: forms pass through unchanged since modernc.org/sqlite
// accepts them directly.
func sqliteDSN(connStr string) string {
	const prefix = "sqlite://"
	if len(connStr) >= len(prefix) && connStr[:len(prefix)] == prefix {
		return connStr[len(prefix):]
	}
	return connStr
}

// mysqlDSN rewrites the host[:port] segment of a mysql:// connection string
// into go-sql-driver/mysql's address form, tcp(host:port), since the driver
// does not accept a bare host:port the way a standard URL would carry it.
// A rest that already names a protocol (e.g. "tcp(...)" or "unix(...)") or
// carries no "@" (no credentials) passes through with only that rewrite
// applied to whatever follows the last "@", if any.
func mysqlDSN(rest string) string {
	at := strings.LastIndex(rest, "@")
	auth, addr := "", rest
	if at >= 0 {
		auth, addr = rest[:at+1], rest[at+1:]
	}

	slash := strings.Index(addr, "/")
	hostPort, tail := addr, ""
	if slash >= 0 {
		hostPort, tail = addr[:slash], addr[slash:]
	}

	if hostPort == "" || strings.Contains(hostPort, "(") {
		return auth + addr
	}
	return auth + "tcp(" + hostPort + ")" + tail
}

// splitScheme returns the URL scheme (without "://") and the remainder of s,
// or ("", s) if s carries no scheme.
func splitScheme(s string) (scheme, rest string) {
	for i := 0; i+2 < len(s); i++ {
		if s[i] == ':' && s[i+1] == '/' && s[i+2] == '/' {
			return s[:i], s[i+3:]
		}
	}
	return "", s
}
