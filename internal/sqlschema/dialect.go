// Package sqlschema is the in-memory representation of a physical relational
// schema: tables, columns, indexes, primary keys, foreign keys, enums and
// sequences. Values here are produced by the calculator or by introspection
// and are never mutated after construction.
package sqlschema

// Dialect identifies the target SQL variant.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
	DialectUnknown  Dialect = ""
)

// SupportsArrayColumns reports whether the dialect has a native array type
// (only Postgres does; List-arity scalars are an error elsewhere).
func (d Dialect) SupportsArrayColumns() bool {
	return d == DialectPostgres
}

// SupportsSchemaLevelEnum reports whether enums are a standalone schema
// object (Postgres CREATE TYPE) as opposed to inline per-column (MySQL) or
// simulated with TEXT (SQLite).
func (d Dialect) SupportsSchemaLevelEnum() bool {
	return d == DialectPostgres
}

// SupportsInlineEnum reports whether the dialect renders enum constraints
// inline on the column definition (MySQL's ENUM(...) column type).
func (d Dialect) SupportsInlineEnum() bool {
	return d == DialectMySQL
}

// SupportsSequences reports whether the dialect has standalone sequence
// objects backing autoincrement columns (only Postgres; MySQL/SQLite use
// an AUTO_INCREMENT/ROWID column attribute instead).
func (d Dialect) SupportsSequences() bool {
	return d == DialectPostgres
}

// SupportsInPlaceAlterColumn reports whether ALTER TABLE ... ALTER COLUMN
// can change type/nullability/default without a full table rebuild.
func (d Dialect) SupportsInPlaceAlterColumn() bool {
	return d == DialectPostgres || d == DialectMySQL
}

// SupportsIndexRename reports whether the dialect can rename an index in
// place (ALTER INDEX ... RENAME TO / RENAME INDEX ... TO). SQLite cannot.
func (d Dialect) SupportsIndexRename() bool {
	return d == DialectPostgres || d == DialectMySQL
}

// SupportsTransactionalDDL reports whether DDL statements participate in
// the enclosing transaction and roll back cleanly on failure.
func (d Dialect) SupportsTransactionalDDL() bool {
	return d == DialectPostgres || d == DialectSQLite
}

// SupportsAdvisoryLock reports whether the dialect has a native advisory
// lock primitive usable to serialize concurrent migrations on one database.
func (d Dialect) SupportsAdvisoryLock() bool {
	return d == DialectPostgres
}

func (d Dialect) String() string { return string(d) }

// ParseDialect maps a connection-URL scheme to a Dialect, per the rules in
// spec.md §6.3: postgres(ql):// -> Postgres, mysql:// -> MySQL, file:/sqlite: -> SQLite.
func ParseDialect(scheme string) Dialect {
	switch scheme {
	case "postgres", "postgresql":
		return DialectPostgres
	case "mysql":
		return DialectMySQL
	case "sqlite", "sqlite3", "file":
		return DialectSQLite
	default:
		return DialectUnknown
	}
}
