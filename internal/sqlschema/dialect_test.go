package sqlschema

import "testing"

func TestParseDialect(t *testing.T) {
	cases := []struct {
		scheme string
		want   Dialect
	}{
		{"postgres", DialectPostgres},
		{"postgresql", DialectPostgres},
		{"mysql", DialectMySQL},
		{"sqlite", DialectSQLite},
		{"sqlite3", DialectSQLite},
		{"file", DialectSQLite},
		{"mongodb", DialectUnknown},
		{"", DialectUnknown},
	}
	for _, c := range cases {
		if got := ParseDialect(c.scheme); got != c.want {
			t.Errorf("ParseDialect(%q) = %v, want %v", c.scheme, got, c.want)
		}
	}
}

func TestDialectCapabilities(t *testing.T) {
	if !DialectPostgres.SupportsArrayColumns() {
		t.Error("postgres should support array columns")
	}
	if DialectMySQL.SupportsArrayColumns() || DialectSQLite.SupportsArrayColumns() {
		t.Error("only postgres should support array columns")
	}

	if !DialectPostgres.SupportsSchemaLevelEnum() {
		t.Error("postgres should support schema-level enums")
	}
	if DialectMySQL.SupportsSchemaLevelEnum() {
		t.Error("mysql should not support schema-level enums")
	}
	if !DialectMySQL.SupportsInlineEnum() {
		t.Error("mysql should support inline enums")
	}
	if DialectPostgres.SupportsInlineEnum() || DialectSQLite.SupportsInlineEnum() {
		t.Error("only mysql should support inline enums")
	}

	if DialectSQLite.SupportsInPlaceAlterColumn() {
		t.Error("sqlite cannot alter a column in place")
	}
	if !DialectPostgres.SupportsInPlaceAlterColumn() || !DialectMySQL.SupportsInPlaceAlterColumn() {
		t.Error("postgres and mysql can alter a column in place")
	}

	if DialectSQLite.SupportsIndexRename() {
		t.Error("sqlite cannot rename an index in place")
	}

	if !DialectPostgres.SupportsTransactionalDDL() || !DialectSQLite.SupportsTransactionalDDL() {
		t.Error("postgres and sqlite run DDL inside transactions")
	}
	if DialectMySQL.SupportsTransactionalDDL() {
		t.Error("mysql DDL implicitly commits")
	}

	if !DialectPostgres.SupportsAdvisoryLock() {
		t.Error("postgres should support advisory locks")
	}
	if DialectMySQL.SupportsAdvisoryLock() || DialectSQLite.SupportsAdvisoryLock() {
		t.Error("only postgres should support advisory locks")
	}
}

func TestDialectString(t *testing.T) {
	if DialectPostgres.String() != "postgres" {
		t.Errorf("got %q, want postgres", DialectPostgres.String())
	}
}
