package ddl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmschema/migrate/internal/differ"
	"github.com/dmschema/migrate/internal/sqlschema"
)

func intCol(name string) sqlschema.Column {
	return sqlschema.Column{Name: name, Type: sqlschema.ColumnType{Family: sqlschema.FamilyInt, Arity: sqlschema.ArityRequired}}
}

func TestNewDispatchesOnDialect(t *testing.T) {
	for _, d := range []sqlschema.Dialect{sqlschema.DialectPostgres, sqlschema.DialectMySQL, sqlschema.DialectSQLite} {
		r, err := New(d, sqlschema.Schema{}, sqlschema.Schema{})
		require.NoError(t, err)
		require.Equal(t, d, r.Dialect())
	}

	_, err := New(sqlschema.DialectUnknown, sqlschema.Schema{}, sqlschema.Schema{})
	require.Error(t, err)
}

func TestPostgresRenderColumnType(t *testing.T) {
	p := NewPostgres()
	require.Equal(t, "integer", p.RenderColumnType(sqlschema.ColumnType{Family: sqlschema.FamilyInt}))
	require.Equal(t, "double precision", p.RenderColumnType(sqlschema.ColumnType{Family: sqlschema.FamilyFloat}))
	require.Equal(t, "text[]", p.RenderColumnType(sqlschema.ColumnType{Family: sqlschema.FamilyString, Arity: sqlschema.ArityList}))
	require.Equal(t, "jsonb", p.RenderColumnType(sqlschema.ColumnType{Family: sqlschema.FamilyJson}))
	require.Equal(t, "custom_type", p.RenderColumnType(sqlschema.ColumnType{Native: "custom_type"}))
}

func TestPostgresRenderDefault(t *testing.T) {
	p := NewPostgres()
	intType := sqlschema.ColumnType{Family: sqlschema.FamilyInt}
	require.Equal(t, "5", p.RenderDefault(sqlschema.Default{Kind: sqlschema.DefaultLiteral, Literal: 5}, intType))
	require.Equal(t, "'hi'", p.RenderDefault(sqlschema.Default{Kind: sqlschema.DefaultLiteral, Literal: "hi"}, sqlschema.ColumnType{Family: sqlschema.FamilyString}))
	require.Equal(t, "CURRENT_TIMESTAMP", p.RenderDefault(sqlschema.Default{Kind: sqlschema.DefaultNow}, sqlschema.ColumnType{Family: sqlschema.FamilyDateTime}))
	require.Equal(t, "nextval('users_id_seq')", p.RenderDefault(sqlschema.Default{Kind: sqlschema.DefaultSequence, SequenceName: "users_id_seq"}, intType))
}

func TestPostgresCreateTableStep(t *testing.T) {
	p := NewPostgres()
	table := sqlschema.Table{
		Name:       "users",
		Columns:    []sqlschema.Column{intCol("id"), {Name: "email", Type: sqlschema.ColumnType{Family: sqlschema.FamilyString, Arity: sqlschema.ArityRequired}}},
		PrimaryKey: &sqlschema.PrimaryKey{Columns: []string{"id"}},
	}
	stmts, err := p.RenderStep(differ.Step{Kind: differ.KindCreateTable, Table: table})
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	require.Contains(t, stmts[0], `CREATE TABLE "users"`)
	require.Contains(t, stmts[0], `PRIMARY KEY ("id")`)
}

func TestPostgresAlterColumnSplitsClauses(t *testing.T) {
	p := NewPostgres()
	step := differ.Step{
		Kind:      differ.KindAlterColumn,
		TableName: "users",
		OldColumn: sqlschema.Column{Name: "age", Type: sqlschema.ColumnType{Family: sqlschema.FamilyString, Arity: sqlschema.ArityNullable}},
		NewColumn: sqlschema.Column{Name: "age", Type: sqlschema.ColumnType{Family: sqlschema.FamilyInt, Arity: sqlschema.ArityRequired},
			Default: sqlschema.Default{Kind: sqlschema.DefaultLiteral, Literal: 0}},
	}
	stmts, err := p.RenderStep(step)
	require.NoError(t, err)
	require.Len(t, stmts, 3, "type + nullability + default are independent clauses")
	require.Contains(t, stmts[0], "TYPE integer")
	require.Contains(t, stmts[1], "SET NOT NULL")
	require.Contains(t, stmts[2], "SET DEFAULT 0")
}

func TestPostgresAlterEnumOrdersAddedValuesBeforeAnchor(t *testing.T) {
	p := NewPostgres()
	step := differ.Step{
		Kind:        differ.KindAlterEnum,
		EnumName:    "status",
		AddedValues: []string{"pending"},
		FinalValues: []string{"pending", "active"},
	}
	stmts, err := p.RenderStep(step)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	require.Contains(t, stmts[0], "ADD VALUE 'pending' BEFORE 'active'")
}

func TestPostgresAlterEnumRejectsDroppedValues(t *testing.T) {
	p := NewPostgres()
	step := differ.Step{Kind: differ.KindAlterEnum, EnumName: "status", DroppedValues: []string{"archived"}}
	_, err := p.RenderStep(step)
	require.Error(t, err)
}

func TestPostgresDropForeignKeyDefaultsName(t *testing.T) {
	p := NewPostgres()
	step := differ.Step{
		Kind:       differ.KindDropForeignKey,
		TableName:  "posts",
		ForeignKey: sqlschema.ForeignKey{Columns: []string{"user_id"}},
	}
	stmts, err := p.RenderStep(step)
	require.NoError(t, err)
	require.Equal(t, `ALTER TABLE "posts" DROP CONSTRAINT "posts_user_id_fkey"`, stmts[0])
}

func TestMySQLQuoteUsesBackticks(t *testing.T) {
	m := NewMySQL(nil)
	require.Equal(t, "`users`", m.Quote("users"))
}

func TestMySQLRenderColumnType(t *testing.T) {
	m := NewMySQL(nil)
	require.Equal(t, "int", m.RenderColumnType(sqlschema.ColumnType{Family: sqlschema.FamilyInt}))
	require.Equal(t, "tinyint(1)", m.RenderColumnType(sqlschema.ColumnType{Family: sqlschema.FamilyBoolean}))
	require.Equal(t, "varchar(191)", m.RenderColumnType(sqlschema.ColumnType{Family: sqlschema.FamilyString}))
}

func TestMySQLInlineEnumRendersFromSchemaContext(t *testing.T) {
	m := NewMySQL([]sqlschema.Enum{{Name: "status", Values: []string{"active", "archived"}}})
	col := sqlschema.Column{Name: "status", Type: sqlschema.ColumnType{Family: sqlschema.FamilyEnum, EnumName: "status"}}
	def := m.RenderColumnDefinition(col)
	require.Contains(t, def, "enum('active','archived')")
}

func TestMySQLAlterColumnAlwaysModifiesWholeColumn(t *testing.T) {
	m := NewMySQL(nil)
	step := differ.Step{
		Kind:      differ.KindAlterColumn,
		TableName: "users",
		NewColumn: sqlschema.Column{Name: "nickname", Type: sqlschema.ColumnType{Family: sqlschema.FamilyString, Arity: sqlschema.ArityNullable}},
	}
	stmts, err := m.RenderStep(step)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	require.Contains(t, stmts[0], "MODIFY COLUMN")
}

func TestMySQLEnumStepsAreNoOps(t *testing.T) {
	m := NewMySQL(nil)
	for _, k := range []differ.Kind{differ.KindCreateEnum, differ.KindDropEnum, differ.KindAlterEnum} {
		stmts, err := m.RenderStep(differ.Step{Kind: k})
		require.NoError(t, err)
		require.Empty(t, stmts)
	}
}

func TestMySQLDropForeignKeyDefaultsToIbfkName(t *testing.T) {
	m := NewMySQL(nil)
	stmts, err := m.RenderStep(differ.Step{Kind: differ.KindDropForeignKey, TableName: "posts"})
	require.NoError(t, err)
	require.Equal(t, "ALTER TABLE `posts` DROP FOREIGN KEY `posts_ibfk_1`", stmts[0])
}

func TestSQLiteQuoteUsesDoubleQuotes(t *testing.T) {
	s := NewSQLite(sqlschema.Schema{}, sqlschema.Schema{})
	require.Equal(t, `"users"`, s.Quote("users"))
}

func TestSQLiteSoleIntegerPKUsesAutoincrement(t *testing.T) {
	s := NewSQLite(sqlschema.Schema{}, sqlschema.Schema{})
	table := sqlschema.Table{
		Name:       "users",
		Columns:    []sqlschema.Column{{Name: "id", Type: sqlschema.ColumnType{Family: sqlschema.FamilyInt, Arity: sqlschema.ArityRequired}, AutoIncrement: true}},
		PrimaryKey: &sqlschema.PrimaryKey{Columns: []string{"id"}},
	}
	stmts, err := s.RenderStep(differ.Step{Kind: differ.KindCreateTable, Table: table})
	require.NoError(t, err)
	require.Contains(t, stmts[0], "INTEGER PRIMARY KEY AUTOINCREMENT")
	require.NotContains(t, stmts[0], "PRIMARY KEY (\"id\")", "sole integer PK must not also get a table-level constraint")
}

func TestSQLiteAddRequiredColumnWithoutDefaultErrors(t *testing.T) {
	s := NewSQLite(sqlschema.Schema{}, sqlschema.Schema{})
	step := differ.Step{
		Kind:      differ.KindAddColumn,
		TableName: "users",
		Column:    sqlschema.Column{Name: "tenant_id", Type: sqlschema.ColumnType{Family: sqlschema.FamilyInt, Arity: sqlschema.ArityRequired}},
	}
	_, err := s.RenderStep(step)
	require.Error(t, err)
}

func TestSQLiteAlterColumnTriggersTableRebuild(t *testing.T) {
	prev := sqlschema.Schema{Tables: []sqlschema.Table{
		{Name: "users", Columns: []sqlschema.Column{
			{Name: "id", Type: sqlschema.ColumnType{Family: sqlschema.FamilyInt, Arity: sqlschema.ArityRequired}, AutoIncrement: true},
			{Name: "age", Type: sqlschema.ColumnType{Family: sqlschema.FamilyString}},
		}, PrimaryKey: &sqlschema.PrimaryKey{Columns: []string{"id"}}},
	}}
	next := sqlschema.Schema{Tables: []sqlschema.Table{
		{Name: "users", Columns: []sqlschema.Column{
			{Name: "id", Type: sqlschema.ColumnType{Family: sqlschema.FamilyInt, Arity: sqlschema.ArityRequired}, AutoIncrement: true},
			{Name: "age", Type: sqlschema.ColumnType{Family: sqlschema.FamilyInt}},
		}, PrimaryKey: &sqlschema.PrimaryKey{Columns: []string{"id"}}},
	}}
	s := NewSQLite(prev, next)
	step := differ.Step{
		Kind:      differ.KindAlterColumn,
		TableName: "users",
		OldColumn: sqlschema.Column{Name: "age", Type: sqlschema.ColumnType{Family: sqlschema.FamilyString}},
		NewColumn: sqlschema.Column{Name: "age", Type: sqlschema.ColumnType{Family: sqlschema.FamilyInt}},
	}
	stmts, err := s.RenderPlan([]differ.Step{step})
	require.NoError(t, err)

	joined := strings.Join(stmts, "\n")
	require.Contains(t, joined, "_migrate_new_users")
	require.Contains(t, joined, "INSERT INTO")
	require.Contains(t, joined, `DROP TABLE "users"`)
	require.Contains(t, joined, `RENAME TO "users"`)
	require.Equal(t, "PRAGMA foreign_keys=OFF", stmts[0])
	require.Equal(t, "PRAGMA foreign_keys=ON", stmts[len(stmts)-1])
}

func TestSQLiteRenderPlanFoldsMultipleStepsIntoOneRebuild(t *testing.T) {
	prev := sqlschema.Schema{Tables: []sqlschema.Table{
		{Name: "posts", Columns: []sqlschema.Column{intCol("id")}},
		{Name: "users", Columns: []sqlschema.Column{intCol("id")}},
	}}
	next := sqlschema.Schema{Tables: []sqlschema.Table{
		{Name: "posts", Columns: []sqlschema.Column{intCol("id"), intCol("user_id")},
			ForeignKeys: []sqlschema.ForeignKey{{Columns: []string{"user_id"}, ReferencedTable: "users", ReferencedColumns: []string{"id"}}}},
		{Name: "users", Columns: []sqlschema.Column{intCol("id")}},
	}}
	s := NewSQLite(prev, next)
	steps := []differ.Step{
		{Kind: differ.KindAddColumn, TableName: "posts", Column: intCol("user_id")},
		{Kind: differ.KindAddForeignKey, TableName: "posts", ForeignKey: next.Tables[0].ForeignKeys[0]},
	}
	stmts, err := s.RenderPlan(steps)
	require.NoError(t, err)
	require.Contains(t, strings.Join(stmts, "\n"), "_migrate_new_posts")
	require.Equal(t, 1, strings.Count(strings.Join(stmts, "\n"), `DROP TABLE "posts"`), "both steps fold into a single rebuild")
}

func TestSQLiteEnumStepsAreNoOps(t *testing.T) {
	s := NewSQLite(sqlschema.Schema{}, sqlschema.Schema{})
	stmts, err := s.RenderStep(differ.Step{Kind: differ.KindCreateEnum})
	require.NoError(t, err)
	require.Empty(t, stmts)
}

func TestForDispatchesSQLiteThroughRenderPlan(t *testing.T) {
	prev := sqlschema.Schema{Tables: []sqlschema.Table{{Name: "users", Columns: []sqlschema.Column{intCol("id")}}}}
	next := sqlschema.Schema{Tables: []sqlschema.Table{{Name: "users", Columns: []sqlschema.Column{intCol("id"), intCol("age")}}}}
	s := NewSQLite(prev, next)
	steps := []differ.Step{{
		Kind:      differ.KindAlterColumn,
		TableName: "users",
		OldColumn: sqlschema.Column{Name: "age"},
		NewColumn: sqlschema.Column{Name: "age", Type: sqlschema.ColumnType{Family: sqlschema.FamilyInt}},
	}}
	stmts, err := For(s, steps)
	require.NoError(t, err)
	require.NotEmpty(t, stmts)
}
