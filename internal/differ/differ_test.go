package differ

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmschema/migrate/internal/sqlschema"
)

func col(name string, family sqlschema.ColumnTypeFamily, arity sqlschema.ColumnArity) sqlschema.Column {
	return sqlschema.Column{Name: name, Type: sqlschema.ColumnType{Family: family, Arity: arity}}
}

func TestDiffCreateTable(t *testing.T) {
	next := sqlschema.Schema{
		Dialect: sqlschema.DialectPostgres,
		Tables: []sqlschema.Table{
			{Name: "users", Columns: []sqlschema.Column{
				col("id", sqlschema.FamilyInt, sqlschema.ArityRequired),
				col("email", sqlschema.FamilyString, sqlschema.ArityRequired),
			}},
		},
	}
	steps, err := Diff(sqlschema.Schema{Dialect: sqlschema.DialectPostgres}, next, sqlschema.DialectPostgres)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.Equal(t, KindCreateTable, steps[0].Kind)
	require.Equal(t, "users", steps[0].TableName)
}

func TestDiffDropTable(t *testing.T) {
	prev := sqlschema.Schema{
		Dialect: sqlschema.DialectPostgres,
		Tables:  []sqlschema.Table{{Name: "widgets"}},
	}
	steps, err := Diff(prev, sqlschema.Schema{Dialect: sqlschema.DialectPostgres}, sqlschema.DialectPostgres)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.Equal(t, KindDropTable, steps[0].Kind)
	require.Equal(t, "widgets", steps[0].TableName)
}

func TestDiffNoChangeProducesNoSteps(t *testing.T) {
	schema := sqlschema.Schema{
		Dialect: sqlschema.DialectPostgres,
		Tables: []sqlschema.Table{
			{Name: "users", Columns: []sqlschema.Column{col("id", sqlschema.FamilyInt, sqlschema.ArityRequired)}},
		},
	}
	steps, err := Diff(schema, schema, sqlschema.DialectPostgres)
	require.NoError(t, err)
	require.Empty(t, steps)
}

func TestDiffAddColumn(t *testing.T) {
	prev := sqlschema.Schema{Tables: []sqlschema.Table{
		{Name: "users", Columns: []sqlschema.Column{col("id", sqlschema.FamilyInt, sqlschema.ArityRequired)}},
	}}
	next := sqlschema.Schema{Tables: []sqlschema.Table{
		{Name: "users", Columns: []sqlschema.Column{
			col("id", sqlschema.FamilyInt, sqlschema.ArityRequired),
			col("name", sqlschema.FamilyString, sqlschema.ArityNullable),
		}},
	}}
	steps, err := Diff(prev, next, sqlschema.DialectPostgres)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.Equal(t, KindAddColumn, steps[0].Kind)
	require.Equal(t, "name", steps[0].Column.Name)
}

func TestDiffDropColumnBeforeAddColumn(t *testing.T) {
	prev := sqlschema.Schema{Tables: []sqlschema.Table{
		{Name: "users", Columns: []sqlschema.Column{
			col("id", sqlschema.FamilyInt, sqlschema.ArityRequired),
			col("legacy", sqlschema.FamilyString, sqlschema.ArityNullable),
		}},
	}}
	next := sqlschema.Schema{Tables: []sqlschema.Table{
		{Name: "users", Columns: []sqlschema.Column{
			col("id", sqlschema.FamilyInt, sqlschema.ArityRequired),
			col("fresh", sqlschema.FamilyString, sqlschema.ArityNullable),
		}},
	}}
	steps, err := Diff(prev, next, sqlschema.DialectPostgres)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, KindDropColumn, steps[0].Kind)
	require.Equal(t, KindAddColumn, steps[1].Kind)
}

func TestDiffForeignKeyOrdering(t *testing.T) {
	prev := sqlschema.Schema{Tables: []sqlschema.Table{
		{Name: "posts", Columns: []sqlschema.Column{col("id", sqlschema.FamilyInt, sqlschema.ArityRequired)}},
	}}
	next := sqlschema.Schema{Tables: []sqlschema.Table{
		{Name: "users", Columns: []sqlschema.Column{col("id", sqlschema.FamilyInt, sqlschema.ArityRequired)}},
		{Name: "posts", Columns: []sqlschema.Column{
			col("id", sqlschema.FamilyInt, sqlschema.ArityRequired),
			col("user_id", sqlschema.FamilyInt, sqlschema.ArityRequired),
		}, ForeignKeys: []sqlschema.ForeignKey{
			{Columns: []string{"user_id"}, ReferencedTable: "users", ReferencedColumns: []string{"id"}},
		}},
	}}
	steps, err := Diff(prev, next, sqlschema.DialectPostgres)
	require.NoError(t, err)

	var createTableIdx, addColIdx, createUsersIdx, addFKIdx = -1, -1, -1, -1
	for i, s := range steps {
		switch {
		case s.Kind == KindCreateTable && s.TableName == "users":
			createUsersIdx = i
		case s.Kind == KindAddColumn && s.TableName == "posts":
			addColIdx = i
		case s.Kind == KindAddForeignKey && s.TableName == "posts":
			addFKIdx = i
		}
		_ = createTableIdx
	}
	require.NotEqual(t, -1, addColIdx)
	require.NotEqual(t, -1, createUsersIdx)
	require.NotEqual(t, -1, addFKIdx)
	require.Less(t, createUsersIdx, addFKIdx, "users table must be created before the FK referencing it")
	require.Less(t, addColIdx, addFKIdx, "user_id column must exist before its FK is added")
}

func TestDiffEnumCreateAndAlter(t *testing.T) {
	prev := sqlschema.Schema{Enums: []sqlschema.Enum{{Name: "status", Values: []string{"active"}}}}
	next := sqlschema.Schema{Enums: []sqlschema.Enum{
		{Name: "status", Values: []string{"active", "archived"}},
		{Name: "role", Values: []string{"admin", "member"}},
	}}
	steps, err := Diff(prev, next, sqlschema.DialectPostgres)
	require.NoError(t, err)
	require.Len(t, steps, 2)

	var sawAlter, sawCreate bool
	for _, s := range steps {
		if s.Kind == KindAlterEnum && s.EnumName == "status" {
			sawAlter = true
			require.Equal(t, []string{"archived"}, s.AddedValues)
		}
		if s.Kind == KindCreateEnum && s.EnumName == "role" {
			sawCreate = true
		}
	}
	require.True(t, sawAlter)
	require.True(t, sawCreate)
}

func TestDiffMySQLSkipsEnumPhase(t *testing.T) {
	prev := sqlschema.Schema{Enums: []sqlschema.Enum{{Name: "status", Values: []string{"active"}}}}
	next := sqlschema.Schema{Enums: []sqlschema.Enum{{Name: "status", Values: []string{"active", "archived"}}}}
	steps, err := Diff(prev, next, sqlschema.DialectMySQL)
	require.NoError(t, err)
	require.Empty(t, steps, "MySQL enum changes surface on the column, not as a standalone enum step")
}

func TestDiffIndexRenameRespectsCapability(t *testing.T) {
	prev := sqlschema.Schema{Tables: []sqlschema.Table{
		{Name: "users", Indexes: []sqlschema.Index{{Name: "idx_old", Columns: []string{"email"}, Type: sqlschema.IndexUnique}}},
	}}
	next := sqlschema.Schema{Tables: []sqlschema.Table{
		{Name: "users", Indexes: []sqlschema.Index{{Name: "idx_new", Columns: []string{"email"}, Type: sqlschema.IndexUnique}}},
	}}

	steps, err := Diff(prev, next, sqlschema.DialectPostgres)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.Equal(t, KindAlterIndex, steps[0].Kind)

	steps, err = Diff(prev, next, sqlschema.DialectSQLite)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, KindDropIndex, steps[0].Kind)
	require.Equal(t, KindCreateIndex, steps[1].Kind)
}

func TestDiffRetainedTablePrimaryKeyChangeErrors(t *testing.T) {
	prev := sqlschema.Schema{Tables: []sqlschema.Table{
		{Name: "users",
			Columns:    []sqlschema.Column{col("id", sqlschema.FamilyInt, sqlschema.ArityRequired)},
			PrimaryKey: &sqlschema.PrimaryKey{Columns: []string{"id"}}},
	}}
	next := sqlschema.Schema{Tables: []sqlschema.Table{
		{Name: "users",
			Columns: []sqlschema.Column{
				col("id", sqlschema.FamilyInt, sqlschema.ArityRequired),
				col("tenant_id", sqlschema.FamilyInt, sqlschema.ArityRequired),
			},
			PrimaryKey: &sqlschema.PrimaryKey{Columns: []string{"id", "tenant_id"}}},
	}}

	_, err := Diff(prev, next, sqlschema.DialectPostgres)
	require.Error(t, err, "a retained table's PK columns changing has no dedicated step; it must be rejected rather than silently dropped")
}
