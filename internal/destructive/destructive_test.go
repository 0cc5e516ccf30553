package destructive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmschema/migrate/internal/differ"
	"github.com/dmschema/migrate/internal/sqlschema"
)

type fakeCounter struct {
	rows    map[string]int64
	nonNull map[string]int64
}

func (f fakeCounter) CountRows(ctx context.Context, table string) (int64, error) {
	return f.rows[table], nil
}

func (f fakeCounter) CountNonNull(ctx context.Context, table, column string) (int64, error) {
	return f.nonNull[table+"."+column], nil
}

func TestClassifyDropTableEmptyIsSafe(t *testing.T) {
	steps := []differ.Step{{Kind: differ.KindDropTable, TableName: "widgets"}}
	report, err := Classify(context.Background(), steps, sqlschema.DialectPostgres, fakeCounter{})
	require.NoError(t, err)
	require.Empty(t, report.Warnings)
	require.Empty(t, report.Unexecutable)
	require.False(t, report.Blocked(false))
}

func TestClassifyDropTableNonEmptyWarns(t *testing.T) {
	steps := []differ.Step{{Kind: differ.KindDropTable, TableName: "widgets"}}
	counter := fakeCounter{rows: map[string]int64{"widgets": 5}}
	report, err := Classify(context.Background(), steps, sqlschema.DialectPostgres, counter)
	require.NoError(t, err)
	require.Len(t, report.Warnings, 1)
	require.Contains(t, report.Warnings[0].Message, "widgets")
	require.True(t, report.Blocked(false))
	require.False(t, report.Blocked(true))
}

func TestClassifyDropColumnNonEmptyWarns(t *testing.T) {
	steps := []differ.Step{{Kind: differ.KindDropColumn, TableName: "users", Column: sqlschema.Column{Name: "legacy"}}}
	counter := fakeCounter{nonNull: map[string]int64{"users.legacy": 3}}
	report, err := Classify(context.Background(), steps, sqlschema.DialectPostgres, counter)
	require.NoError(t, err)
	require.Len(t, report.Warnings, 1)
}

func TestClassifyAddRequiredColumnNoDefaultOnNonEmptyTableIsUnexecutable(t *testing.T) {
	steps := []differ.Step{{
		Kind:      differ.KindAddColumn,
		TableName: "users",
		Column: sqlschema.Column{
			Name: "tenant_id",
			Type: sqlschema.ColumnType{Family: sqlschema.FamilyInt, Arity: sqlschema.ArityRequired},
		},
	}}
	counter := fakeCounter{rows: map[string]int64{"users": 10}}
	report, err := Classify(context.Background(), steps, sqlschema.DialectPostgres, counter)
	require.NoError(t, err)
	require.Len(t, report.Unexecutable, 1)
	require.True(t, report.Blocked(true), "unexecutable blocks even with force")
}

func TestClassifyAddRequiredColumnWithDefaultIsSafe(t *testing.T) {
	steps := []differ.Step{{
		Kind:      differ.KindAddColumn,
		TableName: "users",
		Column: sqlschema.Column{
			Name:    "tenant_id",
			Type:    sqlschema.ColumnType{Family: sqlschema.FamilyInt, Arity: sqlschema.ArityRequired},
			Default: sqlschema.Default{Kind: sqlschema.DefaultLiteral, Literal: 0},
		},
	}}
	counter := fakeCounter{rows: map[string]int64{"users": 10}}
	report, err := Classify(context.Background(), steps, sqlschema.DialectPostgres, counter)
	require.NoError(t, err)
	require.Empty(t, report.Unexecutable)
}

func TestClassifyAddRequiredColumnWithDefaultWarnsOnMySQLNonEmptyTable(t *testing.T) {
	steps := []differ.Step{{
		Kind:      differ.KindAddColumn,
		TableName: "Test",
		Column: sqlschema.Column{
			Name:    "age",
			Type:    sqlschema.ColumnType{Family: sqlschema.FamilyInt, Arity: sqlschema.ArityRequired},
			Default: sqlschema.Default{Kind: sqlschema.DefaultLiteral, Literal: 30},
		},
	}}
	counter := fakeCounter{rows: map[string]int64{"Test": 2}}

	report, err := Classify(context.Background(), steps, sqlschema.DialectMySQL, counter)
	require.NoError(t, err)
	require.Len(t, report.Warnings, 1, "MySQL restates every row when adding a required column with a default")

	report, err = Classify(context.Background(), steps, sqlschema.DialectPostgres, counter)
	require.NoError(t, err)
	require.Empty(t, report.Warnings, "Postgres adds the column without touching existing storage")
}

func TestClassifyAlterColumnFamilyChangeWarnsOnNonEmptyTable(t *testing.T) {
	steps := []differ.Step{{
		Kind:      differ.KindAlterColumn,
		TableName: "users",
		OldColumn: sqlschema.Column{Name: "age", Type: sqlschema.ColumnType{Family: sqlschema.FamilyString}},
		NewColumn: sqlschema.Column{Name: "age", Type: sqlschema.ColumnType{Family: sqlschema.FamilyInt}},
	}}
	counter := fakeCounter{rows: map[string]int64{"users": 1}}
	report, err := Classify(context.Background(), steps, sqlschema.DialectPostgres, counter)
	require.NoError(t, err)
	require.Len(t, report.Warnings, 1)
}

func TestClassifyAlterColumnMySQLAlwaysRestatesOnNonEmptyTable(t *testing.T) {
	steps := []differ.Step{{
		Kind:      differ.KindAlterColumn,
		TableName: "users",
		OldColumn: sqlschema.Column{Name: "nickname", Type: sqlschema.ColumnType{Family: sqlschema.FamilyString, Arity: sqlschema.ArityNullable}},
		NewColumn: sqlschema.Column{Name: "nickname", Type: sqlschema.ColumnType{Family: sqlschema.FamilyString, Arity: sqlschema.ArityNullable},
			Default: sqlschema.Default{Kind: sqlschema.DefaultLiteral, Literal: "anon"}},
	}}
	counter := fakeCounter{rows: map[string]int64{"users": 1}}

	report, err := Classify(context.Background(), steps, sqlschema.DialectMySQL, counter)
	require.NoError(t, err)
	require.Len(t, report.Warnings, 1, "MySQL MODIFY restates the whole column even for a default-only change")

	report, err = Classify(context.Background(), steps, sqlschema.DialectPostgres, counter)
	require.NoError(t, err)
	require.Empty(t, report.Warnings, "Postgres can change just the default in place, no data at risk")
}

func TestClassifyAlterColumnTighteningArityOnEmptyTableIsSafe(t *testing.T) {
	steps := []differ.Step{{
		Kind:      differ.KindAlterColumn,
		TableName: "users",
		OldColumn: sqlschema.Column{Name: "email", Type: sqlschema.ColumnType{Family: sqlschema.FamilyString, Arity: sqlschema.ArityNullable}},
		NewColumn: sqlschema.Column{Name: "email", Type: sqlschema.ColumnType{Family: sqlschema.FamilyString, Arity: sqlschema.ArityRequired}},
	}}
	report, err := Classify(context.Background(), steps, sqlschema.DialectPostgres, fakeCounter{})
	require.NoError(t, err)
	require.Empty(t, report.Warnings)
}
