package engine

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/dmschema/migrate/internal/datamodel"
	"github.com/dmschema/migrate/internal/differ"
	"github.com/dmschema/migrate/internal/sqlschema"
)

func TestApplyAssumedFoldsCreateTable(t *testing.T) {
	step := differ.Step{Kind: differ.KindCreateTable, Table: sqlschema.Table{Name: "widgets"}}
	out, err := applyAssumed(sqlschema.Schema{}, []differ.Step{step})
	require.NoError(t, err)
	require.Len(t, out.Tables, 1)
	require.Equal(t, "widgets", out.Tables[0].Name)
}

func TestApplyAssumedFoldsAddThenDropColumn(t *testing.T) {
	base := sqlschema.Schema{Tables: []sqlschema.Table{{Name: "users"}}}
	steps := []differ.Step{
		{Kind: differ.KindAddColumn, TableName: "users", Column: sqlschema.Column{Name: "nickname"}},
		{Kind: differ.KindDropColumn, TableName: "users", Column: sqlschema.Column{Name: "nickname"}},
	}
	out, err := applyAssumed(base, steps)
	require.NoError(t, err)
	require.Empty(t, out.Tables[0].Columns, "add then drop of the same column should leave none behind")
}

func TestApplyAssumedFoldsAlterEnum(t *testing.T) {
	base := sqlschema.Schema{Enums: []sqlschema.Enum{{Name: "status", Values: []string{"active"}}}}
	step := differ.Step{Kind: differ.KindAlterEnum, EnumName: "status", FinalValues: []string{"active", "archived"}}
	out, err := applyAssumed(base, []differ.Step{step})
	require.NoError(t, err)
	require.Equal(t, []string{"active", "archived"}, out.Enums[0].Values)
}

func TestApplyAssumedFoldsDropTable(t *testing.T) {
	base := sqlschema.Schema{Tables: []sqlschema.Table{{Name: "widgets"}, {Name: "gadgets"}}}
	step := differ.Step{Kind: differ.KindDropTable, TableName: "widgets"}
	out, err := applyAssumed(base, []differ.Step{step})
	require.NoError(t, err)
	require.Len(t, out.Tables, 1)
	require.Equal(t, "gadgets", out.Tables[0].Name)
}

func newTestEngine(t *testing.T) (*Engine, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, sqlschema.DialectSQLite), db
}

func userDatamodel() datamodel.Datamodel {
	return datamodel.Datamodel{Models: []datamodel.Model{{
		Name: "User",
		Fields: []datamodel.Field{
			{Name: "id", Arity: datamodel.ArityRequired, IsID: true,
				Type: datamodel.FieldType{Kind: datamodel.FieldTypeBase, Scalar: datamodel.ScalarInt}},
			{Name: "email", Arity: datamodel.ArityRequired,
				Type: datamodel.FieldType{Kind: datamodel.FieldTypeBase, Scalar: datamodel.ScalarString}},
		},
	}}}
}

func TestApplyMigrationCreatesTableAndLogsRevision(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	result, err := eng.ApplyMigration(ctx, "initial", userDatamodel(), false)
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.Equal(t, int64(1), result.Revision)

	row := db.QueryRowContext(ctx, `SELECT count(*) FROM User`)
	var count int
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 0, count)
}

func TestApplyMigrationIsIdempotentOnNoChanges(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	dm := userDatamodel()

	_, err := eng.ApplyMigration(ctx, "initial", dm, false)
	require.NoError(t, err)

	result, err := eng.ApplyMigration(ctx, "reapply", dm, false)
	require.NoError(t, err)
	require.False(t, result.Applied, "an empty diff still logs a record but applies nothing")

	records, err := eng.ListMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestApplyMigrationBlocksDestructiveDropWithoutForce(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.ApplyMigration(ctx, "initial", userDatamodel(), false)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO User (id, email) VALUES (1, 'a@example.com')`)
	require.NoError(t, err)

	_, err = eng.ApplyMigration(ctx, "drop-user", datamodel.Datamodel{}, false)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrDestructiveChangeBlocked)
}

func TestApplyMigrationForceOverridesDestructiveWarning(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.ApplyMigration(ctx, "initial", userDatamodel(), false)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO User (id, email) VALUES (1, 'a@example.com')`)
	require.NoError(t, err)

	result, err := eng.ApplyMigration(ctx, "drop-user", datamodel.Datamodel{}, true)
	require.NoError(t, err)
	require.True(t, result.Applied)
}

func TestResetDropsTablesAndClearsLog(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.ApplyMigration(ctx, "initial", userDatamodel(), false)
	require.NoError(t, err)

	require.NoError(t, eng.Reset(ctx))

	_, err = db.ExecContext(ctx, `SELECT 1 FROM User`)
	require.Error(t, err, "User table should no longer exist")

	records, err := eng.ListMigrations(ctx)
	require.NoError(t, err)
	require.Empty(t, records)
}
