package engine

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/dmschema/migrate/internal/datamodel"
	"github.com/dmschema/migrate/internal/sqlschema"
)

func TestRebindLeavesNonPostgresQueriesAlone(t *testing.T) {
	l := &Log{dialect: sqlschema.DialectSQLite}
	query := `INSERT INTO _migration (id, name) VALUES (?, ?)`
	require.Equal(t, query, l.rebind(query))
}

func TestRebindNumbersPostgresPlaceholders(t *testing.T) {
	l := &Log{dialect: sqlschema.DialectPostgres}
	query := `UPDATE _migration SET status = ?, applied = ? WHERE revision = ?`
	require.Equal(t, `UPDATE _migration SET status = $1, applied = $2 WHERE revision = $3`, l.rebind(query))
}

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLogStartAndFinishRoundTrip(t *testing.T) {
	db := openMemoryDB(t)
	l := NewLog(db, sqlschema.DialectSQLite)
	ctx := context.Background()

	require.NoError(t, l.EnsureTable(ctx))

	dm := datamodel.Datamodel{Models: []datamodel.Model{{Name: "User"}}}
	revision, err := l.Start(ctx, "initial", dm, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), revision)

	require.NoError(t, l.Finish(ctx, revision, nil))

	records, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "initial", records[0].Name)
	require.Equal(t, StatusSuccess, records[0].Status)
	require.True(t, records[0].Applied)
	require.NotEmpty(t, records[0].ID, "every record carries its correlation id")
	require.True(t, records[0].FinishedAt.Valid)
}

func TestLogFinishRecordsFailure(t *testing.T) {
	db := openMemoryDB(t)
	l := NewLog(db, sqlschema.DialectSQLite)
	ctx := context.Background()
	require.NoError(t, l.EnsureTable(ctx))

	dm := datamodel.Datamodel{}
	revision, err := l.Start(ctx, "broken", dm, nil)
	require.NoError(t, err)

	require.NoError(t, l.Finish(ctx, revision, sql.ErrNoRows))

	records, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, StatusRollbackFailed, records[0].Status)
	require.False(t, records[0].Applied)
	require.Contains(t, records[0].Errors, sql.ErrNoRows.Error())
}

func TestLogResetClearsRecords(t *testing.T) {
	db := openMemoryDB(t)
	l := NewLog(db, sqlschema.DialectSQLite)
	ctx := context.Background()
	require.NoError(t, l.EnsureTable(ctx))

	_, err := l.Start(ctx, "first", datamodel.Datamodel{}, nil)
	require.NoError(t, err)

	require.NoError(t, l.Reset(ctx))

	records, err := l.List(ctx)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestLogListOrdersMostRecentFirst(t *testing.T) {
	db := openMemoryDB(t)
	l := NewLog(db, sqlschema.DialectSQLite)
	ctx := context.Background()
	require.NoError(t, l.EnsureTable(ctx))

	_, err := l.Start(ctx, "first", datamodel.Datamodel{}, nil)
	require.NoError(t, err)
	_, err = l.Start(ctx, "second", datamodel.Datamodel{}, nil)
	require.NoError(t, err)

	records, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "second", records[0].Name)
	require.Equal(t, "first", records[1].Name)
}
