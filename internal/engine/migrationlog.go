package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmschema/migrate/internal/datamodel"
	"github.com/dmschema/migrate/internal/differ"
	"github.com/dmschema/migrate/internal/sqlschema"
)

// Status is the lifecycle state of one persisted migration record.
type Status string

const (
	StatusPending         Status = "Pending"
	StatusSuccess         Status = "Success"
	StatusRollbackInProgress Status = "RollbackInProgress"
	StatusRollbackComplete  Status = "RollbackComplete"
	StatusRollbackFailed   Status = "RollbackFailed"
)

// MigrationRecord is one row of the `_Migration` log: an append-only record
// of what was asked for, what was actually run, and how it went. It is
// deliberately simple — the interesting work already happened in the
// differ and destructive checker before this ever gets persisted.
type MigrationRecord struct {
	Revision int64
	// ID is a UUID assigned at Start, independent of the revision counter:
	// it's the stable identifier to quote back to a user or log line even
	// if the `_migration` table is ever re-keyed or merged across databases.
	ID                string
	Name              string
	Datamodel         string // JSON of the datamodel this migration applies; the datamodel before it is not recorded
	Status            Status
	Applied           bool
	RolledBack        bool
	DatamodelSteps    json.RawMessage
	DatabaseMigration json.RawMessage // the differ.Step list, JSON-encoded
	Errors            []string
	StartedAt         time.Time
	FinishedAt        sql.NullTime
}

// migrationTableDDL is rendered per dialect: only the revision column's
// auto-generation strategy varies (Postgres needs an identity sequence and
// RETURNING, MySQL needs AUTO_INCREMENT, SQLite's INTEGER PRIMARY KEY is
// already a rowid alias), everything else is plain text/boolean.
func migrationTableDDL(dialect sqlschema.Dialect) string {
	var revision, body string
	switch dialect {
	case sqlschema.DialectPostgres:
		revision = "revision INTEGER GENERATED ALWAYS AS IDENTITY PRIMARY KEY"
	case sqlschema.DialectMySQL:
		revision = "revision INTEGER PRIMARY KEY AUTO_INCREMENT"
	default:
		revision = "revision INTEGER PRIMARY KEY"
	}
	body = `,
	id TEXT NOT NULL,
	name TEXT NOT NULL,
	datamodel TEXT NOT NULL,
	status TEXT NOT NULL,
	applied BOOLEAN NOT NULL DEFAULT false,
	rolled_back BOOLEAN NOT NULL DEFAULT false,
	datamodel_steps TEXT,
	database_migration TEXT,
	errors TEXT,
	started_at TEXT NOT NULL,
	finished_at TEXT
)`
	return "CREATE TABLE IF NOT EXISTS _migration (\n\t" + revision + body
}

// Log reads and appends to the `_Migration` table.
type Log struct {
	db      *sql.DB
	dialect sqlschema.Dialect
}

func NewLog(db *sql.DB, dialect sqlschema.Dialect) *Log { return &Log{db: db, dialect: dialect} }

// rebind rewrites a "?"-placeholder query into the dialect's own
// placeholder syntax; only Postgres differs ($1, $2, ...).
func (l *Log) rebind(query string) string {
	if l.dialect != sqlschema.DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (l *Log) EnsureTable(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, migrationTableDDL(l.dialect))
	return err
}

// Start inserts a Pending record and returns its assigned revision. Postgres
// has no LastInsertId() support (lib/pq doesn't implement it, and an
// IDENTITY column isn't reported back through sql.Result anyway), so it
// asks for the revision via RETURNING instead of ExecContext.
func (l *Log) Start(ctx context.Context, name string, dm datamodel.Datamodel, steps []differ.Step) (int64, error) {
	dmBytes, err := json.Marshal(dm)
	if err != nil {
		return 0, fmt.Errorf("encoding datamodel: %w", err)
	}
	stepsBytes, err := json.Marshal(steps)
	if err != nil {
		return 0, fmt.Errorf("encoding steps: %w", err)
	}
	query := `INSERT INTO _migration (id, name, datamodel, status, applied, rolled_back, database_migration, started_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{uuid.NewString(), name, string(dmBytes), StatusPending, false, false, string(stepsBytes), time.Now().UTC().Format(time.RFC3339Nano)}

	if l.dialect == sqlschema.DialectPostgres {
		var revision int64
		err := l.db.QueryRowContext(ctx, l.rebind(query)+" RETURNING revision", args...).Scan(&revision)
		if err != nil {
			return 0, fmt.Errorf("inserting migration record: %w", err)
		}
		return revision, nil
	}

	res, err := l.db.ExecContext(ctx, l.rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("inserting migration record: %w", err)
	}
	return res.LastInsertId()
}

// Finish marks a migration record Success or records its errors.
func (l *Log) Finish(ctx context.Context, revision int64, applyErr error) error {
	status := StatusSuccess
	var errs []string
	if applyErr != nil {
		status = StatusRollbackFailed
		errs = []string{applyErr.Error()}
	}
	errBytes, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx,
		l.rebind(`UPDATE _migration SET status = ?, applied = ?, errors = ?, finished_at = ? WHERE revision = ?`),
		status, applyErr == nil, string(errBytes), time.Now().UTC().Format(time.RFC3339Nano), revision)
	return err
}

// List returns every migration record, most recent first.
func (l *Log) List(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT revision, id, name, datamodel, status, applied, rolled_back, datamodel_steps, database_migration, errors, started_at, finished_at FROM _migration ORDER BY revision DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}
	defer rows.Close()

	var out []MigrationRecord
	for rows.Next() {
		var (
			rec            MigrationRecord
			dmSteps, dbMig sql.NullString
			errsJSON       sql.NullString
			startedAt      string
			finishedAt     sql.NullString
		)
		if err := rows.Scan(&rec.Revision, &rec.ID, &rec.Name, &rec.Datamodel, &rec.Status, &rec.Applied, &rec.RolledBack,
			&dmSteps, &dbMig, &errsJSON, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning migration record: %w", err)
		}
		if dmSteps.Valid {
			rec.DatamodelSteps = json.RawMessage(dmSteps.String)
		}
		if dbMig.Valid {
			rec.DatabaseMigration = json.RawMessage(dbMig.String)
		}
		if errsJSON.Valid {
			_ = json.Unmarshal([]byte(errsJSON.String), &rec.Errors)
		}
		rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if finishedAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, finishedAt.String); err == nil {
				rec.FinishedAt = sql.NullTime{Time: t, Valid: true}
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Reset truncates the migration log. Used by the reset() operation before
// it drops every user table.
func (l *Log) Reset(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM _migration`)
	return err
}
