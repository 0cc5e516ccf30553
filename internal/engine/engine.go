// Package engine wires the pure core (sqlschema, datamodel, calculator,
// differ, destructive, ddl) to a live database connection, implementing the
// apply-pipeline state machine: Idle -> Inferring -> Checking ->
// (Blocked | Ready) -> Applying -> (Applied | Failed).
package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dmschema/migrate/internal/calculator"
	"github.com/dmschema/migrate/internal/datamodel"
	"github.com/dmschema/migrate/internal/ddl"
	"github.com/dmschema/migrate/internal/destructive"
	"github.com/dmschema/migrate/internal/differ"
	"github.com/dmschema/migrate/internal/introspect"
	"github.com/dmschema/migrate/internal/logging"
	"github.com/dmschema/migrate/internal/sqlschema"
)

// Engine ties the pure core to one live database connection plus its
// migration log. It holds no in-memory state across calls beyond the
// mutex/advisory lock owned by its Locker — the schema state of record is
// always read fresh from the database.
type Engine struct {
	db      *sql.DB
	dialect sqlschema.Dialect
	lock    Locker
	log     *Log
	logger  *logrus.Entry
}

// New builds an Engine over an already-open connection. Callers typically
// obtain db/dialect from internal/driver.Open.
func New(db *sql.DB, dialect sqlschema.Dialect) *Engine {
	return &Engine{
		db:      db,
		dialect: dialect,
		lock:    NewLocker(dialect, db),
		log:     NewLog(db, dialect),
		logger:  logging.WithField("dialect", dialect.String()),
	}
}

// InferResult is the outcome of InferMigrationSteps: the ordered steps
// needed to bring the live schema to the shape dm describes, plus the
// destructive-change report computed against it.
type InferResult struct {
	Steps   []differ.Step
	Report  destructive.Report
	Current sqlschema.Schema
	Target  sqlschema.Schema
}

// InferMigrationSteps computes the diff from the live schema to dm's
// calculated shape. assumeApplied folds a synthetic set of already-applied
// steps onto the live schema before diffing, for callers that ran DDL
// out-of-band and want the differ to treat it as already done.
func (e *Engine) InferMigrationSteps(ctx context.Context, dm datamodel.Datamodel, assumeApplied []differ.Step) (*InferResult, error) {
	if err := dm.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	current, err := e.describe(ctx)
	if err != nil {
		return nil, err
	}
	if len(assumeApplied) > 0 {
		current, err = applyAssumed(current, assumeApplied)
		if err != nil {
			return nil, fmt.Errorf("%w: folding assumed steps: %v", ErrDiff, err)
		}
	}

	target, err := calculator.Calculate(dm, e.dialect)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	steps, err := differ.Diff(current, target, e.dialect)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiff, err)
	}

	counter, err := NewSQLRowCounter(e.db, e.dialect)
	if err != nil {
		return nil, err
	}
	report, err := destructive.Classify(ctx, steps, e.dialect, counter)
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"steps":        len(steps),
		"warnings":     len(report.Warnings),
		"unexecutable": len(report.Unexecutable),
	}).Debug("inferred migration steps")

	return &InferResult{Steps: steps, Report: report, Current: current, Target: target}, nil
}

// applyAssumed overlays a set of already-applied steps onto a schema,
// purely in memory, by re-rendering them through the differ's own inverse:
// since Step values already carry their full before/after shape, folding
// amounts to replaying each step's resulting state onto a working copy.
func applyAssumed(base sqlschema.Schema, steps []differ.Step) (sqlschema.Schema, error) {
	out := base
	for _, step := range steps {
		switch step.Kind {
		case differ.KindCreateTable:
			out.Tables = append(out.Tables, step.Table)
		case differ.KindDropTable:
			out.Tables = removeTable(out.Tables, step.TableName)
		case differ.KindAddColumn:
			out.Tables = mutateTable(out.Tables, step.TableName, func(t *sqlschema.Table) {
				t.Columns = append(t.Columns, step.Column)
			})
		case differ.KindDropColumn:
			out.Tables = mutateTable(out.Tables, step.TableName, func(t *sqlschema.Table) {
				t.Columns = removeColumn(t.Columns, step.Column.Name)
			})
		case differ.KindAlterColumn:
			out.Tables = mutateTable(out.Tables, step.TableName, func(t *sqlschema.Table) {
				for i, c := range t.Columns {
					if c.Name == step.NewColumn.Name {
						t.Columns[i] = step.NewColumn
					}
				}
			})
		case differ.KindAddForeignKey:
			out.Tables = mutateTable(out.Tables, step.TableName, func(t *sqlschema.Table) {
				t.ForeignKeys = append(t.ForeignKeys, step.ForeignKey)
			})
		case differ.KindDropForeignKey:
			out.Tables = mutateTable(out.Tables, step.TableName, func(t *sqlschema.Table) {
				t.ForeignKeys = removeForeignKey(t.ForeignKeys, step.ForeignKey)
			})
		case differ.KindCreateIndex:
			out.Tables = mutateTable(out.Tables, step.TableName, func(t *sqlschema.Table) {
				t.Indexes = append(t.Indexes, step.Index)
			})
		case differ.KindDropIndex:
			out.Tables = mutateTable(out.Tables, step.TableName, func(t *sqlschema.Table) {
				t.Indexes = removeIndex(t.Indexes, step.Index.Name)
			})
		case differ.KindCreateEnum:
			out.Enums = append(out.Enums, sqlschema.Enum{Name: step.EnumName, Values: step.EnumValues})
		case differ.KindDropEnum:
			out.Enums = removeEnum(out.Enums, step.EnumName)
		case differ.KindAlterEnum:
			for i, en := range out.Enums {
				if en.Name == step.EnumName {
					out.Enums[i].Values = step.FinalValues
				}
			}
		}
	}
	return out, nil
}

func removeTable(tables []sqlschema.Table, name string) []sqlschema.Table {
	out := make([]sqlschema.Table, 0, len(tables))
	for _, t := range tables {
		if t.Name != name {
			out = append(out, t)
		}
	}
	return out
}

func mutateTable(tables []sqlschema.Table, name string, fn func(*sqlschema.Table)) []sqlschema.Table {
	for i := range tables {
		if tables[i].Name == name {
			fn(&tables[i])
		}
	}
	return tables
}

func removeColumn(cols []sqlschema.Column, name string) []sqlschema.Column {
	out := make([]sqlschema.Column, 0, len(cols))
	for _, c := range cols {
		if c.Name != name {
			out = append(out, c)
		}
	}
	return out
}

func removeIndex(idxs []sqlschema.Index, name string) []sqlschema.Index {
	out := make([]sqlschema.Index, 0, len(idxs))
	for _, ix := range idxs {
		if ix.Name != name {
			out = append(out, ix)
		}
	}
	return out
}

func removeEnum(enums []sqlschema.Enum, name string) []sqlschema.Enum {
	out := make([]sqlschema.Enum, 0, len(enums))
	for _, e := range enums {
		if e.Name != name {
			out = append(out, e)
		}
	}
	return out
}

func removeForeignKey(fks []sqlschema.ForeignKey, target sqlschema.ForeignKey) []sqlschema.ForeignKey {
	out := make([]sqlschema.ForeignKey, 0, len(fks))
	for _, fk := range fks {
		if fk.Name != "" && target.Name != "" && fk.Name == target.Name {
			continue
		}
		if sameStringSlice(fk.Columns, target.Columns) && fk.ReferencedTable == target.ReferencedTable {
			continue
		}
		out = append(out, fk)
	}
	return out
}

func sameStringSlice(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (e *Engine) describe(ctx context.Context) (sqlschema.Schema, error) {
	ins, err := introspect.New(e.dialect, e.db)
	if err != nil {
		return sqlschema.Schema{}, &ConnectionError{Target: e.dialect.String(), Err: err}
	}
	schema, err := ins.Introspect(ctx)
	if err != nil {
		return sqlschema.Schema{}, fmt.Errorf("%w: %v", ErrIntrospection, err)
	}
	return schema, nil
}

// ApplyResult is the outcome of a successful or blocked ApplyMigration call.
type ApplyResult struct {
	Revision int64
	Applied  bool // false when the diff was empty and nothing needed doing
	Report   destructive.Report
}

// ApplyMigration infers steps from dm, classifies them, and — unless
// blocked — renders and executes them inside the dialect's transactional
// envelope, recording the outcome in the `_migration` log. A force=false
// call that would be blocked returns ErrDestructiveChangeBlocked or
// ErrUnexecutableMigration wrapped with the report attached via Result.
func (e *Engine) ApplyMigration(ctx context.Context, name string, dm datamodel.Datamodel, force bool) (*ApplyResult, error) {
	unlock, err := e.lock.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock(ctx)

	if err := e.log.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	infer, err := e.InferMigrationSteps(ctx, dm, nil)
	if err != nil {
		return nil, err
	}

	if len(infer.Steps) == 0 {
		// Idempotent re-apply: still logged, but nothing to render or execute.
		revision, err := e.log.Start(ctx, name, dm, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrApply, err)
		}
		if err := e.log.Finish(ctx, revision, nil); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrApply, err)
		}
		return &ApplyResult{Revision: revision, Applied: false, Report: infer.Report}, nil
	}

	if infer.Report.Blocked(force) {
		if len(infer.Report.Unexecutable) > 0 {
			return &ApplyResult{Report: infer.Report}, fmt.Errorf("%w: %s", ErrUnexecutableMigration, infer.Report.Unexecutable[0].Message)
		}
		return &ApplyResult{Report: infer.Report}, fmt.Errorf("%w: %s", ErrDestructiveChangeBlocked, infer.Report.Warnings[0].Message)
	}

	revision, err := e.log.Start(ctx, name, dm, infer.Steps)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrApply, err)
	}

	applyErr := e.execute(ctx, infer.Steps, infer.Current, infer.Target)
	if finishErr := e.log.Finish(ctx, revision, applyErr); finishErr != nil {
		e.logger.WithError(finishErr).Error("failed to record migration outcome")
	}
	if applyErr != nil {
		return &ApplyResult{Revision: revision, Report: infer.Report}, applyErr
	}

	return &ApplyResult{Revision: revision, Applied: true, Report: infer.Report}, nil
}

// execute renders steps and runs them, wrapped in a transaction when the
// dialect supports transactional DDL; dialects that don't (MySQL implicitly
// commits DDL) run each statement as its own unit of work instead.
func (e *Engine) execute(ctx context.Context, steps []differ.Step, prev, next sqlschema.Schema) error {
	renderer, err := ddl.New(e.dialect, prev, next)
	if err != nil {
		return err
	}
	stmts, err := ddl.For(renderer, steps)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrApply, err)
	}

	if !e.dialect.SupportsTransactionalDDL() {
		for _, stmt := range stmts {
			if _, err := e.db.ExecContext(ctx, stmt); err != nil {
				return &ApplyError{Err: err}
			}
		}
		return nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return &ConnectionError{Target: "transaction", Err: err}
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return &ApplyError{Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &ApplyError{Err: err}
	}
	return nil
}

// UnapplyMigration reverses a previously applied migration by diffing in
// the opposite direction (live schema back to the datamodel it replaced)
// and executing the resulting steps the same way ApplyMigration does.
func (e *Engine) UnapplyMigration(ctx context.Context, previous datamodel.Datamodel, force bool) (*ApplyResult, error) {
	return e.ApplyMigration(ctx, "unapply", previous, force)
}

// ListMigrations returns the `_migration` log, most recent first.
func (e *Engine) ListMigrations(ctx context.Context) ([]MigrationRecord, error) {
	if err := e.log.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return e.log.List(ctx)
}

// Reset drops every table the live schema reports and clears the migration
// log, leaving the database as if no migration had ever run.
func (e *Engine) Reset(ctx context.Context) error {
	unlock, err := e.lock.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock(ctx)

	current, err := e.describe(ctx)
	if err != nil {
		return err
	}

	renderer, err := ddl.New(e.dialect, current, sqlschema.Schema{Dialect: e.dialect})
	if err != nil {
		return err
	}
	steps, err := differ.Diff(current, sqlschema.Schema{Dialect: e.dialect}, e.dialect)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDiff, err)
	}
	stmts, err := ddl.For(renderer, steps)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrApply, err)
	}
	for _, stmt := range stmts {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return &ApplyError{Err: err}
		}
	}

	if err := e.log.EnsureTable(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return e.log.Reset(ctx)
}
