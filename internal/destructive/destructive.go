// Package destructive classifies migration steps by data-loss risk: Warn
// (requires the caller's force flag), Unexecutable (blocks even with
// force), or Safe (no warning at all). Classification for a handful of step
// kinds depends on live row counts, queried lazily through RowCounter so a
// plan with no destructive candidates never touches the database.
package destructive

import (
	"context"
	"fmt"

	"github.com/dmschema/migrate/internal/differ"
	"github.com/dmschema/migrate/internal/sqlschema"
)

// RowCounter counts rows in, or non-null values of a column in, a live table.
// Implementations live in internal/engine, backed by the driver's SQL
// connection; internal/destructive never opens a connection itself.
type RowCounter interface {
	CountRows(ctx context.Context, table string) (int64, error)
	CountNonNull(ctx context.Context, table, column string) (int64, error)
}

// Warning is a step whose execution may destroy data; it may still be
// executed by setting force=true on the apply request.
type Warning struct {
	Step    differ.Step
	Message string
}

// Unexecutable is a step that cannot be executed at all, force or not.
type Unexecutable struct {
	Step    differ.Step
	Message string
}

// Report is the outcome of classifying a full step list.
type Report struct {
	Warnings      []Warning
	Unexecutable  []Unexecutable
}

// Blocked reports whether the plan cannot proceed without the caller setting
// force=true (Warnings present) or cannot proceed at all (Unexecutable present).
func (r Report) Blocked(force bool) bool {
	if len(r.Unexecutable) > 0 {
		return true
	}
	return !force && len(r.Warnings) > 0
}

// Classify runs the destructive-change rules of the design document's
// classifier over an ordered step list for the given dialect.
func Classify(ctx context.Context, steps []differ.Step, dialect sqlschema.Dialect, counter RowCounter) (Report, error) {
	var report Report
	for _, step := range steps {
		w, u, err := classifyStep(ctx, step, dialect, counter)
		if err != nil {
			return Report{}, fmt.Errorf("step %s on %q: %w", step.Kind, step.TableName, err)
		}
		if u != nil {
			report.Unexecutable = append(report.Unexecutable, *u)
		}
		if w != nil {
			report.Warnings = append(report.Warnings, *w)
		}
	}
	return report, nil
}

func classifyStep(ctx context.Context, step differ.Step, dialect sqlschema.Dialect, counter RowCounter) (*Warning, *Unexecutable, error) {
	switch step.Kind {
	case differ.KindDropTable:
		n, err := counter.CountRows(ctx, step.TableName)
		if err != nil {
			return nil, nil, err
		}
		if n > 0 {
			return &Warning{Step: step, Message: fmt.Sprintf(
				"You are about to drop the table `%s`, which is not empty (%d rows).", step.TableName, n)}, nil, nil
		}
		return nil, nil, nil

	case differ.KindDropColumn:
		n, err := counter.CountNonNull(ctx, step.TableName, step.Column.Name)
		if err != nil {
			return nil, nil, err
		}
		if n > 0 {
			return &Warning{Step: step, Message: fmt.Sprintf(
				"You are about to drop the column `%s` on the `%s` table, which still contains %d non-null values.",
				step.Column.Name, step.TableName, n)}, nil, nil
		}
		return nil, nil, nil

	case differ.KindAddColumn:
		if step.Column.Type.Arity == sqlschema.ArityRequired && step.Column.Default.Kind == sqlschema.DefaultNone && !step.Column.AutoIncrement {
			n, err := counter.CountRows(ctx, step.TableName)
			if err != nil {
				return nil, nil, err
			}
			if n > 0 {
				return nil, &Unexecutable{Step: step, Message: fmt.Sprintf(
					"Adding the required column `%s` without a default to a non-empty table (`%s`, %d rows) is not possible.",
					step.Column.Name, step.TableName, n)}, nil
			}
			return nil, nil, nil
		}

		// MySQL has no bare ADD COLUMN that leaves other rows alone when the
		// new column is Required: the driver backfills every existing row
		// from the default as part of the same MODIFY-style rewrite it uses
		// for AlterColumn, so a non-empty table warrants the same warning.
		if dialect == sqlschema.DialectMySQL && step.Column.Type.Arity == sqlschema.ArityRequired {
			n, err := counter.CountRows(ctx, step.TableName)
			if err != nil {
				return nil, nil, err
			}
			if n > 0 {
				return &Warning{Step: step, Message: fmt.Sprintf(
					"Adding the required column `%s` to the `%s` table, which is not empty (%d rows), rewrites every existing row with its default on MySQL.",
					step.Column.Name, step.TableName, n)}, nil, nil
			}
		}
		return nil, nil, nil

	case differ.KindAlterColumn:
		return classifyAlterColumn(ctx, step, dialect, counter)

	default:
		return nil, nil, nil
	}
}

// classifyAlterColumn implements §4.4's AlterColumn rules: a family change,
// or an arity tightening from Nullable to Required, warns on a non-empty
// table; on MySQL, any in-place alteration is rendered via MODIFY (which
// restates the whole column) and therefore warns regardless of what changed.
func classifyAlterColumn(ctx context.Context, step differ.Step, dialect sqlschema.Dialect, counter RowCounter) (*Warning, *Unexecutable, error) {
	typeChanged := step.OldColumn.Type.Family != step.NewColumn.Type.Family
	tightened := step.OldColumn.Type.Arity == sqlschema.ArityNullable && step.NewColumn.Type.Arity == sqlschema.ArityRequired
	mysqlRestate := dialect == sqlschema.DialectMySQL

	if !typeChanged && !tightened && !mysqlRestate {
		return nil, nil, nil
	}

	n, err := counter.CountRows(ctx, step.TableName)
	if err != nil {
		return nil, nil, err
	}
	if n == 0 {
		return nil, nil, nil
	}
	return &Warning{Step: step, Message: fmt.Sprintf(
		"You are about to alter the column `%s` on the `%s` table, which still contains %d values. The data in that column may be lost.",
		step.NewColumn.Name, step.TableName, n)}, nil, nil
}
