// Package ddl renders ordered differ.Step values into dialect-specific SQL.
// Three implementations (postgres, mysql, sqlite) share the same step
// vocabulary; only physical rendering differs, following a capability-set
// design rather than a class hierarchy: each dialect supplies identifier
// quoting, column-type rendering, default rendering, and step rendering.
package ddl

import (
	"fmt"

	"github.com/dmschema/migrate/internal/differ"
	"github.com/dmschema/migrate/internal/sqlschema"
)

// Renderer turns steps into the SQL statements that implement them on one
// dialect. A single Step can render to more than one statement (e.g.
// Postgres splits type/nullability/default changes across three ALTER
// COLUMN clauses; SQLite's column rebuild emits half a dozen statements).
type Renderer interface {
	Dialect() sqlschema.Dialect
	Quote(ident string) string
	RenderColumnType(t sqlschema.ColumnType) string
	RenderDefault(d sqlschema.Default, t sqlschema.ColumnType) string
	RenderColumnDefinition(c sqlschema.Column) string
	RenderStep(step differ.Step) ([]string, error)
}

// For renders every step against r in order, flattening each step's
// statement(s) into one sequence. It performs no transaction management —
// that is internal/engine's job, since transactional semantics differ by
// dialect (§4.6). SQLite groups steps by table internally (see RenderPlan)
// so a table needing a rebuild is rebuilt once rather than once per step.
func For(r Renderer, steps []differ.Step) ([]string, error) {
	if sr, ok := r.(*SQLite); ok {
		return sr.RenderPlan(steps)
	}
	var out []string
	for _, step := range steps {
		stmts, err := r.RenderStep(step)
		if err != nil {
			return nil, fmt.Errorf("rendering %s on %q: %w", step.Kind, step.TableName, err)
		}
		out = append(out, stmts...)
	}
	return out, nil
}

// New returns the Renderer that turns a diff from prev to next into SQL.
// prev/next give MySQL's inline-enum columns and SQLite's table rebuilds
// the full schema context a single step can't carry on its own.
func New(dialect sqlschema.Dialect, prev, next sqlschema.Schema) (Renderer, error) {
	switch dialect {
	case sqlschema.DialectPostgres:
		return NewPostgres(), nil
	case sqlschema.DialectMySQL:
		return NewMySQL(next.Enums), nil
	case sqlschema.DialectSQLite:
		return NewSQLite(prev, next), nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
}

func renderOnDelete(a sqlschema.OnDeleteAction) string {
	switch a {
	case sqlschema.OnDeleteCascade:
		return "CASCADE"
	case sqlschema.OnDeleteSetNull:
		return "SET NULL"
	case sqlschema.OnDeleteSetDefault:
		return "SET DEFAULT"
	case sqlschema.OnDeleteRestrict:
		return "RESTRICT"
	default:
		return "NO ACTION"
	}
}
