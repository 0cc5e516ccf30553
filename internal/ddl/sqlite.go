package ddl

import (
	"fmt"
	"strings"

	"github.com/dmschema/migrate/internal/differ"
	"github.com/dmschema/migrate/internal/sqlschema"
)

// SQLite renders steps against SQLite. SQLite cannot alter a column's type,
// nullability or default in place, and cannot add or drop a foreign key on
// an existing table at all. Both limitations are handled via the
// shadow-table rebuild SQLite's own documentation recommends: create a
// table with the target shape under a temporary name, copy the surviving
// columns across, drop the original, rename the shadow into place, then
// recreate its indexes (which don't follow a table across a from-scratch
// CREATE the way they follow an in-place RENAME).
type SQLite struct {
	prev, next sqlschema.Schema
}

func NewSQLite(prev, next sqlschema.Schema) *SQLite {
	return &SQLite{prev: prev, next: next}
}

func (s *SQLite) Dialect() sqlschema.Dialect { return sqlschema.DialectSQLite }

func (s *SQLite) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (s *SQLite) RenderColumnType(t sqlschema.ColumnType) string {
	if t.Native != "" {
		return t.Native
	}
	switch t.Family {
	case sqlschema.FamilyInt:
		return "INTEGER"
	case sqlschema.FamilyFloat:
		return "REAL"
	case sqlschema.FamilyBoolean:
		return "BOOLEAN"
	case sqlschema.FamilyDateTime:
		return "DATETIME"
	case sqlschema.FamilyBinary:
		return "BLOB"
	case sqlschema.FamilyJson:
		return "TEXT"
	default:
		return "TEXT"
	}
}

func (s *SQLite) RenderDefault(d sqlschema.Default, t sqlschema.ColumnType) string {
	switch d.Kind {
	case sqlschema.DefaultLiteral:
		return renderLiteral(d.Literal, t)
	case sqlschema.DefaultNow:
		return "CURRENT_TIMESTAMP"
	case sqlschema.DefaultExpression:
		return d.Expression
	default:
		return ""
	}
}

func (s *SQLite) RenderColumnDefinition(c sqlschema.Column) string {
	return s.renderColumnDefinition(c, nil)
}

// renderColumnDefinition additionally takes the owning table's primary key
// so a single-column integer id can use SQLite's native "INTEGER PRIMARY KEY
// AUTOINCREMENT" form instead of a separate table-level constraint.
func (s *SQLite) renderColumnDefinition(c sqlschema.Column, pk *sqlschema.PrimaryKey) string {
	var b strings.Builder
	b.WriteString(s.Quote(c.Name))
	b.WriteString(" ")
	b.WriteString(s.RenderColumnType(c.Type))

	isSoleIntegerPK := pk != nil && len(pk.Columns) == 1 && pk.Columns[0] == c.Name && c.Type.Family == sqlschema.FamilyInt
	if isSoleIntegerPK {
		b.WriteString(" PRIMARY KEY")
		if c.AutoIncrement {
			b.WriteString(" AUTOINCREMENT")
		}
	}
	if c.Type.Arity != sqlschema.ArityNullable {
		b.WriteString(" NOT NULL")
	}
	if c.Default.Kind != sqlschema.DefaultNone {
		b.WriteString(" DEFAULT ")
		b.WriteString(s.RenderDefault(c.Default, c.Type))
	}
	return b.String()
}

// RenderStep renders a single step in isolation. Callers driving a full plan
// should prefer RenderPlan, which groups every step touching a table that
// needs a rebuild (AlterColumn, AddForeignKey, DropForeignKey) into one
// rebuild sequence instead of rebuilding the same table once per step.
func (s *SQLite) RenderStep(step differ.Step) ([]string, error) {
	return s.RenderPlan([]differ.Step{step})
}

// RenderPlan is SQLite's entry point for a full ordered step list. It
// partitions steps by table, rebuilds every table touched by a step SQLite
// can't express as a direct ALTER, and renders the rest directly.
func (s *SQLite) RenderPlan(steps []differ.Step) ([]string, error) {
	needsRebuild := make(map[string]bool)
	for _, step := range steps {
		switch step.Kind {
		case differ.KindAlterColumn, differ.KindAddForeignKey, differ.KindDropForeignKey:
			needsRebuild[step.TableName] = true
		}
	}

	var out []string
	rebuilt := make(map[string]bool)
	for _, step := range steps {
		if step.TableName != "" && needsRebuild[step.TableName] {
			if rebuilt[step.TableName] {
				continue // already folded into one rebuild sequence below
			}
			rebuilt[step.TableName] = true
			stmts, err := s.rebuildTable(step.TableName)
			if err != nil {
				return nil, err
			}
			out = append(out, stmts...)
			continue
		}

		stmts, err := s.renderDirect(step)
		if err != nil {
			return nil, err
		}
		out = append(out, stmts...)
	}
	return out, nil
}

func (s *SQLite) renderDirect(step differ.Step) ([]string, error) {
	switch step.Kind {
	case differ.KindCreateTable:
		return []string{s.createTableSQL(step.Table)}, nil
	case differ.KindDropTable:
		return []string{fmt.Sprintf("DROP TABLE %s", s.Quote(step.TableName))}, nil
	case differ.KindAddColumn:
		if step.Column.Type.Arity == sqlschema.ArityRequired && step.Column.Default.Kind == sqlschema.DefaultNone {
			return nil, fmt.Errorf("cannot add required column %q without a default on SQLite", step.Column.Name)
		}
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", s.Quote(step.TableName), s.RenderColumnDefinition(step.Column))}, nil
	case differ.KindDropColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", s.Quote(step.TableName), s.Quote(step.Column.Name))}, nil
	case differ.KindCreateIndex:
		return []string{s.createIndexSQL(step.TableName, step.Index)}, nil
	case differ.KindDropIndex:
		return []string{fmt.Sprintf("DROP INDEX %s", s.Quote(step.Index.Name))}, nil
	case differ.KindCreateEnum, differ.KindDropEnum, differ.KindAlterEnum:
		// Enums are plain TEXT columns on SQLite; nothing to render.
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported step kind %s on sqlite (expected it to require a table rebuild)", step.Kind)
	}
}

func (s *SQLite) createTableSQL(t sqlschema.Table) string {
	var cols []string
	for _, c := range t.Columns {
		cols = append(cols, "  "+s.renderColumnDefinition(c, t.PrimaryKey))
	}
	if t.PrimaryKey != nil && !(len(t.PrimaryKey.Columns) == 1 && isSoleIntegerPKColumn(t, t.PrimaryKey.Columns[0])) {
		quoted := make([]string, len(t.PrimaryKey.Columns))
		for i, c := range t.PrimaryKey.Columns {
			quoted[i] = s.Quote(c)
		}
		cols = append(cols, fmt.Sprintf("  PRIMARY KEY (%s)", strings.Join(quoted, ", ")))
	}
	for _, fk := range t.ForeignKeys {
		cols = append(cols, "  "+s.foreignKeyClause(fk))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", s.Quote(t.Name), strings.Join(cols, ",\n"))
}

func isSoleIntegerPKColumn(t sqlschema.Table, name string) bool {
	col, ok := t.Column(name)
	return ok && col.Type.Family == sqlschema.FamilyInt
}

func (s *SQLite) foreignKeyClause(fk sqlschema.ForeignKey) string {
	localCols := make([]string, len(fk.Columns))
	for i, c := range fk.Columns {
		localCols[i] = s.Quote(c)
	}
	refCols := make([]string, len(fk.ReferencedColumns))
	for i, c := range fk.ReferencedColumns {
		refCols[i] = s.Quote(c)
	}
	return fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s",
		strings.Join(localCols, ", "), s.Quote(fk.ReferencedTable), strings.Join(refCols, ", "), renderOnDelete(fk.OnDelete))
}

func (s *SQLite) createIndexSQL(table string, idx sqlschema.Index) string {
	unique := ""
	if idx.Type == sqlschema.IndexUnique {
		unique = "UNIQUE "
	}
	quoted := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		quoted[i] = s.Quote(c)
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, s.Quote(idx.Name), s.Quote(table), strings.Join(quoted, ", "))
}

// rebuildTable implements the shadow-table procedure: build the table's
// final shape under a temporary name, copy over every column that survives
// under the same name, drop the original, rename the shadow into place, and
// recreate its indexes (a from-scratch CREATE TABLE carries no index
// definitions the way an in-place ALTER would).
func (s *SQLite) rebuildTable(name string) ([]string, error) {
	oldTable, ok := s.prev.Table(name)
	if !ok {
		return nil, fmt.Errorf("rebuild of %q: no prior definition to migrate data from", name)
	}
	newTable, ok := s.next.Table(name)
	if !ok {
		return nil, fmt.Errorf("rebuild of %q: no target definition to migrate to", name)
	}

	shadowName := "_migrate_new_" + name
	shadow := newTable
	shadow.Name = shadowName

	var stmts []string
	stmts = append(stmts, "PRAGMA foreign_keys=OFF")
	stmts = append(stmts, s.createTableSQL(shadow))

	common := commonColumnNames(oldTable, newTable)
	if len(common) > 0 {
		quoted := make([]string, len(common))
		for i, c := range common {
			quoted[i] = s.Quote(c)
		}
		colList := strings.Join(quoted, ", ")
		stmts = append(stmts, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", s.Quote(shadowName), colList, colList, s.Quote(name)))
	}

	stmts = append(stmts, fmt.Sprintf("DROP TABLE %s", s.Quote(name)))
	stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", s.Quote(shadowName), s.Quote(name)))
	for _, idx := range newTable.Indexes {
		stmts = append(stmts, s.createIndexSQL(name, idx))
	}
	stmts = append(stmts, "PRAGMA foreign_keys=ON")
	return stmts, nil
}

func commonColumnNames(old, next sqlschema.Table) []string {
	nextCols := make(map[string]bool, len(next.Columns))
	for _, c := range next.Columns {
		nextCols[c.Name] = true
	}
	var common []string
	for _, c := range old.Columns {
		if nextCols[c.Name] {
			common = append(common, c.Name)
		}
	}
	return common
}
