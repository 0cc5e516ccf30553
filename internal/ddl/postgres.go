package ddl

import (
	"fmt"
	"strings"

	"github.com/dmschema/migrate/internal/differ"
	"github.com/dmschema/migrate/internal/sqlschema"
)

// Postgres renders steps against PostgreSQL. Grounded on the same
// create/drop/add/modify-column vocabulary used across every dialect's
// generator, with Postgres's native ALTER COLUMN splitting type, nullability
// and default into independent clauses and its enum type living as a
// standalone CREATE TYPE ... AS ENUM object.
type Postgres struct{}

func NewPostgres() *Postgres { return &Postgres{} }

func (p *Postgres) Dialect() sqlschema.Dialect { return sqlschema.DialectPostgres }

func (p *Postgres) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (p *Postgres) RenderColumnType(t sqlschema.ColumnType) string {
	if t.Native != "" {
		return t.Native
	}
	base := func() string {
		switch t.Family {
		case sqlschema.FamilyInt:
			return "integer"
		case sqlschema.FamilyFloat:
			return "double precision"
		case sqlschema.FamilyBoolean:
			return "boolean"
		case sqlschema.FamilyString:
			return "text"
		case sqlschema.FamilyDateTime:
			return "timestamp(3)"
		case sqlschema.FamilyBinary:
			return "bytea"
		case sqlschema.FamilyJson:
			return "jsonb"
		case sqlschema.FamilyUuid:
			return "uuid"
		case sqlschema.FamilyEnum:
			return p.Quote(t.EnumName)
		default:
			return "text"
		}
	}()
	if t.Arity == sqlschema.ArityList {
		return base + "[]"
	}
	return base
}

func (p *Postgres) RenderDefault(d sqlschema.Default, t sqlschema.ColumnType) string {
	switch d.Kind {
	case sqlschema.DefaultLiteral:
		return renderLiteral(d.Literal, t)
	case sqlschema.DefaultNow:
		return "CURRENT_TIMESTAMP"
	case sqlschema.DefaultSequence:
		return fmt.Sprintf("nextval('%s')", d.SequenceName)
	case sqlschema.DefaultExpression:
		return d.Expression
	default:
		return ""
	}
}

func renderLiteral(v any, t sqlschema.ColumnType) string {
	switch t.Family {
	case sqlschema.FamilyBoolean:
		return fmt.Sprint(v)
	case sqlschema.FamilyInt, sqlschema.FamilyFloat:
		return fmt.Sprint(v)
	default:
		s := fmt.Sprint(v)
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
}

func (p *Postgres) RenderColumnDefinition(c sqlschema.Column) string {
	var b strings.Builder
	b.WriteString(p.Quote(c.Name))
	b.WriteString(" ")
	b.WriteString(p.RenderColumnType(c.Type))
	if c.Type.Arity != sqlschema.ArityNullable {
		b.WriteString(" NOT NULL")
	}
	if c.Default.Kind != sqlschema.DefaultNone {
		b.WriteString(" DEFAULT ")
		b.WriteString(p.RenderDefault(c.Default, c.Type))
	}
	return b.String()
}

func (p *Postgres) RenderStep(step differ.Step) ([]string, error) {
	switch step.Kind {
	case differ.KindCreateTable:
		return p.createTable(step.Table)
	case differ.KindDropTable:
		return []string{fmt.Sprintf("DROP TABLE %s CASCADE", p.Quote(step.TableName))}, nil
	case differ.KindAddColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", p.Quote(step.TableName), p.RenderColumnDefinition(step.Column))}, nil
	case differ.KindDropColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", p.Quote(step.TableName), p.Quote(step.Column.Name))}, nil
	case differ.KindAlterColumn:
		return p.alterColumn(step)
	case differ.KindCreateIndex:
		return []string{p.createIndexSQL(step.TableName, step.Index)}, nil
	case differ.KindDropIndex:
		return []string{fmt.Sprintf("DROP INDEX %s", p.Quote(step.Index.Name))}, nil
	case differ.KindAlterIndex:
		return []string{fmt.Sprintf("ALTER INDEX %s RENAME TO %s", p.Quote(step.OldIndex.Name), p.Quote(step.NewIndex.Name))}, nil
	case differ.KindAddForeignKey:
		return []string{p.addForeignKeySQL(step.TableName, step.ForeignKey)}, nil
	case differ.KindDropForeignKey:
		name := step.ForeignKey.Name
		if name == "" {
			name = defaultPostgresFKName(step.TableName, step.ForeignKey)
		}
		return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", p.Quote(step.TableName), p.Quote(name))}, nil
	case differ.KindCreateEnum:
		return []string{p.createEnumSQL(step.EnumName, step.EnumValues)}, nil
	case differ.KindDropEnum:
		return []string{fmt.Sprintf("DROP TYPE %s", p.Quote(step.EnumName))}, nil
	case differ.KindAlterEnum:
		return p.alterEnum(step)
	case differ.KindCreateSequence:
		return []string{fmt.Sprintf("CREATE SEQUENCE %s START %d CACHE %d", p.Quote(step.Sequence.Name), step.Sequence.Start, step.Sequence.Cache)}, nil
	case differ.KindDropSequence:
		return []string{fmt.Sprintf("DROP SEQUENCE %s", p.Quote(step.Sequence.Name))}, nil
	default:
		return nil, fmt.Errorf("unsupported step kind %s", step.Kind)
	}
}

func (p *Postgres) createTable(t sqlschema.Table) ([]string, error) {
	var cols []string
	for _, c := range t.Columns {
		cols = append(cols, "  "+p.RenderColumnDefinition(c))
	}
	if t.PrimaryKey != nil {
		quoted := make([]string, len(t.PrimaryKey.Columns))
		for i, c := range t.PrimaryKey.Columns {
			quoted[i] = p.Quote(c)
		}
		cols = append(cols, fmt.Sprintf("  PRIMARY KEY (%s)", strings.Join(quoted, ", ")))
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (\n%s\n)", p.Quote(t.Name), strings.Join(cols, ",\n"))
	return []string{stmt}, nil
}

func (p *Postgres) createIndexSQL(table string, idx sqlschema.Index) string {
	unique := ""
	if idx.Type == sqlschema.IndexUnique {
		unique = "UNIQUE "
	}
	quoted := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		quoted[i] = p.Quote(c)
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, p.Quote(idx.Name), p.Quote(table), strings.Join(quoted, ", "))
}

func (p *Postgres) addForeignKeySQL(table string, fk sqlschema.ForeignKey) string {
	name := fk.Name
	if name == "" {
		name = defaultPostgresFKName(table, fk)
	}
	localCols := make([]string, len(fk.Columns))
	for i, c := range fk.Columns {
		localCols[i] = p.Quote(c)
	}
	refCols := make([]string, len(fk.ReferencedColumns))
	for i, c := range fk.ReferencedColumns {
		refCols[i] = p.Quote(c)
	}
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s",
		p.Quote(table), p.Quote(name), strings.Join(localCols, ", "), p.Quote(fk.ReferencedTable), strings.Join(refCols, ", "), renderOnDelete(fk.OnDelete))
}

// defaultPostgresFKName implements §6.4: {Table}_{col}_fkey.
func defaultPostgresFKName(table string, fk sqlschema.ForeignKey) string {
	col := ""
	if len(fk.Columns) > 0 {
		col = fk.Columns[0]
	}
	return fmt.Sprintf("%s_%s_fkey", table, col)
}

func (p *Postgres) createEnumSQL(name string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)", p.Quote(name), strings.Join(quoted, ", "))
}

// alterColumn splits a type/nullability/default change into the three
// independent ALTER COLUMN clauses Postgres requires.
func (p *Postgres) alterColumn(step differ.Step) ([]string, error) {
	var stmts []string
	table := p.Quote(step.TableName)
	col := p.Quote(step.NewColumn.Name)

	if step.OldColumn.Type.Family != step.NewColumn.Type.Family || step.OldColumn.Type.Native != step.NewColumn.Type.Native {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s",
			table, col, p.RenderColumnType(step.NewColumn.Type), col, p.RenderColumnType(step.NewColumn.Type)))
	}
	if step.OldColumn.Type.Arity != step.NewColumn.Type.Arity {
		if step.NewColumn.Type.Arity == sqlschema.ArityNullable {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", table, col))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", table, col))
		}
	}
	if !step.OldColumn.Default.Equal(step.NewColumn.Default) {
		if step.NewColumn.Default.Kind == sqlschema.DefaultNone {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", table, col))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", table, col, p.RenderDefault(step.NewColumn.Default, step.NewColumn.Type)))
		}
	}
	return stmts, nil
}

// alterEnum implements §4.5: adding values uses ALTER TYPE ... ADD VALUE,
// inserted before the first value that follows it in the target ordering so
// the final value order matches the next schema exactly. Dropping a value
// has no direct syntax: a step with non-empty DroppedValues is rejected with
// an error, and no table rebuild or enum recreation is rendered for it.
func (p *Postgres) alterEnum(step differ.Step) ([]string, error) {
	if len(step.DroppedValues) > 0 {
		return nil, fmt.Errorf("dropping enum values (%v) requires a table rebuild, not a direct ALTER TYPE", step.DroppedValues)
	}
	added := make(map[string]bool, len(step.AddedValues))
	for _, v := range step.AddedValues {
		added[v] = true
	}
	var stmts []string
	for _, v := range step.AddedValues {
		stmt := fmt.Sprintf("ALTER TYPE %s ADD VALUE %s", p.Quote(step.EnumName), quoteEnumValue(v))
		if before, ok := nextExistingValue(step.FinalValues, v, added); ok {
			stmt += fmt.Sprintf(" BEFORE %s", quoteEnumValue(before))
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// nextExistingValue finds the first value after target in order that was
// already present before this alteration (i.e. not itself being added),
// which Postgres requires as the BEFORE anchor to preserve declared order.
func nextExistingValue(order []string, target string, added map[string]bool) (string, bool) {
	idx := -1
	for i, v := range order {
		if v == target {
			idx = i
			break
		}
	}
	if idx == -1 {
		return "", false
	}
	for i := idx + 1; i < len(order); i++ {
		if !added[order[i]] {
			return order[i], true
		}
	}
	return "", false
}

func quoteEnumValue(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
