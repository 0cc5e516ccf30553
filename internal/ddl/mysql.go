package ddl

import (
	"fmt"
	"strings"

	"github.com/dmschema/migrate/internal/differ"
	"github.com/dmschema/migrate/internal/sqlschema"
)

// MySQL renders steps against MySQL/MariaDB. Column alterations go through
// MODIFY COLUMN, which restates type, nullability and default together in
// one clause — the reason internal/destructive treats every MySQL
// AlterColumn on a non-empty table as a warning regardless of what actually
// changed. Enums are inline ENUM(...) column types rewritten in full on
// every value-list change, and named FK constraints default to MySQL's own
// ibfk numbering when the caller hasn't supplied one.
type MySQL struct {
	enumValues map[string][]string
}

func NewMySQL(enums []sqlschema.Enum) *MySQL {
	m := &MySQL{enumValues: make(map[string][]string, len(enums))}
	for _, e := range enums {
		m.enumValues[e.Name] = e.Values
	}
	return m
}

func (m *MySQL) Dialect() sqlschema.Dialect { return sqlschema.DialectMySQL }

func (m *MySQL) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (m *MySQL) RenderColumnType(t sqlschema.ColumnType) string {
	if t.Native != "" {
		return t.Native
	}
	switch t.Family {
	case sqlschema.FamilyInt:
		return "int"
	case sqlschema.FamilyFloat:
		return "double"
	case sqlschema.FamilyBoolean:
		return "tinyint(1)"
	case sqlschema.FamilyString:
		return "varchar(191)"
	case sqlschema.FamilyDateTime:
		return "datetime(3)"
	case sqlschema.FamilyBinary:
		return "longblob"
	case sqlschema.FamilyJson:
		return "json"
	case sqlschema.FamilyUuid:
		return "char(36)"
	case sqlschema.FamilyEnum:
		return m.renderInlineEnum(t.EnumName)
	default:
		return "text"
	}
}

// renderInlineEnum looks up the enum's values by name in the enum list
// handed to NewMySQL (MySQL has no separate type object); a name with no
// entry there renders as enum(<name>) without a value list.
func (m *MySQL) renderInlineEnum(name string) string {
	if vals, ok := m.enumValues[name]; ok {
		return m.enumSQL(vals)
	}
	return "enum(" + name + ")"
}

func (m *MySQL) enumSQL(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return "enum(" + strings.Join(quoted, ",") + ")"
}

func (m *MySQL) RenderDefault(d sqlschema.Default, t sqlschema.ColumnType) string {
	switch d.Kind {
	case sqlschema.DefaultLiteral:
		return renderLiteral(d.Literal, t)
	case sqlschema.DefaultNow:
		return "CURRENT_TIMESTAMP(3)"
	case sqlschema.DefaultExpression:
		return d.Expression
	default:
		return ""
	}
}

func (m *MySQL) RenderColumnDefinition(c sqlschema.Column) string {
	var b strings.Builder
	b.WriteString(m.Quote(c.Name))
	b.WriteString(" ")
	if c.Type.Family == sqlschema.FamilyEnum {
		if vals, ok := m.enumValues[c.Type.EnumName]; ok {
			b.WriteString(m.enumSQL(vals))
		} else {
			b.WriteString(m.RenderColumnType(c.Type))
		}
	} else {
		b.WriteString(m.RenderColumnType(c.Type))
	}
	if c.Type.Arity != sqlschema.ArityNullable {
		b.WriteString(" NOT NULL")
	}
	if c.AutoIncrement {
		b.WriteString(" AUTO_INCREMENT")
	}
	if c.Default.Kind != sqlschema.DefaultNone {
		b.WriteString(" DEFAULT ")
		b.WriteString(m.RenderDefault(c.Default, c.Type))
	}
	return b.String()
}

func (m *MySQL) RenderStep(step differ.Step) ([]string, error) {
	switch step.Kind {
	case differ.KindCreateTable:
		return m.createTable(step.Table)
	case differ.KindDropTable:
		return []string{fmt.Sprintf("DROP TABLE %s", m.Quote(step.TableName))}, nil
	case differ.KindAddColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", m.Quote(step.TableName), m.RenderColumnDefinition(step.Column))}, nil
	case differ.KindDropColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", m.Quote(step.TableName), m.Quote(step.Column.Name))}, nil
	case differ.KindAlterColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", m.Quote(step.TableName), m.RenderColumnDefinition(step.NewColumn))}, nil
	case differ.KindCreateIndex:
		return []string{m.createIndexSQL(step.TableName, step.Index)}, nil
	case differ.KindDropIndex:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP INDEX %s", m.Quote(step.TableName), m.Quote(step.Index.Name))}, nil
	case differ.KindAlterIndex:
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME INDEX %s TO %s", m.Quote(step.TableName), m.Quote(step.OldIndex.Name), m.Quote(step.NewIndex.Name))}, nil
	case differ.KindAddForeignKey:
		return []string{m.addForeignKeySQL(step.TableName, step.ForeignKey)}, nil
	case differ.KindDropForeignKey:
		name := step.ForeignKey.Name
		if name == "" {
			name = fmt.Sprintf("%s_ibfk_1", step.TableName)
		}
		return []string{fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", m.Quote(step.TableName), m.Quote(name))}, nil
	case differ.KindCreateEnum, differ.KindDropEnum, differ.KindAlterEnum:
		// MySQL has no standalone enum object; a value-list change surfaces
		// as a column MODIFY (internal/differ emits AlterColumn for it
		// instead of AlterEnum), so these are no-ops at the DDL layer.
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported step kind %s", step.Kind)
	}
}

func (m *MySQL) createTable(t sqlschema.Table) ([]string, error) {
	var cols []string
	for _, c := range t.Columns {
		cols = append(cols, "  "+m.RenderColumnDefinition(c))
	}
	if t.PrimaryKey != nil {
		quoted := make([]string, len(t.PrimaryKey.Columns))
		for i, c := range t.PrimaryKey.Columns {
			quoted[i] = m.Quote(c)
		}
		cols = append(cols, fmt.Sprintf("  PRIMARY KEY (%s)", strings.Join(quoted, ", ")))
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (\n%s\n) ENGINE=InnoDB", m.Quote(t.Name), strings.Join(cols, ",\n"))
	return []string{stmt}, nil
}

func (m *MySQL) createIndexSQL(table string, idx sqlschema.Index) string {
	unique := ""
	if idx.Type == sqlschema.IndexUnique {
		unique = "UNIQUE "
	}
	quoted := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		quoted[i] = m.Quote(c)
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, m.Quote(idx.Name), m.Quote(table), strings.Join(quoted, ", "))
}

func (m *MySQL) addForeignKeySQL(table string, fk sqlschema.ForeignKey) string {
	name := fk.Name
	if name == "" {
		name = fmt.Sprintf("%s_ibfk_1", table)
	}
	localCols := make([]string, len(fk.Columns))
	for i, c := range fk.Columns {
		localCols[i] = m.Quote(c)
	}
	refCols := make([]string, len(fk.ReferencedColumns))
	for i, c := range fk.ReferencedColumns {
		refCols[i] = m.Quote(c)
	}
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s",
		m.Quote(table), m.Quote(name), strings.Join(localCols, ", "), m.Quote(fk.ReferencedTable), strings.Join(refCols, ", "), renderOnDelete(fk.OnDelete))
}
