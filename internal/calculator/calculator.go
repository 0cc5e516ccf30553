// Package calculator computes a physical SQL schema from a logical datamodel.
// It is a pure, total function of (datamodel, dialect): any validated
// datamodel yields a valid sqlschema.Schema.
package calculator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dmschema/migrate/internal/datamodel"
	"github.com/dmschema/migrate/internal/sqlschema"
)

// Calculate computes the SqlSchema a datamodel implies on the given dialect.
func Calculate(dm datamodel.Datamodel, dialect sqlschema.Dialect) (sqlschema.Schema, error) {
	c := &calc{dm: dm, dialect: dialect, joinTables: make(map[string]bool)}
	return c.run()
}

type calc struct {
	dm         datamodel.Datamodel
	dialect    sqlschema.Dialect
	joinTables map[string]bool
}

func (c *calc) run() (sqlschema.Schema, error) {
	schema := sqlschema.Schema{Dialect: c.dialect}

	if c.dialect.SupportsSchemaLevelEnum() {
		for _, e := range c.dm.Enums {
			schema.Enums = append(schema.Enums, c.calculateEnum(e))
		}
	}

	for _, m := range c.dm.Models {
		if m.IsCommentedOut || m.IsEmbedded {
			continue
		}
		t, err := c.calculateTable(m)
		if err != nil {
			return sqlschema.Schema{}, fmt.Errorf("model %q: %w", m.Name, err)
		}
		schema.Tables = append(schema.Tables, t)
	}

	for _, jt := range c.calculateJoinTables() {
		schema.Tables = append(schema.Tables, jt)
	}

	return schema, nil
}

func (c *calc) calculateEnum(e datamodel.Enum) sqlschema.Enum {
	values := make([]string, len(e.Values))
	for i, v := range e.Values {
		values[i] = v.MappedName()
	}
	return sqlschema.Enum{Name: e.Name, Values: values}
}

// calculateTable applies §4.1: one model -> one table, scalar fields ->
// columns, @id/@@id -> primary key, @unique/@@unique -> unique indexes,
// owning-side relation fields -> foreign keys.
func (c *calc) calculateTable(m datamodel.Model) (sqlschema.Table, error) {
	t := sqlschema.Table{Name: m.MappedName()}

	for _, f := range m.Fields {
		if f.IsCommentedOut {
			continue
		}
		switch f.Type.Kind {
		case datamodel.FieldTypeBase, datamodel.FieldTypeEnum, datamodel.FieldTypeUnsupported:
			col, err := c.calculateColumn(m, f)
			if err != nil {
				return sqlschema.Table{}, err
			}
			t.Columns = append(t.Columns, col)
			if f.IsUnique {
				t.Indexes = append(t.Indexes, sqlschema.Index{
					Name:    fmt.Sprintf("%s.%s_unique", t.Name, col.Name),
					Columns: []string{col.Name},
					Type:    sqlschema.IndexUnique,
				})
			}
		case datamodel.FieldTypeRelation:
			rel := f.Type.Relation
			if rel == nil || len(rel.Fields) == 0 {
				// Non-owning side or implicit m2m: handled elsewhere.
				continue
			}
			fk, err := c.calculateForeignKey(m, f, *rel)
			if err != nil {
				return sqlschema.Table{}, err
			}
			t.ForeignKeys = append(t.ForeignKeys, fk)
		}
	}

	if len(m.IDFields) > 0 {
		t.PrimaryKey = &sqlschema.PrimaryKey{Columns: mapFieldNamesToColumns(m, m.IDFields)}
	} else if idField, ok := m.IDField(); ok {
		pk := &sqlschema.PrimaryKey{Columns: []string{idField.MappedName()}}
		if idField.Default.Kind == datamodel.DefaultValueExpression &&
			idField.Default.Generator == datamodel.GeneratorAutoincrement &&
			c.dialect.SupportsSequences() {
			pk.Sequence = fmt.Sprintf("%s_%s_seq", t.Name, idField.MappedName())
		}
		t.PrimaryKey = pk
	}

	for _, idx := range m.Indices {
		t.Indexes = append(t.Indexes, c.calculateIndex(m, idx))
	}

	return t, nil
}

func mapFieldNamesToColumns(m datamodel.Model, fieldNames []string) []string {
	cols := make([]string, len(fieldNames))
	for i, name := range fieldNames {
		if f, ok := m.Field(name); ok {
			cols[i] = f.MappedName()
		} else {
			cols[i] = name
		}
	}
	return cols
}

func (c *calc) calculateIndex(m datamodel.Model, idx datamodel.IndexDefinition) sqlschema.Index {
	cols := mapFieldNamesToColumns(m, idx.Fields)
	name := idx.Name
	if name == "" {
		if idx.Type == datamodel.IndexUnique {
			name = fmt.Sprintf("%s.%s_unique", m.MappedName(), strings.Join(cols, "_"))
		} else {
			name = fmt.Sprintf("%s.%s", m.MappedName(), strings.Join(cols, "_"))
		}
	}
	typ := sqlschema.IndexNormal
	if idx.Type == datamodel.IndexUnique {
		typ = sqlschema.IndexUnique
	}
	return sqlschema.Index{Name: name, Columns: cols, Type: typ}
}

// calculateColumn maps a scalar/enum/unsupported field to a column per the
// family/arity/default rules in §4.1.
func (c *calc) calculateColumn(m datamodel.Model, f datamodel.Field) (sqlschema.Column, error) {
	var ct sqlschema.ColumnType
	switch f.Type.Kind {
	case datamodel.FieldTypeBase:
		ct.Family = scalarFamily(f.Type.Scalar)
	case datamodel.FieldTypeEnum:
		ct = enumColumnType(m, f, c.dialect)
	case datamodel.FieldTypeUnsupported:
		ct.Family = sqlschema.FamilyUnknown
		ct.Native = f.Type.UnsupportedNative
	}

	switch f.Arity {
	case datamodel.ArityRequired:
		ct.Arity = sqlschema.ArityRequired
	case datamodel.ArityOptional:
		ct.Arity = sqlschema.ArityNullable
	case datamodel.ArityList:
		if !c.dialect.SupportsArrayColumns() {
			return sqlschema.Column{}, fmt.Errorf("field %q: list scalars are not supported on dialect %s", f.Name, c.dialect)
		}
		ct.Arity = sqlschema.ArityList
	}

	col := sqlschema.Column{Name: f.MappedName(), Type: ct}

	switch f.Default.Kind {
	case datamodel.DefaultValueSingle:
		col.Default = sqlschema.Default{Kind: sqlschema.DefaultLiteral, Literal: f.Default.Literal}
	case datamodel.DefaultValueExpression:
		switch f.Default.Generator {
		case datamodel.GeneratorAutoincrement:
			if c.dialect.SupportsSequences() {
				col.Default = sqlschema.Default{Kind: sqlschema.DefaultSequence, SequenceName: fmt.Sprintf("%s_%s_seq", m.MappedName(), col.Name)}
			} else {
				col.AutoIncrement = true
			}
		case datamodel.GeneratorNow:
			col.Default = sqlschema.Default{Kind: sqlschema.DefaultNow}
		case datamodel.GeneratorCuid, datamodel.GeneratorUuid:
			col.Default = sqlschema.Default{Kind: sqlschema.DefaultExpression, Expression: string(f.Default.Generator) + "()"}
		}
	}

	return col, nil
}

func scalarFamily(s datamodel.ScalarType) sqlschema.ColumnTypeFamily {
	switch s {
	case datamodel.ScalarInt:
		return sqlschema.FamilyInt
	case datamodel.ScalarFloat:
		return sqlschema.FamilyFloat
	case datamodel.ScalarBoolean:
		return sqlschema.FamilyBoolean
	case datamodel.ScalarString:
		return sqlschema.FamilyString
	case datamodel.ScalarDateTime:
		return sqlschema.FamilyDateTime
	case datamodel.ScalarJson:
		return sqlschema.FamilyJson
	case datamodel.ScalarBytes:
		return sqlschema.FamilyBinary
	default:
		return sqlschema.FamilyUnknown
	}
}

// enumColumnType implements the per-dialect enum representation from §4.1:
// Postgres keeps a schema-level type; MySQL synthesizes one inline enum type
// per model+field; SQLite has no enum family at all (plain text).
func enumColumnType(m datamodel.Model, f datamodel.Field, dialect sqlschema.Dialect) sqlschema.ColumnType {
	switch {
	case dialect.SupportsSchemaLevelEnum():
		return sqlschema.ColumnType{Family: sqlschema.FamilyEnum, EnumName: f.Type.EnumName}
	case dialect.SupportsInlineEnum():
		return sqlschema.ColumnType{Family: sqlschema.FamilyEnum, EnumName: fmt.Sprintf("%s_%s", m.MappedName(), f.MappedName())}
	default:
		return sqlschema.ColumnType{Family: sqlschema.FamilyString}
	}
}

// calculateForeignKey implements the owning-side relation rule: an on-delete
// policy of SetNull when every referencing field is optional, else Cascade.
func (c *calc) calculateForeignKey(m datamodel.Model, f datamodel.Field, rel datamodel.RelationInfo) (sqlschema.ForeignKey, error) {
	target, ok := c.dm.Model(rel.To)
	if !ok {
		return sqlschema.ForeignKey{}, fmt.Errorf("relation %q targets unknown model %q", rel.Name, rel.To)
	}

	cols := make([]string, len(rel.Fields))
	allOptional := true
	for i, name := range rel.Fields {
		lf, ok := m.Field(name)
		if !ok {
			return sqlschema.ForeignKey{}, fmt.Errorf("relation %q references unknown local field %q", rel.Name, name)
		}
		cols[i] = lf.MappedName()
		if lf.Arity != datamodel.ArityOptional {
			allOptional = false
		}
	}
	refCols := mapFieldNamesToColumns(target, rel.References)

	onDelete := rel.OnDelete
	if onDelete == "" {
		if allOptional {
			onDelete = datamodel.OnDeleteSetNull
		} else {
			onDelete = datamodel.OnDeleteCascade
		}
	}

	return sqlschema.ForeignKey{
		Columns:           cols,
		ReferencedTable:   target.MappedName(),
		ReferencedColumns: refCols,
		OnDelete:          mapOnDelete(onDelete),
	}, nil
}

func mapOnDelete(a datamodel.OnDeleteAction) sqlschema.OnDeleteAction {
	switch a {
	case datamodel.OnDeleteCascade:
		return sqlschema.OnDeleteCascade
	case datamodel.OnDeleteSetNull:
		return sqlschema.OnDeleteSetNull
	case datamodel.OnDeleteSetDefault:
		return sqlschema.OnDeleteSetDefault
	case datamodel.OnDeleteRestrict:
		return sqlschema.OnDeleteRestrict
	default:
		return sqlschema.OnDeleteNoAction
	}
}

// calculateJoinTables implements §4.1's implicit many-to-many rule: a
// relation with no scalar fields on either side gets a synthetic join table
// `_{Relation}` with columns A/B, two cascading FKs, a unique (A,B) index and
// a plain index on B. Relations are detected by scanning both sides for a
// matching relation Name where neither field carries explicit Fields/References.
func (c *calc) calculateJoinTables() []sqlschema.Table {
	type m2m struct {
		relName    string
		modelA     datamodel.Model
		modelB     datamodel.Model
	}
	seen := make(map[string]bool)
	var rels []m2m

	for _, model := range c.dm.Models {
		if model.IsCommentedOut || model.IsEmbedded {
			continue
		}
		for _, f := range model.Fields {
			if f.Type.Kind != datamodel.FieldTypeRelation || f.Type.Relation == nil {
				continue
			}
			rel := f.Type.Relation
			if len(rel.Fields) != 0 || f.Arity != datamodel.ArityList {
				continue
			}
			if seen[rel.Name] {
				continue
			}
			target, ok := c.dm.Model(rel.To)
			if !ok {
				continue
			}
			paired := false
			for _, g := range target.Fields {
				gr := g.Type.Relation
				if g.Type.Kind == datamodel.FieldTypeRelation && gr != nil && gr.Name == rel.Name &&
					len(gr.Fields) == 0 && g.Arity == datamodel.ArityList &&
					!(target.Name == model.Name && g.Name == f.Name) {
					paired = true
				}
			}
			if !paired {
				continue
			}
			seen[rel.Name] = true
			rels = append(rels, m2m{relName: rel.Name, modelA: model, modelB: target})
		}
	}

	sort.Slice(rels, func(i, j int) bool { return rels[i].relName < rels[j].relName })

	var tables []sqlschema.Table
	for _, r := range rels {
		a, b := r.modelA, r.modelB
		if b.MappedName() < a.MappedName() {
			a, b = b, a
		}
		name := fmt.Sprintf("_%s", r.relName)
		aID, _ := a.IDField()
		bID, _ := b.IDField()

		tables = append(tables, sqlschema.Table{
			Name: name,
			Columns: []sqlschema.Column{
				{Name: "A", Type: sqlschema.ColumnType{Family: idFamily(aID), Arity: sqlschema.ArityRequired}},
				{Name: "B", Type: sqlschema.ColumnType{Family: idFamily(bID), Arity: sqlschema.ArityRequired}},
			},
			ForeignKeys: []sqlschema.ForeignKey{
				{Columns: []string{"A"}, ReferencedTable: a.MappedName(), ReferencedColumns: []string{aID.MappedName()}, OnDelete: sqlschema.OnDeleteCascade},
				{Columns: []string{"B"}, ReferencedTable: b.MappedName(), ReferencedColumns: []string{bID.MappedName()}, OnDelete: sqlschema.OnDeleteCascade},
			},
			Indexes: []sqlschema.Index{
				{Name: name + "_AB_unique", Columns: []string{"A", "B"}, Type: sqlschema.IndexUnique},
				{Name: name + "_B_index", Columns: []string{"B"}, Type: sqlschema.IndexNormal},
			},
		})
	}
	return tables
}

func idFamily(f datamodel.Field) sqlschema.ColumnTypeFamily {
	if f.Type.Kind == datamodel.FieldTypeBase {
		return scalarFamily(f.Type.Scalar)
	}
	return sqlschema.FamilyString
}
