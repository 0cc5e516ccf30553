// Package dmcalculator computes a logical datamodel from a physical SQL
// schema — the inverse of internal/calculator. The reconstruction is lossy
// whenever the physical schema lacks the invariants a hand-authored
// datamodel would carry (no usable identifier, an unmapped native type).
package dmcalculator

import (
	"fmt"
	"strings"

	"github.com/dmschema/migrate/internal/datamodel"
	"github.com/dmschema/migrate/internal/sqlschema"
)

const (
	noIdentifierDoc = "The underlying table does not contain a unique identifier and can therefore currently not be handled."
	unsupportedTypeDoc = "This type is currently not supported."
)

// Calculate computes the Datamodel implied by a physical schema.
func Calculate(schema sqlschema.Schema) (datamodel.Datamodel, error) {
	c := &calc{schema: schema, relationNames: make(map[string]int)}
	return c.run()
}

type calc struct {
	schema        sqlschema.Schema
	relationNames map[string]int
}

func (c *calc) run() (datamodel.Datamodel, error) {
	dm := datamodel.Datamodel{}

	for _, e := range c.schema.Enums {
		dm.Enums = append(dm.Enums, c.calculateEnum(e))
	}

	models := make(map[string]*datamodel.Model, len(c.schema.Tables))
	order := make([]string, 0, len(c.schema.Tables))
	for _, t := range c.schema.Tables {
		if isJoinTable(t) {
			continue
		}
		m := c.calculateModel(t)
		models[t.Name] = &m
		order = append(order, t.Name)
	}

	// Second pass: relations, once every model exists.
	for _, t := range c.schema.Tables {
		if isJoinTable(t) {
			continue
		}
		c.addForeignKeyRelations(t, models)
	}
	for _, t := range c.schema.Tables {
		if !isJoinTable(t) {
			continue
		}
		c.addImplicitManyToMany(t, models)
	}

	for _, name := range order {
		dm.Models = append(dm.Models, *models[name])
	}
	return dm, nil
}

func (c *calc) calculateEnum(e sqlschema.Enum) datamodel.Enum {
	values := make([]datamodel.EnumValue, len(e.Values))
	for i, v := range e.Values {
		values[i] = datamodel.EnumValue{Name: v}
	}
	return datamodel.Enum{Name: e.Name, Values: values}
}

// calculateModel implements §4.2: a table with no usable identifier is
// emitted commented out with the documented reason; otherwise its PK becomes
// @id or @@id and its indexes become @unique/@@unique.
func (c *calc) calculateModel(t sqlschema.Table) datamodel.Model {
	m := datamodel.Model{Name: t.Name}

	hasIdentity := t.PrimaryKey != nil && len(t.PrimaryKey.Columns) > 0
	if !hasIdentity {
		m.IsCommentedOut = true
		m.Documentation = noIdentifierDoc
	}

	uniqueSingle := make(map[string]bool)
	for _, idx := range t.Indexes {
		if idx.Type == sqlschema.IndexUnique && len(idx.Columns) == 1 {
			uniqueSingle[idx.Columns[0]] = true
		}
	}

	for _, col := range t.Columns {
		m.Fields = append(m.Fields, c.calculateField(t, col, uniqueSingle))
	}

	if hasIdentity {
		if len(t.PrimaryKey.Columns) == 1 {
			col := t.PrimaryKey.Columns[0]
			for i := range m.Fields {
				if m.Fields[i].MappedName() == col {
					m.Fields[i].IsID = true
					if t.PrimaryKey.Sequence != "" {
						m.Fields[i].Default = datamodel.DefaultValue{Kind: datamodel.DefaultValueExpression, Generator: datamodel.GeneratorAutoincrement}
					}
				}
			}
		} else {
			m.IDFields = append([]string{}, t.PrimaryKey.Columns...)
		}
	}

	for _, idx := range t.Indexes {
		if t.PrimaryKey != nil && sameColumns(idx.Columns, t.PrimaryKey.Columns) {
			continue
		}
		if idx.Type == sqlschema.IndexUnique && len(idx.Columns) == 1 {
			continue // already folded into @unique above
		}
		typ := datamodel.IndexNormal
		if idx.Type == sqlschema.IndexUnique {
			typ = datamodel.IndexUnique
		}
		m.Indices = append(m.Indices, datamodel.IndexDefinition{Name: idx.Name, Fields: idx.Columns, Type: typ})
	}

	return m
}

// calculateField implements the column-family -> scalar mapping of §4.2,
// including the unsupported-type fallback and auto_increment -> autoincrement().
func (c *calc) calculateField(t sqlschema.Table, col sqlschema.Column, uniqueSingle map[string]bool) datamodel.Field {
	f := datamodel.Field{Name: col.Name}

	switch col.Type.Arity {
	case sqlschema.ArityRequired:
		f.Arity = datamodel.ArityRequired
	case sqlschema.ArityNullable:
		f.Arity = datamodel.ArityOptional
	case sqlschema.ArityList:
		f.Arity = datamodel.ArityList
	}

	switch col.Type.Family {
	case sqlschema.FamilyInt:
		f.Type = datamodel.FieldType{Kind: datamodel.FieldTypeBase, Scalar: datamodel.ScalarInt}
	case sqlschema.FamilyFloat:
		f.Type = datamodel.FieldType{Kind: datamodel.FieldTypeBase, Scalar: datamodel.ScalarFloat}
	case sqlschema.FamilyBoolean:
		f.Type = datamodel.FieldType{Kind: datamodel.FieldTypeBase, Scalar: datamodel.ScalarBoolean}
	case sqlschema.FamilyString, sqlschema.FamilyUuid:
		f.Type = datamodel.FieldType{Kind: datamodel.FieldTypeBase, Scalar: datamodel.ScalarString}
	case sqlschema.FamilyDateTime:
		f.Type = datamodel.FieldType{Kind: datamodel.FieldTypeBase, Scalar: datamodel.ScalarDateTime}
	case sqlschema.FamilyJson:
		f.Type = datamodel.FieldType{Kind: datamodel.FieldTypeBase, Scalar: datamodel.ScalarJson}
	case sqlschema.FamilyBinary:
		f.Type = datamodel.FieldType{Kind: datamodel.FieldTypeBase, Scalar: datamodel.ScalarBytes}
	case sqlschema.FamilyEnum:
		f.Type = datamodel.FieldType{Kind: datamodel.FieldTypeEnum, EnumName: col.Type.EnumName}
	default:
		native := col.Type.Native
		if native == "" {
			native = string(col.Type.Family)
		}
		f.Type = datamodel.FieldType{Kind: datamodel.FieldTypeUnsupported, UnsupportedNative: native}
		f.IsCommentedOut = true
		f.Documentation = unsupportedTypeDoc
	}

	switch col.Default.Kind {
	case sqlschema.DefaultLiteral:
		f.Default = datamodel.DefaultValue{Kind: datamodel.DefaultValueSingle, Literal: col.Default.Literal}
	case sqlschema.DefaultNow:
		f.Default = datamodel.DefaultValue{Kind: datamodel.DefaultValueExpression, Generator: datamodel.GeneratorNow}
		f.IsUpdatedAt = false
	case sqlschema.DefaultSequence:
		f.Default = datamodel.DefaultValue{Kind: datamodel.DefaultValueExpression, Generator: datamodel.GeneratorAutoincrement}
	}
	if col.AutoIncrement {
		f.Default = datamodel.DefaultValue{Kind: datamodel.DefaultValueExpression, Generator: datamodel.GeneratorAutoincrement}
	}

	if uniqueSingle[col.Name] {
		f.IsUnique = true
	}

	return f
}

func sameColumns(a, b []string) bool {
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

// addForeignKeyRelations implements §4.2's FK -> relation-field-pair rule: an
// owning field on the referencing model plus an inverse field on the target,
// with cardinality on the inverse side inferred from whether the referencing
// columns are themselves unique.
func (c *calc) addForeignKeyRelations(t sqlschema.Table, models map[string]*datamodel.Model) {
	owner, ok := models[t.Name]
	if !ok {
		return
	}
	for _, fk := range t.ForeignKeys {
		target, ok := models[fk.ReferencedTable]
		if !ok {
			continue
		}
		relName := canonicalRelationName(t.Name, fk.ReferencedTable)
		relName = c.disambiguate(relName)

		fieldName := disambiguateFieldName(*owner, fk.ReferencedTable)
		owner.Fields = append(owner.Fields, datamodel.Field{
			Name:  fieldName,
			Arity: relationArity(t, fk),
			Type: datamodel.FieldType{
				Kind: datamodel.FieldTypeRelation,
				Relation: &datamodel.RelationInfo{
					To:         fk.ReferencedTable,
					Fields:     fk.Columns,
					References: fk.ReferencedColumns,
					Name:       relName,
					OnDelete:   mapOnDelete(fk.OnDelete),
				},
			},
		})

		inverseArity := datamodel.ArityList
		if isUniqueOn(t, fk.Columns) {
			if relationArity(t, fk) == datamodel.ArityOptional {
				inverseArity = datamodel.ArityOptional
			} else {
				inverseArity = datamodel.ArityRequired
			}
		}
		inverseFieldName := disambiguateFieldName(*target, t.Name)
		target.Fields = append(target.Fields, datamodel.Field{
			Name:  inverseFieldName,
			Arity: inverseArity,
			Type: datamodel.FieldType{
				Kind: datamodel.FieldTypeRelation,
				Relation: &datamodel.RelationInfo{
					To:   t.Name,
					Name: relName,
				},
			},
		})
	}
}

func relationArity(t sqlschema.Table, fk sqlschema.ForeignKey) datamodel.Arity {
	for _, colName := range fk.Columns {
		if col, ok := t.Column(colName); ok && col.Type.Arity == sqlschema.ArityNullable {
			return datamodel.ArityOptional
		}
	}
	return datamodel.ArityRequired
}

func isUniqueOn(t sqlschema.Table, cols []string) bool {
	if t.PrimaryKey != nil && sameColumns(t.PrimaryKey.Columns, cols) {
		return true
	}
	for _, idx := range t.Indexes {
		if idx.Type == sqlschema.IndexUnique && sameColumns(idx.Columns, cols) {
			return true
		}
	}
	return false
}

func mapOnDelete(a sqlschema.OnDeleteAction) datamodel.OnDeleteAction {
	switch a {
	case sqlschema.OnDeleteCascade:
		return datamodel.OnDeleteCascade
	case sqlschema.OnDeleteSetNull:
		return datamodel.OnDeleteSetNull
	case sqlschema.OnDeleteSetDefault:
		return datamodel.OnDeleteSetDefault
	case sqlschema.OnDeleteRestrict:
		return datamodel.OnDeleteRestrict
	default:
		return datamodel.OnDeleteNoAction
	}
}

// canonicalRelationName derives the alphabetical "{A}To{B}" pairing name
// used to match a relation's two field declarations.
func canonicalRelationName(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%sTo%s", a, b)
}

func (c *calc) disambiguate(name string) string {
	c.relationNames[name]++
	if n := c.relationNames[name]; n > 1 {
		return fmt.Sprintf("%s_%d", name, n)
	}
	return name
}

func disambiguateFieldName(m datamodel.Model, target string) string {
	base := target
	name := base
	for i := 2; ; i++ {
		if _, exists := m.Field(name); !exists {
			return name
		}
		name = fmt.Sprintf("%s%d", base, i)
	}
}

func isJoinTable(t sqlschema.Table) bool {
	if !strings.HasPrefix(t.Name, "_") {
		return false
	}
	if len(t.Columns) != 2 {
		return false
	}
	names := map[string]bool{t.Columns[0].Name: true, t.Columns[1].Name: true}
	return names["A"] && names["B"] && len(t.ForeignKeys) == 2
}

// addImplicitManyToMany reconstructs the List-arity relation fields on both
// sides of an auto-generated join table, mirroring the calculator's
// generation rule in reverse.
func (c *calc) addImplicitManyToMany(t sqlschema.Table, models map[string]*datamodel.Model) {
	if len(t.ForeignKeys) != 2 {
		return
	}
	fkA, fkB := t.ForeignKeys[0], t.ForeignKeys[1]
	for _, fk := range t.ForeignKeys {
		if fk.Columns[0] == "A" {
			fkA = fk
		} else {
			fkB = fk
		}
	}
	modelA, okA := models[fkA.ReferencedTable]
	modelB, okB := models[fkB.ReferencedTable]
	if !okA || !okB {
		return
	}
	relName := strings.TrimPrefix(t.Name, "_")

	modelA.Fields = append(modelA.Fields, datamodel.Field{
		Name:  disambiguateFieldName(*modelA, modelB.Name),
		Arity: datamodel.ArityList,
		Type: datamodel.FieldType{
			Kind:     datamodel.FieldTypeRelation,
			Relation: &datamodel.RelationInfo{To: modelB.Name, Name: relName},
		},
	})
	modelB.Fields = append(modelB.Fields, datamodel.Field{
		Name:  disambiguateFieldName(*modelB, modelA.Name),
		Arity: datamodel.ArityList,
		Type: datamodel.FieldType{
			Kind:     datamodel.FieldTypeRelation,
			Relation: &datamodel.RelationInfo{To: modelA.Name, Name: relName},
		},
	})
}
