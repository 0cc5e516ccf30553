// Package datamodel is the normalized logical schema the user authors: models,
// scalar/relation fields, arities, defaults, ids, unique constraints, indexes
// and enums. It sits above internal/sqlschema and is the input to the SQL
// Schema Calculator and the output of the Datamodel Calculator.
package datamodel

// Arity is the logical multiplicity of a field, distinct from sqlschema's
// ColumnArity (which speaks of storage nullability, not relation cardinality).
type Arity string

const (
	ArityRequired Arity = "Required"
	ArityOptional Arity = "Optional"
	ArityList     Arity = "List"
)

// FieldTypeKind tags the variant carried by a FieldType.
type FieldTypeKind string

const (
	FieldTypeBase     FieldTypeKind = "Base"
	FieldTypeEnum     FieldTypeKind = "Enum"
	FieldTypeRelation FieldTypeKind = "Relation"
	FieldTypeUnsupported FieldTypeKind = "Unsupported"
)

// ScalarType enumerates the base scalar kinds a Base field can hold.
type ScalarType string

const (
	ScalarInt      ScalarType = "Int"
	ScalarFloat    ScalarType = "Float"
	ScalarBoolean  ScalarType = "Boolean"
	ScalarString   ScalarType = "String"
	ScalarDateTime ScalarType = "DateTime"
	ScalarJson     ScalarType = "Json"
	ScalarBytes    ScalarType = "Bytes"
)

// FieldType is a sum type over what a field actually holds.
type FieldType struct {
	Kind FieldTypeKind
	// Scalar is set iff Kind == FieldTypeBase.
	Scalar ScalarType
	// EnumName is set iff Kind == FieldTypeEnum.
	EnumName string
	// Relation is set iff Kind == FieldTypeRelation.
	Relation *RelationInfo
	// UnsupportedNative is set iff Kind == FieldTypeUnsupported; it carries
	// the original native type name that could not be mapped.
	UnsupportedNative string
}

// RelationInfo describes one side of a model-to-model relation.
type RelationInfo struct {
	// To is the target model name.
	To string
	// Fields are the local (referencing) field names; empty on the
	// non-owning side of a relation.
	Fields []string
	// References are the target model's referenced field names; empty on
	// the non-owning side.
	References []string
	// Name identifies the relation so both sides can be paired; for an
	// unnamed relation it's derived as "{A}To{B}", with the two model names
	// in alphabetical order.
	Name string
	OnDelete OnDeleteAction
}

// OnDeleteAction mirrors sqlschema.OnDeleteAction at the logical level.
type OnDeleteAction string

const (
	OnDeleteNoAction   OnDeleteAction = "NoAction"
	OnDeleteCascade    OnDeleteAction = "Cascade"
	OnDeleteSetNull    OnDeleteAction = "SetNull"
	OnDeleteSetDefault OnDeleteAction = "SetDefault"
	OnDeleteRestrict   OnDeleteAction = "Restrict"
)

// DefaultValueKind tags the variant carried by a DefaultValue.
type DefaultValueKind string

const (
	DefaultValueNone       DefaultValueKind = "None"
	DefaultValueSingle     DefaultValueKind = "Single"
	DefaultValueExpression DefaultValueKind = "Expression"
)

// Generator names the recognized zero-arg default-value functions.
type Generator string

const (
	GeneratorAutoincrement Generator = "autoincrement"
	GeneratorCuid          Generator = "cuid"
	GeneratorUuid          Generator = "uuid"
	GeneratorNow           Generator = "now"
)

// DefaultValue is a field's @default(...) annotation.
type DefaultValue struct {
	Kind DefaultValueKind
	// Literal is set iff Kind == DefaultValueSingle; a literal constant
	// value whose Go type matches the field's scalar.
	Literal any
	// Generator is set iff Kind == DefaultValueExpression.
	Generator Generator
}

// Field is one member of a Model.
type Field struct {
	Name         string
	DatabaseName string // @map override; empty means same as Name
	Arity        Arity
	Type         FieldType
	Default      DefaultValue
	IsUnique     bool
	IsID         bool
	IsGenerated  bool
	IsUpdatedAt  bool
	IsCommentedOut bool
	Documentation  string
}

// MappedName returns the physical column name: DatabaseName if set, else Name.
func (f Field) MappedName() string {
	if f.DatabaseName != "" {
		return f.DatabaseName
	}
	return f.Name
}

// IndexType mirrors sqlschema.IndexType at the logical level.
type IndexType string

const (
	IndexUnique IndexType = "Unique"
	IndexNormal IndexType = "Normal"
)

// IndexDefinition is a `@@unique`/`@@index` declaration over one or more fields.
type IndexDefinition struct {
	Name   string // empty means "derive the default name"
	Fields []string
	Type   IndexType
}

// Enum is a datamodel-level named enumeration.
type Enum struct {
	Name   string
	Values []EnumValue
}

// EnumValue is one member of an Enum, with an optional physical @map override.
type EnumValue struct {
	Name         string
	DatabaseName string
}

// MappedName returns the physical value: DatabaseName if set, else Name.
func (v EnumValue) MappedName() string {
	if v.DatabaseName != "" {
		return v.DatabaseName
	}
	return v.Name
}

// Model is one entity in the datamodel, corresponding to one physical table.
type Model struct {
	Name           string
	DatabaseName   string // @map override; empty means same as Name
	Fields         []Field
	Indices        []IndexDefinition
	IDFields       []string // composite @@id([...]); empty if a single field carries @id
	IsEmbedded     bool
	IsGenerated    bool
	IsCommentedOut bool
	Documentation  string
}

// MappedName returns the physical table name: DatabaseName if set, else Name.
func (m Model) MappedName() string {
	if m.DatabaseName != "" {
		return m.DatabaseName
	}
	return m.Name
}

// Field looks up a field by name.
func (m Model) Field(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// IDField returns the single @id field, if the model identifies via one
// rather than a composite @@id.
func (m Model) IDField() (Field, bool) {
	if len(m.IDFields) > 0 {
		return Field{}, false
	}
	for _, f := range m.Fields {
		if f.IsID {
			return f, true
		}
	}
	return Field{}, false
}

// Datamodel is the full logical schema: all models and enums, as authored by
// the user or reconstructed by the Datamodel Calculator. Immutable once built.
type Datamodel struct {
	Models []Model
	Enums  []Enum
}

// Model looks up a model by name.
func (d Datamodel) Model(name string) (Model, bool) {
	for _, m := range d.Models {
		if m.Name == name {
			return m, true
		}
	}
	return Model{}, false
}

// Enum looks up an enum by name.
func (d Datamodel) Enum(name string) (Enum, bool) {
	for _, e := range d.Enums {
		if e.Name == name {
			return e, true
		}
	}
	return Enum{}, false
}
