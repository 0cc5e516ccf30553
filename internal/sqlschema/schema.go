package sqlschema

import "fmt"

// ColumnTypeFamily is the dialect-independent classification of a column's
// storage type.
type ColumnTypeFamily string

const (
	FamilyInt           ColumnTypeFamily = "Int"
	FamilyFloat         ColumnTypeFamily = "Float"
	FamilyBoolean       ColumnTypeFamily = "Boolean"
	FamilyString        ColumnTypeFamily = "String"
	FamilyDateTime      ColumnTypeFamily = "DateTime"
	FamilyBinary        ColumnTypeFamily = "Binary"
	FamilyJson          ColumnTypeFamily = "Json"
	FamilyUuid          ColumnTypeFamily = "Uuid"
	FamilyGeometric     ColumnTypeFamily = "Geometric"
	FamilyLogSeqNumber  ColumnTypeFamily = "LogSequenceNumber"
	FamilyTextSearch    ColumnTypeFamily = "TextSearch"
	FamilyTransactionId ColumnTypeFamily = "TransactionId"
	FamilyUnknown       ColumnTypeFamily = "Unknown"
)

// FamilyEnum is the family tag for an enum-typed column; the enum name
// travels alongside it on ColumnType.EnumName rather than as part of the
// family constant, since ColumnTypeFamily is a plain string type.
const FamilyEnum ColumnTypeFamily = "Enum"

// ColumnArity is the nullability/multiplicity of a column.
type ColumnArity string

const (
	ArityRequired ColumnArity = "Required"
	ArityNullable ColumnArity = "Nullable"
	ArityList     ColumnArity = "List"
)

// ColumnType describes the storage shape of a column.
type ColumnType struct {
	Family ColumnTypeFamily
	Arity  ColumnArity
	// EnumName is set iff Family == FamilyEnum.
	EnumName string
	// Native is an optional dialect-specific type descriptor (e.g. "varchar(255)",
	// "numeric(10,2)"). Empty means "use the family default for the dialect".
	Native string
}

func (t ColumnType) String() string {
	if t.Family == FamilyEnum {
		return fmt.Sprintf("Enum(%s)", t.EnumName)
	}
	if t.Native != "" {
		return t.Native
	}
	return string(t.Family)
}

// DefaultKind tags the variant carried by a Default value.
type DefaultKind string

const (
	DefaultNone       DefaultKind = "None"
	DefaultLiteral    DefaultKind = "Literal"
	DefaultSequence   DefaultKind = "Sequence"
	DefaultNow        DefaultKind = "Now"
	DefaultExpression DefaultKind = "Expression"
)

// Default is a sum type over the ways a column can obtain a value when one
// isn't supplied by the caller.
type Default struct {
	Kind DefaultKind
	// Literal holds the value for DefaultLiteral, already in the Go
	// representation matching the column's family (string/int64/float64/bool).
	Literal any
	// SequenceName holds the backing sequence for DefaultSequence (Postgres only).
	SequenceName string
	// Expression holds a database-generated expression's literal source
	// text for DefaultExpression (e.g. a check constraint expression).
	Expression string
}

// Equal reports structural equality, used by the differ's no-op detection.
// It deliberately does not attempt cross-dialect NOW normalization; the
// differ's defaultsEquivalent layers that on top.
func (d Default) Equal(o Default) bool {
	if d.Kind != o.Kind {
		return false
	}
	switch d.Kind {
	case DefaultLiteral:
		return fmt.Sprint(d.Literal) == fmt.Sprint(o.Literal)
	case DefaultSequence:
		return d.SequenceName == o.SequenceName
	case DefaultExpression:
		return d.Expression == o.Expression
	default:
		return true
	}
}

// Column is one field of a Table.
type Column struct {
	Name          string
	Type          ColumnType
	Default       Default
	AutoIncrement bool
}

// IndexType distinguishes uniqueness-enforcing indexes from plain ones.
type IndexType string

const (
	IndexUnique IndexType = "Unique"
	IndexNormal IndexType = "Normal"
)

// Index is a named, ordered set of columns.
type Index struct {
	Name    string
	Columns []string
	Type    IndexType
}

// PrimaryKey is the table's identity constraint.
type PrimaryKey struct {
	Columns []string
	// Sequence is set when the PK's sole column is backed by a Postgres
	// sequence (SERIAL/IDENTITY-style autoincrement).
	Sequence string
}

// OnDeleteAction mirrors the referential actions relevant to migration planning.
type OnDeleteAction string

const (
	OnDeleteNoAction  OnDeleteAction = "NoAction"
	OnDeleteCascade   OnDeleteAction = "Cascade"
	OnDeleteSetNull   OnDeleteAction = "SetNull"
	OnDeleteSetDefault OnDeleteAction = "SetDefault"
	OnDeleteRestrict  OnDeleteAction = "Restrict"
)

// ForeignKey references another table's columns from this table's columns.
type ForeignKey struct {
	// Name is empty when the dialect doesn't report constraint names
	// (SQLite) or when unset prior to rendering.
	Name               string
	Columns            []string
	ReferencedTable    string
	ReferencedColumns  []string
	OnDelete           OnDeleteAction
}

// Table is a named collection of columns plus its constraints.
type Table struct {
	Name        string
	Columns     []Column
	PrimaryKey  *PrimaryKey
	Indexes     []Index
	ForeignKeys []ForeignKey
}

// Column looks up a column by name, returning ok=false if absent.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Enum is a schema-level named enumeration (Postgres CREATE TYPE, or the
// synthetic per-column enum MySQL derives its inline ENUM(...) from).
type Enum struct {
	Name   string
	Values []string
}

// Sequence is a standalone Postgres sequence object.
type Sequence struct {
	Name    string
	Start   int64
	Cache   int64 // allocation size
}

// Schema is the full physical image of a database: every table, enum and
// sequence, as produced by the calculator or by introspection. Once built it
// is never mutated — differs and renderers only ever read from it.
type Schema struct {
	Dialect   Dialect
	Tables    []Table
	Enums     []Enum
	Sequences []Sequence
}

// Table looks up a table by name.
func (s Schema) Table(name string) (Table, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Enum looks up an enum type by name.
func (s Schema) Enum(name string) (Enum, bool) {
	for _, e := range s.Enums {
		if e.Name == name {
			return e, true
		}
	}
	return Enum{}, false
}
