// Package differ computes an ordered list of structural migration steps
// between two physical schemas. It is a pure function: it never touches a
// database and never depends on row counts (that's internal/destructive).
package differ

import "github.com/dmschema/migrate/internal/sqlschema"

// Kind tags the variant carried by a Step.
type Kind string

const (
	KindCreateTable Kind = "CreateTable"
	KindDropTable   Kind = "DropTable"
	KindRenameTable Kind = "RenameTable"

	KindAddColumn   Kind = "AddColumn"
	KindDropColumn  Kind = "DropColumn"
	KindAlterColumn Kind = "AlterColumn"

	KindCreateIndex Kind = "CreateIndex"
	KindDropIndex   Kind = "DropIndex"
	KindAlterIndex  Kind = "AlterIndex"

	KindAddForeignKey  Kind = "AddForeignKey"
	KindDropForeignKey Kind = "DropForeignKey"

	KindCreateEnum Kind = "CreateEnum"
	KindDropEnum   Kind = "DropEnum"
	KindAlterEnum  Kind = "AlterEnum"

	KindCreateSequence Kind = "CreateSequence"
	KindDropSequence   Kind = "DropSequence"
)

// Step is one atomic change between two schemas. Only the fields relevant to
// Kind are populated; it is a sum type represented as a flat struct because
// Go has no tagged unions, following the same shape the sqlschema and
// datamodel packages use for their own sum-typed fields.
type Step struct {
	Kind Kind

	TableName    string // CreateTable/DropTable/RenameTable/AddColumn/DropColumn/AlterColumn/CreateIndex/DropIndex/AlterIndex/AddForeignKey/DropForeignKey
	NewTableName string // RenameTable

	Table sqlschema.Table // CreateTable (full definition); DropTable (definition being removed, for rendering CASCADE etc.)

	Column    sqlschema.Column // AddColumn/DropColumn (the column in question)
	OldColumn sqlschema.Column // AlterColumn
	NewColumn sqlschema.Column // AlterColumn

	Index    sqlschema.Index // CreateIndex/DropIndex
	OldIndex sqlschema.Index // AlterIndex
	NewIndex sqlschema.Index // AlterIndex

	ForeignKey sqlschema.ForeignKey // AddForeignKey/DropForeignKey

	EnumName     string   // CreateEnum/DropEnum/AlterEnum
	EnumValues   []string // CreateEnum (full initial value list)
	AddedValues  []string // AlterEnum, in the order they should be added
	DroppedValues []string // AlterEnum; non-empty makes the Postgres renderer return an error
	FinalValues  []string // AlterEnum; the complete next-schema value order, used to position ADD VALUE ... BEFORE

	Sequence sqlschema.Sequence // CreateSequence/DropSequence
}
