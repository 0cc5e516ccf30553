package calculator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmschema/migrate/internal/datamodel"
	"github.com/dmschema/migrate/internal/sqlschema"
)

func TestCalculateBasicTable(t *testing.T) {
	dm := datamodel.Datamodel{
		Models: []datamodel.Model{{
			Name: "User",
			Fields: []datamodel.Field{
				{Name: "id", Arity: datamodel.ArityRequired, IsID: true,
					Type:    datamodel.FieldType{Kind: datamodel.FieldTypeBase, Scalar: datamodel.ScalarInt},
					Default: datamodel.DefaultValue{Kind: datamodel.DefaultValueExpression, Generator: datamodel.GeneratorAutoincrement}},
				{Name: "email", Arity: datamodel.ArityRequired, IsUnique: true,
					Type: datamodel.FieldType{Kind: datamodel.FieldTypeBase, Scalar: datamodel.ScalarString}},
			},
		}},
	}

	schema, err := Calculate(dm, sqlschema.DialectPostgres)
	require.NoError(t, err)
	require.Len(t, schema.Tables, 1)

	table := schema.Tables[0]
	require.Equal(t, "User", table.Name)
	require.NotNil(t, table.PrimaryKey)
	require.Equal(t, []string{"id"}, table.PrimaryKey.Columns)
	require.Equal(t, "User_id_seq", table.PrimaryKey.Sequence, "postgres ids use a sequence default")

	emailCol, ok := table.Column("email")
	require.True(t, ok)
	require.Equal(t, sqlschema.FamilyString, emailCol.Type.Family)
	require.Len(t, table.Indexes, 1)
	require.Equal(t, sqlschema.IndexUnique, table.Indexes[0].Type)
}

func TestCalculateAutoincrementWithoutSequenceSupportUsesColumnFlag(t *testing.T) {
	dm := datamodel.Datamodel{
		Models: []datamodel.Model{{
			Name: "User",
			Fields: []datamodel.Field{
				{Name: "id", Arity: datamodel.ArityRequired, IsID: true,
					Type:    datamodel.FieldType{Kind: datamodel.FieldTypeBase, Scalar: datamodel.ScalarInt},
					Default: datamodel.DefaultValue{Kind: datamodel.DefaultValueExpression, Generator: datamodel.GeneratorAutoincrement}},
			},
		}},
	}

	schema, err := Calculate(dm, sqlschema.DialectSQLite)
	require.NoError(t, err)
	idCol, ok := schema.Tables[0].Column("id")
	require.True(t, ok)
	require.True(t, idCol.AutoIncrement)
	require.Equal(t, sqlschema.DefaultNone, idCol.Default.Kind)
}

func TestCalculateEnumRepresentationVariesByDialect(t *testing.T) {
	dm := datamodel.Datamodel{
		Enums: []datamodel.Enum{{Name: "Role", Values: []datamodel.EnumValue{{Name: "Admin"}, {Name: "Member"}}}},
		Models: []datamodel.Model{{
			Name: "User",
			Fields: []datamodel.Field{
				{Name: "role", Arity: datamodel.ArityRequired,
					Type: datamodel.FieldType{Kind: datamodel.FieldTypeEnum, EnumName: "Role"}},
			},
		}},
	}

	pg, err := Calculate(dm, sqlschema.DialectPostgres)
	require.NoError(t, err)
	require.Len(t, pg.Enums, 1, "postgres keeps a schema-level enum type")
	roleCol, _ := pg.Tables[0].Column("role")
	require.Equal(t, sqlschema.FamilyEnum, roleCol.Type.Family)
	require.Equal(t, "Role", roleCol.Type.EnumName)

	my, err := Calculate(dm, sqlschema.DialectMySQL)
	require.NoError(t, err)
	require.Empty(t, my.Enums, "mysql has no standalone enum object")
	roleCol, _ = my.Tables[0].Column("role")
	require.Equal(t, sqlschema.FamilyEnum, roleCol.Type.Family)
	require.Equal(t, "User_role", roleCol.Type.EnumName, "mysql synthesizes one inline enum per model+field")

	lite, err := Calculate(dm, sqlschema.DialectSQLite)
	require.NoError(t, err)
	roleCol, _ = lite.Tables[0].Column("role")
	require.Equal(t, sqlschema.FamilyString, roleCol.Type.Family, "sqlite has no enum family at all")
}

func TestCalculateListScalarRejectedWithoutArraySupport(t *testing.T) {
	dm := datamodel.Datamodel{
		Models: []datamodel.Model{{
			Name: "Post",
			Fields: []datamodel.Field{
				{Name: "tags", Arity: datamodel.ArityList,
					Type: datamodel.FieldType{Kind: datamodel.FieldTypeBase, Scalar: datamodel.ScalarString}},
			},
		}},
	}

	_, err := Calculate(dm, sqlschema.DialectMySQL)
	require.Error(t, err)

	schema, err := Calculate(dm, sqlschema.DialectPostgres)
	require.NoError(t, err)
	tagsCol, _ := schema.Tables[0].Column("tags")
	require.Equal(t, sqlschema.ArityList, tagsCol.Type.Arity)
}

func TestCalculateForeignKeyOnDeletePolicy(t *testing.T) {
	dm := datamodel.Datamodel{
		Models: []datamodel.Model{
			{Name: "User", Fields: []datamodel.Field{
				{Name: "id", Arity: datamodel.ArityRequired, IsID: true,
					Type: datamodel.FieldType{Kind: datamodel.FieldTypeBase, Scalar: datamodel.ScalarInt}},
			}},
			{Name: "Post", Fields: []datamodel.Field{
				{Name: "id", Arity: datamodel.ArityRequired, IsID: true,
					Type: datamodel.FieldType{Kind: datamodel.FieldTypeBase, Scalar: datamodel.ScalarInt}},
				{Name: "authorId", Arity: datamodel.ArityRequired,
					Type: datamodel.FieldType{Kind: datamodel.FieldTypeBase, Scalar: datamodel.ScalarInt}},
				{Name: "author", Arity: datamodel.ArityRequired,
					Type: datamodel.FieldType{Kind: datamodel.FieldTypeRelation, Relation: &datamodel.RelationInfo{
						To: "User", Fields: []string{"authorId"}, References: []string{"id"}, Name: "PostToUser",
					}}},
			}},
		},
	}

	schema, err := Calculate(dm, sqlschema.DialectPostgres)
	require.NoError(t, err)
	postTable, ok := schema.Table("Post")
	require.True(t, ok)
	require.Len(t, postTable.ForeignKeys, 1)
	fk := postTable.ForeignKeys[0]
	require.Equal(t, []string{"authorId"}, fk.Columns)
	require.Equal(t, "User", fk.ReferencedTable)
	require.Equal(t, sqlschema.OnDeleteCascade, fk.OnDelete, "required relation field defaults to cascade")
}

func TestCalculateImplicitManyToManyJoinTable(t *testing.T) {
	dm := datamodel.Datamodel{
		Models: []datamodel.Model{
			{Name: "Post", Fields: []datamodel.Field{
				{Name: "id", Arity: datamodel.ArityRequired, IsID: true,
					Type: datamodel.FieldType{Kind: datamodel.FieldTypeBase, Scalar: datamodel.ScalarInt}},
				{Name: "tags", Arity: datamodel.ArityList,
					Type: datamodel.FieldType{Kind: datamodel.FieldTypeRelation, Relation: &datamodel.RelationInfo{To: "Tag", Name: "PostToTag"}}},
			}},
			{Name: "Tag", Fields: []datamodel.Field{
				{Name: "id", Arity: datamodel.ArityRequired, IsID: true,
					Type: datamodel.FieldType{Kind: datamodel.FieldTypeBase, Scalar: datamodel.ScalarInt}},
				{Name: "posts", Arity: datamodel.ArityList,
					Type: datamodel.FieldType{Kind: datamodel.FieldTypeRelation, Relation: &datamodel.RelationInfo{To: "Post", Name: "PostToTag"}}},
			}},
		},
	}

	schema, err := Calculate(dm, sqlschema.DialectPostgres)
	require.NoError(t, err)
	require.Len(t, schema.Tables, 3, "two models plus one synthetic join table")

	var joinTable *sqlschema.Table
	for i := range schema.Tables {
		if schema.Tables[i].Name != "Post" && schema.Tables[i].Name != "Tag" {
			joinTable = &schema.Tables[i]
		}
	}
	require.NotNil(t, joinTable)
	require.Len(t, joinTable.ForeignKeys, 2)
}
