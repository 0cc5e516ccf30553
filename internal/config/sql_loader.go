package config

import (
	"fmt"
	"os"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/dmschema/migrate/internal/datamodel"
	"github.com/dmschema/migrate/internal/dmcalculator"
	"github.com/dmschema/migrate/internal/sqlschema"
)

// LoadSQLSchema reads a plain CREATE TABLE dump and turns it into a
// datamodel.Datamodel, for projects that keep their desired schema as a
// .sql file instead of a serialized datamodel document. Only the Postgres
// dialect of DDL is understood, since pg_query_go is a Postgres grammar;
// the resulting tables are dialect-agnostic once run through
// dmcalculator.Calculate.
func LoadSQLSchema(path string) (*datamodel.Datamodel, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	schema, err := parseSQLSchema(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	dm, err := dmcalculator.Calculate(schema)
	if err != nil {
		return nil, fmt.Errorf("calculating datamodel from %s: %w", path, err)
	}
	return &dm, nil
}

func parseSQLSchema(sql string) (sqlschema.Schema, error) {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return sqlschema.Schema{}, fmt.Errorf("failed to parse SQL: %w", err)
	}

	schema := sqlschema.Schema{Dialect: sqlschema.DialectPostgres}

	for _, stmt := range tree.Stmts {
		if stmt.Stmt == nil {
			continue
		}
		create, ok := stmt.Stmt.Node.(*pg_query.Node_CreateStmt)
		if !ok {
			continue
		}
		table, err := parseCreateTable(create.CreateStmt)
		if err != nil {
			return sqlschema.Schema{}, fmt.Errorf("CREATE TABLE: %w", err)
		}
		schema.Tables = append(schema.Tables, table)
	}
	return schema, nil
}

func parseCreateTable(stmt *pg_query.CreateStmt) (sqlschema.Table, error) {
	if stmt.Relation == nil {
		return sqlschema.Table{}, fmt.Errorf("missing relation")
	}

	table := sqlschema.Table{Name: stmt.Relation.Relname}
	var pkCols []string

	for _, elt := range stmt.TableElts {
		if elt.Node == nil {
			continue
		}
		colDef, ok := elt.Node.(*pg_query.Node_ColumnDef)
		if !ok {
			continue
		}
		col, isPK, err := parseColumnDef(colDef.ColumnDef)
		if err != nil {
			return sqlschema.Table{}, err
		}
		table.Columns = append(table.Columns, col)
		if isPK {
			pkCols = append(pkCols, col.Name)
		}
	}

	if len(pkCols) > 0 {
		table.PrimaryKey = &sqlschema.PrimaryKey{Columns: pkCols}
	}
	return table, nil
}

func parseColumnDef(colDef *pg_query.ColumnDef) (sqlschema.Column, bool, error) {
	if colDef.Colname == "" {
		return sqlschema.Column{}, false, fmt.Errorf("column missing name")
	}

	col := sqlschema.Column{
		Name: colDef.Colname,
		Type: sqlschema.ColumnType{Family: sqlschema.FamilyString, Arity: sqlschema.ArityNullable},
	}
	if colDef.TypeName != nil {
		col.Type = sqlColumnType(formatTypeName(colDef.TypeName))
		col.Type.Arity = sqlschema.ArityNullable
	}

	var isPK bool
	for _, constraint := range colDef.Constraints {
		cons, ok := constraint.Node.(*pg_query.Node_Constraint)
		if !ok {
			continue
		}
		switch cons.Constraint.Contype {
		case pg_query.ConstrType_CONSTR_NOTNULL:
			col.Type.Arity = sqlschema.ArityRequired
		case pg_query.ConstrType_CONSTR_PRIMARY:
			isPK = true
			col.Type.Arity = sqlschema.ArityRequired
		case pg_query.ConstrType_CONSTR_DEFAULT:
			if cons.Constraint.RawExpr != nil {
				col.Default = sqlDefaultFromExpr(cons.Constraint.RawExpr)
			}
		}
	}

	return col, isPK, nil
}

func formatTypeName(typeName *pg_query.TypeName) string {
	var parts []string
	for _, name := range typeName.Names {
		if n, ok := name.Node.(*pg_query.Node_String_); ok {
			parts = append(parts, n.String_.Sval)
		}
	}
	if len(parts) > 1 && parts[0] == "pg_catalog" {
		return parts[len(parts)-1]
	}
	return strings.Join(parts, ".")
}

func sqlColumnType(raw string) sqlschema.ColumnType {
	switch strings.ToLower(raw) {
	case "int2", "int4", "int8", "serial", "serial4", "serial8", "bigserial", "smallserial":
		return sqlschema.ColumnType{Family: sqlschema.FamilyInt}
	case "float4", "float8", "numeric", "decimal":
		return sqlschema.ColumnType{Family: sqlschema.FamilyFloat}
	case "bool":
		return sqlschema.ColumnType{Family: sqlschema.FamilyBoolean}
	case "text", "varchar", "bpchar":
		return sqlschema.ColumnType{Family: sqlschema.FamilyString}
	case "timestamp", "timestamptz", "date", "time", "timetz":
		return sqlschema.ColumnType{Family: sqlschema.FamilyDateTime}
	case "bytea":
		return sqlschema.ColumnType{Family: sqlschema.FamilyBinary}
	case "json", "jsonb":
		return sqlschema.ColumnType{Family: sqlschema.FamilyJson}
	case "uuid":
		return sqlschema.ColumnType{Family: sqlschema.FamilyUuid}
	default:
		return sqlschema.ColumnType{Family: sqlschema.FamilyUnknown, Native: raw}
	}
}

func sqlDefaultFromExpr(node *pg_query.Node) sqlschema.Default {
	if node == nil {
		return sqlschema.Default{}
	}
	switch expr := node.Node.(type) {
	case *pg_query.Node_AConst:
		if sval := expr.AConst.GetSval(); sval != nil {
			return sqlschema.Default{Kind: sqlschema.DefaultExpression, Expression: sval.Sval}
		}
		if ival := expr.AConst.GetIval(); ival != nil {
			return sqlschema.Default{Kind: sqlschema.DefaultExpression, Expression: fmt.Sprintf("%d", ival.Ival)}
		}
	case *pg_query.Node_FuncCall:
		if len(expr.FuncCall.Funcname) > 0 {
			if n, ok := expr.FuncCall.Funcname[0].Node.(*pg_query.Node_String_); ok {
				if strings.EqualFold(n.String_.Sval, "now") {
					return sqlschema.Default{Kind: sqlschema.DefaultNow}
				}
			}
		}
	}
	return sqlschema.Default{Kind: sqlschema.DefaultExpression, Expression: "UNDEFINED_EXPRESSION"}
}
