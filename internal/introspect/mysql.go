package introspect

import (
	"context"
	"database/sql"

	"github.com/dmschema/migrate/internal/sqlschema"
)

// MySQL introspects a live MySQL/MariaDB database via information_schema.
// Enums are inline per-column, so there is no separate enum catalog to walk —
// the column's own type string carries its value list.
type MySQL struct {
	db *sql.DB
}

func (m *MySQL) Introspect(ctx context.Context) (sqlschema.Schema, error) {
	schema := sqlschema.Schema{Dialect: sqlschema.DialectMySQL}

	tableNames, err := m.tables(ctx)
	if err != nil {
		return sqlschema.Schema{}, err
	}
	for _, name := range tableNames {
		t, cols, err := m.table(ctx, name)
		if err != nil {
			return sqlschema.Schema{}, err
		}
		schema.Tables = append(schema.Tables, t)
		for _, c := range cols {
			if c.Type.Family == sqlschema.FamilyEnum {
				schema.Enums = append(schema.Enums, sqlschema.Enum{Name: c.Type.EnumName, Values: c.enumValues})
			}
		}
	}
	return schema, nil
}

type introspectedColumn struct {
	sqlschema.Column
	enumValues []string
}

func (m *MySQL) tables(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (m *MySQL) table(ctx context.Context, name string) (sqlschema.Table, []introspectedColumn, error) {
	t := sqlschema.Table{Name: name}

	cols, err := m.columns(ctx, name)
	if err != nil {
		return t, nil, err
	}
	for _, c := range cols {
		t.Columns = append(t.Columns, c.Column)
	}

	pk, err := m.primaryKeyColumns(ctx, name)
	if err != nil {
		return t, nil, err
	}
	if len(pk) > 0 {
		t.PrimaryKey = &sqlschema.PrimaryKey{Columns: pk}
	}

	idx, err := m.indexes(ctx, name)
	if err != nil {
		return t, nil, err
	}
	t.Indexes = idx

	fks, err := m.foreignKeys(ctx, name)
	if err != nil {
		return t, nil, err
	}
	t.ForeignKeys = fks

	return t, cols, nil
}

func (m *MySQL) columns(ctx context.Context, table string) ([]introspectedColumn, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT column_name, data_type, column_type, is_nullable, column_default, extra
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []introspectedColumn
	for rows.Next() {
		var name, dataType, columnType, nullable, extra string
		var def sql.NullString
		if err := rows.Scan(&name, &dataType, &columnType, &nullable, &def, &extra); err != nil {
			return nil, err
		}
		ct, values := mysqlColumnType(table, name, dataType, columnType)
		col := introspectedColumn{Column: sqlschema.Column{Name: name, Type: ct}, enumValues: values}
		if nullable == "NO" {
			col.Type.Arity = sqlschema.ArityRequired
		} else {
			col.Type.Arity = sqlschema.ArityNullable
		}
		if extra == "auto_increment" {
			col.AutoIncrement = true
		}
		if def.Valid {
			if def.String == "CURRENT_TIMESTAMP" {
				col.Default = sqlschema.Default{Kind: sqlschema.DefaultNow}
			} else {
				col.Default = sqlschema.Default{Kind: sqlschema.DefaultLiteral, Literal: def.String}
			}
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func mysqlColumnType(table, column, dataType, columnType string) (sqlschema.ColumnType, []string) {
	switch dataType {
	case "int", "bigint", "smallint", "tinyint":
		if dataType == "tinyint" && columnType == "tinyint(1)" {
			return sqlschema.ColumnType{Family: sqlschema.FamilyBoolean}, nil
		}
		return sqlschema.ColumnType{Family: sqlschema.FamilyInt}, nil
	case "double", "float", "decimal":
		return sqlschema.ColumnType{Family: sqlschema.FamilyFloat}, nil
	case "varchar", "text", "char", "mediumtext", "longtext":
		return sqlschema.ColumnType{Family: sqlschema.FamilyString}, nil
	case "datetime", "timestamp", "date":
		return sqlschema.ColumnType{Family: sqlschema.FamilyDateTime}, nil
	case "blob", "longblob", "mediumblob", "varbinary":
		return sqlschema.ColumnType{Family: sqlschema.FamilyBinary}, nil
	case "json":
		return sqlschema.ColumnType{Family: sqlschema.FamilyJson}, nil
	case "enum":
		name := table + "_" + column
		values := parseMySQLEnumValues(columnType)
		return sqlschema.ColumnType{Family: sqlschema.FamilyEnum, EnumName: name}, values
	default:
		return sqlschema.ColumnType{Family: sqlschema.FamilyUnknown, Native: columnType}, nil
	}
}

// parseMySQLEnumValues extracts the quoted value list out of a
// `enum('a','b','c')` COLUMN_TYPE string.
func parseMySQLEnumValues(columnType string) []string {
	start := len("enum(")
	if len(columnType) <= start || columnType[:start] != "enum(" {
		return nil
	}
	inner := columnType[start : len(columnType)-1]
	var values []string
	var cur []byte
	inQuote := false
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		switch {
		case c == '\'' && !inQuote:
			inQuote = true
		case c == '\'' && inQuote:
			if i+1 < len(inner) && inner[i+1] == '\'' {
				cur = append(cur, '\'')
				i++
				continue
			}
			inQuote = false
			values = append(values, string(cur))
			cur = nil
		case inQuote:
			cur = append(cur, c)
		}
	}
	return values
}

func (m *MySQL) primaryKeyColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT column_name FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE() AND table_name = ? AND constraint_name = 'PRIMARY'
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (m *MySQL) indexes(ctx context.Context, table string) ([]sqlschema.Index, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT index_name, column_name, non_unique
		FROM information_schema.statistics
		WHERE table_schema = DATABASE() AND table_name = ? AND index_name != 'PRIMARY'
		ORDER BY index_name, seq_in_index`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	order := []string{}
	byName := map[string]*sqlschema.Index{}
	for rows.Next() {
		var name, col string
		var nonUnique int
		if err := rows.Scan(&name, &col, &nonUnique); err != nil {
			return nil, err
		}
		idx, ok := byName[name]
		if !ok {
			typ := sqlschema.IndexUnique
			if nonUnique != 0 {
				typ = sqlschema.IndexNormal
			}
			idx = &sqlschema.Index{Name: name, Type: typ}
			byName[name] = idx
			order = append(order, name)
		}
		idx.Columns = append(idx.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]sqlschema.Index, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

func (m *MySQL) foreignKeys(ctx context.Context, table string) ([]sqlschema.ForeignKey, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT kcu.constraint_name, kcu.column_name, kcu.referenced_table_name, kcu.referenced_column_name, rc.delete_rule
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_schema = kcu.table_schema AND rc.constraint_name = kcu.constraint_name
		WHERE kcu.table_schema = DATABASE() AND kcu.table_name = ? AND kcu.referenced_table_name IS NOT NULL
		ORDER BY kcu.constraint_name, kcu.ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	order := []string{}
	byName := map[string]*sqlschema.ForeignKey{}
	for rows.Next() {
		var name, col, refTable, refCol, deleteRule string
		if err := rows.Scan(&name, &col, &refTable, &refCol, &deleteRule); err != nil {
			return nil, err
		}
		fk, ok := byName[name]
		if !ok {
			fk = &sqlschema.ForeignKey{Name: name, ReferencedTable: refTable, OnDelete: mysqlOnDelete(deleteRule)}
			byName[name] = fk
			order = append(order, name)
		}
		fk.Columns = append(fk.Columns, col)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refCol)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]sqlschema.ForeignKey, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

func mysqlOnDelete(rule string) sqlschema.OnDeleteAction {
	switch rule {
	case "CASCADE":
		return sqlschema.OnDeleteCascade
	case "SET NULL":
		return sqlschema.OnDeleteSetNull
	case "RESTRICT":
		return sqlschema.OnDeleteRestrict
	default:
		return sqlschema.OnDeleteNoAction
	}
}
