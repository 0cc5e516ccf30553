package introspect

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmschema/migrate/internal/sqlschema"
)

// Postgres introspects a live PostgreSQL database via information_schema and
// pg_catalog: tables, then each table's columns, indexes and foreign keys.
type Postgres struct {
	db *sql.DB
}

func (p *Postgres) Introspect(ctx context.Context) (sqlschema.Schema, error) {
	schema := sqlschema.Schema{Dialect: sqlschema.DialectPostgres}

	tables, err := p.tables(ctx)
	if err != nil {
		return sqlschema.Schema{}, err
	}
	for _, name := range tables {
		t, err := p.table(ctx, name)
		if err != nil {
			return sqlschema.Schema{}, fmt.Errorf("table %q: %w", name, err)
		}
		schema.Tables = append(schema.Tables, t)
	}

	enums, err := p.enums(ctx)
	if err != nil {
		return sqlschema.Schema{}, err
	}
	schema.Enums = enums

	return schema, nil
}

func (p *Postgres) tables(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`)
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

func (p *Postgres) table(ctx context.Context, name string) (sqlschema.Table, error) {
	t := sqlschema.Table{Name: name}

	cols, err := p.columns(ctx, name)
	if err != nil {
		return t, err
	}
	t.Columns = cols

	pkCols, err := p.primaryKeyColumns(ctx, name)
	if err != nil {
		return t, err
	}
	if len(pkCols) > 0 {
		t.PrimaryKey = &sqlschema.PrimaryKey{Columns: pkCols}
	}

	idx, err := p.indexes(ctx, name)
	if err != nil {
		return t, err
	}
	t.Indexes = idx

	fks, err := p.foreignKeys(ctx, name)
	if err != nil {
		return t, err
	}
	t.ForeignKeys = fks

	return t, nil
}

func (p *Postgres) columns(ctx context.Context, table string) ([]sqlschema.Column, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT column_name, data_type, udt_name, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []sqlschema.Column
	for rows.Next() {
		var name, dataType, udtName, nullable string
		var def sql.NullString
		if err := rows.Scan(&name, &dataType, &udtName, &nullable, &def); err != nil {
			return nil, err
		}
		col := sqlschema.Column{Name: name, Type: postgresColumnType(dataType, udtName)}
		if nullable == "NO" {
			col.Type.Arity = sqlschema.ArityRequired
		} else {
			col.Type.Arity = sqlschema.ArityNullable
		}
		if def.Valid {
			col.Default = postgresDefault(def.String)
			if col.Default.Kind == sqlschema.DefaultSequence {
				col.AutoIncrement = false // Postgres backs autoincrement with a real sequence, not a flag
			}
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func postgresColumnType(dataType, udtName string) sqlschema.ColumnType {
	switch dataType {
	case "integer", "bigint", "smallint":
		return sqlschema.ColumnType{Family: sqlschema.FamilyInt}
	case "double precision", "real", "numeric":
		return sqlschema.ColumnType{Family: sqlschema.FamilyFloat}
	case "boolean":
		return sqlschema.ColumnType{Family: sqlschema.FamilyBoolean}
	case "text", "character varying", "character":
		return sqlschema.ColumnType{Family: sqlschema.FamilyString}
	case "timestamp without time zone", "timestamp with time zone", "date":
		return sqlschema.ColumnType{Family: sqlschema.FamilyDateTime}
	case "bytea":
		return sqlschema.ColumnType{Family: sqlschema.FamilyBinary}
	case "jsonb", "json":
		return sqlschema.ColumnType{Family: sqlschema.FamilyJson}
	case "uuid":
		return sqlschema.ColumnType{Family: sqlschema.FamilyUuid}
	case "ARRAY":
		return sqlschema.ColumnType{Family: sqlschema.FamilyString, Arity: sqlschema.ArityList}
	case "USER-DEFINED":
		return sqlschema.ColumnType{Family: sqlschema.FamilyEnum, EnumName: udtName}
	default:
		return sqlschema.ColumnType{Family: sqlschema.FamilyUnknown, Native: dataType}
	}
}

func postgresDefault(raw string) sqlschema.Default {
	switch {
	case raw == "CURRENT_TIMESTAMP" || raw == "now()":
		return sqlschema.Default{Kind: sqlschema.DefaultNow}
	default:
		if len(raw) > 8 && raw[:8] == "nextval(" {
			return sqlschema.Default{Kind: sqlschema.DefaultSequence, SequenceName: raw}
		}
		return sqlschema.Default{Kind: sqlschema.DefaultExpression, Expression: raw}
	}
}

func (p *Postgres) primaryKeyColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT a.attname
		FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		WHERE i.indrelid = $1::regclass AND i.indisprimary
		ORDER BY array_position(i.indkey, a.attnum)`, table)
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

func (p *Postgres) indexes(ctx context.Context, table string) ([]sqlschema.Index, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT ic.relname AS index_name, a.attname AS column_name, ix.indisunique, ix.indisprimary
		FROM pg_index ix
		JOIN pg_class ic ON ic.oid = ix.indexrelid
		JOIN pg_class tc ON tc.oid = ix.indrelid
		JOIN pg_attribute a ON a.attrelid = tc.oid AND a.attnum = ANY(ix.indkey)
		WHERE tc.relname = $1
		ORDER BY ic.relname, array_position(ix.indkey, a.attnum)`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	order := []string{}
	byName := map[string]*sqlschema.Index{}
	for rows.Next() {
		var name, col string
		var unique, isPrimary bool
		if err := rows.Scan(&name, &col, &unique, &isPrimary); err != nil {
			return nil, err
		}
		if isPrimary {
			continue
		}
		idx, ok := byName[name]
		if !ok {
			typ := sqlschema.IndexNormal
			if unique {
				typ = sqlschema.IndexUnique
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

func (p *Postgres) foreignKeys(ctx context.Context, table string) ([]sqlschema.ForeignKey, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT
			con.conname,
			a.attname AS local_column,
			ft.relname AS referenced_table,
			fa.attname AS referenced_column,
			con.confdeltype
		FROM pg_constraint con
		JOIN pg_class t ON t.oid = con.conrelid
		JOIN pg_class ft ON ft.oid = con.confrelid
		JOIN unnest(con.conkey) WITH ORDINALITY AS ck(attnum, ord) ON true
		JOIN unnest(con.confkey) WITH ORDINALITY AS fck(attnum, ord) ON fck.ord = ck.ord
		JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = ck.attnum
		JOIN pg_attribute fa ON fa.attrelid = con.confrelid AND fa.attnum = fck.attnum
		WHERE con.contype = 'f' AND t.relname = $1
		ORDER BY con.conname, ck.ord`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	order := []string{}
	byName := map[string]*sqlschema.ForeignKey{}
	for rows.Next() {
		var name, localCol, refTable, refCol, deleteType string
		if err := rows.Scan(&name, &localCol, &refTable, &refCol, &deleteType); err != nil {
			return nil, err
		}
		fk, ok := byName[name]
		if !ok {
			fk = &sqlschema.ForeignKey{Name: name, ReferencedTable: refTable, OnDelete: postgresOnDelete(deleteType)}
			byName[name] = fk
			order = append(order, name)
		}
		fk.Columns = append(fk.Columns, localCol)
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

func postgresOnDelete(code string) sqlschema.OnDeleteAction {
	switch code {
	case "c":
		return sqlschema.OnDeleteCascade
	case "n":
		return sqlschema.OnDeleteSetNull
	case "d":
		return sqlschema.OnDeleteSetDefault
	case "r":
		return sqlschema.OnDeleteRestrict
	default:
		return sqlschema.OnDeleteNoAction
	}
}

func (p *Postgres) enums(ctx context.Context) ([]sqlschema.Enum, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON e.enumtypid = t.oid
		ORDER BY t.typname, e.enumsortorder`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	order := []string{}
	byName := map[string]*sqlschema.Enum{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		e, ok := byName[name]
		if !ok {
			e = &sqlschema.Enum{Name: name}
			byName[name] = e
			order = append(order, name)
		}
		e.Values = append(e.Values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]sqlschema.Enum, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}
