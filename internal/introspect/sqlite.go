package introspect

import (
	"context"
	"database/sql"
	"strings"

	"github.com/dmschema/migrate/internal/sqlschema"
)

// SQLite introspects a live SQLite database via sqlite_master and the
// table_info/foreign_key_list/index_list pragmas. SQLite never reports a
// foreign key's constraint name (it has none — FKs are unnamed per §6.4),
// and has no enum catalog at all.
type SQLite struct {
	db *sql.DB
}

func (s *SQLite) Introspect(ctx context.Context) (sqlschema.Schema, error) {
	schema := sqlschema.Schema{Dialect: sqlschema.DialectSQLite}

	names, err := s.tables(ctx)
	if err != nil {
		return sqlschema.Schema{}, err
	}
	for _, name := range names {
		t, err := s.table(ctx, name)
		if err != nil {
			return sqlschema.Schema{}, err
		}
		schema.Tables = append(schema.Tables, t)
	}
	return schema, nil
}

func (s *SQLite) tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name != '_migration' ORDER BY name`)
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

func (s *SQLite) table(ctx context.Context, name string) (sqlschema.Table, error) {
	t := sqlschema.Table{Name: name}

	rows, err := s.db.QueryContext(ctx, `PRAGMA table_info(`+quoteIdentForPragma(name)+`)`)
	if err != nil {
		return t, err
	}
	var pkCols []struct {
		order int
		name  string
	}
	for rows.Next() {
		var cid int
		var colName, colType string
		var notNull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return t, err
		}
		col := sqlschema.Column{Name: colName, Type: sqliteColumnType(colType)}
		if notNull != 0 || pk > 0 {
			col.Type.Arity = sqlschema.ArityRequired
		} else {
			col.Type.Arity = sqlschema.ArityNullable
		}
		if dflt.Valid {
			if strings.EqualFold(dflt.String, "CURRENT_TIMESTAMP") {
				col.Default = sqlschema.Default{Kind: sqlschema.DefaultNow}
			} else {
				col.Default = sqlschema.Default{Kind: sqlschema.DefaultLiteral, Literal: strings.Trim(dflt.String, "'\"")}
			}
		}
		if pk == 1 && col.Type.Family == sqlschema.FamilyInt {
			col.AutoIncrement = true // SQLite's INTEGER PRIMARY KEY is always an alias for the autoincrementing rowid
		}
		t.Columns = append(t.Columns, col)
		if pk > 0 {
			pkCols = append(pkCols, struct {
				order int
				name  string
			}{pk, colName})
		}
	}
	rows.Close()

	if len(pkCols) > 0 {
		for i := 0; i < len(pkCols); i++ {
			for j := i + 1; j < len(pkCols); j++ {
				if pkCols[j].order < pkCols[i].order {
					pkCols[i], pkCols[j] = pkCols[j], pkCols[i]
				}
			}
		}
		cols := make([]string, len(pkCols))
		for i, p := range pkCols {
			cols[i] = p.name
		}
		t.PrimaryKey = &sqlschema.PrimaryKey{Columns: cols}
	}

	idx, err := s.indexes(ctx, name)
	if err != nil {
		return t, err
	}
	t.Indexes = idx

	fks, err := s.foreignKeys(ctx, name)
	if err != nil {
		return t, err
	}
	t.ForeignKeys = fks

	return t, nil
}

func sqliteColumnType(raw string) sqlschema.ColumnType {
	upper := strings.ToUpper(raw)
	switch {
	case strings.Contains(upper, "INT"):
		return sqlschema.ColumnType{Family: sqlschema.FamilyInt}
	case strings.Contains(upper, "REAL"), strings.Contains(upper, "FLOA"), strings.Contains(upper, "DOUB"):
		return sqlschema.ColumnType{Family: sqlschema.FamilyFloat}
	case strings.Contains(upper, "BOOL"):
		return sqlschema.ColumnType{Family: sqlschema.FamilyBoolean}
	case strings.Contains(upper, "DATE") || strings.Contains(upper, "TIME"):
		return sqlschema.ColumnType{Family: sqlschema.FamilyDateTime}
	case strings.Contains(upper, "BLOB"):
		return sqlschema.ColumnType{Family: sqlschema.FamilyBinary}
	case strings.Contains(upper, "CHAR") || strings.Contains(upper, "TEXT") || strings.Contains(upper, "CLOB") || raw == "":
		return sqlschema.ColumnType{Family: sqlschema.FamilyString}
	default:
		return sqlschema.ColumnType{Family: sqlschema.FamilyString, Native: raw}
	}
}

func (s *SQLite) indexes(ctx context.Context, table string) ([]sqlschema.Index, error) {
	rows, err := s.db.QueryContext(ctx, `PRAGMA index_list(`+quoteIdentForPragma(table)+`)`)
	if err != nil {
		return nil, err
	}
	type listRow struct {
		name   string
		unique int
		origin string
	}
	var list []listRow
	for rows.Next() {
		var seq int
		var name, origin string
		var unique, partial int
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, listRow{name: name, unique: unique, origin: origin})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []sqlschema.Index
	for _, li := range list {
		if li.origin == "pk" {
			continue // already captured via table_info
		}
		cols, err := s.indexColumns(ctx, li.name)
		if err != nil {
			return nil, err
		}
		typ := sqlschema.IndexNormal
		if li.unique != 0 {
			typ = sqlschema.IndexUnique
		}
		out = append(out, sqlschema.Index{Name: li.name, Columns: cols, Type: typ})
	}
	return out, nil
}

func (s *SQLite) indexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `PRAGMA index_info(`+quoteIdentForPragma(index)+`)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		if name.Valid {
			cols = append(cols, name.String)
		}
	}
	return cols, rows.Err()
}

// foreignKeys reads PRAGMA foreign_key_list, which groups multi-column FKs
// under a shared "id" but never carries a constraint name — SQLite simply
// doesn't have one, matching §6.4.
func (s *SQLite) foreignKeys(ctx context.Context, table string) ([]sqlschema.ForeignKey, error) {
	rows, err := s.db.QueryContext(ctx, `PRAGMA foreign_key_list(`+quoteIdentForPragma(table)+`)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	order := []int{}
	byID := map[int]*sqlschema.ForeignKey{}
	for rows.Next() {
		var id, seq int
		var refTable, from, to, onUpdate, onDelete, match string
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}
		fk, ok := byID[id]
		if !ok {
			fk = &sqlschema.ForeignKey{ReferencedTable: refTable, OnDelete: sqliteOnDelete(onDelete)}
			byID[id] = fk
			order = append(order, id)
		}
		fk.Columns = append(fk.Columns, from)
		fk.ReferencedColumns = append(fk.ReferencedColumns, to)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]sqlschema.ForeignKey, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func sqliteOnDelete(raw string) sqlschema.OnDeleteAction {
	switch strings.ToUpper(raw) {
	case "CASCADE":
		return sqlschema.OnDeleteCascade
	case "SET NULL":
		return sqlschema.OnDeleteSetNull
	case "SET DEFAULT":
		return sqlschema.OnDeleteSetDefault
	case "RESTRICT":
		return sqlschema.OnDeleteRestrict
	default:
		return sqlschema.OnDeleteNoAction
	}
}

// quoteIdentForPragma wraps an identifier for interpolation into a PRAGMA
// statement: SQLite's PRAGMA grammar doesn't accept bound parameters for
// its argument, so callers must quote it inline.
func quoteIdentForPragma(name string) string {
	return `'` + strings.ReplaceAll(name, `'`, `''`) + `'`
}
