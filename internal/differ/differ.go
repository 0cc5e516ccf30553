package differ

import (
	"fmt"

	"github.com/dmschema/migrate/internal/sqlschema"
)

// Diff computes the ordered migration steps to evolve prev into next on the
// given dialect, following the algorithm and emission order in the
// engine's structural-diffing design: tables/columns/indexes/FKs/enums are
// matched by name (never by position or heuristic rename detection — a
// rename surfaces as a drop followed by a create), and steps are grouped
// into phases so that no intermediate state violates referential integrity.
func Diff(prev, next sqlschema.Schema, dialect sqlschema.Dialect) ([]Step, error) {
	d := &differ{prev: prev, next: next, dialect: dialect}
	return d.run()
}

type differ struct {
	prev, next sqlschema.Schema
	dialect    sqlschema.Dialect
}

type tableDiff struct {
	name string

	addedColumns    []sqlschema.Column
	removedColumns  []sqlschema.Column
	alteredColumns  [][2]sqlschema.Column // [old, new]

	addedIndexes   []sqlschema.Index
	removedIndexes []sqlschema.Index
	renamedIndexes [][2]sqlschema.Index // [old, new]

	addedFKs   []sqlschema.ForeignKey
	removedFKs []sqlschema.ForeignKey
}

func (d *differ) run() ([]Step, error) {
	prevTables := indexTables(d.prev.Tables)
	nextTables := indexTables(d.next.Tables)

	var created, dropped, retained []string
	for _, t := range d.next.Tables {
		if _, ok := prevTables[t.Name]; !ok {
			created = append(created, t.Name)
		} else {
			retained = append(retained, t.Name)
		}
	}
	for _, t := range d.prev.Tables {
		if _, ok := nextTables[t.Name]; !ok {
			dropped = append(dropped, t.Name)
		}
	}

	diffs := make(map[string]tableDiff, len(retained))
	for _, name := range retained {
		td, err := d.diffTable(prevTables[name], nextTables[name])
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", name, err)
		}
		diffs[name] = td
	}

	var steps []Step

	// 1. Drop FKs referencing about-to-change tables (retained tables losing
	//    a FK, plus every FK on a table about to be dropped).
	for _, name := range retained {
		for _, fk := range diffs[name].removedFKs {
			steps = append(steps, Step{Kind: KindDropForeignKey, TableName: name, ForeignKey: fk})
		}
	}
	for _, name := range dropped {
		for _, fk := range prevTables[name].ForeignKeys {
			steps = append(steps, Step{Kind: KindDropForeignKey, TableName: name, ForeignKey: fk})
		}
	}

	// 2. Drop indexes that reference about-to-drop or about-to-alter columns
	//    (here: all indexes being removed outright, plus drop+create pairs
	//    for retained indexes whose rename can't be done in place).
	for _, name := range retained {
		td := diffs[name]
		for _, idx := range td.removedIndexes {
			steps = append(steps, Step{Kind: KindDropIndex, TableName: name, Index: idx})
		}
		if !d.dialect.SupportsIndexRename() {
			for _, pair := range td.renamedIndexes {
				steps = append(steps, Step{Kind: KindDropIndex, TableName: name, Index: pair[0]})
			}
		}
	}

	// 3. Drop tables, reverse topological order by FK (approximated here by
	//    dropping in the order the dropped set was discovered, reversed,
	//    which matches prev-schema appearance order reversed per the
	//    tie-break rule applied to a removal phase).
	for i := len(dropped) - 1; i >= 0; i-- {
		steps = append(steps, Step{Kind: KindDropTable, TableName: dropped[i], Table: prevTables[dropped[i]]})
	}

	// 4. Alter columns, drop columns, add columns (preserving each column's
	//    own appearance order within its list).
	for _, name := range retained {
		td := diffs[name]
		for _, pair := range td.alteredColumns {
			steps = append(steps, Step{Kind: KindAlterColumn, TableName: name, OldColumn: pair[0], NewColumn: pair[1]})
		}
		for _, col := range td.removedColumns {
			steps = append(steps, Step{Kind: KindDropColumn, TableName: name, Column: col})
		}
		for _, col := range td.addedColumns {
			steps = append(steps, Step{Kind: KindAddColumn, TableName: name, Column: col})
		}
	}

	// 5. Create tables, topological order by FK: a table can be created once
	//    every table it references (among the created set) already exists.
	for _, name := range d.topoSortCreated(created, nextTables) {
		steps = append(steps, Step{Kind: KindCreateTable, TableName: name, Table: nextTables[name]})
	}

	// 6. Create indexes: new indexes on retained tables, renamed indexes
	//    (as AlterIndex where supported, else CreateIndex for the drop+create
	//    fallback), and every index on newly created tables.
	for _, name := range retained {
		td := diffs[name]
		if d.dialect.SupportsIndexRename() {
			for _, pair := range td.renamedIndexes {
				steps = append(steps, Step{Kind: KindAlterIndex, TableName: name, OldIndex: pair[0], NewIndex: pair[1]})
			}
		} else {
			for _, pair := range td.renamedIndexes {
				steps = append(steps, Step{Kind: KindCreateIndex, TableName: name, Index: pair[1]})
			}
		}
		for _, idx := range td.addedIndexes {
			steps = append(steps, Step{Kind: KindCreateIndex, TableName: name, Index: idx})
		}
	}
	for _, name := range created {
		for _, idx := range nextTables[name].Indexes {
			steps = append(steps, Step{Kind: KindCreateIndex, TableName: name, Index: idx})
		}
	}

	// 7. Add/alter FKs: new FKs on retained tables, plus every FK on newly
	//    created tables (added only now that all tables exist).
	for _, name := range retained {
		for _, fk := range diffs[name].addedFKs {
			steps = append(steps, Step{Kind: KindAddForeignKey, TableName: name, ForeignKey: fk})
		}
	}
	for _, name := range created {
		for _, fk := range nextTables[name].ForeignKeys {
			steps = append(steps, Step{Kind: KindAddForeignKey, TableName: name, ForeignKey: fk})
		}
	}

	// 8. Enum creates/alters (drops last, since nothing after this phase
	//    could still reference a dropped enum).
	enumSteps, err := d.diffEnums()
	if err != nil {
		return nil, err
	}
	steps = append(steps, enumSteps...)

	return steps, nil
}

func indexTables(tables []sqlschema.Table) map[string]sqlschema.Table {
	m := make(map[string]sqlschema.Table, len(tables))
	for _, t := range tables {
		m[t.Name] = t
	}
	return m
}

// topoSortCreated orders newly created tables so a table referencing another
// newly created table (via FK) always comes after it. Ties preserve the
// order of appearance in next.
func (d *differ) topoSortCreated(created []string, nextTables map[string]sqlschema.Table) []string {
	createdSet := make(map[string]bool, len(created))
	for _, name := range created {
		createdSet[name] = true
	}

	var ordered []string
	visited := make(map[string]bool, len(created))
	visiting := make(map[string]bool, len(created))

	var visit func(name string)
	visit = func(name string) {
		if visited[name] || visiting[name] {
			return
		}
		visiting[name] = true
		for _, fk := range nextTables[name].ForeignKeys {
			if createdSet[fk.ReferencedTable] && fk.ReferencedTable != name {
				visit(fk.ReferencedTable)
			}
		}
		visiting[name] = false
		visited[name] = true
		ordered = append(ordered, name)
	}
	for _, name := range created {
		visit(name)
	}
	return ordered
}

// diffTable computes the column/index/FK diffs between one retained table's
// prev and next shapes, matching every sub-object by name.
func (d *differ) diffTable(prev, next sqlschema.Table) (tableDiff, error) {
	td := tableDiff{name: next.Name}

	if !primaryKeyColumnsEqual(prev.PrimaryKey, next.PrimaryKey) {
		return tableDiff{}, fmt.Errorf(
			"primary key of %q changed (from %v to %v): altering a retained table's primary key requires a table rebuild, which this differ does not emit — drop and recreate the table instead",
			next.Name, primaryKeyColumns(prev.PrimaryKey), primaryKeyColumns(next.PrimaryKey))
	}

	prevCols := indexColumns(prev.Columns)
	for _, col := range next.Columns {
		old, ok := prevCols[col.Name]
		if !ok {
			td.addedColumns = append(td.addedColumns, col)
			continue
		}
		if !d.columnsEqual(old, col) {
			td.alteredColumns = append(td.alteredColumns, [2]sqlschema.Column{old, col})
		}
	}
	nextCols := indexColumns(next.Columns)
	for _, col := range prev.Columns {
		if _, ok := nextCols[col.Name]; !ok {
			td.removedColumns = append(td.removedColumns, col)
		}
	}

	prevIdx := indexIndexes(prev.Indexes)
	nextIdx := indexIndexes(next.Indexes)
	matchedNext := make(map[string]bool)
	for _, idx := range prev.Indexes {
		if _, ok := nextIdx[idx.Name]; ok {
			continue // same name: compared against its next shape below
		}
		// Name not present in next: either dropped, or renamed (same columns+type).
		if renamed, ok := findIndexRename(idx, next.Indexes, prevIdx); ok {
			td.renamedIndexes = append(td.renamedIndexes, [2]sqlschema.Index{idx, renamed})
			matchedNext[renamed.Name] = true
			continue
		}
		td.removedIndexes = append(td.removedIndexes, idx)
	}
	for _, idx := range next.Indexes {
		if matchedNext[idx.Name] {
			continue
		}
		if old, ok := prevIdx[idx.Name]; ok {
			if indexColumnsEqual(old, idx) {
				continue // unchanged
			}
			// Same name, different shape: treat as drop+create.
			td.removedIndexes = append(td.removedIndexes, old)
			td.addedIndexes = append(td.addedIndexes, idx)
			continue
		}
		td.addedIndexes = append(td.addedIndexes, idx)
	}

	prevFKs := indexForeignKeys(prev.ForeignKeys)
	nextFKs := indexForeignKeys(next.ForeignKeys)
	for key, fk := range nextFKs {
		if _, ok := prevFKs[key]; !ok {
			td.addedFKs = append(td.addedFKs, fk)
		}
	}
	for key, fk := range prevFKs {
		if _, ok := nextFKs[key]; !ok {
			td.removedFKs = append(td.removedFKs, fk)
		}
	}

	return td, nil
}

// primaryKeyColumnsEqual reports whether two primary keys name the same
// columns in the same order; a nil PrimaryKey is treated as having none.
// There is no AlterPrimaryKey step (§3.3), so a retained table whose PK
// columns change is rejected here rather than silently left undiffed.
func primaryKeyColumnsEqual(a, b *sqlschema.PrimaryKey) bool {
	ac, bc := primaryKeyColumns(a), primaryKeyColumns(b)
	if len(ac) != len(bc) {
		return false
	}
	for i := range ac {
		if ac[i] != bc[i] {
			return false
		}
	}
	return true
}

func primaryKeyColumns(pk *sqlschema.PrimaryKey) []string {
	if pk == nil {
		return nil
	}
	return pk.Columns
}

func indexColumns(cols []sqlschema.Column) map[string]sqlschema.Column {
	m := make(map[string]sqlschema.Column, len(cols))
	for _, c := range cols {
		m[c.Name] = c
	}
	return m
}

func indexIndexes(idxs []sqlschema.Index) map[string]sqlschema.Index {
	m := make(map[string]sqlschema.Index, len(idxs))
	for _, i := range idxs {
		m[i.Name] = i
	}
	return m
}

// indexForeignKeys keys FKs by (columns, referenced table, referenced
// columns) rather than name, per §4.3: constraint-name differences alone
// never trigger a change on dialects where the name is auto-generated.
func indexForeignKeys(fks []sqlschema.ForeignKey) map[string]sqlschema.ForeignKey {
	m := make(map[string]sqlschema.ForeignKey, len(fks))
	for _, fk := range fks {
		m[foreignKeyIdentity(fk)] = fk
	}
	return m
}

func foreignKeyIdentity(fk sqlschema.ForeignKey) string {
	return fmt.Sprintf("%v->%s%v", fk.Columns, fk.ReferencedTable, fk.ReferencedColumns)
}

func indexColumnsEqual(a, b sqlschema.Index) bool {
	if a.Type != b.Type || len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	return true
}

// findIndexRename looks for exactly one index in next sharing prev's columns
// and type but a different name not itself matched by identical name.
func findIndexRename(prev sqlschema.Index, nextIdxs []sqlschema.Index, prevByName map[string]sqlschema.Index) (sqlschema.Index, bool) {
	for _, cand := range nextIdxs {
		if _, existedBefore := prevByName[cand.Name]; existedBefore {
			continue
		}
		if indexColumnsEqual(prev, cand) {
			return cand, true
		}
	}
	return sqlschema.Index{}, false
}

// columnsEqual implements §4.3 step 3-4: family/arity/default/auto_increment
// must all match, with NOW<->CURRENT_TIMESTAMP treated as a roundtrip-
// equivalent default rather than a real change. On dialects that inline an
// enum's value list into the column type (MySQL), a value-list change with
// no other difference still counts as a column alteration, since there is
// no standalone enum object for it to surface on instead.
func (d *differ) columnsEqual(a, b sqlschema.Column) bool {
	if a.Type.Family != b.Type.Family || a.Type.Arity != b.Type.Arity || a.Type.EnumName != b.Type.EnumName {
		return false
	}
	if a.AutoIncrement != b.AutoIncrement {
		return false
	}
	if a.Type.Family == sqlschema.FamilyEnum && d.dialect.SupportsInlineEnum() {
		oldEnum, _ := d.prev.Enum(a.Type.EnumName)
		newEnum, _ := d.next.Enum(b.Type.EnumName)
		if !stringSlicesEqual(oldEnum.Values, newEnum.Values) {
			return false
		}
	}
	return defaultsEquivalent(a.Default, b.Default)
}

func stringSlicesEqual(a, b []string) bool {
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

func defaultsEquivalent(a, b sqlschema.Default) bool {
	if a.Equal(b) {
		return true
	}
	// NOW is dialect-rendered as CURRENT_TIMESTAMP; both sides of the diff
	// operate on the same internal sqlschema.Default representation so this
	// case only arises when one side came from introspection of raw SQL
	// text that wasn't normalized to DefaultNow — treat Now vs an expression
	// literally equal to "CURRENT_TIMESTAMP" as equivalent defensively.
	isNow := func(d sqlschema.Default) bool {
		return d.Kind == sqlschema.DefaultNow ||
			(d.Kind == sqlschema.DefaultExpression && d.Expression == "CURRENT_TIMESTAMP")
	}
	return isNow(a) && isNow(b)
}

// diffEnums implements §4.3 phase 8: new enums are created, dropped enums
// are removed, and any added or removed values on a retained enum become one
// AlterEnum step carrying both lists; the Postgres renderer rejects an
// AlterEnum whose DroppedValues is non-empty.
func (d *differ) diffEnums() ([]Step, error) {
	if d.dialect.SupportsInlineEnum() || !d.dialect.SupportsSchemaLevelEnum() {
		// MySQL's enum value list is inline on the column (already surfaced
		// via AlterColumn above) and SQLite has no enum type at all.
		return nil, nil
	}
	prevEnums := make(map[string]sqlschema.Enum, len(d.prev.Enums))
	for _, e := range d.prev.Enums {
		prevEnums[e.Name] = e
	}
	nextEnums := make(map[string]sqlschema.Enum, len(d.next.Enums))
	for _, e := range d.next.Enums {
		nextEnums[e.Name] = e
	}

	var steps []Step
	for _, e := range d.next.Enums {
		old, ok := prevEnums[e.Name]
		if !ok {
			steps = append(steps, Step{Kind: KindCreateEnum, EnumName: e.Name, EnumValues: e.Values})
			continue
		}
		added, dropped := diffEnumValues(old.Values, e.Values)
		if len(added) > 0 || len(dropped) > 0 {
			steps = append(steps, Step{Kind: KindAlterEnum, EnumName: e.Name, AddedValues: added, DroppedValues: dropped, FinalValues: e.Values})
		}
	}
	for _, e := range d.prev.Enums {
		if _, ok := nextEnums[e.Name]; !ok {
			steps = append(steps, Step{Kind: KindDropEnum, EnumName: e.Name})
		}
	}
	return steps, nil
}

func diffEnumValues(prev, next []string) (added, dropped []string) {
	prevSet := make(map[string]bool, len(prev))
	for _, v := range prev {
		prevSet[v] = true
	}
	nextSet := make(map[string]bool, len(next))
	for _, v := range next {
		nextSet[v] = true
	}
	for _, v := range next {
		if !prevSet[v] {
			added = append(added, v)
		}
	}
	for _, v := range prev {
		if !nextSet[v] {
			dropped = append(dropped, v)
		}
	}
	return added, dropped
}
