package sqlschema

import "fmt"

// Validate checks the structural invariants from the schema model: unique
// column names per table, FK column-count parity, FK targets landing on a
// unique or primary key, and non-nullable PK columns. A schema that fails
// validation indicates a bug upstream (a miscomputed calculator output or a
// corrupt introspection) rather than a user-facing condition.
func (s Schema) Validate() error {
	for _, t := range s.Tables {
		if err := t.validate(s); err != nil {
			return fmt.Errorf("table %q: %w", t.Name, err)
		}
	}
	return nil
}

func (t Table) validate(s Schema) error {
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if seen[c.Name] {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
	}

	if t.PrimaryKey != nil {
		for _, col := range t.PrimaryKey.Columns {
			c, ok := t.Column(col)
			if !ok {
				return fmt.Errorf("primary key references unknown column %q", col)
			}
			if c.Type.Arity == ArityNullable {
				return fmt.Errorf("primary key column %q must not be nullable", col)
			}
		}
	}

	for _, fk := range t.ForeignKeys {
		if len(fk.Columns) != len(fk.ReferencedColumns) {
			return fmt.Errorf("foreign key %q: %d referencing columns vs %d referenced columns", fk.Name, len(fk.Columns), len(fk.ReferencedColumns))
		}
		for _, col := range fk.Columns {
			if _, ok := t.Column(col); !ok {
				return fmt.Errorf("foreign key %q references unknown local column %q", fk.Name, col)
			}
		}
		target, ok := s.Table(fk.ReferencedTable)
		if !ok {
			return fmt.Errorf("foreign key %q references unknown table %q", fk.Name, fk.ReferencedTable)
		}
		if !target.hasUniqueOn(fk.ReferencedColumns) {
			return fmt.Errorf("foreign key %q: referenced columns %v are not a unique or primary key on %q", fk.Name, fk.ReferencedColumns, fk.ReferencedTable)
		}
	}
	return nil
}

// hasUniqueOn reports whether the exact, order-sensitive column list forms
// the table's primary key or one of its unique indexes.
func (t Table) hasUniqueOn(cols []string) bool {
	if t.PrimaryKey != nil && sameColumns(t.PrimaryKey.Columns, cols) {
		return true
	}
	for _, idx := range t.Indexes {
		if idx.Type == IndexUnique && sameColumns(idx.Columns, cols) {
			return true
		}
	}
	return false
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
