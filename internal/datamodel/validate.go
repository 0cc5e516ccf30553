package datamodel

import "fmt"

// Validate checks the datamodel invariants: each model carries exactly one
// identity mechanism (single @id field, composite @@id, or is commented out),
// relation fields pair up by name across both sides, and referenced fields on
// a relation form a unique or id constraint on the target model.
func (d Datamodel) Validate() error {
	for _, m := range d.Models {
		if err := m.validateIdentity(); err != nil {
			return fmt.Errorf("model %q: %w", m.Name, err)
		}
	}
	for _, m := range d.Models {
		for _, f := range m.Fields {
			if f.Type.Kind != FieldTypeRelation || f.Type.Relation == nil {
				continue
			}
			if err := d.validateRelation(m, f, *f.Type.Relation); err != nil {
				return fmt.Errorf("model %q field %q: %w", m.Name, f.Name, err)
			}
		}
	}
	return nil
}

func (m Model) validateIdentity() error {
	if m.IsCommentedOut {
		return nil
	}
	idFieldCount := 0
	for _, f := range m.Fields {
		if f.IsID {
			idFieldCount++
		}
	}
	switch {
	case len(m.IDFields) > 0 && idFieldCount > 0:
		return fmt.Errorf("has both a single @id field and a composite @@id")
	case len(m.IDFields) > 1:
		for _, name := range m.IDFields {
			if _, ok := m.Field(name); !ok {
				return fmt.Errorf("composite id references unknown field %q", name)
			}
		}
	case idFieldCount > 1:
		return fmt.Errorf("has more than one @id field")
	case idFieldCount == 0 && len(m.IDFields) == 0:
		return fmt.Errorf("has no identifier and is not commented out")
	}
	return nil
}

func (d Datamodel) validateRelation(owner Model, field Field, rel RelationInfo) error {
	target, ok := d.Model(rel.To)
	if !ok {
		return fmt.Errorf("relation targets unknown model %q", rel.To)
	}
	paired := false
	for _, g := range target.Fields {
		gr := g.Type.Relation
		if g.Type.Kind == FieldTypeRelation && gr != nil && gr.Name == rel.Name && gr.To == owner.Name &&
			!(target.Name == owner.Name && g.Name == field.Name) {
			paired = true
		}
	}
	if !paired {
		return fmt.Errorf("relation %q has no matching relation field on %q", rel.Name, rel.To)
	}
	if len(rel.Fields) == 0 {
		// non-owning side: the pairing field on the target carries Fields/References.
		return nil
	}
	if len(rel.Fields) != len(rel.References) {
		return fmt.Errorf("relation has %d local fields vs %d referenced fields", len(rel.Fields), len(rel.References))
	}
	if !target.hasUniqueOn(rel.References) {
		return fmt.Errorf("relation references fields %v on %q which are not unique or id", rel.References, rel.To)
	}
	return nil
}

// hasUniqueOn reports whether the exact field set forms the model's id or
// one of its unique constraints.
func (m Model) hasUniqueOn(fields []string) bool {
	if len(m.IDFields) > 0 && sameFields(m.IDFields, fields) {
		return true
	}
	if len(fields) == 1 {
		if f, ok := m.Field(fields[0]); ok && (f.IsID || f.IsUnique) {
			return true
		}
	}
	for _, idx := range m.Indices {
		if idx.Type == IndexUnique && sameFields(idx.Fields, fields) {
			return true
		}
	}
	return false
}

func sameFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, x := range a {
		seen[x] = true
	}
	for _, x := range b {
		if !seen[x] {
			return false
		}
	}
	return true
}
