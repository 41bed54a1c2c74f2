package engine

import (
	"fmt"

	"typedtables/models"
)

// tagBinding is one reserved-but-possibly-unfilled record within a Scope.
type tagBinding struct {
	composite string
	index     uint32
	filled    bool
}

// Scope implements the §4.7 cyclic-create construct: a per-scope
// environment mapping tag names to record references still in progress.
// Reserve first claims an index in the target Table Catalog — every field
// takes its declared default, or null if it has none — and binds a tag to
// it; Fill later writes the tag's
// real field values, which may themselves reference other tags reserved
// in the same scope, closing cycles that a single Insert could not
// express.
type Scope struct {
	db   *Database
	tags map[string]tagBinding
}

// NewScope opens a fresh scope against db.
func (db *Database) NewScope() *Scope {
	return &Scope{db: db, tags: make(map[string]tagBinding)}
}

// Reserve claims a new record of composite, binds it to tag within this
// scope, and returns a Ref other reservations or fills in the same scope
// can embed immediately — before this record's own fields are known
// (§4.7). Tag names are case-sensitive and must be unique within the
// scope; redeclaring one is an error.
func (s *Scope) Reserve(composite, tag string) (models.Ref, error) {
	if _, exists := s.tags[tag]; exists {
		return models.Ref{}, fmt.Errorf("engine: tag %q already defined in this scope", tag)
	}
	t, ok := s.db.tables[composite]
	if !ok {
		return models.Ref{}, fmt.Errorf("engine: %w: %q", models.ErrUnknownType, composite)
	}

	idx, err := t.Insert(nil)
	if err != nil {
		return models.Ref{}, err
	}
	s.tags[tag] = tagBinding{composite: composite, index: idx}

	typeID, _ := s.db.registry.TypeID(composite)
	return models.Ref{TypeID: typeID, Index: idx}, nil
}

// Fill writes tag's real field values over its reserved placeholder
// record. fields may reference any tag reserved earlier in the same scope
// via the Ref returned from Reserve, closing a reference cycle between
// them. Filling the same tag twice is an error.
func (s *Scope) Fill(tag string, fields map[string]models.Value) error {
	b, ok := s.tags[tag]
	if !ok {
		return fmt.Errorf("engine: tag %q not reserved in this scope", tag)
	}
	if b.filled {
		return fmt.Errorf("engine: tag %q already filled", tag)
	}
	t, ok := s.db.tables[b.composite]
	if !ok {
		return fmt.Errorf("engine: %w: %q", models.ErrUnknownType, b.composite)
	}
	if err := t.Update(b.index, fields); err != nil {
		return err
	}
	b.filled = true
	s.tags[tag] = b
	return nil
}

// Ref returns the reference bound to tag, for embedding in another
// record's field values within the same scope.
func (s *Scope) Ref(tag string) (models.Ref, bool) {
	b, ok := s.tags[tag]
	if !ok {
		return models.Ref{}, false
	}
	typeID, _ := s.db.registry.TypeID(b.composite)
	return models.Ref{TypeID: typeID, Index: b.index}, true
}

// Close destroys every tag and binding created inside the scope (§4.7
// "Scope exit destroys all tags and all variable bindings created inside").
// It does not undo any Reserve/Fill already applied to the underlying
// tables — only the scope's own bookkeeping.
func (s *Scope) Close() {
	s.tags = nil
}
