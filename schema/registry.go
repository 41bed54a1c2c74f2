// Package schema implements the in-memory canonical type registry for the
// Typed Tables storage engine (§4.5).
package schema

import (
	"fmt"
	"sync"

	"typedtables/logger"
	"typedtables/models"
)

// entity is the registry's internal record for one registered name. Only
// one of the typed fields is populated, matching its Kind.
type entity struct {
	kind Kind

	primitive  models.PrimitiveEncoding
	alias      models.Alias
	array      models.Array
	str        models.StringType
	set        models.SetType
	dict       models.DictType
	composite  models.Composite
	iface      models.Interface
	enum       models.Enum
	bigintKind bool
	biguint    bool
	fraction   bool

	// typeID is the stable uint16 assigned on first registration of a
	// composite (§6.3), persisted so interface-typed slots stay
	// meaningful across restarts.
	typeID uint16
}

// Kind is a local alias so package callers write schema.Kind instead of
// models.Kind.
type Kind = models.Kind

const (
	KindPrimitive   = models.KindPrimitive
	KindAlias       = models.KindAlias
	KindArray       = models.KindArray
	KindString      = models.KindString
	KindSet         = models.KindSet
	KindDictionary  = models.KindDictionary
	KindComposite   = models.KindComposite
	KindInterface   = models.KindInterface
	KindEnumBare    = models.KindEnumBare
	KindEnumPayload = models.KindEnumPayload
	KindBigInt      = models.KindBigInt
	KindBigUInt     = models.KindBigUInt
	KindFraction    = models.KindFraction
)

// Registry is the canonical, in-memory schema: a mapping from name to
// kind record, plus the lazily-built polymorphic implementer index
// (§4.5). A Registry is not safe for concurrent registration and lookup
// from multiple goroutines without external synchronization beyond what
// its own mutex provides for read paths.
type Registry struct {
	mu sync.RWMutex

	entities map[string]*entity
	stubs    map[string]bool // forward stubs awaiting population

	nextTypeID uint16

	// implementers caches interface name -> set of composite names that
	// transitively implement it. Invalidated on every registration.
	implementers map[string]map[string]bool
}

// NewRegistry returns an empty registry with the built-in primitive kinds
// pre-registered.
func NewRegistry() *Registry {
	r := &Registry{
		entities:     make(map[string]*entity),
		stubs:        make(map[string]bool),
		nextTypeID:   1,
		implementers: make(map[string]map[string]bool),
	}
	r.registerBuiltins()
	return r
}

// registerBuiltins seeds the fixed, built-in kinds that exist in every
// Registry without explicit registration: the primitive scalar types
// (§3.1), the string-as-array-of-character alias, and the
// arbitrary-precision numeric kinds (§3.1 "Fixed, built-in").
func (r *Registry) registerBuiltins() {
	primitives := map[string]models.PrimitiveEncoding{
		"int8": models.Int8, "uint8": models.Uint8,
		"int16": models.Int16, "uint16": models.Uint16,
		"int32": models.Int32, "uint32": models.Uint32,
		"int64": models.Int64, "uint64": models.Uint64,
		"int128": models.Int128, "uint128": models.Uint128,
		"float32": models.Float32, "float64": models.Float64,
		"character": models.Character, "boolean": models.Boolean,
	}
	for name, enc := range primitives {
		r.entities[models.Intern(name)] = &entity{kind: KindPrimitive, primitive: enc}
	}

	r.entities[models.Intern("string")] = &entity{kind: KindString, str: models.StringType{Name: "string"}}
	r.entities[models.Intern("bigint")] = &entity{kind: KindBigInt}
	r.entities[models.Intern("biguint")] = &entity{kind: KindBigUInt}
	r.entities[models.Intern("fraction")] = &entity{kind: KindFraction}
}

// DeclareForwardStub reserves name for later population, allowing mutually
// referential composites to be declared in either order (§3.1).
func (r *Registry) DeclareForwardStub(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entities[name]; exists {
		return fmt.Errorf("schema: %w: %q", models.ErrNameAlreadyRegistered, name)
	}
	r.stubs[models.Intern(name)] = true
	logger.TraceIf("schema", "declared forward stub %q", name)
	return nil
}

// Register records one schema entity under name, assigning it a stable
// type-id if it is a composite. Registration rejects duplicate names,
// interface cycles, composite inheritance cycles, zero-field composites,
// and overflow policies on non-integer fields.
func (r *Registry) Register(name string, kind Kind, def interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entities[name]; ok {
		return fmt.Errorf("schema: %w: %q", models.ErrNameAlreadyRegistered, name)
	}

	e := &entity{kind: kind}
	switch kind {
	case KindAlias:
		e.alias = def.(models.Alias)
	case KindArray:
		e.array = def.(models.Array)
	case KindString:
		e.str = def.(models.StringType)
	case KindSet:
		e.set = def.(models.SetType)
	case KindDictionary:
		e.dict = def.(models.DictType)
	case KindComposite:
		c := def.(models.Composite)
		if len(c.Fields) == 0 {
			return fmt.Errorf("schema: %w: %q", models.ErrZeroFieldComposite, name)
		}
		if err := r.checkFieldOverflowPolicies(c.Fields); err != nil {
			return err
		}
		if err := r.checkDuplicateFields(c.Fields); err != nil {
			return err
		}
		if c.Parent != "" {
			if err := r.checkCompositeTree(name, c.Parent); err != nil {
				return err
			}
		}
		e.composite = c
		e.typeID = r.nextTypeID
		r.nextTypeID++
	case KindInterface:
		iface := def.(models.Interface)
		if err := r.checkDuplicateFields(iface.Fields); err != nil {
			return err
		}
		if err := r.checkInterfaceDAG(name, iface.Parents); err != nil {
			return err
		}
		e.iface = iface
	case KindEnumBare, KindEnumPayload:
		e.enum = def.(models.Enum)
	case KindBigInt:
		e.bigintKind = true
	case KindBigUInt:
		e.biguint = true
	case KindFraction:
		e.fraction = true
	}

	r.entities[models.Intern(name)] = e
	delete(r.stubs, name)
	r.implementers = make(map[string]map[string]bool)

	logger.TraceIf("schema", "registered %s %q", kind, name)
	return nil
}

func (r *Registry) checkFieldOverflowPolicies(fields []models.Field) error {
	for _, f := range fields {
		if !f.HasOverflow {
			continue
		}
		ent, ok := r.entities[r.resolveAliasLocked(f.Type)]
		if !ok || ent.kind != KindPrimitive || !ent.primitive.Integer() {
			return fmt.Errorf("schema: %w: field %q", models.ErrOverflowPolicyOnNonInteger, f.Name)
		}
	}
	return nil
}

func (r *Registry) checkDuplicateFields(fields []models.Field) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Name] {
			return fmt.Errorf("schema: %w: %q", models.ErrDuplicateField, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// checkCompositeTree verifies that adding name as a child of parent does
// not create a cycle in the composite inheritance tree (§3.1).
func (r *Registry) checkCompositeTree(name, parent string) error {
	seen := map[string]bool{name: true}
	cur := parent
	for cur != "" {
		if seen[cur] {
			return fmt.Errorf("schema: %w: %q -> %q", models.ErrCompositeCycle, name, parent)
		}
		seen[cur] = true
		ent, ok := r.entities[cur]
		if !ok {
			if r.stubs[cur] {
				return nil // forward stub: cannot check further yet
			}
			return fmt.Errorf("schema: %w: %q", models.ErrUnknownType, cur)
		}
		if ent.kind != KindComposite {
			return fmt.Errorf("schema: parent %q is not a composite", cur)
		}
		cur = ent.composite.Parent
	}
	return nil
}

// checkInterfaceDAG verifies that adding name with the given parents does
// not create a cycle in the interface extends graph (§3.1).
func (r *Registry) checkInterfaceDAG(name string, parents []string) error {
	visited := make(map[string]bool)
	var walk func(n string) error
	walk = func(n string) error {
		if n == name {
			return fmt.Errorf("schema: %w: %q", models.ErrInterfaceCycle, name)
		}
		if visited[n] {
			return nil
		}
		visited[n] = true
		ent, ok := r.entities[n]
		if !ok {
			if r.stubs[n] {
				return nil
			}
			return fmt.Errorf("schema: %w: %q", models.ErrUnknownType, n)
		}
		if ent.kind != KindInterface {
			return fmt.Errorf("schema: parent %q is not an interface", n)
		}
		for _, p := range ent.iface.Parents {
			if err := walk(p); err != nil {
				return err
			}
		}
		return nil
	}
	for _, p := range parents {
		if err := walk(p); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the Kind registered for name.
func (r *Registry) Lookup(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entities[name]
	if !ok {
		return 0, false
	}
	return ent.kind, true
}

// ResolveAlias follows alias chains until a non-alias kind is reached
// (§3.1 "Resolves transitively to a non-alias kind").
func (r *Registry) ResolveAlias(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveAliasLocked(name)
}

func (r *Registry) resolveAliasLocked(name string) string {
	cur := name
	for {
		ent, ok := r.entities[cur]
		if !ok || ent.kind != KindAlias {
			return cur
		}
		cur = ent.alias.Target
	}
}

// Composite returns the composite descriptor for name.
func (r *Registry) Composite(name string) (models.Composite, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entities[name]
	if !ok || ent.kind != KindComposite {
		return models.Composite{}, false
	}
	return ent.composite, true
}

// TypeID returns the stable uint16 assigned to composite name (§6.3).
func (r *Registry) TypeID(name string) (uint16, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entities[name]
	if !ok || ent.kind != KindComposite {
		return 0, false
	}
	return ent.typeID, true
}

// AncestorsOf returns the parent chain of a composite or interface,
// nearest first (§4.5).
func (r *Registry) AncestorsOf(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ent, ok := r.entities[name]
	if !ok {
		return nil
	}
	var out []string
	switch ent.kind {
	case KindComposite:
		cur := ent.composite.Parent
		for cur != "" {
			out = append(out, cur)
			next, ok := r.entities[cur]
			if !ok {
				break
			}
			cur = next.composite.Parent
		}
	case KindInterface:
		visited := map[string]bool{}
		var walk func(string)
		walk = func(n string) {
			next, ok := r.entities[n]
			if !ok || visited[n] {
				return
			}
			visited[n] = true
			out = append(out, n)
			if next.kind == KindInterface {
				for _, p := range next.iface.Parents {
					walk(p)
				}
			}
		}
		for _, p := range ent.iface.Parents {
			walk(p)
		}
	}
	return out
}

// EffectiveFields returns a composite's inherited fields followed by its
// directly declared fields, in declaration order (§4.5).
func (r *Registry) EffectiveFields(name string) []models.Field {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ancestors := r.ancestorsOfLocked(name)
	var out []models.Field
	for i := len(ancestors) - 1; i >= 0; i-- {
		if ent, ok := r.entities[ancestors[i]]; ok && ent.kind == KindComposite {
			out = append(out, ent.composite.Fields...)
		}
	}
	if ent, ok := r.entities[name]; ok && ent.kind == KindComposite {
		out = append(out, ent.composite.Fields...)
	}
	return out
}

func (r *Registry) ancestorsOfLocked(name string) []string {
	ent, ok := r.entities[name]
	if !ok || ent.kind != KindComposite {
		return nil
	}
	var out []string
	cur := ent.composite.Parent
	for cur != "" {
		out = append(out, cur)
		next, ok := r.entities[cur]
		if !ok {
			break
		}
		cur = next.composite.Parent
	}
	return out
}

// ImplementersOf returns every composite that transitively implements
// interface name, via the lazily-built, registration-invalidated BFS
// cache described in §4.5.
func (r *Registry) ImplementersOf(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.implementers[name]; ok {
		out := make([]string, 0, len(cached))
		for c := range cached {
			out = append(out, c)
		}
		return out
	}

	descendants := map[string]bool{name: true}
	queue := []string{name}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for iname, ent := range r.entities {
			if ent.kind != KindInterface {
				continue
			}
			for _, p := range ent.iface.Parents {
				if p == cur && !descendants[iname] {
					descendants[iname] = true
					queue = append(queue, iname)
				}
			}
		}
	}

	impls := make(map[string]bool)
	for cname, ent := range r.entities {
		if ent.kind != KindComposite {
			continue
		}
		declared := append([]string(nil), ent.composite.Interfaces...)
		for _, ancestor := range r.ancestorsOfLocked(cname) {
			if aent, ok := r.entities[ancestor]; ok {
				declared = append(declared, aent.composite.Interfaces...)
			}
		}
		for _, decl := range declared {
			if descendants[decl] {
				impls[cname] = true
				break
			}
		}
	}
	r.implementers[name] = impls

	out := make([]string, 0, len(impls))
	for c := range impls {
		out = append(out, c)
	}
	return out
}

// ReferencesTo returns every (composite, field) pair whose field type is
// or contains name (§4.5).
func (r *Registry) ReferencesTo(name string) []Field {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Field
	for cname, ent := range r.entities {
		if ent.kind != KindComposite {
			continue
		}
		for _, f := range ent.composite.Fields {
			if r.fieldRefersTo(f.Type, name) {
				out = append(out, Field{Composite: cname, Field: f})
			}
		}
	}
	return out
}

func (r *Registry) fieldRefersTo(fieldType, name string) bool {
	if fieldType == name {
		return true
	}
	switch ent, ok := r.entities[fieldType]; {
	case !ok:
		return false
	case ent.kind == KindArray:
		return ent.array.Element == name
	case ent.kind == KindSet:
		return ent.set.Element == name
	case ent.kind == KindDictionary:
		return ent.dict.Key == name || ent.dict.Value == name
	case ent.kind == KindAlias:
		return ent.alias.Target == name
	default:
		return false
	}
}

// Field pairs a composite name with one of its fields, as returned by
// ReferencesTo.
type Field struct {
	Composite string
	Field     models.Field
}

// NamesOfKind returns every registered name whose kind matches, in no
// particular order. Used by the engine to wire container/enum
// registrations into the resolver, and by the compactor to enumerate
// what needs remapping (SPEC_FULL.md engine, §4.9).
func (r *Registry) NamesOfKind(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, ent := range r.entities {
		if ent.kind == kind {
			out = append(out, name)
		}
	}
	return out
}

// NameForTypeID reverse-looks-up the composite registered under a given
// stable type-id (§6.3), needed to remap interface-typed references
// during compaction.
func (r *Registry) NameForTypeID(id uint16) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, ent := range r.entities {
		if ent.kind == KindComposite && ent.typeID == id {
			return name, true
		}
	}
	return "", false
}

// ArrayOf returns the Array descriptor registered under name.
func (r *Registry) ArrayOf(name string) (models.Array, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entities[name]
	if !ok || ent.kind != KindArray {
		return models.Array{}, false
	}
	return ent.array, true
}

// SetOf returns the SetType descriptor registered under name.
func (r *Registry) SetOf(name string) (models.SetType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entities[name]
	if !ok || ent.kind != KindSet {
		return models.SetType{}, false
	}
	return ent.set, true
}

// DictOf returns the DictType descriptor registered under name.
func (r *Registry) DictOf(name string) (models.DictType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entities[name]
	if !ok || ent.kind != KindDictionary {
		return models.DictType{}, false
	}
	return ent.dict, true
}

// PrimitiveOf returns the PrimitiveEncoding registered under name.
func (r *Registry) PrimitiveOf(name string) (models.PrimitiveEncoding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entities[name]
	if !ok || ent.kind != KindPrimitive {
		return 0, false
	}
	return ent.primitive, true
}

// EnumOf returns the Enum descriptor registered under name, bare or
// payload-bearing.
func (r *Registry) EnumOf(name string) (models.Enum, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entities[name]
	if !ok || (ent.kind != KindEnumBare && ent.kind != KindEnumPayload) {
		return models.Enum{}, false
	}
	return ent.enum, true
}

// VariantForDiscriminant returns the name of e's variant whose effective
// discriminant equals disc. A variant's effective discriminant is its
// declared Discriminant if set, otherwise one more than the previous
// variant's effective discriminant (zero for the first), mirroring
// ordinary enum auto-numbering (§3.2).
func VariantForDiscriminant(e models.Enum, disc int64) (string, bool) {
	next := int64(0)
	for _, v := range e.Variants {
		d := next
		if v.Discriminant != nil {
			d = *v.Discriminant
		}
		if d == disc {
			return v.Name, true
		}
		next = d + 1
	}
	return "", false
}

// Stats reports the number of registered entities, a supplement beyond
// spec.md useful for the CLI's inspect subcommand (SPEC_FULL.md §4).
func (r *Registry) Stats() (total int, composites int, interfaces int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ent := range r.entities {
		total++
		switch ent.kind {
		case KindComposite:
			composites++
		case KindInterface:
			interfaces++
		}
	}
	return
}
