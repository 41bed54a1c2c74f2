// Package resolver implements the Reference Resolver: the translation
// layer between language-level typed Values and the raw slot bytes a
// Table Catalog stores (§4.6). The scope/tag mechanism for cyclic
// composite construction (§4.7) lives in engine.Scope, not here.
package resolver

import (
	"encoding/binary"
	"fmt"

	"typedtables/models"
	"typedtables/schema"
	"typedtables/storage/elementstore"
)

// CatalogAccessor is the narrow surface a Table Catalog exposes to the
// resolver so composite and interface references can be interned and
// read back without the resolver package importing the catalog package.
// storage/catalog imports storage/resolver to encode/decode fields; it
// satisfies this interface structurally, and the engine wires concrete
// *catalog.Table values in via RegisterCatalog, keeping the dependency
// one-directional (see DESIGN.md).
type CatalogAccessor interface {
	Insert(fields map[string]models.Value) (uint32, error)
	Read(index uint32) (map[string]models.Value, error)
	IsLive(index uint32) bool
}

// VariantAccessor is the surface a Variant Catalog exposes for
// payload-enum interning (§4.4).
type VariantAccessor interface {
	InsertVariant(variant string, fields map[string]models.Value) (uint32, error)
	ReadVariant(variant string, index uint32) (map[string]models.Value, error)
}

// elementTypeInfo records what a resolver needs to know about a
// container field (array/set/string/dictionary) beyond what
// schema.Registry exposes on its narrow public surface.
type elementTypeInfo struct {
	element string // element type name ("" for dictionaries)
	key     string // dictionary key type
	value   string // dictionary value type
	entry   string // synthetic entry composite name (compact.DictEntryName)
}

// Resolver turns field slots into values and back, for every field kind
// named in §3.2.
type Resolver struct {
	registry *schema.Registry
	elements *elementstore.Registry

	catalogs   map[string]CatalogAccessor
	variants   map[string]VariantAccessor
	containers map[string]elementTypeInfo
	enumWidths map[string]int
}

// New returns a Resolver bound to registry and elements. Catalogs and
// variant catalogs are registered afterward via RegisterCatalog and
// RegisterVariantCatalog, once the engine has opened them.
func New(registry *schema.Registry, elements *elementstore.Registry) *Resolver {
	return &Resolver{
		registry:   registry,
		elements:   elements,
		catalogs:   make(map[string]CatalogAccessor),
		variants:   make(map[string]VariantAccessor),
		containers: make(map[string]elementTypeInfo),
		enumWidths: make(map[string]int),
	}
}

// RegisterCatalog makes name's Table Catalog available for composite and
// interface reference resolution.
func (r *Resolver) RegisterCatalog(name string, c CatalogAccessor) { r.catalogs[name] = c }

// RegisterVariantCatalog makes an enum's Variant Catalog available for
// payload-enum resolution.
func (r *Resolver) RegisterVariantCatalog(enum string, v VariantAccessor) { r.variants[enum] = v }

// RegisterArray records the element type backing an array or set field,
// information the Schema Registry does not expose on its narrow public
// surface (§4.5 only commits to register/lookup/resolve_alias/etc.).
func (r *Resolver) RegisterArray(name, element string) {
	r.containers[name] = elementTypeInfo{element: element}
}

// RegisterDictionary records a dictionary field's key/value types and its
// synthetic entry composite name, as chosen by compact.DictEntryName (§3.1).
func (r *Resolver) RegisterDictionary(name, key, value, entryComposite string) {
	r.containers[name] = elementTypeInfo{key: key, value: value, entry: entryComposite}
}

// RegisterEnumWidth records the discriminant width (1, 2, or 4 bytes)
// chosen for an enum based on its largest declared discriminant (§3.2).
func (r *Resolver) RegisterEnumWidth(enum string, width int) { r.enumWidths[enum] = width }

var builtinPrimitives = map[string]models.PrimitiveEncoding{
	"int8": models.Int8, "uint8": models.Uint8,
	"int16": models.Int16, "uint16": models.Uint16,
	"int32": models.Int32, "uint32": models.Uint32,
	"int64": models.Int64, "uint64": models.Uint64,
	"int128": models.Int128, "uint128": models.Uint128,
	"float32": models.Float32, "float64": models.Float64,
	"character": models.Character, "boolean": models.Boolean,
}

// SlotWidth returns the fixed byte width of a field whose declared type
// is fieldType, per the table in §3.2.
func (r *Resolver) SlotWidth(fieldType string) (int, error) {
	kind, ok := r.registry.Lookup(fieldType)
	if !ok {
		return 0, fmt.Errorf("resolver: %w: %q", models.ErrUnknownType, fieldType)
	}
	switch kind {
	case schema.KindPrimitive:
		enc, ok := builtinPrimitives[r.registry.ResolveAlias(fieldType)]
		if !ok {
			return 0, fmt.Errorf("resolver: %q is not a built-in primitive", fieldType)
		}
		return enc.Width(), nil
	case schema.KindAlias:
		return r.SlotWidth(r.registry.ResolveAlias(fieldType))
	case schema.KindComposite:
		return 4, nil
	case schema.KindInterface:
		return 6, nil
	case schema.KindArray, schema.KindString, schema.KindSet, schema.KindDictionary:
		return 8, nil
	case schema.KindEnumBare:
		return r.enumWidth(fieldType), nil
	case schema.KindEnumPayload:
		return r.enumWidth(fieldType) + 4, nil
	case schema.KindBigInt, schema.KindBigUInt:
		return 8, nil
	case schema.KindFraction:
		return 16, nil
	default:
		return 0, fmt.Errorf("resolver: unsupported field kind for %q", fieldType)
	}
}

// Kind returns fieldType's resolved kind, following alias chains. Exposed
// for the compactor, which needs to dispatch on kind without duplicating
// the resolver's own alias-resolution logic (§4.9).
func (r *Resolver) Kind(fieldType string) (models.Kind, error) {
	kind, ok := r.registry.Lookup(fieldType)
	if !ok {
		return 0, fmt.Errorf("resolver: %w: %q", models.ErrUnknownType, fieldType)
	}
	if kind == schema.KindAlias {
		return r.Kind(r.registry.ResolveAlias(fieldType))
	}
	return kind, nil
}

// ElementType returns the element type backing an array or set field.
func (r *Resolver) ElementType(fieldType string) (string, bool) {
	info, ok := r.containers[fieldType]
	if !ok || info.element == "" {
		return "", false
	}
	return info.element, true
}

// DictTypes returns a dictionary field's key type, value type, and
// synthetic entry composite name.
func (r *Resolver) DictTypes(fieldType string) (key, value, entry string, ok bool) {
	info, has := r.containers[fieldType]
	if !has || info.entry == "" {
		return "", "", "", false
	}
	return info.key, info.value, info.entry, true
}

func (r *Resolver) enumWidth(enum string) int {
	if w, ok := r.enumWidths[enum]; ok {
		return w
	}
	return 4
}

// WriteField encodes v as the raw slot bytes for a field of fieldType,
// applying the overflow policy where applicable (§4.8).
func (r *Resolver) WriteField(fieldType string, v models.Value, policy models.OverflowPolicy) ([]byte, error) {
	if v.Null {
		width, err := r.SlotWidth(fieldType)
		if err != nil {
			return nil, err
		}
		return make([]byte, width), nil
	}

	kind, ok := r.registry.Lookup(fieldType)
	if !ok {
		return nil, fmt.Errorf("resolver: %w: %q", models.ErrUnknownType, fieldType)
	}

	switch kind {
	case schema.KindAlias:
		return r.WriteField(r.registry.ResolveAlias(fieldType), v, policy)
	case schema.KindPrimitive:
		enc, ok := builtinPrimitives[fieldType]
		if !ok {
			return nil, fmt.Errorf("resolver: %q is not a built-in primitive", fieldType)
		}
		return writePrimitive(enc, v, policy)
	case schema.KindComposite:
		return r.writeCompositeRef(fieldType, v)
	case schema.KindInterface:
		return r.writeInterfaceRef(fieldType, v)
	case schema.KindArray:
		return r.writeArrayLike(fieldType, v, false)
	case schema.KindSet:
		return r.writeArrayLike(fieldType, v, true)
	case schema.KindString:
		return r.writeString(v)
	case schema.KindDictionary:
		return r.writeDictionary(fieldType, v)
	case schema.KindEnumBare:
		return r.writeBareEnum(fieldType, v)
	case schema.KindEnumPayload:
		return r.writePayloadEnum(fieldType, v)
	case schema.KindBigInt:
		return r.writeBigStore("bigint", models.EncodeBigInt(v.BigInt))
	case schema.KindBigUInt:
		enc, err := models.EncodeBigUInt(v.BigInt)
		if err != nil {
			return nil, fmt.Errorf("resolver: %q: %w", fieldType, err)
		}
		return r.writeBigStore("biguint", enc)
	case schema.KindFraction:
		return r.writeFraction(v)
	default:
		return nil, fmt.Errorf("resolver: unsupported field kind for %q", fieldType)
	}
}

func (r *Resolver) catalogFor(name string) (CatalogAccessor, error) {
	cat, ok := r.catalogs[name]
	if !ok {
		return nil, fmt.Errorf("resolver: no catalog registered for %q", name)
	}
	return cat, nil
}

// isLive reports whether index is a live record in composite's catalog.
// A composite with no catalog registered yet is treated as live, since
// liveness cannot be determined and the caller has no tombstone to
// recover from (§7 "dangling references").
func (r *Resolver) isLive(composite string, index uint32) bool {
	cat, err := r.catalogFor(composite)
	if err != nil {
		return true
	}
	return cat.IsLive(index)
}

func (r *Resolver) writeCompositeRef(fieldType string, v models.Value) ([]byte, error) {
	cat, err := r.catalogFor(fieldType)
	if err != nil {
		return nil, err
	}
	idx := uint32(0)
	if v.Ref != nil {
		idx = v.Ref.Index
	} else if v.Composite != nil {
		idx, err = cat.Insert(v.Composite)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, fmt.Errorf("resolver: composite field %q requires a ref or a literal", fieldType)
	}
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, idx)
	return b, nil
}

func (r *Resolver) writeInterfaceRef(fieldType string, v models.Value) ([]byte, error) {
	b := make([]byte, 6)

	if v.Ref != nil && v.Composite == nil {
		binary.LittleEndian.PutUint16(b[0:2], v.Ref.TypeID)
		binary.LittleEndian.PutUint32(b[2:6], v.Ref.Index)
		return b, nil
	}

	if v.TypeName == "" {
		return nil, fmt.Errorf("resolver: interface field %q: value has no concrete TypeName", fieldType)
	}

	implemented := false
	for _, c := range r.registry.ImplementersOf(fieldType) {
		if c == v.TypeName {
			implemented = true
			break
		}
	}
	if !implemented {
		return nil, fmt.Errorf("resolver: %w: %q does not implement %q", models.ErrInterfaceNotImplemented, v.TypeName, fieldType)
	}

	cat, err := r.catalogFor(v.TypeName)
	if err != nil {
		return nil, err
	}
	typeID, ok := r.registry.TypeID(v.TypeName)
	if !ok {
		return nil, fmt.Errorf("resolver: no type-id registered for %q", v.TypeName)
	}
	idx, err := cat.Insert(v.Composite)
	if err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint16(b[0:2], typeID)
	binary.LittleEndian.PutUint32(b[2:6], idx)
	return b, nil
}

func (r *Resolver) writeArrayLike(fieldType string, v models.Value, isSet bool) ([]byte, error) {
	info, ok := r.containers[fieldType]
	if !ok {
		return nil, fmt.Errorf("resolver: unknown element type for %q", fieldType)
	}

	elems := v.Elements
	if isSet {
		elems = dedupeFirstOccurrence(elems)
	}

	width, err := r.elementWidth(info.element)
	if err != nil {
		return nil, err
	}
	raw := make([][]byte, 0, len(elems))
	for _, ev := range elems {
		eb, err := r.encodeElement(info.element, ev)
		if err != nil {
			return nil, err
		}
		if len(eb) != width {
			return nil, fmt.Errorf("resolver: element of %q encoded to %d bytes, want %d", fieldType, len(eb), width)
		}
		raw = append(raw, eb)
	}

	store, err := r.elements.StoreFor(info.element, int64(width))
	if err != nil {
		return nil, err
	}
	run, err := store.InsertRun(raw)
	if err != nil {
		return nil, err
	}
	return runBytes(run), nil
}

// elementWidth returns the element store's record width: the element
// type's own slot width, or 8 when the element is itself a
// variable-length type stored as a (start,length) pair (§4.2).
func (r *Resolver) elementWidth(elemType string) (int, error) {
	kind, ok := r.registry.Lookup(elemType)
	if !ok {
		return 0, fmt.Errorf("resolver: %w: %q", models.ErrUnknownType, elemType)
	}
	switch kind {
	case schema.KindArray, schema.KindSet, schema.KindString, schema.KindDictionary:
		return 8, nil
	default:
		return r.SlotWidth(elemType)
	}
}

// encodeElement encodes one element value for storage in elemType's
// element store. Nested variable-length elements (array of string, array
// of array-of-X) are interned into their own store first and the
// resulting (start,length) pair is what gets appended to the outer store
// (§4.2, §4.6: "the fix that makes string[] work").
func (r *Resolver) encodeElement(elemType string, v models.Value) ([]byte, error) {
	return r.WriteField(elemType, v, models.OverflowError)
}

func dedupeFirstOccurrence(elems []models.Value) []models.Value {
	seen := make(map[string]bool, len(elems))
	out := make([]models.Value, 0, len(elems))
	for _, e := range elems {
		key := valueKey(e)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

func valueKey(v models.Value) string {
	return fmt.Sprintf("%d|%d|%d|%v|%s", v.Kind, v.Int, v.Uint, v.Float64, v.String)
}

func (r *Resolver) writeString(v models.Value) ([]byte, error) {
	runes := []rune(v.String)
	raw := make([][]byte, len(runes))
	for i, c := range runes {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(c))
		raw[i] = b
	}
	store, err := r.elements.StoreFor("character", 4)
	if err != nil {
		return nil, err
	}
	run, err := store.InsertRun(raw)
	if err != nil {
		return nil, err
	}
	return runBytes(run), nil
}

func (r *Resolver) writeDictionary(fieldType string, v models.Value) ([]byte, error) {
	info, ok := r.containers[fieldType]
	if !ok || info.entry == "" {
		return nil, fmt.Errorf("resolver: unknown entry composite for dictionary %q", fieldType)
	}
	cat, err := r.catalogFor(info.entry)
	if err != nil {
		return nil, err
	}

	seenKeys := make(map[string]bool, len(v.Entries))
	indices := make([][]byte, 0, len(v.Entries))
	for _, entry := range v.Entries {
		key := valueKey(entry.Key)
		if seenKeys[key] {
			return nil, models.ErrDuplicateKey
		}
		seenKeys[key] = true

		idx, err := cat.Insert(map[string]models.Value{"key": entry.Key, "value": entry.Value})
		if err != nil {
			return nil, err
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, idx)
		indices = append(indices, b)
	}

	store, err := r.elements.StoreFor("uint32", 4)
	if err != nil {
		return nil, err
	}
	run, err := store.InsertRun(indices)
	if err != nil {
		return nil, err
	}
	return runBytes(run), nil
}

func (r *Resolver) writeBareEnum(fieldType string, v models.Value) ([]byte, error) {
	if v.Enum == nil {
		return nil, fmt.Errorf("resolver: bare enum field %q requires an EnumValue", fieldType)
	}
	width := r.enumWidth(fieldType)
	b := make([]byte, width)
	putUintN(b, uint64(v.Enum.Discriminant))
	return b, nil
}

func (r *Resolver) writePayloadEnum(fieldType string, v models.Value) ([]byte, error) {
	if v.Enum == nil {
		return nil, fmt.Errorf("resolver: payload enum field %q requires an EnumValue", fieldType)
	}
	width := r.enumWidth(fieldType)
	b := make([]byte, width+4)
	putUintN(b[:width], uint64(v.Enum.Discriminant))

	if v.Enum.Fields == nil {
		for i := width; i < width+4; i++ {
			b[i] = 0xFF // bare-variant sentinel index (§3.2)
		}
		return b, nil
	}

	vc, ok := r.variants[fieldType]
	if !ok {
		return nil, fmt.Errorf("resolver: no variant catalog registered for enum %q", fieldType)
	}
	idx, err := vc.InsertVariant(v.Enum.Variant, v.Enum.Fields)
	if err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint32(b[width:width+4], idx)
	return b, nil
}

func (r *Resolver) writeBigStore(store string, encoded []byte) ([]byte, error) {
	s, err := r.elements.StoreFor(store, 1)
	if err != nil {
		return nil, err
	}
	run, err := s.InsertRun(byteRun(encoded))
	if err != nil {
		return nil, err
	}
	return runBytes(run), nil
}

func (r *Resolver) writeFraction(v models.Value) ([]byte, error) {
	if v.Fraction == nil {
		return nil, fmt.Errorf("resolver: fraction field requires a Fraction value")
	}
	numBytes, denBytes := models.EncodeFraction(v.Fraction)

	numStore, err := r.elements.StoreFor("_frac_num", 1)
	if err != nil {
		return nil, err
	}
	denStore, err := r.elements.StoreFor("_frac_den", 1)
	if err != nil {
		return nil, err
	}
	numRun, err := numStore.InsertRun(byteRun(numBytes))
	if err != nil {
		return nil, err
	}
	denRun, err := denStore.InsertRun(byteRun(denBytes))
	if err != nil {
		return nil, err
	}

	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:4], numRun.Start)
	binary.LittleEndian.PutUint32(b[4:8], numRun.Length)
	binary.LittleEndian.PutUint32(b[8:12], denRun.Start)
	binary.LittleEndian.PutUint32(b[12:16], denRun.Length)
	return b, nil
}

func byteRun(bs []byte) [][]byte {
	out := make([][]byte, len(bs))
	for i, b := range bs {
		out[i] = []byte{b}
	}
	return out
}

func runBytes(run models.Run) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], run.Start)
	binary.LittleEndian.PutUint32(b[4:8], run.Length)
	return b
}

func putUintN(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
}

func getUintN(b []byte) uint64 {
	var v uint64
	for i, x := range b {
		v |= uint64(x) << (8 * i)
	}
	return v
}
