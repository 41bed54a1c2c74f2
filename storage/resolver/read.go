package resolver

import (
	"encoding/binary"
	"fmt"

	"typedtables/logger"
	"typedtables/models"
	"typedtables/schema"
)

// ReadField decodes the raw slot bytes of a field of fieldType back into
// a language-level Value — the inverse of WriteField (§4.6 "Read
// direction"). For arrays of elements that are themselves variable-length
// (strings, arrays-of-strings, dictionaries, interface-typed elements),
// the reader re-enters the resolver to reconstruct each inner value.
func (r *Resolver) ReadField(fieldType string, slot []byte) (models.Value, error) {
	kind, ok := r.registry.Lookup(fieldType)
	if !ok {
		return models.Value{}, fmt.Errorf("resolver: %w: %q", models.ErrUnknownType, fieldType)
	}

	switch kind {
	case schema.KindAlias:
		return r.ReadField(r.registry.ResolveAlias(fieldType), slot)
	case schema.KindPrimitive:
		enc, ok := builtinPrimitives[fieldType]
		if !ok {
			return models.Value{}, fmt.Errorf("resolver: %q is not a built-in primitive", fieldType)
		}
		return readPrimitive(enc, slot), nil
	case schema.KindComposite:
		idx := binary.LittleEndian.Uint32(slot)
		if c, ok := r.catalogs[fieldType].(interface{ Count() uint64 }); ok && uint64(idx) >= c.Count() {
			return models.Value{}, fmt.Errorf("resolver: %w: %s[%d]", models.ErrCorruptReference, fieldType, idx)
		}
		if !r.isLive(fieldType, idx) {
			logger.Warn("%s: %s[%d] is a dangling reference, read as null", models.ErrDanglingReference, fieldType, idx)
			return models.NullValue(kind), nil
		}
		return models.Value{Kind: kind, Ref: &models.Ref{Index: idx}}, nil
	case schema.KindInterface:
		typeID := binary.LittleEndian.Uint16(slot[0:2])
		idx := binary.LittleEndian.Uint32(slot[2:6])
		concrete, ok := r.registry.NameForTypeID(typeID)
		if c, counted := r.catalogs[concrete].(interface{ Count() uint64 }); ok && counted && uint64(idx) >= c.Count() {
			return models.Value{}, fmt.Errorf("resolver: %w: %s[%d]", models.ErrCorruptReference, concrete, idx)
		}
		if !ok || !r.isLive(concrete, idx) {
			logger.Warn("%s: %s[%d] (type id %d) is a dangling reference, read as null", models.ErrDanglingReference, fieldType, idx, typeID)
			return models.NullValue(kind), nil
		}
		return models.Value{Kind: kind, Ref: &models.Ref{TypeID: typeID, Index: idx}}, nil
	case schema.KindArray:
		return r.readArrayLike(fieldType, slot, kind)
	case schema.KindSet:
		return r.readArrayLike(fieldType, slot, kind)
	case schema.KindString:
		return r.readString(slot)
	case schema.KindDictionary:
		return r.readDictionary(fieldType, slot)
	case schema.KindEnumBare:
		return r.readBareEnum(fieldType, slot)
	case schema.KindEnumPayload:
		return r.readPayloadEnum(fieldType, slot)
	case schema.KindBigInt:
		return r.readBigStore(kind, "bigint", slot, false)
	case schema.KindBigUInt:
		return r.readBigStore(kind, "biguint", slot, true)
	case schema.KindFraction:
		return r.readFraction(slot)
	default:
		return models.Value{}, fmt.Errorf("resolver: unsupported field kind for %q", fieldType)
	}
}

func (r *Resolver) readArrayLike(fieldType string, slot []byte, kind models.Kind) (models.Value, error) {
	info, ok := r.containers[fieldType]
	if !ok {
		return models.Value{}, fmt.Errorf("resolver: unknown element type for %q", fieldType)
	}
	run := models.Run{Start: binary.LittleEndian.Uint32(slot[0:4]), Length: binary.LittleEndian.Uint32(slot[4:8])}

	width, err := r.elementWidth(info.element)
	if err != nil {
		return models.Value{}, err
	}
	store, err := r.elements.StoreFor(info.element, int64(width))
	if err != nil {
		return models.Value{}, err
	}
	raw, err := store.ReadRun(run)
	if err != nil {
		return models.Value{}, err
	}

	elems := make([]models.Value, 0, len(raw))
	for _, eb := range raw {
		ev, err := r.ReadField(info.element, eb)
		if err != nil {
			return models.Value{}, err
		}
		elems = append(elems, ev)
	}
	return models.Value{Kind: kind, Elements: elems}, nil
}

func (r *Resolver) readString(slot []byte) (models.Value, error) {
	run := models.Run{Start: binary.LittleEndian.Uint32(slot[0:4]), Length: binary.LittleEndian.Uint32(slot[4:8])}
	store, err := r.elements.StoreFor("character", 4)
	if err != nil {
		return models.Value{}, err
	}
	raw, err := store.ReadRun(run)
	if err != nil {
		return models.Value{}, err
	}
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(binary.LittleEndian.Uint32(b))
	}
	return models.Value{Kind: models.KindString, String: string(runes)}, nil
}

func (r *Resolver) readDictionary(fieldType string, slot []byte) (models.Value, error) {
	info, ok := r.containers[fieldType]
	if !ok || info.entry == "" {
		return models.Value{}, fmt.Errorf("resolver: unknown entry composite for dictionary %q", fieldType)
	}
	cat, err := r.catalogFor(info.entry)
	if err != nil {
		return models.Value{}, err
	}

	run := models.Run{Start: binary.LittleEndian.Uint32(slot[0:4]), Length: binary.LittleEndian.Uint32(slot[4:8])}
	store, err := r.elements.StoreFor("uint32", 4)
	if err != nil {
		return models.Value{}, err
	}
	raw, err := store.ReadRun(run)
	if err != nil {
		return models.Value{}, err
	}

	entries := make([]models.DictEntry, 0, len(raw))
	for _, b := range raw {
		idx := binary.LittleEndian.Uint32(b)
		fields, err := cat.Read(idx)
		if err != nil {
			return models.Value{}, err
		}
		entries = append(entries, models.DictEntry{Key: fields["key"], Value: fields["value"]})
	}
	return models.Value{Kind: models.KindDictionary, Entries: entries}, nil
}

func (r *Resolver) readBareEnum(fieldType string, slot []byte) (models.Value, error) {
	disc := int64(getUintN(slot))
	return models.Value{Kind: models.KindEnumBare, Enum: &models.EnumValue{Discriminant: disc}}, nil
}

func (r *Resolver) readPayloadEnum(fieldType string, slot []byte) (models.Value, error) {
	width := r.enumWidth(fieldType)
	disc := int64(getUintN(slot[:width]))
	idxBytes := slot[width : width+4]

	e, ok := r.registry.EnumOf(fieldType)
	if !ok {
		return models.Value{}, fmt.Errorf("resolver: %w: %q", models.ErrUnknownType, fieldType)
	}
	variant, variantOK := schema.VariantForDiscriminant(e, disc)

	allOnes := true
	for _, b := range idxBytes {
		if b != 0xFF {
			allOnes = false
			break
		}
	}
	if allOnes {
		return models.Value{Kind: models.KindEnumPayload, Enum: &models.EnumValue{Variant: variant, Discriminant: disc}}, nil
	}

	if !variantOK {
		return models.Value{}, fmt.Errorf("resolver: enum %q has no variant with discriminant %d", fieldType, disc)
	}
	vc, ok := r.variants[fieldType]
	if !ok {
		return models.Value{}, fmt.Errorf("resolver: no variant catalog registered for enum %q", fieldType)
	}
	idx := binary.LittleEndian.Uint32(idxBytes)
	fields, err := vc.ReadVariant(variant, idx)
	if err != nil {
		return models.Value{}, err
	}
	return models.Value{Kind: models.KindEnumPayload, Enum: &models.EnumValue{Variant: variant, Discriminant: disc, Fields: fields}}, nil
}

func (r *Resolver) readBigStore(kind models.Kind, store string, slot []byte, unsigned bool) (models.Value, error) {
	run := models.Run{Start: binary.LittleEndian.Uint32(slot[0:4]), Length: binary.LittleEndian.Uint32(slot[4:8])}
	s, err := r.elements.StoreFor(store, 1)
	if err != nil {
		return models.Value{}, err
	}
	raw, err := s.ReadRun(run)
	if err != nil {
		return models.Value{}, err
	}
	flat := make([]byte, len(raw))
	for i, b := range raw {
		flat[i] = b[0]
	}
	if unsigned {
		return models.Value{Kind: kind, BigInt: models.DecodeBigUInt(flat)}, nil
	}
	return models.Value{Kind: kind, BigInt: models.DecodeBigInt(flat)}, nil
}

func (r *Resolver) readFraction(slot []byte) (models.Value, error) {
	numRun := models.Run{Start: binary.LittleEndian.Uint32(slot[0:4]), Length: binary.LittleEndian.Uint32(slot[4:8])}
	denRun := models.Run{Start: binary.LittleEndian.Uint32(slot[8:12]), Length: binary.LittleEndian.Uint32(slot[12:16])}

	numStore, err := r.elements.StoreFor("_frac_num", 1)
	if err != nil {
		return models.Value{}, err
	}
	denStore, err := r.elements.StoreFor("_frac_den", 1)
	if err != nil {
		return models.Value{}, err
	}
	numRaw, err := numStore.ReadRun(numRun)
	if err != nil {
		return models.Value{}, err
	}
	denRaw, err := denStore.ReadRun(denRun)
	if err != nil {
		return models.Value{}, err
	}
	num := make([]byte, len(numRaw))
	for i, b := range numRaw {
		num[i] = b[0]
	}
	den := make([]byte, len(denRaw))
	for i, b := range denRaw {
		den[i] = b[0]
	}
	return models.Value{Kind: models.KindFraction, Fraction: models.DecodeFraction(num, den)}, nil
}

// ProjectedValue is one result of IterValues: the owning composite, its
// record index, the matching field name, and the decoded value (§4.6
// "Type-faceted queries").
type ProjectedValue struct {
	Composite string
	Index     uint32
	Field     string
	Value     models.Value
}

// IterValues walks every composite whose schema contains a field whose
// effective type resolves to targetType, reads each live record, and
// yields the projected field.
func (r *Resolver) IterValues(targetType string, yield func(ProjectedValue) bool) error {
	for _, ref := range r.registry.ReferencesTo(targetType) {
		cat, ok := r.catalogs[ref.Composite]
		if !ok {
			continue
		}
		iterErr := r.iterCatalogField(cat, ref.Composite, ref.Field.Name, yield)
		if iterErr != nil {
			return iterErr
		}
	}
	return nil
}

func (r *Resolver) iterCatalogField(cat CatalogAccessor, composite, field string, yield func(ProjectedValue) bool) error {
	type iterable interface {
		IterIndices(func(uint32) bool)
	}
	it, ok := cat.(iterable)
	if !ok {
		return fmt.Errorf("resolver: catalog for %q does not support iteration", composite)
	}

	var iterErr error
	it.IterIndices(func(idx uint32) bool {
		fields, err := cat.Read(idx)
		if err != nil {
			iterErr = err
			return false
		}
		v, ok := fields[field]
		if !ok {
			return true
		}
		return yield(ProjectedValue{Composite: composite, Index: idx, Field: field, Value: v})
	})
	return iterErr
}
