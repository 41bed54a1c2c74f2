// Package catalog implements the Table Catalog: one Record File per
// composite type, with a null-bitmap-plus-packed-slots layout (§4.3).
package catalog

import (
	"fmt"

	"typedtables/logger"
	"typedtables/models"
	"typedtables/schema"
	"typedtables/storage/recordfile"
	"typedtables/storage/resolver"
)

// fieldLayout is one field's position within a composite record.
type fieldLayout struct {
	name     string
	typeName string
	width    int
	offset   int // byte offset within the slot region, after the bitmap
	bitIndex int // index into the null bitmap
	overflow models.OverflowPolicy
	hasOver  bool
	def      *models.Value
}

// Table is the Table Catalog for one composite type (§4.3).
type Table struct {
	name        string
	rf          *recordfile.File
	resolver    *resolver.Resolver
	fields      []fieldLayout
	bitmapBytes int
	recordSize  int64
}

// Open creates or opens the Table Catalog for composite at path, using
// registry's effective field list (inherited + declared) to compute the
// record layout (§3.2, §4.3).
func Open(path, composite string, registry *schema.Registry, res *resolver.Resolver, growthFactor int64, create bool) (*Table, error) {
	effective := registry.EffectiveFields(composite)
	bitmapBytes := (len(effective) + 7) / 8

	fields := make([]fieldLayout, 0, len(effective))
	offset := 0
	for i, f := range effective {
		width, err := res.SlotWidth(f.Type)
		if err != nil {
			return nil, fmt.Errorf("catalog: %s.%s: %w", composite, f.Name, err)
		}
		fields = append(fields, fieldLayout{
			name: f.Name, typeName: f.Type, width: width, offset: offset,
			bitIndex: i, overflow: f.Overflow, hasOver: f.HasOverflow, def: f.Default,
		})
		offset += width
	}
	recordSize := int64(bitmapBytes + offset)

	var rf *recordfile.File
	var err error
	if create {
		rf, err = recordfile.Create(path, recordSize, growthFactor)
	} else {
		rf, err = recordfile.Open(path, recordSize, growthFactor)
	}
	if err != nil {
		return nil, err
	}

	t := &Table{name: composite, rf: rf, resolver: res, fields: fields, bitmapBytes: bitmapBytes, recordSize: recordSize}
	res.RegisterCatalog(composite, t)
	logger.TraceIf("catalog", "opened table %q fields=%d record_size=%d", composite, len(fields), recordSize)
	return t, nil
}

// Close releases the underlying Record File.
func (t *Table) Close() error { return t.rf.Close() }

// Name returns the composite type name this table serves.
func (t *Table) Name() string { return t.name }

// Insert builds a record from fieldValues and appends it (§4.3). A nil
// or missing field falls back to its declared default, or null if none
// (Insert(nil) is engine.Scope's reservation path, §4.7).
func (t *Table) Insert(fieldValues map[string]models.Value) (uint32, error) {
	bitmap := make([]byte, t.bitmapBytes)
	slots := make([]byte, t.recordSize-int64(t.bitmapBytes))

	for _, f := range t.fields {
		v, supplied := fieldValues[f.name]
		if !supplied {
			if f.def != nil {
				v = *f.def
			} else {
				bitmap[f.bitIndex/8] |= 1 << uint(f.bitIndex%8)
				continue
			}
		}
		if v.Null {
			bitmap[f.bitIndex/8] |= 1 << uint(f.bitIndex%8)
			continue
		}
		b, err := t.resolver.WriteField(f.typeName, v, f.overflow)
		if err != nil {
			return 0, fmt.Errorf("catalog: %s.%s: %w", t.name, f.name, err)
		}
		if len(b) != f.width {
			return 0, fmt.Errorf("catalog: %s.%s: encoded %d bytes, want %d", t.name, f.name, len(b), f.width)
		}
		copy(slots[f.offset:f.offset+f.width], b)
	}

	record := append(bitmap, slots...)
	idx, err := t.rf.Append(record)
	if err != nil {
		return 0, err
	}
	return uint32(idx), nil
}

// Read decodes the record at index into a field-value map (§4.3).
// Dangling references surface as a logical null rather than aborting the
// whole read (§7): the resolver logs a warning naming
// models.ErrDanglingReference, and the returned map does not tell such a
// null apart from a stored null.
func (t *Table) Read(index uint32) (map[string]models.Value, error) {
	record, err := t.rf.Read(uint64(index))
	if err != nil {
		return nil, err
	}
	bitmap := record[:t.bitmapBytes]
	slots := record[t.bitmapBytes:]

	out := make(map[string]models.Value, len(t.fields))
	for _, f := range t.fields {
		if bitmap[f.bitIndex/8]&(1<<uint(f.bitIndex%8)) != 0 {
			out[f.name] = models.NullValue(resolvedKind(t.resolver, f.typeName))
			continue
		}
		v, err := t.resolver.ReadField(f.typeName, slots[f.offset:f.offset+f.width])
		if err != nil {
			return nil, fmt.Errorf("catalog: %s.%s: %w", t.name, f.name, err)
		}
		out[f.name] = v
	}
	return out, nil
}

func resolvedKind(res *resolver.Resolver, typeName string) models.Kind {
	return models.KindPrimitive // best-effort hint only; bitmap null carries no further type info
}

// Update applies changes field-by-field to the record at index and
// writes it back in place; references to variable-length data are
// re-interned, never rewritten in the element store (§4.3).
func (t *Table) Update(index uint32, changes map[string]models.Value) error {
	current, err := t.Read(index)
	if err != nil {
		return err
	}
	for k, v := range changes {
		current[k] = v
	}

	bitmap := make([]byte, t.bitmapBytes)
	slots := make([]byte, t.recordSize-int64(t.bitmapBytes))
	for _, f := range t.fields {
		v := current[f.name]
		if v.Null {
			bitmap[f.bitIndex/8] |= 1 << uint(f.bitIndex%8)
			continue
		}
		b, err := t.resolver.WriteField(f.typeName, v, f.overflow)
		if err != nil {
			return fmt.Errorf("catalog: %s.%s: %w", t.name, f.name, err)
		}
		copy(slots[f.offset:f.offset+f.width], b)
	}
	record := append(bitmap, slots...)
	return t.rf.Overwrite(uint64(index), record)
}

// Delete soft-deletes the record at index (§3.3, §4.1).
func (t *Table) Delete(index uint32) error {
	return t.rf.Tombstone(uint64(index))
}

// IsLive reports whether index names a live (non-tombstoned) record
// within range; it implements resolver.CatalogAccessor.
func (t *Table) IsLive(index uint32) bool {
	idx := uint64(index)
	return idx < t.rf.Count() && !t.rf.IsTombstoned(idx)
}

// IterIndices yields the index of every live record, ascending.
func (t *Table) IterIndices(yield func(uint32) bool) {
	t.rf.IterLive(func(r recordfile.LiveRecord) bool {
		return yield(uint32(r.Index))
	})
}

// Count returns the number of records ever appended, live or tombstoned.
func (t *Table) Count() uint64 { return t.rf.Count() }

// RecordSize returns the fixed record size in bytes.
func (t *Table) RecordSize() int64 { return t.recordSize }

// FieldInfo names one field of a Table's record layout: its name and its
// declared type, without the byte-offset bookkeeping that's private to
// Table. Used by the compactor to know what a field's static type is
// when it needs to remap a reference inside it (§4.9).
type FieldInfo struct {
	Name     string
	TypeName string
}

// FieldInfos returns the field list this Table was opened with, in
// declaration order.
func (t *Table) FieldInfos() []FieldInfo {
	out := make([]FieldInfo, len(t.fields))
	for i, f := range t.fields {
		out[i] = FieldInfo{Name: f.name, TypeName: f.typeName}
	}
	return out
}

// ShrinkToFit truncates the backing Record File to exactly the space its
// live and tombstoned records occupy, dropping unused doubling-growth
// capacity (§4.9 "exact output file sizes").
func (t *Table) ShrinkToFit() error { return t.rf.ShrinkToFit() }
