package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"typedtables/logger"
	"typedtables/models"
	"typedtables/schema"
	"typedtables/storage/recordfile"
	"typedtables/storage/resolver"
)

// VariantCatalog holds one Table per payload-bearing enum variant, laid
// out as a composite with the variant's field list, in a directory named
// after the enum (§4.4).
type VariantCatalog struct {
	enum     string
	dir      string
	tables   map[string]*Table
	registry *schema.Registry
	resolver *resolver.Resolver
	growth   int64
}

// OpenVariantCatalog creates or opens the directory for enum and a Table
// per variant in variantFields.
func OpenVariantCatalog(baseDir, enum string, variantFields map[string][]models.Field, registry *schema.Registry, res *resolver.Resolver, growthFactor int64, create bool) (*VariantCatalog, error) {
	dir := filepath.Join(baseDir, enum)
	if create {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("catalog: creating variant directory %q: %w", dir, err)
		}
	}

	vc := &VariantCatalog{enum: enum, dir: dir, tables: make(map[string]*Table), registry: registry, resolver: res, growth: growthFactor}
	for variant, fields := range variantFields {
		compositeName := syntheticVariantName(enum, variant)
		path := filepath.Join(dir, variant+".bin")
		exists := fileExists(path)
		t, err := openVariantTable(path, compositeName, fields, res, growthFactor, create && !exists)
		if err != nil {
			return nil, err
		}
		vc.tables[variant] = t
	}
	res.RegisterVariantCatalog(enum, vc)
	logger.TraceIf("catalog", "opened variant catalog %q variants=%d", enum, len(variantFields))
	return vc, nil
}

func syntheticVariantName(enum, variant string) string { return enum + "_" + variant }

// openVariantTable builds a Table directly from an explicit field list,
// bypassing schema.Registry.EffectiveFields since a variant is not
// itself a registered composite.
func openVariantTable(path, name string, fields []models.Field, res *resolver.Resolver, growthFactor int64, create bool) (*Table, error) {
	bitmapBytes := (len(fields) + 7) / 8
	layout := make([]fieldLayout, 0, len(fields))
	offset := 0
	for i, f := range fields {
		width, err := res.SlotWidth(f.Type)
		if err != nil {
			return nil, fmt.Errorf("catalog: %s.%s: %w", name, f.Name, err)
		}
		layout = append(layout, fieldLayout{name: f.Name, typeName: f.Type, width: width, offset: offset, bitIndex: i, overflow: f.Overflow, hasOver: f.HasOverflow, def: f.Default})
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

	t := &Table{name: name, rf: rf, resolver: res, fields: layout, bitmapBytes: bitmapBytes, recordSize: recordSize}
	res.RegisterCatalog(name, t)
	return t, nil
}

// InsertVariant implements resolver.VariantAccessor.
func (vc *VariantCatalog) InsertVariant(variant string, fields map[string]models.Value) (uint32, error) {
	t, ok := vc.tables[variant]
	if !ok {
		return 0, fmt.Errorf("catalog: unknown variant %q of enum %q", variant, vc.enum)
	}
	return t.Insert(fields)
}

// ReadVariant implements resolver.VariantAccessor. variant selects which
// of this enum's per-variant Tables to read from; the caller derives it
// from the discriminant it already decoded (schema.VariantForDiscriminant).
func (vc *VariantCatalog) ReadVariant(variant string, index uint32) (map[string]models.Value, error) {
	t, ok := vc.tables[variant]
	if !ok {
		return nil, fmt.Errorf("catalog: unknown variant %q of enum %q", variant, vc.enum)
	}
	return t.Read(index)
}

// Table returns the underlying Table for one variant, for compaction.
func (vc *VariantCatalog) Table(variant string) (*Table, bool) {
	t, ok := vc.tables[variant]
	return t, ok
}

// Variants returns every variant name this catalog holds a Table for.
func (vc *VariantCatalog) Variants() []string {
	out := make([]string, 0, len(vc.tables))
	for v := range vc.tables {
		out = append(out, v)
	}
	return out
}

// ShrinkAll truncates every variant's backing Record File to the exact
// size of its records, tombstoned ones included (§4.9).
func (vc *VariantCatalog) ShrinkAll() error {
	for _, t := range vc.tables {
		if err := t.ShrinkToFit(); err != nil {
			return err
		}
	}
	return nil
}

// CloseAll closes every variant's Table.
func (vc *VariantCatalog) CloseAll() error {
	var firstErr error
	for _, t := range vc.tables {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
