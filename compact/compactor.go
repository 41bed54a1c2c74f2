// Package compact implements the Compactor: it reads a Typed Tables data
// directory and writes a second, smaller one holding only live records,
// renumbered contiguously and with every reference rewritten to match
// (§4.9).
//
// No direct teacher analogue exists for this operation; it is grounded on
// the "write to a fresh location, verify, then the old one is disposable"
// idiom of the teacher's atomic_file_operations.go, adapted here to whole
// directories instead of single files.
package compact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"typedtables/logger"
	"typedtables/models"
	"typedtables/schema"
	"typedtables/storage/catalog"
	"typedtables/storage/elementstore"
	"typedtables/storage/resolver"
)

// TableStats reports one composite's live/total record counts before and
// after compaction.
type TableStats struct {
	Composite  string
	LiveBefore uint64
	TotalAfter uint64
}

// Report summarizes one compaction run.
type Report struct {
	Tables []TableStats
}

// Compactor copies every live record from srcDir into a fresh dstDir,
// renumbering records 0..M-1 in ascending old-index order and rewriting
// every composite ref, interface ref, and variant index to match (§4.9).
type Compactor struct {
	registry *schema.Registry
	srcDir   string
	dstDir   string
	growth   int64

	srcElems *elementstore.Registry
	dstElems *elementstore.Registry
	srcRes   *resolver.Resolver
	dstRes   *resolver.Resolver

	dictEntry map[string]bool // composite names that exist only to back a dictionary

	srcTables map[string]*catalog.Table
	dstTables map[string]*catalog.Table

	srcVariants map[string]*catalog.VariantCatalog
	dstVariants map[string]*catalog.VariantCatalog

	// variantFieldTypes[enum][variant][field] names the static type of a
	// payload-enum variant's field, needed to remap references nested
	// inside enum payloads the same way composite fields are.
	variantFieldTypes map[string]map[string]map[string]string
}

// New builds a Compactor that will read srcDir and write dstDir, which
// must not already exist.
func New(srcDir, dstDir string, growthFactor int64) *Compactor {
	if growthFactor < 2 {
		growthFactor = 2
	}
	return &Compactor{srcDir: srcDir, dstDir: dstDir, growth: growthFactor}
}

// Run performs the full compaction and returns per-table statistics.
func (c *Compactor) Run() (Report, error) {
	if _, err := os.Stat(c.dstDir); err == nil {
		return Report{}, fmt.Errorf("compact: %w: %q", models.ErrAlreadyExists, c.dstDir)
	}
	if err := os.MkdirAll(c.dstDir, 0o755); err != nil {
		return Report{}, fmt.Errorf("compact: creating %q: %w", c.dstDir, err)
	}

	if err := c.copyMetadata(); err != nil {
		return Report{}, err
	}

	registry, err := schema.Load(filepath.Join(c.srcDir, schema.MetadataFile))
	if err != nil {
		return Report{}, fmt.Errorf("compact: loading schema: %w", err)
	}
	c.registry = registry

	c.srcElems = elementstore.NewRegistry(c.srcDir, c.growth)
	c.dstElems = elementstore.NewRegistry(c.dstDir, c.growth)
	c.srcRes = resolver.New(registry, c.srcElems)
	c.dstRes = resolver.New(registry, c.dstElems)
	WireContainers(registry, c.srcRes)
	WireContainers(registry, c.dstRes)

	c.dictEntry = DictEntryComposites(registry)

	if err := c.openTables(); err != nil {
		return Report{}, err
	}
	defer c.closeAll()

	if err := c.openVariants(); err != nil {
		return Report{}, err
	}
	c.buildVariantFieldTypes()

	remaps := c.computeRemaps()

	report := Report{}
	for name, srcTable := range c.srcTables {
		if c.dictEntry[name] {
			continue
		}
		dstTable := c.dstTables[name]
		fieldTypes := fieldTypeMap(registry, name)

		var oldIdxs []uint32
		srcTable.IterIndices(func(i uint32) bool { oldIdxs = append(oldIdxs, i); return true })
		live := uint64(len(oldIdxs))

		for _, oldIdx := range oldIdxs {
			fields, err := srcTable.Read(oldIdx)
			if err != nil {
				return Report{}, fmt.Errorf("compact: reading %s[%d]: %w", name, oldIdx, err)
			}
			remapped := make(map[string]models.Value, len(fields))
			for fname, ftype := range fieldTypes {
				rv, err := c.remapValue(ftype, fields[fname], remaps)
				if err != nil {
					return Report{}, fmt.Errorf("compact: remapping %s.%s[%d]: %w", name, fname, oldIdx, err)
				}
				remapped[fname] = rv
			}
			if _, err := dstTable.Insert(remapped); err != nil {
				return Report{}, fmt.Errorf("compact: writing %s: %w", name, err)
			}
		}

		if err := dstTable.ShrinkToFit(); err != nil {
			return Report{}, err
		}
		report.Tables = append(report.Tables, TableStats{Composite: name, LiveBefore: live, TotalAfter: dstTable.Count()})
		logger.TraceIf("compact", "compacted %q: %d -> %d records", name, live, dstTable.Count())
	}

	for _, vc := range c.dstVariants {
		if err := vc.ShrinkAll(); err != nil {
			return Report{}, err
		}
	}

	return report, nil
}

func (c *Compactor) copyMetadata() error {
	src, err := os.Open(filepath.Join(c.srcDir, schema.MetadataFile))
	if err != nil {
		return fmt.Errorf("compact: opening source schema document: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(c.dstDir, schema.MetadataFile))
	if err != nil {
		return fmt.Errorf("compact: creating destination schema document: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("compact: copying schema document: %w", err)
	}
	return nil
}

func (c *Compactor) openTables() error {
	c.srcTables = make(map[string]*catalog.Table)
	c.dstTables = make(map[string]*catalog.Table)
	for _, name := range c.registry.NamesOfKind(schema.KindComposite) {
		srcPath := filepath.Join(c.srcDir, name+".bin")
		srcTable, err := catalog.Open(srcPath, name, c.registry, c.srcRes, c.growth, false)
		if err != nil {
			return fmt.Errorf("compact: opening source table %q: %w", name, err)
		}
		c.srcTables[name] = srcTable

		dstPath := filepath.Join(c.dstDir, name+".bin")
		dstTable, err := catalog.Open(dstPath, name, c.registry, c.dstRes, c.growth, true)
		if err != nil {
			return fmt.Errorf("compact: opening destination table %q: %w", name, err)
		}
		c.dstTables[name] = dstTable
	}
	return nil
}

func (c *Compactor) openVariants() error {
	c.srcVariants = make(map[string]*catalog.VariantCatalog)
	c.dstVariants = make(map[string]*catalog.VariantCatalog)
	for _, enum := range c.registry.NamesOfKind(schema.KindEnumPayload) {
		def, _ := c.registry.EnumOf(enum)
		variantFields := make(map[string][]models.Field)
		for _, v := range def.Variants {
			if len(v.Fields) > 0 {
				variantFields[v.Name] = v.Fields
			}
		}
		if len(variantFields) == 0 {
			continue
		}

		srcVC, err := catalog.OpenVariantCatalog(c.srcDir, enum, variantFields, c.registry, c.srcRes, c.growth, false)
		if err != nil {
			return fmt.Errorf("compact: opening source variant catalog %q: %w", enum, err)
		}
		c.srcVariants[enum] = srcVC

		dstVC, err := catalog.OpenVariantCatalog(c.dstDir, enum, variantFields, c.registry, c.dstRes, c.growth, true)
		if err != nil {
			return fmt.Errorf("compact: opening destination variant catalog %q: %w", enum, err)
		}
		c.dstVariants[enum] = dstVC
	}
	return nil
}

func (c *Compactor) buildVariantFieldTypes() {
	c.variantFieldTypes = make(map[string]map[string]map[string]string)
	for enum, vc := range c.dstVariants {
		perVariant := make(map[string]map[string]string)
		for _, variant := range vc.Variants() {
			tbl, ok := vc.Table(variant)
			if !ok {
				continue
			}
			fields := make(map[string]string)
			for _, fi := range tbl.FieldInfos() {
				fields[fi.Name] = fi.TypeName
			}
			perVariant[variant] = fields
		}
		c.variantFieldTypes[enum] = perVariant
	}
}

// computeRemaps builds, for every externally-addressable composite, a map
// from its old live-record indices to the sequential new indices they
// will receive, in ascending old-index order (§4.9). Dictionary-entry and
// variant-payload composites are excluded: their records have no
// independent identity outside the container that owns them, and are
// repopulated organically when that container's field is re-encoded.
func (c *Compactor) computeRemaps() map[string]map[uint32]uint32 {
	remaps := make(map[string]map[uint32]uint32)
	for name, tbl := range c.srcTables {
		if c.dictEntry[name] {
			continue
		}
		m := make(map[uint32]uint32)
		var next uint32
		tbl.IterIndices(func(old uint32) bool {
			m[old] = next
			next++
			return true
		})
		remaps[name] = m
	}
	return remaps
}

// remapValue rewrites every composite ref, interface ref, and nested
// reference within v (whose declared type is fieldType) using remaps,
// converting references to tombstoned records into explicit nulls rather
// than aborting (§4.9 "dangling references").
func (c *Compactor) remapValue(fieldType string, v models.Value, remaps map[string]map[uint32]uint32) (models.Value, error) {
	if v.Null {
		return v, nil
	}
	kind, err := c.srcRes.Kind(fieldType)
	if err != nil {
		return models.Value{}, err
	}

	switch kind {
	case models.KindComposite:
		if v.Ref == nil {
			return v, nil
		}
		target := c.registry.ResolveAlias(fieldType)
		newIdx, ok := remaps[target][v.Ref.Index]
		if !ok {
			return models.NullValue(models.KindComposite), nil
		}
		return models.Value{Kind: models.KindComposite, Ref: &models.Ref{Index: newIdx}}, nil

	case models.KindInterface:
		if v.Ref == nil {
			return v, nil
		}
		concrete, ok := c.registry.NameForTypeID(v.Ref.TypeID)
		if !ok {
			return models.NullValue(models.KindInterface), nil
		}
		newIdx, ok := remaps[concrete][v.Ref.Index]
		if !ok {
			return models.NullValue(models.KindInterface), nil
		}
		return models.Value{Kind: models.KindInterface, Ref: &models.Ref{TypeID: v.Ref.TypeID, Index: newIdx}}, nil

	case models.KindArray, models.KindSet:
		elemType, ok := c.srcRes.ElementType(fieldType)
		if !ok {
			return v, nil
		}
		elems := make([]models.Value, len(v.Elements))
		for i, e := range v.Elements {
			re, err := c.remapValue(elemType, e, remaps)
			if err != nil {
				return models.Value{}, err
			}
			elems[i] = re
		}
		return models.Value{Kind: kind, Elements: elems}, nil

	case models.KindDictionary:
		keyType, valType, _, ok := c.srcRes.DictTypes(fieldType)
		if !ok {
			return v, nil
		}
		entries := make([]models.DictEntry, len(v.Entries))
		for i, e := range v.Entries {
			rk, err := c.remapValue(keyType, e.Key, remaps)
			if err != nil {
				return models.Value{}, err
			}
			rv, err := c.remapValue(valType, e.Value, remaps)
			if err != nil {
				return models.Value{}, err
			}
			entries[i] = models.DictEntry{Key: rk, Value: rv}
		}
		return models.Value{Kind: kind, Entries: entries}, nil

	case models.KindEnumPayload:
		if v.Enum == nil || v.Enum.Fields == nil {
			return v, nil
		}
		fieldTypes := c.variantFieldTypes[fieldType][v.Enum.Variant]
		remappedFields := make(map[string]models.Value, len(v.Enum.Fields))
		for fname, fv := range v.Enum.Fields {
			ftype, ok := fieldTypes[fname]
			if !ok {
				remappedFields[fname] = fv
				continue
			}
			rfv, err := c.remapValue(ftype, fv, remaps)
			if err != nil {
				return models.Value{}, err
			}
			remappedFields[fname] = rfv
		}
		return models.Value{Kind: kind, Enum: &models.EnumValue{
			Variant: v.Enum.Variant, Discriminant: v.Enum.Discriminant, Fields: remappedFields,
		}}, nil

	default:
		// Primitives, strings, bare enums, and the arbitrary-precision
		// kinds carry no references of their own.
		return v, nil
	}
}

func (c *Compactor) closeAll() {
	for _, t := range c.srcTables {
		t.Close()
	}
	for _, t := range c.dstTables {
		t.Close()
	}
	for _, vc := range c.srcVariants {
		vc.CloseAll()
	}
	for _, vc := range c.dstVariants {
		vc.CloseAll()
	}
	c.srcElems.CloseAll()
	c.dstElems.CloseAll()
}

// WireContainers registers every array/set/dictionary/enum's auxiliary
// shape information with res, mirroring what the engine does when a
// schema is first defined (SPEC_FULL.md engine). Every dictionary's entry
// composite is expected to already be registered in registry under the
// "_dictentry_<name>" convention (see DictEntryName). Exported so both the
// Compactor and the engine's DDL path drive the resolver from exactly the
// same logic.
func WireContainers(registry *schema.Registry, res *resolver.Resolver) {
	for _, name := range registry.NamesOfKind(schema.KindArray) {
		if a, ok := registry.ArrayOf(name); ok {
			res.RegisterArray(name, a.Element)
		}
	}
	for _, name := range registry.NamesOfKind(schema.KindSet) {
		if s, ok := registry.SetOf(name); ok {
			res.RegisterArray(name, s.Element)
		}
	}
	for _, name := range registry.NamesOfKind(schema.KindDictionary) {
		if d, ok := registry.DictOf(name); ok {
			res.RegisterDictionary(name, d.Key, d.Value, DictEntryName(name))
		}
	}
	for _, kind := range []models.Kind{schema.KindEnumBare, schema.KindEnumPayload} {
		for _, name := range registry.NamesOfKind(kind) {
			if e, ok := registry.EnumOf(name); ok {
				res.RegisterEnumWidth(name, DiscriminantWidth(e))
			}
		}
	}
}

// DictEntryName derives the synthetic composite name backing a
// dictionary's entries from the dictionary type's own name (§3.1 "Dict_K_V"
// — rendered here as "_dictentry_<name>" since K and V may themselves be
// compound type names unsafe to splice into an identifier).
func DictEntryName(dictType string) string { return "_dictentry_" + dictType }

// DictEntryComposites returns the set of synthetic composite names backing
// every registered dictionary, for callers (the Compactor, the engine's
// open path) that need to treat them specially.
func DictEntryComposites(registry *schema.Registry) map[string]bool {
	out := make(map[string]bool)
	for _, name := range registry.NamesOfKind(schema.KindDictionary) {
		out[DictEntryName(name)] = true
	}
	return out
}

// DiscriminantWidth picks the narrowest of 1, 2, or 4 bytes that holds
// every declared discriminant (§3.2).
func DiscriminantWidth(e models.Enum) int {
	width := 1
	for _, v := range e.Variants {
		if v.Discriminant == nil {
			continue
		}
		d := *v.Discriminant
		switch {
		case d < -(1<<15) || d >= (1<<15):
			width = 4
		case width < 2 && (d < -(1<<7) || d >= (1<<7)):
			width = 2
		}
	}
	return width
}

func fieldTypeMap(registry *schema.Registry, composite string) map[string]string {
	out := make(map[string]string)
	for _, f := range registry.EffectiveFields(composite) {
		out[f.Name] = f.Type
	}
	return out
}
