// Package engine wires the Schema Registry, Reference Resolver, Table
// Catalogs, and Variant Catalogs into one data-directory handle: the
// Database (SPEC_FULL.md §0 module layout). It owns schema declaration
// (DDL), record CRUD, the §4.7 scope construct for cyclic creates, and the
// construction-time directory lock and temporary-database bookkeeping of
// §5.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"typedtables/compact"
	"typedtables/config"
	"typedtables/logger"
	"typedtables/models"
	"typedtables/schema"
	"typedtables/storage/catalog"
	"typedtables/storage/elementstore"
	"typedtables/storage/resolver"
)

// Database is one open data directory: the live registry, resolver, and
// every composite's Table Catalog / every payload enum's Variant Catalog,
// all wired together (§4.5–§4.7).
type Database struct {
	mu sync.Mutex

	dir       string
	growth    int64
	temporary bool

	lock *lockFile

	registry *schema.Registry
	elems    *elementstore.Registry
	res      *resolver.Resolver

	tables   map[string]*catalog.Table
	variants map[string]*catalog.VariantCatalog

	closed bool
}

// Open creates or opens the data directory named by cfg.DataPath,
// acquiring the single-instance lock (§5 "Shared resources") and loading
// (or initialising) its schema document.
func Open(cfg *config.Config) (*Database, error) {
	dir := cfg.DataPath
	fresh := !dirExists(dir)
	if fresh {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("engine: creating data directory %q: %w", dir, err)
		}
	}

	lock, err := acquireLock(dir)
	if err != nil {
		return nil, err
	}

	metadataPath := filepath.Join(dir, schema.MetadataFile)
	var registry *schema.Registry
	if fileExists(metadataPath) {
		registry, err = schema.Load(metadataPath)
		if err != nil {
			lock.release()
			return nil, fmt.Errorf("engine: loading schema: %w", err)
		}
	} else {
		registry = schema.NewRegistry()
		if err := registry.Save(metadataPath); err != nil {
			lock.release()
			return nil, fmt.Errorf("engine: writing initial schema: %w", err)
		}
	}

	elems := elementstore.NewRegistry(dir, cfg.GrowthFactor)
	res := resolver.New(registry, elems)
	compact.WireContainers(registry, res)

	db := &Database{
		dir: dir, growth: cfg.GrowthFactor, temporary: cfg.Temporary,
		lock: lock, registry: registry, elems: elems, res: res,
		tables: make(map[string]*catalog.Table), variants: make(map[string]*catalog.VariantCatalog),
	}

	if err := db.openComposites(); err != nil {
		lock.release()
		return nil, err
	}
	if err := db.openVariants(); err != nil {
		lock.release()
		return nil, err
	}

	if cfg.Temporary {
		trackTemporary(dir)
	}

	logger.TraceIf("catalog", "opened database %q fresh=%v composites=%d variants=%d", dir, fresh, len(db.tables), len(db.variants))
	return db, nil
}

func (db *Database) openComposites() error {
	for _, name := range db.registry.NamesOfKind(schema.KindComposite) {
		t, err := catalog.Open(filepath.Join(db.dir, name+".bin"), name, db.registry, db.res, db.growth, false)
		if err != nil {
			return fmt.Errorf("engine: opening table %q: %w", name, err)
		}
		db.tables[name] = t
	}
	return nil
}

func (db *Database) openVariants() error {
	for _, enum := range db.registry.NamesOfKind(schema.KindEnumPayload) {
		def, _ := db.registry.EnumOf(enum)
		variantFields := make(map[string][]models.Field)
		for _, v := range def.Variants {
			if len(v.Fields) > 0 {
				variantFields[v.Name] = v.Fields
			}
		}
		if len(variantFields) == 0 {
			continue
		}
		vc, err := catalog.OpenVariantCatalog(db.dir, enum, variantFields, db.registry, db.res, db.growth, false)
		if err != nil {
			return fmt.Errorf("engine: opening variant catalog %q: %w", enum, err)
		}
		db.variants[enum] = vc
	}
	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Save persists the current schema document to the data directory
// (§4.5 Persistence).
func (db *Database) Save() error {
	return db.registry.Save(filepath.Join(db.dir, schema.MetadataFile))
}

// Close releases every open Table Catalog, Variant Catalog, and Element
// Store, then drops the directory lock. It does not delete a temporary
// directory; that happens only at Teardown (§5 "Temporary databases").
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return models.ErrClosed
	}
	db.closed = true

	var firstErr error
	for _, t := range db.tables {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, vc := range db.variants {
		if err := vc.CloseAll(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := db.elems.CloseAll(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := db.lock.release(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Registry exposes the underlying Schema Registry for read-only queries
// (ancestors, implementers, effective fields) that the Database does not
// itself wrap.
func (db *Database) Registry() *schema.Registry { return db.registry }

// ---- DDL -------------------------------------------------------------

// DeclareForwardStub reserves name so mutually referential composites can
// be declared in either order (§3.1).
func (db *Database) DeclareForwardStub(name string) error {
	return db.registry.DeclareForwardStub(name)
}

// DeclareAlias registers name as resolving to target (§3.1).
func (db *Database) DeclareAlias(name, target string) error {
	if err := db.registry.Register(name, schema.KindAlias, models.Alias{Name: name, Target: target}); err != nil {
		return err
	}
	return db.Save()
}

// DeclareArray registers "array of element" under name and opens no
// Table Catalog of its own — arrays live entirely in the shared Element
// Store for their element type (§3.1, §4.2).
func (db *Database) DeclareArray(name, element string) error {
	if err := db.registry.Register(name, schema.KindArray, models.Array{Name: name, Element: element}); err != nil {
		return err
	}
	db.res.RegisterArray(name, element)
	return db.Save()
}

// DeclareSet registers "set of element" under name, identical storage to
// Array with uniqueness enforced on write (§3.1).
func (db *Database) DeclareSet(name, element string) error {
	if err := db.registry.Register(name, schema.KindSet, models.SetType{Name: name, Element: element}); err != nil {
		return err
	}
	db.res.RegisterArray(name, element)
	return db.Save()
}

// DeclareDictionary registers "dictionary of key -> value" under name and
// also registers and opens the synthetic entry composite that backs its
// entries, named by compact.DictEntryName (§3.1 "Dict_K_V").
func (db *Database) DeclareDictionary(name, key, value string) error {
	entryName := compact.DictEntryName(name)
	entryFields := []models.Field{{Name: "key", Type: key}, {Name: "value", Type: value}}
	if err := db.registry.Register(entryName, schema.KindComposite, models.Composite{Name: entryName, Fields: entryFields}); err != nil {
		return err
	}
	entryTable, err := catalog.Open(filepath.Join(db.dir, entryName+".bin"), entryName, db.registry, db.res, db.growth, true)
	if err != nil {
		return fmt.Errorf("engine: opening dictionary entry table %q: %w", entryName, err)
	}
	db.tables[entryName] = entryTable

	if err := db.registry.Register(name, schema.KindDictionary, models.DictType{Name: name, Key: key, Value: value}); err != nil {
		return err
	}
	db.res.RegisterDictionary(name, key, value, entryName)
	return db.Save()
}

// DeclareComposite registers a composite type and opens its Table
// Catalog (§3.1, §4.3).
func (db *Database) DeclareComposite(name string, c models.Composite) error {
	c.Name = name
	if err := db.registry.Register(name, schema.KindComposite, c); err != nil {
		return err
	}
	t, err := catalog.Open(filepath.Join(db.dir, name+".bin"), name, db.registry, db.res, db.growth, true)
	if err != nil {
		return fmt.Errorf("engine: opening table %q: %w", name, err)
	}
	db.tables[name] = t
	return db.Save()
}

// DeclareInterface registers a polymorphic field-list contract; it
// allocates no Table Catalog of its own (§3.1).
func (db *Database) DeclareInterface(name string, iface models.Interface) error {
	iface.Name = name
	if err := db.registry.Register(name, schema.KindInterface, iface); err != nil {
		return err
	}
	return db.Save()
}

// DeclareEnum registers a bare or payload-bearing enum under name (§3.1)
// and, for a payload enum, opens its Variant Catalog (§4.4).
func (db *Database) DeclareEnum(name string, e models.Enum) error {
	e.Name = name
	kind := schema.KindEnumBare
	variantFields := make(map[string][]models.Field)
	for _, v := range e.Variants {
		if len(v.Fields) > 0 {
			kind = schema.KindEnumPayload
			variantFields[v.Name] = v.Fields
		}
	}
	e.Payload = kind == schema.KindEnumPayload

	if err := db.registry.Register(name, kind, e); err != nil {
		return err
	}
	db.res.RegisterEnumWidth(name, compact.DiscriminantWidth(e))

	if len(variantFields) > 0 {
		vc, err := catalog.OpenVariantCatalog(db.dir, name, variantFields, db.registry, db.res, db.growth, true)
		if err != nil {
			return fmt.Errorf("engine: opening variant catalog %q: %w", name, err)
		}
		db.variants[name] = vc
	}
	return db.Save()
}

// ---- CRUD --------------------------------------------------------------

// Insert appends a new record of composite (§4.3).
func (db *Database) Insert(composite string, fields map[string]models.Value) (uint32, error) {
	t, ok := db.tables[composite]
	if !ok {
		return 0, fmt.Errorf("engine: %w: %q", models.ErrUnknownType, composite)
	}
	return t.Insert(fields)
}

// Read decodes the record at index in composite (§4.3).
func (db *Database) Read(composite string, index uint32) (map[string]models.Value, error) {
	t, ok := db.tables[composite]
	if !ok {
		return nil, fmt.Errorf("engine: %w: %q", models.ErrUnknownType, composite)
	}
	return t.Read(index)
}

// Update applies field-by-field changes to the record at index (§4.3).
func (db *Database) Update(composite string, index uint32, changes map[string]models.Value) error {
	t, ok := db.tables[composite]
	if !ok {
		return fmt.Errorf("engine: %w: %q", models.ErrUnknownType, composite)
	}
	return t.Update(index, changes)
}

// Delete soft-deletes the record at index (§3.3).
func (db *Database) Delete(composite string, index uint32) error {
	t, ok := db.tables[composite]
	if !ok {
		return fmt.Errorf("engine: %w: %q", models.ErrUnknownType, composite)
	}
	return t.Delete(index)
}

// IterIndices yields the index of every live record of composite,
// ascending.
func (db *Database) IterIndices(composite string, yield func(uint32) bool) error {
	t, ok := db.tables[composite]
	if !ok {
		return fmt.Errorf("engine: %w: %q", models.ErrUnknownType, composite)
	}
	t.IterIndices(yield)
	return nil
}

// Count returns the number of records of composite ever appended, live
// or tombstoned.
func (db *Database) Count(composite string) (uint64, error) {
	t, ok := db.tables[composite]
	if !ok {
		return 0, fmt.Errorf("engine: %w: %q", models.ErrUnknownType, composite)
	}
	return t.Count(), nil
}

// IterValues walks every composite with a field whose effective type
// resolves to targetType, yielding each live projection (§4.6
// "Type-faceted queries").
func (db *Database) IterValues(targetType string, yield func(resolver.ProjectedValue) bool) error {
	return db.res.IterValues(targetType, yield)
}

// ---- Temporary-database bookkeeping (§5 "Temporary databases") --------

var (
	tempMu   sync.Mutex
	tempDirs = make(map[string]bool)
)

func trackTemporary(dir string) {
	tempMu.Lock()
	defer tempMu.Unlock()
	tempDirs[dir] = true
}

// Teardown deletes every directory flagged temporary at creation and
// still tracked, clearing the per-session list (§5 "Temporary databases").
// Callers must Close each Database before Teardown removes its directory.
func Teardown() error {
	tempMu.Lock()
	dirs := make([]string, 0, len(tempDirs))
	for d := range tempDirs {
		dirs = append(dirs, d)
	}
	tempDirs = make(map[string]bool)
	tempMu.Unlock()

	var firstErr error
	for _, d := range dirs {
		if err := os.RemoveAll(d); err != nil && firstErr == nil {
			firstErr = err
		}
		logger.TraceIf("catalog", "tore down temporary database %q", d)
	}
	return firstErr
}

// NewTemporaryPath builds a data-directory path under baseDir suffixed
// with a fresh random identifier, suitable for Config.DataPath when
// Config.Temporary is set — avoids collisions between temporary databases
// created within the same parent directory in one session (§5 "Temporary
// databases").
func NewTemporaryPath(baseDir string) string {
	return filepath.Join(baseDir, "tmp-"+uuid.New().String())
}
