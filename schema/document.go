package schema

import (
	"fmt"
	"math/big"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"

	"typedtables/models"
)

// fieldDoc is the persisted form of one composite/interface field
// (§4.5 Persistence, §6.2). Default and Overflow are omitted when unset.
type fieldDoc struct {
	Name     string  `yaml:"name"`
	Type     string  `yaml:"type"`
	Default  *string `yaml:"default,omitempty"`
	Overflow *string `yaml:"overflow,omitempty"`
}

type variantDoc struct {
	Name         string     `yaml:"name"`
	Discriminant *int64     `yaml:"discriminant,omitempty"`
	Fields       []fieldDoc `yaml:"fields,omitempty"`
}

// entityDoc is the persisted form of one schema.Registry entry. Only the
// fields relevant to Kind are populated on write, and only those fields
// are consulted on read.
type entityDoc struct {
	Kind string `yaml:"kind"`

	// alias
	Target string `yaml:"target,omitempty"`
	// array / set
	Element string `yaml:"element,omitempty"`
	// dictionary
	Key   string `yaml:"key,omitempty"`
	Value string `yaml:"value,omitempty"`
	// composite
	Parent     string     `yaml:"parent,omitempty"`
	Interfaces []string   `yaml:"interfaces,omitempty"`
	Fields     []fieldDoc `yaml:"fields,omitempty"`
	TypeID     uint16     `yaml:"type_id,omitempty"`
	// interface
	Parents []string `yaml:"parents,omitempty"`
	// enum
	Variants []variantDoc `yaml:"variants,omitempty"`
	Backing  string       `yaml:"backing,omitempty"`
}

// document is the top-level schema document: a keyed mapping from type
// name to entry (§6.2).
type document struct {
	Entities map[string]entityDoc `yaml:"entities"`
}

// MetadataFile is the well-known schema document path within a data
// directory (§6.1).
const MetadataFile = "_metadata.yaml"

// Save serialises the registry to path as a single YAML document.
// Values exceeding 64-bit integer range are written as decimal strings
// (§4.5 Persistence).
func (r *Registry) Save(path string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc := document{Entities: make(map[string]entityDoc, len(r.entities))}
	for name, ent := range r.entities {
		d, err := r.encodeEntity(ent)
		if err != nil {
			return fmt.Errorf("schema: encoding %q: %w", name, err)
		}
		doc.Entities[name] = d
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("schema: marshaling document: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("schema: writing %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("schema: renaming %q to %q: %w", tmp, path, err)
	}
	return nil
}

func (r *Registry) encodeEntity(ent *entity) (entityDoc, error) {
	d := entityDoc{Kind: ent.kind.String()}
	switch ent.kind {
	case KindAlias:
		d.Target = ent.alias.Target
	case KindArray:
		d.Element = ent.array.Element
	case KindSet:
		d.Element = ent.set.Element
	case KindDictionary:
		d.Key, d.Value = ent.dict.Key, ent.dict.Value
	case KindComposite:
		d.Parent = ent.composite.Parent
		d.Interfaces = ent.composite.Interfaces
		d.TypeID = ent.typeID
		for _, f := range ent.composite.Fields {
			fd, err := encodeField(r, f)
			if err != nil {
				return d, err
			}
			d.Fields = append(d.Fields, fd)
		}
	case KindInterface:
		d.Parents = ent.iface.Parents
		for _, f := range ent.iface.Fields {
			fd, err := encodeField(r, f)
			if err != nil {
				return d, err
			}
			d.Fields = append(d.Fields, fd)
		}
	case KindEnumBare, KindEnumPayload:
		d.Backing = ent.enum.Backing
		for _, v := range ent.enum.Variants {
			vd := variantDoc{Name: v.Name, Discriminant: v.Discriminant}
			for _, f := range v.Fields {
				fd, err := encodeField(r, f)
				if err != nil {
					return d, err
				}
				vd.Fields = append(vd.Fields, fd)
			}
			d.Variants = append(d.Variants, vd)
		}
	}
	return d, nil
}

func encodeField(r *Registry, f models.Field) (fieldDoc, error) {
	fd := fieldDoc{Name: f.Name, Type: f.Type}
	// A null default behaves exactly like no default on insert (the null
	// bit is set either way), so it is not written to the document.
	if f.Default != nil && !f.Default.Null {
		s, err := encodeDefaultValue(r, f.Type, *f.Default)
		if err != nil {
			return fd, fmt.Errorf("field %q: %w", f.Name, err)
		}
		fd.Default = &s
	}
	if f.HasOverflow {
		s := f.Overflow.String()
		fd.Overflow = &s
	}
	return fd, nil
}

// encodeDefaultValue renders a default Value as text, dispatching on
// fieldType's resolved kind so the representation round-trips exactly
// through decodeDefaultValue: a decimal string for anything that might
// exceed 64-bit range, and a direct representation otherwise (§4.5
// Persistence).
func encodeDefaultValue(r *Registry, fieldType string, v models.Value) (string, error) {
	kind, ok := r.Lookup(fieldType)
	if !ok {
		return "", fmt.Errorf("unknown type %q", fieldType)
	}
	switch kind {
	case KindAlias:
		return encodeDefaultValue(r, r.ResolveAlias(fieldType), v)
	case KindBigInt, KindBigUInt:
		return v.BigInt.String(), nil
	case KindFraction:
		return v.Fraction.RatString(), nil
	case KindString:
		return v.String, nil
	case KindPrimitive:
		return encodePrimitiveDefault(r, fieldType, v)
	default:
		return "", fmt.Errorf("type %q cannot carry a literal default", fieldType)
	}
}

func encodePrimitiveDefault(r *Registry, fieldType string, v models.Value) (string, error) {
	enc, ok := r.PrimitiveOf(fieldType)
	if !ok {
		return "", fmt.Errorf("%q is not a built-in primitive", fieldType)
	}
	switch enc {
	case models.Boolean:
		return strconv.FormatBool(v.Bool), nil
	case models.Character:
		return string(v.Char), nil
	case models.Float32:
		return strconv.FormatFloat(float64(v.Float32), 'g', -1, 32), nil
	case models.Float64:
		return strconv.FormatFloat(v.Float64, 'g', -1, 64), nil
	case models.Int128:
		return bigFromLowHigh(v.Int128, true).String(), nil
	case models.Uint128:
		return bigFromLowHigh(v.Uint128, false).String(), nil
	}
	if enc.Signed() {
		return strconv.FormatInt(v.Int, 10), nil
	}
	return strconv.FormatUint(v.Uint, 10), nil
}

func bigFromLowHigh(lh [2]uint64, signed bool) *big.Int {
	high := new(big.Int).SetUint64(lh[1])
	high.Lsh(high, 64)
	low := new(big.Int).SetUint64(lh[0])
	n := new(big.Int).Or(high, low)
	if signed && lh[1]&(1<<63) != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), 128)
		n.Sub(n, mod)
	}
	return n
}

// decodeDefaultValue inverts encodeDefaultValue: it parses the persisted
// string back into a Value shaped the way the resolver's write path
// expects for fieldType's resolved kind, so a default applied after a
// schema.Load (process restart or compaction) encodes identically to one
// supplied inline at Register time (§4.3, §4.5 Persistence). If fieldType
// is not yet registered (a forward reference still being resolved), an
// ErrUnknownType error is returned so that Load retries the entity on its
// next pass.
func decodeDefaultValue(r *Registry, fieldType, s string) (models.Value, error) {
	kind, ok := r.Lookup(fieldType)
	if !ok {
		return models.Value{}, fmt.Errorf("%w: %q", models.ErrUnknownType, fieldType)
	}
	switch kind {
	case KindAlias:
		return decodeDefaultValue(r, r.ResolveAlias(fieldType), s)
	case KindBigInt, KindBigUInt:
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return models.Value{}, fmt.Errorf("not a valid integer")
		}
		return models.Value{Kind: kind, BigInt: n}, nil
	case KindFraction:
		f, ok := new(big.Rat).SetString(s)
		if !ok {
			return models.Value{}, fmt.Errorf("not a valid fraction")
		}
		return models.Value{Kind: models.KindFraction, Fraction: f}, nil
	case KindString:
		return models.Value{Kind: models.KindString, String: s}, nil
	case KindPrimitive:
		return decodePrimitiveDefault(r, fieldType, s)
	default:
		return models.Value{}, fmt.Errorf("type %q cannot carry a literal default", fieldType)
	}
}

func decodePrimitiveDefault(r *Registry, fieldType, s string) (models.Value, error) {
	enc, ok := r.PrimitiveOf(fieldType)
	if !ok {
		return models.Value{}, fmt.Errorf("%q is not a built-in primitive", fieldType)
	}
	switch enc {
	case models.Boolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return models.Value{}, fmt.Errorf("not a valid boolean")
		}
		return models.Value{Kind: models.KindPrimitive, Bool: b}, nil
	case models.Character:
		runes := []rune(s)
		if len(runes) != 1 {
			return models.Value{}, fmt.Errorf("not a single character")
		}
		return models.Value{Kind: models.KindPrimitive, Char: runes[0]}, nil
	case models.Float32:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return models.Value{}, fmt.Errorf("not a valid float32")
		}
		return models.Value{Kind: models.KindPrimitive, Float32: float32(f), Float64: f}, nil
	case models.Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Value{}, fmt.Errorf("not a valid float64")
		}
		return models.Value{Kind: models.KindPrimitive, Float64: f}, nil
	case models.Int128:
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return models.Value{}, fmt.Errorf("not a valid int128")
		}
		return models.Value{Kind: models.KindPrimitive, Int128: lowHighFromBig(n, true)}, nil
	case models.Uint128:
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return models.Value{}, fmt.Errorf("not a valid uint128")
		}
		return models.Value{Kind: models.KindPrimitive, Uint128: lowHighFromBig(n, false)}, nil
	}
	if enc.Signed() {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return models.Value{}, fmt.Errorf("not a valid integer")
		}
		return models.Value{Kind: models.KindPrimitive, Int: n}, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return models.Value{}, fmt.Errorf("not a valid unsigned integer")
	}
	return models.Value{Kind: models.KindPrimitive, Uint: n}, nil
}

// lowHighFromBig inverts bigFromLowHigh, splitting n into its low/high
// 64-bit halves using signed's two's-complement representation.
func lowHighFromBig(n *big.Int, signed bool) [2]uint64 {
	m := new(big.Int).Set(n)
	if signed && m.Sign() < 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), 128)
		m.Add(m, mod)
	}
	mask64 := new(big.Int).SetUint64(^uint64(0))
	low := new(big.Int).And(m, mask64)
	high := new(big.Int).Rsh(m, 64)
	return [2]uint64{low.Uint64(), high.Uint64()}
}

// Load reads a schema document from path and rebuilds a Registry. Forward
// stubs are never persisted (§3.1: "a stub left unpopulated at commit is a
// schema error"), so every entry here is fully resolved.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: reading %q: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("schema: unmarshaling %q: %w", path, err)
	}

	r := NewRegistry()
	order := make([]string, 0, len(doc.Entities))
	for name := range doc.Entities {
		order = append(order, name)
	}

	// Entities may reference each other (composite parents, field types)
	// regardless of document order, so retry the unresolved set until a
	// full pass makes no progress.
	remaining := order
	for len(remaining) > 0 {
		var next []string
		var lastErr error
		progress := false
		for _, name := range remaining {
			if err := r.loadEntity(name, doc.Entities[name]); err != nil {
				next = append(next, name)
				lastErr = err
				continue
			}
			progress = true
		}
		if !progress {
			return nil, fmt.Errorf("schema: could not resolve %d entities, last error: %w", len(next), lastErr)
		}
		remaining = next
	}
	return r, nil
}

func (r *Registry) loadEntity(name string, d entityDoc) error {
	if _, ok := r.entities[name]; ok {
		// Built-in (primitive, string, bigint, biguint, fraction): every
		// fresh Registry already seeds these identically, and Save
		// persists them alongside user-declared entities, so re-running
		// Register here would only ever collide.
		return nil
	}
	switch d.Kind {
	case "alias":
		return r.Register(name, KindAlias, models.Alias{Name: name, Target: d.Target})
	case "array":
		return r.Register(name, KindArray, models.Array{Name: name, Element: d.Element})
	case "string":
		return r.Register(name, KindString, models.StringType{Name: name})
	case "set":
		return r.Register(name, KindSet, models.SetType{Name: name, Element: d.Element})
	case "dictionary":
		return r.Register(name, KindDictionary, models.DictType{Name: name, Key: d.Key, Value: d.Value})
	case "composite":
		fields, err := decodeFields(r, d.Fields)
		if err != nil {
			return err
		}
		if err := r.Register(name, KindComposite, models.Composite{
			Name: name, Fields: fields, Parent: d.Parent, Interfaces: d.Interfaces,
		}); err != nil {
			return err
		}
		if ent := r.entities[name]; ent != nil && d.TypeID != 0 {
			ent.typeID = d.TypeID
			if d.TypeID >= r.nextTypeID {
				r.nextTypeID = d.TypeID + 1
			}
		}
		return nil
	case "interface":
		fields, err := decodeFields(r, d.Fields)
		if err != nil {
			return err
		}
		return r.Register(name, KindInterface, models.Interface{Name: name, Fields: fields, Parents: d.Parents})
	case "enum":
		payload := false
		variants := make([]models.EnumVariant, 0, len(d.Variants))
		for _, vd := range d.Variants {
			fields, err := decodeFields(r, vd.Fields)
			if err != nil {
				return err
			}
			if len(fields) > 0 {
				payload = true
			}
			variants = append(variants, models.EnumVariant{Name: vd.Name, Discriminant: vd.Discriminant, Fields: fields})
		}
		kind := KindEnumBare
		if payload {
			kind = KindEnumPayload
		}
		return r.Register(name, kind, models.Enum{Name: name, Variants: variants, Backing: d.Backing, Payload: payload})
	case "bigint":
		return r.Register(name, KindBigInt, nil)
	case "biguint":
		return r.Register(name, KindBigUInt, nil)
	case "fraction":
		return r.Register(name, KindFraction, nil)
	default:
		return fmt.Errorf("schema: unknown persisted kind %q for %q", d.Kind, name)
	}
}

func decodeFields(r *Registry, docs []fieldDoc) ([]models.Field, error) {
	fields := make([]models.Field, 0, len(docs))
	for _, fd := range docs {
		f := models.Field{Name: fd.Name, Type: fd.Type}
		if fd.Default != nil {
			v, err := decodeDefaultValue(r, fd.Type, *fd.Default)
			if err != nil {
				return nil, fmt.Errorf("schema: field %q default %q: %w", fd.Name, *fd.Default, err)
			}
			f.Default = &v
		}
		if fd.Overflow != nil {
			switch *fd.Overflow {
			case "saturating":
				f.Overflow = models.OverflowSaturating
			case "wrapping":
				f.Overflow = models.OverflowWrapping
			default:
				f.Overflow = models.OverflowError
			}
			f.HasOverflow = true
		}
		fields = append(fields, f)
	}
	return fields, nil
}
