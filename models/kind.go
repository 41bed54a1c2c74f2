package models

// Kind is the closed set of schema entity kinds (§3.1). Every name
// registered in the Schema Registry resolves to exactly one Kind.
type Kind int

const (
	KindPrimitive Kind = iota
	KindAlias
	KindArray
	KindString
	KindSet
	KindDictionary
	KindComposite
	KindInterface
	KindEnumBare
	KindEnumPayload
	KindBigInt
	KindBigUInt
	KindFraction
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindAlias:
		return "alias"
	case KindArray:
		return "array"
	case KindString:
		return "string"
	case KindSet:
		return "set"
	case KindDictionary:
		return "dictionary"
	case KindComposite:
		return "composite"
	case KindInterface:
		return "interface"
	case KindEnumBare:
		return "enum"
	case KindEnumPayload:
		return "enum"
	case KindBigInt:
		return "bigint"
	case KindBigUInt:
		return "biguint"
	case KindFraction:
		return "fraction"
	default:
		return "unknown"
	}
}

// PrimitiveEncoding names one of the fixed, built-in primitive kinds and
// its byte width on the wire (§3.1, §3.2).
type PrimitiveEncoding int

const (
	Int8 PrimitiveEncoding = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Int128
	Uint128
	Float32
	Float64
	Character
	Boolean
)

// Width returns the slot width in bytes for a primitive encoding.
func (p PrimitiveEncoding) Width() int {
	switch p {
	case Int8, Uint8, Boolean:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32, Character:
		return 4
	case Int64, Uint64, Float64:
		return 8
	case Int128, Uint128:
		return 16
	default:
		return 0
	}
}

// Signed reports whether the encoding is a signed integer kind; only
// signed/unsigned integer kinds may carry an OverflowPolicy (§3.1).
func (p PrimitiveEncoding) Signed() bool {
	switch p {
	case Int8, Int16, Int32, Int64, Int128:
		return true
	default:
		return false
	}
}

// Integer reports whether the encoding is an integer kind at all, as
// opposed to float/character/boolean.
func (p PrimitiveEncoding) Integer() bool {
	switch p {
	case Int8, Uint8, Int16, Uint16, Int32, Uint32, Int64, Uint64, Int128, Uint128:
		return true
	default:
		return false
	}
}

// OverflowPolicy governs how an out-of-range write to an integer field is
// handled (§4.8). It attaches to a field, never to a stored type.
type OverflowPolicy int

const (
	// OverflowError is the default: an out-of-range value is rejected.
	OverflowError OverflowPolicy = iota
	// OverflowSaturating clamps to the declared type's min/max.
	OverflowSaturating
	// OverflowWrapping reduces modulo the type's cardinality, preserving
	// two's-complement for signed types.
	OverflowWrapping
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowError:
		return "error"
	case OverflowSaturating:
		return "saturating"
	case OverflowWrapping:
		return "wrapping"
	default:
		return "unknown"
	}
}

// Field is one member of a composite or interface field list (§3.1).
// Declaration order is authoritative for record layout (§3.2).
type Field struct {
	Name     string
	Type     string // resolves to a registered Kind or a forward stub
	Default  *Value
	Overflow OverflowPolicy
	// HasOverflow distinguishes "policy explicitly set to error" from
	// "no overflow wrapper attached"; both default to OverflowError but
	// only the former requires the field to be an integer kind.
	HasOverflow bool
}

// Composite describes a user-defined record type (§3.1).
type Composite struct {
	Name       string
	Fields     []Field
	Parent     string // "" if none
	Interfaces []string
}

// Interface describes a polymorphic field-list contract (§3.1). It
// allocates no Table Catalog of its own.
type Interface struct {
	Name    string
	Fields  []Field
	Parents []string
}

// EnumVariant is one case of an enum. Bare enums use only Name and
// Discriminant; payload enums additionally declare Fields.
type EnumVariant struct {
	Name         string
	Discriminant *int64
	Fields       []Field
}

// Enum describes a bare or payload-bearing enumeration (§3.1).
type Enum struct {
	Name     string
	Variants []EnumVariant
	Backing  string // optional explicit backing integer kind for bare enums
	Payload  bool
}

// Alias resolves transitively to a non-alias kind (§3.1).
type Alias struct {
	Name   string
	Target string
}

// Array describes "array of X"; its element store is shared across every
// usage of the same element type (§3.1).
type Array struct {
	Name    string
	Element string
}

// StringType is the special array-of-character alias; it inherits array
// storage but is treated as a single unit at the value level (§3.1).
type StringType struct {
	Name string
}

// SetType has storage identical to Array; uniqueness is enforced in the
// write path, not in the stored representation (§3.1).
type SetType struct {
	Name    string
	Element string
}

// DictType is stored as an array of indices into a synthetic entry
// composite with fields {key, value} (§3.1).
type DictType struct {
	Name  string
	Key   string
	Value string
}
