package models

import "math/big"

// Ref addresses one record of a composite's Table Catalog, optionally
// qualified by an interface type-id (§3.2). Composite references use only
// Index; interface references also carry TypeID.
type Ref struct {
	TypeID uint16
	Index  uint32
}

// Run addresses a contiguous range in an Element Store (§3.2, §4.2). An
// empty run is represented by the zero value and consumes no space.
type Run struct {
	Start  uint32
	Length uint32
}

// DictEntry is one key/value pair of a dictionary literal, prior to being
// interned into the dictionary's synthetic entry composite (§3.1).
type DictEntry struct {
	Key   Value
	Value Value
}

// EnumValue is the value-level representation of an enum instance: a
// discriminant, and — for payload-bearing variants — the variant's field
// values (§3.1, §3.2).
type EnumValue struct {
	Variant      string
	Discriminant int64
	Fields       map[string]Value // nil for bare variants
}

// Value is the language-level representation of one field's worth of
// data, independent of whether it is still a literal awaiting insertion
// or has already been resolved to on-disk slot contents. The Reference
// Resolver (§4.6) is the only place that converts between the two.
//
// Exactly one payload field is meaningful for a given Kind; the rest are
// zero. Null is independent of Kind and short-circuits every other field.
type Value struct {
	Kind Kind
	Null bool

	Int     int64    // signed primitives narrower than 128 bits, bare enum discriminants
	Uint    uint64   // unsigned primitives narrower than 128 bits
	Int128  [2]uint64 // (low, high) two's-complement
	Uint128 [2]uint64 // (low, high)
	Float32 float32
	Float64 float64
	Bool    bool
	Char    rune

	// String holds a language-level string literal prior to interning,
	// or a reconstructed string after resolution. Array/Set elements use
	// Elements; String never populates it.
	String   string
	Elements []Value // Array / Set literal or reconstructed contents
	Entries  []DictEntry

	// Composite holds an unresolved nested composite literal, keyed by
	// field name; Ref holds a resolved composite or interface reference.
	// TypeName names the concrete composite a Composite literal
	// instantiates, required when writing it through an interface-typed
	// field so the resolver can look up the right Table Catalog (§4.6).
	Composite map[string]Value
	TypeName  string
	Ref       *Ref

	Enum *EnumValue

	BigInt   *big.Int // BigInt: signed; BigUInt: must be non-negative
	Fraction *big.Rat
}

// NullValue returns a null Value of the given kind; the kind is retained
// so callers can still report what type the null belongs to.
func NullValue(k Kind) Value {
	return Value{Kind: k, Null: true}
}

