// Package models defines the schema entity kinds, typed values, and the
// shared error taxonomy for the Typed Tables storage engine.
package models

import (
	"errors"
)

// Schema errors: rejected before any write, during registration.
var (
	// ErrUnknownType is returned when a field or alias references a name
	// that is not a registered kind and not a pending forward stub.
	ErrUnknownType = errors.New("unknown type name")

	// ErrInterfaceCycle is returned when an interface's declared parents
	// form a cycle.
	ErrInterfaceCycle = errors.New("cycle in interface extends chain")

	// ErrCompositeCycle is returned when a composite's parent chain forms
	// a cycle.
	ErrCompositeCycle = errors.New("cycle in composite extends chain")

	// ErrDuplicateField is returned when a composite or interface declares
	// the same field name twice.
	ErrDuplicateField = errors.New("duplicate field")

	// ErrUnresolvedForwardStub is returned when a schema is committed with
	// a forward stub that was never populated.
	ErrUnresolvedForwardStub = errors.New("forward stub left unpopulated")

	// ErrAmbiguousEnumVariant is returned when a payload-enum variant
	// declares both an explicit discriminant and associated fields in a
	// way the registry cannot disambiguate.
	ErrAmbiguousEnumVariant = errors.New("payload-enum variant has both explicit discriminant and associated fields")

	// ErrZeroFieldComposite is returned when a composite with no fields is
	// registered: its record size would be zero, which breaks the
	// all-0xFF tombstone predicate (§7, §9 Open Questions).
	ErrZeroFieldComposite = errors.New("composite must declare at least one field")

	// ErrOverflowPolicyOnNonInteger is returned when an overflow wrapper
	// is attached to a field whose declared type is not an integer kind.
	ErrOverflowPolicyOnNonInteger = errors.New("overflow policy may only attach to integer fields")

	// ErrNameAlreadyRegistered is returned when register() is called with
	// a name already used by another kind (§3.1 "Names are globally
	// unique across all kinds").
	ErrNameAlreadyRegistered = errors.New("name already registered")
)

// Value errors: rejected during insert/update, before any write takes effect.
var (
	// ErrOverflow is returned when a value is out of range for its
	// declared type under the "error" overflow policy.
	ErrOverflow = errors.New("value out of range for declared type")

	// ErrNarrowingOverflow is returned when a narrowing conversion loses
	// information, regardless of the field's overflow policy (§4.8).
	ErrNarrowingOverflow = errors.New("narrowing conversion overflows target type")

	// ErrDuplicateKey is returned when a dictionary literal repeats a key.
	ErrDuplicateKey = errors.New("duplicate key in dictionary literal")

	// ErrDuplicateSetElement is returned when a set literal's source was
	// declared unique but repeats an element.
	ErrDuplicateSetElement = errors.New("duplicate element in set literal")

	// ErrInvalidStringElement is returned when a string's backing array
	// contains a non-character element.
	ErrInvalidStringElement = errors.New("string element is not a character")

	// ErrUnknownDiscriminant is returned when a bare or payload enum value
	// names a discriminant absent from the enum's variant list.
	ErrUnknownDiscriminant = errors.New("discriminant not present in enum")

	// ErrInterfaceNotImplemented is returned when an interface-typed
	// reference is constructed from a concrete composite that does not
	// implement the declared interface.
	ErrInterfaceNotImplemented = errors.New("concrete type does not implement declared interface")
)

// Reference errors: surfaced during read. Dangling references never throw
// through an iteration; corrupt references are fatal to the single call
// that observed them.
var (
	// ErrDanglingReference marks a slot whose referent was tombstoned.
	// Read paths recover it as a logical null (§7); compaction turns it
	// into an explicit null bit (§4.9).
	ErrDanglingReference = errors.New("reference points at a tombstoned record")

	// ErrCorruptReference marks a slot whose index is >= the target's
	// live count — structural corruption, fatal to the call that hit it.
	ErrCorruptReference = errors.New("reference index exceeds target record count")
)

// General-purpose errors shared across packages.
var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists guards operations that must not pre-exist their
	// target, such as the Compactor's output directory (§4.9).
	ErrAlreadyExists = errors.New("target already exists")

	// ErrClosed is returned by any operation attempted on a handle whose
	// Close has already run.
	ErrClosed = errors.New("handle is closed")

	// ErrLocked is returned when a second engine instance attempts to
	// open a data directory already locked by a live instance (§5).
	ErrLocked = errors.New("data directory is locked by another instance")
)
