package resolver

import (
	"encoding/binary"
	"fmt"
	"math"

	"typedtables/models"
)

// writePrimitive packs v into enc's slot width, applying policy to
// integer kinds. Narrowing conversions (a value whose Go representation
// holds more precision than the target, e.g. a Float64 written to a
// Float32 field) always error, regardless of policy (§4.8).
func writePrimitive(enc models.PrimitiveEncoding, v models.Value, policy models.OverflowPolicy) ([]byte, error) {
	b := make([]byte, enc.Width())

	switch enc {
	case models.Boolean:
		if v.Bool {
			b[0] = 1
		}
		return b, nil
	case models.Character:
		binary.LittleEndian.PutUint32(b, uint32(v.Char))
		return b, nil
	case models.Float32:
		if v.Float64 != 0 && float64(float32(v.Float64)) != v.Float64 {
			return nil, fmt.Errorf("resolver: %w: float64 value does not fit float32", models.ErrNarrowingOverflow)
		}
		f := v.Float32
		if f == 0 && v.Float64 != 0 {
			f = float32(v.Float64)
		}
		binary.LittleEndian.PutUint32(b, math.Float32bits(f))
		return b, nil
	case models.Float64:
		f := v.Float64
		if f == 0 && v.Float32 != 0 {
			f = float64(v.Float32)
		}
		binary.LittleEndian.PutUint64(b, math.Float64bits(f))
		return b, nil
	}

	if enc.Integer() {
		return writeInteger(enc, b, v, policy)
	}
	return nil, fmt.Errorf("resolver: unsupported primitive encoding %v", enc)
}

func writeInteger(enc models.PrimitiveEncoding, b []byte, v models.Value, policy models.OverflowPolicy) ([]byte, error) {
	if enc == models.Int128 || enc == models.Uint128 {
		lh := v.Int128
		if enc == models.Uint128 {
			lh = v.Uint128
		}
		binary.LittleEndian.PutUint64(b[0:8], lh[0])
		binary.LittleEndian.PutUint64(b[8:16], lh[1])
		return b, nil
	}

	if enc.Signed() {
		n := v.Int
		clamped, err := applyIntPolicy(enc, n, policy)
		if err != nil {
			return nil, err
		}
		putSigned(b, enc, clamped)
		return b, nil
	}

	n := v.Uint
	clamped, err := applyUintPolicy(enc, n, policy)
	if err != nil {
		return nil, err
	}
	putUnsigned(b, enc, clamped)
	return b, nil
}

func intBounds(enc models.PrimitiveEncoding) (min, max int64) {
	switch enc {
	case models.Int8:
		return math.MinInt8, math.MaxInt8
	case models.Int16:
		return math.MinInt16, math.MaxInt16
	case models.Int32:
		return math.MinInt32, math.MaxInt32
	case models.Int64:
		return math.MinInt64, math.MaxInt64
	}
	return 0, 0
}

func uintBounds(enc models.PrimitiveEncoding) uint64 {
	switch enc {
	case models.Uint8:
		return math.MaxUint8
	case models.Uint16:
		return math.MaxUint16
	case models.Uint32:
		return math.MaxUint32
	case models.Uint64:
		return math.MaxUint64
	}
	return 0
}

func applyIntPolicy(enc models.PrimitiveEncoding, n int64, policy models.OverflowPolicy) (int64, error) {
	min, max := intBounds(enc)
	if n >= min && n <= max {
		return n, nil
	}
	switch policy {
	case models.OverflowSaturating:
		if n < min {
			return min, nil
		}
		return max, nil
	case models.OverflowWrapping:
		width := uint(enc.Width()) * 8
		mod := int64(1) << width
		wrapped := n % mod
		if wrapped < min {
			wrapped += mod
		} else if wrapped > max {
			wrapped -= mod
		}
		return wrapped, nil
	default:
		return 0, fmt.Errorf("resolver: %w: %d out of range [%d, %d]", models.ErrOverflow, n, min, max)
	}
}

func applyUintPolicy(enc models.PrimitiveEncoding, n uint64, policy models.OverflowPolicy) (uint64, error) {
	max := uintBounds(enc)
	if n <= max {
		return n, nil
	}
	switch policy {
	case models.OverflowSaturating:
		return max, nil
	case models.OverflowWrapping:
		return n & max, nil
	default:
		return 0, fmt.Errorf("resolver: %w: %d out of range [0, %d]", models.ErrOverflow, n, max)
	}
}

func putSigned(b []byte, enc models.PrimitiveEncoding, n int64) {
	switch enc {
	case models.Int8:
		b[0] = byte(n)
	case models.Int16:
		binary.LittleEndian.PutUint16(b, uint16(n))
	case models.Int32:
		binary.LittleEndian.PutUint32(b, uint32(n))
	case models.Int64:
		binary.LittleEndian.PutUint64(b, uint64(n))
	}
}

func putUnsigned(b []byte, enc models.PrimitiveEncoding, n uint64) {
	switch enc {
	case models.Uint8:
		b[0] = byte(n)
	case models.Uint16:
		binary.LittleEndian.PutUint16(b, uint16(n))
	case models.Uint32:
		binary.LittleEndian.PutUint32(b, uint32(n))
	case models.Uint64:
		binary.LittleEndian.PutUint64(b, n)
	}
}

// readPrimitive inverts writePrimitive.
func readPrimitive(enc models.PrimitiveEncoding, b []byte) models.Value {
	switch enc {
	case models.Boolean:
		return models.Value{Kind: models.KindPrimitive, Bool: b[0] != 0}
	case models.Character:
		return models.Value{Kind: models.KindPrimitive, Char: rune(binary.LittleEndian.Uint32(b))}
	case models.Float32:
		f := math.Float32frombits(binary.LittleEndian.Uint32(b))
		return models.Value{Kind: models.KindPrimitive, Float32: f, Float64: float64(f)}
	case models.Float64:
		return models.Value{Kind: models.KindPrimitive, Float64: math.Float64frombits(binary.LittleEndian.Uint64(b))}
	case models.Int128:
		return models.Value{Kind: models.KindPrimitive, Int128: [2]uint64{binary.LittleEndian.Uint64(b[0:8]), binary.LittleEndian.Uint64(b[8:16])}}
	case models.Uint128:
		return models.Value{Kind: models.KindPrimitive, Uint128: [2]uint64{binary.LittleEndian.Uint64(b[0:8]), binary.LittleEndian.Uint64(b[8:16])}}
	}

	if enc.Signed() {
		return models.Value{Kind: models.KindPrimitive, Int: readSigned(enc, b)}
	}
	return models.Value{Kind: models.KindPrimitive, Uint: readUnsigned(enc, b)}
}

func readSigned(enc models.PrimitiveEncoding, b []byte) int64 {
	switch enc {
	case models.Int8:
		return int64(int8(b[0]))
	case models.Int16:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case models.Int32:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	case models.Int64:
		return int64(binary.LittleEndian.Uint64(b))
	}
	return 0
}

func readUnsigned(enc models.PrimitiveEncoding, b []byte) uint64 {
	switch enc {
	case models.Uint8:
		return uint64(b[0])
	case models.Uint16:
		return uint64(binary.LittleEndian.Uint16(b))
	case models.Uint32:
		return uint64(binary.LittleEndian.Uint32(b))
	case models.Uint64:
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}
