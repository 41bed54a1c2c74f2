package models

import (
	"fmt"
	"math/big"
)

// EncodeBigInt returns the shortest little-endian two's-complement byte
// sequence that round-trips n, for interning into the signed
// arbitrary-precision byte store (§4.6).
func EncodeBigInt(n *big.Int) []byte {
	if n.Sign() == 0 {
		return []byte{0}
	}

	be := bigIntBigEndianTwosComplement(n)
	// bigIntBigEndianTwosComplement already returns the shortest
	// sign-extended form; reverse it to little-endian for storage.
	le := make([]byte, len(be))
	for i, b := range be {
		le[len(be)-1-i] = b
	}
	return le
}

// DecodeBigInt inverts EncodeBigInt.
func DecodeBigInt(le []byte) *big.Int {
	if len(le) == 0 {
		return big.NewInt(0)
	}
	be := make([]byte, len(le))
	for i, b := range le {
		be[len(le)-1-i] = b
	}
	return bigIntFromBigEndianTwosComplement(be)
}

// bigIntBigEndianTwosComplement produces the shortest big-endian two's
// complement encoding of n: for n >= 0, big.Int.Bytes() prefixed with a
// zero byte if the high bit would otherwise read as negative; for n < 0,
// the magnitude is complemented and incremented.
func bigIntBigEndianTwosComplement(n *big.Int) []byte {
	if n.Sign() >= 0 {
		mag := n.Bytes()
		if len(mag) == 0 {
			return []byte{0}
		}
		if mag[0]&0x80 != 0 {
			return append([]byte{0}, mag...)
		}
		return mag
	}

	// Two's complement of a negative number: (2^(8*k) - |n|) for the
	// smallest k whose representation has its sign bit set.
	mag := new(big.Int).Neg(n) // |n|
	nbytes := len(mag.Bytes())
	if nbytes == 0 {
		nbytes = 1
	}
	for {
		modulus := new(big.Int).Lsh(big.NewInt(1), uint(nbytes*8))
		twos := new(big.Int).Sub(modulus, mag)
		b := twos.Bytes()
		full := make([]byte, nbytes)
		copy(full[nbytes-len(b):], b)
		if full[0]&0x80 != 0 {
			return full
		}
		nbytes++
	}
}

func bigIntFromBigEndianTwosComplement(be []byte) *big.Int {
	if len(be) == 0 {
		return big.NewInt(0)
	}
	if be[0]&0x80 == 0 {
		return new(big.Int).SetBytes(be)
	}
	modulus := new(big.Int).Lsh(big.NewInt(1), uint(len(be)*8))
	val := new(big.Int).SetBytes(be)
	return val.Sub(val, modulus)
}

// EncodeBigUInt returns the shortest little-endian unsigned byte sequence
// for n, for interning into the unsigned arbitrary-precision byte store.
// n must be non-negative; a negative n is a declared-type mismatch
// (§7), reported as ErrOverflow rather than silently truncated.
func EncodeBigUInt(n *big.Int) ([]byte, error) {
	if n.Sign() < 0 {
		return nil, fmt.Errorf("%w: biguint field given negative value %s", ErrOverflow, n.String())
	}
	mag := n.Bytes()
	if len(mag) == 0 {
		return []byte{0}, nil
	}
	le := make([]byte, len(mag))
	for i, b := range mag {
		le[len(mag)-1-i] = b
	}
	return le, nil
}

// DecodeBigUInt inverts EncodeBigUInt.
func DecodeBigUInt(le []byte) *big.Int {
	be := make([]byte, len(le))
	for i, b := range le {
		be[len(le)-1-i] = b
	}
	return new(big.Int).SetBytes(be)
}
