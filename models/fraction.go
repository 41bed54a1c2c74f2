package models

import "math/big"

// NewFraction builds a normalised Fraction: sign carried on the
// numerator, magnitude reduced by gcd (§4.6). The zero denominator case
// is rejected by the caller before reaching here.
func NewFraction(num, den *big.Int) *big.Rat {
	r := new(big.Rat).SetFrac(num, den)
	return r
}

// EncodeFraction splits a normalised fraction into its numerator and
// denominator byte encodings for interning into the two dedicated byte
// stores (§3.2, §4.6): numerator is signed two's-complement, denominator
// is unsigned (big.Rat always normalises the denominator to positive, so
// the EncodeBigUInt error is unreachable here).
func EncodeFraction(r *big.Rat) (num, den []byte) {
	den, _ = EncodeBigUInt(r.Denom())
	return EncodeBigInt(r.Num()), den
}

// DecodeFraction inverts EncodeFraction.
func DecodeFraction(num, den []byte) *big.Rat {
	n := DecodeBigInt(num)
	d := DecodeBigUInt(den)
	return NewFraction(n, d)
}
