package resolver_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"typedtables/models"
	"typedtables/schema"
	"typedtables/storage/elementstore"
	"typedtables/storage/resolver"
)

func newFixture(t *testing.T) *resolver.Resolver {
	t.Helper()
	_, res := newFixtureWithRegistry(t)
	return res
}

func newFixtureWithRegistry(t *testing.T) (*schema.Registry, *resolver.Resolver) {
	t.Helper()
	reg := schema.NewRegistry()
	elems := elementstore.NewRegistry(t.TempDir(), 2)
	return reg, resolver.New(reg, elems)
}

func TestPrimitiveRoundTrip(t *testing.T) {
	res := newFixture(t)
	b, err := res.WriteField("int32", models.Value{Kind: models.KindPrimitive, Int: -7}, models.OverflowError)
	require.NoError(t, err)
	v, err := res.ReadField("int32", b)
	require.NoError(t, err)
	require.EqualValues(t, -7, v.Int)
}

func TestOverflowErrorPolicy(t *testing.T) {
	res := newFixture(t)
	_, err := res.WriteField("uint8", models.Value{Kind: models.KindPrimitive, Uint: 300}, models.OverflowError)
	require.ErrorIs(t, err, models.ErrOverflow)
}

func TestOverflowSaturatingPolicy(t *testing.T) {
	res := newFixture(t)
	b, err := res.WriteField("uint8", models.Value{Kind: models.KindPrimitive, Uint: 300}, models.OverflowSaturating)
	require.NoError(t, err)
	v, err := res.ReadField("uint8", b)
	require.NoError(t, err)
	require.EqualValues(t, 255, v.Uint)
}

func TestOverflowWrappingPolicy(t *testing.T) {
	res := newFixture(t)
	b, err := res.WriteField("uint8", models.Value{Kind: models.KindPrimitive, Uint: 257}, models.OverflowWrapping)
	require.NoError(t, err)
	v, err := res.ReadField("uint8", b)
	require.NoError(t, err)
	require.EqualValues(t, 1, v.Uint)
}

func TestStringRoundTrip(t *testing.T) {
	res := newFixture(t)
	b, err := res.WriteField("string", models.Value{Kind: models.KindString, String: "hello"}, models.OverflowError)
	require.NoError(t, err)
	v, err := res.ReadField("string", b)
	require.NoError(t, err)
	require.Equal(t, "hello", v.String)
}

func TestBigIntRoundTrip(t *testing.T) {
	res := newFixture(t)
	n := big.NewInt(-123456789)
	b, err := res.WriteField("bigint", models.Value{Kind: models.KindBigInt, BigInt: n}, models.OverflowError)
	require.NoError(t, err)
	v, err := res.ReadField("bigint", b)
	require.NoError(t, err)
	require.Equal(t, 0, n.Cmp(v.BigInt))
}

func TestBigUIntRoundTrip(t *testing.T) {
	res := newFixture(t)
	n := big.NewInt(123456789)
	b, err := res.WriteField("biguint", models.Value{Kind: models.KindBigUInt, BigInt: n}, models.OverflowError)
	require.NoError(t, err)
	v, err := res.ReadField("biguint", b)
	require.NoError(t, err)
	require.Equal(t, 0, n.Cmp(v.BigInt))
}

func TestBigUIntRejectsNegative(t *testing.T) {
	res := newFixture(t)
	_, err := res.WriteField("biguint", models.Value{Kind: models.KindBigUInt, BigInt: big.NewInt(-1)}, models.OverflowError)
	require.ErrorIs(t, err, models.ErrOverflow)
}

func TestFractionRoundTrip(t *testing.T) {
	res := newFixture(t)
	r := new(big.Rat).SetFrac(big.NewInt(-6), big.NewInt(9))
	b, err := res.WriteField("fraction", models.Value{Kind: models.KindFraction, Fraction: r}, models.OverflowError)
	require.NoError(t, err)
	v, err := res.ReadField("fraction", b)
	require.NoError(t, err)
	require.Equal(t, 0, r.Cmp(v.Fraction))
}

func TestArrayOfStringRoundTrip(t *testing.T) {
	reg, res := newFixtureWithRegistry(t)
	require.NoError(t, reg.Register("StringArray", schema.KindArray, models.Array{Name: "StringArray", Element: "string"}))
	res.RegisterArray("StringArray", "string")

	arrVal := models.Value{Kind: models.KindArray, Elements: []models.Value{
		{Kind: models.KindString, String: "a"},
		{Kind: models.KindString, String: "bb"},
	}}
	b, err := res.WriteField("StringArray", arrVal, models.OverflowError)
	require.NoError(t, err)

	v, err := res.ReadField("StringArray", b)
	require.NoError(t, err)
	require.Len(t, v.Elements, 2)
	require.Equal(t, "a", v.Elements[0].String)
	require.Equal(t, "bb", v.Elements[1].String)
}
