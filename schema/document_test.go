package schema_test

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"typedtables/models"
	"typedtables/schema"
)

func TestSaveLoadRoundTripsIntegerDefault(t *testing.T) {
	reg := schema.NewRegistry()
	def := models.Value{Kind: models.KindPrimitive, Int: 42}
	require.NoError(t, reg.Register("Counter", schema.KindComposite, models.Composite{
		Name: "Counter",
		Fields: []models.Field{
			{Name: "count", Type: "int32", Default: &def},
		},
	}))

	path := filepath.Join(t.TempDir(), "_metadata.yaml")
	require.NoError(t, reg.Save(path))

	loaded, err := schema.Load(path)
	require.NoError(t, err)

	c, ok := loaded.Composite("Counter")
	require.True(t, ok)
	require.Len(t, c.Fields, 1)
	require.NotNil(t, c.Fields[0].Default)
	require.Equal(t, models.KindPrimitive, c.Fields[0].Default.Kind)
	require.EqualValues(t, 42, c.Fields[0].Default.Int)
}

func TestSaveLoadRoundTripsBigIntDefault(t *testing.T) {
	reg := schema.NewRegistry()
	n, ok := new(big.Int).SetString("-123456789012345678901234567890", 10)
	require.True(t, ok)
	def := models.Value{Kind: models.KindBigInt, BigInt: n}
	require.NoError(t, reg.Register("Ledger", schema.KindComposite, models.Composite{
		Name: "Ledger",
		Fields: []models.Field{
			{Name: "balance", Type: "bigint", Default: &def},
		},
	}))

	path := filepath.Join(t.TempDir(), "_metadata.yaml")
	require.NoError(t, reg.Save(path))

	loaded, err := schema.Load(path)
	require.NoError(t, err)

	c, ok := loaded.Composite("Ledger")
	require.True(t, ok)
	require.NotNil(t, c.Fields[0].Default)
	require.Equal(t, def.BigInt.String(), c.Fields[0].Default.BigInt.String())
}

func TestSaveLoadRoundTripsBoolDefault(t *testing.T) {
	reg := schema.NewRegistry()
	def := models.Value{Kind: models.KindPrimitive, Bool: true}
	require.NoError(t, reg.Register("Flag", schema.KindComposite, models.Composite{
		Name: "Flag",
		Fields: []models.Field{
			{Name: "enabled", Type: "boolean", Default: &def},
		},
	}))

	path := filepath.Join(t.TempDir(), "_metadata.yaml")
	require.NoError(t, reg.Save(path))

	loaded, err := schema.Load(path)
	require.NoError(t, err)

	c, ok := loaded.Composite("Flag")
	require.True(t, ok)
	require.NotNil(t, c.Fields[0].Default)
	require.True(t, c.Fields[0].Default.Bool)
}
