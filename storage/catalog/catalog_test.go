package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"typedtables/models"
	"typedtables/schema"
	"typedtables/storage/catalog"
	"typedtables/storage/elementstore"
	"typedtables/storage/resolver"
)

func newFixture(t *testing.T) (*schema.Registry, *resolver.Resolver) {
	t.Helper()
	reg := schema.NewRegistry()
	elems := elementstore.NewRegistry(t.TempDir(), 2)
	res := resolver.New(reg, elems)
	return reg, res
}

func TestInsertAndReadRoundTrip(t *testing.T) {
	reg, res := newFixture(t)

	require.NoError(t, reg.Register("Person", schema.KindComposite, models.Composite{
		Name: "Person",
		Fields: []models.Field{
			{Name: "age", Type: "int32"},
			{Name: "active", Type: "boolean"},
		},
	}))

	tbl, err := catalog.Open(t.TempDir()+"/Person.bin", "Person", reg, res, 2, true)
	require.NoError(t, err)
	defer tbl.Close()

	idx, err := tbl.Insert(map[string]models.Value{
		"age":    {Kind: models.KindPrimitive, Int: 30},
		"active": {Kind: models.KindPrimitive, Bool: true},
	})
	require.NoError(t, err)

	out, err := tbl.Read(idx)
	require.NoError(t, err)
	require.EqualValues(t, 30, out["age"].Int)
	require.True(t, out["active"].Bool)
}

func TestNullBitmapRoundTrip(t *testing.T) {
	reg, res := newFixture(t)
	require.NoError(t, reg.Register("Widget", schema.KindComposite, models.Composite{
		Name:   "Widget",
		Fields: []models.Field{{Name: "count", Type: "int32"}},
	}))

	tbl, err := catalog.Open(t.TempDir()+"/Widget.bin", "Widget", reg, res, 2, true)
	require.NoError(t, err)
	defer tbl.Close()

	idx, err := tbl.Insert(map[string]models.Value{"count": models.NullValue(models.KindPrimitive)})
	require.NoError(t, err)

	out, err := tbl.Read(idx)
	require.NoError(t, err)
	require.True(t, out["count"].Null)
}

func TestDeleteTombstonesRecord(t *testing.T) {
	reg, res := newFixture(t)
	require.NoError(t, reg.Register("Item", schema.KindComposite, models.Composite{
		Name:   "Item",
		Fields: []models.Field{{Name: "n", Type: "int32"}},
	}))

	tbl, err := catalog.Open(t.TempDir()+"/Item.bin", "Item", reg, res, 2, true)
	require.NoError(t, err)
	defer tbl.Close()

	idx, err := tbl.Insert(map[string]models.Value{"n": {Kind: models.KindPrimitive, Int: 1}})
	require.NoError(t, err)
	require.True(t, tbl.IsLive(idx))

	require.NoError(t, tbl.Delete(idx))
	require.False(t, tbl.IsLive(idx))
}

func TestUpdateRewritesFieldsInPlace(t *testing.T) {
	reg, res := newFixture(t)
	require.NoError(t, reg.Register("Counter", schema.KindComposite, models.Composite{
		Name:   "Counter",
		Fields: []models.Field{{Name: "n", Type: "int32"}},
	}))

	tbl, err := catalog.Open(t.TempDir()+"/Counter.bin", "Counter", reg, res, 2, true)
	require.NoError(t, err)
	defer tbl.Close()

	idx, err := tbl.Insert(map[string]models.Value{"n": {Kind: models.KindPrimitive, Int: 1}})
	require.NoError(t, err)

	require.NoError(t, tbl.Update(idx, map[string]models.Value{"n": {Kind: models.KindPrimitive, Int: 2}}))

	out, err := tbl.Read(idx)
	require.NoError(t, err)
	require.EqualValues(t, 2, out["n"].Int)
}
