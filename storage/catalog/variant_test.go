package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"typedtables/compact"
	"typedtables/models"
	"typedtables/schema"
	"typedtables/storage/catalog"
)

func declareShapeEnum(t *testing.T, reg *schema.Registry) {
	t.Helper()
	require.NoError(t, reg.Register("Shape", schema.KindEnumPayload, models.Enum{
		Name: "Shape",
		Variants: []models.EnumVariant{
			{Name: "Circle", Fields: []models.Field{{Name: "radius", Type: "int32"}}},
			{Name: "Point"},
		},
		Payload: true,
	}))
}

func TestVariantCatalogRoundTripsPayload(t *testing.T) {
	reg, res := newFixture(t)
	declareShapeEnum(t, reg)
	compact.WireContainers(reg, res)

	require.NoError(t, reg.Register("Thing", schema.KindComposite, models.Composite{
		Name:   "Thing",
		Fields: []models.Field{{Name: "shape", Type: "Shape"}},
	}))

	_, err := catalog.OpenVariantCatalog(t.TempDir(), "Shape",
		map[string][]models.Field{"Circle": {{Name: "radius", Type: "int32"}}},
		reg, res, 2, true)
	require.NoError(t, err)

	tbl, err := catalog.Open(t.TempDir()+"/Thing.bin", "Thing", reg, res, 2, true)
	require.NoError(t, err)
	defer tbl.Close()

	idx, err := tbl.Insert(map[string]models.Value{
		"shape": {Kind: models.KindEnumPayload, Enum: &models.EnumValue{
			Variant:      "Circle",
			Discriminant: 0,
			Fields: map[string]models.Value{
				"radius": {Kind: models.KindPrimitive, Int: 7},
			},
		}},
	})
	require.NoError(t, err)

	out, err := tbl.Read(idx)
	require.NoError(t, err)
	require.Equal(t, "Circle", out["shape"].Enum.Variant)
	require.EqualValues(t, 0, out["shape"].Enum.Discriminant)
	require.EqualValues(t, 7, out["shape"].Enum.Fields["radius"].Int)
}

func TestVariantCatalogRoundTripsBareVariant(t *testing.T) {
	reg, res := newFixture(t)
	declareShapeEnum(t, reg)
	compact.WireContainers(reg, res)

	require.NoError(t, reg.Register("Thing", schema.KindComposite, models.Composite{
		Name:   "Thing",
		Fields: []models.Field{{Name: "shape", Type: "Shape"}},
	}))

	_, err := catalog.OpenVariantCatalog(t.TempDir(), "Shape",
		map[string][]models.Field{"Circle": {{Name: "radius", Type: "int32"}}},
		reg, res, 2, true)
	require.NoError(t, err)

	tbl, err := catalog.Open(t.TempDir()+"/Thing.bin", "Thing", reg, res, 2, true)
	require.NoError(t, err)
	defer tbl.Close()

	idx, err := tbl.Insert(map[string]models.Value{
		"shape": {Kind: models.KindEnumPayload, Enum: &models.EnumValue{
			Variant:      "Point",
			Discriminant: 1,
		}},
	})
	require.NoError(t, err)

	out, err := tbl.Read(idx)
	require.NoError(t, err)
	require.Equal(t, "Point", out["shape"].Enum.Variant)
	require.EqualValues(t, 1, out["shape"].Enum.Discriminant)
	require.Nil(t, out["shape"].Enum.Fields)
}
