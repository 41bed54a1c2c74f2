package compact_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"typedtables/compact"
	"typedtables/models"
	"typedtables/schema"
	"typedtables/storage/catalog"
	"typedtables/storage/elementstore"
	"typedtables/storage/resolver"
)

func TestCompactRenumbersAndRewritesReferences(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := filepath.Join(t.TempDir(), "compacted")

	reg := schema.NewRegistry()
	require.NoError(t, reg.Register("Tag", schema.KindComposite, models.Composite{
		Name:   "Tag",
		Fields: []models.Field{{Name: "name", Type: "string"}},
	}))
	require.NoError(t, reg.Register("Item", schema.KindComposite, models.Composite{
		Name: "Item",
		Fields: []models.Field{
			{Name: "tag", Type: "Tag"},
			{Name: "n", Type: "int32"},
		},
	}))

	elems := elementstore.NewRegistry(srcDir, 2)
	res := resolver.New(reg, elems)

	tagTable, err := catalog.Open(filepath.Join(srcDir, "Tag.bin"), "Tag", reg, res, 2, true)
	require.NoError(t, err)
	itemTable, err := catalog.Open(filepath.Join(srcDir, "Item.bin"), "Item", reg, res, 2, true)
	require.NoError(t, err)

	redIdx, err := tagTable.Insert(map[string]models.Value{"name": {Kind: models.KindString, String: "red"}})
	require.NoError(t, err)
	blueIdx, err := tagTable.Insert(map[string]models.Value{"name": {Kind: models.KindString, String: "blue"}})
	require.NoError(t, err)

	item0, err := itemTable.Insert(map[string]models.Value{
		"tag": {Kind: models.KindComposite, Ref: &models.Ref{Index: blueIdx}},
		"n":   {Kind: models.KindPrimitive, Int: 1},
	})
	require.NoError(t, err)
	_, err = itemTable.Insert(map[string]models.Value{
		"tag": {Kind: models.KindComposite, Ref: &models.Ref{Index: redIdx}},
		"n":   {Kind: models.KindPrimitive, Int: 2},
	})
	require.NoError(t, err)
	_, err = itemTable.Insert(map[string]models.Value{
		"tag": {Kind: models.KindComposite, Ref: &models.Ref{Index: blueIdx}},
		"n":   {Kind: models.KindPrimitive, Int: 3},
	})
	require.NoError(t, err)

	require.NoError(t, tagTable.Delete(redIdx))
	require.NoError(t, itemTable.Delete(item0))

	require.NoError(t, reg.Save(filepath.Join(srcDir, schema.MetadataFile)))
	require.NoError(t, tagTable.Close())
	require.NoError(t, itemTable.Close())
	require.NoError(t, elems.CloseAll())

	report, err := compact.New(srcDir, dstDir, 2).Run()
	require.NoError(t, err)
	require.NotEmpty(t, report.Tables)

	dstReg, err := schema.Load(filepath.Join(dstDir, schema.MetadataFile))
	require.NoError(t, err)
	dstElems := elementstore.NewRegistry(dstDir, 2)
	dstRes := resolver.New(dstReg, dstElems)

	dstTag, err := catalog.Open(filepath.Join(dstDir, "Tag.bin"), "Tag", dstReg, dstRes, 2, false)
	require.NoError(t, err)
	dstItem, err := catalog.Open(filepath.Join(dstDir, "Item.bin"), "Item", dstReg, dstRes, 2, false)
	require.NoError(t, err)

	require.EqualValues(t, 1, dstTag.Count())
	tagRecord, err := dstTag.Read(0)
	require.NoError(t, err)
	require.Equal(t, "blue", tagRecord["name"].String)

	require.EqualValues(t, 2, dstItem.Count())

	rec0, err := dstItem.Read(0) // was item1, referenced the now-tombstoned red tag
	require.NoError(t, err)
	require.True(t, rec0["tag"].Null)
	require.EqualValues(t, 2, rec0["n"].Int)

	rec1, err := dstItem.Read(1) // was item2, referenced blue, now remapped to index 0
	require.NoError(t, err)
	require.False(t, rec1["tag"].Null)
	require.EqualValues(t, 0, rec1["tag"].Ref.Index)
	require.EqualValues(t, 3, rec1["n"].Int)
}
