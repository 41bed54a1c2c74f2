package archive_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"typedtables/archive"
	"typedtables/models"
	"typedtables/schema"
	"typedtables/storage/catalog"
	"typedtables/storage/elementstore"
	"typedtables/storage/resolver"
)

func buildDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	reg := schema.NewRegistry()
	require.NoError(t, reg.Register("Note", schema.KindComposite, models.Composite{
		Name:   "Note",
		Fields: []models.Field{{Name: "body", Type: "string"}},
	}))

	elems := elementstore.NewRegistry(dir, 2)
	res := resolver.New(reg, elems)
	tbl, err := catalog.Open(filepath.Join(dir, "Note.bin"), "Note", reg, res, 2, true)
	require.NoError(t, err)

	_, err = tbl.Insert(map[string]models.Value{"body": {Kind: models.KindString, String: "hello archive"}})
	require.NoError(t, err)

	require.NoError(t, reg.Save(filepath.Join(dir, schema.MetadataFile)))
	require.NoError(t, tbl.Close())
	require.NoError(t, elems.CloseAll())
	return dir
}

func TestArchiveAndRestoreRoundTrip(t *testing.T) {
	srcDir := buildDataDir(t)
	root := t.TempDir()
	bundlePath := filepath.Join(root, "bundle.ttar")

	require.NoError(t, archive.Archive(srcDir, bundlePath, 2, false))

	restoredDir := filepath.Join(root, "restored")
	require.NoError(t, archive.Restore(bundlePath, restoredDir))

	reg, err := schema.Load(filepath.Join(restoredDir, schema.MetadataFile))
	require.NoError(t, err)
	elems := elementstore.NewRegistry(restoredDir, 2)
	res := resolver.New(reg, elems)
	tbl, err := catalog.Open(filepath.Join(restoredDir, "Note.bin"), "Note", reg, res, 2, false)
	require.NoError(t, err)

	require.EqualValues(t, 1, tbl.Count())
	rec, err := tbl.Read(0)
	require.NoError(t, err)
	require.Equal(t, "hello archive", rec["body"].String)
}

func TestArchiveAndRestoreGzipRoundTrip(t *testing.T) {
	srcDir := buildDataDir(t)
	root := t.TempDir()
	bundlePath := filepath.Join(root, "bundle.ttar.gz")

	require.NoError(t, archive.Archive(srcDir, bundlePath, 2, true))

	restoredDir := filepath.Join(root, "restored")
	require.NoError(t, archive.Restore(bundlePath, restoredDir))

	reg, err := schema.Load(filepath.Join(restoredDir, schema.MetadataFile))
	require.NoError(t, err)
	elems := elementstore.NewRegistry(restoredDir, 2)
	res := resolver.New(reg, elems)
	tbl, err := catalog.Open(filepath.Join(restoredDir, "Note.bin"), "Note", reg, res, 2, false)
	require.NoError(t, err)

	require.EqualValues(t, 1, tbl.Count())
	rec, err := tbl.Read(0)
	require.NoError(t, err)
	require.Equal(t, "hello archive", rec["body"].String)
}

func TestRestoreRejectsExistingDestination(t *testing.T) {
	srcDir := buildDataDir(t)
	root := t.TempDir()
	bundlePath := filepath.Join(root, "bundle.ttar")
	require.NoError(t, archive.Archive(srcDir, bundlePath, 2, false))

	err := archive.Restore(bundlePath, srcDir)
	require.Error(t, err)
}
