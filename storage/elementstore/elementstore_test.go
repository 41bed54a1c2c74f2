package elementstore_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"typedtables/models"
	"typedtables/storage/elementstore"
)

func TestInsertRunAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "character.bin")
	s, err := elementstore.Open(path, 4, 2, true)
	require.NoError(t, err)
	defer s.Close()

	run, err := s.InsertRun([][]byte{{'h', 0, 0, 0}, {'i', 0, 0, 0}})
	require.NoError(t, err)
	require.EqualValues(t, 0, run.Start)
	require.EqualValues(t, 2, run.Length)

	got, err := s.ReadRun(run)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{'h', 0, 0, 0}, {'i', 0, 0, 0}}, got)
}

func TestEmptyRunConsumesNoSpace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "character.bin")
	s, err := elementstore.Open(path, 4, 2, true)
	require.NoError(t, err)
	defer s.Close()

	run, err := s.InsertRun(nil)
	require.NoError(t, err)
	require.Equal(t, models.Run{}, run)
	require.EqualValues(t, 0, s.Count())
}

func TestRegistrySharesStorePerElementType(t *testing.T) {
	dir := t.TempDir()
	r := elementstore.NewRegistry(dir, 2)
	defer r.CloseAll()

	s1, err := r.StoreFor("character", 4)
	require.NoError(t, err)
	s2, err := r.StoreFor("character", 4)
	require.NoError(t, err)
	require.Same(t, s1, s2)
}
