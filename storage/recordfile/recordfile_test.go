package recordfile_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"typedtables/storage/recordfile"
)

func TestCreateAppendRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bin")

	rf, err := recordfile.Create(path, 8, 2)
	require.NoError(t, err)
	defer rf.Close()

	require.EqualValues(t, 0, rf.Count())

	idx, err := rf.Append([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	require.EqualValues(t, 0, idx)
	require.EqualValues(t, 1, rf.Count())

	got, err := rf.Read(0)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, got)
}

func TestAppendGrowsCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bin")
	rf, err := recordfile.Create(path, 8, 2)
	require.NoError(t, err)
	defer rf.Close()

	initial := rf.Capacity()
	var last uint64
	for i := uint64(0); i < initial+1; i++ {
		last, err = rf.Append([]byte{0, 0, 0, 0, 0, 0, 0, byte(i)})
		require.NoError(t, err)
	}
	require.Equal(t, initial, last)
	require.Greater(t, rf.Capacity(), initial)
}

func TestTombstone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bin")
	rf, err := recordfile.Create(path, 4, 2)
	require.NoError(t, err)
	defer rf.Close()

	idx, err := rf.Append([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.False(t, rf.IsTombstoned(idx))

	require.NoError(t, rf.Tombstone(idx))
	require.True(t, rf.IsTombstoned(idx))
	require.EqualValues(t, 1, rf.Count())
}

func TestIterLiveSkipsTombstones(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bin")
	rf, err := recordfile.Create(path, 4, 2)
	require.NoError(t, err)
	defer rf.Close()

	for i := 0; i < 3; i++ {
		_, err := rf.Append([]byte{byte(i), 0, 0, 0})
		require.NoError(t, err)
	}
	require.NoError(t, rf.Tombstone(1))

	var seen []uint64
	rf.IterLive(func(r recordfile.LiveRecord) bool {
		seen = append(seen, r.Index)
		return true
	})
	require.Equal(t, []uint64{0, 2}, seen)
}

func TestOpenValidatesCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bin")
	rf, err := recordfile.Create(path, 8, 2)
	require.NoError(t, err)
	_, err = rf.Append([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	require.NoError(t, rf.Close())

	reopened, err := recordfile.Open(path, 8, 2)
	require.NoError(t, err)
	defer reopened.Close()
	require.EqualValues(t, 1, reopened.Count())
}
