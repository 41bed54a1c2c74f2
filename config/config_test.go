package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"typedtables/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.Equal(t, "./var/typedtables", cfg.DataPath)
	require.EqualValues(t, 4096, cfg.InitialFileSize)
	require.EqualValues(t, 2, cfg.GrowthFactor)
	require.False(t, cfg.Temporary)
	require.True(t, cfg.ArchiveCompression)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("TTDB_DATA_PATH", "/tmp/tt-data")
	t.Setenv("TTDB_INITIAL_FILE_SIZE", "8192")
	t.Setenv("TTDB_GROWTH_FACTOR", "4")
	t.Setenv("TTDB_TEMP", "true")
	t.Setenv("TTDB_ARCHIVE_GZIP", "false")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "/tmp/tt-data", cfg.DataPath)
	require.EqualValues(t, 8192, cfg.InitialFileSize)
	require.EqualValues(t, 4, cfg.GrowthFactor)
	require.True(t, cfg.Temporary)
	require.False(t, cfg.ArchiveCompression)
}

func TestLoadRejectsInvalidGrowthFactor(t *testing.T) {
	t.Setenv("TTDB_GROWTH_FACTOR", "1")
	_, err := config.Load()
	require.Error(t, err)
}
