package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"typedtables/config"
	"typedtables/engine"
	"typedtables/models"
)

func seedDatabase(t *testing.T, dir string) {
	t.Helper()
	cfg := config.Default()
	cfg.DataPath = dir
	db, err := engine.Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.DeclareComposite("Widget", models.Composite{
		Fields: []models.Field{{Name: "label", Type: "string"}},
	}))
	_, err = db.Insert("Widget", map[string]models.Value{
		"label": {Kind: models.KindString, String: "first"},
	})
	require.NoError(t, err)
	idx, err := db.Insert("Widget", map[string]models.Value{
		"label": {Kind: models.KindString, String: "second"},
	})
	require.NoError(t, err)
	require.NoError(t, db.Delete("Widget", idx))
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCompactCommandDropsTombstones(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src")
	seedDatabase(t, src)

	dst := filepath.Join(t.TempDir(), "dst")
	_, err := runCmd(t, "compact", "--data", src, "--out", dst)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.DataPath = dst
	db, err := engine.Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	count, err := db.Count("Widget")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestArchiveAndRestoreRoundTrip(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src")
	seedDatabase(t, src)

	bundle := filepath.Join(t.TempDir(), "out.ttar")
	_, err := runCmd(t, "archive", "--data", src, "--bundle", bundle, "--gzip", "false")
	require.NoError(t, err)

	restored := filepath.Join(t.TempDir(), "restored")
	_, err = runCmd(t, "restore", "--bundle", bundle, "--out", restored)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.DataPath = restored
	db, err := engine.Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	count, err := db.Count("Widget")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestInspectCommandReportsCounts(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src")
	seedDatabase(t, src)

	out, err := runCmd(t, "inspect", "--data", src)
	require.NoError(t, err)
	require.Contains(t, out, "Widget")
}
