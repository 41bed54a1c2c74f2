package engine_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"typedtables/config"
	"typedtables/engine"
	"typedtables/models"
)

func openTestDB(t *testing.T, dir string) *engine.Database {
	t.Helper()
	cfg := config.Default()
	cfg.DataPath = dir
	cfg.GrowthFactor = 2
	db, err := engine.Open(cfg)
	require.NoError(t, err)
	return db
}

func TestDeclareAndCRUD(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	defer db.Close()

	require.NoError(t, db.DeclareComposite("Person", models.Composite{
		Fields: []models.Field{
			{Name: "name", Type: "string"},
			{Name: "age", Type: "int32"},
		},
	}))

	idx, err := db.Insert("Person", map[string]models.Value{
		"name": {Kind: models.KindString, String: "ada"},
		"age":  {Kind: models.KindPrimitive, Int: 30},
	})
	require.NoError(t, err)

	rec, err := db.Read("Person", idx)
	require.NoError(t, err)
	require.Equal(t, "ada", rec["name"].String)
	require.EqualValues(t, 30, rec["age"].Int)

	require.NoError(t, db.Update("Person", idx, map[string]models.Value{
		"age": {Kind: models.KindPrimitive, Int: 31},
	}))
	rec, err = db.Read("Person", idx)
	require.NoError(t, err)
	require.EqualValues(t, 31, rec["age"].Int)

	require.NoError(t, db.Delete("Person", idx))
	var live []uint32
	require.NoError(t, db.IterIndices("Person", func(i uint32) bool { live = append(live, i); return true }))
	require.Empty(t, live)
}

func TestSecondInstanceIsLocked(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	defer db.Close()

	cfg := config.Default()
	cfg.DataPath = dir
	_, err := engine.Open(cfg)
	require.Error(t, err)
}

func TestScopeReserveAndFillClosesCycle(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	defer db.Close()

	require.NoError(t, db.DeclareForwardStub("Node"))
	require.NoError(t, db.DeclareComposite("Node", models.Composite{
		Fields: []models.Field{
			{Name: "label", Type: "string"},
			{Name: "next", Type: "Node", Default: &models.Value{Kind: models.KindComposite, Null: true}},
		},
	}))

	scope := db.NewScope()
	defer scope.Close()

	aRef, err := scope.Reserve("Node", "a")
	require.NoError(t, err)
	bRef, err := scope.Reserve("Node", "b")
	require.NoError(t, err)

	require.NoError(t, scope.Fill("a", map[string]models.Value{
		"label": {Kind: models.KindString, String: "a"},
		"next":  {Kind: models.KindComposite, Ref: &bRef},
	}))
	require.NoError(t, scope.Fill("b", map[string]models.Value{
		"label": {Kind: models.KindString, String: "b"},
		"next":  {Kind: models.KindComposite, Ref: &aRef},
	}))

	a, err := db.Read("Node", aRef.Index)
	require.NoError(t, err)
	require.Equal(t, "a", a["label"].String)
	require.EqualValues(t, bRef.Index, a["next"].Ref.Index)

	b, err := db.Read("Node", bRef.Index)
	require.NoError(t, err)
	require.EqualValues(t, aRef.Index, b["next"].Ref.Index)
}

func TestTemporaryDatabaseTeardown(t *testing.T) {
	root := t.TempDir()
	dir := engine.NewTemporaryPath(root)

	cfg := config.Default()
	cfg.DataPath = dir
	cfg.Temporary = true
	db, err := engine.Open(cfg)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	require.NoError(t, engine.Teardown())
	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

func TestDeclareDictionaryOpensEntryTable(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	defer db.Close()

	require.NoError(t, db.DeclareDictionary("StrToInt", "string", "int32"))

	idx, err := db.Insert("_dictentry_StrToInt", map[string]models.Value{
		"key":   {Kind: models.KindString, String: "k"},
		"value": {Kind: models.KindPrimitive, Int: 1},
	})
	require.NoError(t, err)
	rec, err := db.Read("_dictentry_StrToInt", idx)
	require.NoError(t, err)
	require.Equal(t, "k", rec["key"].String)
}
