package data

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mchmarny/chimera/pkg/model"
	"github.com/mchmarny/chimera/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	err := Init(dbPath)
	require.NoError(t, err)
	db, err := GetDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInit_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "nested", "test.db")
	err := Init(dbPath)
	require.NoError(t, err)
	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestInit_EmptyPath(t *testing.T) {
	err := Init("")
	assert.Error(t, err)
}

func TestInit_RecordsSchemaVersion(t *testing.T) {
	db := setupTestDB(t)

	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	assert.NoError(t, err)
	assert.Equal(t, schemaVersion, version)
}

func TestInit_Idempotent(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	require.NoError(t, Init(dbPath))
	assert.NoError(t, Init(dbPath))
}

func TestSaveAndGetSamples(t *testing.T) {
	db := setupTestDB(t)
	list := model.GenerateSynthetic(1200, 7)

	require.NoError(t, SaveSamples(db, "synthetic-7", list))

	n, err := CountSamples(db, "synthetic-7")
	require.NoError(t, err)
	assert.Equal(t, len(list), n)

	got, err := GetSamples(db, "synthetic-7")
	require.NoError(t, err)
	assert.Equal(t, list, got)
}

func TestSaveSamples_ReplacesBatch(t *testing.T) {
	db := setupTestDB(t)
	first := []model.Sample{
		{Input: score.Input{Pitch: 1, Identity: 2, Momentum: 3}},
		{Input: score.Input{Pitch: 9, Identity: 8, Momentum: 7}, Funded: true},
	}
	second := first[:1]

	require.NoError(t, SaveSamples(db, "b", first))
	require.NoError(t, SaveSamples(db, "other", first))
	require.NoError(t, SaveSamples(db, "b", second))

	got, err := GetSamples(db, "b")
	require.NoError(t, err)
	assert.Equal(t, second, got)

	n, err := CountSamples(db, "other")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGetSamples_UnknownBatch(t *testing.T) {
	db := setupTestDB(t)
	got, err := GetSamples(db, "nope")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSaveSamples_EmptyBatch(t *testing.T) {
	db := setupTestDB(t)
	assert.Error(t, SaveSamples(db, "", nil))
}

func TestSaveAndListRuns(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := range 3 {
		r := &TrainingRun{
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			Batch:     "synthetic-42",
			Samples:   2000,
			Seed:      42,
			Params:    model.DefaultParams(),
			AUC:       0.9 + float64(i)/100,
			CVMean:    0.88,
			CVStd:     0.01,
			ModelPath: "model/predictor.json",
		}
		require.NoError(t, SaveRun(db, r))
		assert.NotEmpty(t, r.ID)
	}

	list, err := ListRuns(db, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, base.Add(2*time.Hour), list[0].CreatedAt)
	assert.Equal(t, base.Add(time.Hour), list[1].CreatedAt)
	assert.Equal(t, model.DefaultParams(), list[0].Params)
	assert.Equal(t, uint64(42), list[0].Seed)

	got, err := GetRun(db, list[1].ID)
	require.NoError(t, err)
	assert.Equal(t, list[1], got)
}

func TestGetRun_NotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := GetRun(db, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSaveRun_Nil(t *testing.T) {
	db := setupTestDB(t)
	assert.Error(t, SaveRun(db, nil))
}

func TestNilDB(t *testing.T) {
	assert.ErrorIs(t, SaveSamples(nil, "b", nil), errDBNotInitialized)
	_, err := GetSamples(nil, "b")
	assert.ErrorIs(t, err, errDBNotInitialized)
	_, err = CountSamples(nil, "b")
	assert.ErrorIs(t, err, errDBNotInitialized)
	assert.ErrorIs(t, SaveRun(nil, &TrainingRun{}), errDBNotInitialized)
	_, err = ListRuns(nil, 1)
	assert.ErrorIs(t, err, errDBNotInitialized)
	_, err = GetRun(nil, "x")
	assert.ErrorIs(t, err, errDBNotInitialized)
}
