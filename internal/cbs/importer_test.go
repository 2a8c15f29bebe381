package cbs

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/data-for-change/anyway-sub000/internal/db"
)

type fakeStore struct {
	mu           sync.Mutex
	existing     map[int64]bool
	queriedYears []int
	loaded       []*BatchData
	deletedAt    *time.Time
	geomCalls    int
	years        []int
	rebuilt      []int
}

func (s *fakeStore) ExistingIDs(_ context.Context, _, year int, ids []int64) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queriedYears = append(s.queriedYears, year)
	found := make(map[int64]bool)
	for _, id := range ids {
		if s.existing[id] {
			found[id] = true
		}
	}
	return found, nil
}

func (s *fakeStore) Load(_ context.Context, data *BatchData) LoadResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = append(s.loaded, data)
	return LoadResult{
		Markers:  db.ChunkReport{Inserted: int64(len(data.Markers))},
		Involved: db.ChunkReport{Inserted: int64(len(data.Involved))},
		Vehicles: db.ChunkReport{Inserted: int64(len(data.Vehicles)), FailedRows: 1, FailedChunks: []int{1}},
	}
}

func (s *fakeStore) DeleteFrom(_ context.Context, start time.Time) (int64, error) {
	s.deletedAt = &start
	return 5, nil
}

func (s *fakeStore) FillGeometry(context.Context) (int64, error) {
	s.geomCalls++
	return 1, nil
}

func (s *fakeStore) Years(context.Context) ([]int, error) {
	return s.years, nil
}

func (s *fakeStore) RebuildHebrewTables(_ context.Context, years []int) error {
	s.rebuilt = years
	return nil
}

type fakeDict struct {
	calls []int
}

func (d *fakeDict) Load(_ context.Context, dict Dictionary, year, _ int) (int64, error) {
	d.calls = append(d.calls, year)
	return int64(len(dict)), nil
}

type fakeRuns struct {
	started   []string
	completed map[uuid.UUID]map[string]any
	failed    map[uuid.UUID]string
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{completed: map[uuid.UUID]map[string]any{}, failed: map[uuid.UUID]string{}}
}

func (r *fakeRuns) Start(_ context.Context, _, batch string) (uuid.UUID, error) {
	r.started = append(r.started, batch)
	return uuid.New(), nil
}

func (r *fakeRuns) Complete(_ context.Context, id uuid.UUID, _ int64, metadata map[string]any) error {
	r.completed[id] = metadata
	return nil
}

func (r *fakeRuns) Fail(_ context.Context, id uuid.UUID, msg string) error {
	r.failed[id] = msg
	return nil
}

func TestImporter_Run(t *testing.T) {
	root := t.TempDir()
	writeBatch(t, filepath.Join(root, "accidents_type_1", "H20201041"), "H20201041", "1")
	writeCP1255(t, filepath.Join(root, "accidents_type_3", "H20203041"), "H20203041AccData.csv", accHeader)
	writeBatch(t, filepath.Join(root, "accidents_type_1", "H20041041"), "H20041041", "1")

	store := &fakeStore{existing: map[int64]bool{2020000002: true}, years: []int{2020}}
	dict := &fakeDict{}
	runs := newFakeRuns()
	deleteFrom := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	im := NewImporter(store, dict, runs, Cities{5000: "תל אביב -יפו"})
	res, err := im.Run(context.Background(), Options{Path: root, LoadStartYear: 2005, DeleteStartDate: &deleteFrom})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Batches)
	assert.Equal(t, []string{"accidents_type_3/H20203041"}, res.FailedBatches)
	assert.Equal(t, int64(1), res.Markers)
	assert.Equal(t, int64(2), res.Involved)
	assert.Equal(t, int64(1), res.Vehicles, "the duplicate's vehicle is dropped too")
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 1, res.FailedRows)
	assert.Equal(t, int64(5), res.Deleted)
	assert.Equal(t, []int{2020}, res.Years)

	require.NotNil(t, store.deletedAt)
	assert.Equal(t, deleteFrom, *store.deletedAt)
	assert.Equal(t, 1, store.geomCalls)
	assert.Equal(t, []int{2020}, store.rebuilt)
	assert.Equal(t, []int{2020}, dict.calls)

	assert.Equal(t, []string{"accidents_type_1/H20201041", "accidents_type_3/H20203041"}, runs.started)
	require.Len(t, runs.completed, 1)
	require.Len(t, runs.failed, 1)
	for _, md := range runs.completed {
		assert.Equal(t, 1, md["duplicates"])
		assert.Equal(t, 2, md["skipped_rows"])
		assert.Equal(t, 1, md["failed_rows"])
	}
	for _, msg := range runs.failed {
		assert.Contains(t, msg, "file not found")
	}
}

func TestImporter_RunDedupByAccidentYear(t *testing.T) {
	root := t.TempDir()
	// Accidents dated 2020 delivered in a 2019 batch directory.
	writeBatch(t, filepath.Join(root, "accidents_type_1", "H20191041"), "H20191041", "1")

	store := &fakeStore{existing: map[int64]bool{2020000001: true}}
	im := NewImporter(store, &fakeDict{}, newFakeRuns(), nil)
	res, err := im.Run(context.Background(), Options{Path: root, LoadStartYear: 2005, SkipPostProcess: true})
	require.NoError(t, err)

	assert.Equal(t, []int{2020}, store.queriedYears)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, int64(1), res.Markers)
	require.Len(t, store.loaded, 1)
	require.Len(t, store.loaded[0].Vehicles, 1)
	assert.Equal(t, int64(2020000002), store.loaded[0].Vehicles[0].AccidentID)
	assert.Equal(t, 2020, store.loaded[0].Vehicles[0].AccidentYear)
}

func TestImporter_RunSkipPostProcess(t *testing.T) {
	root := t.TempDir()
	writeBatch(t, filepath.Join(root, "accidents_type_1", "H20201041"), "H20201041", "1")

	store := &fakeStore{}
	im := NewImporter(store, &fakeDict{}, newFakeRuns(), nil)
	res, err := im.Run(context.Background(), Options{Path: root, LoadStartYear: 2005, SkipPostProcess: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Batches)
	assert.Equal(t, int64(2), res.Markers)
	assert.Nil(t, store.deletedAt)
	assert.Zero(t, store.geomCalls)
	assert.Nil(t, store.rebuilt)
}

func TestImporter_RunNoBatches(t *testing.T) {
	store := &fakeStore{}
	res, err := NewImporter(store, &fakeDict{}, newFakeRuns(), nil).
		Run(context.Background(), Options{Path: t.TempDir(), LoadStartYear: 2005})
	require.NoError(t, err)
	assert.Zero(t, res.Batches)
	assert.Zero(t, store.geomCalls)
}

func TestImporter_RunMissingPath(t *testing.T) {
	_, err := NewImporter(&fakeStore{}, &fakeDict{}, newFakeRuns(), nil).
		Run(context.Background(), Options{Path: filepath.Join(t.TempDir(), "nope")})
	require.Error(t, err)
}
