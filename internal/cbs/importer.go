package cbs

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SourceName identifies CBS runs in the import log.
const SourceName = "cbs"

// Store is the database side of an import.
type Store interface {
	ExistingIDs(ctx context.Context, provider, year int, ids []int64) (map[int64]bool, error)
	Load(ctx context.Context, data *BatchData) LoadResult
	DeleteFrom(ctx context.Context, start time.Time) (int64, error)
	FillGeometry(ctx context.Context) (int64, error)
	Years(ctx context.Context) ([]int, error)
	RebuildHebrewTables(ctx context.Context, years []int) error
}

// DictionaryStore writes dictionary labels.
type DictionaryStore interface {
	Load(ctx context.Context, dict Dictionary, year, provider int) (int64, error)
}

// RunLog records each batch import.
type RunLog interface {
	Start(ctx context.Context, source, batch string) (uuid.UUID, error)
	Complete(ctx context.Context, id uuid.UUID, rows int64, metadata map[string]any) error
	Fail(ctx context.Context, id uuid.UUID, msg string) error
}

// Options controls an import run.
type Options struct {
	Path          string
	LoadStartYear int
	// DeleteStartDate, when set, deletes CBS rows created on or after it first.
	DeleteStartDate *time.Time
	// SkipPostProcess leaves geometry and the Hebrew tables untouched.
	SkipPostProcess bool
}

// RunResult summarises an import run.
type RunResult struct {
	Batches       int
	Markers       int64
	Involved      int64
	Vehicles      int64
	Duplicates    int
	Deleted       int64
	FailedRows    int
	FailedBatches []string
	Years         []int
}

// Importer runs the CBS pipeline over a directory tree.
type Importer struct {
	store  Store
	dict   DictionaryStore
	runs   RunLog
	cities Cities
}

// NewImporter wires an Importer.
func NewImporter(store Store, dict DictionaryStore, runs RunLog, cities Cities) *Importer {
	return &Importer{store: store, dict: dict, runs: runs, cities: cities}
}

// Run imports every batch under opts.Path. A failing batch is recorded and
// skipped; the run continues with the next one.
func (im *Importer) Run(ctx context.Context, opts Options) (*RunResult, error) {
	log := zap.L().With(zap.String("component", "cbs.importer"))

	batches, err := DiscoverBatches(opts.Path, opts.LoadStartYear)
	if err != nil {
		return nil, err
	}
	log.Info("discovered batches", zap.Int("count", len(batches)), zap.String("path", opts.Path))

	res := &RunResult{}
	if opts.DeleteStartDate != nil {
		n, err := im.store.DeleteFrom(ctx, *opts.DeleteStartDate)
		if err != nil {
			return res, eris.Wrap(err, "cbs: delete before import")
		}
		res.Deleted = n
	}

	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "cbs: import cancelled")
		}
		if err := im.runBatch(ctx, b, res); err != nil {
			log.Error("batch failed", zap.String("batch", b.Key()), zap.Error(err))
			res.FailedBatches = append(res.FailedBatches, b.Key())
			continue
		}
		res.Batches++
	}

	if opts.SkipPostProcess || res.Batches == 0 {
		return res, nil
	}

	if _, err := im.store.FillGeometry(ctx); err != nil {
		return res, err
	}
	years, err := im.store.Years(ctx)
	if err != nil {
		return res, err
	}
	if err := im.store.RebuildHebrewTables(ctx, years); err != nil {
		return res, err
	}
	res.Years = years

	log.Info("cbs import finished",
		zap.Int("batches", res.Batches),
		zap.Int64("markers", res.Markers),
		zap.Int64("involved", res.Involved),
		zap.Int64("vehicles", res.Vehicles),
		zap.Int("duplicates", res.Duplicates),
		zap.Strings("failed_batches", res.FailedBatches),
	)
	return res, nil
}

func (im *Importer) runBatch(ctx context.Context, b Batch, res *RunResult) (err error) {
	runID, err := im.runs.Start(ctx, SourceName, b.Key())
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if failErr := im.runs.Fail(ctx, runID, err.Error()); failErr != nil {
				zap.L().Warn("cbs: record failed run", zap.Error(failErr))
			}
		}
	}()

	data, err := ReadBatch(ctx, b, im.cities)
	if err != nil {
		return err
	}

	byYear := data.IDsByYear()
	existing := make(map[int64]bool)
	for _, year := range slices.Sorted(maps.Keys(byYear)) {
		found, err := im.store.ExistingIDs(ctx, b.ProviderCode, year, byYear[year])
		if err != nil {
			return err
		}
		maps.Copy(existing, found)
	}
	dups := data.DropExisting(existing)

	dictRows, err := im.dict.Load(ctx, data.Dictionary, b.Year, b.ProviderCode)
	if err != nil {
		return err
	}

	loaded := im.store.Load(ctx, data)
	res.Markers += loaded.Markers.Inserted
	res.Involved += loaded.Involved.Inserted
	res.Vehicles += loaded.Vehicles.Inserted
	res.Duplicates += dups
	failedRows := loaded.Markers.FailedRows + loaded.Involved.FailedRows + loaded.Vehicles.FailedRows + loaded.Orphaned
	res.FailedRows += failedRows

	return im.runs.Complete(ctx, runID, loaded.Rows(), map[string]any{
		"provider_code":   b.ProviderCode,
		"year":            b.Year,
		"duplicates":      dups,
		"skipped_rows":    data.Skipped,
		"failed_rows":     failedRows,
		"dictionary_rows": dictRows,
	})
}
