package cbs

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/data-for-change/anyway-sub000/internal/db"
)

// Tables written by the loader.
const (
	TableMarkers  = "markers"
	TableInvolved = "involved"
	TableVehicles = "vehicles"
)

// hebrewTables are rebuilt from their views after an import, in this order.
var hebrewTables = []struct {
	table string
	view  string
}{
	{"markers_hebrew", "markers_view"},
	{"involved_hebrew", "involved_view"},
	{"vehicles_hebrew", "vehicles_view"},
	{"involved_markers_hebrew", "involved_markers_view"},
	{"vehicles_markers_hebrew", "vehicles_markers_view"},
}

// LoadResult counts what a batch load wrote.
type LoadResult struct {
	Markers  db.ChunkReport
	Involved db.ChunkReport
	Vehicles db.ChunkReport
	// Orphaned counts involved and vehicle rows not written because their
	// accident's chunk was rejected.
	Orphaned int
}

// Rows is the total number of rows inserted.
func (r LoadResult) Rows() int64 {
	return r.Markers.Inserted + r.Involved.Inserted + r.Vehicles.Inserted
}

// Failed reports whether any chunk was rejected.
func (r LoadResult) Failed() bool {
	return r.Markers.Failed() || r.Involved.Failed() || r.Vehicles.Failed()
}

// Loader writes CBS batches to Postgres.
type Loader struct {
	pool      db.Pool
	batchSize int
}

// NewLoader creates a Loader inserting in chunks of batchSize rows.
func NewLoader(pool db.Pool, batchSize int) *Loader {
	return &Loader{pool: pool, batchSize: batchSize}
}

// ExistingIDs returns which of ids are already stored for provider and year.
func (l *Loader) ExistingIDs(ctx context.Context, provider, year int, ids []int64) (map[int64]bool, error) {
	existing := make(map[int64]bool)
	if len(ids) == 0 {
		return existing, nil
	}
	rows, err := l.pool.Query(ctx,
		`SELECT id FROM markers
		 WHERE provider_code = $1 AND accident_year = $2 AND id = ANY($3)`,
		provider, year, ids,
	)
	if err != nil {
		return nil, eris.Wrap(err, "cbs: query existing markers")
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "cbs: scan existing marker")
		}
		existing[id] = true
	}
	return existing, rows.Err()
}

// Load inserts the batch's markers, then its involved and vehicles. Rows of
// accidents in a rejected marker chunk are left out.
func (l *Loader) Load(ctx context.Context, data *BatchData) LoadResult {
	var res LoadResult

	markerRows := make([][]any, len(data.Markers))
	for i, m := range data.Markers {
		markerRows[i] = m.Row()
	}
	res.Markers = db.InsertChunks(ctx, l.pool, TableMarkers, MarkerColumns, markerRows, l.batchSize)

	missing := make(map[int64]bool)
	if res.Markers.Failed() {
		chunks := db.Chunks(data.Markers, l.batchSize)
		for _, i := range res.Markers.FailedChunks {
			for _, m := range chunks[i] {
				missing[m.ID] = true
			}
		}
	}

	involvedRows := make([][]any, 0, len(data.Involved))
	for _, v := range data.Involved {
		if missing[v.AccidentID] {
			res.Orphaned++
			continue
		}
		involvedRows = append(involvedRows, v.Row())
	}
	res.Involved = db.InsertChunks(ctx, l.pool, TableInvolved, InvolvedColumns, involvedRows, l.batchSize)

	vehicleRows := make([][]any, 0, len(data.Vehicles))
	for _, v := range data.Vehicles {
		if missing[v.AccidentID] {
			res.Orphaned++
			continue
		}
		vehicleRows = append(vehicleRows, v.Row())
	}
	res.Vehicles = db.InsertChunks(ctx, l.pool, TableVehicles, VehicleColumns, vehicleRows, l.batchSize)

	if res.Orphaned > 0 {
		zap.L().Warn("skipped rows of rejected accidents",
			zap.String("component", "cbs.loader"), zap.Int("rows", res.Orphaned))
	}
	return res
}

// DeleteFrom deletes CBS rows created on or after start: involved and
// vehicles first, then markers, batchSize accidents at a time. Returns the
// number of markers deleted.
func (l *Loader) DeleteFrom(ctx context.Context, start time.Time) (int64, error) {
	log := zap.L().With(zap.String("component", "cbs.loader"), zap.Time("start", start))

	rows, err := l.pool.Query(ctx,
		`SELECT provider_and_id FROM markers
		 WHERE provider_code = ANY($1) AND created >= $2`,
		CBSProviders, start,
	)
	if err != nil {
		return 0, eris.Wrap(err, "cbs: query markers to delete")
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, eris.Wrap(err, "cbs: scan marker to delete")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, eris.Wrap(err, "cbs: query markers to delete")
	}

	var deleted int64
	for i, chunk := range db.Chunks(ids, l.batchSize) {
		for _, table := range []string{TableInvolved, TableVehicles} {
			if _, err := l.pool.Exec(ctx,
				fmt.Sprintf("DELETE FROM %s WHERE provider_and_id = ANY($1)", table), chunk,
			); err != nil {
				return deleted, eris.Wrapf(err, "cbs: delete %s chunk %d", table, i)
			}
		}
		tag, err := l.pool.Exec(ctx, "DELETE FROM markers WHERE provider_and_id = ANY($1)", chunk)
		if err != nil {
			return deleted, eris.Wrapf(err, "cbs: delete markers chunk %d", i)
		}
		deleted += tag.RowsAffected()
	}

	log.Info("deleted cbs rows", zap.Int64("markers", deleted))
	return deleted, nil
}

// FillGeometry sets the point geometry of markers that have coordinates but
// no geom.
func (l *Loader) FillGeometry(ctx context.Context) (int64, error) {
	tag, err := l.pool.Exec(ctx,
		`UPDATE markers SET geom = ST_SetSRID(ST_MakePoint(longitude, latitude), 4326)
		 WHERE geom IS NULL AND latitude IS NOT NULL AND longitude IS NOT NULL`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "cbs: fill geometry")
	}
	return tag.RowsAffected(), nil
}

// Years returns the accident years stored for the CBS providers.
func (l *Loader) Years(ctx context.Context) ([]int, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT DISTINCT accident_year FROM markers
		 WHERE provider_code = ANY($1) ORDER BY accident_year`,
		CBSProviders,
	)
	if err != nil {
		return nil, eris.Wrap(err, "cbs: query years")
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, eris.Wrap(err, "cbs: scan year")
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// RebuildHebrewTables empties the *_hebrew tables and refills them from
// their views one year at a time, in a single transaction.
func (l *Loader) RebuildHebrewTables(ctx context.Context, years []int) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "cbs: rebuild hebrew tables: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, h := range hebrewTables {
		if _, err := tx.Exec(ctx, "TRUNCATE "+h.table); err != nil {
			return eris.Wrapf(err, "cbs: truncate %s", h.table)
		}
	}

	for _, year := range years {
		for _, h := range hebrewTables {
			if _, err := tx.Exec(ctx,
				fmt.Sprintf("INSERT INTO %s SELECT * FROM %s WHERE accident_year = $1", h.table, h.view), year,
			); err != nil {
				return eris.Wrapf(err, "cbs: refill %s for %d", h.table, year)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "cbs: rebuild hebrew tables: commit")
	}
	zap.L().Info("hebrew tables rebuilt", zap.String("component", "cbs.loader"), zap.Ints("years", years))
	return nil
}
