package cbs

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/data-for-change/anyway-sub000/internal/fetcher"
)

// BatchData is a parsed and transformed batch.
type BatchData struct {
	Batch      Batch
	Markers    []Marker
	Involved   []Involved
	Vehicles   []Vehicle
	Dictionary Dictionary
	// Skipped counts rows dropped during transformation.
	Skipped int
}

var csvOptions = fetcher.CSVOptions{Charset: fetcher.CharsetWindows1255, UpperHeader: true, TrimSpace: true}

// ReadBatch locates and parses every file of b concurrently, then transforms
// the rows. A row that fails to transform is logged and skipped; a missing or
// ambiguous required file fails the batch.
func ReadBatch(ctx context.Context, b Batch, cities Cities) (*BatchData, error) {
	log := zap.L().With(zap.String("component", "cbs.batch"), zap.String("batch", b.Name))

	kinds := append([]FileKind{}, RequiredFiles...)
	kinds = append(kinds, FileUrbanJunctions)

	tables := make([]*fetcher.Table, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return eris.Wrap(err, "cbs: read batch")
			}
			path, err := FindFile(b.Dir, kind)
			if err != nil {
				if kind == FileUrbanJunctions && eris.Is(err, ErrFileNotFound) {
					return nil
				}
				return err
			}
			t, err := fetcher.ReadCSV(path, csvOptions)
			if err != nil {
				return eris.Wrapf(err, "cbs: parse %s", kind)
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byKind := make(map[FileKind]*fetcher.Table, len(kinds))
	for i, kind := range kinds {
		byKind[kind] = tables[i]
	}

	lk := Lookups{
		Streets:        NewStreets(byKind[FileStreets]),
		Roads:          NewRoads(byKind[FileNonUrbanJunctions]),
		UrbanJunctions: NewUrbanJunctions(byKind[FileUrbanJunctions]),
		Dictionary:     NewDictionary(byKind[FileDictionary]),
		Cities:         cities,
	}

	data := &BatchData{Batch: b, Dictionary: lk.Dictionary}

	acc := byKind[FileAccidents]
	data.Markers = make([]Marker, 0, len(acc.Rows))
	for _, row := range acc.Rows {
		m, err := TransformMarker(acc, row, b.ProviderCode, b.Year, lk)
		if err != nil {
			log.Warn("skipping accident row", zap.Error(err))
			data.Skipped++
			continue
		}
		data.Markers = append(data.Markers, m)
	}

	inv := byKind[FileInvolved]
	for _, row := range inv.Rows {
		v, ok, err := TransformInvolved(inv, row, b.ProviderCode, b.Year)
		if err != nil || !ok {
			data.Skipped++
			continue
		}
		data.Involved = append(data.Involved, v)
	}

	veh := byKind[FileVehicles]
	for _, row := range veh.Rows {
		v, ok, err := TransformVehicle(veh, row, b.ProviderCode, b.Year)
		if err != nil || !ok {
			data.Skipped++
			continue
		}
		data.Vehicles = append(data.Vehicles, v)
	}

	var dups, orphans int
	data.Markers, dups = dedupeMarkers(data.Markers)
	if dups > 0 {
		log.Warn("duplicate accident ids in batch", zap.Int("dropped", dups))
	}
	data.Involved, data.Vehicles, orphans = linkChildren(data.Markers, data.Involved, data.Vehicles)
	if orphans > 0 {
		log.Warn("dropping rows of unknown accidents", zap.Int("rows", orphans))
	}
	data.Skipped += dups + orphans

	log.Info("batch parsed",
		zap.Int("markers", len(data.Markers)),
		zap.Int("involved", len(data.Involved)),
		zap.Int("vehicles", len(data.Vehicles)),
		zap.Int("skipped", data.Skipped),
	)
	return data, nil
}

// DropExisting removes markers whose ids are in existing, with their involved
// and vehicle rows. Returns the number of markers dropped.
func (d *BatchData) DropExisting(existing map[int64]bool) int {
	if len(existing) == 0 {
		return 0
	}
	markers := d.Markers[:0]
	for _, m := range d.Markers {
		if !existing[m.ID] {
			markers = append(markers, m)
		}
	}
	dropped := len(d.Markers) - len(markers)
	d.Markers = markers

	involved := d.Involved[:0]
	for _, v := range d.Involved {
		if !existing[v.AccidentID] {
			involved = append(involved, v)
		}
	}
	d.Involved = involved

	vehicles := d.Vehicles[:0]
	for _, v := range d.Vehicles {
		if !existing[v.AccidentID] {
			vehicles = append(vehicles, v)
		}
	}
	d.Vehicles = vehicles

	return dropped
}

// IDsByYear groups the batch's marker ids by accident year.
func (d *BatchData) IDsByYear() map[int][]int64 {
	out := make(map[int][]int64)
	for _, m := range d.Markers {
		out[m.Year] = append(out[m.Year], m.ID)
	}
	return out
}

// MarkerIDs returns the accident ids of the batch's markers.
func (d *BatchData) MarkerIDs() []int64 {
	ids := make([]int64, len(d.Markers))
	for i, m := range d.Markers {
		ids[i] = m.ID
	}
	return ids
}
