package cluster

import (
	"context"
	"runtime"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/data-for-change/anyway-sub000/internal/markers"
)

// Source returns the markers inside a query's bounding box.
type Source interface {
	BoundingBox(ctx context.Context, q markers.Query) ([]markers.Marker, error)
}

// Options tunes Retrieve.
type Options struct {
	Zoom     int
	RadiusPx int
	// Workers is the number of latitude bands processed concurrently.
	// Zero uses the CPU count.
	Workers int
}

// Retrieve splits q's bounding box into latitude bands, fetches and
// clusters each band concurrently and returns the clusters in band order,
// top band first. A marker on a band edge belongs to the upper band.
func Retrieve(ctx context.Context, src Source, q markers.Query, opts Options) ([]Cluster, error) {
	if !q.BBox.Valid() {
		return nil, eris.New("cluster: invalid bounding box")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	boxes := DivideToBoxes(q.BBox, workers)
	results := make([][]Cluster, len(boxes))

	g, gctx := errgroup.WithContext(ctx)
	for i, box := range boxes {
		g.Go(func() error {
			bq := q
			bq.BBox = box
			ms, err := src.BoundingBox(gctx, bq)
			if err != nil {
				return eris.Wrapf(err, "cluster: fetch band %d", i)
			}
			owned := ms[:0:0]
			for _, m := range ms {
				if m.Latitude < box.NELat || i == 0 {
					owned = append(owned, m)
				}
			}
			results[i] = Calculate(owned, opts.Zoom, opts.RadiusPx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Cluster
	total := 0
	for _, cs := range results {
		out = append(out, cs...)
		for _, c := range cs {
			total += c.Size
		}
	}
	zap.L().Debug("clusters calculated",
		zap.Int("bands", len(boxes)),
		zap.Int("zoom", opts.Zoom),
		zap.Int("markers", total),
		zap.Int("clusters", len(out)),
	)
	return out, nil
}
