package location

import (
	"math"

	geohash "github.com/TomiHiltunen/geohash-golang"

	"github.com/data-for-change/anyway-sub000/internal/geo"
	"github.com/data-for-change/anyway-sub000/internal/markers"
)

// DefaultPrecision is the geohash length of index cells, about 1.2 km by
// 0.6 km.
const DefaultPrecision = 6

// maxRings bounds how far the search widens past the 3x3 block.
const maxRings = 16

// Index buckets markers by geohash cell for nearest-neighbour search.
type Index struct {
	precision int
	cellLat   float64
	cellLng   float64
	cells     map[string][]markers.Marker
	size      int
}

// NewIndex buckets ms at the given precision (1..12, else DefaultPrecision).
// Markers without a valid location are left out.
func NewIndex(ms []markers.Marker, precision int) *Index {
	if precision < 1 || precision > 12 {
		precision = DefaultPrecision
	}
	bits := 5 * precision
	idx := &Index{
		precision: precision,
		cellLat:   180 / math.Pow(2, float64(bits/2)),
		cellLng:   360 / math.Pow(2, float64((bits+1)/2)),
		cells:     make(map[string][]markers.Marker),
	}
	for _, m := range ms {
		if !m.Point().Valid() || (m.Latitude == 0 && m.Longitude == 0) {
			continue
		}
		h := geohash.EncodeWithPrecision(m.Latitude, m.Longitude, precision)
		idx.cells[h] = append(idx.cells[h], m)
		idx.size++
	}
	return idx
}

// Len is the number of indexed markers.
func (idx *Index) Len() int { return idx.size }

// Precision is the geohash length of the cells.
func (idx *Index) Precision() int { return idx.precision }

// Nearest returns the marker nearest to p within maxMeters that passes
// filter (nil accepts all). It searches p's cell and its eight neighbours
// first, widening ring by ring only while nothing is found and the ring is
// still within maxMeters. Equal distances resolve to the lower marker id.
func (idx *Index) Nearest(p geo.Point, maxMeters float64, filter func(markers.Marker) bool) (markers.Marker, float64, bool) {
	if idx.size == 0 {
		return markers.Marker{}, 0, false
	}

	cellMeters := math.Min(
		idx.cellLat*geo.EarthRadiusMeters*math.Pi/180,
		idx.cellLng*geo.EarthRadiusMeters*math.Pi/180*math.Cos(p.Lat*math.Pi/180),
	)
	rings := 1
	if cellMeters > 0 {
		rings = int(math.Ceil(maxMeters/cellMeters)) + 1
	}
	rings = max(1, min(rings, maxRings))

	seen := make(map[string]bool)
	var best markers.Marker
	bestDist := math.Inf(1)
	found := false

	for ring := 1; ring <= rings; ring++ {
		for _, h := range idx.ring(p, ring) {
			if seen[h] {
				continue
			}
			seen[h] = true
			for _, m := range idx.cells[h] {
				if filter != nil && !filter(m) {
					continue
				}
				d := geo.DistanceMeters(p, m.Point())
				if d > maxMeters {
					continue
				}
				if !found || d < bestDist || (d == bestDist && m.ID < best.ID) {
					best, bestDist, found = m, d, true
				}
			}
		}
		// Everything in the next ring is at least a cell further away.
		if found && bestDist <= float64(ring)*cellMeters {
			break
		}
	}
	return best, bestDist, found
}

// ring returns the cells within r cells of p's cell, p's cell included.
func (idx *Index) ring(p geo.Point, r int) []string {
	var out []string
	for dy := -r; dy <= r; dy++ {
		lat := p.Lat + float64(dy)*idx.cellLat
		if lat > 90 || lat < -90 {
			continue
		}
		for dx := -r; dx <= r; dx++ {
			lng := p.Lng + float64(dx)*idx.cellLng
			if lng > 180 {
				lng -= 360
			} else if lng < -180 {
				lng += 360
			}
			out = append(out, geohash.EncodeWithPrecision(lat, lng, idx.precision))
		}
	}
	return out
}
