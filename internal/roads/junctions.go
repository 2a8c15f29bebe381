package roads

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/tidwall/rtree"
	"go.uber.org/zap"

	"github.com/data-for-change/anyway-sub000/internal/db"
	"github.com/data-for-change/anyway-sub000/internal/geo"
)

// TableJunctions stores suburban junctions.
const TableJunctions = "suburban_junctions"

// metersPerDegree is the length of a degree of latitude.
const metersPerDegree = 111320.0

// Junction is a suburban junction point.
type Junction struct {
	ID    int     `json:"non_urban_intersection"`
	Name  string  `json:"non_urban_intersection_hebrew"`
	Road1 int     `json:"road1"`
	Road2 int     `json:"road2"`
	Lat   float64 `json:"latitude"`
	Lng   float64 `json:"longitude"`
}

// Shapefile attribute names.
const (
	fieldID    = "zomet"
	fieldName  = "shem_zomet"
	fieldRoad1 = "kvish1"
	fieldRoad2 = "kvish2"
)

// ReadJunctions parses a point shapefile of suburban junctions. ITM
// coordinates are converted to WGS84. Records without an id, a name or a
// point are skipped.
func ReadJunctions(path string) ([]Junction, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "roads: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		fieldIdx[strings.ToLower(strings.TrimRight(f.String(), "\x00"))] = i
	}
	if _, ok := fieldIdx[fieldID]; !ok {
		return nil, eris.Errorf("roads: shapefile %s lacks field %s", path, fieldID)
	}
	attr := func(name string) string {
		i, ok := fieldIdx[name]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
	}

	var out []Junction
	skipped := 0
	for reader.Next() {
		_, shape := reader.Shape()
		pt, ok := shape.(*shp.Point)
		if !ok || pt == nil {
			skipped++
			continue
		}
		id, err := strconv.Atoi(attr(fieldID))
		name := attr(fieldName)
		if err != nil || name == "" {
			skipped++
			continue
		}
		lng, lat := pt.X, pt.Y
		if geo.IsITM(pt.X, pt.Y) {
			lng, lat = geo.ITMToWGS84(pt.X, pt.Y)
		}
		road1, _ := strconv.Atoi(attr(fieldRoad1))
		road2, _ := strconv.Atoi(attr(fieldRoad2))
		out = append(out, Junction{ID: id, Name: name, Road1: road1, Road2: road2, Lat: lat, Lng: lng})
	}
	if skipped > 0 {
		zap.L().Debug("roads: skipped junction records", zap.Int("skipped", skipped))
	}
	return out, nil
}

// UpsertJunctions writes junctions keyed by their id, with point geometry.
func UpsertJunctions(ctx context.Context, pool db.Pool, js []Junction) (int64, error) {
	rows := make([][]any, 0, len(js))
	for _, j := range js {
		g, err := geo.PointEWKB(j.Lng, j.Lat)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{j.ID, j.Name, j.Road1, j.Road2, j.Lat, j.Lng, g})
	}
	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table: TableJunctions,
		Columns: []string{
			"non_urban_intersection", "non_urban_intersection_hebrew", "road1", "road2",
			"latitude", "longitude", "geom",
		},
		ConflictKeys: []string{"non_urban_intersection"},
		UpdateCols:   []string{"non_urban_intersection_hebrew", "road1", "road2", "latitude", "longitude", "geom"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "roads: upsert junctions")
	}
	return n, nil
}

// QueryJunctions reads all stored junctions.
func QueryJunctions(ctx context.Context, pool db.Pool) ([]Junction, error) {
	rows, err := pool.Query(ctx,
		`SELECT non_urban_intersection, non_urban_intersection_hebrew, road1, road2, latitude, longitude
		 FROM suburban_junctions ORDER BY non_urban_intersection`)
	if err != nil {
		return nil, eris.Wrap(err, "roads: query junctions")
	}
	defer rows.Close()

	var out []Junction
	for rows.Next() {
		var j Junction
		if err := rows.Scan(&j.ID, &j.Name, &j.Road1, &j.Road2, &j.Lat, &j.Lng); err != nil {
			return nil, eris.Wrap(err, "roads: scan junction")
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// JunctionIndex answers nearest-junction queries from an R-tree keyed on
// longitude/latitude.
type JunctionIndex struct {
	tr rtree.RTree
	n  int
}

// NewJunctionIndex indexes js.
func NewJunctionIndex(js []Junction) *JunctionIndex {
	idx := &JunctionIndex{}
	for i := range js {
		j := js[i]
		p := [2]float64{j.Lng, j.Lat}
		idx.tr.Insert(p, p, j)
		idx.n++
	}
	return idx
}

// Len is the number of indexed junctions.
func (idx *JunctionIndex) Len() int {
	if idx == nil {
		return 0
	}
	return idx.n
}

// Nearest returns the junction closest to (lat, lng) within maxMeters,
// optionally restricted to junctions on road (0 means any road). Equal
// distances resolve to the lower id.
func (idx *JunctionIndex) Nearest(lat, lng, maxMeters float64, road int) (Junction, float64, bool) {
	if idx == nil || idx.n == 0 {
		return Junction{}, 0, false
	}
	dLat := maxMeters / metersPerDegree
	dLng := dLat / math.Max(math.Cos(lat*math.Pi/180), 0.01)
	lo := [2]float64{lng - dLng, lat - dLat}
	hi := [2]float64{lng + dLng, lat + dLat}

	origin := geo.Point{Lat: lat, Lng: lng}
	var best Junction
	bestDist := math.Inf(1)
	found := false
	idx.tr.Search(lo, hi, func(_, _ [2]float64, data interface{}) bool {
		j := data.(Junction)
		if road != 0 && j.Road1 != road && j.Road2 != road {
			return true
		}
		d := geo.DistanceMeters(origin, geo.Point{Lat: j.Lat, Lng: j.Lng})
		if d > maxMeters {
			return true
		}
		if !found || d < bestDist || (d == bestDist && j.ID < best.ID) {
			best, bestDist, found = j, d, true
		}
		return true
	})
	return best, bestDist, found
}
