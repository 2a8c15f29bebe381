// Package markers reads accident markers from PostGIS for map display and
// location matching.
package markers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/data-for-change/anyway-sub000/internal/db"
	"github.com/data-for-change/anyway-sub000/internal/geo"
)

// DefaultLimit caps queries that do not set one.
const DefaultLimit = 10000

// Marker is a stored accident point with its location fields.
type Marker struct {
	ID                 int64     `json:"id"`
	ProviderCode       int       `json:"provider_code"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Created            time.Time `json:"created"`
	Severity           int       `json:"accident_severity"`
	Address            string    `json:"address,omitempty"`
	Road1              int       `json:"road1,omitempty"`
	Road2              int       `json:"road2,omitempty"`
	KM                 *float64  `json:"km,omitempty"`
	RoadSegmentID      *int      `json:"road_segment_id,omitempty"`
	YishuvSymbol       int       `json:"yishuv_symbol,omitempty"`
	YishuvName         string    `json:"yishuv_name,omitempty"`
	Street1Hebrew      string    `json:"street1_hebrew,omitempty"`
	RegionHebrew       string    `json:"region_hebrew,omitempty"`
	DistrictHebrew     string    `json:"district_hebrew,omitempty"`
	NonUrbanJunction   string    `json:"non_urban_intersection_hebrew,omitempty"`
	UrbanJunction      string    `json:"urban_intersection_hebrew,omitempty"`
	NonUrbanJunctionID int       `json:"non_urban_intersection,omitempty"`
}

// Point returns the marker location.
func (m Marker) Point() geo.Point {
	return geo.Point{Lat: m.Latitude, Lng: m.Longitude}
}

// Query filters a bounding box search.
type Query struct {
	BBox       geo.BBox
	Start      *time.Time
	End        *time.Time
	Severities []int
	Providers  []int
	Limit      int
}

// Store queries the markers table.
type Store struct {
	pool db.Pool
}

// NewStore creates a Store.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// Severity is -1 for feeds that carry none (RSA).
const selectColumns = `id, provider_code, latitude, longitude, created, COALESCE(accident_severity, -1),
		       COALESCE(address, ''), COALESCE(road1, 0), COALESCE(road2, 0), km, road_segment_id,
		       COALESCE(yishuv_symbol, 0), COALESCE(yishuv_name, ''), COALESCE(street1_hebrew, ''),
		       COALESCE(region_hebrew, ''), COALESCE(district_hebrew, ''),
		       COALESCE(non_urban_intersection_hebrew, ''), COALESCE(urban_intersection_hebrew, ''),
		       COALESCE(non_urban_intersection, 0)`

// BoundingBox returns markers inside q.BBox matching the filters, ordered
// by id.
func (s *Store) BoundingBox(ctx context.Context, q Query) ([]Marker, error) {
	if !q.BBox.Valid() {
		return nil, eris.Errorf("markers: invalid bounding box %+v", q.BBox)
	}

	where := []string{"geom && ST_MakeEnvelope($1, $2, $3, $4, 4326)"}
	args := []any{q.BBox.SWLng, q.BBox.SWLat, q.BBox.NELng, q.BBox.NELat}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.Start != nil {
		add("created >= $%d", *q.Start)
	}
	if q.End != nil {
		add("created < $%d", *q.End)
	}
	if len(q.Severities) > 0 {
		add("accident_severity = ANY($%d)", q.Severities)
	}
	if len(q.Providers) > 0 {
		add("provider_code = ANY($%d)", q.Providers)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	args = append(args, limit)

	sql := fmt.Sprintf("SELECT %s FROM markers WHERE %s ORDER BY id LIMIT $%d",
		selectColumns, strings.Join(where, " AND "), len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "markers: bounding box query")
	}
	return scanMarkers(rows)
}

// Near returns up to limit markers within meters of p, nearest first.
func (s *Store) Near(ctx context.Context, p geo.Point, meters float64, limit int) ([]Marker, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	sql := fmt.Sprintf(`SELECT %s FROM markers
		WHERE geom IS NOT NULL
		  AND ST_DWithin(geom::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY geom <-> ST_SetSRID(ST_MakePoint($1, $2), 4326), id
		LIMIT $4`, selectColumns)

	rows, err := s.pool.Query(ctx, sql, p.Lng, p.Lat, meters, limit)
	if err != nil {
		return nil, eris.Wrap(err, "markers: near query")
	}
	return scanMarkers(rows)
}

func scanMarkers(rows pgx.Rows) ([]Marker, error) {
	defer rows.Close()

	var out []Marker
	for rows.Next() {
		var m Marker
		if err := rows.Scan(
			&m.ID, &m.ProviderCode, &m.Latitude, &m.Longitude, &m.Created, &m.Severity,
			&m.Address, &m.Road1, &m.Road2, &m.KM, &m.RoadSegmentID,
			&m.YishuvSymbol, &m.YishuvName, &m.Street1Hebrew,
			&m.RegionHebrew, &m.DistrictHebrew,
			&m.NonUrbanJunction, &m.UrbanJunction, &m.NonUrbanJunctionID,
		); err != nil {
			return nil, eris.Wrap(err, "markers: scan row")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "markers: iterate rows")
	}
	return out, nil
}
