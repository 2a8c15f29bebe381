package api

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/data-for-change/anyway-sub000/internal/db"
)

// LayerConfig maps a marker query to an MVT tile layer.
type LayerConfig struct {
	Table   string `json:"table"`
	Columns string `json:"columns"` // comma-separated columns to include
	Filter  string `json:"filter"`  // extra WHERE condition, may be empty
	MinZoom int    `json:"min_zoom"`
	MaxZoom int    `json:"max_zoom"`
}

// validTileTables lists the tables tiles may be cut from.
var validTileTables = map[string]bool{
	"markers":            true,
	"suburban_junctions": true,
}

// DefaultLayers returns the tile layers served by the map.
func DefaultLayers() map[string]LayerConfig {
	return map[string]LayerConfig{
		"accidents": {
			Table:   "markers",
			Columns: "id, provider_code, accident_severity, accident_year, road1",
			Filter:  "provider_code IN (1, 3)",
			MinZoom: 8,
			MaxZoom: 18,
		},
		"rsa": {
			Table:   "markers",
			Columns: "id, rsa_violation_type, rsa_vehicle_type, video_link",
			Filter:  "provider_code = 5",
			MinZoom: 10,
			MaxZoom: 18,
		},
		"junctions": {
			Table:   "suburban_junctions",
			Columns: "non_urban_intersection, non_urban_intersection_hebrew, road1, road2",
			MinZoom: 9,
			MaxZoom: 18,
		},
	}
}

// GenerateMVT renders one Mapbox Vector Tile of layer from PostGIS.
func GenerateMVT(ctx context.Context, pool db.Pool, layer LayerConfig, z, x, y int) ([]byte, error) {
	if !validTileTables[layer.Table] {
		return nil, eris.Errorf("api: invalid tile table %q", layer.Table)
	}
	where := "geom && ST_Transform(ST_TileEnvelope($1, $2, $3), 4326)"
	if layer.Filter != "" {
		where += " AND " + layer.Filter
	}

	sql := fmt.Sprintf(`
		SELECT ST_AsMVT(q, 'default', 4096, 'geom') FROM (
			SELECT %s,
				ST_AsMVTGeom(
					ST_Transform(geom, 3857),
					ST_TileEnvelope($1, $2, $3),
					4096, 256, true
				) AS geom
			FROM %s
			WHERE %s
		) q`,
		layer.Columns,
		layer.Table,
		where,
	)

	var tile []byte
	if err := pool.QueryRow(ctx, sql, z, x, y).Scan(&tile); err != nil {
		return nil, eris.Wrap(err, "api: generate MVT")
	}
	return tile, nil
}
