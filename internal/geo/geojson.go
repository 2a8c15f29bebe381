package geo

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// PointFeature builds a GeoJSON point feature.
func PointFeature(id string, p Point, props map[string]any) *geojson.Feature {
	return &geojson.Feature{
		ID:         id,
		Geometry:   geom.NewPointFlat(geom.XY, []float64{p.Lng, p.Lat}),
		Properties: props,
	}
}

// FeatureCollection collects features, never returning a nil slice so the
// encoding is always an array.
func FeatureCollection(features []*geojson.Feature) *geojson.FeatureCollection {
	if features == nil {
		features = []*geojson.Feature{}
	}
	return &geojson.FeatureCollection{Features: features}
}

// MarshalFeatures encodes a feature collection.
func MarshalFeatures(features []*geojson.Feature) ([]byte, error) {
	data, err := json.Marshal(FeatureCollection(features))
	if err != nil {
		return nil, eris.Wrap(err, "geo: marshal geojson")
	}
	return data, nil
}
