package geo

import (
	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean radius used for great-circle distances.
const EarthRadiusMeters = 6371010.0

// Point is a WGS84 location in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceMeters returns the great-circle distance between a and b.
func DistanceMeters(a, b Point) float64 {
	la := s2.LatLngFromDegrees(a.Lat, a.Lng)
	lb := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return la.Distance(lb).Radians() * EarthRadiusMeters
}

// Valid reports whether p is a real WGS84 coordinate.
func (p Point) Valid() bool {
	return s2.LatLngFromDegrees(p.Lat, p.Lng).IsValid()
}

// BBox is a latitude/longitude rectangle.
type BBox struct {
	NELat float64 `json:"ne_lat"`
	NELng float64 `json:"ne_lng"`
	SWLat float64 `json:"sw_lat"`
	SWLng float64 `json:"sw_lng"`
}

// Contains reports whether p lies inside b, edges included.
func (b BBox) Contains(p Point) bool {
	return p.Lat <= b.NELat && p.Lat >= b.SWLat && p.Lng <= b.NELng && p.Lng >= b.SWLng
}

// Valid reports whether b has its north-east corner above and right of south-west.
func (b BBox) Valid() bool {
	return b.NELat >= b.SWLat && b.NELng >= b.SWLng &&
		Point{b.NELat, b.NELng}.Valid() && Point{b.SWLat, b.SWLng}.Valid()
}
