package geo

import "math"

const (
	earthRadiusMercator = 6378137.0
	tileSize            = 256
	originShift         = math.Pi * earthRadiusMercator
)

// Resolution returns metres per pixel at zoom for spherical web mercator.
func Resolution(zoom int) float64 {
	return 2 * math.Pi * earthRadiusMercator / tileSize / math.Pow(2, float64(zoom))
}

// LatLngToMeters projects WGS84 degrees to EPSG:3857 metres.
func LatLngToMeters(lat, lng float64) (mx, my float64) {
	mx = lng * originShift / 180
	my = math.Log(math.Tan((90+lat)*math.Pi/360)) / (math.Pi / 180)
	my = my * originShift / 180
	return mx, my
}

// LatLngToPixels returns the pixel coordinates of a point in a world of
// 256·2^zoom pixels, origin at the bottom-left.
func LatLngToPixels(lat, lng float64, zoom int) (px, py float64) {
	mx, my := LatLngToMeters(lat, lng)
	res := Resolution(zoom)
	return (mx + originShift) / res, (my + originShift) / res
}
