// Package geo converts between the coordinate systems used by the accident
// data and the map, and encodes points for PostGIS and GeoJSON.
package geo

import "math"

// Israeli Transverse Mercator (EPSG:2039) on the GRS80 ellipsoid.
const (
	grs80A  = 6378137.0
	grs80F  = 1 / 298.257222101
	wgs84A  = 6378137.0
	wgs84F  = 1 / 298.257223563
	itmK0   = 1.0000067
	itmFE   = 219529.584
	itmFN   = 626907.390
	itmLat0 = 31.0 + 44.0/60 + 3.817/3600
	itmLon0 = 35.0 + 12.0/60 + 16.261/3600
)

// Israel 1993 to WGS84, position vector convention. Rotations in arc seconds,
// scale in ppm.
var israelToWGS84 = helmert{
	tx: -24.0024, ty: -17.1032, tz: -17.8444,
	rx: -0.33077, ry: -1.85269, rz: 1.66969,
	ppm: 5.4248,
}

type helmert struct {
	tx, ty, tz float64
	rx, ry, rz float64
	ppm        float64
}

func (h helmert) apply(x, y, z float64) (float64, float64, float64) {
	const arcsec = math.Pi / (180 * 3600)
	rx, ry, rz := h.rx*arcsec, h.ry*arcsec, h.rz*arcsec
	s := 1 + h.ppm*1e-6
	return h.tx + s*(x-rz*y+ry*z),
		h.ty + s*(rz*x+y-rx*z),
		h.tz + s*(-ry*x+rx*y+z)
}

// ITMToWGS84 converts ITM easting/northing in metres to WGS84 longitude and
// latitude in degrees. Accurate to about a metre inside Israel.
func ITMToWGS84(x, y float64) (lng, lat float64) {
	phi, lam := inverseTM(x, y)
	gx, gy, gz := toGeocentric(phi, lam, grs80A, grs80F)
	wx, wy, wz := israelToWGS84.apply(gx, gy, gz)
	phi, lam = fromGeocentric(wx, wy, wz, wgs84A, wgs84F)
	return degrees(lam), degrees(phi)
}

// IsITM reports whether x, y fall inside the ITM grid extent covering Israel.
func IsITM(x, y float64) bool {
	return x >= 100000 && x <= 300000 && y >= 350000 && y <= 820000
}

// meridianArc is the distance along the GRS80 meridian from the equator to phi.
func meridianArc(phi float64) float64 {
	e2 := grs80F * (2 - grs80F)
	e4, e6 := e2*e2, e2*e2*e2
	return grs80A * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}

// inverseTM returns GRS80 latitude and longitude in radians.
func inverseTM(x, y float64) (float64, float64) {
	e2 := grs80F * (2 - grs80F)
	e4, e6 := e2*e2, e2*e2*e2
	ep2 := e2 / (1 - e2)

	m := meridianArc(radians(itmLat0)) + (y-itmFN)/itmK0
	mu := m / (grs80A * (1 - e2/4 - 3*e4/64 - 5*e6/256))
	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))

	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sin, cos, tan := math.Sin(phi1), math.Cos(phi1), math.Tan(phi1)
	c1 := ep2 * cos * cos
	t1 := tan * tan
	n1 := grs80A / math.Sqrt(1-e2*sin*sin)
	r1 := grs80A * (1 - e2) / math.Pow(1-e2*sin*sin, 1.5)
	d := (x - itmFE) / (n1 * itmK0)

	lat := phi1 - (n1*tan/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)
	lon := radians(itmLon0) + (d-
		(1+2*t1+c1)*math.Pow(d, 3)/6+
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120)/cos

	return lat, lon
}

func toGeocentric(phi, lam, a, f float64) (float64, float64, float64) {
	e2 := f * (2 - f)
	sin := math.Sin(phi)
	n := a / math.Sqrt(1-e2*sin*sin)
	return n * math.Cos(phi) * math.Cos(lam),
		n * math.Cos(phi) * math.Sin(lam),
		n * (1 - e2) * sin
}

func fromGeocentric(x, y, z, a, f float64) (float64, float64) {
	e2 := f * (2 - f)
	p := math.Hypot(x, y)
	lam := math.Atan2(y, x)
	phi := math.Atan2(z, p*(1-e2))
	for range 5 {
		sin := math.Sin(phi)
		n := a / math.Sqrt(1-e2*sin*sin)
		h := p/math.Cos(phi) - n
		phi = math.Atan2(z, p*(1-e2*n/(n+h)))
	}
	return phi, lam
}

func radians(d float64) float64 { return d * math.Pi / 180 }
func degrees(r float64) float64 { return r * 180 / math.Pi }
