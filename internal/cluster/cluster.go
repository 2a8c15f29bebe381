// Package cluster groups map markers into display clusters by zoom level.
package cluster

import (
	"math"

	"github.com/data-for-change/anyway-sub000/internal/geo"
	"github.com/data-for-change/anyway-sub000/internal/markers"
)

// DefaultRadiusPx is the half-width of a cluster's pixel box.
const DefaultRadiusPx = 50

// Cluster is a group of markers drawn as one pin. Its position is the
// first marker that opened it.
type Cluster struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Size      int     `json:"size"`
}

type centre struct {
	px, py float64
	idx    int
}

// Calculate clusters ms in a single greedy pass. Each marker joins the
// first cluster whose centre lies within radiusPx pixels on both axes at
// zoom, else it opens a new cluster. Input order decides the result.
func Calculate(ms []markers.Marker, zoom, radiusPx int) []Cluster {
	if radiusPx <= 0 {
		radiusPx = DefaultRadiusPx
	}
	r := float64(radiusPx)

	var out []Cluster
	var centres []centre
	for _, m := range ms {
		px, py := geo.LatLngToPixels(m.Latitude, m.Longitude, zoom)
		joined := false
		for _, c := range centres {
			if math.Abs(px-c.px) <= r && math.Abs(py-c.py) <= r {
				out[c.idx].Size++
				joined = true
				break
			}
		}
		if joined {
			continue
		}
		centres = append(centres, centre{px: px, py: py, idx: len(out)})
		out = append(out, Cluster{Latitude: m.Latitude, Longitude: m.Longitude, Size: 1})
	}
	return out
}

// DivideToBoxes splits b into n latitude bands of equal height, top band
// first. Each band spans the full longitude range of b.
func DivideToBoxes(b geo.BBox, n int) []geo.BBox {
	if n < 1 {
		n = 1
	}
	step := (b.NELat - b.SWLat) / float64(n)
	boxes := make([]geo.BBox, n)
	for i := range n {
		top := b.NELat - float64(i)*step
		bottom := b.NELat - float64(i+1)*step
		if i == n-1 {
			bottom = b.SWLat
		}
		boxes[i] = geo.BBox{NELat: top, NELng: b.NELng, SWLat: bottom, SWLng: b.SWLng}
	}
	return boxes
}
