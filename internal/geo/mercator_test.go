package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolution(t *testing.T) {
	assert.InDelta(t, 156543.03392804097, Resolution(0), 1e-6)
	assert.InDelta(t, Resolution(0)/2, Resolution(1), 1e-9)
}

func TestLatLngToPixels(t *testing.T) {
	tests := []struct {
		name     string
		lat, lng float64
		zoom     int
		px, py   float64
	}{
		{name: "origin zoom 0", lat: 0, lng: 0, zoom: 0, px: 128, py: 128},
		{name: "antimeridian zoom 0", lat: 0, lng: 180, zoom: 0, px: 256, py: 128},
		{name: "origin zoom 3", lat: 0, lng: 0, zoom: 3, px: 1024, py: 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			px, py := LatLngToPixels(tt.lat, tt.lng, tt.zoom)
			assert.InDelta(t, tt.px, px, 1e-6)
			assert.InDelta(t, tt.py, py, 1e-6)
		})
	}
}

func TestLatLngToPixels_NorthIsUp(t *testing.T) {
	_, south := LatLngToPixels(31.0, 35.0, 10)
	_, north := LatLngToPixels(32.0, 35.0, 10)
	assert.Greater(t, north, south)
}
