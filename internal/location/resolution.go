// Package location assigns resolution-level location fields to free-text
// news items by geocoding the location phrase and matching the result
// against nearby historical accident markers.
package location

import (
	"github.com/rotisserie/eris"
)

// Resolution is the geographic precision of an extracted location.
type Resolution int

// Resolutions, coarsest first.
const (
	ResolutionOther Resolution = iota
	ResolutionRegion
	ResolutionDistrict
	ResolutionCity
	ResolutionStreet
	ResolutionUrbanJunction
	ResolutionSuburbanRoad
	ResolutionRoadSegment
	ResolutionSuburbanJunction
)

var resolutionNames = map[Resolution]string{
	ResolutionOther:            "אחר",
	ResolutionRegion:           "מחוז",
	ResolutionDistrict:         "נפה",
	ResolutionCity:             "עיר",
	ResolutionStreet:           "רחוב",
	ResolutionUrbanJunction:    "צומת עירוני",
	ResolutionSuburbanRoad:     "כביש בינעירוני",
	ResolutionRoadSegment:      "מקטע בינעירוני",
	ResolutionSuburbanJunction: "צומת בינעירוני",
}

// Resolutions lists every resolution in declaration order.
var Resolutions = []Resolution{
	ResolutionOther, ResolutionRegion, ResolutionDistrict, ResolutionCity, ResolutionStreet,
	ResolutionUrbanJunction, ResolutionSuburbanRoad, ResolutionRoadSegment, ResolutionSuburbanJunction,
}

// String returns the Hebrew name.
func (r Resolution) String() string {
	if s, ok := resolutionNames[r]; ok {
		return s
	}
	return resolutionNames[ResolutionOther]
}

// ParseResolution maps a Hebrew name back to its Resolution.
func ParseResolution(s string) (Resolution, error) {
	for r, name := range resolutionNames {
		if name == s {
			return r, nil
		}
	}
	return ResolutionOther, eris.Errorf("location: unknown resolution %q", s)
}

// MarshalText encodes the Hebrew name.
func (r Resolution) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a Hebrew name.
func (r *Resolution) UnmarshalText(b []byte) error {
	v, err := ParseResolution(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// IsRoad reports whether r is located by road number.
func (r Resolution) IsRoad() bool {
	return r == ResolutionSuburbanRoad || r == ResolutionRoadSegment || r == ResolutionSuburbanJunction
}
