package location

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/data-for-change/anyway-sub000/internal/geo"
)

// ErrNoLocation is returned when an item has no location phrase.
var ErrNoLocation = eris.New("location: no location text")

// Item is a free-text news item.
type Item struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Location is the extracted location of an item.
type Location struct {
	Text       string         `json:"location_text"`
	RoadNo     int            `json:"road_no,omitempty"`
	Resolution Resolution     `json:"resolution"`
	Lat        float64        `json:"lat,omitempty"`
	Lng        float64        `json:"lng,omitempty"`
	Geocoded   *GeocodeResult `json:"geocoded,omitempty"`
	Match      *Match         `json:"match,omitempty"`
	// Accurate is set when a marker within the distance limit confirmed the
	// resolution fields.
	Accurate bool `json:"accurate"`
}

// ResolveResolution picks the finest resolution the geocoded address and
// the text support: a road number wins, then street, city, district and
// region.
func ResolveResolution(g *GeocodeResult, roadNo int, text string) Resolution {
	junction := MentionsJunction(text)
	if roadNo > 0 {
		if junction {
			return ResolutionSuburbanJunction
		}
		return ResolutionSuburbanRoad
	}
	if g == nil || !g.Matched {
		return ResolutionOther
	}
	switch {
	case g.Street != "" && junction:
		return ResolutionUrbanJunction
	case g.Street != "":
		return ResolutionStreet
	case g.City != "":
		return ResolutionCity
	case g.District != "":
		return ResolutionDistrict
	case g.Region != "":
		return ResolutionRegion
	default:
		return ResolutionOther
	}
}

// MarkerMatcher is the matching step of an Extractor.
type MarkerMatcher interface {
	Match(ctx context.Context, p geo.Point, res Resolution, roadNo int) (*Match, error)
}

// Extractor runs text heuristics, geocoding and marker matching.
type Extractor struct {
	geocoder Geocoder
	matcher  MarkerMatcher
}

// NewExtractor creates an Extractor.
func NewExtractor(geocoder Geocoder, matcher MarkerMatcher) *Extractor {
	return &Extractor{geocoder: geocoder, matcher: matcher}
}

// Extract locates item. An item whose phrase cannot be geocoded still
// returns a Location with ResolutionOther; only a missing phrase or a
// geocoder failure is an error.
func (e *Extractor) Extract(ctx context.Context, item Item) (*Location, error) {
	text := Normalize(strings.TrimSpace(item.Title + ". " + item.Description))
	phrase := ExtractLocationText(text)
	roadNo, _ := ExtractRoadNumber(text)
	if phrase == "" && roadNo == 0 {
		return nil, ErrNoLocation
	}
	if phrase == "" {
		phrase = "כביש " + strconv.Itoa(roadNo)
	}

	log := zap.L().With(zap.String("component", "location.extractor"), zap.String("phrase", phrase))

	g, err := e.geocoder.Geocode(ctx, phrase)
	if err != nil {
		return nil, eris.Wrapf(err, "location: geocode %q", phrase)
	}

	loc := &Location{Text: phrase, RoadNo: roadNo, Geocoded: g}
	loc.Resolution = ResolveResolution(g, roadNo, text)
	if g == nil || !g.Matched {
		log.Debug("phrase not geocoded")
		loc.Resolution = ResolutionOther
		return loc, nil
	}
	loc.Lat, loc.Lng = g.Lat, g.Lng

	m, err := e.matcher.Match(ctx, geo.Point{Lat: g.Lat, Lng: g.Lng}, loc.Resolution, roadNo)
	switch {
	case eris.Is(err, ErrNoMatch):
		log.Debug("no marker matched", zap.Stringer("resolution", loc.Resolution))
		return loc, nil
	case err != nil:
		return nil, err
	}
	loc.Match = m
	loc.Accurate = loc.Resolution != ResolutionOther
	return loc, nil
}
