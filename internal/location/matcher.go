package location

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/data-for-change/anyway-sub000/internal/geo"
	"github.com/data-for-change/anyway-sub000/internal/markers"
	"github.com/data-for-change/anyway-sub000/internal/roads"
)

// ErrNoMatch is returned when no marker qualifies for the resolution.
var ErrNoMatch = eris.New("location: no matching marker")

// CandidateSource supplies historical markers around a point.
type CandidateSource interface {
	Near(ctx context.Context, p geo.Point, meters float64, limit int) ([]markers.Marker, error)
}

// MatcherOptions tunes a Matcher.
type MatcherOptions struct {
	Precision         int
	MaxDistanceMeters float64
	CandidateRadiusM  float64
	CandidateLimit    int
}

func (o MatcherOptions) withDefaults() MatcherOptions {
	if o.Precision <= 0 {
		o.Precision = DefaultPrecision
	}
	if o.MaxDistanceMeters <= 0 {
		o.MaxDistanceMeters = 5000
	}
	if o.CandidateRadiusM < o.MaxDistanceMeters {
		o.CandidateRadiusM = o.MaxDistanceMeters
	}
	if o.CandidateLimit <= 0 {
		o.CandidateLimit = 2000
	}
	return o
}

// Match holds the location fields copied from the nearest qualifying
// marker at the requested resolution.
type Match struct {
	Resolution      Resolution `json:"resolution"`
	MarkerID        int64      `json:"marker_id,omitempty"`
	DistanceMeters  float64    `json:"distance_m"`
	Region          string     `json:"region_hebrew,omitempty"`
	District        string     `json:"district_hebrew,omitempty"`
	City            string     `json:"yishuv_name,omitempty"`
	Street          string     `json:"street1_hebrew,omitempty"`
	Road1           int        `json:"road1,omitempty"`
	Road2           int        `json:"road2,omitempty"`
	RoadSegmentID   int        `json:"road_segment_id,omitempty"`
	RoadSegmentName string     `json:"road_segment_name,omitempty"`
	JunctionID      int        `json:"non_urban_intersection,omitempty"`
	JunctionName    string     `json:"non_urban_intersection_hebrew,omitempty"`
}

// Matcher finds the nearest historical marker for a geocoded point.
type Matcher struct {
	src       CandidateSource
	segments  *roads.SegmentIndex
	junctions *roads.JunctionIndex
	opts      MatcherOptions
}

// NewMatcher creates a Matcher. segments and junctions may be nil.
func NewMatcher(src CandidateSource, segments *roads.SegmentIndex, junctions *roads.JunctionIndex, opts MatcherOptions) *Matcher {
	return &Matcher{src: src, segments: segments, junctions: junctions, opts: opts.withDefaults()}
}

// qualifies returns the candidate filter for a resolution.
func qualifies(res Resolution, roadNo int) func(markers.Marker) bool {
	switch res {
	case ResolutionRegion:
		return func(m markers.Marker) bool { return m.RegionHebrew != "" }
	case ResolutionDistrict:
		return func(m markers.Marker) bool { return m.DistrictHebrew != "" }
	case ResolutionCity:
		return func(m markers.Marker) bool { return m.YishuvName != "" }
	case ResolutionStreet:
		return func(m markers.Marker) bool { return m.YishuvName != "" && m.Street1Hebrew != "" }
	case ResolutionUrbanJunction:
		return func(m markers.Marker) bool { return m.YishuvName != "" && m.UrbanJunction != "" }
	case ResolutionSuburbanRoad, ResolutionRoadSegment:
		return func(m markers.Marker) bool { return m.Road1 != 0 && (roadNo == 0 || m.Road1 == roadNo) }
	case ResolutionSuburbanJunction:
		return func(m markers.Marker) bool {
			return m.NonUrbanJunction != "" && (roadNo == 0 || m.Road1 == roadNo || m.Road2 == roadNo)
		}
	default:
		return func(markers.Marker) bool { return false }
	}
}

// Match finds the nearest marker around p qualifying for res and copies
// its location fields. Road resolutions are refined with the segment and
// junction indexes when loaded.
func (mt *Matcher) Match(ctx context.Context, p geo.Point, res Resolution, roadNo int) (*Match, error) {
	if res == ResolutionOther {
		return &Match{Resolution: res}, nil
	}
	if !p.Valid() {
		return nil, eris.Errorf("location: invalid point %v", p)
	}

	log := zap.L().With(zap.String("component", "location.matcher"), zap.Stringer("resolution", res))

	candidates, err := mt.src.Near(ctx, p, mt.opts.CandidateRadiusM, mt.opts.CandidateLimit)
	if err != nil {
		return nil, eris.Wrap(err, "location: fetch candidates")
	}
	idx := NewIndex(candidates, mt.opts.Precision)

	m, dist, ok := idx.Nearest(p, mt.opts.MaxDistanceMeters, qualifies(res, roadNo))
	if !ok {
		if res == ResolutionSuburbanJunction {
			if j, d, found := mt.junctions.Nearest(p.Lat, p.Lng, mt.opts.MaxDistanceMeters, roadNo); found {
				return junctionMatch(j, d), nil
			}
		}
		log.Debug("no qualifying marker", zap.Int("candidates", len(candidates)))
		return nil, ErrNoMatch
	}

	out := &Match{Resolution: res, MarkerID: m.ID, DistanceMeters: dist}
	switch res {
	case ResolutionRegion:
		out.Region = m.RegionHebrew
	case ResolutionDistrict:
		out.Region = m.RegionHebrew
		out.District = m.DistrictHebrew
	case ResolutionCity:
		out.Region, out.District, out.City = m.RegionHebrew, m.DistrictHebrew, m.YishuvName
	case ResolutionStreet:
		out.Region, out.District, out.City = m.RegionHebrew, m.DistrictHebrew, m.YishuvName
		out.Street = m.Street1Hebrew
	case ResolutionUrbanJunction:
		out.Region, out.District, out.City = m.RegionHebrew, m.DistrictHebrew, m.YishuvName
		out.Street = m.Street1Hebrew
		out.JunctionName = m.UrbanJunction
	case ResolutionSuburbanRoad, ResolutionRoadSegment:
		out.Road1 = m.Road1
		mt.fillSegment(out, m)
	case ResolutionSuburbanJunction:
		out.Road1, out.Road2 = m.Road1, m.Road2
		out.JunctionID, out.JunctionName = m.NonUrbanJunctionID, m.NonUrbanJunction
		if j, d, found := mt.junctions.Nearest(p.Lat, p.Lng, mt.opts.MaxDistanceMeters, roadNo); found && d < dist {
			jm := junctionMatch(j, d)
			jm.MarkerID = m.ID
			return jm, nil
		}
	}
	return out, nil
}

func (mt *Matcher) fillSegment(out *Match, m markers.Marker) {
	if m.RoadSegmentID != nil {
		out.RoadSegmentID = *m.RoadSegmentID
	}
	if m.KM == nil {
		return
	}
	if s, ok := mt.segments.Find(m.Road1, *m.KM); ok {
		out.RoadSegmentID = s.ID
		out.RoadSegmentName = fmt.Sprintf("%s - %s", s.FromName, s.ToName)
	}
}

func junctionMatch(j roads.Junction, d float64) *Match {
	return &Match{
		Resolution:     ResolutionSuburbanJunction,
		DistanceMeters: d,
		Road1:          j.Road1,
		Road2:          j.Road2,
		JunctionID:     j.ID,
		JunctionName:   j.Name,
	}
}
