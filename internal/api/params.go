package api

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/data-for-change/anyway-sub000/internal/geo"
	"github.com/data-for-change/anyway-sub000/internal/markers"
)

const maxZoom = 22

func parseFloat(q url.Values, name string) (float64, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return 0, eris.Errorf("%s is required", name)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, eris.Errorf("%s must be a number", name)
	}
	return f, nil
}

func parseBBox(q url.Values) (geo.BBox, error) {
	var b geo.BBox
	var err error
	if b.NELat, err = parseFloat(q, "ne_lat"); err != nil {
		return b, err
	}
	if b.NELng, err = parseFloat(q, "ne_lng"); err != nil {
		return b, err
	}
	if b.SWLat, err = parseFloat(q, "sw_lat"); err != nil {
		return b, err
	}
	if b.SWLng, err = parseFloat(q, "sw_lng"); err != nil {
		return b, err
	}
	if !b.Valid() {
		return b, eris.New("bounding box is invalid")
	}
	return b, nil
}

func parseZoom(q url.Values) (int, error) {
	v := strings.TrimSpace(q.Get("zoom"))
	if v == "" {
		return 0, eris.New("zoom is required")
	}
	z, err := strconv.Atoi(v)
	if err != nil || z < 0 || z > maxZoom {
		return 0, eris.Errorf("zoom must be an integer between 0 and %d", maxZoom)
	}
	return z, nil
}

// parseDate accepts YYYY-MM-DD or unix seconds. Empty means no bound.
func parseDate(q url.Values, name string) (*time.Time, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return &t, nil
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, eris.Errorf("%s must be YYYY-MM-DD or unix seconds", name)
	}
	t := time.Unix(secs, 0).UTC()
	return &t, nil
}

func parseInts(q url.Values, name string) ([]int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, eris.Errorf("%s must be a comma-separated list of integers", name)
		}
		out = append(out, n)
	}
	return out, nil
}

// parseQuery reads the bounding box and the marker filters.
func parseQuery(q url.Values) (markers.Query, error) {
	var mq markers.Query
	var err error
	if mq.BBox, err = parseBBox(q); err != nil {
		return mq, err
	}
	if mq.Start, err = parseDate(q, "start_date"); err != nil {
		return mq, err
	}
	if mq.End, err = parseDate(q, "end_date"); err != nil {
		return mq, err
	}
	if mq.Start != nil && mq.End != nil && !mq.Start.Before(*mq.End) {
		return mq, eris.New("start_date must be before end_date")
	}
	if mq.Severities, err = parseInts(q, "severity"); err != nil {
		return mq, err
	}
	if mq.Providers, err = parseInts(q, "provider"); err != nil {
		return mq, err
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return mq, eris.New("limit must be a positive integer")
		}
		mq.Limit = n
	}
	return mq, nil
}
