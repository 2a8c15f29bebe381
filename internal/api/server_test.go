package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/data-for-change/anyway-sub000/internal/location"
	"github.com/data-for-change/anyway-sub000/internal/markers"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeMarkers struct {
	markers []markers.Marker
	err     error
	calls   atomic.Int32
	last    atomic.Pointer[markers.Query]
}

func (f *fakeMarkers) BoundingBox(_ context.Context, q markers.Query) ([]markers.Marker, error) {
	f.calls.Add(1)
	f.last.Store(&q)
	if f.err != nil {
		return nil, f.err
	}
	var out []markers.Marker
	for _, m := range f.markers {
		if q.BBox.Contains(m.Point()) {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeExtractor struct {
	loc *location.Location
	err error
}

func (f *fakeExtractor) Extract(_ context.Context, _ location.Item) (*location.Location, error) {
	return f.loc, f.err
}

func sampleMarkers() []markers.Marker {
	created := time.Date(2020, 5, 1, 10, 0, 0, 0, time.UTC)
	return []markers.Marker{
		{ID: 1, ProviderCode: 1, Latitude: 32.08, Longitude: 34.78, Created: created, Severity: 2, YishuvName: "תל אביב -יפו"},
		{ID: 2, ProviderCode: 3, Latitude: 32.081, Longitude: 34.781, Created: created, Severity: 3, Road1: 20},
	}
}

const bboxQuery = "ne_lat=32.2&ne_lng=35&sw_lat=31.9&sw_lng=34.6"

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	h := NewServer(&fakeMarkers{}, nil, nil, Options{}).Router()
	rr := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestClusters(t *testing.T) {
	src := &fakeMarkers{markers: sampleMarkers()}
	cache := NewResponseCache(10, time.Hour)
	h := NewServer(src, nil, nil, Options{RadiusPx: 50, Workers: 1, Cache: cache}).Router()

	rr := do(t, h, http.MethodGet, "/api/clusters?"+bboxQuery+"&zoom=10&start_date=2020-01-01&end_date=2021-01-01", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "miss", rr.Header().Get("X-Cache"))

	var body struct {
		Clusters []struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
			Size      int     `json:"size"`
		} `json:"clusters"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Clusters, 1)
	assert.Equal(t, 2, body.Clusters[0].Size)
	assert.InDelta(t, 32.08, body.Clusters[0].Latitude, 1e-9)

	q := src.last.Load()
	require.NotNil(t, q.Start)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), *q.Start)

	rr = do(t, h, http.MethodGet, "/api/clusters?"+bboxQuery+"&zoom=10&start_date=2020-01-01&end_date=2021-01-01", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hit", rr.Header().Get("X-Cache"))
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestClustersBadParams(t *testing.T) {
	h := NewServer(&fakeMarkers{}, nil, nil, Options{}).Router()

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "missing bbox", query: "zoom=10", want: "ne_lat is required"},
		{name: "bad number", query: "ne_lat=x&ne_lng=35&sw_lat=31&sw_lng=34&zoom=10", want: "ne_lat must be a number"},
		{name: "inverted bbox", query: "ne_lat=31&ne_lng=35&sw_lat=32&sw_lng=34&zoom=10", want: "bounding box is invalid"},
		{name: "missing zoom", query: bboxQuery, want: "zoom is required"},
		{name: "zoom range", query: bboxQuery + "&zoom=30", want: "zoom must be an integer"},
		{name: "bad date", query: bboxQuery + "&zoom=10&start_date=yesterday", want: "start_date must be"},
		{name: "dates reversed", query: bboxQuery + "&zoom=10&start_date=2021-01-01&end_date=2020-01-01", want: "start_date must be before end_date"},
		{name: "bad severity", query: bboxQuery + "&zoom=10&severity=1,x", want: "severity must be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodGet, "/api/clusters?"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Contains(t, body["error"], tt.want)
		})
	}
}

func TestClustersSourceError(t *testing.T) {
	h := NewServer(&fakeMarkers{err: errors.New("db down")}, nil, nil, Options{Workers: 2}).Router()
	rr := do(t, h, http.MethodGet, "/api/clusters?"+bboxQuery+"&zoom=10", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestMarkersGeoJSON(t *testing.T) {
	src := &fakeMarkers{markers: sampleMarkers()}
	h := NewServer(src, nil, nil, Options{}).Router()

	rr := do(t, h, http.MethodGet, "/api/markers?"+bboxQuery+"&severity=2,3&provider=1,3&limit=50&end_date=1609459200", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/geo+json", rr.Header().Get("Content-Type"))

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			ID       string `json:"id"`
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "1", fc.Features[0].ID)
	assert.Equal(t, []float64{34.78, 32.08}, fc.Features[0].Geometry.Coordinates)
	assert.Equal(t, "תל אביב -יפו", fc.Features[0].Properties["yishuv_name"])

	q := src.last.Load()
	assert.Equal(t, []int{2, 3}, q.Severities)
	assert.Equal(t, []int{1, 3}, q.Providers)
	assert.Equal(t, 50, q.Limit)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), *q.End)
}

func TestMarkersEmpty(t *testing.T) {
	h := NewServer(&fakeMarkers{}, nil, nil, Options{}).Router()
	rr := do(t, h, http.MethodGet, "/api/markers?"+bboxQuery, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/api/markers?"+bboxQuery+"&limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLocation(t *testing.T) {
	loc := &location.Location{Text: "רחוב הרצל, חולון", Resolution: location.ResolutionStreet, Accurate: true}
	h := NewServer(&fakeMarkers{}, &fakeExtractor{loc: loc}, nil, Options{}).Router()

	rr := do(t, h, http.MethodPost, "/api/location", []byte(`{"title":"הולך רגל נפגע ברחוב הרצל, חולון"}`))
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "רחוב הרצל, חולון", body["location_text"])
	assert.Equal(t, "רחוב", body["resolution"])
	assert.Equal(t, true, body["accurate"])
}

func TestLocationErrors(t *testing.T) {
	tests := []struct {
		name      string
		extractor LocationExtractor
		body      string
		want      int
	}{
		{name: "not configured", body: `{"title":"x"}`, want: http.StatusServiceUnavailable},
		{name: "bad json", extractor: &fakeExtractor{}, body: `{`, want: http.StatusBadRequest},
		{name: "empty item", extractor: &fakeExtractor{}, body: `{"title":" "}`, want: http.StatusBadRequest},
		{name: "no location", extractor: &fakeExtractor{err: location.ErrNoLocation}, body: `{"title":"נהג נהרג"}`, want: http.StatusUnprocessableEntity},
		{name: "geocoder down", extractor: &fakeExtractor{err: errors.New("quota")}, body: `{"title":"x"}`, want: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewServer(&fakeMarkers{}, tt.extractor, nil, Options{}).Router()
			rr := do(t, h, http.MethodPost, "/api/location", []byte(tt.body))
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	h := NewServer(&fakeMarkers{}, nil, nil, Options{CORSOrigins: []string{"https://www.anyway.co.il"}}).Router()

	req := httptest.NewRequest(http.MethodOptions, "/api/markers", nil)
	req.Header.Set("Origin", "https://www.anyway.co.il")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://www.anyway.co.il", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestTiles(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM markers")).
		WithArgs(12, 2446, 1662).
		WillReturnRows(pgxmock.NewRows([]string{"st_asmvt"}).AddRow([]byte("tile")))

	cache := NewResponseCache(10, time.Hour)
	h := NewServer(&fakeMarkers{}, nil, mock, Options{Cache: cache}).Router()

	rr := do(t, h, http.MethodGet, "/api/tiles/accidents/12/2446/1662.pbf", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/vnd.mapbox-vector-tile", rr.Header().Get("Content-Type"))
	assert.Equal(t, "tile", rr.Body.String())

	rr = do(t, h, http.MethodGet, "/api/tiles/accidents/12/2446/1662.pbf", nil)
	assert.Equal(t, "hit", rr.Header().Get("X-Cache"))
	assert.Equal(t, "application/vnd.mapbox-vector-tile", rr.Header().Get("Content-Type"))
	assert.NoError(t, mock.ExpectationsWereMet())

	rr = do(t, h, http.MethodGet, "/api/cache/stats", nil)
	var stats CacheStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, KindStats{Entries: 1, Hits: 1, Misses: 1}, stats.Kinds["tiles"])
	assert.Equal(t, KindStats{}, stats.Kinds["clusters"])
}

func TestTilesErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	h := NewServer(&fakeMarkers{}, nil, mock, Options{}).Router()

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/tiles/nope/12/1/1.pbf", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/tiles/accidents/z/1/1.pbf", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodGet, "/api/tiles/accidents/3/1/1.pbf", nil).Code)

	mock.ExpectQuery(regexp.QuoteMeta("ST_AsMVT")).WillReturnError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodGet, "/api/tiles/accidents/12/1/1.pbf", nil).Code)

	noTiles := NewServer(&fakeMarkers{}, nil, nil, Options{}).Router()
	assert.Equal(t, http.StatusServiceUnavailable, do(t, noTiles, http.MethodGet, "/api/tiles/accidents/12/1/1.pbf", nil).Code)
}

func TestGenerateMVTRejectsUnknownTable(t *testing.T) {
	_, err := GenerateMVT(context.Background(), nil, LayerConfig{Table: "users"}, 1, 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tile table")
}
