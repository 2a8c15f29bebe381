package markers

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/data-for-change/anyway-sub000/internal/geo"
)

var markerCols = []string{
	"id", "provider_code", "latitude", "longitude", "created", "accident_severity",
	"address", "road1", "road2", "km", "road_segment_id",
	"yishuv_symbol", "yishuv_name", "street1_hebrew",
	"region_hebrew", "district_hebrew",
	"non_urban_intersection_hebrew", "urban_intersection_hebrew", "non_urban_intersection",
}

func markerRow(rows *pgxmock.Rows, id int64, lat, lng float64) *pgxmock.Rows {
	km := 12.5
	seg := 3
	return rows.AddRow(id, 1, lat, lng, time.Date(2020, 3, 15, 8, 0, 0, 0, time.UTC), 2,
		"דיזנגוף 12", 90, 0, &km, &seg,
		5000, "תל אביב -יפו", "דיזנגוף",
		"מרכז", "תל אביב",
		"", "", 0)
}

var israel = geo.BBox{NELat: 33.3, NELng: 35.9, SWLat: 29.4, SWLng: 34.2}

func TestBoundingBox(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM markers WHERE geom && ST_MakeEnvelope($1, $2, $3, $4, 4326) AND created >= $5 AND created < $6 AND accident_severity = ANY($7) AND provider_code = ANY($8) ORDER BY id LIMIT $9")).
		WithArgs(34.2, 29.4, 35.9, 33.3, start, end, []int{1, 2}, []int{1, 3}, 50).
		WillReturnRows(markerRow(markerRow(pgxmock.NewRows(markerCols), 1, 32.07, 34.78), 2, 32.08, 34.79))

	got, err := NewStore(mock).BoundingBox(context.Background(), Query{
		BBox:       israel,
		Start:      &start,
		End:        &end,
		Severities: []int{1, 2},
		Providers:  []int{1, 3},
		Limit:      50,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, "דיזנגוף", got[0].Street1Hebrew)
	require.NotNil(t, got[0].KM)
	assert.InDelta(t, 12.5, *got[0].KM, 1e-9)
	assert.Equal(t, geo.Point{Lat: 32.08, Lng: 34.79}, got[1].Point())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBoundingBox_DefaultLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta("ST_MakeEnvelope($1, $2, $3, $4, 4326) ORDER BY id LIMIT $5")).
		WithArgs(34.2, 29.4, 35.9, 33.3, DefaultLimit).
		WillReturnRows(pgxmock.NewRows(markerCols))

	got, err := NewStore(mock).BoundingBox(context.Background(), Query{BBox: israel})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBoundingBox_Invalid(t *testing.T) {
	_, err := NewStore(nil).BoundingBox(context.Background(), Query{
		BBox: geo.BBox{NELat: 29, NELng: 35, SWLat: 33, SWLng: 34},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid bounding box")
}

func TestBoundingBox_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM markers").WillReturnError(assert.AnError)

	_, err = NewStore(mock).BoundingBox(context.Background(), Query{BBox: israel})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "markers: bounding box query")
}

func TestBoundingBox_SeverityDefaultsForRSA(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, provider_code, latitude, longitude, created, COALESCE(accident_severity, -1),")).
		WithArgs(34.2, 29.4, 35.9, 33.3, DefaultLimit).
		WillReturnRows(pgxmock.NewRows(markerCols).AddRow(int64(9), 5, 32.1, 34.85,
			time.Date(2021, 7, 2, 0, 0, 0, 0, time.UTC), -1,
			"", 0, 0, (*float64)(nil), (*int)(nil),
			0, "", "", "", "", "", "", 0))

	got, err := NewStore(mock).BoundingBox(context.Background(), Query{BBox: israel})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].ProviderCode)
	assert.Equal(t, -1, got[0].Severity)
	assert.Nil(t, got[0].KM)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNear(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("(?s)" + regexp.QuoteMeta("COALESCE(accident_severity, -1)") + ".*" + regexp.QuoteMeta("ST_DWithin(geom::geography")).
		WithArgs(34.78, 32.07, 500.0, 20).
		WillReturnRows(markerRow(pgxmock.NewRows(markerCols), 7, 32.0701, 34.7801))

	got, err := NewStore(mock).Near(context.Background(), geo.Point{Lat: 32.07, Lng: 34.78}, 500, 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, "מרכז", got[0].RegionHebrew)
	assert.NoError(t, mock.ExpectationsWereMet())
}
