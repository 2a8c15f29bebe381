// Package rsa imports the police RSA enforcement feed: violations filmed
// by road users, delivered as an XLSX workbook, stored as markers.
package rsa

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/data-for-change/anyway-sub000/internal/db"
	"github.com/data-for-change/anyway-sub000/internal/fetcher"
	"github.com/data-for-change/anyway-sub000/internal/geo"
)

// ProviderCode marks RSA rows in the markers table.
const ProviderCode = 5

// noSeverity fills accident_severity; the feed reports violations, not
// accidents.
const noSeverity = -1

const tableMarkers = "markers"

var requiredColumns = []string{"id", "date", "lat", "lon"}

var markerColumns = []string{
	"id", "provider_and_id", "provider_code", "title", "description", "created",
	"latitude", "longitude", "geom", "accident_year", "accident_month",
	"accident_severity", "rsa_violation_type", "rsa_vehicle_type", "video_link",
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
}

// Record is one reported violation.
type Record struct {
	ID            int64
	Created       time.Time
	Lat           float64
	Lng           float64
	ViolationType string
	VehicleType   string
	VideoLink     string
}

// ReadResult holds parsed records and the count of rejected rows.
type ReadResult struct {
	Records []Record
	Skipped int
}

// Read parses the RSA workbook. Rows with a bad id, date or location are
// skipped and counted.
func Read(path string) (*ReadResult, error) {
	t, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	if err != nil {
		return nil, eris.Wrap(err, "rsa: read workbook")
	}
	header := make([]string, len(t.Header))
	for i, h := range t.Header {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}
	t = fetcher.NewTable(header, t.Rows)
	for _, col := range requiredColumns {
		if !t.HasCol(col) {
			return nil, eris.Errorf("rsa: %s lacks column %q", path, col)
		}
	}

	res := &ReadResult{}
	for _, row := range t.Rows {
		rec, ok := parseRecord(t, row)
		if !ok {
			res.Skipped++
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func parseRecord(t *fetcher.Table, row []string) (Record, bool) {
	get := func(col string) string { return strings.TrimSpace(t.Get(row, col)) }

	id, err := strconv.ParseInt(get("id"), 10, 64)
	if err != nil || id <= 0 {
		return Record{}, false
	}
	lat, latErr := strconv.ParseFloat(get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(get("lon"), 64)
	p := geo.Point{Lat: lat, Lng: lng}
	if latErr != nil || lngErr != nil || !p.Valid() || (lat == 0 && lng == 0) {
		return Record{}, false
	}
	created, ok := ParseDate(get("date"))
	if !ok {
		return Record{}, false
	}
	return Record{
		ID:            id,
		Created:       created,
		Lat:           lat,
		Lng:           lng,
		ViolationType: get("violation_type"),
		VehicleType:   get("vehicle_type"),
		VideoLink:     get("video_link"),
	}, true
}

// ParseDate reads a feed timestamp, either text or an Excel serial date.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		return xlsx.TimeFromExcelTime(serial, false), true
	}
	return time.Time{}, false
}

// Row returns the values for the markers columns.
func (r Record) Row() ([]any, error) {
	pid, err := strconv.ParseInt(strconv.Itoa(ProviderCode)+strconv.FormatInt(r.ID, 10), 10, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "rsa: provider_and_id for %d", r.ID)
	}
	g, err := geo.PointEWKB(r.Lng, r.Lat)
	if err != nil {
		return nil, err
	}
	return []any{
		r.ID, pid, ProviderCode, "דיווח אזרח", r.ViolationType, r.Created,
		r.Lat, r.Lng, g, r.Created.Year(), int(r.Created.Month()),
		noSeverity, r.ViolationType, r.VehicleType, r.VideoLink,
	}, nil
}

// Result summarises an import.
type Result struct {
	Read     int
	Skipped  int
	Upserted int64
}

// Import reads path and upserts its records into markers keyed by
// (id, provider_code), batchSize rows per transaction.
func Import(ctx context.Context, pool db.Pool, path string, batchSize int) (*Result, error) {
	log := zap.L().With(zap.String("component", "rsa"), zap.String("file", path))

	rr, err := Read(path)
	if err != nil {
		return nil, err
	}
	res := &Result{Read: len(rr.Records), Skipped: rr.Skipped}
	if rr.Skipped > 0 {
		log.Warn("skipped rsa rows", zap.Int("skipped", rr.Skipped))
	}

	rows := make([][]any, 0, len(rr.Records))
	for _, rec := range rr.Records {
		row, err := rec.Row()
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	for i, chunk := range db.Chunks(rows, batchSize) {
		n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
			Table:        tableMarkers,
			Columns:      markerColumns,
			ConflictKeys: []string{"id", "provider_code"},
		}, chunk)
		if err != nil {
			return res, eris.Wrapf(err, "rsa: upsert chunk %d", i)
		}
		res.Upserted += n
	}

	log.Info("rsa import complete",
		zap.Int("read", res.Read),
		zap.Int("skipped", res.Skipped),
		zap.Int64("upserted", res.Upserted),
	)
	return res, nil
}
