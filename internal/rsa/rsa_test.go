package rsa

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var header = []string{"ID", "Date", "Lat", "Lon", "Violation_Type", "Vehicle_Type", "Video_Link"}

func writeWorkbook(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("rsa")
	require.NoError(t, err)
	for _, data := range rows {
		row := sheet.AddRow()
		for _, v := range data {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "rsa.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func sampleWorkbook(t *testing.T) string {
	return writeWorkbook(t, [][]string{
		header,
		{"1001", "2021-03-04 08:15:00", "32.08", "34.78", "מעבר באדום", "פרטי", "https://youtu.be/a"},
		{"1002", "44197.5", "31.25", "34.79", "עקיפה מסוכנת", "משאית", ""},
		{"1003", "2021-03-04", "", "34.78", "x", "y", ""},
		{"abc", "2021-03-04", "32.0", "34.7", "x", "y", ""},
		{"1005", "not a date", "32.0", "34.7", "x", "y", ""},
		{"1006", "2021-03-04", "0", "0", "x", "y", ""},
	})
}

func TestRead(t *testing.T) {
	res, err := Read(sampleWorkbook(t))
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, 4, res.Skipped)

	r := res.Records[0]
	assert.Equal(t, int64(1001), r.ID)
	assert.Equal(t, time.Date(2021, 3, 4, 8, 15, 0, 0, time.UTC), r.Created)
	assert.InDelta(t, 32.08, r.Lat, 1e-9)
	assert.Equal(t, "מעבר באדום", r.ViolationType)
	assert.Equal(t, "פרטי", r.VehicleType)
	assert.Equal(t, "https://youtu.be/a", r.VideoLink)

	serial := res.Records[1].Created
	assert.Equal(t, 2021, serial.Year())
	assert.Equal(t, time.January, serial.Month())
	assert.Equal(t, 1, serial.Day())
}

func TestReadMissingColumn(t *testing.T) {
	path := writeWorkbook(t, [][]string{{"id", "date", "lat"}, {"1", "2021-01-01", "32"}})
	_, err := Read(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `lacks column "lon"`)

	_, err = Read(filepath.Join(t.TempDir(), "missing.xlsx"))
	require.Error(t, err)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{in: "2021-03-04 08:15:00", want: time.Date(2021, 3, 4, 8, 15, 0, 0, time.UTC), ok: true},
		{in: "2021-03-04T08:15:00", want: time.Date(2021, 3, 4, 8, 15, 0, 0, time.UTC), ok: true},
		{in: "04/03/2021 08:15", want: time.Date(2021, 3, 4, 8, 15, 0, 0, time.UTC), ok: true},
		{in: "04/03/2021", want: time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC), ok: true},
		{in: "", ok: false},
		{in: "yesterday", ok: false},
		{in: "-3", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRecordRow(t *testing.T) {
	r := Record{ID: 77, Created: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), Lat: 32, Lng: 34.8}
	row, err := r.Row()
	require.NoError(t, err)
	require.Len(t, row, len(markerColumns))
	assert.Equal(t, int64(577), row[1])
	assert.Equal(t, ProviderCode, row[2])
	assert.Equal(t, 2020, row[9])
	assert.Equal(t, 6, row[10])
	assert.Equal(t, "accident_severity", markerColumns[11])
	assert.Equal(t, noSeverity, row[11])
}

func expectUpsert(mock pgxmock.PgxPoolIface, n int64) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TEMP TABLE "_tmp_upsert_markers" (LIKE "markers" INCLUDING DEFAULTS) ON COMMIT DROP`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_markers"}, markerColumns).WillReturnResult(n)
	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT ("id", "provider_code") DO UPDATE SET "provider_and_id" = EXCLUDED."provider_and_id"`)).
		WillReturnResult(pgxmock.NewResult("INSERT", n))
	mock.ExpectCommit()
	mock.ExpectRollback()
}

func TestImport(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectUpsert(mock, 1)
	expectUpsert(mock, 1)

	res, err := Import(context.Background(), mock, sampleWorkbook(t), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Read)
	assert.Equal(t, 4, res.Skipped)
	assert.Equal(t, int64(2), res.Upserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImportUpsertError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	res, err := Import(context.Background(), mock, sampleWorkbook(t), 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rsa: upsert chunk 0")
	assert.Equal(t, int64(0), res.Upserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
