package importlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO etl.import_log").
		WithArgs(pgxmock.AnyArg(), "cbs", "accidents_type_1/H20201041").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := New(mock).Start(context.Background(), "cbs", "accidents_type_1/H20201041")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStart_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO etl.import_log").WillReturnError(errors.New("relation does not exist"))

	id, err := New(mock).Start(context.Background(), "cbs", "b")
	require.Error(t, err)
	assert.Equal(t, uuid.Nil, id)
	assert.Contains(t, err.Error(), "importlog: start cbs/b")
}

func TestComplete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE etl.import_log").
		WithArgs(int64(1234), []byte(`{"year":2020}`), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = New(mock).Complete(context.Background(), id, 1234, map[string]any{"year": 2020})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteNilMetadata(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE etl.import_log").
		WithArgs(int64(0), []byte(nil), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, New(mock).Complete(context.Background(), id, 0, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE etl.import_log").
		WithArgs("cbs: accidents file not found", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, New(mock).Fail(context.Background(), id, "cbs: accidents file not found"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastSuccess(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT started_at FROM etl.import_log").
		WithArgs("cbs", "H2020").
		WillReturnRows(pgxmock.NewRows([]string{"started_at"}).AddRow(started))

	got, err := New(mock).LastSuccess(context.Background(), "cbs", "H2020")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, started, *got)
}

func TestLastSuccess_Never(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT started_at FROM etl.import_log").
		WithArgs("cbs", "H2020").
		WillReturnRows(pgxmock.NewRows([]string{"started_at"}))

	got, err := New(mock).LastSuccess(context.Background(), "cbs", "H2020")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	done := started.Add(time.Minute)
	errMsg := "boom"
	mock.ExpectQuery("SELECT id, source, batch, status").
		WithArgs(100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "source", "batch", "status", "started_at", "completed_at", "rows_imported", "error", "metadata"}).
			AddRow(id, "cbs", "H2020", StatusFailed, started, &done, int64(0), &errMsg, []byte(`{"year":2020}`)))

	entries, err := New(mock).List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, StatusFailed, entries[0].Status)
	assert.Equal(t, "boom", entries[0].Error)
	assert.Equal(t, done, *entries[0].CompletedAt)
	assert.EqualValues(t, 2020, entries[0].Metadata["year"])
}
