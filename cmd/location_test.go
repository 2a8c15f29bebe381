package main

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/data-for-change/anyway-sub000/internal/location"
)

type stubExtractor struct {
	calls atomic.Int32
}

func (s *stubExtractor) Extract(_ context.Context, item location.Item) (*location.Location, error) {
	s.calls.Add(1)
	if item.Title == "" {
		return nil, location.ErrNoLocation
	}
	return &location.Location{Text: item.Title}, nil
}

func TestReadItems(t *testing.T) {
	in := `{"title":"תאונה בצומת גלילות","description":"רוכב נפצע"}

{"title":"בכביש 90"}
`
	items, err := readItems(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "תאונה בצומת גלילות", items[0].Title)
	assert.Equal(t, "רוכב נפצע", items[0].Description)
	assert.Equal(t, "בכביש 90", items[1].Title)
}

func TestReadItems_BadLine(t *testing.T) {
	_, err := readItems(strings.NewReader("{\"title\":\"a\"}\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestExtractAll_KeepsOrderAndErrors(t *testing.T) {
	items := []location.Item{
		{Title: "a"},
		{Title: ""},
		{Title: "c"},
		{Title: "d"},
	}
	ex := &stubExtractor{}

	results := extractAll(context.Background(), ex, items, 2)
	require.Len(t, results, 4)
	assert.Equal(t, int32(4), ex.calls.Load())

	assert.Equal(t, "a", results[0].Location.Text)
	assert.Nil(t, results[1].Location)
	assert.Equal(t, location.ErrNoLocation.Error(), results[1].Error)
	assert.Equal(t, "c", results[2].Location.Text)
	assert.Equal(t, "d", results[3].Item.Title)
}

func TestExtractAll_ZeroWorkers(t *testing.T) {
	results := extractAll(context.Background(), &stubExtractor{}, []location.Item{{Title: "x"}}, 0)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Error)
}

func TestBBoxFlags(t *testing.T) {
	f := clustersCmd.Flags()
	values := map[string]string{"ne-lat": "32.1", "ne-lng": "34.9", "sw-lat": "31.9", "sw-lng": "34.7"}
	for name, v := range values {
		require.NoError(t, f.Set(name, v))
		t.Cleanup(func() { _ = f.Set(name, "0") })
	}

	b, err := bboxFlags(clustersCmd)
	require.NoError(t, err)
	assert.InDelta(t, 32.1, b.NELat, 1e-9)
	assert.InDelta(t, 34.7, b.SWLng, 1e-9)

	require.NoError(t, f.Set("sw-lat", "33"))
	_, err = bboxFlags(clustersCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid bounding box")
}
