// Package roads loads the supplemental road geography: numbered road
// segments between named points and suburban junction locations.
package roads

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/data-for-change/anyway-sub000/internal/db"
	"github.com/data-for-change/anyway-sub000/internal/fetcher"
)

// TableSegments stores road segments.
const TableSegments = "road_segments"

var segmentColumns = []string{"segment_id", "road", "from_km", "from_name", "to_km", "to_name"}

// Segment is a stretch of a numbered road between two kilometre marks.
type Segment struct {
	ID       int     `json:"segment_id"`
	Road     int     `json:"road"`
	FromKM   float64 `json:"from_km"`
	FromName string  `json:"from_name"`
	ToKM     float64 `json:"to_km"`
	ToName   string  `json:"to_name"`
}

// ReadSegments parses the road segments workbook. Header names are matched
// case-insensitively. Rows without a segment id or road are skipped.
func ReadSegments(path string) ([]Segment, error) {
	t, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	if err != nil {
		return nil, eris.Wrap(err, "roads: read segments")
	}
	header := make([]string, len(t.Header))
	for i, h := range t.Header {
		header[i] = strings.ToLower(h)
	}
	t = fetcher.NewTable(header, t.Rows)
	for _, col := range segmentColumns {
		if !t.HasCol(col) {
			return nil, eris.Errorf("roads: segments file %s lacks column %q", path, col)
		}
	}

	var segs []Segment
	skipped := 0
	for _, row := range t.Rows {
		id, idErr := strconv.Atoi(strings.TrimSpace(t.Get(row, "segment_id")))
		road, roadErr := strconv.Atoi(strings.TrimSpace(t.Get(row, "road")))
		if idErr != nil || roadErr != nil {
			skipped++
			continue
		}
		from, _ := strconv.ParseFloat(strings.TrimSpace(t.Get(row, "from_km")), 64)
		to, _ := strconv.ParseFloat(strings.TrimSpace(t.Get(row, "to_km")), 64)
		segs = append(segs, Segment{
			ID:       id,
			Road:     road,
			FromKM:   from,
			FromName: strings.TrimSpace(t.Get(row, "from_name")),
			ToKM:     to,
			ToName:   strings.TrimSpace(t.Get(row, "to_name")),
		})
	}
	if skipped > 0 {
		zap.L().Warn("roads: skipped segment rows", zap.Int("skipped", skipped))
	}
	return segs, nil
}

// UpsertSegments writes segments keyed by segment_id.
func UpsertSegments(ctx context.Context, pool db.Pool, segs []Segment) (int64, error) {
	rows := make([][]any, len(segs))
	for i, s := range segs {
		rows[i] = []any{s.ID, s.Road, s.FromKM, s.FromName, s.ToKM, s.ToName}
	}
	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        TableSegments,
		Columns:      segmentColumns,
		ConflictKeys: []string{"segment_id"},
		UpdateCols:   []string{"road", "from_km", "from_name", "to_km", "to_name"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "roads: upsert segments")
	}
	return n, nil
}

// QuerySegments reads all stored segments.
func QuerySegments(ctx context.Context, pool db.Pool) ([]Segment, error) {
	rows, err := pool.Query(ctx,
		`SELECT segment_id, road, from_km, from_name, to_km, to_name FROM road_segments ORDER BY segment_id`)
	if err != nil {
		return nil, eris.Wrap(err, "roads: query segments")
	}
	defer rows.Close()

	var segs []Segment
	for rows.Next() {
		var s Segment
		if err := rows.Scan(&s.ID, &s.Road, &s.FromKM, &s.FromName, &s.ToKM, &s.ToName); err != nil {
			return nil, eris.Wrap(err, "roads: scan segment")
		}
		segs = append(segs, s)
	}
	return segs, rows.Err()
}

// SegmentIndex finds the segment of a road containing a kilometre mark.
type SegmentIndex struct {
	byRoad map[int][]Segment
}

// NewSegmentIndex indexes segs by road, ordered by FromKM then id.
func NewSegmentIndex(segs []Segment) *SegmentIndex {
	idx := &SegmentIndex{byRoad: make(map[int][]Segment)}
	for _, s := range segs {
		idx.byRoad[s.Road] = append(idx.byRoad[s.Road], s)
	}
	for _, list := range idx.byRoad {
		sort.Slice(list, func(i, j int) bool {
			if list[i].FromKM != list[j].FromKM {
				return list[i].FromKM < list[j].FromKM
			}
			return list[i].ID < list[j].ID
		})
	}
	return idx
}

// Find returns the first segment of road with FromKM <= km <= ToKM.
func (idx *SegmentIndex) Find(road int, km float64) (Segment, bool) {
	if idx == nil {
		return Segment{}, false
	}
	for _, s := range idx.byRoad[road] {
		if s.FromKM <= km && km <= s.ToKM {
			return s, true
		}
	}
	return Segment{}, false
}

// Len is the number of indexed segments.
func (idx *SegmentIndex) Len() int {
	if idx == nil {
		return 0
	}
	n := 0
	for _, list := range idx.byRoad {
		n += len(list)
	}
	return n
}
