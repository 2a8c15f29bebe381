package cbs

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/data-for-change/anyway-sub000/internal/fetcher"
)

// Street is one entry of DicStreets.csv.
type Street struct {
	Sign int
	Name string
}

// Streets indexes street names by settlement symbol.
type Streets map[int][]Street

// NewStreets groups DicStreets.csv rows by settlement, dropping nameless rows.
func NewStreets(t *fetcher.Table) Streets {
	s := make(Streets)
	for _, row := range t.Rows {
		name := trimLabel(t.Get(row, ColStreetName))
		if name == "" {
			continue
		}
		settlement := parseCode(t.Get(row, ColYishuvSymbol))
		s[settlement] = append(s[settlement], Street{Sign: parseCode(t.Get(row, ColStreetSign)), Name: name})
	}
	return s
}

// StreetName returns the name of street sign in settlement, or "".
func (s Streets) StreetName(settlement, sign int) string {
	if sign == MissingCode {
		return ""
	}
	for _, st := range s[settlement] {
		if st.Sign == sign {
			return st.Name
		}
	}
	return ""
}

// RoadJunction is one non-urban intersection: two roads crossing at a km mark
// of the first.
type RoadJunction struct {
	Road1 int
	Road2 int
	KM    int
	Name  string
}

// Roads holds the non-urban intersections in file order.
type Roads struct {
	junctions []RoadJunction
	byCode    map[int]string
}

// NewRoads builds the intersection lookups from IntersectNonUrban.csv.
func NewRoads(t *fetcher.Table) *Roads {
	r := &Roads{byCode: make(map[int]string)}
	for _, row := range t.Rows {
		name := trimLabel(t.Get(row, ColJunctionName))
		if name == "" {
			continue
		}
		r.junctions = append(r.junctions, RoadJunction{
			Road1: parseCode(t.Get(row, ColRoad1)),
			Road2: parseCode(t.Get(row, ColRoad2)),
			KM:    parseCode(t.Get(row, ColKM)),
			Name:  name,
		})
		if code := parseCode(t.Get(row, ColJunction)); code != MissingCode {
			r.byCode[code] = name
		}
	}
	return r
}

// Nearest returns the junction on road whose KM is closest to km. The first
// junction wins ties.
func (r *Roads) Nearest(road, km int) (RoadJunction, bool) {
	best, found := RoadJunction{}, false
	minDist := -1
	for _, j := range r.junctions {
		if j.Road1 != road {
			continue
		}
		d := abs(km - j.KM)
		if !found || d < minDist {
			best, minDist, found = j, d, true
		}
	}
	return best, found
}

// ByRoads returns the first junction of road1 and road2.
func (r *Roads) ByRoads(road1, road2 int) (RoadJunction, bool) {
	for _, j := range r.junctions {
		if j.Road1 == road1 && j.Road2 == road2 {
			return j, true
		}
	}
	return RoadJunction{}, false
}

// NonUrbanName returns the name of non-urban intersection code, or "".
func (r *Roads) NonUrbanName(code int) string {
	return r.byCode[code]
}

// UrbanJunctions maps (settlement, junction code) to its name.
type UrbanJunctions map[[2]int]string

// NewUrbanJunctions reads IntersectUrban.csv. A nil table yields an empty lookup.
func NewUrbanJunctions(t *fetcher.Table) UrbanJunctions {
	u := make(UrbanJunctions)
	if t == nil {
		return u
	}
	for _, row := range t.Rows {
		name := trimLabel(t.Get(row, ColJunctionName))
		if name == "" {
			continue
		}
		u[[2]int{parseCode(t.Get(row, ColUrbanYishuv)), parseCode(t.Get(row, ColJunction))}] = name
	}
	return u
}

// Name returns the urban junction name, or "".
func (u UrbanJunctions) Name(settlement, code int) string {
	return u[[2]int{settlement, code}]
}

// Dictionary maps table number and code to a Hebrew label.
type Dictionary map[int]map[int]string

// NewDictionary reads Dictionary.csv rows, skipping empty labels.
func NewDictionary(t *fetcher.Table) Dictionary {
	d := make(Dictionary)
	for _, row := range t.Rows {
		label := cleanLabel(t.Get(row, ColDictLabel))
		if label == "" {
			continue
		}
		table := parseCode(t.Get(row, ColDictTable))
		code := parseCode(t.Get(row, ColDictCode))
		if table == MissingCode || code == MissingCode {
			continue
		}
		if d[table] == nil {
			d[table] = make(map[int]string)
		}
		d[table][code] = label
	}
	return d
}

// Label returns the label of code in table, or "".
func (d Dictionary) Label(table, code int) string {
	return d[table][code]
}

// Cities maps settlement symbols to Hebrew names.
type Cities map[int]string

// LoadCities streams the cities CSV (SEMEL_YISHUV, SHEM_YISHUV). A missing
// path yields an empty lookup.
func LoadCities(ctx context.Context, path string) (Cities, error) {
	c := make(Cities)
	if path == "" {
		return c, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cbs: open cities %s", path)
	}
	defer f.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.StreamOptions{
		CSVOptions: fetcher.CSVOptions{Charset: fetcher.CharsetUTF8BOM, UpperHeader: true, TrimSpace: true},
		HeaderCh:   headerCh,
	})

	symbolIdx, nameIdx := -1, -1
	for row := range rowCh {
		if symbolIdx < 0 {
			header := <-headerCh
			for i, h := range header {
				switch h {
				case ColYishuvSymbol:
					symbolIdx = i
				case ColYishuvName:
					nameIdx = i
				}
			}
			if symbolIdx < 0 || nameIdx < 0 {
				return nil, eris.Errorf("cbs: cities file %s lacks %s/%s", path, ColYishuvSymbol, ColYishuvName)
			}
		}
		if symbolIdx >= len(row) || nameIdx >= len(row) {
			continue
		}
		if name := trimLabel(row[nameIdx]); name != "" {
			c[parseCode(row[symbolIdx])] = name
		}
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "cbs: read cities %s", path)
	}
	return c, nil
}

// parseCode parses a coded CBS value. Empty, NaN and unparsable values yield
// MissingCode. Integral floats ("12.0") are accepted.
func parseCode(s string) int {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return MissingCode
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int(f)) {
		return int(f)
	}
	return MissingCode
}

// parseFloat parses an optional float, returning nil when empty or invalid.
func parseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// trimLabel trims a name. NaN is treated as empty.
func trimLabel(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "nan") {
		return ""
	}
	return s
}

// cleanLabel is trimLabel for dictionary labels, which also drop single quotes.
func cleanLabel(s string) string {
	return trimLabel(strings.ReplaceAll(s, "'", ""))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
