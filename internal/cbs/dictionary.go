package cbs

import (
	"context"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/data-for-change/anyway-sub000/internal/db"
)

// ignoredDictionaryTable is never loaded.
const ignoredDictionaryTable = 97

// DefaultDictionaryTables maps Dictionary.csv table numbers to lookup tables.
var DefaultDictionaryTables = map[int]string{
	2:   "police_unit",
	3:   "road_type",
	4:   "accident_severity",
	5:   "accident_type",
	9:   "road_shape",
	10:  "one_lane",
	11:  "multi_lane",
	12:  "speed_limit",
	13:  "road_intactness",
	14:  "road_width",
	15:  "road_sign",
	16:  "road_light",
	17:  "road_control",
	18:  "weather",
	19:  "road_surface",
	21:  "road_object",
	22:  "object_distance",
	23:  "didnt_cross",
	24:  "cross_mode",
	25:  "cross_location",
	26:  "cross_direction",
	28:  "driving_directions",
	30:  "vehicle_status",
	31:  "involved_type",
	34:  "safety_measures",
	35:  "injury_severity",
	37:  "day_type",
	38:  "day_night",
	39:  "day_in_week",
	40:  "traffic_light",
	43:  "vehicle_attribution",
	45:  "vehicle_type",
	50:  "injured_type",
	52:  "injured_position",
	60:  "accident_month",
	66:  "population_type",
	67:  "sex",
	68:  "geo_area",
	77:  "region",
	78:  "municipal_status",
	79:  "district",
	80:  "natural_area",
	81:  "yishuv_shape",
	92:  "age_group",
	93:  "accident_hour_raw",
	111: "engine_volume",
	112: "total_weight",
	200: "hospital_time",
	201: "medical_type",
	202: "release_dest",
	203: "safety_measures_use",
	204: "late_deceased",
	205: "location_accuracy",
	229: "vehicle_damage",
}

// tablesFile is the YAML layout of a dictionary table override file.
type tablesFile struct {
	Tables map[int]string `yaml:"tables"`
}

// LoadDictionaryTables returns DefaultDictionaryTables merged with the
// overrides in path. An empty path returns the defaults. An empty table name
// in the file removes that table number.
func LoadDictionaryTables(path string) (map[int]string, error) {
	tables := make(map[int]string, len(DefaultDictionaryTables))
	for k, v := range DefaultDictionaryTables {
		tables[k] = v
	}
	if path == "" {
		return tables, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "cbs: read tables file %s", path)
	}
	var f tablesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "cbs: parse tables file %s", path)
	}
	for k, v := range f.Tables {
		if v == "" {
			delete(tables, k)
			continue
		}
		tables[k] = v
	}
	return tables, nil
}

// DictionaryLoader upserts Dictionary.csv labels into the lookup tables.
type DictionaryLoader struct {
	pool   db.Pool
	tables map[int]string
}

// NewDictionaryLoader creates a loader for the given table mapping.
func NewDictionaryLoader(pool db.Pool, tables map[int]string) *DictionaryLoader {
	return &DictionaryLoader{pool: pool, tables: tables}
}

// Load upserts the labels of dict for (year, provider). Years before
// DictionaryStartYear are skipped. Returns the number of rows written.
func (l *DictionaryLoader) Load(ctx context.Context, dict Dictionary, year, provider int) (int64, error) {
	log := zap.L().With(zap.String("component", "cbs.dictionary"), zap.Int("year", year), zap.Int("provider", provider))

	if year < DictionaryStartYear {
		log.Debug("skipping dictionary before start year")
		return 0, nil
	}

	numbers := make([]int, 0, len(dict))
	for n := range dict {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var total int64
	for _, n := range numbers {
		if n == ignoredDictionaryTable {
			continue
		}
		table, ok := l.tables[n]
		if !ok {
			log.Debug("unknown dictionary table", zap.Int("table", n))
			continue
		}

		codes := make([]int, 0, len(dict[n]))
		for code := range dict[n] {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		rows := make([][]any, 0, len(codes))
		for _, code := range codes {
			rows = append(rows, []any{code, year, provider, dict[n][code]})
		}

		labelCol := table + "_hebrew"
		written, err := db.BulkUpsert(ctx, l.pool, db.UpsertConfig{
			Table:        table,
			Columns:      []string{"id", "year", "provider_code", labelCol},
			ConflictKeys: []string{"id", "year", "provider_code"},
			UpdateCols:   []string{labelCol},
		}, rows)
		if err != nil {
			return total, eris.Wrapf(err, "cbs: upsert dictionary table %d (%s)", n, table)
		}
		total += written
	}

	log.Info("dictionary loaded", zap.Int64("rows", total))
	return total, nil
}
