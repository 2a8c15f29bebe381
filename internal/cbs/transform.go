package cbs

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/data-for-change/anyway-sub000/internal/fetcher"
	"github.com/data-for-change/anyway-sub000/internal/geo"
)

// markerTitle is the title of every CBS marker.
const markerTitle = "Accident"

// invalidHouseNumber marks an unknown house number in CBS files.
const invalidHouseNumber = 9999

// Marker is an accident row mapped to the markers table.
type Marker struct {
	ID            int64
	ProviderAndID int64
	ProviderCode  int
	Title         string
	Description   string
	Address       string
	Latitude      *float64
	Longitude     *float64
	X             *float64
	Y             *float64
	Created       time.Time
	KM            *float64
	KMRaw         string
	Street1Hebrew string
	Street2Hebrew string
	UrbanJunction string
	Junction      string
	YishuvName    string
	Year          int
	Month         int
	Day           int
	Hour          int
	Minute        int
	Codes         map[string]int
}

// Involved is a person involved in an accident.
type Involved struct {
	ProviderAndID int64
	ProviderCode  int
	AccidentID    int64
	AccidentYear  int
	AccidentMonth int
	Codes         map[string]int
}

// Vehicle is a vehicle involved in an accident.
type Vehicle struct {
	ProviderAndID int64
	ProviderCode  int
	AccidentID    int64
	AccidentYear  int
	AccidentMonth int
	Codes         map[string]int
}

// Lookups are the per-batch tables the transformers resolve codes against.
type Lookups struct {
	Streets        Streets
	Roads          *Roads
	UrbanJunctions UrbanJunctions
	Dictionary     Dictionary
	Cities         Cities
}

// ParseDate builds the accident time from its date parts and a quarter-hour
// code: 1 is 00:00, 2 is 00:15, up to 96. Missing or invalid codes give 00:00.
func ParseDate(year, month, day, hourCode int) (time.Time, error) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, eris.Errorf("cbs: invalid date %d-%d-%d", year, month, day)
	}
	minutes := 0
	if hourCode >= 1 && hourCode <= 96 {
		minutes = hourCode*15 - 15
	}
	t := time.Date(year, time.Month(month), day, minutes/60, minutes%60, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, eris.Errorf("cbs: invalid date %d-%d-%d", year, month, day)
	}
	return t, nil
}

// Address formats "{street} {home}, {city}", leaving out the house number
// when unknown and the city when unnamed. No street yields "".
func Address(street string, home int, city string) string {
	if street == "" {
		return ""
	}
	hasHome := home > 0 && home != invalidHouseNumber
	switch {
	case hasHome && city != "":
		return fmt.Sprintf("%s %d, %s", street, home, city)
	case city != "":
		return fmt.Sprintf("%s, %s", street, city)
	case hasHome:
		return fmt.Sprintf("%s %d", street, home)
	default:
		return street
	}
}

// JunctionText describes where an accident on road1 at km lies relative to
// the nearest junction. km and junction marks are in hundreds of metres.
// When km is unknown and a non-urban intersection is coded, the junction of
// road1 and road2 is named instead.
func JunctionText(roads *Roads, road1, road2, km int, hasKM, hasIntersection bool) string {
	if roads == nil {
		return ""
	}
	if hasKM && road1 != MissingCode {
		j, ok := roads.Nearest(road1, km)
		if !ok {
			return ""
		}
		var dir string
		if km-j.KM > 0 {
			dir = "צפונית"
			if road1%2 != 0 {
				dir = "מזרחית"
			}
		} else {
			dir = "דרומית"
			if road1%2 != 0 {
				dir = "מערבית"
			}
		}
		diff := abs(km - j.KM)
		switch {
		case diff >= 10:
			return fmt.Sprintf("%s ק״מ %s ל%s", formatKM(float64(diff)/10), dir, j.Name)
		case diff > 0:
			return fmt.Sprintf("%d מטרים %s ל%s", diff*100, dir, j.Name)
		default:
			return j.Name
		}
	}
	if hasIntersection {
		if j, ok := roads.ByRoads(road1, road2); ok {
			return j.Name
		}
	}
	return ""
}

// formatKM prints a distance with at least one decimal place: 2.0, 1.5.
func formatKM(d float64) string {
	s := strconv.FormatFloat(d, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// ProviderAndID concatenates the provider code and the accident id digits.
func ProviderAndID(provider int, id int64) (int64, error) {
	v, err := strconv.ParseInt(strconv.Itoa(provider)+strconv.FormatInt(id, 10), 10, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "cbs: provider_and_id for %d/%d", provider, id)
	}
	return v, nil
}

func readCodes(t *fetcher.Table, row []string, fields []codedField) map[string]int {
	codes := make(map[string]int, len(fields))
	for _, f := range fields {
		codes[f.DB] = parseCode(t.Get(row, f.Column))
	}
	return codes
}

func parseID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// TransformMarker maps one AccData.csv row of a batch with the given provider.
func TransformMarker(t *fetcher.Table, row []string, provider, year int, lk Lookups) (Marker, error) {
	id, ok := parseID(t.Get(row, ColAccidentID))
	if !ok {
		return Marker{}, eris.Errorf("cbs: accident row without id")
	}
	if fileType := parseCode(t.Get(row, ColFileType)); fileType != provider {
		return Marker{}, eris.Errorf("cbs: accident %d has file type %d, batch provider is %d", id, fileType, provider)
	}
	pid, err := ProviderAndID(provider, id)
	if err != nil {
		return Marker{}, err
	}

	codes := readCodes(t, row, markerFields)

	if y := parseCode(t.Get(row, ColYear)); y != MissingCode {
		year = y
	}
	month := parseCode(t.Get(row, ColMonth))
	day := parseCode(t.Get(row, ColDay))
	hourCode := codes["accident_hour_raw"]
	created, err := ParseDate(year, month, day, hourCode)
	if err != nil {
		return Marker{}, eris.Wrapf(err, "cbs: accident %d", id)
	}

	settlement := codes["yishuv_symbol"]
	street1 := lk.Streets.StreetName(settlement, codes["street1"])
	street2 := lk.Streets.StreetName(settlement, codes["street2"])
	city := lk.Cities[settlement]

	m := Marker{
		ID:            id,
		ProviderAndID: pid,
		ProviderCode:  provider,
		Title:         markerTitle,
		Address:       Address(street1, codes["house_number"], city),
		Created:       created,
		KMRaw:         strings.TrimSpace(t.Get(row, ColKM)),
		Street1Hebrew: street1,
		Street2Hebrew: street2,
		YishuvName:    city,
		Year:          year,
		Month:         month,
		Day:           day,
		Hour:          created.Hour(),
		Minute:        created.Minute(),
		Codes:         codes,
	}

	x, y := parseFloat(t.Get(row, ColX)), parseFloat(t.Get(row, ColY))
	if x != nil && y != nil {
		lng, lat := geo.ITMToWGS84(*x, *y)
		m.X, m.Y = x, y
		m.Latitude, m.Longitude = &lat, &lng
	}

	kmCode := parseCode(t.Get(row, ColKM))
	if kmCode != MissingCode {
		km := float64(kmCode) / 10
		m.KM = &km
	}
	m.Junction = JunctionText(lk.Roads, codes["road1"], codes["road2"], kmCode,
		kmCode != MissingCode, codes["non_urban_intersection"] != MissingCode)
	if m.Junction == "" && lk.Roads != nil {
		m.Junction = lk.Roads.NonUrbanName(codes["non_urban_intersection"])
	}
	m.UrbanJunction = lk.UrbanJunctions.Name(settlement, codes["urban_intersection"])

	desc, err := describe(codes, lk.Dictionary, street1, street2)
	if err != nil {
		return Marker{}, eris.Wrapf(err, "cbs: accident %d", id)
	}
	m.Description = desc

	return m, nil
}

// describe renders the localized labels of a marker's coded fields as JSON.
func describe(codes map[string]int, dict Dictionary, street1, street2 string) (string, error) {
	extra := make(map[string]string)
	for _, f := range markerFields {
		if f.Table == 0 {
			continue
		}
		if label := dict.Label(f.Table, codes[f.DB]); label != "" {
			extra[f.DB] = label
		}
	}
	if street1 != "" {
		extra["street1"] = street1
	}
	if street2 != "" {
		extra["street2"] = street2
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return "", eris.Wrap(err, "marshal description")
	}
	return string(data), nil
}

// TransformInvolved maps one InvData.csv row. ok is false for rows without
// an accident id or an involved id.
func TransformInvolved(t *fetcher.Table, row []string, provider, year int) (Involved, bool, error) {
	accidentID, ok := parseID(t.Get(row, ColAccidentID))
	if !ok {
		return Involved{}, false, nil
	}
	if parseCode(t.Get(row, ColInvolvedID)) == MissingCode {
		return Involved{}, false, nil
	}
	pid, err := ProviderAndID(provider, accidentID)
	if err != nil {
		return Involved{}, false, err
	}
	return Involved{
		ProviderAndID: pid,
		ProviderCode:  provider,
		AccidentID:    accidentID,
		AccidentYear:  year,
		AccidentMonth: parseCode(t.Get(row, ColMonth)),
		Codes:         readCodes(t, row, involvedFields),
	}, true, nil
}

// TransformVehicle maps one VehData.csv row. ok is false for rows without an
// accident id.
func TransformVehicle(t *fetcher.Table, row []string, provider, year int) (Vehicle, bool, error) {
	accidentID, ok := parseID(t.Get(row, ColAccidentID))
	if !ok {
		return Vehicle{}, false, nil
	}
	pid, err := ProviderAndID(provider, accidentID)
	if err != nil {
		return Vehicle{}, false, err
	}
	return Vehicle{
		ProviderAndID: pid,
		ProviderCode:  provider,
		AccidentID:    accidentID,
		AccidentYear:  year,
		AccidentMonth: parseCode(t.Get(row, ColMonth)),
		Codes:         readCodes(t, row, vehicleFields),
	}, true, nil
}

// linkChildren keeps the involved and vehicle rows whose accident is among
// markers, copying the accident's year and, when missing, its month. Returns
// the kept rows and the number dropped.
func linkChildren(markers []Marker, involved []Involved, vehicles []Vehicle) ([]Involved, []Vehicle, int) {
	byID := make(map[int64]Marker, len(markers))
	for _, m := range markers {
		byID[m.ID] = m
	}
	dropped := 0

	keptInv := involved[:0]
	for _, v := range involved {
		m, ok := byID[v.AccidentID]
		if !ok {
			dropped++
			continue
		}
		v.AccidentYear = m.Year
		if v.AccidentMonth == MissingCode {
			v.AccidentMonth = m.Month
		}
		keptInv = append(keptInv, v)
	}

	keptVeh := vehicles[:0]
	for _, v := range vehicles {
		m, ok := byID[v.AccidentID]
		if !ok {
			dropped++
			continue
		}
		v.AccidentYear = m.Year
		if v.AccidentMonth == MissingCode {
			v.AccidentMonth = m.Month
		}
		keptVeh = append(keptVeh, v)
	}
	return keptInv, keptVeh, dropped
}

// dedupeMarkers keeps the first marker of each id. Returns the kept markers
// and the number dropped.
func dedupeMarkers(markers []Marker) ([]Marker, int) {
	seen := make(map[int64]bool, len(markers))
	kept := markers[:0]
	for _, m := range markers {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		kept = append(kept, m)
	}
	return kept, len(markers) - len(kept)
}

// MarkerColumns are the markers table columns written by Marker.Row.
var MarkerColumns = append([]string{
	"id", "provider_and_id", "provider_code", "file_type_police", "title", "description", "address",
	"latitude", "longitude", "x", "y", "created", "km", "km_raw", "street1_hebrew", "street2_hebrew",
	"urban_intersection_hebrew", "non_urban_intersection_hebrew", "yishuv_name",
	"accident_year", "accident_month", "accident_day", "accident_hour", "accident_minute",
}, dbColumns(markerFields)...)

// Row returns the values for MarkerColumns.
func (m Marker) Row() []any {
	row := []any{
		m.ID, m.ProviderAndID, m.ProviderCode, m.ProviderCode, m.Title, m.Description, m.Address,
		m.Latitude, m.Longitude, m.X, m.Y, m.Created, m.KM, m.KMRaw, m.Street1Hebrew, m.Street2Hebrew,
		m.UrbanJunction, m.Junction, m.YishuvName,
		m.Year, m.Month, m.Day, m.Hour, m.Minute,
	}
	return appendCodes(row, m.Codes, markerFields)
}

// InvolvedColumns are the involved table columns written by Involved.Row.
var InvolvedColumns = append([]string{
	"provider_and_id", "provider_code", "file_type_police", "accident_id", "accident_year", "accident_month",
}, dbColumns(involvedFields)...)

// Row returns the values for InvolvedColumns.
func (v Involved) Row() []any {
	row := []any{v.ProviderAndID, v.ProviderCode, v.ProviderCode, v.AccidentID, v.AccidentYear, v.AccidentMonth}
	return appendCodes(row, v.Codes, involvedFields)
}

// VehicleColumns are the vehicles table columns written by Vehicle.Row.
var VehicleColumns = append([]string{
	"provider_and_id", "provider_code", "file_type_police", "accident_id", "accident_year", "accident_month",
}, dbColumns(vehicleFields)...)

// Row returns the values for VehicleColumns.
func (v Vehicle) Row() []any {
	row := []any{v.ProviderAndID, v.ProviderCode, v.ProviderCode, v.AccidentID, v.AccidentYear, v.AccidentMonth}
	return appendCodes(row, v.Codes, vehicleFields)
}

func appendCodes(row []any, codes map[string]int, fields []codedField) []any {
	for _, f := range fields {
		code, ok := codes[f.DB]
		if !ok {
			code = MissingCode
		}
		row = append(row, code)
	}
	return row
}
