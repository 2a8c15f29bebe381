package cbs

// CBS flat-file column names, upper-cased as read.
const (
	ColAccidentID      = "PK_TEUNA_FIKT"
	ColFileType        = "SUG_TIK"
	ColX               = "X"
	ColY               = "Y"
	ColKM              = "KM"
	ColRoad1           = "KVISH1"
	ColRoad2           = "KVISH2"
	ColYishuvSymbol    = "SEMEL_YISHUV"
	ColStreet1         = "REHOV1"
	ColStreet2         = "REHOV2"
	ColHome            = "BAYIT"
	ColUrbanJunction   = "ZOMET_IRONI"
	ColNonUrbanJunc    = "ZOMET_LO_IRONI"
	ColYear            = "SHNAT_TEUNA"
	ColMonth           = "HODESH_TEUNA"
	ColDay             = "YOM_BE_HODESH"
	ColHour            = "SHAA"
	ColInvolvedID      = "MISPAR_MEORAV"
	ColCarID           = "MISPAR_REHEV"
	ColStreetSign      = "SEMEL_REHOV"
	ColStreetName      = "SHEM_REHOV"
	ColJunction        = "ZOMET"
	ColJunctionName    = "SHEM_ZOMET"
	ColYishuvName      = "SHEM_YISHUV"
	ColDictTable       = "MS_TAVLA"
	ColDictCode        = "KOD"
	ColDictLabel       = "TEUR"
	ColUrbanYishuv     = "YISHUV"
	ColUrbanJuncStreet = "REHOV"
)

// codedField maps a CBS column to a database column. Table is the
// Dictionary.csv table number holding its labels, or 0 for plain numbers.
type codedField struct {
	Column string
	DB     string
	Table  int
}

var markerFields = []codedField{
	{"SUG_TEUNA", "accident_type", 5},
	{"HUMRAT_TEUNA", "accident_severity", 4},
	{"STATUS_IGUN", "location_accuracy", 205},
	{"SUG_DEREH", "road_type", 3},
	{"ZURAT_DEREH", "road_shape", 9},
	{"SUG_YOM", "day_type", 37},
	{"YEHIDA", "police_unit", 2},
	{"HAD_MASLUL", "one_lane", 10},
	{"RAV_MASLUL", "multi_lane", 11},
	{"MEHIRUT_MUTERET", "speed_limit", 12},
	{"TKINUT", "road_intactness", 13},
	{"ROHAV", "road_width", 14},
	{"SIMUN_TIMRUR", "road_sign", 15},
	{"TEURA", "road_light", 16},
	{"BAKARA", "road_control", 17},
	{"MEZEG_AVIR", "weather", 18},
	{"PNE_KVISH", "road_surface", 19},
	{"SUG_EZEM", "road_object", 21},
	{"MERHAK_EZEM", "object_distance", 22},
	{"LO_HAZA", "didnt_cross", 23},
	{"OFEN_HAZIYA", "cross_mode", 24},
	{"MEKOM_HAZIYA", "cross_location", 25},
	{"KIVUN_HAZIYA", "cross_direction", 26},
	{"THUM_GEOGRAFI", "geo_area", 68},
	{"YOM_LAYLA", "day_night", 38},
	{"YOM_BASHAVUA", "day_in_week", 39},
	{"RAMZOR", "traffic_light", 40},
	{"MAHOZ", "region", 77},
	{"NAFA", "district", 79},
	{"EZOR_TIVI", "natural_area", 80},
	{"MAAMAD_MINIZIPALI", "municipal_status", 78},
	{"ZURAT_ISHUV", "yishuv_shape", 81},
	{ColHour, "accident_hour_raw", 93},
	{ColRoad1, "road1", 0},
	{ColRoad2, "road2", 0},
	{ColYishuvSymbol, "yishuv_symbol", 0},
	{ColStreet1, "street1", 0},
	{ColStreet2, "street2", 0},
	{ColHome, "house_number", 0},
	{ColUrbanJunction, "urban_intersection", 0},
	{ColNonUrbanJunc, "non_urban_intersection", 0},
}

var involvedFields = []codedField{
	{"SUG_MEORAV", "involved_type", 31},
	{"SHNAT_HOZAA", "license_acquiring_date", 0},
	{"KVUZAT_GIL", "age_group", 92},
	{"MIN", "sex", 67},
	{"SUG_REHEV_NASA_LMS", "vehicle_type", 45},
	{"EMZAE_BETIHUT", "safety_measures", 34},
	{"HUMRAT_PGIA", "injury_severity", 35},
	{"SUG_NIFGA_LMS", "injured_type", 50},
	{"PEULAT_NIFGA_LMS", "injured_position", 52},
	{"KVUZA_OHLUSIYA_LMS", "population_type", 66},
	{"SEMEL_YISHUV_MEGURIM", "involve_yishuv_symbol", 0},
	{"MAHOZ_MEGURIM", "home_region", 77},
	{"NAFA_MEGURIM", "home_district", 79},
	{"EZOR_TIVI_MEGURIM", "home_natural_area", 80},
	{"MAAMAD_MINIZIPALI_MEGURIM", "home_municipal_status", 78},
	{"ZURAT_ISHUV_MEGURIM", "home_yishuv_shape", 81},
	{"PAZUA_USHPAZ", "hospital_time", 200},
	{"SUG_TIPUL", "medical_type", 201},
	{"YAAD_SHIHRUR", "release_dest", 202},
	{"SHIMUSH_BE_AMZAE_BETIHUT", "safety_measures_use", 203},
	{"PTIRA_MEUHERET", "late_deceased", 204},
	{ColCarID, "car_id", 0},
	{ColInvolvedID, "involve_id", 0},
}

var vehicleFields = []codedField{
	{"NEFAH", "engine_volume", 111},
	{"SHNAT_YITZUR", "manufacturing_year", 0},
	{"KIVUN_NESIA", "driving_directions", 28},
	{"MATZAV_REHEV", "vehicle_status", 30},
	{"SHIYUH_REHEV_LMS", "vehicle_attribution", 43},
	{"MEKOMOT_YESHIVA_LMS", "seats", 0},
	{"MISHKAL_KOLEL_LMS", "total_weight", 112},
	{ColCarID, "car_id", 0},
	{"SUG_REHEV_LMS", "vehicle_type", 45},
	{"NEZEK", "vehicle_damage", 229},
}

func dbColumns(fields []codedField) []string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.DB
	}
	return cols
}
