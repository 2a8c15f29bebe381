package cbs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/data-for-change/anyway-sub000/internal/fetcher"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// writeCP1255 writes lines as a windows-1255 encoded file.
func writeCP1255(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	encoded, err := charmap.Windows1255.NewEncoder().String(strings.Join(lines, "\n") + "\n")
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(path, []byte(encoded), 0o644))
	return path
}

func table(t *testing.T, lines ...string) *fetcher.Table {
	t.Helper()
	tbl, err := fetcher.ParseCSV(strings.NewReader(strings.Join(lines, "\n")+"\n"), fetcher.CSVOptions{UpperHeader: true, TrimSpace: true})
	require.NoError(t, err)
	return tbl
}

const accHeader = "pk_teuna_fikt,sug_tik,shnat_teuna,hodesh_teuna,yom_be_hodesh,shaa,x,y,km,kvish1,kvish2,semel_yishuv,rehov1,rehov2,bayit,zomet_ironi,zomet_lo_ironi,humrat_teuna,sug_teuna"

// writeBatch writes a complete, valid batch directory with two accidents.
func writeBatch(t *testing.T, dir, prefix string, provider string) {
	t.Helper()
	writeCP1255(t, dir, prefix+"AccData.csv",
		accHeader,
		"2020000001,"+provider+",2020,3,15,33,178000,665000,,,,5000,101,102,12,,,2,1",
		"2020000002,"+provider+",2020,3,16,1,,,125,90,,,,,,,,3,5",
	)
	writeCP1255(t, dir, prefix+"InvData.csv",
		"pk_teuna_fikt,mispar_meorav,sug_meorav,min,humrat_pgia",
		"2020000001,1,1,1,3",
		"2020000001,2,2,2,2",
		",3,1,1,1",
		"2020000002,,1,1,1",
	)
	writeCP1255(t, dir, prefix+"VehData.csv",
		"pk_teuna_fikt,mispar_rehev,sug_rehev_lms,nefah",
		"2020000001,1,1,3",
		"2020000002,1,2,4",
	)
	writeCP1255(t, dir, prefix+"DicStreets.csv",
		"semel_yishuv,semel_rehov,shem_rehov",
		"5000,101,דיזנגוף",
		"5000,102,אבן גבירול",
		"5000,103,",
	)
	writeCP1255(t, dir, prefix+"IntersectNonUrban.csv",
		"zomet,kvish1,kvish2,km,shem_zomet",
		"1,90,1,100,צומת אלמוג",
		"2,90,25,140,צומת ערבה",
	)
	writeCP1255(t, dir, "Dictionary.csv",
		"ms_tavla,kod,teur",
		"4,2,קשה",
		"4,3,קלה",
		"5,1,פגיעה בהולך רגל",
		"97,1,ignored",
	)
}
