package cbs

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FileKind is one of the CSV files of a batch.
type FileKind string

// File kinds, named by their canonical file name suffix.
const (
	FileAccidents         FileKind = "AccData.csv"
	FileInvolved          FileKind = "InvData.csv"
	FileVehicles          FileKind = "VehData.csv"
	FileStreets           FileKind = "DicStreets.csv"
	FileNonUrbanJunctions FileKind = "IntersectNonUrban.csv"
	FileUrbanJunctions    FileKind = "IntersectUrban.csv"
	FileDictionary        FileKind = "Dictionary.csv"
)

// RequiredFiles must be present in every batch.
var RequiredFiles = []FileKind{
	FileAccidents, FileInvolved, FileVehicles, FileStreets, FileNonUrbanJunctions, FileDictionary,
}

// ErrFileNotFound is returned when a batch lacks a file kind.
var ErrFileNotFound = eris.New("cbs: file not found")

// ErrFileAmbiguous is returned when more than one file matches a kind.
var ErrFileAmbiguous = eris.New("cbs: ambiguous file")

// Batch is one directory of CBS files for a single year and provider.
type Batch struct {
	Dir          string
	Name         string
	ProviderCode int
	Year         int
}

// Key identifies the batch in the import log.
func (b Batch) Key() string {
	return filepath.Base(filepath.Dir(b.Dir)) + "/" + b.Name
}

var (
	providerDirRe = regexp.MustCompile(`(?i)\Aaccidents_type_(\d+)`)
	providerHRe   = regexp.MustCompile(`\AH(\d)`)
	batchDirRe    = regexp.MustCompile(`\AH\d{4}(\d)`)
)

// ParseProviderCode derives the provider from the provider directory, falling
// back to the batch directory. When both yield a code the provider directory
// wins.
func ParseProviderCode(providerDir, batchDir string) (int, error) {
	fromProvider := 0
	if m := providerDirRe.FindStringSubmatch(providerDir); m != nil {
		fromProvider, _ = strconv.Atoi(m[1])
	} else if m := providerHRe.FindStringSubmatch(providerDir); m != nil {
		fromProvider, _ = strconv.Atoi(m[1])
	}

	fromBatch := 0
	if m := batchDirRe.FindStringSubmatch(batchDir); m != nil {
		fromBatch, _ = strconv.Atoi(m[1])
	}

	switch {
	case fromProvider != 0:
		if fromBatch != 0 && fromBatch != fromProvider {
			zap.L().Warn("cbs: provider directory and batch directory disagree",
				zap.String("provider_dir", providerDir),
				zap.String("batch_dir", batchDir),
				zap.Int("using", fromProvider),
			)
		}
		return fromProvider, nil
	case fromBatch != 0:
		return fromBatch, nil
	default:
		return 0, eris.Errorf("cbs: no provider code in %q or %q", providerDir, batchDir)
	}
}

// ParseYear reads the year from a batch directory name: characters 1..4 when
// it starts with H, else the first four.
func ParseYear(batchDir string) (int, error) {
	s := batchDir
	if strings.HasPrefix(s, "H") {
		s = s[1:]
	}
	if len(s) < 4 {
		return 0, eris.Errorf("cbs: no year in %q", batchDir)
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0, eris.Wrapf(err, "cbs: no year in %q", batchDir)
	}
	return year, nil
}

// DiscoverBatches walks root/<provider dir>/<batch dir> and returns the batches
// from loadStartYear on, sorted by path.
func DiscoverBatches(root string, loadStartYear int) ([]Batch, error) {
	log := zap.L().With(zap.String("component", "cbs.discover"))

	providers, err := os.ReadDir(root)
	if err != nil {
		return nil, eris.Wrapf(err, "cbs: read %s", root)
	}

	var batches []Batch
	for _, p := range providers {
		if !p.IsDir() {
			continue
		}
		providerPath := filepath.Join(root, p.Name())
		entries, err := os.ReadDir(providerPath)
		if err != nil {
			return nil, eris.Wrapf(err, "cbs: read %s", providerPath)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			year, err := ParseYear(e.Name())
			if err != nil {
				log.Warn("skipping directory without year", zap.String("dir", e.Name()))
				continue
			}
			if year < loadStartYear {
				log.Debug("skipping batch before start year", zap.String("dir", e.Name()), zap.Int("year", year))
				continue
			}
			provider, err := ParseProviderCode(p.Name(), e.Name())
			if err != nil {
				log.Warn("skipping directory without provider", zap.String("dir", e.Name()), zap.Error(err))
				continue
			}
			batches = append(batches, Batch{
				Dir:          filepath.Join(providerPath, e.Name()),
				Name:         e.Name(),
				ProviderCode: provider,
				Year:         year,
			})
		}
	}

	sort.Slice(batches, func(i, j int) bool { return batches[i].Dir < batches[j].Dir })
	return batches, nil
}

// FindFile returns the single file in dir whose name contains kind,
// case-insensitively.
func FindFile(dir string, kind FileKind) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrapf(err, "cbs: read %s", dir)
	}

	needle := strings.ToLower(string(kind))
	var matches []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.Contains(strings.ToLower(e.Name()), needle) {
			matches = append(matches, filepath.Join(dir, e.Name()))
		}
	}

	switch len(matches) {
	case 0:
		return "", eris.Wrapf(ErrFileNotFound, "%s in %s", kind, dir)
	case 1:
		return matches[0], nil
	default:
		return "", eris.Wrapf(ErrFileAmbiguous, "%s in %s: %s", kind, dir, strings.Join(matches, ", "))
	}
}
