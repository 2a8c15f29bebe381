package cbs

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/data-for-change/anyway-sub000/internal/fetcher"
)

// Fetch downloads a CBS zip archive from url and extracts it under dest.
// Returns the extracted file paths.
func Fetch(ctx context.Context, f fetcher.Fetcher, url, tempDir, dest string) ([]string, error) {
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "cbs: create temp dir")
	}

	name := path.Base(url)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if name == "" || name == "." || name == "/" {
		name = "cbs.zip"
	}
	archive := filepath.Join(tempDir, name)

	n, err := f.DownloadToFile(ctx, url, archive)
	if err != nil {
		return nil, eris.Wrapf(err, "cbs: download %s", url)
	}
	defer os.Remove(archive) //nolint:errcheck

	zap.L().Info("cbs archive downloaded", zap.String("url", url), zap.Int64("bytes", n))

	files, err := fetcher.ExtractZIP(archive, dest)
	if err != nil {
		return nil, eris.Wrapf(err, "cbs: extract %s", archive)
	}
	return files, nil
}
