package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/data-for-change/anyway-sub000/internal/db"
	"github.com/data-for-change/anyway-sub000/internal/location"
	"github.com/data-for-change/anyway-sub000/internal/markers"
	"github.com/data-for-change/anyway-sub000/internal/roads"
)

var locationCmd = &cobra.Command{
	Use:   "location",
	Short: "Location extraction for news items",
}

var locationExtractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract and resolve the location of news items",
	Long: `Reads news items ({"title","description"} JSON lines from --input, or a single item from
--title/--description), geocodes the location phrase and matches it against nearby accident markers.
Writes one JSON result per item to stdout, in input order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		input, _ := cmd.Flags().GetString("input")
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		workers, _ := cmd.Flags().GetInt("workers")

		var items []location.Item
		switch {
		case input != "":
			f, err := os.Open(input)
			if err != nil {
				return eris.Wrapf(err, "location extract: open %s", input)
			}
			defer f.Close() //nolint:errcheck
			if items, err = readItems(f); err != nil {
				return err
			}
		case title != "" || description != "":
			items = []location.Item{{Title: title, Description: description}}
		default:
			return eris.New("location extract: provide --input or --title/--description")
		}

		pool, err := dbPool(ctx, "location")
		if err != nil {
			return err
		}
		defer pool.Close()

		ex, cleanup, err := newExtractor(ctx, pool)
		if err != nil {
			return err
		}
		defer cleanup()

		results := extractAll(ctx, ex, items, workers)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetEscapeHTML(false)
		for _, r := range results {
			if err := enc.Encode(r); err != nil {
				return eris.Wrap(err, "location extract: write result")
			}
		}
		return ctx.Err()
	},
}

func init() {
	f := locationExtractCmd.Flags()
	f.String("input", "", "JSON lines file of news items")
	f.String("title", "", "news item title")
	f.String("description", "", "news item description")
	f.Int("workers", 4, "items processed concurrently")
	locationCmd.AddCommand(locationExtractCmd)
	rootCmd.AddCommand(locationCmd)
}

// extractResult is one output line of location extract.
type extractResult struct {
	Item     location.Item      `json:"item"`
	Location *location.Location `json:"location,omitempty"`
	Error    string             `json:"error,omitempty"`
}

type itemExtractor interface {
	Extract(ctx context.Context, item location.Item) (*location.Location, error)
}

// extractAll runs ex over items with up to workers in flight. Per-item
// failures are reported in the result, not returned.
func extractAll(ctx context.Context, ex itemExtractor, items []location.Item, workers int) []extractResult {
	if workers < 1 {
		workers = 1
	}
	results := make([]extractResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		g.Go(func() error {
			results[i].Item = item
			loc, err := ex.Extract(gctx, item)
			if err != nil {
				results[i].Error = err.Error()
				zap.L().Debug("location extract failed", zap.Int("item", i), zap.Error(err))
				return nil
			}
			results[i].Location = loc
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// readItems parses JSON lines, skipping blank lines.
func readItems(r io.Reader) ([]location.Item, error) {
	var items []location.Item
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var it location.Item
		if err := json.Unmarshal(b, &it); err != nil {
			return nil, eris.Wrapf(err, "location extract: line %d", line)
		}
		items = append(items, it)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "location extract: read input")
	}
	return items, nil
}

// newExtractor wires the Google geocoder, its sqlite cache and the marker
// matcher with the road indexes loaded from the database.
func newExtractor(ctx context.Context, pool db.Pool) (*location.Extractor, func(), error) {
	cleanup := func() {}
	opts := []location.GeocoderOption{
		location.WithRateLimit(cfg.Geocode.RatePerSec),
		location.WithLanguage(cfg.Geocode.Language, cfg.Geocode.Region),
	}
	if cfg.Geocode.BaseURL != "" {
		opts = append(opts, location.WithBaseURL(cfg.Geocode.BaseURL))
	}
	if cfg.Geocode.CachePath != "" {
		cache, err := location.OpenCache(ctx, cfg.Geocode.CachePath, time.Duration(cfg.Geocode.CacheTTLHours)*time.Hour)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = func() { _ = cache.Close() }
		opts = append(opts, location.WithCache(cache))
	}
	geocoder := location.NewGoogleGeocoder(cfg.Geocode.GoogleKey, opts...)

	segs, err := roads.QuerySegments(ctx, pool)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	junctions, err := roads.QueryJunctions(ctx, pool)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	zap.L().Debug("road indexes loaded", zap.Int("segments", len(segs)), zap.Int("junctions", len(junctions)))

	matcher := location.NewMatcher(markers.NewStore(pool),
		roads.NewSegmentIndex(segs),
		roads.NewJunctionIndex(junctions),
		location.MatcherOptions{
			Precision:         cfg.Location.GeohashPrecision,
			MaxDistanceMeters: cfg.Location.MaxDistanceMeters,
			CandidateRadiusM:  cfg.Location.CandidateRadiusM,
			CandidateLimit:    cfg.Location.CandidateLimit,
		},
	)
	return location.NewExtractor(geocoder, matcher), cleanup, nil
}
