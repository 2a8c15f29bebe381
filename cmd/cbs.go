package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/data-for-change/anyway-sub000/internal/cbs"
	"github.com/data-for-change/anyway-sub000/internal/importlog"
)

var cbsCmd = &cobra.Command{
	Use:   "cbs",
	Short: "Central Bureau of Statistics accident data",
	Long:  "Fetches, imports and reports on the CBS accident files (markers, involved persons and vehicles).",
}

var cbsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import CBS accident files into PostGIS",
	Long: `Walks the CBS directory tree (accidents_type_<provider>/<batch>), parses each batch
and bulk loads markers, involved persons and vehicles. A failing batch is logged and skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts, err := cbsImportOptions(cmd)
		if err != nil {
			return err
		}
		return runCBSImport(ctx, opts)
	},
}

func init() {
	f := cbsImportCmd.Flags()
	f.String("path", "", "CBS files root (default from config)")
	f.Int("load-start-year", 0, "first year to import (default from config)")
	f.String("delete-start-date", "", "delete CBS rows created on or after this date (YYYY-MM-DD) before importing")
	f.Int("batch-size", 0, "rows per insert chunk (default from config)")
	f.Bool("skip-post-process", false, "skip geometry fill and Hebrew table rebuild")

	cbsCmd.AddCommand(cbsImportCmd)
	rootCmd.AddCommand(cbsCmd)
}

// cbsImportOptions merges the import flags of cmd over the config.
func cbsImportOptions(cmd *cobra.Command) (cbs.Options, error) {
	path, _ := cmd.Flags().GetString("path")
	startYear, _ := cmd.Flags().GetInt("load-start-year")
	deleteFrom, _ := cmd.Flags().GetString("delete-start-date")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	skip, _ := cmd.Flags().GetBool("skip-post-process")

	if path == "" {
		path = cfg.CBS.Path
	}
	if startYear == 0 {
		startYear = cfg.CBS.LoadStartYear
	}
	if batchSize > 0 {
		cfg.CBS.BatchSize = batchSize
	}

	opts := cbs.Options{Path: path, LoadStartYear: startYear, SkipPostProcess: skip}
	if deleteFrom != "" {
		t, err := time.Parse("2006-01-02", deleteFrom)
		if err != nil {
			return opts, eris.Wrapf(err, "cbs import: invalid --delete-start-date %q", deleteFrom)
		}
		opts.DeleteStartDate = &t
	}
	return opts, nil
}

func runCBSImport(ctx context.Context, opts cbs.Options) error {
	pool, err := dbPool(ctx, "import")
	if err != nil {
		return err
	}
	defer pool.Close()

	tables, err := cbs.LoadDictionaryTables(cfg.CBS.TablesFile)
	if err != nil {
		return err
	}
	cities, err := cbs.LoadCities(ctx, cfg.CBS.CitiesFile)
	if err != nil {
		return err
	}

	im := cbs.NewImporter(
		cbs.NewLoader(pool, cfg.CBS.BatchSize),
		cbs.NewDictionaryLoader(pool, tables),
		importlog.New(pool),
		cities,
	)

	start := time.Now()
	res, err := im.Run(ctx, opts)
	if err != nil {
		return eris.Wrap(err, "cbs import")
	}

	zap.L().Info("cbs import complete",
		zap.Int("batches", res.Batches),
		zap.Int64("markers", res.Markers),
		zap.Int64("involved", res.Involved),
		zap.Int64("vehicles", res.Vehicles),
		zap.Int("duplicates", res.Duplicates),
		zap.Int64("deleted", res.Deleted),
		zap.Int("failed_rows", res.FailedRows),
		zap.Ints("years", res.Years),
		zap.Duration("elapsed", time.Since(start)),
	)
	if len(res.FailedBatches) > 0 {
		return eris.Errorf("cbs import: %d batch(es) failed: %v", len(res.FailedBatches), res.FailedBatches)
	}
	return nil
}
