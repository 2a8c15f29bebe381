package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/data-for-change/anyway-sub000/internal/cbs"
	"github.com/data-for-change/anyway-sub000/internal/fetcher"
)

var cbsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download and unpack a CBS archive",
	Long:  "Downloads the CBS zip archive over HTTP(S) or FTP, extracts it into the CBS files root and optionally imports it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		url, _ := cmd.Flags().GetString("url")
		dest, _ := cmd.Flags().GetString("dest")
		doImport, _ := cmd.Flags().GetBool("import")
		if url == "" {
			url = cfg.CBS.SourceURL
		}
		if url == "" {
			return eris.New("cbs fetch: no source url (set --url or cbs.source_url)")
		}
		if dest == "" {
			dest = cfg.CBS.Path
		}

		timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second
		f, err := fetcher.ForURL(url,
			fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
				UserAgent:    cfg.Fetch.UserAgent,
				Timeout:      timeout,
				MaxRetries:   cfg.Fetch.MaxRetries,
				RateLimiters: fetcher.DefaultRateLimiters(),
			}),
			fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout}),
		)
		if err != nil {
			return err
		}

		files, err := cbs.Fetch(ctx, f, url, cfg.CBS.TempDir, dest)
		if err != nil {
			return err
		}
		zap.L().Info("cbs archive extracted", zap.String("dest", dest), zap.Int("files", len(files)))

		if !doImport {
			return nil
		}
		opts, err := cbsImportOptions(cmd)
		if err != nil {
			return err
		}
		opts.Path = dest
		return runCBSImport(ctx, opts)
	},
}

func init() {
	f := cbsFetchCmd.Flags()
	f.String("url", "", "archive URL, http(s):// or ftp:// (default from config)")
	f.String("dest", "", "extraction directory (default cbs.path)")
	f.Bool("import", false, "import the extracted files")
	f.Int("load-start-year", 0, "first year to import (default from config)")
	f.String("delete-start-date", "", "delete CBS rows created on or after this date (YYYY-MM-DD) before importing")
	f.Int("batch-size", 0, "rows per insert chunk (default from config)")
	f.Bool("skip-post-process", false, "skip geometry fill and Hebrew table rebuild")

	cbsCmd.AddCommand(cbsFetchCmd)
}
