package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/data-for-change/anyway-sub000/internal/importlog"
)

var cbsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the import log",
	Long:  "Displays recent import runs with their batch, status, duration and row counts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		pool, err := dbPool(ctx, "import")
		if err != nil {
			return err
		}
		defer pool.Close()

		entries, err := importlog.New(pool).List(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "cbs status")
		}
		if len(entries) == 0 {
			zap.L().Info("no import runs found, run 'cbs import' first")
			return nil
		}

		formatImportLog(os.Stdout, entries)
		return nil
	},
}

func init() {
	cbsStatusCmd.Flags().Int("limit", 50, "number of runs to show")
	cbsCmd.AddCommand(cbsStatusCmd)
}

// formatImportLog writes a tabular representation of import runs to out.
func formatImportLog(out io.Writer, entries []importlog.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tBATCH\tSTATUS\tSTARTED\tDURATION\tROWS\tERROR")
	_, _ = fmt.Fprintln(w, "------\t-----\t------\t-------\t--------\t----\t-----")

	for _, e := range entries {
		dur := "-"
		if e.CompletedAt != nil {
			dur = e.CompletedAt.Sub(e.StartedAt).Round(time.Second).String()
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.Source,
			e.Batch,
			e.Status,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
			e.RowsImported,
			truncate(e.Error, 60),
		)
	}
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
