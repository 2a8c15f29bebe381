package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/data-for-change/anyway-sub000/internal/importlog"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply ETL schema migrations",
	Long:  "Applies pending SQL migrations to the etl schema (import log) in lexicographic order.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := dbPool(ctx, "import")
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := importlog.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "migrate")
		}

		zap.L().Info("all migrations applied successfully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
