package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/data-for-change/anyway-sub000/internal/rsa"
)

var rsaCmd = &cobra.Command{
	Use:   "rsa",
	Short: "Police RSA enforcement feed",
}

var rsaImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import the RSA workbook as markers",
	Long:  "Reads the RSA XLSX feed and upserts its violations into markers with provider code 5. Rows with unparsable coordinates are skipped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			file = cfg.RSA.File
		}

		pool, err := dbPool(ctx, "import")
		if err != nil {
			return err
		}
		defer pool.Close()

		res, err := rsa.Import(ctx, pool, file, cfg.CBS.BatchSize)
		if err != nil {
			return err
		}
		zap.L().Info("rsa import finished",
			zap.String("file", file),
			zap.Int("read", res.Read),
			zap.Int("skipped", res.Skipped),
			zap.Int64("upserted", res.Upserted),
		)
		return nil
	},
}

func init() {
	rsaImportCmd.Flags().String("file", "", "RSA workbook path (default from config)")
	rsaCmd.AddCommand(rsaImportCmd)
	rootCmd.AddCommand(rsaCmd)
}
