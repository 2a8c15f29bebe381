package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/data-for-change/anyway-sub000/internal/roads"
)

var roadsCmd = &cobra.Command{
	Use:   "roads",
	Short: "Road geography: segments and suburban junctions",
}

var roadsSegmentsCmd = &cobra.Command{
	Use:   "segments",
	Short: "Load road segments from XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			file = cfg.Roads.SegmentsFile
		}

		segs, err := roads.ReadSegments(file)
		if err != nil {
			return err
		}

		pool, err := dbPool(ctx, "import")
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := roads.UpsertSegments(ctx, pool, segs)
		if err != nil {
			return err
		}
		zap.L().Info("road segments loaded", zap.String("file", file), zap.Int("read", len(segs)), zap.Int64("upserted", n))
		return nil
	},
}

var roadsJunctionsCmd = &cobra.Command{
	Use:   "junctions",
	Short: "Load suburban junctions from a shapefile",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			file = cfg.Roads.JunctionsFile
		}

		js, err := roads.ReadJunctions(file)
		if err != nil {
			return err
		}

		pool, err := dbPool(ctx, "import")
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := roads.UpsertJunctions(ctx, pool, js)
		if err != nil {
			return err
		}
		zap.L().Info("suburban junctions loaded", zap.String("file", file), zap.Int("read", len(js)), zap.Int64("upserted", n))
		return nil
	},
}

func init() {
	roadsSegmentsCmd.Flags().String("file", "", "segments workbook (default from config)")
	roadsJunctionsCmd.Flags().String("file", "", "junctions shapefile (default from config)")
	roadsCmd.AddCommand(roadsSegmentsCmd, roadsJunctionsCmd)
	rootCmd.AddCommand(roadsCmd)
}
