package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/data-for-change/anyway-sub000/internal/cluster"
	"github.com/data-for-change/anyway-sub000/internal/geo"
	"github.com/data-for-change/anyway-sub000/internal/markers"
)

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "Print marker clusters for a bounding box",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		bbox, err := bboxFlags(cmd)
		if err != nil {
			return err
		}
		zoom, _ := cmd.Flags().GetInt("zoom")
		if zoom < 0 || zoom > 22 {
			return eris.Errorf("clusters: zoom must be between 0 and 22, got %d", zoom)
		}
		radius, _ := cmd.Flags().GetInt("radius")
		if radius == 0 {
			radius = cfg.Cluster.RadiusPx
		}

		pool, err := dbPool(ctx, "serve")
		if err != nil {
			return err
		}
		defer pool.Close()

		clusters, err := cluster.Retrieve(ctx, markers.NewStore(pool), markers.Query{BBox: bbox}, cluster.Options{
			Zoom:     zoom,
			RadiusPx: radius,
			Workers:  cfg.Cluster.Workers,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(clusters)
	},
}

func init() {
	f := clustersCmd.Flags()
	f.Float64("ne-lat", 0, "north-east latitude")
	f.Float64("ne-lng", 0, "north-east longitude")
	f.Float64("sw-lat", 0, "south-west latitude")
	f.Float64("sw-lng", 0, "south-west longitude")
	f.Int("zoom", 10, "map zoom level")
	f.Int("radius", 0, "cluster radius in pixels (default from config)")
	for _, name := range []string{"ne-lat", "ne-lng", "sw-lat", "sw-lng"} {
		_ = clustersCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(clustersCmd)
}

// bboxFlags reads the corner flags into a bounding box.
func bboxFlags(cmd *cobra.Command) (geo.BBox, error) {
	f := cmd.Flags()
	var b geo.BBox
	b.NELat, _ = f.GetFloat64("ne-lat")
	b.NELng, _ = f.GetFloat64("ne-lng")
	b.SWLat, _ = f.GetFloat64("sw-lat")
	b.SWLng, _ = f.GetFloat64("sw-lng")
	if !b.Valid() {
		return b, eris.New("clusters: invalid bounding box")
	}
	return b, nil
}
