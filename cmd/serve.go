package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/data-for-change/anyway-sub000/internal/api"
	"github.com/data-for-change/anyway-sub000/internal/markers"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the accident map API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := dbPool(ctx, "serve")
		if err != nil {
			return err
		}
		defer pool.Close()

		var extractor api.LocationExtractor
		if cfg.Geocode.GoogleKey != "" {
			ex, cleanup, err := newExtractor(ctx, pool)
			if err != nil {
				return err
			}
			defer cleanup()
			extractor = ex
		} else {
			zap.L().Warn("geocode.google_api_key not set, location endpoint disabled")
		}

		server := api.NewServer(markers.NewStore(pool), extractor, pool, api.Options{
			CORSOrigins: cfg.Server.CORSOrigins,
			RadiusPx:    cfg.Cluster.RadiusPx,
			Workers:     cfg.Cluster.Workers,
			Cache:       api.NewResponseCache(cfg.Server.CacheEntries, time.Duration(cfg.Server.CacheTTLSecs)*time.Second),
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           server.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
