// Package api serves the read-only map endpoints: marker clusters, marker
// GeoJSON, vector tiles and location extraction for news items.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/data-for-change/anyway-sub000/internal/db"
	"github.com/data-for-change/anyway-sub000/internal/location"
	"github.com/data-for-change/anyway-sub000/internal/markers"
)

// MarkerSource returns markers inside a bounding box.
type MarkerSource interface {
	BoundingBox(ctx context.Context, q markers.Query) ([]markers.Marker, error)
}

// LocationExtractor locates a news item.
type LocationExtractor interface {
	Extract(ctx context.Context, item location.Item) (*location.Location, error)
}

// Options configures a Server.
type Options struct {
	CORSOrigins []string
	RadiusPx    int
	Workers     int
	Cache       *ResponseCache
	Layers      map[string]LayerConfig
}

// Server holds the API dependencies. The extractor and tile pool are
// optional; their endpoints answer 503 without them.
type Server struct {
	markers   MarkerSource
	extractor LocationExtractor
	tiles     db.Pool
	opts      Options
}

// NewServer creates a Server.
func NewServer(src MarkerSource, extractor LocationExtractor, tiles db.Pool, opts Options) *Server {
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.Layers == nil {
		opts.Layers = DefaultLayers()
	}
	return &Server{markers: src, extractor: extractor, tiles: tiles, opts: opts}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/clusters", s.handleClusters)
		r.Get("/markers", s.handleMarkers)
		r.Post("/location", s.handleLocation)
		r.Get("/tiles/{layer}/{z}/{x}/{y}", s.handleTile)
		r.Get("/cache/stats", s.handleCacheStats)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
