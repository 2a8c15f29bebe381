package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/data-for-change/anyway-sub000/internal/cluster"
	"github.com/data-for-change/anyway-sub000/internal/geo"
	"github.com/data-for-change/anyway-sub000/internal/location"
)

const maxLocationBody = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mq, err := parseQuery(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	zoom, err := parseZoom(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := clustersKey(q)
	if s.serveCached(w, kindClusters, key) {
		return
	}

	clusters, err := cluster.Retrieve(r.Context(), s.markers, mq, cluster.Options{
		Zoom:     zoom,
		RadiusPx: s.opts.RadiusPx,
		Workers:  s.opts.Workers,
	})
	if err != nil {
		zap.L().Error("api: clusters failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cluster retrieval failed")
		return
	}
	if clusters == nil {
		clusters = []cluster.Cluster{}
	}

	data, err := json.Marshal(map[string]any{"clusters": clusters})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode failed")
		return
	}
	s.storeAndWrite(w, kindClusters, key, "application/json", data)
}

func (s *Server) handleMarkers(w http.ResponseWriter, r *http.Request) {
	mq, err := parseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ms, err := s.markers.BoundingBox(r.Context(), mq)
	if err != nil {
		zap.L().Error("api: markers failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "marker query failed")
		return
	}

	features := make([]*geojson.Feature, 0, len(ms))
	for _, m := range ms {
		features = append(features, geo.PointFeature(strconv.FormatInt(m.ID, 10), m.Point(), map[string]any{
			"provider_code":     m.ProviderCode,
			"accident_severity": m.Severity,
			"created":           m.Created,
			"address":           m.Address,
			"road1":             m.Road1,
			"yishuv_name":       m.YishuvName,
		}))
	}
	data, err := geo.MarshalFeatures(features)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode failed")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	if s.extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "location extraction is not configured")
		return
	}

	var item location.Item
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLocationBody)).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(item.Title) == "" && strings.TrimSpace(item.Description) == "" {
		writeError(w, http.StatusBadRequest, "title or description is required")
		return
	}

	loc, err := s.extractor.Extract(r.Context(), item)
	switch {
	case eris.Is(err, location.ErrNoLocation):
		writeError(w, http.StatusUnprocessableEntity, "no location found in text")
		return
	case err != nil:
		zap.L().Error("api: location extraction failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "location extraction failed")
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	if s.tiles == nil {
		writeError(w, http.StatusServiceUnavailable, "tiles are not configured")
		return
	}

	layerName := chi.URLParam(r, "layer")
	layer, ok := s.opts.Layers[layerName]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown layer")
		return
	}
	z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(strings.TrimSuffix(chi.URLParam(r, "y"), ".pbf"))
	if errZ != nil || errX != nil || errY != nil {
		writeError(w, http.StatusBadRequest, "invalid tile coordinates")
		return
	}
	if z < layer.MinZoom || z > layer.MaxZoom {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	const contentType = "application/vnd.mapbox-vector-tile"
	key := tileKey(layerName, z, x, y)
	if s.serveCached(w, kindTiles, key) {
		return
	}

	tile, err := GenerateMVT(r.Context(), s.tiles, layer, z, x, y)
	if err != nil {
		zap.L().Error("api: tile generation failed",
			zap.String("layer", layerName),
			zap.Int("z", z), zap.Int("x", x), zap.Int("y", y),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "tile generation failed")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	s.storeAndWrite(w, kindTiles, key, contentType, tile)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Cache == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Cache.Stats())
}

func (s *Server) serveCached(w http.ResponseWriter, kind, key string) bool {
	if s.opts.Cache == nil {
		return false
	}
	data, contentType, ok := s.opts.Cache.Get(kind, key)
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Cache", "hit")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	return true
}

func (s *Server) storeAndWrite(w http.ResponseWriter, kind, key, contentType string, data []byte) {
	if s.opts.Cache != nil {
		s.opts.Cache.Put(kind, key, contentType, data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Cache", "miss")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
