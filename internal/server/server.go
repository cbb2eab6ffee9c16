// Package server serves the composed building map document, its tiles and
// the hover inspection API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buildingmap/internal/document"
	"github.com/sells-group/buildingmap/internal/model"
	"github.com/sells-group/buildingmap/internal/spatial"
	"github.com/sells-group/buildingmap/internal/tiles"
)

// Deps bundles everything the server reads. All of it is shared read-only
// across sessions.
type Deps struct {
	Document       *document.Document
	Index          *spatial.Index
	Shaded         *tiles.ShadeHandler
	ShadedCache    *tiles.TileCache
	Basemap        http.Handler
	BasemapCache   *tiles.TileCache
	Provenance     model.Provenance
	AllowedOrigins []string
}

// Server hands the composed document to every browser session.
type Server struct {
	deps     Deps
	sessions atomic.Int64
	started  time.Time
}

// New creates a Server.
func New(deps Deps) *Server {
	return &Server{deps: deps, started: time.Now()}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.handlePage)
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)

	r.Route("/api", func(r chi.Router) {
		r.Get("/document", s.handleDocument)
		r.Get("/legend", s.handleLegend)
		r.Get("/inspect", s.handleInspect)
	})

	if s.deps.Shaded != nil {
		r.Handle("/tiles/shaded/*", http.StripPrefix("/tiles/shaded", s.deps.Shaded))
	}
	if s.deps.Basemap != nil {
		r.Handle("/tiles/basemap/*", http.StripPrefix("/tiles/basemap", s.deps.Basemap))
	}
	return r
}

// Run serves on port until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting document server",
			zap.String("addr", addr),
			zap.String("title", s.deps.Document.Title),
			zap.Int("buildings", s.deps.Document.Buildings),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server: listen")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("shutting down document server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	return nil
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	sessionID := uuid.NewString()
	n := s.sessions.Add(1)
	zap.L().Info("session opened",
		zap.String("session_id", sessionID),
		zap.Int64("sessions", n),
		zap.String("request_id", middleware.GetReqID(r.Context())),
	)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := document.Render(w, s.deps.Document, sessionID); err != nil {
		zap.L().Error("render document failed", zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
	}
}

func (s *Server) handleDocument(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Document)
}

func (s *Server) handleLegend(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Document.Legend)
}

// handleInspect returns the footprint under ?lon=&lat= (WGS84) as GeoJSON,
// or 204 when there is none.
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	lon, err1 := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	lat, err2 := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err1 != nil || err2 != nil || lon < -180 || lon > 180 || lat < -85.06 || lat > 85.06 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lon and lat are required"})
		return
	}
	if s.deps.Index == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	b, ok := s.deps.Index.At(project.WGS84.ToMercator(orb.Point{lon, lat}))
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, document.HoverFeature(b))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Stats is the payload of GET /stats.
type Stats struct {
	Uptime     string            `json:"uptime"`
	Sessions   int64             `json:"sessions"`
	Buildings  int               `json:"buildings"`
	Categories []string          `json:"categories"`
	Provenance model.Provenance  `json:"provenance"`
	Shaded     *tiles.CacheStats `json:"shaded_cache,omitempty"`
	Basemap    *tiles.CacheStats `json:"basemap_cache,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := Stats{
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Sessions:   s.sessions.Load(),
		Buildings:  s.deps.Document.Buildings,
		Categories: s.deps.Document.Categories,
		Provenance: s.deps.Provenance,
	}
	if s.deps.ShadedCache != nil {
		cs := s.deps.ShadedCache.Stats()
		st.Shaded = &cs
	}
	if s.deps.BasemapCache != nil {
		cs := s.deps.BasemapCache.Stats()
		st.Basemap = &cs
	}
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
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
