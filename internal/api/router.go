// Package api exposes the ingestion pipeline over HTTP: batch submission,
// company listing and detail, queue status, and a GeoJSON asset export.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Server wires handlers to their collaborators.
type Server struct {
	handler *Handler
}

// NewServer creates a Server.
func NewServer(h *Handler) *Server {
	return &Server{handler: h}
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/companies", func(r chi.Router) {
		r.Post("/process", s.handler.ProcessCompanies)
		r.Get("/", s.handler.ListCompanies)
		r.Get("/status", s.handler.QueueStatus)
		r.Get("/{id}", s.handler.GetCompany)
		r.Get("/{id}/assets.geojson", s.handler.CompanyAssetsGeoJSON)
	})

	return r
}

// requestLogger logs each request with zap after it completes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)))
	})
}
