// Package api exposes fee reconciliation over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/feerecon/internal/directory"
	"github.com/sells-group/feerecon/internal/task"
)

// Options configures the HTTP surface.
type Options struct {
	CORSOrigins    []string
	MaxUploadBytes int64
}

// Server holds the handlers' collaborators.
type Server struct {
	tracker   *task.Tracker
	lookup    directory.Lookup
	maxUpload int64
	origins   []string
}

// NewServer creates a Server. A non-positive MaxUploadBytes defaults to 32 MiB.
func NewServer(tracker *task.Tracker, lookup directory.Lookup, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{
		tracker:   tracker,
		lookup:    lookup,
		maxUpload: opts.MaxUploadBytes,
		origins:   opts.CORSOrigins,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Task-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/excel/upload/{sheet}", s.handleUpload)
		r.Post("/excel/upload-async/{sheet}", s.handleUploadAsync)
		r.Get("/excel/task/{id}", s.handleTaskStatus)
		r.Get("/excel/download/{id}", s.handleDownload)
		r.Get("/employees/name/{name}", s.handleEmployeesByName)
	})

	return r
}

// NewHTTPServer wraps the router in an http.Server with conservative
// header timeouts. Write timeouts stay open because synchronous uploads
// wait on the amount oracle.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
