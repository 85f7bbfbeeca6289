package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/claude/injuryrisk/internal/ingest"
	"github.com/claude/injuryrisk/internal/ingest/alpha"
	"github.com/claude/injuryrisk/internal/ingest/fit"
	"github.com/claude/injuryrisk/internal/ingest/hae"
	"github.com/claude/injuryrisk/internal/service"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	svc    *service.Service
	ingest *ingest.Service
	hae    *hae.Provider
	fit    *fit.Provider
	alpha  *alpha.Provider
	log    *slog.Logger
	apiKey string
	router chi.Router
}

// New creates a new Server with all routes configured.
func New(svc *service.Service, ing *ingest.Service, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		svc:    svc,
		ingest: ing,
		hae:    hae.NewProvider(ing, log),
		fit:    fit.NewProvider(ing, log),
		alpha:  alpha.NewProvider(ing, log),
		log:    log,
		apiKey: apiKey,
		router: chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1/users/{userID}", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))

		r.Post("/ingest/hae", s.handleHAEIngest)
		r.Post("/ingest/fit", s.handleFITIngest)
		r.Post("/ingest/alpha", s.handleAlphaIngest)
		r.Get("/import/stats", s.handleImportStats)
		r.Get("/import/logs", s.handleImportLogs)

		r.Post("/symptoms", s.handleSymptom)

		r.Post("/planned-sessions", s.handleCreatePlanned)
		r.Get("/planned-sessions", s.handleListPlanned)
		r.Post("/planned-sessions/{id}/evaluate", s.handleEvaluatePlanned)

		r.Post("/evaluate", s.handleEvaluate)
		r.Get("/predictions", s.handlePredictions)
		r.Get("/baseline", s.handleBaseline)
		r.Get("/load", s.handleLoadSummary)
	})
}

// MountMCP serves the MCP streamable HTTP transport at /mcp behind API key auth.
func (s *Server) MountMCP(h http.Handler) {
	s.router.With(APIKeyAuth(s.apiKey)).Handle("/mcp", h)
}
