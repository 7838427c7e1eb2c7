// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	service "github.com/okian/draftboard/internal/app"
	"github.com/okian/draftboard/internal/app/pipeline"
	"github.com/okian/draftboard/internal/domain/model"
	"github.com/okian/draftboard/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	DataDependencies
	PipelineDependencies
	TiersDependencies
	StatusDependencies
	StatsProvider
}

// DataDependencies serves and accepts datasets.
type DataDependencies interface {
	Get(ctx context.Context, g model.Group, f model.Format) (service.Result, error)
	Compare(ctx context.Context, g model.Group, f model.Format) (service.Comparison, error)
	Ingest(ctx context.Context, req service.IngestRequest) (service.IngestResult, error)
}

// PipelineDependencies triggers runs and purges.
type PipelineDependencies interface {
	RunPipeline(ctx context.Context, req pipeline.Request) (*pipeline.Report, error)
	Purge(ctx context.Context, days int, clearCache bool) (pipeline.PurgeResult, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	dataHandler     *DataHandler
	pipelineHandler *PipelineHandler
	tiersHandler    *TiersHandler
	statusHandler   *StatusHandler
	auth            *Authenticator
	requestTimeout  time.Duration
	log             logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithAuthenticator guards the pipeline routes.
func WithAuthenticator(a *Authenticator) Option {
	return func(s *Server) {
		if a != nil {
			s.auth = a
		}
	}
}

// WithRequestTimeout bounds every request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(deps),
		dataHandler:     NewDataHandler(deps),
		pipelineHandler: NewPipelineHandler(deps),
		tiersHandler:    NewTiersHandler(deps),
		statusHandler:   NewStatusHandler(deps),
		auth:            NewAuthenticator("", "production"),
		requestTimeout:  2 * time.Minute,
		log:             logger.Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/stats", s.statsHandler.HandleStats)
	r.Get("/status", s.statusHandler.HandleStatus)
	r.Get("/tiers", s.tiersHandler.HandleGetTiers)
	r.Get("/data", s.dataHandler.HandleGetData)
	r.Post("/data", s.dataHandler.HandlePostData)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Post("/pipeline", s.pipelineHandler.HandleRun)
		r.Delete("/pipeline", s.pipelineHandler.HandlePurge)
	})
}

// Router returns a chi router with the standard middleware and all routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Metrics)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))
	s.Register(r)
	return r
}

type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Success: false, Code: code, Message: msg})
}
