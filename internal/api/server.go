package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"github.com/dgallion1/quizpack/internal/config"
	"github.com/dgallion1/quizpack/internal/pipeline"
	"github.com/dgallion1/quizpack/internal/renumber"
)

// Server is the HTTP API server for quizpack.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	db           *gorm.DB
	packages     *renumber.Service
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, db *gorm.DB, packages *renumber.Service, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		db:           db,
		packages:     packages,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	if s.cfg.MediaDir != "" && strings.HasPrefix(s.cfg.MediaBaseURL, "/") {
		prefix := strings.TrimSuffix(s.cfg.MediaBaseURL, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(s.cfg.MediaDir))))
	}

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/imports", s.handleImport)
		r.Post("/api/imports/batch", s.handleBatchImport)
		r.Get("/api/imports/{jobID}", s.handleImportStatus)
		r.Post("/api/imports/{jobID}/cancel", s.handleCancelImport)
		r.Post("/api/parse", s.handleParse)
		r.Get("/api/stats/imports", s.handleImportStats)

		r.Get("/api/packages/{packageID}", s.handleGetPackage)
		r.Post("/api/packages/{packageID}/renumber", s.handleRenumber)
		r.Put("/api/packages/{packageID}/numbering", s.handleSetNumbering)
		r.Post("/api/packages/{packageID}/tours", s.handleAddTour)

		r.Put("/api/tours/{tourID}/type", s.handleSetTourType)
		r.Post("/api/tours/{tourID}/move", s.handleMoveTour)
		r.Delete("/api/tours/{tourID}", s.handleDeleteTour)
		r.Post("/api/tours/{tourID}/questions", s.handleAddQuestion)

		r.Post("/api/blocks/{blockID}/move", s.handleMoveBlock)
		r.Delete("/api/blocks/{blockID}", s.handleDeleteBlock)

		r.Post("/api/questions/{questionID}/move", s.handleMoveQuestion)
		r.Delete("/api/questions/{questionID}", s.handleDeleteQuestion)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
