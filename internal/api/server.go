// Package api exposes the CRM over HTTP: auth, entity CRUD, the deal stage
// pipeline, HubSpot import, backups and the dashboard.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/agency-crm/internal/config"
	"github.com/sells-group/agency-crm/internal/dashboard"
	"github.com/sells-group/agency-crm/internal/deal"
	"github.com/sells-group/agency-crm/internal/importer"
	"github.com/sells-group/agency-crm/internal/model"
	"github.com/sells-group/agency-crm/internal/store"
)

// AuthService is the login/verification surface the API needs.
type AuthService interface {
	TokenVerifier
	Login(ctx context.Context, email, password string) (string, *model.User, error)
}

// ImportRunner executes a HubSpot import.
type ImportRunner interface {
	Run(ctx context.Context, files importer.Files) (*model.ImportResult, error)
}

// BackupManager creates, lists and restores snapshots.
type BackupManager interface {
	Create(ctx context.Context) (*model.BackupArtifact, error)
	List() ([]model.BackupArtifact, error)
	Restore(ctx context.Context, id string) error
}

// DealEngine executes pipeline operations.
type DealEngine interface {
	Create(ctx context.Context, p deal.CreateParams) (*model.Deal, error)
	ChangeStage(ctx context.Context, dealID string, newStage model.DealStage, userID string, p deal.ChangeStageParams) (*model.Deal, error)
	Update(ctx context.Context, dealID string, p deal.UpdateParams) (*model.Deal, error)
	History(ctx context.Context, dealID string) ([]model.DealStageHistory, error)
}

// DashboardService builds the pipeline overview.
type DashboardService interface {
	Overview(ctx context.Context) (*dashboard.Overview, error)
}

// Exporter writes workbook exports.
type Exporter interface {
	WriteDeals(ctx context.Context, w io.Writer, filter store.DealFilter) (int, error)
}

// Server is the HTTP API.
type Server struct {
	cfg       config.ServerConfig
	store     store.Store
	auth      AuthService
	deals     DealEngine
	importer  ImportRunner
	backups   BackupManager
	dashboard DashboardService
	exporter  Exporter

	// gate serializes import and restore; it is the same semaphore the
	// import orchestrator holds during a run.
	gate *semaphore.Weighted
	log  *zap.Logger
}

// NewServer assembles the API server.
func NewServer(
	cfg config.ServerConfig,
	st store.Store,
	authSvc AuthService,
	deals DealEngine,
	imp ImportRunner,
	backups BackupManager,
	dash DashboardService,
	exporter Exporter,
	gate *semaphore.Weighted,
) *Server {
	return &Server{
		cfg:       cfg,
		store:     st,
		auth:      authSvc,
		deals:     deals,
		importer:  imp,
		backups:   backups,
		dashboard: dash,
		exporter:  exporter,
		gate:      gate,
		log:       zap.L().With(zap.String("component", "api")),
	}
}

// Router builds the route tree. Everything under /api/v1 except login and
// health requires a bearer token.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	if s.cfg.RatePerSecond > 0 {
		r.Use(rateLimit(s.cfg.RatePerSecond, s.cfg.RateBurst))
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth(s.auth))

			r.Route("/companies", func(r chi.Router) {
				r.Get("/", s.handleListCompanies)
				r.Post("/", s.handleCreateCompany)
				r.Get("/{id}", s.handleGetCompany)
				r.Put("/{id}", s.handleUpdateCompany)
				r.Delete("/{id}", s.handleDeleteCompany)
			})

			r.Route("/contacts", func(r chi.Router) {
				r.Get("/", s.handleListContacts)
				r.Post("/", s.handleCreateContact)
				r.Get("/{id}", s.handleGetContact)
				r.Put("/{id}", s.handleUpdateContact)
				r.Delete("/{id}", s.handleDeleteContact)
			})

			r.Route("/deals", func(r chi.Router) {
				r.Get("/", s.handleListDeals)
				r.Post("/", s.handleCreateDeal)
				r.Get("/export", s.handleExportDeals)
				r.Get("/{id}", s.handleGetDeal)
				r.Put("/{id}", s.handleUpdateDeal)
				r.Delete("/{id}", s.handleDeleteDeal)
				r.Post("/{id}/stage", s.handleChangeStage)
				r.Get("/{id}/history", s.handleStageHistory)
			})

			r.Route("/notes", func(r chi.Router) {
				r.Get("/", s.handleListNotes)
				r.Post("/", s.handleCreateNote)
				r.Delete("/{id}", s.handleDeleteNote)
			})

			r.Route("/activities", func(r chi.Router) {
				r.Get("/", s.handleListActivities)
				r.Post("/", s.handleCreateActivity)
				r.Put("/{id}", s.handleUpdateActivity)
				r.Delete("/{id}", s.handleDeleteActivity)
			})

			r.Post("/import", s.handleImport)

			r.Route("/backups", func(r chi.Router) {
				r.Get("/", s.handleListBackups)
				r.Post("/", s.handleCreateBackup)
				r.Post("/{id}/restore", s.handleRestoreBackup)
			})

			r.Get("/dashboard", s.handleDashboard)
		})
	})

	return r
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("shutdown", zap.Error(err))
		}
	}()

	s.log.Info("starting server", zap.Int("port", s.cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "api: server listen")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, user, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  user,
	})
}
