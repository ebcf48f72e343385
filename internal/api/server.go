// Package api provides the HTTP control API of the sync daemon. The app
// shell and operators use it to mutate local records, trigger sync cycles,
// and inspect conflicts.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/leafwise/leafwise-sync/internal/service"
	"github.com/leafwise/leafwise-sync/internal/store"
)

// Server holds dependencies for the control API handlers.
type Server struct {
	store   *store.Store
	sync    *service.SyncService
	records *service.RecordService
	userID  string
	router  *chi.Mux
	api     huma.API
	logger  *slog.Logger
}

// NewServer creates the control API server with all routes configured.
// Locally created records are stamped with userID.
func NewServer(st *store.Store, syncService *service.SyncService, recordService *service.RecordService, userID string, logger *slog.Logger) *Server {
	s := &Server{
		store:   st,
		sync:    syncService,
		records: recordService,
		userID:  userID,
		router:  chi.NewRouter(),
		logger:  logger,
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig("LeafWise Sync Control API", "1.0.0")
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerSyncRoutes()
	s.registerRecordRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	// The daemon only ever serves the local app shell and the admin
	// dashboard dev server.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
}
