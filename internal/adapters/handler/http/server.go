package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	redispubsub "github.com/VeriTeknik/pluggedin-app-sub006/internal/adapters/pubsub/redis"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/domain"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/services"
)

type Server struct {
	router     *chi.Mux
	lifecycle  *services.LifecycleService
	versions   *services.VersionService
	healthSvc  *services.HealthService
	hub        *Hub
	dlq        *redispubsub.DeadLetter
	adminToken string
}

func NewServer(
	lifecycle *services.LifecycleService,
	versions *services.VersionService,
	healthSvc *services.HealthService,
	hub *Hub,
	dlq *redispubsub.DeadLetter,
	adminToken string,
) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		lifecycle:  lifecycle,
		versions:   versions,
		healthSvc:  healthSvc,
		hub:        hub,
		dlq:        dlq,
		adminToken: adminToken,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(MetricsMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Token", "X-Actor-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		MetricsHandler().ServeHTTP(w, r)
	})

	// Kubernetes probes
	s.router.Get("/health/live", s.handleLiveness)
	s.router.Get("/health/ready", s.handleReadiness)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/ws", s.handleWS)

	s.router.Route("/api/agents", func(r chi.Router) {
		r.Post("/", s.handleRegisterAgent)
		r.Get("/", s.handleListAgents)
		r.Get("/{id}", s.handleGetAgent)
		r.Get("/{id}/events", s.handleListEvents)
		r.Get("/{id}/health", s.handleAgentHealth)
		r.Post("/{id}/heartbeat", s.handleHeartbeat)

		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Post("/{id}/provisioned", s.handleMarkProvisioned)
			r.Post("/{id}/suspend", s.handleSuspend)
			r.Post("/{id}/resume", s.handleResume)
			r.Post("/{id}/terminate", s.handleTerminate)
			r.Post("/{id}/kill", s.handleKill)
			r.Delete("/{id}", s.handleDeleteAgent)
		})
	})

	s.router.Route("/api/documents", func(r chi.Router) {
		r.Post("/", s.handleCreateDocument)
		r.Get("/{id}", s.handleGetDocument)
		r.Get("/{id}/versions", s.handleListVersions)
		r.Post("/{id}/versions", s.handleSaveVersion)
		r.Post("/{id}/versions/{version}/restore", s.handleRestoreVersion)
		r.Delete("/{id}/versions/{version}", s.handleDeleteVersion)
	})

	s.router.Route("/api/notifications", func(r chi.Router) {
		r.Use(s.adminOnly)
		r.Get("/dlq", s.handleListDeadLetters)
	})
}

func (s *Server) Run(addr string) error {
	return http.ListenAndServe(addr, s.router)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// adminOnly gates mutating agent operations behind the shared admin token.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Admin-Token")
		if s.adminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			respondError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// principal extracts the acting caller. Requests passing adminOnly are
// admins; the actor id is advisory and only feeds the audit trail.
func (s *Server) principal(r *http.Request) services.Principal {
	actor := r.Header.Get("X-Actor-ID")
	if actor == "" {
		actor = "admin"
	}
	return services.Principal{ID: actor, IsAdmin: true}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.healthSvc.CheckHealth(r.Context())
	status := http.StatusOK
	if report.Status == services.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, report)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	msg, code := s.healthSvc.SimpleHealthCheck(r.Context())
	w.WriteHeader(code)
	w.Write([]byte(msg))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ServeWs(s.hub, w, r)
}

func (s *Server) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	if s.dlq == nil {
		respondJSON(w, http.StatusOK, []any{})
		return
	}
	entries, err := s.dlq.List(r.Context(), 100)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// respondDomainError maps the error taxonomy onto HTTP statuses without
// leaking internals for unexpected failures.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrCurrentVersion):
		respondError(w, http.StatusConflict, err.Error())
	case domain.IsIllegalTransition(err):
		respondError(w, http.StatusConflict, err.Error())
	case domain.IsPathViolation(err):
		respondError(w, http.StatusBadRequest, "invalid file name")
	default:
		respondError(w, http.StatusInternalServerError, "unexpected error")
	}
}
