package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/domain"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/services"
)

type registerAgentRequest struct {
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
}

type provisionedRequest struct {
	DeploymentName string `json:"deployment_name"`
	Namespace      string `json:"namespace"`
}

type heartbeatRequest struct {
	Mode          string `json:"mode"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type actionRequest struct {
	Reason           string `json:"reason"`
	SendNotification bool   `json:"send_notification"`
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.OwnerID == "" {
		respondError(w, http.StatusBadRequest, "name and owner_id are required")
		return
	}

	agent, err := s.lifecycle.RegisterAgent(r.Context(), req.Name, req.OwnerID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, agent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.lifecycle.ListAgents(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agents)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.lifecycle.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (s *Server) handleMarkProvisioned(w http.ResponseWriter, r *http.Request) {
	var req provisionedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DeploymentName == "" {
		respondError(w, http.StatusBadRequest, "deployment_name is required")
		return
	}

	result, err := s.lifecycle.MarkProvisioned(r.Context(), chi.URLParam(r, "id"), req.DeploymentName, req.Namespace)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	s.respondAction(w, result)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode := domain.HeartbeatMode(req.Mode)
	if mode == "" {
		mode = domain.ModeIdle
	}

	agent, err := s.lifecycle.RecordHeartbeat(r.Context(), chi.URLParam(r, "id"), mode, req.UptimeSeconds)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (s *Server) handleSuspend(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, s.lifecycle.Suspend)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, s.lifecycle.Resume)
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, s.lifecycle.Terminate)
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, s.lifecycle.Kill)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, s.lifecycle.DeleteAgent)
}

// handleAction decodes the shared action body and dispatches to one of
// the lifecycle verbs. The body is optional for these endpoints.
func (s *Server) handleAction(
	w http.ResponseWriter,
	r *http.Request,
	action func(ctx context.Context, caller services.Principal, agentID string, opts services.ActionOptions) (*services.ActionResult, error),
) {
	var req actionRequest
	if r.Body != nil {
		// Ignore decode errors so an empty body means default options.
		json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := action(r.Context(), s.principal(r), chi.URLParam(r, "id"), services.ActionOptions{
		Reason:           req.Reason,
		SendNotification: req.SendNotification,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	s.respondAction(w, result)
}

// respondAction renders an ActionResult, turning a domain refusal into
// a 409 so idempotent retries are distinguishable from success.
func (s *Server) respondAction(w http.ResponseWriter, result *services.ActionResult) {
	status := http.StatusOK
	if !result.OK {
		status = http.StatusConflict
	}
	respondJSON(w, status, result)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := s.lifecycle.ListEvents(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, events)
}

func (s *Server) handleAgentHealth(w http.ResponseWriter, r *http.Request) {
	var report *services.CollectorReport
	if v := r.URL.Query().Get("collector_healthy"); v != "" {
		healthy, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "collector_healthy must be a boolean")
			return
		}
		report = &services.CollectorReport{
			Healthy: healthy,
			Mode:    domain.HeartbeatMode(r.URL.Query().Get("collector_mode")),
		}
	}

	health, err := s.lifecycle.Health(r.Context(), chi.URLParam(r, "id"), report)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, health)
}
