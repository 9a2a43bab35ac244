package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/diff"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/domain"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/services"
)

type createDocumentRequest struct {
	UserID    string `json:"user_id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Content   string `json:"content"`
}

type saveVersionRequest struct {
	Content       string                  `json:"content"`
	WriteMode     string                  `json:"write_mode"`
	Model         domain.ModelAttribution `json:"model"`
	ChangeSummary string                  `json:"change_summary"`
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Name == "" {
		respondError(w, http.StatusBadRequest, "user_id and name are required")
		return
	}

	doc, err := s.versions.CreateDocument(r.Context(), req.UserID, req.ProjectID, req.Name, []byte(req.Content))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.versions.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.versions.ListVersions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, versions)
}

func (s *Server) handleSaveVersion(w http.ResponseWriter, r *http.Request) {
	var req saveVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WriteMode == "" {
		req.WriteMode = diff.ModeReplace
	}

	version, err := s.versions.SaveVersion(r.Context(), chi.URLParam(r, "id"), services.SaveVersionInput{
		Content:       []byte(req.Content),
		WriteMode:     req.WriteMode,
		Model:         req.Model,
		ChangeSummary: req.ChangeSummary,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, version)
}

func (s *Server) handleRestoreVersion(w http.ResponseWriter, r *http.Request) {
	versionNumber, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || versionNumber < 1 {
		respondError(w, http.StatusBadRequest, "invalid version number")
		return
	}

	version, err := s.versions.RestoreVersion(r.Context(), chi.URLParam(r, "id"), versionNumber)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, version)
}

func (s *Server) handleDeleteVersion(w http.ResponseWriter, r *http.Request) {
	versionNumber, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || versionNumber < 1 {
		respondError(w, http.StatusBadRequest, "invalid version number")
		return
	}

	if err := s.versions.DeleteVersion(r.Context(), chi.URLParam(r, "id"), versionNumber); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
