package httpadapter

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"quotelayout/internal/domain"
	"quotelayout/internal/ports"
)

// WithWriter mounts the layout write routes backed by w.
func WithWriter(w ports.LayoutWriter) Option { return func(s *Server) { s.writer = w } }

func (s *Server) mountAdmin(r chi.Router) {
	r.Post("/templates", s.createTemplate)
	r.Put("/templates/{templateID}", s.saveTemplate)
	r.Put("/templates/{templateID}/active", s.setTemplateActive)
	r.Put("/companies/{companyID}/layout", s.saveCustomLayout)
	r.Put("/companies/{companyID}/layout/active", s.setCustomLayoutActive)
}

type saveLayoutRequest struct {
	Config   *domain.LayoutConfig `json:"config"`
	IsActive *bool                `json:"isActive,omitempty"`
	// ExpectedVersion makes a template save conditional on the stored version.
	ExpectedVersion *int `json:"expectedVersion,omitempty"`
}

type activeRequest struct {
	IsActive *bool `json:"isActive"`
}

type writeResponse struct {
	ID      string `json:"id,omitempty"`
	Version int    `json:"version"`
}

func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSave(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, version, err := s.writer.SaveTemplate(r.Context(), "", *req.Config, activeOrDefault(req.IsActive))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, writeResponse{ID: id, Version: version})
}

func (s *Server) saveTemplate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSave(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	templateID := chi.URLParam(r, "templateID")

	var (
		id      = templateID
		version int
	)
	if req.ExpectedVersion != nil {
		version, err = s.writer.SaveTemplateIfVersion(r.Context(), templateID, *req.Config, *req.ExpectedVersion)
	} else {
		id, version, err = s.writer.SaveTemplate(r.Context(), templateID, *req.Config, activeOrDefault(req.IsActive))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResponse{ID: id, Version: version})
}

func (s *Server) setTemplateActive(w http.ResponseWriter, r *http.Request) {
	active, err := decodeActive(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	templateID := chi.URLParam(r, "templateID")
	version, err := s.writer.SetTemplateActive(r.Context(), templateID, active)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResponse{ID: templateID, Version: version})
}

func (s *Server) saveCustomLayout(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSave(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.ExpectedVersion != nil {
		writeError(w, r, badRequest("expectedVersion is only supported for templates"))
		return
	}
	version, err := s.writer.SaveCustomLayout(r.Context(), chi.URLParam(r, "companyID"), *req.Config, activeOrDefault(req.IsActive))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResponse{Version: version})
}

func (s *Server) setCustomLayoutActive(w http.ResponseWriter, r *http.Request) {
	active, err := decodeActive(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	version, err := s.writer.SetCustomLayoutActive(r.Context(), chi.URLParam(r, "companyID"), active)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResponse{Version: version})
}

func decodeSave(w http.ResponseWriter, r *http.Request) (saveLayoutRequest, error) {
	var req saveLayoutRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		return req, err
	}
	if req.Config == nil {
		return req, badRequest("config is required")
	}
	if err := req.Config.Validate(); err != nil {
		return req, badRequest(err.Error())
	}
	return req, nil
}

func decodeActive(w http.ResponseWriter, r *http.Request) (bool, error) {
	var req activeRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		return false, err
	}
	if req.IsActive == nil {
		return false, badRequest("isActive is required")
	}
	return *req.IsActive, nil
}

// activeOrDefault treats an omitted isActive as true.
func activeOrDefault(v *bool) bool { return v == nil || *v }

func isConflict(err error) bool { return errors.Is(err, domain.ErrVersionConflict) }
