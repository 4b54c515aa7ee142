package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"quotelayout/internal/domain"
	"quotelayout/internal/ports"
	"quotelayout/internal/services/quotes"
)

const maxBodyBytes = 1 << 20

// Quotes is the layout facade the handlers call into.
type Quotes interface {
	MergedLayout(ctx context.Context, identifier string) (domain.ResolvedLayout, *domain.BrandingOverrides, error)
	RenderQuote(ctx context.Context, identifier string, data domain.RenderContext) (quotes.Quote, error)
	MergeBranding(cfg domain.LayoutConfig, overrides *domain.BrandingOverrides) domain.LayoutConfig
	RenderLayout(cfg domain.LayoutConfig, data domain.RenderContext) (domain.RenderedLayout, error)
}

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	quotes     Quotes
	writer     ports.LayoutWriter
	health     Pinger
	metrics    http.Handler
	middleware []func(http.Handler) http.Handler
}

type Option func(*Server)

// WithHealthCheck makes /healthz report 503 when p fails.
func WithHealthCheck(p Pinger) Option { return func(s *Server) { s.health = p } }

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// WithMiddleware appends router middleware, such as request metrics.
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(s *Server) { s.middleware = append(s.middleware, mw...) }
}

func New(q Quotes, opts ...Option) *Server {
	s := &Server{quotes: q}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the service router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	for _, mw := range s.middleware {
		r.Use(mw)
	}

	r.Get("/healthz", s.getHealthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Get("/layouts/{identifier}", s.getLayout)
	r.Post("/layouts/{identifier}/render", s.renderLayout)
	r.Post("/render", s.renderPreview)
	if s.writer != nil {
		s.mountAdmin(r)
	}
	return r
}

func (s *Server) getHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			slog.WarnContext(r.Context(), "Health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getLayout returns the resolved layout with branding applied.
func (s *Server) getLayout(w http.ResponseWriter, r *http.Request) {
	resolved, _, err := s.quotes.MergedLayout(r.Context(), chi.URLParam(r, "identifier"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

// renderLayout renders a company's quote page against the posted context.
func (s *Server) renderLayout(w http.ResponseWriter, r *http.Request) {
	var data domain.RenderContext
	if err := decodeBody(w, r, &data, true); err != nil {
		writeError(w, r, err)
		return
	}

	q, err := s.quotes.RenderQuote(r.Context(), chi.URLParam(r, "identifier"), data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("X-Layout-Source", string(q.Layout.Source))
	w.Header().Set("X-Layout-Degraded", strconv.FormatBool(q.Layout.Degraded))
	writeJSON(w, http.StatusOK, q.Rendered)
}

type previewRequest struct {
	Config    *domain.LayoutConfig      `json:"config"`
	Context   domain.RenderContext      `json:"context"`
	Overrides *domain.BrandingOverrides `json:"overrides,omitempty"`
}

// renderPreview renders an unsaved layout, as the settings editor does.
func (s *Server) renderPreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Config == nil {
		writeError(w, r, badRequest("config is required"))
		return
	}
	if err := req.Config.Validate(); err != nil {
		writeError(w, r, badRequest(err.Error()))
		return
	}

	merged := s.quotes.MergeBranding(*req.Config, req.Overrides)
	out, err := s.quotes.RenderLayout(merged, quotes.WithBranding(req.Context, merged.GlobalStyles))
	if err != nil {
		writeError(w, r, badRequest(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type requestError struct {
	code int
	msg  string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{code: http.StatusBadRequest, msg: msg} }

// decodeBody reads a JSON body. An empty body is accepted when allowEmpty.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &requestError{code: http.StatusRequestEntityTooLarge, msg: "request body too large"}
		}
		return badRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		writeJSON(w, reqErr.code, map[string]string{"error": reqErr.msg})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "layout not found"})
	case isConflict(err):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
