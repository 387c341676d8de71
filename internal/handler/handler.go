package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"memes/internal/domain"
	"memes/internal/telemetry"
)

const testEndpointText = "test end point works!"

type MemeService interface {
	RandomMemes(ctx context.Context, k int) (domain.Gallery, error)
	DefaultSampleSize() int
}

type Options struct {
	Title    string
	Views    *template.Template
	Static   fs.FS
	Reporter telemetry.Reporter
}

type Handler struct {
	svc      MemeService
	log      *slog.Logger
	title    string
	views    *template.Template
	static   fs.FS
	reporter telemetry.Reporter
}

func New(svc MemeService, log *slog.Logger, opts Options) *Handler {
	reporter := opts.Reporter
	if reporter == nil {
		reporter = telemetry.Nop{}
	}
	return &Handler{
		svc:      svc,
		log:      log,
		title:    opts.Title,
		views:    opts.Views,
		static:   opts.Static,
		reporter: reporter,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Gallery)
	r.Get("/memes", h.Gallery)
	r.Get("/about", h.About)
	r.Get("/test-endpoint", h.TestEndpoint)
	r.Get("/healthz", h.HealthCheck)
	r.Get("/api/memes", h.ListMemes)
	r.Handle("/static/*", http.StripPrefix("/static/", h.assets()))
	r.NotFound(h.assets().ServeHTTP)
}

// assets serves static files without directory listings. Unmatched paths
// fall through to it, so /css/style.css and /static/css/style.css are the
// same file.
func (h *Handler) assets() http.Handler {
	files := http.FileServer(http.FS(h.static))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "" && !strings.HasSuffix(r.URL.Path, "/") {
			files.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

type APIErrorResponse struct {
	Error APIErrorDetail `json:"error"`
}

type APIErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIErrorResponse{Error: APIErrorDetail{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) Gallery(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.RandomMemes(r.Context(), h.svc.DefaultSampleSize())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	g.Title = h.title
	h.render(w, r, http.StatusOK, "memes.html", g)
}

func (h *Handler) ListMemes(w http.ResponseWriter, r *http.Request) {
	k := h.svc.DefaultSampleSize()
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "count must be an integer")
			return
		}
		k = n
	}

	g, err := h.svc.RandomMemes(r.Context(), k)
	if err != nil {
		status, code, msg := h.classify(r, err)
		writeAPIError(w, status, code, msg)
		return
	}
	if g.Memes == nil {
		g.Memes = []domain.Meme{}
	}
	g.Title = h.title
	writeJSON(w, http.StatusOK, g)
}

func (h *Handler) About(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, h.static, "about.html")
}

func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (h *Handler) TestEndpoint(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(testEndpointText))
}

type errorPage struct {
	Title   string
	Message string
	Retry   string
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, _, msg := h.classify(r, err)
	h.render(w, r, status, "error.html", errorPage{
		Title:   h.title,
		Message: msg,
		Retry:   r.URL.Path,
	})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := h.views.ExecuteTemplate(&buf, name, data); err != nil {
		h.log.Error("failed to render template", "template", name, "error", err)
		h.reporter.Report(r.Context(), err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// classify maps err to a response and logs it. Server-side failures are also
// sent to the error reporter.
func (h *Handler) classify(r *http.Request, err error) (status int, code, message string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		h.log.Info("rejected request", "path", r.URL.Path, "error", err)
		return http.StatusBadRequest, "INVALID_ARGUMENT", err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		status, code, message = http.StatusGatewayTimeout, "TIMEOUT", "the meme source took too long to answer"
	case errors.Is(err, domain.ErrUpstream):
		status, code, message = http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "the meme source is unavailable, try again later"
	default:
		status, code, message = http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
	h.log.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	h.reporter.Report(r.Context(), err)
	return status, code, message
}
