// Package server exposes the dashboard over HTTP: static assets, the image
// proxy and a JSON API over the shared pipeline and its views.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/rs/cors"

	"github.com/wdm0006/chandash/pkg/chain"
	p "github.com/wdm0006/chandash/pkg/pipeline"
	"github.com/wdm0006/chandash/pkg/views"
)

// Options locate the files the server exposes.
type Options struct {
	StaticDir      string
	DataPath       string
	DataFormat     string
	AllowedOrigins []string
}

type Server struct {
	dash  *views.Dashboard
	proxy http.Handler
	opt   Options
	log   *slog.Logger
}

func New(dash *views.Dashboard, proxy http.Handler, opt Options, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{dash: dash, proxy: proxy, opt: opt, log: log}
}

// Handler returns the routed handler wrapped with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.opt.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.opt.StaticDir)))
	}
	if s.opt.DataPath != "" {
		mux.Handle("GET /data/", http.StripPrefix("/data/", http.FileServer(http.Dir(filepath.Dir(s.opt.DataPath)))))
	}
	if s.proxy != nil {
		mux.Handle("GET /proxy", s.proxy)
	}

	mux.HandleFunc("GET /api/dataset", s.handleDataset)
	mux.HandleFunc("GET /api/dataset/profile", s.handleProfile)
	mux.HandleFunc("POST /api/dataset/reload", s.handleReload)
	mux.HandleFunc("POST /api/run", s.handleRun)

	mux.HandleFunc("GET /api/operations", s.handleListOperations)
	mux.HandleFunc("PUT /api/operations/{name}", s.handlePutOperation)
	mux.HandleFunc("DELETE /api/operations/{name}", s.handleDeleteOperation)
	mux.HandleFunc("DELETE /api/operations", s.handleClearOperations)

	mux.HandleFunc("PUT /api/filters/{kind}", s.handleSetFilter)
	mux.HandleFunc("DELETE /api/filters", s.handleClearFilters)

	mux.HandleFunc("GET /api/views/{view}", s.handleView)
	mux.HandleFunc("GET /api/views/{view}/drill", s.handleDrillState)
	mux.HandleFunc("POST /api/views/{view}/drill", s.handleDrill)

	origins := s.opt.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
	})
	return Logging(s.log, c.Handler(mux))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

type errorBody struct {
	Error string `json:"error"`
}

// statusOf maps domain errors onto HTTP status codes.
func statusOf(err error) int {
	var (
		le *p.LoadError
		se *p.ShapeError
	)
	switch {
	case errors.As(err, &le):
		return http.StatusBadGateway
	case errors.As(err, &se):
		return http.StatusUnprocessableEntity
	case errors.Is(err, views.ErrUnknownView), errors.Is(err, views.ErrUnknownChannel):
		return http.StatusNotFound
	case errors.Is(err, views.ErrNoFeatures):
		return http.StatusServiceUnavailable
	case errors.Is(err, p.ErrInvalidSelection),
		errors.Is(err, views.ErrInvalidTransition),
		errors.Is(err, chain.ErrUnknownKind),
		errors.Is(err, chain.ErrInvalidDefinition):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}
