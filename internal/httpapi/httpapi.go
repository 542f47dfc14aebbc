// Package httpapi is the thin chi-based adapter that exercises the
// core's query surface over HTTP: /feed, /stream/{id}, /chapters/{id},
// and /status. It renders JSON, not feed XML — full feed-document
// rendering is an external collaborator per spec, out of this
// repository's scope; this shim exists only to make the core's queries
// reachable over the wire.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/podible/podible/internal/apperr"
	"github.com/podible/podible/internal/core"
)

// Server owns the chi router wrapping a Core.
type Server struct {
	core   *core.Core
	logger *slog.Logger
	router chi.Router
}

// New builds the router. It does not listen; callers wrap it in an
// *http.Server.
func New(c *core.Core, logger *slog.Logger) *Server {
	s := &Server{core: c, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
	}))

	r.Get("/feed", s.handleFeed)
	r.Get("/stream/{id}", s.handleStream)
	r.Get("/chapters/{id}", s.handleChapters)
	r.Get("/status", s.handleStatus)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler so a Server can be passed directly
// to http.Server.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if len(s.core.Config.Library.Roots) == 0 {
		writeError(w, s.logger, apperr.New(apperr.CodeNoRootsConfigured, "no library roots configured"))
		return
	}
	writeJSON(w, http.StatusOK, s.core.FeedBooksSorted())
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !s.core.RateLimit.Allow(clientKey(r)) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	id := chi.URLParam(r, "id")
	book, ok := s.core.Find(id)
	if !ok {
		writeError(w, s.logger, apperr.Newf(apperr.CodeUnknownBook, "no book with id %q", id))
		return
	}

	tag := s.core.Tag(book)
	if err := s.core.Assembler.Serve(w, r, book, tag); err != nil {
		writeError(w, s.logger, err)
	}
}

func (s *Server) handleChapters(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	book, ok := s.core.Find(id)
	if !ok {
		writeError(w, s.logger, apperr.Newf(apperr.CodeUnknownBook, "no book with id %q", id))
		return
	}

	resp, err := s.core.Chapters(r.Context(), book)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.StatusSnapshot())
}

// clientKey returns the rate limiter key for r: the client IP with port
// stripped (middleware.RealIP has already resolved X-Forwarded-For).
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()
	if ae, ok := err.(*apperr.Error); ok {
		status = ae.HTTPStatus()
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
