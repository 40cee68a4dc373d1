package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"autotheme/internal/autoswitch"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StatusProvider returns the latest loop snapshot
type StatusProvider interface {
	Snapshot() autoswitch.Snapshot
}

// HealthChecker reports whether the Home Assistant connection is up
type HealthChecker interface {
	IsConnected() bool
}

// Server provides the HTTP status API of the auto-switch loop
type Server struct {
	status StatusProvider
	health HealthChecker
	logger *zap.Logger
	prefix string
	router *mux.Router
	server *http.Server
}

// NewServer creates a new API server. prefix is the path the routes are
// mounted under ("/" for the root). health may be nil.
func NewServer(status StatusProvider, health HealthChecker, prefix, port string, logger *zap.Logger) *Server {
	s := &Server{
		status: status,
		health: health,
		logger: logger.Named("api"),
		prefix: strings.TrimRight(prefix, "/"),
	}

	r := mux.NewRouter().StrictSlash(true)
	r.HandleFunc(s.prefix+"/", s.handleSitemap).Methods(http.MethodGet)
	r.HandleFunc(s.prefix+"/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc(s.prefix+"/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle(s.prefix+"/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router = r

	s.server = &http.Server{
		Addr:         "0.0.0.0:" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleStatus returns the loop snapshot as JSON
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Snapshot(), s.logger)
	s.logger.Debug("Status request served", zap.String("remote_addr", r.RemoteAddr))
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
}

// handleHealth returns 200 while Home Assistant is reachable, 503 otherwise
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Connected: true}
	code := http.StatusOK
	if s.health != nil && !s.health.IsConnected() {
		resp = HealthResponse{Status: "disconnected", Connected: false}
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp, s.logger)
}

func writeJSON(w http.ResponseWriter, code int, body interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

func (s *Server) endpoints() []Endpoint {
	return []Endpoint{
		{Path: s.prefix + "/", Method: "GET", Description: "This sitemap"},
		{Path: s.prefix + "/api/status", Method: "GET", Description: "Theme mode, day window and next scheduled switch"},
		{Path: s.prefix + "/health", Method: "GET", Description: "Health check, 503 while Home Assistant is disconnected"},
		{Path: s.prefix + "/metrics", Method: "GET", Description: "Prometheus metrics"},
	}
}

// handleSitemap lists the endpoints, as HTML for browsers and plain text
// otherwise
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	preferHTML := strings.Contains(r.Header.Get("Accept"), "text/html")

	if preferHTML {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<!DOCTYPE html>\n<html>\n<head><title>autotheme</title></head>\n<body>\n<h1>autotheme</h1>\n<ul>\n")
		for _, ep := range s.endpoints() {
			fmt.Fprintf(w, "  <li><b>%s</b> <a href=\"%s\">%s</a> %s</li>\n", ep.Method, ep.Path, ep.Path, ep.Description)
		}
		fmt.Fprint(w, "</ul>\n</body>\n</html>\n")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "autotheme\n=========\n\nAvailable endpoints:\n\n")
		for _, ep := range s.endpoints() {
			fmt.Fprintf(w, "  %-6s %-20s %s\n", ep.Method, ep.Path, ep.Description)
		}
	}

	s.logger.Debug("Sitemap request served",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Bool("html_format", preferHTML))
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
