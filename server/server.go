// Package server exposes the relying-party flow over HTTP: login, the IdP
// callback, disconnect, logout, metrics and health.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-oidc-connector/auth"
	"github.com/jrsteele09/go-oidc-connector/internal/config"
	"github.com/jrsteele09/go-oidc-connector/server/loginsession"
	"github.com/rs/zerolog/log"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	backend  auth.Backend
	sessions loginsession.Repo
	metrics  http.Handler
	health   map[string]HealthCheck
	nowTime  func() time.Time
}

type ServerOption func(*Server)

// WithMetricsHandler serves h on the metrics route.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithHealthCheck adds a named check to the health route.
func WithHealthCheck(name string, check HealthCheck) ServerOption {
	return func(s *Server) {
		s.health[name] = check
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

func New(cfg config.Config, backend auth.Backend, sessions loginsession.Repo, options ...ServerOption) (*Server, error) {
	if cfg == nil || backend == nil || sessions == nil {
		return nil, fmt.Errorf("[Server New] config, backend and session repo are required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		backend:  backend,
		sessions: sessions,
		health:   make(map[string]HealthCheck),
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// PurgeExpiredSessions drops login sessions past their expiry.
func (s *Server) PurgeExpiredSessions(ctx context.Context) (int, error) {
	return s.sessions.DeleteExpired(ctx, s.nowTime())
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	log.Debug().Msgf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
