package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/peek-plugin-user/auth"
	"github.com/jrsteele09/peek-plugin-user/internal/config"
	"github.com/jrsteele09/peek-plugin-user/observable"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env        string // Environment (e.g., "DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	config     config.Config
	controller *auth.Controller
	observable *observable.Handler
	repos      auth.Repos
	limiter    *ipRateLimiter
	upgrader   websocket.Upgrader
	adminKey   string
	clock      clockwork.Clock
}

type Option func(*Server)

// WithClock sets the clock (primarily for testing)
func WithClock(clock clockwork.Clock) Option {
	return func(s *Server) {
		s.clock = clock
	}
}

func New(config config.Config, repos auth.Repos, controller *auth.Controller, handler *observable.Handler, opts ...Option) (*Server, error) {
	if controller == nil {
		return nil, fmt.Errorf("[Server New] controller is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("[Server New] observable handler is required")
	}

	s := &Server{
		mux:        http.NewServeMux(),
		config:     config,
		repos:      repos,
		controller: controller,
		observable: handler,
		limiter:    newIPRateLimiter(config.GetActionRateLimit(), config.GetActionRateBurst()),
		adminKey:   config.GetAdminAPIKey(),
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.env = config.GetEnv()
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkWebSocketOrigin,
	}

	// Bootstrap: ensure an admin user exists and the admin API is keyed
	ctx := context.Background()
	if err := s.InitialiseSystem(ctx, config); err != nil {
		return nil, fmt.Errorf("[Server New] Failed to initialise the system: %w", err)
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

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			log.Debug().Str("method", parts[0]).Str("path", parts[1]).Msg("route")
		} else {
			log.Debug().Str("path", parts[0]).Msg("route")
		}
	}
}

func (s *Server) now() time.Time {
	return s.clock.Now().UTC()
}

func (s *Server) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	allowed := s.config.GetAllowedOrigins()
	return allowed.IsAllowedOrigin("*") || allowed.IsAllowedOrigin(origin)
}

// clientIP prefers the first X-Forwarded-For hop, then the connection address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
