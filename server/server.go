package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jrsteele09/go-workspace-gateway/gateway"
	"github.com/jrsteele09/go-workspace-gateway/internal/config"
	"github.com/jrsteele09/go-workspace-gateway/policy"
	"github.com/jrsteele09/go-workspace-gateway/server/authflowrepo"
	"github.com/jrsteele09/go-workspace-gateway/sessions"
	"github.com/jrsteele09/go-workspace-gateway/upstream"
	"github.com/rs/zerolog/log"
)

// SessionTable is the part of the session binder the HTTP routes drive directly.
type SessionTable interface {
	Open(id string) *sessions.Session
	Unbind(id string) error
	Info(id string) (sessions.Info, bool)
	Count() int
}

// PolicySource supplies the active policy snapshot for health reporting.
type PolicySource interface {
	Snapshot() *policy.Snapshot
}

// Deps are the collaborators behind the HTTP routes.
type Deps struct {
	Gateway  *gateway.Gateway
	Sessions SessionTable
	Policy   PolicySource
	Endpoint upstream.Endpoint
	Flows    authflowrepo.Repo
	Metrics  http.Handler // optional; /metrics is not routed when nil
}

type Server struct {
	env      string // Environment (e.g., "DEV", "production")
	router   chi.Router
	routes   []string
	config   config.Config
	gateway  *gateway.Gateway
	sessions SessionTable
	policy   PolicySource
	endpoint upstream.Endpoint
	flows    authflowrepo.Repo
	states   *StateSigner
	metrics  http.Handler
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Gateway == nil || deps.Sessions == nil || deps.Policy == nil || deps.Endpoint == nil {
		return nil, fmt.Errorf("[Server New] gateway, sessions, policy and endpoint are required")
	}
	if deps.Flows == nil {
		deps.Flows = authflowrepo.NewInMemoryRepo()
	}

	s := &Server{
		env:      cfg.GetEnv(),
		router:   chi.NewRouter(),
		config:   cfg,
		gateway:  deps.Gateway,
		sessions: deps.Sessions,
		policy:   deps.Policy,
		endpoint: deps.Endpoint,
		flows:    deps.Flows,
		states:   NewStateSigner(cfg.GetStateSecret(), cfg.GetAuthCodeTimeout()),
		metrics:  deps.Metrics,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RegisterRouteFunc routes pattern ("METHOD /path") to handler.
func (s *Server) RegisterRouteFunc(pattern string, handler http.HandlerFunc) {
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		path = method
		method = ""
	}
	s.routes = append(s.routes, pattern)
	if method == "" {
		s.router.HandleFunc(path, handler)
		return
	}
	s.router.MethodFunc(method, path, handler)
	if method != http.MethodOptions && method != http.MethodGet {
		s.router.MethodFunc(http.MethodOptions, path, ChainMiddleware(preflightHandler, s.CorsMiddleware))
	}
}

func preflightHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// SweepFlows drops authorization flows older than the code timeout.
func (s *Server) SweepFlows() int {
	return s.flows.DeleteExpired(NowTimeFunc().Add(-s.config.GetAuthCodeTimeout()))
}

// RunFlowSweeper calls SweepFlows every interval until ctx is done.
func (s *Server) RunFlowSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.SweepFlows(); n > 0 {
				log.Debug().Int("removed", n).Msg("expired authorization flows removed")
			}
		}
	}
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
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}
