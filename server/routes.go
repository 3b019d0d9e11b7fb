package server

import "net/http"

func (s *Server) initRoutes() {
	// OAuth flow
	s.RegisterRouteFunc("GET "+StartRoute, ChainMiddleware(s.StartAuthHandler(), s.BrowserMiddleware()...))
	s.RegisterRouteFunc("GET "+CallbackRoute, ChainMiddleware(s.OAuthCallbackHandler(), s.BrowserMiddleware()...))

	// Gateway API
	s.RegisterRouteFunc("POST "+AuthorizeRoute, ChainMiddleware(s.AuthorizeHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+SessionsRoute, ChainMiddleware(s.OpenSessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+SessionRoute, ChainMiddleware(s.SessionInfoHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+UnbindRoute, ChainMiddleware(s.UnbindHandler(), s.APIMiddleware()...))

	// Operations
	s.RegisterRouteFunc("GET "+HealthRoute, ChainMiddleware(s.HealthHandler(), s.RecoverMiddleware))
	if s.metrics != nil {
		s.RegisterRouteFunc("GET "+MetricsRoute, s.metrics.ServeHTTP)
	}

	s.router.NotFound(ChainMiddleware(s.NotFoundHandler(), s.APIMiddleware()...))
}

func (s *Server) NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no route for "+r.URL.Path)
	}
}
