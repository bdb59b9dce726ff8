package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	// Plugin API routes
	s.RegisterRouteHandler("POST "+RouteActions, ChainMiddleware(s.ActionHandler(), s.APIMiddleware(s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("OPTIONS "+RouteActions, ChainMiddleware(noContent, s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteObserve, ChainMiddleware(s.ObserveHandler(), s.LoggingMiddleware, s.RecoverMiddleware))
	s.RegisterRouteHandler("GET "+RouteSession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware()...))

	// Admin routes (require the admin API key)
	s.RegisterRouteHandler("GET "+RouteAdminUsers, ChainMiddleware(s.AdminUsersListHandler(), s.APIMiddleware(s.RequireAdmin())...))
	s.RegisterRouteHandler("POST "+RouteAdminUsers, ChainMiddleware(s.AdminUpsertUserHandler(), s.APIMiddleware(s.RequireAdmin())...))
	s.RegisterRouteHandler("DELETE "+RouteAdminUser, ChainMiddleware(s.AdminDeleteUserHandler(), s.APIMiddleware(s.RequireAdmin())...))
	s.RegisterRouteHandler("POST "+RouteAdminUserLogout, ChainMiddleware(s.AdminLogoutUserHandler(), s.APIMiddleware(s.RequireAdmin())...))
	s.RegisterRouteHandler("GET "+RouteAdminLogins, ChainMiddleware(s.AdminLoginsListHandler(), s.APIMiddleware(s.RequireAdmin())...))
	s.RegisterRouteHandler("POST "+RouteAdminDevices, ChainMiddleware(s.AdminEnrolDeviceHandler(), s.APIMiddleware(s.RequireAdmin())...))

	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.Handler())
}

func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
