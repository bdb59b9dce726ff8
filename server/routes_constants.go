package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Plugin API Routes
	RouteActions = "/api/v1/actions"
	RouteObserve = "/api/v1/observe"
	RouteSession = "/api/v1/session"

	// Admin Routes
	RouteAdminUsers      = "/api/v1/admin/users"
	RouteAdminUser       = "/api/v1/admin/users/{userName}"
	RouteAdminUserLogout = "/api/v1/admin/users/{userName}/logout"
	RouteAdminLogins     = "/api/v1/admin/logins"
	RouteAdminDevices    = "/api/v1/admin/devices"

	// Operational Routes
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)
