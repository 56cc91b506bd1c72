package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Browser navigation
	RouteLogin    = "/login"
	RouteCallback = "/callback"

	// API Routes (called by the frontend with credentials)
	RouteAPIMe     = "/api/me"
	RouteAPILogout = "/api/logout"

	// Operational
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)
