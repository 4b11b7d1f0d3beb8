package server

import "github.com/jrsteele09/go-oidc-connector/internal/config"

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Pages owned by the host application; flows redirect here.
	RouteHome    = "/"
	RouteAccount = "/account"

	// OpenID Connect sign-in
	RouteOIDCLogin      = "/auth/oidc/login"
	RouteOIDCCallback   = config.CallbackPath
	RouteOIDCDisconnect = "/auth/oidc/disconnect"
	RouteLogout         = "/auth/logout"

	// Operations
	RouteMetrics = "/metrics"
	RouteHealth  = "/healthz"
)
