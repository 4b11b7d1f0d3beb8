package server

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteHome+"{$}", ChainMiddleware(s.HomeHandler(), s.HTMLMiddleWare(NoStoreMiddleware)...))

	// OIDC flow
	s.RegisterRouteHandler("GET "+RouteOIDCLogin, ChainMiddleware(s.LoginHandler(), s.HTMLMiddleWare(NoStoreMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteOIDCCallback, ChainMiddleware(s.CallbackHandler(), s.HTMLMiddleWare(NoStoreMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteOIDCCallback, ChainMiddleware(s.CallbackHandler(), s.HTMLMiddleWare(NoStoreMiddleware)...)) // For form_post response mode

	// Signed-in routes
	s.RegisterRouteHandler("GET "+RouteOIDCDisconnect, ChainMiddleware(s.DisconnectFormHandler(), s.HTMLMiddleWare(NoStoreMiddleware, s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteOIDCDisconnect, ChainMiddleware(s.DisconnectSubmitHandler(), s.HTMLMiddleWare(NoStoreMiddleware, s.RequireSession())...))
	s.RegisterRouteHandler("GET "+RouteAccount, ChainMiddleware(s.AccountHandler(), s.HTMLMiddleWare(NoStoreMiddleware, s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare(NoStoreMiddleware)...))

	// Operations
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	if s.metrics != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics)
	}
}
