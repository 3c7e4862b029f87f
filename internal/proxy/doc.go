// Package proxy provides the route table and HTTP reverse proxy of the
// gateway.
//
// Each configured route mounts a path prefix on a chi router. A request
// under the prefix is tagged with the route name and its anonymous flag,
// passes the admission controller and is forwarded to the route's
// upstream with httputil.ReverseProxy.
//
// # Features
//
//   - Prefix routes with per-route anonymous flag
//   - Hop-by-hop header removal and X-Forwarded-* headers
//   - Trace context propagation to upstreams
//   - JSON error bodies for unknown routes and upstream failures
//   - Liveness and readiness endpoints
//
// # Usage
//
//	routes, err := proxy.RoutesFromConfig(cfg.Routes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	handler, err := proxy.NewRouter(routes,
//	    proxy.WithAdmission(controller.Handler),
//	    proxy.WithMiddleware(middleware.RequestID(), middleware.Recovery(logger)),
//	    proxy.WithHealth(checker),
//	    proxy.WithRouterLogger(logger),
//	)
package proxy
