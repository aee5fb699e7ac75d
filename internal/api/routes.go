package api

import "net/http"

// RegisterRoutes mounts the full handler set on mux.
func RegisterRoutes(mux *http.ServeMux, options Options) {
	s := &server{
		cluster:           options.Cluster,
		mux:               options.Mux,
		store:             options.Store,
		logger:            options.Logger,
		metrics:           options.Metrics,
		heartbeatInterval: options.HeartbeatInterval,
		logPollInterval:   options.LogPollInterval,
	}

	handle := func(pattern string, handler http.HandlerFunc) {
		wrapped := securityHeadersMiddleware(cacheControlNoStore, handler)
		mux.Handle(pattern, loggingMiddleware(s.logger, wrapped))
	}

	handle("GET /api/sse/namespaces/{namespace}/inferenceservices", s.handleNamespaceStream)
	handle("GET /api/sse/namespaces/{namespace}/inferenceservices/{name}", s.handleObjectStream)
	handle("GET /api/sse/namespaces/{namespace}/inferenceservices/{name}/events", s.handleObjectEventsStream)
	handle("GET /api/sse/namespaces/{namespace}/inferenceservices/{name}/logs", s.handleLogsStream)

	handle("GET /ws/namespaces/{namespace}/inferenceservices", s.handleNamespaceSocket)
	handle("GET /ws/namespaces/{namespace}/inferenceservices/{name}", s.handleObjectSocket)
	handle("GET /ws/namespaces/{namespace}/inferenceservices/{name}/events", s.handleObjectEventsSocket)

	handle("GET /api/config", s.handleConfig)
	handle("GET /api/config/namespaces", s.handleNamespaces)

	handle("GET /healthz", s.handleHealthz)
	handle("GET /metrics", s.handleMetrics)
}
