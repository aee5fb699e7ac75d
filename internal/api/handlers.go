package api

import (
	"context"
	"net/http"
	"time"

	"modelboard/internal/cluster"
	"modelboard/internal/config"
	"modelboard/internal/logging"
	"modelboard/internal/metrics"
	"modelboard/internal/watch"
)

// Options wires the handler set. Cluster, Mux and Store are required; Logger
// and Metrics may be nil.
type Options struct {
	Cluster cluster.Interface
	Mux     *watch.Multiplexer
	Store   *config.Store
	Logger  *logging.Logger
	Metrics *metrics.Registry

	// HeartbeatInterval and LogPollInterval override the stream timings
	// in tests. Zero selects the defaults (30s and 3s).
	HeartbeatInterval time.Duration
	LogPollInterval   time.Duration
}

type server struct {
	cluster cluster.Interface
	mux     *watch.Multiplexer
	store   *config.Store
	logger  *logging.Logger
	metrics *metrics.Registry

	heartbeatInterval time.Duration
	logPollInterval   time.Duration
}

// streamsEnabled gates every live stream endpoint on the current settings.
// The flag is live: a settings overlay reload flips it without restart.
func (s *server) streamsEnabled(w http.ResponseWriter) bool {
	if s.store != nil && !s.store.Current().SSEEnabled {
		writeJSONError(w, http.StatusServiceUnavailable, "event streaming is disabled")
		return false
	}
	return true
}

func (s *server) handleNamespaceStream(w http.ResponseWriter, r *http.Request) {
	if !s.streamsEnabled(w) {
		return
	}
	namespace := r.PathValue("namespace")

	session := &streamSession{
		Key:               watch.NamespaceKey(namespace),
		Mux:               s.mux,
		Logger:            s.logger,
		Metrics:           s.metrics,
		HeartbeatInterval: s.heartbeatInterval,
		Snapshot: func(ctx context.Context) (any, error) {
			objects, err := s.cluster.ListInferenceServices(ctx, namespace)
			if err != nil {
				return nil, err
			}
			return initialList(objects), nil
		},
	}
	session.serve(w, r)
}

func (s *server) handleObjectStream(w http.ResponseWriter, r *http.Request) {
	if !s.streamsEnabled(w) {
		return
	}
	namespace := r.PathValue("namespace")
	name := r.PathValue("name")

	session := &streamSession{
		Key:               watch.ObjectKey(namespace, name),
		Mux:               s.mux,
		Logger:            s.logger,
		Metrics:           s.metrics,
		HeartbeatInterval: s.heartbeatInterval,
		Snapshot: func(ctx context.Context) (any, error) {
			object, err := s.cluster.GetInferenceService(ctx, namespace, name)
			if err != nil {
				return nil, err
			}
			return initialObject(object), nil
		},
	}
	session.serve(w, r)
}

func (s *server) handleObjectEventsStream(w http.ResponseWriter, r *http.Request) {
	if !s.streamsEnabled(w) {
		return
	}
	namespace := r.PathValue("namespace")
	name := r.PathValue("name")

	session := &streamSession{
		Key:               watch.ObjectEventsKey(namespace, name),
		Mux:               s.mux,
		Logger:            s.logger,
		Metrics:           s.metrics,
		HeartbeatInterval: s.heartbeatInterval,
		Snapshot: func(ctx context.Context) (any, error) {
			events, err := s.cluster.ListObjectEvents(ctx, namespace, name)
			if err != nil {
				return nil, err
			}
			return initialList(events), nil
		},
	}
	session.serve(w, r)
}

// The initial event carries the full current state: a list for namespace and
// event streams, the single object for a named stream.
type initialListPayload struct {
	Type  string           `json:"type"`
	Items []cluster.Object `json:"items"`
}

type initialObjectPayload struct {
	Type   string         `json:"type"`
	Object cluster.Object `json:"object"`
}

func initialList(items []cluster.Object) initialListPayload {
	if items == nil {
		items = []cluster.Object{}
	}
	return initialListPayload{Type: "INITIAL", Items: items}
}

func initialObject(object cluster.Object) initialObjectPayload {
	return initialObjectPayload{Type: "INITIAL", Object: object}
}

type configResponse struct {
	GrafanaPrefix         string `json:"grafanaPrefix"`
	GrafanaCPUMemoryDB    string `json:"grafanaCpuMemoryDb"`
	GrafanaHTTPRequestsDB string `json:"grafanaHttpRequestsDb"`
	SSEEnabled            bool   `json:"sseEnabled"`
}

func (s *server) handleConfig(w http.ResponseWriter, r *http.Request) {
	settings := s.store.Current()
	writeJSON(w, http.StatusOK, configResponse{
		GrafanaPrefix:         settings.GrafanaPrefix,
		GrafanaCPUMemoryDB:    settings.GrafanaCPUMemoryDB,
		GrafanaHTTPRequestsDB: settings.GrafanaHTTPRequestsDB,
		SSEEnabled:            settings.SSEEnabled,
	})
}

type namespacesResponse struct {
	Namespaces []string `json:"namespaces"`
}

func (s *server) handleNamespaces(w http.ResponseWriter, r *http.Request) {
	all, err := s.cluster.ListNamespaces(r.Context())
	if err != nil {
		if s.logger != nil {
			s.logger.Error("namespace listing failed", map[string]string{
				"error": err.Error(),
			})
		}
		writeJSONError(w, http.StatusBadGateway, "namespace listing failed")
		return
	}

	visible := config.FilterNamespaces(all, s.store.Current().AllowedNamespaces, s.logger)
	if visible == nil {
		visible = []string{}
	}
	writeJSON(w, http.StatusOK, namespacesResponse{Namespaces: visible})
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	_ = s.metrics.WritePrometheus(w)
}
