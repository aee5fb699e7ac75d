package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"modelboard/internal/watch"
)

const wsWriteTimeout = 10 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard frontend is served from the same origin in-cluster;
	// deployments terminating elsewhere front this with an ingress.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *server) handleNamespaceSocket(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	s.serveSocket(w, r, watch.NamespaceKey(namespace), func(ctx context.Context) (any, error) {
		objects, err := s.cluster.ListInferenceServices(ctx, namespace)
		if err != nil {
			return nil, err
		}
		return initialList(objects), nil
	})
}

func (s *server) handleObjectSocket(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	name := r.PathValue("name")
	s.serveSocket(w, r, watch.ObjectKey(namespace, name), func(ctx context.Context) (any, error) {
		object, err := s.cluster.GetInferenceService(ctx, namespace, name)
		if err != nil {
			return nil, err
		}
		return initialObject(object), nil
	})
}

func (s *server) handleObjectEventsSocket(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	name := r.PathValue("name")
	s.serveSocket(w, r, watch.ObjectEventsKey(namespace, name), func(ctx context.Context) (any, error) {
		events, err := s.cluster.ListObjectEvents(ctx, namespace, name)
		if err != nil {
			return nil, err
		}
		return initialList(events), nil
	})
}

// serveSocket is the websocket twin of streamSession: the same snapshot,
// attach, fan-in loop, with JSON frames instead of SSE blocks. Heartbeats
// become protocol-level pings.
func (s *server) serveSocket(w http.ResponseWriter, r *http.Request, key watch.Key, snapshot func(ctx context.Context) (any, error)) {
	if !s.streamsEnabled(w) {
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		if s.logger != nil {
			s.logger.Warn("websocket upgrade failed", map[string]string{
				"key":   key.String(),
				"error": err.Error(),
			})
		}
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Read pump: the client sends nothing meaningful, but reading is how
	// gorilla surfaces close frames and dead peers.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	initial, err := snapshot(ctx)
	if err != nil {
		s.metrics.IncSnapshotError()
		if s.logger != nil {
			s.logger.Error("snapshot fetch failed", map[string]string{
				"key":   key.String(),
				"error": err.Error(),
			})
		}
		_ = writeSocketJSON(conn, errorEnvelope(err))
		return
	}
	if err := writeSocketJSON(conn, initial); err != nil {
		return
	}

	mailbox := watch.NewMailbox()
	s.mux.Attach(key, mailbox)
	defer func() {
		mailbox.Close()
		s.mux.Detach(key, mailbox)
	}()

	interval := s.heartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	heartbeat := time.NewTimer(interval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case envelope := <-mailbox.Events():
			if err := writeSocketJSON(conn, envelope); err != nil {
				return
			}
			resetTimer(heartbeat, interval)
		case <-heartbeat.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
			heartbeat.Reset(interval)
		}
	}
}

func writeSocketJSON(conn *websocket.Conn, payload any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(payload)
}
