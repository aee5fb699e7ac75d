package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"modelboard/internal/logging"
	"modelboard/internal/metrics"
	"modelboard/internal/watch"
)

const defaultHeartbeatInterval = 30 * time.Second

// streamSession turns one connection into an SSE event stream: snapshot as
// an `initial` event, live tail from a mailbox attached to the multiplexer,
// heartbeat comments during silence, detach on every exit path.
type streamSession struct {
	Key     watch.Key
	Mux     *watch.Multiplexer
	Logger  *logging.Logger
	Metrics *metrics.Registry

	// Snapshot produces the payload of the initial event.
	Snapshot func(ctx context.Context) (any, error)

	// HeartbeatInterval defaults to 30s; tests shrink it.
	HeartbeatInterval time.Duration
}

func (s *streamSession) serve(w http.ResponseWriter, r *http.Request) {
	writer, err := startSSEWriter(w)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("sse stream unavailable", map[string]string{
				"path":  r.URL.Path,
				"error": err.Error(),
			})
		}
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()

	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		s.Metrics.IncSnapshotError()
		if s.Logger != nil {
			s.Logger.Error("snapshot fetch failed", map[string]string{
				"key":   s.Key.String(),
				"error": err.Error(),
			})
		}
		// Best effort: the client may already be gone.
		_ = writer.WriteEvent("error", errorEnvelope(err))
		return
	}
	if err := writer.WriteEvent("initial", snapshot); err != nil {
		return
	}

	mailbox := watch.NewMailbox()
	s.Mux.Attach(s.Key, mailbox)
	defer func() {
		mailbox.Close()
		s.Mux.Detach(s.Key, mailbox)
		if s.Logger != nil {
			s.Logger.Info("client disconnected", map[string]string{
				"key": s.Key.String(),
			})
		}
	}()

	interval := s.HeartbeatInterval
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
			if err := writer.WriteEvent(strings.ToLower(envelope.Type), envelope); err != nil {
				return
			}
			resetTimer(heartbeat, interval)
		case <-heartbeat.C:
			if err := writer.WriteComment("heartbeat"); err != nil {
				return
			}
			heartbeat.Reset(interval)
		}
	}
}

func resetTimer(timer *time.Timer, interval time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(interval)
}

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func errorEnvelope(err error) errorPayload {
	return errorPayload{Type: "ERROR", Message: err.Error()}
}
