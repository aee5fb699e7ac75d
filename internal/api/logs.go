package api

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"
)

const defaultLogPollInterval = 3 * time.Second

// podLogs carries one pod's log tail, split into lines.
type podLogs struct {
	PodName string   `json:"podName"`
	Logs    []string `json:"logs"`
}

type logsPayload struct {
	Type string               `json:"type"`
	Logs map[string][]podLogs `json:"logs"`
}

// handleLogsStream is the degenerate stream: no multiplexer, no mailbox,
// just a fixed-interval poll of pod logs rendered as `update` events. A poll
// that fails keeps the connection alive with a heartbeat so transient pod
// churn does not drop the client.
func (s *server) handleLogsStream(w http.ResponseWriter, r *http.Request) {
	if !s.streamsEnabled(w) {
		return
	}
	namespace := r.PathValue("namespace")
	name := r.PathValue("name")
	components := componentFilter(r.URL.Query()["component"])

	writer, err := startSSEWriter(w)
	if err != nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	interval := s.logPollInterval
	if interval <= 0 {
		interval = defaultLogPollInterval
	}

	ctx := r.Context()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		payload, err := s.collectLogs(ctx, namespace, name, components)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if s.logger != nil {
				s.logger.Warn("log poll failed", map[string]string{
					"namespace": namespace,
					"name":      name,
					"error":     err.Error(),
				})
			}
			if err := writer.WriteComment("heartbeat"); err != nil {
				return
			}
		} else if err := writer.WriteEvent("update", payload); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *server) collectLogs(ctx context.Context, namespace, name string, components []string) (logsPayload, error) {
	pods, err := s.cluster.ListComponentPods(ctx, namespace, name, components)
	if err != nil {
		return logsPayload{}, err
	}

	payload := logsPayload{Type: "UPDATE", Logs: make(map[string][]podLogs, len(pods))}
	for component, podNames := range pods {
		sort.Strings(podNames)
		entries := make([]podLogs, 0, len(podNames))
		for _, pod := range podNames {
			raw, err := s.cluster.PodLogs(ctx, namespace, pod, "")
			if err != nil {
				// One unreadable pod (terminating, just scheduled)
				// must not hide the others.
				if s.logger != nil {
					s.logger.Debug("pod logs unavailable", map[string]string{
						"namespace": namespace,
						"pod":       pod,
						"error":     err.Error(),
					})
				}
				entries = append(entries, podLogs{
					PodName: pod,
					Logs:    []string{"Error retrieving logs: " + err.Error()},
				})
				continue
			}
			entries = append(entries, podLogs{PodName: pod, Logs: splitLogLines(raw)})
		}
		payload.Logs[component] = entries
	}
	return payload, nil
}

func splitLogLines(raw string) []string {
	raw = strings.TrimRight(raw, "\n")
	if raw == "" {
		return []string{}
	}
	return strings.Split(raw, "\n")
}

func componentFilter(values []string) []string {
	var components []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value != "" {
			components = append(components, value)
		}
	}
	return components
}
