package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"modelboard/internal/logging"
)

const (
	DefaultPort                  = 5000
	DefaultGrafanaPrefix         = "/grafana"
	DefaultGrafanaCPUMemoryDB    = "db/knative-serving-revision-cpu-and-memory-usage"
	DefaultGrafanaHTTPRequestsDB = "db/knative-serving-revision-http-requests"
)

// Settings is the full backend configuration. Everything defaults; invalid
// values are logged and replaced, never fatal.
type Settings struct {
	Port     int
	LogLevel logging.Level

	GrafanaPrefix         string
	GrafanaCPUMemoryDB    string
	GrafanaHTTPRequestsDB string
	SSEEnabled            bool

	// AllowedNamespaces narrows the namespace set exposed to clients.
	// Empty means unfiltered.
	AllowedNamespaces []string

	// APIServerURL and APIServerToken configure an out-of-cluster API
	// connection; empty means in-cluster service account discovery.
	APIServerURL   string
	APIServerToken string

	// OverlayPath points at an optional YAML file layered over the
	// environment, reloaded live on change.
	OverlayPath string
}

// overlay mirrors the YAML file; pointer fields distinguish unset from zero.
type overlay struct {
	GrafanaPrefix         *string   `yaml:"grafanaPrefix"`
	GrafanaCPUMemoryDB    *string   `yaml:"grafanaCpuMemoryDb"`
	GrafanaHTTPRequestsDB *string   `yaml:"grafanaHttpRequestsDb"`
	SSEEnabled            *bool     `yaml:"sseEnabled"`
	AllowedNamespaces     *[]string `yaml:"allowedNamespaces"`
}

// Load builds Settings from the environment plus the optional overlay file.
func Load(logger *logging.Logger) Settings {
	settings := Settings{
		Port:                  DefaultPort,
		LogLevel:              logging.LevelInfo,
		GrafanaPrefix:         DefaultGrafanaPrefix,
		GrafanaCPUMemoryDB:    DefaultGrafanaCPUMemoryDB,
		GrafanaHTTPRequestsDB: DefaultGrafanaHTTPRequestsDB,
		SSEEnabled:            true,
	}

	if raw := os.Getenv("MODELBOARD_PORT"); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil && port > 0 && port < 65536 {
			settings.Port = port
		} else if logger != nil {
			logger.Warn("invalid MODELBOARD_PORT, using default", map[string]string{
				"value":   raw,
				"default": strconv.Itoa(DefaultPort),
			})
		}
	}
	if raw := os.Getenv("MODELBOARD_LOG_LEVEL"); raw != "" {
		if level, ok := logging.ParseLevel(raw); ok {
			settings.LogLevel = level
		} else if logger != nil {
			logger.Warn("invalid MODELBOARD_LOG_LEVEL, using info", map[string]string{
				"value": raw,
			})
		}
	}
	if raw := os.Getenv("GRAFANA_PREFIX"); raw != "" {
		settings.GrafanaPrefix = raw
	}
	if raw := os.Getenv("GRAFANA_CPU_MEMORY_DB"); raw != "" {
		settings.GrafanaCPUMemoryDB = raw
	}
	if raw := os.Getenv("GRAFANA_HTTP_REQUESTS_DB"); raw != "" {
		settings.GrafanaHTTPRequestsDB = raw
	}
	if raw := os.Getenv("SSE_ENABLED"); raw != "" {
		settings.SSEEnabled = strings.EqualFold(strings.TrimSpace(raw), "true")
	}
	settings.AllowedNamespaces = splitList(os.Getenv("ALLOWED_NAMESPACES"))
	settings.APIServerURL = strings.TrimSpace(os.Getenv("MODELBOARD_APISERVER_URL"))
	settings.APIServerToken = strings.TrimSpace(os.Getenv("MODELBOARD_APISERVER_TOKEN"))
	settings.OverlayPath = strings.TrimSpace(os.Getenv("MODELBOARD_SETTINGS"))

	return ApplyOverlay(settings, logger)
}

// ApplyOverlay layers the YAML overlay file (if configured and readable)
// over base. Errors leave base untouched.
func ApplyOverlay(base Settings, logger *logging.Logger) Settings {
	if base.OverlayPath == "" {
		return base
	}

	payload, err := os.ReadFile(base.OverlayPath)
	if err != nil {
		if !os.IsNotExist(err) && logger != nil {
			logger.Warn("settings overlay unreadable", map[string]string{
				"path":  base.OverlayPath,
				"error": err.Error(),
			})
		}
		return base
	}

	var parsed overlay
	if err := yaml.Unmarshal(payload, &parsed); err != nil {
		if logger != nil {
			logger.Warn("settings overlay invalid, keeping current settings", map[string]string{
				"path":  base.OverlayPath,
				"error": err.Error(),
			})
		}
		return base
	}

	if parsed.GrafanaPrefix != nil {
		base.GrafanaPrefix = *parsed.GrafanaPrefix
	}
	if parsed.GrafanaCPUMemoryDB != nil {
		base.GrafanaCPUMemoryDB = *parsed.GrafanaCPUMemoryDB
	}
	if parsed.GrafanaHTTPRequestsDB != nil {
		base.GrafanaHTTPRequestsDB = *parsed.GrafanaHTTPRequestsDB
	}
	if parsed.SSEEnabled != nil {
		base.SSEEnabled = *parsed.SSEEnabled
	}
	if parsed.AllowedNamespaces != nil {
		base.AllowedNamespaces = normalizeList(*parsed.AllowedNamespaces)
	}
	return base
}

// FilterNamespaces applies the allow-list to the cluster's namespace set.
// Entries that match nothing are logged and ignored; an allow-list with no
// valid entry falls back to the unfiltered set.
func FilterNamespaces(all, allowed []string, logger *logging.Logger) []string {
	if len(allowed) == 0 {
		return all
	}

	known := make(map[string]struct{}, len(all))
	for _, namespace := range all {
		known[namespace] = struct{}{}
	}

	var visible []string
	var invalid []string
	for _, namespace := range allowed {
		if _, ok := known[namespace]; ok {
			visible = append(visible, namespace)
		} else {
			invalid = append(invalid, namespace)
		}
	}

	if len(invalid) > 0 && logger != nil {
		logger.Warn("allowed namespaces not found in cluster, ignored", map[string]string{
			"namespaces": strings.Join(invalid, ","),
		})
	}
	if len(visible) == 0 {
		if logger != nil {
			logger.Warn("no allowed namespace exists in cluster, falling back to all", map[string]string{
				"allowed": strings.Join(allowed, ","),
			})
		}
		return all
	}
	return visible
}

func splitList(raw string) []string {
	return normalizeList(strings.Split(raw, ","))
}

func normalizeList(values []string) []string {
	var result []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value != "" {
			result = append(result, value)
		}
	}
	return result
}

func (s Settings) String() string {
	return fmt.Sprintf("port=%d sse=%t grafanaPrefix=%s allowedNamespaces=%s",
		s.Port, s.SSEEnabled, s.GrafanaPrefix, strings.Join(s.AllowedNamespaces, ","))
}
