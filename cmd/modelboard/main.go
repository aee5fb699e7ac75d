package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"modelboard/internal/api"
	"modelboard/internal/cluster"
	"modelboard/internal/config"
	"modelboard/internal/logging"
	"modelboard/internal/metrics"
	"modelboard/internal/watch"
)

const shutdownTimeout = 10 * time.Second

func main() {
	bootstrap := logging.NewLogger(logging.LevelInfo)
	settings := config.Load(bootstrap)
	logger := logging.NewLogger(settings.LogLevel)

	logger.Info("settings loaded", map[string]string{
		"settings": settings.String(),
	})

	client, err := buildClusterClient(settings)
	if err != nil {
		logger.Error("cluster client setup failed", map[string]string{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	registry := &metrics.Registry{}
	multiplexer := watch.NewMultiplexer(watch.MultiplexerOptions{
		Source:  &watch.ClusterSource{Cluster: client},
		Logger:  logger,
		Metrics: registry,
	})

	store := config.NewStore(settings)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := config.WatchOverlay(ctx, store, logger); err != nil {
		logger.Warn("settings overlay watch unavailable", map[string]string{
			"error": err.Error(),
		})
	}

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, api.Options{
		Cluster: client,
		Mux:     multiplexer,
		Store:   store,
		Logger:  logger,
		Metrics: registry,
	})

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(settings.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("modelboard listening", map[string]string{
			"addr": server.Addr,
		})
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received", nil)
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", map[string]string{
				"error": err.Error(),
			})
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown failed", map[string]string{
			"error": err.Error(),
		})
	}
}

// buildClusterClient prefers explicit API server settings and falls back to
// in-cluster service account discovery.
func buildClusterClient(settings config.Settings) (cluster.Interface, error) {
	if settings.APIServerURL != "" {
		return cluster.NewClient(cluster.ClientConfig{
			BaseURL: settings.APIServerURL,
			Token:   settings.APIServerToken,
		})
	}
	return cluster.NewInClusterClient()
}
