package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/mkravchenko/mediarag/internal/adapters/http"
	"github.com/mkravchenko/mediarag/internal/bootstrap"
	"github.com/mkravchenko/mediarag/internal/config"
	"github.com/mkravchenko/mediarag/internal/observability/logging"
	"github.com/mkravchenko/mediarag/internal/observability/metrics"
)

// pipelineMetrics forwards pipeline step signals to Prometheus.
type pipelineMetrics struct {
	metrics *metrics.APIMetrics
}

func (p pipelineMetrics) ToolInvoked(tool, status string) {
	p.metrics.RecordToolCall("api", tool, status)
}

func (p pipelineMetrics) ModalityDegraded(modality string) {
	p.metrics.RecordDegradedModality("api", modality)
}

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	apiMetrics := metrics.NewAPIMetrics("api")
	app.Agent.SetObserver(pipelineMetrics{metrics: apiMetrics})
	router := httpadapter.NewRouter(app.Agent, app.Search, app.Conversations, apiMetrics, cfg.DefaultUserID)
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
