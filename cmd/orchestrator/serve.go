package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cerebraschat/orchestrator/internal/config"
	"github.com/cerebraschat/orchestrator/internal/llmclient"
	"github.com/cerebraschat/orchestrator/internal/metrics"
	"github.com/cerebraschat/orchestrator/internal/observability"
	"github.com/cerebraschat/orchestrator/internal/orchestrator"
)

// newServeCmd builds the "serve" subcommand, following the
// config-then-start-then-wait-for-signal shape of the teacher's
// cmd/nexus/commands_serve.go and cmd/nexus-edge/main.go.
func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestration HTTP server",
		Long: `Start the orchestrator HTTP server.

The server will:
1. Load configuration from the specified file (if any), then environment
2. Build the backend model client and request-scoped key pool seed
3. Start the HTTP server exposing the streaming chat endpoint, /healthz,
   and /metrics
4. Wait for SIGINT/SIGTERM and shut down gracefully`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format, nil)

	reg := newRegistry()
	met := metrics.New(reg)

	client := llmclient.New(cfg.Cerebras.BaseURL)
	orch := orchestrator.New(client, cfg.Cerebras.APIKeys,
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(met),
	)

	mux := http.NewServeMux()
	mux.Handle("/v1/chat", orchestrator.WithRequestLogging(orch, logger))
	mux.HandleFunc("/healthz", handleHealthz)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "addr", cfg.Server.Addr)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", "error", err)
	}
	return <-errCh
}

// newRegistry returns a fresh prometheus.Registry rather than using
// prometheus.DefaultRegisterer, so repeated calls in tests (or a future
// second orchestrator instance in the same process) never collide on
// already-registered collector names.
func newRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}
