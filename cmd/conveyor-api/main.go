// Conveyor API принимает события и отдаёт историю runs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/internal/api"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger().With("service", "conveyor-api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("conveyor-api failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	wf, err := engine.ParseFile(cfg.WorkflowFile)
	if err != nil {
		return fmt.Errorf("load workflow %s: %w", cfg.WorkflowFile, err)
	}
	logger.Info("workflow loaded", "workflow", wf.Name, "jobs", engine.MatrixSize(wf.Matrix))

	pool, err := repo.NewPool(ctx, cfg.DatabaseURL, repo.WithAppName("conveyor-api"))
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := repo.Migrate(ctx, pool); err != nil {
		return err
	}

	apiCfg := api.Config{
		Workflow: wf,
		Store:    repo.NewStore(pool),
		Metrics:  telemetry.NewMetrics(prometheus.DefaultRegisterer),
		Logger:   logger,
	}

	// без брокера история runs доступна, а приём событий отвечает 503
	mqConn := connectBroker(ctx, cfg, logger)
	if mqConn != nil {
		defer mqConn.Close()
		apiCfg.Publisher = mq.NewPublisher(mqConn, logger)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{
			"database": pool.Ping(r.Context()) == nil,
			"broker":   mqConn != nil && mqConn.IsConnected(),
			"workflow": wf.Name,
		}
		w.Header().Set("Content-Type", "application/json")
		if !status["database"].(bool) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	api.NewHandler(apiCfg).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              config.Addr(cfg.APIPort),
		Handler:           mux,
		ReadHeaderTimeout: cfg.ShutdownTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// connectBroker возвращает nil, если RabbitMQ недоступен.
func connectBroker(ctx context.Context, cfg config.Config, logger *slog.Logger) *mq.Connection {
	url := cfg.RabbitMQURL
	if url == "" {
		url = mq.DefaultURL()
	}

	conn, err := mq.NewConnection(url, logger, mq.WithName("conveyor-api"))
	if err != nil {
		logger.Warn("RabbitMQ not available, event intake disabled", "error", err)
		return nil
	}
	if err := mq.SetupTopology(ctx, conn); err != nil {
		logger.Warn("failed to setup topology", "error", err)
	}
	return conn
}
