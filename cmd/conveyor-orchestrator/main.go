// Conveyor Orchestrator — выполняет runs.
//
// Orchestrator:
//   - Получает события из очереди events.received
//   - Проверяет правила запуска и разворачивает матрицу
//   - Выполняет jobs параллельно с учётом fail-fast и max-parallel
//   - Сохраняет результаты и публикует run.completed
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/steps"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conveyor-orchestrator")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	wf, err := engine.ParseFile(cfg.WorkflowFile)
	if err != nil {
		logger.Error("failed to load workflow", "file", cfg.WorkflowFile, "error", err)
		os.Exit(1)
	}
	logger.Info("workflow loaded", "workflow", wf.Name, "steps", len(wf.Steps), "dimensions", len(wf.Matrix))

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL, repo.WithAppName("conveyor-orchestrator"),
		// параллельные runs пишут результаты jobs одновременно
		repo.WithMaxConns(int32(4+2*cfg.Prefetch)))
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	// RabbitMQ
	mqURL := cfg.RabbitMQURL
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}
	mqConn, err := mq.NewConnection(mqURL, logger, mq.WithName("conveyor-orchestrator"))
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}
	logger.Debug("topology declared", "bindings", mq.DescribeTopology())

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	registry := steps.DefaultRegistry()

	orch := orchestrator.New(orchestrator.Config{
		Workflow: wf,
		Registry: registry,
		Runner: worker.New(worker.Config{
			Registry:  registry,
			Metrics:   metrics,
			Workspace: cfg.WorkDir,
			Logger:    logger,
		}),
		Store:     repo.NewStore(pool),
		Publisher: mq.NewPublisher(mqConn, logger),
		Metrics:   metrics,
		Conn:      mqConn,
		Prefetch:  cfg.Prefetch,
		Logger:    logger,
	})

	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !mqConn.IsConnected() {
			http.Error(w, "rabbitmq disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok active_runs=%d", orch.ActiveRunsCount())
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := config.Addr(cfg.OrchPort)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем orchestrator: ждём текущие runs
	orch.Stop()
	logger.Info("conveyor-orchestrator stopped")
}
