// Conveyor Scheduler — публикует события schedule по cron-расписаниям
// workflow. Тики выполняет только лидер (PostgreSQL advisory lock),
// поэтому можно запускать несколько реплик.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger()
	logger.Info("starting conveyor-scheduler")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	wf, err := engine.ParseFile(cfg.WorkflowFile)
	if err != nil {
		logger.Error("failed to load workflow", "file", cfg.WorkflowFile, "error", err)
		os.Exit(1)
	}
	if len(wf.Schedules) == 0 {
		logger.Warn("workflow has no schedules, nothing to do", "workflow", wf.Name)
	}

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL, repo.WithAppName("conveyor-scheduler"))
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
	mqConn, err := mq.NewConnection(mqURL, logger, mq.WithName("conveyor-scheduler"))
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}
	publisher := mq.NewPublisher(mqConn, logger)

	sched := scheduler.New(scheduler.Config{
		Workflow: wf,
		Dispatcher: scheduler.DispatchFunc(func(ctx context.Context, event domain.Event) error {
			return publisher.PublishEventReceived(ctx, event)
		}),
		Store:  repo.NewScheduleRepo(pool),
		Logger: logger,
	})

	lock := repo.NewLeaderLock(pool, repo.SchedulerLockKey)
	defer func() {
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer releaseCancel()
		if err := lock.Release(releaseCtx); err != nil {
			logger.Warn("failed to release leader lock", "error", err)
		}
	}()

	// лидер инициализирует состояние при первом захвате lock
	var initialized, leader bool
	isLeader := func(ctx context.Context) bool {
		ok, err := lock.TryAcquire(ctx)
		if err != nil {
			logger.Error("leader lock error", "error", err)
			return false
		}
		if ok != leader {
			leader = ok
			logger.Info("leadership changed", "leader", ok)
		}
		if ok && !initialized {
			if err := sched.Init(ctx, time.Now()); err != nil {
				logger.Error("failed to init schedules", "error", err)
				return false
			}
			initialized = true
		}
		return ok
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := config.Addr(cfg.SchedulerPort)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	if err := sched.Run(ctx, isLeader); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler stopped", "error", err)
	}
	logger.Info("conveyor-scheduler stopped")
}
