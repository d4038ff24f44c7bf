package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/steps"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/trigger"
	"github.com/shaiso/Conveyor/internal/worker"
)

const defaultPrefetch = 1

// Store сохраняет runs. Реализация: repo.Store.
type Store interface {
	CreateRun(ctx context.Context, run *domain.RunResult) error
	FinishRun(ctx context.Context, run *domain.RunResult) error
}

// Publisher публикует вердикты runs. Реализация: mq.Publisher.
type Publisher interface {
	PublishRunCompleted(ctx context.Context, run *domain.RunResult) error
}

// Orchestrator обрабатывает события одного workflow.
//
// Orchestrator — центральный компонент системы, который:
//   - Фильтрует события правилами запуска
//   - Разворачивает матрицу и проверяет action'ы до запуска jobs
//   - Запускает jobs через JobRunner
//   - Сводит результаты в вердикт run
//   - Сохраняет run и публикует run.completed
//   - Потребляет events.received из RabbitMQ (Start/Stop)
type Orchestrator struct {
	workflow *domain.Workflow
	listener *trigger.Listener
	registry *steps.Registry
	runner   JobRunner

	store     Store
	publisher Publisher
	metrics   *telemetry.Metrics

	// MQ
	conn     *mq.Connection
	consumer *mq.Consumer
	prefetch int

	// Active runs — runs в процессе выполнения (runID → run)
	activeRuns map[uuid.UUID]*domain.RunResult
	mu         sync.RWMutex

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Workflow — разобранный и провалидированный workflow.
	Workflow *domain.Workflow

	// Registry — реестр action'ов (default: steps.DefaultRegistry()).
	Registry *steps.Registry

	// Runner — исполнитель jobs (default: worker.New с тем же Registry).
	Runner JobRunner

	// Store — хранилище runs (опционально).
	Store Store

	// Publisher — публикация run.completed (опционально).
	Publisher Publisher

	// Metrics — Prometheus метрики (опционально).
	Metrics *telemetry.Metrics

	// Conn — соединение RabbitMQ для Start (опционально).
	Conn *mq.Connection

	// Prefetch — сколько событий брать из очереди за раз (default: 1).
	Prefetch int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = steps.DefaultRegistry()
	}

	runner := cfg.Runner
	if runner == nil {
		runner = worker.New(worker.Config{
			Registry: registry,
			Metrics:  cfg.Metrics,
			Logger:   logger,
		})
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	o := &Orchestrator{
		workflow:   cfg.Workflow,
		registry:   registry,
		runner:     runner,
		store:      cfg.Store,
		publisher:  cfg.Publisher,
		metrics:    cfg.Metrics,
		conn:       cfg.Conn,
		prefetch:   prefetch,
		activeRuns: make(map[uuid.UUID]*domain.RunResult),
		logger:     logger,
	}
	if cfg.Workflow != nil {
		o.listener = trigger.New(cfg.Workflow.Triggers)
	}
	return o
}

// Workflow возвращает workflow оркестратора.
func (o *Orchestrator) Workflow() *domain.Workflow {
	return o.workflow
}

// Accepts проверяет событие правилами запуска без выполнения run.
func (o *Orchestrator) Accepts(event domain.Event) bool {
	return o.listener != nil && o.listener.Accepts(event)
}

// Execute обрабатывает событие.
//
// Если событие не совпало с правилами запуска, возвращает
// ErrTriggerMismatch и nil run. Ошибка конфигурации (пустая матрица,
// неизвестный action) возвращается вместе с run в статусе failure:
// ни один job при этом не запускается. Иначе возвращает завершённый
// run и nil, даже если вердикт failure.
func (o *Orchestrator) Execute(ctx context.Context, event domain.Event) (*domain.RunResult, error) {
	if o.workflow == nil {
		return nil, ErrNoWorkflow
	}

	accepted := o.Accepts(event)
	o.metrics.EventReceived(string(event.Kind), accepted)

	if !accepted {
		o.logger.Info("event does not match trigger rules, skipping",
			"workflow", o.workflow.Name,
			"kind", event.Kind,
			"branch", event.Branch,
		)
		return nil, ErrTriggerMismatch
	}

	return o.Run(ctx, event, PolicyFor(o.workflow))
}

// Run выполняет workflow для события без проверки правил запуска.
func (o *Orchestrator) Run(ctx context.Context, event domain.Event, policy Policy) (*domain.RunResult, error) {
	if o.workflow == nil {
		return nil, ErrNoWorkflow
	}

	run := domain.NewRun(o.workflow.Name, event)
	logger := telemetry.WithRunID(telemetry.WithWorkflow(o.logger, run.Workflow), run.ID.String())
	ctx = telemetry.WithLogger(ctx, logger)

	jobs, err := o.prepare()
	if err != nil {
		if errors.Is(err, engine.ErrEmptyDimension) {
			run.Warnings = append(run.Warnings, err.Error())
			logger.Warn("matrix is empty, no jobs will run", "error", err)
		} else {
			logger.Error("invalid workflow configuration", "error", err)
		}

		run.MarkFailed(err.Error())
		if storeErr := o.create(ctx, run); storeErr != nil {
			return run, errors.Join(err, storeErr)
		}
		o.complete(ctx, run)
		return run, err
	}

	if err := o.addActiveRun(run); err != nil {
		return nil, err
	}
	defer o.removeActiveRun(run.ID)

	run.MarkRunning()
	if err := o.create(ctx, run); err != nil {
		return nil, err
	}

	logger.Info("run started",
		"kind", event.Kind,
		"branch", event.BranchName(),
		"jobs", len(jobs),
		"fail_fast", policy.FailFast,
		"max_parallel", policy.MaxParallel,
	)

	runCtx := ctx
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeoutCause(ctx, policy.Timeout, ErrRunTimeout)
		defer cancel()
	}

	results := o.Schedule(runCtx, jobs, event, policy)
	summary := Aggregate(results, policy)
	run.Finish(summary.Status, summary.Jobs)

	o.complete(ctx, run)
	return run, nil
}

// Expand разворачивает матрицу workflow и проверяет action'ы каждого job.
//
// Ошибки — всегда *engine.ConfigurationError.
func (o *Orchestrator) Expand() ([]domain.JobConfig, error) {
	if o.workflow == nil {
		return nil, ErrNoWorkflow
	}
	return o.prepare()
}

func (o *Orchestrator) prepare() ([]domain.JobConfig, error) {
	jobs, err := engine.Expand(o.workflow.Matrix, o.workflow.Steps)
	if err != nil {
		return nil, err
	}

	// uses может зависеть от матрицы, поэтому проверяем каждый job
	for _, job := range jobs {
		if err := o.registry.CheckActions(job.Steps); err != nil {
			return nil, engine.NewConfigurationError(job.Name, "uses", err.Error(),
				errors.Join(ErrUnknownAction, err))
		}
	}
	return jobs, nil
}

// create сохраняет новый run.
func (o *Orchestrator) create(ctx context.Context, run *domain.RunResult) error {
	if o.store == nil {
		return nil
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// complete сохраняет вердикт, публикует run.completed и учитывает метрики.
// Ошибки хранилища и MQ только логируются: вердикт уже получен.
func (o *Orchestrator) complete(ctx context.Context, run *domain.RunResult) {
	logger := telemetry.FromContextOr(ctx, o.logger)

	// Вердикт сохраняется, даже если run был отменён
	ctx = context.WithoutCancel(ctx)

	if o.store != nil {
		if err := o.store.FinishRun(ctx, run); err != nil {
			logger.Error("failed to save run result", "error", err)
		}
	}

	if o.publisher != nil {
		if err := o.publisher.PublishRunCompleted(ctx, run); err != nil {
			logger.Warn("failed to publish run.completed", "error", err)
		}
	}

	o.metrics.RunFinished(string(run.Status))

	counts := run.CountJobs()
	attrs := []any{
		"status", run.Status,
		"duration", run.Duration(),
		"jobs_success", counts[domain.JobStatusSuccess],
		"jobs_failed", counts[domain.JobStatusFailed],
		"jobs_aborted", counts[domain.JobStatusAborted],
	}
	if run.Succeeded() {
		logger.Info("run finished", attrs...)
	} else {
		logger.Warn("run finished", attrs...)
	}
}

// Start запускает потребление events.received.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.workflow == nil {
		return fmt.Errorf("start orchestrator: %w", ErrNoWorkflow)
	}
	if o.conn == nil {
		return fmt.Errorf("start orchestrator: %w", mq.ErrNoChannel)
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator", "workflow", o.workflow.Name, "prefetch", o.prefetch)

	o.consumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueEventsReceived),
		Handler:  o.handleEventReceived,
		Prefetch: o.prefetch,
		Types:    []mq.MessageType{mq.MessageTypeEventReceived},
		// событие, дважды упавшее на инфраструктуре, разбирается вручную
		DeadLetterRedelivered: true,
	})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("event consumer error", "error", err)
		}
	}()

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает Orchestrator и ждёт завершения обработчиков.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	if o.consumer != nil {
		o.consumer.Stop()
	}

	o.wg.Wait()

	o.logger.Info("orchestrator stopped", "active_runs", o.ActiveRunsCount())
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// addActiveRun добавляет run в активные.
func (o *Orchestrator) addActiveRun(run *domain.RunResult) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.activeRuns[run.ID]; exists {
		return ErrRunAlreadyActive
	}
	o.activeRuns[run.ID] = run
	return nil
}

// removeActiveRun удаляет run из активных.
func (o *Orchestrator) removeActiveRun(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.activeRuns, runID)
}

// ActiveRunsCount возвращает количество активных runs.
func (o *Orchestrator) ActiveRunsCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.activeRuns)
}
