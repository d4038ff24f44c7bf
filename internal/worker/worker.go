package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/steps"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Worker выполняет шаги job.
type Worker struct {
	registry  *steps.Registry
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	workspace string
	env       []string
	stream    func(job domain.JobConfig) io.Writer
	now       func() time.Time
}

// Config — конфигурация Worker.
type Config struct {
	// Registry — реестр action'ов (если nil — steps.DefaultRegistry()).
	Registry *steps.Registry

	// Metrics — Prometheus метрики (опционально).
	Metrics *telemetry.Metrics

	// Workspace — корневая директория. Если задана, каждый job получает
	// свою поддиректорию job-<index>. Пусто — текущая директория.
	Workspace string

	// Env — дополнительные переменные окружения для всех шагов.
	Env []string

	// Stream — куда дублировать вывод шагов job по мере выполнения (опционально).
	Stream func(job domain.JobConfig) io.Writer

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = steps.DefaultRegistry()
	}

	return &Worker{
		registry:  registry,
		metrics:   cfg.Metrics,
		logger:    logger,
		workspace: cfg.Workspace,
		env:       cfg.Env,
		stream:    cfg.Stream,
		now:       time.Now,
	}
}

// RunJob выполняет шаги job по порядку и возвращает результат.
//
// Отмена ctx проверяется перед каждым шагом: если ctx отменён,
// оставшиеся шаги помечаются not_run, а job — aborted.
// Упавший шаг без continue-on-error останавливает job (failed).
// Упавший шаг с continue-on-error записывается, выполнение продолжается,
// но итоговый статус всё равно failed.
func (w *Worker) RunJob(ctx context.Context, job domain.JobConfig, event domain.Event) domain.JobResult {
	logger := telemetry.WithJob(telemetry.FromContextOr(ctx, w.logger), job.Name, job.Index)

	started := w.now()
	result := domain.JobResult{
		Job:       job,
		Steps:     make([]domain.StepResult, 0, len(job.Steps)),
		Status:    domain.JobStatusRunning,
		StartedAt: &started,
	}

	w.metrics.JobStarted()
	logger.Info("job started", "matrix", job.Matrix, "steps", len(job.Steps))

	dir, err := w.prepareWorkspace(job)
	if err != nil {
		logger.Error("failed to prepare workspace", "error", err)
		return w.finish(logger, result, domain.JobStatusFailed, w.failAll(job, err))
	}

	var stream io.Writer
	if w.stream != nil {
		stream = w.stream(job)
	}

	var hardFailed, softFailed, aborted bool

	for _, step := range job.Steps {
		if hardFailed || aborted {
			result.Steps = append(result.Steps, domain.NotRunResult(step))
			continue
		}

		if ctx.Err() != nil {
			aborted = true
			logger.Warn("job aborted",
				"next_step", step.DisplayName(),
				"reason", context.Cause(ctx),
			)
			result.Steps = append(result.Steps, domain.NotRunResult(step))
			continue
		}

		sr := w.runStep(ctx, step, job, event, dir, stream, logger)
		result.Steps = append(result.Steps, sr)

		if sr.Failed() {
			if step.ContinueOnError {
				softFailed = true
			} else {
				hardFailed = true
			}
		}
	}

	status := domain.JobStatusSuccess
	switch {
	case hardFailed:
		status = domain.JobStatusFailed
	case aborted:
		status = domain.JobStatusAborted
	case softFailed:
		status = domain.JobStatusFailed
	}

	return w.finish(logger, result, status, result.Steps)
}

// runStep выполняет один шаг.
//
// Шаг получает контекст, отвязанный от отмены run: отмена наблюдается
// только на границах шагов. timeout-minutes шага применяется к этому контексту.
func (w *Worker) runStep(
	ctx context.Context,
	step domain.StepDef,
	job domain.JobConfig,
	event domain.Event,
	dir string,
	stream io.Writer,
	logger *slog.Logger,
) (sr domain.StepResult) {
	name := step.DisplayName()
	started := w.now()
	sr = domain.StepResult{
		Name:            name,
		ContinueOnError: step.ContinueOnError,
		StartedAt:       &started,
	}

	defer func() {
		if r := recover(); r != nil {
			sr.Status = domain.StepStatusFailure
			sr.ExitCode = -1
			sr.Error = fmt.Sprintf("%v: %v", ErrStepPanicked, r)
		}

		finished := w.now()
		sr.FinishedAt = &finished
		w.metrics.StepFinished(string(sr.Status), finished.Sub(started))

		if sr.Failed() {
			logger.Warn("step failed",
				"step", name,
				"exit_code", sr.ExitCode,
				"error", sr.Error,
				"continue_on_error", step.ContinueOnError,
			)
		} else {
			logger.Info("step succeeded", "step", name, "duration", finished.Sub(started))
		}
	}()

	impl, err := w.registry.Resolve(step)
	if err != nil {
		sr.Status = domain.StepStatusFailure
		sr.ExitCode = -1
		sr.Error = err.Error()
		return sr
	}

	stepCtx := context.WithoutCancel(ctx)
	if timeout := step.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(stepCtx, timeout)
		defer cancel()
	}

	req := steps.NewRequest(step, job, event, dir, w.env)
	req.Stream = stream

	logger.Debug("step started", "step", name, "action", step.Action())

	resp, err := impl.Execute(stepCtx, req)
	if resp != nil {
		sr.ExitCode = resp.ExitCode
		sr.Output = resp.Output
		sr.Outputs = resp.Outputs
	}

	switch {
	case err != nil:
		sr.Status = domain.StepStatusFailure
		sr.Error = err.Error()
		if sr.ExitCode == 0 {
			sr.ExitCode = -1
		}
	case resp == nil:
		sr.Status = domain.StepStatusSuccess
	case resp.ExitCode != 0:
		sr.Status = domain.StepStatusFailure
		sr.Error = fmt.Sprintf("%v: exit code %d", ErrStepFailed, resp.ExitCode)
	default:
		sr.Status = domain.StepStatusSuccess
	}

	return sr
}

// finish фиксирует итог job.
func (w *Worker) finish(logger *slog.Logger, result domain.JobResult, status domain.JobStatus, stepResults []domain.StepResult) domain.JobResult {
	finished := w.now()
	result.Status = status
	result.Steps = stepResults
	result.FinishedAt = &finished

	w.metrics.JobFinished(string(status))

	attrs := []any{"status", status, "duration", finished.Sub(*result.StartedAt)}
	if failed, pos := result.FailedStep(); failed != nil {
		attrs = append(attrs, "failed_step", failed.Name, "failed_step_position", pos)
	}
	if status == domain.JobStatusSuccess {
		logger.Info("job finished", attrs...)
	} else {
		logger.Warn("job finished", attrs...)
	}

	return result
}

// failAll помечает первый шаг упавшим с ошибкой инфраструктуры, остальные — not_run.
func (w *Worker) failAll(job domain.JobConfig, err error) []domain.StepResult {
	out := make([]domain.StepResult, len(job.Steps))
	for i, s := range job.Steps {
		out[i] = domain.NotRunResult(s)
	}
	if len(out) > 0 {
		out[0].Status = domain.StepStatusFailure
		out[0].ExitCode = -1
		out[0].Error = err.Error()
	}
	return out
}

// prepareWorkspace создаёт рабочую директорию job.
func (w *Worker) prepareWorkspace(job domain.JobConfig) (string, error) {
	if w.workspace == "" {
		return "", nil
	}

	dir := filepath.Join(w.workspace, fmt.Sprintf("job-%d", job.Index))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWorkspace, err)
	}
	return dir, nil
}
