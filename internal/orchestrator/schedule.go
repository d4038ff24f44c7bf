package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// JobRunner выполняет шаги одного job.
// Реализация: worker.Worker.
type JobRunner interface {
	RunJob(ctx context.Context, job domain.JobConfig, event domain.Event) domain.JobResult
}

// Schedule запускает jobs конкурентно и возвращает их результаты
// в порядке JobConfig.Index.
//
// Одновременно выполняется не больше policy.MaxParallel jobs (0 — все сразу).
// Без fail-fast падение job не влияет на остальные. С fail-fast первый
// job, валящий run, отменяет общий контекст: запущенные jobs останавливаются
// на границе шага, незапущенные не стартуют и получают статус aborted.
func (o *Orchestrator) Schedule(ctx context.Context, jobs []domain.JobConfig, event domain.Event, policy Policy) []domain.JobResult {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	logger := telemetry.FromContextOr(ctx, o.logger)

	collector := NewCollector(len(jobs))
	results := make(chan domain.JobResult)
	collected := make(chan struct{})

	go func() {
		defer close(collected)
		for r := range results {
			collector.Add(r)
		}
	}()

	skip := func(job domain.JobConfig) {
		logger.Info("job not started",
			"job", job.Name,
			"job_index", job.Index,
			"reason", context.Cause(ctx),
		)
		o.metrics.JobSkipped(string(domain.JobStatusAborted))
		results <- domain.AbortedJob(job)
	}

	var g errgroup.Group
	if policy.MaxParallel > 0 {
		g.SetLimit(policy.MaxParallel)
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			skip(job)
			continue
		}

		// Go блокируется, пока не освободится слот
		g.Go(func() error {
			if ctx.Err() != nil {
				skip(job)
				return nil
			}

			result := o.runner.RunJob(ctx, job, event)
			if policy.FailFast && policy.fails(&result) {
				cancel(fmt.Errorf("%w: job %s %s", ErrFailFast, job.Name, result.Status))
			}
			results <- result
			return nil
		})
	}

	_ = g.Wait()
	close(results)
	<-collected

	return collector.Results()
}
