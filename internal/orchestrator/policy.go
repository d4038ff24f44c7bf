package orchestrator

import (
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Policy — параметры выполнения run.
type Policy struct {
	// FailFast — первый упавший job отменяет остальные.
	// По умолчанию выключено: падение job не влияет на другие.
	FailFast bool

	// MaxParallel — лимит одновременно выполняемых jobs (0 = без ограничений).
	MaxParallel int

	// ContinueOnError — job, упавший только на шагах с continue-on-error,
	// не валит run.
	ContinueOnError bool

	// Timeout — таймаут всего run (0 = без таймаута).
	Timeout time.Duration
}

// PolicyFor возвращает политику, объявленную в workflow.
func PolicyFor(wf *domain.Workflow) Policy {
	return Policy{
		FailFast:        wf.FailFast,
		MaxParallel:     wf.MaxParallel,
		ContinueOnError: wf.ContinueOnError,
		Timeout:         wf.Timeout(),
	}
}

// fails возвращает true, если job валит run при этой политике.
func (p Policy) fails(job *domain.JobResult) bool {
	switch job.Status {
	case domain.JobStatusSuccess:
		return false
	case domain.JobStatusFailed:
		return !(p.ContinueOnError && job.OnlySoftFailures())
	default:
		return true
	}
}
