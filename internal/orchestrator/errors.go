package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrTriggerMismatch — событие не совпало ни с одним правилом запуска.
	// Это не ошибка run: run просто не создаётся.
	ErrTriggerMismatch = errors.New("event does not match any trigger rule")

	// ErrUnknownAction — шаг ссылается на незарегистрированный action.
	ErrUnknownAction = errors.New("unknown action")

	// ErrNoWorkflow — оркестратор создан без workflow.
	ErrNoWorkflow = errors.New("workflow is not configured")

	// ErrFailFast — run отменён, потому что упал другой job.
	ErrFailFast = errors.New("cancelled by fail-fast")

	// ErrRunTimeout — истёк timeout-minutes run.
	ErrRunTimeout = errors.New("run timed out")

	// ErrRunAlreadyActive — run уже обрабатывается.
	ErrRunAlreadyActive = errors.New("run already being processed")

	// ErrRunInterrupted — run прерван остановкой оркестратора, событие вернётся в очередь.
	ErrRunInterrupted = errors.New("run interrupted by shutdown")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)
