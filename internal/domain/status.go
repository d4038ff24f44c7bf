package domain

// RunStatus — итоговый вердикт run.
//
// Run получает статус один раз, когда все jobs завершились
// или были прерваны:
//
//	(jobs) → SUCCESS
//	       ↘ FAILURE
type RunStatus string

const (
	// RunStatusPending — run создан, jobs ещё не запущены.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning — jobs выполняются.
	RunStatusRunning RunStatus = "running"

	// RunStatusSuccess — все jobs завершились успешно
	// (или их падения допустимы политикой continue-on-error).
	RunStatusSuccess RunStatus = "success"

	// RunStatusFailure — хотя бы один job упал или был прерван.
	RunStatusFailure RunStatus = "failure"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusFailure:
		return true
	default:
		return false
	}
}

// JobStatus — статус выполнения одного job (одной точки матрицы).
//
// Жизненный цикл:
//
//	QUEUED → RUNNING → SUCCESS
//	                 ↘ FAILED
//	       ↘ ABORTED (отмена fail-fast или по таймауту)
type JobStatus string

const (
	// JobStatusQueued — job ожидает запуска.
	JobStatusQueued JobStatus = "queued"

	// JobStatusRunning — шаги job выполняются.
	JobStatusRunning JobStatus = "running"

	// JobStatusSuccess — все шаги успешны.
	JobStatusSuccess JobStatus = "success"

	// JobStatusFailed — хотя бы один шаг упал.
	JobStatusFailed JobStatus = "failed"

	// JobStatusAborted — job отменён до завершения всех шагов.
	JobStatusAborted JobStatus = "aborted"
)

// IsTerminal возвращает true, если статус финальный.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSuccess, JobStatusFailed, JobStatusAborted:
		return true
	default:
		return false
	}
}

// StepStatus — результат одного шага.
type StepStatus string

const (
	// StepStatusSuccess — шаг завершился успешно.
	StepStatusSuccess StepStatus = "success"

	// StepStatusFailure — шаг вернул ошибку или ненулевой exit code.
	StepStatusFailure StepStatus = "failure"

	// StepStatusNotRun — шаг не запускался.
	StepStatusNotRun StepStatus = "not_run"
)

// String возвращает строковое представление StepStatus.
func (s StepStatus) String() string {
	return string(s)
}

// ParseJobStatus парсит строку в JobStatus.
func ParseJobStatus(s string) JobStatus {
	switch s {
	case "running":
		return JobStatusRunning
	case "success":
		return JobStatusSuccess
	case "failed":
		return JobStatusFailed
	case "aborted":
		return JobStatusAborted
	default:
		return JobStatusQueued
	}
}
