package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunResult — итог обработки одного события.
//
// Run создаётся когда:
// - Событие push/pull_request прошло Trigger Listener
// - Scheduler срабатывает по cron-расписанию workflow
// - Пользователь запускает workflow вручную (через CLI)
//
// Jobs упорядочены по JobConfig.Index независимо от порядка завершения.
type RunResult struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Workflow — имя workflow.
	Workflow string `json:"workflow"`

	// Event — событие, запустившее run.
	Event Event `json:"event"`

	// Status — итоговый вердикт.
	Status RunStatus `json:"status"`

	// Jobs — результаты jobs в порядке матрицы.
	Jobs []JobResult `json:"jobs"`

	// Warnings — предупреждения конфигурации (например, пустая ось матрицы).
	Warnings []string `json:"warnings,omitempty"`

	// Error — текст ошибки, если run не смог стартовать.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// NewRun создаёт run в статусе pending.
func NewRun(workflow string, event Event) *RunResult {
	return &RunResult{
		ID:        uuid.New(),
		Workflow:  workflow,
		Event:     event,
		Status:    RunStatusPending,
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *RunResult) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён.
func (r *RunResult) IsFinished() bool {
	return r.Status.IsTerminal()
}

// Succeeded возвращает true, если вердикт run — success.
func (r *RunResult) Succeeded() bool {
	return r.Status == RunStatusSuccess
}

// MarkRunning переводит run в статус running.
func (r *RunResult) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// Finish фиксирует вердикт и время завершения.
func (r *RunResult) Finish(status RunStatus, jobs []JobResult) {
	now := time.Now()
	r.Status = status
	r.Jobs = jobs
	r.FinishedAt = &now
}

// MarkFailed завершает run ошибкой без выполнения jobs.
func (r *RunResult) MarkFailed(err string) {
	now := time.Now()
	r.Status = RunStatusFailure
	r.FinishedAt = &now
	r.Error = err
}

// CountJobs считает jobs по статусам.
func (r *RunResult) CountJobs() map[JobStatus]int {
	counts := make(map[JobStatus]int)
	for _, j := range r.Jobs {
		counts[j.Status]++
	}
	return counts
}
