package domain

import (
	"strings"
	"time"
)

// JobConfig — одна точка матрицы: назначение осей и копия шаблона шагов.
//
// Создаётся Matrix Expander'ом при старте run и больше не меняется.
// Каждый JobConfig принадлежит ровно одному Step Executor'у.
type JobConfig struct {
	// Index — позиция в развёрнутой матрице.
	// По ней Result Aggregator упорядочивает отчёт.
	Index int `json:"index"`

	// Name — имя job: значения осей через запятую или "default".
	Name string `json:"name"`

	// Matrix — назначение: имя оси → выбранное значение.
	Matrix map[string]string `json:"matrix,omitempty"`

	// Steps — шаги с уже подставленными значениями матрицы.
	Steps []StepDef `json:"steps"`
}

// DefaultJobName — имя job для workflow без матрицы.
const DefaultJobName = "default"

// JobName строит имя job из значений осей в порядке их объявления.
func JobName(values []string) string {
	if len(values) == 0 {
		return DefaultJobName
	}
	return strings.Join(values, ", ")
}

// StepResult — результат выполнения одного шага.
type StepResult struct {
	// Name — отображаемое имя шага.
	Name string `json:"name"`

	// Status — success, failure или not_run.
	Status StepStatus `json:"status"`

	// ExitCode — код возврата команды (если применимо).
	ExitCode int `json:"exit_code"`

	// Output — вывод коллаборатора без изменений.
	Output string `json:"output,omitempty"`

	// Outputs — структурированные выходные данные action.
	Outputs map[string]any `json:"outputs,omitempty"`

	// Error — текст ошибки при неудаче.
	Error string `json:"error,omitempty"`

	// ContinueOnError — копия флага шага, нужна агрегатору.
	ContinueOnError bool `json:"continue_on_error,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NotRunResult возвращает результат для шага, который не запускался.
func NotRunResult(step StepDef) StepResult {
	return StepResult{
		Name:            step.DisplayName(),
		Status:          StepStatusNotRun,
		ContinueOnError: step.ContinueOnError,
	}
}

// Failed возвращает true, если шаг упал.
func (r StepResult) Failed() bool {
	return r.Status == StepStatusFailure
}

// Duration возвращает продолжительность выполнения.
func (r StepResult) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// JobResult — итог одного вызова Step Executor.
type JobResult struct {
	Job        JobConfig    `json:"job"`
	Steps      []StepResult `json:"steps"`
	Status     JobStatus    `json:"status"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// AbortedJob возвращает результат для job, который так и не был запущен.
func AbortedJob(job JobConfig) JobResult {
	steps := make([]StepResult, len(job.Steps))
	for i, s := range job.Steps {
		steps[i] = NotRunResult(s)
	}
	return JobResult{Job: job, Steps: steps, Status: JobStatusAborted}
}

// FailedStep возвращает первый упавший шаг и его позицию (с 1).
// Возвращает nil, 0, если упавших шагов нет.
func (r *JobResult) FailedStep() (*StepResult, int) {
	for i := range r.Steps {
		if r.Steps[i].Failed() {
			return &r.Steps[i], i + 1
		}
	}
	return nil, 0
}

// OnlySoftFailures возвращает true, если job упал и все упавшие шаги
// помечены continue-on-error.
func (r *JobResult) OnlySoftFailures() bool {
	if r.Status != JobStatusFailed {
		return false
	}
	failed := 0
	for _, s := range r.Steps {
		if !s.Failed() {
			continue
		}
		if !s.ContinueOnError {
			return false
		}
		failed++
	}
	return failed > 0
}

// Duration возвращает продолжительность выполнения job.
func (r *JobResult) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}
