package domain

import (
	"strings"
	"time"
)

// EventKind — тип события, которое может запустить pipeline.
type EventKind string

const (
	// EventPush — push в ветку.
	EventPush EventKind = "push"

	// EventPullRequest — открытие или обновление pull request.
	EventPullRequest EventKind = "pull_request"

	// EventSchedule — срабатывание cron-расписания.
	EventSchedule EventKind = "schedule"
)

// IsValid проверяет, что тип события известен.
func (k EventKind) IsValid() bool {
	switch k {
	case EventPush, EventPullRequest, EventSchedule:
		return true
	default:
		return false
	}
}

// Event — входящее событие от системы контроля версий или планировщика.
type Event struct {
	// Kind — тип события.
	Kind EventKind `json:"kind"`

	// Branch — целевая ветка ("main", "refs/heads/main").
	Branch string `json:"branch"`

	// Repository — репозиторий источника (для checkout).
	Repository string `json:"repository,omitempty"`

	// SHA — коммит, на котором запускается pipeline.
	SHA string `json:"sha,omitempty"`

	// Cron — выражение расписания, если Kind == schedule.
	Cron string `json:"cron,omitempty"`
}

// BranchName возвращает имя ветки без префикса refs/heads/.
func (e Event) BranchName() string {
	return strings.TrimPrefix(e.Branch, "refs/heads/")
}

// TriggerRule — правило запуска: тип события и шаблоны веток.
//
// Шаблоны проверяются по порядку, "!" в начале исключает ветку.
// Пустой список Branches означает "любая ветка".
type TriggerRule struct {
	Kind     EventKind `json:"kind"`
	Branches []string  `json:"branches,omitempty"`
}

// MatrixDimension — именованная ось матрицы сборки.
type MatrixDimension struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// StepDef — определение шага в шаблоне job.
//
// Шаг либо запускает shell-команду (Run), либо ссылается на action (Uses).
// Строковые поля могут содержать подстановки матрицы: ${{ matrix.toolchain }}.
type StepDef struct {
	// Name — отображаемое имя шага.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Uses — тип action из реестра шагов ("checkout", "toolchain", "http").
	Uses string `json:"uses,omitempty" yaml:"uses,omitempty"`

	// Run — shell-команда.
	Run string `json:"run,omitempty" yaml:"run,omitempty"`

	// With — параметры action.
	With map[string]string `json:"with,omitempty" yaml:"with,omitempty"`

	// Env — дополнительные переменные окружения шага.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// WorkingDir — рабочая директория относительно workspace.
	WorkingDir string `json:"working_directory,omitempty" yaml:"working-directory,omitempty"`

	// ContinueOnError — падение шага не останавливает job.
	ContinueOnError bool `json:"continue_on_error,omitempty" yaml:"continue-on-error,omitempty"`

	// TimeoutMinutes — собственный таймаут шага (0 = без таймаута).
	TimeoutMinutes int `json:"timeout_minutes,omitempty" yaml:"timeout-minutes,omitempty"`
}

// ActionRun — тип action для шагов с полем run.
const ActionRun = "run"

// Action возвращает тип шага для поиска в реестре.
func (s StepDef) Action() string {
	if s.Uses != "" {
		return s.Uses
	}
	if s.Run != "" {
		return ActionRun
	}
	return ""
}

// DisplayName возвращает имя шага для логов и отчётов.
func (s StepDef) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Uses != "" {
		return s.Uses
	}
	line, _, _ := strings.Cut(strings.TrimSpace(s.Run), "\n")
	return line
}

// Timeout возвращает таймаут шага.
func (s StepDef) Timeout() time.Duration {
	if s.TimeoutMinutes <= 0 {
		return 0
	}
	return time.Duration(s.TimeoutMinutes) * time.Minute
}

// Clone возвращает глубокую копию шага.
func (s StepDef) Clone() StepDef {
	s.With = cloneStrings(s.With)
	s.Env = cloneStrings(s.Env)
	return s
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Workflow — декларативное описание pipeline.
//
// Это "программа" для Conveyor: когда запускаться, какую матрицу
// разворачивать и какие шаги выполнять в каждой точке матрицы.
type Workflow struct {
	// Name — имя workflow.
	Name string `json:"name"`

	// Triggers — правила запуска по событиям push/pull_request.
	Triggers []TriggerRule `json:"triggers,omitempty"`

	// Schedules — cron-расписания (on.schedule).
	Schedules []Schedule `json:"schedules,omitempty"`

	// Matrix — оси матрицы в порядке объявления.
	Matrix []MatrixDimension `json:"matrix,omitempty"`

	// ContinueOnError — run-level политика: падение job, вызванное только
	// шагами с continue-on-error, не валит run.
	ContinueOnError bool `json:"continue_on_error"`

	// FailFast — первый упавший job отменяет остальные.
	FailFast bool `json:"fail_fast"`

	// MaxParallel — максимум одновременно выполняемых jobs (0 = без ограничений).
	MaxParallel int `json:"max_parallel,omitempty"`

	// TimeoutMinutes — таймаут всего run (0 = без таймаута).
	TimeoutMinutes int `json:"timeout_minutes,omitempty"`

	// Steps — шаблон шагов job.
	Steps []StepDef `json:"steps"`
}

// Timeout возвращает таймаут run.
func (w *Workflow) Timeout() time.Duration {
	if w.TimeoutMinutes <= 0 {
		return 0
	}
	return time.Duration(w.TimeoutMinutes) * time.Minute
}
