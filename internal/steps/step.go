package steps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Ошибки шагов.
var (
	// ErrStepNotFound — action не найден в реестре.
	ErrStepNotFound = errors.New("step type not found")

	// ErrInvalidConfig — невалидная конфигурация шага.
	ErrInvalidConfig = errors.New("invalid step config")

	// ErrStepTimeout — шаг превысил таймаут.
	ErrStepTimeout = errors.New("step execution timeout")

	// ErrStepCancelled — выполнение шага отменено.
	ErrStepCancelled = errors.New("step execution cancelled")
)

// Step — интерфейс коллаборатора выполнения шага.
type Step interface {
	// Type возвращает имя action.
	Type() string

	// Execute выполняет шаг и возвращает результат.
	// Шаг должен проверять ctx.Done(): так работает timeout-minutes.
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Request — входные данные для выполнения шага.
type Request struct {
	// Name — отображаемое имя шага.
	Name string

	// Run — shell-команда (для action run).
	Run string

	// With — параметры action.
	With map[string]string

	// Env — переменные окружения в формате KEY=VALUE, отсортированы.
	Env []string

	// WorkDir — рабочая директория шага.
	WorkDir string

	// Matrix — назначение матрицы job (только для чтения).
	Matrix map[string]string

	// Event — событие, запустившее run.
	Event domain.Event

	// Stream — если задан, вывод команды дублируется сюда по мере выполнения.
	Stream io.Writer
}

// Response — результат выполнения шага.
type Response struct {
	// ExitCode — код возврата. Ненулевой код означает падение шага.
	ExitCode int

	// Output — объединённый stdout/stderr.
	Output string

	// Outputs — структурированные результаты.
	Outputs map[string]any
}

// NewRequest собирает Request для шага job.
//
// Окружение: baseEnv, затем CONVEYOR_* переменные, затем env шага.
func NewRequest(step domain.StepDef, job domain.JobConfig, event domain.Event, workspace string, baseEnv []string) *Request {
	env := make([]string, 0, len(baseEnv)+len(job.Matrix)+len(step.Env)+3)
	env = append(env, baseEnv...)
	env = append(env,
		"CI=true",
		"CONVEYOR_JOB="+job.Name,
		"CONVEYOR_BRANCH="+event.BranchName(),
	)
	env = append(env, sortedEnv(prefixKeys("CONVEYOR_MATRIX_", job.Matrix))...)
	env = append(env, sortedEnv(step.Env)...)

	dir := workspace
	if step.WorkingDir != "" {
		if filepath.IsAbs(step.WorkingDir) {
			dir = step.WorkingDir
		} else {
			dir = filepath.Join(workspace, step.WorkingDir)
		}
	}

	return &Request{
		Name:    step.DisplayName(),
		Run:     step.Run,
		With:    step.With,
		Env:     env,
		WorkDir: dir,
		Matrix:  job.Matrix,
		Event:   event,
	}
}

func prefixKeys(prefix string, m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[prefix+k] = v
	}
	return out
}

func sortedEnv(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+m[k])
	}
	return env
}

// Succeeded возвращает true, если шаг завершился успешно.
func (r *Response) Succeeded() bool {
	return r != nil && r.ExitCode == 0
}

// NewResponse создаёт Response с outputs.
func NewResponse(outputs map[string]any) *Response {
	if outputs == nil {
		outputs = make(map[string]any)
	}
	return &Response{Outputs: outputs}
}

// GetWith извлекает строковый параметр with или значение по умолчанию.
func GetWith(with map[string]string, key, def string) string {
	if v, ok := with[key]; ok && v != "" {
		return v
	}
	return def
}

// GetWithInt извлекает числовой параметр with.
func GetWithInt(with map[string]string, key string, def int) (int, error) {
	v, ok := with[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidConfig, key, v)
	}
	return n, nil
}

// GetWithBool извлекает булев параметр with.
func GetWithBool(with map[string]string, key string, def bool) (bool, error) {
	v, ok := with[key]
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean, got %q", ErrInvalidConfig, key, v)
	}
	return b, nil
}

// GetWithDuration извлекает длительность ("30s", "2m") или число секунд.
func GetWithDuration(with map[string]string, key string) (time.Duration, error) {
	v, ok := with[key]
	if !ok || v == "" {
		return 0, nil
	}
	if sec, err := strconv.Atoi(v); err == nil {
		return time.Duration(sec) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a duration, got %q", ErrInvalidConfig, key, v)
	}
	return d, nil
}

// contextError переводит ошибку контекста в ошибку шага.
func contextError(ctx context.Context) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrStepTimeout, ctx.Err())
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
	default:
		return nil
	}
}
