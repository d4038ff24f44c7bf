package steps

import (
	"context"
	"fmt"
)

const (
	// StepTypeRun — тип шага shell-команды (поле run).
	StepTypeRun = "run"

	// DefaultShell — shell по умолчанию.
	DefaultShell = "sh"
)

// ShellStep — запуск shell-команды.
//
// Команда выполняется как `<shell> -c "<run>"` в рабочей директории шага.
// Вывод возвращается без изменений, код возврата — как есть.
//
// Параметры with:
//
//	shell: bash    // другой интерпретатор
type ShellStep struct {
	shell  string
	runner Runner
}

// NewShellStep создаёт новый ShellStep.
func NewShellStep() *ShellStep {
	return &ShellStep{shell: DefaultShell, runner: ExecRunner}
}

// NewShellStepWithRunner создаёт ShellStep с заданным Runner.
func NewShellStepWithRunner(runner Runner) *ShellStep {
	return &ShellStep{shell: DefaultShell, runner: runner}
}

// Type возвращает тип шага.
func (s *ShellStep) Type() string {
	return StepTypeRun
}

// Execute выполняет команду.
func (s *ShellStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	if req.Run == "" {
		return nil, fmt.Errorf("%w: %s: run is required", ErrInvalidConfig, StepTypeRun)
	}

	shell := GetWith(req.With, "shell", s.shell)

	res := s.runner(ctx, Command{
		Name:   shell,
		Args:   []string{"-c", req.Run},
		Dir:    req.WorkDir,
		Env:    req.Env,
		Stream: req.Stream,
	})

	resp := &Response{
		ExitCode: res.ExitCode,
		Output:   res.Output,
		Outputs:  map[string]any{"exit_code": res.ExitCode},
	}
	if res.Err != nil {
		return resp, res.Err
	}
	return resp, nil
}
