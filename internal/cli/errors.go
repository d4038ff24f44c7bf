package cli

import (
	"errors"
	"fmt"
)

// Коды выхода CLI.
const (
	// ExitSuccess — run успешен или событие не совпало с правилами запуска.
	ExitSuccess = 0

	// ExitFailure — run завершился с вердиктом failure.
	ExitFailure = 1

	// ExitConfig — ошибка конфигурации или инфраструктуры: workflow не
	// читается, пустая матрица, неизвестный action, API недоступен.
	ExitConfig = 2
)

// ErrRunFailed — вердикт run: failure.
var ErrRunFailed = errors.New("run failed")

// ExitError — ошибка с кодом выхода процесса.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode возвращает код выхода для ошибки команды.
// Ошибки без ExitError (флаги, сеть) считаются ошибками конфигурации.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitConfig
}

func configError(err error) error {
	return &ExitError{Code: ExitConfig, Err: err}
}

func runFailed(workflow, id string) error {
	return &ExitError{Code: ExitFailure, Err: fmt.Errorf("%w: workflow %s, run %s", ErrRunFailed, workflow, id)}
}
