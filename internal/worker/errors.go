package worker

import "errors"

// Ошибки воркера.
var (
	// ErrStepFailed — шаг завершился с ненулевым кодом.
	ErrStepFailed = errors.New("step failed")

	// ErrStepPanicked — реализация шага паниковала.
	ErrStepPanicked = errors.New("step panicked")

	// ErrWorkspace — не удалось подготовить рабочую директорию job.
	ErrWorkspace = errors.New("prepare workspace failed")
)
