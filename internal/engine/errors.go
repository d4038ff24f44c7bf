package engine

import "errors"

// Ошибки валидации workflow.
var (
	// ErrEmptySteps — workflow не содержит шагов.
	ErrEmptySteps = errors.New("workflow has no steps")

	// ErrInvalidStep — шаг должен содержать ровно одно из run/uses.
	ErrInvalidStep = errors.New("step must define exactly one of run or uses")

	// ErrInvalidTimeout — отрицательный таймаут.
	ErrInvalidTimeout = errors.New("timeout must not be negative")

	// ErrInvalidTriggerRule — некорректное правило запуска.
	ErrInvalidTriggerRule = errors.New("invalid trigger rule")

	// ErrInvalidSchedule — некорректное cron-выражение.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrInvalidPolicy — некорректные параметры fail-fast/max-parallel.
	ErrInvalidPolicy = errors.New("invalid run policy")

	// ErrInvalidDocument — документ не является корректным YAML workflow.
	ErrInvalidDocument = errors.New("invalid workflow document")
)

// Ошибки матрицы.
var (
	// ErrInvalidMatrix — матрица имеет неверную структуру.
	ErrInvalidMatrix = errors.New("invalid matrix")

	// ErrEmptyDimensionName — ось без имени.
	ErrEmptyDimensionName = errors.New("matrix dimension has empty name")

	// ErrDuplicateDimension — несколько осей с одинаковым именем.
	ErrDuplicateDimension = errors.New("duplicate matrix dimension")

	// ErrDuplicateValue — значение повторяется внутри оси.
	ErrDuplicateValue = errors.New("duplicate matrix value")

	// ErrEmptyDimension — ось без значений: матрица пустая, jobs не будет.
	ErrEmptyDimension = errors.New("matrix dimension has no values")

	// ErrMatrixTooLarge — произведение осей превышает MaxJobs.
	ErrMatrixTooLarge = errors.New("matrix too large")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)

// ConfigurationError — ошибка конфигурации с контекстом.
//
// Обнаруживается до запуска jobs и никогда не превращается в success.
type ConfigurationError struct {
	Step    string // имя шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ConfigurationError) Error() string {
	if e.Step != "" {
		return "step " + e.Step + ": " + e.Message
	}
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError создаёт новую ошибку конфигурации.
func NewConfigurationError(step, field, message string, err error) *ConfigurationError {
	return &ConfigurationError{
		Step:    step,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// IsConfigurationError проверяет, является ли ошибка ошибкой конфигурации.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
