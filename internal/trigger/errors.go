package trigger

import "errors"

// Ошибки правил запуска.
var (
	// ErrUnknownEventKind — неизвестный тип события в правиле.
	ErrUnknownEventKind = errors.New("unknown event kind")

	// ErrEmptyPattern — пустой шаблон ветки.
	ErrEmptyPattern = errors.New("empty branch pattern")

	// ErrBadPattern — шаблон ветки не разбирается.
	ErrBadPattern = errors.New("malformed branch pattern")
)
