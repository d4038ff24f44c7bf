package mq

import "errors"

var (
	// ErrNoChannel — соединение сейчас без открытого канала (идёт reconnect).
	ErrNoChannel = errors.New("no channel available")

	// ErrNacked — брокер не подтвердил публикацию.
	ErrNacked = errors.New("publish not acknowledged by broker")

	// ErrUnexpectedType — сообщение не того типа, что ждёт очередь.
	ErrUnexpectedType = errors.New("unexpected message type")
)

// permanentError — ошибка, при которой повторная доставка бессмысленна.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent помечает ошибку обработчика как постоянную:
// сообщение отклоняется без возврата в очередь и уходит в DLQ.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent проверяет, помечена ли ошибка через Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
