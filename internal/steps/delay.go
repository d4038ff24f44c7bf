package steps

import (
	"context"
	"fmt"
	"time"
)

// StepTypeDelay — пауза внутри job (uses: delay, with: duration).
const StepTypeDelay = "delay"

// StepFunc превращает функцию в Step. Подходит для action'ов без состояния.
type StepFunc struct {
	Name string
	Fn   func(ctx context.Context, req *Request) (*Response, error)
}

func (s StepFunc) Type() string { return s.Name }

func (s StepFunc) Execute(ctx context.Context, req *Request) (*Response, error) {
	return s.Fn(ctx, req)
}

// DelayStep ждёт with.duration ("30s" или число секунд).
// Отмена ctx (timeout-minutes, остановка run) прерывает ожидание.
func DelayStep() Step {
	return StepFunc{Name: StepTypeDelay, Fn: delay}
}

func delay(ctx context.Context, req *Request) (*Response, error) {
	d, err := GetWithDuration(req.With, "duration")
	if err != nil {
		return nil, err
	}
	if d <= 0 {
		return nil, fmt.Errorf("%w: %s: positive duration required", ErrInvalidConfig, StepTypeDelay)
	}

	select {
	case <-time.After(d):
	case <-ctx.Done():
		return nil, contextError(ctx)
	}
	return NewResponse(map[string]any{"duration_ms": d.Milliseconds()}), nil
}
