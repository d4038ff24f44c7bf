package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// handleEventReceived обрабатывает сообщение event.received.
//
// Несовпадение с правилами и ошибки конфигурации подтверждаются:
// повторная доставка ничего не изменит. Некорректный payload уходит в DLQ,
// ошибки инфраструктуры возвращают сообщение в очередь. Run, прерванный
// остановкой оркестратора, тоже возвращается в очередь и будет выполнен заново.
func (o *Orchestrator) handleEventReceived(ctx context.Context, delivery *mq.Delivery) error {
	if o.IsStopped() {
		return ErrOrchestratorStopped
	}

	logger := telemetry.FromContextOr(ctx, o.logger)

	payload, err := mq.ParsePayload[mq.EventReceivedPayload](&delivery.Message)
	if err != nil {
		logger.Error("failed to parse event.received payload", "error", err)
		return mq.Permanent(err)
	}

	logger.Debug("received event",
		"kind", payload.Event.Kind,
		"branch", payload.Event.Branch,
	)

	run, err := o.Execute(ctx, payload.Event)
	switch {
	case errors.Is(err, ErrTriggerMismatch):
		return nil
	case engine.IsConfigurationError(err):
		// run уже сохранён со статусом failure
		return nil
	case ctx.Err() != nil:
		if run != nil {
			logger.Warn("run interrupted by shutdown, requeueing event", "run_id", run.ID)
		}
		return fmt.Errorf("%w: %w", ErrRunInterrupted, ctx.Err())
	case err != nil:
		return err
	}

	logger.Debug("event processed", "run_id", run.ID, "status", run.Status)
	return nil
}
