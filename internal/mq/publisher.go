package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeEventReceived MessageType = "event.received"
	MessageTypeRunCompleted  MessageType = "run.completed"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// EventReceivedPayload — входящее событие push/pull_request.
type EventReceivedPayload struct {
	Event      domain.Event `json:"event"`
	ReceivedAt time.Time    `json:"received_at"`
}

// JobSummary — краткий итог job в сообщении run.completed.
type JobSummary struct {
	Index      int              `json:"index"`
	Name       string           `json:"name"`
	Status     domain.JobStatus `json:"status"`
	FailedStep string           `json:"failed_step,omitempty"`
	Position   int              `json:"failed_step_position,omitempty"`
}

// RunCompletedPayload — вердикт run.
type RunCompletedPayload struct {
	RunID      uuid.UUID        `json:"run_id"`
	Workflow   string           `json:"workflow"`
	Event      domain.Event     `json:"event"`
	Status     domain.RunStatus `json:"status"`
	Jobs       []JobSummary     `json:"jobs"`
	Error      string           `json:"error,omitempty"`
	DurationMs int64            `json:"duration_ms"`
}

// NewRunCompletedPayload собирает payload из результата run.
func NewRunCompletedPayload(run *domain.RunResult) RunCompletedPayload {
	jobs := make([]JobSummary, len(run.Jobs))
	for i := range run.Jobs {
		j := &run.Jobs[i]
		jobs[i] = JobSummary{
			Index:  j.Job.Index,
			Name:   j.Job.Name,
			Status: j.Status,
		}
		if step, pos := j.FailedStep(); step != nil {
			jobs[i].FailedStep = step.Name
			jobs[i].Position = pos
		}
	}

	return RunCompletedPayload{
		RunID:      run.ID,
		Workflow:   run.Workflow,
		Event:      run.Event,
		Status:     run.Status,
		Jobs:       jobs,
		Error:      run.Error,
		DurationMs: run.Duration().Milliseconds(),
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = p.conn.Publish(ctx, string(exchange), string(routingKey), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    msg.ID,
		Type:         string(msg.Type),
		Timestamp:    msg.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}

	p.logger.Debug("published message",
		"exchange", exchange,
		"routing_key", routingKey,
		"message_id", msg.ID,
		"type", msg.Type,
	)
	return nil
}

// PublishEventReceived ставит событие в очередь на обработку.
// Потребитель: Orchestrator.
func (p *Publisher) PublishEventReceived(ctx context.Context, event domain.Event) error {
	msg := NewMessage(MessageTypeEventReceived, EventReceivedPayload{
		Event:      event,
		ReceivedAt: time.Now(),
	})
	return p.Publish(ctx, ExchangeEvents, RoutingKeyReceived, msg)
}

// PublishRunCompleted публикует вердикт завершённого run.
func (p *Publisher) PublishRunCompleted(ctx context.Context, run *domain.RunResult) error {
	msg := NewMessage(MessageTypeRunCompleted, NewRunCompletedPayload(run))
	return p.Publish(ctx, ExchangeRuns, RoutingKeyCompleted, msg)
}
