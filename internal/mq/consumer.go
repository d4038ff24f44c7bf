package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Handler обрабатывает одно сообщение.
//
// nil — сообщение подтверждается. Ошибка, обёрнутая в Permanent, отправляет
// сообщение в DLQ, любая другая возвращает его в очередь.
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное сообщение.
type Delivery struct {
	Message Message

	// Redelivered — брокер уже доставлял это сообщение раньше.
	Redelivered bool

	Raw amqp.Delivery
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue string

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch ограничивает и число неподтверждённых сообщений,
	// и число одновременно работающих обработчиков. По умолчанию 1.
	Prefetch int

	// Types — допустимые типы сообщений. Пустой список — любые.
	Types []MessageType

	// DeadLetterRedelivered — повторная временная ошибка отправляет
	// сообщение в DLQ вместо бесконечного возврата в очередь.
	// Ошибки во время остановки consumer'а под это правило не попадают.
	DeadLetterRedelivered bool
}

// Consumer читает очередь на собственном канале и переживает
// переподключения Connection.
type Consumer struct {
	conn   *Connection
	logger *slog.Logger
	cfg    ConsumerConfig

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}

	return &Consumer{
		conn:   conn,
		logger: logger.With("queue", cfg.Queue),
		cfg:    cfg,
	}
}

// Start блокируется до отмены ctx, Stop или закрытия соединения.
// Перед возвратом дожидается работающих обработчиков.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	for {
		// сигнал берём до подписки, чтобы не пропустить reconnect
		reconnected := c.conn.Reconnected()

		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consumer session ended, waiting for reconnect", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.Done():
			return ErrNoChannel
		case <-reconnected:
			c.logger.Info("reconnected, restarting consumer")
		}
	}
}

// session открывает канал и обрабатывает доставки, пока канал жив.
func (c *Consumer) session(ctx context.Context) error {
	ch, err := c.conn.OpenChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("consumer started", "prefetch", c.cfg.Prefetch)

	// канал закрывается только после того, как все обработчики сделали ack
	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Prefetch)
	defer g.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			g.Go(func() error {
				c.dispatch(ctx, raw)
				return nil
			})
		}
	}
}

// dispatch разбирает сообщение, вызывает обработчик и решает судьбу доставки.
func (c *Consumer) dispatch(ctx context.Context, raw amqp.Delivery) {
	logger := c.logger.With("delivery_tag", raw.DeliveryTag)

	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		logger.Error("malformed message, dead-lettering", "error", err, "body", string(raw.Body))
		c.settle(logger, raw, false, false)
		return
	}

	logger = logger.With("message_id", msg.ID, "type", msg.Type)

	if len(c.cfg.Types) > 0 && !slices.Contains(c.cfg.Types, msg.Type) {
		logger.Error("dead-lettering message", "error", ErrUnexpectedType)
		c.settle(logger, raw, false, false)
		return
	}

	logger.Debug("received message", "redelivered", raw.Redelivered)

	err := c.cfg.Handler(telemetry.WithLogger(ctx, logger), &Delivery{
		Message:     msg,
		Redelivered: raw.Redelivered,
		Raw:         raw,
	})
	if err == nil {
		c.settle(logger, raw, true, false)
		return
	}

	requeue := shouldRequeue(err, raw.Redelivered, c.cfg.DeadLetterRedelivered, ctx.Err() != nil)
	logger.Error("handler failed", "error", err, "requeue", requeue)
	c.settle(logger, raw, false, requeue)
}

// shouldRequeue решает, вернуть ли сообщение в очередь после ошибки обработчика.
// Во время остановки consumer'а временная ошибка всегда возвращает сообщение.
func shouldRequeue(err error, redelivered, deadLetterRedelivered, stopping bool) bool {
	if IsPermanent(err) {
		return false
	}
	if stopping {
		return true
	}
	return !(redelivered && deadLetterRedelivered)
}

func (c *Consumer) settle(logger *slog.Logger, raw amqp.Delivery, ack, requeue bool) {
	var err error
	if ack {
		err = raw.Ack(false)
	} else {
		err = raw.Nack(false, requeue)
	}
	// канал мог закрыться: брокер вернёт сообщение сам
	if err != nil {
		logger.Warn("failed to settle delivery", "ack", ack, "error", err)
	}
}

// Stop прерывает Start.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// ParsePayload декодирует payload сообщения в T.
// После json.Unmarshal конверта payload лежит как map[string]any.
func ParsePayload[T any](msg *Message) (T, error) {
	var out T

	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return out, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("unmarshal payload: %w", err)
	}
	return out, nil
}
