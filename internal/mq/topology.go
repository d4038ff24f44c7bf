package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

type (
	Exchange   string
	Queue      string
	RoutingKey string
)

const (
	ExchangeEvents Exchange = "conveyor.events"
	ExchangeRuns   Exchange = "conveyor.runs"
	ExchangeDLQ    Exchange = "conveyor.dlq"
)

const (
	QueueEventsReceived Queue = "events.received"
	QueueRunsCompleted  Queue = "runs.completed"
	QueueDLQEvents      Queue = "dlq.events"
)

const (
	RoutingKeyReceived  RoutingKey = "received"
	RoutingKeyCompleted RoutingKey = "completed"
	RoutingKeyDLQEvents RoutingKey = "events"
)

// Binding описывает durable-очередь и её привязку к direct exchange.
type Binding struct {
	Exchange Exchange
	Queue    Queue
	Key      RoutingKey

	// DeadLetter — ключ в ExchangeDLQ для отклонённых сообщений.
	// Пустой — очередь без DLQ.
	DeadLetter RoutingKey

	// Consumer — кто читает очередь (для логов).
	Consumer string
}

func (b Binding) args() amqp.Table {
	if b.DeadLetter == "" {
		return nil
	}
	return amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(b.DeadLetter),
	}
}

// Topology — все очереди Conveyor.
var Topology = []Binding{
	{ExchangeEvents, QueueEventsReceived, RoutingKeyReceived, RoutingKeyDLQEvents, "orchestrator"},
	{ExchangeRuns, QueueRunsCompleted, RoutingKeyCompleted, "", "external"},
	{ExchangeDLQ, QueueDLQEvents, RoutingKeyDLQEvents, "", "manual"},
}

// SetupTopology объявляет exchanges, очереди и привязки из Topology.
// Повторный вызов ничего не меняет.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		declared := make(map[Exchange]bool)

		for _, b := range Topology {
			if !declared[b.Exchange] {
				if err := ch.ExchangeDeclare(string(b.Exchange), amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
					return fmt.Errorf("declare exchange %s: %w", b.Exchange, err)
				}
				declared[b.Exchange] = true
			}

			if _, err := ch.QueueDeclare(string(b.Queue), true, false, false, false, b.args()); err != nil {
				return fmt.Errorf("declare queue %s: %w", b.Queue, err)
			}
			if err := ch.QueueBind(string(b.Queue), string(b.Key), string(b.Exchange), false, nil); err != nil {
				return fmt.Errorf("bind %s to %s: %w", b.Queue, b.Exchange, err)
			}
		}
		return nil
	})
}

// DescribeTopology печатает Topology по строке на очередь.
func DescribeTopology() string {
	var sb strings.Builder
	for _, b := range Topology {
		fmt.Fprintf(&sb, "%s -[%s]-> %s (consumer: %s", b.Exchange, b.Key, b.Queue, b.Consumer)
		if b.DeadLetter != "" {
			fmt.Fprintf(&sb, ", dlq: %s/%s", ExchangeDLQ, b.DeadLetter)
		}
		sb.WriteString(")\n")
	}
	return sb.String()
}
