package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Roomly/internal/config"
)

// Queue - тип для имени очереди.
type Queue string

// Очереди по умолчанию.
const (
	QueueMessages    Queue = "messages"
	QueueMessagesDLQ Queue = "messages.dlq"
)

// Topology - очереди, которые объявляют и producer, и consumer.
// Обе стороны строят аргументы из одной Topology, поэтому повторное
// объявление не расходится по свойствам.
type Topology struct {
	// Queue - основная очередь.
	Queue Queue

	// DeadLetter - очередь для отклонённых сообщений (пусто - без DLQ).
	DeadLetter Queue
}

// DefaultTopology возвращает messages + messages.dlq.
func DefaultTopology() Topology {
	return Topology{Queue: QueueMessages, DeadLetter: QueueMessagesDLQ}
}

// TopologyFromConfig строит топологию из конфигурации.
func TopologyFromConfig(cfg config.AMQP) Topology {
	return Topology{
		Queue:      Queue(cfg.Queue),
		DeadLetter: Queue(cfg.DeadLetter()),
	}
}

// QueueArgs возвращает аргументы основной очереди.
// Dead-letter идёт через default exchange с routing key = имя DLQ.
func (t Topology) QueueArgs() amqp.Table {
	if t.DeadLetter == "" {
		return nil
	}
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": string(t.DeadLetter),
	}
}

// Info возвращает описание топологии для логирования.
func (t Topology) Info() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (durable)", t.Queue)
	if t.DeadLetter != "" {
		fmt.Fprintf(&b, " -> dead letters: %s (durable)", t.DeadLetter)
	}
	return b.String()
}

// DeclareTopology объявляет очереди топологии. Идемпотентна.
func DeclareTopology(ctx context.Context, conn *Connection, t Topology) error {
	return conn.WithChannel(ctx, func(ch Channel) error {
		return declareTopology(ch, t)
	})
}

func declareTopology(ch Channel, t Topology) error {
	// DLQ объявляется первой: основная очередь ссылается на неё
	if t.DeadLetter != "" {
		if _, err := declareQueue(ch, t.DeadLetter, nil); err != nil {
			return err
		}
	}

	_, err := declareQueue(ch, t.Queue, t.QueueArgs())
	return err
}

// declareQueue объявляет durable очередь.
func declareQueue(ch Channel, name Queue, args amqp.Table) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		string(name), // name
		true,         // durable
		false,        // delete when unused
		false,        // exclusive
		false,        // no-wait
		args,         // arguments
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("declare queue %s: %w", name, err)
	}
	return q, nil
}

// QueueStats - состояние очереди на брокере.
type QueueStats struct {
	Name      string `json:"name"`
	Messages  int    `json:"messages"`
	Consumers int    `json:"consumers"`
}

// InspectQueue возвращает количество сообщений и consumers очереди.
// Использует пассивное объявление: очередь не создаётся.
func InspectQueue(ctx context.Context, conn *Connection, name Queue) (QueueStats, error) {
	var stats QueueStats

	err := conn.WithChannel(ctx, func(ch Channel) error {
		q, err := ch.QueueDeclarePassive(string(name), true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("inspect queue %s: %w", name, err)
		}
		stats = QueueStats{Name: q.Name, Messages: q.Messages, Consumers: q.Consumers}
		return nil
	})

	return stats, err
}
