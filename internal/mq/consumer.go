package mq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Roomly/internal/telemetry"
)

// Handler - функция обработки сообщения.
//
// Возвращаемое значение определяет судьбу доставки:
//   - nil - ack
//   - Requeue(err) при первой доставке - nack с возвратом в очередь
//   - любая другая ошибка - nack без возврата (сообщение уходит в DLQ)
type Handler func(ctx context.Context, d *Delivery) error

// Delivery - доставленное сообщение.
type Delivery struct {
	// ID - AMQP message-id (может быть пустым).
	ID string

	// Body - тело сообщения как есть.
	Body []byte

	// Tag - delivery tag, назначенный брокером.
	Tag uint64

	// Redelivered - сообщение доставляется повторно.
	Redelivered bool

	// Raw - сырое AMQP сообщение.
	Raw amqp.Delivery
}

func newDelivery(raw amqp.Delivery) *Delivery {
	return &Delivery{
		ID:          raw.MessageId,
		Body:        raw.Body,
		Tag:         raw.DeliveryTag,
		Redelivered: raw.Redelivered,
		Raw:         raw,
	}
}

// Consumer потребляет сообщения из очереди с ручным ack.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	topology *Topology
	handler  Handler
	prefetch int
	tag      string

	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

// ConsumerConfig - конфигурация consumer.
type ConsumerConfig struct {
	// Queue - имя очереди.
	Queue Queue

	// Topology - если задана, объявляется перед каждой подпиской
	// (в том числе после reconnect).
	Topology *Topology

	// Handler - обработчик сообщений.
	Handler Handler

	// Prefetch - количество неподтверждённых сообщений на consumer.
	Prefetch int

	// Tag - consumer tag; по умолчанию генерируется.
	Tag string
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	tag := cfg.Tag
	if tag == "" {
		tag = "roomly-" + uuid.New().String()
	}

	queue := cfg.Queue
	if queue == "" && cfg.Topology != nil {
		queue = cfg.Topology.Queue
	}

	return &Consumer{
		conn:     conn,
		logger:   telemetry.WithQueue(logger, string(queue)),
		queue:    queue,
		topology: cfg.Topology,
		handler:  cfg.Handler,
		prefetch: prefetch,
		tag:      tag,
	}
}

// Tag возвращает consumer tag.
func (c *Consumer) Tag() string {
	return c.tag
}

// Start запускает потребление и блокируется до отмены ctx
// или до потери канала без возможности переподключения.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()
	defer cancel()

	return c.consume(ctx)
}

// consume - основной цикл потребления.
func (c *Consumer) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ch, deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "error", err)
			if !c.conn.ReconnectEnabled() || IsPermanent(err) {
				return err
			}
			if err := c.waitReconnect(ctx); err != nil {
				return err
			}
			c.logger.Info("reconnected, restarting consumer")
			continue
		}

		c.conn.setState(StateSubscribed)
		c.logger.Info("consumer started", "consumer_tag", c.tag, "prefetch", c.prefetch)

		if err := c.processDeliveries(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				c.cancel(ch)
				return ctx.Err()
			}
			if !c.conn.ReconnectEnabled() {
				return err
			}
			c.logger.Warn("deliveries channel closed, reconnecting")
			if err := c.waitReconnect(ctx); err != nil {
				return err
			}
		}
	}
}

// waitReconnect ждёт переподключения соединения.
func (c *Consumer) waitReconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.conn.Done():
		return ErrConnectionClosed
	case <-c.conn.ReconnectNotify():
		return nil
	}
}

// setupConsume объявляет топологию, настраивает prefetch и подписывается.
func (c *Consumer) setupConsume() (Channel, <-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, nil, ErrNoChannel
	}

	if c.topology != nil {
		if err := declareTopology(ch, *c.topology); err != nil {
			return nil, nil, err
		}
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(c.queue), // queue
		c.tag,           // consumer tag
		false,           // auto-ack (ack вручную)
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return nil, nil, fmt.Errorf("consume: %w", err)
	}

	return ch, deliveries, nil
}

// cancel снимает подписку при остановке.
func (c *Consumer) cancel(ch Channel) {
	if err := ch.Cancel(c.tag, false); err != nil {
		c.logger.Debug("cancel consumer", "consumer_tag", c.tag, "error", err)
	}
}

// processDeliveries обрабатывает сообщения из канала.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return ErrChannelClosed
			}

			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery обрабатывает одно сообщение и подтверждает его.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	start := time.Now()
	delivery := newDelivery(raw)

	c.logger.Debug("delivery received",
		"delivery_tag", delivery.Tag,
		"message_id", delivery.ID,
		"redelivered", delivery.Redelivered,
	)

	err := c.invoke(ctx, delivery)
	telemetry.HandlerDuration.WithLabelValues(string(c.queue)).Observe(time.Since(start).Seconds())

	if err == nil {
		if ackErr := raw.Ack(false); ackErr != nil {
			c.logger.Error("failed to ack", "delivery_tag", delivery.Tag, "error", ackErr)
			return
		}
		telemetry.MessagesConsumed.WithLabelValues(string(c.queue), telemetry.OutcomeAcked).Inc()
		return
	}

	// Временная ошибка - одна повторная попытка через очередь
	requeue := IsRequeue(err) && !delivery.Redelivered
	outcome := telemetry.OutcomeDeadLettered
	if requeue {
		outcome = telemetry.OutcomeRequeued
	}

	c.logger.Error("handler failed",
		"delivery_tag", delivery.Tag,
		"message_id", delivery.ID,
		"redelivered", delivery.Redelivered,
		"outcome", outcome,
		"error", err,
	)

	if nackErr := raw.Nack(false, requeue); nackErr != nil {
		c.logger.Error("failed to nack", "delivery_tag", delivery.Tag, "error", nackErr)
		return
	}
	telemetry.MessagesConsumed.WithLabelValues(string(c.queue), outcome).Inc()
}

// invoke вызывает handler, превращая панику в ошибку.
func (c *Consumer) invoke(ctx context.Context, d *Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	return c.handler(ctx, d)
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}
