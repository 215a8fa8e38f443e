package mq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Roomly/internal/telemetry"
)

// Publisher публикует сообщения в очереди через default exchange.
type Publisher struct {
	conn    *Connection
	logger  *slog.Logger
	confirm bool

	// Состояние confirm mode; канал меняется после reconnect
	mu        sync.Mutex
	confirmCh Channel
	confirms  chan amqp.Confirmation
}

// PublisherConfig - конфигурация Publisher.
type PublisherConfig struct {
	// Confirm - ждать подтверждения брокера на каждую публикацию.
	// По умолчанию публикация fire-and-forget.
	Confirm bool
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		conn:    conn,
		logger:  logger,
		confirm: cfg.Confirm,
	}
}

// Publish публикует сообщение в очередь queue.
func (p *Publisher) Publish(ctx context.Context, queue Queue, msg *Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.conn.setState(StatePublishing)

	return p.conn.WithChannel(ctx, func(ch Channel) error {
		if p.confirm {
			if err := p.enableConfirms(ch); err != nil {
				return err
			}
		}

		err := ch.PublishWithContext(
			ctx,
			"",            // default exchange
			string(queue), // routing key = имя очереди
			false,         // mandatory
			false,         // immediate
			msg.publishing(),
		)
		if err != nil {
			return fmt.Errorf("publish to %s: %w", queue, err)
		}

		if p.confirm {
			if err := p.waitConfirm(ctx, msg); err != nil {
				return fmt.Errorf("publish to %s: %w", queue, err)
			}
		}

		telemetry.MessagesPublished.WithLabelValues(string(queue)).Inc()

		p.logger.Debug("published message",
			"queue", queue,
			"message_id", msg.ID,
			"confirmed", p.confirm,
		)

		return nil
	})
}

// PublishJSON публикует произвольный JSON payload.
func (p *Publisher) PublishJSON(ctx context.Context, queue Queue, payload any) (*Message, error) {
	msg, err := NewJSONMessage(payload)
	if err != nil {
		return nil, err
	}

	if err := p.Publish(ctx, queue, msg); err != nil {
		return nil, err
	}

	return msg, nil
}

// PublishTexts публикует сообщения строго в порядке списка.
// Останавливается на первой ошибке и возвращает число опубликованных.
func (p *Publisher) PublishTexts(ctx context.Context, queue Queue, msgs []TextMessage) (int, error) {
	for i, m := range msgs {
		msg, err := p.PublishJSON(ctx, queue, m)
		if err != nil {
			return i, err
		}

		p.logger.Info("sent message",
			"queue", queue,
			"message_id", msg.ID,
			"body", string(msg.Body),
		)
	}

	return len(msgs), nil
}

// enableConfirms включает confirm mode на канале один раз.
// Вызывается под p.mu.
func (p *Publisher) enableConfirms(ch Channel) error {
	if p.confirmCh == ch && p.confirms != nil {
		return nil
	}

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("enable confirms: %w", err)
	}

	p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	p.confirmCh = ch

	return nil
}

// waitConfirm ждёт подтверждения последней публикации.
func (p *Publisher) waitConfirm(ctx context.Context, msg *Message) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case conf, ok := <-p.confirms:
		if !ok {
			p.confirms = nil
			return ErrChannelClosed
		}
		if !conf.Ack {
			return fmt.Errorf("%w: message %s", ErrPublishNacked, msg.ID)
		}
		return nil
	}
}
