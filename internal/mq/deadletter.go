package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Roomly/internal/telemetry"
)

// HeaderReplayed - заголовок сообщений, возвращённых из DLQ.
const HeaderReplayed = "x-replayed"

// ReplayDeadLetters перекладывает до limit сообщений из DLQ обратно в
// основную очередь (limit <= 0 - пока DLQ не опустеет).
//
// Сообщение подтверждается в DLQ только после успешной публикации;
// при ошибке публикации оно возвращается в DLQ.
func ReplayDeadLetters(ctx context.Context, conn *Connection, t Topology, limit int, logger *slog.Logger) (int, error) {
	if t.DeadLetter == "" {
		return 0, errors.New("topology has no dead letter queue")
	}
	if logger == nil {
		logger = slog.Default()
	}

	replayed := 0

	err := conn.WithChannel(ctx, func(ch Channel) error {
		for limit <= 0 || replayed < limit {
			if err := ctx.Err(); err != nil {
				return err
			}

			d, ok, err := ch.Get(string(t.DeadLetter), false)
			if err != nil {
				return fmt.Errorf("get from %s: %w", t.DeadLetter, err)
			}
			if !ok {
				return nil
			}

			headers := amqp.Table{}
			for k, v := range d.Headers {
				headers[k] = v
			}
			headers[HeaderReplayed] = true

			err = ch.PublishWithContext(ctx, "", string(t.Queue), false, false, amqp.Publishing{
				ContentType:  d.ContentType,
				DeliveryMode: amqp.Persistent,
				MessageId:    d.MessageId,
				Timestamp:    d.Timestamp,
				Headers:      headers,
				Body:         d.Body,
			})
			if err != nil {
				if nackErr := d.Nack(false, true); nackErr != nil {
					logger.Error("failed to return dead letter", "delivery_tag", d.DeliveryTag, "error", nackErr)
				}
				return fmt.Errorf("publish to %s: %w", t.Queue, err)
			}

			if err := d.Ack(false); err != nil {
				return fmt.Errorf("ack dead letter: %w", err)
			}

			replayed++
			telemetry.DeadLettersReplayed.WithLabelValues(string(t.Queue)).Inc()

			logger.Info("dead letter replayed",
				"from", t.DeadLetter,
				"to", t.Queue,
				"message_id", d.MessageId,
			)
		}
		return nil
	})

	return replayed, err
}
