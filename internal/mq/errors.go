package mq

import (
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Ошибки пакета mq.
var (
	// ErrNoChannel - канал ещё не открыт или соединение закрыто.
	ErrNoChannel = errors.New("no channel available")

	// ErrChannelClosed - брокер закрыл канал доставки.
	ErrChannelClosed = errors.New("deliveries channel closed")

	// ErrConnectionClosed - соединение закрыто вызовом Close.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrPublishNacked - брокер не подтвердил публикацию.
	ErrPublishNacked = errors.New("publish not confirmed by broker")

	// ErrHandlerPanic - обработчик сообщения запаниковал.
	ErrHandlerPanic = errors.New("handler panic")

	// ErrUnknownMechanism - неизвестный механизм SASL.
	ErrUnknownMechanism = errors.New("unknown SASL mechanism")
)

// requeueError помечает ошибку обработки как временную.
type requeueError struct {
	err error
}

func (e *requeueError) Error() string { return e.err.Error() }
func (e *requeueError) Unwrap() error { return e.err }

// Requeue помечает ошибку обработчика как временную: при первой доставке
// сообщение вернётся в очередь, при повторной уйдёт в DLQ.
func Requeue(err error) error {
	if err == nil {
		return nil
	}
	return &requeueError{err: err}
}

// IsRequeue проверяет, помечена ли ошибка через Requeue.
func IsRequeue(err error) bool {
	var r *requeueError
	return errors.As(err, &r)
}

// IsPermanent сообщает, что брокер отклонил операцию по причине, которую
// не исправит повторная попытка (например, очередь объявлена с другими свойствами).
func IsPermanent(err error) bool {
	var amqpErr *amqp.Error
	if !errors.As(err, &amqpErr) {
		return false
	}
	switch amqpErr.Code {
	case amqp.PreconditionFailed, amqp.NotFound, amqp.AccessRefused:
		return true
	default:
		return false
	}
}
