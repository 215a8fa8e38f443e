package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReceivedMessage - запись журнала о сообщении, полученном consumer'ом.
//
// Журнал - это история доставок: что пришло, из какой очереди и когда.
// Одно AMQP сообщение записывается не более одного раза (по MessageID),
// повторная доставка того же сообщения дубликата не создаёт.
type ReceivedMessage struct {
	// ID - уникальный идентификатор записи.
	ID uuid.UUID `json:"id"`

	// MessageID - AMQP message-id, назначенный producer'ом.
	MessageID string `json:"message_id"`

	// Queue - очередь, из которой пришло сообщение.
	Queue string `json:"queue"`

	// DeliveryTag - delivery tag в канале consumer'а.
	DeliveryTag uint64 `json:"delivery_tag"`

	// Redelivered - сообщение было доставлено повторно.
	Redelivered bool `json:"redelivered"`

	// Body - тело сообщения как есть.
	Body string `json:"body"`

	// ReceivedAt - время получения.
	ReceivedAt time.Time `json:"received_at"`
}

// NewReceivedMessage создаёт запись журнала с новым ID и текущим временем.
func NewReceivedMessage(queue, messageID string, tag uint64, redelivered bool, body []byte) *ReceivedMessage {
	return &ReceivedMessage{
		ID:          uuid.New(),
		MessageID:   messageID,
		Queue:       queue,
		DeliveryTag: tag,
		Redelivered: redelivered,
		Body:        string(body),
		ReceivedAt:  time.Now().UTC(),
	}
}
