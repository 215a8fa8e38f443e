package mq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ContentTypeJSON - content type публикуемых сообщений.
const ContentTypeJSON = "application/json"

// Message - сообщение для публикации.
type Message struct {
	// ID - уникальный идентификатор сообщения (AMQP message-id).
	ID string

	// ContentType - MIME тип тела.
	ContentType string

	// Body - тело сообщения.
	Body []byte

	// Timestamp - время создания.
	Timestamp time.Time

	// Headers - дополнительные заголовки.
	Headers amqp.Table
}

// TextMessage - полезная нагрузка {"text": "..."}.
type TextMessage struct {
	Text string `json:"text"`
}

// TextMessages оборачивает строки в TextMessage, сохраняя порядок.
func TextMessages(texts ...string) []TextMessage {
	msgs := make([]TextMessage, len(texts))
	for i, t := range texts {
		msgs[i] = TextMessage{Text: t}
	}
	return msgs
}

// NewJSONMessage сериализует payload в JSON сообщение.
func NewJSONMessage(payload any) (*Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	return &Message{
		ID:          uuid.New().String(),
		ContentType: ContentTypeJSON,
		Body:        body,
		Timestamp:   time.Now().UTC(),
	}, nil
}

// publishing переводит Message в amqp.Publishing.
func (m *Message) publishing() amqp.Publishing {
	return amqp.Publishing{
		ContentType:  m.ContentType,
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт брокера
		MessageId:    m.ID,
		Timestamp:    m.Timestamp,
		Headers:      m.Headers,
		Body:         m.Body,
	}
}
