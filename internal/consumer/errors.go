package consumer

import "errors"

// Ошибки consumer.
var (
	// ErrInvalidPayload - тело сообщения не является UTF-8 текстом.
	ErrInvalidPayload = errors.New("invalid payload: not utf-8")

	// ErrAlreadyStarted - Start вызван повторно.
	ErrAlreadyStarted = errors.New("consumer already started")
)
