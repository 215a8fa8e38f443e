// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go - соединение и канал (состояния, reconnect, гарантированное закрытие)
//   - auth.go       - механизмы SASL (PLAIN, AMQPLAIN, EXTERNAL) и параметры dial
//   - topology.go   - объявление durable очередей и DLQ
//   - message.go    - модель публикуемого сообщения
//   - publisher.go  - публикация в очередь через default exchange
//   - consumer.go   - потребление с ручным ack/nack
//   - deadletter.go - возврат сообщений из DLQ
//
// Очереди:
//   - messages     - основная очередь, payload {"text": "..."}
//   - messages.dlq - отклонённые сообщения
//
// Подпакет mqtest содержит in-memory брокер для тестов.
package mq
