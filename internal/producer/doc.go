// Package producer публикует фиксированный набор текстовых сообщений.
//
// Один запуск Run:
//
//  1. Открывает соединение и канал (mq.WithConnection)
//  2. Объявляет топологию (durable очередь messages и её DLQ)
//  3. Публикует сообщения {"text": "..."} строго в порядке списка
//  4. Закрывает канал и соединение на любом пути выхода
//
// Ошибки соединения логируются и возвращаются вызывающему без повторных попыток.
// Повторный запуск по расписанию - пакет scheduler.
package producer
