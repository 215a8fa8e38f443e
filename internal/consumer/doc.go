// Package consumer получает сообщения из очереди и логирует их.
//
// # Обзор
//
// Service - долгоживущий процесс поверх mq.Consumer:
//
//   - Объявляет ту же топологию, что и producer (messages + messages.dlq)
//   - Ограничивает число неподтверждённых сообщений через prefetch
//   - Логирует тело каждого сообщения как есть
//   - Опционально записывает сообщение в журнал (Postgres)
//   - Подтверждает сообщение только после обработки
//
// Пустая очередь - нормальное состояние: consumer ждёт и ничего не логирует.
//
// # Ошибки обработки
//
// Обработчик возвращает ошибку вместо падения процесса:
//   - Тело не UTF-8 - ErrInvalidPayload, сообщение уходит в DLQ
//   - Ошибка журнала - временная (mq.Requeue), одна повторная доставка,
//     затем DLQ
//
// # Использование
//
//	svc := consumer.New(consumer.Config{
//	    Conn:     conn,
//	    Topology: mq.DefaultTopology(),
//	    Prefetch: 10,
//	    Logger:   logger,
//	})
//	if err := svc.Start(ctx); err != nil {
//	    return err
//	}
//	defer svc.Stop()
package consumer
