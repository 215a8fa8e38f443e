// Package scheduler запускает задачу по cron-расписанию.
//
// Используется producer'ом: при заданном PRODUCER_SCHEDULE пакет сообщений
// публикуется на каждом тике до SIGINT/SIGTERM.
//
// Структура:
//   - scheduler.go - Scheduler (Tick, Run)
//   - cron.go      - парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Expr:   "@every 30s",
//	    Job:    p.Run,
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//	sched.Run(ctx) // блокируется до отмены ctx
//
// Запуски не перекрываются (cron.SkipIfStillRunning), паника в задаче
// перехватывается (cron.Recover).
package scheduler
