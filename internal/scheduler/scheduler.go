package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Job - задача, запускаемая по расписанию.
type Job func(ctx context.Context) error

// Scheduler запускает Job по cron-выражению.
//
// Запуски не перекрываются: если предыдущий ещё идёт, тик пропускается.
// Ошибка одного запуска не останавливает расписание.
type Scheduler struct {
	expr   string
	job    Job
	logger *slog.Logger

	runs     atomic.Int64
	failures atomic.Int64
}

// Config - конфигурация Scheduler.
type Config struct {
	// Expr - cron-выражение, например "*/5 * * * *" или "@every 30s".
	Expr string

	// Job - задача.
	Job Job

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Scheduler. Возвращает ошибку для невалидного выражения.
func New(cfg Config) (*Scheduler, error) {
	if err := ValidateCronExpr(cfg.Expr); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		expr:   cfg.Expr,
		job:    cfg.Job,
		logger: logger.With("schedule", cfg.Expr),
	}, nil
}

// Tick выполняет один запуск задачи.
func (s *Scheduler) Tick(ctx context.Context) error {
	start := time.Now()
	s.runs.Add(1)

	if err := s.job(ctx); err != nil {
		s.failures.Add(1)
		s.logger.Error("scheduled run failed",
			"duration", time.Since(start),
			"error", err,
		)
		return err
	}

	s.logger.Info("scheduled run completed", "duration", time.Since(start))
	return nil
}

// Run запускает расписание и блокируется до отмены ctx.
// Перед возвратом дожидается завершения текущего запуска.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := cronLogger{s: s}

	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := c.AddFunc(s.expr, func() {
		s.Tick(ctx)
	}); err != nil {
		return err
	}

	c.Start()

	next, _ := NextRun(s.expr, time.Now())
	s.logger.Info("scheduler started", "next_run", next)

	<-ctx.Done()

	s.logger.Info("stopping scheduler...")
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped", "runs", s.runs.Load(), "failures", s.failures.Load())

	return nil
}

// Runs возвращает количество запусков.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

// Failures возвращает количество неудачных запусков.
func (s *Scheduler) Failures() int64 {
	return s.failures.Load()
}
