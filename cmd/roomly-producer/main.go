// Roomly Producer - публикует пакет текстовых сообщений в очередь.
//
// Producer:
//   - Подключается к RabbitMQ (SASL PLAIN, AMQPLAIN, EXTERNAL)
//   - Объявляет durable очередь messages и её DLQ
//   - Публикует {"text": ...} по порядку и закрывает соединение
//
// С PRODUCER_SCHEDULE пакет публикуется по cron-расписанию до SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Roomly/internal/config"
	"github.com/shaiso/Roomly/internal/mq"
	"github.com/shaiso/Roomly/internal/producer"
	"github.com/shaiso/Roomly/internal/scheduler"
	"github.com/shaiso/Roomly/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		telemetry.SetupLogger(config.Log{}).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log)
	logger.Info("starting roomly-producer")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts, err := mq.OptionsFromConfig(cfg.AMQP)
	if err != nil {
		logger.Error("invalid broker settings", "error", err)
		os.Exit(1)
	}

	p := producer.New(producer.Config{
		URL:      cfg.AMQP.URL(),
		Options:  opts,
		Topology: mq.TopologyFromConfig(cfg.AMQP),
		Texts:    cfg.Producer.Texts,
		Confirm:  cfg.Producer.Confirm,
		Logger:   logger,
	})

	// Один запуск
	if cfg.Producer.Schedule == "" {
		if err := p.Run(ctx); err != nil {
			os.Exit(1)
		}
		logger.Info("roomly-producer finished")
		return
	}

	// По расписанию
	sched, err := scheduler.New(scheduler.Config{
		Expr:   cfg.Producer.Schedule,
		Job:    p.Run,
		Logger: logger,
	})
	if err != nil {
		logger.Error("invalid PRODUCER_SCHEDULE", "error", err)
		os.Exit(1)
	}

	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler failed", "error", err)
		os.Exit(1)
	}
	logger.Info("roomly-producer stopped")
}
