// Roomly Consumer - получает сообщения из очереди и логирует их.
//
// Consumer:
//   - Подключается к RabbitMQ и объявляет ту же топологию, что producer
//   - Подтверждает сообщения после обработки (prefetch CONSUMER_PREFETCH)
//   - Отклонённые сообщения уходят в DLQ
//   - Опционально пишет журнал полученных сообщений в Postgres (DB_URL)
//   - Переподключается при разрыве установленного соединения
//
// Работает до SIGINT/SIGTERM.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Roomly/internal/config"
	"github.com/shaiso/Roomly/internal/consumer"
	"github.com/shaiso/Roomly/internal/mq"
	"github.com/shaiso/Roomly/internal/repo"
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
	logger.Info("starting roomly-consumer")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Журнал (опционально)
	var journal consumer.Journal
	if cfg.Journal.Enabled() {
		pool, err := repo.NewPool(ctx, cfg.Journal.DBURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		messageRepo := repo.NewMessageRepo(pool)
		if err := messageRepo.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare journal", "error", err)
			os.Exit(1)
		}
		journal = messageRepo
		logger.Info("journal enabled")
	}

	// RabbitMQ
	opts, err := mq.OptionsFromConfig(cfg.AMQP)
	if err != nil {
		logger.Error("invalid broker settings", "error", err)
		os.Exit(1)
	}

	conn, err := mq.NewConnection(cfg.AMQP.URL(), logger, opts...)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	svc := consumer.New(consumer.Config{
		Conn:        conn,
		Topology:    mq.TopologyFromConfig(cfg.AMQP),
		Prefetch:    cfg.Consumer.Prefetch,
		ConsumerTag: cfg.Consumer.Tag,
		Journal:     journal,
		Logger:      logger,
	})

	if err := svc.Start(ctx); err != nil {
		logger.Error("failed to start consumer", "error", err)
		os.Exit(1)
	}

	port := ":" + cfg.Consumer.Port
	server := &http.Server{Addr: port, Handler: consumer.NewMux(conn, logger)}

	go func() {
		logger.Info("listening", "addr", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения или остановку consumer
	select {
	case <-ctx.Done():
	case <-svc.Done():
	}

	svc.Stop()
	server.Close()

	if err := svc.Err(); err != nil {
		conn.Close()
		logger.Error("roomly-consumer failed", "error", err)
		os.Exit(1)
	}
	logger.Info("roomly-consumer stopped")
}
