package producer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Roomly/internal/mq"
)

// DefaultTexts - сообщения, публикуемые по умолчанию.
var DefaultTexts = []string{"Hello World 1", "Hello World 2", "Hello World 3"}

// Producer публикует набор сообщений в очередь.
type Producer struct {
	url      string
	opts     []mq.Option
	topology mq.Topology
	messages []mq.TextMessage
	confirm  bool
	logger   *slog.Logger
}

// Config - конфигурация Producer.
type Config struct {
	// URL - адрес брокера.
	URL string

	// Options - опции соединения (SASL, dialer).
	Options []mq.Option

	// Topology - очереди; по умолчанию mq.DefaultTopology().
	Topology mq.Topology

	// Texts - тексты сообщений; по умолчанию DefaultTexts.
	Texts []string

	// Confirm - ждать подтверждения брокера.
	Confirm bool

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Producer.
func New(cfg Config) *Producer {
	topology := cfg.Topology
	if topology.Queue == "" {
		topology = mq.DefaultTopology()
	}

	texts := cfg.Texts
	if len(texts) == 0 {
		texts = DefaultTexts
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Producer живёт один запуск: переподключение не нужно
	opts := append(append([]mq.Option(nil), cfg.Options...), mq.WithReconnect(false))

	return &Producer{
		url:      cfg.URL,
		opts:     opts,
		topology: topology,
		messages: mq.TextMessages(texts...),
		confirm:  cfg.Confirm,
		logger:   logger,
	}
}

// Run подключается, объявляет очередь, публикует сообщения и закрывает соединение.
func (p *Producer) Run(ctx context.Context) error {
	p.logger.Info("connecting to broker", "queue", p.topology.Queue)

	err := mq.WithConnection(p.url, p.logger, func(conn *mq.Connection) error {
		if err := mq.DeclareTopology(ctx, conn, p.topology); err != nil {
			return err
		}
		p.logger.Info("queue declared", "topology", p.topology.Info())

		pub := mq.NewPublisher(conn, p.logger, mq.PublisherConfig{Confirm: p.confirm})

		n, err := pub.PublishTexts(ctx, p.topology.Queue, p.messages)
		if err != nil {
			return fmt.Errorf("published %d of %d messages: %w", n, len(p.messages), err)
		}

		p.logger.Info("batch published",
			"queue", p.topology.Queue,
			"count", n,
			"confirmed", p.confirm,
		)
		return nil
	}, p.opts...)

	if err != nil {
		p.logger.Error("producer failed", "queue", p.topology.Queue, "error", err)
		return err
	}

	return nil
}
