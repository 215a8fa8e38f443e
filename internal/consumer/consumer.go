package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/shaiso/Roomly/internal/domain"
	"github.com/shaiso/Roomly/internal/mq"
)

const defaultPrefetch = 10

// Journal записывает полученные сообщения.
// *repo.MessageRepo удовлетворяет этому интерфейсу.
type Journal interface {
	Record(ctx context.Context, m *domain.ReceivedMessage) (bool, error)
}

// Service потребляет сообщения из очереди.
type Service struct {
	conn     *mq.Connection
	topology mq.Topology
	prefetch int
	tag      string
	journal  Journal
	logger   *slog.Logger

	consumer *mq.Consumer

	// Lifecycle
	mu         sync.Mutex
	started    bool
	cancelFunc context.CancelFunc
	done       chan struct{}
	err        error
}

// Config - конфигурация Service.
type Config struct {
	// Conn - соединение с брокером.
	Conn *mq.Connection

	// Topology - очереди; по умолчанию mq.DefaultTopology().
	Topology mq.Topology

	// Prefetch - лимит неподтверждённых сообщений (default: 10).
	Prefetch int

	// ConsumerTag - тег подписки; по умолчанию генерируется.
	ConsumerTag string

	// Journal - журнал сообщений (опционально).
	Journal Journal

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Service.
func New(cfg Config) *Service {
	topology := cfg.Topology
	if topology.Queue == "" {
		topology = mq.DefaultTopology()
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		conn:     cfg.Conn,
		topology: topology,
		prefetch: prefetch,
		tag:      cfg.ConsumerTag,
		journal:  cfg.Journal,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start запускает потребление в отдельной горутине.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	topology := s.topology
	s.consumer = mq.NewConsumer(s.conn, s.logger, mq.ConsumerConfig{
		Topology: &topology,
		Handler:  s.handleMessage,
		Prefetch: s.prefetch,
		Tag:      s.tag,
	})

	s.logger.Info("starting consumer",
		"topology", topology.Info(),
		"consumer_tag", s.consumer.Tag(),
		"prefetch", s.prefetch,
		"journal", s.journal != nil,
	)

	go func() {
		defer close(s.done)

		err := s.consumer.Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("consumer stopped with error", "error", err)
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()

	return nil
}

// Stop останавливает потребление и ждёт завершения цикла.
// Текущее сообщение дообрабатывается и подтверждается.
func (s *Service) Stop() {
	s.mu.Lock()
	started := s.started
	cancel := s.cancelFunc
	s.mu.Unlock()

	if !started {
		return
	}

	s.logger.Info("stopping consumer...")

	if cancel != nil {
		cancel()
	}

	<-s.done

	s.logger.Info("consumer stopped")
}

// Done закрывается, когда цикл потребления завершён.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Err возвращает ошибку, с которой завершился цикл (nil при штатной остановке).
func (s *Service) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// handleMessage обрабатывает одно сообщение.
func (s *Service) handleMessage(ctx context.Context, d *mq.Delivery) error {
	if !utf8.Valid(d.Body) {
		return fmt.Errorf("%w: delivery %d", ErrInvalidPayload, d.Tag)
	}

	s.logger.Info("received message",
		"queue", s.topology.Queue,
		"message_id", d.ID,
		"delivery_tag", d.Tag,
		"redelivered", d.Redelivered,
		"body", string(d.Body),
	)

	if s.journal == nil {
		return nil
	}

	entry := domain.NewReceivedMessage(string(s.topology.Queue), d.ID, d.Tag, d.Redelivered, d.Body)
	recorded, err := s.journal.Record(ctx, entry)
	if err != nil {
		return mq.Requeue(fmt.Errorf("record message: %w", err))
	}
	if !recorded {
		s.logger.Debug("message already in journal", "message_id", d.ID)
	}

	return nil
}
