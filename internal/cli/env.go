package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Roomly/internal/config"
	"github.com/shaiso/Roomly/internal/domain"
	"github.com/shaiso/Roomly/internal/mq"
	"github.com/shaiso/Roomly/internal/repo"
)

// JournalReader читает журнал полученных сообщений.
// *repo.MessageRepo удовлетворяет этому интерфейсу.
type JournalReader interface {
	ListRecent(ctx context.Context, queue string, limit int) ([]domain.ReceivedMessage, error)
	GetByMessageID(ctx context.Context, messageID string) (*domain.ReceivedMessage, error)
}

// Env - общие зависимости команд.
type Env struct {
	Config *config.Config
	Logger *slog.Logger

	// Options - дополнительные опции соединения (например, mq.WithDialer).
	Options []mq.Option

	// OpenJournal открывает журнал; по умолчанию Postgres из Config.Journal.
	OpenJournal func(ctx context.Context) (JournalReader, func(), error)
}

// NewEnv создаёт Env с журналом на Postgres.
func NewEnv(cfg *config.Config, logger *slog.Logger) *Env {
	e := &Env{Config: cfg, Logger: logger}
	e.OpenJournal = e.openPostgresJournal
	return e
}

// Topology возвращает очереди из конфигурации.
func (e *Env) Topology() mq.Topology {
	return mq.TopologyFromConfig(e.Config.AMQP)
}

// ConnOptions возвращает опции соединения для одной команды.
// Команды короткоживущие, поэтому переподключение выключено.
func (e *Env) ConnOptions() ([]mq.Option, error) {
	opts, err := mq.OptionsFromConfig(e.Config.AMQP)
	if err != nil {
		return nil, err
	}
	opts = append(opts, mq.WithReconnect(false))
	return append(opts, e.Options...), nil
}

// WithConnection открывает соединение на время fn.
func (e *Env) WithConnection(fn func(conn *mq.Connection) error) error {
	opts, err := e.ConnOptions()
	if err != nil {
		return err
	}
	return mq.WithConnection(e.Config.AMQP.URL(), e.logger(), fn, opts...)
}

// Journal открывает журнал. Возвращённую функцию нужно вызвать после работы.
func (e *Env) Journal(ctx context.Context) (JournalReader, func(), error) {
	if e.OpenJournal == nil {
		return e.openPostgresJournal(ctx)
	}
	return e.OpenJournal(ctx)
}

func (e *Env) openPostgresJournal(ctx context.Context) (JournalReader, func(), error) {
	if !e.Config.Journal.Enabled() {
		return nil, nil, ErrJournalDisabled
	}

	pool, err := repo.NewPool(ctx, e.Config.Journal.DBURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal: %w", err)
	}

	return repo.NewMessageRepo(pool), pool.Close, nil
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
