package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Roomly/internal/domain"
)

// MaxListLimit - максимальное количество записей в одной выборке.
const MaxListLimit = 1000

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS received_messages (
		id           UUID PRIMARY KEY,
		message_id   TEXT UNIQUE,
		queue        TEXT NOT NULL,
		delivery_tag BIGINT NOT NULL,
		redelivered  BOOLEAN NOT NULL DEFAULT FALSE,
		body         TEXT NOT NULL,
		received_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS received_messages_queue_received_at
		ON received_messages (queue, received_at DESC);
`

// MessageRepo - журнал полученных сообщений.
type MessageRepo struct {
	pool *pgxpool.Pool
}

// NewMessageRepo создаёт новый MessageRepo.
func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// EnsureSchema создаёт таблицу журнала, если её нет.
func (r *MessageRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Record записывает сообщение в журнал.
// Возвращает false, если сообщение с таким MessageID уже записано.
func (r *MessageRepo) Record(ctx context.Context, m *domain.ReceivedMessage) (bool, error) {
	query := `
		INSERT INTO received_messages (id, message_id, queue, delivery_tag, redelivered, body, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (message_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		m.ID,
		nullString(m.MessageID),
		m.Queue,
		int64(m.DeliveryTag),
		m.Redelivered,
		m.Body,
		m.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert received message: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListRecent возвращает последние записи журнала, новые первыми.
// Пустая queue - все очереди.
func (r *MessageRepo) ListRecent(ctx context.Context, queue string, limit int) ([]domain.ReceivedMessage, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}

	query := `
		SELECT id, message_id, queue, delivery_tag, redelivered, body, received_at
		FROM received_messages
		WHERE ($1::text IS NULL OR queue = $1)
		ORDER BY received_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, nullString(queue), limit)
	if err != nil {
		return nil, fmt.Errorf("query received messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.ReceivedMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// GetByMessageID возвращает запись по AMQP message-id.
func (r *MessageRepo) GetByMessageID(ctx context.Context, messageID string) (*domain.ReceivedMessage, error) {
	query := `
		SELECT id, message_id, queue, delivery_tag, redelivered, body, received_at
		FROM received_messages
		WHERE message_id = $1
	`
	m, err := scanMessage(r.pool.QueryRow(ctx, query, messageID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// scanMessage сканирует строку в ReceivedMessage.
func scanMessage(row pgx.Row) (*domain.ReceivedMessage, error) {
	var (
		m         domain.ReceivedMessage
		messageID *string
		tag       int64
	)

	err := row.Scan(
		&m.ID,
		&messageID,
		&m.Queue,
		&tag,
		&m.Redelivered,
		&m.Body,
		&m.ReceivedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan received message: %w", err)
	}

	if messageID != nil {
		m.MessageID = *messageID
	}
	m.DeliveryTag = uint64(tag)

	return &m, nil
}

// checkLimit проверяет лимит выборки.
func checkLimit(limit int) error {
	if limit <= 0 || limit > MaxListLimit {
		return fmt.Errorf("%w: %d (expected 1..%d)", ErrInvalidLimit, limit, MaxListLimit)
	}
	return nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
