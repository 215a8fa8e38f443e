package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Roomly/internal/domain"
	"github.com/shaiso/Roomly/internal/mq"
	"github.com/shaiso/Roomly/internal/mq/mqtest"
)

// syncBuffer - потокобезопасный буфер для логов.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// records возвращает JSON записи логов с заданным msg.
func (b *syncBuffer) records(t *testing.T, msg string) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		if rec["msg"] == msg {
			out = append(out, rec)
		}
	}
	return out
}

// fakeJournal - журнал в памяти.
type fakeJournal struct {
	mu      sync.Mutex
	entries []*domain.ReceivedMessage
	seen    map[string]bool
	calls   int
	err     error
}

func (j *fakeJournal) Record(_ context.Context, m *domain.ReceivedMessage) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.calls++
	if j.err != nil {
		return false, j.err
	}
	if j.seen == nil {
		j.seen = make(map[string]bool)
	}
	if j.seen[m.MessageID] {
		return false, nil
	}
	j.seen[m.MessageID] = true
	j.entries = append(j.entries, m)
	return true, nil
}

func (j *fakeJournal) snapshot() ([]*domain.ReceivedMessage, int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]*domain.ReceivedMessage(nil), j.entries...), j.calls
}

func connect(t *testing.T, b *mqtest.Broker) *mq.Connection {
	t.Helper()

	conn, err := mq.NewConnection("amqp://localhost", slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		mq.WithDialer(b.Dialer()),
		mq.WithReconnect(false),
	)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func publish(t *testing.T, b *mqtest.Broker, texts ...string) {
	t.Helper()

	conn := connect(t, b)
	if err := mq.DeclareTopology(context.Background(), conn, mq.DefaultTopology()); err != nil {
		t.Fatalf("declare: %v", err)
	}
	pub := mq.NewPublisher(conn, nil, mq.PublisherConfig{})
	if _, err := pub.PublishTexts(context.Background(), mq.QueueMessages, mq.TextMessages(texts...)); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func startService(t *testing.T, b *mqtest.Broker, journal Journal) (*Service, *syncBuffer) {
	t.Helper()

	logs := &syncBuffer{}
	cfg := Config{
		Conn:   connect(t, b),
		Logger: slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
	if journal != nil {
		cfg.Journal = journal
	}

	svc := New(cfg)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(svc.Stop)

	return svc, logs
}

func drained(b *mqtest.Broker) func() bool {
	return func() bool {
		return b.Depth("messages") == 0 && b.Unacked("messages") == 0
	}
}

// --- Service Tests ---

func TestService_LogsMessagesInOrder(t *testing.T) {
	b := mqtest.NewBroker()
	publish(t, b, "Hello World 1", "Hello World 2", "Hello World 3")

	_, logs := startService(t, b, nil)

	if !b.WaitFor(2*time.Second, drained(b)) {
		t.Fatal("messages were not consumed")
	}

	received := logs.records(t, "received message")
	if len(received) != 3 {
		t.Fatalf("expected 3 received logs, got %d", len(received))
	}
	for i, rec := range received {
		var msg mq.TextMessage
		if err := json.Unmarshal([]byte(rec["body"].(string)), &msg); err != nil {
			t.Fatalf("log %d: body is not the published JSON: %v", i, err)
		}
		want := []string{"Hello World 1", "Hello World 2", "Hello World 3"}[i]
		if msg.Text != want {
			t.Errorf("log %d: expected %q, got %q", i, want, msg.Text)
		}
	}
}

func TestService_EmptyQueueBlocks(t *testing.T) {
	b := mqtest.NewBroker()
	svc, logs := startService(t, b, nil)

	if !b.WaitFor(time.Second, func() bool { return b.Consumers("messages") == 1 }) {
		t.Fatal("consumer did not subscribe")
	}

	select {
	case <-svc.Done():
		t.Fatal("consumer should block on empty queue")
	case <-time.After(100 * time.Millisecond):
	}

	if n := len(logs.records(t, "received message")); n != 0 {
		t.Errorf("expected no received logs, got %d", n)
	}

	svc.Stop()
	select {
	case <-svc.Done():
	default:
		t.Error("Done should be closed after Stop")
	}
	if svc.Err() != nil {
		t.Errorf("graceful stop should not report error, got %v", svc.Err())
	}
	if b.Consumers("messages") != 0 {
		t.Error("subscription should be cancelled after Stop")
	}
}

func TestService_StartTwice(t *testing.T) {
	b := mqtest.NewBroker()
	svc, _ := startService(t, b, nil)

	if err := svc.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestService_RecordsJournal(t *testing.T) {
	b := mqtest.NewBroker()
	publish(t, b, "Hello World 1", "Hello World 2")

	journal := &fakeJournal{}
	startService(t, b, journal)

	if !b.WaitFor(2*time.Second, drained(b)) {
		t.Fatal("messages were not consumed")
	}

	entries, _ := journal.snapshot()
	if len(entries) != 2 {
		t.Fatalf("expected 2 journal entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Queue != "messages" {
			t.Errorf("expected queue messages, got %s", e.Queue)
		}
		if e.MessageID == "" {
			t.Error("expected message id from producer")
		}
	}
	if !strings.Contains(entries[0].Body, "Hello World 1") {
		t.Errorf("unexpected first body: %s", entries[0].Body)
	}
	if b.Depth("messages.dlq") != 0 {
		t.Error("nothing should be dead-lettered")
	}
}

func TestService_JournalFailureDeadLettersAfterRetry(t *testing.T) {
	b := mqtest.NewBroker()
	publish(t, b, "Hello World 1")

	journal := &fakeJournal{err: errors.New("db unavailable")}
	startService(t, b, journal)

	if !b.WaitFor(2*time.Second, func() bool { return b.Depth("messages.dlq") == 1 }) {
		t.Fatal("message should be dead-lettered")
	}

	if _, calls := journal.snapshot(); calls != 2 {
		t.Errorf("expected one retry (2 calls), got %d", calls)
	}
	if b.Depth("messages") != 0 {
		t.Errorf("main queue should be empty, got %d", b.Depth("messages"))
	}
}

func TestService_InvalidPayloadDeadLettered(t *testing.T) {
	b := mqtest.NewBroker()

	conn := connect(t, b)
	if err := mq.DeclareTopology(context.Background(), conn, mq.DefaultTopology()); err != nil {
		t.Fatalf("declare: %v", err)
	}
	pub := mq.NewPublisher(conn, nil, mq.PublisherConfig{})
	if err := pub.Publish(context.Background(), mq.QueueMessages, &mq.Message{ID: "bad", Body: []byte{0xff, 0xfe, 0xfd}}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	_, logs := startService(t, b, nil)

	if !b.WaitFor(2*time.Second, func() bool { return b.Depth("messages.dlq") == 1 }) {
		t.Fatal("invalid payload should be dead-lettered")
	}
	if n := len(logs.records(t, "received message")); n != 0 {
		t.Errorf("invalid payload should not be logged as received, got %d", n)
	}
}

// --- Reconnect Tests ---

func connectReconnecting(t *testing.T, b *mqtest.Broker) *mq.Connection {
	t.Helper()

	conn, err := mq.NewConnection("amqp://localhost", slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		mq.WithDialer(b.Dialer()),
		mq.WithReconnect(true),
		mq.WithReconnectDelay(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestService_DeclareMismatchStopsWithError(t *testing.T) {
	b := mqtest.NewBroker()

	legacy := connect(t, b)
	if err := legacy.WithChannel(context.Background(), func(ch mq.Channel) error {
		_, err := ch.QueueDeclare("messages", false, false, false, false, nil)
		return err
	}); err != nil {
		t.Fatalf("legacy declare: %v", err)
	}

	svc := New(Config{Conn: connectReconnecting(t, b), Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(svc.Stop)

	select {
	case <-svc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("service should stop on mismatched queue declaration")
	}

	if !mq.IsPermanent(svc.Err()) {
		t.Errorf("expected permanent broker error, got %v", svc.Err())
	}
}

func TestService_RecoversAfterChannelError(t *testing.T) {
	b := mqtest.NewBroker()
	conn := connectReconnecting(t, b)

	logs := &syncBuffer{}
	svc := New(Config{
		Conn:   conn,
		Logger: slog.New(slog.NewJSONHandler(logs, nil)),
	})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(svc.Stop)

	if !b.WaitFor(time.Second, func() bool { return b.Consumers("messages") == 1 }) {
		t.Fatal("consumer did not subscribe")
	}

	conn.Channel().(*mqtest.Channel).CloseWithError(amqp.PreconditionFailed, "PRECONDITION_FAILED - unknown delivery tag 3")
	publish(t, b, "Hello World 1")

	if !b.WaitFor(2*time.Second, drained(b)) {
		t.Fatalf("message was not consumed after channel error: consumers=%d depth=%d",
			b.Consumers("messages"), b.Depth("messages"))
	}
	if n := len(logs.records(t, "received message")); n != 1 {
		t.Errorf("expected 1 received log, got %d", n)
	}

	select {
	case <-svc.Done():
		t.Errorf("service should keep running, err=%v", svc.Err())
	default:
	}
}

func TestService_LogsConsumerTag(t *testing.T) {
	b := mqtest.NewBroker()
	logs := &syncBuffer{}

	svc := New(Config{
		Conn:        connect(t, b),
		ConsumerTag: "roomly-consumer-1",
		Logger:      slog.New(slog.NewJSONHandler(logs, nil)),
	})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(svc.Stop)

	started := logs.records(t, "starting consumer")
	if len(started) != 1 {
		t.Fatalf("expected 1 start log, got %d", len(started))
	}
	if started[0]["consumer_tag"] != "roomly-consumer-1" {
		t.Errorf("expected consumer tag in log, got %v", started[0]["consumer_tag"])
	}
}
