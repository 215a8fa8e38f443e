package mq_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Roomly/internal/mq"
	"github.com/shaiso/Roomly/internal/mq/mqtest"
)

// --- Publisher Tests ---

func TestPublisher_PublishTexts_Order(t *testing.T) {
	b := mqtest.NewBroker()
	conn := connect(t, b)
	declare(t, conn, mq.DefaultTopology())

	texts := []string{"Hello World 1", "Hello World 2", "Hello World 3"}
	pub := mq.NewPublisher(conn, discardLogger(), mq.PublisherConfig{})

	n, err := pub.PublishTexts(context.Background(), mq.QueueMessages, mq.TextMessages(texts...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(texts) {
		t.Errorf("expected %d published, got %d", len(texts), n)
	}

	published := b.Published()
	if len(published) != len(texts) {
		t.Fatalf("expected exactly %d enqueue operations, got %d", len(texts), len(published))
	}

	ids := make(map[string]bool)
	for i, p := range published {
		if p.Exchange != "" || p.Key != "messages" {
			t.Errorf("publish %d: expected default exchange and key messages, got %q/%q", i, p.Exchange, p.Key)
		}

		var msg mq.TextMessage
		if err := json.Unmarshal(p.Msg.Body, &msg); err != nil {
			t.Fatalf("publish %d: body is not JSON: %v", i, err)
		}
		if msg.Text != texts[i] {
			t.Errorf("publish %d: expected %q, got %q", i, texts[i], msg.Text)
		}

		if p.Msg.ContentType != "application/json" {
			t.Errorf("publish %d: unexpected content type %s", i, p.Msg.ContentType)
		}
		if p.Msg.DeliveryMode != amqp.Persistent {
			t.Errorf("publish %d: message should be persistent", i)
		}
		if p.Msg.MessageId == "" || ids[p.Msg.MessageId] {
			t.Errorf("publish %d: message id should be unique, got %q", i, p.Msg.MessageId)
		}
		ids[p.Msg.MessageId] = true
	}

	if string(published[0].Msg.Body) != `{"text":"Hello World 1"}` {
		t.Errorf("unexpected wire format: %s", published[0].Msg.Body)
	}

	if b.Depth("messages") != 3 {
		t.Errorf("expected 3 messages in queue, got %d", b.Depth("messages"))
	}
	if conn.State() != mq.StatePublishing {
		t.Errorf("expected state publishing, got %s", conn.State())
	}
}

func TestPublisher_Confirm(t *testing.T) {
	b := mqtest.NewBroker()
	conn := connect(t, b)
	declare(t, conn, mq.DefaultTopology())

	pub := mq.NewPublisher(conn, discardLogger(), mq.PublisherConfig{Confirm: true})

	n, err := pub.PublishTexts(context.Background(), mq.QueueMessages, mq.TextMessages("a", "b"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 published, got %d", n)
	}
}

func TestPublisher_ConfirmNack(t *testing.T) {
	b := mqtest.NewBroker()
	b.NackPublishes(true)
	conn := connect(t, b)
	declare(t, conn, mq.DefaultTopology())

	pub := mq.NewPublisher(conn, discardLogger(), mq.PublisherConfig{Confirm: true})

	n, err := pub.PublishTexts(context.Background(), mq.QueueMessages, mq.TextMessages("a", "b"))
	if !errors.Is(err, mq.ErrPublishNacked) {
		t.Fatalf("expected ErrPublishNacked, got %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 confirmed, got %d", n)
	}
}

func TestPublisher_StopsOnFirstError(t *testing.T) {
	b := mqtest.NewBroker()
	conn := connect(t, b)
	declare(t, conn, mq.DefaultTopology())
	conn.Close()

	pub := mq.NewPublisher(conn, discardLogger(), mq.PublisherConfig{})
	n, err := pub.PublishTexts(context.Background(), mq.QueueMessages, mq.TextMessages("a", "b"))
	if !errors.Is(err, mq.ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 published, got %d", n)
	}
	if len(b.Published()) != 0 {
		t.Errorf("nothing should reach the broker, got %d", len(b.Published()))
	}
}

func TestPublisher_CancelledContext(t *testing.T) {
	b := mqtest.NewBroker()
	conn := connect(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pub := mq.NewPublisher(conn, discardLogger(), mq.PublisherConfig{})
	if _, err := pub.PublishJSON(ctx, mq.QueueMessages, mq.TextMessage{Text: "x"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewJSONMessage(t *testing.T) {
	msg, err := mq.NewJSONMessage(mq.TextMessage{Text: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(msg.Body) != `{"text":"hi"}` {
		t.Errorf("unexpected body: %s", msg.Body)
	}
	if msg.ID == "" || msg.Timestamp.IsZero() {
		t.Error("id and timestamp should be set")
	}

	if _, err := mq.NewJSONMessage(make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
}
