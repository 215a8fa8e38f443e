package config

import (
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.AMQP.Host != "localhost" {
		t.Errorf("expected host localhost, got %s", cfg.AMQP.Host)
	}
	if cfg.AMQP.Port != 5672 {
		t.Errorf("expected port 5672, got %d", cfg.AMQP.Port)
	}
	if cfg.AMQP.Vhost != "/" {
		t.Errorf("expected vhost /, got %s", cfg.AMQP.Vhost)
	}
	if cfg.AMQP.Queue != "messages" {
		t.Errorf("expected queue messages, got %s", cfg.AMQP.Queue)
	}
	if cfg.AMQP.Heartbeat != 10*time.Second {
		t.Errorf("expected heartbeat 10s, got %s", cfg.AMQP.Heartbeat)
	}

	mechanisms := []string{"PLAIN", "AMQPLAIN", "EXTERNAL"}
	if len(cfg.AMQP.Mechanisms) != len(mechanisms) {
		t.Fatalf("expected %d mechanisms, got %v", len(mechanisms), cfg.AMQP.Mechanisms)
	}
	for i, m := range mechanisms {
		if cfg.AMQP.Mechanisms[i] != m {
			t.Errorf("mechanism %d: expected %s, got %s", i, m, cfg.AMQP.Mechanisms[i])
		}
	}

	if len(cfg.Producer.Texts) != 3 || cfg.Producer.Texts[0] != "Hello World 1" {
		t.Errorf("unexpected default texts: %v", cfg.Producer.Texts)
	}
	if cfg.Journal.Enabled() {
		t.Error("journal should be disabled without DB_URL")
	}
	if cfg.AMQP.DeadLetter() != "messages.dlq" {
		t.Errorf("expected dlq messages.dlq, got %s", cfg.AMQP.DeadLetter())
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("AMQP_HOST", "rabbit")
	t.Setenv("AMQP_PORT", "5673")
	t.Setenv("AMQP_QUEUE", "listings")
	t.Setenv("AMQP_DLQ_ENABLED", "false")
	t.Setenv("PRODUCER_TEXTS", "a,b")
	t.Setenv("CONSUMER_PREFETCH", "3")
	t.Setenv("DB_URL", "postgresql://x@localhost/db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.AMQP.Host != "rabbit" || cfg.AMQP.Port != 5673 {
		t.Errorf("unexpected host/port: %s:%d", cfg.AMQP.Host, cfg.AMQP.Port)
	}
	if cfg.AMQP.Queue != "listings" {
		t.Errorf("expected queue listings, got %s", cfg.AMQP.Queue)
	}
	if cfg.AMQP.DeadLetter() != "" {
		t.Errorf("dlq should be disabled, got %s", cfg.AMQP.DeadLetter())
	}
	if len(cfg.Producer.Texts) != 2 {
		t.Errorf("expected 2 texts, got %v", cfg.Producer.Texts)
	}
	if cfg.Consumer.Prefetch != 3 {
		t.Errorf("expected prefetch 3, got %d", cfg.Consumer.Prefetch)
	}
	if !cfg.Journal.Enabled() {
		t.Error("journal should be enabled")
	}
}

func TestLoad_InvalidMechanism(t *testing.T) {
	t.Setenv("AMQP_MECHANISMS", "PLAIN,KERBEROS")

	_, err := Load()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			AMQP: AMQP{
				Host:              "localhost",
				Port:              5672,
				Queue:             "messages",
				DeadLetterQueue:   "messages.dlq",
				DeadLetterEnabled: true,
				Mechanisms:        []string{"PLAIN"},
			},
		}
	}

	tests := []struct {
		name   string
		modify func(c *Config)
		valid  bool
	}{
		{"valid", func(c *Config) {}, true},
		{"empty host", func(c *Config) { c.AMQP.Host = "" }, false},
		{"port zero", func(c *Config) { c.AMQP.Port = 0 }, false},
		{"port too big", func(c *Config) { c.AMQP.Port = 70000 }, false},
		{"empty queue", func(c *Config) { c.AMQP.Queue = "" }, false},
		{"dlq equals queue", func(c *Config) { c.AMQP.DeadLetterQueue = "messages" }, false},
		{"dlq equals queue but disabled", func(c *Config) {
			c.AMQP.DeadLetterQueue = "messages"
			c.AMQP.DeadLetterEnabled = false
		}, true},
		{"no mechanisms", func(c *Config) { c.AMQP.Mechanisms = nil }, false},
		{"negative prefetch", func(c *Config) { c.Consumer.Prefetch = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestAMQP_URL(t *testing.T) {
	a := AMQP{Host: "rabbit", Port: 5673, User: "roomly", Password: "secret", Vhost: "/"}

	uri, err := amqp.ParseURI(a.URL())
	if err != nil {
		t.Fatalf("url should parse: %v", err)
	}
	if uri.Host != "rabbit" || uri.Port != 5673 {
		t.Errorf("unexpected host/port: %s:%d", uri.Host, uri.Port)
	}
	if uri.Username != "roomly" || uri.Password != "secret" {
		t.Errorf("unexpected credentials: %s:%s", uri.Username, uri.Password)
	}
	if uri.Vhost != "/" {
		t.Errorf("expected vhost /, got %s", uri.Vhost)
	}
}
