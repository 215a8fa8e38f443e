package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrInvalidConfig - конфигурация не прошла валидацию.
var ErrInvalidConfig = errors.New("invalid config")

// Поддерживаемые механизмы SASL.
const (
	MechanismPlain    = "PLAIN"
	MechanismAMQPlain = "AMQPLAIN"
	MechanismExternal = "EXTERNAL"
)

// AMQP - параметры подключения к брокеру и топологии.
type AMQP struct {
	Host       string        `env:"AMQP_HOST" envDefault:"localhost"`
	Port       int           `env:"AMQP_PORT" envDefault:"5672"`
	User       string        `env:"AMQP_USER" envDefault:"guest"`
	Password   string        `env:"AMQP_PASSWORD" envDefault:"guest"`
	Vhost      string        `env:"AMQP_VHOST" envDefault:"/"`
	Mechanisms []string      `env:"AMQP_MECHANISMS" envDefault:"PLAIN,AMQPLAIN,EXTERNAL" envSeparator:","`
	Heartbeat  time.Duration `env:"AMQP_HEARTBEAT" envDefault:"10s"`

	// Queue - основная очередь сообщений.
	Queue string `env:"AMQP_QUEUE" envDefault:"messages"`

	// DeadLetterQueue - очередь для отклонённых сообщений.
	DeadLetterQueue   string `env:"AMQP_DLQ" envDefault:"messages.dlq"`
	DeadLetterEnabled bool   `env:"AMQP_DLQ_ENABLED" envDefault:"true"`

	// Reconnect - переподключаться при разрыве установленного соединения.
	Reconnect bool `env:"AMQP_RECONNECT" envDefault:"true"`
}

// URL собирает AMQP URI из параметров.
func (a AMQP) URL() string {
	uri := amqp.URI{
		Scheme:   "amqp",
		Host:     a.Host,
		Port:     a.Port,
		Username: a.User,
		Password: a.Password,
		Vhost:    a.Vhost,
	}
	return uri.String()
}

// DeadLetter возвращает имя DLQ или пустую строку, если dead-lettering выключен.
func (a AMQP) DeadLetter() string {
	if !a.DeadLetterEnabled {
		return ""
	}
	return a.DeadLetterQueue
}

// Producer - параметры публикации.
type Producer struct {
	// Texts - тексты сообщений, публикуемых за один запуск.
	Texts []string `env:"PRODUCER_TEXTS" envDefault:"Hello World 1,Hello World 2,Hello World 3" envSeparator:","`

	// Confirm - ждать подтверждения брокера на каждую публикацию.
	Confirm bool `env:"PRODUCER_CONFIRM" envDefault:"false"`

	// Schedule - cron-выражение для повторной публикации (пусто - один запуск).
	Schedule string `env:"PRODUCER_SCHEDULE"`
}

// Consumer - параметры потребления.
type Consumer struct {
	Prefetch int    `env:"CONSUMER_PREFETCH" envDefault:"10"`
	Tag      string `env:"CONSUMER_TAG"`
	Port     string `env:"CONSUMER_PORT" envDefault:"8082"`
}

// Journal - параметры журнала полученных сообщений.
type Journal struct {
	// DBURL - DSN PostgreSQL; пусто - журнал выключен.
	DBURL string `env:"DB_URL"`
}

// Enabled сообщает, настроен ли журнал.
func (j Journal) Enabled() bool {
	return j.DBURL != ""
}

// Log - параметры логирования.
type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"INFO"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Config - полная конфигурация процессов Roomly messaging.
type Config struct {
	AMQP     AMQP
	Producer Producer
	Consumer Consumer
	Journal  Journal
	Log      Log
}

// Load читает конфигурацию из переменных окружения и валидирует её.
func Load() (*Config, error) {
	cfg := &Config{}

	sections := []struct {
		name string
		dst  any
	}{
		{"amqp", &cfg.AMQP},
		{"producer", &cfg.Producer},
		{"consumer", &cfg.Consumer},
		{"journal", &cfg.Journal},
		{"log", &cfg.Log},
	}

	for _, s := range sections {
		if err := env.Parse(s.dst); err != nil {
			return nil, fmt.Errorf("parse %s config: %w", s.name, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет согласованность значений.
func (c *Config) Validate() error {
	if c.AMQP.Host == "" {
		return fmt.Errorf("%w: AMQP_HOST is empty", ErrInvalidConfig)
	}
	if c.AMQP.Port <= 0 || c.AMQP.Port > 65535 {
		return fmt.Errorf("%w: AMQP_PORT %d out of range", ErrInvalidConfig, c.AMQP.Port)
	}
	if c.AMQP.Queue == "" {
		return fmt.Errorf("%w: AMQP_QUEUE is empty", ErrInvalidConfig)
	}
	if c.AMQP.DeadLetter() == c.AMQP.Queue {
		return fmt.Errorf("%w: dead letter queue must differ from %q", ErrInvalidConfig, c.AMQP.Queue)
	}
	if len(c.AMQP.Mechanisms) == 0 {
		return fmt.Errorf("%w: AMQP_MECHANISMS is empty", ErrInvalidConfig)
	}
	for _, m := range c.AMQP.Mechanisms {
		switch strings.ToUpper(strings.TrimSpace(m)) {
		case MechanismPlain, MechanismAMQPlain, MechanismExternal:
		default:
			return fmt.Errorf("%w: unsupported SASL mechanism %q", ErrInvalidConfig, m)
		}
	}
	if c.Consumer.Prefetch < 0 {
		return fmt.Errorf("%w: CONSUMER_PREFETCH must not be negative", ErrInvalidConfig)
	}
	return nil
}
