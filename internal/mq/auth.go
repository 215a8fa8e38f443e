package mq

import (
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Roomly/internal/config"
)

// ExternalAuth - механизм SASL EXTERNAL.
// Учётные данные берутся из TLS-сертификата клиента, ответ пустой.
type ExternalAuth struct{}

// Mechanism возвращает имя механизма.
func (ExternalAuth) Mechanism() string { return config.MechanismExternal }

// Response возвращает пустой ответ.
func (ExternalAuth) Response() string { return "" }

// SASL строит список механизмов аутентификации в порядке предпочтения.
func SASL(mechanisms []string, user, password string) ([]amqp.Authentication, error) {
	auth := make([]amqp.Authentication, 0, len(mechanisms))

	for _, m := range mechanisms {
		switch strings.ToUpper(strings.TrimSpace(m)) {
		case config.MechanismPlain:
			auth = append(auth, &amqp.PlainAuth{Username: user, Password: password})
		case config.MechanismAMQPlain:
			auth = append(auth, &amqp.AMQPlainAuth{Username: user, Password: password})
		case config.MechanismExternal:
			auth = append(auth, ExternalAuth{})
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownMechanism, m)
		}
	}

	return auth, nil
}

// DialConfig собирает amqp.Config из конфигурации.
func DialConfig(cfg config.AMQP) (amqp.Config, error) {
	sasl, err := SASL(cfg.Mechanisms, cfg.User, cfg.Password)
	if err != nil {
		return amqp.Config{}, err
	}

	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}

	return amqp.Config{
		SASL:      sasl,
		Vhost:     cfg.Vhost,
		Heartbeat: heartbeat,
		Locale:    defaultLocale,
	}, nil
}

// OptionsFromConfig возвращает опции соединения для конфигурации.
func OptionsFromConfig(cfg config.AMQP) ([]Option, error) {
	dialCfg, err := DialConfig(cfg)
	if err != nil {
		return nil, err
	}

	return []Option{
		WithAMQPConfig(dialCfg),
		WithReconnect(cfg.Reconnect),
	}, nil
}

const (
	defaultHeartbeat = 10 * time.Second
	defaultLocale    = "en_US"
)
