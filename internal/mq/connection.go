package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Roomly/internal/telemetry"
)

// State - состояние соединения с брокером.
type State int32

// Состояния соединения.
//
//	Disconnected → Connecting → Connected → ChannelOpen → {Publishing | Subscribed}
//
// Closed - терминальное состояние после Close.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateChannelOpen
	StatePublishing
	StateSubscribed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateChannelOpen:
		return "channel_open"
	case StatePublishing:
		return "publishing"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Channel - операции AMQP канала, которые используют publisher и consumer.
// *amqp.Channel удовлетворяет этому интерфейсу.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	Cancel(consumer string, noWait bool) error
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

// Transport - транспортное соединение с брокером.
type Transport interface {
	OpenChannel() (Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

// Dialer устанавливает транспортное соединение.
type Dialer func(url string, cfg amqp.Config) (Transport, error)

// DialAMQP - Dialer поверх amqp091-go.
func DialAMQP(url string, cfg amqp.Config) (Transport, error) {
	conn, err := amqp.DialConfig(url, cfg)
	if err != nil {
		return nil, err
	}
	return &amqpTransport{conn: conn}, nil
}

type amqpTransport struct {
	conn *amqp.Connection
}

func (t *amqpTransport) OpenChannel() (Channel, error) {
	ch, err := t.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (t *amqpTransport) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return t.conn.NotifyClose(receiver)
}

func (t *amqpTransport) IsClosed() bool { return t.conn.IsClosed() }

func (t *amqpTransport) Close() error { return t.conn.Close() }

// Option настраивает Connection.
type Option func(*Connection)

// WithDialer подменяет способ установки соединения.
func WithDialer(d Dialer) Option {
	return func(c *Connection) {
		if d != nil {
			c.dial = d
		}
	}
}

// WithAMQPConfig задаёт параметры dial (SASL, vhost, heartbeat).
func WithAMQPConfig(cfg amqp.Config) Option {
	return func(c *Connection) {
		c.amqpCfg = cfg
	}
}

// WithReconnect включает или выключает автоматическое переподключение.
func WithReconnect(enabled bool) Option {
	return func(c *Connection) {
		c.reconnectEnabled = enabled
	}
}

// WithReconnectDelay задаёт начальную задержку переподключения.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Connection) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

const maxReconnectDelay = 30 * time.Second

// Connection - обёртка над AMQP соединением и его единственным каналом.
//
// Особенности:
// - Канал принадлежит соединению и закрывается вместе с ним
// - Опциональное переподключение при разрыве
// - Потокобезопасный доступ к каналу
type Connection struct {
	url              string
	amqpCfg          amqp.Config
	dial             Dialer
	reconnectEnabled bool
	reconnectDelay   time.Duration
	logger           *slog.Logger

	mu        sync.RWMutex
	transport Transport
	channel   Channel
	state     State

	closed   bool
	closedCh chan struct{}

	// Для уведомления о переподключении
	reconnectCh chan struct{}
}

// NewConnection создаёт новое соединение с брокером и открывает канал.
// Ошибка dial или открытия канала возвращается без повторных попыток.
func NewConnection(url string, logger *slog.Logger, opts ...Option) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		url:              url,
		amqpCfg:          amqp.Config{Heartbeat: defaultHeartbeat, Locale: defaultLocale},
		dial:             DialAMQP,
		reconnectEnabled: true,
		reconnectDelay:   time.Second,
		logger:           logger,
		closedCh:         make(chan struct{}),
		reconnectCh:      make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	if c.reconnectEnabled {
		go c.watchConnection()
	}

	return c, nil
}

// WithConnection открывает соединение, выполняет fn и закрывает соединение
// на любом пути выхода, включая ошибку из fn.
func WithConnection(url string, logger *slog.Logger, fn func(conn *Connection) error, opts ...Option) (err error) {
	conn, err := NewConnection(url, logger, opts...)
	if err != nil {
		return err
	}

	defer func() {
		if cerr := conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(conn)
}

// connect устанавливает соединение и открывает канал.
func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setStateLocked(StateConnecting)

	transport, err := c.dial(c.url, c.amqpCfg)
	if err != nil {
		c.setStateLocked(StateDisconnected)
		return fmt.Errorf("dial amqp: %w", err)
	}
	c.setStateLocked(StateConnected)

	ch, err := transport.OpenChannel()
	if err != nil {
		transport.Close()
		c.setStateLocked(StateDisconnected)
		return fmt.Errorf("open channel: %w", err)
	}

	c.transport = transport
	c.channel = ch
	c.setStateLocked(StateChannelOpen)

	c.logger.Info("connected to RabbitMQ", "vhost", c.amqpCfg.Vhost)

	return nil
}

// setStateLocked меняет состояние. Вызывается под c.mu.
func (c *Connection) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("connection state changed", "from", c.state.String(), "to", s.String())
	c.state = s
	telemetry.ConnectionState.Set(float64(s))
}

// setState меняет состояние из publisher/consumer.
func (c *Connection) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.setStateLocked(s)
}

// watchConnection следит за соединением и каналом.
// Закрытие соединения ведёт к переподключению, закрытие только канала
// (channel exception) - к открытию нового канала на том же соединении.
func (c *Connection) watchConnection() {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		transport := c.transport
		ch := c.channel
		c.mu.RUnlock()

		if transport == nil || ch == nil {
			select {
			case <-c.closedCh:
				return
			case <-time.After(c.reconnectDelay):
			}
			continue
		}

		connClose := transport.NotifyClose(make(chan *amqp.Error, 1))
		chanClose := ch.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return
		case err := <-connClose:
			if err != nil {
				c.logger.Warn("connection closed", "error", err)
			}
			c.reconnect()
		case err := <-chanClose:
			if err != nil {
				c.logger.Warn("channel closed", "error", err)
			}
			c.reopenChannel(transport, ch)
		}
	}
}

// reopenChannel открывает новый канал на живом соединении.
// Если соединение тоже потеряно, выполняет полное переподключение.
func (c *Connection) reopenChannel(transport Transport, old Channel) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.transport != transport || c.channel != old {
		c.mu.Unlock()
		return
	}

	c.channel = nil
	c.setStateLocked(StateConnected)

	var (
		ch  Channel
		err error = amqp.ErrClosed
	)
	if !transport.IsClosed() {
		ch, err = transport.OpenChannel()
	}
	if err == nil {
		c.channel = ch
		c.setStateLocked(StateChannelOpen)
		c.mu.Unlock()

		c.logger.Info("channel reopened")
		c.notifyReconnected()
		return
	}
	c.mu.Unlock()

	c.logger.Warn("reopen channel failed, reconnecting", "error", err)
	if cerr := transport.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) {
		c.logger.Debug("close stale connection", "error", cerr)
	}
	c.reconnect()
}

// notifyReconnected будит ожидающих переподключения.
func (c *Connection) notifyReconnected() {
	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}
}

// reconnect пытается переподключиться с экспоненциальной задержкой.
func (c *Connection) reconnect() {
	delay := c.reconnectDelay

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.transport = nil
	c.channel = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	for {
		c.logger.Info("attempting to reconnect", "delay", delay)

		select {
		case <-c.closedCh:
			return
		case <-time.After(delay):
		}

		c.mu.RLock()
		closed := c.closed
		c.mu.RUnlock()
		if closed {
			return
		}

		if err := c.connect(); err != nil {
			c.logger.Warn("reconnect failed", "error", err)
			delay = min(delay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("reconnected to RabbitMQ")
		c.notifyReconnected()

		return
	}
}

// Channel возвращает текущий канал или nil, если соединения нет.
func (c *Connection) Channel() Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// State возвращает текущее состояние соединения.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// ReconnectEnabled сообщает, включено ли переподключение.
func (c *Connection) ReconnectEnabled() bool {
	return c.reconnectEnabled
}

// ReconnectNotify возвращает канал для уведомлений о переподключении.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnectCh
}

// Done закрывается после вызова Close.
func (c *Connection) Done() <-chan struct{} {
	return c.closedCh
}

// Close закрывает канал, затем соединение. Повторный вызов - no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.closedCh)

	var errs []error

	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}

	if c.transport != nil && !c.transport.IsClosed() {
		if err := c.transport.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	c.channel = nil
	c.transport = nil
	c.setStateLocked(StateClosed)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.logger.Info("connection closed")
	return nil
}

// IsConnected проверяет, что соединение и канал открыты.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.transport == nil || c.channel == nil {
		return false
	}

	return !c.transport.IsClosed() && !c.channel.IsClosed()
}

// WithChannel выполняет функцию с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	ch := c.channel
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		return ErrConnectionClosed
	}
	if ch == nil {
		return ErrNoChannel
	}

	return fn(ch)
}
