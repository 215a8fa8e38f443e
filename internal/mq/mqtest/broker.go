// Package mqtest содержит in-memory брокер для тестов пакетов,
// работающих с mq.Connection.
//
// Брокер моделирует то, на что опираются producer и consumer:
//   - объявление очередей с проверкой эквивалентности свойств
//   - FIFO доставку через default exchange
//   - prefetch, ack/nack/reject, возврат неподтверждённых при закрытии канала
//   - dead-lettering по x-dead-letter-routing-key
//   - publisher confirms
//   - проверку учётных данных PLAIN/AMQPLAIN
package mqtest

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Roomly/internal/mq"
)

// consumerBuffer - ёмкость канала доставки одного consumer.
const consumerBuffer = 256

// Published - запись о публикации.
type Published struct {
	Exchange string
	Key      string
	Msg      amqp.Publishing
}

// QueueInfo - свойства объявленной очереди.
type QueueInfo struct {
	Durable  bool
	Args     amqp.Table
	Declares int
}

// Broker - in-memory брокер.
type Broker struct {
	mu sync.Mutex

	users      map[string]string
	dialErr    error
	channelErr error
	nackAll    bool

	queues    map[string]*queue
	published []Published
	conns     []*Conn
	dials     int
	ctagSeq   int
}

type queue struct {
	name      string
	durable   bool
	args      amqp.Table
	declares  int
	ready     []message
	consumers []*consumer
	rr        int
}

type message struct {
	pub         amqp.Publishing
	redelivered bool
}

type consumer struct {
	tag      string
	q        *queue
	ch       *Channel
	out      chan amqp.Delivery
	autoAck  bool
	inflight int
}

type pending struct {
	q   *queue
	msg message
	c   *consumer
}

// NewBroker создаёт пустой брокер без проверки учётных данных.
func NewBroker() *Broker {
	return &Broker{
		queues: make(map[string]*queue),
	}
}

// RequireAuth включает проверку учётных данных PLAIN/AMQPLAIN.
func (b *Broker) RequireAuth(user, password string) *Broker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.users == nil {
		b.users = make(map[string]string)
	}
	b.users[user] = password
	return b
}

// FailDial заставляет последующие Dial возвращать err.
func (b *Broker) FailDial(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialErr = err
}

// FailChannels заставляет последующие OpenChannel возвращать err.
func (b *Broker) FailChannels(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channelErr = err
}

// NackPublishes заставляет брокер отвечать nack на публикации в confirm mode.
func (b *Broker) NackPublishes(nack bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nackAll = nack
}

// Dialer возвращает mq.Dialer, подключающийся к этому брокеру.
func (b *Broker) Dialer() mq.Dialer {
	return func(url string, cfg amqp.Config) (mq.Transport, error) {
		conn, err := b.Dial(url, cfg)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Dial открывает соединение с брокером.
func (b *Broker) Dial(_ string, cfg amqp.Config) (*Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials++

	if b.dialErr != nil {
		return nil, b.dialErr
	}
	if !b.authorized(cfg.SASL) {
		return nil, amqp.ErrCredentials
	}

	conn := &Conn{b: b}
	b.conns = append(b.conns, conn)
	return conn, nil
}

func (b *Broker) authorized(sasl []amqp.Authentication) bool {
	if len(b.users) == 0 {
		return true
	}

	for _, auth := range sasl {
		var user, password string
		switch a := auth.(type) {
		case *amqp.PlainAuth:
			user, password = a.Username, a.Password
		case *amqp.AMQPlainAuth:
			user, password = a.Username, a.Password
		default:
			continue
		}
		if want, ok := b.users[user]; ok && want == password {
			return true
		}
		// Брокер выбирает первый поддерживаемый механизм
		return false
	}
	return false
}

// --- Inspection ---

// Dials возвращает количество попыток подключения.
func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// OpenConnections возвращает количество незакрытых соединений.
func (b *Broker) OpenConnections() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, c := range b.conns {
		if !c.closed {
			n++
		}
	}
	return n
}

// Published возвращает все публикации в порядке поступления.
func (b *Broker) Published() []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Published, len(b.published))
	copy(out, b.published)
	return out
}

// Queue возвращает свойства очереди.
func (b *Broker) Queue(name string) (QueueInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return QueueInfo{}, false
	}
	return QueueInfo{Durable: q.durable, Args: q.args, Declares: q.declares}, true
}

// QueueCount возвращает количество объявленных очередей.
func (b *Broker) QueueCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues)
}

// Depth возвращает количество сообщений, готовых к доставке.
func (b *Broker) Depth(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.queues[name]; ok {
		return len(q.ready)
	}
	return 0
}

// Messages возвращает тела сообщений, готовых к доставке.
func (b *Broker) Messages(name string) []amqp.Publishing {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return nil
	}
	out := make([]amqp.Publishing, len(q.ready))
	for i, m := range q.ready {
		out[i] = m.pub
	}
	return out
}

// Unacked возвращает количество доставленных, но не подтверждённых сообщений.
func (b *Broker) Unacked(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, conn := range b.conns {
		for _, ch := range conn.channels {
			for _, p := range ch.unacked {
				if p.q.name == name {
					n++
				}
			}
		}
	}
	return n
}

// Consumers возвращает количество подписчиков очереди.
func (b *Broker) Consumers(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.queues[name]; ok {
		return len(q.consumers)
	}
	return 0
}

// WaitFor ждёт, пока cond не вернёт true, или истечения timeout.
func (b *Broker) WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// --- Routing (под b.mu) ---

func (b *Broker) enqueue(q *queue, m message) {
	q.ready = append(q.ready, m)
	b.dispatch(q)
}

// dispatch раздаёт готовые сообщения consumers с учётом prefetch.
func (b *Broker) dispatch(q *queue) {
	for len(q.ready) > 0 {
		c := q.nextConsumer()
		if c == nil {
			return
		}

		m := q.ready[0]
		q.ready = q.ready[1:]

		c.ch.tagSeq++
		tag := c.ch.tagSeq
		if !c.autoAck {
			c.ch.unacked[tag] = &pending{q: q, msg: m, c: c}
			c.inflight++
		}

		c.out <- delivery(c.ch, q.name, c.tag, tag, m)
	}
}

// nextConsumer выбирает consumer со свободным prefetch (round-robin).
func (q *queue) nextConsumer() *consumer {
	n := len(q.consumers)
	for i := 0; i < n; i++ {
		c := q.consumers[(q.rr+i)%n]
		limit := consumerBuffer
		if c.ch.prefetch > 0 && c.ch.prefetch < limit {
			limit = c.ch.prefetch
		}
		if c.inflight < limit && len(c.out) < cap(c.out) {
			q.rr = (q.rr + i + 1) % n
			return c
		}
	}
	return nil
}

func delivery(ch *Channel, queueName, ctag string, tag uint64, m message) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger:    ch,
		Headers:         m.pub.Headers,
		ContentType:     m.pub.ContentType,
		ContentEncoding: m.pub.ContentEncoding,
		DeliveryMode:    m.pub.DeliveryMode,
		Priority:        m.pub.Priority,
		CorrelationId:   m.pub.CorrelationId,
		ReplyTo:         m.pub.ReplyTo,
		Expiration:      m.pub.Expiration,
		MessageId:       m.pub.MessageId,
		Timestamp:       m.pub.Timestamp,
		Type:            m.pub.Type,
		UserId:          m.pub.UserId,
		AppId:           m.pub.AppId,
		ConsumerTag:     ctag,
		DeliveryTag:     tag,
		Redelivered:     m.redelivered,
		Exchange:        "",
		RoutingKey:      queueName,
		Body:            m.pub.Body,
	}
}

// deadLetter перекладывает отклонённое сообщение по аргументам очереди.
func (b *Broker) deadLetter(q *queue, m message) {
	exchange, ok := q.args["x-dead-letter-exchange"].(string)
	if !ok || exchange != "" {
		// Моделируется только default exchange
		return
	}

	key, ok := q.args["x-dead-letter-routing-key"].(string)
	if !ok {
		key = q.name
	}

	target, ok := b.queues[key]
	if !ok {
		return
	}

	headers := amqp.Table{}
	for k, v := range m.pub.Headers {
		headers[k] = v
	}
	headers["x-first-death-queue"] = q.name
	headers["x-first-death-reason"] = "rejected"
	headers["x-death"] = []interface{}{
		amqp.Table{"queue": q.name, "reason": "rejected", "count": int64(1)},
	}

	pub := m.pub
	pub.Headers = headers
	b.enqueue(target, message{pub: pub})
}

// requeue возвращает сообщения в голову очередей в порядке delivery tag.
func (b *Broker) requeue(items []*pending) {
	byQueue := make(map[*queue][]message)
	var order []*queue

	for _, p := range items {
		if _, ok := byQueue[p.q]; !ok {
			order = append(order, p.q)
		}
		m := p.msg
		m.redelivered = true
		byQueue[p.q] = append(byQueue[p.q], m)
	}

	for _, q := range order {
		q.ready = append(byQueue[q], q.ready...)
	}
	for _, q := range order {
		b.dispatch(q)
	}
}

// --- Conn ---

// Conn - соединение с in-memory брокером. Реализует mq.Transport.
type Conn struct {
	b        *Broker
	closed   bool
	channels []*Channel
	notify   []chan *amqp.Error
}

// OpenChannel открывает канал.
func (c *Conn) OpenChannel() (mq.Channel, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if c.closed {
		return nil, amqp.ErrClosed
	}
	if c.b.channelErr != nil {
		return nil, c.b.channelErr
	}

	ch := &Channel{
		b:         c.b,
		conn:      c,
		consumers: make(map[string]*consumer),
		unacked:   make(map[uint64]*pending),
	}
	c.channels = append(c.channels, ch)
	return ch, nil
}

// NotifyClose регистрирует получателя уведомления о закрытии.
func (c *Conn) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if c.closed {
		close(receiver)
		return receiver
	}
	c.notify = append(c.notify, receiver)
	return receiver
}

// IsClosed сообщает, закрыто ли соединение.
func (c *Conn) IsClosed() bool {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.closed
}

// Close закрывает соединение и все его каналы.
func (c *Conn) Close() error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if c.closed {
		return amqp.ErrClosed
	}
	c.shutdown(nil)
	return nil
}

// Drop имитирует разрыв соединения со стороны брокера.
func (c *Conn) Drop(reason string) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if c.closed {
		return
	}
	c.shutdown(&amqp.Error{Code: amqp.ConnectionForced, Reason: reason, Server: true})
}

// DropAll разрывает все открытые соединения брокера.
func (b *Broker) DropAll(reason string) {
	b.mu.Lock()
	conns := make([]*Conn, len(b.conns))
	copy(conns, b.conns)
	b.mu.Unlock()

	for _, c := range conns {
		c.Drop(reason)
	}
}

// shutdown закрывает каналы и уведомляет подписчиков. Под b.mu.
func (c *Conn) shutdown(err *amqp.Error) {
	c.closed = true
	for _, ch := range c.channels {
		if !ch.closed {
			ch.shutdown(err)
		}
	}
	for _, n := range c.notify {
		if err != nil {
			select {
			case n <- err:
			default:
			}
		}
		close(n)
	}
	c.notify = nil
}

// --- Channel ---

// Channel - канал in-memory брокера. Реализует mq.Channel и amqp.Acknowledger.
type Channel struct {
	b    *Broker
	conn *Conn

	closed    bool
	notify    []chan *amqp.Error
	prefetch  int
	confirm   bool
	pubSeq    uint64
	confirms  []chan amqp.Confirmation
	consumers map[string]*consumer
	unacked   map[uint64]*pending
	tagSeq    uint64
}

func (ch *Channel) checkOpen() error {
	if ch.closed {
		return amqp.ErrClosed
	}
	return nil
}

// fail закрывает канал с ошибкой, как это делает брокер. Под b.mu.
func (ch *Channel) fail(code int, reason string) error {
	err := &amqp.Error{Code: code, Reason: reason, Server: true}
	ch.shutdown(err)
	return err
}

// CloseWithError закрывает канал со стороны брокера (channel exception),
// соединение остаётся открытым.
func (ch *Channel) CloseWithError(code int, reason string) {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if ch.closed {
		return
	}
	ch.fail(code, reason)
}

// NotifyClose регистрирует получателя уведомления о закрытии канала.
func (ch *Channel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if ch.closed {
		close(receiver)
		return receiver
	}
	ch.notify = append(ch.notify, receiver)
	return receiver
}

// IsClosed сообщает, закрыт ли канал.
func (ch *Channel) IsClosed() bool {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	return ch.closed
}

// QueueDeclare объявляет очередь или проверяет эквивалентность существующей.
func (ch *Channel) QueueDeclare(name string, durable, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if err := ch.checkOpen(); err != nil {
		return amqp.Queue{}, err
	}

	q, ok := ch.b.queues[name]
	if !ok {
		q = &queue{name: name, durable: durable, args: args}
		ch.b.queues[name] = q
	} else {
		if q.durable != durable {
			return amqp.Queue{}, ch.fail(amqp.PreconditionFailed,
				fmt.Sprintf("PRECONDITION_FAILED - inequivalent arg 'durable' for queue '%s'", name))
		}
		if !equalArgs(q.args, args) {
			return amqp.Queue{}, ch.fail(amqp.PreconditionFailed,
				fmt.Sprintf("PRECONDITION_FAILED - inequivalent args for queue '%s'", name))
		}
	}

	q.declares++
	return amqp.Queue{Name: name, Messages: len(q.ready), Consumers: len(q.consumers)}, nil
}

// QueueDeclarePassive возвращает состояние существующей очереди.
func (ch *Channel) QueueDeclarePassive(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if err := ch.checkOpen(); err != nil {
		return amqp.Queue{}, err
	}

	q, ok := ch.b.queues[name]
	if !ok {
		return amqp.Queue{}, ch.fail(amqp.NotFound, fmt.Sprintf("NOT_FOUND - no queue '%s' in vhost '/'", name))
	}
	return amqp.Queue{Name: name, Messages: len(q.ready), Consumers: len(q.consumers)}, nil
}

func equalArgs(a, b amqp.Table) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// Qos задаёт prefetch канала.
func (ch *Channel) Qos(prefetchCount, _ int, _ bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if err := ch.checkOpen(); err != nil {
		return err
	}
	ch.prefetch = prefetchCount
	return nil
}

// Confirm включает confirm mode.
func (ch *Channel) Confirm(_ bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if err := ch.checkOpen(); err != nil {
		return err
	}
	ch.confirm = true
	return nil
}

// NotifyPublish регистрирует получателя подтверждений.
func (ch *Channel) NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if ch.closed {
		close(confirm)
		return confirm
	}
	ch.confirms = append(ch.confirms, confirm)
	return confirm
}

// PublishWithContext публикует сообщение через default exchange.
func (ch *Channel) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if err := ch.checkOpen(); err != nil {
		return err
	}
	if exchange != "" {
		return ch.fail(amqp.NotFound, fmt.Sprintf("NOT_FOUND - no exchange '%s' in vhost '/'", exchange))
	}

	ch.b.published = append(ch.b.published, Published{Exchange: exchange, Key: key, Msg: msg})

	// Сообщение без подходящей очереди отбрасывается
	if q, ok := ch.b.queues[key]; ok {
		ch.b.enqueue(q, message{pub: msg})
	}

	if ch.confirm {
		ch.pubSeq++
		conf := amqp.Confirmation{DeliveryTag: ch.pubSeq, Ack: !ch.b.nackAll}
		for _, c := range ch.confirms {
			select {
			case c <- conf:
			default:
				go func(c chan amqp.Confirmation) { c <- conf }(c)
			}
		}
	}

	return nil
}

// Consume подписывает consumer на очередь.
func (ch *Channel) Consume(queueName, tag string, autoAck, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if err := ch.checkOpen(); err != nil {
		return nil, err
	}

	q, ok := ch.b.queues[queueName]
	if !ok {
		return nil, ch.fail(amqp.NotFound, fmt.Sprintf("NOT_FOUND - no queue '%s' in vhost '/'", queueName))
	}

	if tag == "" {
		ch.b.ctagSeq++
		tag = fmt.Sprintf("amq.ctag-%d", ch.b.ctagSeq)
	}
	if _, exists := ch.consumers[tag]; exists {
		return nil, ch.fail(amqp.NotAllowed, fmt.Sprintf("NOT_ALLOWED - attempt to reuse consumer tag '%s'", tag))
	}

	c := &consumer{
		tag:     tag,
		q:       q,
		ch:      ch,
		out:     make(chan amqp.Delivery, consumerBuffer),
		autoAck: autoAck,
	}
	ch.consumers[tag] = c
	q.consumers = append(q.consumers, c)

	ch.b.dispatch(q)

	return c.out, nil
}

// Get забирает одно сообщение из очереди.
func (ch *Channel) Get(queueName string, autoAck bool) (amqp.Delivery, bool, error) {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if err := ch.checkOpen(); err != nil {
		return amqp.Delivery{}, false, err
	}

	q, ok := ch.b.queues[queueName]
	if !ok {
		return amqp.Delivery{}, false, ch.fail(amqp.NotFound, fmt.Sprintf("NOT_FOUND - no queue '%s' in vhost '/'", queueName))
	}
	if len(q.ready) == 0 {
		return amqp.Delivery{}, false, nil
	}

	m := q.ready[0]
	q.ready = q.ready[1:]

	ch.tagSeq++
	tag := ch.tagSeq
	if !autoAck {
		ch.unacked[tag] = &pending{q: q, msg: m}
	}

	return delivery(ch, q.name, "", tag, m), true, nil
}

// Cancel снимает подписку. Неподтверждённые сообщения остаются за каналом.
func (ch *Channel) Cancel(tag string, _ bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if err := ch.checkOpen(); err != nil {
		return err
	}

	c, ok := ch.consumers[tag]
	if !ok {
		return nil
	}
	ch.removeConsumer(c)
	return nil
}

func (ch *Channel) removeConsumer(c *consumer) {
	delete(ch.consumers, c.tag)
	for i, qc := range c.q.consumers {
		if qc == c {
			c.q.consumers = append(c.q.consumers[:i], c.q.consumers[i+1:]...)
			break
		}
	}
	if c.q.rr >= len(c.q.consumers) {
		c.q.rr = 0
	}
	close(c.out)
}

// Close закрывает канал; неподтверждённые сообщения возвращаются в очереди.
func (ch *Channel) Close() error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}
	ch.shutdown(nil)
	return nil
}

// shutdown - закрытие канала под b.mu. err == nil - закрытие клиентом.
func (ch *Channel) shutdown(err *amqp.Error) {
	ch.closed = true

	for _, c := range ch.consumers {
		ch.removeConsumer(c)
	}

	tags := make([]uint64, 0, len(ch.unacked))
	for tag := range ch.unacked {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	items := make([]*pending, 0, len(tags))
	for _, tag := range tags {
		items = append(items, ch.unacked[tag])
	}
	ch.unacked = make(map[uint64]*pending)
	ch.b.requeue(items)

	for _, c := range ch.confirms {
		close(c)
	}
	ch.confirms = nil

	for _, n := range ch.notify {
		if err != nil {
			select {
			case n <- err:
			default:
			}
		}
		close(n)
	}
	ch.notify = nil
}

// --- amqp.Acknowledger ---

// Ack подтверждает доставку (или все до tag при multiple).
func (ch *Channel) Ack(tag uint64, multiple bool) error {
	return ch.settle(tag, multiple, func(p *pending) {})
}

// Nack отклоняет доставку.
func (ch *Channel) Nack(tag uint64, multiple, requeue bool) error {
	return ch.settle(tag, multiple, func(p *pending) {
		if requeue {
			ch.b.requeue([]*pending{p})
			return
		}
		ch.b.deadLetter(p.q, p.msg)
	})
}

// Reject отклоняет одну доставку.
func (ch *Channel) Reject(tag uint64, requeue bool) error {
	return ch.Nack(tag, false, requeue)
}

func (ch *Channel) settle(tag uint64, multiple bool, fn func(p *pending)) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if err := ch.checkOpen(); err != nil {
		return err
	}

	var tags []uint64
	if multiple {
		for t := range ch.unacked {
			if t <= tag {
				tags = append(tags, t)
			}
		}
		sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	} else {
		if _, ok := ch.unacked[tag]; !ok {
			return ch.fail(amqp.PreconditionFailed, fmt.Sprintf("PRECONDITION_FAILED - unknown delivery tag %d", tag))
		}
		tags = []uint64{tag}
	}

	touched := make(map[*queue]bool)
	for _, t := range tags {
		p := ch.unacked[t]
		delete(ch.unacked, t)
		if p.c != nil {
			p.c.inflight--
		}
		fn(p)
		touched[p.q] = true
	}

	for q := range touched {
		ch.b.dispatch(q)
	}
	return nil
}
