package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы обработки доставки.
const (
	OutcomeAcked        = "acked"
	OutcomeRequeued     = "requeued"
	OutcomeDeadLettered = "dead_lettered"
)

var (
	// MessagesPublished - количество опубликованных сообщений по очереди.
	MessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomly_mq_messages_published_total",
		Help: "Total messages published to the broker",
	}, []string{"queue"})

	// MessagesConsumed - количество обработанных доставок по исходу.
	MessagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomly_mq_messages_consumed_total",
		Help: "Total deliveries settled by the consumer, by outcome",
	}, []string{"queue", "outcome"})

	// HandlerDuration - время обработки одной доставки.
	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roomly_mq_handler_duration_seconds",
		Help:    "Time spent in the delivery handler",
		Buckets: prometheus.DefBuckets,
	}, []string{"queue"})

	// DeadLettersReplayed - количество сообщений, возвращённых из DLQ.
	DeadLettersReplayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomly_mq_dead_letters_replayed_total",
		Help: "Total dead letters moved back to their source queue",
	}, []string{"queue"})

	// ConnectionState - текущее состояние соединения с брокером.
	ConnectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roomly_mq_connection_state",
		Help: "Broker connection state (0=disconnected .. 6=closed)",
	})
)
