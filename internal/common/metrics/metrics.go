package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "eventsync"

	StatusSuccess = "success"
	StatusError   = "error"

	subsystemPublisher = "publisher"
	subsystemConsumer  = "consumer"
	subsystemOffset    = "kafka_offset"
	subsystemDLQ       = "dlq"
	subsystemOutbox    = "outbox"
)

// Outcome label values for processed messages.
const (
	OutcomeHandled      = "handled"
	OutcomeDecodeError  = "decode_error"
	OutcomeUnknownType  = "unknown_type"
	OutcomeDeadLettered = "dead_lettered"
)

// Metrics groups every collector of the event bus. All methods are safe to
// call on a nil receiver so components can run without instrumentation.
type Metrics struct {
	published       *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec

	messagesReceived   *prometheus.CounterVec
	messagesProcessed  *prometheus.CounterVec
	handlerDuration    *prometheus.HistogramVec
	handlerRetries     *prometheus.CounterVec
	pollErrors         prometheus.Counter
	messagesInFlight   prometheus.Gauge
	lastCommitted      *prometheus.GaugeVec
	offsetCommits      *prometheus.CounterVec
	dlqProduced        *prometheus.CounterVec
	outboxForwarded    *prometheus.CounterVec
	outboxPendingBatch prometheus.Gauge
}

// New creates and registers all collectors with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemPublisher,
			Name:      "messages_total",
			Help:      "Total publish attempts by topic and status",
		}, []string{"topic", "status"}),
		publishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystemPublisher,
			Name:      "duration_seconds",
			Help:      "Time until the broker acknowledged a publish",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"topic"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemConsumer,
			Name:      "messages_received_total",
			Help:      "Total messages fetched from Kafka by topic",
		}, []string{"topic"}),
		messagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemConsumer,
			Name:      "messages_processed_total",
			Help:      "Total messages processed by topic and outcome",
		}, []string{"topic", "outcome"}),
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystemConsumer,
			Name:      "handler_duration_seconds",
			Help:      "Handler execution time per attempt by event type",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"event_type"}),
		handlerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemConsumer,
			Name:      "handler_retries_total",
			Help:      "Total handler retries by event type",
		}, []string{"event_type"}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemConsumer,
			Name:      "poll_errors_total",
			Help:      "Total transient errors returned while fetching messages",
		}),
		messagesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemConsumer,
			Name:      "messages_in_flight",
			Help:      "Number of messages currently being processed",
		}),
		lastCommitted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemOffset,
			Name:      "last_committed",
			Help:      "Last offset committed to Kafka by topic and partition",
		}, []string{"topic", "partition"}),
		offsetCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemOffset,
			Name:      "commits_total",
			Help:      "Total offset commit attempts by status",
		}, []string{"status"}),
		dlqProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemDLQ,
			Name:      "produced_total",
			Help:      "Total messages routed to a dead-letter topic by source topic and status",
		}, []string{"topic", "status"}),
		outboxForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemOutbox,
			Name:      "forwarded_total",
			Help:      "Total outbox records forwarded to the broker by status",
		}, []string{"status"}),
		outboxPendingBatch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemOutbox,
			Name:      "pending_batch_size",
			Help:      "Size of the last pending batch read from the outbox",
		}),
	}

	err := errors.Join(
		reg.Register(m.published),
		reg.Register(m.publishDuration),
		reg.Register(m.messagesReceived),
		reg.Register(m.messagesProcessed),
		reg.Register(m.handlerDuration),
		reg.Register(m.handlerRetries),
		reg.Register(m.pollErrors),
		reg.Register(m.messagesInFlight),
		reg.Register(m.lastCommitted),
		reg.Register(m.offsetCommits),
		reg.Register(m.dlqProduced),
		reg.Register(m.outboxForwarded),
		reg.Register(m.outboxPendingBatch),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

func (m *Metrics) ObservePublish(topic string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(topic, status(err)).Inc()
	if err == nil {
		m.publishDuration.WithLabelValues(topic).Observe(time.Since(started).Seconds())
	}
}

func (m *Metrics) IncReceived(topic string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(topic).Inc()
	m.messagesInFlight.Inc()
}

func (m *Metrics) IncProcessed(topic, outcome string) {
	if m == nil {
		return
	}
	m.messagesProcessed.WithLabelValues(topic, outcome).Inc()
	m.messagesInFlight.Dec()
}

// DropInFlight is used for fetched messages abandoned at shutdown.
func (m *Metrics) DropInFlight() {
	if m == nil {
		return
	}
	m.messagesInFlight.Dec()
}

func (m *Metrics) ObserveHandler(eventType string, started time.Time) {
	if m == nil {
		return
	}
	m.handlerDuration.WithLabelValues(eventType).Observe(time.Since(started).Seconds())
}

func (m *Metrics) IncRetry(eventType string) {
	if m == nil {
		return
	}
	m.handlerRetries.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncPollError() {
	if m == nil {
		return
	}
	m.pollErrors.Inc()
}

func (m *Metrics) ObserveCommit(topic string, partition int, offset int64, err error) {
	if m == nil {
		return
	}
	m.offsetCommits.WithLabelValues(status(err)).Inc()
	if err == nil {
		m.lastCommitted.WithLabelValues(topic, strconv.Itoa(partition)).Set(float64(offset))
	}
}

func (m *Metrics) IncDeadLettered(topic string, err error) {
	if m == nil {
		return
	}
	m.dlqProduced.WithLabelValues(topic, status(err)).Inc()
}

func (m *Metrics) IncOutboxForwarded(err error) {
	if m == nil {
		return
	}
	m.outboxForwarded.WithLabelValues(status(err)).Inc()
}

// IncOutboxParked counts records taken out of the outbox because they can
// never be published.
func (m *Metrics) IncOutboxParked() {
	if m == nil {
		return
	}
	m.outboxForwarded.WithLabelValues("parked").Inc()
}

func (m *Metrics) SetOutboxBatch(n int) {
	if m == nil {
		return
	}
	m.outboxPendingBatch.Set(float64(n))
}
