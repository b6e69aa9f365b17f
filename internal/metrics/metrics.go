// Package metrics exposes Prometheus counters for the message pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "keyword_bot"

// Metrics holds the bot's collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	MessagesReceived     prometheus.Counter
	MessagesDropped      prometheus.Counter
	MessagesMatched      prometheus.Counter
	DuplicatesSuppressed prometheus.Counter
	NotificationsSent    prometheus.Counter
	NotificationsFailed  prometheus.Counter
	ChatNotFound         prometheus.Counter

	tasks      *prometheus.CounterVec
	attempts   *prometheus.HistogramVec
	queueDepth prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}

	m := &Metrics{
		reg:                  prometheus.NewRegistry(),
		MessagesReceived:     counter("messages_received_total", "Group messages queued for matching."),
		MessagesDropped:      counter("messages_dropped_total", "Group messages dropped because the queue was full."),
		MessagesMatched:      counter("messages_matched_total", "Messages that matched at least one subscriber."),
		DuplicatesSuppressed: counter("duplicates_suppressed_total", "Matched messages dropped as repeats."),
		NotificationsSent:    counter("notifications_sent_total", "Messages forwarded to subscribers."),
		NotificationsFailed:  counter("notifications_failed_total", "Forwards rejected by Telegram."),
		ChatNotFound:         counter("chat_not_found_total", "Messages from chats that were never provisioned."),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Finished units of work by name and result.",
		}, []string{"task", "result"}),
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_attempts",
			Help:      "Attempts used per finished unit of work.",
			Buckets:   []float64{1, 2, 3, 5, 10},
		}, []string{"task"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Units of work waiting in the queue.",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MessagesReceived,
		m.MessagesDropped,
		m.MessagesMatched,
		m.DuplicatesSuppressed,
		m.NotificationsSent,
		m.NotificationsFailed,
		m.ChatNotFound,
		m.tasks,
		m.attempts,
		m.queueDepth,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// TaskFinished records the outcome of a unit of work.
func (m *Metrics) TaskFinished(name string, attempts int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.tasks.WithLabelValues(name, result).Inc()
	m.attempts.WithLabelValues(name).Observe(float64(attempts))
}

// QueueDepth records the current queue length.
func (m *Metrics) QueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}
