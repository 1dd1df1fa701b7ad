package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/batalovmv/stream-alerts-sub001/internal/queue"
)

// QueueMetrics implements queue.Observer and counts webhook ingestion.
type QueueMetrics struct {
	JobsProcessed *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	Depth         *prometheus.GaugeVec
	Webhooks      *prometheus.CounterVec
	Deliveries    *prometheus.CounterVec
}

var _ queue.Observer = (*QueueMetrics)(nil)

func NewQueueMetrics(reg prometheus.Registerer) *QueueMetrics {
	m := &QueueMetrics{
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Processing attempts by job name and outcome (completed, retrying, dead).",
		}, []string{"name", "outcome"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "job_duration_seconds",
			Help:      "Time spent in the job handler.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"name"}),
		Depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs",
			Help:      "Jobs currently held by the queue, by state.",
		}, []string{"state"}),
		Webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "requests_total",
			Help:      "Stream webhooks by result (accepted, forbidden, invalid, unconfigured, error).",
		}, []string{"result"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "messages_total",
			Help:      "Notification deliveries by result (sent, skipped, failed).",
		}, []string{"result"}),
	}

	reg.MustRegister(m.JobsProcessed, m.JobDuration, m.Depth, m.Webhooks, m.Deliveries)
	return m
}

func (m *QueueMetrics) JobProcessed(name string, outcome queue.Outcome, d time.Duration) {
	m.JobsProcessed.WithLabelValues(name, string(outcome)).Inc()
	m.JobDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *QueueMetrics) QueueDepth(s queue.Stats) {
	m.Depth.WithLabelValues("waiting").Set(float64(s.Waiting))
	m.Depth.WithLabelValues("active").Set(float64(s.Active))
	m.Depth.WithLabelValues("delayed").Set(float64(s.Delayed))
	m.Depth.WithLabelValues("dead").Set(float64(s.Dead))
}

func (m *QueueMetrics) Webhook(result string) {
	m.Webhooks.WithLabelValues(result).Inc()
}

func (m *QueueMetrics) Delivery(result string) {
	m.Deliveries.WithLabelValues(result).Inc()
}
