package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const metricsNamespace = "reviewseed"

// RunMetrics holds the gauges describing the most recent run of a job.
// Each pusher owns its registry so nothing leaks into the default one.
type RunMetrics struct {
	Registry    *prometheus.Registry
	Records     *prometheus.GaugeVec
	Batches     *prometheus.GaugeVec
	Duration    prometheus.Gauge
	LastSuccess prometheus.Gauge
}

func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		Registry: prometheus.NewRegistry(),
		Records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "import_records",
			Help:      "Records seen by the last import run, by state.",
		}, []string{"state"}),
		Batches: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "import_batches",
			Help:      "Batches flushed by the last import run, by state.",
		}, []string{"state"}),
		Duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "import_duration_seconds",
			Help:      "Wall time of the last import run.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "import_last_success_timestamp_seconds",
			Help:      "Unix time the last successful import run finished.",
		}),
	}
	m.Registry.MustRegister(m.Records, m.Batches, m.Duration, m.LastSuccess)
	return m
}

// Observe copies a finalized summary into the gauges.
func (m *RunMetrics) Observe(s *Summary) {
	m.Records.WithLabelValues("read").Set(float64(s.Read))
	m.Records.WithLabelValues("valid").Set(float64(s.Valid))
	m.Records.WithLabelValues("skipped").Set(float64(s.Skipped))
	m.Records.WithLabelValues("written").Set(float64(s.Written))
	m.Records.WithLabelValues("failed").Set(float64(s.Failed))
	m.Records.WithLabelValues("duplicate").Set(float64(s.Duplicates))
	m.Batches.WithLabelValues("committed").Set(float64(s.BatchesCommitted))
	m.Batches.WithLabelValues("failed").Set(float64(s.BatchesFailed))
	m.Duration.Set(s.Duration.Seconds())
	if s.Succeeded() {
		m.LastSuccess.Set(float64(s.Started.Add(s.Duration).Unix()))
	}
}

// MetricsPusher sends run metrics to a Prometheus Pushgateway, grouped by job.
type MetricsPusher struct {
	URL     string
	Timeout time.Duration
	Metrics *RunMetrics
}

func NewMetricsPusher(url string) *MetricsPusher {
	return &MetricsPusher{URL: url, Timeout: 10 * time.Second, Metrics: NewRunMetrics()}
}

func (p *MetricsPusher) Notify(ctx context.Context, s *Summary) error {
	p.Metrics.Observe(s)

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	pusher := push.New(p.URL, metricsNamespace).Grouping("import", s.Job)
	var err error
	if s.Succeeded() {
		err = pusher.Gatherer(p.Metrics.Registry).PushContext(ctx)
	} else {
		// Add leaves the previous last-success time on the gateway.
		err = pusher.Collector(p.Metrics.Records).
			Collector(p.Metrics.Batches).
			Collector(p.Metrics.Duration).
			AddContext(ctx)
	}
	if err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", p.URL, err)
	}
	return nil
}
