// Package metrics exposes job lifecycle counters in Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahmethakanbesel/cartoon-api/internal/job"
)

const namespace = "cartoon"

// Recorder implements job.Observer on a private registry.
type Recorder struct {
	registry  *prometheus.Registry
	submitted prometheus.Counter
	finished  *prometheus.CounterVec
	inFlight  prometheus.Gauge
	duration  *prometheus.HistogramVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Jobs accepted by the convert endpoint.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal state, by status.",
		}, []string{"status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs submitted but not yet terminal.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from dispatch to terminal state.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"status"}),
	}

	r.registry.MustRegister(
		r.submitted, r.finished, r.inFlight, r.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Submitted(_ context.Context, _ job.Job) {
	r.submitted.Inc()
	r.inFlight.Inc()
}

func (r *Recorder) Finished(_ context.Context, j job.Job, elapsed time.Duration) {
	status := string(j.Status)
	r.finished.WithLabelValues(status).Inc()
	r.inFlight.Dec()
	r.duration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// Handler serves the registry for scraping.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
