// Package metrics collects per-run statistics in a prometheus registry and
// exports them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/openmined/s3repo/internal/blob"
	"github.com/openmined/s3repo/internal/reconcile"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "s3repo"

type Metrics struct {
	registry *prometheus.Registry

	objects        *prometheus.CounterVec
	bytes          *prometheus.CounterVec
	planned        *prometheus.GaugeVec
	placeholders   prometheus.Gauge
	lastRunSeconds prometheus.Gauge
	lastRunSuccess prometheus.Gauge
	lastRunTime    prometheus.Gauge
}

// New returns Metrics backed by a fresh registry so repeated runs in one
// process never collide.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		objects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "objects_total",
			Help:      "Objects transferred or mutated in the store.",
		}, []string{"op"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "bytes_total",
			Help:      "Bytes transferred to or from the store.",
		}, []string{"direction"}),
		planned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "plan",
			Name:      "operations",
			Help:      "Operations in the last computed plan.",
		}, []string{"kind"}),
		placeholders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "placeholders",
			Help:      "Placeholders synthesized for the last index regeneration.",
		}),
		lastRunSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Duration of the last run.",
		}),
		lastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run succeeded.",
		}),
		lastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}

	m.registry.MustRegister(
		m.objects,
		m.bytes,
		m.planned,
		m.placeholders,
		m.lastRunSeconds,
		m.lastRunSuccess,
		m.lastRunTime,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Hooks returns backend hooks that count successful mutations.
func (m *Metrics) Hooks() *blob.Hooks {
	return &blob.Hooks{
		AfterPutObject: func(req *blob.PutObjectParams, resp *blob.PutObjectResponse) {
			m.objects.WithLabelValues("put").Inc()
			m.bytes.WithLabelValues("up").Add(float64(resp.Size))
		},
		AfterCopyObject: func(req *blob.CopyObjectParams, resp *blob.CopyObjectResponse) {
			m.objects.WithLabelValues("copy").Inc()
		},
		AfterDeleteObject: func(bucket, key string) {
			m.objects.WithLabelValues("delete").Inc()
		},
	}
}

// ObserveDownload counts a completed download of size bytes.
func (m *Metrics) ObserveDownload(size int64) {
	m.objects.WithLabelValues("get").Inc()
	m.bytes.WithLabelValues("down").Add(float64(size))
}

func (m *Metrics) ObservePlaceholders(n int) {
	m.placeholders.Set(float64(n))
}

func (m *Metrics) ObservePlan(plan *reconcile.Plan) {
	c := plan.Counts()
	m.planned.WithLabelValues("upload").Set(float64(c.Uploads))
	m.planned.WithLabelValues("delete").Set(float64(c.Deletes))
	m.planned.WithLabelValues("rename").Set(float64(c.Renames))
	m.planned.WithLabelValues("local_delete").Set(float64(c.LocalDeletes))
}

// ObserveRun records the outcome of a run that began at start.
func (m *Metrics) ObserveRun(start time.Time, err error) {
	now := time.Now()
	m.lastRunSeconds.Set(now.Sub(start).Seconds())
	m.lastRunTime.Set(float64(now.Unix()))
	if err != nil {
		m.lastRunSuccess.Set(0)
	} else {
		m.lastRunSuccess.Set(1)
	}
}

// WriteTextfile atomically writes every metric to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
