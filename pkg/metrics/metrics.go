package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "logoembed"

// Result labels recorded by Observe.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Recorder collects run metrics in a private registry so a one-shot command
// can dump them to a textfile on exit.
type Recorder struct {
	registry   *prometheus.Registry
	runs       *prometheus.CounterVec
	duration   prometheus.Histogram
	imageBytes prometheus.Gauge
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Logo embed runs by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a logo embed run.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		imageBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "image_bytes",
			Help:      "Size of the most recently embedded image.",
		}),
	}
	r.registry.MustRegister(r.runs, r.duration, r.imageBytes)
	return r
}

// Observe records one run. imageSize is ignored for failed runs.
func (r *Recorder) Observe(result string, elapsed time.Duration, imageSize int) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(result).Inc()
	r.duration.Observe(elapsed.Seconds())
	if result == ResultOK {
		r.imageBytes.Set(float64(imageSize))
	}
}

// Gatherer exposes the registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes the registry in the node exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
