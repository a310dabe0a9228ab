// Package prometheus exports service operation metrics through
// prometheus/client_golang.
package prometheus

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder counts dispatch and recovery requests by outcome and observes
// their latency. It satisfies core.MetricsRecorder.
type Recorder struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRecorder registers the estatecore collectors on reg. A nil reg uses a
// fresh registry, which callers retrieve with Gatherer.
func NewRecorder(reg prometheus.Registerer, namespace string) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "estatecore"
	}
	r := &Recorder{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Service requests by operation and result.",
		}, []string{"operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Service request latency by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{r.requests, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements core.MetricsRecorder.
func (r *Recorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	result := "error"
	if success {
		result = "success"
	}
	r.requests.WithLabelValues(operation, result).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// WriteTextfile dumps every metric gathered by g to path in the text
// exposition format, for the node_exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
