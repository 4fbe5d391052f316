package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ChunksBuffered counts text chunks absorbed into session buffers
	ChunksBuffered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "demitasse_chunks_buffered_total",
			Help: "Total number of agent text chunks absorbed into buffers",
		},
	)

	// FlushesTotal counts buffer flushes by trigger
	FlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demitasse_flushes_total",
			Help: "Total number of buffer flushes",
		},
		[]string{"trigger"},
	)

	// FlushedBytes counts bytes of coalesced text forwarded to the client
	FlushedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "demitasse_flushed_bytes_total",
			Help: "Total bytes of coalesced text forwarded to the client",
		},
	)

	// ForwardErrors counts failed forwards to the client
	ForwardErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "demitasse_forward_errors_total",
			Help: "Total number of failed forwards to the client",
		},
	)

	// BufferedSessions tracks sessions currently holding unflushed text
	BufferedSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "demitasse_buffered_sessions",
			Help: "Number of sessions currently holding unflushed text",
		},
	)

	// FlushDuration tracks how long a drain-and-forward pass takes
	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "demitasse_flush_duration_seconds",
			Help:    "Duration of drain-and-forward passes",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	// MalformedLines counts inbound lines that failed to parse
	MalformedLines = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "demitasse_malformed_lines_total",
			Help: "Total number of inbound lines that failed to parse as JSON-RPC",
		},
	)
)

// Flush triggers
const (
	TriggerTimer    = "timer"
	TriggerResponse = "response"
	TriggerEvent    = "event"
)

// ObserveFlush records a completed flush pass
func ObserveFlush(trigger string, bytes int, start time.Time) {
	FlushesTotal.WithLabelValues(trigger).Inc()
	FlushedBytes.Add(float64(bytes))
	FlushDuration.Observe(time.Since(start).Seconds())
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts the metrics endpoint on the given address
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
