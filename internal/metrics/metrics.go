// Package metrics exposes Prometheus collectors for the download service.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	downloadsTotal          *prometheus.CounterVec
	downloadedBytesTotal    *prometheus.CounterVec
	activeProgressStreams   prometheus.Gauge
	httpRequestDurationSecs *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call this
// function multiple times.
func Init() {
	once.Do(func() {
		downloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediadl_downloads_total",
				Help: "Completed download jobs, labeled by platform, media kind and outcome.",
			},
			[]string{"platform", "media_kind", "outcome"},
		)

		downloadedBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediadl_downloaded_bytes_total",
				Help: "Total artifact bytes written to disk, labeled by platform.",
			},
			[]string{"platform"},
		)

		activeProgressStreams = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mediadl_active_progress_streams",
				Help: "Number of currently open progress event streams.",
			},
		)

		httpRequestDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mediadl_http_request_duration_seconds",
				Help:    "HTTP request latency, labeled by method, route and status code.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "code"},
		)
	})
}

// DownloadFinished records a terminal job outcome ("done" or "error").
func DownloadFinished(platform, mediaKind, outcome string) {
	if downloadsTotal != nil {
		downloadsTotal.WithLabelValues(platform, mediaKind, outcome).Inc()
	}
}

// AddDownloadedBytes accumulates artifact bytes for a platform.
func AddDownloadedBytes(platform string, n int64) {
	if downloadedBytesTotal != nil && n > 0 {
		downloadedBytesTotal.WithLabelValues(platform).Add(float64(n))
	}
}

// StreamOpened increments the active stream gauge.
func StreamOpened() {
	if activeProgressStreams != nil {
		activeProgressStreams.Inc()
	}
}

// StreamClosed decrements the active stream gauge.
func StreamClosed() {
	if activeProgressStreams != nil {
		activeProgressStreams.Dec()
	}
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	if httpRequestDurationSecs != nil {
		httpRequestDurationSecs.WithLabelValues(method, route, codeLabel(code)).Observe(d.Seconds())
	}
}

func codeLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
