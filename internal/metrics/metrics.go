package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	callsPlacedCounter     *prometheus.CounterVec
	webhookEventsCounter   *prometheus.CounterVec
	downloadsCounter       *prometheus.CounterVec
	downloadRetriesCounter prometheus.Counter
	brandingLegCounter     *prometheus.CounterVec
	downloadDurationMetric prometheus.Histogram
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		callsPlacedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calls_placed_total",
				Help: "Total outbound calls placed by final create-call outcome.",
			},
			[]string{"outcome"},
		)

		webhookEventsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_events_total",
				Help: "Total provider webhook deliveries by endpoint.",
			},
			[]string{"endpoint"},
		)

		downloadsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recording_downloads_total",
				Help: "Total recording download tasks by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		downloadRetriesCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "recording_download_retries_total",
				Help: "Total retried recording download attempts.",
			},
		)

		brandingLegCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "branding_requests_total",
				Help: "Total branding API requests by leg and outcome.",
			},
			[]string{"leg", "outcome"},
		)

		downloadDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recording_download_duration_seconds",
				Help:    "Duration of successful recording downloads in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		prometheus.MustRegister(
			callsPlacedCounter,
			webhookEventsCounter,
			downloadsCounter,
			downloadRetriesCounter,
			brandingLegCounter,
			downloadDurationMetric,
		)

		// Make the label combinations visible at /metrics before the first
		// increment.
		for _, outcome := range []string{"success", "failed"} {
			callsPlacedCounter.WithLabelValues(outcome)
			for _, kind := range []string{"full_call", "step"} {
				downloadsCounter.WithLabelValues(kind, outcome)
			}
			for _, leg := range []string{"auth", "push"} {
				brandingLegCounter.WithLabelValues(leg, outcome)
			}
		}
	})
}

func IncCallPlaced(outcome string) {
	Init()
	callsPlacedCounter.WithLabelValues(outcome).Inc()
}

func IncWebhookEvent(endpoint string) {
	Init()
	webhookEventsCounter.WithLabelValues(endpoint).Inc()
}

func IncDownload(kind, outcome string) {
	Init()
	downloadsCounter.WithLabelValues(kind, outcome).Inc()
}

func IncDownloadRetries() {
	Init()
	downloadRetriesCounter.Inc()
}

func IncBrandingRequest(leg, outcome string) {
	Init()
	brandingLegCounter.WithLabelValues(leg, outcome).Inc()
}

func ObserveDownloadDuration(d time.Duration) {
	Init()
	downloadDurationMetric.Observe(d.Seconds())
}
