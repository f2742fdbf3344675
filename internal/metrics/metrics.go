package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollCycles counts mailbox poll cycles by result: ok, connect_error, error.
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkfeed_poll_cycles_total",
			Help: "Total number of mailbox poll cycles",
		},
		[]string{"result"},
	)

	// MessagesProcessed counts unseen messages by outcome.
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkfeed_messages_total",
			Help: "Total number of mailbox messages handled",
		},
		[]string{"status"}, // stored, duplicate, no_link, fetch_error, parse_error, store_error, panic
	)

	// PreviewResolutions counts previews by platform and the stage that produced them.
	PreviewResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkfeed_preview_resolutions_total",
			Help: "Total number of link preview resolutions",
		},
		[]string{"platform", "source"}, // source: oembed, scrape, placeholder, none
	)

	// PreviewStageDuration tracks time spent in each resolution stage.
	PreviewStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linkfeed_preview_stage_duration_seconds",
			Help:    "Link preview stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"stage"},
	)
)

// Poll cycle results.
const (
	CycleOK           = "ok"
	CycleConnectError = "connect_error"
	CycleError        = "error"
)

// Message statuses.
const (
	MessageStored     = "stored"
	MessageDuplicate  = "duplicate"
	MessageNoLink     = "no_link"
	MessageFetchError = "fetch_error"
	MessageParseError = "parse_error"
	MessageStoreError = "store_error"
	MessagePanic      = "panic"
)

// RecordPollCycle increments the cycle counter.
func RecordPollCycle(result string) {
	PollCycles.WithLabelValues(result).Inc()
}

// RecordMessage increments the message counter.
func RecordMessage(status string) {
	MessagesProcessed.WithLabelValues(status).Inc()
}

// RecordPreview increments the resolution counter.
func RecordPreview(platform, source string) {
	PreviewResolutions.WithLabelValues(platform, source).Inc()
}

// RecordStageDuration observes how long a resolution stage took.
func RecordStageDuration(stage string, duration time.Duration) {
	PreviewStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}
