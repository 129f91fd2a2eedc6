package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the chatsyncd instrumentation counters, exposed on the
// daemon's /metrics endpoint.
type Metrics struct {
	FramesReceived     prometheus.Counter
	FramesDropped      prometheus.Counter
	FramesQueued       prometheus.Counter
	QueueOverflows     prometheus.Counter
	HeartbeatsAnswered prometheus.Counter
	Connects           prometheus.Counter
	Teardowns          prometheus.Counter
	HistoryPages       prometheus.Counter
	HistoryFailures    prometheus.Counter
	SubmissionsSent    prometheus.Counter
	StaleResults       prometheus.Counter
}

// New registers and returns the chatsync metrics on the given
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_frames_received_total",
			Help: "Inbound frames read from the transport.",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_frames_dropped_total",
			Help: "Inbound frames discarded as malformed.",
		}),
		FramesQueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_frames_queued_total",
			Help: "Frames buffered while awaiting the ready confirmation.",
		}),
		QueueOverflows: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_queue_overflows_total",
			Help: "Buffered frames evicted because the pre-ready queue was full.",
		}),
		HeartbeatsAnswered: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_heartbeats_answered_total",
			Help: "Heartbeat pings answered with a pong.",
		}),
		Connects: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_connects_total",
			Help: "Connection attempts started.",
		}),
		Teardowns: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_teardowns_total",
			Help: "Connection teardowns executed.",
		}),
		HistoryPages: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_history_pages_total",
			Help: "History pages fetched and applied.",
		}),
		HistoryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_history_failures_total",
			Help: "History page fetches that failed.",
		}),
		SubmissionsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_submissions_sent_total",
			Help: "Content frames written to the transport.",
		}),
		StaleResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_stale_results_total",
			Help: "Async results discarded because their connection epoch passed.",
		}),
	}
}
