// Package metrics exposes the Prometheus collectors shared by the sender,
// receiver and dispatch packages, following the counter/gauge style used by
// the retrieval pack's tcpinfo exporter (prometheus/client_golang).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups the collectors for one process (server or client). A
// process registers its own Registry with a prometheus.Registerer via
// NewRegistry; cmd/rft-server uses a private prometheus.Registry.
type Registry struct {
	SegmentsSent        prometheus.Counter
	SegmentsAcked       prometheus.Counter
	SegmentsRetransmit  prometheus.Counter
	ResendRequests      prometheus.Counter
	ChecksumFailures    prometheus.Counter
	ActiveSessions      prometheus.Gauge
	SessionsCompleted   prometheus.Counter
	SessionsFailed      prometheus.Counter
}

// NewRegistry creates a Registry and registers its collectors with reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with other tests that
// also call NewRegistry against the default registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		SegmentsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "rft_segments_sent_total",
			Help: "Total DATA segments transmitted, including retransmits.",
		}),
		SegmentsAcked: factory.NewCounter(prometheus.CounterOpts{
			Name: "rft_segments_acked_total",
			Help: "Total ACKs processed by a sender.",
		}),
		SegmentsRetransmit: factory.NewCounter(prometheus.CounterOpts{
			Name: "rft_segments_retransmitted_total",
			Help: "Total segments retransmitted due to timeout or RESEND.",
		}),
		ResendRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "rft_resend_requests_total",
			Help: "Total RESEND requests observed by a sender.",
		}),
		ChecksumFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "rft_checksum_failures_total",
			Help: "Total packets dropped because they failed to decode (checksum, magic or length).",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rft_active_sessions",
			Help: "Number of sessions currently being served.",
		}),
		SessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "rft_sessions_completed_total",
			Help: "Total sessions that delivered every segment successfully.",
		}),
		SessionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "rft_sessions_failed_total",
			Help: "Total sessions that aborted with an error.",
		}),
	}
}
