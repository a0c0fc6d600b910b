// Package metrics provides Prometheus instrumentation for gatekeeper. It
// exposes counters for moderation decisions and detections, a histogram for
// moderation latency and a gauge for live feed subscribers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DecisionsTotal counts moderation outcomes, labeled by action:
	// "allow", "block-spam" or "block-content".
	DecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_decisions_total",
		Help: "Total number of moderation decisions",
	}, []string{"action"})

	// DetectionsTotal counts personal-info detections by category.
	DetectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_detections_total",
		Help: "Total number of personal information detections",
	}, []string{"category"})

	// SpamChecksTotal counts individual spam checks that fired.
	SpamChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_spam_checks_total",
		Help: "Total number of spam heuristics that fired",
	}, []string{"check"})

	// ModerationLatency records the time spent in the moderation gate, history
	// lookup included, in seconds.
	ModerationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gatekeeper_moderation_latency_seconds",
		Help:    "Moderation latency in seconds",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	})

	// ThrottledTotal counts requests rejected by a rate limit rule.
	ThrottledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_throttled_total",
		Help: "Total number of rate limited requests",
	}, []string{"rule"}) // rule = "message", "review", "profile", "ip"

	// MutedRejectionsTotal counts messages refused because the sender was muted.
	MutedRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatekeeper_muted_rejections_total",
		Help: "Total number of messages rejected from muted senders",
	})

	// FeedSubscribers tracks the current number of live feed connections.
	FeedSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gatekeeper_feed_subscribers",
		Help: "Current number of moderation feed subscribers",
	})
)

func init() {
	prometheus.MustRegister(
		DecisionsTotal,
		DetectionsTotal,
		SpamChecksTotal,
		ModerationLatency,
		ThrottledTotal,
		MutedRejectionsTotal,
		FeedSubscribers,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
