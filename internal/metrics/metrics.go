// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	messagesAppliedCounter   *prometheus.CounterVec
	messagesDroppedCounter   *prometheus.CounterVec
	liveSessionsGauge        prometheus.Gauge
	sseSubscribersGauge      prometheus.Gauge
	exportsCounter           *prometheus.CounterVec
	demoSessionsCounter      prometheus.Counter
	eventQueryDurationMetric prometheus.Histogram
)

var messageKinds = []string{
	"session-start",
	"session-end",
	"node-add",
	"node-update",
	"edge-add",
	"edge-update",
	"generic-event",
	"metrics-update",
}

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		messagesAppliedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_messages_applied_total",
				Help: "Total number of push messages merged into a session projection, by kind.",
			},
			[]string{"kind"},
		)

		messagesDroppedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_messages_dropped_total",
				Help: "Total number of push messages skipped as malformed or unrecognized, by kind.",
			},
			[]string{"kind"},
		)

		liveSessionsGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "live_sessions",
				Help: "Number of sessions currently projected by the live broker.",
			},
		)

		sseSubscribersGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_subscribers",
				Help: "Number of connected live-stream subscribers.",
			},
		)

		exportsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_exports_total",
				Help: "Total number of session exports served, by format.",
			},
			[]string{"format"},
		)

		demoSessionsCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "demo_sessions_created_total",
				Help: "Total number of demo sessions seeded via the command interface.",
			},
		)

		eventQueryDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "event_query_duration_seconds",
				Help:    "Duration of stored event list queries in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		prometheus.MustRegister(
			messagesAppliedCounter,
			messagesDroppedCounter,
			liveSessionsGauge,
			sseSubscribersGauge,
			exportsCounter,
			demoSessionsCounter,
			eventQueryDurationMetric,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, kind := range messageKinds {
			messagesAppliedCounter.WithLabelValues(kind)
			messagesDroppedCounter.WithLabelValues(kind)
		}
		for _, format := range []string{"json", "csv"} {
			exportsCounter.WithLabelValues(format)
		}
	})
}

func IncMessageApplied(kind string) {
	Init()
	messagesAppliedCounter.WithLabelValues(kind).Inc()
}

func IncMessageDropped(kind string) {
	Init()
	messagesDroppedCounter.WithLabelValues(kind).Inc()
}

func SetLiveSessions(n int) {
	Init()
	liveSessionsGauge.Set(float64(n))
}

func IncSSESubscribers() {
	Init()
	sseSubscribersGauge.Inc()
}

func DecSSESubscribers() {
	Init()
	sseSubscribersGauge.Dec()
}

func IncExport(format string) {
	Init()
	exportsCounter.WithLabelValues(format).Inc()
}

func IncDemoSessions() {
	Init()
	demoSessionsCounter.Inc()
}

func ObserveEventQueryDuration(d time.Duration) {
	Init()
	eventQueryDurationMetric.Observe(d.Seconds())
}
