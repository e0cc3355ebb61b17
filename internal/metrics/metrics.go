package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeAccepted labels object predictions that produced an event.
	OutcomeAccepted = "accepted"
	// OutcomeRejected labels object predictions dropped by the filter.
	OutcomeRejected = "rejected"
)

var (
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_proctor",
			Name:      "events_total",
			Help:      "Canonical events appended to session logs, partitioned by kind.",
		},
		[]string{"kind"},
	)

	debounceFiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_proctor",
			Name:      "debounce_fires_total",
			Help:      "Presence channel fires, partitioned by channel.",
		},
		[]string{"channel"},
	)

	objectPredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_proctor",
			Name:      "object_predictions_total",
			Help:      "Object predictions seen by the filter, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mirador_proctor",
			Name:      "active_sessions",
			Help:      "Sessions currently accepting signals.",
		},
	)

	archiveDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirador_proctor",
			Name:      "archive_dropped_total",
			Help:      "Archive writes dropped because the session's write buffer was full.",
		},
	)

	reportRenderSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mirador_proctor",
			Name:      "report_render_seconds",
			Help:      "Report rendering latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"format"},
	)
)

// Register attaches mirador-proctor collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		eventsTotal,
		debounceFiresTotal,
		objectPredictionsTotal,
		activeSessions,
		archiveDroppedTotal,
		reportRenderSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveEvent counts an appended event of the given kind.
func ObserveEvent(kind string) {
	eventsTotal.WithLabelValues(kind).Inc()
}

// ObserveDebounceFire counts a presence channel fire.
func ObserveDebounceFire(channel string) {
	debounceFiresTotal.WithLabelValues(channel).Inc()
}

// ObserveObjectPrediction counts a filtered object prediction.
func ObserveObjectPrediction(outcome string) {
	label := outcome
	if label != OutcomeAccepted {
		label = OutcomeRejected
	}
	objectPredictionsTotal.WithLabelValues(label).Inc()
}

// SessionStarted increments the active session gauge.
func SessionStarted() { activeSessions.Inc() }

// SessionEnded decrements the active session gauge.
func SessionEnded() { activeSessions.Dec() }

// ArchiveDropped counts an archive write lost to a full buffer.
func ArchiveDropped() { archiveDroppedTotal.Inc() }

// ObserveReportRender records how long rendering a report took.
func ObserveReportRender(format string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	reportRenderSeconds.WithLabelValues(format).Observe(duration.Seconds())
}
