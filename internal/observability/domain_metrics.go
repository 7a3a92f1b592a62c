package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	chatRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querychat_chat_requests_total",
			Help: "Total number of chat stream requests.",
		},
	)
	streamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querychat_stream_events_total",
			Help: "Total number of stream events emitted, by event type.",
		},
		[]string{"type"},
	)
	guidanceOutcomesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querychat_guidance_outcomes_total",
			Help: "Total number of generations that ended in schema guidance.",
		},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "querychat_sessions_active",
			Help: "Current count of live conversation sessions.",
		},
	)
	pipelineDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querychat_pipeline_duration_seconds",
			Help:    "End-to-end chat pipeline duration in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	feedbackRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querychat_feedback_records_total",
			Help: "Total number of feedback records captured, by rating type.",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(
		chatRequestsTotal,
		streamEventsTotal,
		guidanceOutcomesTotal,
		sessionsActive,
		pipelineDurationSeconds,
		feedbackRecordsTotal,
	)
}

func CountChatRequest() {
	chatRequestsTotal.Inc()
}

func CountStreamEvent(eventType string) {
	streamEventsTotal.WithLabelValues(eventType).Inc()
}

func CountGuidanceOutcome() {
	guidanceOutcomesTotal.Inc()
}

func SetActiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	sessionsActive.Set(float64(count))
}

func ObservePipelineDuration(elapsed time.Duration) {
	pipelineDurationSeconds.Observe(elapsed.Seconds())
}

func CountFeedbackRecord(ratingType string) {
	feedbackRecordsTotal.WithLabelValues(ratingType).Inc()
}
