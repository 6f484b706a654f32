package services

import "github.com/prometheus/client_golang/prometheus"

var (
	challengeTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_transitions_total",
			Help: "Challenge instances entering a status",
		},
		[]string{"status"},
	)
	expensesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expenses_recorded_total",
			Help: "Expenses appended to the ledger",
		},
		[]string{"mood"},
	)
	badgesAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badges_awarded_total",
			Help: "Badges awarded to users",
		},
		[]string{"criteria"},
	)
	badgeEvaluationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "badge_evaluation_failures_total",
			Help: "Badge checks skipped because of an error",
		},
	)
	notificationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "award_notifications_dropped_total",
			Help: "Award notifications dropped because the queue was full or the push failed",
		},
	)
)

// InitMetrics registers the engine metrics. Call this from main.go
func InitMetrics() {
	prometheus.MustRegister(challengeTransitions)
	prometheus.MustRegister(expensesRecorded)
	prometheus.MustRegister(badgesAwarded)
	prometheus.MustRegister(badgeEvaluationFailures)
	prometheus.MustRegister(notificationsDropped)
}
