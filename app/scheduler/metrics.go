package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reminders dispatched successfully
	remindersSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reminders_sent_total",
			Help: "Total number of reminder emails delivered",
		},
	)

	// Reminder deliveries that failed
	reminderDeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reminder_delivery_failures_total",
			Help: "Total number of reminder deliveries that failed",
		},
	)

	// Eligible assignments skipped, partitioned by guard
	remindersSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminders_skipped_total",
			Help: "Eligible wave assignments skipped without a delivery attempt",
		},
		[]string{"reason"},
	)

	// Wave assignments expired by the housekeeping pass
	waveAssignmentsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wave_assignments_expired_total",
			Help: "Open wave assignments expired past their due date grace",
		},
	)
)
