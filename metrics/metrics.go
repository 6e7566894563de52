// Package metrics holds the prometheus collectors of the reminder engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "meditime"

var (
	// TimerRegistrations counts wake-ups handed to the timer, by purpose and exact/inexact mode
	TimerRegistrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timer_registrations_total",
			Help:      "Wake-ups registered with the timer.",
		},
		[]string{"purpose", "mode"},
	)

	// RemindersFired counts delivered wake-ups by kind (due, pre)
	RemindersFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_fired_total",
			Help:      "Wake-ups delivered to the fire handler.",
		},
		[]string{"kind"},
	)

	// PayloadsDropped counts malformed wake-up payloads
	PayloadsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_dropped_total",
			Help:      "Wake-up payloads dropped because they failed validation.",
		},
	)

	// IntakeUpserts counts intake log writes by status and result
	IntakeUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_upserts_total",
			Help:      "Intake log upserts by recorded status.",
		},
		[]string{"status", "result"},
	)

	// NotificationsSent counts notifier deliveries by result
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Alerts handed to the notifier.",
		},
		[]string{"result"},
	)
)
