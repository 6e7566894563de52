package config

import (
	"time"
)

// Config for application setup
type Config interface {
	BadgerPath() (string, error)
	PushoverAPIToken() (string, error)
	IntakeDriver() (string, error)
	SQLitePath() string
	Location() (*time.Location, error)
	PreReminderOffset() time.Duration
	SnoozeDelay() time.Duration
	DueSoonWindow() time.Duration
	MissedGrace() time.Duration
	ExactAlarms() bool
	RespectWeekdays() bool
	HTTPAddr() string
}
