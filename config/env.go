package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// Prefix of every environment variable. The unprefixed names are accepted too.
	Prefix = "MEDITIME"
	// BadgerPathEnv name
	BadgerPathEnv = "BADGER_PATH"
	// PushoverAPITokenEnv name
	PushoverAPITokenEnv = "PUSHOVER_API_TOKEN"

	// IntakeDriverBadger keeps intake logs in the badger database
	IntakeDriverBadger = "badger"
	// IntakeDriverSQLite keeps intake logs in a sqlite file
	IntakeDriverSQLite = "sqlite"
)

var (
	// ErrEnvVariableNotSet occurs when an environment variable is not set
	ErrEnvVariableNotSet = errors.New("environment variable is not set")
	// ErrInvalidValue occurs when an environment variable holds an unusable value
	ErrInvalidValue = errors.New("invalid configuration value")
)

type envValues struct {
	BadgerPath        string        `envconfig:"BADGER_PATH"`
	PushoverAPIToken  string        `envconfig:"PUSHOVER_API_TOKEN"`
	IntakeDriver      string        `envconfig:"INTAKE_DRIVER" default:"badger"`
	SQLitePath        string        `envconfig:"SQLITE_PATH" default:"meditime.db"`
	Timezone          string        `envconfig:"TIMEZONE" default:"Local"`
	PreReminderOffset time.Duration `envconfig:"PRE_REMINDER_OFFSET" default:"10m"`
	SnoozeDelay       time.Duration `envconfig:"SNOOZE_DELAY" default:"5m"`
	DueSoonWindow     time.Duration `envconfig:"DUE_SOON_WINDOW" default:"15m"`
	MissedGrace       time.Duration `envconfig:"MISSED_GRACE" default:"15m"`
	ExactAlarms       bool          `envconfig:"EXACT_ALARMS" default:"true"`
	RespectWeekdays   bool          `envconfig:"RESPECT_WEEKDAYS" default:"false"`
	HTTPAddr          string        `envconfig:"HTTP_ADDR"`
}

// Env variable Config implementation
type Env struct {
	values envValues
}

// NewEnv reads the configuration from MEDITIME_ prefixed environment variables
func NewEnv() (*Env, error) {
	e := &Env{}
	if err := envconfig.Process(Prefix, &e.values); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"PRE_REMINDER_OFFSET", e.values.PreReminderOffset},
		{"SNOOZE_DELAY", e.values.SnoozeDelay},
	}
	for _, d := range positive {
		if d.value <= 0 {
			return nil, fmt.Errorf("%s_%s must be positive, got %s: %w", Prefix, d.name, d.value, ErrInvalidValue)
		}
	}

	nonNegative := []struct {
		name  string
		value time.Duration
	}{
		{"DUE_SOON_WINDOW", e.values.DueSoonWindow},
		{"MISSED_GRACE", e.values.MissedGrace},
	}
	for _, d := range nonNegative {
		if d.value < 0 {
			return nil, fmt.Errorf("%s_%s must not be negative, got %s: %w", Prefix, d.name, d.value, ErrInvalidValue)
		}
	}

	return e, nil
}

// BadgerPath for the database directory
func (e *Env) BadgerPath() (string, error) {
	if e.values.BadgerPath == "" {
		return "", fmt.Errorf(
			"unable to get badger path from env variable %s_%s: %w",
			Prefix,
			BadgerPathEnv,
			ErrEnvVariableNotSet,
		)
	}

	return e.values.BadgerPath, nil
}

// PushoverAPIToken getter
func (e *Env) PushoverAPIToken() (string, error) {
	if e.values.PushoverAPIToken == "" {
		return "", fmt.Errorf(
			"unable to get pushover API token from env variable %s_%s: %w",
			Prefix,
			PushoverAPITokenEnv,
			ErrEnvVariableNotSet,
		)
	}

	return e.values.PushoverAPIToken, nil
}

// IntakeDriver names the intake log store, badger or sqlite
func (e *Env) IntakeDriver() (string, error) {
	switch e.values.IntakeDriver {
	case IntakeDriverBadger, IntakeDriverSQLite:
		return e.values.IntakeDriver, nil
	}

	return "", fmt.Errorf("unsupported intake driver %q: %w", e.values.IntakeDriver, ErrInvalidValue)
}

// SQLitePath of the intake log database when the sqlite driver is used
func (e *Env) SQLitePath() string {
	return e.values.SQLitePath
}

// Location calendar days are evaluated in
func (e *Env) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(e.values.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unable to load timezone %q: %v: %w", e.values.Timezone, err, ErrInvalidValue)
	}

	return loc, nil
}

// PreReminderOffset is how long before the due time the pre-reminder fires
func (e *Env) PreReminderOffset() time.Duration {
	return e.values.PreReminderOffset
}

// SnoozeDelay is how long a snoozed reminder waits
func (e *Env) SnoozeDelay() time.Duration {
	return e.values.SnoozeDelay
}

// DueSoonWindow is how long before the due time a dose shows as due soon
func (e *Env) DueSoonWindow() time.Duration {
	return e.values.DueSoonWindow
}

// MissedGrace is how long after the due time a dose shows as missed
func (e *Env) MissedGrace() time.Duration {
	return e.values.MissedGrace
}

// ExactAlarms reports whether wake-ups may be timed exactly
func (e *Env) ExactAlarms() bool {
	return e.values.ExactAlarms
}

// RespectWeekdays reports whether planning skips days outside a medication's selected weekdays
func (e *Env) RespectWeekdays() bool {
	return e.values.RespectWeekdays
}

// HTTPAddr for the action and metrics server, empty to disable it
func (e *Env) HTTPAddr() string {
	return e.values.HTTPAddr
}
