package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"git.0xdad.com/tblyler/meditime/config"
	"git.0xdad.com/tblyler/meditime/db"
	"git.0xdad.com/tblyler/meditime/fire"
	"git.0xdad.com/tblyler/meditime/notify"
	"git.0xdad.com/tblyler/meditime/reminder"
	"git.0xdad.com/tblyler/meditime/status"
	"git.0xdad.com/tblyler/meditime/timer"
)

// app wires the stores, timer, planner and handler from configuration
type app struct {
	cfg      config.Config
	location *time.Location
	badger   *db.Badger
	intakes  db.IntakeStore
	timer    *timer.Cron
	planner  *reminder.Planner
	handler  *fire.Handler
	today    *status.Today
	resolver *status.Resolver
	log      zerolog.Logger
	closers  []func() error
}

func newApp(cfg config.Config, log zerolog.Logger) (*app, error) {
	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	badgerPath, err := cfg.BadgerPath()
	if err != nil {
		return nil, err
	}

	driver, err := cfg.IntakeDriver()
	if err != nil {
		return nil, err
	}

	now := time.Now

	b, err := db.NewBadger(badgerPath, db.WithClock(now))
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		location: location,
		badger:   b,
		intakes:  b,
		log:      log,
		closers:  []func() error{b.Close},
	}

	if driver == config.IntakeDriverSQLite {
		s, err := db.NewSQLite(cfg.SQLitePath(), db.WithClock(now))
		if err != nil {
			a.Close()
			return nil, err
		}

		a.intakes = s
		a.closers = append(a.closers, s.Close)
	}

	a.timer = timer.NewCron(b, func(ctx context.Context, payload []byte) {
		if err := a.handler.HandleWakeUp(ctx, payload); err != nil {
			a.log.Error().Err(err).Msg("wake-up handling failed")
		}
	}, timer.Options{
		Exact:    cfg.ExactAlarms(),
		Location: location,
		Now:      now,
	}, log)
	a.closers = append(a.closers, func() error {
		a.timer.Stop()
		return nil
	})

	a.planner = reminder.NewPlanner(a.timer, b, reminder.Timing{
		PreReminder:     cfg.PreReminderOffset(),
		Snooze:          cfg.SnoozeDelay(),
		RespectWeekdays: cfg.RespectWeekdays(),
	}, location, now, log).SkipAnswered(a.intakes)

	var notifier fire.Notifier
	if token, err := cfg.PushoverAPIToken(); err == nil {
		notifier = notify.NewPushover(token, b, location, log)
	} else {
		log.Warn().Err(err).Msg("alerts will only be logged")
		notifier = notify.NewLog(log)
	}

	a.handler = fire.NewHandler(a.planner, a.intakes, notifier, location, now, log)

	a.resolver = status.NewResolver(status.Windows{
		DueSoon:     cfg.DueSoonWindow(),
		MissedGrace: cfg.MissedGrace(),
	})
	a.today = status.NewToday(b, a.intakes, a.resolver, location, now)

	return a, nil
}

// Close every store, last opened first
func (a *app) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (a *app) user(username string) (*db.User, error) {
	user, err := a.badger.GetUser(username)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup username %s: %w", username, err)
	}

	return user, nil
}

// withApp loads configuration, opens the app, runs fn and closes the app
func withApp(fn func(a *app) error) error {
	cfg, err := config.NewEnv()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, log.Logger)
	if err != nil {
		return err
	}

	defer a.Close()

	return fn(a)
}
