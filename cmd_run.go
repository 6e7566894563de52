package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"git.0xdad.com/tblyler/meditime/api"
	"git.0xdad.com/tblyler/meditime/status"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Deliver reminders until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withApp(func(a *app) error {
				return a.run(ctx)
			})
		},
	}
}

func newRescheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule",
		Short: "Re-plan the wake-ups of every active medication",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				medications, err := a.badger.ListActiveMedications(cmd.Context(), time.Now().In(a.location))
				if err != nil {
					return err
				}

				if err := a.planner.ScheduleAll(cmd.Context(), medications); err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), "rescheduled", len(medications), "medications")

				return nil
			})
		},
	}
}

// run restores pending wake-ups, plans every active medication and keeps
// the plan current each midnight until ctx is done
func (a *app) run(ctx context.Context) error {
	if err := a.timer.Start(ctx); err != nil {
		return err
	}
	defer a.timer.Stop()

	watcher := status.NewWatcher(a.location, time.Now, a.refresh, a.log)
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	errs := make(chan error, 1)
	if addr := a.cfg.HTTPAddr(); addr != "" {
		router := api.NewHandler(a.handler, a.today, a.log).Router()
		go func() {
			errs <- api.Serve(ctx, addr, router, a.log)
		}()
	}

	a.log.Info().Str("timezone", a.location.String()).Msg("meditime running")

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutting down")
		return nil
	case err := <-errs:
		return err
	}
}

// refresh re-plans every active medication, which is idempotent, and logs
// each patient's day
func (a *app) refresh(ctx context.Context, start, end time.Time) {
	medications, err := a.badger.ListActiveMedications(ctx, start)
	if err != nil {
		a.log.Error().Err(err).Msg("failed to list active medications")
		return
	}

	if err := a.planner.ScheduleAll(ctx, medications); err != nil {
		a.log.Error().Err(err).Msg("some reminders were not planned")
	}

	users, err := a.badger.ListUsers()
	if err != nil {
		a.log.Error().Err(err).Msg("failed to list users")
		return
	}

	for _, user := range users {
		occurrences, err := a.today.ForUser(ctx, user)
		if err != nil {
			a.log.Error().Err(err).Str("user", user.Name).Msg("failed to resolve today")
			continue
		}

		counts := map[status.Status]int{}
		for _, o := range occurrences {
			counts[o.Status]++
		}

		a.log.Info().
			Str("user", user.Name).
			Time("day", start).
			Int("doses", len(occurrences)).
			Int("taken", counts[status.Taken]).
			Int("missed", counts[status.Missed]).
			Int("skipped", counts[status.Skipped]).
			Msg("today")
	}
}
