package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"git.0xdad.com/tblyler/meditime/db"
	"git.0xdad.com/tblyler/meditime/fire"
	"git.0xdad.com/tblyler/meditime/reminder"
	"git.0xdad.com/tblyler/meditime/status"
)

var intakeActions = []fire.Action{
	fire.ActionTaken,
	fire.ActionSkip,
	fire.ActionSnooze,
	fire.ActionOpen,
}

func newIntakeActionCmd(action fire.Action) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s <medication-id> <time-of-day>", action),
		Short: fmt.Sprintf("Record the %s action for one dose", action),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid medication id %q: %w", args[0], err)
			}

			tod, err := reminder.ParseTimeOfDay(args[1])
			if err != nil {
				return err
			}

			return withApp(func(a *app) error {
				ctx := cmd.Context()

				medication, err := a.badger.GetMedication(ctx, id)
				if err != nil {
					return err
				}

				if !hasTime(medication, tod.String()) {
					return fmt.Errorf("medication %s has no dose at %s", medication.Name, tod.Display())
				}

				day, err := parseDate(date, time.Now(), a.location)
				if err != nil {
					return err
				}

				payload := reminder.NewPayload(medication, tod.String(), tod.On(day))

				if err := a.handler.Act(ctx, action, payload); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s %s at %s: %s\n", medication.Name, medication.Dosage, tod.Display(), action)

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Day of the dose, YYYY-MM-DD (default today)")

	return cmd
}

func hasTime(medication *db.Medication, timeOfDay string) bool {
	for _, t := range medication.Times {
		if t.TimeOfDay == timeOfDay {
			return true
		}
	}

	return false
}

func newTodayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "today <username>",
		Short: "Show today's doses and their status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				user, err := a.user(args[0])
				if err != nil {
					return err
				}

				occurrences, err := a.today.ForUser(cmd.Context(), user)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, o := range occurrences {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						reminder.DisplayTimeOfDay(o.TimeOfDay),
						o.Medication.Name,
						o.Medication.Dosage,
						o.Status,
						o.Medication.ID,
					)
				}

				return w.Flush()
			})
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var (
		medication string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "history <username>",
		Short: "Show a patient's recorded intakes, latest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			medicationID := uuid.Nil
			if medication != "" {
				var err error
				if medicationID, err = uuid.Parse(medication); err != nil {
					return fmt.Errorf("invalid medication id %q: %w", medication, err)
				}
			}

			return withApp(func(a *app) error {
				user, err := a.user(args[0])
				if err != nil {
					return err
				}

				entries, err := a.today.HistoryForUser(cmd.Context(), user, medicationID, limit)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, entry := range entries {
					name := entry.Log.MedicationID.String()
					if entry.Medication != nil {
						name = entry.Medication.Name + " " + entry.Medication.Dosage
					}

					fmt.Fprintf(w, "%s\t%s\t%s\n",
						status.InstantText(entry.Log.ScheduledTime, a.location),
						name,
						status.IntakeText(entry.Log, a.location),
					)
				}

				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&medication, "medication", "", "Only show this medication id")
	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many records, 0 for all")

	return cmd
}
