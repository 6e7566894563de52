package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"git.0xdad.com/tblyler/meditime/db"
	"git.0xdad.com/tblyler/meditime/reminder"
	"git.0xdad.com/tblyler/meditime/status"
)

const dateLayout = "2006-01-02"

var errDuplicateTime = errors.New("duplicate time of day")

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

func newMedicationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "medication",
		Aliases: []string{"med"},
		Short:   "Manage medication schedules",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add",
		Short: "Add a medication schedule and plan its reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				return addMedication(cmd, a)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list <username>",
		Short: "List a patient's medication schedules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				user, err := a.user(args[0])
				if err != nil {
					return err
				}

				medications, err := a.badger.ListMedicationsForUser(user)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for _, medication := range medications {
					fmt.Fprintf(out, "%s\t%s %s\t%s\t%s\t%s\n",
						medication.ID,
						medication.Name,
						medication.Dosage,
						status.FrequencyText(medication),
						status.TimesText(medication),
						status.DateRangeText(medication),
					)
				}

				return nil
			})
		},
	})

	var purgeLog bool
	endCmd := &cobra.Command{
		Use:   "end <medication-id>",
		Short: "End a medication schedule as of yesterday and cancel its reminders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid medication id %q: %w", args[0], err)
			}

			return withApp(func(a *app) error {
				ctx := cmd.Context()

				medication, err := a.badger.EndMedication(ctx, id, time.Now().In(a.location))
				if err != nil {
					return err
				}

				if err := a.planner.CancelMedication(ctx, medication); err != nil {
					return err
				}

				if purgeLog {
					if err := a.intakes.DeleteIntakesForMedication(ctx, id); err != nil {
						return err
					}
				}

				fmt.Fprintln(cmd.OutOrStdout(), "ended medication", medication.ID, status.DateRangeText(medication))

				return nil
			})
		},
	}
	endCmd.Flags().BoolVar(&purgeLog, "purge-log", false, "Also delete the medication's intake log")
	cmd.AddCommand(endCmd)

	return cmd
}

func addMedication(cmd *cobra.Command, a *app) error {
	p := newPrompter(cmd)

	username, err := p.require("username")
	if err != nil {
		return err
	}

	user, err := a.user(username)
	if err != nil {
		return err
	}

	name, err := p.require("name")
	if err != nil {
		return err
	}

	dosage, err := p.require("dosage")
	if err != nil {
		return err
	}

	stomachCondition := p.ask("stomach condition (empty, before food, after food)")
	notes := p.ask("notes")

	now := time.Now().In(a.location)

	startDate, err := parseDate(p.ask("start date YYYY-MM-DD [today]"), now, a.location)
	if err != nil {
		return err
	}

	var endDate *time.Time
	if text := p.ask("end date YYYY-MM-DD [none]"); text != "" {
		end, err := parseDate(text, now, a.location)
		if err != nil {
			return err
		}

		if end.Before(startDate) {
			return fmt.Errorf("end date %s is before start date %s", end.Format(dateLayout), startDate.Format(dateLayout))
		}

		endDate = &end
	}

	frequency := db.FrequencyType(strings.ToLower(p.ask("frequency (daily, hourly, selected_days) [daily]")))

	var frequencyValue uint64
	var weekdays []time.Weekday
	switch frequency {
	case "":
		frequency = db.FrequencyDaily
	case db.FrequencyDaily:
	case db.FrequencyHourly:
		frequencyValue, err = strconv.ParseUint(p.ask("every how many hours"), 10, 64)
		if frequencyValue == 0 || err != nil {
			return fmt.Errorf("failed to get hourly frequency value from STDIN prompt: %v", err)
		}
	case db.FrequencySelectedDays:
		weekdays, err = parseWeekdays(p.ask("weekdays (e.g. mon,wed,fri)"))
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported frequency %q", frequency)
	}

	times, err := parseTimes(p.ask("times of day (e.g. 8:00, 8pm)"), func(format string, v ...interface{}) {
		a.log.Warn().Msgf(format, v...)
	})
	if err != nil {
		return err
	}

	if len(times) == 0 {
		return errors.New("at least one valid time of day is required")
	}

	device := p.ask("pushover device name [all]")
	devices := []string{}
	if device != "" {
		if _, ok := user.PushoverDeviceTokens[device]; !ok {
			return fmt.Errorf("the '%s' pushover device token doesn't exist for user %s", device, user.Name)
		}

		devices = append(devices, device)
	}

	medication := &db.Medication{
		IDUser:                  user.ID,
		ID:                      uuid.New(),
		Name:                    name,
		Dosage:                  dosage,
		StomachCondition:        stomachCondition,
		Notes:                   notes,
		StartDate:               startDate,
		EndDate:                 endDate,
		FrequencyType:           frequency,
		FrequencyValue:          uint(frequencyValue),
		SelectedWeekdays:        weekdays,
		IntervalPushoverDevices: devices,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	for _, timeOfDay := range times {
		medication.Times = append(medication.Times, db.MedicationTime{
			ID:           uuid.New(),
			MedicationID: medication.ID,
			TimeOfDay:    timeOfDay,
		})
	}

	if err := a.badger.AddMedication(medication); err != nil {
		return err
	}

	if err := a.planner.ScheduleMedication(cmd.Context(), medication); err != nil {
		return fmt.Errorf("medication %s saved but planning failed: %w", medication.ID, err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "created medication id", medication.ID, status.TimesText(medication))

	return nil
}

// parseDate reads a YYYY-MM-DD day as midnight in loc, empty meaning today
func parseDate(text string, now time.Time, loc *time.Location) (time.Time, error) {
	if text == "" {
		return reminder.StartOfDay(now.In(loc)), nil
	}

	day, err := time.ParseInLocation(dateLayout, text, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", text, err)
	}

	return day, nil
}

// parseTimes canonicalizes comma separated times of day. Unparseable entries
// are reported to warn and skipped; a repeated time is an error.
func parseTimes(text string, warn func(format string, v ...interface{})) ([]string, error) {
	seen := map[string]bool{}
	times := []string{}

	for _, field := range strings.Split(text, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		canonical, err := reminder.CanonicalTimeOfDay(field)
		if err != nil {
			warn("skipping time of day %q: %v", field, err)
			continue
		}

		if seen[canonical] {
			return nil, fmt.Errorf("%s: %w", canonical, errDuplicateTime)
		}

		seen[canonical] = true
		times = append(times, canonical)
	}

	return times, nil
}

// parseWeekdays accepts three letter names or 0-6 with 0 being Sunday
func parseWeekdays(text string) ([]time.Weekday, error) {
	seen := map[time.Weekday]bool{}
	weekdays := []time.Weekday{}

	for _, field := range strings.Split(text, ",") {
		field = strings.ToLower(strings.TrimSpace(field))
		if field == "" {
			continue
		}

		var day time.Weekday
		if n, err := strconv.Atoi(field); err == nil {
			if n < 0 || n > 6 {
				return nil, fmt.Errorf("weekday %d out of range 0-6", n)
			}

			day = time.Weekday(n)
		} else {
			if len(field) > 3 {
				field = field[:3]
			}

			var ok bool
			if day, ok = weekdayNames[field]; !ok {
				return nil, fmt.Errorf("unknown weekday %q", field)
			}
		}

		if !seen[day] {
			seen[day] = true
			weekdays = append(weekdays, day)
		}
	}

	if len(weekdays) == 0 {
		return nil, errors.New("at least one weekday is required")
	}

	return weekdays, nil
}
