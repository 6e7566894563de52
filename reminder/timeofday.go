package reminder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidTimeOfDay occurs when time text carries no usable digits
	ErrInvalidTimeOfDay = errors.New("invalid time of day")
)

// TimeOfDay is a wall clock hour and minute in 24-hour form
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay canonicalizes free-form time text such as "8:00", "0830",
// "8", "8:30 pm" or "12am". It never panics; text without digits yields
// ErrInvalidTimeOfDay.
func ParseTimeOfDay(text string) (TimeOfDay, error) {
	raw := strings.ToLower(strings.TrimSpace(text))
	if raw == "" {
		return TimeOfDay{}, fmt.Errorf("empty time text: %w", ErrInvalidTimeOfDay)
	}

	isPM := strings.Contains(raw, "pm")
	isAM := strings.Contains(raw, "am")

	digits := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == ':' {
			return r
		}

		return -1
	}, raw)

	var hour, minute int
	var err error

	parts := strings.Split(digits, ":")
	switch {
	case len(parts) >= 2:
		hour, err = strconv.Atoi(parts[0])
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("unable to read hour from %q: %w", text, ErrInvalidTimeOfDay)
		}

		minuteText := parts[1]
		if len(minuteText) > 2 {
			minuteText = minuteText[:2]
		}

		minute, err = strconv.Atoi(minuteText)
		if err != nil {
			minute = 0
		}

	case len(digits) >= 3:
		hour, err = strconv.Atoi(digits[:len(digits)-2])
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("unable to read hour from %q: %w", text, ErrInvalidTimeOfDay)
		}

		minute, err = strconv.Atoi(digits[len(digits)-2:])
		if err != nil {
			minute = 0
		}

	default:
		hour, err = strconv.Atoi(digits)
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("unable to read hour from %q: %w", text, ErrInvalidTimeOfDay)
		}
	}

	if isPM && hour < 12 {
		hour += 12
	}

	if isAM && hour == 12 {
		hour = 0
	}

	return TimeOfDay{
		Hour:   clamp(hour, 0, 23),
		Minute: clamp(minute, 0, 59),
	}, nil
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}

	if value > high {
		return high
	}

	return value
}

// String is the canonical storage form, "HH:mm"
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Display renders the time as "8:05 AM"
func (t TimeOfDay) Display() string {
	hour := t.Hour % 12
	if hour == 0 {
		hour = 12
	}

	suffix := "AM"
	if t.Hour >= 12 {
		suffix = "PM"
	}

	return fmt.Sprintf("%d:%02d %s", hour, t.Minute, suffix)
}

// On returns the instant of this time of day on day's calendar date, in day's location
func (t TimeOfDay) On(day time.Time) time.Time {
	year, month, date := day.Date()
	return time.Date(year, month, date, t.Hour, t.Minute, 0, 0, day.Location())
}

// CanonicalTimeOfDay returns the "HH:mm" form of text
func CanonicalTimeOfDay(text string) (string, error) {
	t, err := ParseTimeOfDay(text)
	if err != nil {
		return "", err
	}

	return t.String(), nil
}

// DisplayTimeOfDay renders text in 12-hour form, or returns it untouched when it can't be parsed
func DisplayTimeOfDay(text string) string {
	t, err := ParseTimeOfDay(text)
	if err != nil {
		return text
	}

	return t.Display()
}
