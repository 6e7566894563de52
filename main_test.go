package main

import (
	"bytes"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, input string, args ...string) string {
	t.Helper()

	out := &bytes.Buffer{}
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(out)
	cmd.SetErr(out)

	require.NoError(t, cmd.Execute(), out.String())

	return out.String()
}

func TestParseTimes(t *testing.T) {
	var warnings []string
	warn := func(format string, v ...interface{}) { warnings = append(warnings, format) }

	times, err := parseTimes("8:00, 8pm, noon, , 0830", warn)
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00", "20:00", "08:30"}, times)
	assert.Len(t, warnings, 1)

	_, err = parseTimes("8:00, 08:00 am", warn)
	assert.ErrorIs(t, err, errDuplicateTime)
}

func TestParseWeekdays(t *testing.T) {
	weekdays, err := parseWeekdays("mon, Wednesday,5, mon")
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, weekdays)

	_, err = parseWeekdays("funday")
	assert.Error(t, err)

	_, err = parseWeekdays("7")
	assert.Error(t, err)

	_, err = parseWeekdays("")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	now := time.Date(2024, 3, 9, 17, 0, 0, 0, time.UTC)

	day, err := parseDate("", now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), day)

	day, err = parseDate("2024-12-25", now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC), day)

	_, err = parseDate("12/25/2024", now, time.UTC)
	assert.Error(t, err)
}

func TestCLIWorkflow(t *testing.T) {
	t.Setenv("MEDITIME_BADGER_PATH", t.TempDir())
	t.Setenv("MEDITIME_TIMEZONE", "UTC")

	out := execute(t, "pat\ntoken-123\nphone\n", "user", "add")
	assert.Contains(t, out, "created user id")

	out = execute(t, "", "user", "get", "pat")
	assert.Contains(t, out, "devices=[phone]")

	out = execute(t, "pat\nAspirin\n100mg\n\n\n\n\n\n8:00, 8pm\n\n", "medication", "add")
	match := regexp.MustCompile(`created medication id ([0-9a-f-]{36})`).FindStringSubmatch(out)
	require.Len(t, match, 2, out)
	medicationID := match[1]

	out = execute(t, "", "medication", "list", "pat")
	assert.Contains(t, out, "8:00 AM, 8:00 PM")
	assert.Contains(t, out, "Daily")

	out = execute(t, "", "taken", medicationID, "8am")
	assert.Contains(t, out, "Aspirin 100mg at 8:00 AM: taken")

	out = execute(t, "", "today", "pat")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2, out)
	assert.Contains(t, lines[0], "8:00 AM")
	assert.Contains(t, lines[0], "taken")
	assert.Contains(t, lines[1], "8:00 PM")
	assert.NotContains(t, lines[1], "taken")

	out = execute(t, "", "history", "pat", "--medication", medicationID)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1, out)
	assert.Contains(t, lines[0], "Aspirin 100mg")
	assert.Contains(t, lines[0], "taken at")

	out = execute(t, "", "reschedule")
	assert.Contains(t, out, "rescheduled 1 medications")

	out = execute(t, "", "medication", "end", medicationID)
	assert.Contains(t, out, "ended medication")

	out = execute(t, "", "today", "pat")
	assert.Empty(t, strings.TrimSpace(out))

	out = execute(t, "", "history", "pat")
	assert.Contains(t, out, "taken at")
}
