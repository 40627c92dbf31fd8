// Package dateparse turns relative and absolute expiry strings into a point
// in time.
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse parses input relative to the current time. See ParseFrom.
func Parse(input string) (time.Time, error) {
	return ParseFrom(input, time.Now())
}

// ParseFrom parses input relative to now.
//
// Supported formats:
//   - Go durations: "720h", "90m"
//   - Exact dates: "2026-03-01" (midnight UTC)
//   - Relative days, weeks, months: "+7d", "+2w", "+1m"
//   - Day names: "monday" (next occurrence)
//   - Keywords: "tomorrow", "next-week", "next-month"
//
// Relative dates resolve to midnight in now's location.
func ParseFrom(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return time.Time{}, fmt.Errorf("empty date input")
	}

	// "+1m" is a month, not a minute.
	if d, err := time.ParseDuration(input); err == nil && !strings.HasPrefix(input, "+") {
		if d <= 0 {
			return time.Time{}, fmt.Errorf("duration must be positive: %q", input)
		}
		return now.Add(d), nil
	}

	if t, err := time.Parse("2006-01-02", input); err == nil {
		return t, nil
	}

	today := midnight(now)
	switch input {
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "next-week":
		// Next Monday
		daysUntilMonday := (int(time.Monday) - int(now.Weekday()) + 7) % 7
		if daysUntilMonday == 0 {
			daysUntilMonday = 7
		}
		return today.AddDate(0, 0, daysUntilMonday), nil
	case "next-month":
		year, month, _ := now.Date()
		return time.Date(year, month+1, 1, 0, 0, 0, 0, now.Location()), nil
	}

	if strings.HasPrefix(input, "+") && len(input) >= 3 {
		suffix := input[len(input)-1]
		n, err := strconv.Atoi(input[1 : len(input)-1])
		if err == nil && n > 0 {
			switch suffix {
			case 'd':
				return today.AddDate(0, 0, n), nil
			case 'w':
				return today.AddDate(0, 0, n*7), nil
			case 'm':
				return today.AddDate(0, n, 0), nil
			default:
				return time.Time{}, fmt.Errorf("unknown relative unit %q in %q (use d, w, or m)", string(suffix), input)
			}
		}
	}

	dayMap := map[string]time.Weekday{
		"sunday":    time.Sunday,
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
	}
	if target, ok := dayMap[input]; ok {
		daysAhead := (int(target) - int(now.Weekday()) + 7) % 7
		if daysAhead == 0 {
			daysAhead = 7
		}
		return today.AddDate(0, 0, daysAhead), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized date format: %q", input)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
