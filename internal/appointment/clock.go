package appointment

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var timeOfDayPattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):([0-5][0-9])$`)

// ParseTimeOfDay accepts H:MM or HH:MM (24h) and returns the zero-padded HH:MM form.
// Slot collisions are exact string matches, so every stored time goes through here.
func ParseTimeOfDay(s string) (string, error) {
	m := timeOfDayPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", invalid("time", "%q is not a valid HH:MM time", s)
	}
	h, _ := strconv.Atoi(m[1])
	return fmt.Sprintf("%02d:%s", h, m[2]), nil
}

// minutesOf converts a normalized HH:MM to minutes since midnight.
func minutesOf(hhmm string) (int, error) {
	norm, err := ParseTimeOfDay(hhmm)
	if err != nil {
		return 0, err
	}
	h, _ := strconv.Atoi(norm[:2])
	m, _ := strconv.Atoi(norm[3:])
	return h*60 + m, nil
}

func formatMinutes(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseDate parses YYYY-MM-DD into a midnight UTC date value.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, invalid("date", "%q is not a valid YYYY-MM-DD date", s)
	}
	return d, nil
}

// DateOnly returns midnight UTC of t's calendar date as seen in t's own location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func scheduledAt(date time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	minutes, err := minutesOf(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(date.Year(), date.Month(), date.Day(), minutes/60, minutes%60, 0, 0, loc), nil
}
