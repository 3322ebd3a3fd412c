// Package schedule holds the clinic's slot catalog and calendar rules.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var (
	ErrInvalidDate = errors.New("date must be a valid YYYY-MM-DD calendar date")
	ErrInvalidTime = errors.New("time must be one of the clinic slots in HH:mm")
	ErrWeekend     = errors.New("appointments are not available on weekends")
)

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

// dailySlots is the ordered set of bookable start times for any weekday.
var dailySlots = []string{
	"09:00", "10:00", "11:00", "12:00", "13:00",
	"14:00", "15:00", "16:00", "17:00",
}

// Slots returns a copy of the daily catalog in order.
func Slots() []string {
	out := make([]string, len(dailySlots))
	copy(out, dailySlots)
	return out
}

// ParseDate parses a strict YYYY-MM-DD date into a UTC midnight.
func ParseDate(s string) (time.Time, error) {
	if !datePattern.MatchString(s) {
		return time.Time{}, ErrInvalidDate
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

// ValidTime reports whether s is HH:mm and part of the catalog.
func ValidTime(s string) error {
	if !timePattern.MatchString(s) {
		return ErrInvalidTime
	}
	for _, slot := range dailySlots {
		if slot == s {
			return nil
		}
	}
	return ErrInvalidTime
}

func IsWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// SlotsFor returns the catalog for the given date, or nothing on weekends.
func SlotsFor(d time.Time) []string {
	if IsWeekend(d) {
		return []string{}
	}
	return Slots()
}

// Instant returns the start of the (date, time) slot in loc.
func Instant(date, hm string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	if !timePattern.MatchString(hm) {
		return time.Time{}, ErrInvalidTime
	}
	t, err := time.Parse(TimeLayout, hm)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidTime, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}
