package billing

import "time"

// HolidayCalendar answers whether a day is a public holiday.
type HolidayCalendar interface {
	IsHoliday(day time.Time) bool
}

// NoHolidays is a calendar without public holidays.
type NoHolidays struct{}

// IsHoliday always returns false.
func (NoHolidays) IsHoliday(time.Time) bool { return false }

// HolidaySet is a fixed list of holidays keyed by calendar date.
type HolidaySet map[string]struct{}

// NewHolidaySet builds a set from the given days.
func NewHolidaySet(days ...time.Time) HolidaySet {
	set := make(HolidaySet, len(days))
	for _, day := range days {
		set[dayKey(day)] = struct{}{}
	}
	return set
}

// IsHoliday reports whether day's calendar date is in the set.
func (s HolidaySet) IsHoliday(day time.Time) bool {
	_, ok := s[dayKey(day)]
	return ok
}

func dayKey(day time.Time) string { return day.Format("2006-01-02") }

func holidays(calendar HolidayCalendar) HolidayCalendar {
	if calendar == nil {
		return NoHolidays{}
	}
	return calendar
}
