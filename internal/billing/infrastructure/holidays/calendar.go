package holidays

import (
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/fr"
)

// Calendar answers public holiday lookups from a rickar/cal business calendar.
type Calendar struct {
	cal *cal.BusinessCalendar
}

// NewFrenchCalendar returns the French national public holidays.
func NewFrenchCalendar() *Calendar {
	c := cal.NewBusinessCalendar()
	c.AddHoliday(fr.Holidays...)
	return &Calendar{cal: c}
}

// IsHoliday reports whether day is a public holiday. Only actual dates
// count; observed substitutes do not.
func (c *Calendar) IsHoliday(day time.Time) bool {
	if c == nil || c.cal == nil {
		return false
	}
	actual, _, _ := c.cal.IsHoliday(day)
	return actual
}
