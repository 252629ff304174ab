package billing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// ClockTime is a time of day with minute precision.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM".
func ParseClockTime(value string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, value)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

// MustClockTime parses value and panics on error. Intended for fixtures.
func MustClockTime(value string) ClockTime {
	c, err := ParseClockTime(value)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// MarshalText implements encoding.TextMarshaler.
func (c ClockTime) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ClockTime) UnmarshalText(text []byte) error {
	parsed, err := ParseClockTime(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c ClockTime) minutes() int { return c.Hour*60 + c.Minute }

// on anchors the clock time onto the calendar day of day.
func (c ClockTime) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, day.Location())
}

// SurchargeWindow increases the price between Start and End each day.
// A window with Start after End spans midnight.
type SurchargeWindow struct {
	Name       string    `json:"name"`
	Start      ClockTime `json:"start"`
	End        ClockTime `json:"end"`
	Percentage float64   `json:"percentage"`
}

func (w SurchargeWindow) spansMidnight() bool { return w.End.minutes() <= w.Start.minutes() }

// minuteRanges returns the window as half-open minute ranges within one day.
func (w SurchargeWindow) minuteRanges() [][2]int {
	start, end := w.Start.minutes(), w.End.minutes()
	if !w.spansMidnight() {
		return [][2]int{{start, end}}
	}
	ranges := [][2]int{{start, minutesPerDay}}
	if end > 0 {
		ranges = append(ranges, [2]int{0, end})
	}
	return ranges
}

// Surcharge is a company's set of price increments. Day percentages of zero
// are disabled.
type Surcharge struct {
	ID                    string            `json:"id"`
	CompanyID             string            `json:"company_id"`
	Name                  string            `json:"name"`
	Saturday              float64           `json:"saturday,omitempty"`
	Sunday                float64           `json:"sunday,omitempty"`
	PublicHoliday         float64           `json:"public_holiday,omitempty"`
	TwentyFifthOfDecember float64           `json:"twenty_fifth_of_december,omitempty"`
	FirstOfMay            float64           `json:"first_of_may,omitempty"`
	FirstOfJanuary        float64           `json:"first_of_january,omitempty"`
	Windows               []SurchargeWindow `json:"windows,omitempty"`
}

// Surcharge names attached to bill lines.
const (
	SurchargeTwentyFifthOfDecember = "twenty_fifth_of_december"
	SurchargeFirstOfMay            = "first_of_may"
	SurchargeFirstOfJanuary        = "first_of_january"
	SurchargePublicHoliday         = "public_holiday"
	SurchargeSaturday              = "saturday"
	SurchargeSunday                = "sunday"
)

// Validate rejects negative percentages, empty windows and windows that
// overlap each other.
func (s Surcharge) Validate() error {
	for _, pct := range []float64{s.Saturday, s.Sunday, s.PublicHoliday, s.TwentyFifthOfDecember, s.FirstOfMay, s.FirstOfJanuary} {
		if pct < 0 {
			return ErrInvalidPercentage
		}
	}
	var ranges [][3]int
	for i, window := range s.Windows {
		if window.Percentage < 0 {
			return fmt.Errorf("%w: window %q", ErrInvalidPercentage, window.Name)
		}
		if window.Start == window.End {
			return fmt.Errorf("%w: window %q", ErrEmptySurchargeWindow, window.Name)
		}
		for _, r := range window.minuteRanges() {
			ranges = append(ranges, [3]int{r[0], r[1], i})
		}
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i][0] < ranges[j][0] })
	for i := 1; i < len(ranges); i++ {
		if ranges[i][0] < ranges[i-1][1] {
			return fmt.Errorf("%w: %q and %q", ErrOverlappingSurchargeWindows,
				s.Windows[ranges[i-1][2]].Name, s.Windows[ranges[i][2]].Name)
		}
	}
	return nil
}

// daySurcharge returns the whole-day increment applying to day, if any.
// Only the first matching rule applies.
func (s Surcharge) daySurcharge(day time.Time, calendar HolidayCalendar) (string, float64) {
	switch {
	case s.TwentyFifthOfDecember > 0 && day.Month() == time.December && day.Day() == 25:
		return SurchargeTwentyFifthOfDecember, s.TwentyFifthOfDecember
	case s.FirstOfMay > 0 && day.Month() == time.May && day.Day() == 1:
		return SurchargeFirstOfMay, s.FirstOfMay
	case s.FirstOfJanuary > 0 && day.Month() == time.January && day.Day() == 1:
		return SurchargeFirstOfJanuary, s.FirstOfJanuary
	case s.PublicHoliday > 0 && calendar.IsHoliday(day):
		return SurchargePublicHoliday, s.PublicHoliday
	case s.Saturday > 0 && day.Weekday() == time.Saturday:
		return SurchargeSaturday, s.Saturday
	case s.Sunday > 0 && day.Weekday() == time.Sunday:
		return SurchargeSunday, s.Sunday
	}
	return "", 0
}

// AppliedSurcharge describes a surcharge retained on a bill line.
type AppliedSurcharge struct {
	Name       string     `json:"name"`
	Percentage float64    `json:"percentage"`
	StartHour  *time.Time `json:"start_hour,omitempty"`
	EndHour    *time.Time `json:"end_hour,omitempty"`
	Hours      float64    `json:"hours"`
}

type surchargeSpan struct {
	window     int
	name       string
	percentage float64
	start      time.Time
	end        time.Time
}

// windowSpans anchors every window on each calendar day touched by the event
// (plus the day before, for windows spanning midnight) and clips it to the
// event interval.
func (s Surcharge) windowSpans(event Event) []surchargeSpan {
	var spans []surchargeSpan
	first := startOfDay(event.StartDate).AddDate(0, 0, -1)
	last := startOfDay(event.EndDate)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		for i, window := range s.Windows {
			if window.Percentage == 0 || window.Start == window.End {
				continue
			}
			start := window.Start.on(day)
			end := window.End.on(day)
			if window.spansMidnight() {
				end = window.End.on(day.AddDate(0, 0, 1))
			}
			if start.Before(event.StartDate) {
				start = event.StartDate
			}
			if end.After(event.EndDate) {
				end = event.EndDate
			}
			if !end.After(start) {
				continue
			}
			spans = append(spans, surchargeSpan{window: i, name: window.Name, percentage: window.Percentage, start: start, end: end})
		}
	}
	return spans
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SurchargedPrice prices an event whose undiscounted price is basePrice.
// Every hour covered by a window is charged at unit*(1+pct/100), the rest at
// the unit price. A whole-day surcharge covers the full event and replaces
// the clock windows. When windows overlap each other, the overlapped time is
// charged once at the highest percentage.
func SurchargedPrice(event Event, surcharge *Surcharge, basePrice float64, calendar HolidayCalendar) (float64, []AppliedSurcharge) {
	if surcharge == nil {
		return basePrice, nil
	}
	hours := event.Hours()
	if hours <= 0 {
		return basePrice, nil
	}
	if name, pct := surcharge.daySurcharge(event.StartDate, holidays(calendar)); pct > 0 {
		return basePrice * (1 + pct/100), []AppliedSurcharge{{Name: name, Percentage: pct, Hours: hours}}
	}

	spans := surcharge.windowSpans(event)
	if len(spans) == 0 {
		return basePrice, nil
	}
	unitPrice := basePrice / hours

	bounds := []time.Time{event.StartDate, event.EndDate}
	for _, span := range spans {
		bounds = append(bounds, span.start, span.end)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i].Before(bounds[j]) })

	covered := make([]float64, len(spans))
	firstStart := make([]time.Time, len(spans))
	lastEnd := make([]time.Time, len(spans))
	var price float64
	for i := 1; i < len(bounds); i++ {
		from, to := bounds[i-1], bounds[i]
		if !to.After(from) {
			continue
		}
		segment := to.Sub(from).Hours()
		best := -1
		for j, span := range spans {
			if span.start.After(from) || span.end.Before(to) {
				continue
			}
			if best == -1 || span.percentage > spans[best].percentage {
				best = j
			}
		}
		if best == -1 {
			price += segment * unitPrice
			continue
		}
		price += segment * unitPrice * (1 + spans[best].percentage/100)
		if covered[best] == 0 {
			firstStart[best] = from
		}
		covered[best] += segment
		lastEnd[best] = to
	}

	var applied []AppliedSurcharge
	for i, span := range spans {
		if covered[i] == 0 {
			continue
		}
		start, end := firstStart[i], lastEnd[i]
		applied = append(applied, AppliedSurcharge{
			Name:       span.name,
			Percentage: span.percentage,
			StartHour:  &start,
			EndHour:    &end,
			Hours:      covered[i],
		})
	}
	return price, applied
}
