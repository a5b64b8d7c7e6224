package transform

import (
	"fmt"
	"strconv"

	"github.com/ekaty/ekaty-agent/internal/listing"
	"github.com/ekaty/ekaty-agent/internal/places"
)

// AllDay is rendered for a period that opens and never closes.
const AllDay = "24 hours"

var dayNames = [...]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// BuildHours converts opening periods into per-day windows. Absent data
// yields nil. A day index outside 0..6 is an error.
func BuildHours(oh *places.OpeningHours) (listing.Hours, error) {
	if oh == nil || len(oh.Periods) == 0 {
		return nil, nil
	}

	hours := make(listing.Hours, len(oh.Periods))
	for _, p := range oh.Periods {
		if p.Open == nil || p.Open.Day == nil || p.Open.Time == "" {
			continue
		}
		day := *p.Open.Day
		if day < 0 || day >= len(dayNames) {
			return nil, fmt.Errorf("opening period day %d out of range", day)
		}

		if p.Close != nil && p.Close.Time != "" {
			hours[dayNames[day]] = listing.DayHours{
				Open:  FormatTime(p.Open.Time),
				Close: FormatTime(p.Close.Time),
			}
		} else {
			hours[dayNames[day]] = listing.DayHours{Open: AllDay}
		}
	}
	if len(hours) == 0 {
		return nil, nil
	}
	return hours, nil
}

// FormatTime turns a 24-hour "HHMM" string into "H:MM AM/PM". Anything that
// is not four digits is returned unchanged.
func FormatTime(s string) string {
	if len(s) != 4 {
		return s
	}
	hour, err := strconv.Atoi(s[:2])
	if err != nil {
		return s
	}
	if _, err := strconv.Atoi(s[2:]); err != nil {
		return s
	}

	ampm := "AM"
	if hour >= 12 {
		ampm = "PM"
	}
	hour %= 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%d:%s %s", hour, s[2:], ampm)
}
