// Package calendar answers which exchange sessions a stored series is missing.
package calendar

import (
	"time"

	"github.com/scmhub/calendar"

	"github.com/kjannette/finagg-backend/internal/models"
)

// Sessions wraps an exchange calendar. When the calendar cannot be loaded it
// falls back to treating every weekday as a session.
type Sessions struct {
	cal *calendar.Calendar
	loc *time.Location
}

// NYSE returns the New York Stock Exchange calendar.
func NYSE() *Sessions {
	return ForMIC("xnys")
}

func ForMIC(mic string) *Sessions {
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.UTC
		}
		return &Sessions{loc: loc}
	}
	return &Sessions{cal: cal, loc: cal.Loc}
}

// IsSession reports whether the exchange traded on the calendar date of day.
// Only the year, month and day of day are used.
func (s *Sessions) IsSession(day time.Time) bool {
	noon := time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, s.loc)
	if s.cal == nil {
		wd := noon.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return s.cal.IsBusinessDay(noon)
}

// Between lists every session date in [start, end] as UTC midnights.
func (s *Sessions) Between(start, end time.Time) []time.Time {
	var out []time.Time
	for day := truncate(start); !day.After(truncate(end)); day = day.AddDate(0, 0, 1) {
		if s.IsSession(day) {
			out = append(out, day)
		}
	}
	return out
}

// MissingSessions returns the sessions in [start, end] that have no point with
// a close. Rows present without a close count as missing too.
func (s *Sessions) MissingSessions(points []models.PricePoint, start, end time.Time) []time.Time {
	have := make(map[string]struct{}, len(points))
	for _, p := range points {
		if p.Close != nil {
			have[p.Day()] = struct{}{}
		}
	}
	missing := []time.Time{}
	for _, day := range s.Between(start, end) {
		if _, ok := have[day.Format(models.DayLayout)]; !ok {
			missing = append(missing, day)
		}
	}
	return missing
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
