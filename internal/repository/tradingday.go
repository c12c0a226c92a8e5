package repository

import "time"

// TradingDate returns the calendar date of t as midnight UTC, the form every
// trading_date is written and compared in.
func TradingDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
