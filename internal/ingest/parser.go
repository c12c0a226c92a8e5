package ingest

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kjannette/finagg-backend/internal/models"
)

// MinFields is the number of leading columns every data line must carry:
// company, date, close, volume, open, high, low.
const MinFields = 7

type SkipReason string

const (
	ReasonTooFewFields SkipReason = "too few fields"
	ReasonEmptyCompany SkipReason = "empty company"
	ReasonInvalidDate  SkipReason = "invalid date"
	ReasonLineTooLong  SkipReason = "line too long"
)

// dateLayouts are tried in order; the first that parses wins.
// Single-digit layouts also accept zero-padded months and days.
var dateLayouts = []string{
	"1/2/2006", // MM/DD/YYYY
	"1-2-2006", // MM-DD-YYYY
}

// ParseResult is the outcome of one line: either Point is set, or Skip is
// non-empty. Missing lists numeric columns stored as missing on a kept point.
type ParseResult struct {
	Point   *models.PricePoint
	Skip    SkipReason
	Missing []string
}

func (r ParseResult) OK() bool {
	return r.Point != nil
}

// ParseLine turns one comma-separated data line into a price point.
// It never fails hard: bad rows come back as a skip, bad numbers as nil fields.
func ParseLine(line string) ParseResult {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), ",")
	if len(fields) < MinFields {
		return ParseResult{Skip: ReasonTooFewFields}
	}

	company := strings.TrimSpace(fields[0])
	if company == "" {
		return ParseResult{Skip: ReasonEmptyCompany}
	}

	date, ok := parseDate(fields[1])
	if !ok {
		return ParseResult{Skip: ReasonInvalidDate}
	}

	p := &models.PricePoint{Company: company, Date: date}
	var missing []string
	for _, col := range []struct {
		name string
		raw  string
		dst  **float64
	}{
		{"close", fields[2], &p.Close},
		{"volume", fields[3], &p.Volume},
		{"open", fields[4], &p.Open},
		{"high", fields[5], &p.High},
		{"low", fields[6], &p.Low},
	} {
		v, ok := parseDecimal(col.raw)
		if !ok {
			missing = append(missing, col.name)
			continue
		}
		*col.dst = &v
	}

	return ParseResult{Point: p, Missing: missing}
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func parseDecimal(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSpace(strings.TrimPrefix(s, "$"))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
