package models

import "time"

// DayLayout is the wire format for calendar dates (query params, JSON, exports).
const DayLayout = "2006-01-02"

// PricePoint is one company's trading day. Nil numeric fields were absent or
// unparseable in the source and must not be treated as zero.
type PricePoint struct {
	Company string    `json:"company"`
	Date    time.Time `json:"date"`
	Open    *float64  `json:"open"`
	High    *float64  `json:"high"`
	Low     *float64  `json:"low"`
	Close   *float64  `json:"close"`
	Volume  *float64  `json:"volume"`
}

// Day returns the point's date as YYYY-MM-DD.
func (p PricePoint) Day() string {
	return p.Date.Format(DayLayout)
}

type MovingAveragePoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}
