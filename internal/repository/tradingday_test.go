package repository

import (
	"testing"
	"time"
)

func TestTradingDate(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"utc midnight unchanged", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), "2024-03-15"},
		{"late utc stays same day", time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC), "2024-03-15"},
		{"local evening keeps local date", time.Date(2024, 3, 15, 22, 0, 0, 0, ny), "2024-03-15"},
		{"leap day", time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC), "2024-02-29"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TradingDate(tt.in)
			if got.Format("2006-01-02") != tt.want {
				t.Fatalf("TradingDate(%v) = %s, want %s", tt.in, got.Format("2006-01-02"), tt.want)
			}
			if got.Location() != time.UTC || got.Hour() != 0 {
				t.Fatalf("expected UTC midnight, got %v", got)
			}
		})
	}
}

type fakeRow struct {
	vals []any
}

func (r fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.vals[i].(string)
		case *time.Time:
			*p = r.vals[i].(time.Time)
		case **float64:
			if r.vals[i] == nil {
				*p = nil
			} else {
				v := r.vals[i].(float64)
				*p = &v
			}
		}
	}
	return nil
}

func TestScanPrice_NullsStayNil(t *testing.T) {
	row := fakeRow{vals: []any{"AAPL", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), nil, 2.0, nil, 185.64, nil}}

	p, err := scanPrice(row)
	if err != nil {
		t.Fatalf("scanPrice: %v", err)
	}
	if p.Company != "AAPL" || p.Day() != "2024-01-02" {
		t.Fatalf("unexpected point: %+v", p)
	}
	if p.Open != nil || p.Low != nil || p.Volume != nil {
		t.Fatal("NULL columns should scan as nil")
	}
	if p.High == nil || *p.High != 2.0 || p.Close == nil || *p.Close != 185.64 {
		t.Fatalf("present columns lost: %+v", p)
	}
}
