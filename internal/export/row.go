package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kjannette/finagg-backend/internal/models"
)

// Row is one exported date. Indicator columns are nil until their window has
// filled; Close is nil when the stored row had no close.
type Row struct {
	Date  string   `json:"date" parquet:"date"`
	Close *float64 `json:"close" parquet:"close,optional"`
	SMA   *float64 `json:"sma" parquet:"sma,optional"`
	EMA   *float64 `json:"ema" parquet:"ema,optional"`
}

// SeriesSource is implemented by aggregate.Engine.
type SeriesSource interface {
	PriceSeries(ctx context.Context, company string, start, end time.Time) ([]models.PricePoint, error)
	SMA(ctx context.Context, company string, start, end time.Time, window int) ([]models.MovingAveragePoint, error)
	EMA(ctx context.Context, company string, start, end time.Time, smoothing float64) ([]models.MovingAveragePoint, error)
}

type Request struct {
	Company   string
	Start     time.Time
	End       time.Time
	Window    int
	Smoothing float64
}

// Build queries the price series and both indicators for one company and
// joins them by date.
func Build(ctx context.Context, src SeriesSource, req Request) ([]Row, error) {
	prices, err := src.PriceSeries(ctx, req.Company, req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("prices %s: %w", req.Company, err)
	}
	sma, err := src.SMA(ctx, req.Company, req.Start, req.End, req.Window)
	if err != nil {
		return nil, fmt.Errorf("sma %s: %w", req.Company, err)
	}
	ema, err := src.EMA(ctx, req.Company, req.Start, req.End, req.Smoothing)
	if err != nil {
		return nil, fmt.Errorf("ema %s: %w", req.Company, err)
	}
	return Join(prices, sma, ema), nil
}

// Join lines up indicator values with the price rows they were computed at.
func Join(prices []models.PricePoint, sma, ema []models.MovingAveragePoint) []Row {
	rows := make([]Row, 0, len(prices))
	index := make(map[string]int, len(prices))
	for _, p := range prices {
		day := p.Day()
		if i, ok := index[day]; ok {
			rows[i].Close = p.Close
			continue
		}
		index[day] = len(rows)
		rows = append(rows, Row{Date: day, Close: p.Close})
	}
	for _, m := range sma {
		if i, ok := index[m.Date.Format(models.DayLayout)]; ok {
			v := m.Value
			rows[i].SMA = &v
		}
	}
	for _, m := range ema {
		if i, ok := index[m.Date.Format(models.DayLayout)]; ok {
			v := m.Value
			rows[i].EMA = &v
		}
	}
	return rows
}

// FileName returns a filesystem-safe name for company's export.
func FileName(company, ext string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, company)
	return safe + "." + ext
}

// FileNames maps each company to its FileName and fails when two companies
// would be written to the same file. Names are compared case-insensitively
// since some filesystems are.
func FileNames(companies []string, ext string) (map[string]string, error) {
	names := make(map[string]string, len(companies))
	owner := make(map[string]string, len(companies))
	for _, company := range companies {
		if _, ok := names[company]; ok {
			continue
		}
		name := FileName(company, ext)
		fold := strings.ToLower(name)
		if prev, ok := owner[fold]; ok {
			return nil, fmt.Errorf("companies %q and %q both export to %s", prev, company, name)
		}
		owner[fold] = company
		names[company] = name
	}
	return names, nil
}
