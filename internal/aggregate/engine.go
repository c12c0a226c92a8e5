package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kjannette/finagg-backend/internal/models"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrStorageRead      = errors.New("storage read failed")
)

// RangeReader is the read side of the price store. Points come back ordered by
// date ascending.
type RangeReader interface {
	QueryRange(ctx context.Context, company string, start, end time.Time) ([]models.PricePoint, error)
}

// RangeGuard rejects ranges too large to aggregate in memory.
// Implemented by limits.Guardian.
type RangeGuard interface {
	PreQueryCheck(ctx context.Context, company string, start, end time.Time) error
}

// QueryObserver is told how long each computed query took. Implemented by
// metrics.Collector.
type QueryObserver interface {
	ObserveQuery(kind string, d time.Duration, err error)
}

type Engine struct {
	store RangeReader
	guard RangeGuard
	obs   QueryObserver
}

type Option func(*Engine)

func WithGuard(g RangeGuard) Option { return func(e *Engine) { e.guard = g } }

func WithObserver(o QueryObserver) Option { return func(e *Engine) { e.obs = o } }

func NewEngine(store RangeReader, opts ...Option) *Engine {
	e := &Engine{store: store}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SmoothingFromPeriod converts an EMA period N into the factor 2/(N+1).
func SmoothingFromPeriod(period int) (float64, error) {
	if period < 1 {
		return 0, fmt.Errorf("%w: period must be >= 1, got %d", ErrInvalidParameter, period)
	}
	return 2 / float64(period+1), nil
}

// PriceSeries returns the stored points for company within [start, end].
func (e *Engine) PriceSeries(ctx context.Context, company string, start, end time.Time) (_ []models.PricePoint, err error) {
	defer e.observe("prices", time.Now(), &err)

	if err := validateRange(company, start, end); err != nil {
		return nil, err
	}
	points, err := e.fetch(ctx, company, start, end)
	if err != nil {
		return nil, err
	}
	if points == nil {
		points = []models.PricePoint{}
	}
	return points, nil
}

// SMA computes the simple moving average of close over a trailing window of
// present rows. Dates with fewer than window prior rows are not emitted.
func (e *Engine) SMA(ctx context.Context, company string, start, end time.Time, window int) (_ []models.MovingAveragePoint, err error) {
	defer e.observe("sma", time.Now(), &err)

	if window < 1 {
		return nil, fmt.Errorf("%w: window must be >= 1, got %d", ErrInvalidParameter, window)
	}
	if err := validateRange(company, start, end); err != nil {
		return nil, err
	}
	points, err := e.fetch(ctx, company, start, end)
	if err != nil {
		return nil, err
	}
	return SimpleMovingAverage(points, window), nil
}

// EMA computes the exponential moving average of close with the given
// smoothing factor, seeded with the first close in range.
func (e *Engine) EMA(ctx context.Context, company string, start, end time.Time, smoothing float64) (_ []models.MovingAveragePoint, err error) {
	defer e.observe("ema", time.Now(), &err)

	// Written as a negated range check so NaN is rejected too.
	if !(smoothing > 0 && smoothing <= 1) {
		return nil, fmt.Errorf("%w: smoothing must be in (0, 1], got %v", ErrInvalidParameter, smoothing)
	}
	if err := validateRange(company, start, end); err != nil {
		return nil, err
	}
	points, err := e.fetch(ctx, company, start, end)
	if err != nil {
		return nil, err
	}
	return ExponentialMovingAverage(points, smoothing), nil
}

func (e *Engine) fetch(ctx context.Context, company string, start, end time.Time) ([]models.PricePoint, error) {
	if e.guard != nil {
		if err := e.guard.PreQueryCheck(ctx, company, start, end); err != nil {
			return nil, err
		}
	}
	points, err := e.store.QueryRange(ctx, company, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s..%s: %v", ErrStorageRead,
			company, start.Format(models.DayLayout), end.Format(models.DayLayout), err)
	}
	return points, nil
}

func (e *Engine) observe(kind string, began time.Time, err *error) {
	if e.obs != nil {
		e.obs.ObserveQuery(kind, time.Since(began), *err)
	}
}

func validateRange(company string, start, end time.Time) error {
	if company == "" {
		return fmt.Errorf("%w: company is required", ErrInvalidParameter)
	}
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidParameter)
	}
	if start.After(end) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidParameter,
			start.Format(models.DayLayout), end.Format(models.DayLayout))
	}
	return nil
}
