package limits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kjannette/finagg-backend/internal/aggregate"
	"github.com/kjannette/finagg-backend/internal/models"
)

var ErrRangeTooLarge = errors.New("range too large")

// RangeCounter abstracts the row-counting dependency so Guardian
// can be tested without a real database.
type RangeCounter interface {
	CountRange(ctx context.Context, company string, start, end time.Time) (int, error)
}

// Limits holds the query thresholds from config.
// A zero value for any field means that check is disabled.
type Limits struct {
	MaxRangeDays   int
	MaxRangePoints int
}

type Guardian struct {
	limits  Limits
	counter RangeCounter
}

func NewGuardian(limits Limits, counter RangeCounter) *Guardian {
	return &Guardian{limits: limits, counter: counter}
}

// PreQueryCheck validates a date range before any rows are loaded.
// Returns nil if the query is allowed, an error wrapping ErrRangeTooLarge if blocked,
// or one wrapping aggregate.ErrStorageRead if rows could not be counted.
func (g *Guardian) PreQueryCheck(ctx context.Context, company string, start, end time.Time) error {
	days := int(end.Sub(start).Hours()/24) + 1
	if g.limits.MaxRangeDays > 0 && days > g.limits.MaxRangeDays {
		return fmt.Errorf("%w: %s..%s spans %d days, max %d", ErrRangeTooLarge,
			start.Format(models.DayLayout), end.Format(models.DayLayout), days, g.limits.MaxRangeDays)
	}

	if g.limits.MaxRangePoints > 0 && g.counter != nil {
		count, err := g.counter.CountRange(ctx, company, start, end)
		if err != nil {
			return fmt.Errorf("%w: count rows for %s: %w", aggregate.ErrStorageRead, company, err)
		}
		if count > g.limits.MaxRangePoints {
			return fmt.Errorf("%w: %d rows for %s, max %d", ErrRangeTooLarge,
				count, company, g.limits.MaxRangePoints)
		}
	}

	return nil
}
