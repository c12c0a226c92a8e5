package aggregate

import (
	"sort"
	"time"

	"github.com/kjannette/finagg-backend/internal/models"
)

type term struct {
	date  time.Time
	close float64
}

// closeSeries reduces stored points to the terms a moving average runs over.
// Rows without a close are dropped, not zero-filled. Rows are ordered by date
// and a repeated date keeps its last row, so the output dates are strictly
// increasing.
func closeSeries(points []models.PricePoint) []term {
	terms := make([]term, 0, len(points))
	for _, p := range points {
		if p.Close == nil {
			continue
		}
		terms = append(terms, term{date: p.Date, close: *p.Close})
	}

	if !sort.SliceIsSorted(terms, func(i, j int) bool { return terms[i].date.Before(terms[j].date) }) {
		sort.SliceStable(terms, func(i, j int) bool { return terms[i].date.Before(terms[j].date) })
	}

	out := terms[:0]
	for _, t := range terms {
		if n := len(out); n > 0 && out[n-1].date.Equal(t.date) {
			out[n-1] = t
			continue
		}
		out = append(out, t)
	}
	return out
}

// SimpleMovingAverage emits the mean close of each trailing window, starting at
// the window-th term. Callers validate window >= 1.
func SimpleMovingAverage(points []models.PricePoint, window int) []models.MovingAveragePoint {
	terms := closeSeries(points)
	if len(terms) < window {
		return []models.MovingAveragePoint{}
	}

	out := make([]models.MovingAveragePoint, 0, len(terms)-window+1)
	sum := 0.0
	for i, t := range terms {
		sum += t.close
		if i >= window {
			sum -= terms[i-window].close
		}
		if i >= window-1 {
			out = append(out, models.MovingAveragePoint{Date: t.date, Value: sum / float64(window)})
		}
	}
	return out
}

// ExponentialMovingAverage emits one value per term, seeded with the first
// close. Callers validate 0 < alpha <= 1.
func ExponentialMovingAverage(points []models.PricePoint, alpha float64) []models.MovingAveragePoint {
	terms := closeSeries(points)
	out := make([]models.MovingAveragePoint, 0, len(terms))
	if len(terms) == 0 {
		return out
	}

	ema := terms[0].close
	out = append(out, models.MovingAveragePoint{Date: terms[0].date, Value: ema})
	for _, t := range terms[1:] {
		ema = t.close*alpha + ema*(1-alpha)
		out = append(out, models.MovingAveragePoint{Date: t.date, Value: ema})
	}
	return out
}
