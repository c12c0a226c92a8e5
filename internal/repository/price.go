package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/finagg-backend/internal/models"
)

type PriceRepo struct {
	pool *pgxpool.Pool
}

func NewPriceRepo(pool *pgxpool.Pool) *PriceRepo {
	return &PriceRepo{pool: pool}
}

const upsertPrice = `
INSERT INTO price_history (company, trading_date, open, high, low, close, volume)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (company, trading_date) DO UPDATE SET
	open   = EXCLUDED.open,
	high   = EXCLUDED.high,
	low    = EXCLUDED.low,
	close  = EXCLUDED.close,
	volume = EXCLUDED.volume`

// SaveBatch upserts points in one transaction. A later row for the same
// (company, trading_date) replaces the earlier one, so re-running an import
// is idempotent. Either the whole batch commits or none of it does.
func (r *PriceRepo) SaveBatch(ctx context.Context, points []models.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, p := range points {
			b.Queue(upsertPrice, p.Company, TradingDate(p.Date), p.Open, p.High, p.Low, p.Close, p.Volume)
		}

		br := tx.SendBatch(ctx, b)
		for i := range points {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("upsert %s %s (row %d of %d): %w",
					points[i].Company, points[i].Day(), i+1, len(points), err)
			}
		}
		return br.Close()
	})
}

// QueryRange returns points for company with trading_date in [start, end],
// ordered by date ascending.
func (r *PriceRepo) QueryRange(ctx context.Context, company string, start, end time.Time) ([]models.PricePoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT company, trading_date, open, high, low, close, volume
		 FROM price_history
		 WHERE company = $1 AND trading_date BETWEEN $2 AND $3
		 ORDER BY trading_date ASC`,
		company, TradingDate(start), TradingDate(end),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPrices(rows)
}

func (r *PriceRepo) CountRange(ctx context.Context, company string, start, end time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM price_history
		 WHERE company = $1 AND trading_date BETWEEN $2 AND $3`,
		company, TradingDate(start), TradingDate(end),
	).Scan(&n)
	return n, err
}

func (r *PriceRepo) ListCompanies(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT company FROM price_history ORDER BY company ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	companies := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// DeleteCompany removes every stored point for company and returns the count.
func (r *PriceRepo) DeleteCompany(ctx context.Context, company string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM price_history WHERE company = $1`, company)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanPrice(row scannable) (*models.PricePoint, error) {
	var p models.PricePoint
	var td time.Time
	err := row.Scan(&p.Company, &td, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume)
	if err != nil {
		return nil, err
	}
	p.Date = TradingDate(td)
	return &p, nil
}

type rowsIter interface {
	scannable
	Next() bool
	Err() error
}

func collectPrices(rows rowsIter) ([]models.PricePoint, error) {
	out := []models.PricePoint{}
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
