package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS price_history (
	id           BIGSERIAL PRIMARY KEY,
	company      TEXT NOT NULL,
	trading_date DATE NOT NULL,
	open         DOUBLE PRECISION,
	high         DOUBLE PRECISION,
	low          DOUBLE PRECISION,
	close        DOUBLE PRECISION,
	volume       DOUBLE PRECISION,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (company, trading_date)
);
`

// EnsureSchema creates the price_history table when it does not exist.
// The unique constraint doubles as the (company, trading_date) lookup index.
func EnsureSchema(ctx context.Context, p *pgxpool.Pool) error {
	if _, err := p.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
