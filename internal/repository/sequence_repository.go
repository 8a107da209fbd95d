package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/ordercore/internal/port"
)

type sequenceRepository struct {
	db querier
}

func NewSequence(pool *pgxpool.Pool) port.SequenceRepository {
	return &sequenceRepository{db: pool}
}

func NewSequenceWithTx(tx pgx.Tx) port.SequenceRepository {
	return &sequenceRepository{db: tx}
}

// Next is a single atomic increment-and-read on the per-year counter row.
// The counter is the source of truth, never a max-scan over issued numbers:
// a scan-then-increment would let two concurrent callers read the same
// maximum and collide. The row upsert is linearizable in Postgres, so
// concurrent callers always observe distinct, increasing values.
func (r *sequenceRepository) Next(ctx context.Context, year int) (int64, error) {
	var value int64

	err := r.db.QueryRow(ctx, `INSERT INTO order_counters (year, value) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET value = order_counters.value + 1
		RETURNING value`, year).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("increment counter[%d]: %w", year, err)
	}

	return value, nil
}
