package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"swapRouter/internal/model"
)

// Journal provides Postgres persistence for applied events.
type Journal struct {
	pool *pgxpool.Pool
}

func NewJournal(ctx context.Context, dsn string) (*Journal, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Journal{pool: pool}, nil
}

func (j *Journal) Close() {
	if j.pool != nil {
		j.pool.Close()
	}
}

// Append inserts one applied event. Re-inserting the same log is a no-op so
// a replayed event never duplicates a row.
func (j *Journal) Append(ctx context.Context, rec model.JournalRecord) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO event_journal (
			chain_id, pool_address, event_type, lp_id, nft_ids,
			block_number, tx_hash, log_index, applied_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tx_hash, log_index) DO NOTHING
	`,
		int64(rec.ChainID),
		rec.Pool,
		rec.EventType,
		int64(rec.LpID),
		rec.NFTIDs,
		int64(rec.BlockNumber),
		rec.TxHash,
		int64(rec.LogIndex),
		rec.AppliedAt,
	)
	return err
}
