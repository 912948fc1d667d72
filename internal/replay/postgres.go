package replay

import (
	"context"
	"database/sql"
	"time"
)

// PostgresGuard is a Guard backed by the used_proofs table. The atomic claim
// is an INSERT … ON CONFLICT DO NOTHING, so concurrent requests racing on the
// same proof identifier are serialized by the database regardless of how many
// service instances share it. Consumed marks survive restarts.
type PostgresGuard struct {
	db *sql.DB
}

var _ Guard = (*PostgresGuard)(nil)

// NewPostgresGuard creates a guard on top of an open database handle.
func NewPostgresGuard(db *sql.DB) *PostgresGuard {
	return &PostgresGuard{db: db}
}

func (g *PostgresGuard) Used(ctx context.Context, proofID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM used_proofs WHERE proof_id = $1)`
	var used bool
	if err := g.db.QueryRowContext(ctx, q, proofID).Scan(&used); err != nil {
		return false, err
	}
	return used, nil
}

func (g *PostgresGuard) Reserve(ctx context.Context, proofID string, expiresAt time.Time) error {
	const q = `
		INSERT INTO used_proofs (proof_id, state, expires_at)
		VALUES ($1, 'reserved', $2)
		ON CONFLICT (proof_id) DO NOTHING
	`
	res, err := g.db.ExecContext(ctx, q, proofID, expiresAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProofUsed
	}
	return nil
}

func (g *PostgresGuard) Release(ctx context.Context, proofID string) error {
	const q = `DELETE FROM used_proofs WHERE proof_id = $1 AND state = 'reserved'`
	_, err := g.db.ExecContext(ctx, q, proofID)
	return err
}

func (g *PostgresGuard) Commit(ctx context.Context, proofID string) error {
	const q = `UPDATE used_proofs SET state = 'used' WHERE proof_id = $1`
	_, err := g.db.ExecContext(ctx, q, proofID)
	return err
}

func (g *PostgresGuard) Sweep(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM used_proofs WHERE expires_at < $1`
	res, err := g.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
