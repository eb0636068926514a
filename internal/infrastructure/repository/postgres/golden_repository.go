package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
)

// GoldenRepository serves the exact-signature side of the golden set. The
// semantic side lives in the Qdrant golden collection.
type GoldenRepository struct {
	db *sql.DB
}

func NewGoldenRepository(db *sql.DB) *GoldenRepository {
	return &GoldenRepository{db: db}
}

func (r *GoldenRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083102)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS golden_answers (
	id TEXT PRIMARY KEY,
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	trust DOUBLE PRECISION NOT NULL DEFAULT 0,
	signature TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_golden_answers_signature ON golden_answers(signature);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *GoldenRepository) FindBySignature(ctx context.Context, signature string) (*domain.GoldenCandidate, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, question, answer, trust, signature, created_at
FROM golden_answers
WHERE signature = $1
`, signature)

	var candidate domain.GoldenCandidate
	err := row.Scan(&candidate.ID, &candidate.Question, &candidate.Answer, &candidate.Trust, &candidate.Signature, &candidate.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "find golden answer", fmt.Errorf("signature %s", signature))
		}
		return nil, fmt.Errorf("scan golden answer: %w", err)
	}
	return &candidate, nil
}
