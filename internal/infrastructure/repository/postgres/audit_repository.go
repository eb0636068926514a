package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
)

// AuditRepository persists usage records consumed by the worker. One row per
// request; the refinement attempt log is kept as JSONB for post-hoc audits.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083103)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS usage_records (
	request_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	path TEXT NOT NULL,
	model TEXT,
	provider TEXT,
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	gate_reasons JSONB NOT NULL DEFAULT '[]'::jsonb,
	needs_retrieval BOOLEAN NOT NULL,
	fused_documents INTEGER NOT NULL DEFAULT 0,
	attempts JSONB NOT NULL DEFAULT '[]'::jsonb,
	low_quality BOOLEAN NOT NULL,
	latency_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_records_session ON usage_records(session_id);
CREATE INDEX IF NOT EXISTS idx_usage_records_created_at ON usage_records(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *AuditRepository) SaveUsage(ctx context.Context, record domain.UsageRecord) error {
	reasonsJSON, err := json.Marshal(record.GateReasons)
	if err != nil {
		return fmt.Errorf("marshal gate reasons: %w", err)
	}
	attemptsJSON, err := json.Marshal(record.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO usage_records (
	request_id, session_id, path, model, provider, prompt_tokens, completion_tokens,
	gate_reasons, needs_retrieval, fused_documents, attempts, low_quality, latency_ms, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (request_id) DO NOTHING
`,
		record.RequestID, record.SessionID, string(record.Path), record.Model, record.Provider,
		record.PromptTokens, record.CompletionTokens, reasonsJSON, record.NeedsRetrieval,
		record.FusedDocuments, attemptsJSON, record.LowQuality, record.Latency.Milliseconds(), record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}
