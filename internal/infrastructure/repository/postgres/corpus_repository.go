package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
)

// CorpusRepository serves keyword search over the regulatory corpus using
// Postgres full-text search with the italian configuration.
type CorpusRepository struct {
	db *sql.DB
}

func NewCorpusRepository(db *sql.DB) *CorpusRepository {
	return &CorpusRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *CorpusRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS corpus_chunks (
	id TEXT PRIMARY KEY,
	source_name TEXT NOT NULL,
	category TEXT,
	text TEXT NOT NULL,
	trust DOUBLE PRECISION NOT NULL DEFAULT 0,
	source_url TEXT,
	published_at TIMESTAMPTZ,
	tsv TSVECTOR GENERATED ALWAYS AS (to_tsvector('italian', text)) STORED
);

CREATE INDEX IF NOT EXISTS idx_corpus_chunks_tsv ON corpus_chunks USING GIN (tsv);
CREATE INDEX IF NOT EXISTS idx_corpus_chunks_category ON corpus_chunks(category);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *CorpusRepository) Search(ctx context.Context, query string, filter domain.SearchFilter, limit int) ([]domain.RetrievedDocument, error) {
	if limit <= 0 {
		limit = 10
	}

	sqlQuery := `
SELECT id, source_name, text, trust, source_url, published_at,
       ts_rank_cd(tsv, q) AS rank
FROM corpus_chunks, websearch_to_tsquery('italian', $1) q
WHERE tsv @@ q
`
	args := []any{query}
	if filter.Category != "" {
		sqlQuery += ` AND category = $2`
		args = append(args, filter.Category)
	}
	sqlQuery += fmt.Sprintf(` ORDER BY rank DESC LIMIT %d`, limit)

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("corpus search: %w", err)
	}
	defer rows.Close()

	var out []domain.RetrievedDocument
	for rows.Next() {
		var doc domain.RetrievedDocument
		var sourceURL sql.NullString
		var publishedAt sql.NullTime

		if err := rows.Scan(&doc.ID, &doc.SourceName, &doc.Text, &doc.Trust, &sourceURL, &publishedAt, &doc.RawScore); err != nil {
			return nil, fmt.Errorf("scan corpus row: %w", err)
		}
		doc.Source = domain.SourceLexical
		doc.Metadata = map[string]string{}
		if sourceURL.Valid && sourceURL.String != "" {
			doc.Metadata[domain.MetadataSourceURL] = sourceURL.String
		}
		if publishedAt.Valid {
			published := publishedAt.Time
			doc.PublishedAt = &published
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corpus rows: %w", err)
	}
	return out, nil
}
