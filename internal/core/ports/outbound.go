package ports

import (
	"context"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
)

// LexicalIndex performs keyword search over the regulatory corpus.
type LexicalIndex interface {
	Search(ctx context.Context, query string, filter domain.SearchFilter, limit int) ([]domain.RetrievedDocument, error)
}

// VectorIndex performs semantic search over corpus chunk embeddings.
type VectorIndex interface {
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedDocument, error)
}

// Embedder builds document-independent query embeddings, used both for
// vector retrieval and golden-set similarity lookups.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ModelProvider invokes a model of the requested tier and reports token
// accounting back for budget tracking.
type ModelProvider interface {
	Complete(ctx context.Context, prompt string, tier domain.ModelTier) (domain.Completion, error)
}

// GoldenStore reads expert-approved answers by exact signature and by
// embedding similarity. Writes are owned by the expert-feedback service.
type GoldenStore interface {
	FindBySignature(ctx context.Context, signature string) (*domain.GoldenCandidate, error)
	FindSimilar(ctx context.Context, queryVector []float32, limit int) ([]domain.GoldenMatch, error)
}

// UsageTracker receives one audit record per request. Callers treat it as
// fire-and-forget; errors are logged, never propagated.
type UsageTracker interface {
	Record(ctx context.Context, record domain.UsageRecord) error
}
