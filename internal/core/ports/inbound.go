package ports

import (
	"context"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
)

// QueryService is the inbound contract for the full question answering
// pipeline: gate, expansion, golden-set lookup, hybrid retrieval, synthesis
// and quality-gated refinement.
type QueryService interface {
	Answer(ctx context.Context, query domain.Query) (*domain.QueryResponse, error)
}
