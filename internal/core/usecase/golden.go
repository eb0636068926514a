package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
	"github.com/fiscaldesk/fiscaldesk/internal/core/ports"
)

const (
	defaultGoldenMinSimilarity = 0.95
	defaultGoldenMinTrust      = 0.6
	defaultGoldenTimeout       = 3 * time.Second
	goldenSimilarCandidates    = 3
)

type GoldenLookup struct {
	store         ports.GoldenStore
	embedder      ports.Embedder
	minSimilarity float64
	minTrust      float64
	timeout       time.Duration
	logger        *slog.Logger
}

func NewGoldenLookup(store ports.GoldenStore, embedder ports.Embedder, minSimilarity, minTrust float64, timeout time.Duration, logger *slog.Logger) *GoldenLookup {
	if minSimilarity <= 0 || minSimilarity > 1 {
		minSimilarity = defaultGoldenMinSimilarity
	}
	if minTrust <= 0 || minTrust > 1 {
		minTrust = defaultGoldenMinTrust
	}
	if timeout <= 0 {
		timeout = defaultGoldenTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoldenLookup{
		store:         store,
		embedder:      embedder,
		minSimilarity: minSimilarity,
		minTrust:      minTrust,
		timeout:       timeout,
		logger:        logger,
	}
}

// Lookup tries the exact-signature session-replay path first, then the
// semantic path over candidate embeddings. A miss returns (nil, nil);
// store or embedding failures degrade to a miss so the pipeline proceeds.
func (g *GoldenLookup) Lookup(ctx context.Context, query domain.Query) (*domain.GoldenMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lookupCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	signature := QuerySignature(query.SessionID, query.Text, query.AskedAt)
	candidate, err := g.store.FindBySignature(lookupCtx, signature)
	if err != nil && !domain.IsKind(err, domain.ErrNotFound) {
		g.logger.Warn("golden_signature_lookup_failed", "error", err)
	}
	if candidate != nil {
		return &domain.GoldenMatch{
			Candidate:  *candidate,
			Similarity: 1,
			Strategy:   domain.GoldenMatchSignature,
		}, nil
	}

	vector, err := g.embedder.EmbedQuery(lookupCtx, query.Text)
	if err != nil {
		g.logger.Warn("golden_query_embedding_failed", "error", err)
		return nil, nil
	}
	if len(vector) == 0 {
		return nil, nil
	}

	matches, err := g.store.FindSimilar(lookupCtx, vector, goldenSimilarCandidates)
	if err != nil {
		g.logger.Warn("golden_similarity_lookup_failed", "error", err)
		return nil, nil
	}

	var best *domain.GoldenMatch
	for i := range matches {
		m := matches[i]
		if m.Similarity < g.minSimilarity || m.Candidate.Trust < g.minTrust {
			continue
		}
		if best == nil || betterGoldenMatch(m, *best) {
			best = &matches[i]
		}
	}
	if best == nil {
		return nil, nil
	}
	best.Strategy = domain.GoldenMatchSemantic
	return best, nil
}

// betterGoldenMatch orders by similarity, then trust, then id for
// determinism when the store returns equal scores.
func betterGoldenMatch(a, b domain.GoldenMatch) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	if a.Candidate.Trust != b.Candidate.Trust {
		return a.Candidate.Trust > b.Candidate.Trust
	}
	return a.Candidate.ID < b.Candidate.ID
}

// GoldenResponse converts a golden match into the final pipeline response.
func GoldenResponse(query domain.Query, match domain.GoldenMatch, gate domain.GateDecision) *domain.QueryResponse {
	return &domain.QueryResponse{
		QueryID:   query.ID,
		Answer:    match.Candidate.Answer,
		Citations: []domain.Citation{},
		Path:      domain.PathGolden,
		Gate:      gate,
	}
}
