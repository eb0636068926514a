package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
	"github.com/fiscaldesk/fiscaldesk/internal/core/ports"
)

const (
	defaultRetrievalTopN      = 12
	defaultCandidatesPerQuery = 20
	defaultSubQueryTimeout    = 4 * time.Second
	defaultRRFSmoothingK      = 60
)

type RetrieverConfig struct {
	TopN               int
	CandidatesPerQuery int
	SubQueryTimeout    time.Duration
	RRFSmoothingK      int
	Observer           PipelineObserver
}

func (c RetrieverConfig) normalize() RetrieverConfig {
	out := c
	if out.TopN <= 0 {
		out.TopN = defaultRetrievalTopN
	}
	if out.CandidatesPerQuery <= 0 {
		out.CandidatesPerQuery = defaultCandidatesPerQuery
	}
	if out.SubQueryTimeout <= 0 {
		out.SubQueryTimeout = defaultSubQueryTimeout
	}
	if out.RRFSmoothingK <= 0 {
		out.RRFSmoothingK = defaultRRFSmoothingK
	}
	if out.Observer == nil {
		out.Observer = nopObserver{}
	}
	return out
}

// HybridRetriever fans one lexical and one vector sub-query out per variant,
// all concurrent under the request deadline, and fuses whatever came back.
type HybridRetriever struct {
	lexical  ports.LexicalIndex
	vector   ports.VectorIndex
	embedder ports.Embedder
	cfg      RetrieverConfig
	logger   *slog.Logger
}

func NewHybridRetriever(lexical ports.LexicalIndex, vector ports.VectorIndex, embedder ports.Embedder, cfg RetrieverConfig, logger *slog.Logger) *HybridRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetriever{
		lexical:  lexical,
		vector:   vector,
		embedder: embedder,
		cfg:      cfg.normalize(),
		logger:   logger,
	}
}

// Skip is the explicit "did not search" result, so downstream logging can
// tell it apart from "searched and found nothing".
func (r *HybridRetriever) Skip(reason string) domain.RetrievalResult {
	return domain.RetrievalResult{
		Documents: []domain.RetrievedDocument{},
		Skipped:   true,
		Reason:    reason,
	}
}

// Retrieve runs 2xN concurrent sub-queries for N variants. A failed or
// timed-out sub-query contributes zero documents; the result is flagged
// Failed only when every sub-query failed.
func (r *HybridRetriever) Retrieve(ctx context.Context, variants []domain.QueryVariant, filter domain.SearchFilter) domain.RetrievalResult {
	start := time.Now()
	if len(variants) == 0 {
		return r.Skip("no_variants")
	}

	var (
		mu       sync.Mutex
		lists    []rankedList
		failures int
	)
	total := len(variants) * 2

	g, groupCtx := errgroup.WithContext(ctx)
	for _, variant := range variants {
		g.Go(func() error {
			subCtx, cancel := context.WithTimeout(groupCtx, r.cfg.SubQueryTimeout)
			defer cancel()

			docs, err := r.lexical.Search(subCtx, variant.Text, filter, r.cfg.CandidatesPerQuery)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				r.cfg.Observer.SubQuery(string(domain.SourceLexical), "error")
				r.logger.Warn("lexical_subquery_failed", "strategy", variant.Strategy, "error", err)
				return nil
			}
			r.cfg.Observer.SubQuery(string(domain.SourceLexical), "ok")
			lists = append(lists, rankedList{source: domain.SourceLexical, strategy: variant.Strategy, docs: docs})
			return nil
		})
		g.Go(func() error {
			subCtx, cancel := context.WithTimeout(groupCtx, r.cfg.SubQueryTimeout)
			defer cancel()

			docs, err := r.vectorSearch(subCtx, variant.Text)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				r.cfg.Observer.SubQuery(string(domain.SourceVector), "error")
				r.logger.Warn("vector_subquery_failed", "strategy", variant.Strategy, "error", err)
				return nil
			}
			r.cfg.Observer.SubQuery(string(domain.SourceVector), "ok")
			lists = append(lists, rankedList{source: domain.SourceVector, strategy: variant.Strategy, docs: docs})
			return nil
		})
	}
	_ = g.Wait() // sub-query errors are absorbed above, never propagated

	if failures == total {
		return domain.RetrievalResult{
			Documents:  []domain.RetrievedDocument{},
			SearchTime: time.Since(start),
			Failed:     true,
			Reason:     domain.FailReasonAllSubQueries,
		}
	}

	fused := fuseRRF(lists, r.cfg.RRFSmoothingK)
	totalCandidates := len(fused)
	fused = trimDocuments(fused, r.cfg.TopN)

	return domain.RetrievalResult{
		Documents:       fused,
		TotalCandidates: totalCandidates,
		SearchTime:      time.Since(start),
	}
}

func (r *HybridRetriever) vectorSearch(ctx context.Context, text string) ([]domain.RetrievedDocument, error) {
	vector, err := r.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return r.vector.Search(ctx, vector, r.cfg.CandidatesPerQuery)
}
