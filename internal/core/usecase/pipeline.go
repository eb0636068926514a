package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
	"github.com/fiscaldesk/fiscaldesk/internal/core/ports"
)

const (
	defaultRequestBudget = 8 * time.Second
	usageRecordTimeout   = 2 * time.Second
)

type PipelineConfig struct {
	RequestBudget time.Duration
	Filter        domain.SearchFilter
	Observer      PipelineObserver
}

// QueryPipeline is the request-scoped orchestration of the whole core:
// gate, expansion, golden-set lookup, hybrid retrieval, synthesis and the
// quality-gated refinement loop. Exactly one of the golden fast path or the
// retrieval+synthesis path produces the final answer.
type QueryPipeline struct {
	expander    *QueryExpander
	golden      *GoldenLookup
	retriever   *HybridRetriever
	synthesizer *Synthesizer
	refiner     *RefinementLoop
	usage       ports.UsageTracker
	budget      time.Duration
	filter      domain.SearchFilter
	observer    PipelineObserver
	logger      *slog.Logger
}

func NewQueryPipeline(
	expander *QueryExpander,
	golden *GoldenLookup,
	retriever *HybridRetriever,
	synthesizer *Synthesizer,
	refiner *RefinementLoop,
	usage ports.UsageTracker,
	cfg PipelineConfig,
	logger *slog.Logger,
) *QueryPipeline {
	budget := cfg.RequestBudget
	if budget <= 0 {
		budget = defaultRequestBudget
	}
	if logger == nil {
		logger = slog.Default()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &QueryPipeline{
		expander:    expander,
		golden:      golden,
		retriever:   retriever,
		synthesizer: synthesizer,
		refiner:     refiner,
		usage:       usage,
		budget:      budget,
		filter:      cfg.Filter,
		observer:    observer,
		logger:      logger,
	}
}

func (p *QueryPipeline) Answer(ctx context.Context, query domain.Query) (*domain.QueryResponse, error) {
	if strings.TrimSpace(query.Text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer query", fmt.Errorf("query text is required"))
	}
	if query.ID == "" {
		query.ID = uuid.NewString()
	}
	if query.AskedAt.IsZero() {
		query.AskedAt = time.Now().UTC()
	}

	start := time.Now()
	reqCtx, cancel := context.WithTimeout(ctx, p.budget)
	defer cancel()

	gate := DecideRetrieval(query.Text)
	p.observer.GateDecision(gate.NeedsRetrieval)
	p.logger.Info("gate_decision",
		"query_id", query.ID,
		"needs_retrieval", gate.NeedsRetrieval,
		"reasons", gate.Reasons,
	)

	variants := []domain.QueryVariant{{Text: query.Text, Strategy: domain.VariantOriginal}}
	if gate.NeedsRetrieval {
		variants = p.expander.Expand(reqCtx, query)
	}

	if match, err := p.golden.Lookup(reqCtx, query); err == nil && match != nil {
		p.observer.GoldenLookup(match.Strategy)
		p.logger.Info("golden_hit",
			"query_id", query.ID,
			"strategy", match.Strategy,
			"similarity", match.Similarity,
			"trust", match.Candidate.Trust,
		)
		response := GoldenResponse(query, *match, gate)
		p.observer.Answer(string(response.Path), 0, 0, false, time.Since(start))
		p.recordUsage(ctx, query, response, gate, domain.Completion{}, nil, 0, time.Since(start))
		return response, nil
	}
	p.observer.GoldenLookup("miss")

	var retrieval domain.RetrievalResult
	if gate.NeedsRetrieval {
		retrieval = p.retriever.Retrieve(reqCtx, variants, p.filter)
	} else {
		retrieval = p.retriever.Skip(domain.SkipReasonGateNegative)
	}
	p.logger.Info("retrieval_done",
		"query_id", query.ID,
		"documents", len(retrieval.Documents),
		"candidates", retrieval.TotalCandidates,
		"skipped", retrieval.Skipped,
		"failed", retrieval.Failed,
		"reason", retrieval.Reason,
		"search_ms", retrieval.SearchTime.Milliseconds(),
	)

	tier := SelectTier(query, gate)
	initial, err := p.synthesizer.Synthesize(reqCtx, query, retrieval.Documents, tier, nil)
	if err != nil {
		// The only condition that surfaces as a user-visible failure.
		return nil, err
	}

	outcome := p.refiner.Run(reqCtx, query, retrieval.Documents, tier, initial)
	p.logger.Info("refinement_done",
		"query_id", query.ID,
		"attempts", len(outcome.Attempts),
		"aggregate", outcome.Score.Aggregate,
		"low_quality", outcome.LowQuality,
	)

	response := &domain.QueryResponse{
		QueryID:            query.ID,
		Answer:             outcome.Output.Answer,
		Verdict:            outcome.Output.Verdict,
		Citations:          citationsFrom(retrieval.Documents),
		Hypotheses:         outcome.Output.Hypotheses,
		ConflictingSources: outcome.Output.Conflict,
		LowQuality:         outcome.LowQuality,
		Path:               domain.PathSynthesis,
		Attempts:           len(outcome.Attempts),
		Gate:               gate,
	}

	p.observer.TokenUsage(outcome.Output.Completion.Model, outcome.Output.Completion.PromptTokens, outcome.Output.Completion.CompletionTokens)
	p.observer.Answer(string(response.Path), len(retrieval.Documents), response.Attempts, response.LowQuality, time.Since(start))
	p.recordUsage(ctx, query, response, gate, outcome.Output.Completion, outcome.Attempts, len(retrieval.Documents), time.Since(start))
	return response, nil
}

func citationsFrom(docs []domain.RetrievedDocument) []domain.Citation {
	out := make([]domain.Citation, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.Citation{
			DocumentID: doc.ID,
			SourceName: doc.SourceName,
			URL:        doc.Metadata[domain.MetadataSourceURL],
		})
	}
	return out
}

// recordUsage emits the per-request audit record. Fire-and-forget: the
// record is sent on a detached context so a slow tracker cannot hold the
// response, and failures are only logged.
func (p *QueryPipeline) recordUsage(
	ctx context.Context,
	query domain.Query,
	response *domain.QueryResponse,
	gate domain.GateDecision,
	completion domain.Completion,
	attempts []domain.RefinementAttempt,
	fusedDocuments int,
	latency time.Duration,
) {
	if p.usage == nil {
		return
	}

	record := domain.UsageRecord{
		RequestID:        query.ID,
		SessionID:        query.SessionID,
		Path:             response.Path,
		Model:            completion.Model,
		Provider:         completion.Provider,
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		GateReasons:      gate.Reasons,
		NeedsRetrieval:   gate.NeedsRetrieval,
		FusedDocuments:   fusedDocuments,
		Attempts:         attempts,
		LowQuality:       response.LowQuality,
		Latency:          latency,
		CreatedAt:        time.Now().UTC(),
	}

	go func() {
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), usageRecordTimeout)
		defer cancel()
		if err := p.usage.Record(recordCtx, record); err != nil {
			p.logger.Warn("usage_record_failed", "request_id", record.RequestID, "error", err)
		}
	}()
}
