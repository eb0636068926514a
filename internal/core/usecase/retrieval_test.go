package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
)

type lexicalIndexFake struct {
	docs  []domain.RetrievedDocument
	err   error
	calls atomic.Int32
}

func (f *lexicalIndexFake) Search(context.Context, string, domain.SearchFilter, int) ([]domain.RetrievedDocument, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

type vectorIndexFake struct {
	docs  []domain.RetrievedDocument
	err   error
	calls atomic.Int32
}

func (f *vectorIndexFake) Search(context.Context, []float32, int) ([]domain.RetrievedDocument, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

func variantsFor(texts ...string) []domain.QueryVariant {
	out := make([]domain.QueryVariant, 0, len(texts))
	for i, text := range texts {
		strategy := domain.VariantOriginal
		if i > 0 {
			strategy = domain.VariantMultiQuery
		}
		out = append(out, domain.QueryVariant{Text: text, Strategy: strategy})
	}
	return out
}

func TestRetrieveFansOutPerVariant(t *testing.T) {
	lexical := &lexicalIndexFake{docs: docs("a", "b")}
	vector := &vectorIndexFake{docs: docs("b", "c")}
	retriever := NewHybridRetriever(lexical, vector, &embedderFake{vector: []float32{0.1}}, RetrieverConfig{}, nil)

	result := retriever.Retrieve(context.Background(), variantsFor("q1", "q2", "q3"), domain.SearchFilter{})
	if result.Skipped || result.Failed {
		t.Fatalf("unexpected flags: %+v", result)
	}
	if got := lexical.calls.Load(); got != 3 {
		t.Fatalf("expected 3 lexical sub-queries, got %d", got)
	}
	if got := vector.calls.Load(); got != 3 {
		t.Fatalf("expected 3 vector sub-queries, got %d", got)
	}
	if len(result.Documents) != 3 {
		t.Fatalf("expected 3 fused documents, got %d", len(result.Documents))
	}
	if result.Documents[0].ID != "b" {
		t.Fatalf("cross-method agreement must rank first, got %s", result.Documents[0].ID)
	}
}

func TestRetrieveToleratesVectorFailure(t *testing.T) {
	lexical := &lexicalIndexFake{docs: docs("a", "b")}
	vector := &vectorIndexFake{err: context.DeadlineExceeded}
	retriever := NewHybridRetriever(lexical, vector, &embedderFake{vector: []float32{0.1}}, RetrieverConfig{}, nil)

	result := retriever.Retrieve(context.Background(), variantsFor("q"), domain.SearchFilter{})
	if result.Failed {
		t.Fatalf("partial failure must not fail retrieval: %+v", result)
	}
	if len(result.Documents) != 2 {
		t.Fatalf("expected lexical-only hits, got %d", len(result.Documents))
	}
}

func TestRetrieveFailsOnlyWhenAllSubQueriesFail(t *testing.T) {
	lexical := &lexicalIndexFake{err: errors.New("index down")}
	vector := &vectorIndexFake{err: errors.New("index down")}
	retriever := NewHybridRetriever(lexical, vector, &embedderFake{vector: []float32{0.1}}, RetrieverConfig{}, nil)

	result := retriever.Retrieve(context.Background(), variantsFor("q"), domain.SearchFilter{})
	if !result.Failed {
		t.Fatalf("expected failed result when every sub-query fails")
	}
	if len(result.Documents) != 0 {
		t.Fatalf("failed result must carry no documents")
	}
	if result.Reason != domain.FailReasonAllSubQueries {
		t.Fatalf("expected reason %q, got %q", domain.FailReasonAllSubQueries, result.Reason)
	}
}

func TestRetrieveEmbedderFailureCountsAsVectorFailure(t *testing.T) {
	lexical := &lexicalIndexFake{docs: docs("a")}
	vector := &vectorIndexFake{docs: docs("b")}
	retriever := NewHybridRetriever(lexical, vector, &embedderFake{err: errors.New("embed down")}, RetrieverConfig{}, nil)

	result := retriever.Retrieve(context.Background(), variantsFor("q"), domain.SearchFilter{})
	if result.Failed {
		t.Fatalf("lexical side succeeded, result must not be failed")
	}
	if got := vector.calls.Load(); got != 0 {
		t.Fatalf("vector search must not run without an embedding, got %d calls", got)
	}
}

func TestRetrieveTruncatesToTopN(t *testing.T) {
	lexical := &lexicalIndexFake{docs: docs("a", "b", "c", "d", "e")}
	vector := &vectorIndexFake{docs: docs("f", "g", "h")}
	retriever := NewHybridRetriever(lexical, vector, &embedderFake{vector: []float32{0.1}},
		RetrieverConfig{TopN: 4}, nil)

	result := retriever.Retrieve(context.Background(), variantsFor("q"), domain.SearchFilter{})
	if len(result.Documents) != 4 {
		t.Fatalf("expected truncation to 4, got %d", len(result.Documents))
	}
	if result.TotalCandidates != 8 {
		t.Fatalf("expected 8 candidates pre-truncation, got %d", result.TotalCandidates)
	}
}

func TestSkipCarriesReason(t *testing.T) {
	retriever := NewHybridRetriever(&lexicalIndexFake{}, &vectorIndexFake{}, &embedderFake{}, RetrieverConfig{}, nil)
	result := retriever.Skip(domain.SkipReasonGateNegative)
	if !result.Skipped || result.Reason != domain.SkipReasonGateNegative {
		t.Fatalf("unexpected skip result: %+v", result)
	}
	if result.Failed {
		t.Fatalf("skipped and failed are mutually exclusive")
	}
}

func TestRetrieveRespectsDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	time.Sleep(2 * time.Millisecond)

	lexical := &lexicalIndexFake{err: ctx.Err()}
	vector := &vectorIndexFake{err: ctx.Err()}
	retriever := NewHybridRetriever(lexical, vector, &embedderFake{err: ctx.Err()}, RetrieverConfig{}, nil)

	result := retriever.Retrieve(ctx, variantsFor("q"), domain.SearchFilter{})
	if !result.Failed {
		t.Fatalf("expired deadline with no partial results must flag failure")
	}
}
