package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
)

type goldenStoreFake struct {
	bySignature map[string]*domain.GoldenCandidate
	similar     []domain.GoldenMatch
	sigErr      error
	similarErr  error
	lastSig     string
}

func (f *goldenStoreFake) FindBySignature(_ context.Context, signature string) (*domain.GoldenCandidate, error) {
	f.lastSig = signature
	if f.sigErr != nil {
		return nil, f.sigErr
	}
	return f.bySignature[signature], nil
}

func (f *goldenStoreFake) FindSimilar(_ context.Context, _ []float32, _ int) ([]domain.GoldenMatch, error) {
	if f.similarErr != nil {
		return nil, f.similarErr
	}
	return f.similar, nil
}

type embedderFake struct {
	vector []float32
	err    error
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func TestGoldenLookupSemanticHitRequiresThresholds(t *testing.T) {
	store := &goldenStoreFake{similar: []domain.GoldenMatch{
		{Candidate: domain.GoldenCandidate{ID: "g1", Answer: "a1", Trust: 0.9}, Similarity: 0.97},
		{Candidate: domain.GoldenCandidate{ID: "g2", Answer: "a2", Trust: 0.3}, Similarity: 0.99},
		{Candidate: domain.GoldenCandidate{ID: "g3", Answer: "a3", Trust: 0.9}, Similarity: 0.90},
	}}
	lookup := NewGoldenLookup(store, &embedderFake{vector: []float32{0.1}}, 0.95, 0.6, time.Second, nil)

	match, err := lookup.Lookup(context.Background(), domain.Query{SessionID: "s1", Text: "q", AskedAt: time.Now()})
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if match == nil {
		t.Fatalf("expected a semantic hit")
	}
	if match.Candidate.ID != "g1" {
		t.Fatalf("expected g1 (high similarity and trust), got %s", match.Candidate.ID)
	}
	if match.Strategy != domain.GoldenMatchSemantic {
		t.Fatalf("expected semantic strategy, got %s", match.Strategy)
	}
}

func TestGoldenLookupMissWhenBelowThresholds(t *testing.T) {
	store := &goldenStoreFake{similar: []domain.GoldenMatch{
		{Candidate: domain.GoldenCandidate{ID: "g1", Trust: 0.9}, Similarity: 0.80},
	}}
	lookup := NewGoldenLookup(store, &embedderFake{vector: []float32{0.1}}, 0.95, 0.6, time.Second, nil)

	match, err := lookup.Lookup(context.Background(), domain.Query{SessionID: "s1", Text: "q", AskedAt: time.Now()})
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if match != nil {
		t.Fatalf("expected miss, got %+v", match)
	}
}

func TestGoldenLookupDegradesToMissOnStoreFailure(t *testing.T) {
	store := &goldenStoreFake{sigErr: errors.New("db down"), similarErr: errors.New("db down")}
	lookup := NewGoldenLookup(store, &embedderFake{vector: []float32{0.1}}, 0.95, 0.6, time.Second, nil)

	match, err := lookup.Lookup(context.Background(), domain.Query{SessionID: "s1", Text: "q", AskedAt: time.Now()})
	if err != nil {
		t.Fatalf("store failures must degrade to a miss, got error %v", err)
	}
	if match != nil {
		t.Fatalf("expected miss, got %+v", match)
	}
}

func TestGoldenLookupSignatureIsSessionScoped(t *testing.T) {
	store := &goldenStoreFake{}
	lookup := NewGoldenLookup(store, &embedderFake{vector: []float32{0.1}}, 0.95, 0.6, time.Second, nil)
	now := time.Now()

	_, _ = lookup.Lookup(context.Background(), domain.Query{SessionID: "s1", Text: "q", AskedAt: now})
	first := store.lastSig
	_, _ = lookup.Lookup(context.Background(), domain.Query{SessionID: "s2", Text: "q", AskedAt: now})
	if store.lastSig == first {
		t.Fatalf("signature lookup must differ across sessions")
	}
}
