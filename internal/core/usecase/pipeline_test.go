package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
)

type usageTrackerFake struct {
	records chan domain.UsageRecord
}

func (f *usageTrackerFake) Record(_ context.Context, record domain.UsageRecord) error {
	f.records <- record
	return nil
}

func (f *usageTrackerFake) wait(t *testing.T) domain.UsageRecord {
	t.Helper()
	select {
	case record := <-f.records:
		return record
	case <-time.After(time.Second):
		t.Fatalf("no usage record emitted")
		return domain.UsageRecord{}
	}
}

type pipelineFixture struct {
	models   *modelProviderFake
	lexical  *lexicalIndexFake
	vector   *vectorIndexFake
	store    *goldenStoreFake
	usage    *usageTrackerFake
	pipeline *QueryPipeline
}

func newPipelineFixture(models *modelProviderFake, lexical *lexicalIndexFake, vector *vectorIndexFake, store *goldenStoreFake) *pipelineFixture {
	embedder := &embedderFake{vector: []float32{0.1, 0.2}}
	usage := &usageTrackerFake{records: make(chan domain.UsageRecord, 4)}
	synthesizer := NewSynthesizer(models, 8)
	pipeline := NewQueryPipeline(
		NewQueryExpander(models, 4, time.Second, nil),
		NewGoldenLookup(store, embedder, 0.95, 0.6, time.Second, nil),
		NewHybridRetriever(lexical, vector, embedder, RetrieverConfig{}, nil),
		synthesizer,
		NewRefinementLoop(synthesizer, RefinerConfig{
			MaxAttempts: 3,
			BaseBackoff: time.Millisecond,
			MaxBackoff:  2 * time.Millisecond,
		}, nil),
		usage,
		PipelineConfig{RequestBudget: 5 * time.Second},
		nil,
	)
	return &pipelineFixture{
		models:   models,
		lexical:  lexical,
		vector:   vector,
		store:    store,
		usage:    usage,
		pipeline: pipeline,
	}
}

func regulatoryCorpus() (*lexicalIndexFake, *vectorIndexFake) {
	lexical := &lexicalIndexFake{docs: []domain.RetrievedDocument{
		{
			ID: "ccnl-metal-2024", SourceName: "CCNL Metalmeccanici 2024",
			Text: "requisiti di inquadramento per i metalmeccanici", Trust: 0.9,
			Metadata: map[string]string{domain.MetadataSourceURL: "https://example.it/ccnl"},
		},
	}}
	vector := &vectorIndexFake{docs: []domain.RetrievedDocument{
		{
			ID: "circ-inps-45", SourceName: "Circolare INPS 45/2024",
			Text: "minimi retributivi aggiornati", Trust: 0.8,
		},
	}}
	return lexical, vector
}

const regulatoryAnswer = `I requisiti del CCNL metalmeccanici 2024 prevedono un inquadramento specifico [1] e minimi retributivi aggiornati [2].
VERDETTO:
AZIONE: verificare l'inquadramento dei dipendenti
SCADENZA: nessuna
RISCHIO: sanzioni per errato inquadramento`

func TestPipelineAnswersRegulatoryQueryEndToEnd(t *testing.T) {
	lexical, vector := regulatoryCorpus()
	fixture := newPipelineFixture(
		&modelProviderFake{responses: map[domain.ModelTier]string{domain.TierCheap: regulatoryAnswer}},
		lexical, vector, &goldenStoreFake{},
	)

	response, err := fixture.pipeline.Answer(context.Background(), domain.Query{
		SessionID: "s1",
		Text:      "Quali sono i requisiti CCNL metalmeccanici 2024?",
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if response.Path != domain.PathSynthesis {
		t.Fatalf("expected synthesis path, got %s", response.Path)
	}
	if !response.Gate.NeedsRetrieval {
		t.Fatalf("regulatory query must pass the gate: %+v", response.Gate)
	}
	if len(response.Citations) == 0 {
		t.Fatalf("expected at least one citation")
	}
	if response.Citations[0].URL != "https://example.it/ccnl" {
		t.Fatalf("citation must carry the source url, got %+v", response.Citations[0])
	}
	if response.Verdict == nil || response.Verdict.Action == "" {
		t.Fatalf("expected an operational verdict, got %+v", response.Verdict)
	}
	if response.Attempts != 1 {
		t.Fatalf("well-formed answer should pass on the first attempt, got %d", response.Attempts)
	}
	if response.LowQuality {
		t.Fatalf("unexpected low-quality flag")
	}
	if lexical.calls.Load() == 0 || vector.calls.Load() == 0 {
		t.Fatalf("both retrieval methods must run")
	}

	record := fixture.usage.wait(t)
	if !record.NeedsRetrieval || record.FusedDocuments != 2 {
		t.Fatalf("unexpected usage record: %+v", record)
	}
	if record.Path != domain.PathSynthesis || record.Model == "" {
		t.Fatalf("usage record must carry path and model: %+v", record)
	}
}

func TestPipelineGoldenHitShortCircuits(t *testing.T) {
	lexical, vector := regulatoryCorpus()
	store := &goldenStoreFake{similar: []domain.GoldenMatch{
		{Candidate: domain.GoldenCandidate{ID: "g1", Answer: "risposta curata dall'esperto", Trust: 0.9}, Similarity: 0.98},
	}}
	fixture := newPipelineFixture(
		&modelProviderFake{responses: map[domain.ModelTier]string{domain.TierCheap: "bozza"}},
		lexical, vector, store,
	)

	response, err := fixture.pipeline.Answer(context.Background(), domain.Query{
		SessionID: "s1",
		Text:      "Quali sono i requisiti CCNL metalmeccanici 2024?",
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if response.Path != domain.PathGolden {
		t.Fatalf("expected golden path, got %s", response.Path)
	}
	if response.Answer != "risposta curata dall'esperto" {
		t.Fatalf("expected the curated answer, got %q", response.Answer)
	}
	if lexical.calls.Load() != 0 || vector.calls.Load() != 0 {
		t.Fatalf("golden hit must skip retrieval")
	}

	record := fixture.usage.wait(t)
	if record.Path != domain.PathGolden {
		t.Fatalf("usage record must report the golden path: %+v", record)
	}
}

func TestPipelineGateNegativeSkipsRetrievalAndExpansion(t *testing.T) {
	lexical := &lexicalIndexFake{}
	vector := &vectorIndexFake{}
	fixture := newPipelineFixture(
		&modelProviderFake{responses: map[domain.ModelTier]string{domain.TierCheap: "Il risultato del calcolo richiesto: 2+2 fa quattro, nessuna verifica normativa necessaria."}},
		lexical, vector, &goldenStoreFake{},
	)

	response, err := fixture.pipeline.Answer(context.Background(), domain.Query{SessionID: "s1", Text: "2+2"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if response.Gate.NeedsRetrieval {
		t.Fatalf("arithmetic query must not pass the gate")
	}
	if lexical.calls.Load() != 0 || vector.calls.Load() != 0 {
		t.Fatalf("negative gate must skip retrieval entirely")
	}
	if len(response.Citations) != 0 {
		t.Fatalf("no retrieval means no citations, got %d", len(response.Citations))
	}
	if response.Path != domain.PathSynthesis {
		t.Fatalf("expected synthesis path, got %s", response.Path)
	}
}

func TestPipelineTotalRetrievalFailureStillAnswers(t *testing.T) {
	lexical := &lexicalIndexFake{err: errors.New("index down")}
	vector := &vectorIndexFake{err: errors.New("index down")}
	fixture := newPipelineFixture(
		&modelProviderFake{responses: map[domain.ModelTier]string{domain.TierCheap: "Le fonti disponibili non sono sufficienti per una risposta puntuale sui requisiti richiesti."}},
		lexical, vector, &goldenStoreFake{},
	)

	response, err := fixture.pipeline.Answer(context.Background(), domain.Query{
		SessionID: "s1",
		Text:      "Quali sono i requisiti CCNL metalmeccanici 2024?",
	})
	if err != nil {
		t.Fatalf("total retrieval failure must degrade, not error: %v", err)
	}
	if len(response.Citations) != 0 {
		t.Fatalf("failed retrieval must yield no citations")
	}
	if response.Answer == "" {
		t.Fatalf("expected a degraded answer")
	}
}

func TestPipelineModelFailureSurfacesAsUnavailable(t *testing.T) {
	lexical, vector := regulatoryCorpus()
	fixture := newPipelineFixture(&modelProviderFake{err: errors.New("connection refused")}, lexical, vector, &goldenStoreFake{})

	_, err := fixture.pipeline.Answer(context.Background(), domain.Query{
		SessionID: "s1",
		Text:      "Quali sono i requisiti CCNL metalmeccanici 2024?",
	})
	if !domain.IsKind(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestPipelineRejectsEmptyQuery(t *testing.T) {
	lexical, vector := regulatoryCorpus()
	fixture := newPipelineFixture(&modelProviderFake{}, lexical, vector, &goldenStoreFake{})

	_, err := fixture.pipeline.Answer(context.Background(), domain.Query{SessionID: "s1", Text: "   "})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPipelineAssignsQueryID(t *testing.T) {
	lexical, vector := regulatoryCorpus()
	fixture := newPipelineFixture(
		&modelProviderFake{responses: map[domain.ModelTier]string{domain.TierCheap: regulatoryAnswer}},
		lexical, vector, &goldenStoreFake{},
	)

	response, err := fixture.pipeline.Answer(context.Background(), domain.Query{
		SessionID: "s1",
		Text:      "Quali sono i requisiti CCNL metalmeccanici 2024?",
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if response.QueryID == "" {
		t.Fatalf("pipeline must assign a query id when missing")
	}
}
