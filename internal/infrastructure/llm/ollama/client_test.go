package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
)

func TestCompleteRoutesTierToModel(t *testing.T) {
	var capturedModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		capturedModel, _ = payload["model"].(string)
		_, _ = w.Write([]byte(`{"response":"ok","prompt_eval_count":12,"eval_count":7}`))
	}))
	defer server.Close()

	client := New(Config{
		BaseURL:      server.URL,
		CheapModel:   "piccolo",
		PremiumModel: "grande",
		EmbedModel:   "embed",
		RateLimitRPS: 1000,
		RateBurst:    10,
	}, nil)

	completion, err := client.Complete(context.Background(), "prompt", domain.TierPremium)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if capturedModel != "grande" {
		t.Fatalf("premium tier must use the premium model, got %q", capturedModel)
	}
	if completion.PromptTokens != 12 || completion.CompletionTokens != 7 {
		t.Fatalf("unexpected token accounting: %+v", completion)
	}
	if completion.Provider != "ollama" || completion.Model != "grande" {
		t.Fatalf("unexpected provenance: %+v", completion)
	}

	if _, err := client.Complete(context.Background(), "prompt", domain.TierCheap); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if capturedModel != "piccolo" {
		t.Fatalf("cheap tier must use the cheap model, got %q", capturedModel)
	}
}

func TestCompleteRetryableStatusWrapsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, CheapModel: "piccolo", RateLimitRPS: 1000, RateBurst: 10}, nil)
	_, err := client.Complete(context.Background(), "prompt", domain.TierCheap)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if !strings.Contains(err.Error(), "model loading") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestEmbedQueryReturnsFirstVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, EmbedModel: "embed", RateLimitRPS: 1000, RateBurst: 10}, nil)
	vector, err := client.EmbedQuery(context.Background(), "testo")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vector) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(vector))
	}
}

func TestCompleteMissingModelFails(t *testing.T) {
	client := New(Config{BaseURL: "http://localhost:11434", CheapModel: "piccolo"}, nil)
	if _, err := client.Complete(context.Background(), "prompt", domain.TierPremium); err == nil {
		t.Fatalf("expected error for unconfigured premium model")
	}
}
