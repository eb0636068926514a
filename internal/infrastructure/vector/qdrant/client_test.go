package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
)

func TestSearchMapsPayloadToDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/corpus/points/search" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload["with_payload"] != true {
			t.Fatalf("search must request payloads")
		}
		_, _ = w.Write([]byte(`{"result":[
			{"score":0.91,"payload":{
				"doc_id":"circ-45","source_name":"Circolare INPS 45/2024",
				"text":"testo","trust":0.9,
				"source_url":"https://example.it/c45",
				"published_at":"2024-03-15T00:00:00Z"
			}},
			{"score":0.85,"payload":{"doc_id":"ccnl-1","source_name":"CCNL","text":"t2"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "corpus", nil)
	docs, err := client.Search(context.Background(), []float32{0.1, 0.2}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}

	first := docs[0]
	if first.ID != "circ-45" || first.Source != domain.SourceVector {
		t.Fatalf("unexpected document: %+v", first)
	}
	if first.RawScore != 0.91 || first.Trust != 0.9 {
		t.Fatalf("unexpected scores: %+v", first)
	}
	if first.Metadata[domain.MetadataSourceURL] != "https://example.it/c45" {
		t.Fatalf("missing source url: %+v", first.Metadata)
	}
	if first.PublishedAt == nil || first.PublishedAt.Year() != 2024 {
		t.Fatalf("unexpected published date: %+v", first.PublishedAt)
	}
	if docs[1].PublishedAt != nil {
		t.Fatalf("missing date must stay nil")
	}
}

func TestSearchEmptyVectorShortCircuits(t *testing.T) {
	client := New("http://localhost:6333", "corpus", nil)
	docs, err := client.Search(context.Background(), nil, 5)
	if err != nil || docs != nil {
		t.Fatalf("empty vector must return nothing, got %v, %v", docs, err)
	}
}

func TestSearchIncludesBodyInStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, "corpus", nil)
	_, err := client.Search(context.Background(), []float32{0.1}, 5)
	if err == nil {
		t.Fatalf("expected error")
	}
}
