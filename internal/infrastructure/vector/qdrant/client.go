package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
	"github.com/fiscaldesk/fiscaldesk/internal/infrastructure/resilience"
)

// Client searches the regulatory corpus collection. Indexing is owned by the
// ingestion service; this side is read-only.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func (c *Client) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedDocument, error) {
	if len(queryVector) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	err = c.execute(ctx, "qdrant_corpus_search", func(ctx context.Context) error {
		return postJSON(ctx, c.httpClient, url, body, &searchResp, "search")
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedDocument, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		doc := domain.RetrievedDocument{
			ID:         getStringPayload(r.Payload, "doc_id"),
			Source:     domain.SourceVector,
			RawScore:   r.Score,
			SourceName: getStringPayload(r.Payload, "source_name"),
			Text:       getStringPayload(r.Payload, "text"),
			Trust:      getFloatPayload(r.Payload, "trust"),
			Metadata:   map[string]string{},
		}
		if url := getStringPayload(r.Payload, "source_url"); url != "" {
			doc.Metadata[domain.MetadataSourceURL] = url
		}
		if published := getTimePayload(r.Payload, "published_at"); published != nil {
			doc.PublishedAt = published
		}
		out = append(out, doc)
	}
	return out, nil
}

func postJSON(ctx context.Context, httpClient *http.Client, url string, body []byte, out any, operation string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(respBody)); msg != "" {
			return fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, msg)
		}
		return fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, classifyQdrantError)
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getFloatPayload(payload map[string]any, key string) float64 {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return f
}

func getTimePayload(payload map[string]any, key string) *time.Time {
	raw := getStringPayload(payload, key)
	if raw == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &parsed
}
