package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
	"github.com/fiscaldesk/fiscaldesk/internal/infrastructure/resilience"
)

// GoldenClient searches the golden-set collection of expert-approved answers
// by embedding similarity. Writes are owned by the expert-feedback service.
type GoldenClient struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor
}

func NewGoldenClient(baseURL, collection string, executor *resilience.Executor) *GoldenClient {
	return &GoldenClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func (c *GoldenClient) FindSimilar(ctx context.Context, queryVector []float32, limit int) ([]domain.GoldenMatch, error) {
	if len(queryVector) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 3
	}

	reqBody := map[string]any{
		"query":        queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal golden query body: %w", err)
	}

	var queryResp struct {
		Result struct {
			Points []struct {
				ID      any            `json:"id"`
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}

	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection)
	err = c.executeGolden(ctx, func(ctx context.Context) error {
		return postJSON(ctx, c.httpClient, url, body, &queryResp, "golden query")
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.GoldenMatch, 0, len(queryResp.Result.Points))
	for _, p := range queryResp.Result.Points {
		candidate := domain.GoldenCandidate{
			ID:        getStringPayload(p.Payload, "golden_id"),
			Question:  getStringPayload(p.Payload, "question"),
			Answer:    getStringPayload(p.Payload, "answer"),
			Trust:     getFloatPayload(p.Payload, "trust"),
			Signature: getStringPayload(p.Payload, "signature"),
		}
		if candidate.ID == "" {
			candidate.ID = fmt.Sprintf("%v", p.ID)
		}
		if created := getTimePayload(p.Payload, "created_at"); created != nil {
			candidate.CreatedAt = *created
		}
		out = append(out, domain.GoldenMatch{
			Candidate:  candidate,
			Similarity: p.Score,
		})
	}
	return out, nil
}

func (c *GoldenClient) executeGolden(ctx context.Context, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, "qdrant_golden_query", fn, classifyQdrantError)
}
