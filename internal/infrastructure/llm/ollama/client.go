package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
	"github.com/fiscaldesk/fiscaldesk/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL      string
	CheapModel   string
	PremiumModel string
	EmbedModel   string

	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateBurst      int
}

// Client talks to one Ollama instance hosting the cheap tier, the premium
// tier and the embedding model. A shared limiter throttles all outbound
// calls so expansion fan-out cannot starve synthesis.
type Client struct {
	baseURL      string
	cheapModel   string
	premiumModel string
	embedModel   string
	httpClient   *http.Client
	limiter      *rate.Limiter
	executor     *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 4
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 2
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		cheapModel:   cfg.CheapModel,
		premiumModel: cfg.PremiumModel,
		embedModel:   cfg.EmbedModel,
		httpClient:   &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(rate.Limit(rps), burst),
		executor:     executor,
	}
}

func (c *Client) modelFor(tier domain.ModelTier) string {
	if tier == domain.TierPremium {
		return c.premiumModel
	}
	return c.cheapModel
}

type generateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Complete invokes the model mapped to the requested tier and reports token
// accounting from the eval counters.
func (c *Client) Complete(ctx context.Context, prompt string, tier domain.ModelTier) (domain.Completion, error) {
	model := c.modelFor(tier)
	if model == "" {
		return domain.Completion{}, fmt.Errorf("no model configured for tier %q", tier)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Completion{}, err
	}

	request := map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
	}

	start := time.Now()
	var response generateResponse
	err := c.execute(ctx, "ollama_generate_"+string(tier), func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/generate", request, &response, "generate")
	})
	if err != nil {
		return domain.Completion{}, wrapTemporaryIfNeeded("generate completion", err)
	}

	return domain.Completion{
		Text:             strings.TrimSpace(response.Response),
		Model:            model,
		Provider:         "ollama",
		PromptTokens:     response.PromptEvalCount,
		CompletionTokens: response.EvalCount,
		Elapsed:          time.Since(start),
	}, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	request := map[string]any{
		"model": c.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := c.execute(ctx, "ollama_embed", func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed texts", err)
	}
	return response.Embeddings, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, classifyOllamaError)
}
