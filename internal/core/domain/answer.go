package domain

import "time"

type ModelTier string

const (
	TierCheap   ModelTier = "cheap"
	TierPremium ModelTier = "premium"
)

// Completion is one model invocation with its cost accounting.
type Completion struct {
	Text             string        `json:"text"`
	Model            string        `json:"model"`
	Provider         string        `json:"provider"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	Elapsed          time.Duration `json:"elapsed"`
}

// Verdict is the fixed-shape operational summary extracted from free-text
// model output. A nil *Verdict means the parser found none.
type Verdict struct {
	Action   string `json:"action"`
	Deadline string `json:"deadline,omitempty"`
	Risk     string `json:"risk,omitempty"`
}

// ReasoningHypothesis is one candidate interpretation backed by a subset of
// the fused documents. Weight is proportional to aggregate source trust.
type ReasoningHypothesis struct {
	Interpretation string   `json:"interpretation"`
	Weight         float64  `json:"weight"`
	SupportingDocs []string `json:"supporting_docs"`
}

type Citation struct {
	DocumentID string `json:"document_id"`
	SourceName string `json:"source_name"`
	URL        string `json:"url,omitempty"`
}

type AnswerPath string

const (
	PathGolden    AnswerPath = "golden"
	PathSynthesis AnswerPath = "synthesis"
)

// QueryResponse is the single structured result handed to the response layer.
type QueryResponse struct {
	QueryID            string                `json:"query_id"`
	Answer             string                `json:"answer"`
	Verdict            *Verdict              `json:"verdict,omitempty"`
	Citations          []Citation            `json:"citations"`
	Hypotheses         []ReasoningHypothesis `json:"hypotheses,omitempty"`
	ConflictingSources bool                  `json:"conflicting_sources"`
	LowQuality         bool                  `json:"low_quality"`
	Path               AnswerPath            `json:"path"`
	Attempts           int                   `json:"attempts"`
	Gate               GateDecision          `json:"gate"`
}
