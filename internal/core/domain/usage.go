package domain

import "time"

// UsageRecord is the fire-and-forget audit record emitted once per request.
// Recording failures never fail the request.
type UsageRecord struct {
	RequestID        string              `json:"request_id"`
	SessionID        string              `json:"session_id"`
	Path             AnswerPath          `json:"path"`
	Model            string              `json:"model"`
	Provider         string              `json:"provider"`
	PromptTokens     int                 `json:"prompt_tokens"`
	CompletionTokens int                 `json:"completion_tokens"`
	GateReasons      []GateReason        `json:"gate_reasons"`
	NeedsRetrieval   bool                `json:"needs_retrieval"`
	FusedDocuments   int                 `json:"fused_documents"`
	Attempts         []RefinementAttempt `json:"attempts,omitempty"`
	LowQuality       bool                `json:"low_quality"`
	Latency          time.Duration       `json:"latency"`
	CreatedAt        time.Time           `json:"created_at"`
}
