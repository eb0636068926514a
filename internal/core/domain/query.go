package domain

import "time"

// Query is the immutable input of the pipeline.
type Query struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	AskedAt   time.Time `json:"asked_at"`
}

type GateReason string

const (
	ReasonEmptyQuery           GateReason = "empty_query"
	ReasonRecentYear           GateReason = "recent_year"
	ReasonArticleCitation      GateReason = "article_citation"
	ReasonInstitutionMention   GateReason = "institution_mention"
	ReasonLegalInstrument      GateReason = "legal_instrument"
	ReasonCollectiveContract   GateReason = "collective_contract"
	ReasonDeadlineOrRate       GateReason = "deadline_or_rate"
	ReasonBasicArithmetic      GateReason = "basic_arithmetic"
	ReasonDefinitionQuestion   GateReason = "definition_question"
	ReasonNoTimeSensitiveHints GateReason = "no_time_sensitive_hints"
)

// GateDecision is derived per query and never persisted.
type GateDecision struct {
	NeedsRetrieval bool         `json:"needs_retrieval"`
	Reasons        []GateReason `json:"reasons"`
}

type VariantStrategy string

const (
	VariantOriginal   VariantStrategy = "original"
	VariantMultiQuery VariantStrategy = "multi_query"
	VariantHyDE       VariantStrategy = "hyde"
)

// QueryVariant is one retrieval probe. HyDE variants are never shown to
// the user; the strategy tag keeps provenance auditable after fusion.
type QueryVariant struct {
	Text     string          `json:"text"`
	Strategy VariantStrategy `json:"strategy"`
}
