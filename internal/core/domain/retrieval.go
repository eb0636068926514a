package domain

import "time"

type SourceType string

const (
	SourceLexical SourceType = "lexical"
	SourceVector  SourceType = "vector"
)

// MetadataSourceURL is the metadata key carrying the citation URL when the
// originating index knows one.
const MetadataSourceURL = "source_url"

type SearchFilter struct {
	Category string `json:"category,omitempty"`
}

type RetrievedDocument struct {
	ID          string            `json:"id"`
	Source      SourceType        `json:"source"`
	RawScore    float64           `json:"raw_score"`
	FusedScore  float64           `json:"fused_score"`
	SourceName  string            `json:"source_name"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	Text        string            `json:"text"`
	Trust       float64           `json:"trust"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	// Provenance lists the (source, variant strategy) pairs that surfaced
	// this document, e.g. "lexical/original".
	Provenance []string `json:"provenance,omitempty"`
}

const (
	SkipReasonGateNegative  = "gate_negative"
	FailReasonAllSubQueries = "all_subqueries_failed"
)

// RetrievalResult is the fused output of one retrieval fan-out. Skipped and
// Failed are mutually exclusive with a non-empty Documents slice; Reason
// distinguishes "did not search" from "found nothing".
type RetrievalResult struct {
	Documents       []RetrievedDocument `json:"documents"`
	TotalCandidates int                 `json:"total_candidates"`
	SearchTime      time.Duration       `json:"search_time"`
	Skipped         bool                `json:"skipped"`
	Failed          bool                `json:"failed"`
	Reason          string              `json:"reason,omitempty"`
}
