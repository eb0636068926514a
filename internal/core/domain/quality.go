package domain

import "time"

type QualityDimension string

const (
	DimensionCitationCoverage   QualityDimension = "citation_coverage"
	DimensionReasoningCoherence QualityDimension = "reasoning_coherence"
	DimensionActionRelevance    QualityDimension = "action_relevance"
	DimensionRiskCoverage       QualityDimension = "risk_coverage"
)

// QualityScore holds per-dimension scores in [0,1] plus the aggregate.
// Failing lists the dimensions below threshold, in a fixed order, and feeds
// the corrective instructions of the next refinement attempt.
type QualityScore struct {
	Dimensions map[QualityDimension]float64 `json:"dimensions"`
	Aggregate  float64                      `json:"aggregate"`
	Failing    []QualityDimension           `json:"failing,omitempty"`
}

func (s QualityScore) Passed() bool {
	return len(s.Failing) == 0
}

// RefinementAttempt is one entry of the append-only per-query attempt log.
type RefinementAttempt struct {
	Index   int           `json:"index"`
	Answer  string        `json:"answer"`
	Score   QualityScore  `json:"score"`
	Retried bool          `json:"retried"`
	Elapsed time.Duration `json:"elapsed"`
}
