package domain

import "time"

// GoldenCandidate is an expert-approved question/answer pair. Candidates are
// written by the expert-feedback service and read-only on the query path.
type GoldenCandidate struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Trust     float64   `json:"trust"`
	Embedding []float32 `json:"-"`
	Signature string    `json:"signature"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	GoldenMatchSignature = "signature"
	GoldenMatchSemantic  = "semantic"
)

type GoldenMatch struct {
	Candidate  GoldenCandidate `json:"candidate"`
	Similarity float64         `json:"similarity"`
	Strategy   string          `json:"strategy"`
}
