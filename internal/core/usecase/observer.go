package usecase

import "time"

// PipelineObserver receives stage-level signals for metrics export. Core
// logic only emits events; the metrics backend lives behind this interface.
type PipelineObserver interface {
	GateDecision(needsRetrieval bool)
	GoldenLookup(result string)
	SubQuery(source, status string)
	Answer(path string, fusedDocuments, attempts int, lowQuality bool, elapsed time.Duration)
	TokenUsage(model string, promptTokens, completionTokens int)
}

type nopObserver struct{}

func (nopObserver) GateDecision(bool)                            {}
func (nopObserver) GoldenLookup(string)                          {}
func (nopObserver) SubQuery(string, string)                      {}
func (nopObserver) Answer(string, int, int, bool, time.Duration) {}
func (nopObserver) TokenUsage(string, int, int)                  {}
