package metrics

import "time"

// PipelineObserver binds the service label once and feeds stage-level
// pipeline events into the prometheus registry.
type PipelineObserver struct {
	metrics *HTTPServerMetrics
	service string
}

func NewPipelineObserver(metrics *HTTPServerMetrics, service string) *PipelineObserver {
	return &PipelineObserver{metrics: metrics, service: service}
}

func (o *PipelineObserver) GateDecision(needsRetrieval bool) {
	o.metrics.RecordGateDecision(o.service, needsRetrieval)
}

func (o *PipelineObserver) GoldenLookup(result string) {
	o.metrics.RecordGoldenLookup(o.service, result)
}

func (o *PipelineObserver) SubQuery(source, status string) {
	o.metrics.RecordSubQuery(o.service, source, status)
}

func (o *PipelineObserver) Answer(path string, fusedDocuments, attempts int, lowQuality bool, elapsed time.Duration) {
	o.metrics.RecordAnswer(o.service, path, fusedDocuments, attempts, lowQuality, elapsed)
}

func (o *PipelineObserver) TokenUsage(model string, promptTokens, completionTokens int) {
	o.metrics.RecordTokenUsage(o.service, model, promptTokens, completionTokens)
}
