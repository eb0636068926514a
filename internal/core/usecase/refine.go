package usecase

import (
	"context"
	"log/slog"
	"math/rand"
	"regexp"
	"time"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
)

const (
	defaultMaxAttempts  = 3
	defaultBaseBackoff  = 200 * time.Millisecond
	defaultMaxBackoff   = 2 * time.Second
	defaultMinAggregate = 0.7
	defaultMinDimension = 0.5
)

type RefinerConfig struct {
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	MinAggregate float64
	MinDimension float64
}

func (c RefinerConfig) normalize() RefinerConfig {
	out := c
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = defaultMaxAttempts
	}
	if out.BaseBackoff <= 0 {
		out.BaseBackoff = defaultBaseBackoff
	}
	if out.MaxBackoff < out.BaseBackoff {
		out.MaxBackoff = defaultMaxBackoff
	}
	if out.MinAggregate <= 0 || out.MinAggregate > 1 {
		out.MinAggregate = defaultMinAggregate
	}
	if out.MinDimension <= 0 || out.MinDimension > 1 {
		out.MinDimension = defaultMinDimension
	}
	return out
}

// RefinementOutcome is the terminal state of the loop plus its immutable
// attempt log. Exhausted outcomes carry the best attempt seen.
type RefinementOutcome struct {
	Output     *SynthesisOutput
	Score      domain.QualityScore
	Attempts   []domain.RefinementAttempt
	LowQuality bool
}

type RefinementLoop struct {
	synthesizer *Synthesizer
	cfg         RefinerConfig
	logger      *slog.Logger
}

func NewRefinementLoop(synthesizer *Synthesizer, cfg RefinerConfig, logger *slog.Logger) *RefinementLoop {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefinementLoop{
		synthesizer: synthesizer,
		cfg:         cfg.normalize(),
		logger:      logger,
	}
}

// Run scores the initial synthesis and regenerates with corrective feedback
// until the quality gates pass or the attempt ceiling is reached. Backoff
// waits grow exponentially, are capped, and honor the request deadline.
func (l *RefinementLoop) Run(
	ctx context.Context,
	query domain.Query,
	fused []domain.RetrievedDocument,
	tier domain.ModelTier,
	initial *SynthesisOutput,
) RefinementOutcome {
	attempts := make([]domain.RefinementAttempt, 0, l.cfg.MaxAttempts)

	best := initial
	bestScore := l.scoreAnswer(query, initial, fused)
	current, currentScore := initial, bestScore

	for attempt := 0; ; attempt++ {
		retried := currentScore.Aggregate < l.cfg.MinAggregate || !currentScore.Passed()
		retried = retried && attempt < l.cfg.MaxAttempts-1
		attempts = append(attempts, domain.RefinementAttempt{
			Index:   attempt,
			Answer:  current.Answer,
			Score:   currentScore,
			Retried: retried,
			Elapsed: current.Completion.Elapsed,
		})

		if currentScore.Aggregate >= bestScore.Aggregate {
			best, bestScore = current, currentScore
		}
		if !retried {
			break
		}

		if err := l.waitBackoff(ctx, attempt); err != nil {
			l.logger.Warn("refinement_backoff_cancelled", "attempt", attempt, "error", err)
			break
		}

		regenerated, err := l.synthesizer.Synthesize(ctx, query, fused, tier, currentScore.Failing)
		if err != nil {
			l.logger.Warn("refinement_regeneration_failed", "attempt", attempt, "error", err)
			break
		}
		current = regenerated
		currentScore = l.scoreAnswer(query, current, fused)
	}

	passed := bestScore.Aggregate >= l.cfg.MinAggregate && bestScore.Passed()
	return RefinementOutcome{
		Output:     best,
		Score:      bestScore,
		Attempts:   attempts,
		LowQuality: !passed,
	}
}

func (l *RefinementLoop) waitBackoff(ctx context.Context, attempt int) error {
	wait := l.cfg.BaseBackoff << uint(attempt)
	if wait > l.cfg.MaxBackoff {
		wait = l.cfg.MaxBackoff
	}
	// Jitter spreads concurrent retries out; up to 25% of the base wait.
	wait += time.Duration(rand.Int63n(int64(wait)/4 + 1))

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var (
	citationMarkerPattern = regexp.MustCompile(`\[\d+\]`)
	riskWordPattern       = regexp.MustCompile(`(?i)\b(rischi\w*|sanzion\w*|penal\w*|attenzione|contenzioso)\b`)
	actionWordPattern     = regexp.MustCompile(`(?i)\b(deve|occorre|verificare|presentare|versare|procedere|consiglia\w*|applicare)\b`)
)

// scoreAnswer grades one candidate answer across the quality dimensions.
// All heuristics are deterministic so refinement decisions are replayable.
func (l *RefinementLoop) scoreAnswer(query domain.Query, out *SynthesisOutput, fused []domain.RetrievedDocument) domain.QualityScore {
	dims := map[domain.QualityDimension]float64{
		domain.DimensionCitationCoverage:   scoreCitationCoverage(out.Answer, len(fused)),
		domain.DimensionReasoningCoherence: scoreReasoningCoherence(query.Text, out.Answer),
		domain.DimensionActionRelevance:    scoreActionRelevance(out),
		domain.DimensionRiskCoverage:       scoreRiskCoverage(out),
	}

	aggregate := 0.0
	for _, v := range dims {
		aggregate += v
	}
	aggregate /= float64(len(dims))

	// Fixed order so corrective feedback is stable across runs.
	failing := make([]domain.QualityDimension, 0, len(dims))
	for _, dim := range []domain.QualityDimension{
		domain.DimensionCitationCoverage,
		domain.DimensionReasoningCoherence,
		domain.DimensionActionRelevance,
		domain.DimensionRiskCoverage,
	} {
		if dims[dim] < l.cfg.MinDimension {
			failing = append(failing, dim)
		}
	}

	return domain.QualityScore{Dimensions: dims, Aggregate: aggregate, Failing: failing}
}

func scoreCitationCoverage(answer string, fusedCount int) float64 {
	if fusedCount == 0 {
		// Nothing to cite; grade on the disclaimer being present instead.
		return 1
	}
	markers := len(citationMarkerPattern.FindAllString(answer, -1))
	expected := fusedCount
	if expected > 3 {
		expected = 3
	}
	score := float64(markers) / float64(expected)
	if score > 1 {
		score = 1
	}
	return score
}

func scoreReasoningCoherence(question, answer string) float64 {
	if len(answer) < 40 {
		return 0.2
	}
	overlap := tokenOverlap(toTokenSet(question), toTokenSet(answer))
	score := 0.5 + overlap
	if score > 1 {
		score = 1
	}
	return score
}

func scoreActionRelevance(out *SynthesisOutput) float64 {
	if out.Verdict != nil && out.Verdict.Action != "" {
		return 1
	}
	if actionWordPattern.MatchString(out.Answer) {
		return 0.6
	}
	return 0.2
}

func scoreRiskCoverage(out *SynthesisOutput) float64 {
	if out.Verdict != nil && out.Verdict.Risk != "" {
		return 1
	}
	if riskWordPattern.MatchString(out.Answer) {
		return 0.7
	}
	return 0.3
}
