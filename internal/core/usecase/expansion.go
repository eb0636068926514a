package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
	"github.com/fiscaldesk/fiscaldesk/internal/core/ports"
)

const (
	defaultMaxVariants      = 4
	defaultExpansionTimeout = 8 * time.Second
	ambiguityMinWords       = 4
)

var unresolvedPronounPattern = regexp.MustCompile(`(?i)\b(questo|quello|questa|quella|esso|essa|lo\s+stesso|la\s+stessa|it|this|that)\b`)

var followUpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(e\s+(poi|per|se|quindi)|quindi|anche|invece|ok\s+ma|perch[eé])\b`),
	regexp.MustCompile(`(?i)^\s*(dimmi\s+di\s+pi[uù]|altro|continua|spiegami\s+meglio)\b`),
}

type QueryExpander struct {
	models      ports.ModelProvider
	maxVariants int
	timeout     time.Duration
	logger      *slog.Logger
}

func NewQueryExpander(models ports.ModelProvider, maxVariants int, timeout time.Duration, logger *slog.Logger) *QueryExpander {
	if maxVariants <= 1 {
		maxVariants = defaultMaxVariants
	}
	if timeout <= 0 {
		timeout = defaultExpansionTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryExpander{
		models:      models,
		maxVariants: maxVariants,
		timeout:     timeout,
		logger:      logger,
	}
}

// IsAmbiguous flags queries that need a richer multi-variant expansion:
// too short, unresolved pronouns, or generic follow-up phrasings.
func IsAmbiguous(text string) bool {
	words := splitWordsLower(text)
	if len(words) < ambiguityMinWords {
		return true
	}
	if unresolvedPronounPattern.MatchString(text) {
		return true
	}
	for _, p := range followUpPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Expand produces the retrieval probes for one query: the original, optional
// multi-query paraphrases and one HyDE passage. Model failures degrade to the
// unmodified query alone; expansion never blocks the pipeline.
func (e *QueryExpander) Expand(ctx context.Context, query domain.Query) []domain.QueryVariant {
	variants := []domain.QueryVariant{{Text: query.Text, Strategy: domain.VariantOriginal}}

	expandCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if IsAmbiguous(query.Text) {
		variants = append(variants, e.multiQueryVariants(expandCtx, query.Text, e.maxVariants-2)...)
	}
	if hyde := e.hydeVariant(expandCtx, query.Text); hyde != nil {
		variants = append(variants, *hyde)
	}

	if len(variants) > e.maxVariants {
		variants = variants[:e.maxVariants]
	}
	return variants
}

func (e *QueryExpander) multiQueryVariants(ctx context.Context, text string, limit int) []domain.QueryVariant {
	if limit <= 0 {
		return nil
	}

	prompt := fmt.Sprintf(`Rephrase the user question below in %d alternative ways.
Preserve the original intent exactly. Keep Italian tax and labor terminology.
Return one rephrasing per line, no numbering, no extra text.

Question:
%s`, limit, text)

	completion, err := e.models.Complete(ctx, prompt, domain.TierCheap)
	if err != nil {
		e.logger.Warn("multi_query_expansion_failed", "error", err)
		return nil
	}

	out := make([]domain.QueryVariant, 0, limit)
	for _, line := range strings.Split(completion.Text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line == "" || strings.EqualFold(line, text) {
			continue
		}
		out = append(out, domain.QueryVariant{Text: line, Strategy: domain.VariantMultiQuery})
		if len(out) == limit {
			break
		}
	}
	return out
}

func (e *QueryExpander) hydeVariant(ctx context.Context, text string) *domain.QueryVariant {
	prompt := fmt.Sprintf(`Write a short hypothetical passage (3-4 sentences) that would answer the
question below, as if extracted from an Italian tax or labor regulation note.
The passage is used only as a search probe, factual precision is not required.
Return only the passage.

Question:
%s`, text)

	completion, err := e.models.Complete(ctx, prompt, domain.TierCheap)
	if err != nil {
		e.logger.Warn("hyde_expansion_failed", "error", err)
		return nil
	}
	passage := strings.TrimSpace(completion.Text)
	if passage == "" {
		return nil
	}
	return &domain.QueryVariant{Text: passage, Strategy: domain.VariantHyDE}
}
