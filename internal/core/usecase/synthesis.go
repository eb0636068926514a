package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
	"github.com/fiscaldesk/fiscaldesk/internal/core/ports"
)

const (
	defaultMaxContextDocs = 8

	// Two hypotheses are considered competing when the weaker one carries
	// at least this share of the dominant one's weight.
	conflictWeightRatio = 0.5
)

// SynthesisOutput bundles one model invocation's parsed results.
type SynthesisOutput struct {
	Answer     string
	Verdict    *domain.Verdict
	Hypotheses []domain.ReasoningHypothesis
	Conflict   bool
	Completion domain.Completion
}

type Synthesizer struct {
	models         ports.ModelProvider
	maxContextDocs int
}

func NewSynthesizer(models ports.ModelProvider, maxContextDocs int) *Synthesizer {
	if maxContextDocs <= 0 {
		maxContextDocs = defaultMaxContextDocs
	}
	return &Synthesizer{models: models, maxContextDocs: maxContextDocs}
}

// SelectTier picks the model tier for a query. Deep technical research
// (several regulatory triggers, long composite questions) goes premium;
// everything else stays on the cheap default.
func SelectTier(query domain.Query, gate domain.GateDecision) domain.ModelTier {
	regulatory := 0
	for _, reason := range gate.Reasons {
		switch reason {
		case domain.ReasonArticleCitation, domain.ReasonLegalInstrument,
			domain.ReasonInstitutionMention, domain.ReasonCollectiveContract:
			regulatory++
		}
	}
	if regulatory >= 2 {
		return domain.TierPremium
	}
	if len(splitWordsLower(query.Text)) > 25 {
		return domain.TierPremium
	}
	return domain.TierCheap
}

// Synthesize builds the grounded prompt from the fused documents, invokes
// the selected tier and parses the free-text output. Corrective instructions
// from a previous refinement attempt are appended when present.
func (s *Synthesizer) Synthesize(
	ctx context.Context,
	query domain.Query,
	fused []domain.RetrievedDocument,
	tier domain.ModelTier,
	corrective []domain.QualityDimension,
) (*SynthesisOutput, error) {
	contextDocs := trimDocuments(fused, s.maxContextDocs)
	prompt := buildGroundedPrompt(query.Text, contextDocs, corrective)

	completion, err := s.models.Complete(ctx, prompt, tier)
	if err != nil {
		return nil, domain.WrapError(domain.ErrModelUnavailable, "synthesize answer", err)
	}

	hypotheses, conflict := buildHypotheses(contextDocs)
	answer, verdict := parseVerdict(completion.Text)

	return &SynthesisOutput{
		Answer:     answer,
		Verdict:    verdict,
		Hypotheses: hypotheses,
		Conflict:   conflict,
		Completion: completion,
	}, nil
}

func buildGroundedPrompt(question string, docs []domain.RetrievedDocument, corrective []domain.QualityDimension) string {
	var b strings.Builder
	b.WriteString(`You are an assistant for Italian tax and labor regulation.
Answer the question using only the numbered sources below and cite them with
markers like [1]. If the sources are insufficient, say so explicitly.
Close the answer with an operational block in this exact shape:

VERDETTO:
AZIONE: <recommended course of action>
SCADENZA: <deadline if any, otherwise "nessuna">
RISCHIO: <main risk if the action is skipped>

`)

	if len(docs) == 0 {
		b.WriteString("No sources were found for this question. State clearly that the answer\nis not grounded in retrieved regulation and keep it generic.\n\n")
	} else {
		b.WriteString("Sources:\n")
		for i, doc := range docs {
			b.WriteString(fmt.Sprintf("[%d] %s", i+1, doc.SourceName))
			if doc.PublishedAt != nil {
				b.WriteString(fmt.Sprintf(" (%s)", doc.PublishedAt.Format("2006-01-02")))
			}
			if url := doc.Metadata[domain.MetadataSourceURL]; url != "" {
				b.WriteString(" " + url)
			}
			b.WriteString("\n")
			b.WriteString(doc.Text)
			b.WriteString("\n\n")
		}
	}

	for _, dim := range corrective {
		b.WriteString("Correction: " + correctiveInstruction(dim) + "\n")
	}

	b.WriteString("\nQuestion:\n")
	b.WriteString(question)
	b.WriteString("\n")
	return b.String()
}

func correctiveInstruction(dim domain.QualityDimension) string {
	switch dim {
	case domain.DimensionCitationCoverage:
		return "cite the numbered sources explicitly with [n] markers for every claim."
	case domain.DimensionReasoningCoherence:
		return "structure the reasoning in complete, connected sentences that address the question."
	case domain.DimensionActionRelevance:
		return "make the AZIONE line a concrete, actionable recommendation."
	case domain.DimensionRiskCoverage:
		return "spell out the compliance risk in the RISCHIO line."
	default:
		return "improve the overall answer quality."
	}
}

// parseVerdict extracts the VERDETTO block. Tolerant by contract: malformed
// output returns the raw text with a nil verdict, never an error.
func parseVerdict(raw string) (string, *domain.Verdict) {
	text := strings.TrimSpace(raw)
	idx := strings.LastIndex(strings.ToUpper(text), "VERDETTO")
	if idx < 0 {
		return text, nil
	}

	answer := strings.TrimSpace(text[:idx])
	block := text[idx:]

	verdict := &domain.Verdict{}
	for _, line := range strings.Split(block, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "AZIONE":
			verdict.Action = value
		case "SCADENZA":
			if !strings.EqualFold(value, "nessuna") {
				verdict.Deadline = value
			}
		case "RISCHIO":
			verdict.Risk = value
		}
	}

	if verdict.Action == "" {
		return text, nil
	}
	if answer == "" {
		answer = text
	}
	return answer, verdict
}

// buildHypotheses groups the fused documents by source name and weighs each
// group by aggregate trust. More than one heavy group means the sources
// support different interpretations and the conflict is surfaced.
func buildHypotheses(docs []domain.RetrievedDocument) ([]domain.ReasoningHypothesis, bool) {
	if len(docs) == 0 {
		return nil, false
	}

	groups := make(map[string][]domain.RetrievedDocument)
	order := make([]string, 0, 4)
	for _, doc := range docs {
		name := doc.SourceName
		if name == "" {
			name = "unknown"
		}
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], doc)
	}
	if len(groups) < 2 {
		return nil, false
	}

	hypotheses := make([]domain.ReasoningHypothesis, 0, len(groups))
	for _, name := range order {
		group := groups[name]
		weight := 0.0
		ids := make([]string, 0, len(group))
		for _, doc := range group {
			weight += doc.Trust
			ids = append(ids, doc.ID)
		}
		hypotheses = append(hypotheses, domain.ReasoningHypothesis{
			Interpretation: fmt.Sprintf("interpretation supported by %s", name),
			Weight:         weight,
			SupportingDocs: ids,
		})
	}

	// Dominant hypothesis first; ties break by first supporting doc id.
	sort.SliceStable(hypotheses, func(i, j int) bool {
		if hypotheses[i].Weight != hypotheses[j].Weight {
			return hypotheses[i].Weight > hypotheses[j].Weight
		}
		return hypotheses[i].SupportingDocs[0] < hypotheses[j].SupportingDocs[0]
	})

	conflict := hypotheses[0].Weight > 0 &&
		hypotheses[1].Weight >= hypotheses[0].Weight*conflictWeightRatio
	return hypotheses, conflict
}
