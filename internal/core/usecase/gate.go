package usecase

import (
	"regexp"
	"strings"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
)

// Regulatory patterns force retrieval. All of them are evaluated so the
// decision carries the full reason list for logging and tuning.
var regulatoryPatterns = []struct {
	reason domain.GateReason
	re     *regexp.Regexp
}{
	{domain.ReasonRecentYear, regexp.MustCompile(`\b20(2[0-9]|[3-9][0-9])\b`)},
	{domain.ReasonArticleCitation, regexp.MustCompile(`(?i)\b(art\.?\s*\d+|articolo\s+\d+|comma\s+\d+)`)},
	{domain.ReasonInstitutionMention, regexp.MustCompile(`(?i)\b(inps|inail|agenzia\s+delle\s+entrate|ministero\s+del\s+lavoro|cassazione|ispettorato)\b`)},
	{domain.ReasonLegalInstrument, regexp.MustCompile(`(?i)\b(decreto|circolare|legge|d\.?\s?lgs|dpcm|risoluzione|interpello|testo\s+unico)\b`)},
	{domain.ReasonCollectiveContract, regexp.MustCompile(`(?i)\bccnl\b|contratto\s+collettivo`)},
	{domain.ReasonDeadlineOrRate, regexp.MustCompile(`(?i)\b(scadenz\w*|prorog\w*|aliquot\w*|massimale|minimale|esonero|detrazion\w*)\b`)},
}

// Basic-reasoning patterns force the cheap no-retrieval path.
var basicReasoningPatterns = []struct {
	reason domain.GateReason
	re     *regexp.Regexp
}{
	{domain.ReasonBasicArithmetic, regexp.MustCompile(`^[\d\s+\-*/().,%=]+$`)},
	{domain.ReasonDefinitionQuestion, regexp.MustCompile(`(?i)^\s*(che\s+cos'?[eè]|cos'?[eè]|cosa\s+significa|what\s+is|definizione\s+di)\b`)},
}

// DecideRetrieval classifies a raw query as needing external evidence or
// not. Pure function, no I/O. Regulatory matches win over basic-reasoning
// matches; with no match at all the default is the cheaper path.
func DecideRetrieval(query string) domain.GateDecision {
	text := strings.TrimSpace(query)
	if text == "" {
		return domain.GateDecision{
			NeedsRetrieval: false,
			Reasons:        []domain.GateReason{domain.ReasonEmptyQuery},
		}
	}

	reasons := make([]domain.GateReason, 0, len(regulatoryPatterns))
	for _, p := range regulatoryPatterns {
		if p.re.MatchString(text) {
			reasons = append(reasons, p.reason)
		}
	}
	if len(reasons) > 0 {
		return domain.GateDecision{NeedsRetrieval: true, Reasons: reasons}
	}

	for _, p := range basicReasoningPatterns {
		if p.re.MatchString(text) {
			return domain.GateDecision{
				NeedsRetrieval: false,
				Reasons:        []domain.GateReason{p.reason},
			}
		}
	}

	return domain.GateDecision{
		NeedsRetrieval: false,
		Reasons:        []domain.GateReason{domain.ReasonNoTimeSensitiveHints},
	}
}
