package usecase

import (
	"testing"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
)

func TestDecideRetrievalTable(t *testing.T) {
	cases := []struct {
		query string
		want  bool
	}{
		{"Quali sono i requisiti CCNL metalmeccanici 2024?", true},
		{"Aliquote INPS artigiani 2025", true},
		{"Cosa prevede l'articolo 2103 del codice civile?", true},
		{"circolare agenzia delle entrate su superbonus", true},
		{"scadenza versamento IVA", true},
		{"decreto lavoro ultime novità", true},
		{"2+2", false},
		{"15 * 3 - 7", false},
		{"che cos'è il TFR", false},
		{"what is a payroll", false},
		{"grazie mille", false},
		{"", false},
	}

	for _, tc := range cases {
		got := DecideRetrieval(tc.query)
		if got.NeedsRetrieval != tc.want {
			t.Errorf("DecideRetrieval(%q) = %v, want %v (reasons=%v)", tc.query, got.NeedsRetrieval, tc.want, got.Reasons)
		}
		if len(got.Reasons) == 0 {
			t.Errorf("DecideRetrieval(%q) returned no reasons", tc.query)
		}
	}
}

func TestDecideRetrievalRecentYearsForceRetrieval(t *testing.T) {
	for _, q := range []string{"novità 2020", "bonus 2024", "manovra 2031", "riforma 2099"} {
		if got := DecideRetrieval(q); !got.NeedsRetrieval {
			t.Errorf("expected needs_retrieval=true for %q, got reasons=%v", q, got.Reasons)
		}
	}
}

func TestDecideRetrievalCollectsAllReasons(t *testing.T) {
	got := DecideRetrieval("CCNL commercio 2024, articolo 12, circolare INPS")
	if !got.NeedsRetrieval {
		t.Fatalf("expected needs_retrieval=true")
	}
	want := map[domain.GateReason]bool{
		domain.ReasonRecentYear:         true,
		domain.ReasonArticleCitation:    true,
		domain.ReasonInstitutionMention: true,
		domain.ReasonLegalInstrument:    true,
		domain.ReasonCollectiveContract: true,
	}
	seen := make(map[domain.GateReason]bool, len(got.Reasons))
	for _, r := range got.Reasons {
		seen[r] = true
	}
	for reason := range want {
		if !seen[reason] {
			t.Errorf("expected reason %s in %v", reason, got.Reasons)
		}
	}
}

func TestDecideRetrievalEmptyQuery(t *testing.T) {
	got := DecideRetrieval("   ")
	if got.NeedsRetrieval {
		t.Fatalf("expected needs_retrieval=false for blank query")
	}
	if len(got.Reasons) != 1 || got.Reasons[0] != domain.ReasonEmptyQuery {
		t.Fatalf("expected [empty_query], got %v", got.Reasons)
	}
}

func TestDecideRetrievalDefaultsToCheapPath(t *testing.T) {
	got := DecideRetrieval("puoi aiutarmi con una domanda")
	if got.NeedsRetrieval {
		t.Fatalf("expected needs_retrieval=false without hints")
	}
	if len(got.Reasons) != 1 || got.Reasons[0] != domain.ReasonNoTimeSensitiveHints {
		t.Fatalf("expected [no_time_sensitive_hints], got %v", got.Reasons)
	}
}
