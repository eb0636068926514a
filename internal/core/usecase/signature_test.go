package usecase

import (
	"testing"
	"time"
)

func TestQuerySignatureDistinctAcrossSessions(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	a := QuerySignature("session-a", "requisiti CCNL 2024", now)
	b := QuerySignature("session-b", "requisiti CCNL 2024", now)
	if a == b {
		t.Fatalf("identical text in distinct sessions must not collide")
	}
}

func TestQuerySignatureDistinctAcrossCalls(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	a := QuerySignature("session-a", "requisiti CCNL 2024", now)
	b := QuerySignature("session-a", "requisiti CCNL 2024", now.Add(time.Microsecond))
	if a == b {
		t.Fatalf("repeated calls in one session must produce distinct signatures")
	}
}

func TestQuerySignatureDeterministicForSameInstant(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	a := QuerySignature("session-a", "Requisiti  CCNL 2024?", now)
	b := QuerySignature("session-a", "requisiti ccnl 2024", now)
	if a != b {
		t.Fatalf("normalization should make case/whitespace/punctuation irrelevant")
	}
}
