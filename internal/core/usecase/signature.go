package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// QuerySignature derives a deterministic, collision-resistant signature for a
// (session, normalized query, instant) triple. Distinct sessions never share
// a signature for the same text, and repeated calls within one session yield
// distinct signatures because of the microsecond component. Semantic cache
// hits go through the embedding path instead; the signature guards the
// narrow session-replay lookup against stale cross-session collisions.
func QuerySignature(sessionID, text string, now time.Time) string {
	h := fnv.New64a()
	h.Write([]byte(normalizeQueryText(text)))

	material := fmt.Sprintf("%s|%d|%016x", sessionID, now.UnixMicro(), h.Sum64())
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

func normalizeQueryText(text string) string {
	return strings.Join(splitWordsLower(text), " ")
}
