package usecase

import (
	"fmt"
	"sort"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
)

// rankedList is one sub-query result list entering fusion, tagged with the
// index and variant strategy that produced it.
type rankedList struct {
	source   domain.SourceType
	strategy domain.VariantStrategy
	docs     []domain.RetrievedDocument
}

type fusedCandidate struct {
	doc   domain.RetrievedDocument
	score float64
}

// fuseRRF merges ranked lists with Reciprocal Rank Fusion: each document
// accumulates 1/(k+rank+1) per list it appears in, so cross-method and
// cross-variant agreement is rewarded. The final ranking depends only on the
// multiset of (list, rank) pairs, never on merge order. Ties break by
// document id for determinism.
func fuseRRF(lists []rankedList, k int) []domain.RetrievedDocument {
	if k <= 0 {
		k = 60
	}

	acc := make(map[string]fusedCandidate)
	for _, list := range lists {
		tag := fmt.Sprintf("%s/%s", list.source, list.strategy)
		for rank, doc := range list.docs {
			candidate := acc[doc.ID]
			candidate.doc = preferRicherDocument(candidate.doc, doc)
			candidate.doc.Provenance = append(candidate.doc.Provenance, tag)
			candidate.score += 1.0 / float64(k+rank+1)
			acc[doc.ID] = candidate
		}
	}

	out := make([]domain.RetrievedDocument, 0, len(acc))
	for _, c := range acc {
		doc := c.doc
		doc.FusedScore = c.score
		sort.Strings(doc.Provenance)
		out = append(out, doc)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		return out[i].ID < out[j].ID
	})

	return out
}

func trimDocuments(docs []domain.RetrievedDocument, limit int) []domain.RetrievedDocument {
	if limit <= 0 || len(docs) <= limit {
		return docs
	}
	return docs[:limit]
}

func preferRicherDocument(current, candidate domain.RetrievedDocument) domain.RetrievedDocument {
	if current.ID == "" {
		return candidate
	}
	if current.Text == "" && candidate.Text != "" {
		current.Text = candidate.Text
	}
	if current.SourceName == "" && candidate.SourceName != "" {
		current.SourceName = candidate.SourceName
	}
	if current.PublishedAt == nil && candidate.PublishedAt != nil {
		current.PublishedAt = candidate.PublishedAt
	}
	if current.Trust == 0 && candidate.Trust != 0 {
		current.Trust = candidate.Trust
	}
	if candidate.RawScore > current.RawScore {
		current.RawScore = candidate.RawScore
	}
	if current.Metadata == nil && candidate.Metadata != nil {
		current.Metadata = candidate.Metadata
	}
	return current
}
