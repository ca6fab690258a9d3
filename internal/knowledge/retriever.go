// Package knowledge adapts a precedent/knowledge base into relevance-scored
// snippets for the analysis orchestrator.
package knowledge

import (
	"context"
	"sort"
	"strings"
)

// Snippet is one ranked knowledge entry.
type Snippet struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Retriever returns snippets ranked by relevance to the query. Entries below
// minScore are dropped by the implementation.
type Retriever interface {
	Search(ctx context.Context, query string, topK int, minScore float64) ([]Snippet, error)
}

// StaticRetriever serves a fixed snippet set with keyword-overlap scoring.
// Used for tests and deployments without a knowledge database.
type StaticRetriever struct {
	entries []Snippet
}

func NewStaticRetriever(entries []Snippet) *StaticRetriever {
	return &StaticRetriever{entries: entries}
}

func (r *StaticRetriever) Search(ctx context.Context, query string, topK int, minScore float64) ([]Snippet, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var out []Snippet
	for _, entry := range r.entries {
		score := overlapScore(terms, entry.Title+" "+entry.Content)
		if score < minScore {
			continue
		}
		scored := entry
		scored.Score = score
		out = append(out, scored)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func queryTerms(query string) []string {
	var terms []string
	for _, t := range strings.Fields(strings.ToLower(query)) {
		if len(t) >= 3 {
			terms = append(terms, t)
		}
	}
	return terms
}

func overlapScore(terms []string, text string) float64 {
	text = strings.ToLower(text)
	matched := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}
