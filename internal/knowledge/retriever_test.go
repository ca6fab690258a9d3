package knowledge

import (
	"context"
	"testing"
)

func testEntries() []Snippet {
	return []Snippet{
		{Title: "Security deposit norms", Content: "security deposit disputes settle proportionally to documented damage"},
		{Title: "Invoice interest", Content: "delayed invoice payment accrues interest from the due date"},
		{Title: "Warranty replacement", Content: "defective products within warranty qualify for replacement or refund"},
	}
}

func TestStaticRetrieverRanking(t *testing.T) {
	r := NewStaticRetriever(testEntries())

	got, err := r.Search(context.Background(), "security deposit damage", 5, 0.1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("Expected at least one snippet")
	}
	if got[0].Title != "Security deposit norms" {
		t.Errorf("Expected deposit snippet first, got %s", got[0].Title)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Error("Expected descending score order")
		}
	}
}

func TestStaticRetrieverMinScore(t *testing.T) {
	r := NewStaticRetriever(testEntries())

	got, err := r.Search(context.Background(), "security deposit damage", 5, 0.99)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, s := range got {
		if s.Score < 0.99 {
			t.Errorf("Snippet %q below min score: %f", s.Title, s.Score)
		}
	}
}

func TestStaticRetrieverTopK(t *testing.T) {
	r := NewStaticRetriever(testEntries())

	got, err := r.Search(context.Background(), "deposit invoice warranty refund damage", 1, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) > 1 {
		t.Errorf("Expected at most 1 snippet, got %d", len(got))
	}
}

func TestStaticRetrieverEmptyQuery(t *testing.T) {
	r := NewStaticRetriever(testEntries())

	got, err := r.Search(context.Background(), "a an", 5, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no results for a stop-word query, got %d", len(got))
	}
}
