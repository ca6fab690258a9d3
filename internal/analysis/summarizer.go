package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/settleline/internal/dispute"
	"github.com/settleline/internal/llm"
)

// ModelSummarizer compacts older conversation history through the reasoning
// model. Summaries are advisory; the prompt builder falls back to truncation
// when summarization fails.
type ModelSummarizer struct {
	model llm.Client
}

func NewModelSummarizer(model llm.Client) *ModelSummarizer {
	return &ModelSummarizer{model: model}
}

func (s *ModelSummarizer) Summarize(ctx context.Context, messages []*dispute.Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Summarize the following dispute conversation in at most 200 words. ")
	b.WriteString("Preserve concrete claims, amounts, dates, and any points of agreement or contention. ")
	b.WriteString("Attribute positions to plaintiff or defendant, never by name.\n\n")
	for _, msg := range messages {
		fmt.Fprintf(&b, "[%s] %s\n", msg.SenderRole, msg.Body)
	}

	summary, err := s.model.Generate(ctx, b.String())
	if err != nil {
		return "", fmt.Errorf("summarize conversation: %w", err)
	}
	return strings.TrimSpace(summary), nil
}
