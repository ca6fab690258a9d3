package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/settleline/internal/dispute"
	"github.com/settleline/internal/evidence"
	"github.com/settleline/internal/knowledge"
)

// Summarizer compacts older conversation history. Memory compaction is an
// external collaborator's policy; only its output text is consumed here.
type Summarizer interface {
	Summarize(ctx context.Context, messages []*dispute.Message) (string, error)
}

// Legal context sent to the model per case category.
var categoryContext = map[string]string{
	"contract":   "Apply general contract principles: offer, acceptance, consideration, breach remedies, and good-faith performance.",
	"payment":    "Consider payment obligations, interest on delayed payment, partial settlement structures, and documented proof of transfer.",
	"property":   "Consider tenancy obligations, security deposit rules, documented damage assessment, and proportionate compensation.",
	"employment": "Consider employment terms, notice periods, documented performance records, and severance norms.",
	"consumer":   "Consider product warranty obligations, replacement versus refund remedies, and service deficiency standards.",
}

// promptBuilder assembles model input in priority order: case profile,
// knowledge snippets, category legal context, compacted conversation,
// evidence descriptions with OCR text.
type promptBuilder struct {
	recentWindow int
	summarizer   Summarizer
}

func (b *promptBuilder) build(ctx context.Context, d *dispute.Dispute, prof *dispute.CaseProfile, snippets []knowledge.Snippet, messages []*dispute.Message, items []*evidence.Evidence) string {
	var sb strings.Builder

	sb.WriteString("You are a neutral mediator proposing settlements for a two-party dispute.\n\n")
	fmt.Fprintf(&sb, "DISPUTE: %s\n%s\n\n", d.Title, d.Description)

	fmt.Fprintf(&sb, "CASE PROFILE\ncategory: %s\nseverity: %s\n", prof.Category, prof.Severity)
	if prof.MonetaryAmount > 0 {
		fmt.Fprintf(&sb, "monetary amount: %.2f\n", prof.MonetaryAmount)
	}
	if len(prof.KeyIssues) > 0 {
		fmt.Fprintf(&sb, "key issues: %s\n", strings.Join(prof.KeyIssues, "; "))
	}
	if prof.PlaintiffPosition != "" {
		fmt.Fprintf(&sb, "plaintiff position: %s\n", prof.PlaintiffPosition)
	}
	if prof.DefendantPosition != "" {
		fmt.Fprintf(&sb, "respondent position: %s\n", prof.DefendantPosition)
	}
	sb.WriteString("\n")

	if len(snippets) > 0 {
		sb.WriteString("RELEVANT PRECEDENTS\n")
		for _, s := range snippets {
			fmt.Fprintf(&sb, "- %s: %s\n", s.Title, s.Content)
		}
		sb.WriteString("\n")
	}

	if legal, ok := categoryContext[prof.Category]; ok {
		fmt.Fprintf(&sb, "LEGAL CONTEXT\n%s\n\n", legal)
	}

	sb.WriteString("CONVERSATION\n")
	sb.WriteString(b.conversation(ctx, messages))
	sb.WriteString("\n")

	if len(items) > 0 {
		sb.WriteString("EVIDENCE\n")
		for _, e := range items {
			fmt.Fprintf(&sb, "- %s (%s, uploaded by %s)", e.FileName, e.MediaType, e.OwnerEmail)
			if e.Description != "" {
				fmt.Fprintf(&sb, ": %s", e.Description)
			}
			if e.OCRStatus == evidence.OCRCompleted && e.OCRText != "" {
				fmt.Fprintf(&sb, "\n  extracted text: %s", truncate(e.OCRText, 1000))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, `Propose at most %d settlement options. Respond with JSON only:
{"solutions": [{"title": "...", "description": "...", "rationale": "..."}]}
`, dispute.MaxSolutions)
	return sb.String()
}

// conversation returns the full history when short, otherwise a summarized
// older portion plus the verbatim recent window.
func (b *promptBuilder) conversation(ctx context.Context, messages []*dispute.Message) string {
	window := b.recentWindow
	if window <= 0 {
		window = 10
	}

	var sb strings.Builder
	recent := messages
	if len(messages) > window {
		older := messages[:len(messages)-window]
		recent = messages[len(messages)-window:]

		if b.summarizer != nil {
			if summary, err := b.summarizer.Summarize(ctx, older); err == nil && summary != "" {
				fmt.Fprintf(&sb, "[summary of %d earlier messages] %s\n", len(older), summary)
			} else {
				fmt.Fprintf(&sb, "[%d earlier messages omitted]\n", len(older))
			}
		} else {
			fmt.Fprintf(&sb, "[%d earlier messages omitted]\n", len(older))
		}
	}
	for _, m := range recent {
		fmt.Fprintf(&sb, "%s: %s\n", m.SenderRole, m.Body)
	}
	return sb.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
