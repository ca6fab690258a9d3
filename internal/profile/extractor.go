// Package profile derives structured case metadata from dispute text. The
// profile is advisory context for the analysis orchestrator: it never
// participates in state-machine guards, and extraction failure always
// degrades to a safe default instead of an error.
package profile

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/settleline/internal/dispute"
)

// Default profile values used by callers when no profile is available.
const (
	DefaultCategory = "other"
	DefaultSeverity = "medium"
)

var categoryKeywords = map[string][]string{
	"contract":   {"contract", "agreement", "breach", "clause", "terms"},
	"payment":    {"payment", "refund", "invoice", "owed", "salary", "deposit", "loan"},
	"property":   {"property", "rent", "lease", "landlord", "tenant", "damage"},
	"employment": {"employment", "employer", "dismissal", "termination", "workplace"},
	"consumer":   {"product", "warranty", "defective", "purchase", "service"},
}

var severityKeywords = map[string][]string{
	"high": {"fraud", "threat", "urgent", "criminal", "harassment"},
	"low":  {"minor", "small", "misunderstanding"},
}

// Amounts written as "Rs. 50,000", "₹50000", "$1,200.50" and similar.
var amountPattern = regexp.MustCompile(`(?:₹|\$|€|rs\.?\s*|inr\s*)\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)

// Extractor derives and caches case profiles. The cache version tracks the
// message count the profile was derived from; a newer conversation
// regenerates opportunistically. Safe for concurrent use.
type Extractor struct {
	mu    sync.RWMutex
	cache map[string]*dispute.CaseProfile
}

func NewExtractor() *Extractor {
	return &Extractor{cache: make(map[string]*dispute.CaseProfile)}
}

// Default returns the fallback profile used when extraction is unavailable.
func Default() *dispute.CaseProfile {
	return &dispute.CaseProfile{Category: DefaultCategory, Severity: DefaultSeverity}
}

// Extract returns the case profile for the dispute, regenerating when the
// conversation has grown past the cached version. It never returns an error:
// callers always get a usable profile.
func (e *Extractor) Extract(ctx context.Context, d *dispute.Dispute, messages []*dispute.Message) *dispute.CaseProfile {
	version := len(messages)

	e.mu.RLock()
	cached, ok := e.cache[d.ID]
	e.mu.RUnlock()
	if ok && cached.Version >= version {
		return cached
	}

	p := derive(d, messages)
	p.Version = version

	e.mu.Lock()
	e.cache[d.ID] = p
	e.mu.Unlock()

	log.Debug().
		Str("dispute_id", d.ID).
		Str("category", p.Category).
		Str("severity", p.Severity).
		Float64("monetary_amount", p.MonetaryAmount).
		Int("version", p.Version).
		Msg("Case profile regenerated")
	return p
}

// Invalidate drops the cached profile, forcing regeneration on next use.
func (e *Extractor) Invalidate(disputeID string) {
	e.mu.Lock()
	delete(e.cache, disputeID)
	e.mu.Unlock()
}

func derive(d *dispute.Dispute, messages []*dispute.Message) *dispute.CaseProfile {
	var sb strings.Builder
	sb.WriteString(d.Title)
	sb.WriteString(" ")
	sb.WriteString(d.Description)
	for _, m := range messages {
		sb.WriteString(" ")
		sb.WriteString(m.Body)
	}
	text := strings.ToLower(sb.String())

	p := &dispute.CaseProfile{
		Category: DefaultCategory,
		Severity: DefaultSeverity,
	}

	// Iterate categories in sorted order so ties resolve deterministically.
	names := make([]string, 0, len(categoryKeywords))
	for name := range categoryKeywords {
		names = append(names, name)
	}
	sort.Strings(names)

	bestScore := 0
	for _, name := range names {
		score := 0
		for _, kw := range categoryKeywords[name] {
			score += strings.Count(text, kw)
		}
		if score > bestScore {
			bestScore = score
			p.Category = name
		}
	}

	for severity, keywords := range severityKeywords {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				p.Severity = severity
			}
		}
	}

	p.MonetaryAmount = largestAmount(text)
	if p.MonetaryAmount >= 100000 && p.Severity == DefaultSeverity {
		p.Severity = "high"
	}

	p.KeyIssues = keyIssues(text)
	p.PlaintiffPosition = firstPosition(messages, dispute.RolePlaintiff)
	p.DefendantPosition = firstPosition(messages, dispute.RoleDefendant)
	return p
}

func largestAmount(text string) float64 {
	var largest float64
	for _, match := range amountPattern.FindAllStringSubmatch(text, -1) {
		raw := strings.ReplaceAll(match[1], ",", "")
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > largest {
			largest = v
		}
	}
	return largest
}

var issueMarkers = []string{"refuse", "broke", "failed", "never", "did not", "didn't", "owes", "damaged", "unpaid"}

func keyIssues(text string) []string {
	var issues []string
	seen := make(map[string]bool)
	for _, sentence := range strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '!' || r == '?' }) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if len(issues) >= 5 {
			break
		}
		for _, marker := range issueMarkers {
			if strings.Contains(sentence, marker) && !seen[sentence] {
				seen[sentence] = true
				issues = append(issues, sentence)
				break
			}
		}
	}
	return issues
}

func firstPosition(messages []*dispute.Message, role dispute.Role) string {
	for _, m := range messages {
		if m.SenderRole == role {
			return summarizeLine(m.Body)
		}
	}
	return ""
}

func summarizeLine(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 200 {
		return body[:200]
	}
	return body
}
