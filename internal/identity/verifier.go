// Package identity gates dispute creation on a government ID check. The
// document image is read by the external OCR engine; classification and
// confidence scoring over the extracted text happen here.
package identity

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// DocumentType is a recognized government ID kind.
type DocumentType string

const (
	TypeAadhaar        DocumentType = "aadhaar"
	TypePAN            DocumentType = "pan"
	TypeDrivingLicence DocumentType = "driving_license"
	TypeUnknown        DocumentType = "unknown"
)

// Thresholds control the verified/rejected cut. A score at or above Low
// verifies; below it the document is rejected with a reason.
type Thresholds struct {
	High float64
	Low  float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.85, Low: 0.60}
}

// Result is the outcome of classifying and scoring one document.
type Result struct {
	Valid      bool         `json:"valid"`
	Type       DocumentType `json:"type"`
	Confidence float64      `json:"confidence"`
	IDNumber   string       `json:"id_number,omitempty"`
	Reason     string       `json:"reason,omitempty"`
}

// TextExtractor reads text off the document image. Supplied by the OCR
// engine adapter; only its output text is consumed here.
type TextExtractor interface {
	ExtractDocumentText(ctx context.Context, document []byte) (string, error)
}

// Verifier classifies OCR-extracted document text into a supported ID type
// and scores confidence from pattern and keyword evidence.
type Verifier struct {
	extractor  TextExtractor
	thresholds Thresholds
}

func NewVerifier(extractor TextExtractor, thresholds Thresholds) *Verifier {
	return &Verifier{extractor: extractor, thresholds: thresholds}
}

// Verify implements the dispute-creation identity gate.
func (v *Verifier) Verify(ctx context.Context, document []byte) (bool, string, error) {
	if len(document) == 0 {
		return false, "identity document is required", nil
	}
	text, err := v.extractor.ExtractDocumentText(ctx, document)
	if err != nil {
		return false, "", fmt.Errorf("identity: extract document text: %w", err)
	}

	result := Classify(text, v.thresholds)
	log.Debug().
		Str("document_type", string(result.Type)).
		Float64("confidence", result.Confidence).
		Bool("valid", result.Valid).
		Msg("Identity document classified")
	return result.Valid, result.Reason, nil
}

// Patterns are relaxed at the boundaries to catch IDs stuck to other text,
// a common OCR artifact.
var (
	aadhaarPattern = regexp.MustCompile(`[0-9]{4}\s?[0-9]{4}\s?[0-9]{4}`)
	panPattern     = regexp.MustCompile(`[A-Z]{5}[0-9]{4}[A-Z]`)
	dlPattern      = regexp.MustCompile(`(?i)(?:DL|[A-Z]{2})[-\s]?[0-9]{2}[-\s]?[0-9]{4,19}|[A-Z]{2}[0-9]{2}[0-9]{4,19}`)
)

var keywordPatterns = map[DocumentType][]*regexp.Regexp{
	TypeAadhaar: compileAll(
		`aadhaar`, `unique\s*identification\s*authority`, `uidai`, `government\s*of\s*india`,
		`dob`, `date\s*of\s*birth`, `year\s*of\s*birth`, `male`, `female`,
	),
	TypePAN: compileAll(
		`permanent\s*account\s*number`, `income\s*tax\s*department`, `govt\s*of\s*india`,
		`date\s*of\s*birth`, `father's\s*name`,
	),
	TypeDrivingLicence: compileAll(
		`driving\s*licen[cs]e`, `union\s*of\s*india`, `transport\s*department`,
		`valid\s*till`, `issued\s*on`, `motor\s*vehicle`, `license\s*no`, `dl\s*no`,
		`vehicle\s*class`, `issuing\s*authority`, `rto`, `regional\s*transport`,
	),
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

type candidate struct {
	docType  DocumentType
	idNumber string
	base     float64
}

// Classify determines the document type and validity from extracted text.
// Confidence blends the pattern match (60%) with keyword evidence (40%,
// boosted when both are strong) and is capped at 0.99.
func Classify(text string, thresholds Thresholds) Result {
	lower := strings.ToLower(text)

	var candidates []candidate
	if m := aadhaarPattern.FindString(text); m != "" {
		candidates = append(candidates, candidate{TypeAadhaar, m, 1.0})
	}
	if m := panPattern.FindString(text); m != "" {
		candidates = append(candidates, candidate{TypePAN, m, 1.0})
	}
	if c, ok := matchDrivingLicence(text, lower); ok {
		candidates = append(candidates, c)
	}

	best := candidate{docType: TypeUnknown}
	switch len(candidates) {
	case 0:
		// Weak signal fallback: keyword evidence alone can pick a type, with
		// zero pattern confidence.
		bestScore := 0.0
		for _, dt := range []DocumentType{TypeAadhaar, TypePAN, TypeDrivingLicence} {
			if s := keywordScore(lower, dt); s > bestScore {
				bestScore = s
				best = candidate{docType: dt}
			}
		}
	case 1:
		best = candidates[0]
	default:
		// Disambiguate with keyword scoring on top of the pattern base.
		bestTotal := -1.0
		for _, c := range candidates {
			total := c.base*0.6 + keywordScore(lower, c.docType)*0.4
			if total > bestTotal {
				bestTotal = total
				best = c
			}
		}
	}

	if best.docType == TypeUnknown {
		return Result{
			Type:   TypeUnknown,
			Reason: "could not identify document type: no supported ID keywords or patterns found",
		}
	}

	kwScore := keywordScore(lower, best.docType)
	score := best.base*0.6 + kwScore
	if best.base >= 0.8 && kwScore > 0 {
		score += 0.2
	}
	if score > 0.99 {
		score = 0.99
	}

	result := Result{
		Type:       best.docType,
		Confidence: score,
		IDNumber:   best.idNumber,
	}
	if score >= thresholds.Low {
		result.Valid = true
	} else {
		result.Reason = fmt.Sprintf("confidence score (%.2f) too low for %s", score, best.docType)
	}
	return result
}

var dlStrongKeywords = compileAll(
	`driving\s*licen[cs]e`, `motor\s*vehicle`, `license\s*to\s*drive`,
	`transport\s*department`, `dl\s*no`, `regional\s*transport`, `vehicle\s*class`,
)

func matchDrivingLicence(text, lower string) (candidate, bool) {
	strongMatches := 0
	for _, p := range dlStrongKeywords {
		if p.MatchString(lower) {
			strongMatches++
		}
	}

	if m := dlPattern.FindString(text); m != "" {
		switch {
		case strongMatches > 0:
			return candidate{TypeDrivingLicence, m, 0.95}, true
		case strings.Contains(lower, "driving") || strings.Contains(lower, "licence") ||
			strings.Contains(lower, "license") || strings.Contains(lower, "transport"):
			return candidate{TypeDrivingLicence, m, 0.85}, true
		default:
			return candidate{TypeDrivingLicence, m, 0.7}, true
		}
	}

	// Strong keyword presence without a number still indicates a DL.
	if strongMatches >= 2 {
		return candidate{docType: TypeDrivingLicence, base: 0.6}, true
	}
	return candidate{}, false
}

func keywordScore(lower string, docType DocumentType) float64 {
	found := 0
	for _, p := range keywordPatterns[docType] {
		if p.MatchString(lower) {
			found++
		}
	}
	score := 0.0
	if found >= 1 {
		score += 0.4
	}
	if found >= 2 {
		score += 0.2
	}
	return score
}
