package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/settleline/internal/dispute"
)

// modelOutput is the structured response contract for the reasoning model.
type modelOutput struct {
	Solutions []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Rationale   string `json:"rationale"`
	} `json:"solutions"`
}

// ParseSolutions validates raw model output into the dispute's solution set.
// A response that cannot be parsed, or that contains zero valid solutions,
// is a failed run: no partial solution set is ever returned.
func ParseSolutions(raw string) ([]dispute.Solution, error) {
	cleaned := stripCodeFences(raw)
	if strings.TrimSpace(cleaned) == "" {
		return nil, fmt.Errorf("empty model response")
	}

	var out modelOutput
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(cleaned)
		if repairErr != nil {
			return nil, fmt.Errorf("unparsable model response: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &out); err != nil {
			return nil, fmt.Errorf("unparsable model response after repair: %w", err)
		}
	}

	var solutions []dispute.Solution
	for _, s := range out.Solutions {
		if strings.TrimSpace(s.Title) == "" || strings.TrimSpace(s.Description) == "" {
			continue
		}
		solutions = append(solutions, dispute.Solution{
			Title:       strings.TrimSpace(s.Title),
			Description: strings.TrimSpace(s.Description),
			Rationale:   strings.TrimSpace(s.Rationale),
		})
		if len(solutions) == dispute.MaxSolutions {
			break
		}
	}
	if len(solutions) == 0 {
		return nil, fmt.Errorf("model response contained no valid solutions")
	}
	return solutions, nil
}

// stripCodeFences removes markdown fences the model sometimes wraps JSON in.
func stripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
