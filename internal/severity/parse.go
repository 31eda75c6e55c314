package severity

import (
	"fmt"
	"math"
	"strings"

	"github.com/urbanfix/backend/internal/complaint"
	"github.com/urbanfix/backend/internal/llm"
	"github.com/urbanfix/backend/pkg/utils"
)

const (
	FallbackScore  = 50
	maxRawResponse = 500
)

// Parse recovers a SeverityAnalysis from an LLM reply. Missing fields get the
// parse-error sentinel; a reply with no JSON object is an error.
func Parse(text string) (complaint.SeverityAnalysis, error) {
	obj, err := llm.DecodeObject(text)
	if err != nil {
		return complaint.SeverityAnalysis{}, err
	}

	result := complaint.SeverityAnalysis{
		SeverityScore:        FallbackScore,
		IssueType:            stringField(obj, "issue_type"),
		SafetyRisk:           stringField(obj, "safety_risk"),
		InfrastructureDamage: stringField(obj, "infrastructure_damage"),
		ReasoningSummary:     stringField(obj, "reasoning_summary"),
		Causes:               []string{complaint.ParseErrorSentinel},
	}

	if causes, ok := llm.AsStringSlice(obj["causes"]); ok && len(causes) > 0 {
		result.Causes = causes
	}
	if score, ok := llm.AsFloat(obj["severity_score"]); ok {
		result.SeverityScore = ClampScore(score)
	}

	return result, nil
}

// ClampScore rounds v to the nearest integer within [0,100].
func ClampScore(v float64) int {
	if math.IsNaN(v) {
		return FallbackScore
	}
	score := int(math.Round(v))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Fallback is the record used whenever the analyzer cannot produce one.
func Fallback(category string, cause error, raw string) complaint.SeverityAnalysis {
	category = strings.TrimSpace(category)
	if category == "" {
		category = "General"
	}
	return complaint.SeverityAnalysis{
		SeverityScore:        FallbackScore,
		IssueType:            fmt.Sprintf("%s complaint", category),
		Causes:               []string{complaint.ParseErrorSentinel},
		SafetyRisk:           complaint.ParseErrorSentinel,
		InfrastructureDamage: complaint.ParseErrorSentinel,
		ReasoningSummary:     "Automated analysis unavailable; default severity applied.",
		Error:                cause.Error(),
		RawResponse:          utils.Truncate(raw, maxRawResponse),
	}
}

func stringField(obj map[string]any, key string) string {
	if s, ok := llm.AsString(obj[key]); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return complaint.ParseErrorSentinel
}
