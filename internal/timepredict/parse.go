package timepredict

import (
	"errors"
	"math"
	"strings"

	"github.com/urbanfix/backend/internal/complaint"
	"github.com/urbanfix/backend/internal/llm"
)

const (
	minHours = 1
	minDays  = 0.1
	maxHours = math.MaxInt32
	maxDays  = maxHours / 24.0
)

var ErrUnusableEstimate = errors.New("time prediction has no usable estimate")

// Parse recovers a TimePrediction from an LLM reply. A reply without usable
// hours and days is an error so the caller can fall back.
func Parse(text string) (complaint.TimePrediction, error) {
	obj, err := llm.DecodeObject(text)
	if err != nil {
		return complaint.TimePrediction{}, err
	}

	hours, okHours := llm.AsFloat(obj["estimated_hours"])
	days, okDays := llm.AsFloat(obj["estimated_days"])
	if !okHours || !okDays || math.IsNaN(hours) || math.IsNaN(days) || math.IsInf(hours, 0) || math.IsInf(days, 0) {
		return complaint.TimePrediction{}, ErrUnusableEstimate
	}

	tier, _ := llm.AsString(obj["urgency_tier"])

	result := complaint.TimePrediction{
		EstimatedHours: CoerceHours(hours),
		EstimatedDays:  CoerceDays(days),
		UrgencyTier:    complaint.ParseUrgencyTier(tier),
		KeyFactors:     []string{complaint.ParseErrorSentinel},
		WeatherImpact:  stringField(obj, "weather_impact"),
		Explanation:    stringField(obj, "explanation"),
	}
	if factors, ok := llm.AsStringSlice(obj["key_factors"]); ok && len(factors) > 0 {
		result.KeyFactors = factors
	}

	return result, nil
}

// CoerceHours truncates v toward zero, enforces a one hour floor and caps
// the result at math.MaxInt32.
func CoerceHours(v float64) int {
	if v >= maxHours {
		return maxHours
	}
	h := int(v)
	if h < minHours {
		return minHours
	}
	return h
}

func CoerceDays(v float64) float64 {
	if v < minDays {
		return minDays
	}
	if v > maxDays {
		return maxDays
	}
	return v
}

func stringField(obj map[string]any, key string) string {
	if s, ok := llm.AsString(obj[key]); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return complaint.ParseErrorSentinel
}
