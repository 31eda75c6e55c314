package timepredict

import (
	"fmt"

	"github.com/urbanfix/backend/internal/complaint"
)

type fallbackBand struct {
	minScore int
	hours    int
	days     float64
	tier     complaint.UrgencyTier
	factor   string
}

// Bands are checked top down; the last one catches every remaining score.
var fallbackBands = []fallbackBand{
	{minScore: 80, hours: 24, days: 1.0, tier: complaint.TierCritical, factor: "High severity; safety risk"},
	{minScore: 60, hours: 72, days: 3.0, tier: complaint.TierHigh, factor: "Elevated severity"},
	{minScore: 40, hours: 168, days: 7.0, tier: complaint.TierMedium, factor: "Moderate severity"},
	{minScore: 0, hours: 720, days: 30.0, tier: complaint.TierLow, factor: "Low severity"},
}

// Fallback derives a deterministic estimate from the severity score alone.
func Fallback(severityScore int, reason string) complaint.TimePrediction {
	band := fallbackBands[len(fallbackBands)-1]
	for _, b := range fallbackBands {
		if severityScore >= b.minScore {
			band = b
			break
		}
	}

	explanation := fmt.Sprintf("Fallback estimate from severity score %d", severityScore)
	if reason != "" {
		explanation += ": " + reason
	}

	return complaint.TimePrediction{
		EstimatedHours: band.hours,
		EstimatedDays:  band.days,
		UrgencyTier:    band.tier,
		KeyFactors:     []string{band.factor},
		WeatherImpact:  "Not assessed",
		Explanation:    explanation,
	}
}
