package severity

import (
	"fmt"
	"strings"

	"github.com/urbanfix/backend/internal/complaint"
)

const systemPrompt = `You are a municipal infrastructure analysis expert. You assess citizen complaints about public infrastructure from a photograph and a short description, and you judge how severe the reported problem is.

You reply with a single JSON object and nothing else. No markdown, no code fences, no commentary.`

const maxHintClasses = 5

// BuildPrompt renders the user prompt. Detector hints appear only when the
// detector was active and are labelled as secondary.
func BuildPrompt(in Input) string {
	var b strings.Builder

	b.WriteString("Analyze the attached image together with the complaint details below.\n\n")
	b.WriteString("COMPLAINT DETAILS:\n")
	b.WriteString(fmt.Sprintf("- Category: %s\n", valueOr(in.Category, "unspecified")))
	b.WriteString(fmt.Sprintf("- Address: %s\n", valueOr(in.Address, "not provided")))
	b.WriteString(fmt.Sprintf("- Description: %s\n", valueOr(strings.TrimSpace(in.Description), "not provided")))

	if in.Detector != nil && in.Detector.Active {
		b.WriteString(formatHints(*in.Detector))
	}

	b.WriteString(`
ANALYSIS STEPS:
1. Observation: describe what is visible in the image and how it relates to the description.
2. Severity assessment: rate severity from 0 (cosmetic) to 100 (immediate danger to life or property).
3. Issue classification: name the specific issue type.
4. Root causes: list the likely causes.
5. Safety risk: state who is at risk and how.
6. Infrastructure damage: describe the extent of damage to the asset.

Respond with ONLY this JSON object:
{
  "severity_score": <integer 0-100>,
  "issue_type": "<specific issue type>",
  "causes": ["<cause>", "..."],
  "safety_risk": "<safety risk assessment>",
  "infrastructure_damage": "<damage description>",
  "reasoning_summary": "<two or three sentences explaining the score>"
}`)

	return b.String()
}

func formatHints(f complaint.DetectorFeatures) string {
	var b strings.Builder

	b.WriteString("\nSECONDARY HINTS FROM AUTOMATED ROAD-DAMAGE DETECTOR:\n")
	b.WriteString("These hints come from a narrow detector and may be inaccurate or incomplete. ")
	b.WriteString("Your own visual observation of the image is authoritative. Use the hints only as a cross-check.\n")
	b.WriteString(fmt.Sprintf("- Detections: %d\n", f.NumDetections))
	b.WriteString(fmt.Sprintf("- Damaged area proportion: %.1f%%\n", f.DamageProportion*100))
	b.WriteString(fmt.Sprintf("- Mean detection confidence: %.2f\n", f.MeanConfidence))

	if len(f.ClassSummary) > 0 {
		b.WriteString("- Detected classes:\n")
		for i, c := range f.ClassSummary {
			if i >= maxHintClasses {
				break
			}
			b.WriteString(fmt.Sprintf("  - %s (%s): %d, mean confidence %.2f\n", c.Description, c.ClassCode, c.Count, c.MeanConfidence))
		}
	}
	b.WriteString(fmt.Sprintf("- Advisory severity hint: %s\n", f.SeverityHint))

	return b.String()
}

func valueOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
