package timepredict

import (
	"fmt"
	"strings"

	"github.com/urbanfix/backend/internal/complaint"
)

const (
	promptForecastDays = 5
	rainyDayMM         = 5.0
	heavyRainDayMM     = 20.0
	maxHintClasses     = 3
)

const systemPrompt = `You are an experienced municipal operations planner. You estimate realistic resolution times for infrastructure complaints in Indian cities, taking crew availability, procurement and weather into account.

You reply with a single JSON object and nothing else.`

const operationsContext = `MUNICIPAL OPERATIONS CONTEXT:
1. Work crews are shared across wards and are dispatched in order of urgency; non-urgent work waits in a queue that is typically several days long.
2. Standard materials (asphalt patch, pipe fittings, cables, lamps) are stocked locally, but specialised parts require procurement that can add one to three weeks.
3. Hot-mix asphalt and concrete work cannot be carried out during rain; road surface repairs stall on rainy days and heavy rain can wash out temporary patches.
4. Work that needs traffic diversion, excavation or permits from another agency needs coordination time before a crew can start.
5. Hazards to life (open manholes, exposed live wires, collapsed surfaces, flooding) receive an emergency response, usually a temporary fix within hours and a permanent repair later.
6. Weekends, public holidays and festival periods reduce crew capacity and lengthen queues.`

const tierLegend = `URGENCY TIERS:
- critical: resolution within hours (immediate danger to life or property)
- high: 1-3 days
- medium: 3-14 days
- low: 2-8 weeks`

// BuildPrompt renders the text-only prediction prompt.
func BuildPrompt(in Input) string {
	var b strings.Builder

	b.WriteString("Estimate how long it will realistically take to resolve this complaint.\n\n")

	b.WriteString("SEVERITY ANALYSIS (authoritative):\n")
	b.WriteString(fmt.Sprintf("- Severity score: %d/100\n", in.Severity.SeverityScore))
	b.WriteString(fmt.Sprintf("- Issue type: %s\n", in.Severity.IssueType))
	b.WriteString(fmt.Sprintf("- Safety risk: %s\n", in.Severity.SafetyRisk))
	b.WriteString(fmt.Sprintf("- Infrastructure damage: %s\n", in.Severity.InfrastructureDamage))
	b.WriteString(fmt.Sprintf("- Reasoning: %s\n", in.Severity.ReasoningSummary))
	if in.Category != "" {
		b.WriteString(fmt.Sprintf("- Category: %s\n", in.Category))
	}

	if in.Detector != nil && in.Detector.Active {
		b.WriteString(formatDetector(*in.Detector))
	}

	b.WriteString("\n")
	b.WriteString(formatWeather(in.Weather))
	b.WriteString("\n")
	b.WriteString(operationsContext)
	b.WriteString("\n\n")
	b.WriteString(tierLegend)

	b.WriteString(`

REASONING STEPS:
1. Start from the severity score and safety risk to decide how urgently a crew must respond.
2. Identify the type of work needed and whether it is a quick fix or a structural repair.
3. Consider material and permit requirements for that work.
4. Adjust for the weather: rainy days delay outdoor work, heavy rain delays it further.
5. Account for crew queues and coordination overhead.
6. Pick the urgency tier consistent with your estimate and summarise the key factors.

Respond with ONLY this JSON object:
{
  "estimated_hours": <integer hours>,
  "estimated_days": <number of days>,
  "urgency_tier": "critical|high|medium|low",
  "key_factors": ["<factor>", "..."],
  "weather_impact": "<how the weather affects the schedule>",
  "explanation": "<two or three sentences>"
}`)

	return b.String()
}

func formatDetector(f complaint.DetectorFeatures) string {
	var b strings.Builder

	b.WriteString("\nSECONDARY DETECTOR SIGNALS (advisory, may be inaccurate; do not override the severity analysis):\n")
	b.WriteString(fmt.Sprintf("- Detections: %d\n", f.NumDetections))
	b.WriteString(fmt.Sprintf("- Damaged area proportion: %.1f%%\n", f.DamageProportion*100))
	b.WriteString(fmt.Sprintf("- Mean confidence: %.2f\n", f.MeanConfidence))

	if len(f.ClassSummary) > 0 {
		names := make([]string, 0, maxHintClasses)
		for i, c := range f.ClassSummary {
			if i >= maxHintClasses {
				break
			}
			names = append(names, fmt.Sprintf("%s (%d)", c.Description, c.Count))
		}
		b.WriteString(fmt.Sprintf("- Top classes: %s\n", strings.Join(names, ", ")))
	}
	b.WriteString(fmt.Sprintf("- Advisory hint: %s\n", f.SeverityHint))

	return b.String()
}

func formatWeather(wc complaint.WeatherContext) string {
	if !wc.Available {
		msg := wc.Message
		if msg == "" {
			msg = wc.Error
		}
		if msg == "" {
			msg = "no data"
		}
		return fmt.Sprintf("WEATHER: unavailable (%s). Assume typical seasonal conditions.\n", msg)
	}

	var b strings.Builder
	b.WriteString("WEATHER")
	if wc.Location != "" {
		b.WriteString(fmt.Sprintf(" (%s)", wc.Location))
	}
	b.WriteString(":\n")

	if wc.Current != nil {
		b.WriteString(fmt.Sprintf("- Current: %s, %.1f°C, humidity %.0f%%, wind %.1f km/h, precipitation %.1f mm\n",
			wc.Current.Condition, wc.Current.TempC, wc.Current.Humidity, wc.Current.WindKPH, wc.Current.PrecipMM))
	}

	if len(wc.Forecast) > 0 {
		b.WriteString("- Forecast:\n")
		for i, day := range wc.Forecast {
			if i >= promptForecastDays {
				break
			}
			b.WriteString(fmt.Sprintf("  - %s: %s, %.0f-%.0f°C, rain %.1f mm\n",
				day.Date, day.Condition, day.MinTempC, day.MaxTempC, day.RainMM))
		}
	}

	rainy, heavy := RainDays(wc.Forecast)
	b.WriteString(fmt.Sprintf("- Rainy days (>%.0f mm) in forecast: %d\n", rainyDayMM, rainy))
	b.WriteString(fmt.Sprintf("- Heavy rain days (>%.0f mm) in forecast: %d\n", heavyRainDayMM, heavy))

	return b.String()
}

// RainDays counts forecast days above the rainy and heavy-rain thresholds.
func RainDays(forecast []complaint.ForecastDay) (rainy, heavy int) {
	for _, day := range forecast {
		if day.RainMM > rainyDayMM {
			rainy++
		}
		if day.RainMM > heavyRainDayMM {
			heavy++
		}
	}
	return rainy, heavy
}
