// Package complaint holds the transient records produced and consumed while
// analysing a single citizen complaint.
package complaint

import (
	"encoding/json"
	"strings"
)

// ParseErrorSentinel replaces any field an LLM reply failed to provide.
const ParseErrorSentinel = "Unknown - parsing error"

type Complaint struct {
	ComplaintID string `json:"complaint_id"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Address     string `json:"address"`
	ImageURL    string `json:"image_url"`
}

type InactiveReason string

const (
	ReasonNotApplicableCategory InactiveReason = "not_applicable_category"
	ReasonModelUnavailable      InactiveReason = "model_unavailable"
	ReasonError                 InactiveReason = "error"
)

type SeverityHint string

const (
	HintLow      SeverityHint = "low"
	HintModerate SeverityHint = "moderate"
	HintHigh     SeverityHint = "high"
	HintCritical SeverityHint = "critical"
)

type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

type Detection struct {
	ClassCode        string      `json:"class_code"`
	ClassDescription string      `json:"class_description"`
	Confidence       float64     `json:"confidence"`
	BBox             BoundingBox `json:"bbox"`
	Area             float64     `json:"area"`
}

type ClassSummary struct {
	ClassCode      string  `json:"class_code"`
	Description    string  `json:"description"`
	Count          int     `json:"count"`
	MeanConfidence float64 `json:"mean_confidence"`
}

// DetectorFeatures is advisory. When Active is false every detection-derived
// field must be treated as absent.
type DetectorFeatures struct {
	Active           bool           `json:"active"`
	Reason           InactiveReason `json:"reason,omitempty"`
	Error            string         `json:"error,omitempty"`
	Detections       []Detection    `json:"detections,omitempty"`
	ClassSummary     []ClassSummary `json:"class_summary,omitempty"`
	NumDetections    int            `json:"num_detections"`
	TotalDamageArea  float64        `json:"total_damage_area"`
	ImageArea        float64        `json:"image_area"`
	DamageProportion float64        `json:"damage_proportion"`
	MeanConfidence   float64        `json:"mean_confidence"`
	SeverityHint     SeverityHint   `json:"severity_hint,omitempty"`
}

// MarshalJSON always emits detections and class_summary for active records,
// as empty arrays when nothing was found.
func (f DetectorFeatures) MarshalJSON() ([]byte, error) {
	type plain DetectorFeatures
	if !f.Active {
		return json.Marshal(plain(f))
	}
	detections := f.Detections
	if detections == nil {
		detections = []Detection{}
	}
	summary := f.ClassSummary
	if summary == nil {
		summary = []ClassSummary{}
	}
	return json.Marshal(struct {
		plain
		Detections   []Detection    `json:"detections"`
		ClassSummary []ClassSummary `json:"class_summary"`
	}{plain(f), detections, summary})
}

// Inactive builds a short-circuit record.
func Inactive(reason InactiveReason, err string) DetectorFeatures {
	return DetectorFeatures{Active: false, Reason: reason, Error: err}
}

type SeverityAnalysis struct {
	SeverityScore        int      `json:"severity_score"`
	IssueType            string   `json:"issue_type"`
	Causes               []string `json:"causes"`
	SafetyRisk           string   `json:"safety_risk"`
	InfrastructureDamage string   `json:"infrastructure_damage"`
	ReasoningSummary     string   `json:"reasoning_summary"`
	Error                string   `json:"error,omitempty"`
	RawResponse          string   `json:"raw_response,omitempty"`
}

type CurrentWeather struct {
	Condition string  `json:"condition"`
	TempC     float64 `json:"temp_c"`
	Humidity  float64 `json:"humidity"`
	WindKPH   float64 `json:"wind_kph"`
	PrecipMM  float64 `json:"precip_mm"`
	Cloud     float64 `json:"cloud"`
}

type ForecastDay struct {
	Date       string  `json:"date"`
	MaxTempC   float64 `json:"max_temp_c"`
	MinTempC   float64 `json:"min_temp_c"`
	Condition  string  `json:"condition"`
	RainMM     float64 `json:"rain_mm"`
	Humidity   float64 `json:"humidity"`
	MaxWindKPH float64 `json:"max_wind_kph"`
}

type WeatherContext struct {
	Available bool            `json:"available"`
	Current   *CurrentWeather `json:"current,omitempty"`
	Forecast  []ForecastDay   `json:"forecast,omitempty"`
	Location  string          `json:"location,omitempty"`
	Message   string          `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// WeatherUnavailable builds the record returned when conditions cannot be fetched.
func WeatherUnavailable(message string) WeatherContext {
	return WeatherContext{Available: false, Message: message}
}

type UrgencyTier string

const (
	TierCritical UrgencyTier = "critical"
	TierHigh     UrgencyTier = "high"
	TierMedium   UrgencyTier = "medium"
	TierLow      UrgencyTier = "low"
)

// ParseUrgencyTier lowercases s and falls back to TierMedium for unknown tiers.
func ParseUrgencyTier(s string) UrgencyTier {
	switch tier := UrgencyTier(strings.ToLower(strings.TrimSpace(s))); tier {
	case TierCritical, TierHigh, TierMedium, TierLow:
		return tier
	default:
		return TierMedium
	}
}

type TimePrediction struct {
	EstimatedHours int         `json:"estimated_hours"`
	EstimatedDays  float64     `json:"estimated_days"`
	UrgencyTier    UrgencyTier `json:"urgency_tier"`
	KeyFactors     []string    `json:"key_factors"`
	WeatherImpact  string      `json:"weather_impact"`
	Explanation    string      `json:"explanation"`
	RawResponse    string      `json:"raw_response,omitempty"`
}

type StepName string

const (
	StepDetector       StepName = "detector"
	StepSeverity       StepName = "severity"
	StepWeather        StepName = "weather"
	StepTimePrediction StepName = "time_prediction"
)

type StepStatus string

const (
	StatusSuccess     StepStatus = "success"
	StatusSkipped     StepStatus = "skipped"
	StatusFailed      StepStatus = "failed"
	StatusUnavailable StepStatus = "unavailable"
)

// PipelineStep records one executed stage.
type PipelineStep struct {
	Step   StepName       `json:"step"`
	Status StepStatus     `json:"status"`
	Note   string         `json:"note,omitempty"`
	Error  string         `json:"error,omitempty"`
	Reason InactiveReason `json:"reason,omitempty"`

	DetectorActive   *bool       `json:"detector_active,omitempty"`
	NumDetections    *int        `json:"num_detections,omitempty"`
	SeverityScore    *int        `json:"severity_score,omitempty"`
	WeatherCondition string      `json:"weather_condition,omitempty"`
	EstimatedDays    *float64    `json:"estimated_days,omitempty"`
	UrgencyTier      UrgencyTier `json:"urgency_tier,omitempty"`
}

type PipelineMetadata struct {
	ComplaintID      string           `json:"complaint_id"`
	Category         string           `json:"category"`
	PipelineSteps    []PipelineStep   `json:"pipeline_steps"`
	DetectorFeatures DetectorFeatures `json:"detector_features"`
	WeatherData      WeatherContext   `json:"weather_data"`
	PipelineStatus   string           `json:"pipeline_status,omitempty"`
	Error            string           `json:"error,omitempty"`
}

// CatalogEntry is one known department; ID is opaque to the core.
type CatalogEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type DepartmentSuggestion struct {
	DepartmentName string  `json:"department_name"`
	Confidence     float64 `json:"confidence"`
	DepartmentID   string  `json:"department_id,omitempty"`
	Source         string  `json:"source,omitempty"`
}

// IsRoadCategory reports whether the detector applies to category.
func IsRoadCategory(category string) bool {
	return strings.EqualFold(strings.TrimSpace(category), "road")
}
