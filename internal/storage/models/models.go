package models

import "time"

type Department struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// PredictionRecord is the persisted outcome of one pipeline run. The JSON
// columns hold the serialized transient records.
type PredictionRecord struct {
	ID             string
	ComplaintID    string
	Category       string
	Status         string
	FailedStage    string
	SeverityScore  int
	UrgencyTier    string
	EstimatedHours int
	EstimatedDays  float64
	SeverityJSON   string
	TimeJSON       string
	MetadataJSON   string
	Attempts       int
	LatencyMS      int
	CreatedAt      time.Time
}

type SuggestionRecord struct {
	ID             string
	DepartmentName string
	DepartmentID   string
	Confidence     float64
	Source         string
	Description    string
	CreatedAt      time.Time
}
