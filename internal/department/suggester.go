// Package department suggests which municipal department should handle a
// complaint, using an image classifier first and keyword matching second.
package department

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/urbanfix/backend/internal/complaint"
	"github.com/urbanfix/backend/internal/metrics"
	"github.com/urbanfix/backend/pkg/logger"
)

const (
	SourceClassifier = "classifier"
	SourceKeyword    = "keyword"
	SourceDefault    = "default"
)

type Suggester struct {
	classifier Classifier
}

// NewSuggester accepts a nil classifier, which leaves only the keyword path.
func NewSuggester(classifier Classifier) *Suggester {
	return &Suggester{classifier: classifier}
}

// Suggest always returns a suggestion with a non-empty department name.
func (s *Suggester) Suggest(ctx context.Context, image io.Reader, description string, catalog []complaint.CatalogEntry) complaint.DepartmentSuggestion {
	candidates := Candidates(catalog)

	name, confidence, source := s.decide(ctx, image, description, candidates)

	suggestion := complaint.DepartmentSuggestion{
		DepartmentName: name,
		Confidence:     round2(clamp01(confidence)),
		Source:         source,
	}
	if entry, ok := lookupCatalog(name, catalog); ok {
		suggestion.DepartmentName = entry.Name
		suggestion.DepartmentID = entry.ID
	}

	metrics.DepartmentSuggestions.WithLabelValues(source).Inc()
	logger.Info("Department suggested",
		zap.String("department", suggestion.DepartmentName),
		zap.Float64("confidence", suggestion.Confidence),
		zap.String("source", source),
	)
	return suggestion
}

func (s *Suggester) decide(ctx context.Context, image io.Reader, description string, candidates []string) (string, float64, string) {
	if s.classifier != nil && image != nil {
		result, err := s.classify(ctx, image, description, candidates)
		switch {
		case err != nil:
			logger.Warn("Department classifier failed, using keyword fallback", zap.Error(err))
		case result.Success && strings.TrimSpace(result.Department) != "":
			return result.Department, result.Confidence, SourceClassifier
		}
	}

	if name, ok := MatchKeywords(description); ok {
		return name, keywordConfidence, SourceKeyword
	}
	return OtherDepartment, defaultConfidence, SourceDefault
}

// classify shields the caller from classifier panics.
func (s *Suggester) classify(ctx context.Context, image io.Reader, description string, candidates []string) (result Classification, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()
	return s.classifier.Classify(ctx, image, description, candidates)
}

// Candidates returns the distinct catalog names, or the built-in list when
// the catalog has none.
func Candidates(catalog []complaint.CatalogEntry) []string {
	seen := make(map[string]struct{}, len(catalog))
	names := make([]string, 0, len(catalog))
	for _, entry := range catalog {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	if len(names) == 0 {
		return append([]string(nil), BuiltinDepartments...)
	}
	return names
}

func lookupCatalog(name string, catalog []complaint.CatalogEntry) (complaint.CatalogEntry, bool) {
	for _, entry := range catalog {
		if strings.EqualFold(strings.TrimSpace(entry.Name), name) {
			return entry, true
		}
	}
	return complaint.CatalogEntry{}, false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
