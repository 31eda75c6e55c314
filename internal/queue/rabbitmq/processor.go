package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/urbanfix/backend/internal/complaint"
	"github.com/urbanfix/backend/internal/pipeline"
	"github.com/urbanfix/backend/internal/prediction"
	"github.com/urbanfix/backend/pkg/logger"
)

type Analyzer interface {
	Analyze(ctx context.Context, c complaint.Complaint) (pipeline.Result, error)
}

type ResultPublisher interface {
	Publish(ctx context.Context, routingKey string, message interface{}) error
}

// AnalysisResult is published once per consumed complaint.
type AnalysisResult struct {
	ComplaintID    string                      `json:"complaint_id"`
	Severity       *complaint.SeverityAnalysis `json:"severity,omitempty"`
	TimePrediction *complaint.TimePrediction   `json:"time_prediction,omitempty"`
	Metadata       complaint.PipelineMetadata  `json:"metadata"`
	Error          string                      `json:"error,omitempty"`
	Stage          complaint.StepName          `json:"stage,omitempty"`
}

// ComplaintProcessor turns request messages into published analysis results.
type ComplaintProcessor struct {
	analyzer  Analyzer
	publisher ResultPublisher
	resultKey string
}

func NewComplaintProcessor(analyzer Analyzer, publisher ResultPublisher, resultKey string) *ComplaintProcessor {
	return &ComplaintProcessor{analyzer: analyzer, publisher: publisher, resultKey: resultKey}
}

// Handle implements Handler.
func (p *ComplaintProcessor) Handle(ctx context.Context, body []byte) error {
	var c complaint.Complaint
	if err := json.Unmarshal(body, &c); err != nil {
		return Permanent(fmt.Errorf("malformed complaint payload: %w", err))
	}

	log := logger.GetLogger().With(zap.String("complaint_id", c.ComplaintID))

	result, err := p.analyzer.Analyze(ctx, c)
	switch {
	case errors.Is(err, prediction.ErrInvalidComplaint):
		return Permanent(err)

	case ctx.Err() != nil:
		// Shutting down; let another worker pick it up.
		return fmt.Errorf("analysis interrupted: %w", ctx.Err())

	case err != nil:
		msg := AnalysisResult{ComplaintID: c.ComplaintID, Metadata: result.Metadata, Error: err.Error()}
		if stage, ok := pipeline.StageOf(err); ok {
			msg.Stage = stage
		}
		if pubErr := p.publisher.Publish(ctx, p.resultKey, msg); pubErr != nil {
			log.Warn("Failed to publish analysis failure", zap.Error(pubErr))
		}
		return Permanent(err)
	}

	msg := AnalysisResult{
		ComplaintID:    c.ComplaintID,
		Severity:       &result.Severity,
		TimePrediction: &result.TimePrediction,
		Metadata:       result.Metadata,
	}
	if err := p.publisher.Publish(ctx, p.resultKey, msg); err != nil {
		return fmt.Errorf("failed to publish analysis result: %w", err)
	}

	log.Info("Analysis result published",
		zap.Int("severity_score", result.Severity.SeverityScore),
		zap.String("urgency_tier", string(result.TimePrediction.UrgencyTier)),
	)
	return nil
}
