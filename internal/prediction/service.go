// Package prediction is the service boundary shared by the HTTP, websocket
// and queue surfaces. It runs the analysis pipeline, applies the retry
// policy, records latency and persists every outcome.
package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/urbanfix/backend/internal/complaint"
	"github.com/urbanfix/backend/internal/metrics"
	"github.com/urbanfix/backend/internal/pipeline"
	"github.com/urbanfix/backend/internal/storage/models"
	"github.com/urbanfix/backend/pkg/logger"
	"github.com/urbanfix/backend/pkg/retry"
)

var ErrInvalidComplaint = errors.New("invalid complaint")

type Runner interface {
	Run(ctx context.Context, c complaint.Complaint, observe pipeline.StepObserver) (pipeline.Result, error)
}

type Store interface {
	InsertPrediction(ctx context.Context, record *models.PredictionRecord) error
	LatestPrediction(ctx context.Context, complaintID string) (*models.PredictionRecord, error)
}

type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

type Service struct {
	runner Runner
	store  Store
	retry  retry.Config
	now    func() time.Time
}

// NewService accepts a nil store, in which case results are not persisted.
func NewService(runner Runner, store Store, cfg Config) (*Service, error) {
	if runner == nil {
		return nil, errors.New("pipeline runner is required")
	}

	rc := retry.Single()
	if cfg.MaxAttempts > 1 {
		rc = retry.DefaultConfig()
		rc.MaxAttempts = cfg.MaxAttempts
		if cfg.InitialDelay > 0 {
			rc.InitialDelay = cfg.InitialDelay
		}
	}
	rc.ShouldRetry = retryable
	rc.Logger = logger.GetLogger()

	return &Service{runner: runner, store: store, retry: rc, now: time.Now}, nil
}

func (s *Service) Analyze(ctx context.Context, c complaint.Complaint) (pipeline.Result, error) {
	return s.Stream(ctx, c, nil)
}

// Stream is Analyze with a per-step observer. When a retry happens the
// observer sees the steps of every attempt.
func (s *Service) Stream(ctx context.Context, c complaint.Complaint, observe pipeline.StepObserver) (pipeline.Result, error) {
	if err := Validate(c); err != nil {
		return pipeline.Result{}, err
	}

	start := s.now()
	attempts := 0

	result, err := retry.DoWithResult(ctx, s.retry, func() (pipeline.Result, error) {
		attempts++
		return s.runner.Run(ctx, c, observe)
	})

	elapsed := s.now().Sub(start)
	status := pipeline.StatusCompleted
	if err != nil {
		status = pipeline.StatusFailed
	}
	metrics.PipelineDuration.WithLabelValues(status).Observe(elapsed.Seconds())

	s.persist(ctx, c, result, err, attempts, elapsed)
	return result, err
}

// Latest returns the most recent stored outcome for complaintID.
func (s *Service) Latest(ctx context.Context, complaintID string) (*models.PredictionRecord, error) {
	if s.store == nil {
		return nil, errors.New("prediction store is not configured")
	}
	return s.store.LatestPrediction(ctx, complaintID)
}

// Validate checks the fields the pipeline cannot work without.
func Validate(c complaint.Complaint) error {
	switch {
	case c.ComplaintID == "":
		return fmt.Errorf("%w: complaint_id is required", ErrInvalidComplaint)
	case c.Category == "":
		return fmt.Errorf("%w: category is required", ErrInvalidComplaint)
	case c.ImageURL == "":
		return fmt.Errorf("%w: image_url is required", ErrInvalidComplaint)
	}
	return nil
}

// retryable rejects failures caused by the caller going away.
func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (s *Service) persist(ctx context.Context, c complaint.Complaint, result pipeline.Result, runErr error, attempts int, elapsed time.Duration) {
	if s.store == nil {
		return
	}

	record, err := NewRecord(c, result, runErr)
	if err != nil {
		logger.Warn("Failed to encode prediction record", zap.String("complaint_id", c.ComplaintID), zap.Error(err))
		return
	}
	record.Attempts = attempts
	record.LatencyMS = int(elapsed.Milliseconds())
	record.CreatedAt = s.now()

	// The caller may have gone away; the audit row is still written.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.store.InsertPrediction(storeCtx, record); err != nil {
		logger.Warn("Failed to persist prediction", zap.String("complaint_id", c.ComplaintID), zap.Error(err))
	}
}

// NewRecord flattens a pipeline outcome into its stored form.
func NewRecord(c complaint.Complaint, result pipeline.Result, runErr error) (*models.PredictionRecord, error) {
	record := &models.PredictionRecord{
		ID:          uuid.New().String(),
		ComplaintID: c.ComplaintID,
		Category:    c.Category,
		Status:      pipeline.StatusCompleted,
		Attempts:    1,
	}

	if runErr != nil {
		record.Status = pipeline.StatusFailed
		if stage, ok := pipeline.StageOf(runErr); ok {
			record.FailedStage = string(stage)
		}
	} else {
		record.SeverityScore = result.Severity.SeverityScore
		record.UrgencyTier = string(result.TimePrediction.UrgencyTier)
		record.EstimatedHours = result.TimePrediction.EstimatedHours
		record.EstimatedDays = result.TimePrediction.EstimatedDays

		sev, err := json.Marshal(result.Severity)
		if err != nil {
			return nil, fmt.Errorf("failed to encode severity: %w", err)
		}
		tp, err := json.Marshal(result.TimePrediction)
		if err != nil {
			return nil, fmt.Errorf("failed to encode time prediction: %w", err)
		}
		record.SeverityJSON = string(sev)
		record.TimeJSON = string(tp)
	}

	meta, err := json.Marshal(result.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	record.MetadataJSON = string(meta)

	return record, nil
}
