// Package pipeline sequences detector, severity, weather and time prediction
// for one complaint and records what each stage did.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/urbanfix/backend/internal/complaint"
	"github.com/urbanfix/backend/internal/metrics"
	"github.com/urbanfix/backend/internal/severity"
	"github.com/urbanfix/backend/internal/timepredict"
	"github.com/urbanfix/backend/pkg/logger"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Detector interface {
	Detect(ctx context.Context, imageURL, category string) complaint.DetectorFeatures
}

type SeverityAnalyzer interface {
	Analyze(ctx context.Context, in severity.Input) (complaint.SeverityAnalysis, error)
}

type WeatherProvider interface {
	Fetch(ctx context.Context, address string) complaint.WeatherContext
}

type TimePredictor interface {
	Predict(ctx context.Context, in timepredict.Input) (complaint.TimePrediction, error)
}

// StepObserver is called once per recorded step, in execution order.
type StepObserver func(step complaint.PipelineStep)

// PipelineError reports a critical stage failure.
type PipelineError struct {
	Stage complaint.StepName
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// StageOf returns the failing stage when err is a PipelineError.
func StageOf(err error) (complaint.StepName, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Stage, true
	}
	return "", false
}

type Result struct {
	Severity       complaint.SeverityAnalysis `json:"severity"`
	TimePrediction complaint.TimePrediction   `json:"time_prediction"`
	Metadata       complaint.PipelineMetadata `json:"metadata"`
}

type Orchestrator struct {
	detector  Detector
	severity  SeverityAnalyzer
	weather   WeatherProvider
	predictor TimePredictor
}

// NewOrchestrator wires the stages. The detector may be nil, in which case
// road complaints record a failed detector step.
func NewOrchestrator(detector Detector, analyzer SeverityAnalyzer, weather WeatherProvider, predictor TimePredictor) (*Orchestrator, error) {
	if analyzer == nil {
		return nil, errors.New("severity analyzer is required")
	}
	if weather == nil {
		return nil, errors.New("weather provider is required")
	}
	if predictor == nil {
		return nil, errors.New("time predictor is required")
	}
	return &Orchestrator{
		detector:  detector,
		severity:  analyzer,
		weather:   weather,
		predictor: predictor,
	}, nil
}

func (o *Orchestrator) PredictResolution(ctx context.Context, c complaint.Complaint) (Result, error) {
	return o.Run(ctx, c, nil)
}

// Run executes all stages. The returned Result always carries the metadata
// trail, including when a critical stage fails.
func (o *Orchestrator) Run(ctx context.Context, c complaint.Complaint, observe StepObserver) (Result, error) {
	run := &trail{
		meta: complaint.PipelineMetadata{
			ComplaintID:   c.ComplaintID,
			Category:      c.Category,
			PipelineSteps: make([]complaint.PipelineStep, 0, 4),
		},
		observe: observe,
		log:     logger.GetLogger().With(zap.String("complaint_id", c.ComplaintID), zap.String("category", c.Category)),
	}

	run.log.Info("Starting complaint analysis pipeline")

	features := o.runDetector(ctx, run, c)

	sev, err := o.runSeverity(ctx, run, c, features)
	if err != nil {
		return run.fail(Result{Severity: sev}, complaint.StepSeverity, err)
	}

	wc := o.runWeather(ctx, run, c)

	tp, err := o.runTimePrediction(ctx, run, c, sev, features, wc)
	if err != nil {
		return run.fail(Result{Severity: sev, TimePrediction: tp}, complaint.StepTimePrediction, err)
	}

	run.meta.PipelineStatus = StatusCompleted
	run.log.Info("Complaint analysis pipeline completed",
		zap.Int("severity_score", sev.SeverityScore),
		zap.String("urgency_tier", string(tp.UrgencyTier)),
	)
	return Result{Severity: sev, TimePrediction: tp, Metadata: run.meta}, nil
}

func (o *Orchestrator) runDetector(ctx context.Context, run *trail, c complaint.Complaint) complaint.DetectorFeatures {
	step := complaint.PipelineStep{Step: complaint.StepDetector}

	if !complaint.IsRoadCategory(c.Category) {
		features := complaint.Inactive(complaint.ReasonNotApplicableCategory, "")
		step.Status = complaint.StatusSkipped
		step.Reason = features.Reason
		step.DetectorActive = boolPtr(false)
		run.meta.DetectorFeatures = features
		run.record(step)
		return features
	}

	var features complaint.DetectorFeatures
	err := guard(func() error {
		if o.detector == nil {
			features = complaint.Inactive(complaint.ReasonModelUnavailable, "")
			return nil
		}
		features = o.detector.Detect(ctx, c.ImageURL, c.Category)
		return nil
	})
	if err != nil {
		features = complaint.Inactive(complaint.ReasonError, err.Error())
	}

	step.DetectorActive = boolPtr(features.Active)
	if features.Active {
		step.Status = complaint.StatusSuccess
		step.NumDetections = intPtr(features.NumDetections)
	} else {
		step.Status = complaint.StatusFailed
		step.Reason = features.Reason
		step.Error = features.Error
		step.Note = "detector unavailable; continuing without advisory features"
	}

	run.meta.DetectorFeatures = features
	run.record(step)
	return features
}

func (o *Orchestrator) runSeverity(ctx context.Context, run *trail, c complaint.Complaint, features complaint.DetectorFeatures) (complaint.SeverityAnalysis, error) {
	step := complaint.PipelineStep{Step: complaint.StepSeverity}

	in := severity.Input{
		Category:    c.Category,
		Description: c.Description,
		Address:     c.Address,
		ImageURL:    c.ImageURL,
	}
	if features.Active {
		in.Detector = &features
	}

	var sev complaint.SeverityAnalysis
	err := guard(func() error {
		var err error
		sev, err = o.severity.Analyze(ctx, in)
		return err
	})
	if err != nil {
		step.Status = complaint.StatusFailed
		step.Error = err.Error()
		run.record(step)
		return sev, err
	}

	step.Status = complaint.StatusSuccess
	step.SeverityScore = intPtr(sev.SeverityScore)
	if sev.Error != "" {
		step.Note = "fallback severity applied"
		step.Error = sev.Error
	}
	metrics.SeverityScore.Observe(float64(sev.SeverityScore))
	run.record(step)
	return sev, nil
}

func (o *Orchestrator) runWeather(ctx context.Context, run *trail, c complaint.Complaint) complaint.WeatherContext {
	step := complaint.PipelineStep{Step: complaint.StepWeather}

	var wc complaint.WeatherContext
	err := guard(func() error {
		wc = o.weather.Fetch(ctx, c.Address)
		return nil
	})

	switch {
	case err != nil:
		wc = complaint.WeatherContext{Available: false, Error: err.Error()}
		step.Status = complaint.StatusFailed
		step.Error = err.Error()
	case wc.Available:
		step.Status = complaint.StatusSuccess
		if wc.Current != nil {
			step.WeatherCondition = wc.Current.Condition
		}
	default:
		step.Status = complaint.StatusUnavailable
		step.Note = wc.Message
	}

	run.meta.WeatherData = wc
	run.record(step)
	return wc
}

func (o *Orchestrator) runTimePrediction(ctx context.Context, run *trail, c complaint.Complaint, sev complaint.SeverityAnalysis, features complaint.DetectorFeatures, wc complaint.WeatherContext) (complaint.TimePrediction, error) {
	step := complaint.PipelineStep{Step: complaint.StepTimePrediction}

	in := timepredict.Input{Category: c.Category, Severity: sev, Weather: wc}
	if features.Active {
		in.Detector = &features
	}

	var tp complaint.TimePrediction
	err := guard(func() error {
		var err error
		tp, err = o.predictor.Predict(ctx, in)
		return err
	})
	if err != nil {
		step.Status = complaint.StatusFailed
		step.Error = err.Error()
		run.record(step)
		return tp, err
	}

	step.Status = complaint.StatusSuccess
	step.EstimatedDays = floatPtr(tp.EstimatedDays)
	step.UrgencyTier = tp.UrgencyTier
	run.record(step)
	return tp, nil
}

type trail struct {
	meta    complaint.PipelineMetadata
	observe StepObserver
	log     *zap.Logger
}

func (t *trail) record(step complaint.PipelineStep) {
	t.meta.PipelineSteps = append(t.meta.PipelineSteps, step)
	metrics.PipelineStepsTotal.WithLabelValues(string(step.Step), string(step.Status)).Inc()

	fields := []zap.Field{zap.String("stage", string(step.Step)), zap.String("status", string(step.Status))}
	if step.Error != "" {
		fields = append(fields, zap.String("error", step.Error))
	}
	if step.Status == complaint.StatusSuccess || step.Status == complaint.StatusSkipped {
		t.log.Info("Pipeline stage finished", fields...)
	} else {
		t.log.Warn("Pipeline stage degraded", fields...)
	}

	if t.observe != nil {
		t.observe(step)
	}
}

func (t *trail) fail(partial Result, stage complaint.StepName, err error) (Result, error) {
	pe := &PipelineError{Stage: stage, Err: err}
	t.meta.PipelineStatus = StatusFailed
	t.meta.Error = pe.Error()
	metrics.PipelineFailures.WithLabelValues(string(stage)).Inc()
	t.log.Error("Complaint analysis pipeline failed", zap.String("stage", string(stage)), zap.Error(err))

	partial.Metadata = t.meta
	return partial, pe
}

// guard runs fn and converts a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int { return &i }
func floatPtr(f float64) *float64 { return &f }
