// Package timepredict estimates how long a complaint will take to resolve,
// conditioned on its severity, the detector hints and the local weather.
package timepredict

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/urbanfix/backend/internal/complaint"
	"github.com/urbanfix/backend/internal/llm"
	"github.com/urbanfix/backend/internal/metrics"
	"github.com/urbanfix/backend/pkg/logger"
	"github.com/urbanfix/backend/pkg/utils"
)

const (
	Temperature = 0.3
	MaxTokens   = 2000

	maxRawResponse = 500
)

type Input struct {
	Category string
	Severity complaint.SeverityAnalysis
	Detector *complaint.DetectorFeatures
	Weather  complaint.WeatherContext
}

type Predictor struct {
	llm llm.Completer
}

func NewPredictor(completer llm.Completer) (*Predictor, error) {
	if completer == nil {
		return nil, errors.New("time predictor requires an llm client")
	}
	return &Predictor{llm: completer}, nil
}

// Predict always returns an estimate. The error is non-nil only when ctx
// ended before a reply arrived.
func (p *Predictor) Predict(ctx context.Context, in Input) (complaint.TimePrediction, error) {
	score := in.Severity.SeverityScore

	resp, err := p.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   BuildPrompt(in),
		Temperature:  Temperature,
		MaxTokens:    MaxTokens,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Fallback(score, ctxErr.Error()), ctxErr
		}
		logger.Warn("Time prediction failed, using fallback", zap.Int("severity_score", score), zap.Error(err))
		metrics.FallbacksTotal.WithLabelValues("time_prediction", "llm_error").Inc()
		return Fallback(score, err.Error()), nil
	}

	result, err := Parse(resp.Content)
	if err != nil {
		raw := utils.Truncate(resp.Content, maxRawResponse)
		logger.Warn("Failed to parse time prediction, using fallback",
			zap.Int("severity_score", score),
			zap.String("raw_response", raw),
			zap.Error(err),
		)
		metrics.FallbacksTotal.WithLabelValues("time_prediction", "parse_error").Inc()

		fb := Fallback(score, err.Error())
		fb.RawResponse = raw
		return fb, nil
	}

	logger.Info("Time prediction completed",
		zap.Int("severity_score", score),
		zap.Float64("estimated_days", result.EstimatedDays),
		zap.String("urgency_tier", string(result.UrgencyTier)),
	)
	return result, nil
}
