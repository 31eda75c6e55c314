// Package severity produces the authoritative severity assessment for a
// complaint from its image and text using a multimodal LLM.
package severity

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
	Temperature = 0.2
	MaxTokens   = 8000
)

type Input struct {
	Category    string
	Description string
	Address     string
	ImageURL    string
	// Detector is optional and only ever cited in the prompt.
	Detector *complaint.DetectorFeatures
}

type Analyzer struct {
	llm llm.Completer
}

func NewAnalyzer(completer llm.Completer) (*Analyzer, error) {
	if completer == nil {
		return nil, errors.New("severity analyzer requires an llm client")
	}
	return &Analyzer{llm: completer}, nil
}

// Analyze always returns a usable record. LLM, network and parse failures
// yield the fallback with Error set. The error return is non-nil only when ctx
// ended, in which case the caller has abandoned the result.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (complaint.SeverityAnalysis, error) {
	resp, err := a.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   BuildPrompt(in),
		ImageURL:     in.ImageURL,
		Temperature:  Temperature,
		MaxTokens:    MaxTokens,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Fallback(in.Category, ctxErr, ""), ctxErr
		}
		logger.Warn("Severity analysis failed, using fallback",
			zap.String("category", in.Category),
			zap.Error(err),
		)
		metrics.FallbacksTotal.WithLabelValues("severity", "llm_error").Inc()
		return Fallback(in.Category, err, ""), nil
	}

	result, err := Parse(resp.Content)
	if err != nil {
		logger.Warn("Failed to parse severity response, using fallback",
			zap.String("category", in.Category),
			zap.String("raw_response", utils.Truncate(resp.Content, maxRawResponse)),
			zap.Error(err),
		)
		metrics.FallbacksTotal.WithLabelValues("severity", "parse_error").Inc()
		return Fallback(in.Category, err, resp.Content), nil
	}

	logger.Info("Severity analysis completed",
		zap.String("category", in.Category),
		zap.Int("severity_score", result.SeverityScore),
		zap.String("issue_type", result.IssueType),
	)
	return result, nil
}
