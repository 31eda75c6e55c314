package severity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanfix/backend/internal/complaint"
	"github.com/urbanfix/backend/internal/llm"
)

type fakeCompleter struct {
	content string
	err     error
	last    llm.CompletionRequest
	calls   int
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content}, nil
}

const validReply = `{"severity_score": 75, "issue_type": "Severe pothole", "causes": ["heavy traffic", "water ingress"], "safety_risk": "High risk to two-wheelers", "infrastructure_damage": "Surface course failure", "reasoning_summary": "Deep pothole in the main carriageway."}`

func activeFeatures() *complaint.DetectorFeatures {
	return &complaint.DetectorFeatures{
		Active:           true,
		NumDetections:    3,
		DamageProportion: 0.15,
		MeanConfidence:   0.82,
		SeverityHint:     complaint.HintHigh,
		ClassSummary: []complaint.ClassSummary{
			{ClassCode: "D00", Description: "Longitudinal Crack", Count: 2, MeanConfidence: 0.8},
			{ClassCode: "D40", Description: "Pothole", Count: 1, MeanConfidence: 0.86},
		},
	}
}

func TestNewAnalyzerRequiresClient(t *testing.T) {
	_, err := NewAnalyzer(nil)
	assert.Error(t, err)
}

func TestAnalyzeParsesReply(t *testing.T) {
	fake := &fakeCompleter{content: validReply}
	a, err := NewAnalyzer(fake)
	require.NoError(t, err)

	got, err := a.Analyze(context.Background(), Input{
		Category:    "road",
		Description: "Big pothole on Main Street",
		Address:     "Mumbai, Maharashtra",
		ImageURL:    "https://img.example/x.jpg",
	})
	require.NoError(t, err)

	assert.Equal(t, 75, got.SeverityScore)
	assert.Equal(t, "Severe pothole", got.IssueType)
	assert.Equal(t, []string{"heavy traffic", "water ingress"}, got.Causes)
	assert.Empty(t, got.Error)

	assert.Equal(t, "https://img.example/x.jpg", fake.last.ImageURL)
	assert.InDelta(t, 0.2, fake.last.Temperature, 1e-6)
	assert.Equal(t, 8000, fake.last.MaxTokens)
}

func TestAnalyzeLLMErrorFallsBack(t *testing.T) {
	a, err := NewAnalyzer(&fakeCompleter{err: errors.New("groq unavailable")})
	require.NoError(t, err)

	got, err := a.Analyze(context.Background(), Input{Category: "road"})
	require.NoError(t, err)

	assert.Equal(t, 50, got.SeverityScore)
	assert.Equal(t, "road complaint", got.IssueType)
	assert.Contains(t, got.Error, "groq unavailable")
}

func TestAnalyzeUnparseableReplyKeepsTruncatedRaw(t *testing.T) {
	raw := "I am unable to assess this image. " + strings.Repeat("x", 900)
	a, err := NewAnalyzer(&fakeCompleter{content: raw})
	require.NoError(t, err)

	got, err := a.Analyze(context.Background(), Input{Category: "water"})
	require.NoError(t, err)

	assert.Equal(t, 50, got.SeverityScore)
	assert.Equal(t, "water complaint", got.IssueType)
	assert.NotEmpty(t, got.Error)
	assert.Len(t, got.RawResponse, 500)
	assert.True(t, strings.HasPrefix(raw, got.RawResponse))
}

func TestAnalyzeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a, err := NewAnalyzer(&fakeCompleter{err: context.Canceled})
	require.NoError(t, err)

	got, err := a.Analyze(ctx, Input{Category: "road"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 50, got.SeverityScore)
}

func TestParseMissingCauses(t *testing.T) {
	got, err := Parse(`{"severity_score": 40, "issue_type": "Crack", "safety_risk": "Low", "infrastructure_damage": "Minor", "reasoning_summary": "Hairline crack."}`)
	require.NoError(t, err)

	assert.Equal(t, []string{complaint.ParseErrorSentinel}, got.Causes)
	assert.Equal(t, 40, got.SeverityScore)
}

func TestParseMissingFieldsUseSentinel(t *testing.T) {
	got, err := Parse(`{"severity_score": "82"}`)
	require.NoError(t, err)

	assert.Equal(t, 82, got.SeverityScore)
	assert.Equal(t, complaint.ParseErrorSentinel, got.IssueType)
	assert.Equal(t, complaint.ParseErrorSentinel, got.SafetyRisk)
	assert.Equal(t, complaint.ParseErrorSentinel, got.InfrastructureDamage)
	assert.Equal(t, complaint.ParseErrorSentinel, got.ReasoningSummary)
}

func TestParseWrappingsAgree(t *testing.T) {
	want, err := Parse(validReply)
	require.NoError(t, err)

	for name, text := range map[string]string{
		"json fence": "```json\n" + validReply + "\n```",
		"bare fence": "```\n" + validReply + "\n```",
		"prose":      "Here is the assessment.\n" + validReply + "\nThanks.",
	} {
		t.Run(name, func(t *testing.T) {
			got, err := Parse(text)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestClampScore(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{-5, 0},
		{0, 0},
		{49.6, 50},
		{100, 100},
		{180, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampScore(tt.in), "in=%v", tt.in)
	}
}

func TestBuildPromptHints(t *testing.T) {
	base := Input{Category: "road", Description: "Pothole near school", Address: "MG Road, Pune"}

	without := BuildPrompt(base)
	assert.NotContains(t, without, "SECONDARY")
	assert.Contains(t, without, "MG Road, Pune")
	assert.Contains(t, without, `"severity_score"`)

	inactive := base
	inactive.Detector = &complaint.DetectorFeatures{Active: false, Reason: complaint.ReasonModelUnavailable}
	assert.NotContains(t, BuildPrompt(inactive), "SECONDARY")

	with := base
	with.Detector = activeFeatures()
	prompt := BuildPrompt(with)
	assert.Contains(t, prompt, "SECONDARY")
	assert.Contains(t, prompt, "may be inaccurate")
	assert.Contains(t, prompt, "Pothole (D40)")
	assert.Contains(t, prompt, "Advisory severity hint: high")
}

func TestAnalyzeNeverCopiesDetectorNumbers(t *testing.T) {
	fake := &fakeCompleter{content: `{"severity_score": 20, "issue_type": "Minor crack", "causes": ["age"], "safety_risk": "Low", "infrastructure_damage": "Cosmetic", "reasoning_summary": "Small crack."}`}
	a, err := NewAnalyzer(fake)
	require.NoError(t, err)

	features := activeFeatures()
	features.SeverityHint = complaint.HintCritical
	got, err := a.Analyze(context.Background(), Input{Category: "road", Detector: features})
	require.NoError(t, err)

	assert.Equal(t, 20, got.SeverityScore)
	assert.Equal(t, "Minor crack", got.IssueType)
}
