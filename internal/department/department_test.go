package department

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanfix/backend/internal/complaint"
	"github.com/urbanfix/backend/internal/llm"
)

type fakeClassifier struct {
	result     Classification
	err        error
	panics     bool
	candidates []string
}

func (f *fakeClassifier) Classify(_ context.Context, _ io.Reader, _ string, candidates []string) (Classification, error) {
	f.candidates = candidates
	if f.panics {
		panic("decoder bug")
	}
	return f.result, f.err
}

type fakeCompleter struct {
	content string
	err     error
	last    llm.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content}, nil
}

var catalog = []complaint.CatalogEntry{
	{ID: "dep-road", Name: "Road"},
	{ID: "dep-water", Name: "Water"},
	{ID: "dep-elec", Name: "Electricity"},
	{ID: "dep-other", Name: "Other"},
}

func photo() io.Reader {
	return strings.NewReader("fake image bytes")
}

func pngPhoto(t *testing.T) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 48))))
	return bytes.NewReader(buf.Bytes())
}

func TestSuggestClassifierSuccess(t *testing.T) {
	s := NewSuggester(&fakeClassifier{result: Classification{Success: true, Department: "Road", Confidence: 0.85}})

	got := s.Suggest(context.Background(), photo(), "Big pothole", catalog)

	assert.Equal(t, "Road", got.DepartmentName)
	assert.Equal(t, 0.85, got.Confidence)
	assert.Equal(t, "dep-road", got.DepartmentID)
	assert.Equal(t, SourceClassifier, got.Source)
}

func TestSuggestKeywordFallback(t *testing.T) {
	s := NewSuggester(&fakeClassifier{err: errors.New("groq down")})

	got := s.Suggest(context.Background(), photo(), "water pipe burst", catalog)

	assert.Equal(t, "Water", got.DepartmentName)
	assert.Equal(t, 0.55, got.Confidence)
	assert.Equal(t, "dep-water", got.DepartmentID)
	assert.Equal(t, SourceKeyword, got.Source)
}

func TestSuggestTotalMiss(t *testing.T) {
	s := NewSuggester(&fakeClassifier{err: errors.New("groq down")})

	got := s.Suggest(context.Background(), photo(), "xyz", []complaint.CatalogEntry{{ID: "o", Name: "Other"}})

	assert.Equal(t, "Other", got.DepartmentName)
	assert.Equal(t, 0.35, got.Confidence)
	assert.Equal(t, SourceDefault, got.Source)
}

func TestSuggestClassifierWithoutDepartmentFallsBack(t *testing.T) {
	s := NewSuggester(&fakeClassifier{result: Classification{Success: false}})

	got := s.Suggest(context.Background(), photo(), "streetlight not working", catalog)

	assert.Equal(t, "Electricity", got.DepartmentName)
	assert.Equal(t, SourceKeyword, got.Source)
}

func TestSuggestClassifierPanicIsSuppressed(t *testing.T) {
	s := NewSuggester(&fakeClassifier{panics: true})

	got := s.Suggest(context.Background(), photo(), "garbage heap near market", nil)

	assert.Equal(t, "Sanitation", got.DepartmentName)
	assert.Empty(t, got.DepartmentID)
}

func TestSuggestWithoutClassifierOrImage(t *testing.T) {
	got := NewSuggester(nil).Suggest(context.Background(), photo(), "open manhole", catalog)
	assert.Equal(t, "Drainage", got.DepartmentName)
	assert.Empty(t, got.DepartmentID)

	classifier := &fakeClassifier{result: Classification{Success: true, Department: "Road", Confidence: 0.9}}
	got = NewSuggester(classifier).Suggest(context.Background(), nil, "", catalog)
	assert.Equal(t, "Other", got.DepartmentName)
	assert.Nil(t, classifier.candidates)
}

func TestSuggestEmptyCatalogUsesBuiltins(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{Success: true, Department: "Parks", Confidence: 0.7}}

	got := NewSuggester(classifier).Suggest(context.Background(), photo(), "", nil)

	assert.Equal(t, BuiltinDepartments, classifier.candidates)
	assert.Equal(t, "Parks", got.DepartmentName)
	assert.Equal(t, 0.7, got.Confidence)
	assert.Empty(t, got.DepartmentID)
}

func TestSuggestConfidenceIsClampedAndRounded(t *testing.T) {
	for _, tt := range []struct {
		in   float64
		want float64
	}{
		{0.8567, 0.86},
		{1.7, 1.0},
		{-0.2, 0},
		{0.333333, 0.33},
	} {
		s := NewSuggester(&fakeClassifier{result: Classification{Success: true, Department: "Road", Confidence: tt.in}})
		got := s.Suggest(context.Background(), photo(), "", catalog)
		assert.Equal(t, tt.want, got.Confidence, "in=%v", tt.in)
		assert.NotEmpty(t, got.DepartmentName)
	}
}

func TestCandidatesDeduplicates(t *testing.T) {
	got := Candidates([]complaint.CatalogEntry{
		{ID: "1", Name: "Road"},
		{ID: "2", Name: " road "},
		{ID: "3", Name: ""},
		{ID: "4", Name: "Water"},
	})
	assert.Equal(t, []string{"Road", "Water"}, got)
}

func TestMatchKeywordsOrder(t *testing.T) {
	tests := map[string]string{
		"Huge pothole near the school":       "Road",
		"Drain overflowing onto the road":    "Road",
		"sewage overflowing near the market": "Drainage",
		"No water supply since Monday":       "Water",
		"Exposed wire hanging from pole":     "Electricity",
		"Garbage not collected":              "Sanitation",
		"Fallen tree blocking the park gate": "Parks",
		"Mosquito breeding in stagnant pool": "Public Health",
	}
	for text, want := range tests {
		got, ok := MatchKeywords(text)
		assert.True(t, ok, text)
		assert.Equal(t, want, got, text)
	}

	_, ok := MatchKeywords("xyz")
	assert.False(t, ok)
}

func TestParseClassificationLayers(t *testing.T) {
	candidates := []string{"Road", "Water", "Public Health", "Other"}

	tests := []struct {
		name string
		text string
		dept string
		conf float64
	}{
		{"direct", `{"department": "Water", "confidence": 0.9}`, "Water", 0.9},
		{"fenced", "```json\n{\"department\": \"road\", \"confidence\": 0.8}\n```", "Road", 0.8},
		{"embedded", `I think {"department": "Water", "confidence": 0.6} fits best`, "Water", 0.6},
		{"free text", "This looks like a Public Health issue to me.", "Public Health", 0.5},
		{"clamped", `{"department": "Road", "confidence": 4}`, "Road", 1.0},
		{"missing confidence", `{"department": "Road"}`, "Road", 0.5},
		{"unknown department", `{"department": "Fire Brigade", "confidence": 0.8}`, "Other", 0.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseClassification(tt.text, candidates)
			assert.True(t, got.Success)
			assert.Equal(t, tt.dept, got.Department)
			assert.InDelta(t, tt.conf, got.Confidence, 1e-9)
		})
	}

	miss := ParseClassification("I cannot see anything useful.", candidates)
	assert.False(t, miss.Success)
}

func TestSuggestUnknownDepartmentIsOtherWithHalvedConfidence(t *testing.T) {
	completer := &fakeCompleter{content: `{"department": "Fire Brigade", "confidence": 0.9}`}
	classifier, err := NewImageClassifier(completer, t.TempDir())
	require.NoError(t, err)

	got := NewSuggester(classifier).Suggest(context.Background(), pngPhoto(t), "smoke", catalog)

	assert.Equal(t, "Other", got.DepartmentName)
	assert.Equal(t, 0.45, got.Confidence)
	assert.Equal(t, "dep-other", got.DepartmentID)
}

func TestImageClassifierSendsJPEGAndReleasesTemp(t *testing.T) {
	dir := t.TempDir()
	completer := &fakeCompleter{content: `{"department": "Road", "confidence": 0.85}`}
	classifier, err := NewImageClassifier(completer, dir)
	require.NoError(t, err)

	got, err := classifier.Classify(context.Background(), pngPhoto(t), "  pothole  ", []string{"Road", "Water"})
	require.NoError(t, err)

	assert.Equal(t, Classification{Success: true, Department: "Road", Confidence: 0.85}, got)
	assert.True(t, strings.HasPrefix(completer.last.ImageURL, "data:image/jpeg;base64,"))
	assert.Contains(t, completer.last.UserPrompt, "Citizen description: pothole\n")
	assert.Contains(t, completer.last.UserPrompt, "- Water\n")
	assert.Equal(t, 1000, completer.last.MaxTokens)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestImageClassifierErrorsReleaseTemp(t *testing.T) {
	dir := t.TempDir()

	classifier, err := NewImageClassifier(&fakeCompleter{err: errors.New("timeout")}, dir)
	require.NoError(t, err)
	_, err = classifier.Classify(context.Background(), pngPhoto(t), "", []string{"Road"})
	assert.Error(t, err)

	_, err = classifier.Classify(context.Background(), strings.NewReader("not an image"), "", []string{"Road"})
	assert.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewImageClassifierRequiresClient(t *testing.T) {
	_, err := NewImageClassifier(nil, "")
	assert.Error(t, err)
}
