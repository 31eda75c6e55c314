package department

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/urbanfix/backend/internal/llm"
	"github.com/urbanfix/backend/internal/media"
	"github.com/urbanfix/backend/pkg/logger"
	"github.com/urbanfix/backend/pkg/utils"
)

const (
	classifierTemperature = 0.2
	classifierMaxTokens   = 1000
	freeTextConfidence    = 0.5
	defaultLLMConfidence  = 0.5
)

// Classification is the image classifier's verdict.
type Classification struct {
	Success    bool
	Department string
	Confidence float64
}

type Classifier interface {
	Classify(ctx context.Context, image io.Reader, description string, candidates []string) (Classification, error)
}

// ImageClassifier asks a multimodal LLM which department an image belongs to.
type ImageClassifier struct {
	llm    llm.Completer
	tmpDir string
}

func NewImageClassifier(completer llm.Completer, tmpDir string) (*ImageClassifier, error) {
	if completer == nil {
		return nil, errors.New("image classifier requires an llm client")
	}
	return &ImageClassifier{llm: completer, tmpDir: tmpDir}, nil
}

func (c *ImageClassifier) Classify(ctx context.Context, image io.Reader, description string, candidates []string) (Classification, error) {
	if image == nil {
		return Classification{}, errors.New("no image provided")
	}

	var result Classification
	err := media.WithTemp(c.tmpDir, image, func(path string) error {
		dataURL, err := media.JPEGDataURL(path)
		if err != nil {
			return err
		}

		resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: classifierSystemPrompt,
			UserPrompt:   buildClassifierPrompt(strings.TrimSpace(description), candidates),
			ImageURL:     dataURL,
			Temperature:  classifierTemperature,
			MaxTokens:    classifierMaxTokens,
		})
		if err != nil {
			return fmt.Errorf("classifier request failed: %w", err)
		}

		result = ParseClassification(resp.Content, candidates)
		if !result.Success {
			logger.Warn("Classifier reply had no department",
				zap.String("raw_response", utils.Truncate(resp.Content, 500)),
			)
		}
		return nil
	})
	if err != nil {
		return Classification{}, err
	}
	return result, nil
}

const classifierSystemPrompt = `You route citizen complaints to the municipal department responsible for fixing them. You look at the photo and the description and pick exactly one department from the list you are given.

You reply with a single JSON object and nothing else.`

func buildClassifierPrompt(description string, candidates []string) string {
	var b strings.Builder

	b.WriteString("Classify the attached complaint image.\n\n")
	if description != "" {
		b.WriteString(fmt.Sprintf("Citizen description: %s\n\n", description))
	}

	b.WriteString("Candidate departments:\n")
	for _, name := range candidates {
		b.WriteString(fmt.Sprintf("- %s\n", name))
	}

	b.WriteString(`
Guidelines:
- Road surface damage, potholes, broken footpaths and dividers belong to road-related departments.
- Blocked drains, overflowing sewers, open manholes and waterlogging belong to drainage or sewerage.
- Leaking pipes, no water supply and contaminated water belong to water supply.
- Broken streetlights, exposed wires and power outages belong to electricity.
- Garbage heaps, overflowing bins and litter belong to sanitation.
- Choose a department only from the list above. If nothing fits, choose "Other".
- Confidence is a number between 0 and 1.

Respond with ONLY: {"department": "<name from the list>", "confidence": <0-1>}`)

	return b.String()
}

// ParseClassification recovers a department from a classifier reply. It
// tries JSON recovery first and then scans the text for a candidate name.
// Departments outside candidates become Other at half confidence.
func ParseClassification(text string, candidates []string) Classification {
	var name string
	confidence := defaultLLMConfidence

	if obj, err := llm.DecodeObject(text); err == nil {
		name, _ = llm.AsString(obj["department"])
		if f, ok := llm.AsFloat(obj["confidence"]); ok {
			confidence = f
		}
	}

	name = strings.TrimSpace(name)
	if name == "" {
		found, ok := scanForCandidate(text, candidates)
		if !ok {
			return Classification{}
		}
		name, confidence = found, freeTextConfidence
	}

	confidence = clamp01(confidence)

	canonical, ok := lookupCandidate(name, candidates)
	if !ok {
		return Classification{Success: true, Department: OtherDepartment, Confidence: confidence / 2}
	}
	return Classification{Success: true, Department: canonical, Confidence: confidence}
}

// scanForCandidate prefers longer names so "Public Health" beats "Health".
func scanForCandidate(text string, candidates []string) (string, bool) {
	lowered := strings.ToLower(text)

	ordered := append([]string(nil), candidates...)
	sort.SliceStable(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	for _, name := range ordered {
		if name == "" || strings.EqualFold(name, OtherDepartment) {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(name)) {
			return name, true
		}
	}
	return "", false
}

func lookupCandidate(name string, candidates []string) (string, bool) {
	for _, candidate := range candidates {
		if strings.EqualFold(strings.TrimSpace(candidate), name) {
			return candidate, true
		}
	}
	return "", false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
