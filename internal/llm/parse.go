package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var ErrNoJSONObject = errors.New("no JSON object found in llm response")

var (
	objectPattern = regexp.MustCompile(`(?s)\{[^{}]*\}`)
	leadingNumber = regexp.MustCompile(`^[-+]?\d+(\.\d+)?`)
)

// StripCodeFence removes a ```lang ... ``` wrapper, keeping the inner lines.
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	lines := strings.Split(trimmed, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.HasPrefix(strings.TrimSpace(lines[n-1]), "```") {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// DecodeObject recovers a JSON object from text that nominally is JSON. It
// tries the raw text, the fence-stripped text, the outermost {...} slice and
// finally the first flat {...} match.
func DecodeObject(text string) (map[string]any, error) {
	candidates := []string{strings.TrimSpace(text), StripCodeFence(text)}

	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			candidates = append(candidates, text[start:end+1])
		}
	}
	if m := objectPattern.FindString(text); m != "" {
		candidates = append(candidates, m)
	}

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(candidate), &obj); err == nil && obj != nil {
			return obj, nil
		}
	}
	return nil, ErrNoJSONObject
}

func AsString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// AsFloat accepts numbers and numeric strings such as "72" or "3.5 days".
func AsFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		m := leadingNumber.FindString(strings.TrimSpace(t))
		if m == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(m, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func AsStringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := AsString(item); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out, true
	case string:
		if strings.TrimSpace(t) == "" {
			return []string{}, true
		}
		return []string{t}, true
	default:
		return nil, false
	}
}
