package complaint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUrgencyTier(t *testing.T) {
	cases := map[string]UrgencyTier{
		"critical":       TierCritical,
		" HIGH ":         TierHigh,
		"Medium":         TierMedium,
		"low":            TierLow,
		"super_critical": TierMedium,
		"":               TierMedium,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseUrgencyTier(in), in)
	}
}

func TestIsRoadCategory(t *testing.T) {
	assert.True(t, IsRoadCategory("road"))
	assert.True(t, IsRoadCategory(" Road "))
	assert.False(t, IsRoadCategory("roads"))
	assert.False(t, IsRoadCategory("water"))
}

func TestInactiveFeaturesOmitDetectionFields(t *testing.T) {
	b, err := json.Marshal(Inactive(ReasonNotApplicableCategory, ""))
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, false, out["active"])
	assert.Equal(t, "not_applicable_category", out["reason"])
	assert.NotContains(t, out, "detections")
	assert.NotContains(t, out, "severity_hint")
}

func TestActiveFeaturesAlwaysCarryDetectionArrays(t *testing.T) {
	b, err := json.Marshal(DetectorFeatures{Active: true, SeverityHint: HintLow})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, []any{}, out["detections"])
	assert.Equal(t, []any{}, out["class_summary"])
	assert.Equal(t, true, out["active"])
	assert.Equal(t, "low", out["severity_hint"])

	var back DetectorFeatures
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Active)
	assert.Empty(t, back.Detections)
}
