package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra/moderation/internal/domain"
)

func TestViolationStrings(t *testing.T) {
	got := violationStrings([]domain.ViolationType{domain.ViolationSpam, domain.ViolationHateSpeech})
	assert.Equal(t, []string{"spam", "hate_speech"}, got)

	assert.Empty(t, violationStrings(nil))
}

func TestSeverityRoundTrip(t *testing.T) {
	for lvl := domain.SeverityNone; lvl <= domain.SeverityCritical; lvl++ {
		assert.Equal(t, lvl, severityFromString(lvl.String()))
	}
	assert.Equal(t, domain.SeverityNone, severityFromString("garbage"))
}

func TestNullableJSON(t *testing.T) {
	v, err := nullableJSON((*domain.MLScores)(nil))
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = nullableJSON((*domain.ImageAnalysis)(nil))
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = nullableJSON(&domain.MLScores{Toxicity: 0.4, Confidence: 0.9})
	require.NoError(t, err)
	assert.Contains(t, string(v.([]byte)), `"toxicity":0.4`)
}
