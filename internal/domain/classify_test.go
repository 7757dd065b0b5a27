package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		cdi   float64
		class SeverityClass
		phase Phase
	}{
		{"far below extreme", -3.0, SeverityExtreme, PhaseAlert},
		{"extreme boundary", -1.5, SeverityExtreme, PhaseAlert},
		{"just above extreme", -1.49, SeveritySevere, PhaseWarn},
		{"severe boundary", -1.0, SeveritySevere, PhaseWarn},
		{"just above severe", -0.99, SeverityModerate, PhaseWarn},
		{"moderate boundary", -0.5, SeverityModerate, PhaseWarn},
		{"just above moderate", -0.49, SeverityNormal, PhaseWatch},
		{"zero", 0, SeverityNormal, PhaseWatch},
		{"normal boundary", 0.5, SeverityNormal, PhaseWatch},
		{"just above normal", 0.51, SeverityNoDrought, PhaseWatch},
		{"wet", 2.5, SeverityNoDrought, PhaseWatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.cdi)
			assert.Equal(t, tt.class, got)
			assert.Equal(t, tt.phase, PhaseOf(got))
		})
	}
}

func TestClassify_Sweep(t *testing.T) {
	for i := -300; i <= 300; i++ {
		v := float64(i) / 100
		c := Classify(v)
		switch {
		case v <= -1.5:
			assert.Equal(t, SeverityExtreme, c, "v=%v", v)
		case v <= -1.0:
			assert.Equal(t, SeveritySevere, c, "v=%v", v)
		case v <= -0.5:
			assert.Equal(t, SeverityModerate, c, "v=%v", v)
		case v <= 0.5:
			assert.Equal(t, SeverityNormal, c, "v=%v", v)
		default:
			assert.Equal(t, SeverityNoDrought, c, "v=%v", v)
		}
	}
}

func TestSeverityClass_Labels(t *testing.T) {
	assert.Equal(t, "Extreme Drought", SeverityExtreme.String())
	assert.Equal(t, "Severe Drought", SeveritySevere.String())
	assert.Equal(t, "Moderate Drought", SeverityModerate.String())
	assert.Equal(t, "Normal", SeverityNormal.String())
	assert.Equal(t, "No Drought", SeverityNoDrought.String())

	seen := map[string]bool{}
	for _, c := range SeverityClasses {
		assert.False(t, seen[c.Color()], "duplicate colour for %s", c)
		seen[c.Color()] = true
	}
}

func TestAssess_JSON(t *testing.T) {
	data, err := json.Marshal(Assess(-1.6))
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":-1.6,"class":"Extreme Drought","phase":"Alert"}`, string(data))
}

func TestPhase_Escalated(t *testing.T) {
	assert.False(t, PhaseWatch.Escalated())
	assert.True(t, PhaseWarn.Escalated())
	assert.True(t, PhaseAlert.Escalated())
}
