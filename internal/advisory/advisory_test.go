package advisory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pondpal/pondpal-go/internal/sensor"
)

func TestAdviseHealthyPond(t *testing.T) {
	t.Parallel()

	values := sensor.Snapshot{
		sensor.KindPH:         7,
		sensor.KindTemp:       24,
		sensor.KindTDS:        200,
		sensor.KindTurb:       10,
		sensor.KindWaterLevel: 85,
	}

	got := Advise(values, nil)

	assert.Equal(t, SeverityHealthy, got.Severity)
	assert.Empty(t, got.Issues)
	assert.Contains(t, got.Message, "within optimal range")
}

func TestAdviseCriticalHighPH(t *testing.T) {
	t.Parallel()

	values := sensor.Snapshot{
		sensor.KindPH:   9.8, // more than 1.0 above the default max of 8.5
		sensor.KindTemp: 24,
	}

	got := Advise(values, nil)

	assert.Equal(t, SeverityCritical, got.Severity)
	assert.NotEmpty(t, got.Issues)
	assert.Contains(t, got.Issues[0], "pH")
	assert.Equal(t, strings.Join(got.Issues, " "), got.Message)
}

func TestAdviseSeverityBands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		values sensor.Snapshot
		want   Severity
	}{
		{
			name:   "ph slightly high is attention",
			values: sensor.Snapshot{sensor.KindPH: 8.7},
			want:   SeverityAttention,
		},
		{
			name:   "ph half a unit out is warning",
			values: sensor.Snapshot{sensor.KindPH: 9.1},
			want:   SeverityWarning,
		},
		{
			name:   "temp slightly cold is attention",
			values: sensor.Snapshot{sensor.KindTemp: 19},
			want:   SeverityAttention,
		},
		{
			name:   "temp three degrees hot is critical",
			values: sensor.Snapshot{sensor.KindTemp: 33},
			want:   SeverityCritical,
		},
		{
			name:   "tds just above max is warning",
			values: sensor.Snapshot{sensor.KindTDS: 510},
			want:   SeverityWarning,
		},
		{
			name:   "tds far above max is critical",
			values: sensor.Snapshot{sensor.KindTDS: 750},
			want:   SeverityCritical,
		},
		{
			name:   "low turbidity is not an issue",
			values: sensor.Snapshot{sensor.KindTurb: 1},
			want:   SeverityHealthy,
		},
		{
			name:   "water level twenty points low is critical",
			values: sensor.Snapshot{sensor.KindWaterLevel: 50},
			want:   SeverityCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Advise(tt.values, nil)
			assert.Equal(t, tt.want, got.Severity)
		})
	}
}

func TestAdviseCompoundRules(t *testing.T) {
	t.Parallel()

	t.Run("ammonia risk", func(t *testing.T) {
		t.Parallel()
		got := Advise(sensor.Snapshot{sensor.KindPH: 8.3, sensor.KindTemp: 29}, nil)
		assert.GreaterOrEqual(t, severityRank[got.Severity], severityRank[SeverityWarning])
		assert.Contains(t, got.Message, "ammonia")
	})

	t.Run("overfeeding", func(t *testing.T) {
		t.Parallel()
		got := Advise(sensor.Snapshot{sensor.KindTurb: 90, sensor.KindTDS: 450}, nil)
		assert.Contains(t, got.Message, "overfeeding")
	})

	t.Run("soft acidic water", func(t *testing.T) {
		t.Parallel()
		got := Advise(sensor.Snapshot{sensor.KindPH: 6.2, sensor.KindTDS: 80}, nil)
		assert.Contains(t, got.Message, "acidic")
	})

	t.Run("compound fires without per-sensor issue", func(t *testing.T) {
		t.Parallel()
		// Both readings are inside their default ranges.
		got := Advise(sensor.Snapshot{sensor.KindPH: 8.3, sensor.KindTemp: 29}, nil)
		assert.Equal(t, SeverityWarning, got.Severity)
	})
}

func TestAdviseIssueOrder(t *testing.T) {
	t.Parallel()

	// pH and water level both out of range plus the ammonia compound rule:
	// per-sensor issues come first in canonical sensor order, compounds last.
	got := Advise(sensor.Snapshot{
		sensor.KindPH:         8.6,
		sensor.KindTemp:       29,
		sensor.KindWaterLevel: 60,
	}, nil)

	assert.Len(t, got.Issues, 3)
	assert.Contains(t, got.Issues[0], "pH")
	assert.Contains(t, got.Issues[1], "Water Level")
	assert.Contains(t, got.Issues[2], "ammonia")
}

func TestAdviseSkipsMissingSensors(t *testing.T) {
	t.Parallel()

	got := Advise(sensor.Snapshot{}, nil)
	assert.Equal(t, SeverityHealthy, got.Severity)
}
