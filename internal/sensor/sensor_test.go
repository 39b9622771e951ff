package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		raw   string
		want  float64
		valid bool
	}{
		{"plain number", "7.2", 7.2, true},
		{"integer", "200", 200, true},
		{"percent suffix", "85%", 85, true},
		{"percent with space", " 85 % ", 85, true},
		{"empty", "", 0, false},
		{"whitespace only", "   ", 0, false},
		{"non-numeric", "n/a", 0, false},
		{"bare percent", "%", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Parse(tt.raw)
			assert.Equal(t, tt.valid, ok)
			if tt.valid {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestValuesToSnapshot(t *testing.T) {
	t.Parallel()

	values := Values{
		KindPH:         "7.1",
		KindTemp:       "24.5",
		KindWaterLevel: "85%",
		KindTurb:       "broken",
	}

	snap := values.ToSnapshot()

	assert.Len(t, snap, 3)
	assert.InDelta(t, 7.1, snap[KindPH], 1e-9)
	assert.InDelta(t, 85, snap[KindWaterLevel], 1e-9)

	_, ok := snap[KindTurb]
	assert.False(t, ok, "non-numeric readings must be dropped, not zeroed")
	_, ok = snap[KindTDS]
	assert.False(t, ok, "missing sensors stay missing")
}

func TestKindValid(t *testing.T) {
	t.Parallel()

	for _, k := range Kinds() {
		assert.True(t, k.Valid(), "kind %s", k)
	}
	assert.False(t, Kind("salinity").Valid())
}

func TestFromFloatsRoundTrip(t *testing.T) {
	t.Parallel()

	values := FromFloats(map[Kind]float64{KindPH: 6.8, KindTDS: 240})
	snap := values.ToSnapshot()

	assert.InDelta(t, 6.8, snap[KindPH], 1e-9)
	assert.InDelta(t, 240, snap[KindTDS], 1e-9)
}
