package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pondpal/pondpal-go/internal/sensor"
)

func TestDeviceFromTopic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		topic   string
		want    string
		wantErr bool
	}{
		{"valid", "pondpal/pond-01/telemetry", "pond-01", false},
		{"wrong prefix", "other/pond-01/telemetry", "", true},
		{"wrong suffix", "pondpal/pond-01/state", "", true},
		{"missing device", "pondpal//telemetry", "", true},
		{"nested device segment", "pondpal/a/b/telemetry", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := deviceFromTopic("pondpal", tt.topic)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePayload(t *testing.T) {
	t.Parallel()

	t.Run("mixed value types", func(t *testing.T) {
		t.Parallel()
		payload := []byte(`{"time": 1756700000000, "ph": 7.2, "temp": "24.5", "watlvl": "85%"}`)

		reading, err := parsePayload("pond-01", payload)
		require.NoError(t, err)

		assert.Equal(t, "pond-01", reading.DeviceID)
		assert.Equal(t, int64(1756700000000), reading.Timestamp)
		assert.Equal(t, "7.2", reading.Values[sensor.KindPH])
		assert.Equal(t, "24.5", reading.Values[sensor.KindTemp])
		assert.Equal(t, "85%", reading.Values[sensor.KindWaterLevel])
	})

	t.Run("missing time defaults to zero", func(t *testing.T) {
		t.Parallel()
		reading, err := parsePayload("pond-01", []byte(`{"ph": "7.0"}`))
		require.NoError(t, err)
		assert.Zero(t, reading.Timestamp)
	})

	t.Run("malformed json", func(t *testing.T) {
		t.Parallel()
		_, err := parsePayload("pond-01", []byte(`{ph:`))
		assert.Error(t, err)
	})

	t.Run("unsupported field type", func(t *testing.T) {
		t.Parallel()
		_, err := parsePayload("pond-01", []byte(`{"ph": [1,2]}`))
		assert.Error(t, err)
	})
}
