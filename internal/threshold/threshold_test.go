package threshold

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pondpal/pondpal-go/internal/conf"
	"github.com/pondpal/pondpal-go/internal/datastore"
	"github.com/pondpal/pondpal-go/internal/errors"
	"github.com/pondpal/pondpal-go/internal/sensor"
)

func newTestStore(t *testing.T) datastore.Interface {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	ds := datastore.New(settings)
	require.NotNil(t, ds)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func validConfig() Config {
	cfg := Default()
	cfg.IsEnabled = true
	return cfg
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		kind  sensor.Kind
		value float64
		min   float64
		max   float64
		want  Level
	}{
		{"ph in range", sensor.KindPH, 7.2, 6.5, 8.5, LevelNormal},
		{"ph at max", sensor.KindPH, 8.5, 6.5, 8.5, LevelNormal},
		{"ph slightly high", sensor.KindPH, 8.9, 6.5, 8.5, LevelWarning},
		{"ph a full unit high", sensor.KindPH, 9.5, 6.5, 8.5, LevelCritical},
		{"ph low warning", sensor.KindPH, 5.8, 6.5, 8.5, LevelWarning},
		{"temp two degrees cold", sensor.KindTemp, 18, 20, 30, LevelWarning},
		{"temp three degrees cold", sensor.KindTemp, 17, 20, 30, LevelCritical},
		{"tds forty over", sensor.KindTDS, 540, 150, 500, LevelWarning},
		{"tds fifty over", sensor.KindTDS, 550, 150, 500, LevelCritical},
		{"turb ten over", sensor.KindTurb, 110, 30, 100, LevelCritical},
		{"watlvl fourteen low", sensor.KindWaterLevel, 56, 70, 100, LevelWarning},
		{"watlvl fifteen low", sensor.KindWaterLevel, 55, 70, 100, LevelCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.kind, tt.value, tt.min, tt.max))
		})
	}
}

func TestClassifyMonotonic(t *testing.T) {
	t.Parallel()

	rank := map[Level]int{LevelNormal: 0, LevelWarning: 1, LevelCritical: 2}

	// Severity never decreases as a reading moves away from the range.
	prev := LevelNormal
	for v := 8.5; v <= 12; v += 0.1 {
		got := Classify(sensor.KindPH, v, 6.5, 8.5)
		assert.GreaterOrEqual(t, rank[got], rank[prev], "value %v", v)
		prev = got
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid config passes", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		assert.NoError(t, Validate(&cfg))
	})

	t.Run("min above max names the field", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.Temp = Range{Min: 31, Max: 30}

		err := Validate(&cfg)
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))

		var ae *errors.AppError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, "temp.min", ae.Field())
	})

	t.Run("bounds below one are rejected", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.TDS = Range{Min: 0.5, Max: 500}

		err := Validate(&cfg)
		require.Error(t, err)

		var ae *errors.AppError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, "tds.min", ae.Field())
	})

	t.Run("depth below half a meter is rejected even when disabled", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.IsEnabled = false
		cfg.Depth = 0.4

		err := Validate(&cfg)
		require.Error(t, err)

		var ae *errors.AppError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, "watlvl.depth", ae.Field())
	})

	t.Run("disabled config skips bound checks", func(t *testing.T) {
		t.Parallel()
		cfg := Config{IsEnabled: false, Depth: 1}
		assert.NoError(t, Validate(&cfg))
	})
}

func TestSetGetRoundTrip(t *testing.T) {
	t.Parallel()

	ds := newTestStore(t)
	require.NoError(t, ds.RegisterDevice("pond-01"))

	engine := NewEngine(ds, nil)
	ctx := context.Background()

	cfg := Config{
		IsEnabled:   true,
		PH:          Range{Min: 6.8, Max: 8.2},
		Temp:        Range{Min: 22, Max: 28},
		TDS:         Range{Min: 180, Max: 420},
		Turb:        Range{Min: 25, Max: 90},
		Wlvl:        Range{Min: 75, Max: 98},
		Depth:       1.2,
		PowerSaving: true,
	}

	require.NoError(t, engine.Set(ctx, "pond-01", cfg, "user-1"))

	got, err := engine.Get(ctx, "pond-01")
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestGetUnknownDevice(t *testing.T) {
	t.Parallel()

	engine := NewEngine(newTestStore(t), nil)

	_, err := engine.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestGetUnconfiguredDeviceReturnsDefaults(t *testing.T) {
	t.Parallel()

	ds := newTestStore(t)
	require.NoError(t, ds.RegisterDevice("pond-02"))

	engine := NewEngine(ds, nil)
	got, err := engine.Get(context.Background(), "pond-02")
	require.NoError(t, err)

	assert.Equal(t, Default(), got)
	assert.False(t, got.IsEnabled)
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	ds := newTestStore(t)
	require.NoError(t, ds.RegisterDevice("pond-04"))

	engine := NewEngine(ds, nil)
	ctx := context.Background()

	t.Run("unconfigured device classifies nothing", func(t *testing.T) {
		levels := engine.Evaluate(ctx, "pond-04", sensor.Values{sensor.KindPH: "9.9"}, 1000)
		assert.Nil(t, levels)
	})

	require.NoError(t, engine.Set(ctx, "pond-04", validConfig(), "user-1"))

	t.Run("classifies each numeric reading", func(t *testing.T) {
		levels := engine.Evaluate(ctx, "pond-04", sensor.Values{
			sensor.KindPH:         "7.2",
			sensor.KindTemp:       "18",
			sensor.KindTDS:        "600",
			sensor.KindWaterLevel: "85%",
		}, 1000)

		assert.Equal(t, map[sensor.Kind]Level{
			sensor.KindPH:         LevelNormal,
			sensor.KindTemp:       LevelWarning,
			sensor.KindTDS:        LevelCritical,
			sensor.KindWaterLevel: LevelNormal,
		}, levels)
	})

	t.Run("non-numeric readings are skipped", func(t *testing.T) {
		levels := engine.Evaluate(ctx, "pond-04", sensor.Values{sensor.KindPH: "n/a"}, 1000)
		assert.Empty(t, levels)
	})
}

func TestSetInvalidConfigNotPersisted(t *testing.T) {
	t.Parallel()

	ds := newTestStore(t)
	require.NoError(t, ds.RegisterDevice("pond-03"))

	engine := NewEngine(ds, nil)
	ctx := context.Background()

	bad := validConfig()
	bad.PH = Range{Min: 9, Max: 7}
	require.Error(t, engine.Set(ctx, "pond-03", bad, "user-1"))

	got, err := engine.Get(ctx, "pond-03")
	require.NoError(t, err)
	assert.Equal(t, Default(), got, "rejected config must not be saved")
}
