package rollup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pondpal/pondpal-go/internal/conf"
	"github.com/pondpal/pondpal-go/internal/datastore"
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

func newTestAggregator(t *testing.T, ds datastore.Interface) *Aggregator {
	t.Helper()
	return NewAggregator(ds, conf.RollupSettings{
		CacheTTL:     time.Minute,
		CacheCleanup: time.Minute,
	})
}

func addSample(t *testing.T, ds datastore.Interface, deviceID, date, timeKey string, values sensor.Values) {
	t.Helper()
	s := &datastore.Sample{DeviceID: deviceID, Date: date, TimeKey: timeKey}
	s.SetValues(values)
	require.NoError(t, ds.AppendSample(context.Background(), s))
}

func TestAggregateDaily(t *testing.T) {
	t.Parallel()

	ds := newTestStore(t)
	require.NoError(t, ds.RegisterDevice("pond-01"))

	addSample(t, ds, "pond-01", "2026-08-20", "14:30", sensor.Values{sensor.KindPH: "7.4"})
	addSample(t, ds, "pond-01", "2026-08-20", "9:15", sensor.Values{sensor.KindPH: "7.0"})

	agg := newTestAggregator(t, ds)
	refDate := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	points, err := agg.Aggregate(context.Background(), "pond-01", PeriodCustom, refDate)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, "9:15", points[0].Label, "daily points follow time of day")
	assert.Equal(t, "14:30", points[1].Label)
	assert.InDelta(t, 7.0, points[0].Values[sensor.KindPH], 1e-9)
}

func TestAggregateWeeklyMeans(t *testing.T) {
	t.Parallel()

	ds := newTestStore(t)
	require.NoError(t, ds.RegisterDevice("pond-01"))

	// Two samples on one day, one on another, the rest of the week empty.
	addSample(t, ds, "pond-01", "2026-08-18", "08:00", sensor.Values{
		sensor.KindPH:   "7.0",
		sensor.KindTemp: "24",
	})
	addSample(t, ds, "pond-01", "2026-08-18", "20:00", sensor.Values{
		sensor.KindPH: "7.4",
		// temp missing: the mean denominator for temp stays 1
	})
	addSample(t, ds, "pond-01", "2026-08-20", "12:00", sensor.Values{
		sensor.KindWaterLevel: "85%",
	})

	agg := newTestAggregator(t, ds)
	refDate := time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)

	points, err := agg.Aggregate(context.Background(), "pond-01", PeriodWeekly, refDate)
	require.NoError(t, err)
	require.Len(t, points, 2, "empty days are omitted, not padded")

	assert.Equal(t, "Tue 18", points[0].Label)
	assert.InDelta(t, 7.2, points[0].Values[sensor.KindPH], 1e-9)
	assert.InDelta(t, 24, points[0].Values[sensor.KindTemp], 1e-9, "missing reading excluded from denominator")

	assert.Equal(t, "Thu 20", points[1].Label)
	assert.InDelta(t, 85, points[1].Values[sensor.KindWaterLevel], 1e-9, "percent strings parsed before averaging")
	_, ok := points[1].Values[sensor.KindPH]
	assert.False(t, ok)
}

func TestAggregateMonthlyLabels(t *testing.T) {
	t.Parallel()

	ds := newTestStore(t)
	require.NoError(t, ds.RegisterDevice("pond-01"))
	addSample(t, ds, "pond-01", "2026-08-05", "12:00", sensor.Values{sensor.KindPH: "7.1"})

	agg := newTestAggregator(t, ds)
	refDate := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	points, err := agg.Aggregate(context.Background(), "pond-01", PeriodMonthly, refDate)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "Aug 5", points[0].Label)
}

func TestAggregateNonNumericExcluded(t *testing.T) {
	t.Parallel()

	ds := newTestStore(t)
	require.NoError(t, ds.RegisterDevice("pond-01"))

	addSample(t, ds, "pond-01", "2026-08-18", "08:00", sensor.Values{sensor.KindTDS: "200"})
	addSample(t, ds, "pond-01", "2026-08-18", "09:00", sensor.Values{sensor.KindTDS: "error"})
	addSample(t, ds, "pond-01", "2026-08-18", "10:00", sensor.Values{sensor.KindTDS: "400"})

	agg := newTestAggregator(t, ds)
	refDate := time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC)

	points, err := agg.Aggregate(context.Background(), "pond-01", PeriodWeekly, refDate)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.InDelta(t, 300, points[0].Values[sensor.KindTDS], 1e-9, "mean of the two numeric readings only")
}

func TestAggregateEmptyDevice(t *testing.T) {
	t.Parallel()

	ds := newTestStore(t)
	agg := newTestAggregator(t, ds)

	points, err := agg.Aggregate(context.Background(), "ghost", PeriodWeekly, time.Now())
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestAggregateCaching(t *testing.T) {
	t.Parallel()

	ds := newTestStore(t)
	require.NoError(t, ds.RegisterDevice("pond-01"))
	addSample(t, ds, "pond-01", "2026-08-18", "08:00", sensor.Values{sensor.KindPH: "7.0"})

	agg := newTestAggregator(t, ds)
	refDate := time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	first, err := agg.Aggregate(ctx, "pond-01", PeriodWeekly, refDate)
	require.NoError(t, err)

	// A sample landing after the first read is invisible until the TTL
	// expires; rollups tolerate eventually consistent reads.
	addSample(t, ds, "pond-01", "2026-08-17", "08:00", sensor.Values{sensor.KindPH: "6.0"})
	second, err := agg.Aggregate(ctx, "pond-01", PeriodWeekly, refDate)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAggregateCurrentDayBypassesCacheAcrossZones(t *testing.T) {
	t.Parallel()

	ds := newTestStore(t)
	require.NoError(t, ds.RegisterDevice("pond-01"))
	addSample(t, ds, "pond-01", "2026-08-18", "08:00", sensor.Values{sensor.KindPH: "7.0"})

	agg := newTestAggregator(t, ds)
	// Server clock just past midnight Aug 19 at UTC+10; in UTC, the zone of
	// the requested date, it is still Aug 18.
	local := time.FixedZone("UTC+10", 10*3600)
	agg.now = func() time.Time { return time.Date(2026, 8, 19, 0, 30, 0, 0, local) }

	refDate := time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	first, err := agg.Aggregate(ctx, "pond-01", PeriodDaily, refDate)
	require.NoError(t, err)
	require.Len(t, first, 1)

	addSample(t, ds, "pond-01", "2026-08-18", "09:00", sensor.Values{sensor.KindPH: "7.2"})
	second, err := agg.Aggregate(ctx, "pond-01", PeriodDaily, refDate)
	require.NoError(t, err)
	assert.Len(t, second, 2, "the current date's series is never served from cache")
}

func TestAverages(t *testing.T) {
	t.Parallel()

	points := []Point{
		{Label: "a", Values: sensor.Snapshot{sensor.KindPH: 7.0, sensor.KindTemp: 24}},
		{Label: "b", Values: sensor.Snapshot{sensor.KindPH: 7.4}},
	}

	avg := Averages(points)
	assert.InDelta(t, 7.2, avg[sensor.KindPH], 1e-9)
	assert.InDelta(t, 24, avg[sensor.KindTemp], 1e-9)
	assert.Len(t, avg, 2)
}

func TestParsePeriod(t *testing.T) {
	t.Parallel()

	for _, valid := range []string{"daily", "weekly", "monthly", "custom"} {
		_, err := ParsePeriod(valid)
		assert.NoError(t, err, valid)
	}
	_, err := ParsePeriod("yearly")
	assert.Error(t, err)
}
