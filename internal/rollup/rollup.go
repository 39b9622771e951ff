// Package rollup computes read-time aggregates over stored telemetry:
// per-sample daily series and per-day mean series for weekly and monthly
// windows. Aggregation is pure with respect to the sample store, so results
// are cached briefly to absorb dashboard refresh bursts.
package rollup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/pondpal/pondpal-go/internal/conf"
	"github.com/pondpal/pondpal-go/internal/datastore"
	"github.com/pondpal/pondpal-go/internal/errors"
	"github.com/pondpal/pondpal-go/internal/logging"
	"github.com/pondpal/pondpal-go/internal/sensor"
)

// Period selects the aggregation window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodCustom  Period = "custom"
)

// ParsePeriod validates a period string from the API.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodCustom:
		return Period(s), nil
	}
	return "", errors.Newf("unknown rollup period %q", s).
		Component("rollup").
		Category(errors.CategoryValidation).
		Field("period").
		Build()
}

const (
	weeklyDays  = 7
	monthlyDays = 30
	dateLayout  = "2006-01-02"
)

// Point is one entry of a rollup series: a time or day label plus the
// per-sensor values for that bucket. Sensors with no usable readings in the
// bucket are absent from Values, never zero.
type Point struct {
	Label  string
	Values sensor.Snapshot
}

// MarshalJSON flattens the point into the chart row shape, e.g.
// {"label":"Mon 2","ph":7.1,"temp":24.5}.
func (p Point) MarshalJSON() ([]byte, error) {
	row := make(map[string]any, len(p.Values)+1)
	row["label"] = p.Label
	for kind, value := range p.Values {
		row[string(kind)] = value
	}
	return json.Marshal(row)
}

// Aggregator computes rollup series from the sample store.
type Aggregator struct {
	ds     datastore.Interface
	cache  *cache.Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewAggregator creates a rollup aggregator with a result cache sized by
// the rollup settings.
func NewAggregator(ds datastore.Interface, settings conf.RollupSettings) *Aggregator {
	return &Aggregator{
		ds:     ds,
		cache:  cache.New(settings.CacheTTL, settings.CacheCleanup),
		logger: logging.ForService("rollup"),
		now:    time.Now,
	}
}

// Aggregate computes the rollup series for one device. Daily and custom
// periods return one point per sample of the reference date, labeled by
// time of day. Weekly and monthly periods return one point per day with
// per-sensor arithmetic means, omitting days without samples. The result is
// deterministic for a fixed sample set.
//
// Results are cached per (device, period, date); the current date's daily
// series bypasses the cache because it grows as samples arrive.
func (a *Aggregator) Aggregate(ctx context.Context, deviceID string, period Period, refDate time.Time) ([]Point, error) {
	// Both dates are rendered in the reference date's location, so a UTC
	// date param near local midnight cannot slip past the cache bypass.
	today := a.now().In(refDate.Location()).Format(dateLayout)
	date := refDate.Format(dateLayout)

	cacheable := !((period == PeriodDaily || period == PeriodCustom) && date == today)
	key := fmt.Sprintf("%s|%s|%s", deviceID, period, date)

	if cacheable {
		if cached, found := a.cache.Get(key); found {
			return cached.([]Point), nil
		}
	}

	var points []Point
	var err error
	switch period {
	case PeriodDaily, PeriodCustom:
		points, err = a.dailySeries(ctx, deviceID, date)
	case PeriodWeekly:
		points, err = a.meanSeries(ctx, deviceID, refDate, weeklyDays, "Mon 2")
	case PeriodMonthly:
		points, err = a.meanSeries(ctx, deviceID, refDate, monthlyDays, "Jan 2")
	default:
		return nil, errors.Newf("unknown rollup period %q", period).
			Component("rollup").
			Category(errors.CategoryValidation).
			Field("period").
			Build()
	}
	if err != nil {
		return nil, err
	}

	if cacheable {
		a.cache.Set(key, points, cache.DefaultExpiration)
	}
	return points, nil
}

// Averages returns the per-sensor mean across a rollup series, for the
// summary card next to the chart. Buckets missing a sensor do not count
// toward that sensor's denominator.
func Averages(points []Point) sensor.Snapshot {
	sums := make(map[sensor.Kind]float64)
	counts := make(map[sensor.Kind]int)
	for _, p := range points {
		for kind, value := range p.Values {
			sums[kind] += value
			counts[kind]++
		}
	}

	avg := make(sensor.Snapshot, len(sums))
	for kind, sum := range sums {
		avg[kind] = sum / float64(counts[kind])
	}
	return avg
}

// dailySeries returns one point per sample of the date, in time order.
func (a *Aggregator) dailySeries(ctx context.Context, deviceID, date string) ([]Point, error) {
	samples, err := a.ds.GetSamples(ctx, deviceID, date)
	if err != nil {
		return nil, err
	}

	points := make([]Point, 0, len(samples))
	for i := range samples {
		points = append(points, Point{
			Label:  samples[i].TimeKey,
			Values: samples[i].Values().ToSnapshot(),
		})
	}
	return points, nil
}

// meanSeries returns one point per day over the days-long window ending at
// refDate, skipping days with no samples.
func (a *Aggregator) meanSeries(ctx context.Context, deviceID string, refDate time.Time, days int, labelLayout string) ([]Point, error) {
	points := make([]Point, 0, days)

	for i := days - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		day := refDate.AddDate(0, 0, -i)
		samples, err := a.ds.GetSamples(ctx, deviceID, day.Format(dateLayout))
		if err != nil {
			return nil, err
		}
		if len(samples) == 0 {
			continue
		}

		values := dayMeans(samples)
		if len(values) == 0 {
			continue
		}
		points = append(points, Point{
			Label:  day.Format(labelLayout),
			Values: values,
		})
	}
	return points, nil
}

// dayMeans computes the per-sensor arithmetic mean over one day's samples.
// Missing or non-numeric readings are excluded from that sensor's
// denominator, never coerced to zero.
func dayMeans(samples []datastore.Sample) sensor.Snapshot {
	sums := make(map[sensor.Kind]float64)
	counts := make(map[sensor.Kind]int)

	for i := range samples {
		values := samples[i].Values()
		for _, kind := range sensor.Kinds() {
			if v, ok := values.Float(kind); ok {
				sums[kind] += v
				counts[kind]++
			}
		}
	}

	means := make(sensor.Snapshot, len(sums))
	for kind, sum := range sums {
		means[kind] = sum / float64(counts[kind])
	}
	return means
}
