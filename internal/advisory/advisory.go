// Package advisory turns a device's current sensor snapshot into a
// human-readable pond health assessment. Advise is a pure function: no
// storage, no clock, deterministic for a given snapshot and thresholds.
package advisory

import (
	"fmt"
	"strings"

	"github.com/pondpal/pondpal-go/internal/sensor"
	"github.com/pondpal/pondpal-go/internal/threshold"
)

// Severity is the overall health grade of an assessment.
type Severity string

const (
	SeverityHealthy   Severity = "healthy"
	SeverityAttention Severity = "attention"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityHealthy:   0,
	SeverityAttention: 1,
	SeverityWarning:   2,
	SeverityCritical:  3,
}

// Assessment is the result of one advisory evaluation. Issues lists every
// triggered finding in evaluation order; Message joins them for display.
type Assessment struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Issues   []string `json:"issues"`
}

const healthyMessage = "All parameters are within optimal range. Your pond is in good condition."

// band describes one sensor's advisory escalation beyond [min,max]:
// the base severity for any excursion and the distances at which it
// escalates. A zero escalation distance means that tier is skipped.
type band struct {
	base         Severity
	warningDist  float64
	criticalDist float64
}

var bands = map[sensor.Kind]band{
	sensor.KindPH:         {base: SeverityAttention, warningDist: 0.5, criticalDist: 1.0},
	sensor.KindTemp:       {base: SeverityAttention, criticalDist: 3},
	sensor.KindTDS:        {base: SeverityWarning, criticalDist: 200},
	sensor.KindTurb:       {base: SeverityWarning, criticalDist: 50},
	sensor.KindWaterLevel: {base: SeverityWarning, criticalDist: 20},
}

var lowAdvice = map[sensor.Kind]string{
	sensor.KindPH:         "water is too acidic, add a buffer such as crushed coral gradually.",
	sensor.KindTemp:       "water is too cold for healthy fish activity, check heating.",
	sensor.KindTDS:        "mineral content is low, fish may lack essential salts.",
	sensor.KindWaterLevel: "water level is low, top up the pond and check for leaks.",
}

var highAdvice = map[sensor.Kind]string{
	sensor.KindPH:         "water is too alkaline, consider a partial water change.",
	sensor.KindTemp:       "water is too warm, increase aeration and add shade.",
	sensor.KindTDS:        "dissolved solids are high, perform a partial water change.",
	sensor.KindTurb:       "water is murky, inspect the filtration system.",
	sensor.KindWaterLevel: "water level reads above the expected maximum, check the sensor mounting.",
}

// DefaultThresholds returns the ranges used when a device has thresholds
// disabled or unset.
func DefaultThresholds() threshold.Config {
	cfg := threshold.Default()
	cfg.IsEnabled = true
	return cfg
}

// Advise evaluates the snapshot against the thresholds and returns the
// combined assessment. Per-sensor rules run first in canonical sensor
// order, then cross-sensor compound rules; each finding can only escalate
// the overall severity. A nil or disabled config falls back to the default
// thresholds. Sensors absent from the snapshot are skipped.
func Advise(values sensor.Snapshot, cfg *threshold.Config) Assessment {
	if cfg == nil || !cfg.IsEnabled {
		def := DefaultThresholds()
		cfg = &def
	}

	severity := SeverityHealthy
	var issues []string

	escalate := func(s Severity) {
		if severityRank[s] > severityRank[severity] {
			severity = s
		}
	}

	for _, kind := range sensor.Kinds() {
		value, ok := values[kind]
		if !ok {
			continue
		}
		r := cfg.Range(kind)

		var dist float64
		var advice string
		switch {
		case value < r.Min:
			// Clear water is never a problem; the turbidity band only
			// has a high side.
			if kind == sensor.KindTurb {
				continue
			}
			dist = r.Min - value
			advice = lowAdvice[kind]
		case value > r.Max:
			dist = value - r.Max
			advice = highAdvice[kind]
		default:
			continue
		}

		b := bands[kind]
		level := b.base
		if b.warningDist > 0 && dist >= b.warningDist && severityRank[SeverityWarning] > severityRank[level] {
			level = SeverityWarning
		}
		if dist >= b.criticalDist {
			level = SeverityCritical
		}

		issues = append(issues, fmt.Sprintf("%s is out of range: %s", kind.DisplayName(), advice))
		escalate(level)
	}

	for _, rule := range compoundRules {
		if rule.fires(values) {
			issues = append(issues, rule.finding)
			escalate(SeverityWarning)
		}
	}

	if len(issues) == 0 {
		return Assessment{
			Message:  healthyMessage,
			Severity: SeverityHealthy,
			Issues:   []string{},
		}
	}

	return Assessment{
		Message:  strings.Join(issues, " "),
		Severity: severity,
		Issues:   issues,
	}
}

// compoundRules capture interactions between sensors that matter even when
// the individual readings sit close to their limits. They fire
// independently of the per-sensor bands and raise severity to at least
// warning.
var compoundRules = []struct {
	finding string
	fires   func(sensor.Snapshot) bool
}{
	{
		finding: "High pH combined with warm water raises ammonia toxicity, test ammonia levels and increase aeration.",
		fires: func(v sensor.Snapshot) bool {
			ph, okPH := v[sensor.KindPH]
			temp, okTemp := v[sensor.KindTemp]
			return okPH && okTemp && ph > 8.0 && temp > 28
		},
	},
	{
		finding: "Murky water with high dissolved solids points to overfeeding or failing filtration, reduce feed and service the filter.",
		fires: func(v sensor.Snapshot) bool {
			turb, okTurb := v[sensor.KindTurb]
			tds, okTDS := v[sensor.KindTDS]
			return okTurb && okTDS && turb > 80 && tds > 400
		},
	},
	{
		finding: "Soft acidic water detected, low pH with low mineral content destabilizes the pond, add a mineral buffer.",
		fires: func(v sensor.Snapshot) bool {
			ph, okPH := v[sensor.KindPH]
			tds, okTDS := v[sensor.KindTDS]
			return okPH && okTDS && ph < 6.5 && tds < 100
		},
	},
}
