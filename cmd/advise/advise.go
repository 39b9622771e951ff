// Package advise implements the advise command, a one-shot pond health
// assessment for a device based on its stored thresholds and the newest
// sample of the day.
package advise

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pondpal/pondpal-go/internal/advisory"
	"github.com/pondpal/pondpal-go/internal/conf"
	"github.com/pondpal/pondpal-go/internal/datastore"
	"github.com/pondpal/pondpal-go/internal/sensor"
	"github.com/pondpal/pondpal-go/internal/threshold"
)

// Command creates the advise command.
func Command(settings *conf.Settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "advise [deviceID]",
		Short: "Print a pond health assessment for a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdvise(settings, args[0], asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the assessment as JSON")
	return cmd
}

func runAdvise(settings *conf.Settings, deviceID string, asJSON bool) error {
	ds := datastore.New(settings)
	if ds == nil {
		return fmt.Errorf("no database output enabled")
	}
	if err := ds.Open(); err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer ds.Close() //nolint:errcheck

	ctx := context.Background()

	thresholds := threshold.NewEngine(ds, nil)
	cfg, err := thresholds.Get(ctx, deviceID)
	if err != nil {
		return err
	}

	values, err := latestValues(ctx, ds, deviceID)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("device %q has no samples today", deviceID)
	}

	assessment := advisory.Advise(values.ToSnapshot(), &cfg)

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(assessment)
	}

	fmt.Printf("Severity: %s\n", assessment.Severity)
	fmt.Println(assessment.Message)
	return nil
}

// latestValues returns the readings of the device's newest sample today.
func latestValues(ctx context.Context, ds datastore.Interface, deviceID string) (sensor.Values, error) {
	samples, err := ds.GetSamples(ctx, deviceID, time.Now().Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return sensor.Values{}, nil
	}
	return samples[len(samples)-1].Values(), nil
}
