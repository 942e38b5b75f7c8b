package commands

import (
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mkalwtb/magicnorthseaweed/internal/models"
	"github.com/mkalwtb/magicnorthseaweed/internal/timeseries"
)

// rateCmd rates one spot right now, bypassing the cache. Useful for
// checking models and upstream connectivity from the command line.
var rateCmd = &cobra.Command{
	Use:   "rate [spot]",
	Short: "Rate one spot now, bypassing the cache",
	Args:  cobra.ExactArgs(1),
	Example: `  go run ./cmd/surfcast rate ZV
  go run ./cmd/surfcast rate schev`,
	RunE: runRate,
}

func init() {
	rootCmd.AddCommand(rateCmd)
}

func runRate(cmd *cobra.Command, args []string) error {
	app, cleanup, err := initApp()
	if err != nil {
		return err
	}
	defer cleanup()

	spot, err := app.registry.Find(args[0])
	if err != nil {
		return err
	}

	frame, err := app.rater.RateSpot(cmd.Context(), spot)
	if err != nil {
		return fmt.Errorf("rate %s: %w", spot.Name, err)
	}

	fmt.Printf("%s (facing %.0f°), %d hours\n\n", spot.Name, spot.Facing, frame.Len())

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprint(w, "time")
	for _, target := range models.ForecastTargets {
		fmt.Fprintf(w, "\t%s", target)
	}
	fmt.Fprintf(w, "\t%s\t%s\n", timeseries.ChanWaveHeight, timeseries.ChanWindSpeed)

	times := frame.Times()
	for i := range times {
		fmt.Fprint(w, times[i].Format("Mon 15:04"))
		for _, target := range models.ForecastTargets {
			fmt.Fprintf(w, "\t%s", cell(frame.Value(target, i)))
		}
		fmt.Fprintf(w, "\t%s\t%s\n",
			cell(frame.Value(timeseries.ChanWaveHeight, i)),
			cell(frame.Value(timeseries.ChanWindSpeed, i)))
	}
	return w.Flush()
}

func cell(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.1f", v)
}
