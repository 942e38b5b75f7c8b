package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// statusCmd prints cache freshness and credential usage.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache freshness and upstream quota usage",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, cleanup, err := initApp()
	if err != nil {
		return err
	}
	defer cleanup()

	info := app.cache.Info()
	fmt.Println("Cache")
	if info.LastUpdate.IsZero() {
		fmt.Println("  cold (no payload)")
	} else {
		fmt.Printf("  last update: %s\n", info.LastUpdate.Format("2006-01-02 15:04:05"))
		fmt.Printf("  age:         %.0fs\n", info.AgeSeconds)
		fmt.Printf("  fresh:       %v\n", info.Fresh)
		fmt.Printf("  spots:       %v\n", info.Spots)
	}

	fmt.Println("\nUpstream credentials")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  id\ttoday\tquota\tavailable\ttotal")
	for _, cred := range app.keyring.Summary() {
		fmt.Fprintf(w, "  %s\t%d\t%d\t%v\t%d\n",
			cred.ID, cred.RequestsToday, cred.DailyQuota, cred.Available, cred.TotalRequests)
	}
	return w.Flush()
}
