package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// refreshCmd forces a cache refresh from the command line, the same
// operation POST /api/refresh performs.
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force a forecast cache refresh now",
	RunE:  runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	app, cleanup, err := initApp()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := app.cache.ForceRefresh(cmd.Context()); err != nil {
		return fmt.Errorf("refresh cache: %w", err)
	}

	info := app.cache.Info()
	fmt.Printf("Cache refreshed: %d spots at %s\n",
		len(info.Spots), info.LastUpdate.Format("2006-01-02 15:04:05"))
	for _, name := range info.Spots {
		fmt.Printf("  - %s\n", name)
	}
	return nil
}
