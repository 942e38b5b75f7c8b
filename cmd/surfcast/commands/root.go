package commands

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "surfcast",
	Short: "Surf forecast rating service for the Dutch coast",
	Long: `Surfcast fetches marine weather from Stormglass, derives per-spot
surf features and rates the upcoming days with pre-trained models.

Usage:
  go run ./cmd/surfcast [command]

Examples:
  go run ./cmd/surfcast api
  go run ./cmd/surfcast scheduler start
  go run ./cmd/surfcast rate ZV
  go run ./cmd/surfcast status`,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}
