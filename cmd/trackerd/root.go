package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"trackerd/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "trackerd",
	Short: "Battery-powered GPS asset tracker toolkit",
	Long:  "Trackerd runs the duty-cycled tracker control loop on real hardware, and provides simulation, replay, validation and dashboard utilities around it.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the named configuration file, or falls back to the
// built-in device profile when no path is given.
func loadConfig(path, schema string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path, schema)
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(dashboardCmd)
}
