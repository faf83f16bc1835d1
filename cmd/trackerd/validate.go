package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"trackerd/internal/config"
)

var (
	valConfigPath string
	valSchemaPath string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a tracker configuration file",
	Long:  "validate checks a configuration YAML against the CUE schema and the internal consistency rules, then prints the effective schedule.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(valConfigPath, valSchemaPath)
		if err != nil {
			return err
		}
		fmt.Printf("%s: OK\n", valConfigPath)
		fmt.Printf("  device %q, software version %d\n", cfg.Device.IMEI, cfg.Device.SoftwareVersion)
		fmt.Printf("  window %02d:%02d UTC + %ds, wakeup %d..%ds, report every %ds at %d queued\n",
			cfg.Window.DayStartSeconds/3600, cfg.Window.DayStartSeconds/60%60,
			cfg.Window.DayLengthSeconds,
			cfg.Scheduler.MinWakeupSeconds, cfg.Scheduler.MaxWakeupSeconds,
			cfg.Scheduler.ReportSeconds, cfg.Queue.SendThreshold)
		fmt.Printf("  state %s, motion %s, uplink %v\n",
			cfg.State.Backend, cfg.Motion.Source, cfg.Uplink.Targets)
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&valConfigPath, "config", "tracker.yaml", "Path to tracker configuration YAML")
	validateCmd.Flags().StringVar(&valSchemaPath, "schema", "schemas/tracker.cue", "Path to CUE schema file")
}
