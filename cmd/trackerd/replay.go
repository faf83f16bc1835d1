package main

import (
	"io"

	"github.com/spf13/cobra"

	"trackerd/internal/logging"
	"trackerd/internal/sim"
	"trackerd/internal/uplink"
)

var (
	replayInput      string
	replaySpeed      float64
	replayConfigPath string
	replaySchemaPath string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded report log into the uplink targets",
	Long:  "replay feeds report rows from a JSONL log back into the configured uplink targets, pacing them by their original timestamps. Point the config at a GreptimeDB target to re-ingest a recorded run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(replayConfigPath, replaySchemaPath)
		if err != nil {
			return err
		}
		log := logging.New(cfg.LogLevel)
		writers, err := uplink.NewWriters(cfg.Uplink, log)
		if err != nil {
			return err
		}
		if c, ok := writers.(io.Closer); ok {
			defer c.Close()
		}
		return sim.ReplayLogFile(replayInput, writers, replaySpeed)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to a JSONL report log")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier; 0 replays without pacing")
	replayCmd.Flags().StringVar(&replayConfigPath, "config", "", "Path to tracker configuration YAML (default: built-in device profile)")
	replayCmd.Flags().StringVar(&replaySchemaPath, "schema", "schemas/tracker.cue", "Path to CUE schema file")
	replayCmd.MarkFlagRequired("input")
}
