package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"trackerd/internal/logging"
	"trackerd/internal/scenario"
	"trackerd/internal/sim"
	"trackerd/internal/uplink"
)

var (
	simScenario   string
	simConfigPath string
	simSchemaPath string
	simTUI        bool
	simPlain      bool
	simOut        string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Drive the control loop through a scripted journey",
	Long:  "simulate runs the real control loop on a virtual clock through a built-in or file-based journey, showing every cycle and delivered report. On a terminal it opens the TUI monitor; otherwise it prints plain lines.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(simConfigPath, simSchemaPath)
		if err != nil {
			return err
		}
		if cfg.Device.IMEI == "" {
			// The bench needs an identity for the report lines.
			cfg.Device.IMEI = "350000000000017"
		}

		scn, err := findScenario(simScenario)
		if err != nil {
			return err
		}

		var sink uplink.RowWriter
		if simOut != "" {
			fw, err := uplink.NewFileWriter(simOut)
			if err != nil {
				return err
			}
			defer fw.Close()
			sink = fw
		}

		useTUI := !simPlain && (simTUI || term.IsTerminal(int(os.Stdout.Fd())))

		log := logging.New(cfg.LogLevel)
		var obs sim.Observer
		var tui *sim.TUIObserver
		if useTUI {
			// The TUI owns the terminal; keep the logger out of it.
			log = slog.New(slog.NewTextHandler(io.Discard, nil))
			tui = sim.NewTUIObserver(scn, cfg)
			obs = tui
		} else {
			obs = sim.NewColorObserver(scn)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigs
			cancel()
		}()

		bench := sim.NewBench(cfg, scn, obs, sink, log)
		if _, err := bench.Run(ctx); err != nil {
			if tui != nil {
				tui.Close()
			}
			return err
		}
		if tui != nil {
			tui.Wait()
		}
		return nil
	},
}

// findScenario resolves a built-in journey name, falling back to
// loading the argument as a scenario file.
func findScenario(name string) (*scenario.Scenario, error) {
	if s, ok := scenario.BuiltIn()[name]; ok {
		return &s, nil
	}
	s, err := scenario.Load(name)
	if err != nil {
		var names []string
		for n := range scenario.BuiltIn() {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("scenario %q is neither built-in (%s) nor a readable file: %w",
			name, strings.Join(names, ", "), err)
	}
	return s, nil
}

func init() {
	simulateCmd.Flags().StringVar(&simScenario, "scenario", "commute", "Built-in journey name or path to a scenario YAML")
	simulateCmd.Flags().StringVar(&simConfigPath, "config", "", "Path to tracker configuration YAML (default: built-in device profile)")
	simulateCmd.Flags().StringVar(&simSchemaPath, "schema", "schemas/tracker.cue", "Path to CUE schema file")
	simulateCmd.Flags().BoolVar(&simTUI, "tui", false, "Force the TUI monitor")
	simulateCmd.Flags().BoolVar(&simPlain, "plain", false, "Force plain line output")
	simulateCmd.Flags().StringVar(&simOut, "out", "", "Also write delivered reports to a JSONL file")
}
