package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"trackerd/internal/admin"
	"trackerd/internal/config"
	"trackerd/internal/device"
	"trackerd/internal/logging"
	"trackerd/internal/motion"
	"trackerd/internal/observability"
	"trackerd/internal/queue"
	"trackerd/internal/state"
	"trackerd/internal/tracker"
	"trackerd/internal/ubx"
	"trackerd/internal/uplink"
)

var (
	runConfigPath string
	runSchemaPath string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tracker control loop on this host",
	Long:  "run drives the duty-cycle control loop against the real clock, a serial positioning receiver and the configured uplink targets. Deep sleeps block the process and come back as fresh starts from the retained state, the same shape the loop has on hardware.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(runConfigPath, runSchemaPath)
		if err != nil {
			return err
		}
		if cfg.Device.IMEI == "" {
			return fmt.Errorf("device.imei must be set to run")
		}
		if cfg.Receiver.Port == "" {
			return fmt.Errorf("receiver.port must be set to run")
		}
		log := logging.New(cfg.LogLevel)

		port, err := device.OpenReceiverPort(cfg.Receiver.Port, cfg.Receiver.BaudRate,
			time.Duration(cfg.Receiver.InterByteMillis)*time.Millisecond)
		if err != nil {
			return err
		}
		defer port.Close()

		var sw tracker.PowerSwitch = device.NewSoftSwitch()
		if cfg.Receiver.PowerGPIO != "" {
			sw = device.NewGPIOSwitch(cfg.Receiver.PowerGPIO, log)
		}
		codec := ubx.New(port, ubx.Config{
			AckTimeout:      time.Duration(cfg.Receiver.AckTimeoutMillis) * time.Millisecond,
			ResponseTimeout: time.Duration(cfg.Receiver.ResponseTimeoutMillis) * time.Millisecond,
			InterByteDelay:  time.Duration(cfg.Receiver.InterByteMillis) * time.Millisecond,
			MinEphemeris:    cfg.Receiver.MinEphemerisSatellites,
			Accept2D:        cfg.Receiver.Accept2DFixes,
		}, log)

		var motionSrc tracker.MotionSensor = motion.None{}
		if cfg.Motion.Source == "modbus" {
			s := motion.NewSensor(cfg.Motion, log)
			defer s.Close()
			motionSrc = s
		}

		var store state.Store
		switch cfg.State.Backend {
		case "file":
			store = state.NewFileStore(cfg.State.Path)
		case "redis":
			rs := state.NewRedisStore(cfg.State.RedisAddr, cfg.State.RedisKey)
			defer rs.Close()
			store = rs
		case "memory":
			store = state.NewMemoryStore()
		default:
			return fmt.Errorf("state.backend unknown: %q", cfg.State.Backend)
		}

		link, err := uplink.FromConfig(cfg.Uplink, log)
		if err != nil {
			return err
		}
		defer link.Close()

		clock := device.SystemClock{}
		power := device.NewHostPower(nil, log)
		dev := device.NewStatic(cfg.Device.IMEI)

		go observability.StartMetricsServer(cfg.Observability.MetricsListen)

		src := newStatusSource()
		adminSrv := admin.NewServer(src, cfg, log)
		go func() {
			if err := adminSrv.Start(cfg.Observability.DebugListen); err != nil {
				log.Warn("debug server stopped", "err", err)
			}
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			s := <-sigs
			log.Info("shutting down", "signal", s.String())
			cancel()
		}()

		log.Info("trackerd starting",
			"imei", cfg.Device.IMEI,
			"receiver", cfg.Receiver.Port,
			"state", cfg.State.Backend,
			"uplink", cfg.Uplink.Targets,
			"metrics", cfg.Observability.MetricsListen,
			"debug", cfg.Observability.DebugListen)

		// Each pass of the outer loop is one boot: deep sleep and reset end
		// the inner loop and the next pass rebuilds everything from the
		// retained record, as a power-cycled device would.
		for ctx.Err() == nil {
			st, fresh, err := state.LoadOrInit(store, cfg.Device.SoftwareVersion)
			if err != nil {
				return err
			}
			if fresh {
				log.Info("retained state initialised", "version", cfg.Device.SoftwareVersion)
			}
			q := queue.New(st, queue.Config{
				ConnectTimeout: time.Duration(cfg.Scheduler.ConnectWaitSeconds) * time.Second,
				PacingEvery:    cfg.Queue.PacingEvery,
				PacingDelay:    time.Duration(cfg.Queue.PacingMillis) * time.Millisecond,
			}, log)
			rcv := tracker.NewReceiver(codec, sw, clock, power, st, cfg.Receiver, log)
			tr := tracker.New(cfg, tracker.Deps{
				State:    st,
				Store:    store,
				Queue:    q,
				Receiver: rcv,
				Uplink:   link,
				Motion:   motionSrc,
				Clock:    clock,
				Power:    power,
				Device:   dev,
			}, log)
			tr.Boot()
			src.observe(clock, dev, st, tracker.Decision{})

			for ctx.Err() == nil {
				d := tr.RunCycle()
				src.observe(clock, dev, st, d)
				tr.Sleep(ctx, d)
				if d.Reset {
					break
				}
				if !d.ModemStaysAwake {
					// The modem lost power in the deep sleep; drop the
					// session so the next boot reconnects.
					link.Drop()
					break
				}
			}
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "tracker.yaml", "Path to tracker configuration YAML")
	runCmd.Flags().StringVar(&runSchemaPath, "schema", "schemas/tracker.cue", "Path to CUE schema file")
}
