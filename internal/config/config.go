// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Device identifies the tracker unit itself.
type Device struct {
	IMEI            string `yaml:"imei"`
	SoftwareVersion int    `yaml:"software_version"`
}

// Window describes the daily operating window and the slow-to-full
// operation rollout times.
type Window struct {
	StartTimeUTC         int64 `yaml:"start_time_utc"`
	FullOperationUTC     int64 `yaml:"full_operation_utc"`
	DayStartSeconds      int   `yaml:"day_start_seconds"`
	DayLengthSeconds     int   `yaml:"day_length_seconds"`
	SlowWakeupsPerDay    int   `yaml:"slow_wakeups_per_day"`
	SlowFixBudgetSeconds int   `yaml:"slow_fix_budget_seconds"`
}

// SlowInterval returns the spacing of slow-operation wake slots within
// the working day.
func (w Window) SlowInterval() int {
	return w.DayLengthSeconds / (w.SlowWakeupsPerDay + 1)
}

// Scheduler holds the duty-cycle timing knobs, all in seconds.
type Scheduler struct {
	MinWakeupSeconds     int `yaml:"min_wakeup_seconds"`
	MaxWakeupSeconds     int `yaml:"max_wakeup_seconds"`
	MinSleepSeconds      int `yaml:"min_sleep_seconds"`
	ModemMaxOnSeconds    int `yaml:"modem_max_on_seconds"`
	TelemetrySeconds     int `yaml:"telemetry_seconds"`
	StatsSeconds         int `yaml:"stats_seconds"`
	ReportSeconds        int `yaml:"report_seconds"`
	SettleSeconds        int `yaml:"settle_seconds"`
	TimeSyncWaitSeconds  int `yaml:"time_sync_wait_seconds"`
	TimeSyncRetrySeconds int `yaml:"time_sync_retry_seconds"`
	ConnectWaitSeconds   int `yaml:"connect_wait_seconds"`
	MaxConnectFailures   int `yaml:"max_connect_failures"`
}

// Receiver holds the positioning-receiver protocol timings and fix
// policy, plus the serial device the daemon drives it through.
type Receiver struct {
	Port                   string `yaml:"port"`
	BaudRate               int    `yaml:"baud_rate"`
	PowerGPIO              string `yaml:"power_gpio"`
	AckTimeoutMillis       int    `yaml:"ack_timeout_ms"`
	ResponseTimeoutMillis  int    `yaml:"response_timeout_ms"`
	InterByteMillis        int    `yaml:"inter_byte_ms"`
	PowerOnDelayMillis     int    `yaml:"power_on_delay_ms"`
	FixWaitSeconds         int    `yaml:"fix_wait_seconds"`
	FixPollSeconds         int    `yaml:"fix_poll_seconds"`
	MaxOnSeconds           int    `yaml:"max_on_seconds"`
	MinEphemerisSatellites int    `yaml:"min_ephemeris_satellites"`
	Accept2DFixes          bool   `yaml:"accept_2d_fixes"`
}

// Queue holds the report-queue flush policy.
type Queue struct {
	SendThreshold int `yaml:"send_threshold"`
	PacingEvery   int `yaml:"pacing_every"`
	PacingMillis  int `yaml:"pacing_ms"`
}

// Report holds reporting policy switches.
type Report struct {
	QueueInvalidFixes bool `yaml:"queue_invalid_fixes"`
}

// State selects where the retained record lives between resets.
type State struct {
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redis_addr"`
	RedisKey  string `yaml:"redis_key"`
}

// Modbus holds the transport parameters for a Modbus-attached
// vibration sensor.
type Modbus struct {
	Endpoint      string `yaml:"endpoint"`
	UnitID        byte   `yaml:"unit_id"`
	Register      uint16 `yaml:"register"`
	TimeoutMillis int    `yaml:"timeout_ms"`
}

// Motion selects the motion-sensor source.
type Motion struct {
	Source    string `yaml:"source"`
	Threshold int    `yaml:"threshold"`
	Modbus    Modbus `yaml:"modbus"`
}

// Greptime holds the GreptimeDB ingest target.
type Greptime struct {
	Endpoint string `yaml:"endpoint"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
}

// Uplink selects where published reports are delivered.
type Uplink struct {
	Targets  []string `yaml:"targets"`
	File     string   `yaml:"file"`
	Greptime Greptime `yaml:"greptime"`
}

// Observability holds the metrics and debug endpoints.
type Observability struct {
	MetricsListen string `yaml:"metrics_listen"`
	DebugListen   string `yaml:"debug_listen"`
}

// Config is the root configuration for the tracker daemon.
type Config struct {
	Device        Device        `yaml:"device"`
	Window        Window        `yaml:"window"`
	Scheduler     Scheduler     `yaml:"scheduler"`
	Receiver      Receiver      `yaml:"receiver"`
	Queue         Queue         `yaml:"queue"`
	Report        Report        `yaml:"report"`
	State         State         `yaml:"state"`
	Motion        Motion        `yaml:"motion"`
	Uplink        Uplink        `yaml:"uplink"`
	Observability Observability `yaml:"observability"`
	LogLevel      string        `yaml:"log_level"`
}

// Default returns the configuration matching the device build: a 24h
// working day from midnight UTC, full operation from the start, and the
// production timing constants.
func Default() *Config {
	return &Config{
		Device: Device{
			SoftwareVersion: 3,
		},
		Window: Window{
			DayStartSeconds:      0,
			DayLengthSeconds:     24 * 3600,
			SlowWakeupsPerDay:    1,
			SlowFixBudgetSeconds: 600,
		},
		Scheduler: Scheduler{
			MinWakeupSeconds:     30,
			MaxWakeupSeconds:     3600,
			MinSleepSeconds:      6,
			ModemMaxOnSeconds:    300,
			TelemetrySeconds:     3600,
			StatsSeconds:         3600,
			ReportSeconds:        300,
			SettleSeconds:        0,
			TimeSyncWaitSeconds:  10,
			TimeSyncRetrySeconds: 30,
			ConnectWaitSeconds:   60,
			MaxConnectFailures:   5,
		},
		Receiver: Receiver{
			BaudRate:               9600,
			AckTimeoutMillis:       3000,
			ResponseTimeoutMillis:  2000,
			InterByteMillis:        50,
			PowerOnDelayMillis:     500,
			FixWaitSeconds:         20,
			FixPollSeconds:         5,
			MaxOnSeconds:           180,
			MinEphemerisSatellites: 5,
			Accept2DFixes:          true,
		},
		Queue: Queue{
			SendThreshold: 8,
			PacingEvery:   4,
			PacingMillis:  1000,
		},
		State: State{
			Backend:  "file",
			Path:     "trackerd-state.json",
			RedisKey: "trackerd:retained",
		},
		Motion: Motion{
			Source:    "none",
			Threshold: 10,
		},
		Uplink: Uplink{
			Targets: []string{"stdout"},
			Greptime: Greptime{
				Port:     4001,
				Database: "public",
				Table:    "tracker_reports",
			},
		},
		Observability: Observability{
			MetricsListen: ":9090",
			DebugListen:   ":8080",
		},
		LogLevel: "info",
	}
}

// Load reads a YAML config, validates it against a CUE schema when one
// is given, and merges it over the defaults.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	if cueSchemaPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyEnv(cfg)

	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Check enforces the relationships the schema cannot express.
func (c *Config) Check() error {
	if c.Window.DayLengthSeconds <= 0 || c.Window.DayLengthSeconds > 24*3600 {
		return fmt.Errorf("window.day_length_seconds out of range: %d", c.Window.DayLengthSeconds)
	}
	if c.Window.DayStartSeconds < 0 || c.Window.DayStartSeconds >= 24*3600 {
		return fmt.Errorf("window.day_start_seconds out of range: %d", c.Window.DayStartSeconds)
	}
	if c.Window.SlowWakeupsPerDay < 0 {
		return fmt.Errorf("window.slow_wakeups_per_day must be >= 0")
	}
	if c.Window.SlowInterval() <= 0 {
		return fmt.Errorf("window.slow_wakeups_per_day too high for day length %d", c.Window.DayLengthSeconds)
	}
	if c.Scheduler.MinWakeupSeconds <= 0 || c.Scheduler.MaxWakeupSeconds < c.Scheduler.MinWakeupSeconds {
		return fmt.Errorf("scheduler wakeup bounds invalid: min=%d max=%d",
			c.Scheduler.MinWakeupSeconds, c.Scheduler.MaxWakeupSeconds)
	}
	if c.Queue.SendThreshold < 1 {
		return fmt.Errorf("queue.send_threshold must be >= 1")
	}
	switch c.State.Backend {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("state.backend unknown: %q", c.State.Backend)
	}
	switch c.Motion.Source {
	case "none", "modbus":
	default:
		return fmt.Errorf("motion.source unknown: %q", c.Motion.Source)
	}
	for _, t := range c.Uplink.Targets {
		switch t {
		case "stdout", "file", "greptime":
		default:
			return fmt.Errorf("uplink target unknown: %q", t)
		}
	}
	return nil
}

// applyEnv overlays deploy-time knobs from the environment.
func applyEnv(cfg *Config) {
	cfg.Receiver.Port = getEnv("TRACKERD_RECEIVER_PORT", cfg.Receiver.Port)
	cfg.State.Path = getEnv("TRACKERD_STATE_PATH", cfg.State.Path)
	cfg.State.RedisAddr = getEnv("TRACKERD_REDIS_ADDR", cfg.State.RedisAddr)
	cfg.Uplink.Greptime.Endpoint = getEnv("TRACKERD_GREPTIME_ENDPOINT", cfg.Uplink.Greptime.Endpoint)
	cfg.Observability.MetricsListen = getEnv("TRACKERD_METRICS_LISTEN", cfg.Observability.MetricsListen)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
