package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_Valid(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "tracker.yaml")
	yaml := `
device:
  imei: "123456789012345"
window:
  day_start_seconds: 25200
  day_length_seconds: 36000
scheduler:
  min_wakeup_seconds: 30
  max_wakeup_seconds: 3600
uplink:
  targets: ["stdout"]
`
	if err := os.WriteFile(tmpFile, []byte(yaml), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	// Skip CUE validation here: the schema path is exercised separately.
	cfg, err := Load(tmpFile, "")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Device.IMEI != "123456789012345" {
		t.Errorf("unexpected device imei: %q", cfg.Device.IMEI)
	}
	if cfg.Window.DayStartSeconds != 25200 || cfg.Window.DayLengthSeconds != 36000 {
		t.Errorf("unexpected window: %+v", cfg.Window)
	}
	// Unset fields keep their defaults.
	if cfg.Queue.SendThreshold != 8 {
		t.Errorf("send_threshold default not applied: %d", cfg.Queue.SendThreshold)
	}
	if cfg.Scheduler.ReportSeconds != 300 {
		t.Errorf("report_seconds default not applied: %d", cfg.Scheduler.ReportSeconds)
	}
}

func TestLoadConfig_BadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"bad backend", "state:\n  backend: s3\n"},
		{"bad uplink", "uplink:\n  targets: [\"kafka\"]\n"},
		{"bad window", "window:\n  day_length_seconds: 90000\n"},
		{"bad wakeup bounds", "scheduler:\n  min_wakeup_seconds: 600\n  max_wakeup_seconds: 60\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tmpFile := filepath.Join(t.TempDir(), "tracker.yaml")
			if err := os.WriteFile(tmpFile, []byte(tc.yaml), 0644); err != nil {
				t.Fatalf("failed to write temp file: %v", err)
			}
			if _, err := Load(tmpFile, ""); err == nil {
				t.Errorf("Load() accepted invalid config %q", tc.yaml)
			}
		})
	}
}

func TestSlowInterval(t *testing.T) {
	w := Window{DayLengthSeconds: 36000, SlowWakeupsPerDay: 1}
	if got := w.SlowInterval(); got != 18000 {
		t.Errorf("SlowInterval() = %d, want 18000", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("TRACKERD_REDIS_ADDR", "10.0.0.5:6379")
	cfg := Default()
	applyEnv(cfg)
	if cfg.State.RedisAddr != "10.0.0.5:6379" {
		t.Errorf("redis addr override not applied: %q", cfg.State.RedisAddr)
	}
}
