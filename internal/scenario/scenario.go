// Package scenario describes scripted journeys for the tracker bench: a
// start position and time, then ordered legs the asset drives or parks
// through. Each leg carries its own sky view and uplink coverage so a
// journey can push the control loop through fix hunts, backoff, slow
// operation and connect failures without hardware.
package scenario

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Sky describes how much of the GPS constellation a leg can see.
type Sky string

const (
	// SkyOpen is a clear view: fast fixes with good geometry.
	SkyOpen Sky = "open"
	// SkyDegraded is an urban canyon or parking deck: slow, poor fixes.
	SkyDegraded Sky = "degraded"
	// SkyDenied is indoors or a tunnel: no fix at all.
	SkyDenied Sky = "denied"
)

// Scenario defines one scripted journey.
type Scenario struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`

	// StartUnix anchors the journey on the wall clock; legs play
	// back-to-back from here.
	StartUnix int64   `yaml:"start_unix"`
	Lat       float64 `yaml:"lat"`
	Lon       float64 `yaml:"lon"`

	// ColdClock starts the device with an unset clock, exercising the
	// time-sync path on the first wake.
	ColdClock bool `yaml:"cold_clock,omitempty"`
	// NoAccel removes the accelerometer, forcing a fix hunt every wake.
	NoAccel bool `yaml:"no_accel,omitempty"`

	Legs []Leg `yaml:"legs"`
}

// Leg is one stage of a journey. A zero speed means the asset is parked.
type Leg struct {
	Name            string  `yaml:"name"`
	DurationSeconds int64   `yaml:"duration_seconds"`
	SpeedMPS        float64 `yaml:"speed_mps,omitempty"`
	HeadingDeg      float64 `yaml:"heading_deg,omitempty"`
	Sky             Sky     `yaml:"sky,omitempty"`
	NoCoverage      bool    `yaml:"no_coverage,omitempty"`
}

// Moving reports whether the asset travels during this leg.
func (l Leg) Moving() bool { return l.SpeedMPS > 0 }

// Duration returns the leg length.
func (l Leg) Duration() time.Duration {
	return time.Duration(l.DurationSeconds) * time.Second
}

// Start returns the journey's anchor time.
func (s *Scenario) Start() time.Time { return time.Unix(s.StartUnix, 0).UTC() }

// Duration returns the total journey length.
func (s *Scenario) Duration() time.Duration {
	var total time.Duration
	for _, l := range s.Legs {
		total += l.Duration()
	}
	return total
}

// At returns the leg active after the given elapsed time, with ok false
// once the journey has ended. The final leg's conditions persist at the
// exact end boundary so callers see a parked asset, not a gap.
func (s *Scenario) At(elapsed time.Duration) (Leg, bool) {
	if elapsed < 0 {
		elapsed = 0
	}
	var cursor time.Duration
	for _, l := range s.Legs {
		cursor += l.Duration()
		if elapsed < cursor {
			return l, true
		}
	}
	if len(s.Legs) == 0 {
		return Leg{}, false
	}
	return s.Legs[len(s.Legs)-1], false
}

// Check validates the scenario definition.
func (s *Scenario) Check() error {
	if s.StartUnix <= 0 {
		return fmt.Errorf("scenario %q: start_unix must be set", s.Name)
	}
	if len(s.Legs) == 0 {
		return fmt.Errorf("scenario %q: needs at least one leg", s.Name)
	}
	for i := range s.Legs {
		l := &s.Legs[i]
		if l.DurationSeconds <= 0 {
			return fmt.Errorf("scenario %q leg %q: duration_seconds must be positive", s.Name, l.Name)
		}
		if l.SpeedMPS < 0 {
			return fmt.Errorf("scenario %q leg %q: speed_mps must not be negative", s.Name, l.Name)
		}
		switch l.Sky {
		case "":
			l.Sky = SkyOpen
		case SkyOpen, SkyDegraded, SkyDenied:
		default:
			return fmt.Errorf("scenario %q leg %q: unknown sky %q", s.Name, l.Name, l.Sky)
		}
	}
	return nil
}

// Load reads a YAML scenario definition from disk.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Check(); err != nil {
		return nil, err
	}
	return &s, nil
}
