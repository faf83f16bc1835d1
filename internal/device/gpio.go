package device

import (
	"log/slog"
	"os"
)

// GPIOSwitch drives the receiver's supply rail through a sysfs GPIO
// value file. Construction forces the rail off so the tracked state
// starts true to the hardware.
type GPIOSwitch struct {
	path string
	log  *slog.Logger
	on   bool
}

func NewGPIOSwitch(path string, log *slog.Logger) *GPIOSwitch {
	s := &GPIOSwitch{path: path, log: log}
	s.Set(false)
	return s
}

// Set writes the rail state. A write failure is logged and the tracked
// state still follows the command; the receiver session discovers a
// dead rail soon enough through its own timeouts.
func (s *GPIOSwitch) Set(on bool) {
	v := []byte("0")
	if on {
		v = []byte("1")
	}
	if err := os.WriteFile(s.path, v, 0o644); err != nil {
		s.log.Warn("gpio write failed", "path", s.path, "on", on, "err", err)
	}
	s.on = on
}

func (s *GPIOSwitch) IsOn() bool { return s.on }

// SoftSwitch tracks the commanded receiver power state for hardware
// whose receiver is permanently supplied. The on-time bookkeeping still
// sees the on/off transitions it needs.
type SoftSwitch struct {
	on bool
}

func NewSoftSwitch() *SoftSwitch { return &SoftSwitch{} }

func (s *SoftSwitch) Set(on bool) { s.on = on }
func (s *SoftSwitch) IsOn() bool  { return s.on }
