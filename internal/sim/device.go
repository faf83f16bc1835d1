package sim

import (
	"time"

	"trackerd/internal/scenario"
)

// Device supplies the identity and health readings reports carry. The
// battery declines linearly in journey time; signal strength follows the
// leg's coverage and sky.
type Device struct {
	imei    string
	clock   *Clock
	journey *Journey
	start   time.Time

	drainPerHour float64
}

func NewDevice(imei string, clock *Clock, journey *Journey) *Device {
	return &Device{
		imei:         imei,
		clock:        clock,
		journey:      journey,
		start:        journey.Start(),
		drainPerHour: 0.35,
	}
}

func (d *Device) IMEI() string { return d.imei }

func (d *Device) BatteryPercent() float64 {
	hours := d.clock.Truth().Sub(d.start).Hours()
	b := 100 - hours*d.drainPerHour
	if b < 5 {
		b = 5
	}
	return b
}

func (d *Device) SignalDBM() int {
	snap := d.journey.At(d.clock.Truth())
	switch {
	case !snap.Coverage:
		return -113
	case snap.Sky == scenario.SkyDegraded:
		return -89
	default:
		return -67
	}
}
