package sim

import (
	"fmt"
	"time"

	"trackerd/internal/scenario"
	"trackerd/internal/ubx"
)

// Time to first fix by sky view. An open sky fixes within one wake's fix
// budget; a degraded sky needs the receiver left powered across cycles
// before it delivers anything, and what it delivers is poor.
const (
	ttffOpen     = 12 * time.Second
	ttffDegraded = 45 * time.Second
)

// GPS is the bench's positioning receiver: both the supply rail and the
// protocol surface. Whether a poll yields a fix depends on how long the
// receiver has been powered and what the journey says the sky looks
// like.
type GPS struct {
	clock   *Clock
	journey *Journey

	on        bool
	poweredAt time.Time

	Configures int
	Polls      int
	Fixes      int
}

func NewGPS(clock *Clock, journey *Journey) *GPS {
	return &GPS{clock: clock, journey: journey}
}

// Set flips the supply rail. Warm-up time is measured from the off-to-on
// transition.
func (g *GPS) Set(on bool) {
	if on && !g.on {
		g.poweredAt = g.clock.Truth()
	}
	g.on = on
}

func (g *GPS) IsOn() bool { return g.on }

func (g *GPS) Configure() error {
	if !g.on {
		return fmt.Errorf("receiver not powered")
	}
	g.Configures++
	return nil
}

func (g *GPS) GetFix() (ubx.Fix, error) {
	if !g.on {
		return ubx.Fix{}, fmt.Errorf("receiver not powered")
	}
	g.Polls++
	snap := g.journey.At(g.clock.Truth())
	warm := g.clock.Truth().Sub(g.poweredAt)
	switch snap.Sky {
	case scenario.SkyDenied:
		return ubx.Fix{Quality: 0}, nil
	case scenario.SkyDegraded:
		if warm < ttffDegraded {
			return ubx.Fix{Quality: 0, Satellites: 3}, nil
		}
		g.Fixes++
		return ubx.Fix{
			Latitude:   snap.Lat,
			Longitude:  snap.Lon,
			Elevation:  118,
			HDOP:       4.2,
			HasHDOP:    true,
			Quality:    2,
			Satellites: 4,
			Valid:      true,
		}, nil
	default:
		if warm < ttffOpen {
			return ubx.Fix{Quality: 0, Satellites: 5}, nil
		}
		g.Fixes++
		return ubx.Fix{
			Latitude:   snap.Lat,
			Longitude:  snap.Lon,
			Elevation:  121,
			HDOP:       1.1,
			HasHDOP:    true,
			Quality:    3,
			Satellites: 9,
			Valid:      true,
		}, nil
	}
}

// CanPowerSave mirrors the real receiver's verdict: only an open sky
// with a warm receiver banks enough ephemeris to allow a power-down.
func (g *GPS) CanPowerSave() (bool, ubx.SatelliteStats) {
	snap := g.journey.At(g.clock.Truth())
	warm := g.clock.Truth().Sub(g.poweredAt)
	switch snap.Sky {
	case scenario.SkyDenied:
		return false, ubx.SatelliteStats{}
	case scenario.SkyDegraded:
		return false, ubx.SatelliteStats{Usable: 4, PeakCN: 33, AverageCN: 27}
	default:
		if warm < ttffOpen {
			return false, ubx.SatelliteStats{Usable: 5, PeakCN: 38, AverageCN: 30}
		}
		return true, ubx.SatelliteStats{Usable: 9, PeakCN: 46, AverageCN: 39}
	}
}

// VerifyTime reports the receiver clock against the journey truth, with
// a small fixed offset standing in for protocol latency.
func (g *GPS) VerifyTime() (ubx.TimeCheck, error) {
	if !g.on {
		return ubx.TimeCheck{}, fmt.Errorf("receiver not powered")
	}
	secs := g.clock.Truth().Unix() - gpsEpoch
	return ubx.TimeCheck{
		TOWMillis:   uint32((secs % 604800) * 1000),
		DeltaMillis: 12,
		Week:        int(secs / 604800),
		Flags:       0x03,
	}, nil
}

// gpsEpoch is Jan 6th 1980 UTC, the zero of GPS week numbering.
const gpsEpoch = 315964800
