package tracker

import (
	"log/slog"
	"time"

	"trackerd/internal/config"
	"trackerd/internal/state"
	"trackerd/internal/ubx"
)

// FixSource is the protocol surface of the positioning receiver that the
// session drives.
type FixSource interface {
	Configure() error
	GetFix() (ubx.Fix, error)
	CanPowerSave() (bool, ubx.SatelliteStats)
	VerifyTime() (ubx.TimeCheck, error)
}

// PowerSwitch flips the receiver's supply rail.
type PowerSwitch interface {
	Set(on bool)
	IsOn() bool
}

// Ignore on-time spans longer than this when accumulating; the timebase
// can jump under us between power-on and power-off.
const maxSaneOnTime = 365 * 24 * 3600

// Receiver wraps the codec with the bookkeeping the control loop needs:
// on-time accounting in retained state, the bounded fix hunt, and the
// power-save verdict with its on-time budget short-circuit.
type Receiver struct {
	src   FixSource
	sw    PowerSwitch
	clock Clock
	power Pauser
	st    *state.Retained
	cfg   config.Receiver
	log   *slog.Logger

	sats ubx.SatelliteStats
}

func NewReceiver(src FixSource, sw PowerSwitch, clock Clock, power Pauser, st *state.Retained, cfg config.Receiver, log *slog.Logger) *Receiver {
	return &Receiver{src: src, sw: sw, clock: clock, power: power, st: st, cfg: cfg, log: log}
}

// Initialise powers the receiver just long enough to push the saved
// configuration into it. Run once at boot; the settings live in the
// receiver's battery-backed RAM afterwards.
func (g *Receiver) Initialise() error {
	g.sw.Set(true)
	g.power.Pause(time.Duration(g.cfg.PowerOnDelayMillis) * time.Millisecond)
	err := g.src.Configure()
	g.sw.Set(false)
	g.power.Pause(time.Duration(g.cfg.PowerOnDelayMillis) * time.Millisecond)
	return err
}

// On powers the receiver up if it is off, recording the power-on time.
func (g *Receiver) On() {
	if g.sw.IsOn() {
		return
	}
	g.st.GpsPowerOnTime = g.clock.Now().Unix()
	g.sw.Set(true)
	g.log.Info("receiver powered on")
	g.power.Pause(time.Duration(g.cfg.PowerOnDelayMillis) * time.Millisecond)
}

// Off powers the receiver down if it is on, folding the on-time into the
// retained total.
func (g *Receiver) Off() {
	if !g.sw.IsOn() {
		return
	}
	on := g.clock.Now().Unix() - g.st.GpsPowerOnTime
	if on >= 0 && on < maxSaneOnTime {
		g.st.TotalGpsSeconds += on
	}
	g.sw.Set(false)
	g.log.Info("receiver powered off", "on_seconds", on)
}

// IsOn reports the state of the supply rail.
func (g *Receiver) IsOn() bool {
	return g.sw.IsOn()
}

// Update powers the receiver on and hunts for a fix, polling every
// fix-poll interval until the fix-wait budget runs out. The receiver is
// left on when the hunt fails so a later cycle can pick up where this
// one left off.
func (g *Receiver) Update() (ubx.Fix, bool) {
	wait := time.Duration(g.cfg.FixWaitSeconds) * time.Second
	poll := time.Duration(g.cfg.FixPollSeconds) * time.Second
	g.log.Info("hunting for a fix", "budget_seconds", g.cfg.FixWaitSeconds)

	g.On()
	start := g.clock.Now()

	var fix ubx.Fix
	achieved := false
	for !achieved && g.clock.Now().Sub(start) < wait {
		if f, err := g.src.GetFix(); err == nil {
			fix = f
			achieved = fix.Valid
		}
		if !achieved {
			g.power.Pause(poll)
		}
	}

	if achieved {
		g.log.Info("fix achieved",
			"after_seconds", int(g.clock.Now().Sub(start)/time.Second),
			"lat", fix.Latitude,
			"lon", fix.Longitude,
			"satellites", fix.Satellites)
		// Informational check of the receiver's clock against the fix.
		if _, err := g.src.VerifyTime(); err != nil {
			g.log.Debug("no response to time verification", "err", err)
		}
	} else {
		g.log.Info("no fix this time")
	}
	return fix, achieved
}

// CanPowerSave reports whether the receiver may be powered off for the
// coming sleep: trivially yes when it is already off or it would run out
// of its on-time budget before the next wake anyway, otherwise only when
// it has a calibrated clock and enough banked ephemeris. Satellite
// observations surfaced by the check are kept for the stats report.
func (g *Receiver) CanPowerSave(sleepFor time.Duration) bool {
	if !g.sw.IsOn() {
		return true
	}
	on := g.clock.Now().Unix() - g.st.GpsPowerOnTime
	g.log.Debug("receiver on-time", "seconds", on)
	if on+int64(sleepFor/time.Second) >= int64(g.cfg.MaxOnSeconds) {
		g.log.Info("receiver not ready but will be out of budget by the next wake, powering off anyway")
		return true
	}
	ok, sats := g.src.CanPowerSave()
	if sats.Usable > 0 {
		g.sats = sats
	}
	return ok
}

// Satellites returns the latest usable-satellite observations. Zero
// until a power-save check has seen any.
func (g *Receiver) Satellites() ubx.SatelliteStats {
	return g.sats
}
