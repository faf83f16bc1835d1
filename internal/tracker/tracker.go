// Package tracker implements the control core of the asset tracker: a
// duty-cycle scheduler that wakes, samples motion, hunts for a position
// fix, queues reports and decides how deeply to sleep until the next
// wake. All decisions are recomputed from the current time and the
// retained state, so the core survives the deep-sleep resets it asks
// for.
package tracker

import (
	"context"
	"log/slog"
	"time"

	"trackerd/internal/config"
	"trackerd/internal/observability"
	"trackerd/internal/queue"
	"trackerd/internal/report"
	"trackerd/internal/state"
)

// MinValidTime is the earliest clock reading treated as established
// network time (Jan 1st 2016 UTC). Anything below it means the clock is
// still free-running from power-on.
const MinValidTime = 1451606400

// invalidAngle is the angle reported when a position is queued without
// a valid fix.
const invalidAngle = 999999999

// Clock is the tracker's time source. Sync asks the platform to pull
// network time; it is asynchronous and the caller waits separately.
type Clock interface {
	Now() time.Time
	Sync()
}

// Pauser is a short blocking wait with everything left powered.
type Pauser interface {
	Pause(d time.Duration)
}

// PowerControl owns the sleep and reset machinery. Sleep returns after
// roughly d, or earlier when wakeOnMotion is set and motion occurs.
// With keepUplinkAwake the sleep is a standby that preserves the
// process; without it the sleep models a deep power-down whose wake is
// a fresh start from retained state.
type PowerControl interface {
	Pauser
	Sleep(ctx context.Context, d time.Duration, keepUplinkAwake, wakeOnMotion bool)
	Reset()
}

// MotionSensor is the accelerometer surface the control loop needs.
// Poll returns the latest reading and whether activity was flagged
// since the previous poll.
type MotionSensor interface {
	Connected() bool
	Poll() (state.MotionReading, bool)
	Enable()
	Disable()
}

// DeviceInfo exposes the identity and health readings that go into
// reports.
type DeviceInfo interface {
	IMEI() string
	BatteryPercent() float64
	SignalDBM() int
}

// Decision is the sleep directive a cycle ends with.
type Decision struct {
	SleepFor        time.Duration
	ModemStaysAwake bool
	WakeOnMotion    bool
	ReceiverOn      bool
	Reset           bool
}

// Tracker binds the retained state, the report queue, the receiver
// session and the platform surfaces into the control loop.
type Tracker struct {
	cfg      *config.Config
	st       *state.Retained
	store    state.Store
	queue    *queue.Queue
	receiver *Receiver
	uplink   queue.Uplink
	motion   MotionSensor
	clock    Clock
	power    PowerControl
	device   DeviceInfo
	log      *slog.Logger

	imei     string
	bootTime time.Time

	// Power-save seconds accumulated before this boot. Uptime counts them
	// in, so the stats percentages stay within 100% across resets.
	bootPowerSave int64

	// statsPeriod is this boot's stats cadence. Slow operation pulls it
	// down to the wakeup period so the reports show the device is alive.
	statsPeriod int
}

// Deps carries the collaborators New wires into the tracker.
type Deps struct {
	State    *state.Retained
	Store    state.Store
	Queue    *queue.Queue
	Receiver *Receiver
	Uplink   queue.Uplink
	Motion   MotionSensor
	Clock    Clock
	Power    PowerControl
	Device   DeviceInfo
}

func New(cfg *config.Config, d Deps, log *slog.Logger) *Tracker {
	return &Tracker{
		cfg:         cfg,
		st:          d.State,
		store:       d.Store,
		queue:       d.Queue,
		receiver:    d.Receiver,
		uplink:      d.Uplink,
		motion:      d.Motion,
		clock:       d.Clock,
		power:       d.Power,
		device:      d.Device,
		log:         log,
		statsPeriod: cfg.Scheduler.StatsSeconds,
	}
}

// Boot runs the once-per-start work: counts the start, pushes the saved
// configuration into the receiver and learns the device identity. A
// receiver that will not take its configuration is logged and lived
// with; it may still produce fixes on defaults.
func (t *Tracker) Boot() {
	t.st.NumStarts++
	t.bootTime = t.clock.Now()
	t.bootPowerSave = t.st.TotalPowerSaveSeconds

	if err := t.receiver.Initialise(); err != nil {
		t.log.Warn("receiver configuration failed", "err", err)
	}

	t.imei = t.device.IMEI()
	if t.imei == "" {
		t.log.Warn("device identity not available yet")
	}

	t.persist()
	t.log.Info("started", "starts", t.st.NumStarts, "imei", t.imei)
}

// establishTime makes sure the clock carries real time, connecting and
// requesting a network sync when it does not. Returns whether time is
// established.
func (t *Tracker) establishTime() bool {
	if t.clock.Now().Unix() < MinValidTime {
		t.log.Info("clock not yet established, requesting network time",
			"wait_seconds", t.cfg.Scheduler.TimeSyncWaitSeconds)
		t.queue.Connect(t.uplink)
		t.clock.Sync()
		// The sync request is asynchronous; all we can do is wait a
		// little and look again.
		t.power.Pause(time.Duration(t.cfg.Scheduler.TimeSyncWaitSeconds) * time.Second)
	}

	now := t.clock.Now()
	if now.Unix() < MinValidTime {
		t.log.Warn("unable to establish time", "clock", now.Unix())
		return false
	}
	if t.bootTime.Unix() < MinValidTime {
		// Boot ran before time was established; anchor uptime here.
		t.bootTime = now
	}
	return true
}

// uptime returns the device's life so far in whole seconds: wall time
// since this boot plus the power saving banked before it. A reset wipes
// the boot clock but not the banked total, the same shape the uptime has
// on hardware where deep sleep restarts the tick counter.
func (t *Tracker) uptime() int64 {
	u := int64(t.clock.Now().Sub(t.bootTime) / time.Second)
	if u < 0 {
		u = 0
	}
	return u + t.bootPowerSave
}

// wakeupPeriod returns the retained wakeup period clamped to the
// configured bounds. State from an older build, or a freshly reset
// record, can hold zero or out-of-range values; clamping on read keeps
// the schedule sane without a separate migration.
func (t *Tracker) wakeupPeriod() int {
	p := t.st.WakeupPeriodSeconds
	if p < t.cfg.Scheduler.MinWakeupSeconds {
		p = t.cfg.Scheduler.MinWakeupSeconds
	}
	if p > t.cfg.Scheduler.MaxWakeupSeconds {
		p = t.cfg.Scheduler.MaxWakeupSeconds
	}
	return p
}

func (t *Tracker) queueTelemetry(now int64) error {
	rec, err := t.queue.Allocate(state.KindTelemetry)
	if err != nil {
		return err
	}
	rec.Contents = report.Telemetry(t.imei, t.device.BatteryPercent(), t.device.SignalDBM(),
		now, t.cfg.Device.SoftwareVersion)
	observability.ReportsQueued.WithLabelValues(state.KindTelemetry.String()).Inc()
	t.log.Info("queued telemetry report", "contents", rec.Contents)
	return nil
}

func (t *Tracker) queuePosition(now int64, lat, lon float64, motion bool, hdop float64, hasHDOP bool) error {
	rec, err := t.queue.Allocate(state.KindPosition)
	if err != nil {
		return err
	}
	rec.Contents = report.Position(t.imei, lat, lon, now, motion, hdop, hasHDOP)
	observability.ReportsQueued.WithLabelValues(state.KindPosition.String()).Inc()
	t.log.Info("queued position report", "contents", rec.Contents)
	return nil
}

func (t *Tracker) queueStats(now int64) error {
	rec, err := t.queue.Allocate(state.KindStats)
	if err != nil {
		return err
	}
	sats := t.receiver.Satellites()
	rec.Contents = report.Stats(t.st, t.imei, t.uptime(),
		report.Satellites{Usable: sats.Usable, PeakCN: sats.PeakCN, AverageCN: sats.AverageCN}, now)
	observability.ReportsQueued.WithLabelValues(state.KindStats.String()).Inc()
	t.log.Info("queued stats report", "contents", rec.Contents)
	return nil
}

// persist writes the retained state back to the store. Failure to save
// is survivable: the running copy stays authoritative and the next save
// gets another chance.
func (t *Tracker) persist() {
	if err := t.st.Persist(t.store); err != nil {
		t.log.Warn("could not persist state", "err", err)
	}
}

// Sleep executes a cycle's decision. With wake-on-motion armed the
// sleep re-arms itself after a motion wake so the device never cycles
// faster than the minimum wakeup period; a deep sleep comes back as a
// fresh start instead, so there is nothing to re-arm.
func (t *Tracker) Sleep(ctx context.Context, d Decision) {
	if d.Reset {
		t.log.Error("resetting on request")
		t.power.Reset()
		return
	}

	if !d.ReceiverOn {
		t.receiver.Off()
	}
	if t.motion.Connected() {
		if d.WakeOnMotion {
			t.motion.Enable()
		} else {
			t.motion.Disable()
		}
	}

	observability.SleepSeconds.Set(d.SleepFor.Seconds())

	if !d.WakeOnMotion {
		t.power.Sleep(ctx, d.SleepFor, d.ModemStaysAwake, false)
		return
	}

	minWakeup := time.Duration(t.cfg.Scheduler.MinWakeupSeconds) * time.Second
	start := t.clock.Now()
	sleepFor := d.SleepFor
	for sleepFor > 0 {
		t.power.Sleep(ctx, sleepFor, d.ModemStaysAwake, true)
		if !d.ModemStaysAwake {
			// Deep sleep: any wake is a reset, the next start picks up
			// from retained state.
			return
		}
		elapsed := t.clock.Now().Sub(start)
		if elapsed < sleepFor {
			// Woken early by motion. Hold the line at the minimum
			// wakeup period, measured from when the sleep began.
			sleepFor = minWakeup - elapsed
		} else {
			sleepFor = 0
		}
	}
}
