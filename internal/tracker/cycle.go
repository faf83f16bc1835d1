package tracker

import (
	"errors"
	"time"

	"trackerd/internal/observability"
	"trackerd/internal/queue"
)

// RunCycle executes one wake: sample motion, establish time, take the
// scheduled actions for wherever this wake landed and compute the sleep
// directive for the next one. Everything is derived afresh from the
// clock and the retained state, never from how long the last sleep was
// supposed to take.
func (t *Tracker) RunCycle() Decision {
	var (
		sleepFor        int64
		forceSend       bool
		modemStaysAwake bool
		wakeOnMotion    bool
		positionSent    bool
		inMotion        bool
	)
	settle := int64(t.cfg.Scheduler.SettleSeconds)

	// Give the wake a moment to settle before trusting peripherals.
	t.power.Pause(time.Duration(settle) * time.Second)

	t.st.NumLoops++
	observability.Cycles.Inc()
	if t.st.SleepTime != 0 {
		t.log.Info("starting cycle", "cycle", t.st.NumLoops,
			"slept_seconds", t.clock.Now().Unix()-t.st.SleepTime)
	} else {
		t.log.Info("starting cycle", "cycle", t.st.NumLoops)
	}

	if t.motion.Connected() {
		reading, moving := t.motion.Poll()
		t.st.Motion = reading
		if moving {
			inMotion = true
			t.st.NumLoopsMotionDetected++
			observability.MotionCycles.Inc()
			t.log.Info("motion detected", "x", reading.X, "y", reading.Y, "z", reading.Z)
		}
	}

	// In slow operation report stats at the wakeup cadence; they are the
	// main sign of life while the device trickles along.
	if t.clock.Now().Unix() < t.cfg.Window.FullOperationUTC {
		t.statsPeriod = t.wakeupPeriod()
	}

	if t.establishTime() {
		t.st.AccumulatePowerSave(t.clock.Now().Unix())

		if t.clock.Now().Unix() >= t.cfg.Window.StartTimeUTC-settle {
			ssm := secondsSinceMidnight(t.clock.Now())

			// Identity retrieval can fail at boot, so try again here.
			if t.imei == "" {
				t.log.Warn("retrying device identity")
				t.imei = t.device.IMEI()
			}

			dayStart := int64(t.cfg.Window.DayStartSeconds)
			dayEnd := dayStart + int64(t.cfg.Window.DayLengthSeconds)
			if ssm >= dayStart && ssm < dayEnd {
				t.log.Info("inside the working day, time to do something")

				// React to motion during the working day.
				wakeOnMotion = true

				// Not moving: stretch the wakeup period. Moving: snap
				// back to the floor so we track closely.
				period := t.wakeupPeriod()
				if !inMotion {
					period *= 2
					if period > t.cfg.Scheduler.MaxWakeupSeconds {
						period = t.cfg.Scheduler.MaxWakeupSeconds
					}
				} else {
					period = t.cfg.Scheduler.MinWakeupSeconds
				}
				t.st.WakeupPeriodSeconds = period

				// Short enough wakeups keep the modem registered
				// through the sleep instead of paying for a fresh
				// registration every time.
				if period < t.cfg.Scheduler.ModemMaxOnSeconds {
					modemStaysAwake = true
				}

				sleepFor = int64(period) - settle

				if inMotion || !t.motion.Connected() {
					t.st.NumLoopsLocationNeeded++
					if !t.motion.Connected() {
						t.log.Info("no motion sensor, getting a position every wake")
					}
					if t.receiver.IsOn() {
						t.log.Info("still hunting a fix from last wake")
					}
					t.st.NumLoopsGpsOn++
					observability.FixAttempts.Inc()

					fix, ok := t.receiver.Update()
					if ok {
						t.st.NumLoopsGpsFix++
						t.st.NumLoopsLocationValid++
						t.st.LastFixTime = t.clock.Now().Unix()
						observability.FixesAchieved.Inc()
						if err := t.queuePosition(t.clock.Now().Unix(),
							fix.Latitude, fix.Longitude, inMotion, fix.HDOP, fix.HasHDOP); err != nil {
							return t.fatal(err)
						}
					} else if t.cfg.Report.QueueInvalidFixes {
						if err := t.queuePosition(t.clock.Now().Unix(),
							invalidAngle, invalidAngle, inMotion, 0, false); err != nil {
							return t.fatal(err)
						}
					}
				}

				// Power the receiver down for the sleep when it can
				// afford to.
				if t.receiver.IsOn() && t.receiver.CanPowerSave(time.Duration(sleepFor)*time.Second) {
					t.receiver.Off()
				}

				now := t.clock.Now().Unix()
				if now-t.st.LastTelemetryTime >= int64(t.cfg.Scheduler.TelemetrySeconds) {
					t.st.LastTelemetryTime = now
					if err := t.queueTelemetry(now); err != nil {
						return t.fatal(err)
					}
					forceSend = true
				}

				now = t.clock.Now().Unix()
				if now-t.st.LastStatsTime >= int64(t.statsPeriod) {
					t.st.LastStatsTime = now
					if err := t.queueStats(now); err != nil {
						return t.fatal(err)
					}
				}

				now = t.clock.Now().Unix()
				if forceSend || (now-t.st.LastReportTime >= int64(t.cfg.Scheduler.ReportSeconds) &&
					t.queue.Queued() >= t.cfg.Queue.SendThreshold) {
					failedBefore := t.st.NumConnectFailed

					res, err := t.queue.Flush(t.uplink)
					if err != nil {
						return t.fatal(err)
					}
					positionSent = res.PositionSent
					observability.ReportsSent.Add(float64(res.Sent))
					observability.ReportsFailed.Add(float64(res.Failed))
					observability.ConnectFailures.Add(float64(t.st.NumConnectFailed - failedBefore))

					// A long run of failed connects may be the modem
					// wedged; powering everything down over the sleep
					// sometimes recovers it.
					if t.queue.ConsecutiveConnectFailures() > t.cfg.Scheduler.MaxConnectFailures {
						modemStaysAwake = false
						t.log.Warn("too many connect failures, powering the modem down over the sleep",
							"failures", t.queue.ConsecutiveConnectFailures())
					}

					// Set this last: the flush itself takes time.
					t.st.LastReportTime = t.clock.Now().Unix()
				}

				// In slow operation stay up only until a position has
				// gone out or the fix budget is spent, then sleep to
				// the next slow slot.
				if t.clock.Now().Unix() < t.cfg.Window.FullOperationUTC {
					modemStaysAwake = true
					if positionSent ||
						t.clock.Now().Unix()-t.bootTime.Unix() > int64(t.cfg.Window.SlowFixBudgetSeconds) {
						modemStaysAwake = false
						interval := int64(t.cfg.Window.SlowInterval())
						passed := (ssm - dayStart) / interval
						sleepFor = dayStart + (passed+1)*interval - ssm - settle
						if sleepFor < 0 {
							sleepFor = 0
						}
						// A slot at or past the end of the day becomes
						// a proper sleep to tomorrow's start.
						if ssm+sleepFor >= dayEnd-settle {
							sleepFor = t.sleepToWindowStart(ssm)
						}
					}
				}

				t.st.SleepTime = t.clock.Now().Unix()
			} else {
				// Outside the working day. Drop the adaptive schedule
				// so tomorrow starts from a clean slate, and sleep to
				// the next window start.
				sleepFor = t.sleepToWindowStart(ssm)
				t.st.Reset()
			}
		} else {
			// Awake before operation begins at all. Sleep until the
			// start time, skipping ahead to the first slow slot if
			// slow operation will still be in force then.
			now := t.clock.Now().Unix()
			sleepFor = t.cfg.Window.StartTimeUTC - now - settle
			if now+sleepFor < t.cfg.Window.FullOperationUTC-settle {
				sleepFor += int64(t.cfg.Window.SlowInterval())
			}
			if sleepFor > 0 {
				t.log.Info("awake too early, going back to sleep",
					"start_time", t.cfg.Window.StartTimeUTC, "sleep_seconds", sleepFor+settle)
			} else {
				sleepFor = 0
			}
			t.st.Reset()
		}

		// Mark the start of power saving, now that time is trustworthy.
		t.st.PowerSaveTime = t.clock.Now().Unix()
	} else {
		// No time, no schedule. Retry the sync shortly and keep the
		// modem up, since network time is what we are after.
		sleepFor = int64(t.cfg.Scheduler.TimeSyncRetrySeconds) - settle
		modemStaysAwake = true
	}

	if sleepFor < 0 {
		sleepFor = 0
	}

	d := Decision{
		SleepFor:        time.Duration(sleepFor) * time.Second,
		ModemStaysAwake: modemStaysAwake,
		WakeOnMotion:    wakeOnMotion,
		ReceiverOn:      wakeOnMotion && t.receiver.IsOn(),
	}

	t.st.SleepForSeconds = int(sleepFor)
	t.st.MinSleepPeriodSeconds = t.cfg.Scheduler.MinSleepSeconds
	t.st.ModemStaysAwake = modemStaysAwake
	t.persist()

	observability.QueueDepth.Set(float64(t.queue.Queued()))
	observability.QueueOverruns.Set(float64(t.st.QueueOverruns))

	t.log.Info("ending cycle",
		"cycle", t.st.NumLoops,
		"sleep_seconds", sleepFor+settle,
		"modem_awake", d.ModemStaysAwake,
		"receiver_on", d.ReceiverOn,
		"wake_on_motion", d.WakeOnMotion)
	return d
}

// fatal turns a structural queue failure into a reset directive. The
// failure code is already in the retained record; save it and ask for
// the reset.
func (t *Tracker) fatal(err error) Decision {
	var fe *queue.FatalError
	if errors.As(err, &fe) {
		t.log.Error("fatal invariant violation", "code", int(fe.Code))
	} else {
		t.log.Error("fatal error", "err", err)
	}
	observability.Fatals.Inc()
	t.persist()
	return Decision{Reset: true}
}

// secondsSinceMidnight returns how far into the UTC day the given time is.
func secondsSinceMidnight(now time.Time) int64 {
	u := now.UTC()
	return int64(u.Hour()*3600 + u.Minute()*60 + u.Second())
}

// sleepToWindowStart returns the sleep that lands the next wake on the
// working day start: today's when that is still ahead, otherwise
// tomorrow's. While slow operation will still be in force at the wake,
// the sleep extends to the day's first slow slot instead.
func (t *Tracker) sleepToWindowStart(ssm int64) int64 {
	dayStart := int64(t.cfg.Window.DayStartSeconds)
	settle := int64(t.cfg.Scheduler.SettleSeconds)

	var seconds int64
	if ssm < dayStart {
		seconds = dayStart - ssm - settle
	} else {
		seconds = dayStart + 24*3600 - ssm - settle
	}

	if seconds <= 0 {
		return 0
	}
	t.log.Info("sleeping until the working day starts",
		"seconds", seconds+settle,
		"day_start_seconds", dayStart)
	if t.clock.Now().Unix()+seconds < t.cfg.Window.FullOperationUTC-settle {
		seconds += int64(t.cfg.Window.SlowInterval())
		t.log.Info("still in slow operation at the next wake, sleeping to the first slow slot",
			"seconds", seconds+settle)
	}
	return seconds
}
