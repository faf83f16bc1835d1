package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"trackerd/internal/config"
	"trackerd/internal/queue"
	"trackerd/internal/scenario"
	"trackerd/internal/state"
	"trackerd/internal/tracker"
	"trackerd/internal/uplink"
)

// maxBenchCycles caps a run whose schedule has gone pathological.
const maxBenchCycles = 200000

// rebootDelay is charged to the clock whenever a deep sleep or reset
// comes back as a fresh start.
const rebootDelay = 4 * time.Second

// Bench drives the real control loop through a scripted journey on the
// virtual clock. Deep sleeps and resets come back as fresh starts over
// the same retained store, exactly as they do on hardware.
type Bench struct {
	cfg  *config.Config
	scn  *scenario.Scenario
	obs  Observer
	sink uplink.RowWriter
	log  *slog.Logger

	mu   sync.Mutex
	last CycleEvent
}

// NewBench assembles a bench. The observer receives every cycle and
// delivered row; sink is an optional extra destination for the rows,
// such as a JSONL file for later replay.
func NewBench(cfg *config.Config, scn *scenario.Scenario, obs Observer, sink uplink.RowWriter, log *slog.Logger) *Bench {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Bench{cfg: cfg, scn: scn, obs: obs, sink: sink, log: log}
}

// Last returns the most recent cycle event, for status endpoints.
func (b *Bench) Last() CycleEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Run plays the journey to its end, rebuilding the control loop from
// retained state after every deep sleep. Blocking; returns the run
// summary.
func (b *Bench) Run(ctx context.Context) (Summary, error) {
	if err := b.scn.Check(); err != nil {
		return Summary{}, err
	}

	journey := NewJourney(b.scn)
	clock := NewClock(journey.Start(), b.scn.ColdClock)
	power := NewPower(clock, journey)
	gps := NewGPS(clock, journey)
	motion := NewScriptedMotion(clock, journey, !b.scn.NoAccel)
	dev := NewDevice(b.cfg.Device.IMEI, clock, journey)
	store := state.NewMemoryStore()
	cell := NewCell(clock, journey, uplink.WriterFunc(func(row uplink.Row) error {
		b.obs.Row(row)
		if b.sink != nil {
			return b.sink.Write(row)
		}
		return nil
	}))

	runID := uuid.New().String()
	b.log.Info("bench starting",
		"run", runID,
		"scenario", b.scn.Name,
		"start", journey.Start().Format(time.RFC3339),
		"duration", b.scn.Duration(),
		"cold_clock", b.scn.ColdClock)

	end := journey.End()
	cycles := 0
	starts := 0

	for clock.Truth().Before(end) && ctx.Err() == nil && cycles < maxBenchCycles {
		st, fresh, err := state.LoadOrInit(store, b.cfg.Device.SoftwareVersion)
		if err != nil {
			return Summary{}, fmt.Errorf("bench: %w", err)
		}
		if fresh {
			b.log.Info("retained state initialised")
		}
		q := queue.New(st, queue.Config{
			ConnectTimeout: time.Duration(b.cfg.Scheduler.ConnectWaitSeconds) * time.Second,
			PacingEvery:    b.cfg.Queue.PacingEvery,
			PacingDelay:    time.Duration(b.cfg.Queue.PacingMillis) * time.Millisecond,
			Pause:          clock.Advance,
		}, b.log)
		rcv := tracker.NewReceiver(gps, gps, clock, power, st, b.cfg.Receiver, b.log)
		tr := tracker.New(b.cfg, tracker.Deps{
			State:    st,
			Store:    store,
			Queue:    q,
			Receiver: rcv,
			Uplink:   cell,
			Motion:   motion,
			Clock:    clock,
			Power:    power,
			Device:   dev,
		}, b.log)
		tr.Boot()
		starts++

		for clock.Truth().Before(end) && ctx.Err() == nil && cycles < maxBenchCycles {
			d := tr.RunCycle()
			cycles++

			snap := journey.At(clock.Truth())
			ev := CycleEvent{
				Cycle:    cycles,
				Start:    starts,
				Device:   clock.Now(),
				Truth:    clock.Truth(),
				Leg:      snap.Leg,
				Moving:   snap.Moving,
				Lat:      snap.Lat,
				Lon:      snap.Lon,
				Decision: d,
				Queued:   st.NumRecordsQueued,
				Period:   st.WakeupPeriodSeconds,
				Loops:    st.NumLoops,
				Fixes:    st.NumLoopsGpsFix,
				Fatals:   st.NumFatals,
				Battery:  dev.BatteryPercent(),
			}
			b.mu.Lock()
			b.last = ev
			b.mu.Unlock()
			b.obs.Cycle(ev)

			tr.Sleep(ctx, d)
			if d.Reset {
				clock.Advance(rebootDelay)
				break
			}
			if !d.ModemStaysAwake {
				// The modem lost power in the deep sleep; the wake is a
				// fresh start from retained state.
				cell.Drop()
				clock.Advance(rebootDelay)
				break
			}
		}
	}

	final, _, err := state.LoadOrInit(store, b.cfg.Device.SoftwareVersion)
	if err != nil {
		return Summary{}, fmt.Errorf("bench: %w", err)
	}
	s := Summary{
		RunID:           runID,
		Scenario:        b.scn.Name,
		VirtualTime:     clock.Truth().Sub(journey.Start()),
		DistanceKM:      journey.Distance() / 1000,
		Cycles:          cycles,
		Starts:          starts,
		DeepSleeps:      power.DeepSleeps,
		MotionWakes:     power.MotionWakes,
		Resets:          power.ResetCount,
		FixPolls:        gps.Polls,
		Fixes:           gps.Fixes,
		Connects:        cell.Connects,
		ConnectFailures: cell.ConnectFailures,
		Published:       cell.Published,
		PublishFailures: cell.PublishFailures,
		QueueOverruns:   final.QueueOverruns,
		Fatals:          final.NumFatals,
	}
	b.obs.Done(s)
	return s, nil
}
